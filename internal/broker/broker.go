// Package broker resolves a parsed request's filename to the supplier
// responsible for serving it — an embedded static file, an embedded
// dynamic page handler, or a filesystem CGI program — mirroring spec.md
// §4.5's ordered is_valid_uri/serve dispatch.
//
// Grounded on the teacher's cmd/dev-console/tools_registry.go ordered-
// dispatch-table-of-handlers idiom, generalised from "MCP tool name →
// handler" to "URI → supplier."
package broker

import (
	"time"

	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// Supplier is one of the built-in resource providers spec.md §4.5
// describes: embFS static, embFS dynamic, filesystem CGI, or a caller's
// own.
type Supplier interface {
	// Name identifies the supplier for diagnostics and access logging.
	Name() string
	// IsValidURI reports whether this supplier can serve uri; handle is an
	// opaque value threaded back into Serve (e.g. a resolved file path or
	// a matched regex's submatches), mtime is the resource's modification
	// time (zero if not applicable or unknown).
	IsValidURI(req *httpreq.Request, uri string) (ok bool, handle any, mtime time.Time)
	// Serve writes the response for a request this supplier accepted.
	Serve(req *httpreq.Request, resp *httpresp.Response, handle any) error
}

// Broker holds suppliers in registration order and resolves requests
// against them.
type Broker struct {
	suppliers []Supplier
}

// New returns an empty Broker; callers Register suppliers in the priority
// order spec.md documents: embFS static, embFS dynamic, filesystem CGI.
func New() *Broker { return &Broker{} }

// Register appends a supplier to the resolution order.
func (b *Broker) Register(s Supplier) { b.suppliers = append(b.suppliers, s) }

// ProbeValidURI reports whether any registered supplier accepts uri,
// without serving it — used by the HTTP engine to test index-file
// candidates and to decide whether a trailing-slash redirect would land
// on something real.
func (b *Broker) ProbeValidURI(req *httpreq.Request, uri string) bool {
	for _, s := range b.suppliers {
		if ok, _, _ := s.IsValidURI(req, uri); ok {
			return true
		}
	}
	return false
}

// Serve consults each supplier's IsValidURI in registration order until
// one accepts the request's Filename, honours the If-Modified-Since short
// circuit, and invokes that supplier's Serve. If no supplier accepts, or
// the accepting supplier's Serve fails, responds 404.
func (b *Broker) Serve(req *httpreq.Request, resp *httpresp.Response) error {
	for _, s := range b.suppliers {
		ok, handle, mtime := s.IsValidURI(req, req.Filename)
		if !ok {
			continue
		}
		if !req.IfModifiedSince.IsZero() && !mtime.IsZero() && !mtime.After(req.IfModifiedSince) {
			resp.SetStatus(304)
			return resp.Finalize()
		}
		if !mtime.IsZero() {
			_ = resp.SetLastModified(mtime)
		}
		if err := s.Serve(req, resp, handle); err != nil {
			resp.SetStatus(404)
			return resp.Finalize()
		}
		return nil
	}
	resp.SetStatus(404)
	return resp.Finalize()
}
