package broker

import (
	"regexp"
	"time"

	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// DynamicHandler is the Go equivalent of the original kilt "compiled-in C
// function" a dynamic page pattern dispatches to: given the request, the
// response to write to, and the regex submatches captured from the URI, it
// produces the page.
type DynamicHandler func(req *httpreq.Request, resp *httpresp.Response, args []string) error

type dynamicRoute struct {
	pattern *regexp.Regexp
	handler DynamicHandler
}

// EmbFSDynamic is the built-in supplier that scans a compiled table of URL
// regexes against the request URI, per spec.md §4.5's "embFS dynamic
// (kilt)" description.
type EmbFSDynamic struct {
	routes []dynamicRoute
}

// NewEmbFSDynamic returns an empty dynamic-page table.
func NewEmbFSDynamic() *EmbFSDynamic { return &EmbFSDynamic{} }

// Register compiles pattern and associates it with handler. Patterns are
// matched in registration order, first match wins — routes registered
// earlier take priority, matching spec.md's ordered-dispatch convention.
func (d *EmbFSDynamic) Register(pattern string, handler DynamicHandler) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	d.routes = append(d.routes, dynamicRoute{pattern: re, handler: handler})
	return nil
}

func (d *EmbFSDynamic) Name() string { return "embfs-dynamic" }

func (d *EmbFSDynamic) IsValidURI(req *httpreq.Request, uri string) (bool, any, time.Time) {
	for _, r := range d.routes {
		if m := r.pattern.FindStringSubmatch(uri); m != nil {
			return true, dynamicMatch{route: r, args: m[1:]}, time.Time{}
		}
	}
	return false, nil, time.Time{}
}

type dynamicMatch struct {
	route dynamicRoute
	args  []string
}

func (d *EmbFSDynamic) Serve(req *httpreq.Request, resp *httpresp.Response, handle any) error {
	m := handle.(dynamicMatch)
	return m.route.handler(req, resp, m.args)
}
