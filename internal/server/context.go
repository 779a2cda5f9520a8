// Package server holds the per-process Context spec.md §9 describes as
// a global "context" struct (server handle, config, PID-file path,
// backend-this-child-serves, stop flag) — generalised, per SPEC_FULL.md
// §9, into an explicit value threaded down the request path instead of
// package-level globals, since Go has no equivalent of a process-wide C
// global that's safe to mutate across goroutines without discipline.
//
// Grounded on the teacher's cmd/dev-console/server_routes.go +
// server_middleware.go request-dispatch shape: a single struct holding
// every dependency a request handler needs, passed explicitly rather
// than reached for through package state.
package server

import (
	"crypto/tls"
	"encoding/hex"
	"net"

	"github.com/klone-io/klone/internal/broker"
	"github.com/klone-io/klone/internal/httpengine"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
	"github.com/klone-io/klone/internal/klog"
	"github.com/klone-io/klone/internal/session"
	"github.com/klone-io/klone/internal/stream"
)

// AccessLogFunc emits one access-log entry. The parent process (the
// iterative model) wires this straight to a klog call; every re-exec'd
// worker (fork and prefork models) wires it to a PPC ACCESS_LOG
// round-trip instead (see cmd/klone), since a worker doesn't hold the
// klog sinks itself.
type AccessLogFunc func(backendID string, e httpengine.AccessEntry)

// Context is everything one backend's connection-serving loop needs: the
// resolved request-parsing options, the vhost engine, the supplier
// broker, session configuration, and where access-log/diagnostic lines
// go. One Context is built per backend at startup and is read-only once
// workers start serving — nothing here is mutated per-request.
type Context struct {
	BackendID string

	Engine *httpengine.Engine
	Broker *broker.Broker

	ReqOptions httpreq.Options
	Session    session.Options

	// ClientSide is non-nil when this backend's session.backend is
	// "client": session state round-trips entirely in cookies, so
	// ServeConn calls session.CreateClientSide instead of session.Create.
	ClientSide *session.ClientSideOptions

	// FileSession is non-nil when this backend's session.backend is
	// "file": the file backend partitions sessions by peer address (see
	// internal/session's FileBackendOptions.PeerAddr), which isn't known
	// until a connection is accepted, so ServeConn rebuilds Session's
	// Backend per-request from this template instead of using a fixed
	// closure captured once at startup.
	FileSession *session.FileBackendOptions

	Logger    *klog.Logger
	AccessLog AccessLogFunc
}

// createSession dispatches to the client-side, file, or generic backend-
// mediated session constructor depending on how this backend's session
// store is configured.
func (c *Context) createSession(peerAddr string, req *httpreq.Request, resp *httpresp.Response) (*session.Session, error) {
	if c.ClientSide != nil {
		return session.CreateClientSide(*c.ClientSide, req, resp)
	}
	opts := c.Session
	if c.FileSession != nil {
		tmpl := *c.FileSession
		tmpl.PeerAddr = peerHost(peerAddr)
		opts.Backend = session.NewFileBackend(tmpl)
	}
	return session.Create(opts, req, resp)
}

// peerHost strips the port off a net.Addr.String()-shaped address, or
// returns it unchanged if it carries none.
func peerHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// ServeConn parses one HTTP/1.0 request off conn, serves it through the
// engine/broker, and closes conn — spec.md's one-request-per-connection
// model, realized as a single function call per accepted connection
// rather than a persistent per-connection goroutine loop.
func (c *Context) ServeConn(conn net.Conn) {
	defer conn.Close()

	_, secure := conn.(*tls.Conn)
	st := stream.New(conn, conn, conn.RemoteAddr().String(), secure)
	defer st.Free()

	req := httpreq.New(st, c.ReqOptions)

	if err := req.ParseHeader(); err != nil {
		c.respondParseError(httpresp.New(st, httpreq.MethodUnknown), err)
		return
	}

	// resp is built only now that req.Method is known, since
	// httpresp.New fixes its HEAD-suppresses-body behavior at
	// construction time from the method passed in.
	resp := httpresp.New(st, req.Method)

	if req.Method == httpreq.MethodPost || req.Method == httpreq.MethodPut {
		if err := req.ParseData(); err != nil {
			c.respondParseError(resp, err)
			return
		}
	}
	defer req.Free()

	sess, err := c.createSession(conn.RemoteAddr().String(), req, resp)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Error("backend %s: session create: %v", c.BackendID, err)
		}
		resp.SetStatus(500)
		_ = resp.Finalize()
		return
	}

	err = c.Engine.ServeRequest(req, resp, c.Broker, func(e httpengine.AccessEntry) {
		e.RemoteAddr = conn.RemoteAddr().String()
		if c.AccessLog != nil {
			c.AccessLog(c.BackendID, e)
		}
	})
	if err != nil && c.Logger != nil {
		c.Logger.Warn("backend %s: serve %s: %v", c.BackendID, req.URI, err)
	}

	if sess != nil {
		if serr := sess.Save(); serr != nil && c.Logger != nil {
			c.Logger.Error("backend %s: session save: %v", c.BackendID, serr)
		}
	}
}

// respondParseError maps a request-parsing failure to its status code —
// an *httpreq.StatusError carries one explicitly, anything else is a 400
// — and finalises the response so the connection closes cleanly instead
// of hanging.
func (c *Context) respondParseError(resp *httpresp.Response, err error) {
	status := 400
	if se, ok := err.(*httpreq.StatusError); ok {
		status = se.Status
	}
	resp.SetStatus(status)
	_ = resp.Finalize()
}

// CipherKeyFromSession adapts the KLONE_CIPHER_KEY reserved session
// variable (spec.md §4.7) into the broker.EmbFSStatic.CipherKey closure
// shape. The embFS-static supplier only ever sees a *httpreq.Request, so
// this re-resolves the request's session (a second, cheap backend Load —
// the embFS supplier only calls it for resources actually marked
// encrypted) rather than threading the already-created Session through
// the broker interface.
func CipherKeyFromSession(opts session.Options) func(req *httpreq.Request) ([32]byte, bool) {
	return func(req *httpreq.Request) ([32]byte, bool) {
		discard := httpresp.New(stream.NewMemory("cipher-key-probe"), req.Method)
		sess, err := session.Create(opts, req, discard)
		if err != nil {
			return [32]byte{}, false
		}
		hexKey, ok := sess.Get("KLONE_CIPHER_KEY")
		if !ok {
			return [32]byte{}, false
		}
		return decodeHexKey(hexKey)
	}
}

// CipherKeyFromClientSide is CipherKeyFromSession's counterpart for a
// backend whose session.backend is "client": the reserved variable lives
// in the signed/encrypted cookie set rather than a server-side store.
func CipherKeyFromClientSide(opts session.ClientSideOptions) func(req *httpreq.Request) ([32]byte, bool) {
	return func(req *httpreq.Request) ([32]byte, bool) {
		discard := httpresp.New(stream.NewMemory("cipher-key-probe"), req.Method)
		sess, err := session.CreateClientSide(opts, req, discard)
		if err != nil {
			return [32]byte{}, false
		}
		hexKey, ok := sess.Get("KLONE_CIPHER_KEY")
		if !ok {
			return [32]byte{}, false
		}
		return decodeHexKey(hexKey)
	}
}

func decodeHexKey(s string) ([32]byte, bool) {
	var key [32]byte
	n, err := hex.Decode(key[:], []byte(s))
	if err != nil || n != 32 {
		return [32]byte{}, false
	}
	return key, true
}
