package httpengine

import (
	"strings"

	"github.com/klone-io/klone/internal/broker"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// builtinErrorBodyFmt is a minimal built-in HTML error page format.
// serveErrorPage does not use it.
const builtinErrorBodyFmt = "<html><head><title>%d %s</title></head><body><h1>%d %s</h1></body></html>"

// ServeRequest resolves req's vhost and filename, runs index/trailing-
// slash resolution, delegates to b for suppliers, and falls back to error
// pages on failure. log receives one AccessEntry per request regardless of
// outcome, unless the vhost's access-log include/exclude patterns filter
// the URI out.
func (e *Engine) ServeRequest(req *httpreq.Request, resp *httpresp.Response, b *broker.Broker, log func(AccessEntry)) error {
	hostHeader, _ := req.Header.Get("Host")
	vhost := e.SelectVHost(hostHeader)

	filename := req.Filename
	if vhost != nil {
		filename = vhost.ResolveFilename(req.Filename)
	}

	resolved, status := resolveIndexOrRedirect(req, filename, vhost, b)
	req.Filename = resolved

	if status == 302 {
		_ = resp.Redirect(resolved + queryPathInfoSuffix(req))
		err := resp.Finalize()
		logAccess(log, vhost, req, 302)
		return err
	}

	err := b.Serve(req, resp)
	logAccess(log, vhost, req, resp.Status)
	if resp.Status >= 400 && vhost != nil {
		return serveErrorPage(req, resp, vhost, b)
	}
	return err
}

// resolveIndexOrRedirect implements spec.md §4.6's index resolution and
// trailing-slash redirect: if filename ends in "/", try each index
// candidate; if none resolves and the original request URI had no
// trailing slash, a retry with one appended is tried, signalled to the
// caller via status=302.
func resolveIndexOrRedirect(req *httpreq.Request, filename string, vhost *VHost, b *broker.Broker) (string, int) {
	if !strings.HasSuffix(filename, "/") {
		if b.ProbeValidURI(req, filename) {
			return filename, 200
		}
		if !strings.HasSuffix(req.URI, "/") {
			if _, ok := tryIndex(req, filename+"/", vhost, b); ok {
				return req.URI + "/", 302
			}
		}
		return filename, 200
	}

	if candidate, ok := tryIndex(req, filename, vhost, b); ok {
		return candidate, 200
	}
	return filename, 200
}

func tryIndex(req *httpreq.Request, dirFilename string, vhost *VHost, b *broker.Broker) (string, bool) {
	var names []string
	if vhost != nil {
		names = vhost.indexFiles()
	} else {
		names = defaultIndexFiles
	}
	for _, name := range names {
		candidate := dirFilename + name
		if b.ProbeValidURI(req, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func queryPathInfoSuffix(req *httpreq.Request) string {
	var b strings.Builder
	if req.PathInfo != "" {
		b.WriteString(req.PathInfo)
	}
	if req.QueryString != "" {
		b.WriteString("?")
		b.WriteString(req.QueryString)
	}
	return b.String()
}

// serveErrorPage implements spec.md §4.6's custom-error-page lookup: it
// serves the vhost's configured page for this status through b on the same
// response. It does not clear headers or disable caching, and when no page
// is configured for the status it does nothing: no built-in page is sent.
func serveErrorPage(req *httpreq.Request, resp *httpresp.Response, vhost *VHost, b *broker.Broker) error {
	status := resp.Status
	pageURI, hasCustom := vhost.ErrorPages[status]
	if !hasCustom {
		return nil
	}
	errReq := &httpreq.Request{
		Method:   req.Method,
		Filename: vhost.ResolveFilename(pageURI),
		Header:   req.Header,
		Stream:   req.Stream,
	}
	return b.Serve(errReq, resp)
}

// AccessEntry is one Combined Log Format record, per spec.md §4.6. Lines
// are routed through the klog sink by the caller (the worker, which for
// prefork children sends them over PPC instead of writing directly).
type AccessEntry struct {
	RemoteAddr string
	Ident      string
	User       string
	Method     string
	URI        string
	Protocol   string
	Status     int
	BytesSent  int64
	Referer    string
	UserAgent  string
}

func logAccess(log func(AccessEntry), vhost *VHost, req *httpreq.Request, status int) {
	if log == nil {
		return
	}
	if vhost != nil && !accessLogAllowed(vhost, req.URI) {
		return
	}
	referer, _ := req.Header.Get("Referer")
	ua, _ := req.Header.Get("User-Agent")
	log(AccessEntry{
		Method:   req.Method.String(),
		URI:      req.RawRequestLine,
		Protocol: req.Protocol,
		Status:   status,
		Referer:  referer,
		UserAgent: ua,
	})
}

func accessLogAllowed(vhost *VHost, uri string) bool {
	for _, pat := range vhost.AccessLogExclude {
		if fnmatch(pat, uri) {
			return false
		}
	}
	if len(vhost.AccessLogInclude) == 0 {
		return true
	}
	for _, pat := range vhost.AccessLogInclude {
		if fnmatch(pat, uri) {
			return true
		}
	}
	return false
}
