// Package httpresp implements the Response type and the postponed-header
// response filter: a codec installed at the head of the response stream
// that buffers the body so handlers can still mutate status/headers/
// cookies until the first body byte is actually written to the wire.
//
// Grounded on the teacher's internal/streaming/stream.go buffered-state-
// machine idiom and internal/buffers/ring_buffer.go's bounded-buffer shape.
package httpresp

import (
	"fmt"
	"strings"
	"time"

	"github.com/klone-io/klone/internal/header"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/stream"
)

// StatusEmpty is the Response's initial, not-yet-set status, per spec.md.
const StatusEmpty = 0

// Response owns an output stream fronted by a responseFilter codec,
// per spec.md §3/§4.4.
type Response struct {
	Stream *stream.Stream
	Header *header.Header
	Status int
	Method httpreq.Method // mirrored from the request, to suppress HEAD bodies
	IsCGI  bool

	filter *responseFilter
}

// New wraps s as a Response, installing the postponed-header filter at the
// head of its write codec chain.
func New(s *stream.Stream, method httpreq.Method) *Response {
	r := &Response{
		Stream: s,
		Header: header.New(),
		Status: StatusEmpty,
		Method: method,
	}
	r.filter = newResponseFilter(r, method == httpreq.MethodHead)
	s.CodecAddHead(r.filter)
	return r
}

// SetStatus sets the numeric status code, valid any time before the filter
// transitions to FLUSHING.
func (r *Response) SetStatus(status int) { r.Status = status }

// SetField sets (replacing any existing value) a response header field.
func (r *Response) SetField(name, value string) error { return r.Header.Set(name, value) }

// DelField removes a response header field.
func (r *Response) DelField(name string) { r.Header.Del(name) }

// SetCookie appends a Set-Cookie header, per spec.md §4.4/§6.
func (r *Response) SetCookie(name, value string, expires time.Time, path, domain string, secure bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s=%s", name, value)
	if !expires.IsZero() {
		fmt.Fprintf(&b, "; Expires=%s", expires.UTC().Format(time.RFC1123))
	}
	if path != "" {
		fmt.Fprintf(&b, "; Path=%s", path)
	}
	if domain != "" {
		fmt.Fprintf(&b, "; Domain=%s", domain)
	}
	if secure {
		b.WriteString("; Secure")
	}
	return r.Header.LoadWith(header.Add, "Set-Cookie", b.String())
}

// SetContentType sets the Content-Type header.
func (r *Response) SetContentType(ct string) error { return r.SetField("Content-Type", ct) }

// SetContentLength sets the Content-Length header.
func (r *Response) SetContentLength(n int64) error {
	return r.SetField("Content-Length", fmt.Sprintf("%d", n))
}

// SetContentEncoding sets the Content-Encoding header (e.g. "gzip").
func (r *Response) SetContentEncoding(enc string) error { return r.SetField("Content-Encoding", enc) }

// SetDate sets the Date header to the current time.
func (r *Response) SetDate(t time.Time) error {
	return r.SetField("Date", t.UTC().Format(time.RFC1123))
}

// SetLastModified sets the Last-Modified header.
func (r *Response) SetLastModified(t time.Time) error {
	return r.SetField("Last-Modified", t.UTC().Format(time.RFC1123))
}

// DisableCaching sets no-cache headers, per spec.md.
func (r *Response) DisableCaching() error {
	if err := r.SetField("Cache-Control", "no-cache, no-store, must-revalidate"); err != nil {
		return err
	}
	if err := r.SetField("Pragma", "no-cache"); err != nil {
		return err
	}
	return r.SetField("Expires", time.Unix(0, 0).UTC().Format(time.RFC1123))
}

// Redirect sets a 302 response to url.
func (r *Response) Redirect(url string) error {
	r.SetStatus(302)
	return r.SetField("Location", url)
}

// Write writes body bytes through the response filter, which holds them
// and commits the headers only once maxPostponeBuffer bytes have built up
// or Finalize is called (see responseFilter).
func (r *Response) Write(p []byte) (int, error) { return r.Stream.Write(p) }

// Finalize commits the response: it forces the filter to transition out of
// BUFFERING even if no body bytes were written (e.g. a 304 with an empty
// body), drains it fully to the wire, and tears down the stream's codec
// chain — matching spec.md's one-request-per-connection HTTP/1.0 model,
// where every response ends the stream's useful life.
func (r *Response) Finalize() error {
	return r.Stream.CodecsRemove()
}

// StatusLine formats the HTTP/1.0 status line for status, with a minimal
// built-in reason phrase table.
func StatusLine(status int) string {
	return fmt.Sprintf("HTTP/1.0 %d %s", status, reasonPhrase(status))
}

func reasonPhrase(status int) string {
	switch status {
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Moved Temporarily"
	case 304:
		return "Not Modified"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 408:
		return "Request Timeout"
	case 411:
		return "Length Required"
	case 413:
		return "Request Entity Too Large"
	case 430:
		return "Key Needed"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	default:
		return "Unknown"
	}
}
