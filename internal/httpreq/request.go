// Package httpreq parses an HTTP/1.0 request off a stream.Stream: request
// line, headers, and body (urlencoded or multipart/form-data with file
// uploads), honouring the idle and post timeouts and size caps spec.md
// §4.3 specifies.
//
// Grounded on the teacher's internal/upload package (validators.go,
// security.go, form_submit.go) for multipart part validation and
// temp-file handling, generalised from "MCP file upload" to "HTTP request
// body parsing."
package httpreq

import (
	"bufio"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klone-io/klone/internal/header"
	"github.com/klone-io/klone/internal/stream"
	"github.com/klone-io/klone/internal/timer"
)

// Method is the parsed HTTP method.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodHead
	MethodPost
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return "GET"
	case MethodHead:
		return "HEAD"
	case MethodPost:
		return "POST"
	case MethodPut:
		return "PUT"
	case MethodDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

func parseMethod(s string) Method {
	switch s {
	case "GET":
		return MethodGet
	case "HEAD":
		return MethodHead
	case "POST":
		return MethodPost
	case "PUT":
		return MethodPut
	case "DELETE":
		return MethodDelete
	default:
		return MethodUnknown
	}
}

// StatusError carries an HTTP status the caller should respond with
// without further processing (e.g. 400, 411, 413).
type StatusError struct {
	Status int
	Msg    string
}

func (e *StatusError) Error() string { return e.Msg }

// Upload describes one file-bearing multipart/form-data part.
type Upload struct {
	FieldName      string
	ClientFilename string
	TempPath       string
	MIMEType       string
	Size           int64
}

// Options configures timeouts and limits, matching spec.md's configurable
// defaults.
type Options struct {
	IdleTimeout time.Duration // default 10s
	PostTimeout time.Duration // default 600s
	PostMaxSize int64         // default 5 MiB
	TempDir     string
	Wheel       *timer.Wheel
	Resolver    Resolver
}

// DefaultOptions returns spec.md's documented defaults.
func DefaultOptions() Options {
	return Options{
		IdleTimeout: 10 * time.Second,
		PostTimeout: 600 * time.Second,
		PostMaxSize: 5 * 1024 * 1024,
		TempDir:     "",
		Wheel:       timer.New(),
	}
}

// Request is the parsed HTTP request, owning its input stream.
type Request struct {
	Stream *stream.Stream

	Method        Method
	RawRequestLine string
	URI           string
	Protocol      string
	Filename      string
	PathInfo      string
	QueryString   string
	ContentLength int64
	IfModifiedSince time.Time

	Header *header.Header

	MergedArgs map[string][]string
	GetArgs    map[string][]string
	PostArgs   map[string][]string

	Cookies map[string]string
	Uploads []*Upload

	opts Options
	br   *bufio.Reader
}

// New wraps s as a Request ready to Parse.
func New(s *stream.Stream, opts Options) *Request {
	return &Request{
		Stream:     s,
		Header:     header.New(),
		MergedArgs: map[string][]string{},
		GetArgs:    map[string][]string{},
		PostArgs:   map[string][]string{},
		Cookies:    map[string]string{},
		opts:       opts,
		br:         bufio.NewReader(s),
	}
}

// ParseHeader reads the request line and headers, guarded by the idle
// timeout. On success, Filename/PathInfo are resolved via opts.Resolver if
// one is configured.
func (r *Request) ParseHeader() error {
	alarm := r.opts.Wheel.Add(r.opts.IdleTimeout, func() { _ = r.Stream.Close() })
	defer r.opts.Wheel.Cancel(alarm)

	line, err := r.br.ReadString('\n')
	if err != nil {
		return &StatusError{400, "bad request: " + err.Error()}
	}
	line = strings.TrimRight(line, "\r\n")
	r.RawRequestLine = line

	fields := strings.Fields(line)
	if len(fields) != 3 {
		return &StatusError{400, "malformed request line"}
	}
	r.Method = parseMethod(fields[0])
	if r.Method == MethodUnknown {
		return &StatusError{400, "unknown method " + fields[0]}
	}
	if !strings.HasPrefix(strings.ToLower(fields[2]), "http") {
		return &StatusError{400, "unrecognised protocol " + fields[2]}
	}
	r.Protocol = fields[2]

	rawURI := fields[1]
	path, query := SplitQuery(rawURI)
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return &StatusError{400, "malformed URI"}
	}
	r.URI = NormalizeURI(decoded)
	r.QueryString = query

	if err := r.Header.Load(r.br); err != nil {
		return &StatusError{400, "malformed headers: " + err.Error()}
	}

	if ims, ok := r.Header.Get("If-Modified-Since"); ok {
		if t, err := time.Parse(time.RFC1123, ims); err == nil {
			r.IfModifiedSince = t
		}
	}

	if err := r.parseCookies(); err != nil {
		return err
	}
	if err := r.parseQueryArgs(); err != nil {
		return err
	}

	if r.opts.Resolver != nil {
		r.Filename, r.PathInfo = r.opts.Resolver.ResolveFilename(r.URI)
	} else {
		r.Filename = r.URI
	}
	return nil
}

func (r *Request) parseCookies() error {
	for _, raw := range r.Header.GetAll("Cookie") {
		for _, tok := range strings.FieldsFunc(raw, func(c rune) bool { return c == ';' || c == ' ' }) {
			name, value, ok := strings.Cut(tok, "=")
			if !ok {
				continue
			}
			n, errN := url.QueryUnescape(name)
			v, errV := url.QueryUnescape(value)
			if errN != nil || errV != nil {
				continue
			}
			r.Cookies[n] = v
		}
	}
	return nil
}

func (r *Request) parseQueryArgs() error {
	values, err := url.ParseQuery(r.QueryString)
	if err != nil {
		return &StatusError{400, "malformed query string"}
	}
	for k, vs := range values {
		r.GetArgs[k] = append(r.GetArgs[k], vs...)
		r.MergedArgs[k] = append(r.MergedArgs[k], vs...)
	}
	return nil
}

// Free releases the request's upload temp files and underlying stream,
// per spec.md's invariant that every upload temp file is unlinked.
func (r *Request) Free() error {
	for _, u := range r.Uploads {
		_ = removeFile(u.TempPath)
	}
	return r.Stream.Free()
}

var removeFile = os.Remove

// ContentTypeIs reports whether the request's Content-Type header matches
// media (case-insensitively, ignoring parameters).
func (r *Request) ContentTypeIs(media string) bool {
	ct, ok := r.Header.Get("Content-Type")
	if !ok {
		return media == ""
	}
	base, _, _ := strings.Cut(ct, ";")
	return strings.EqualFold(strings.TrimSpace(base), media)
}

// parseContentLength reads and validates the Content-Length header,
// required for POST per spec.md.
func (r *Request) parseContentLength() (int64, error) {
	cl, ok := r.Header.Get("Content-Length")
	if !ok {
		return 0, &StatusError{411, "length required"}
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return 0, &StatusError{400, "malformed content-length"}
	}
	return n, nil
}
