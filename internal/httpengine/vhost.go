// Package httpengine selects a virtual host for an incoming request,
// resolves its filename through aliases and index files, and drives the
// broker, error pages, and access logging around that resolution — the
// spec.md §4.6 HTTP engine.
//
// Grounded on the teacher's cmd/dev-console server_routes.go/server_
// middleware.go route-dispatch-plus-middleware shape, generalised from
// "mux of MCP tool endpoints" to "vhost-scoped alias/index/error-page
// resolution in front of the broker," and internal/audit/audit_trail.go's
// structured, append-only log-entry idiom for the access log.
package httpengine

import (
	"strings"

	"golang.org/x/net/idna"
)

// Alias is a {source_prefix, target_prefix} rewrite rule, per spec.md §4.6.
type Alias struct {
	SourcePrefix string
	TargetPrefix string
}

// VHost is one virtual host's configuration: aliases, document root, index
// list, error pages, and access-log filters.
type VHost struct {
	Host string // matched against the Host: header, minus :port

	DirRoot      string
	Aliases      []Alias
	ScriptAlias  []Alias
	Index        []string // index file names, tried in order; empty means defaultIndexFiles
	SendDeflate  bool
	ErrorPages   map[int]string // status -> URI of a custom error page

	AccessLogInclude []string // fnmatch-style patterns
	AccessLogExclude []string
}

// defaultIndexFiles is spec.md §4.6's hard-coded fallback index list, used
// when a vhost doesn't configure its own.
var defaultIndexFiles = []string{"index.kl1", "index.html", "index.htm", "index.klx", "index.klone", "index.klc"}

func (v *VHost) indexFiles() []string {
	if len(v.Index) > 0 {
		return v.Index
	}
	return defaultIndexFiles
}

// Engine holds the vhost list and selects among them by Host header.
type Engine struct {
	VHosts []*VHost
}

// New returns an Engine with vhosts in priority order; VHosts[0] is the
// default used when no Host header matches, per spec.md §4.6.
func New(vhosts []*VHost) *Engine { return &Engine{VHosts: vhosts} }

// SelectVHost parses hostHeader (the raw Host: header value), strips any
// :port suffix, and returns the matching vhost or VHosts[0] on miss.
func (e *Engine) SelectVHost(hostHeader string) *VHost {
	host := hostHeader
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	host = normalizeHost(host)
	for _, v := range e.VHosts {
		if strings.EqualFold(v.Host, host) {
			return v
		}
	}
	if len(e.VHosts) > 0 {
		return e.VHosts[0]
	}
	return nil
}

// normalizeHost lower-cases host and, if it's an internationalised domain
// name, converts it to its ASCII (punycode) form via idna.Lookup — the
// same form a vhost's Host field is configured in — so "café.example"
// and "xn--caf-dma.example" select the same vhost.
func normalizeHost(host string) string {
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(ascii)
}

// ResolveFilename implements spec.md §4.6's alias resolution and dir_root
// fallback: the URI (already normalised) is rewritten by the first
// matching alias, or has dir_root prepended if none matches.
func (v *VHost) ResolveFilename(uri string) string {
	for _, a := range v.Aliases {
		if rewritten, ok := applyAlias(a, uri); ok {
			return rewritten
		}
	}
	return joinRoot(v.DirRoot, uri)
}

// ResolveScriptAlias is ResolveFilename restricted to script_alias
// entries, per spec.md §4.6. Nothing in this repository calls it.
func (v *VHost) ResolveScriptAlias(uri string) (string, bool) {
	for _, a := range v.ScriptAlias {
		if rewritten, ok := applyAlias(a, uri); ok {
			return rewritten, true
		}
	}
	return "", false
}

func applyAlias(a Alias, uri string) (string, bool) {
	if !strings.HasPrefix(uri, a.SourcePrefix) {
		return "", false
	}
	rest := uri[len(a.SourcePrefix):]
	if rest != "" && rest[0] != '/' && !strings.HasSuffix(a.SourcePrefix, "/") {
		return "", false
	}
	return joinRoot(a.TargetPrefix, rest), true
}

func joinRoot(root, rest string) string {
	if root == "" {
		return rest
	}
	if strings.HasSuffix(root, "/") && strings.HasPrefix(rest, "/") {
		return root + rest[1:]
	}
	if !strings.HasSuffix(root, "/") && !strings.HasPrefix(rest, "/") && rest != "" {
		return root + "/" + rest
	}
	return root + rest
}
