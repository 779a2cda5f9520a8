// Package mime provides the static extension→{content-type,compressible}
// table spec.md §6 calls for, consulted for Content-Type and for deflate
// negotiation. A table rather than net/http's mime.TypeByExtension because
// the latter only answers content type, not whether deflate is worthwhile
// (compressing a .jpg wastes CPU for no benefit).
package mime

import "strings"

type entry struct {
	contentType  string
	compressible bool
}

var table = map[string]entry{
	".html": {"text/html", true},
	".htm":  {"text/html", true},
	".kl1":  {"text/html", true},
	".klx":  {"text/html", true},
	".klone": {"text/html", true},
	".klc":  {"text/html", true},
	".css":  {"text/css", true},
	".js":   {"application/javascript", true},
	".json": {"application/json", true},
	".txt":  {"text/plain", true},
	".xml":  {"application/xml", true},
	".svg":  {"image/svg+xml", true},
	".png":  {"image/png", false},
	".jpg":  {"image/jpeg", false},
	".jpeg": {"image/jpeg", false},
	".gif":  {"image/gif", false},
	".ico":  {"image/x-icon", false},
	".woff": {"font/woff", false},
	".woff2": {"font/woff2", false},
	".gz":   {"application/gzip", false},
	".pdf":  {"application/pdf", false},
}

const defaultContentType = "application/octet-stream"

// TypeByExtension returns the MIME type registered for path's extension,
// falling back to application/octet-stream.
func TypeByExtension(path string) string {
	e, _ := lookup(path)
	return e.contentType
}

// Compressible reports whether path's extension is worth running through
// the gzip codec before sending.
func Compressible(path string) bool {
	e, found := lookup(path)
	return found && e.compressible
}

func lookup(path string) (entry, bool) {
	ext := extOf(path)
	e, ok := table[strings.ToLower(ext)]
	if !ok {
		return entry{contentType: defaultContentType}, false
	}
	return e, true
}

func extOf(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return ""
	}
	return path[i:]
}
