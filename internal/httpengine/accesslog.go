package httpengine

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// fnmatch reports whether name matches the fnmatch-style glob pattern,
// implemented atop path.Match which covers the *, ?, and [] classes
// spec.md's include/exclude patterns need.
func fnmatch(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// FormatCombined renders e as a Combined Log Format line with a
// millisecond-less timestamp and numeric timezone offset, per spec.md
// §4.6.
func (e AccessEntry) FormatCombined(when time.Time) string {
	ident := e.Ident
	if ident == "" {
		ident = "-"
	}
	user := e.User
	if user == "" {
		user = "-"
	}
	referer := e.Referer
	if referer == "" {
		referer = "-"
	}
	ua := e.UserAgent
	if ua == "" {
		ua = "-"
	}
	remote := e.RemoteAddr
	if remote == "" {
		remote = "-"
	}
	return fmt.Sprintf(`%s %s %s [%s] "%s" %d %d "%s" "%s"`,
		remote, ident, user,
		when.Format("02/Jan/2006:15:04:05 -0700"),
		strings.TrimSpace(e.URI), e.Status, e.BytesSent, referer, ua)
}
