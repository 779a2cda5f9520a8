// Package session implements the HTTP session lifecycle and its three
// storage backends — file, in-process "memory" (parent-mediated atoms),
// and client-side signed/encrypted cookies — per spec.md §4.7.
//
// Grounded on the teacher's internal/session/snapshot-manager.go: its
// "named snapshot store with eviction" shape (bounded, timestamped, keyed
// records, oldest-evicted-first) is repurposed wholesale here as "session
// store with eviction and expiry" — same container discipline, new
// domain (browser snapshots → HTTP session variables).
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/klone-io/klone/internal/header"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// idPattern matches the 32-hex-character session id spec.md §4.7 requires
// a cookie to carry before it's trusted as an existing session's id.
var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Options configures a session's cookie name, expiry, and backend.
type Options struct {
	CookieName string        // default "klone_sid"
	MaxAge     time.Duration // default 24h
	Backend    Backend
}

// DefaultOptions returns spec.md's documented defaults with no backend
// configured; callers must set one.
func DefaultOptions() Options {
	return Options{CookieName: "klone_sid", MaxAge: 24 * time.Hour}
}

// Backend is the storage contract all three session backends satisfy.
type Backend struct {
	Load   func(id string) (vars map[string]string, mtime time.Time, found bool, err error)
	Save   func(id string, vars map[string]string, mtime time.Time) error
	Remove func(id string) error
}

// Session is one request's session state, created fresh per request per
// spec.md's one-request-per-connection HTTP/1.0 model.
type Session struct {
	id      string
	vars    map[string]string
	mtime   time.Time
	dirty   bool
	opts    Options
	resp    *httpresp.Response
	removed bool

	// clientSide is non-nil for a session created by CreateClientSide,
	// in which case Save/Remove bypass opts.Backend entirely and write
	// the four KL1_CLISES_* cookies directly instead.
	clientSide *ClientSideOptions
}

// Create implements spec.md §4.7's session_create: read any existing
// cookie, attempt to load it, and clear+remove if it's aged out.
func Create(opts Options, req *httpreq.Request, resp *httpresp.Response) (*Session, error) {
	s := &Session{vars: map[string]string{}, opts: opts, resp: resp}

	if cookie, ok := req.Cookies[opts.CookieName]; ok && idPattern.MatchString(cookie) {
		s.id = cookie
		vars, mtime, found, err := opts.Backend.Load(s.id)
		if err != nil {
			return nil, fmt.Errorf("session: load %s: %w", s.id, err)
		}
		if found {
			s.vars = vars
			s.mtime = mtime
			if opts.MaxAge > 0 && time.Since(mtime) > opts.MaxAge {
				s.vars = map[string]string{}
				if err := opts.Backend.Remove(s.id); err != nil {
					return nil, err
				}
				s.id = ""
			}
		}
	}
	return s, nil
}

// GetID returns the session's id, empty if none has been assigned yet.
func (s *Session) GetID() string { return s.id }

// Age reports seconds since the session's stored mtime; zero if the
// session has never been saved.
func (s *Session) Age() time.Duration {
	if s.mtime.IsZero() {
		return 0
	}
	return time.Since(s.mtime)
}

// Get returns a session variable's value and whether it's set.
func (s *Session) Get(name string) (string, bool) {
	v, ok := s.vars[name]
	return v, ok
}

// Set assigns a session variable, marking the session dirty so Save
// actually persists it.
func (s *Session) Set(name, value string) {
	s.vars[name] = value
	s.dirty = true
}

// Del removes a session variable.
func (s *Session) Del(name string) {
	if _, ok := s.vars[name]; ok {
		delete(s.vars, name)
		s.dirty = true
	}
}

// Clean removes every session variable.
func (s *Session) Clean() {
	if len(s.vars) > 0 {
		s.vars = map[string]string{}
		s.dirty = true
	}
}

// Save implements spec.md §4.7's save: a no-op for an empty, unassigned
// session; otherwise assigns an id if needed, sets the session cookie
// exactly once, and calls the backend's Save. A client-side session
// instead serialises straight into its four cookies — see
// saveClientSide.
func (s *Session) Save() error {
	if s.clientSide != nil {
		return s.saveClientSide()
	}
	if s.id == "" && len(s.vars) == 0 {
		return nil
	}
	if s.id == "" {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		s.id = id
	}
	s.mtime = time.Now()
	if s.resp != nil {
		if err := s.resp.SetCookie(s.opts.CookieName, s.id, time.Time{}, "", "", false); err != nil {
			return err
		}
	}
	return s.opts.Backend.Save(s.id, s.vars, s.mtime)
}

// Remove clears the session cookie and calls the backend's Remove.
func (s *Session) Remove() error {
	s.removed = true
	if s.clientSide != nil {
		return s.removeClientSide()
	}
	if s.resp != nil {
		_ = s.resp.SetCookie(s.opts.CookieName, "", time.Unix(0, 0), "", "", false)
	}
	if s.id == "" {
		return nil
	}
	return s.opts.Backend.Remove(s.id)
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: generating id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// clientAddrKeySuffix returns the X-Klone-Remote-Addr request header,
// falling back to "unknown" when it is absent. Nothing calls it: the file
// backend's per-peer filename suffix comes from FileBackendOptions.PeerAddr.
func clientAddrKeySuffix(h *header.Header) string {
	if addr, ok := h.Get("X-Klone-Remote-Addr"); ok && addr != "" {
		return addr
	}
	return "unknown"
}
