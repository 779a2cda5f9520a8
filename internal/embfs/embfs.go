// Package embfs wraps a build-time embed.FS as the in-binary, read-only
// virtual filesystem the embFS static supplier serves resources from,
// alongside a manifest sidecar carrying metadata embed.FS itself has no
// room for: modification time, whether a resource is worth deflating, and
// whether it is stored pre-encrypted.
//
// Grounded on Go's own embed package contract — the teacher carries no
// embedded-asset package, so this is the direct language-level equivalent
// of the klone build step spec.md documents as an external collaborator
// (the embFS registration macros).
package embfs

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"sync"
	"time"
)

// ResourceMeta is the per-resource sidecar record a manifest.json carries,
// keyed by the resource's path relative to the embed.FS root.
type ResourceMeta struct {
	ModTime      time.Time `json:"mtime"`
	Compressible bool      `json:"compressible"`
	Encrypted    bool      `json:"encrypted"`
	// Dynamic marks a path as a kilt dynamic-page pattern rather than a
	// static file; the broker's embFS-dynamic supplier reads this instead
	// of calling fs.Stat.
	Dynamic bool `json:"dynamic,omitempty"`
}

// Manifest is the parsed contents of manifest.json: a flat map from
// resource path to its metadata.
type Manifest map[string]ResourceMeta

// FS is the registry the broker's embFS suppliers consult: an embed.FS for
// bytes plus a Manifest for the metadata embed.FS cannot express.
type FS struct {
	mu       sync.RWMutex
	root     fs.FS
	manifest Manifest
}

// New wraps root (normally a go:embed variable) with an empty manifest;
// callers load one with LoadManifest or build one with Register.
func New(root fs.FS) *FS {
	return &FS{root: root, manifest: Manifest{}}
}

// LoadManifest parses manifest JSON bytes (read from the embedded
// manifest.json sidecar file at startup) and installs it, replacing any
// prior manifest.
func (f *FS) LoadManifest(data []byte) error {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("embfs: malformed manifest: %w", err)
	}
	f.mu.Lock()
	f.manifest = m
	f.mu.Unlock()
	return nil
}

// Register adds or replaces one resource's metadata, used by tests and by
// programmatic dynamic-page registration that doesn't round-trip through
// JSON.
func (f *FS) Register(path string, meta ResourceMeta) {
	f.mu.Lock()
	f.manifest[path] = meta
	f.mu.Unlock()
}

// Stat reports whether path names a known static resource and, if so, its
// metadata. A path present in the manifest but marked Dynamic is not a
// static resource and Stat reports ok=false — the embFS-dynamic supplier
// matches those against its own pattern table instead.
func (f *FS) Stat(path string) (meta ResourceMeta, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, found := f.manifest[path]
	if !found || m.Dynamic {
		return ResourceMeta{}, false
	}
	return m, true
}

// Open opens path for reading from the underlying embed.FS, trimming any
// leading slash since embed.FS paths never carry one.
func (f *FS) Open(path string) (fs.File, error) {
	return f.root.(interface {
		Open(name string) (fs.File, error)
	}).Open(trimSlash(path))
}

// ReadFile reads the full contents of path.
func (f *FS) ReadFile(path string) ([]byte, error) {
	return fs.ReadFile(f.root, trimSlash(path))
}

// DynamicPatterns returns every manifest entry marked Dynamic, for the
// embFS-dynamic supplier to compile into its regex table at startup.
func (f *FS) DynamicPatterns() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for path, meta := range f.manifest {
		if meta.Dynamic {
			out = append(out, path)
		}
	}
	return out
}

func trimSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
