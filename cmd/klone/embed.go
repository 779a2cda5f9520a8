package main

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/klone-io/klone/internal/embfs"
)

// embeddedRoot is the binary's compiled-in resource tree, populated at
// build time from cmd/klone/embedroot. manifest.json travels inside it
// but is never itself a servable resource, since it has no entry in its
// own contents.
//
//go:embed embedroot
var embeddedRoot embed.FS

// loadEmbFS wraps embeddedRoot's "embedroot" subtree as an internal/embfs.FS
// and loads its manifest sidecar, per spec.md §4.5's embFS-static supplier
// and SPEC_FULL.md's embed.FS/manifest.json pairing.
func loadEmbFS() (*embfs.FS, error) {
	sub, err := fs.Sub(embeddedRoot, "embedroot")
	if err != nil {
		return nil, fmt.Errorf("klone: embedded resource tree: %w", err)
	}

	fsys := embfs.New(sub)

	data, err := fs.ReadFile(sub, "manifest.json")
	if err != nil {
		return nil, fmt.Errorf("klone: embedded manifest: %w", err)
	}
	if err := fsys.LoadManifest(data); err != nil {
		return nil, err
	}
	return fsys, nil
}
