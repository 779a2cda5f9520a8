package embfs

import (
	"testing"
	"testing/fstest"
	"time"
)

func TestStatReportsManifestMetadata(t *testing.T) {
	root := fstest.MapFS{
		"index.html": {Data: []byte("<html></html>")},
	}
	f := New(root)
	mtime := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	f.Register("index.html", ResourceMeta{ModTime: mtime, Compressible: true})

	meta, ok := f.Stat("index.html")
	if !ok {
		t.Fatal("expected index.html to be known")
	}
	if !meta.ModTime.Equal(mtime) {
		t.Fatalf("mtime mismatch: %v", meta.ModTime)
	}
	if !meta.Compressible {
		t.Fatal("expected compressible flag to survive registration")
	}
}

func TestDynamicEntryNotStatable(t *testing.T) {
	f := New(fstest.MapFS{})
	f.Register("/api/widgets/([0-9]+)", ResourceMeta{Dynamic: true})
	if _, ok := f.Stat("/api/widgets/([0-9]+)"); ok {
		t.Fatal("dynamic entries must not be reported as static resources")
	}
	patterns := f.DynamicPatterns()
	if len(patterns) != 1 || patterns[0] != "/api/widgets/([0-9]+)" {
		t.Fatalf("unexpected dynamic patterns: %v", patterns)
	}
}

func TestReadFileTrimsLeadingSlash(t *testing.T) {
	root := fstest.MapFS{"a.txt": {Data: []byte("hi")}}
	f := New(root)
	data, err := f.ReadFile("/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hi" {
		t.Fatalf("got %q", data)
	}
}

func TestLoadManifestRejectsMalformedJSON(t *testing.T) {
	f := New(fstest.MapFS{})
	if err := f.LoadManifest([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed manifest")
	}
}
