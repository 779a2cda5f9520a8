package main

import "testing"

func TestLoadEmbFS(t *testing.T) {
	fsys, err := loadEmbFS()
	if err != nil {
		t.Fatalf("loadEmbFS: %v", err)
	}

	if _, ok := fsys.Stat("/index.klx"); !ok {
		t.Error("expected /index.klx to be a known static resource")
	}
	if _, ok := fsys.Stat("/static/style.css"); !ok {
		t.Error("expected /static/style.css to be a known static resource")
	}

	patterns := fsys.DynamicPatterns()
	found := false
	for _, p := range patterns {
		if p == "/status" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected /status among dynamic patterns, got %v", patterns)
	}

	data, err := fsys.ReadFile("/index.klx")
	if err != nil {
		t.Fatalf("ReadFile /index.klx: %v", err)
	}
	if len(data) == 0 {
		t.Error("expected non-empty /index.klx contents")
	}
}
