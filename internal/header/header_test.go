package header

import (
	"bufio"
	"strings"
	"testing"
)

func TestLoadFoldsContinuationLines(t *testing.T) {
	raw := "X-Long: part-one\r\n part-two\r\n\tpart-three\r\nHost: example.com\r\n\r\n"
	h := New()
	if err := h.Load(bufio.NewReader(strings.NewReader(raw))); err != nil {
		t.Fatal(err)
	}
	v, ok := h.Get("x-long")
	if !ok {
		t.Fatal("expected X-Long field")
	}
	if v != "part-one part-two part-three" {
		t.Fatalf("got %q", v)
	}
	if host, _ := h.Get("Host"); host != "example.com" {
		t.Fatalf("got host %q", host)
	}
}

func TestLoadExModes(t *testing.T) {
	h := New()
	h.Add("Set-Cookie", "a=1")

	if err := h.LoadWith(Add, "Set-Cookie", "b=2"); err != nil {
		t.Fatal(err)
	}
	if got := h.GetAll("Set-Cookie"); len(got) != 2 {
		t.Fatalf("Add mode should allow duplicates, got %v", got)
	}

	if err := h.LoadWith(Keep, "Set-Cookie", "c=3"); err != nil {
		t.Fatal(err)
	}
	if got := h.GetAll("Set-Cookie"); len(got) != 2 {
		t.Fatalf("Keep mode should not append when field exists, got %v", got)
	}

	if err := h.LoadWith(Override, "Set-Cookie", "d=4"); err != nil {
		t.Fatal(err)
	}
	if got := h.GetAll("Set-Cookie"); len(got) != 1 || got[0] != "d=4" {
		t.Fatalf("Override mode should replace all, got %v", got)
	}
}

func TestGetCaseInsensitiveFirstMatch(t *testing.T) {
	h := New()
	h.Add("Content-Type", "text/plain")
	h.Add("content-type", "text/html")
	v, ok := h.Get("CONTENT-TYPE")
	if !ok || v != "text/plain" {
		t.Fatalf("expected first match text/plain, got %q, %v", v, ok)
	}
}

func TestMaxFieldsCap(t *testing.T) {
	h := New()
	var err error
	for i := 0; i < MaxFields; i++ {
		err = h.Add("X-N", "v")
		if err != nil {
			t.Fatalf("unexpected error at field %d: %v", i, err)
		}
	}
	if err = h.Add("X-Overflow", "v"); err == nil {
		t.Fatal("expected error once MaxFields exceeded")
	}
}

func TestLoadFromCGIEnv(t *testing.T) {
	h := New()
	err := h.LoadFromCGIEnv([]string{
		"HTTP_X_FORWARDED_FOR=1.2.3.4",
		"PATH=/usr/bin",
		"HTTP_ACCEPT=text/html",
	})
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := h.Get("X-FORWARDED-FOR"); v != "1.2.3.4" {
		t.Fatalf("got %q", v)
	}
	if v, _ := h.Get("ACCEPT"); v != "text/html" {
		t.Fatalf("got %q", v)
	}
	if len(h.Fields()) != 2 {
		t.Fatalf("expected only HTTP_ vars, got %d fields", len(h.Fields()))
	}
}
