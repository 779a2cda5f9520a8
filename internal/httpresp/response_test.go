package httpresp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/stream"
)

func TestHeadersPostponedUntilFirstWrite(t *testing.T) {
	var wire bytes.Buffer
	s := stream.New(&wire, nil, "t", false)
	r := New(s, httpreq.MethodGet)

	// Headers set before any body write must still land on the wire —
	// this is the entire point of the postponed-header filter.
	r.SetStatus(201)
	if err := r.SetContentType("text/plain"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	// The write above is far below the filter's buffer threshold, so
	// nothing is committed yet; Finalize writes the status and headers set
	// above, followed by the held body.
	if err := r.Finalize(); err != nil {
		t.Fatal(err)
	}

	out := wire.String()
	if !strings.HasPrefix(out, "HTTP/1.0 201 Created\r\n") {
		t.Fatalf("missing status line: %q", out)
	}
	if !strings.Contains(out, "Content-Type: text/plain\r\n") {
		t.Fatalf("missing content-type header: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nhello") {
		t.Fatalf("missing body after blank line: %q", out)
	}
}

func TestHeadRequestSuppressesBody(t *testing.T) {
	var wire bytes.Buffer
	s := stream.New(&wire, nil, "t", false)
	r := New(s, httpreq.MethodHead)
	r.SetStatus(200)
	if _, err := r.Write([]byte("this body must not appear")); err != nil {
		t.Fatal(err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(wire.String(), "must not appear") {
		t.Fatalf("HEAD response leaked body: %q", wire.String())
	}
}

func TestEmptyBodyStillEmitsHeaders(t *testing.T) {
	var wire bytes.Buffer
	s := stream.New(&wire, nil, "t", false)
	r := New(s, httpreq.MethodGet)
	r.SetStatus(304)
	if err := r.Finalize(); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(wire.String(), "HTTP/1.0 304 Not Modified\r\n") {
		t.Fatalf("expected 304 status line with no body write needed: %q", wire.String())
	}
}

func TestHeadRequestSuppressesBodyAfterForcedCommit(t *testing.T) {
	var wire bytes.Buffer
	s := stream.New(&wire, nil, "t", false)
	r := New(s, httpreq.MethodHead)
	r.SetStatus(200)
	big := bytes.Repeat([]byte("y"), maxPostponeBuffer+1024)
	if _, err := r.Write(big); err != nil {
		t.Fatal(err)
	}
	// Past the forced-commit threshold the filter is in filterFlushing;
	// anything written after that must still be dropped for HEAD.
	if _, err := r.Write([]byte("written after the forced commit")); err != nil {
		t.Fatal(err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(wire.Bytes(), []byte("y")) || strings.Contains(wire.String(), "written after the forced commit") {
		t.Fatalf("HEAD response leaked body after forced commit: %d bytes on wire", wire.Len())
	}
}

func TestLargeBodyForcesEarlyCommit(t *testing.T) {
	var wire bytes.Buffer
	s := stream.New(&wire, nil, "t", false)
	r := New(s, httpreq.MethodGet)
	r.SetStatus(200)
	big := bytes.Repeat([]byte("x"), maxPostponeBuffer+1024)
	if _, err := r.Write(big); err != nil {
		t.Fatal(err)
	}
	if err := r.Finalize(); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(wire.Bytes(), big[:1024]) {
		t.Fatal("body bytes missing after forced early commit")
	}
}
