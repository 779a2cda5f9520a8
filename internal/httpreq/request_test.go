package httpreq

import (
	"bytes"
	"mime/multipart"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/klone-io/klone/internal/stream"
)

func newTestRequest(t *testing.T, raw string) *Request {
	t.Helper()
	dir := t.TempDir()
	s := stream.NewReader(strings.NewReader(raw), "test")
	opts := DefaultOptions()
	opts.TempDir = dir
	return New(s, opts)
}

func TestParseHeaderURLEncodedPOST(t *testing.T) {
	raw := "POST /submit HTTP/1.0\r\nHost: x\r\nContent-Type: application/x-www-form-urlencoded\r\nContent-Length: 15\r\n\r\nname=foo&age=42"
	r := newTestRequest(t, raw)
	if err := r.ParseHeader(); err != nil {
		t.Fatal(err)
	}
	if err := r.ParseData(); err != nil {
		t.Fatal(err)
	}
	if r.PostArgs["name"][0] != "foo" || r.PostArgs["age"][0] != "42" {
		t.Fatalf("post args: %v", r.PostArgs)
	}
	if r.MergedArgs["name"][0] != "foo" {
		t.Fatalf("merged args: %v", r.MergedArgs)
	}
}

func TestParseHeaderConditionalGet(t *testing.T) {
	raw := "GET /index.html HTTP/1.0\r\nHost: x\r\nIf-Modified-Since: Wed, 01 Jan 2020 00:00:00 GMT\r\n\r\n"
	r := newTestRequest(t, raw)
	if err := r.ParseHeader(); err != nil {
		t.Fatal(err)
	}
	if r.IfModifiedSince.IsZero() {
		t.Fatal("expected If-Modified-Since to be parsed")
	}
}

func TestMultipartUploadAndFree(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	w.SetBoundary("AaB03x")
	part, err := w.CreateFormFile("file", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("hello"))
	w.Close()

	raw := "POST /upload HTTP/1.0\r\nHost: x\r\nContent-Type: multipart/form-data; boundary=AaB03x\r\nContent-Length: " +
		strconv.Itoa(body.Len()) + "\r\n\r\n" + body.String()

	r := newTestRequest(t, raw)
	if err := r.ParseHeader(); err != nil {
		t.Fatal(err)
	}
	if err := r.ParseData(); err != nil {
		t.Fatal(err)
	}
	if len(r.Uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(r.Uploads))
	}
	u := r.Uploads[0]
	if u.ClientFilename != "a.txt" || u.Size != 5 {
		t.Fatalf("unexpected upload: %+v", u)
	}
	data, err := os.ReadFile(u.TempPath)
	if err != nil || string(data) != "hello" {
		t.Fatalf("temp file contents: %q, err=%v", data, err)
	}

	if err := r.Free(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(u.TempPath); !os.IsNotExist(err) {
		t.Fatal("expected temp file removed after Free")
	}
}

func TestPostMaxSizeRejected(t *testing.T) {
	raw := "POST /submit HTTP/1.0\r\nHost: x\r\nContent-Length: 100\r\n\r\n" + strings.Repeat("a", 100)
	r := newTestRequest(t, raw)
	r.opts.PostMaxSize = 10
	if err := r.ParseHeader(); err != nil {
		t.Fatal(err)
	}
	err := r.ParseData()
	se, ok := err.(*StatusError)
	if !ok || se.Status != 413 {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestURINormalization(t *testing.T) {
	cases := map[string]string{
		"/a/./b":      "/a/b",
		"/a/../b":     "/b",
		"/../../etc":  "/etc",
		"//a///b":     "/a/b",
		`\a\b`:        "/a/b",
	}
	for in, want := range cases {
		if got := NormalizeURI(in); got != want {
			t.Errorf("NormalizeURI(%q) = %q, want %q", in, got, want)
		}
	}
}
