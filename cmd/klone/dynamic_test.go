package main

import (
	"testing"
	"time"

	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
	"github.com/klone-io/klone/internal/stream"
)

func TestRegisterDynamicPagesStatusAndPlaceholder(t *testing.T) {
	d, err := registerDynamicPages([]string{"/status", "/admin/reload"})
	if err != nil {
		t.Fatalf("registerDynamicPages: %v", err)
	}

	ok, handle, _ := d.IsValidURI(nil, "/status")
	if !ok {
		t.Fatal("expected /status to be a valid dynamic URI")
	}
	_ = handle

	ok, _, _ = d.IsValidURI(nil, "/admin/reload")
	if !ok {
		t.Fatal("expected /admin/reload to be registered from dynamicPatterns")
	}

	ok, _, _ = d.IsValidURI(nil, "/no-such-page")
	if ok {
		t.Fatal("expected an unregistered path to not match")
	}
}

func TestStatusPageHandlerWritesUptimeLine(t *testing.T) {
	processStart = time.Now().Add(-time.Minute)
	st := stream.NewMemory("status-test")
	req := &httpreq.Request{Method: httpreq.MethodGet}
	resp := httpresp.New(st, req.Method)

	if err := statusPageHandler(req, resp, nil); err != nil {
		t.Fatalf("statusPageHandler: %v", err)
	}
}
