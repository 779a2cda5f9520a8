package main

import (
	"fmt"
	"time"

	"github.com/klone-io/klone/internal/broker"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// processStart records this process's launch time for the /status page.
var processStart = time.Now()

// registerDynamicPages builds the embFS-dynamic supplier, wiring the one
// handler cmd/klone ships out of the box (the "/status" health page) plus
// a generic placeholder for any other dynamic path an instance's manifest
// names, per spec.md §4.5's "kilt" regex-to-handler table.
func registerDynamicPages(dynamicPatterns []string) (*broker.EmbFSDynamic, error) {
	d := broker.NewEmbFSDynamic()
	if err := d.Register(`^/status$`, statusPageHandler); err != nil {
		return nil, fmt.Errorf("klone: registering /status: %w", err)
	}
	for _, pattern := range dynamicPatterns {
		if pattern == "/status" {
			continue
		}
		if err := d.Register("^"+pattern+"$", notImplementedHandler); err != nil {
			return nil, fmt.Errorf("klone: registering dynamic pattern %q: %w", pattern, err)
		}
	}
	return d, nil
}

func statusPageHandler(req *httpreq.Request, resp *httpresp.Response, args []string) error {
	uptime := time.Since(processStart).Round(time.Second)
	body := fmt.Sprintf("klone %s, up %s\n", version, uptime)
	_ = resp.SetContentType("text/plain")
	if req.Method != httpreq.MethodHead {
		if _, err := resp.Write([]byte(body)); err != nil {
			return err
		}
	}
	return resp.Finalize()
}

// notImplementedHandler answers a manifest-declared dynamic pattern that
// has no compiled-in handler — a 501, rather than letting the broker fall
// through to a 404 that would look like the path was never routed at all.
func notImplementedHandler(req *httpreq.Request, resp *httpresp.Response, args []string) error {
	resp.SetStatus(501)
	return resp.Finalize()
}
