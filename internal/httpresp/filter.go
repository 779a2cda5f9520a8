package httpresp

import (
	"bytes"
	"fmt"
)

// responseFilter is the postponed-header codec installed at the head of a
// Response's write chain: it holds body bytes in buf so Status/Header can
// still be mutated right up until the first flush, then switches to
// filterFlushing and prepends the status line and headers exactly once.
//
// Grounded on the teacher's internal/streaming/stream.go buffered-then-
// flushed state machine, generalised here from "buffer captured events
// until a batch boundary" to "buffer a response body until headers are
// committed."
type responseFilter struct {
	resp     *Response
	headOnly bool

	state responseFilterState
	buf   bytes.Buffer // body bytes not yet committed to the wire
	pend  bytes.Buffer // header+body bytes queued for the wire, post-commit
}

type responseFilterState int

const (
	filterBuffering responseFilterState = iota
	filterFlushing
)

// maxPostponeBuffer bounds how much body spec.md lets the filter hold
// before forcing a commit regardless of whether the handler is done
// setting headers — the resolved Open Question on response-filter sizing:
// grow dynamically via bytes.Buffer rather than a fixed 4 KiB cap, but
// still bounded so a large body can't stall header commitment forever.
const maxPostponeBuffer = 64 * 1024

func newResponseFilter(r *Response, headOnly bool) *responseFilter {
	return &responseFilter{resp: r, headOnly: headOnly}
}

func (f *responseFilter) Name() string { return "response-filter" }

func (f *responseFilter) Transform(dst, src []byte) (consumed, produced int, err error) {
	consumed = len(src)
	switch f.state {
	case filterBuffering:
		f.buf.Write(src)
		if f.buf.Len() >= maxPostponeBuffer {
			f.commitLocked()
		}
	case filterFlushing:
		if !f.headOnly {
			f.pend.Write(src)
		}
	}
	produced, _ = f.pend.Read(dst)
	return consumed, produced, nil
}

// Flush is called whenever the stream's write chain is drained (end of
// response, per spec.md one request/response per HTTP/1.0 connection): it
// forces the commit if the handler never wrote enough to trigger one on
// its own (e.g. a 304 with no body), then drains whatever is left.
func (f *responseFilter) Flush(dst []byte) (produced int, complete bool, err error) {
	if f.state == filterBuffering {
		f.commitLocked()
	}
	produced, _ = f.pend.Read(dst)
	return produced, f.pend.Len() == 0, nil
}

func (f *responseFilter) Close() error { return nil }

// commitLocked renders the status line and headers into pend, followed by
// the buffered body (suppressed entirely for HEAD requests per spec.md
// §4.4), and switches the filter into pass-through mode for anything
// written afterward.
func (f *responseFilter) commitLocked() {
	f.state = filterFlushing
	if f.resp.Status == StatusEmpty {
		f.resp.Status = 200
	}
	fmt.Fprintf(&f.pend, "%s\r\n", StatusLine(f.resp.Status))
	f.resp.Header.WriteTo(&f.pend)
	if !f.headOnly {
		f.pend.Write(f.buf.Bytes())
	}
	f.buf.Reset()
}
