package ppc

import (
	"fmt"
	"io"
	"sync"
)

// Client is a worker's handle on its PPC channel to the parent: one
// socketpair fd shared by every call the worker makes, per spec.md
// §5's "single writer, single reader per channel" ordering guarantee.
type Client struct {
	mu   sync.Mutex
	conn io.ReadWriter
}

// NewClient wraps conn (one end of a socketpair, or any blocking
// bidirectional stream in tests) as a PPC client.
func NewClient(conn io.ReadWriter) *Client { return &Client{conn: conn} }

// call writes a request frame and blocks for the matching response
// frame. Every PPC command round-trips, which keeps the worker-side API
// uniformly synchronous — matching spec.md §5's "no in-process
// concurrency: everything is synchronous and blocking" model.
func (c *Client) call(cmd Cmd, req, resp any) error {
	payload, err := encodePayload(req)
	if err != nil {
		return fmt.Errorf("ppc: encode %s request: %w", cmd, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.conn, cmd, payload); err != nil {
		return fmt.Errorf("ppc: write %s: %w", cmd, err)
	}
	gotCmd, respPayload, err := ReadFrame(c.conn)
	if err != nil {
		return fmt.Errorf("ppc: read %s response: %w", cmd, err)
	}
	if gotCmd != cmd {
		return fmt.Errorf("%w: expected %s reply, got %s", ErrProtocolViolation, cmd, gotCmd)
	}
	if resp == nil {
		return nil
	}
	return decodePayload(respPayload, resp)
}

// LogAdd asks the parent's logger to emit line at level on backendID's
// behalf.
func (c *Client) LogAdd(backendID string, level int, line string) error {
	return c.call(CmdLogAdd, LogAddRequest{BackendID: backendID, Level: level, Line: line}, nil)
}

// LogGet pages back through backendID's recent log lines.
func (c *Client) LogGet(backendID string, lineIndex int) (LogGetResponse, error) {
	var resp LogGetResponse
	err := c.call(CmdLogGet, LogGetRequest{BackendID: backendID, LineIndex: lineIndex}, &resp)
	return resp, err
}

// AccessLog submits one formatted access-log line for vhostID.
func (c *Client) AccessLog(backendID, vhostID, line string) error {
	return c.call(CmdAccessLog, AccessLogRequest{BackendID: backendID, VHostID: vhostID, Line: line}, nil)
}

// ForkChild asks the parent to spawn a replacement worker for backendID,
// per spec.md §4.8's mid-serve backfill on a long-running request.
func (c *Client) ForkChild(backendID string) error {
	return c.call(CmdForkChild, ForkChildRequest{BackendID: backendID}, nil)
}

// MsesSave writes a memory-session atom through the parent.
func (c *Client) MsesSave(req MsesSaveRequest) error {
	return c.call(CmdMsesSave, req, nil)
}

// MsesGet reads a memory-session atom's current state from the parent.
// Per spec.md §5, a worker must issue a fresh MsesGet after any save it
// needs to observe — there is no local caching across requests.
func (c *Client) MsesGet(id string) (MsesGetResponse, error) {
	var resp MsesGetResponse
	err := c.call(CmdMsesGet, MsesGetRequest{ID: id}, &resp)
	return resp, err
}

// MsesRemove deletes a memory-session atom.
func (c *Client) MsesRemove(id string) error {
	return c.call(CmdMsesRemove, MsesRemoveRequest{ID: id}, nil)
}

// MsesDelOld asks the parent to run its eviction pass immediately.
func (c *Client) MsesDelOld() error {
	return c.call(CmdMsesDelOld, MsesDelOldRequest{}, nil)
}

// NOP round-trips a diagnostic no-op, used to probe channel health.
func (c *Client) NOP() error { return c.call(CmdNOP, struct{}{}, nil) }
