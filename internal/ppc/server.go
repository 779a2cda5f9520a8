package ppc

import (
	"errors"
	"fmt"
	"io"
	"time"
)

// Handlers are the parent-side callbacks a Server dispatches PPC
// commands to. Expressed as closures rather than an interface (and
// without naming internal/session or internal/klog directly) so
// internal/ppc stays a generic framed-RPC layer — cmd/klone's
// buildPPCHandlers wires the real klog.Logger and session.MemoryStore into
// these before it constructs the parent's Server, the same "backend as closures" shape
// internal/session itself uses to stay decoupled from its callers.
type Handlers struct {
	LogAdd     func(backendID string, level int, line string)
	LogGet     func(backendID string, lineIndex int) (line string, eof bool)
	AccessLog  func(backendID, vhostID, line string)
	ForkChild  func(backendID string) error
	MsesSave   func(id string, vars map[string]string, mtime time.Time) error
	MsesGet    func(id string) (vars map[string]string, mtime time.Time, found bool)
	MsesRemove func(id string) error
	MsesDelOld func()
}

// Server dispatches frames read off one worker's PPC channel to
// Handlers, replying on the same channel. One Server instance is reused
// across every worker's channel — it holds no per-channel state.
type Server struct {
	h Handlers
}

// NewServer returns a Server routing to h. Any nil field in h is treated
// as a no-op for fire-and-forget-shaped commands, or an empty/not-found
// response for request/response-shaped ones.
func NewServer(h Handlers) *Server { return &Server{h: h} }

// Serve handles frames from conn until the peer closes the channel
// cleanly (io.EOF, returned as nil) or a protocol violation occurs (the
// error is returned so the caller can close the channel and let the
// worker die, per spec.md §7 item 6 — the parent then reaps and
// respawns through the ordinary child-lifecycle path).
func (s *Server) Serve(conn io.ReadWriter) error {
	for {
		cmd, payload, err := ReadFrame(conn)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		respPayload, err := s.dispatch(cmd, payload)
		if err != nil {
			return err
		}
		if err := WriteFrame(conn, cmd, respPayload); err != nil {
			return err
		}
	}
}

func (s *Server) dispatch(cmd Cmd, payload []byte) ([]byte, error) {
	switch cmd {
	case CmdNOP:
		return nil, nil

	case CmdLogAdd:
		var req LogAddRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		if s.h.LogAdd != nil {
			s.h.LogAdd(req.BackendID, req.Level, req.Line)
		}
		return nil, nil

	case CmdLogGet:
		var req LogGetRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		resp := LogGetResponse{EOF: true}
		if s.h.LogGet != nil {
			line, eof := s.h.LogGet(req.BackendID, req.LineIndex)
			resp = LogGetResponse{Line: line, EOF: eof}
		}
		return encodePayload(resp)

	case CmdAccessLog:
		var req AccessLogRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		if s.h.AccessLog != nil {
			s.h.AccessLog(req.BackendID, req.VHostID, req.Line)
		}
		return nil, nil

	case CmdForkChild:
		var req ForkChildRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		if s.h.ForkChild != nil {
			_ = s.h.ForkChild(req.BackendID)
		}
		return nil, nil

	case CmdMsesSave:
		var req MsesSaveRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		if s.h.MsesSave != nil {
			_ = s.h.MsesSave(req.ID, req.Vars, req.MTime)
		}
		return nil, nil

	case CmdMsesGet:
		var req MsesGetRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		var resp MsesGetResponse
		if s.h.MsesGet != nil {
			vars, mtime, found := s.h.MsesGet(req.ID)
			resp = MsesGetResponse{Vars: vars, MTime: mtime, Found: found}
		}
		return encodePayload(resp)

	case CmdMsesRemove:
		var req MsesRemoveRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, fmt.Errorf("ppc: decode payload: %w", err)
		}
		if s.h.MsesRemove != nil {
			_ = s.h.MsesRemove(req.ID)
		}
		return nil, nil

	case CmdMsesDelOld:
		if s.h.MsesDelOld != nil {
			s.h.MsesDelOld()
		}
		return nil, nil

	default:
		return nil, ErrProtocolViolation
	}
}
