//go:build !windows

package workerpool

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"
	"github.com/klone-io/klone/internal/klog"
	"github.com/klone-io/klone/internal/ppc"
)

// Pool is the parent process's view of every configured backend: their
// listening sockets (obtained through a tableflip.Upgrader so a SIGHUP
// performs a zero-downtime binary upgrade in addition to spec.md
// §4.8's own child-reap/backfill cycle), their live workers, and the
// PPC server every worker's channel is served by.
type Pool struct {
	Logger    *klog.Logger
	PPCServer *ppc.Server

	upgrader *tableflip.Upgrader
	backends []*Backend

	mu       sync.Mutex
	stopping bool
}

// New returns an empty Pool. pidFile is handed to tableflip, which writes
// the PID file; an empty pidFile disables it. cmd/klone writes no PID file
// of its own.
func New(pidFile string, logger *klog.Logger, server *ppc.Server) (*Pool, error) {
	upg, err := tableflip.New(tableflip.Options{PIDFile: pidFile})
	if err != nil {
		return nil, fmt.Errorf("workerpool: tableflip.New: %w", err)
	}
	return &Pool{Logger: logger, PPCServer: server, upgrader: upg}, nil
}

// AddBackend registers b and binds its listening socket through the
// tableflip upgrader, so the bind happens before Ready() is called and
// survives a future SIGHUP upgrade.
func (p *Pool) AddBackend(b *Backend) error {
	l, err := p.upgrader.Fds.Listen(b.Network, b.Address)
	if err != nil {
		return fmt.Errorf("workerpool: listen %s %s: %w", b.Network, b.Address, err)
	}
	b.listener = l
	b.forkChildCh = make(chan struct{}, b.Limits.MaxChild+1)
	p.backends = append(p.backends, b)
	return nil
}

// Run is the parent loop: signal a ready tableflip generation, start
// every backend's own goroutine (the Go realization of spec.md §4.8's
// single `select` over listening fds and PPC sockets — one goroutine
// per fd being the idiomatic substitution for a C-style multiplexed
// select loop), and block until SIGINT/SIGTERM or ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	if err := p.upgrader.Ready(); err != nil {
		return fmt.Errorf("workerpool: upgrader.Ready: %w", err)
	}
	defer p.upgrader.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGPIPE, syscall.SIGHUP)
	defer signal.Stop(sig)

	var wg sync.WaitGroup
	for _, b := range p.backends {
		wg.Add(1)
		go func(b *Backend) {
			defer wg.Done()
			p.runBackend(ctx, b)
		}(b)
	}

	for {
		select {
		case s := <-sig:
			switch s {
			case syscall.SIGPIPE:
				continue // spec.md §4.8: SIGPIPE is ignored
			case syscall.SIGHUP:
				if err := p.upgrader.Upgrade(); err != nil {
					p.Logger.Error("workerpool: upgrade: %v", err)
				}
				continue
			default:
				p.stop()
				wg.Wait()
				return nil
			}
		case <-ctx.Done():
			p.stop()
			wg.Wait()
			return nil
		case <-p.upgrader.Exit():
			p.stop()
			wg.Wait()
			return nil
		}
	}
}

func (p *Pool) stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
}

func (p *Pool) isStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopping
}

// runBackend drives one backend according to its Model until the pool
// stops.
func (p *Pool) runBackend(ctx context.Context, b *Backend) {
	switch b.Model {
	case ModelIterative:
		p.runIterative(ctx, b)
	case ModelFork:
		p.runFork(ctx, b)
	case ModelPrefork:
		p.runPrefork(ctx, b)
	}
}

// runIterative serves every connection synchronously in the parent
// itself — no worker processes at all.
func (p *Pool) runIterative(ctx context.Context, b *Backend) {
	for !p.isStopping() {
		conn, err := b.listener.Accept()
		if err != nil {
			if p.isStopping() {
				return
			}
			p.Logger.Warn("backend %s: accept: %v", b.ID, err)
			continue
		}
		b.Serve(conn)
	}
}

// runFork spawns one worker process per accepted connection, up to
// MaxChild concurrently live.
func (p *Pool) runFork(ctx context.Context, b *Backend) {
	for !p.isStopping() {
		conn, err := b.listener.Accept()
		if err != nil {
			if p.isStopping() {
				return
			}
			p.Logger.Warn("backend %s: accept: %v", b.ID, err)
			continue
		}
		conn.Close() // the worker re-accepts on the inherited listener itself
		if b.Limits.MaxChild > 0 && b.liveChildCount() >= b.Limits.MaxChild {
			p.Logger.Warn("backend %s: max_child reached, dropping connection", b.ID)
			continue
		}
		p.spawnAndTrack(b)
	}
}

// runPrefork keeps StartChild workers warm, backfilling whenever a
// worker exits (reaped) or PPC's FORK_CHILD mid-serve, up to MaxChild.
func (p *Pool) runPrefork(ctx context.Context, b *Backend) {
	for i := 0; i < b.Limits.StartChild; i++ {
		p.spawnAndTrack(b)
	}
	for {
		if p.isStopping() {
			return
		}
		select {
		case <-b.forkChildCh:
			if p.isStopping() {
				return
			}
			if b.Limits.MaxChild == 0 || b.liveChildCount() < b.Limits.MaxChild {
				p.spawnAndTrack(b)
			}
		case <-time.After(time.Second):
			// Wake at 1Hz per spec.md §4.8, to notice a stop request
			// even with no pending backfill signal.
		}
	}
}

// spawnAndTrack spawns one worker for b, wires its PPC channel to
// p.PPCServer, and reaps it (the Go equivalent of a SIGCHLD handler —
// cmd.Wait() returning) in a background goroutine that backfills the
// pool on unexpected exit.
func (p *Pool) spawnAndTrack(b *Backend) {
	sw, err := spawnWorker(b)
	if err != nil {
		p.Logger.Error("backend %s: spawn: %v", b.ID, err)
		return
	}

	w := &Worker{Pid: sw.cmd.Process.Pid, BackendID: b.ID, Birth: time.Now()}
	b.addWorker(w)

	go func() {
		_ = p.PPCServer.Serve(sw.ppcConn)
		sw.ppcConn.Close()
	}()

	go func() {
		_ = sw.cmd.Wait() // the SIGCHLD-reap equivalent, per SPEC_FULL.md §4.8
		b.removeWorker(w.Pid)
		if p.isStopping() {
			return
		}
		if b.Model == ModelPrefork && b.liveChildCount() < b.Limits.StartChild {
			select {
			case b.forkChildCh <- struct{}{}:
			default:
			}
		}
	}()
}

// RequestForkChild is the parent-side handler ppc.Handlers.ForkChild
// wires up: a worker asking the parent to backfill because it expects
// to exit after its current request.
func (p *Pool) RequestForkChild(backendID string) error {
	for _, b := range p.backends {
		if b.ID == backendID {
			select {
			case b.forkChildCh <- struct{}{}:
			default:
			}
			return nil
		}
	}
	return fmt.Errorf("workerpool: unknown backend %q", backendID)
}
