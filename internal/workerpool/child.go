//go:build !windows

package workerpool

import (
	"net"

	"github.com/klone-io/klone/internal/klog"
	"github.com/klone-io/klone/internal/ppc"
)

// ChildConfig is everything a re-exec'd worker process needs to serve,
// independent of how cmd/klone assembled it (config file, flags, or
// inherited from the parent's own Backend).
type ChildConfig struct {
	BackendID     string
	MaxRqPerChild int // 0 means unbounded (fork model: exactly one request)
	Privilege     Privilege
	Serve         ServeFunc
	Logger        *klog.Logger
}

// RunChild is the worker-mode entrypoint: reconstruct the inherited
// listener and PPC channel, drop privileges, then loop accept+serve up
// to MaxRqPerChild times (prefork) or once (fork), per spec.md §4.8.
// cmd/klone's main calls this when it detects WorkerModeFlag on argv.
func RunChild(cfg ChildConfig) error {
	listener, err := InheritedListener()
	if err != nil {
		return err
	}
	defer listener.Close()

	ppcConn, err := InheritedPPCConn()
	if err != nil {
		return err
	}
	defer ppcConn.Close()
	client := ppc.NewClient(ppcConn)

	if err := DropPrivileges(cfg.Privilege); err != nil {
		return err
	}

	w := &childWorker{cfg: cfg, listener: listener, ppc: client}
	activeChildWorker = w
	return w.loop()
}

type childWorker struct {
	cfg      ChildConfig
	listener net.Listener
	ppc      *ppc.Client

	served           int
	exitAfterCurrent bool
}

// loop implements spec.md §4.8's per-child accept loop: up to
// MaxRqPerChild iterations of accept→serve, self-exiting early if a
// mid-serve FORK_CHILD request has already been issued to preserve
// pool shape.
func (w *childWorker) loop() error {
	for {
		if w.cfg.MaxRqPerChild > 0 && w.served >= w.cfg.MaxRqPerChild {
			return nil
		}
		conn, err := w.listener.Accept()
		if err != nil {
			if w.cfg.Logger != nil {
				w.cfg.Logger.Error("worker %s: accept: %v", w.cfg.BackendID, err)
			}
			return err
		}
		w.served++

		w.cfg.Serve(conn)

		if w.exitAfterCurrent {
			return nil
		}
	}
}

// RequestBackfill issues a mid-serve FORK_CHILD PPC call and marks this
// worker to exit once the current request finishes, per spec.md §4.8's
// long-running-request backfill path. It is reached only through
// RequestCurrentWorkerBackfill, which nothing in this repository calls.
func (w *childWorker) RequestBackfill() error {
	w.exitAfterCurrent = true
	return w.ppc.ForkChild(w.cfg.BackendID)
}

// activeChildWorker lets a Serve closure reach back into the active
// childWorker to call RequestBackfill, without RunChild needing to
// expose its internals to cmd/klone. Set once per process by RunChild.
var activeChildWorker *childWorker

func init() {
	// Outside a worker process (or before RunChild runs) this stays nil,
	// which makes RequestCurrentWorkerBackfill a no-op.
	activeChildWorker = nil
}

// RequestCurrentWorkerBackfill is the hook a ServeFunc calls when it
// decides its in-flight request is long-running and the pool should
// backfill a replacement before this worker exits. A no-op outside a
// re-exec'd worker process (the iterative model's parent has nothing to
// backfill).
func RequestCurrentWorkerBackfill() error {
	if activeChildWorker == nil {
		return nil
	}
	return activeChildWorker.RequestBackfill()
}
