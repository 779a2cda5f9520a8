package main

import (
	"fmt"
	"os"
	"time"

	"github.com/klone-io/klone/internal/config"
	"github.com/klone-io/klone/internal/httpengine"
	"github.com/klone-io/klone/internal/klog"
	"github.com/klone-io/klone/internal/ppc"
	"github.com/klone-io/klone/internal/server"
	"github.com/klone-io/klone/internal/session"
	"github.com/klone-io/klone/internal/workerpool"
)

// runWorker is cmd/klone's entrypoint when re-exec'd in worker mode
// (argv[1] == workerpool.WorkerModeFlag). It has none of the parent's
// in-process state — klog sinks, the session.MemoryStore, the
// workerpool.Pool itself — so it reconstructs its own view of the
// configuration and proxies whatever it can't own locally back to the
// parent over its inherited PPC channel, per SPEC_FULL.md §4.8's Go
// process model.
func runWorker() int {
	backendID := os.Getenv(workerpool.WorkerEnvBackendID)
	if backendID == "" {
		fmt.Fprintln(os.Stderr, "klone: worker mode requires "+workerpool.WorkerEnvBackendID)
		return 1
	}

	cfg, err := config.Load("", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: config: %v\n", backendID, err)
		return 1
	}

	bcfg, ok := findBackend(cfg, backendID)
	if !ok {
		fmt.Fprintf(os.Stderr, "klone: worker: unknown backend %q\n", backendID)
		return 1
	}

	ppcConn, err := workerpool.InheritedPPCConn()
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: ppc channel: %v\n", backendID, err)
		return 1
	}
	client := ppc.NewClient(ppcConn)

	logger := klog.New(fmt.Sprintf("klone[%d]", os.Getpid()))
	logger.AddSink(&ppcLogSink{client: client, backendID: backendID})

	fsys, err := loadEmbFS()
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: %v\n", backendID, err)
		return 1
	}

	var memoryBackend session.Backend
	if cfg.Session.Backend == "memory" {
		memoryBackend = ppcMemoryBackend(client)
	}
	setup, err := buildSessionSetup(cfg.Session, memoryBackend)
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: session: %v\n", backendID, err)
		return 1
	}

	engine, b, err := buildEngine(cfg, fsys, setup.cipherKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: %v\n", backendID, err)
		return 1
	}

	ctx := &server.Context{
		BackendID:   backendID,
		Engine:      engine,
		Broker:      b,
		ReqOptions:  defaultRequestOptions(cfg),
		Session:     setup.opts,
		ClientSide:  setup.clientSide,
		FileSession: setup.fileSession,
		Logger:      logger,
		AccessLog: func(_ string, e httpengine.AccessEntry) {
			_ = client.AccessLog(backendID, "", formatAccessEntry(e))
		},
	}

	maxRq := bcfg.MaxRq
	if workerpool.ParseModel(bcfg.Model) == workerpool.ModelFork {
		maxRq = 1
	}
	err = workerpool.RunChild(workerpool.ChildConfig{
		BackendID:     backendID,
		MaxRqPerChild: maxRq,
		Privilege:     bcfg.BackendPrivilege(),
		Serve:         ctx.ServeConn,
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: worker %s: %v\n", backendID, err)
		return 1
	}
	return 0
}

func findBackend(cfg config.Config, id string) (config.BackendConfig, bool) {
	for _, b := range cfg.Backends {
		if b.ID == id {
			return b, true
		}
	}
	return config.BackendConfig{}, false
}

// ppcMemoryBackend adapts a worker's PPC client into the session.Backend
// closure shape, round-tripping every Load/Save/Remove to the parent's
// single canonical session.MemoryStore, per spec.md §4.7/§5's "memory
// session state lives only in the parent, workers proxy through PPC"
// rule.
func ppcMemoryBackend(client *ppc.Client) session.Backend {
	return session.Backend{
		Load: func(id string) (map[string]string, time.Time, bool, error) {
			resp, err := client.MsesGet(id)
			if err != nil {
				return nil, time.Time{}, false, err
			}
			return resp.Vars, resp.MTime, resp.Found, nil
		},
		Save: func(id string, vars map[string]string, mtime time.Time) error {
			return client.MsesSave(ppc.MsesSaveRequest{ID: id, Vars: vars, MTime: mtime})
		},
		Remove: func(id string) error {
			return client.MsesRemove(id)
		},
	}
}

// ppcLogSink adapts a worker's PPC client into a klog.Sink, forwarding
// every entry to the parent's real sinks via CmdLogAdd rather than
// holding any sinks itself — a worker process never owns klog's memory/
// file/syslog sinks directly, per spec.md §5.
type ppcLogSink struct {
	client    *ppc.Client
	backendID string
}

func (s *ppcLogSink) Write(e klog.Entry) {
	_ = s.client.LogAdd(s.backendID, int(e.Level), e.Msg)
}

func (s *ppcLogSink) Close() error { return nil }

// formatAccessEntry renders an AccessEntry as one Combined Log Format
// line, the same shape the parent's own access-log sink writes for
// iterative/fork backends — a prefork worker has no sink of its own, so
// it hands the parent an already-formatted line rather than the
// structured entry.
func formatAccessEntry(e httpengine.AccessEntry) string {
	ident := e.Ident
	if ident == "" {
		ident = "-"
	}
	user := e.User
	if user == "" {
		user = "-"
	}
	referer := e.Referer
	if referer == "" {
		referer = "-"
	}
	ua := e.UserAgent
	if ua == "" {
		ua = "-"
	}
	ts := time.Now().Format("02/Jan/2006:15:04:05 -0700")
	return fmt.Sprintf("%s %s %s [%s] \"%s\" %d %d %q %q",
		e.RemoteAddr, ident, user, ts, e.URI, e.Status, e.BytesSent, referer, ua)
}
