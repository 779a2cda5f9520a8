// Command klone is an embedded HTTP/HTTPS server: one binary holding
// its own resource tree (cmd/klone/embedroot, via go:embed), a
// configurable vhost/session/worker-pool stack, and a hidden re-exec
// worker mode used to realize the fork and prefork concurrency models
// without a real fork(2).
//
// Usage: klone [--config path] [--address host:port] [--pid-file path] [--debug]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klone-io/klone/internal/config"
	"github.com/klone-io/klone/internal/embfs"
	"github.com/klone-io/klone/internal/httpengine"
	"github.com/klone-io/klone/internal/klog"
	"github.com/klone-io/klone/internal/ppc"
	"github.com/klone-io/klone/internal/server"
	"github.com/klone-io/klone/internal/session"
	"github.com/klone-io/klone/internal/state"
	"github.com/klone-io/klone/internal/workerpool"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags.
var version = "0.1.0"

const usageText = `klone — embedded HTTP/HTTPS server

Usage:
  klone [options]

Options:
  --config <path>         Instance config file (default .klone.json in cwd)
  --address <host:port>   Override the default backend's bind address
  --pid-file <path>       Where to write the parent process's pid
  --debug                 Enable verbose process (zap) logging
  --version               Show version
  --help                  Show this help
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is cmd/klone's entrypoint, separated from main for testability.
// args[0] == workerpool.WorkerModeFlag means this process was re-exec'd
// as a fork/prefork worker, and runWorker takes over entirely.
func run(args []string) int {
	if len(args) > 0 && args[0] == workerpool.WorkerModeFlag {
		return runWorker()
	}

	for _, a := range args {
		if a == "--version" || a == "-v" {
			fmt.Println("klone " + version)
			return 0
		}
		if a == "--help" || a == "-h" {
			fmt.Print(usageText)
			return 0
		}
	}

	fs := flag.NewFlagSet("klone", flag.ContinueOnError)
	configFile := fs.String("config", "", "instance config file")
	address := fs.String("address", "", "override the default backend's bind address")
	pidFile := fs.String("pid-file", "", "pid file path")
	debug := fs.Bool("debug", false, "enable verbose process logging")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, usageText)
		return 2
	}

	flags := &config.FlagOverrides{Debug: debug}
	if *configFile != "" {
		flags.ConfigFile = configFile
	}
	if *address != "" {
		flags.Address = address
	}
	if *pidFile != "" {
		flags.PIDFile = pidFile
	}

	instancePath, err := state.InstanceConfigSearchPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: %v\n", err)
		return 1
	}
	cfg, err := config.Load(instancePath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: %v\n", err)
		return 2
	}
	if cfg.PIDFile == "" {
		if cfg.PIDFile, err = state.PIDFile(cfg.Backends[0].ID); err != nil {
			fmt.Fprintf(os.Stderr, "klone: %v\n", err)
			return 1
		}
	}
	if cfg.Klog.FileBasename == "" {
		if cfg.Klog.FileBasename, err = state.DefaultLogFileBasename(); err != nil {
			fmt.Fprintf(os.Stderr, "klone: %v\n", err)
			return 1
		}
	}
	if err := ensureParentDirs(cfg.PIDFile, cfg.Klog.FileBasename); err != nil {
		fmt.Fprintf(os.Stderr, "klone: %v\n", err)
		return 1
	}

	logger, procLogger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "klone: %v\n", err)
		return 1
	}
	defer logger.Close()
	defer procLogger.Sync() //nolint:errcheck // best-effort flush on exit

	fsys, err := loadEmbFS()
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	memStore := session.NewMemoryStore(session.MemoryBackendOptions{
		MaxCount: cfg.Session.MemoryMaxCount,
		MaxBytes: cfg.Session.MemoryMaxBytes,
	})

	// pool's PPCServer is assigned just below, after pool itself exists,
	// since Handlers.ForkChild needs pool.RequestForkChild as a method
	// value — the parent's own backfill queue, reached through the same
	// PPC command a worker issues.
	pool, err := workerpool.New(cfg.PIDFile, logger, nil)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	pool.PPCServer = ppc.NewServer(buildPPCHandlers(logger, memStore, pool))

	for _, bcfg := range cfg.Backends {
		b, err := buildBackend(cfg, bcfg, fsys, memStore, logger)
		if err != nil {
			logger.Error("%v", err)
			return 1
		}
		if err := pool.AddBackend(b); err != nil {
			logger.Error("%v", err)
			return 1
		}
	}

	procLogger.Info("klone starting", zap.String("version", version), zap.Int("backends", len(cfg.Backends)))
	if err := pool.Run(context.Background()); err != nil {
		logger.Error("%v", err)
		return 1
	}
	return 0
}

// ensureParentDirs creates the containing directory of every given path
// that isn't empty, since internal/state resolves paths under the
// user's state root without guaranteeing it exists yet.
func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", p, err)
		}
	}
	return nil
}

// buildBackend assembles one configured backend's workerpool.Backend:
// its Context (engine, broker, session setup) and, for an https
// backend, the TLS-handshaking wrapper around its Serve closure.
func buildBackend(cfg config.Config, bcfg config.BackendConfig, fsys *embfs.FS, memStore *session.MemoryStore, logger *klog.Logger) (*workerpool.Backend, error) {
	model := workerpool.ParseModel(bcfg.Model)

	var memoryBackend session.Backend
	if cfg.Session.Backend == "memory" {
		memoryBackend = memStore.Backend()
	}
	setup, err := buildSessionSetup(cfg.Session, memoryBackend)
	if err != nil {
		return nil, err
	}

	engine, b, err := buildEngine(cfg, fsys, setup.cipherKey)
	if err != nil {
		return nil, err
	}

	ctx := &server.Context{
		BackendID:   bcfg.ID,
		Engine:      engine,
		Broker:      b,
		ReqOptions:  defaultRequestOptions(cfg),
		Session:     setup.opts,
		ClientSide:  setup.clientSide,
		FileSession: setup.fileSession,
		Logger:      logger,
		AccessLog: func(backendID string, e httpengine.AccessEntry) {
			logger.Info("%s %s", backendID, formatAccessEntry(e))
		},
	}

	serve := ctx.ServeConn
	if bcfg.Protocol == "https" {
		wrapped, err := wrapTLSServe(bcfg, serve)
		if err != nil {
			return nil, err
		}
		serve = wrapped
	}

	return &workerpool.Backend{
		ID:        bcfg.ID,
		Network:   bcfg.NetworkOrDefault(),
		Address:   bcfg.Address,
		Model:     model,
		Limits:    bcfg.BackendLimits(),
		Privilege: bcfg.BackendPrivilege(),
		Serve:     serve,
	}, nil
}

// buildPPCHandlers wires a worker's PPC requests to the parent's real
// klog.Logger and session.MemoryStore, plus pool's own backfill request
// queue — the parent-side half of the cross-process split described on
// worker.go.
func buildPPCHandlers(logger *klog.Logger, memStore *session.MemoryStore, pool *workerpool.Pool) ppc.Handlers {
	return ppc.Handlers{
		LogAdd: func(backendID string, level int, line string) {
			logger.Log(klog.Level(level), "[%s] %s", backendID, line)
		},
		AccessLog: func(backendID, vhostID, line string) {
			logger.Info("%s %s %s", backendID, vhostID, line)
		},
		ForkChild: pool.RequestForkChild,
		MsesSave:  memStore.Save,
		MsesGet: func(id string) (map[string]string, time.Time, bool) {
			vars, mtime, found, _ := memStore.Load(id)
			return vars, mtime, found
		},
		MsesRemove: memStore.Remove,
		MsesDelOld: func() {},
	}
}

// buildLogger assembles the parent's klog.Logger from cfg.Klog: a
// memory ring, a rotating file sink, and optionally syslog, plus the
// additive zap process logger for klone's own operational messages
// (config errors, pool lifecycle), per spec.md §4.9.
func buildLogger(cfg config.Config) (*klog.Logger, *zap.Logger, error) {
	logger := klog.New(fmt.Sprintf("klone[%d]", os.Getpid()))
	logger.AddSink(klog.NewMemorySink(cfg.Klog.MemoryCapacity, klog.ParseLevel(cfg.Klog.MemoryMinLevel)))

	if cfg.Klog.FileBasename != "" {
		fileSink, err := klog.NewFileSink(cfg.Klog.FileBasename, cfg.Klog.FileCount, cfg.Klog.FileLineLimit, klog.ParseLevel(cfg.Klog.FileMinLevel))
		if err != nil {
			return nil, nil, fmt.Errorf("klone: file log sink: %w", err)
		}
		logger.AddSink(fileSink)
	}

	if cfg.Klog.SyslogTag != "" {
		syslogSink, err := klog.NewSyslogSink(cfg.Klog.SyslogTag, klog.ParseLevel(cfg.Klog.SyslogMinLevel))
		if err != nil {
			return nil, nil, fmt.Errorf("klone: syslog sink: %w", err)
		}
		logger.AddSink(syslogSink)
	}

	procLogger, err := klog.NewProcessLogger(cfg.Klog.ProcessDebug)
	if err != nil {
		return nil, nil, fmt.Errorf("klone: process logger: %w", err)
	}
	return logger, procLogger, nil
}
