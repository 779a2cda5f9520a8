package main

import (
	"fmt"
	"time"

	"github.com/klone-io/klone/internal/broker"
	"github.com/klone-io/klone/internal/config"
	"github.com/klone-io/klone/internal/embfs"
	"github.com/klone-io/klone/internal/httpengine"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/server"
	"github.com/klone-io/klone/internal/session"
	"github.com/klone-io/klone/internal/timer"
)

// buildEngine assembles the shared httpengine.Engine + broker.Broker from
// cfg's vhosts and suppliers — identical in the parent (iterative/fork
// models) and in a re-exec'd worker, since neither the vhost table nor
// the embedded resource tree nor the CGI configuration differs by
// process.
func buildEngine(cfg config.Config, fsys *embfs.FS, cipherKey func(req *httpreq.Request) ([32]byte, bool)) (*httpengine.Engine, *broker.Broker, error) {
	vhosts := make([]*httpengine.VHost, len(cfg.VHosts))
	for i := range cfg.VHosts {
		v := cfg.VHosts[i]
		vhosts[i] = &v
	}
	engine := httpengine.New(vhosts)

	b := broker.New()
	b.Register(&broker.EmbFSStatic{FS: fsys, CipherKey: cipherKey})

	dynamic, err := registerDynamicPages(fsys.DynamicPatterns())
	if err != nil {
		return nil, nil, err
	}
	b.Register(dynamic)

	if cfg.CGI.ScriptAliasDir != "" || len(cfg.CGI.Interpreters) > 0 {
		b.Register(&broker.FilesystemCGI{
			ScriptAliasDir: cfg.CGI.ScriptAliasDir,
			Interpreters:   cfg.CGI.Interpreters,
		})
	}

	return engine, b, nil
}

// sessionSetup holds what buildSessionSetup resolves from a SessionConfig:
// the pieces a Context needs, already split by backend kind.
type sessionSetup struct {
	opts        session.Options
	clientSide  *session.ClientSideOptions
	fileSession *session.FileBackendOptions
	cipherKey   func(req *httpreq.Request) ([32]byte, bool)
}

// buildSessionSetup resolves cfg.Session into the pieces server.Context
// needs. memoryBackend is consulted only when Backend == "memory": the
// parent passes its own session.MemoryStore.Backend(), a worker passes a
// Backend whose closures round-trip over PPC instead (see worker.go) —
// buildSessionSetup itself has no opinion on which.
func buildSessionSetup(sc config.SessionConfig, memoryBackend session.Backend) (sessionSetup, error) {
	base := session.Options{
		CookieName: sc.CookieName,
		MaxAge:     sc.SessionMaxAge(),
	}

	var cipherKey *[32]byte
	if sc.CipherPassphrase != "" {
		k := config.DeriveCipherKey(sc.CipherPassphrase, sc.CipherSalt)
		cipherKey = &k
	}

	switch sc.Backend {
	case "memory":
		base.Backend = memoryBackend
		return sessionSetup{opts: base, cipherKey: server.CipherKeyFromSession(base)}, nil

	case "file":
		tmpl := session.FileBackendOptions{
			Dir:       sc.FileDir,
			Gzip:      sc.FileGzip,
			CipherKey: nil,
		}
		if sc.FileCipher {
			tmpl.CipherKey = cipherKey
		}
		base.Backend = session.NewFileBackend(tmpl)
		return sessionSetup{opts: base, fileSession: &tmpl, cipherKey: server.CipherKeyFromSession(base)}, nil

	case "client":
		if cipherKey == nil {
			return sessionSetup{}, fmt.Errorf("klone: session.backend=client requires cipher_passphrase")
		}
		cs := session.ClientSideOptions{
			CipherKey: *cipherKey,
			HMACKey:   []byte(sc.HMACKey),
			MaxAge:    sc.SessionMaxAge(),
			Domain:    sc.ClientDomain,
			Path:      sc.ClientPath,
			Secure:    sc.ClientSecure,
		}
		return sessionSetup{clientSide: &cs, cipherKey: server.CipherKeyFromClientSide(cs)}, nil

	default:
		return sessionSetup{}, fmt.Errorf("klone: unknown session.backend %q", sc.Backend)
	}
}

// defaultRequestOptions builds the per-connection request-parsing
// options shared by every backend; each backend gets its own *timer.Wheel
// since alarms never cross process or goroutine-pool boundaries (see
// internal/timer's package doc).
func defaultRequestOptions(cfg config.Config) httpreq.Options {
	opts := httpreq.DefaultOptions()
	if cfg.IdleTimeoutSeconds > 0 {
		opts.IdleTimeout = time.Duration(cfg.IdleTimeoutSeconds) * time.Second
	}
	if cfg.PostTimeoutSeconds > 0 {
		opts.PostTimeout = time.Duration(cfg.PostTimeoutSeconds) * time.Second
	}
	opts.TempDir = cfg.TempDir
	opts.Wheel = timer.New()
	return opts
}
