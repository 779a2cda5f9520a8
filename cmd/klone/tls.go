package main

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/klone-io/klone/internal/config"
	"github.com/klone-io/klone/internal/workerpool"
)

// wrapTLSServe wraps serve so every accepted connection performs a TLS
// server handshake before being handed off. The workerpool listener
// itself stays a plain *net.TCPListener — its fd rides through
// os/exec's ExtraFiles into a re-exec'd worker unchanged, and
// *tls.Conn has no such fd-transferable representation — so an https
// backend's TLS layer is applied per-accepted-connection instead of at
// the listener, in both the parent (iterative model) and the worker
// (fork/prefork models).
func wrapTLSServe(bcfg config.BackendConfig, serve workerpool.ServeFunc) (workerpool.ServeFunc, error) {
	cert, err := tls.LoadX509KeyPair(bcfg.TLSCert, bcfg.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("klone: backend %s: loading tls cert/key: %w", bcfg.ID, err)
	}
	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}}

	return func(conn net.Conn) {
		serve(tls.Server(conn, tlsConfig))
	}, nil
}
