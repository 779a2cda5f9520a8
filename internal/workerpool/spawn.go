//go:build !windows

package workerpool

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
)

// WorkerEnvBackendID names the environment variable a re-exec'd worker
// reads to know which backend it's serving — simpler than parsing
// argv, and survives exec.Command's argument quoting unchanged.
const WorkerEnvBackendID = "KLONE_WORKER_BACKEND_ID"

// WorkerModeFlag is the hidden CLI flag cmd/klone checks for before
// falling into ordinary parent startup.
const WorkerModeFlag = "-klone-worker"

// spawnedWorker is a parent's live handle on one re-exec'd worker
// process: its *exec.Cmd (for Wait/Process.Kill) and the PPC channel
// half the parent kept.
type spawnedWorker struct {
	cmd     *exec.Cmd
	ppcConn net.Conn // parent's end of the socketpair
}

// spawnWorker re-execs the running binary in worker mode for backend,
// passing it the listening socket and a fresh PPC socketpair, per
// SPEC_FULL.md §4.8's Go process model. The returned spawnedWorker's
// Process.Pid is the new Worker's pid.
func spawnWorker(b *Backend) (*spawnedWorker, error) {
	listenerFile, err := listenerFile(b.listener)
	if err != nil {
		return nil, fmt.Errorf("workerpool: listener fd for %s: %w", b.ID, err)
	}
	defer listenerFile.Close()

	parentFd, childFd, err := socketpair()
	if err != nil {
		return nil, fmt.Errorf("workerpool: socketpair for %s: %w", b.ID, err)
	}
	defer childFd.Close()

	self, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("workerpool: resolving executable: %w", err)
	}

	cmd := exec.Command(self, WorkerModeFlag)
	cmd.Env = append(os.Environ(), WorkerEnvBackendID+"="+b.ID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// fd 3 = listening socket, fd 4 = PPC channel, per the ExtraFiles
	// convention (stdin/out/err occupy 0-2).
	cmd.ExtraFiles = []*os.File{listenerFile, childFd}

	if err := cmd.Start(); err != nil {
		parentFd.Close()
		return nil, fmt.Errorf("workerpool: starting worker for %s: %w", b.ID, err)
	}

	ppcConn, err := net.FileConn(parentFd)
	parentFd.Close()
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("workerpool: wrapping PPC fd: %w", err)
	}

	return &spawnedWorker{cmd: cmd, ppcConn: ppcConn}, nil
}

// listenerFile extracts the underlying *os.File from a net.Listener so
// it can ride in ExtraFiles. Only TCP listeners are supported, matching
// spec.md §4.8's bind+listen backend model.
func listenerFile(l net.Listener) (*os.File, error) {
	tl, ok := l.(*net.TCPListener)
	if !ok {
		return nil, fmt.Errorf("workerpool: listener is not TCP (got %T)", l)
	}
	return tl.File()
}

// socketpair opens a UNIX-domain SOCK_STREAM socketpair, returning both
// ends as *os.File (the parent's end and the end to hand to the child
// via ExtraFiles) — the literal realization of spec.md §4.8's PPC
// channel.
func socketpair() (parent, child *os.File, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	parent = os.NewFile(uintptr(fds[0]), "ppc-parent")
	child = os.NewFile(uintptr(fds[1]), "ppc-child")
	return parent, child, nil
}

// InheritedListener reconstructs the backend's listening socket in a
// worker process from its inherited fd (3, by the spawnWorker
// convention above).
func InheritedListener() (net.Listener, error) {
	f := os.NewFile(3, "listener")
	l, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("workerpool: reconstructing inherited listener: %w", err)
	}
	return l, nil
}

// InheritedPPCConn reconstructs the worker's PPC channel from its
// inherited fd (4, by the spawnWorker convention above).
func InheritedPPCConn() (net.Conn, error) {
	f := os.NewFile(4, "ppc-child")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("workerpool: reconstructing inherited PPC conn: %w", err)
	}
	return conn, nil
}
