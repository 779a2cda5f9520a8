package main

import "testing"

func TestRunVersion(t *testing.T) {
	code := run([]string{"--version"})
	if code != 0 {
		t.Errorf("expected exit code 0 for --version, got %d", code)
	}
}

func TestRunHelp(t *testing.T) {
	code := run([]string{"--help"})
	if code != 0 {
		t.Errorf("expected exit code 0 for --help, got %d", code)
	}
}

func TestRunBadFlag(t *testing.T) {
	code := run([]string{"--not-a-real-flag"})
	if code != 2 {
		t.Errorf("expected exit code 2 for an unrecognised flag, got %d", code)
	}
}

func TestRunWorkerModeMissingBackendID(t *testing.T) {
	t.Setenv("KLONE_WORKER_BACKEND_ID", "")
	code := run([]string{"-klone-worker"})
	if code != 1 {
		t.Errorf("expected exit code 1 for worker mode with no backend id, got %d", code)
	}
}
