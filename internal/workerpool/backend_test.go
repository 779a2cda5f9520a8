package workerpool

import "testing"

func TestBackendWorkerBookkeeping(t *testing.T) {
	b := &Backend{ID: "web"}

	if got := b.liveChildCount(); got != 0 {
		t.Fatalf("liveChildCount on empty backend = %d, want 0", got)
	}

	b.addWorker(&Worker{Pid: 100, BackendID: "web"})
	b.addWorker(&Worker{Pid: 101, BackendID: "web"})
	if got := b.liveChildCount(); got != 2 {
		t.Fatalf("liveChildCount after 2 adds = %d, want 2", got)
	}

	b.removeWorker(100)
	if got := b.liveChildCount(); got != 1 {
		t.Fatalf("liveChildCount after 1 remove = %d, want 1", got)
	}

	// Removing an unknown pid is a no-op, not an error.
	b.removeWorker(999)
	if got := b.liveChildCount(); got != 1 {
		t.Fatalf("liveChildCount after removing unknown pid = %d, want 1", got)
	}

	b.removeWorker(101)
	if got := b.liveChildCount(); got != 0 {
		t.Fatalf("liveChildCount after draining = %d, want 0", got)
	}
}

func TestLimitsZeroMeansUnbounded(t *testing.T) {
	b := &Backend{ID: "web", Limits: Limits{MaxChild: 0}}
	for i := 0; i < 5; i++ {
		b.addWorker(&Worker{Pid: 1000 + i, BackendID: "web"})
	}
	// A caller like runFork checks `MaxChild > 0 && liveChildCount() >=
	// MaxChild` before refusing — with MaxChild == 0 that guard must
	// never trip regardless of how many workers are live.
	if b.Limits.MaxChild > 0 && b.liveChildCount() >= b.Limits.MaxChild {
		t.Fatalf("MaxChild == 0 must never be treated as a reached bound")
	}
	if got := b.liveChildCount(); got != 5 {
		t.Fatalf("liveChildCount = %d, want 5", got)
	}
}
