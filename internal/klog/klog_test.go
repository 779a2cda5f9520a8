package klog

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerFansOutToEverySink(t *testing.T) {
	l := New("klone[1]")
	mem := NewMemorySink(10, LevelDebug)
	l.AddSink(mem)

	l.Info("hello %s", "world")
	all := mem.ReadAll()
	if len(all) != 1 || !strings.Contains(all[0].Msg, "hello world") {
		t.Fatalf("got %+v", all)
	}
}

func TestMemorySinkLevelFilter(t *testing.T) {
	l := New("klone[1]")
	mem := NewMemorySink(10, LevelWarn)
	l.AddSink(mem)

	l.Debug("should be dropped")
	l.Error("should be kept")
	all := mem.ReadAll()
	if len(all) != 1 || all[0].Level != LevelError {
		t.Fatalf("expected only the error entry to survive filtering, got %+v", all)
	}
}

func TestMemorySinkEvictsOldestWhenFull(t *testing.T) {
	mem := NewMemorySink(2, LevelDebug)
	mem.Write(Entry{Level: LevelInfo, Msg: "one"})
	mem.Write(Entry{Level: LevelInfo, Msg: "two"})
	mem.Write(Entry{Level: LevelInfo, Msg: "three"})

	all := mem.ReadAll()
	if len(all) != 2 || all[0].Msg != "two" || all[1].Msg != "three" {
		t.Fatalf("expected [two three], got %+v", all)
	}
}

func TestMemorySinkReadReverse(t *testing.T) {
	mem := NewMemorySink(5, LevelDebug)
	for _, m := range []string{"a", "b", "c"} {
		mem.Write(Entry{Level: LevelInfo, Msg: m})
	}
	rev := mem.ReadReverse(2)
	if len(rev) != 2 || rev[0].Msg != "c" || rev[1].Msg != "b" {
		t.Fatalf("got %+v", rev)
	}
}

func TestFileSinkRotatesAtLineLimit(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "klog")
	sink, err := NewFileSink(base, 2, 2, LevelDebug)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}

	sink.Write(Entry{Level: LevelInfo, Msg: "one", Ident: "t"})
	sink.Write(Entry{Level: LevelInfo, Msg: "two", Ident: "t"})
	if sink.head.PageID != 1 || sink.head.LineCount != 0 {
		t.Fatalf("expected rotation to page 1 after 2 lines, got %+v", sink.head)
	}

	sink.Write(Entry{Level: LevelInfo, Msg: "three", Ident: "t"})
	if sink.head.PageID != 1 || sink.head.LineCount != 1 {
		t.Fatalf("got %+v", sink.head)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewFileSink(base, 2, 2, LevelDebug)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.head != sink.head {
		t.Fatalf("expected head sidecar to survive reopen, got %+v want %+v", reopened.head, sink.head)
	}
}
