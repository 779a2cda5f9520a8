package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAlarmFires(t *testing.T) {
	w := New()
	var fired int32
	done := make(chan struct{})
	w.Add(10*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("alarm never fired")
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("fired flag not set")
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	w := New()
	var fired int32
	a := w.Add(30*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	w.Cancel(a)
	time.Sleep(60 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("cancelled alarm fired anyway")
	}
}

func TestAlarmsFireInExpiryOrder(t *testing.T) {
	w := New()
	var order []int
	done := make(chan struct{})
	w.Add(30*time.Millisecond, func() {
		order = append(order, 2)
		close(done)
	})
	w.Add(10*time.Millisecond, func() {
		order = append(order, 1)
	})
	<-done
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected [1 2], got %v", order)
	}
}
