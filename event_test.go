package parklot

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEvent_NotifyBeforeWait(t *testing.T) {
	var e event
	e.init()
	e.notify()
	if !e.wait(0, nil) {
		t.Fatal("expected wait to observe the notification")
	}
}

func TestEvent_NotifyUnblocksWait(t *testing.T) {
	var e event
	e.init()
	go func() {
		time.Sleep(time.Millisecond)
		e.notify()
	}()
	if !e.wait(0, nil) {
		t.Fatal("expected wait to return notified")
	}
}

func TestEvent_DeadlineExpires(t *testing.T) {
	var e event
	e.init()
	deadline := Nanotime() + uint64(5*time.Millisecond)
	if e.wait(deadline, nil) {
		t.Fatal("expected wait to time out")
	}
	if now := Nanotime(); now < deadline {
		t.Fatalf("wait returned %dns before the deadline", deadline-now)
	}
}

func TestEvent_ElapsedDeadlineStillObservesNotify(t *testing.T) {
	var e event
	e.init()
	e.notify()
	// A deadline in the past must not mask a delivered notification.
	if !e.wait(Nanotime()-1, nil) {
		t.Fatal("expected the racing notify to win")
	}
}

func TestEvent_PrologueRunsExactlyOnceBeforeBlocking(t *testing.T) {
	var e event
	e.init()
	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.wait(0, func() {
			calls.Add(1)
		})
	}()
	// The prologue must run before wait blocks, i.e. before notify.
	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	e.notify()
	<-done
	if n := calls.Load(); n != 1 {
		t.Fatalf("prologue ran %d times, want 1", n)
	}
}
