package upd

import (
	"testing"
	"time"
)

func TestLockSharedGrantsSynchronously(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	granted := 0
	l1 := &Lock{CB: func(l *Lock) {
		if !l.OK {
			t.Error("shared lock refused")
		}
		granted++
	}}
	l2 := &Lock{CB: func(l *Lock) { granted++ }}

	if !f.Lock(l1) || !f.Lock(l2) {
		t.Fatal("Lock failed")
	}
	if granted != 2 {
		t.Errorf("granted = %d, want 2 (synchronous shared grants)", granted)
	}
	f.Unlock(l1)
	f.Unlock(l2)
}

func TestLockExclusiveBlocksShared(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	var order []string
	shared := func(name string) *Lock {
		return &Lock{CB: func(l *Lock) {
			if l.OK {
				order = append(order, name)
			}
		}}
	}

	s1 := shared("s1")
	s2 := shared("s2")
	f.Lock(s1)
	f.Lock(s2)

	x := &Lock{Ex: true, CB: func(l *Lock) {
		if l.OK {
			order = append(order, "x")
		}
	}}
	f.Lock(x)

	// s3 arrives after the exclusive waiter and must not jump it
	s3 := shared("s3")
	f.Lock(s3)

	if len(order) != 2 {
		t.Fatalf("unexpected early grants: %v", order)
	}

	f.Unlock(s1)
	if len(order) != 2 {
		t.Fatalf("x granted while s2 still held: %v", order)
	}
	f.Unlock(s2)
	if len(order) != 3 || order[2] != "x" {
		t.Fatalf("x not granted after all shared released: %v", order)
	}

	f.Unlock(x)
	if len(order) != 4 || order[3] != "s3" {
		t.Fatalf("s3 not granted after x released: %v", order)
	}
	f.Unlock(s3)
}

func TestLockTimeout(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	holder := &Lock{Ex: true, CB: func(l *Lock) {}}
	if !f.Lock(holder) || !holder.OK {
		t.Fatal("holder not granted")
	}

	var timedOut bool
	waiter := &Lock{Ex: true, Timeout: 50, CB: func(l *Lock) {
		if l.OK {
			t.Error("waiter granted while holder still held")
		}
		timedOut = true
	}}
	if !f.Lock(waiter) {
		t.Fatal("waiter enqueue failed")
	}

	time.Sleep(70 * time.Millisecond)
	iso.Step()

	if !timedOut {
		t.Error("waiter did not time out")
	}
	if !holder.held {
		t.Error("holder lost the lock")
	}

	f.Unlock(holder)
}

func TestLockTimeoutCancelledByGrant(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	holder := &Lock{Ex: true, CB: func(l *Lock) {}}
	f.Lock(holder)

	calls := 0
	waiter := &Lock{Ex: true, Timeout: 50, CB: func(l *Lock) { calls++ }}
	f.Lock(waiter)

	f.Unlock(holder) // grants the waiter before the deadline

	time.Sleep(70 * time.Millisecond)
	iso.Step()

	if calls != 1 {
		t.Errorf("callback fired %d times, want exactly once", calls)
	}
	if !waiter.OK {
		t.Error("waiter should have been granted")
	}
	f.Unlock(waiter)
}

func TestLockSharedBatchGrant(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	x := &Lock{Ex: true, CB: func(l *Lock) {}}
	f.Lock(x)

	granted := 0
	for i := 0; i < 3; i++ {
		f.Lock(&Lock{CB: func(l *Lock) {
			if l.OK {
				granted++
			}
		}})
	}
	x2 := &Lock{Ex: true, CB: func(l *Lock) {}}
	f.Lock(x2)

	f.Unlock(x)
	// all consecutive shared waiters up to the next exclusive get in
	if granted != 3 {
		t.Errorf("granted = %d shared, want 3", granted)
	}
	if x2.OK {
		t.Error("second exclusive granted alongside shared holders")
	}
}

func TestLockReentrantCallback(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	var inner *Lock
	outer := &Lock{CB: func(l *Lock) {
		// issuing another lock from inside the grant callback must work
		inner = &Lock{CB: func(l2 *Lock) {}}
		if !f.Lock(inner) {
			t.Error("re-entrant Lock failed")
		}
	}}
	if !f.Lock(outer) {
		t.Fatal("Lock failed")
	}
	if inner == nil || !inner.OK {
		t.Fatal("re-entrant shared lock not granted")
	}

	f.Unlock(inner)
	f.Unlock(outer)
}

func TestLockUnlockFromGrantCallback(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	x := &Lock{Ex: true, CB: func(l *Lock) {}}
	f.Lock(x)

	sequence := []string{}
	a := &Lock{Ex: true, CB: func(l *Lock) {
		sequence = append(sequence, "a")
		f.Unlock(l) // release immediately from the callback
	}}
	b := &Lock{Ex: true, CB: func(l *Lock) {
		sequence = append(sequence, "b")
	}}
	f.Lock(a)
	f.Lock(b)

	f.Unlock(x)

	if len(sequence) != 2 || sequence[0] != "a" || sequence[1] != "b" {
		t.Errorf("sequence = %v, want [a b]", sequence)
	}
	f.Unlock(b)
}

func TestLockWithDup(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	src := Lock{File: f, CB: func(l *Lock) {}}
	dup := LockWithDup(&src)
	if dup == nil {
		t.Fatal("LockWithDup failed")
	}
	if dup == &src {
		t.Error("LockWithDup returned the source")
	}
	if !dup.OK {
		t.Error("duplicated lock not granted")
	}
	if src.OK {
		t.Error("source lock mutated")
	}
	f.Unlock(dup)
}

func TestLockOnDeadFileRefused(t *testing.T) {
	iso := newTestIso(t)

	drv := &StubDriver{}
	var dead *File
	drv.DeinitFn = func(g *File) { dead = g }
	f, _ := iso.NewFile(FileTemplate{Driver: drv})
	f.Unref()

	l := &Lock{CB: func(l *Lock) {
		t.Error("callback fired for refused lock")
	}}
	if dead.Lock(l) {
		t.Error("Lock accepted on a dead file")
	}
}

func TestLockDefaultTimeoutApplied(t *testing.T) {
	iso := newTestIso(t)
	f := iso.Root()

	holder := &Lock{Ex: true, CB: func(l *Lock) {}}
	f.Lock(holder)

	waiter := &Lock{CB: func(l *Lock) {}}
	f.Lock(waiter)

	if len(iso.timers) == 0 {
		t.Fatal("no timeout scheduled for waiter")
	}
	deadline := iso.timers[0].at
	now := iso.Now()
	if deadline < now+DefaultLockTimeout-100 || deadline > now+DefaultLockTimeout+100 {
		t.Errorf("deadline %d not near default timeout from %d", deadline, now)
	}
}
