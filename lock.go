package upd

import "github.com/unparanoid/go-upd/internal/constants"

// DefaultLockTimeout is applied when a lock request carries
// Timeout == 0, in milliseconds.
const DefaultLockTimeout = constants.DefaultLockTimeout

// Lock is a cooperative shared/exclusive lock request against a file.
// It completes exactly once: the callback fires with OK true when the
// lock is granted, or with OK false when the wait times out. A holder
// whose callback saw OK true must eventually call File.Unlock.
type Lock struct {
	File *File

	// Ex requests exclusive ownership.
	Ex bool

	// Basetime is the isolate timestamp the wait is measured from;
	// 0 means now.
	Basetime uint64

	// Timeout is the wait budget in milliseconds; 0 means
	// DefaultLockTimeout.
	Timeout uint64

	UData any
	OK    bool
	CB    func(l *Lock)

	timer  *timerEntry
	queued bool
	held   bool
}

// Lock submits l against the file. Grants are strict FIFO: an
// exclusive waiter blocks all shared requests that arrive after it.
// When the queue is empty and l is compatible with the current holders
// it is granted synchronously, meaning the callback runs on the
// caller's stack before Lock returns. Returns false when the request
// cannot be accepted at all; the callback never fires in that case.
func (f *File) Lock(l *Lock) bool {
	if l.CB == nil || f.deinited {
		return false
	}
	l.File = f

	if len(f.lockQueue) == 0 && f.lockCompatible(l.Ex) {
		f.lockGrant(l)
		return true
	}

	base := l.Basetime
	if base == 0 {
		base = f.iso.Now()
	}
	timeout := l.Timeout
	if timeout == 0 {
		timeout = DefaultLockTimeout
	}

	l.queued = true
	f.lockQueue = append(f.lockQueue, l)
	l.timer = f.iso.schedule(base+timeout, func() {
		f.lockTimeout(l)
	})
	return true
}

// Unlock releases a granted lock and grants as many queued requests as
// the new state allows, in FIFO order.
func (f *File) Unlock(l *Lock) {
	if !l.held {
		return
	}
	l.held = false
	for i, h := range f.lockHolders {
		if h == l {
			f.lockHolders = append(f.lockHolders[:i], f.lockHolders[i+1:]...)
			break
		}
	}
	f.lockDrain()
}

// LockWithDup copies src, submits the copy and returns it, or nil when
// the request was refused. The copy survives the caller's frame until
// its callback has run.
func LockWithDup(src *Lock) *Lock {
	dst := new(Lock)
	*dst = *src
	dst.timer = nil
	dst.queued = false
	dst.held = false
	if !src.File.Lock(dst) {
		return nil
	}
	return dst
}

func (f *File) lockCompatible(ex bool) bool {
	if ex {
		return len(f.lockHolders) == 0
	}
	for _, h := range f.lockHolders {
		if h.Ex {
			return false
		}
	}
	return true
}

func (f *File) lockGrant(l *Lock) {
	if l.timer != nil {
		l.timer.cancel()
		l.timer = nil
	}
	l.queued = false
	l.held = true
	l.OK = true
	f.lockHolders = append(f.lockHolders, l)
	f.iso.observer.ObserveLock(true)
	l.CB(l)
}

func (f *File) lockTimeout(l *Lock) {
	if !l.queued {
		return
	}
	l.queued = false
	l.timer = nil
	for i, q := range f.lockQueue {
		if q == l {
			f.lockQueue = append(f.lockQueue[:i], f.lockQueue[i+1:]...)
			break
		}
	}
	l.OK = false
	f.iso.observer.ObserveLock(false)
	l.CB(l)
}

// lockDrain grants from the queue head while the state allows it.
// Callbacks may re-enter Lock/Unlock on any file; a recursive drain on
// this file is a no-op and the outer loop re-evaluates the queue after
// every callback.
func (f *File) lockDrain() {
	if f.lockDraining {
		return
	}
	f.lockDraining = true
	defer func() { f.lockDraining = false }()

	for len(f.lockQueue) > 0 {
		head := f.lockQueue[0]
		if !f.lockCompatible(head.Ex) {
			break
		}
		f.lockQueue = f.lockQueue[1:]
		f.lockGrant(head)
	}
}
