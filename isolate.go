// Package upd implements a single-process virtual-filesystem runtime in
// which every addressable entity is a file handled by a driver and
// every operation is a request completed through a callback.
//
// All file, lock, watch, request and pathfind operations belong to the
// isolate's main loop goroutine (the one running Iso.Run). Worker
// goroutines started with StartThread or StartWork must not touch files
// and communicate back through TriggerAsync, Post, or the StartWork
// completion callback.
package upd

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/unparanoid/go-upd/internal/logging"
)

// Status describes the isolate lifecycle.
type Status int32

const (
	StatusPanic    Status = -1
	StatusRunning  Status = 0
	StatusShutdown Status = 1
	StatusReboot   Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPanic:
		return "panic"
	case StatusRunning:
		return "running"
	case StatusShutdown:
		return "shutdown"
	case StatusReboot:
		return "reboot"
	}
	return "unknown"
}

// Options configures a new isolate.
type Options struct {
	// RootDriver handles the root directory file (id 0). Required.
	RootDriver Driver

	// Observer receives runtime measurements. Defaults to an observer
	// recording into the isolate's Metrics.
	Observer Observer

	// MsgSink routes diagnostic strings emitted by the core and by
	// drivers. Defaults to the logging package.
	MsgSink func(msg string)
}

// Iso is a process-local runtime instance owning the file registry and
// the main loop.
type Iso struct {
	start time.Time

	status  Status
	files   map[FileID]*File
	nextID  FileID
	root    *File
	drivers map[string]Driver
	scratch scratch

	metrics  *Metrics
	observer Observer
	msgSink  func(string)

	timers   timerHeap
	timerSeq uint64

	mu    sync.Mutex
	posts []func()
	wake  chan struct{}
}

// New creates an isolate in the RUNNING state with its root directory
// already registered under id 0.
func New(opts Options) (*Iso, error) {
	if opts.RootDriver == nil {
		return nil, NewError("NEW_ISO", ErrCodeInvalidParameters, "missing root driver")
	}

	iso := &Iso{
		start:   time.Now(),
		files:   make(map[FileID]*File),
		drivers: make(map[string]Driver),
		metrics: NewMetrics(),
		msgSink: opts.MsgSink,
		wake:    make(chan struct{}, 1),
	}
	if opts.Observer != nil {
		iso.observer = opts.Observer
	} else {
		iso.observer = NewMetricsObserver(iso.metrics)
	}

	root, err := iso.NewFile(FileTemplate{Driver: opts.RootDriver, Path: "/"})
	if err != nil {
		return nil, WrapError("NEW_ISO", err)
	}
	iso.root = root
	return iso, nil
}

// Status returns the current lifecycle state.
func (iso *Iso) Status() Status {
	return iso.status
}

// Root returns the root directory file.
func (iso *Iso) Root() *File {
	return iso.root
}

// Metrics returns the isolate's built-in metrics.
func (iso *Iso) Metrics() *Metrics {
	return iso.metrics
}

// Now returns milliseconds of monotonic time since the isolate was
// created.
func (iso *Iso) Now() uint64 {
	return uint64(time.Since(iso.start) / time.Millisecond)
}

// Msg emits a diagnostic string. The core never logs by itself; the
// host routes these through the configured sink.
func (iso *Iso) Msg(msg string) {
	if iso.msgSink != nil {
		iso.msgSink(msg)
		return
	}
	logging.Default().Printf("%s", msg)
}

// Msgf emits a formatted diagnostic string.
func (iso *Iso) Msgf(format string, args ...any) {
	iso.Msg(fmt.Sprintf(format, args...))
}

// Exit requests the loop to stop with the given terminal status. Main
// loop only; PANIC is terminal and cannot be overridden.
func (iso *Iso) Exit(status Status) {
	if iso.status == StatusPanic {
		return
	}
	iso.status = status
	iso.kick()
}

// Post enqueues fn for execution on the main loop. Safe from any
// goroutine.
func (iso *Iso) Post(fn func()) {
	iso.mu.Lock()
	iso.posts = append(iso.posts, fn)
	iso.mu.Unlock()
	iso.kick()
}

func (iso *Iso) kick() {
	select {
	case iso.wake <- struct{}{}:
	default:
	}
}

// StartThread spawns a fire-and-forget worker. The worker must not
// touch files; it reports back through TriggerAsync or Post.
func (iso *Iso) StartThread(fn func()) bool {
	if fn == nil {
		return false
	}
	go fn()
	return true
}

// StartWork runs fn on a worker goroutine and cb on the main loop after
// fn returns.
func (iso *Iso) StartWork(fn func(), cb func()) bool {
	if fn == nil || cb == nil {
		return false
	}
	go func() {
		fn()
		iso.Post(cb)
	}()
	return true
}

// TriggerAsync schedules delivery of an ASYNC event to the identified
// file on the main loop. Safe from any goroutine. If the file is
// destroyed before delivery the event is dropped silently.
func (iso *Iso) TriggerAsync(id FileID) bool {
	iso.Post(func() {
		if f := iso.files[id]; f != nil {
			f.Trigger(EventAsync)
		}
	})
	return true
}

// Run drives the main loop until Exit is called and returns the
// terminal status. On the way out every live file receives a SHUTDOWN
// event and the core's root reference is dropped.
func (iso *Iso) Run() Status {
	for {
		if iso.drainPosts() {
			continue
		}
		if iso.fireTimers() {
			continue
		}
		if iso.status != StatusRunning {
			break
		}
		iso.sleep()
	}
	iso.teardown()
	return iso.status
}

// Step runs pending posts and due timers until none remain, without
// blocking.
// Intended for hosts that embed the loop in their own scheduler, and
// for tests.
func (iso *Iso) Step() {
	for iso.drainPosts() || iso.fireTimers() {
	}
}

func (iso *Iso) drainPosts() bool {
	iso.mu.Lock()
	q := iso.posts
	iso.posts = nil
	iso.mu.Unlock()
	if len(q) == 0 {
		return false
	}
	for _, fn := range q {
		fn()
	}
	return true
}

func (iso *Iso) sleep() {
	if at, ok := iso.nextDeadline(); ok {
		now := iso.Now()
		var d time.Duration
		if at > now {
			d = time.Duration(at-now) * time.Millisecond
		}
		t := time.NewTimer(d)
		select {
		case <-iso.wake:
			t.Stop()
		case <-t.C:
		}
		return
	}
	<-iso.wake
}

func (iso *Iso) teardown() {
	order := make([]*File, 0, len(iso.files))
	for _, f := range iso.files {
		order = append(order, f)
	}
	for _, f := range order {
		f.Trigger(EventShutdown)
	}
	if iso.root != nil {
		iso.root.Unref()
		iso.root = nil
	}
}

// ---- deadline heap ----

type timerEntry struct {
	at       uint64
	seq      uint64
	fn       func()
	canceled bool
}

func (e *timerEntry) cancel() {
	e.canceled = true
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// schedule arms fn to run on the loop once Now() >= at. Main loop only.
func (iso *Iso) schedule(at uint64, fn func()) *timerEntry {
	iso.timerSeq++
	e := &timerEntry{at: at, seq: iso.timerSeq, fn: fn}
	heap.Push(&iso.timers, e)
	iso.kick()
	return e
}

func (iso *Iso) nextDeadline() (uint64, bool) {
	for len(iso.timers) > 0 && iso.timers[0].canceled {
		heap.Pop(&iso.timers)
	}
	if len(iso.timers) == 0 {
		return 0, false
	}
	return iso.timers[0].at, true
}

func (iso *Iso) fireTimers() bool {
	now := iso.Now()
	fired := false
	for len(iso.timers) > 0 {
		head := iso.timers[0]
		if head.canceled {
			heap.Pop(&iso.timers)
			continue
		}
		if head.at > now {
			break
		}
		heap.Pop(&iso.timers)
		head.fn()
		fired = true
	}
	return fired
}
