package upd

// FileEvent tags an event delivered to watchers. The high nibble is
// the event family.
type FileEvent uint8

const (
	EventDelete   FileEvent = 0x00
	EventUpdate   FileEvent = 0x01
	EventDeleteN  FileEvent = 0x10
	EventUpdateN  FileEvent = 0x11
	EventUncache  FileEvent = 0x20
	EventPreproc  FileEvent = 0x30
	EventPostproc FileEvent = 0x38
	EventAsync    FileEvent = 0x40
	EventTimer    FileEvent = 0x50
	EventShutdown FileEvent = 0xF0
)

func (e FileEvent) String() string {
	switch e {
	case EventDelete:
		return "delete"
	case EventUpdate:
		return "update"
	case EventDeleteN:
		return "delete-n"
	case EventUpdateN:
		return "update-n"
	case EventUncache:
		return "uncache"
	case EventPreproc:
		return "preproc"
	case EventPostproc:
		return "postproc"
	case EventAsync:
		return "async"
	case EventTimer:
		return "timer"
	case EventShutdown:
		return "shutdown"
	}
	return "unknown"
}

// Watch is a subscription to a file's events. Event holds the tag
// being delivered while CB runs.
type Watch struct {
	File *File

	// Filter restricts delivery to the listed events. Nil receives
	// everything.
	Filter []FileEvent

	UData any
	Event FileEvent
	CB    func(w *Watch)

	registered bool
}

func (w *Watch) matches(e FileEvent) bool {
	if w.Filter == nil {
		return true
	}
	for _, f := range w.Filter {
		if f == e {
			return true
		}
	}
	return false
}

// Watch registers w on the file. Events are delivered from the next
// Trigger on; a Trigger already in progress does not see w.
func (f *File) Watch(w *Watch) bool {
	if w.CB == nil {
		return false
	}
	w.File = f
	w.registered = true
	f.watches = append(f.watches, w)
	return true
}

// Unwatch removes w. A delivery in progress skips it from this point.
func (f *File) Unwatch(w *Watch) {
	w.registered = false
	for i, x := range f.watches {
		if x == w {
			f.watches = append(f.watches[:i], f.watches[i+1:]...)
			return
		}
	}
}

// Trigger delivers e to the file's watchers in registration order.
// PREPROC and POSTPROC are dropped unless the driver declares the
// matching flag. UPDATE inside a begin/end-sync window is deferred
// until the window closes.
func (f *File) Trigger(e FileEvent) {
	switch e {
	case EventPreproc:
		if !f.driver.Flags().Preproc {
			return
		}
	case EventPostproc:
		if !f.driver.Flags().Postproc {
			return
		}
	case EventUpdate:
		if f.syncDepth > 0 {
			f.syncDirty = true
			return
		}
	}

	snapshot := append([]*Watch(nil), f.watches...)
	for _, w := range snapshot {
		if !w.registered || !w.matches(e) {
			continue
		}
		w.Event = e
		f.iso.observer.ObserveWatch(e)
		w.CB(w)
	}
}

// BeginSync opens a driver-side batch window. The outermost call
// announces the coming change as UPDATE_N; UPDATE triggers inside the
// window are coalesced until EndSync.
func (f *File) BeginSync() {
	if f.syncDepth == 0 {
		f.Trigger(EventUpdateN)
	}
	f.syncDepth++
}

// EndSync closes a batch window. Closing the outermost window delivers
// the deferred UPDATE, if any was triggered.
func (f *File) EndSync() {
	if f.syncDepth == 0 {
		return
	}
	f.syncDepth--
	if f.syncDepth == 0 && f.syncDirty {
		f.syncDirty = false
		f.Trigger(EventUpdate)
	}
}

// TriggerTimer schedules a TIMER event for the file after dur
// milliseconds. Multiple pending timers all fire; a timer whose file
// is destroyed first is dropped silently. Main loop only.
func (f *File) TriggerTimer(dur uint64) bool {
	iso := f.iso
	id := f.id
	iso.schedule(iso.Now()+dur, func() {
		if g := iso.files[id]; g != nil {
			g.Trigger(EventTimer)
		}
	})
	return true
}
