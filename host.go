package upd

import "github.com/unparanoid/go-upd/internal/constants"

// Host ABI version, encoded as (major << 16) | minor.
const (
	VerMajor = constants.VerMajor
	VerMinor = constants.VerMinor
	Ver      = VerMajor<<16 | VerMinor
)

// Host is the versioned function table handed to plug-in drivers. It
// exposes every isolate, driver-lookup and file primitive, so a plug-in
// built against a compatible version never touches runtime internals
// directly.
type Host struct {
	Ver uint32

	Iso struct {
		Stack       func(iso *Iso, n int) []byte
		Unstack     func(iso *Iso, p []byte)
		Now         func(iso *Iso) uint64
		Msg         func(iso *Iso, msg string)
		StartThread func(iso *Iso, fn func()) bool
		StartWork   func(iso *Iso, fn func(), cb func()) bool
	}

	Driver struct {
		Lookup func(iso *Iso, name string) Driver
	}

	File struct {
		New          func(iso *Iso, tpl FileTemplate) (*File, error)
		Get          func(iso *Iso, id FileID) *File
		Ref          func(f *File)
		Unref        func(f *File) bool
		Watch        func(f *File, w *Watch) bool
		Unwatch      func(f *File, w *Watch)
		Trigger      func(f *File, e FileEvent)
		TriggerAsync func(iso *Iso, id FileID) bool
		TriggerTimer func(f *File, dur uint64) bool
		BeginSync    func(f *File)
		EndSync      func(f *File)
		Lock         func(f *File, l *Lock) bool
		Unlock       func(f *File, l *Lock)
	}
}

// External is the single value a plug-in exports: its build version,
// the host table it was linked against, and the drivers it provides.
type External struct {
	Ver     uint32
	Host    *Host
	Drivers []Driver
}

// NewHost builds the host table of this runtime.
func NewHost() *Host {
	h := &Host{Ver: Ver}

	h.Iso.Stack = (*Iso).Stack
	h.Iso.Unstack = (*Iso).Unstack
	h.Iso.Now = (*Iso).Now
	h.Iso.Msg = (*Iso).Msg
	h.Iso.StartThread = (*Iso).StartThread
	h.Iso.StartWork = (*Iso).StartWork

	h.Driver.Lookup = (*Iso).DriverLookup

	h.File.New = (*Iso).NewFile
	h.File.Get = (*Iso).Get
	h.File.Ref = (*File).Ref
	h.File.Unref = (*File).Unref
	h.File.Watch = (*File).Watch
	h.File.Unwatch = (*File).Unwatch
	h.File.Trigger = (*File).Trigger
	h.File.TriggerAsync = (*Iso).TriggerAsync
	h.File.TriggerTimer = (*File).TriggerTimer
	h.File.BeginSync = (*File).BeginSync
	h.File.EndSync = (*File).EndSync
	h.File.Lock = (*File).Lock
	h.File.Unlock = (*File).Unlock

	return h
}

// Compatible reports whether a plug-in built against ver can run on
// this host: same major, equal-or-lower minor.
func (h *Host) Compatible(ver uint32) bool {
	if ver>>16 != h.Ver>>16 {
		return false
	}
	return ver&0xFFFF <= h.Ver&0xFFFF
}
