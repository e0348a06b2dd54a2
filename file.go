package upd

import "github.com/unparanoid/go-upd/internal/constants"

// FileID is the stable 64-bit handle of a file. Id 0 always names the
// root directory. Ids are never reused within an isolate.
type FileID uint64

// RootFileID is the id of the root directory file.
const RootFileID FileID = constants.RootFileID

// FileTemplate carries the driver-supplied fields of a new file.
type FileTemplate struct {
	Driver  Driver
	Path    string
	NPath   string
	Param   []byte
	Backend *File
}

// File is an addressable node of the isolate. All methods are main
// loop only.
type File struct {
	iso    *Iso
	driver Driver

	path    string
	npath   string
	param   []byte
	backend *File

	id        FileID
	refcnt    uint64
	lastTouch uint64

	// driver-private state and cost hints
	Mimetype string
	Cache    uint64
	Ctx      any

	watches   []*Watch
	syncDepth int
	syncDirty bool

	lockHolders  []*Lock
	lockQueue    []*Lock
	lockDraining bool

	deinited bool
}

// Iso returns the owning isolate.
func (f *File) Iso() *Iso { return f.iso }

// Driver returns the driver controlling the file.
func (f *File) Driver() Driver { return f.driver }

// ID returns the file's registry handle.
func (f *File) ID() FileID { return f.id }

// Path returns the driver-supplied path string.
func (f *File) Path() string { return f.path }

// NPath returns the driver-supplied native path string.
func (f *File) NPath() string { return f.npath }

// Param returns the driver-supplied parameter bytes.
func (f *File) Param() []byte { return f.param }

// Backend returns the file this file is layered over, or nil.
func (f *File) Backend() *File { return f.backend }

// Refcnt returns the current strong reference count.
func (f *File) Refcnt() uint64 { return f.refcnt }

// LastTouch returns the isolate timestamp of the last dispatched
// request.
func (f *File) LastTouch() uint64 { return f.lastTouch }

// NewFile registers a file built from tpl. The driver's Init runs
// before NewFile returns; a failing Init aborts the creation and rolls
// the registry back.
func (iso *Iso) NewFile(tpl FileTemplate) (*File, error) {
	if iso.status == StatusPanic {
		return nil, NewError("NEW_FILE", ErrCodeShutdown, "isolate in panic state")
	}
	if tpl.Driver == nil {
		return nil, NewError("NEW_FILE", ErrCodeInvalidParameters, "missing driver")
	}

	f := &File{
		iso:       iso,
		driver:    tpl.Driver,
		path:      tpl.Path,
		npath:     tpl.NPath,
		param:     tpl.Param,
		backend:   tpl.Backend,
		id:        iso.nextID,
		refcnt:    1,
		lastTouch: iso.Now(),
	}
	iso.files[f.id] = f
	if err := tpl.Driver.Init(f); err != nil {
		delete(iso.files, f.id)
		return nil, &Error{
			Op:     "NEW_FILE",
			FileID: f.id,
			Code:   ErrCodeDriverFailure,
			Msg:    "driver init failed",
			Inner:  err,
		}
	}
	iso.nextID++
	iso.observer.ObserveFile(true)
	return f, nil
}

// Get looks a file up by id. Returns nil when absent.
func (iso *Iso) Get(id FileID) *File {
	return iso.files[id]
}

// Ref increments the strong reference count. A caller that retains a
// file pointer past the current callback must hold a reference.
func (f *File) Ref() {
	f.refcnt++
}

// Unref decrements the strong reference count. When it reaches zero
// the watchers receive DELETE_N, the driver's Deinit runs, remaining
// watchers receive DELETE, and the file leaves the registry. Returns
// true iff the file was actually freed.
func (f *File) Unref() bool {
	if f.refcnt == 0 {
		return false
	}
	f.refcnt--
	if f.refcnt > 0 {
		return false
	}

	f.Trigger(EventDeleteN)
	f.deinited = true
	f.driver.Deinit(f)
	f.Trigger(EventDelete)

	delete(f.iso.files, f.id)
	f.iso.observer.ObserveFile(false)
	return true
}
