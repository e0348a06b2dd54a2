// Package memfs provides in-memory drivers: a directory driver backing
// the file graph, a blob driver for byte streams, and a pipe driver
// for datagram streams.
package memfs

import (
	upd "github.com/unparanoid/go-upd"
	"github.com/unparanoid/go-upd/pathutil"
)

type dirCtx struct {
	entries []*upd.DirEntry
}

// Dir is the in-memory directory driver. Children are held with one
// strong reference each for as long as they stay linked.
type Dir struct{}

// NewDir creates the directory driver.
func NewDir() *Dir {
	return &Dir{}
}

// Name implements the Driver interface
func (*Dir) Name() string {
	return "memdir"
}

// Categories implements the Driver interface
func (*Dir) Categories() []upd.Category {
	return []upd.Category{upd.CatDir}
}

// Flags implements the Driver interface
func (*Dir) Flags() upd.DriverFlags {
	return upd.DriverFlags{}
}

// Init implements the Driver interface
func (*Dir) Init(f *upd.File) error {
	f.Ctx = &dirCtx{}
	f.Mimetype = "inode/directory"
	return nil
}

// Deinit implements the Driver interface
func (*Dir) Deinit(f *upd.File) {
	ctx := f.Ctx.(*dirCtx)
	for _, e := range ctx.entries {
		e.File.Unref()
	}
	ctx.entries = nil
}

// Handle implements the Driver interface
func (d *Dir) Handle(req *upd.Request) bool {
	f := req.File
	ctx := f.Ctx.(*dirCtx)

	switch req.Type {
	case upd.DirList:
		req.Dir.Entries = append([]*upd.DirEntry(nil), ctx.entries...)
		req.Result = upd.OK
		req.CB(req)
		return true

	case upd.DirFind:
		req.Dir.Entry.File = nil
		for _, e := range ctx.entries {
			if e.Name == req.Dir.Entry.Name {
				req.Dir.Entry.File = e.File
				break
			}
		}
		req.Result = upd.OK
		req.CB(req)
		return true

	case upd.DirAdd:
		return d.add(req, ctx, req.Dir.Entry.File)

	case upd.DirNew:
		child, err := f.Iso().NewFile(upd.FileTemplate{
			Driver: NewBlob(),
			Path:   childPath(f, req.Dir.Entry.Name),
		})
		if err != nil {
			req.Result = upd.NoMem
			return false
		}
		ok := d.add(req, ctx, child)
		child.Unref() // the directory entry holds the surviving ref
		return ok

	case upd.DirNewDir:
		child, err := f.Iso().NewFile(upd.FileTemplate{
			Driver: d,
			Path:   childPath(f, req.Dir.Entry.Name),
		})
		if err != nil {
			req.Result = upd.NoMem
			return false
		}
		ok := d.add(req, ctx, child)
		child.Unref()
		return ok

	case upd.DirRm:
		name := req.Dir.Entry.Name
		for i, e := range ctx.entries {
			if e.Name != name {
				continue
			}
			f.BeginSync()
			ctx.entries = append(ctx.entries[:i], ctx.entries[i+1:]...)
			f.Trigger(upd.EventUpdate)
			f.EndSync()
			req.Dir.Entry.File = e.File
			e.File.Unref()
			req.Result = upd.OK
			req.CB(req)
			return true
		}
		req.Result = upd.Invalid
		return false

	default:
		req.Result = upd.Invalid
		return false
	}
}

// add links child under the requested name. The entry takes its own
// reference on the child.
func (d *Dir) add(req *upd.Request, ctx *dirCtx, child *upd.File) bool {
	f := req.File
	name := req.Dir.Entry.Name

	if child == nil || !pathutil.ValidateName(name) {
		req.Result = upd.Invalid
		return false
	}
	for _, e := range ctx.entries {
		if e.Name == name {
			req.Result = upd.Invalid
			return false
		}
	}

	child.Ref()
	f.BeginSync()
	ctx.entries = append(ctx.entries, &upd.DirEntry{Name: name, File: child})
	f.Trigger(upd.EventUpdate)
	f.EndSync()

	req.Dir.Entry.File = child
	req.Result = upd.OK
	req.CB(req)
	return true
}

func childPath(parent *upd.File, name string) string {
	p := pathutil.DropTrailingSlash(parent.Path())
	return p + "/" + name
}

// Compile-time interface check
var _ upd.Driver = (*Dir)(nil)
