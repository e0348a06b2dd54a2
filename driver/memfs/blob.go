package memfs

import (
	upd "github.com/unparanoid/go-upd"
)

type blobCtx struct {
	data []byte
}

// Blob is the in-memory byte-stream driver.
type Blob struct{}

// NewBlob creates the blob driver.
func NewBlob() *Blob {
	return &Blob{}
}

// Name implements the Driver interface
func (*Blob) Name() string {
	return "blob"
}

// Categories implements the Driver interface
func (*Blob) Categories() []upd.Category {
	return []upd.Category{upd.CatStream}
}

// Flags implements the Driver interface
func (*Blob) Flags() upd.DriverFlags {
	return upd.DriverFlags{}
}

// Init implements the Driver interface
func (*Blob) Init(f *upd.File) error {
	f.Ctx = &blobCtx{}
	f.Mimetype = "application/octet-stream"
	return nil
}

// Deinit implements the Driver interface
func (*Blob) Deinit(f *upd.File) {
	f.Ctx.(*blobCtx).data = nil
}

// Handle implements the Driver interface
func (*Blob) Handle(req *upd.Request) bool {
	f := req.File
	ctx := f.Ctx.(*blobCtx)
	io := &req.Stream.IO

	switch req.Type {
	case upd.StreamRead:
		if io.Offset > uint64(len(ctx.data)) {
			req.Result = upd.Invalid
			return false
		}
		rest := ctx.data[io.Offset:]
		n := uint64(len(rest))
		if io.Size < n {
			n = io.Size
		}
		io.Buf = rest[:n]
		io.Size = n
		io.Tail = io.Offset+n == uint64(len(ctx.data))
		req.Result = upd.OK
		req.CB(req)
		return true

	case upd.StreamWrite:
		end := io.Offset + uint64(len(io.Buf))
		if end > uint64(len(ctx.data)) {
			grown := make([]byte, end)
			copy(grown, ctx.data)
			ctx.data = grown
		}
		copy(ctx.data[io.Offset:end], io.Buf)
		io.Size = uint64(len(io.Buf))
		f.Cache = uint64(len(ctx.data))
		f.Trigger(upd.EventUpdate)
		req.Result = upd.OK
		req.CB(req)
		return true

	case upd.StreamTruncate:
		n := io.Size
		if n > uint64(len(ctx.data)) {
			grown := make([]byte, n)
			copy(grown, ctx.data)
			ctx.data = grown
		} else {
			ctx.data = ctx.data[:n]
		}
		f.Cache = uint64(len(ctx.data))
		f.Trigger(upd.EventUpdate)
		req.Result = upd.OK
		req.CB(req)
		return true

	default:
		req.Result = upd.Invalid
		return false
	}
}

// Compile-time interface check
var _ upd.Driver = (*Blob)(nil)
