package memfs

import (
	upd "github.com/unparanoid/go-upd"
	"github.com/unparanoid/go-upd/buf"
)

type pipeCtx struct {
	fifo buf.Buf
}

// Pipe is the in-memory datagram-stream driver: writes append to a
// FIFO and announce an UPDATE, reads drain up to the requested size
// from the head of the FIFO.
type Pipe struct {
	// Max caps the FIFO size in bytes; 0 means unbounded.
	Max int
}

// NewPipe creates the pipe driver.
func NewPipe() *Pipe {
	return &Pipe{}
}

// Name implements the Driver interface
func (*Pipe) Name() string {
	return "pipe"
}

// Categories implements the Driver interface
func (*Pipe) Categories() []upd.Category {
	return []upd.Category{upd.CatDStream}
}

// Flags implements the Driver interface
func (*Pipe) Flags() upd.DriverFlags {
	return upd.DriverFlags{NPoll: true}
}

// Init implements the Driver interface
func (p *Pipe) Init(f *upd.File) error {
	f.Ctx = &pipeCtx{fifo: buf.Buf{Max: p.Max}}
	return nil
}

// Deinit implements the Driver interface
func (*Pipe) Deinit(f *upd.File) {
	f.Ctx.(*pipeCtx).fifo.Clear()
}

// Handle implements the Driver interface
func (*Pipe) Handle(req *upd.Request) bool {
	f := req.File
	ctx := f.Ctx.(*pipeCtx)
	io := &req.Stream.IO

	switch req.Type {
	case upd.DStreamWrite:
		if !ctx.fifo.Append(io.Buf) {
			req.Result = upd.NoMem
			return false
		}
		io.Size = uint64(len(io.Buf))
		req.Result = upd.OK
		req.CB(req)
		f.Trigger(upd.EventUpdate)
		return true

	case upd.DStreamRead:
		if io.Offset != 0 {
			req.Result = upd.Invalid
			return false
		}
		p := ctx.fifo.Bytes()
		n := uint64(len(p))
		if io.Size < n {
			n = io.Size
		}
		out := make([]byte, n)
		copy(out, p[:n])
		ctx.fifo.DropHead(int(n))
		io.Buf = out
		io.Size = n
		io.Tail = ctx.fifo.Size() == 0
		req.Result = upd.OK
		req.CB(req)
		return true

	default:
		req.Result = upd.Invalid
		return false
	}
}

// Compile-time interface check
var _ upd.Driver = (*Pipe)(nil)
