package msgpack

import (
	upd "github.com/unparanoid/go-upd"
)

// Recv pumps a dstream file into decoded MessagePack objects: it
// watches the file, issues a DSTREAM_READ whenever the file announces
// an update, and invokes the callback once per completed object with
// Obj set and OK true. A read or parse failure invokes the callback
// with OK false.
type Recv struct {
	File *upd.File

	Obj any
	OK  bool

	UData any
	CB    func(r *Recv)

	watch upd.Watch
	req   upd.Request
	ctx   Context

	busy    bool
	reading bool
	pending bool
}

// Init hooks the receiver onto its file and takes a reference that
// Deinit releases.
func (r *Recv) Init() bool {
	if r.File == nil || r.CB == nil {
		return false
	}
	r.watch = upd.Watch{
		UData: r,
		CB:    recvWatchCB,
	}
	if !r.File.Watch(&r.watch) {
		return false
	}
	r.File.Ref()
	return true
}

// Deinit detaches the receiver. Must not be called while a read is in
// flight.
func (r *Recv) Deinit() {
	r.File.Unwatch(&r.watch)
	r.File.Unref()
}

// Next issues the next read. Normally driven by the watch; callers use
// it to poll a file that already has buffered data.
func (r *Recv) Next() {
	r.req = upd.Request{
		File:  r.File,
		Type:  upd.DStreamRead,
		UData: r,
		CB:    recvReadCB,
	}
	r.req.Stream.IO = upd.StreamIO{Size: ^uint64(0)}
	r.busy = true
	r.reading = true
	r.pending = false
	if !upd.Dispatch(&r.req) {
		r.reading = false
		r.OK = false
		r.CB(r)
	}
}

func recvWatchCB(w *upd.Watch) {
	r := w.UData.(*Recv)

	switch w.Event {
	case upd.EventUpdate:
		if r.busy {
			r.pending = true
		} else {
			r.Next()
		}
	}
}

func recvReadCB(req *upd.Request) {
	r := req.UData.(*Recv)
	r.reading = false

	if req.Result != upd.OK {
		r.OK = false
		r.CB(r)
		return
	}

	io := &req.Stream.IO
	if !r.ctx.Unpack(io.Buf[:io.Size]) {
		r.OK = false
		r.CB(r)
		return
	}

	for {
		obj, ok := r.ctx.Pop()
		if !ok {
			break
		}
		r.OK = true
		r.Obj = obj
		r.CB(r)
	}

	if r.pending {
		r.Next()
		return
	}
	r.busy = false
}
