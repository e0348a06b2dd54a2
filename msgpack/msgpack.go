// Package msgpack turns byte streams into structured MessagePack
// objects and back, on top of the vmihailenco codec. A Context pairs a
// streaming unpacker with a packer; Recv pumps a dstream file into
// decoded objects.
package msgpack

import (
	"bytes"
	"errors"
	"io"

	mp "github.com/vmihailenco/msgpack/v5"

	upd "github.com/unparanoid/go-upd"
	"github.com/unparanoid/go-upd/buf"
	"github.com/unparanoid/go-upd/internal/constants"
)

// Context is a MessagePack framing endpoint: inbound bytes accumulate
// until whole objects can be decoded into an in-order queue, outbound
// objects serialise into a draining byte buffer.
type Context struct {
	// MaxMem caps the bytes buffered on the inbound side; 0 applies
	// the default ceiling.
	MaxMem int

	// Backlog caps the decoded-object queue; 0 means unlimited.
	Backlog int

	// In and Out flag which directions are currently open.
	In  bool
	Out bool

	// Busy is set by the consumer while it processes popped objects;
	// CB is only invoked while it is clear.
	Busy bool

	UData any
	CB    func(c *Context)

	in     buf.Buf
	queue  []any
	out    buf.Buf
	broken bool
}

// Broken reports whether the inbound stream hit a parse error. A
// broken context refuses all further operations and must be torn down.
func (c *Context) Broken() bool {
	return c.broken
}

func (c *Context) maxMem() int {
	if c.MaxMem > 0 {
		return c.MaxMem
	}
	return constants.DefaultMsgpackMem
}

// Unpack feeds raw bytes to the unpacker and decodes every completed
// object into the queue. It returns false without consuming anything
// when the context is broken, the memory ceiling would be exceeded, or
// the backlog is full.
func (c *Context) Unpack(p []byte) bool {
	if c.broken {
		return false
	}
	if c.in.Size()+len(p) > c.maxMem() {
		return false
	}
	if c.Backlog > 0 && len(c.queue) >= c.Backlog {
		return false
	}
	c.in.Append(p)
	c.decode()
	if c.broken {
		return false
	}
	if c.CB != nil && !c.Busy && len(c.queue) > 0 {
		c.CB(c)
	}
	return true
}

func (c *Context) decode() {
	for {
		raw := c.in.Bytes()
		if len(raw) == 0 {
			return
		}
		r := bytes.NewReader(raw)
		dec := mp.NewDecoder(r)
		dec.SetMapDecoder(func(d *mp.Decoder) (any, error) {
			return d.DecodeUntypedMap()
		})
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return // whole object not buffered yet
			}
			c.broken = true
			return
		}
		c.in.DropHead(len(raw) - r.Len())
		c.queue = append(c.queue, normalize(v))
	}
}

// Pending returns the number of decoded objects waiting to be popped.
func (c *Context) Pending() int {
	return len(c.queue)
}

// Pop removes and returns the oldest decoded object, transferring its
// ownership to the caller. ok is false when the queue is empty.
func (c *Context) Pop() (v any, ok bool) {
	if len(c.queue) == 0 {
		return nil, false
	}
	v = c.queue[0]
	c.queue = c.queue[1:]
	return v, true
}

// Pack serialises v onto the outbound buffer.
func (c *Context) Pack(v any) error {
	return mp.NewEncoder(&c.out).Encode(v)
}

// OutSize returns the number of serialised bytes not yet taken.
func (c *Context) OutSize() int {
	return c.out.Size()
}

// TakeOut drains the outbound buffer and hands it to the caller.
func (c *Context) TakeOut() []byte {
	return c.out.Take()
}

// HandleStream lets a driver delegate DSTREAM requests to the context:
// writes feed the unpacker, reads drain the packer. The return value
// and result codes follow the driver Handle contract.
func (c *Context) HandleStream(req *upd.Request) bool {
	io := &req.Stream.IO

	switch req.Type {
	case upd.DStreamWrite:
		if c.broken {
			req.Result = upd.Aborted
			return false
		}
		if !c.Unpack(io.Buf) {
			if c.broken {
				req.Result = upd.Aborted
			} else {
				req.Result = upd.NoMem
			}
			return false
		}
		req.Result = upd.OK
		req.CB(req)
		return true

	case upd.DStreamRead:
		if c.broken {
			req.Result = upd.Aborted
			return false
		}
		if io.Offset != 0 {
			req.Result = upd.Invalid
			return false
		}
		io.Buf = c.TakeOut()
		io.Size = uint64(len(io.Buf))
		io.Tail = true
		req.Result = upd.OK
		req.CB(req)
		return true

	default:
		req.Result = upd.Invalid
		return false
	}
}

// normalize rewrites decoded aggregates so that lookups always see
// map[string]any and []any, and text always arrives as string.
func normalize(v any) any {
	switch x := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			ks, ok := k.(string)
			if !ok {
				continue // non-string keys are unreachable by field lookup
			}
			m[ks] = normalize(val)
		}
		return m
	case map[string]any:
		for k, val := range x {
			x[k] = normalize(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = normalize(val)
		}
		return x
	default:
		return v
	}
}
