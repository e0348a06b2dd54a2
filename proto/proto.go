// Package proto validates decoded MessagePack objects into command
// messages for the encoder and object interfaces, resolving textual or
// numeric file references into live file handles before the user
// callback runs.
package proto

import (
	"strings"

	upd "github.com/unparanoid/go-upd"
	"github.com/unparanoid/go-upd/internal/constants"
	"github.com/unparanoid/go-upd/msgpack"
)

// HoldMax is the number of resolved files a message keeps alive until
// its callback returns.
const HoldMax = constants.ProtoHoldMax

// Iface selects a protocol interface. Parse treats the value as a
// mask of allowed interfaces.
type Iface uint16

const (
	Encoder Iface = 0x0001
	Object  Iface = 0x0002
)

// Cmd enumerates the commands of all interfaces.
type Cmd int

const (
	EncoderInfo Cmd = iota
	EncoderInit
	EncoderFrame
	EncoderFinalize

	ObjectLock
	ObjectLockEx
	ObjectUnlock
	ObjectGet
	ObjectSet
)

var encoderCmds = map[string]Cmd{
	"info":     EncoderInfo,
	"init":     EncoderInit,
	"frame":    EncoderFrame,
	"finalize": EncoderFinalize,
}

var objectCmds = map[string]Cmd{
	"lock":   ObjectLock,
	"lockex": ObjectLockEx,
	"unlock": ObjectUnlock,
	"get":    ObjectGet,
	"set":    ObjectSet,
}

// Msg is a validated command. Msg itself holds no file references;
// the owning Parse does, until its callback returns.
type Msg struct {
	Iface Iface
	Cmd   Cmd
	Param map[string]any

	EncoderFrame struct {
		File *upd.File
	}
	Object struct {
		Path  []any
		Value any
	}
}

// Parse validates one inbound object against the allowed interface
// mask. The callback fires exactly once, after every sub-request has
// completed; Err is nil-equivalent ("") on success.
type Parse struct {
	Iso *upd.Iso

	// Src is the decoded inbound object.
	Src any

	// Iface masks the interfaces this endpoint accepts.
	Iface Iface

	Msg Msg
	Err string

	UData any
	CB    func(par *Parse)

	refcnt int
	hold   [HoldMax]*upd.File
}

// Run starts the validation. Sub-requests (pathfind for textual file
// references) may keep the parse alive past Run's return.
func Run(par *Parse) {
	par.refcnt++

	msg := &par.Msg

	root, ok := par.Src.(map[string]any)
	if !ok {
		par.Err = "root must be a map"
		par.unref()
		return
	}

	var iface, cmd string
	var param map[string]any
	invalid := msgpack.FindFields(root, []msgpack.Field{
		{Name: "interface", Required: true, Str: &iface},
		{Name: "command", Required: true, Str: &cmd},
		{Name: "param", Map: &param},
	})
	if invalid != "" {
		par.Err = "invalid msg"
		par.unref()
		return
	}
	msg.Param = param

	switch {
	case par.Iface&Encoder != 0 && strings.EqualFold(iface, "encoder"):
		msg.Iface = Encoder
		c, ok := encoderCmds[cmd]
		if !ok {
			par.Err = "unknown command"
			break
		}
		msg.Cmd = c
		par.parseEncoder()

	case par.Iface&Object != 0 && strings.EqualFold(iface, "object"):
		msg.Iface = Object
		c, ok := objectCmds[cmd]
		if !ok {
			par.Err = "unknown command"
			break
		}
		msg.Cmd = c
		par.parseObject()

	default:
		par.Err = "unknown interface"
	}

	par.unref()
}

// RunDup copies src, starts the copy and returns it, so the parse
// state survives the caller's frame.
func RunDup(src *Parse) *Parse {
	par := new(Parse)
	*par = *src
	Run(par)
	return par
}

// holdFile records f in a hold slot and takes a reference released
// after the callback.
func (par *Parse) holdFile(f *upd.File) {
	for i := range par.hold {
		if par.hold[i] == nil {
			par.hold[i] = f
			f.Ref()
			return
		}
	}
	panic("proto: hold slots exhausted")
}

func (par *Parse) unref() {
	par.refcnt--
	if par.refcnt > 0 {
		return
	}

	hold := par.hold

	par.CB(par)

	for _, f := range hold {
		if f != nil {
			f.Unref()
		}
	}
}

func (par *Parse) parseEncoder() {
	msg := &par.Msg

	switch msg.Cmd {
	case EncoderInfo, EncoderInit, EncoderFinalize:

	case EncoderFrame:
		if msg.Param == nil {
			par.Err = "invalid param"
			return
		}

		var fileID uint64
		var filePath string
		invalid := msgpack.FindFields(msg.Param, []msgpack.Field{
			{Name: "file", Required: true, Uint: &fileID, Str: &filePath},
		})
		if invalid != "" {
			par.Err = "invalid param"
			return
		}

		if filePath != "" {
			par.refcnt++
			upd.FindPathDup(&upd.Pathfind{
				Iso:   par.Iso,
				Path:  filePath,
				UData: par,
				CB:    encoderFramePathfindCB,
			})
			return
		}

		target := par.Iso.Get(upd.FileID(fileID))
		if target == nil {
			par.Err = "file not found"
			return
		}
		msg.EncoderFrame.File = target
		par.holdFile(target)
	}
}

func encoderFramePathfindCB(pf *upd.Pathfind) {
	par := pf.UData.(*Parse)

	var target *upd.File
	if len(pf.Path) == 0 {
		target = pf.Base
	}

	if target == nil {
		par.Err = "file not found"
	} else {
		par.Msg.EncoderFrame.File = target
		par.holdFile(target)
	}
	par.unref()
}

func (par *Parse) parseObject() {
	msg := &par.Msg

	switch msg.Cmd {
	case ObjectLock, ObjectLockEx, ObjectUnlock:

	case ObjectGet, ObjectSet:
		if msg.Param == nil {
			return
		}
		var path []any
		var value any
		invalid := msgpack.FindFields(msg.Param, []msgpack.Field{
			{Name: "path", Array: &path},
			{Name: "value", Any: &value},
		})
		if invalid != "" {
			par.Err = "invalid param"
			return
		}
		msg.Object.Path = path
		msg.Object.Value = value
	}
}
