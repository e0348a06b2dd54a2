package upd

// Category groups request types by the payload they carry.
type Category uint16

const (
	CatDir     Category = 0x0001
	CatStream  Category = 0x0002
	CatProg    Category = 0x0003
	CatDStream Category = 0x0004
	CatTensor  Category = 0x0005
)

// ReqType identifies a single operation. The numeric form is
// (category << 16) | op and matches the wire encoding seen by external
// drivers.
type ReqType uint32

const (
	DirList   ReqType = ReqType(CatDir)<<16 | 0x0010
	DirFind   ReqType = ReqType(CatDir)<<16 | 0x0020
	DirAdd    ReqType = ReqType(CatDir)<<16 | 0x0030
	DirNew    ReqType = ReqType(CatDir)<<16 | 0x0038
	DirNewDir ReqType = ReqType(CatDir)<<16 | 0x0039
	DirRm     ReqType = ReqType(CatDir)<<16 | 0x0040

	StreamRead     ReqType = ReqType(CatStream)<<16 | 0x0010
	StreamWrite    ReqType = ReqType(CatStream)<<16 | 0x0020
	StreamTruncate ReqType = ReqType(CatStream)<<16 | 0x0030

	ProgExec ReqType = ReqType(CatProg)<<16 | 0x0010

	DStreamRead  ReqType = ReqType(CatDStream)<<16 | 0x0010
	DStreamWrite ReqType = ReqType(CatDStream)<<16 | 0x0020

	TensorMetaReq ReqType = ReqType(CatTensor)<<16 | 0x0010
	TensorFetch   ReqType = ReqType(CatTensor)<<16 | 0x0020
	TensorFlush   ReqType = ReqType(CatTensor)<<16 | 0x0028
)

// Cat returns the category half of the type code.
func (t ReqType) Cat() Category {
	return Category(t >> 16)
}

// Op returns the operation half of the type code.
func (t ReqType) Op() uint16 {
	return uint16(t)
}

// Result reports the outcome of a request.
type Result uint8

const (
	OK      Result = 0x00
	NoMem   Result = 0x01
	Aborted Result = 0x02
	Invalid Result = 0x03
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case NoMem:
		return "nomem"
	case Aborted:
		return "aborted"
	case Invalid:
		return "invalid"
	}
	return "unknown"
}

// DirEntry names one child of a directory file.
type DirEntry struct {
	Name string
	File *File
}

// StreamIO is the payload window of a stream read/write/truncate.
type StreamIO struct {
	Offset uint64
	Size   uint64
	Buf    []byte

	// Tail marks the final window of a stream.
	Tail bool
}

// Request is the envelope dispatched to a file's driver. Exactly one of
// the payload groups is meaningful, selected by Type.
type Request struct {
	File *File

	Type   ReqType
	Result Result

	UData any
	CB    func(req *Request)

	Dir struct {
		Entry   DirEntry
		Entries []*DirEntry
	}
	Prog struct {
		Exec *File
	}
	Stream struct {
		IO StreamIO
	}
	Tensor struct {
		Meta TensorMeta
		Data TensorData
	}
}

// Dispatch hands req to its file's driver. The driver returns true iff
// it has taken ownership of completing the request, meaning req.CB
// fires exactly once, possibly before Dispatch returns. On a false
// return the driver has set a non-OK result and the callback never
// fires.
func Dispatch(req *Request) bool {
	f := req.File
	if f.deinited {
		req.Result = Aborted
		return false
	}
	f.lastTouch = f.iso.Now()
	f.iso.observeRequest(req)
	return f.driver.Handle(req)
}

// DispatchDup copies src, dispatches the copy and returns it, so that a
// sub-request can outlive the frame that described it. Returns nil when
// the driver refused the request.
func DispatchDup(src *Request) *Request {
	dst := new(Request)
	*dst = *src
	if !Dispatch(dst) {
		return nil
	}
	return dst
}
