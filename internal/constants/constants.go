package constants

// Default configuration constants
const (
	// DefaultLockTimeout is the lock wait budget in milliseconds applied
	// when a lock request carries Timeout == 0.
	DefaultLockTimeout = 10_000

	// DefaultMsgpackMem is the default buffering ceiling of a msgpack
	// context in bytes.
	DefaultMsgpackMem = 4 << 20

	// DefaultScratchChunk is the smallest scratch allocator bucket in
	// bytes. Larger buckets are powers of four above it.
	DefaultScratchChunk = 64

	// RootFileID is the well-known id of the root directory file.
	RootFileID = 0

	// ProtoHoldMax is the number of file references a protocol message
	// can keep alive until its callback returns.
	ProtoHoldMax = 4
)

// Version of the host ABI. Plug-ins must be built against the same
// major and an equal-or-lower minor.
const (
	VerMajor = 0
	VerMinor = 10
)
