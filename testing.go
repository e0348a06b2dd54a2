package upd

// StubDriver is a configurable Driver for testing. The zero value is
// usable: every request is answered OK through its callback. Handlers
// can be swapped per test and call counts are recorded for
// verification.
//
// Unlike the rest of the package it is safe to keep one StubDriver
// shared between many files; it holds no per-file state unless InitFn
// installs some.
type StubDriver struct {
	DriverName string
	Cats       []Category
	DriverFlag DriverFlags

	InitFn   func(f *File) error
	DeinitFn func(f *File)
	HandleFn func(req *Request) bool

	initCalls   int
	deinitCalls int
	handleCalls int
	lastType    ReqType
}

// Name implements the Driver interface
func (d *StubDriver) Name() string {
	if d.DriverName == "" {
		return "stub"
	}
	return d.DriverName
}

// Categories implements the Driver interface
func (d *StubDriver) Categories() []Category {
	return d.Cats
}

// Flags implements the Driver interface
func (d *StubDriver) Flags() DriverFlags {
	return d.DriverFlag
}

// Init implements the Driver interface
func (d *StubDriver) Init(f *File) error {
	d.initCalls++
	if d.InitFn != nil {
		return d.InitFn(f)
	}
	return nil
}

// Deinit implements the Driver interface
func (d *StubDriver) Deinit(f *File) {
	d.deinitCalls++
	if d.DeinitFn != nil {
		d.DeinitFn(f)
	}
}

// Handle implements the Driver interface
func (d *StubDriver) Handle(req *Request) bool {
	d.handleCalls++
	d.lastType = req.Type
	if d.HandleFn != nil {
		return d.HandleFn(req)
	}
	req.Result = OK
	req.CB(req)
	return true
}

// CallCounts returns the number of times each driver entry has been
// invoked
func (d *StubDriver) CallCounts() map[string]int {
	return map[string]int{
		"init":   d.initCalls,
		"deinit": d.deinitCalls,
		"handle": d.handleCalls,
	}
}

// LastType returns the type of the most recently handled request
func (d *StubDriver) LastType() ReqType {
	return d.lastType
}

// Reset resets all call counters
func (d *StubDriver) Reset() {
	d.initCalls = 0
	d.deinitCalls = 0
	d.handleCalls = 0
	d.lastType = 0
}

// Compile-time interface check
var _ Driver = (*StubDriver)(nil)
