package upd

// DriverFlags declares optional capabilities of a driver.
type DriverFlags struct {
	// NPoll declares that the driver's files are not to be counted
	// against idle detection. The isolate has no idle detection and
	// does not read this flag.
	NPoll bool

	// Mutex marks drivers whose handle offloads work to worker
	// goroutines.
	Mutex bool

	// Preproc and Postproc gate delivery of the PREPROC/POSTPROC
	// bracketing events.
	Preproc  bool
	Postproc bool

	// Timer marks drivers that schedule TIMER events for their files.
	Timer bool
}

// Driver implements the behaviour of a class of files.
type Driver interface {
	// Name returns the unique driver name.
	Name() string

	// Categories lists the request categories the driver accepts.
	Categories() []Category

	// Flags returns the driver's capability flags.
	Flags() DriverFlags

	// Init prepares a freshly registered file. A non-nil error aborts
	// the file's creation with no side effects.
	Init(f *File) error

	// Deinit tears the file down. No requests are dispatched to the
	// file once Deinit has begun.
	Deinit(f *File)

	// Handle processes a request. True means the driver owns the
	// request and will invoke req.CB exactly once; false means the
	// request was refused with a non-OK result and no callback.
	Handle(req *Request) bool
}

// RegisterDriver adds d to the isolate's driver index.
func (iso *Iso) RegisterDriver(d Driver) error {
	name := d.Name()
	if name == "" {
		return NewError("REGISTER_DRIVER", ErrCodeInvalidParameters, "empty driver name")
	}
	if _, ok := iso.drivers[name]; ok {
		return NewError("REGISTER_DRIVER", ErrCodeExists, "duplicate driver "+name)
	}
	iso.drivers[name] = d
	return nil
}

// DriverLookup returns the registered driver of that name, or nil.
func (iso *Iso) DriverLookup(name string) Driver {
	return iso.drivers[name]
}
