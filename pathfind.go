package upd

// Pathfind resolves a slash-separated path to a file by walking one
// segment at a time: each segment takes a shared lock on the current
// base, issues DIR_FIND, and advances. With Create set, a missing
// segment is created through DIR_NEWDIR instead of stopping the walk.
//
// The callback fires exactly once. Remaining bytes in Path signal
// failure: on success Path is empty and Base is the resolved file; on
// failure Base is the deepest directory reached. Callers retaining
// Base past the callback must Ref it there.
type Pathfind struct {
	Iso  *Iso
	Base *File

	// Path holds the bytes not yet resolved.
	Path string

	// Term is the length of the segment currently being resolved.
	Term int

	// Create requests implicit directory creation for missing
	// segments.
	Create bool

	UData any
	CB    func(pf *Pathfind)

	req  Request
	lock Lock
}

// FindPath starts the walk. An absolute path (or nil Base) walks from
// the root directory.
func FindPath(pf *Pathfind) {
	if len(pf.Path) > 0 && pf.Path[0] == '/' {
		pf.Base = nil
	}
	if pf.Base == nil {
		pf.Base = pf.Iso.Get(RootFileID)
	}
	if pf.Iso == nil {
		pf.Iso = pf.Base.iso
	}
	pf.next()
}

// FindPathDup copies src, starts the walk on the copy and returns it,
// so the walk state survives the caller's frame.
func FindPathDup(src *Pathfind) *Pathfind {
	pf := new(Pathfind)
	*pf = *src
	FindPath(pf)
	return pf
}

func (pf *Pathfind) next() {
	for len(pf.Path) > 0 && pf.Path[0] == '/' {
		pf.Path = pf.Path[1:]
	}
	pf.Term = 0
	for pf.Term < len(pf.Path) && pf.Path[pf.Term] != '/' {
		pf.Term++
	}
	if pf.Base == nil {
		pf.Base = pf.Iso.Get(RootFileID)
	}
	if len(pf.Path) == 0 {
		pf.CB(pf)
		return
	}

	pf.lock = Lock{
		UData: pf,
		CB:    pathfindLockCB,
	}
	if !pf.Base.Lock(&pf.lock) {
		pf.CB(pf)
	}
}

func pathfindLockCB(l *Lock) {
	pf := l.UData.(*Pathfind)

	if !l.OK {
		pf.CB(pf)
		return
	}
	pf.req = Request{
		File:  pf.Base,
		Type:  DirFind,
		UData: pf,
		CB:    pathfindFindCB,
	}
	pf.req.Dir.Entry = DirEntry{Name: pf.Path[:pf.Term]}
	if !Dispatch(&pf.req) {
		pf.Base.Unlock(&pf.lock)
		pf.CB(pf)
	}
}

func pathfindFindCB(req *Request) {
	pf := req.UData.(*Pathfind)

	if req.Dir.Entry.File == nil {
		if pf.Create {
			pf.req = Request{
				File:  pf.Base,
				Type:  DirNewDir,
				UData: pf,
				CB:    pathfindAddCB,
			}
			pf.req.Dir.Entry = DirEntry{Name: pf.Path[:pf.Term]}
			if Dispatch(&pf.req) {
				return
			}
		}
		pf.Base.Unlock(&pf.lock)
		pf.CB(pf)
		return
	}

	pf.Base.Unlock(&pf.lock)
	pf.Base = req.Dir.Entry.File
	pf.Path = pf.Path[pf.Term:]
	pf.next()
}

func pathfindAddCB(req *Request) {
	pf := req.UData.(*Pathfind)

	pf.Base.Unlock(&pf.lock)

	if req.Result != OK {
		pf.CB(pf)
		return
	}

	pf.Base = req.Dir.Entry.File
	pf.Path = pf.Path[pf.Term:]
	pf.next()
}
