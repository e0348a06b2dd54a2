package memfs

import (
	"bytes"
	"testing"

	upd "github.com/unparanoid/go-upd"
)

func newIso(t *testing.T) *upd.Iso {
	t.Helper()
	iso, err := upd.New(upd.Options{RootDriver: NewDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return iso
}

func dirAdd(t *testing.T, dir *upd.File, name string, child *upd.File) bool {
	t.Helper()
	req := upd.Request{File: dir, Type: upd.DirAdd, CB: func(*upd.Request) {}}
	req.Dir.Entry = upd.DirEntry{Name: name, File: child}
	return upd.DispatchDup(&req) != nil
}

func dirFind(t *testing.T, dir *upd.File, name string) *upd.File {
	t.Helper()
	var found *upd.File
	req := upd.Request{File: dir, Type: upd.DirFind, CB: func(r *upd.Request) {
		found = r.Dir.Entry.File
	}}
	req.Dir.Entry = upd.DirEntry{Name: name}
	if upd.DispatchDup(&req) == nil {
		t.Fatal("DirFind refused")
	}
	return found
}

func dirList(t *testing.T, dir *upd.File) []*upd.DirEntry {
	t.Helper()
	var entries []*upd.DirEntry
	req := upd.Request{File: dir, Type: upd.DirList, CB: func(r *upd.Request) {
		entries = r.Dir.Entries
	}}
	if upd.DispatchDup(&req) == nil {
		t.Fatal("DirList refused")
	}
	return entries
}

func TestDirAddFindList(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()

	blob, err := iso.NewFile(upd.FileTemplate{Driver: NewBlob(), Path: "/data"})
	if err != nil {
		t.Fatal(err)
	}

	if !dirAdd(t, root, "data", blob) {
		t.Fatal("DirAdd failed")
	}

	if got := dirFind(t, root, "data"); got != blob {
		t.Error("DirFind did not return the added file")
	}
	if got := dirFind(t, root, "missing"); got != nil {
		t.Error("DirFind of a missing name returned a file")
	}

	entries := dirList(t, root)
	if len(entries) != 1 || entries[0].Name != "data" {
		t.Errorf("DirList = %v", entries)
	}
}

func TestDirAddDuplicateRefused(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()

	a, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})
	b, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})

	if !dirAdd(t, root, "x", a) {
		t.Fatal("first add failed")
	}
	if dirAdd(t, root, "x", b) {
		t.Error("duplicate name accepted")
	}
}

func TestDirAddInvalidNameRefused(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()
	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})

	for _, name := range []string{"", ".", "..", "a/b", "sp ace"} {
		if dirAdd(t, root, name, f) {
			t.Errorf("invalid name %q accepted", name)
		}
	}
}

func TestDirEntryHoldsReference(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()

	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})
	before := f.Refcnt()

	dirAdd(t, root, "held", f)
	if f.Refcnt() != before+1 {
		t.Error("entry did not take its own reference")
	}

	req := upd.Request{File: root, Type: upd.DirRm, CB: func(*upd.Request) {}}
	req.Dir.Entry = upd.DirEntry{Name: "held"}
	if upd.DispatchDup(&req) == nil {
		t.Fatal("DirRm refused")
	}
	if f.Refcnt() != before {
		t.Error("removal did not release the entry reference")
	}
}

func TestDirRmMissing(t *testing.T) {
	iso := newIso(t)

	req := upd.Request{File: iso.Root(), Type: upd.DirRm, CB: func(*upd.Request) {
		t.Error("callback fired on refusal")
	}}
	req.Dir.Entry = upd.DirEntry{Name: "ghost"}
	if upd.DispatchDup(&req) != nil {
		t.Error("DirRm of a missing entry succeeded")
	}
}

func TestDirNewDirCreatesDirectory(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()

	var child *upd.File
	req := upd.Request{File: root, Type: upd.DirNewDir, CB: func(r *upd.Request) {
		child = r.Dir.Entry.File
	}}
	req.Dir.Entry = upd.DirEntry{Name: "sub"}
	if upd.DispatchDup(&req) == nil {
		t.Fatal("DirNewDir refused")
	}
	if child == nil {
		t.Fatal("no child created")
	}
	if child.Path() != "/sub" {
		t.Errorf("child path = %q", child.Path())
	}
	if child.Mimetype != "inode/directory" {
		t.Errorf("mimetype = %q", child.Mimetype)
	}
	if dirFind(t, root, "sub") != child {
		t.Error("created directory not linked")
	}
}

func TestDirMutationAnnouncesUpdate(t *testing.T) {
	iso := newIso(t)
	root := iso.Root()

	var events []upd.FileEvent
	root.Watch(&upd.Watch{
		Filter: []upd.FileEvent{upd.EventUpdate, upd.EventUpdateN},
		CB:     func(w *upd.Watch) { events = append(events, w.Event) },
	})

	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})
	dirAdd(t, root, "noisy", f)

	if len(events) != 2 || events[0] != upd.EventUpdateN || events[1] != upd.EventUpdate {
		t.Errorf("events = %v, want [update-n update]", events)
	}
}

func TestBlobReadWriteTruncate(t *testing.T) {
	iso := newIso(t)
	f, err := iso.NewFile(upd.FileTemplate{Driver: NewBlob(), Path: "/b"})
	if err != nil {
		t.Fatal(err)
	}

	write := func(off uint64, p []byte) {
		req := upd.Request{File: f, Type: upd.StreamWrite, CB: func(*upd.Request) {}}
		req.Stream.IO = upd.StreamIO{Offset: off, Buf: p}
		if upd.DispatchDup(&req) == nil {
			t.Fatal("write refused")
		}
	}
	read := func(off, size uint64) ([]byte, bool) {
		var out []byte
		var tail bool
		req := upd.Request{File: f, Type: upd.StreamRead, CB: func(r *upd.Request) {
			out = r.Stream.IO.Buf
			tail = r.Stream.IO.Tail
		}}
		req.Stream.IO = upd.StreamIO{Offset: off, Size: size}
		if upd.DispatchDup(&req) == nil {
			t.Fatal("read refused")
		}
		return out, tail
	}

	write(0, []byte("Hello, upd!"))

	got, tail := read(0, 1<<20)
	if !bytes.Equal(got, []byte("Hello, upd!")) {
		t.Errorf("read = %q", got)
	}
	if !tail {
		t.Error("full read should set tail")
	}

	got, tail = read(7, 3)
	if !bytes.Equal(got, []byte("upd")) || tail {
		t.Errorf("window read = %q tail=%v", got, tail)
	}

	// sparse write extends with zeros
	write(16, []byte("end"))
	got, _ = read(0, 1<<20)
	if len(got) != 19 || got[12] != 0 {
		t.Errorf("sparse write result = %q (%d bytes)", got, len(got))
	}

	// truncate shrink
	tr := upd.Request{File: f, Type: upd.StreamTruncate, CB: func(*upd.Request) {}}
	tr.Stream.IO = upd.StreamIO{Size: 5}
	if upd.DispatchDup(&tr) == nil {
		t.Fatal("truncate refused")
	}
	got, tail = read(0, 1<<20)
	if !bytes.Equal(got, []byte("Hello")) || !tail {
		t.Errorf("after truncate = %q", got)
	}
}

func TestBlobReadPastEnd(t *testing.T) {
	iso := newIso(t)
	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})

	req := upd.Request{File: f, Type: upd.StreamRead, CB: func(*upd.Request) {
		t.Error("callback fired on refusal")
	}}
	req.Stream.IO = upd.StreamIO{Offset: 100, Size: 1}
	if upd.DispatchDup(&req) != nil {
		t.Error("read past end accepted")
	}
}

func TestPipeFIFO(t *testing.T) {
	iso := newIso(t)
	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewPipe()})

	write := func(p []byte) bool {
		req := upd.Request{File: f, Type: upd.DStreamWrite, CB: func(*upd.Request) {}}
		req.Stream.IO.Buf = p
		return upd.DispatchDup(&req) != nil
	}
	read := func() []byte {
		var out []byte
		req := upd.Request{File: f, Type: upd.DStreamRead, CB: func(r *upd.Request) {
			out = r.Stream.IO.Buf
		}}
		req.Stream.IO.Size = ^uint64(0)
		if upd.DispatchDup(&req) == nil {
			t.Fatal("read refused")
		}
		return out
	}

	write([]byte("one"))
	write([]byte("two"))

	if got := read(); !bytes.Equal(got, []byte("onetwo")) {
		t.Errorf("drained %q", got)
	}
	if got := read(); len(got) != 0 {
		t.Errorf("second read returned %q", got)
	}
}

func TestPipeMaxRefusesWrite(t *testing.T) {
	iso := newIso(t)
	f, _ := iso.NewFile(upd.FileTemplate{Driver: &Pipe{Max: 4}})

	req := upd.Request{File: f, Type: upd.DStreamWrite, CB: func(*upd.Request) {
		t.Error("callback fired on refusal")
	}}
	req.Stream.IO.Buf = []byte("too large")
	if upd.Dispatch(&req) {
		t.Error("over-cap write accepted")
	}
	if req.Result == upd.OK {
		t.Error("result not set on refusal")
	}
}

func TestPipeWriteAnnouncesUpdate(t *testing.T) {
	iso := newIso(t)
	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewPipe()})

	count := 0
	f.Watch(&upd.Watch{
		Filter: []upd.FileEvent{upd.EventUpdate},
		CB:     func(w *upd.Watch) { count++ },
	})

	req := upd.Request{File: f, Type: upd.DStreamWrite, CB: func(*upd.Request) {}}
	req.Stream.IO.Buf = []byte("ping")
	upd.DispatchDup(&req)

	if count != 1 {
		t.Errorf("updates = %d, want 1", count)
	}
}

func BenchmarkBlobWrite(b *testing.B) {
	iso, _ := upd.New(upd.Options{RootDriver: NewDir()})
	f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})

	buf := make([]byte, 4096)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := upd.Request{File: f, Type: upd.StreamWrite, CB: func(*upd.Request) {}}
		req.Stream.IO = upd.StreamIO{Offset: uint64(i*4096) % (1 << 20), Buf: buf}
		upd.Dispatch(&req)
	}
}

func BenchmarkDirFind(b *testing.B) {
	iso, _ := upd.New(upd.Options{RootDriver: NewDir()})
	root := iso.Root()

	for i := 0; i < 64; i++ {
		f, _ := iso.NewFile(upd.FileTemplate{Driver: NewBlob()})
		req := upd.Request{File: root, Type: upd.DirAdd, CB: func(*upd.Request) {}}
		req.Dir.Entry = upd.DirEntry{Name: "f" + string(rune('a'+i%26)) + string(rune('a'+i/26)), File: f}
		upd.Dispatch(&req)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req := upd.Request{File: root, Type: upd.DirFind, CB: func(*upd.Request) {}}
		req.Dir.Entry = upd.DirEntry{Name: "fzz"}
		upd.Dispatch(&req)
	}
}
