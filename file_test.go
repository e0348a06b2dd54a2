package upd

import (
	"errors"
	"testing"
)

func TestNewFileAssignsIDs(t *testing.T) {
	iso := newTestIso(t)
	drv := &StubDriver{}

	a, err := iso.NewFile(FileTemplate{Driver: drv, Path: "/a"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := iso.NewFile(FileTemplate{Driver: drv, Path: "/b"})
	if err != nil {
		t.Fatal(err)
	}

	if a.ID() == b.ID() {
		t.Error("ids not unique")
	}
	if a.ID() <= RootFileID || b.ID() <= a.ID() {
		t.Errorf("ids not monotonic: %d, %d", a.ID(), b.ID())
	}
	if a.Refcnt() != 1 {
		t.Errorf("fresh refcnt = %d", a.Refcnt())
	}
	if a.Path() != "/a" {
		t.Errorf("path = %q", a.Path())
	}
	if iso.Get(a.ID()) != a {
		t.Error("Get does not find new file")
	}
}

func TestNewFileInitFailureRollsBack(t *testing.T) {
	iso := newTestIso(t)

	boom := errors.New("boom")
	drv := &StubDriver{InitFn: func(f *File) error { return boom }}

	before := iso.nextID
	f, err := iso.NewFile(FileTemplate{Driver: drv})
	if err == nil {
		t.Fatal("NewFile should fail when init fails")
	}
	if f != nil {
		t.Error("failed NewFile returned a file")
	}
	if !errors.Is(err, boom) {
		t.Errorf("inner error lost: %v", err)
	}
	if iso.Get(before) != nil {
		t.Error("failed file left in registry")
	}
	if iso.nextID != before {
		t.Error("id consumed by failed creation")
	}
}

func TestGetAbsent(t *testing.T) {
	iso := newTestIso(t)
	if iso.Get(FileID(12345)) != nil {
		t.Error("Get of unknown id returned a file")
	}
}

func TestUnrefDestroySequence(t *testing.T) {
	iso := newTestIso(t)

	var seq []string
	drv := &StubDriver{
		DeinitFn: func(f *File) { seq = append(seq, "deinit") },
	}

	f, err := iso.NewFile(FileTemplate{Driver: drv})
	if err != nil {
		t.Fatal(err)
	}
	id := f.ID()

	f.Watch(&Watch{CB: func(w *Watch) {
		switch w.Event {
		case EventDeleteN:
			seq = append(seq, "delete-n")
		case EventDelete:
			seq = append(seq, "delete")
		}
	}})

	f.Ref()
	if f.Unref() {
		t.Error("Unref freed the file while a ref remained")
	}
	if !f.Unref() {
		t.Error("final Unref did not free the file")
	}

	want := []string{"delete-n", "deinit", "delete"}
	if len(seq) != len(want) {
		t.Fatalf("sequence = %v, want %v", seq, want)
	}
	for i := range want {
		if seq[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", seq, want)
		}
	}

	if iso.Get(id) != nil {
		t.Error("destroyed file still in registry")
	}
}

func TestIDNeverReused(t *testing.T) {
	iso := newTestIso(t)
	drv := &StubDriver{}

	a, _ := iso.NewFile(FileTemplate{Driver: drv})
	idA := a.ID()
	a.Unref()

	b, _ := iso.NewFile(FileTemplate{Driver: drv})
	if b.ID() == idA {
		t.Error("id reused after destruction")
	}
}

func TestDispatchAfterDeinitRefused(t *testing.T) {
	iso := newTestIso(t)

	drv := &StubDriver{}
	f, _ := iso.NewFile(FileTemplate{Driver: drv})

	var dead *File
	drv.DeinitFn = func(g *File) { dead = g }
	f.Unref()
	if dead == nil {
		t.Fatal("deinit not called")
	}

	req := &Request{File: dead, Type: DirList, CB: func(*Request) {
		t.Error("callback fired for refused request")
	}}
	if Dispatch(req) {
		t.Error("Dispatch accepted a request on a dead file")
	}
	if req.Result == OK {
		t.Error("refused request left result OK")
	}
}
