package buf

import (
	"bytes"
	"testing"
)

func TestBufAppendWithMax(t *testing.T) {
	b := Buf{Max: 16}

	if !b.AppendString("hello!!!") {
		t.Fatal("first append failed")
	}
	if !b.AppendString("world!!!") {
		t.Fatal("second append failed")
	}
	if b.AppendString("goodbye!") {
		t.Error("append beyond max should fail")
	}

	if b.Size() != 16 {
		t.Errorf("Size() = %d, want 16", b.Size())
	}
	if !bytes.Equal(b.Bytes(), []byte("hello!!!world!!!")) {
		t.Errorf("Bytes() = %q", b.Bytes())
	}

	b.DropTail(8)
	if !bytes.Equal(b.Bytes(), []byte("hello!!!")) {
		t.Errorf("after DropTail: %q", b.Bytes())
	}

	b.Clear()
	if b.Size() != 0 {
		t.Errorf("Size() after Clear = %d", b.Size())
	}
}

func TestBufDropHead(t *testing.T) {
	var b Buf
	b.AppendString("hello!!!")
	b.AppendString("world!!!")
	b.AppendString("goodbye!")

	if b.Size() != 24 {
		t.Fatalf("Size() = %d, want 24", b.Size())
	}

	b.DropHead(8)
	if !bytes.Equal(b.Bytes(), []byte("world!!!goodbye!")) {
		t.Errorf("after DropHead: %q", b.Bytes())
	}

	// append-then-drop_head(n) equals original minus first n bytes
	b = Buf{}
	b.AppendString("abcdef")
	b.DropHead(2)
	if !bytes.Equal(b.Bytes(), []byte("cdef")) {
		t.Errorf("got %q, want %q", b.Bytes(), "cdef")
	}

	b.DropHead(100)
	if b.Size() != 0 {
		t.Errorf("DropHead beyond size left %d bytes", b.Size())
	}
}

func TestBufExtend(t *testing.T) {
	b := Buf{Max: 8}
	p := b.Extend(4)
	if p == nil || len(p) != 4 {
		t.Fatalf("Extend(4) = %v", p)
	}
	copy(p, "abcd")

	if b.Extend(8) != nil {
		t.Error("Extend beyond max should return nil")
	}
	if !bytes.Equal(b.Bytes(), []byte("abcd")) {
		t.Errorf("Bytes() = %q", b.Bytes())
	}
}

func TestBufTake(t *testing.T) {
	var b Buf
	b.AppendString("payload")
	p := b.Take()
	if !bytes.Equal(p, []byte("payload")) {
		t.Errorf("Take() = %q", p)
	}
	if b.Size() != 0 {
		t.Errorf("Size() after Take = %d", b.Size())
	}
}
