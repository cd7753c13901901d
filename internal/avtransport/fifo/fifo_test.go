package fifo

import (
	"testing"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
)

func mkEntry(b []byte) Pktd {
	buf := buffer.Create(b, nil, nil)
	return Pktd{Descriptor: wire.DescEOS, Header: []byte{0, 0}, Payload: buf, HasPayload: true}
}

func TestPushPopOrderPreserved(t *testing.T) {
	var f FIFO
	f.Push(mkEntry([]byte("a")))
	f.Push(mkEntry([]byte("b")))
	f.Push(mkEntry([]byte("c")))

	for _, want := range []string{"a", "b", "c"} {
		p, ok := f.Pop()
		if !ok {
			t.Fatalf("expected entry")
		}
		if string(p.Payload.Data()) != want {
			t.Fatalf("expected %q, got %q", want, p.Payload.Data())
		}
		buffer.Unref(&p.Payload)
	}
	if _, ok := f.Pop(); ok {
		t.Fatalf("expected empty fifo")
	}
}

func TestSizeAccounting(t *testing.T) {
	var f FIFO
	f.Push(mkEntry([]byte("abcd")))
	f.Push(mkEntry([]byte("xy")))
	if got, want := f.Size(), 2*2+4+2; got != want {
		t.Fatalf("expected size %d, got %d", want, got)
	}
	p, _ := f.Pop()
	buffer.Unref(&p.Payload)
	if got, want := f.Size(), 2+2; got != want {
		t.Fatalf("expected size %d after pop, got %d", want, got)
	}
}

func TestDropFromTailByCount(t *testing.T) {
	var f FIFO
	f.Push(mkEntry([]byte("a")))
	f.Push(mkEntry([]byte("b")))
	f.Push(mkEntry([]byte("c")))

	dropped := f.DropFromTailByCount(2)
	if dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if f.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", f.Len())
	}
	p, _ := f.Peek()
	if string(p.Payload.Data()) != "a" {
		t.Fatalf("expected oldest entry kept, got %q", p.Payload.Data())
	}
}

func TestDropFromTailByBytes(t *testing.T) {
	var f FIFO
	f.Push(mkEntry([]byte("aaaa")))
	f.Push(mkEntry([]byte("bbbb")))
	f.Push(mkEntry([]byte("cccc")))

	f.DropFromTailByBytes(8) // header(2)+payload(4) per entry = 6 bytes each
	if f.Size() > 8 {
		t.Fatalf("expected size <= 8 after drop, got %d", f.Size())
	}
	p, _ := f.Peek()
	if string(p.Payload.Data()) != "aaaa" {
		t.Fatalf("expected oldest entry kept, got %q", p.Payload.Data())
	}
}

func TestMoveTransfersOwnershipAndEmptiesSource(t *testing.T) {
	var src, dst FIFO
	src.Push(mkEntry([]byte("a")))
	src.Push(mkEntry([]byte("b")))

	dst.Move(&src)
	if src.Len() != 0 {
		t.Fatalf("expected src emptied after move")
	}
	if dst.Len() != 2 {
		t.Fatalf("expected dst to have 2 entries, got %d", dst.Len())
	}
}

func TestCopyClonesWithoutMutatingSource(t *testing.T) {
	var src, dst FIFO
	src.Push(mkEntry([]byte("a")))

	if err := dst.Copy(&src); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if src.Len() != 1 {
		t.Fatalf("expected src untouched, got len %d", src.Len())
	}
	p, _ := src.Peek()
	if p.Payload.Refcount() != 2 {
		t.Fatalf("expected shared refcount 2 after copy, got %d", p.Payload.Refcount())
	}
	src.Clear()
	dst.Clear()
}
