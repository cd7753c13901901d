package buffer

import (
	"testing"

	avterrors "github.com/avtransport/avtransport/internal/errors"
)

func TestAllocRefcountAndUnref(t *testing.T) {
	b, err := Alloc(64)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if b.Len() != 64 {
		t.Fatalf("expected len 64, got %d", b.Len())
	}
	if b.Refcount() != 1 {
		t.Fatalf("expected refcount 1, got %d", b.Refcount())
	}

	r, err := b.Reference(0, 0)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	if b.Refcount() != 2 || r.Refcount() != 2 {
		t.Fatalf("expected shared refcount 2, got b=%d r=%d", b.Refcount(), r.Refcount())
	}

	Unref(&r)
	if b.Refcount() != 1 {
		t.Fatalf("expected refcount 1 after one unref, got %d", b.Refcount())
	}
	if !r.IsZero() {
		t.Fatalf("expected r zeroed after Unref")
	}

	Unref(&b)
	if !b.IsZero() {
		t.Fatalf("expected b zeroed after final Unref")
	}
}

func TestFreeCalledExactlyOnceAfterAllRefsDropped(t *testing.T) {
	calls := 0
	data := make([]byte, 32)
	b := Create(data, nil, func(opaque any, base []byte) { calls++ })

	r1, _ := b.Reference(0, 0)
	r2, _ := b.Reference(0, 0)

	Unref(&r1)
	if calls != 0 {
		t.Fatalf("free must not run until last ref drops, calls=%d", calls)
	}
	Unref(&r2)
	if calls != 0 {
		t.Fatalf("free must not run until last ref drops, calls=%d", calls)
	}
	Unref(&b)
	if calls != 1 {
		t.Fatalf("expected free called exactly once, got %d", calls)
	}
}

func TestReferenceSlicing(t *testing.T) {
	data := []byte("0123456789")
	b := Create(data, nil, nil)
	defer Unref(&b)

	sub, err := b.Reference(2, 4)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	defer Unref(&sub)
	if string(sub.Data()) != "2345" {
		t.Fatalf("unexpected slice data: %q", sub.Data())
	}

	// Slicing from sub further should be relative to sub's own window.
	subsub, err := sub.Reference(1, 2)
	if err != nil {
		t.Fatalf("reference: %v", err)
	}
	defer Unref(&subsub)
	if string(subsub.Data()) != "34" {
		t.Fatalf("unexpected nested slice data: %q", subsub.Data())
	}
}

func TestReferencePastEndFails(t *testing.T) {
	data := make([]byte, 8)
	b := Create(data, nil, nil)
	defer Unref(&b)

	if _, err := b.Reference(4, 8); err == nil {
		t.Fatalf("expected range error referencing past end_data")
	} else if !avterrors.Is(err, avterrors.KindRange) {
		t.Fatalf("expected KindRange, got %v", err)
	}
}

func TestResizeRequiresSoleRefAndDefaultAllocator(t *testing.T) {
	b, err := Alloc(16)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	defer Unref(&b)

	r, _ := b.Reference(0, 0)
	if err := b.Resize(32); !avterrors.Is(err, avterrors.KindUnsupported) {
		t.Fatalf("expected resize to fail while shared, got %v", err)
	}
	Unref(&r)

	if err := b.Resize(32); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if b.Len() != 32 {
		t.Fatalf("expected len 32 after resize, got %d", b.Len())
	}

	custom := Create(make([]byte, 4), nil, func(any, []byte) {})
	defer Unref(&custom)
	if err := custom.Resize(8); !avterrors.Is(err, avterrors.KindUnsupported) {
		t.Fatalf("expected resize to fail on custom deallocator, got %v", err)
	}
}

func TestResizePreservesPrefix(t *testing.T) {
	b, err := Alloc(4)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	defer Unref(&b)
	copy(b.Data(), []byte{1, 2, 3, 4})

	if err := b.Resize(100000); err != nil {
		t.Fatalf("resize: %v", err)
	}
	got := b.Data()[:4]
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("prefix not preserved: got %v want %v", got, want)
		}
	}
}

func TestReadOnlyFlagSharedAcrossReferences(t *testing.T) {
	b, _ := Alloc(4)
	defer Unref(&b)
	r, _ := b.Reference(0, 0)
	defer Unref(&r)

	b.SetReadOnly(true)
	if !r.ReadOnly() {
		t.Fatalf("expected read-only flag to be visible on shared reference")
	}
}
