// Package buffer implements the reference-counted, sliceable byte buffer
// that the codec, merger, scheduler and FIFO stages share (spec §3.1, §4.1).
// A Buffer is a byte range [data, data+len) inside a larger owning
// allocation [base, base+cap); multiple Buffers can reference the same
// allocation, and the allocation's deallocator runs exactly once, when the
// last reference is dropped.
//
// The default allocator backs onto internal/bufpool, the teacher's sized
// buffer-pool package, so repeated alloc/unref cycles on common packet
// sizes (header-only, MTU-sized, max segment) do not churn the GC.
package buffer

import (
	"sync/atomic"

	"github.com/avtransport/avtransport/internal/bufpool"
	"github.com/avtransport/avtransport/internal/errors"
)

// FreeFunc is the typed deallocator invoked exactly once, when the owning
// allocation's refcount reaches zero. opaque is whatever the creator passed
// to Create; base is the full backing allocation (base_data..end_data), not
// the possibly-narrower [data,data+len) view of any one Buffer reference.
type FreeFunc func(opaque any, base []byte)

// shared is the refcounted state behind one or more Buffer views. base
// changes only through Resize and readOnly only through SetReadOnly; the
// remaining fields other than refcount are immutable after creation.
type shared struct {
	refcount int32 // atomic; acquire-release per spec §5
	base     []byte
	opaque   any
	free     FreeFunc
	readOnly bool
	isPooled bool // true when free is the package's own pool-backed default
}

// Buffer is a [off, off+length) view into a shared allocation.
type Buffer struct {
	s      *shared
	off    int
	length int
}

func defaultFree(opaque any, base []byte) {
	bufpool.Put(base)
}

// Alloc creates a new Buffer backed by a pool-allocated byte slice of the
// given length. The returned Buffer owns the whole allocation (data == base).
func Alloc(length int) (Buffer, error) {
	if length < 0 {
		return Buffer{}, errors.InvalidArgument("buffer.alloc", nil)
	}
	base := bufpool.Get(length)
	if length > 0 && base == nil {
		return Buffer{}, errors.OutOfMemory("buffer.alloc", nil)
	}
	s := &shared{refcount: 1, base: base, free: defaultFree, isPooled: true}
	return Buffer{s: s, off: 0, length: length}, nil
}

// Create wraps a caller-supplied allocation with a custom deallocator,
// initial refcount 1. base=data, end=data+len (spec §4.1 "create").
func Create(data []byte, opaque any, free FreeFunc) Buffer {
	if free == nil {
		free = func(any, []byte) {}
	}
	s := &shared{refcount: 1, base: data, opaque: opaque, free: free}
	return Buffer{s: s, off: 0, length: len(data)}
}

// IsZero reports whether b holds no allocation.
func (b Buffer) IsZero() bool { return b.s == nil }

// Len returns the length of this view.
func (b Buffer) Len() int {
	if b.s == nil {
		return 0
	}
	return b.length
}

// ReadOnly reports whether mutation is disallowed on this view.
func (b Buffer) ReadOnly() bool { return b.s != nil && b.s.readOnly }

// SetReadOnly flags (or unflags) this buffer's shared allocation read-only.
// All views sharing the allocation observe the change, matching the
// reference implementation's single read-only bit per allocation.
func (b Buffer) SetReadOnly(ro bool) {
	if b.s != nil {
		b.s.readOnly = ro
	}
}

// Refcount returns the current reference count (for tests/diagnostics).
func (b Buffer) Refcount() int32 {
	if b.s == nil {
		return 0
	}
	return atomic.LoadInt32(&b.s.refcount)
}

// Data returns the byte slice for this view. Callers must not retain it
// past the Buffer's lifetime (i.e. past the matching Unref) if the
// allocation might be freed or reused by a pool.
func (b Buffer) Data() []byte {
	if b.s == nil {
		return nil
	}
	return b.s.base[b.off : b.off+b.length]
}

// Reference creates a new Buffer sharing the refcount of b, viewing
// [off+offset, off+offset+length) of b's current view when offset/length
// are nonzero, or the whole of b's current view when both are zero (spec
// §4.1 "reference"). It fails if the resulting window would extend past
// the owning allocation's end.
func (b Buffer) Reference(offset, length int) (Buffer, error) {
	if b.s == nil {
		return Buffer{}, errors.InvalidArgument("buffer.reference", nil)
	}
	if offset == 0 && length == 0 {
		atomic.AddInt32(&b.s.refcount, 1)
		return Buffer{s: b.s, off: b.off, length: b.length}, nil
	}
	if offset < 0 || length < 0 {
		return Buffer{}, errors.InvalidArgument("buffer.reference", nil)
	}
	newOff := b.off + offset
	if newOff+length > len(b.s.base) {
		return Buffer{}, errors.Range("buffer.reference", nil)
	}
	atomic.AddInt32(&b.s.refcount, 1)
	return Buffer{s: b.s, off: newOff, length: length}, nil
}

// Unref releases b's reference. When the refcount transitions from 1 to 0,
// the shared allocation's deallocator is invoked exactly once. *b is zeroed
// so accidental reuse after Unref is visible (nil base slice).
func Unref(b *Buffer) {
	if b == nil || b.s == nil {
		return
	}
	s := b.s
	*b = Buffer{}
	if atomic.AddInt32(&s.refcount, -1) == 0 {
		if s.free != nil {
			s.free(s.opaque, s.base)
		}
	}
}

// Resize grows or shrinks the underlying allocation in place. Permitted
// only when the refcount is exactly one and the allocation uses the
// package's own pool-backed default deallocator (spec §4.1 "resize").
// Expansion preserves the existing [off, off+length) prefix; on growth
// beyond the original allocation's capacity a fresh pooled buffer is
// obtained and the prefix copied across.
func (b *Buffer) Resize(newLen int) error {
	if b == nil || b.s == nil {
		return errors.InvalidArgument("buffer.resize", nil)
	}
	if newLen < 0 {
		return errors.InvalidArgument("buffer.resize", nil)
	}
	if atomic.LoadInt32(&b.s.refcount) != 1 {
		return errors.Unsupported("buffer.resize", nil)
	}
	if !b.s.isPooled {
		return errors.Unsupported("buffer.resize", nil)
	}
	needed := b.off + newLen
	if needed <= cap(b.s.base) {
		if needed > len(b.s.base) {
			b.s.base = b.s.base[:needed]
		}
		b.length = newLen
		return nil
	}
	fresh := bufpool.Get(needed)
	if fresh == nil && needed > 0 {
		return errors.OutOfMemory("buffer.resize", nil)
	}
	copy(fresh, b.s.base[:b.off+b.length])
	old := b.s.base
	b.s.base = fresh
	b.length = newLen
	_ = old // original pooled slice is not returned to the pool: its capacity
	// class no longer matches what a caller handed in; letting it be GC'd
	// is simpler and matches the teacher's "discard mismatched buffers" rule
	// in bufpool.Put.
	return nil
}
