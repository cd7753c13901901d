// Package fifo implements the packet FIFO shared between the scheduler,
// the connection pipeline, and the transport back-ends (spec §3.4/§4.7):
// an owned, growable sequence of Pktd entries.
//
// Grounded on the teacher's relay destination queueing
// (internal/rtmp/relay/destination.go) and its plain-slice buffering
// idiom rather than container/list: a FIFO here is short-lived and small,
// so a slice with an index-based pop is simpler and cache-friendlier than
// a linked list.
package fifo

import (
	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
)

// Pktd is a packet descriptor paired with its encoded header bytes, an
// optional payload buffer reference, and an optional payload hash (spec
// §3.3), checked locally by the transport back-end just before the bytes
// leave the process.
type Pktd struct {
	Descriptor wire.Descriptor
	Header     []byte
	Payload    buffer.Buffer
	HasPayload bool
	Hash       uint64
	HasHash    bool
}

// Size returns the on-wire footprint of this entry: header plus payload.
func (p Pktd) Size() int {
	n := len(p.Header)
	if p.HasPayload {
		n += p.Payload.Len()
	}
	return n
}

// FIFO is an owned queue of Pktd. The zero value is an empty, usable FIFO.
type FIFO struct {
	entries []Pktd
	head    int
	bytes   int
}

// Push appends p to the tail, taking ownership of its payload reference.
func (f *FIFO) Push(p Pktd) {
	f.entries = append(f.entries, p)
	f.bytes += p.Size()
}

// PushRef appends p after taking a fresh reference to its payload, leaving
// the caller's own reference untouched (spec §4.7 "push-by-reference").
func (f *FIFO) PushRef(p Pktd) error {
	if p.HasPayload {
		ref, err := p.Payload.Reference(0, 0)
		if err != nil {
			return err
		}
		p.Payload = ref
	}
	f.Push(p)
	return nil
}

// Len returns the number of entries currently queued.
func (f *FIFO) Len() int { return len(f.entries) - f.head }

// Size returns the sum of Pktd.Size() (encoded header length plus payload
// length) across queued entries.
func (f *FIFO) Size() int { return f.bytes }

// Peek returns the front entry without removing it.
func (f *FIFO) Peek() (Pktd, bool) {
	if f.Len() == 0 {
		return Pktd{}, false
	}
	return f.entries[f.head], true
}

// Pop removes and returns the front entry, transferring payload ownership
// to the caller.
func (f *FIFO) Pop() (Pktd, bool) {
	if f.Len() == 0 {
		return Pktd{}, false
	}
	p := f.entries[f.head]
	f.entries[f.head] = Pktd{}
	f.head++
	f.bytes -= p.Size()
	f.compact()
	return p, true
}

// compact reclaims the backing array once the consumed prefix dominates it,
// matching the teacher's pattern of periodically reslicing rather than
// shifting on every pop.
func (f *FIFO) compact() {
	if f.head > 0 && f.head*2 >= len(f.entries) {
		remaining := len(f.entries) - f.head
		copy(f.entries, f.entries[f.head:])
		f.entries = f.entries[:remaining]
		f.head = 0
	}
}

// Move transfers all of src's entries to f, leaving src empty. Ownership of
// every payload reference moves with it — no refcount traffic.
func (f *FIFO) Move(src *FIFO) {
	for i := src.head; i < len(src.entries); i++ {
		f.entries = append(f.entries, src.entries[i])
	}
	f.bytes += src.bytes
	*src = FIFO{}
}

// Copy appends a reference-cloned copy of every entry currently in src to
// f, leaving src untouched.
func (f *FIFO) Copy(src *FIFO) error {
	for i := src.head; i < len(src.entries); i++ {
		if err := f.PushRef(src.entries[i]); err != nil {
			return err
		}
	}
	return nil
}

// DropFromTailByCount removes up to n entries from the tail (newest
// first), releasing their payload references, and reports how many were
// actually dropped.
func (f *FIFO) DropFromTailByCount(n int) int {
	dropped := 0
	for dropped < n && f.Len() > 0 {
		last := len(f.entries) - 1
		p := f.entries[last]
		f.bytes -= p.Size()
		if p.HasPayload {
			buffer.Unref(&p.Payload)
		}
		f.entries = f.entries[:last]
		dropped++
	}
	return dropped
}

// DropFromTailByBytes removes entries from the tail until the FIFO's total
// byte size is at or below ceiling, keeping the oldest entries.
func (f *FIFO) DropFromTailByBytes(ceiling int) int {
	dropped := 0
	for f.bytes > ceiling && f.Len() > 0 {
		last := len(f.entries) - 1
		p := f.entries[last]
		f.bytes -= p.Size()
		if p.HasPayload {
			buffer.Unref(&p.Payload)
		}
		f.entries = f.entries[:last]
		dropped++
	}
	return dropped
}

// Clear releases every queued payload reference and empties the FIFO.
func (f *FIFO) Clear() {
	for i := f.head; i < len(f.entries); i++ {
		if f.entries[i].HasPayload {
			p := f.entries[i]
			buffer.Unref(&p.Payload)
		}
	}
	*f = FIFO{}
}
