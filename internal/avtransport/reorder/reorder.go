// Package reorder implements the optional receive-side reorder stage of
// spec §4.9: packets that arrive out of sequence order are staged by their
// own packet sequence number until the in-order range can be handed to the
// merger.
//
// Grounded on the teacher's internal/rtmp/chunk.ChunkStreamState keyed-map
// pattern (one progressive-assembly slot per identifier, here packet
// sequence instead of chunk-stream id), the same pattern the merger itself
// borrows from.
package reorder

import (
	"sort"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
)

// Segment is one incoming wire unit queued for in-order release.
type Segment struct {
	Descriptor wire.Descriptor
	Sequence   uint64
	Header     []byte
	Payload    buffer.Buffer
	HasPayload bool
}

func (s Segment) size() int {
	n := len(s.Header)
	if s.HasPayload {
		n += s.Payload.Len()
	}
	return n
}

// Buffer stages out-of-order segments and releases them once the expected
// next sequence arrives, tail-dropping (newest entries first, by the
// resolved Open Question in DESIGN.md) once the staged byte total exceeds
// ceiling.
type Buffer struct {
	ceiling int
	bytes   int
	next    uint64 // next sequence expected for in-order release
	seeded  bool   // whether next has been set from the first observed segment yet
	pending map[uint64]Segment
	Drops   int // count of segments dropped under pressure, for metrics
}

// New returns a reorder Buffer with the given byte ceiling. The expected
// starting sequence is not known in advance — connections seed their
// sequence counter from the current time (conn.Create), not zero — so the
// first segment Push observes sets next rather than New hardcoding it. A
// ceiling of 0 disables staging entirely: Push always reports every
// segment ready, in arrival order, i.e. reordering is a no-op.
func New(ceiling int) *Buffer {
	return &Buffer{ceiling: ceiling, pending: make(map[uint64]Segment)}
}

// Push stages seg and returns the run of now-in-order segments ready for
// the merger, oldest first. The caller must release (via buffer.Unref)
// every returned segment's payload once consumed.
func (b *Buffer) Push(seg Segment) []Segment {
	if b.ceiling == 0 {
		return []Segment{seg}
	}
	if !b.seeded {
		b.next = seg.Sequence
		b.seeded = true
	}
	if seg.Sequence < b.next {
		// Stale retransmit of an already-released sequence: drop it.
		if seg.HasPayload {
			buffer.Unref(&seg.Payload)
		}
		b.Drops++
		return nil
	}
	b.pending[seg.Sequence] = seg
	b.bytes += seg.size()
	b.enforceCeiling()

	var ready []Segment
	for {
		s, ok := b.pending[b.next]
		if !ok {
			break
		}
		delete(b.pending, b.next)
		b.bytes -= s.size()
		ready = append(ready, s)
		b.next++
	}
	return ready
}

// enforceCeiling drops the highest-sequence (newest) staged entries while
// the staged byte total exceeds the ceiling, preserving the oldest entries
// nearest to release (spec §4.9, DESIGN.md Open Question #7).
func (b *Buffer) enforceCeiling() {
	for b.bytes > b.ceiling && len(b.pending) > 0 {
		var worst uint64
		first := true
		for seq := range b.pending {
			if first || seq > worst {
				worst, first = seq, false
			}
		}
		s := b.pending[worst]
		delete(b.pending, worst)
		b.bytes -= s.size()
		if s.HasPayload {
			buffer.Unref(&s.Payload)
		}
		b.Drops++
	}
}

// Pending returns the currently staged sequences, sorted, for diagnostics
// and tests.
func (b *Buffer) Pending() []uint64 {
	out := make([]uint64, 0, len(b.pending))
	for seq := range b.pending {
		out = append(out, seq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Reset releases every staged segment and clears state.
func (b *Buffer) Reset() {
	for _, s := range b.pending {
		if s.HasPayload {
			buffer.Unref(&s.Payload)
		}
	}
	b.pending = make(map[uint64]Segment)
	b.bytes = 0
	b.next = 0
	b.seeded = false
}
