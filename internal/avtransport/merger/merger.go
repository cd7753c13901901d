// Package merger reassembles a logical packet from its wire segments (spec
// §3.6, §4.5): a per-target-sequence state machine that accumulates a
// contiguous payload range list and, when no explicit header packet
// arrives, reconstructs the original header byte-exactly from the
// header_7 slices scattered across the first 7 segments.
//
// This mirrors the teacher's per-CSID ChunkStreamState in
// internal/rtmp/chunk/state.go: a single progressive-assembly struct keyed
// by an identifier (there CSID, here target sequence), accumulating bytes
// until a known total length is reached, then handing a complete unit back
// to the caller and resetting.
package merger

import (
	"fmt"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	"github.com/avtransport/avtransport/internal/errors"
)

const headerLen = 36

// byteRange is a half-open [offset, offset+len) span.
type byteRange struct {
	offset uint32
	length uint32
}

// Assembled is the output of a completed merge: the full header bytes, the
// decoded descriptor they carry, and the concatenated payload.
type Assembled struct {
	Descriptor     wire.Descriptor
	HeaderBytes    [headerLen]byte
	Payload        buffer.Buffer
}

// Merger holds the in-flight assembly state for one target sequence at a
// time (spec §3.6). A connection keeps one Merger per in-flight target
// sequence (conn's mergerFor); concurrent targets use separate Mergers.
type Merger struct {
	active           bool
	targetSeq        uint32
	headerAvailable  bool
	headerMask       uint8 // low 7 bits meaningful
	assembledHdr     [headerLen]byte
	ranges           []byteRange
	accumulated      uint32
	targetTotal      uint32
	payload          buffer.Buffer
}

// New returns a ready-to-use, inactive Merger.
func New() *Merger { return &Merger{} }

// Reset discards any in-flight assembly state, releasing the payload
// buffer. Safe to call whether or not a merge is active.
func (m *Merger) Reset() {
	if !m.payload.IsZero() {
		buffer.Unref(&m.payload)
	}
	*m = Merger{}
}

// segmentView is the subset of a Pktd the merger needs, independent of
// whether it arrived as a full packet, a start-of-series header, or a
// generic-segment.
type segmentView struct {
	descriptor wire.Descriptor
	sequence   uint64
	targetSeq  uint32
	isSegment  bool
	header7    [4]byte
	segOffset  uint32
	segLength  uint32
	totalData  uint32
	headerBuf  []byte // full encoded header, for full/header packets
	payload    buffer.Buffer
	readOnly   bool
}

// Push feeds one incoming packet into the assembly (spec §4.5 steps 1-8).
// It returns (assembled, true, nil) when the logical packet completes,
// (zero, false, nil) when more input is needed, or a non-nil error
// (errors.KindAgain is never returned as an error — "more input needed" is
// signalled via the boolean, matching the merger's own documented policy of
// preserving state on every error path).
func (m *Merger) Push(p *wire.GenericSegment, hdr []byte, payload buffer.Buffer, readOnly bool) (Assembled, bool, error) {
	sv := segmentView{
		descriptor: p.Descriptor(),
		sequence:   p.Sequence(),
		targetSeq:  p.TargetSeq,
		isSegment:  true,
		header7:    p.Header7,
		segOffset:  p.SegOffset,
		segLength:  p.SegLength,
		totalData:  p.PktTotalData,
		payload:    payload,
		readOnly:   readOnly,
	}
	_ = hdr
	return m.push(sv)
}

// PushHeader feeds the authoritative header packet for a segmented series:
// the full decoded header plus the first payload prefix it carries.
func (m *Merger) PushHeader(descriptor wire.Descriptor, sequence uint64, headerBytes []byte, totalData uint32, payload buffer.Buffer, readOnly bool) (Assembled, bool, error) {
	sv := segmentView{
		descriptor: descriptor,
		sequence:   sequence,
		targetSeq:  uint32(sequence),
		isSegment:  false,
		segOffset:  0,
		segLength:  uint32(payload.Len()),
		totalData:  totalData,
		headerBuf:  headerBytes,
		payload:    payload,
		readOnly:   readOnly,
	}
	return m.push(sv)
}

// PushFull feeds a complete, unsegmented packet: equivalent to a
// single-range merge that completes immediately.
func (m *Merger) PushFull(descriptor wire.Descriptor, sequence uint64, headerBytes []byte, payload buffer.Buffer) (Assembled, bool, error) {
	return m.PushHeader(descriptor, sequence, headerBytes, uint32(payload.Len()), payload, false)
}

func (m *Merger) push(p segmentView) (Assembled, bool, error) {
	adopted := false
	if !m.active {
		adopted = m.initFrom(p)
	} else if p.targetSeq != m.targetSeq {
		return Assembled{}, false, errors.New(errors.KindBusy, "merger.push",
			fmt.Errorf("packet targets %d, active merge is %d", p.targetSeq, m.targetSeq))
	}

	if !m.headerAvailable {
		if p.isSegment {
			m.absorbHeader7(p.header7, p.sequence)
		} else {
			copy(m.assembledHdr[:], p.headerBuf)
			m.headerAvailable = true
		}
	}

	if err := m.absorbPayload(p, adopted); err != nil {
		return Assembled{}, false, err
	}

	if m.accumulated == m.targetTotal {
		return m.complete()
	}
	return Assembled{}, false, nil
}

// initFrom begins a new assembly from the first packet seen for a target.
// Per §4.5 step 2: if the packet carries a read-only payload, the segment
// is not at offset 0, or its buffer is smaller than the eventual total,
// copy into a fresh buffer sized to the total; otherwise take ownership of
// the buffer as-is. Returns true when p's payload buffer was adopted
// directly as m.payload (so the caller must not also copy-and-unref it in
// absorbPayload).
func (m *Merger) initFrom(p segmentView) bool {
	m.active = true
	m.targetSeq = p.targetSeq
	m.targetTotal = p.totalData

	if !p.readOnly && p.segOffset == 0 && !p.payload.IsZero() && uint32(p.payload.Len()) >= m.targetTotal {
		m.payload = p.payload
		return true
	}
	fresh, err := buffer.Alloc(int(m.targetTotal))
	if err == nil {
		m.payload = fresh
	}
	return false
}

// absorbHeader7 XORs a segment's 4-byte header slice into the assembled
// header at its sequence%7 position and sets the corresponding mask bit.
// Once all 7 slices are known, it attempts to reconstruct the descriptor
// and decode the header (step 4).
func (m *Merger) absorbHeader7(slice [4]byte, sequence uint64) {
	pos := int(sequence % 7)
	off := pos * 4
	for i := 0; i < 4; i++ {
		m.assembledHdr[off+i] ^= slice[i]
	}
	m.headerMask |= 1 << uint(6-pos)

	if m.headerMask == 0x7F {
		m.tryReconstructHeader()
	}
}

// tryReconstructHeader implements §4.5 step 4's top-slice corruption
// handling: if the reconstructed descriptor is not a known segmentable
// variant, the top 4-byte slice (which carries the descriptor) is assumed
// corrupt; clear its mask bit and keep accumulating rather than declaring
// the header available.
func (m *Merger) tryReconstructHeader() {
	descriptor := wire.Descriptor(uint16(m.assembledHdr[0])<<8 | uint16(m.assembledHdr[1]))
	if !descriptor.Segmentable() {
		m.headerMask &^= 1 << 6
		return
	}
	m.headerAvailable = true
}

// absorbPayload copies p's payload into the assembled buffer at its
// segment offset and merges the covered range into m.ranges (steps 6-7).
// adopted is true when this packet's buffer was already taken as
// m.payload itself by initFrom, so no copy or unref is needed here.
func (m *Merger) absorbPayload(p segmentView, adopted bool) error {
	if p.segOffset+p.segLength > m.targetTotal && m.targetTotal != 0 {
		return errors.Range("merger.push", fmt.Errorf("segment [%d,%d) exceeds total %d", p.segOffset, p.segOffset+p.segLength, m.targetTotal))
	}

	if !adopted && !p.payload.IsZero() {
		dst := m.payload.Data()
		src := p.payload.Data()
		n := copy(dst[p.segOffset:], src)
		if uint32(n) != p.segLength {
			// Signalled size disagreed with the buffer actually carried;
			// the actual copied length is authoritative (§4.5, failure
			// semantics: "mismatched signalled vs actual segment size...
			// the actual size is authoritative").
			p.segLength = uint32(n)
		}
		buffer.Unref(&p.payload)
	}

	m.mergeRange(byteRange{offset: p.segOffset, length: p.segLength})
	return nil
}

// mergeRange inserts r into the sorted, disjoint range list, consolidating
// with any adjacent or overlapping entries, and updates accumulated.
func (m *Merger) mergeRange(r byteRange) {
	if r.length == 0 {
		return
	}
	i := 0
	for i < len(m.ranges) && m.ranges[i].offset < r.offset {
		i++
	}
	m.ranges = append(m.ranges, byteRange{})
	copy(m.ranges[i+1:], m.ranges[i:])
	m.ranges[i] = r

	merged := m.ranges[:0]
	for _, cur := range m.ranges {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if cur.offset <= last.offset+last.length {
				end := last.offset + last.length
				curEnd := cur.offset + cur.length
				if curEnd > end {
					last.length += curEnd - end
				}
				continue
			}
		}
		merged = append(merged, cur)
	}
	m.ranges = merged

	var total uint32
	for _, rg := range m.ranges {
		total += rg.length
	}
	m.accumulated = total
}

func (m *Merger) complete() (Assembled, bool, error) {
	descriptor := wire.Descriptor(uint16(m.assembledHdr[0])<<8 | uint16(m.assembledHdr[1]))
	out := Assembled{
		Descriptor:  descriptor,
		HeaderBytes: m.assembledHdr,
		Payload:     m.payload,
	}
	m.payload = buffer.Buffer{} // ownership transferred to caller
	*m = Merger{}
	return out, true, nil
}

// Active reports whether a merge is currently in flight.
func (m *Merger) Active() bool { return m.active }

// TargetSeq returns the target sequence of the in-flight merge, if any.
func (m *Merger) TargetSeq() (uint32, bool) { return m.targetSeq, m.active }
