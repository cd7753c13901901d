// Package scheduler implements the per-stream FIFO, MTU-aware
// segmentation, round-robin interleaving, and sequence allocation of spec
// §3.7/§4.6: it turns a caller's logical packets into a stream of encoded,
// MTU-sized Pktd entries ready for a transport back-end.
//
// Grounded on the teacher's internal/rtmp/relay package: DestinationManager
// fans a single relay message out to N destination send-queues; here, the
// scheduler fans a single output stream in from N per-stream-id send
// queues, draining them round-robin instead of broadcasting to them.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/time/rate"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/fec"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	"github.com/avtransport/avtransport/internal/errors"
	"github.com/avtransport/avtransport/internal/metrics"
)

// pktd builds a staged Pktd, hashing its payload (when non-empty) so the
// transport back-end can check for in-process corruption between staging
// and write (spec §3.3's optional payload hash).
func pktd(descriptor wire.Descriptor, header []byte, payload buffer.Buffer, hasPayload bool) fifo.Pktd {
	p := fifo.Pktd{Descriptor: descriptor, Header: header, Payload: payload, HasPayload: hasPayload}
	if hasPayload {
		p.Hash = xxhash.Sum64(payload.Data())
		p.HasHash = true
	}
	return p
}

// BandwidthUnlimited is the sentinel bandwidth budget that disables
// round-robin interleaving entirely (spec §4.6, §9's "unlimited bandwidth"
// escape hatch): every push is segmented and emitted immediately.
const BandwidthUnlimited = int64(-1)

// Rational mirrors wire.Rational to avoid an import cycle back into wire
// from packages that only need the timebase shape.
type Rational = wire.Rational

// pending is one not-yet-segmented caller packet waiting in a stream's
// queue. Segmentation is deferred until drain time under interleaving
// (§4.6: "sequence numbers are assigned at segmentation time, not at push
// time"), so streams queue the decoded packet itself, not pre-encoded
// bytes.
type pending struct {
	packet  wire.Packet
	payload buffer.Buffer
}

// stream holds per-stream-id scheduling state (spec §3.7).
type stream struct {
	id       uint16
	queue    []pending
	timebase Rational
}

// Scheduler is the per-connection segmentation/interleaving engine.
// Not safe for concurrent Push calls from multiple goroutines on the same
// stream id; the global sequence counter is the only cross-thread
// observable state (spec §5), matching the single-threaded-cooperative
// model.
type Scheduler struct {
	streams     map[uint16]*stream
	activeOrder []uint16 // densely packed active-stream index list

	staging  fifo.FIFO
	freelist []*fifo.FIFO

	minPktSize int
	maxPktSize int
	bandwidth  int64
	limiter    *rate.Limiter
	seqCounter uint64
	quantum    int
}

// New creates a Scheduler bound to the given MTU-derived packet size range
// and bandwidth budget (BandwidthUnlimited disables interleaving).
func New(minPktSize, maxPktSize int, bandwidthBps int64) *Scheduler {
	s := &Scheduler{
		streams:    make(map[uint16]*stream),
		minPktSize: minPktSize,
		maxPktSize: maxPktSize,
		bandwidth:  bandwidthBps,
	}
	if bandwidthBps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(bandwidthBps), maxPktSize)
	}
	return s
}

// NextSequence atomically assigns and returns the next sequence number.
// Sequence numbers are assigned at segmentation time, not push time (§4.6).
func (s *Scheduler) NextSequence() uint64 { return atomic.AddUint64(&s.seqCounter, 1) - 1 }

// SeedSequence sets the next value NextSequence will return. Used once, by
// the connection pipeline's create, to derive the session-start packet's
// sequence from the low 32 bits of the wall-clock time in nanoseconds
// rather than starting every connection's counter at zero (spec §4.8).
func (s *Scheduler) SeedSequence(seq uint64) { atomic.StoreUint64(&s.seqCounter, seq) }

// gate blocks until the limiter admits n bytes, enforcing the configured
// bandwidth_bps budget (§4.6) before a segment is released to staging.
// No-op when bandwidth is unlimited (s.limiter is nil in that case).
func (s *Scheduler) gate(n int) {
	if s.limiter == nil {
		return
	}
	_ = s.limiter.WaitN(context.Background(), n)
}

func (s *Scheduler) streamFor(id uint16) *stream {
	st, ok := s.streams[id]
	if !ok {
		st = &stream{id: id}
		s.streams[id] = st
	}
	return st
}

func (s *Scheduler) markActive(id uint16) {
	st := s.streams[id]
	if len(st.queue) == 1 {
		// Transitioned from empty to non-empty: (re-)join the active set.
		s.activeOrder = append(s.activeOrder, id)
	}
}

// Push enqueues a caller packet for streamID (0xFFFF for non-data control
// packets, which are never interleaved). It segments and encodes
// immediately when interleaving is disabled; otherwise the packet is
// queued for the next round-robin drain via Pop.
func (s *Scheduler) Push(streamID uint16, p wire.Packet, payload buffer.Buffer) error {
	metrics.PacketsScheduled.WithLabelValues(fmt.Sprint(streamID)).Inc()
	if s.bandwidth == BandwidthUnlimited || streamID == 0xFFFF {
		return s.segmentAndStage(p, payload, &s.staging)
	}

	st := s.streamFor(streamID)
	size := p.Descriptor().HeaderLen() + payload.Len()
	if s.quantum == 0 || size < s.quantum {
		s.quantum = size
	}
	st.queue = append(st.queue, pending{packet: p, payload: payload})
	s.markActive(streamID)
	return nil
}

// segmentAndStage implements §4.6's per-packet processing: assign a
// sequence number, and either emit the packet whole or split it into
// MTU-sized segments that scatter the original header across the first 7
// via header_7.
func (s *Scheduler) segmentAndStage(p wire.Packet, payload buffer.Buffer, out *fifo.FIFO) error {
	seq := s.NextSequence()
	p.SetSequence(seq)
	headerLen := p.Descriptor().HeaderLen()
	total := payload.Len()

	if headerLen+total <= s.maxPktSize {
		hdr, err := wire.Encode(p)
		if err != nil {
			return err
		}
		protectLargeHeader(p, hdr)
		s.gate(len(hdr) + payload.Len())
		out.Push(pktd(p.Descriptor(), hdr, payload, !payload.IsZero()))
		metrics.SegmentsEmitted.Inc()
		return nil
	}
	return s.segment(p, payload, seq, headerLen, total, out)
}

// protectLargeHeader fills the FEC parity suffix of a large-header variant's
// encoded bytes in place (§4.3's encode_2784_2016, applied at the codec
// boundary per the resolved Open Question rather than inside wire.Encode
// itself). No-op for every other variant.
func protectLargeHeader(p wire.Packet, hdr []byte) {
	if p.Descriptor() != wire.DescVideoInfo || len(hdr) != wire.LargeHeaderLen {
		return
	}
	block := (*[fec.LargeBlockLen]byte)(hdr[wire.MinHeaderLen:])
	_ = fec.Encode2784_2016(block)
}

// segment splits p into a start-of-series packet plus generic-segments
// covering the remainder, per §4.6's segmentation rule.
func (s *Scheduler) segment(p wire.Packet, payload buffer.Buffer, startSeq uint64, headerLen, total int, out *fifo.FIFO) error {
	maxPayload := s.maxPktSize - headerLen
	if maxPayload <= 0 {
		return errors.InvalidArgument("scheduler.segment", fmt.Errorf("max_pkt_size %d too small for header %d", s.maxPktSize, headerLen))
	}

	segFlagDescriptor := markSegmented(p)
	originalHdr, err := wire.Encode(p)
	if err != nil {
		return err
	}

	firstLen := maxPayload
	if firstLen > total {
		firstLen = total
	}
	firstPayload, err := payload.Reference(0, firstLen)
	if err != nil {
		return err
	}
	s.gate(len(originalHdr) + firstLen)
	out.Push(pktd(segFlagDescriptor, originalHdr, firstPayload, firstLen > 0))
	metrics.SegmentsEmitted.Inc()

	offset := firstLen
	for offset < total {
		segLen := s.maxPktSize - wire.MinHeaderLen
		if segLen > total-offset {
			segLen = total - offset
		}
		seq := s.NextSequence()
		final := offset+segLen == total

		seg := &wire.GenericSegment{
			Final: final, TargetSeq: uint32(startSeq), StreamID: streamIDOf(p),
			SegOffset: uint32(offset), SegLength: uint32(segLen), PktTotalData: uint32(total),
		}
		seg.SetSequence(seq)
		copy(seg.Header7[:], header7Slice(originalHdr, seq))

		segHdr, err := wire.Encode(seg)
		if err != nil {
			return err
		}
		segPayload, err := payload.Reference(offset, segLen)
		if err != nil {
			return err
		}
		s.gate(len(segHdr) + segLen)
		out.Push(pktd(seg.Descriptor(), segHdr, segPayload, segLen > 0))
		metrics.SegmentsEmitted.Inc()
		offset += segLen
	}
	buffer.Unref(&payload)
	return nil
}

// header7Slice returns the 4 bytes of hdr at offset 4*(seq%7), zero-padded
// if hdr is shorter than that (spec §4.5/§4.6).
func header7Slice(hdr []byte, seq uint64) []byte {
	off := 4 * int(seq%7)
	out := make([]byte, 4)
	if off < len(hdr) {
		end := off + 4
		if end > len(hdr) {
			end = len(hdr)
		}
		copy(out, hdr[off:end])
	}
	return out
}

// markSegmented sets the variant's segmented flag where one exists
// (currently stream-data's bit 0, per types.go). Variants without a
// segmented flag bit are returned with their descriptor unchanged: the
// presence of a following generic-segment with the same target_seq is
// itself sufficient signal to the merger.
func markSegmented(p wire.Packet) wire.Descriptor {
	if sd, ok := p.(*wire.StreamData); ok {
		sd.PktSegmented = true
	}
	return p.Descriptor()
}

func streamIDOf(p wire.Packet) uint16 {
	switch v := p.(type) {
	case *wire.StreamData:
		return v.StreamID
	case *wire.VideoInfo:
		return v.StreamID
	case *wire.VideoOrientation:
		return v.StreamID
	case *wire.StreamIndex:
		return v.StreamID
	case *wire.EOS:
		return v.StreamID
	default:
		return 0
	}
}

// Pop hands the staging FIFO to the caller, draining one round-robin
// quantum from every active stream first (spec §4.6's pop/done contract).
// The caller must eventually call Done to return the emptied FIFO.
func (s *Scheduler) Pop() (*fifo.FIFO, error) {
	if err := s.drainRoundRobin(); err != nil {
		return nil, err
	}
	out := s.takeStaging()
	return out, nil
}

// Flush segments and emits every remaining queued packet immediately,
// bypassing the round-robin quantum (spec §4.6 "flush").
func (s *Scheduler) Flush() (*fifo.FIFO, error) {
	for _, id := range s.activeOrder {
		st := s.streams[id]
		for _, pend := range st.queue {
			if err := s.segmentAndStage(pend.packet, pend.payload, &s.staging); err != nil {
				return nil, err
			}
		}
		st.queue = st.queue[:0]
	}
	s.activeOrder = s.activeOrder[:0]
	out := s.takeStaging()
	return out, nil
}

func (s *Scheduler) takeStaging() *fifo.FIFO {
	out := s.getFreeFIFO()
	out.Move(&s.staging)
	return out
}

// Done returns an emptied FIFO to the scheduler's free-list, avoiding
// allocation churn between Pop and Done (spec §4.6, §5).
func (s *Scheduler) Done(f *fifo.FIFO) {
	f.Clear()
	s.freelist = append(s.freelist, f)
}

func (s *Scheduler) getFreeFIFO() *fifo.FIFO {
	if n := len(s.freelist); n > 0 {
		f := s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		return f
	}
	return &fifo.FIFO{}
}

// drainRoundRobin pops from every active stream, in round-robin order, up
// to the scheduler's quantum (the smallest observed packet size across
// active streams) bytes per stream per cycle, segmenting each popped
// packet and appending the resulting segments to staging. Each stream
// always yields at least one packet even if that packet alone exceeds the
// quantum, so a single oversized packet cannot starve the stream. Streams
// that empty out are dropped from the active set; they rejoin it on their
// next Push (§3.7, §4.6).
func (s *Scheduler) drainRoundRobin() error {
	if s.bandwidth == BandwidthUnlimited {
		return nil // already staged eagerly by Push
	}
	still := s.activeOrder[:0]
	for _, id := range s.activeOrder {
		st := s.streams[id]
		spent := 0
		for len(st.queue) > 0 {
			pend := st.queue[0]
			size := pend.packet.Descriptor().HeaderLen() + pend.payload.Len()
			if spent > 0 && spent+size > s.quantum {
				break
			}
			st.queue = st.queue[1:]
			spent += size
			if err := s.segmentAndStage(pend.packet, pend.payload, &s.staging); err != nil {
				return err
			}
		}
		if len(st.queue) > 0 {
			still = append(still, id)
		}
	}
	s.activeOrder = still
	return nil
}
