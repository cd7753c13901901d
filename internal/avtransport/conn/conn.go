// Package conn implements the connection pipeline of spec §4.8: the glue
// that takes a caller packet through the scheduler to a transport back-end
// on send, and from a transport back-end through the reorder buffer and
// merger back to a caller callback on receive.
//
// Grounded on the teacher's internal/rtmp/conn.Connection: an accepted
// connection wraps one net.Conn, owns a read loop and a write loop, and
// exposes Send/Start/Close. Here there is one logical stream of wire
// units in each direction instead of RTMP's chunked message stream, and
// the caller drives send/receive synchronously (spec §5's single-threaded
// cooperative model) rather than via background goroutines — so the
// read/write-loop split collapses into a request/response-style
// Process/Receive pair the caller invokes directly.
package conn

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/avtransport/avtransport/internal/avtransport/address"
	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/fec"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
	"github.com/avtransport/avtransport/internal/avtransport/merger"
	"github.com/avtransport/avtransport/internal/avtransport/reorder"
	"github.com/avtransport/avtransport/internal/avtransport/scheduler"
	"github.com/avtransport/avtransport/internal/avtransport/transport"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	"github.com/avtransport/avtransport/internal/errors"
	"github.com/avtransport/avtransport/internal/logger"
	"github.com/avtransport/avtransport/internal/metrics"
)

// videoInfoFECBudget bounds the number of single-bit correction attempts
// tried against a received video-info header's parity extension before
// giving up and decoding it as-is (spec §4.3's iteration budget).
const videoInfoFECBudget = 16

// CreateInfo configures Create (spec §4.8 "create(ctx, info)").
type CreateInfo struct {
	URL          string // parsed by internal/avtransport/address
	Listen       bool
	BandwidthBps int64 // scheduler.BandwidthUnlimited disables interleaving
	MinPktSize   int   // 0 defaults to 64
	ProducerName string

	// ReorderCeiling enables the optional receive-side reorder stage
	// (§4.9) when nonzero, as a byte ceiling for staged out-of-order
	// segments.
	ReorderCeiling int

	// Compress snappy-compresses outgoing payloads at or above
	// compressionMinSize for every variant that carries a compression
	// field (spec §3.2), tagging the field so the peer decompresses on
	// receive.
	Compress bool

	// OnAssembled is invoked once per logical packet the merger completes
	// from generic-segments; OnPacket is invoked for every complete
	// packet that arrived whole (never segmented). Both may be nil.
	OnAssembled func(merger.Assembled)
	OnPacket    func(wire.Packet, buffer.Buffer)
}

// Connection is the per-session send/receive pipeline (spec §4.8).
type Connection struct {
	id    string
	addr  address.Address
	tr    transport.Transport
	sched *scheduler.Scheduler
	log   *slog.Logger

	sessionUUID uuid.UUID

	mergers    map[uint32]*merger.Merger
	reorderBuf *reorder.Buffer

	onAssembled func(merger.Assembled)
	onPacket    func(wire.Packet, buffer.Buffer)
	compress    bool

	lastMirror *fifo.FIFO // pre-transport copy, kept for retry after a write error
}

var connCounter uint64

func nextID() string { return fmt.Sprintf("avt%06d", atomic.AddUint64(&connCounter, 1)) }

// defaultMinPktSize is used when CreateInfo.MinPktSize is unset; small
// enough that the scheduler's quantum tracking (smallest observed packet)
// never forces needless segmentation of tiny control packets.
const defaultMinPktSize = 64

// Create parses addr, opens the matching transport back-end, queries its
// MTU, initializes the scheduler, and sends a session-start packet whose
// sequence is seeded from the low 32 bits of the wall-clock time in
// nanoseconds (time.Now().UnixNano()), not from a monotonic clock reading
// (spec §4.8).
func Create(ctx context.Context, info CreateInfo) (*Connection, error) {
	addr, err := address.Parse(info.URL, info.Listen)
	if err != nil {
		return nil, err
	}
	tr, err := transport.Open(ctx, addr)
	if err != nil {
		return nil, err
	}

	minPkt := info.MinPktSize
	if minPkt <= 0 {
		minPkt = defaultMinPktSize
	}
	bandwidth := info.BandwidthBps
	if bandwidth == 0 {
		bandwidth = scheduler.BandwidthUnlimited
	}
	sched := scheduler.New(minPkt, tr.MaxPktLen(), bandwidth)
	sched.SeedSequence(uint64(time.Now().UnixNano()) & 0xFFFFFFFF)

	id := nextID()
	c := &Connection{
		id:          id,
		addr:        addr,
		tr:          tr,
		sched:       sched,
		log:         logger.WithConnection(logger.Logger(), id, addr.String()),
		sessionUUID: uuid.New(),
		mergers:     make(map[uint32]*merger.Merger),
		onAssembled: info.OnAssembled,
		onPacket:    info.OnPacket,
		compress:    info.Compress,
	}
	if info.ReorderCeiling > 0 {
		c.reorderBuf = reorder.New(info.ReorderCeiling)
	}

	ss := &wire.SessionStart{SessionUUID: [16]byte(c.sessionUUID), ProducerName: info.ProducerName}
	if err := c.sched.Push(0xFFFF, ss, buffer.Buffer{}); err != nil {
		_ = tr.Close()
		return nil, err
	}
	if err := c.Process(transport.Indefinite); err != nil {
		_ = tr.Close()
		return nil, err
	}
	metrics.ActiveConnections.Inc()
	c.log.Info("connection created", "session_uuid", c.sessionUUID.String(), "mtu", tr.MaxPktLen())
	return c, nil
}

// ID returns the connection's logical identifier (for logging).
func (c *Connection) ID() string { return c.id }

// Address returns the parsed address this connection is bound to.
func (c *Connection) Address() address.Address { return c.addr }

// Send forwards a caller packet to the scheduler (spec §4.8 "send(pkt)").
// streamID is 0xFFFF for non-data control packets, which are never
// interleaved with stream data.
func (c *Connection) Send(streamID uint16, p wire.Packet, payload buffer.Buffer) error {
	p, payload = maybeCompress(p, payload, c.compress)
	return c.sched.Push(streamID, p, payload)
}

// Process pops one FIFO from the scheduler, mirrors it for retry, and
// writes it to the transport (spec §4.8 "process(timeout)"). On transport
// error the drained FIFO is still returned to the scheduler's free-list
// (it has already been written-from, successfully or not); the mirror is
// kept so the caller can retry via Retry.
func (c *Connection) Process(timeout time.Duration) error {
	f, err := c.sched.Pop()
	if err != nil {
		return err
	}
	return c.processFIFO(f, timeout)
}

// Flush drains every queued packet across all streams immediately,
// bypassing the round-robin quantum, then flushes the transport (spec
// §4.8 "flush(timeout)").
func (c *Connection) Flush(timeout time.Duration) error {
	f, err := c.sched.Flush()
	if err != nil {
		return err
	}
	if err := c.processFIFO(f, timeout); err != nil {
		return err
	}
	return c.tr.Flush(context.Background(), timeout)
}

func (c *Connection) processFIFO(f *fifo.FIFO, timeout time.Duration) error {
	mirror := &fifo.FIFO{}
	if err := mirror.Copy(f); err != nil {
		c.sched.Done(f)
		mirror.Clear()
		return err
	}

	_, err := c.tr.WriteVec(context.Background(), f, timeout)
	c.sched.Done(f)

	if err != nil {
		if c.lastMirror != nil {
			c.lastMirror.Clear()
		}
		c.lastMirror = mirror
		c.log.Error("transport write failed", "error", err)
		return err
	}
	mirror.Clear()
	return nil
}

// Retry resends the FIFO mirrored by the most recent failed Process/Flush
// call, if any. Returns nil (a no-op) when there is nothing to retry.
func (c *Connection) Retry(timeout time.Duration) error {
	if c.lastMirror == nil {
		return nil
	}
	mirror := c.lastMirror
	c.lastMirror = nil
	_, err := c.tr.WriteVec(context.Background(), mirror, timeout)
	mirror.Clear()
	if err != nil {
		c.log.Error("retry failed", "error", err)
	}
	return err
}

// Receive reads one wire unit from the transport and routes it through
// the optional reorder stage and the merger, invoking OnAssembled/OnPacket
// as logical packets complete (spec §5's receive data flow: transport.read
// → reorder buffer (optional) → header decode → merger → caller callback).
func (c *Connection) Receive(timeout time.Duration) error {
	buf := make([]byte, c.tr.MaxPktLen())
	n, _, err := c.tr.ReadInput(context.Background(), buf, timeout)
	if err != nil {
		return err
	}
	return c.ingest(buf[:n])
}

func (c *Connection) ingest(data []byte) error {
	if len(data) < 10 {
		return errors.InvalidArgument("conn.receive", fmt.Errorf("wire unit too short: %d bytes", len(data)))
	}
	descriptor := wire.Descriptor(binary.BigEndian.Uint16(data[:2]))
	sequence := binary.BigEndian.Uint64(data[2:10])

	headerLen := descriptor.HeaderLen()
	if headerLen > len(data) {
		headerLen = len(data)
	}
	header := append([]byte(nil), data[:headerLen]...)
	payloadBytes := data[headerLen:]

	seg := reorder.Segment{Descriptor: descriptor, Sequence: sequence, Header: header}
	if len(payloadBytes) > 0 {
		seg.HasPayload = true
		seg.Payload = buffer.Create(append([]byte(nil), payloadBytes...), nil, nil)
	}

	var ready []reorder.Segment
	if c.reorderBuf != nil {
		ready = c.reorderBuf.Push(seg)
		metrics.ReorderDrops.Set(float64(c.reorderBuf.Drops))
	} else {
		ready = []reorder.Segment{seg}
	}

	var merr *multierror.Error
	for _, s := range ready {
		if err := c.routeSegment(s); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

func (c *Connection) routeSegment(s reorder.Segment) error {
	if s.Descriptor.IsSegment() {
		p, err := wire.Decode(s.Descriptor, s.Header)
		if err != nil {
			return err
		}
		gs, ok := p.(*wire.GenericSegment)
		if !ok {
			return errors.InvalidArgument("conn.route", fmt.Errorf("decoded segment descriptor yielded %T", p))
		}
		assembled, done, err := c.mergerFor(gs.TargetSeq).Push(gs, s.Header, s.Payload, true)
		if err != nil {
			return err
		}
		if done {
			c.deliverAssembled(gs.TargetSeq, assembled)
		}
		return nil
	}

	recoverLargeHeader(s.Descriptor, s.Header)
	p, err := wire.Decode(s.Descriptor, s.Header)
	if err != nil {
		return err
	}

	total, hasTotal := totalPayloadOf(p)
	var got uint32
	if s.HasPayload {
		got = uint32(s.Payload.Len())
	}
	if hasTotal && total > got {
		targetSeq := uint32(p.Sequence())
		assembled, done, err := c.mergerFor(targetSeq).PushHeader(p.Descriptor(), p.Sequence(), s.Header, total, s.Payload, true)
		if err != nil {
			return err
		}
		if done {
			c.deliverAssembled(targetSeq, assembled)
		}
		return nil
	}

	payload, err := decompressIfNeeded(p, s.Payload)
	if err != nil {
		return err
	}
	if c.onPacket != nil {
		c.onPacket(p, payload)
	} else if !payload.IsZero() {
		buffer.Unref(&payload)
	}
	return nil
}

// recoverLargeHeader verifies (and attempts to correct within budget) a
// video-info header's FEC parity extension in place before decode (§4.3's
// decode_2784_2016, applied at the codec boundary). No-op for every other
// variant or a header shorter than the large layout.
func recoverLargeHeader(descriptor wire.Descriptor, header []byte) {
	if descriptor != wire.DescVideoInfo || len(header) != wire.LargeHeaderLen {
		return
	}
	block := (*[fec.LargeBlockLen]byte)(header[wire.MinHeaderLen:])
	ok, err := fec.Decode2784_2016(block, videoInfoFECBudget)
	if err == nil && ok {
		metrics.FECRecoveries.Inc()
	}
}

func (c *Connection) mergerFor(targetSeq uint32) *merger.Merger {
	m, ok := c.mergers[targetSeq]
	if !ok {
		m = merger.New()
		c.mergers[targetSeq] = m
	}
	return m
}

func (c *Connection) deliverAssembled(targetSeq uint32, a merger.Assembled) {
	delete(c.mergers, targetSeq)
	metrics.MergerCompletions.Inc()
	if p, err := wire.Decode(a.Descriptor, a.HeaderBytes[:]); err == nil {
		if payload, derr := decompressIfNeeded(p, a.Payload); derr == nil {
			a.Payload = payload
		}
	}
	if c.onAssembled != nil {
		c.onAssembled(a)
	} else if !a.Payload.IsZero() {
		buffer.Unref(&a.Payload)
	}
}

// totalPayloadOf reports the variant's declared total payload length, for
// the variants that carry one. Variants with no separate payload (session
// control packets, and the fixed-scalar video-info/orientation/index
// headers) report ok=false: a received instance of one of these is always
// complete as received.
func totalPayloadOf(p wire.Packet) (total uint32, ok bool) {
	switch v := p.(type) {
	case *wire.StreamData:
		return v.DataLength, true
	case *wire.LUTICC:
		return v.TotalPayloadLength, true
	case *wire.FontData:
		return v.TotalPayloadLength, true
	case *wire.Metadata:
		return v.TotalPayloadLength, true
	case *wire.StreamConfig:
		return v.TotalPayloadLength, true
	case *wire.UserData:
		return v.TotalPayloadLength, true
	default:
		return 0, false
	}
}

// Destroy closes the transport, releases every buffered FIFO and in-flight
// merger, and frees the reorder buffer (spec §4.8 "destroy"). Errors from
// each independent teardown step are aggregated rather than short-circuit
// returned, the way the teacher's relay DestinationManager aggregates
// per-destination close errors.
func (c *Connection) Destroy() error {
	var merr *multierror.Error

	if c.lastMirror != nil {
		c.lastMirror.Clear()
		c.lastMirror = nil
	}
	for seq, m := range c.mergers {
		m.Reset()
		delete(c.mergers, seq)
	}
	if c.reorderBuf != nil {
		c.reorderBuf.Reset()
	}
	if err := c.tr.Close(); err != nil {
		merr = multierror.Append(merr, err)
	}

	metrics.ActiveConnections.Dec()
	c.log.Info("connection destroyed")
	return merr.ErrorOrNil()
}
