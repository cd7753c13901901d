// Package transport implements the I/O back-end vtable of spec §6.3: the
// boundary the connection pipeline calls through to move Pktd entries on
// and off the wire, independent of scheme (file, udp, ...).
//
// Grounded on the teacher's rtmp/conn read/write loop split (a connection
// owns exactly one net.Conn and drives it from a single goroutine at a
// time); here the vtable is explicit rather than embedded directly in
// Connection, since AVTransport supports more than one transport family.
package transport

import (
	"context"
	"time"

	"github.com/avtransport/avtransport/internal/avtransport/address"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
)

// Unblocking is the zero-timeout sentinel: non-blocking I/O (spec §5,
// "a timeout of zero is non-blocking").
const Unblocking = time.Duration(0)

// Indefinite is the INT64_MAX-equivalent sentinel meaning "block forever".
const Indefinite = time.Duration(1<<63 - 1)

// Transport is the vtable every back-end implements (spec §6.3). A
// Transport is bound to one Address for its lifetime; Init is the
// back-end-specific constructor invoked by Open.
type Transport interface {
	// MaxPktLen returns the back-end's MTU-derived maximum packet size.
	MaxPktLen() int

	// AddDst registers an additional destination for fan-out back-ends
	// (e.g. UDP multicast). Optional: back-ends that don't support
	// multiple destinations return an unsupported error.
	AddDst(addr address.Address) error
	// DelDst reverses AddDst.
	DelDst(addr address.Address) error

	// WritePkt writes a single Pktd (header, then payload if present) and
	// returns the post-write byte offset.
	WritePkt(ctx context.Context, p fifo.Pktd, timeout time.Duration) (int64, error)
	// WriteVec writes a whole FIFO's worth of Pktd in order. Back-ends
	// without native scatter/gather loop over WritePkt (spec §6.3).
	WriteVec(ctx context.Context, f *fifo.FIFO, timeout time.Duration) (int64, error)

	// ReadInput reads up to len(buf) bytes, returning the number of bytes
	// read and the post-read byte offset.
	ReadInput(ctx context.Context, buf []byte, timeout time.Duration) (n int, offset int64, err error)

	// Seek repositions the back-end's read/write cursor, where supported.
	Seek(offset int64) (int64, error)
	// Flush blocks until previously written data is committed to the
	// underlying medium, or until timeout elapses.
	Flush(ctx context.Context, timeout time.Duration) error
	// Close releases the back-end's resources. Idempotent.
	Close() error
}

// Opener constructs a Transport bound to addr. Registered per scheme by
// back-end packages via Register.
type Opener func(ctx context.Context, addr address.Address) (Transport, error)

var openers = map[address.Transport]Opener{}

// Register associates an Opener with a transport scheme. Back-end packages
// call this from an init() function.
func Register(scheme address.Transport, open Opener) {
	openers[scheme] = open
}

// Open constructs the Transport back-end named by addr.Transport (spec
// §6.3 "init").
func Open(ctx context.Context, addr address.Address) (Transport, error) {
	open, ok := openers[addr.Transport]
	if !ok {
		return nil, errUnsupportedScheme(addr)
	}
	return open(ctx, addr)
}
