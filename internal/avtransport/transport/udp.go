package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/avtransport/avtransport/internal/avtransport/address"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
	"github.com/avtransport/avtransport/internal/errors"
	"golang.org/x/sys/unix"
)

// udpMaxPktLen is the reference UDP back-end's packet-size ceiling: the
// IPv6 minimum-MTU (1280) minus a conservative IP/UDP header allowance,
// matching the "MTU-aware segmentation" rationale of spec §4.6 without
// requiring path-MTU discovery.
const udpMaxPktLen = 1200

func init() {
	Register(address.TransportUDP, openUDP)
	Register(address.TransportUDPLite, openUDP)
}

// udpTransport implements Transport over a single net.UDPConn, either
// listening (Mode passive / addr.Listen) or connected to one peer.
type udpTransport struct {
	conn *net.UDPConn
	dsts []*net.UDPAddr // additional fan-out destinations (spec §6.3 add_dst)
}

func openUDP(ctx context.Context, addr address.Address) (Transport, error) {
	udpAddr := &net.UDPAddr{IP: addr.IP, Port: int(addr.Port)}

	var conn *net.UDPConn
	var err error
	if addr.Listen {
		conn, err = net.ListenUDP("udp", udpAddr)
	} else {
		conn, err = net.DialUDP("udp", nil, udpAddr)
	}
	if err != nil {
		return nil, errors.OS("transport.udp.open", err)
	}

	if addr.Options.HasRxBuf {
		if err := setSockBuf(conn, unix.SO_RCVBUF, int(addr.Options.RxBuf)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if addr.Options.HasTxBuf {
		if err := setSockBuf(conn, unix.SO_SNDBUF, int(addr.Options.TxBuf)); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	if addr.Interface != "" {
		if _, err := net.InterfaceByName(addr.Interface); err != nil {
			_ = conn.Close()
			return nil, errors.InvalidArgument("transport.udp.open", fmt.Errorf("interface %q: %w", addr.Interface, err))
		}
	}

	return &udpTransport{conn: conn}, nil
}

// setSockBuf sets a socket buffer size option via the raw file descriptor,
// the way go4vl and plexTuner reach past net.Conn for V4L2/device-level
// socket tuning (spec §4.4's rx_buf/tx_buf options).
func setSockBuf(conn *net.UDPConn, opt, value int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.OS("transport.udp.sockopt", err)
	}
	var sockErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, value)
	})
	if ctrlErr != nil {
		return errors.OS("transport.udp.sockopt", ctrlErr)
	}
	if sockErr != nil {
		return errors.OS("transport.udp.sockopt", sockErr)
	}
	return nil
}

func (t *udpTransport) MaxPktLen() int { return udpMaxPktLen }

func (t *udpTransport) AddDst(addr address.Address) error {
	t.dsts = append(t.dsts, &net.UDPAddr{IP: addr.IP, Port: int(addr.Port)})
	return nil
}

func (t *udpTransport) DelDst(addr address.Address) error {
	for i, d := range t.dsts {
		if d.IP.Equal(addr.IP) && d.Port == int(addr.Port) {
			t.dsts = append(t.dsts[:i], t.dsts[i+1:]...)
			return nil
		}
	}
	return errors.InvalidArgument("transport.udp.del_dst", fmt.Errorf("destination not registered"))
}

func (t *udpTransport) writeDatagram(b []byte) error {
	if _, err := t.conn.Write(b); err != nil {
		return errors.OS("transport.udp.write", err)
	}
	for _, d := range t.dsts {
		if _, err := t.conn.WriteToUDP(b, d); err != nil {
			return errors.OS("transport.udp.write", err)
		}
	}
	return nil
}

func (t *udpTransport) WritePkt(ctx context.Context, p fifo.Pktd, timeout time.Duration) (int64, error) {
	if err := applyDeadline(t.conn, timeout, true); err != nil {
		return 0, err
	}
	datagram := p.Header
	if p.HasPayload {
		datagram = append(append([]byte(nil), p.Header...), p.Payload.Data()...)
	}
	if err := t.writeDatagram(datagram); err != nil {
		return 0, err
	}
	recordWrite(p)
	return int64(len(datagram)), nil
}

func (t *udpTransport) WriteVec(ctx context.Context, f *fifo.FIFO, timeout time.Duration) (int64, error) {
	var total int64
	for {
		p, ok := f.Pop()
		if !ok {
			break
		}
		n, err := t.WritePkt(ctx, p, timeout)
		if p.HasPayload {
			releaseRef(&p)
		}
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *udpTransport) ReadInput(ctx context.Context, buf []byte, timeout time.Duration) (int, int64, error) {
	if err := applyDeadline(t.conn, timeout, false); err != nil {
		return 0, 0, err
	}
	n, err := t.conn.Read(buf)
	if err != nil {
		if errors.IsTimeout(err) {
			return n, 0, errors.NewTimeout("transport.udp.read_input", timeout, err)
		}
		return n, 0, errors.OS("transport.udp.read_input", err)
	}
	return n, int64(n), nil
}

func (t *udpTransport) Seek(offset int64) (int64, error) {
	return 0, errors.Unsupported("transport.udp.seek", nil)
}

func (t *udpTransport) Flush(ctx context.Context, timeout time.Duration) error {
	return nil // datagrams are written synchronously; nothing to flush
}

func (t *udpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return errors.OS("transport.udp.close", err)
	}
	return nil
}

// applyDeadline translates spec §5's nanosecond-timeout convention
// (Unblocking = DONTWAIT, Indefinite = block forever) into a net.Conn
// deadline.
func applyDeadline(conn *net.UDPConn, timeout time.Duration, write bool) error {
	var deadline time.Time
	if timeout != Indefinite {
		deadline = time.Now().Add(timeout)
	}
	if write {
		return wrapDeadlineErr(conn.SetWriteDeadline(deadline))
	}
	return wrapDeadlineErr(conn.SetReadDeadline(deadline))
}

func wrapDeadlineErr(err error) error {
	if err == nil {
		return nil
	}
	return errors.OS("transport.udp.set_deadline", err)
}
