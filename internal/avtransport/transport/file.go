package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/avtransport/avtransport/internal/avtransport/address"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
	"github.com/avtransport/avtransport/internal/errors"
)

// fileMaxPktLen is the reference file back-end's fixed MTU: a file has no
// natural packet-size ceiling, so this picks a generous value large enough
// that the scheduler rarely segments (spec §1's file back-end is a minimal
// reference, not a tuned one).
const fileMaxPktLen = 1 << 20

func init() {
	Register(address.TransportFile, openFile)
}

// fileTransport implements Transport over a plain os.File, writing each
// Pktd as header-then-payload with no framing beyond what the codec
// already supplies (spec §6.1's self-describing header makes this safe to
// replay).
type fileTransport struct {
	f *os.File
}

func openFile(ctx context.Context, addr address.Address) (Transport, error) {
	if addr.Path == "" {
		return nil, errors.InvalidArgument("transport.file.open", fmt.Errorf("file:// address has no path"))
	}
	flags := os.O_RDWR | os.O_CREATE
	f, err := os.OpenFile(addr.Path, flags, 0o644)
	if err != nil {
		return nil, errors.OS("transport.file.open", err)
	}
	return &fileTransport{f: f}, nil
}

func (t *fileTransport) MaxPktLen() int { return fileMaxPktLen }

func (t *fileTransport) AddDst(addr address.Address) error {
	return errors.Unsupported("transport.file.add_dst", nil)
}

func (t *fileTransport) DelDst(addr address.Address) error {
	return errors.Unsupported("transport.file.del_dst", nil)
}

func (t *fileTransport) WritePkt(ctx context.Context, p fifo.Pktd, timeout time.Duration) (int64, error) {
	if _, err := t.f.Write(p.Header); err != nil {
		return 0, errors.OS("transport.file.write_pkt", err)
	}
	if p.HasPayload {
		if _, err := t.f.Write(p.Payload.Data()); err != nil {
			return 0, errors.OS("transport.file.write_pkt", err)
		}
	}
	off, err := t.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.OS("transport.file.write_pkt", err)
	}
	recordWrite(p)
	return off, nil
}

func (t *fileTransport) WriteVec(ctx context.Context, f *fifo.FIFO, timeout time.Duration) (int64, error) {
	var off int64
	for {
		p, ok := f.Pop()
		if !ok {
			break
		}
		var err error
		off, err = t.WritePkt(ctx, p, timeout)
		if p.HasPayload {
			releaseRef(&p)
		}
		if err != nil {
			return off, err
		}
	}
	return off, nil
}

func (t *fileTransport) ReadInput(ctx context.Context, buf []byte, timeout time.Duration) (int, int64, error) {
	n, err := t.f.Read(buf)
	off, seekErr := t.f.Seek(0, io.SeekCurrent)
	if seekErr != nil {
		seekErr = errors.OS("transport.file.read_input", seekErr)
	}
	if err != nil {
		if err == io.EOF {
			return n, off, errors.EOF("transport.file.read_input", nil)
		}
		return n, off, errors.OS("transport.file.read_input", err)
	}
	return n, off, seekErr
}

func (t *fileTransport) Seek(offset int64) (int64, error) {
	off, err := t.f.Seek(offset, io.SeekStart)
	if err != nil {
		return 0, errors.OS("transport.file.seek", err)
	}
	return off, nil
}

func (t *fileTransport) Flush(ctx context.Context, timeout time.Duration) error {
	if err := t.f.Sync(); err != nil {
		return errors.OS("transport.file.flush", err)
	}
	return nil
}

func (t *fileTransport) Close() error {
	if t.f == nil {
		return nil
	}
	err := t.f.Close()
	t.f = nil
	if err != nil {
		return errors.OS("transport.file.close", err)
	}
	return nil
}
