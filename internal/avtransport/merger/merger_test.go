package merger

import (
	"bytes"
	"testing"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	"github.com/avtransport/avtransport/internal/errors"
)

func mkPayload(b []byte) buffer.Buffer { return buffer.Create(append([]byte(nil), b...), nil, nil) }

// TestHeaderPlusOneSegment is scenario S4: a start-of-series header packet
// carrying a 64-byte payload prefix with total=128, followed by one segment
// at offset 64 of length 64.
func TestHeaderPlusOneSegment(t *testing.T) {
	m := New()

	first := bytes.Repeat([]byte{0xAA}, 64)
	second := bytes.Repeat([]byte{0xBB}, 64)

	hdrBytes := make([]byte, 36)
	hdrBytes[0], hdrBytes[1] = 0x01, 0x00 // stream-data descriptor family

	_, done, err := m.PushHeader(wire.DescStreamDataBase, 0, hdrBytes, 128, mkPayload(first), false)
	if err != nil {
		t.Fatalf("push header: %v", err)
	}
	if done {
		t.Fatalf("must not complete after only 64 of 128 bytes")
	}

	seg := &wire.GenericSegment{TargetSeq: 0, SegOffset: 64, SegLength: 64, PktTotalData: 128}
	seg.SetSequence(1)
	assembled, done, err := m.Push(seg, nil, mkPayload(second), false)
	if err != nil {
		t.Fatalf("push segment: %v", err)
	}
	if !done {
		t.Fatalf("expected assembly to complete at 128/128 bytes")
	}
	if assembled.Payload.Len() != 128 {
		t.Fatalf("expected 128-byte assembled payload, got %d", assembled.Payload.Len())
	}
	want := append(append([]byte{}, first...), second...)
	if !bytes.Equal(assembled.Payload.Data(), want) {
		t.Fatalf("assembled payload mismatch")
	}
}

// TestHeaderRecoveryFromSevenSegments is scenario S5: no explicit header
// packet arrives; 7 segments each carry a 4-byte header_7 slice, and the
// merger must reconstruct the 36-byte header byte-exactly.
func TestHeaderRecoveryFromSevenSegments(t *testing.T) {
	sd := &wire.StreamData{StreamID: 9, PTS: 42, DataLength: 28}
	sd.SetSequence(0)
	originalHdr, err := wire.Encode(sd)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	m := New()
	payload := bytes.Repeat([]byte{0xCC}, 28)
	var assembled Assembled
	var done bool

	for i := 0; i < 7; i++ {
		var slice [4]byte
		copy(slice[:], originalHdr[4*i:4*i+4])
		seg := &wire.GenericSegment{
			TargetSeq: 0, SegOffset: uint32(4 * i), SegLength: 4, PktTotalData: 28,
			Header7: slice,
		}
		seg.SetSequence(uint64(i))
		a, d, err := m.Push(seg, nil, mkPayload(payload[4*i:4*i+4]), false)
		if err != nil {
			t.Fatalf("push segment %d: %v", i, err)
		}
		assembled, done = a, d
	}

	if !done {
		t.Fatalf("expected assembly to complete after 7 segments covering 28 bytes")
	}
	if !bytes.Equal(assembled.HeaderBytes[:], originalHdr) {
		t.Fatalf("recovered header mismatch:\n got  % x\n want % x", assembled.HeaderBytes[:], originalHdr)
	}
	if !bytes.Equal(assembled.Payload.Data(), payload) {
		t.Fatalf("assembled payload mismatch")
	}
}

func TestPushWrongTargetReturnsBusy(t *testing.T) {
	m := New()
	hdrBytes := make([]byte, 36)
	_, _, err := m.PushHeader(wire.DescStreamDataBase, 0, hdrBytes, 8, mkPayload([]byte{1, 2, 3, 4}), false)
	if err != nil {
		t.Fatalf("push header: %v", err)
	}

	seg := &wire.GenericSegment{TargetSeq: 99, SegOffset: 0, SegLength: 4, PktTotalData: 4}
	seg.SetSequence(1)
	_, _, err = m.Push(seg, nil, mkPayload([]byte{5, 6, 7, 8}), false)
	if !errors.Is(err, errors.KindBusy) {
		t.Fatalf("expected busy error for mismatched target, got %v", err)
	}
}

func TestPushOutOfRangeSegmentFails(t *testing.T) {
	m := New()
	hdrBytes := make([]byte, 36)
	_, _, err := m.PushHeader(wire.DescStreamDataBase, 0, hdrBytes, 8, mkPayload([]byte{1, 2, 3, 4}), false)
	if err != nil {
		t.Fatalf("push header: %v", err)
	}

	seg := &wire.GenericSegment{TargetSeq: 0, SegOffset: 4, SegLength: 8, PktTotalData: 8}
	seg.SetSequence(1)
	_, _, err = m.Push(seg, nil, mkPayload(bytes.Repeat([]byte{9}, 8)), false)
	if !errors.Is(err, errors.KindRange) {
		t.Fatalf("expected range error for segment exceeding total, got %v", err)
	}
	if !m.Active() {
		t.Fatalf("state must be preserved (still active) after a range error")
	}
}

func TestPushFullCompletesImmediately(t *testing.T) {
	m := New()
	hdrBytes := make([]byte, 36)
	assembled, done, err := m.PushFull(wire.DescEOS, 3, hdrBytes, mkPayload(nil))
	if err != nil {
		t.Fatalf("push full: %v", err)
	}
	if !done {
		t.Fatalf("expected an empty-payload full packet to complete immediately")
	}
	if assembled.Payload.Len() != 0 {
		t.Fatalf("expected zero-length payload, got %d", assembled.Payload.Len())
	}
}
