package wire

import (
	"bytes"
	"reflect"
	"testing"
)

// roundTrip encodes p, decodes the result back under p's own descriptor, and
// returns the decoded packet alongside the encoded bytes.
func roundTrip(t *testing.T, p Packet) (Packet, []byte) {
	t.Helper()
	buf, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(p.Descriptor(), buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got, buf
}

func TestRoundTripSessionStart(t *testing.T) {
	p := &SessionStart{
		SessionFlags:  0x1,
		ProducerMajor: 1, ProducerMinor: 2, ProducerMicro: 3,
		ProducerName: "avtransport-test",
	}
	p.SessionUUID = [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	p.SetSequence(42)

	got, buf := roundTrip(t, p)
	if len(buf) != largeHeaderLen {
		t.Fatalf("expected %d-byte header, got %d", largeHeaderLen, len(buf))
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestRoundTripTimeSync(t *testing.T) {
	p := &TimeSync{ClockID: 1, Flags: 0x5, ClockHz: 90000, ClockHz2: 48000, Epoch: 123456789, ClockSeq: 7}
	p.SetSequence(9)

	got, buf := roundTrip(t, p)
	if len(buf) != minHeaderLen {
		t.Fatalf("expected %d-byte header, got %d", minHeaderLen, len(buf))
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestRoundTripStreamRegistration(t *testing.T) {
	p := &StreamRegistration{
		StreamID: 1, RelatedStreamID: 0, DerivedStreamID: 2,
		Bandwidth: 5_000_000, StreamFlags: 0x3, CodecID: 0xAABBCCDD,
		Timebase: Rational{Num: 1, Den: 90000}, TSClockID: 1,
		SkipPreroll: 4, InitPackets: 2,
	}
	p.SetSequence(1)

	got, _ := roundTrip(t, p)
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestRoundTripVideoInfo(t *testing.T) {
	p := &VideoInfo{
		StreamID: 3, Width: 1920, Height: 1080,
		SampleAspect: Rational{Num: 1, Den: 1},
		ColorSpace:   1, ColorRange: 1, BitDepth: 8,
	}
	p.SetSequence(100)

	got, buf := roundTrip(t, p)
	if len(buf) != largeHeaderLen {
		t.Fatalf("expected %d-byte header, got %d", largeHeaderLen, len(buf))
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestVideoInfoDecodeFromPartialHeader(t *testing.T) {
	// Simulates merger recovery, which only ever reconstructs the 36-byte
	// common prefix: decode must still succeed and zero-extend the rest.
	p := &VideoInfo{StreamID: 7}
	p.SetSequence(55)
	buf, err := Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := Decode(p.Descriptor(), buf[:minHeaderLen])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	vi := got.(*VideoInfo)
	if vi.Sequence() != 55 || vi.StreamID != 7 {
		t.Fatalf("expected common prefix fields preserved, got %+v", vi)
	}
	if vi.Width != 0 || vi.Height != 0 {
		t.Fatalf("expected truncated extension fields zero-extended, got %+v", vi)
	}
}

func TestRoundTripStreamData(t *testing.T) {
	p := &StreamData{
		StreamID: 2, PTS: 90000, Duration: 3000, FrameType: 1,
		PktSegmented: true, PktInFECGroup: false, FieldID: 2, PktCompression: 1,
		DataLength: 1400,
	}
	p.SetSequence(77)

	got, _ := roundTrip(t, p)
	want := got.(*StreamData)
	if want.PktSegmented != p.PktSegmented || want.FieldID != p.FieldID || want.PktCompression != p.PktCompression {
		t.Fatalf("flag fields not preserved through descriptor masking: got %+v want %+v", want, p)
	}
	if want.StreamID != p.StreamID || want.PTS != p.PTS || want.DataLength != p.DataLength {
		t.Fatalf("round trip mismatch: got %+v want %+v", want, p)
	}
}

func TestRoundTripPayloadVariants(t *testing.T) {
	mk := func() payloadHeader {
		return payloadHeader{PayloadLength: 512, TotalPayloadLength: 4096, Compression: 1, PTS: 90000}
	}

	lut := &LUTICC{payloadHeader: mk()}
	lut.SetSequence(1)
	if got, _ := roundTrip(t, lut); !reflect.DeepEqual(got, lut) {
		t.Fatalf("lut-icc round trip mismatch: got %+v want %+v", got, lut)
	}

	font := &FontData{payloadHeader: mk()}
	font.SetSequence(2)
	if got, _ := roundTrip(t, font); !reflect.DeepEqual(got, font) {
		t.Fatalf("font-data round trip mismatch: got %+v want %+v", got, font)
	}

	meta := &Metadata{payloadHeader: mk()}
	meta.SetSequence(3)
	if got, _ := roundTrip(t, meta); !reflect.DeepEqual(got, meta) {
		t.Fatalf("metadata round trip mismatch: got %+v want %+v", got, meta)
	}

	cfg := &StreamConfig{payloadHeader: mk()}
	cfg.SetSequence(4)
	if got, _ := roundTrip(t, cfg); !reflect.DeepEqual(got, cfg) {
		t.Fatalf("stream-config round trip mismatch: got %+v want %+v", got, cfg)
	}
}

func TestRoundTripUserData(t *testing.T) {
	p := &UserData{
		payloadHeader: payloadHeader{PayloadLength: 10, TotalPayloadLength: 10, Compression: 0, PTS: 1},
		Flags:         0x2A,
	}
	p.SetSequence(6)

	got, _ := roundTrip(t, p)
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestRoundTripGenericSegment(t *testing.T) {
	mk := func(final bool) *GenericSegment {
		g := &GenericSegment{
			Final: final, TargetSeq: 12, StreamID: 2,
			SegOffset: 1400, SegLength: 1400, PktTotalData: 9800,
			Header7: [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
		}
		g.SetSequence(13)
		return g
	}

	mid := mk(false)
	gotMid, _ := roundTrip(t, mid)
	if !reflect.DeepEqual(gotMid, mid) {
		t.Fatalf("mid-segment round trip mismatch: got %+v want %+v", gotMid, mid)
	}

	last := mk(true)
	gotLast, _ := roundTrip(t, last)
	if !reflect.DeepEqual(gotLast, last) {
		t.Fatalf("final-segment round trip mismatch: got %+v want %+v", gotLast, last)
	}
}

func TestRoundTripStreamIndex(t *testing.T) {
	p := &StreamIndex{
		StreamID: 1,
		Entries: []StreamIndexEntry{
			{Seq: 1, Offset: 0, PTS: 0},
			{Seq: 50, Offset: 70000, PTS: 1_500_000},
		},
	}
	p.SetSequence(8)

	got, buf := roundTrip(t, p)
	wantLen := minHeaderLen + streamIndexEntryLen*2
	if len(buf) != wantLen {
		t.Fatalf("expected %d bytes, got %d", wantLen, len(buf))
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestRoundTripEOS(t *testing.T) {
	p := &EOS{StreamID: 4}
	p.SetSequence(999)

	got, _ := roundTrip(t, p)
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, p)
	}
}

func TestEOSDescriptorDoesNotCollideWithSegmentEnd(t *testing.T) {
	eos := &EOS{}
	seg := &GenericSegment{Final: true}

	if Matches(eos.Descriptor(), seg.Descriptor()) {
		t.Fatalf("EOS must not match the final-segment descriptor family")
	}
}

func TestDecodeIsTotalOnTruncatedInput(t *testing.T) {
	p := &TimeSync{ClockID: 9, Flags: 1, ClockHz: 1, ClockHz2: 2, Epoch: 3, ClockSeq: 4}
	p.SetSequence(1)
	buf, _ := Encode(p)

	got, err := Decode(p.Descriptor(), buf[:12])
	if err != nil {
		t.Fatalf("decode of truncated header must not error: %v", err)
	}
	ts := got.(*TimeSync)
	if ts.ClockHz2 != 0 || ts.Epoch != 0 || ts.ClockSeq != 0 {
		t.Fatalf("expected trailing fields zero-extended, got %+v", ts)
	}
}

func TestDecodeUnsupportedDescriptor(t *testing.T) {
	if _, err := Decode(Descriptor(0xABCD), []byte{0, 0}); err == nil {
		t.Fatalf("expected error decoding an unrecognized descriptor")
	}
}

func TestEncodeZeroPadsToHeaderLen(t *testing.T) {
	p := &EOS{StreamID: 1}
	buf, _ := Encode(p)
	// descriptor(2) + sequence(8) + stream_id(2) = 12 bytes populated; the
	// rest of the fixed 36-byte header must be zero padding.
	if !bytes.Equal(buf[12:], make([]byte, len(buf)-12)) {
		t.Fatalf("expected zero padding beyond populated fields, got % x", buf)
	}
}
