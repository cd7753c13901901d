package wire

import "github.com/avtransport/avtransport/internal/errors"

// Every variant's wire layout opens with the same 10-byte prefix: a 16-bit
// descriptor followed by the 64-bit sequence number. Fixed-size variants pad
// the remainder of their HeaderLen() with zero bytes; variable-length
// variants (stream-index) append their trailing data after the fixed
// portion, and the returned buffer is simply longer than HeaderLen().
const commonPrefixLen = 10

// Encode serializes p to its deterministic on-wire byte layout (spec §4.2).
// The returned slice is exactly p.Descriptor().HeaderLen() bytes for every
// fixed-size variant, or longer for stream-index, which appends its entry
// list after the fixed header.
func Encode(p Packet) ([]byte, error) {
	switch v := p.(type) {
	case *SessionStart:
		return encodeSessionStart(v), nil
	case *TimeSync:
		return encodeTimeSync(v), nil
	case *StreamRegistration:
		return encodeStreamRegistration(v), nil
	case *VideoInfo:
		return encodeVideoInfo(v), nil
	case *VideoOrientation:
		return encodeVideoOrientation(v), nil
	case *StreamData:
		return encodeStreamData(v), nil
	case *LUTICC:
		return encodePayloadHeader(v.Descriptor(), &v.payloadHeader), nil
	case *FontData:
		return encodePayloadHeader(v.Descriptor(), &v.payloadHeader), nil
	case *Metadata:
		return encodePayloadHeader(v.Descriptor(), &v.payloadHeader), nil
	case *StreamConfig:
		return encodePayloadHeader(v.Descriptor(), &v.payloadHeader), nil
	case *UserData:
		return encodeUserData(v), nil
	case *GenericSegment:
		return encodeGenericSegment(v), nil
	case *StreamIndex:
		return encodeStreamIndex(v), nil
	case *EOS:
		return encodeEOS(v), nil
	default:
		return nil, errors.Unsupported("wire.encode", nil)
	}
}

// Decode parses data as the variant named by descriptor. Per §4.2 decoding
// is total: a data slice shorter than the variant's header length still
// yields a fully-populated struct, trailing fields zero-extended by Cursor.
func Decode(descriptor Descriptor, data []byte) (Packet, error) {
	switch descriptor.Masked() {
	case DescSessionStart:
		return decodeSessionStart(data), nil
	case DescTimeSync:
		return decodeTimeSync(data), nil
	case DescStreamRegistration:
		return decodeStreamRegistration(data), nil
	case DescVideoInfo:
		return decodeVideoInfo(data), nil
	case DescVideoOrientation:
		return decodeVideoOrientation(data), nil
	case DescStreamDataBase:
		return decodeStreamData(descriptor, data), nil
	case DescLUTICC:
		p := &LUTICC{}
		decodePayloadHeader(data, &p.payloadHeader)
		return p, nil
	case DescFontData:
		p := &FontData{}
		decodePayloadHeader(data, &p.payloadHeader)
		return p, nil
	case DescMetadata:
		p := &Metadata{}
		decodePayloadHeader(data, &p.payloadHeader)
		return p, nil
	case DescStreamConfig:
		p := &StreamConfig{}
		decodePayloadHeader(data, &p.payloadHeader)
		return p, nil
	case DescUserDataBase:
		return decodeUserData(descriptor, data), nil
	case DescGenericSegmentBase, DescSegmentEndBase:
		return decodeGenericSegment(descriptor, data), nil
	case DescStreamIndex:
		return decodeStreamIndex(data), nil
	case DescEOS:
		return decodeEOS(data), nil
	default:
		return nil, errors.Unsupported("wire.decode", nil)
	}
}

func encodeSessionStart(v *SessionStart) []byte {
	buf := make([]byte, largeHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteRaw(v.SessionUUID[:])
	c.WriteU32(v.SessionFlags)
	c.WriteU16(v.ProducerMajor)
	c.WriteU16(v.ProducerMinor)
	c.WriteU16(v.ProducerMicro)
	c.WriteFixedString(v.ProducerName, 28)
	c.WriteZero(c.Remaining())
	return buf
}

func decodeSessionStart(data []byte) *SessionStart {
	c := NewCursor(data)
	v := &SessionStart{}
	c.ReadU16() // descriptor, already known to the caller
	v.Seq = c.ReadU64()
	copy(v.SessionUUID[:], c.ReadRaw(16))
	v.SessionFlags = c.ReadU32()
	v.ProducerMajor = c.ReadU16()
	v.ProducerMinor = c.ReadU16()
	v.ProducerMicro = c.ReadU16()
	v.ProducerName = c.ReadFixedString(28)
	return v
}

func encodeTimeSync(v *TimeSync) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU8(v.ClockID)
	c.WriteU8(v.Flags)
	c.WriteU32(v.ClockHz)
	c.WriteU32(v.ClockHz2)
	c.WriteU64(v.Epoch)
	c.WriteU32(v.ClockSeq)
	c.WriteZero(c.Remaining())
	return buf
}

func decodeTimeSync(data []byte) *TimeSync {
	c := NewCursor(data)
	v := &TimeSync{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.ClockID = c.ReadU8()
	v.Flags = c.ReadU8()
	v.ClockHz = c.ReadU32()
	v.ClockHz2 = c.ReadU32()
	v.Epoch = c.ReadU64()
	v.ClockSeq = c.ReadU32()
	return v
}

func encodeStreamRegistration(v *StreamRegistration) []byte {
	buf := make([]byte, largeHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteU16(v.RelatedStreamID)
	c.WriteU16(v.DerivedStreamID)
	c.WriteU32(v.Bandwidth)
	c.WriteU32(v.StreamFlags)
	c.WriteU32(v.CodecID)
	c.WriteRational(v.Timebase.Num, v.Timebase.Den)
	c.WriteU8(v.TSClockID)
	c.WriteU32(v.SkipPreroll)
	c.WriteU16(v.InitPackets)
	c.WriteZero(c.Remaining())
	return buf
}

func decodeStreamRegistration(data []byte) *StreamRegistration {
	c := NewCursor(data)
	v := &StreamRegistration{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()
	v.RelatedStreamID = c.ReadU16()
	v.DerivedStreamID = c.ReadU16()
	v.Bandwidth = c.ReadU32()
	v.StreamFlags = c.ReadU32()
	v.CodecID = c.ReadU32()
	v.Timebase.Num, v.Timebase.Den = c.ReadRational()
	v.TSClockID = c.ReadU8()
	v.SkipPreroll = c.ReadU32()
	v.InitPackets = c.ReadU16()
	return v
}

// encodeVideoInfo writes the 36-byte common prefix shared with every other
// variant (so the merger's header_7 partial-header recovery, which only
// ever reconstructs 36 bytes, still yields a valid descriptor and stream
// ID), followed by a 348-byte FEC-protected extension (spec §4.3: the
// 2784-bit/348-byte block) holding the rest of the fields plus a 96-byte
// parity suffix left zeroed for the caller to fill via fec.Encode2784_2016.
func encodeVideoInfo(v *VideoInfo) []byte {
	buf := make([]byte, largeHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteZero(minHeaderLen - c.Pos())

	ext := NewCursor(buf[minHeaderLen:])
	ext.WriteU32(v.Width)
	ext.WriteU32(v.Height)
	ext.WriteRational(v.SampleAspect.Num, v.SampleAspect.Den)
	ext.WriteU32(v.ColorSpace)
	ext.WriteU32(v.ColorRange)
	ext.WriteU8(v.BitDepth)
	ext.WriteZero(ext.Remaining())
	return buf
}

func decodeVideoInfo(data []byte) *VideoInfo {
	c := NewCursor(data)
	v := &VideoInfo{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()

	if len(data) <= minHeaderLen {
		return v
	}
	ext := NewCursor(data[minHeaderLen:])
	v.Width = ext.ReadU32()
	v.Height = ext.ReadU32()
	v.SampleAspect.Num, v.SampleAspect.Den = ext.ReadRational()
	v.ColorSpace = ext.ReadU32()
	v.ColorRange = ext.ReadU32()
	v.BitDepth = ext.ReadU8()
	return v
}

func encodeVideoOrientation(v *VideoOrientation) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteU32(uint32(v.RotationDeg))
	c.WriteU8(boolByte(v.HFlip))
	c.WriteU8(boolByte(v.VFlip))
	c.WriteZero(c.Remaining())
	return buf
}

func decodeVideoOrientation(data []byte) *VideoOrientation {
	c := NewCursor(data)
	v := &VideoOrientation{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()
	v.RotationDeg = int32(c.ReadU32())
	v.HFlip = c.ReadU8() != 0
	v.VFlip = c.ReadU8() != 0
	return v
}

func encodeStreamData(v *StreamData) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteU64(v.PTS)
	c.WriteU32(v.Duration)
	c.WriteU8(v.FrameType)
	c.WriteU32(v.DataLength)
	c.WriteZero(c.Remaining())
	return buf
}

func decodeStreamData(descriptor Descriptor, data []byte) *StreamData {
	c := NewCursor(data)
	v := &StreamData{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()
	v.PTS = c.ReadU64()
	v.Duration = c.ReadU32()
	v.FrameType = c.ReadU8()
	v.DataLength = c.ReadU32()

	flags := uint8(descriptor & DescStreamDataMask)
	v.PktSegmented = flags&0x01 != 0
	v.PktInFECGroup = flags&0x02 != 0
	v.FieldID = (flags >> 2) & 0x03
	v.PktCompression = (flags >> 4) & 0x03
	return v
}

func encodePayloadHeader(descriptor Descriptor, h *payloadHeader) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(descriptor))
	c.WriteU64(h.Seq)
	c.WriteU32(h.PayloadLength)
	c.WriteU32(h.TotalPayloadLength)
	c.WriteU8(h.Compression)
	c.WriteU64(h.PTS)
	c.WriteZero(c.Remaining())
	return buf
}

func decodePayloadHeader(data []byte, h *payloadHeader) {
	c := NewCursor(data)
	c.ReadU16()
	h.Seq = c.ReadU64()
	h.PayloadLength = c.ReadU32()
	h.TotalPayloadLength = c.ReadU32()
	h.Compression = c.ReadU8()
	h.PTS = c.ReadU64()
}

func encodeUserData(v *UserData) []byte {
	return encodePayloadHeader(v.Descriptor(), &v.payloadHeader)
}

func decodeUserData(descriptor Descriptor, data []byte) *UserData {
	v := &UserData{Flags: uint8(descriptor & DescUserDataMask)}
	decodePayloadHeader(data, &v.payloadHeader)
	return v
}

func encodeGenericSegment(v *GenericSegment) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU32(v.TargetSeq)
	c.WriteU16(v.StreamID)
	c.WriteU32(v.SegOffset)
	c.WriteU32(v.SegLength)
	c.WriteU32(v.PktTotalData)
	c.WriteRaw(v.Header7[:])
	c.WriteZero(c.Remaining())
	return buf
}

func decodeGenericSegment(descriptor Descriptor, data []byte) *GenericSegment {
	c := NewCursor(data)
	v := &GenericSegment{Final: descriptor.Masked() == DescSegmentEndBase}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.TargetSeq = c.ReadU32()
	v.StreamID = c.ReadU16()
	v.SegOffset = c.ReadU32()
	v.SegLength = c.ReadU32()
	v.PktTotalData = c.ReadU32()
	copy(v.Header7[:], c.ReadRaw(4))
	return v
}

const streamIndexEntryLen = 24 // seq(8) + offset(8) + pts(8)

func encodeStreamIndex(v *StreamIndex) []byte {
	buf := make([]byte, minHeaderLen+streamIndexEntryLen*len(v.Entries))
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteU16(uint16(len(v.Entries)))
	c.WriteZero(minHeaderLen - c.Pos())

	for _, e := range v.Entries {
		c.WriteU64(e.Seq)
		c.WriteU64(e.Offset)
		c.WriteU64(e.PTS)
	}
	return buf
}

func decodeStreamIndex(data []byte) *StreamIndex {
	c := NewCursor(data)
	v := &StreamIndex{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()
	count := int(c.ReadU16())

	if len(data) <= minHeaderLen || count == 0 {
		return v
	}
	entries := NewCursor(data[minHeaderLen:])
	v.Entries = make([]StreamIndexEntry, 0, count)
	for i := 0; i < count; i++ {
		var e StreamIndexEntry
		e.Seq = entries.ReadU64()
		e.Offset = entries.ReadU64()
		e.PTS = entries.ReadU64()
		v.Entries = append(v.Entries, e)
	}
	return v
}

func encodeEOS(v *EOS) []byte {
	buf := make([]byte, minHeaderLen)
	c := NewCursor(buf)
	c.WriteU16(uint16(v.Descriptor()))
	c.WriteU64(v.Seq)
	c.WriteU16(v.StreamID)
	c.WriteZero(c.Remaining())
	return buf
}

func decodeEOS(data []byte) *EOS {
	c := NewCursor(data)
	v := &EOS{}
	c.ReadU16()
	v.Seq = c.ReadU64()
	v.StreamID = c.ReadU16()
	return v
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
