package wire

// Descriptor is the 16-bit wire tag identifying a packet variant (spec
// §3.2, §6.1). Some descriptors reserve their low 8 bits as a sub-field
// flag mask; FlagMask reports that mask so callers can compare descriptors
// "(got & ~flagmask) == (ref & ~flagmask)" per §3.2's match rule.
type Descriptor uint16

// Descriptor values. Those explicitly given a wire value in spec §6.1 keep
// it; descriptors the spec names in §3.2/§2 but does not assign a wire value
// to (video-orientation, lut-icc, font-data, metadata, stream-config,
// stream-index) are assigned values in the unused 0x0003-0x0020 range. This
// is an implementation decision, not a guess at an external wire format:
// nothing outside this module observes these values, so any disjoint
// assignment satisfies every invariant in §8. See DESIGN.md.
const (
	DescSessionStart       Descriptor = 0x5170
	DescTimeSync           Descriptor = 0x0001 // exact; TimeSync.Flags is carried in the header body
	DescStreamRegistration Descriptor = 0x0002
	DescVideoOrientation   Descriptor = 0x0003
	DescLUTICC             Descriptor = 0x0004
	DescFontData           Descriptor = 0x0005
	DescMetadata           Descriptor = 0x0006
	DescStreamConfig       Descriptor = 0x0007
	DescVideoInfo          Descriptor = 0x0008
	DescStreamIndex        Descriptor = 0x0010
	DescStreamDataBase     Descriptor = 0x0100 // 0x01xx, low byte = frame flags
	DescStreamDataMask     Descriptor = 0x00FF
	DescUserDataBase       Descriptor = 0x4000 // 0x40xx, low byte = flags
	DescUserDataMask       Descriptor = 0x00FF
	DescGenericSegmentBase Descriptor = 0xFE00 // 0xFExx, mid-series segment
	DescSegmentEndBase     Descriptor = 0xFF00 // 0xFFxx, final segment of a series
	DescSegmentMask        Descriptor = 0x00FF
	DescEOS                Descriptor = 0xFFFF
)

// MinHeaderLen and LargeHeaderLen are the two fixed header sizes of §6.1.
const (
	MinHeaderLen   = 36
	LargeHeaderLen = 384

	// unexported aliases kept for brevity at existing call sites within
	// this package.
	minHeaderLen   = MinHeaderLen
	largeHeaderLen = LargeHeaderLen
)

// FlagMask returns the sub-field bitmask reserved by d's low byte, or 0 if d
// carries no such mask. A flag bit in the descriptor's own assignment (the
// fact that StreamData/UserData/segment descriptors occupy an entire
// xx-suffixed byte range) is what "indicates" the mask per §3.2. TimeSync
// has no mask: its descriptor is always exactly DescTimeSync.
func (d Descriptor) FlagMask() Descriptor {
	switch {
	case d == DescEOS:
		// 0xFFFF is a privileged exact sentinel, not a masked member of the
		// 0xFFxx segment-end family (GenericSegment.Descriptor always
		// encodes a segment-end as exactly 0xFF00, so no segment is 0xFFFF).
		return 0
	case d&^DescStreamDataMask == DescStreamDataBase:
		return DescStreamDataMask
	case d&^DescUserDataMask == DescUserDataBase:
		return DescUserDataMask
	case d&^DescSegmentMask == DescGenericSegmentBase, d&^DescSegmentMask == DescSegmentEndBase:
		return DescSegmentMask
	default:
		return 0
	}
}

// Masked returns d with its flag-mask bits (if any) cleared, the canonical
// form used for variant identification.
func (d Descriptor) Masked() Descriptor { return d &^ d.FlagMask() }

// Matches reports whether got and ref identify the same packet variant,
// ignoring any reserved low-byte flag bits (§3.2).
func Matches(got, ref Descriptor) bool {
	return got.Masked() == ref.Masked()
}

// IsSegment reports whether d is a generic-segment descriptor (mid-series
// or final).
func (d Descriptor) IsSegment() bool {
	return d.Masked() == DescGenericSegmentBase || d.Masked() == DescSegmentEndBase
}

// HeaderLen returns the fixed on-wire header size for a full (non-segment)
// packet of this descriptor, per §6.1. Most variants fit the 36-byte small
// header; session-start (UUID plus a fixed 28-byte producer name), stream-registration
// (timebase plus preroll/init bookkeeping) and video-info (display geometry
// plus its FEC-protected extension) need the 384-byte large header instead.
func (d Descriptor) HeaderLen() int {
	switch d.Masked() {
	case DescVideoInfo, DescSessionStart, DescStreamRegistration:
		return largeHeaderLen
	default:
		return minHeaderLen
	}
}

// Segmentable reports whether packets of this descriptor may be split into
// generic-segments by the scheduler and reassembled by the merger (§4.5
// step 4: "if the tag is one of the segmentable variants"). Fixed tiny
// control packets (session-start, time-sync, stream-registration) are never
// segmented; every payload-bearing variant, including the large video-info
// header, may be.
func (d Descriptor) Segmentable() bool {
	switch d.Masked() {
	case DescVideoInfo, DescVideoOrientation, DescLUTICC, DescFontData,
		DescMetadata, DescStreamConfig, DescStreamIndex:
		return true
	default:
		return d.Masked() == DescStreamDataBase || d.Masked() == DescUserDataBase
	}
}

// Packet is the common interface satisfied by every packet variant (the
// sum type of §3.2, expressed as per-variant structs plus a common
// interface rather than a tagged C union).
type Packet interface {
	Descriptor() Descriptor
	Sequence() uint64
	SetSequence(seq uint64)
}

// base carries the fields every variant embeds (sequence number, spec
// §3.2). Variant structs embed base by value and override Descriptor().
type base struct {
	Seq uint64
}

func (b *base) Sequence() uint64     { return b.Seq }
func (b *base) SetSequence(s uint64) { b.Seq = s }

// Rational is a {num, den} pair (timebase, clock hz ratios).
type Rational struct {
	Num int32
	Den int32
}

// SessionStart carries session identity and producer info.
type SessionStart struct {
	base
	SessionUUID   [16]byte
	SessionFlags  uint32
	ProducerMajor uint16
	ProducerMinor uint16
	ProducerMicro uint16
	ProducerName  string // fixed 28 bytes UTF-8, NUL-padded on wire
}

func (*SessionStart) Descriptor() Descriptor { return DescSessionStart }

// TimeSync carries wall-clock/media-clock correlation.
type TimeSync struct {
	base
	ClockID  uint8
	Flags    uint8 // sub-field flags, a header body field; not part of the descriptor
	ClockHz  uint32
	ClockHz2 uint32
	Epoch    uint64
	ClockSeq uint32
}

func (*TimeSync) Descriptor() Descriptor { return DescTimeSync }

// StreamRegistration declares a new logical stream.
type StreamRegistration struct {
	base
	StreamID        uint16
	RelatedStreamID uint16
	DerivedStreamID uint16
	Bandwidth       uint32
	StreamFlags     uint32
	CodecID         uint32
	Timebase        Rational
	TSClockID       uint8
	SkipPreroll     uint32
	InitPackets     uint16
}

func (*StreamRegistration) Descriptor() Descriptor { return DescStreamRegistration }

// VideoInfo is fixed-field video metadata using the large 384-byte header.
type VideoInfo struct {
	base
	StreamID     uint16
	Width        uint32
	Height       uint32
	SampleAspect Rational
	ColorSpace   uint32
	ColorRange   uint32
	BitDepth     uint8
}

func (*VideoInfo) Descriptor() Descriptor { return DescVideoInfo }

// VideoOrientation carries display-rotation metadata.
type VideoOrientation struct {
	base
	StreamID    uint16
	RotationDeg int32
	HFlip       bool
	VFlip       bool
}

func (*VideoOrientation) Descriptor() Descriptor { return DescVideoOrientation }

// StreamData is a single media packet belonging to a stream.
type StreamData struct {
	base
	StreamID       uint16
	PTS            uint64
	Duration       uint32
	FrameType      uint8
	PktSegmented   bool
	PktInFECGroup  bool
	FieldID        uint8
	PktCompression uint8
	DataLength     uint32
}

func (s *StreamData) Descriptor() Descriptor {
	var flags uint8
	if s.PktSegmented {
		flags |= 0x01
	}
	if s.PktInFECGroup {
		flags |= 0x02
	}
	flags |= (s.FieldID & 0x03) << 2
	flags |= (s.PktCompression & 0x03) << 4
	return DescStreamDataBase | Descriptor(flags)
}

// Compression codec values for StreamData.PktCompression and
// payloadHeader.Compression (§3.2). Both fields are 2 bits wide; values 2
// and 3 are reserved.
const (
	CompressionNone   uint8 = 0
	CompressionSnappy uint8 = 1
)

// payloadHeader is the shared shape of lut-icc/font-data/user-data/
// metadata/stream-config: one payload plus bookkeeping fields (§3.2).
type payloadHeader struct {
	base
	PayloadLength      uint32
	TotalPayloadLength uint32
	Compression        uint8
	PTS                uint64
}

// LUTICC carries an LUT or ICC profile payload.
type LUTICC struct{ payloadHeader }

func (*LUTICC) Descriptor() Descriptor { return DescLUTICC }

// FontData carries an embedded font payload.
type FontData struct{ payloadHeader }

func (*FontData) Descriptor() Descriptor { return DescFontData }

// UserData carries an application-defined payload.
type UserData struct {
	payloadHeader
	Flags uint8
}

func (u *UserData) Descriptor() Descriptor { return DescUserDataBase | Descriptor(u.Flags) }

// Metadata carries arbitrary structured metadata.
type Metadata struct{ payloadHeader }

func (*Metadata) Descriptor() Descriptor { return DescMetadata }

// StreamConfig carries out-of-band codec configuration (e.g. parameter sets).
type StreamConfig struct{ payloadHeader }

func (*StreamConfig) Descriptor() Descriptor { return DescStreamConfig }

// GenericSegment is the common segment format for any segmentable packet
// above (§3.2). header7 carries 4 bytes of the original packet's header at
// offset 4*(sequence%7); the scheduler scatters the header across the first
// 7 segments it emits so the merger can reconstruct it without an explicit
// header packet (§4.5 step 4, §8 invariant 3).
type GenericSegment struct {
	base
	Final        bool // true for the 0xFFxx variant (final segment of series)
	TargetSeq    uint32
	StreamID     uint16
	SegOffset    uint32
	SegLength    uint32
	PktTotalData uint32
	Header7      [4]byte
}

func (g *GenericSegment) Descriptor() Descriptor {
	if g.Final {
		return DescSegmentEndBase
	}
	return DescGenericSegmentBase
}

// StreamIndexEntry is one random-access point.
type StreamIndexEntry struct {
	Seq    uint64
	Offset uint64
	PTS    uint64
}

// StreamIndex lists random-access points for a stream.
type StreamIndex struct {
	base
	StreamID uint16
	Entries  []StreamIndexEntry
}

func (*StreamIndex) Descriptor() Descriptor { return DescStreamIndex }

// EOS is the sentinel end-of-stream packet (§6.1: descriptor 0xFFFF,
// distinct from the 0xFFxx final-segment family it numerically overlaps).
type EOS struct {
	base
	StreamID uint16
}

func (*EOS) Descriptor() Descriptor { return DescEOS }
