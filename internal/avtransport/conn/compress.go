package conn

import (
	"github.com/golang/snappy"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	"github.com/avtransport/avtransport/internal/errors"
)

// compressionMinSize is the smallest payload this connection bothers
// compressing; snappy's own framing overhead makes compressing anything
// smaller a net loss.
const compressionMinSize = 256

// withCompressionFlag returns a shallow copy of p tagged with the given
// compression codec, for every variant spec §3.2 gives a compression
// field to. Every other variant is returned unchanged (same pointer).
func withCompressionFlag(p wire.Packet, codec uint8) wire.Packet {
	switch v := p.(type) {
	case *wire.StreamData:
		cp := *v
		cp.PktCompression = codec
		return &cp
	case *wire.LUTICC:
		cp := *v
		cp.Compression = codec
		return &cp
	case *wire.FontData:
		cp := *v
		cp.Compression = codec
		return &cp
	case *wire.UserData:
		cp := *v
		cp.Compression = codec
		return &cp
	case *wire.Metadata:
		cp := *v
		cp.Compression = codec
		return &cp
	case *wire.StreamConfig:
		cp := *v
		cp.Compression = codec
		return &cp
	default:
		return p
	}
}

// compressionOf reports the compression codec p already carries, or
// wire.CompressionNone for variants with no such field.
func compressionOf(p wire.Packet) uint8 {
	switch v := p.(type) {
	case *wire.StreamData:
		return v.PktCompression
	case *wire.LUTICC:
		return v.Compression
	case *wire.FontData:
		return v.Compression
	case *wire.UserData:
		return v.Compression
	case *wire.Metadata:
		return v.Compression
	case *wire.StreamConfig:
		return v.Compression
	default:
		return wire.CompressionNone
	}
}

// maybeCompress snappy-compresses payload and tags p with
// wire.CompressionSnappy when enabled, p's variant carries a compression
// field, the field isn't already set, and payload clears
// compressionMinSize. Returns p and payload unchanged otherwise.
func maybeCompress(p wire.Packet, payload buffer.Buffer, enabled bool) (wire.Packet, buffer.Buffer) {
	if !enabled || payload.IsZero() || payload.Len() < compressionMinSize || compressionOf(p) != wire.CompressionNone {
		return p, payload
	}
	tagged := withCompressionFlag(p, wire.CompressionSnappy)
	if tagged == p {
		return p, payload
	}
	compressed := snappy.Encode(nil, payload.Data())
	buffer.Unref(&payload)
	return tagged, buffer.Create(compressed, nil, nil)
}

// decompressIfNeeded reverses maybeCompress on the receive side, driven by
// the compression field already decoded onto p.
func decompressIfNeeded(p wire.Packet, payload buffer.Buffer) (buffer.Buffer, error) {
	if payload.IsZero() || compressionOf(p) != wire.CompressionSnappy {
		return payload, nil
	}
	decoded, err := snappy.Decode(nil, payload.Data())
	if err != nil {
		return payload, errors.InvalidArgument("conn.decompress", err)
	}
	buffer.Unref(&payload)
	return buffer.Create(decoded, nil, nil), nil
}
