//go:build ignore

// Generates deterministic merger golden vector binary files: seven
// GenericSegment-encoded segments whose header_7 slices reconstruct a
// 36-byte source header byte-exactly, and whose payload ranges reassemble
// a 28-byte logical payload (spec §4.5 step 4, §8 invariants 2/3: order
// of arrival must not affect the reassembled result).
// Run: go run ./tests/golden/gen_merger_vectors.go
// Produces the following files in tests/golden/:
//   - merger_segment_0.bin .. merger_segment_6.bin (segment header(36) + 4-byte payload chunk)
//   - merger_expected_header.bin  (the 36-byte source header, first 28 bytes are
//     reconstructable from header_7, last 8 bytes are never covered and stay zero)
//   - merger_expected_payload.bin (the 28-byte reassembled payload)
//
// Segment header layout (GenericSegment, 36 bytes):
//
//	descriptor(2) + seq(8) + target_seq(4) + stream_id(2) + seg_offset(4) +
//	seg_length(4) + pkt_total_data(4) + header_7(4) + zero-pad(4)
//
// header_7 for segment with sequence number seq is source_header[4*(seq%7) : 4*(seq%7)+4].
// Segments are generated with seq = 0..6, each hitting a distinct residue
// mod 7 exactly once, so XOR-accumulation into a zeroed 36-byte buffer
// reproduces source_header[0:28] regardless of arrival order.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
)

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func write(path string, data []byte) {
	must(os.WriteFile(path, data, 0o644))
	fmt.Printf("Wrote %-40s size=%d bytes\n", filepath.Base(path), len(data))
}

func main() {
	outDir := filepath.Join("tests", "golden")
	must(os.MkdirAll(outDir, 0o755))

	// Source header: a StreamData header (descriptor=0x0100, seq=1,
	// stream_id=7, pts=90000, duration=3000, frame_type=1, data_length=28).
	srcHdr := make([]byte, 36)
	binary.BigEndian.PutUint16(srcHdr[0:2], 0x0100)
	binary.BigEndian.PutUint64(srcHdr[2:10], 1)
	binary.BigEndian.PutUint16(srcHdr[10:12], 7)
	binary.BigEndian.PutUint64(srcHdr[12:20], 90000)
	binary.BigEndian.PutUint32(srcHdr[20:24], 3000)
	srcHdr[24] = 1
	binary.BigEndian.PutUint32(srcHdr[25:29], 28)
	write(filepath.Join(outDir, "merger_expected_header.bin"), srcHdr)

	// Source payload: 28 bytes, deterministic fill.
	payload := make([]byte, 28)
	for i := range payload {
		payload[i] = byte(i*5 + 1)
	}
	write(filepath.Join(outDir, "merger_expected_payload.bin"), payload)

	const targetSeq = 100
	const streamID = 7
	for seq := uint64(0); seq < 7; seq++ {
		off := int(seq%7) * 4
		seg := make([]byte, 36)
		descriptor := uint16(0xFE00) // mid-series
		if seq == 6 {
			descriptor = 0xFF00 // final segment
		}
		binary.BigEndian.PutUint16(seg[0:2], descriptor)
		binary.BigEndian.PutUint64(seg[2:10], seq)
		binary.BigEndian.PutUint32(seg[10:14], targetSeq)
		binary.BigEndian.PutUint16(seg[14:16], streamID)
		binary.BigEndian.PutUint32(seg[16:20], uint32(off))
		binary.BigEndian.PutUint32(seg[20:24], 4)
		binary.BigEndian.PutUint32(seg[24:28], uint32(len(payload)))
		copy(seg[28:32], srcHdr[off:off+4])
		// seg[32:36] left zero (reserved pad).

		chunk := payload[off : off+4]
		full := append(seg, chunk...)
		write(filepath.Join(outDir, fmt.Sprintf("merger_segment_%d.bin", seq)), full)
	}

	fmt.Println("Merger golden vectors generated in", outDir)
}
