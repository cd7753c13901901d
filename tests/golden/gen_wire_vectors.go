//go:build ignore

// Generates deterministic AVTransport wire-codec golden vector binary
// files. Run: go run ./tests/golden/gen_wire_vectors.go
// Produces the following files in tests/golden/:
//   - wire_stream_data_min_header.bin  (StreamData, 36-byte header)
//   - wire_video_info_large_header.bin (VideoInfo, 384-byte header)
//
// Header layouts (big-endian throughout):
//
//	Common prefix (every variant): descriptor(2) + seq(8)
//
//	StreamData (36 bytes total):
//	  prefix(10) + stream_id(2) + pts(8) + duration(4) + frame_type(1) +
//	  data_length(4) + zero-pad(7)
//	  descriptor = 0x0100 | flags, flags here = 0 (no segmentation, no FEC
//	  group, field 0, no compression)
//
//	VideoInfo (384 bytes total):
//	  prefix(10) + stream_id(2) + zero-pad to byte 36, then at offset 36:
//	  width(4) + height(4) + sample_aspect{num(4),den(4)} + color_space(4) +
//	  color_range(4) + bit_depth(1) + zero-pad (FEC parity suffix, left
//	  zeroed here since this vector exercises the codec, not FEC) to 384
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

	// StreamData: descriptor=0x0100, seq=1, stream_id=7, pts=90000,
	// duration=3000, frame_type=1 (key), data_length=1400.
	sd := make([]byte, 36)
	binary.BigEndian.PutUint16(sd[0:2], 0x0100)
	binary.BigEndian.PutUint64(sd[2:10], 1)
	binary.BigEndian.PutUint16(sd[10:12], 7)
	binary.BigEndian.PutUint64(sd[12:20], 90000)
	binary.BigEndian.PutUint32(sd[20:24], 3000)
	sd[24] = 1
	binary.BigEndian.PutUint32(sd[25:29], 1400)
	write(filepath.Join(outDir, "wire_stream_data_min_header.bin"), sd)

	// VideoInfo: descriptor=0x0008, seq=2, stream_id=7, width=1920,
	// height=1080, sample_aspect=1/1, color_space=1 (BT.709), color_range=1
	// (full), bit_depth=8.
	vi := make([]byte, 384)
	binary.BigEndian.PutUint16(vi[0:2], 0x0008)
	binary.BigEndian.PutUint64(vi[2:10], 2)
	binary.BigEndian.PutUint16(vi[10:12], 7)
	ext := vi[36:]
	binary.BigEndian.PutUint32(ext[0:4], 1920)
	binary.BigEndian.PutUint32(ext[4:8], 1080)
	binary.BigEndian.PutUint32(ext[8:12], 1)
	binary.BigEndian.PutUint32(ext[12:16], 1)
	binary.BigEndian.PutUint32(ext[16:20], 1)
	binary.BigEndian.PutUint32(ext[20:24], 1)
	ext[24] = 8
	write(filepath.Join(outDir, "wire_video_info_large_header.bin"), vi)

	fmt.Println("Wire codec golden vectors generated in", outDir)
}
