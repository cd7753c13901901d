package transport

import (
	"github.com/cespare/xxhash/v2"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/fifo"
	"github.com/avtransport/avtransport/internal/logger"
	"github.com/avtransport/avtransport/internal/metrics"
)

// releaseRef drops p's payload reference after a back-end has finished
// writing it. WriteVec owns the Pktd values it pops off the FIFO, so it is
// responsible for releasing them once written (spec §4.7's FIFO pop-front
// transfers ownership to the caller).
func releaseRef(p *fifo.Pktd) {
	if p.HasPayload {
		buffer.Unref(&p.Payload)
	}
}

// recordWrite samples the header+payload bytes a back-end just wrote for
// the bytes-on-wire counter and checks the payload against its optional
// hash (spec §3.3), catching in-process corruption between staging and
// write.
func recordWrite(p fifo.Pktd) {
	n := len(p.Header)
	if p.HasPayload {
		n += p.Payload.Len()
		checkHash(p)
	}
	metrics.BytesOnWire.Add(float64(n))
}

func checkHash(p fifo.Pktd) {
	if !p.HasHash {
		return
	}
	if got := xxhash.Sum64(p.Payload.Data()); got != p.Hash {
		logger.Warn("payload hash mismatch before write", "descriptor", p.Descriptor, "want", p.Hash, "got", got)
	}
}
