package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avtransport/avtransport/internal/avtransport/buffer"
	"github.com/avtransport/avtransport/internal/avtransport/conn"
	"github.com/avtransport/avtransport/internal/avtransport/merger"
	"github.com/avtransport/avtransport/internal/avtransport/transport"
	"github.com/avtransport/avtransport/internal/avtransport/wire"
	avterrors "github.com/avtransport/avtransport/internal/errors"
	"github.com/avtransport/avtransport/internal/logger"
)

// avcatOptions mirrors spec §6.4's flag set: -i (repeated), -o, -u, -m.
type avcatOptions struct {
	inputs  []string
	output  string
	unround bool
	mirror  string
}

// run copies wire packets from every input connection to the output
// connection (and the mirror connection, if set) until every input reports
// end-of-stream, then flushes and destroys every connection it opened.
func run(ctx context.Context, opts *avcatOptions) error {
	logger.Init()
	log := logger.Logger().With("component", "avcat")

	if len(opts.inputs) == 0 {
		return fmt.Errorf("avcat: at least one -i input is required")
	}
	if opts.unround {
		log.Warn("-u (unround timestamps) accepted but has no effect: this reimplementation carries PTS through unmodified")
	}

	outputs, err := openOutputs(ctx, opts)
	if err != nil {
		return err
	}
	defer destroyAll(outputs, log)

	forward := func(streamID uint16, p wire.Packet, payload buffer.Buffer) {
		for i, out := range outputs {
			pp := payload
			if i < len(outputs)-1 {
				// Every output but the last gets its own reference; the
				// last consumes the original.
				ref, err := payload.Reference(0, payload.Len())
				if err != nil {
					log.Error("mirror reference failed", "error", err)
					continue
				}
				pp = ref
			}
			if err := out.Send(streamID, p, pp); err != nil {
				log.Error("send failed", "error", err)
			}
		}
	}

	inputs, err := openInputs(ctx, opts, forward)
	if err != nil {
		return err
	}
	defer destroyAll(inputs, log)

	return pump(inputs, outputs, log)
}

func openOutputs(ctx context.Context, opts *avcatOptions) ([]*conn.Connection, error) {
	var outs []*conn.Connection
	out, err := conn.Create(ctx, conn.CreateInfo{URL: opts.output})
	if err != nil {
		return nil, fmt.Errorf("avcat: open output %q: %w", opts.output, err)
	}
	outs = append(outs, out)

	if opts.mirror != "" {
		m, err := conn.Create(ctx, conn.CreateInfo{URL: opts.mirror})
		if err != nil {
			destroyAll(outs, logger.Logger())
			return nil, fmt.Errorf("avcat: open mirror %q: %w", opts.mirror, err)
		}
		outs = append(outs, m)
	}
	return outs, nil
}

func openInputs(ctx context.Context, opts *avcatOptions, forward func(uint16, wire.Packet, buffer.Buffer)) ([]*conn.Connection, error) {
	var ins []*conn.Connection
	for _, url := range opts.inputs {
		c, err := conn.Create(ctx, conn.CreateInfo{
			URL:    url,
			Listen: true,
			OnPacket: func(p wire.Packet, payload buffer.Buffer) {
				forward(streamIDOf(p), p, payload)
			},
			OnAssembled: func(a merger.Assembled) {
				p, err := wire.Decode(a.Descriptor, a.HeaderBytes[:])
				if err != nil {
					buffer.Unref(&a.Payload)
					return
				}
				forward(streamIDOf(p), p, a.Payload)
			},
		})
		if err != nil {
			destroyAll(ins, logger.Logger())
			return nil, fmt.Errorf("avcat: open input %q: %w", url, err)
		}
		ins = append(ins, c)
	}
	return ins, nil
}

// pump reads from every input connection in turn until all report
// end-of-stream, processing each output's queued sends after every read.
func pump(inputs, outputs []*conn.Connection, log *slog.Logger) error {
	active := len(inputs)
	done := make([]bool, len(inputs))
	for active > 0 {
		for i, in := range inputs {
			if done[i] {
				continue
			}
			if err := in.Receive(transport.Indefinite); err != nil {
				if avterrors.Is(err, avterrors.KindEOF) {
					done[i] = true
					active--
					continue
				}
				return fmt.Errorf("avcat: receive from input %d: %w", i, err)
			}
		}
		for _, out := range outputs {
			if err := out.Process(transport.Unblocking); err != nil {
				log.Error("output process failed", "error", err)
			}
		}
	}
	for _, out := range outputs {
		if err := out.Flush(transport.Indefinite); err != nil {
			return fmt.Errorf("avcat: flush output: %w", err)
		}
	}
	return nil
}

func streamIDOf(p wire.Packet) uint16 {
	switch v := p.(type) {
	case *wire.StreamData:
		return v.StreamID
	case *wire.VideoInfo:
		return v.StreamID
	case *wire.VideoOrientation:
		return v.StreamID
	case *wire.StreamIndex:
		return v.StreamID
	case *wire.EOS:
		return v.StreamID
	default:
		return 0xFFFF
	}
}

func destroyAll(conns []*conn.Connection, log *slog.Logger) {
	for _, c := range conns {
		if err := c.Destroy(); err != nil {
			log.Error("destroy failed", "error", err)
		}
	}
}
