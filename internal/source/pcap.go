package source

import (
	"context"
	"fmt"
	"io"
	"os"

	"netwatch/internal/pipeline"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

// PcapReplay feeds the packets of a capture file into the pipeline
type PcapReplay struct {
	path    string
	decoder *Decoder
	logger  *logrus.Logger
}

func NewPcapReplay(path string, logger *logrus.Logger) *PcapReplay {
	return &PcapReplay{
		path:    path,
		decoder: NewDecoder(),
		logger:  logger,
	}
}

// Run opens the capture file and enqueues one descriptor per frame
func (r *PcapReplay) Run(ctx context.Context, sink pipeline.Sink) error {
	f, err := os.Open(r.path)
	if err != nil {
		return fmt.Errorf("failed to open capture %s: %w", r.path, err)
	}
	defer f.Close()

	n, err := r.Replay(ctx, f, sink)
	r.logger.Infof("Replayed %d packets from %s", n, r.path)
	return err
}

// Replay reads pcap data from in and enqueues every decoded frame
func (r *PcapReplay) Replay(ctx context.Context, in io.Reader, sink pipeline.Sink) (int, error) {
	reader, err := pcapgo.NewReader(in)
	if err != nil {
		return 0, fmt.Errorf("failed to read pcap header: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())

	count := 0
	for {
		packet, err := source.NextPacket()
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return count, nil
		}
		if err != nil {
			r.logger.Debugf("Skipping unreadable frame: %v", err)
			if ctx.Err() != nil {
				return count, ctx.Err()
			}
			continue
		}

		if err := sink.Enqueue(ctx, r.decoder.Decode(packet)); err != nil {
			return count, err
		}
		count++
	}
}
