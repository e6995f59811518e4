package observability

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

const pcapSnapLen = 65535

type (
	// PcapSink writes Ethernet frames to a pcap stream, stamped with the
	// virtual time they were observed at.
	PcapSink struct {
		sched  simulator.Scheduler
		w      *pcapgo.Writer
		closer io.Closer
		l      logrus.FieldLogger
		frames int
	}
)

// NewPcapSink writes the pcap file header to w and returns a sink writing
// frames to it.
func NewPcapSink(sched simulator.Scheduler, w io.Writer) (*PcapSink, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(pcapSnapLen, gplayers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("error writing pcap file header: %w", err)
	}
	return &PcapSink{
		sched: sched,
		w:     pw,
		l:     logrus.WithField("component", "pcap_sink"),
	}, nil
}

// CreatePcapFile creates filename and returns a sink writing to it. The
// file is closed by Close().
func CreatePcapFile(sched simulator.Scheduler, filename string) (*PcapSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("error creating capture file %s: %w", filename, err)
	}
	p, err := NewPcapSink(sched, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.closer = f
	p.l = p.l.WithField("filename", filename)
	return p, nil
}

// WritePacket writes one frame. Errors are logged, tracing never fails
// the simulation.
func (p *PcapSink) WritePacket(packet *common.Packet) {
	b := packet.Bytes()
	snap := b
	if len(snap) > pcapSnapLen {
		snap = snap[:pcapSnapLen]
	}
	err := p.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:     time.Unix(0, 0).Add(p.sched.Now()),
		CaptureLength: len(snap),
		Length:        len(b),
	}, snap)
	if err != nil {
		p.l.
			WithError(err).
			Error("error capturing frame")
		return
	}
	p.frames++
}

// Frames returns the number of frames written.
func (p *PcapSink) Frames() int {
	return p.frames
}

func (p *PcapSink) Close() error {
	if p.closer == nil {
		return nil
	}
	c := p.closer
	p.closer = nil
	return c.Close()
}
