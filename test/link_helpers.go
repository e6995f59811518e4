package test

import (
	"net"
	"testing"
	"time"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type (
	// Arrival is a frame observed by a Recorder.
	Arrival struct {
		At       time.Duration
		Context  uint32
		Protocol gplayers.EthernetType
		From     gopacket.Endpoint
		To       gopacket.Endpoint
		Type     link.PacketType
		Bytes    []byte
	}

	// Recorder keeps every frame passed to its callbacks.
	Recorder struct {
		sched    simulator.Scheduler
		Arrivals []Arrival
		Promisc  []Arrival
	}
)

func NewDevice(t *testing.T, sched simulator.Scheduler, mac string, conf link.DeviceConfig) *link.Device {
	conf.MACAddress = mac
	d, err := link.NewDevice(sched, conf)
	require.NoError(t, err)
	return d
}

// NewChannel creates a channel with the given delay and attaches devices
// in order.
func NewChannel(t *testing.T, sched simulator.Scheduler, delay time.Duration, devices ...*link.Device) *physical.Channel {
	c, err := physical.NewChannel(sched, physical.ChannelConfig{Delay: delay})
	require.NoError(t, err)
	for _, d := range devices {
		d.SetChannel(c)
	}
	return c
}

func NewRecorder(sched simulator.Scheduler) *Recorder {
	return &Recorder{sched: sched}
}

// Attach registers the recorder as both receive callbacks of d.
func (r *Recorder) Attach(d *link.Device) *Recorder {
	d.SetReceiveCallback(r.Receive)
	d.SetPromiscReceiveCallback(r.PromiscReceive)
	return r
}

func (r *Recorder) Receive(d *link.Device, p *common.Packet, protocol gplayers.EthernetType, from gopacket.Endpoint) bool {
	r.Arrivals = append(r.Arrivals, Arrival{
		At:       r.sched.Now(),
		Context:  r.sched.Context(),
		Protocol: protocol,
		From:     from,
		To:       d.Address(),
		Bytes:    append([]byte(nil), p.Bytes()...),
	})
	return true
}

func (r *Recorder) PromiscReceive(
	d *link.Device,
	p *common.Packet,
	protocol gplayers.EthernetType,
	from, to gopacket.Endpoint,
	packetType link.PacketType,
) bool {
	r.Promisc = append(r.Promisc, Arrival{
		At:       r.sched.Now(),
		Context:  r.sched.Context(),
		Protocol: protocol,
		From:     from,
		To:       to,
		Type:     packetType,
		Bytes:    append([]byte(nil), p.Bytes()...),
	})
	return true
}

// Times returns the arrival times of the frames passed to Receive.
func (r *Recorder) Times() []time.Duration {
	times := make([]time.Duration, 0, len(r.Arrivals))
	for _, a := range r.Arrivals {
		times = append(times, a.At)
	}
	return times
}

// AssertEthernetFrame decodes b as an Ethernet frame and checks its header
// and its exact payload.
func AssertEthernetFrame(
	t *testing.T,
	b []byte,
	src, dst net.HardwareAddr,
	protocol gplayers.EthernetType,
	payload []byte,
) {
	var eth gplayers.Ethernet
	require.NoError(t, eth.DecodeFromBytes(b, gopacket.NilDecodeFeedback))
	assert.Equal(t, src, eth.SrcMAC)
	assert.Equal(t, dst, eth.DstMAC)
	assert.Equal(t, protocol, eth.EthernetType)
	assert.Len(t, b, link.HeaderLength+len(payload))
	assert.Equal(t, payload, eth.Payload)
}

func MustParseMAC(t *testing.T, s string) net.HardwareAddr {
	a, err := net.ParseMAC(s)
	require.NoError(t, err)
	return a
}

func MustParseAddress(t *testing.T, s string) gopacket.Endpoint {
	a, err := link.ParseAddress(s)
	require.NoError(t, err)
	return a
}
