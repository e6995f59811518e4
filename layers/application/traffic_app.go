package application

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

const (
	// UDPPort is the source and destination port of generated datagrams.
	UDPPort = 8080

	// TTL of generated datagrams.
	TTL = 64
)

type (
	// Host is the node an application runs on.
	Host interface {
		ID() uint32
		Name() string
		Device(i int) *link.Device
		IPv4Address() net.IP
	}

	// Role of a TrafficApp.
	Role string

	// TrafficConfig contains the configs for TrafficApp.
	TrafficConfig struct {
		Role        Role          `yaml:"role"`
		PacketSize  int           `yaml:"packetSize"`
		PacketCount int           `yaml:"packetCount"`
		Interval    time.Duration `yaml:"interval"`

		// SendFrom makes the sender pass its own address explicitly to
		// the device, or the source bytes of the raw literal in raw mode.
		SendFrom bool `yaml:"sendFrom"`

		// Raw makes the sender inject RawBytes once per start instead of
		// generating UDP datagrams.
		Raw      bool   `yaml:"raw"`
		RawBytes string `yaml:"rawBytes"`

		// DeviceIndex selects the device of the host, and DestDeviceIndex
		// the device of the destination whose address frames are sent to.
		DeviceIndex     int `yaml:"deviceIndex"`
		DestDeviceIndex int `yaml:"destDeviceIndex"`
	}

	// TrafficApp is a traffic generator or receiver bound to one device
	// of its host. A sender emits PacketCount UDP datagrams of PacketSize
	// bytes, one every Interval, or a single raw frame. A receiver counts
	// and logs the frames delivered to its device.
	TrafficApp struct {
		conf      *TrafficConfig
		sched     simulator.Scheduler
		host      Host
		dest      Host
		l         logrus.FieldLogger
		raw       *RawFrame
		running   bool
		sent      int
		received  uint64
		sendEvent *simulator.EventHandle
		arrivals  []Arrival
	}

	// Arrival is a frame counted by a receiver.
	Arrival struct {
		Seq      uint64
		Size     int
		Protocol gplayers.EthernetType
		From     gopacket.Endpoint
		At       time.Duration
	}

	// Stats summarizes the arrivals of a receiver.
	Stats struct {
		Received           int
		MeanSize           float64
		StdDevSize         float64
		MeanInterArrival   time.Duration
		StdDevInterArrival time.Duration
	}
)

const (
	RoleSender   Role = "sender"
	RoleReceiver Role = "receiver"
)

// NewTrafficApp creates a TrafficApp from config. dest is required for
// synthetic senders and ignored otherwise.
func NewTrafficApp(sched simulator.Scheduler, conf TrafficConfig, host, dest Host) (*TrafficApp, error) {
	if host == nil {
		return nil, errors.New("traffic app requires a host")
	}
	if conf.PacketSize < 0 || conf.PacketCount < 0 || conf.Interval < 0 {
		return nil, errors.New("packet size, packet count and interval cannot be negative")
	}
	if host.Device(conf.DeviceIndex) == nil {
		return nil, fmt.Errorf("host %s has no device %d", host.Name(), conf.DeviceIndex)
	}
	a := &TrafficApp{
		conf:  &conf,
		sched: sched,
		host:  host,
		dest:  dest,
		l: logrus.
			WithField("node", host.ID()).
			WithField("node_name", host.Name()).
			WithField("role", string(conf.Role)),
	}
	switch conf.Role {
	case RoleReceiver:
	case RoleSender:
		if conf.Raw {
			b, err := ParseHexBytes(conf.RawBytes)
			if err != nil {
				return nil, fmt.Errorf("error parsing raw bytes: %w", err)
			}
			if a.raw, err = ParseRawFrame(b); err != nil {
				return nil, err
			}
		} else {
			if conf.PacketSize == 0 {
				return nil, fmt.Errorf("sender of host %s: %w", host.Name(), common.ErrCannotSendEmpty)
			}
			if dest == nil {
				return nil, errors.New("sender requires a destination host")
			}
			if dest.Device(conf.DestDeviceIndex) == nil {
				return nil, fmt.Errorf("destination host %s has no device %d", dest.Name(), conf.DestDeviceIndex)
			}
		}
	default:
		return nil, fmt.Errorf("unknown traffic app role '%s'", conf.Role)
	}
	return a, nil
}

// Start makes a receiver listen on its device and a sender emit its first
// packet.
func (a *TrafficApp) Start() {
	if a.running {
		return
	}
	a.running = true
	if a.conf.Role == RoleReceiver {
		a.device().SetReceiveCallback(a.receive)
		return
	}
	if a.raw != nil {
		a.sendRaw()
		return
	}
	a.SendNext()
}

// Stop cancels the next send. Counters are kept.
func (a *TrafficApp) Stop() {
	a.running = false
	a.sched.Cancel(a.sendEvent)
	a.sendEvent = nil
}

// SendNext sends the next datagram and schedules the following one.
func (a *TrafficApp) SendNext() {
	if a.conf.Role != RoleSender || a.raw != nil {
		return
	}
	if !a.running || a.conf.PacketCount == 0 || a.sent >= a.conf.PacketCount {
		return
	}

	srcIP, dstIP := a.host.IPv4Address().To4(), a.dest.IPv4Address().To4()
	if srcIP == nil || dstIP == nil {
		a.l.
			WithError(ErrUnresolvedAddress).
			WithField("dest", a.dest.Name()).
			Error("error resolving ipv4 addresses of flow")
		return
	}
	packet, err := a.datagram(srcIP, dstIP)
	if err != nil {
		a.l.
			WithError(err).
			Error("error building datagram")
		return
	}

	dev := a.device()
	dst := a.dest.Device(a.conf.DestDeviceIndex).Address()
	var ok bool
	if a.conf.SendFrom {
		ok = dev.SendFrom(packet, dev.Address(), dst, gplayers.EthernetTypeIPv4)
	} else {
		ok = dev.Send(packet, dst, gplayers.EthernetTypeIPv4)
	}
	if !ok {
		a.l.
			WithField("packet", a.sent).
			Error("error sending packet")
		return
	}
	a.l.
		WithField("packet", a.sent).
		WithField("time", a.sched.Now().Seconds()).
		Info("sent packet")
	a.sent++

	if a.sent < a.conf.PacketCount {
		a.sendEvent = a.sched.Schedule(a.conf.Interval, a.SendNext)
	}
}

func (a *TrafficApp) datagram(srcIP, dstIP net.IP) (*common.Packet, error) {
	packet := common.NewPacket(a.conf.PacketSize)
	ip := &gplayers.IPv4{
		Version:  4,
		TTL:      TTL,
		Protocol: gplayers.IPProtocolUDP,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}
	udp := &gplayers.UDP{
		SrcPort: UDPPort,
		DstPort: UDPPort,
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("error setting network layer for checksum: %w", err)
	}
	if err := packet.AddHeader(ip, udp); err != nil {
		return nil, err
	}
	return packet, nil
}

func (a *TrafficApp) sendRaw() {
	dev := a.device()
	packet := a.raw.Packet()
	var ok bool
	if a.conf.SendFrom {
		ok = dev.SendFrom(packet, a.raw.Src, a.raw.Dst, a.raw.Proto)
	} else {
		ok = dev.Send(packet, a.raw.Dst, a.raw.Proto)
	}
	l := a.l.
		WithField("src", a.raw.Src.String()).
		WithField("dst", a.raw.Dst.String()).
		WithField("proto", fmt.Sprintf("0x%04x", uint16(a.raw.Proto)))
	if !ok {
		l.Error("error sending raw frame")
		return
	}
	l.
		WithField("packet", a.sent).
		WithField("time", a.sched.Now().Seconds()).
		Info("sent raw frame")
	a.sent++
}

func (a *TrafficApp) receive(_ *link.Device, packet *common.Packet, protocol gplayers.EthernetType, from gopacket.Endpoint) bool {
	if !a.running {
		return false
	}
	a.arrivals = append(a.arrivals, Arrival{
		Seq:      a.received,
		Size:     packet.Size(),
		Protocol: protocol,
		From:     from,
		At:       a.sched.Now(),
	})
	a.l.
		WithField("packet", a.received).
		WithField("size", packet.Size()).
		WithField("time", a.sched.Now().Seconds()).
		Info("received packet")
	a.received++
	return true
}

func (a *TrafficApp) device() *link.Device {
	return a.host.Device(a.conf.DeviceIndex)
}

func (a *TrafficApp) Running() bool {
	return a.running
}

func (a *TrafficApp) Role() Role {
	return a.conf.Role
}

func (a *TrafficApp) Host() Host {
	return a.host
}

// Sent returns the number of packets handed to the device.
func (a *TrafficApp) Sent() int {
	return a.sent
}

// Received returns the receiver sequence counter.
func (a *TrafficApp) Received() uint64 {
	return a.received
}

// Arrivals returns the frames counted by a receiver, in arrival order.
func (a *TrafficApp) Arrivals() []Arrival {
	return a.arrivals
}

// Stats summarizes Arrivals(). Deviations need two samples and are zero
// otherwise.
func (a *TrafficApp) Stats() Stats {
	s := Stats{Received: len(a.arrivals)}
	if len(a.arrivals) == 0 {
		return s
	}
	sizes := make([]float64, 0, len(a.arrivals))
	for _, arr := range a.arrivals {
		sizes = append(sizes, float64(arr.Size))
	}
	s.MeanSize = stat.Mean(sizes, nil)
	if len(sizes) > 1 {
		s.StdDevSize = stat.StdDev(sizes, nil)
	}
	if len(a.arrivals) < 2 {
		return s
	}
	gaps := make([]float64, 0, len(a.arrivals)-1)
	for i := 1; i < len(a.arrivals); i++ {
		gaps = append(gaps, float64(a.arrivals[i].At-a.arrivals[i-1].At))
	}
	s.MeanInterArrival = time.Duration(stat.Mean(gaps, nil))
	if len(gaps) > 1 {
		s.StdDevInterArrival = time.Duration(stat.StdDev(gaps, nil))
	}
	return s
}
