package application_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/matheuscscp/link-sim/layers/application"
	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/node"
	"github.com/matheuscscp/link-sim/simulator"
	"github.com/matheuscscp/link-sim/test"

	gplayers "github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1000 bytes take 1ms
var rate8Mbps = link.DeviceConfig{DataRate: 8 * link.MegabitPerSecond}

func newApp(t *testing.T, s *simulator.Simulator, conf application.TrafficConfig, host, dest *node.Node) *application.TrafficApp {
	var destHost application.Host
	if dest != nil {
		destHost = dest
	}
	app, err := application.NewTrafficApp(s, conf, host, destHost)
	require.NoError(t, err)
	return app
}

func TestSequenceCounterAcrossChannel(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 5*time.Millisecond, rate8Mbps, a, b)

	receiver := newApp(t, s, application.TrafficConfig{Role: application.RoleReceiver}, b, nil)
	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  1000 - 28, // ipv4 + udp headers
		PacketCount: 3,
	}, a, b)
	require.NoError(t, b.AddApplication(receiver, 0, 0))
	require.NoError(t, a.AddApplication(sender, 0, 0))

	var counters []uint64
	for _, at := range []time.Duration{5500, 6500, 7500, 8500} {
		s.Schedule(at*time.Microsecond, func() { counters = append(counters, receiver.Received()) })
	}
	require.NoError(t, s.Run())

	assert.Equal(t, 3, sender.Sent())
	assert.Equal(t, []uint64{0, 1, 2, 3}, counters)
	arrivals := receiver.Arrivals()
	require.Len(t, arrivals, 3)
	for i, arr := range arrivals {
		assert.Equal(t, uint64(i), arr.Seq)
		assert.Equal(t, 1000, arr.Size)
		assert.Equal(t, time.Duration(6+i)*time.Millisecond, arr.At)
		assert.Equal(t, a.Device(0).Address(), arr.From)
		assert.Equal(t, gplayers.EthernetTypeIPv4, arr.Protocol)
	}
}

func TestDatagramHeaders(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{}, a, b)
	rec := test.NewRecorder(s).Attach(b.Device(0))

	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  100,
		PacketCount: 1,
		SendFrom:    true,
	}, a, b)
	require.NoError(t, a.AddApplication(sender, time.Second, 0))
	require.NoError(t, s.Run())

	require.Len(t, rec.Arrivals, 1)
	p := common.NewPacketFromBytes(rec.Arrivals[0].Bytes)
	assert.Equal(t, 128, p.Size())

	var ip gplayers.IPv4
	require.NoError(t, p.RemoveHeader(&ip))
	assert.True(t, net.IPv4(10, 0, 0, 1).Equal(ip.SrcIP))
	assert.True(t, net.IPv4(10, 0, 0, 2).Equal(ip.DstIP))
	assert.Equal(t, uint8(application.TTL), ip.TTL)
	assert.Equal(t, gplayers.IPProtocolUDP, ip.Protocol)
	assert.Equal(t, uint16(128), ip.Length)
	assert.NotZero(t, ip.Checksum)

	var udp gplayers.UDP
	require.NoError(t, p.RemoveHeader(&udp))
	assert.Equal(t, gplayers.UDPPort(application.UDPPort), udp.SrcPort)
	assert.Equal(t, gplayers.UDPPort(application.UDPPort), udp.DstPort)
	assert.Equal(t, uint16(108), udp.Length)
	assert.Equal(t, 100, p.Size())
	assert.Equal(t, time.Second, rec.Arrivals[0].At)
}

func TestIntervalAndStop(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), time.Millisecond, link.DeviceConfig{}, a, b)

	receiver := newApp(t, s, application.TrafficConfig{Role: application.RoleReceiver}, b, nil)
	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  64,
		PacketCount: 5,
		Interval:    time.Second,
	}, a, b)
	require.NoError(t, b.AddApplication(receiver, 0, 0))
	require.NoError(t, a.AddApplication(sender, time.Second, 3500*time.Millisecond))
	require.NoError(t, s.Run())

	assert.Equal(t, 3, sender.Sent())
	assert.False(t, sender.Running())
	sender.Stop()
	assert.Equal(t, 3, sender.Sent())

	stats := receiver.Stats()
	assert.Equal(t, 3, stats.Received)
	assert.Equal(t, float64(92), stats.MeanSize)
	assert.Equal(t, float64(0), stats.StdDevSize)
	assert.Equal(t, time.Second, stats.MeanInterArrival)
	assert.Equal(t, time.Duration(0), stats.StdDevInterArrival)
}

func TestStoppedReceiverIgnoresArrivals(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{}, a, b)

	receiver := newApp(t, s, application.TrafficConfig{Role: application.RoleReceiver}, b, nil)
	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  64,
		PacketCount: 4,
		Interval:    time.Second,
	}, a, b)
	require.NoError(t, b.AddApplication(receiver, 0, 1500*time.Millisecond))
	require.NoError(t, a.AddApplication(sender, 0, 0))
	require.NoError(t, s.Run())

	assert.Equal(t, 4, sender.Sent())
	assert.Equal(t, uint64(2), receiver.Received())
}

func TestSendFailureAbortsChain(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{MTU: 100}, a, b)

	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  200,
		PacketCount: 5,
		Interval:    time.Second,
	}, a, b)
	require.NoError(t, a.AddApplication(sender, 0, 0))
	require.NoError(t, s.Run())

	assert.Equal(t, 0, sender.Sent())
	assert.Equal(t, time.Duration(0), s.Now())
}

func TestUnresolvedAddress(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{}, a, b)
	b.SetIPv4Address(nil)
	rec := test.NewRecorder(s).Attach(b.Device(0))

	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketSize:  10,
		PacketCount: 1,
	}, a, b)
	require.NoError(t, a.AddApplication(sender, 0, 0))
	require.NoError(t, s.Run())

	assert.Equal(t, 0, sender.Sent())
	assert.Empty(t, rec.Promisc)
}

func TestRawInjection(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 3)
	src, x, y := nodes[0], nodes[1], nodes[2]
	test.Connect(t, s, link.NewAddressAllocator(), 2*time.Millisecond, link.DeviceConfig{}, src, x, y)
	recX := test.NewRecorder(s).Attach(x.Device(0))

	raw := make([]byte, 92)
	copy(raw[0:6], src.Device(0).Address().Raw())
	copy(raw[6:12], x.Device(0).Address().Raw())
	raw[12], raw[13] = 0x08, 0x00
	for i := 14; i < len(raw); i++ {
		raw[i] = byte(i)
	}

	var receivers []*application.TrafficApp
	for _, nd := range nodes {
		r := newApp(t, s, application.TrafficConfig{Role: application.RoleReceiver}, nd, nil)
		require.NoError(t, nd.AddApplication(r, time.Second, 0))
		receivers = append(receivers, r)
	}
	sender := newApp(t, s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketCount: 5,
		Interval:    time.Second,
		Raw:         true,
		RawBytes:    hexString(raw),
	}, src, nil)
	require.NoError(t, src.AddApplication(sender, time.Second, 0))
	require.NoError(t, s.Run())

	assert.Equal(t, 1, sender.Sent())
	assert.Equal(t, uint64(0), receivers[0].Received())
	assert.Equal(t, uint64(1), receivers[1].Received())
	assert.Equal(t, uint64(0), receivers[2].Received())

	require.Len(t, recX.Promisc, 1)
	assert.Equal(t, raw[14:], recX.Promisc[0].Bytes)
	assert.Equal(t, gplayers.EthernetTypeIPv4, recX.Promisc[0].Protocol)
	assert.Equal(t, link.PacketHost, recX.Promisc[0].Type)
	assert.Equal(t, 1002*time.Millisecond, recX.Promisc[0].At)
	assert.Equal(t, 78, receivers[1].Arrivals()[0].Size)
	assert.Equal(t, src.Device(0).Address(), receivers[1].Arrivals()[0].From)
}

func TestRawInjectionSendFrom(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{}, a, b)
	rec := test.NewRecorder(s).Attach(b.Device(0))

	sender := newApp(t, s, application.TrafficConfig{
		Role:     application.RoleSender,
		Raw:      true,
		SendFrom: true,
		RawBytes: "00 00 5e 00 53 af 00 00 00 00 00 02 86 dd ca fe",
	}, a, nil)
	require.NoError(t, a.AddApplication(sender, 0, 0))
	require.NoError(t, s.Run())

	require.Len(t, rec.Arrivals, 1)
	assert.Equal(t, test.MustParseAddress(t, "00:00:5e:00:53:af"), rec.Arrivals[0].From)
	assert.Equal(t, gplayers.EthernetTypeIPv6, rec.Arrivals[0].Protocol)
	assert.Equal(t, []byte{0xca, 0xfe}, rec.Arrivals[0].Bytes)
}

func TestNewTrafficAppErrors(t *testing.T) {
	s := simulator.New()
	nodes := test.NewNodes(s, 2)
	a, b := nodes[0], nodes[1]
	test.Connect(t, s, link.NewAddressAllocator(), 0, link.DeviceConfig{}, a, b)

	_, err := application.NewTrafficApp(s, application.TrafficConfig{
		Role:     application.RoleSender,
		Raw:      true,
		RawBytes: "00 01 02",
	}, a, nil)
	assert.True(t, errors.Is(err, application.ErrRawFrameTooShort))

	_, err = application.NewTrafficApp(s, application.TrafficConfig{
		Role:        application.RoleSender,
		PacketCount: 1,
	}, a, b)
	assert.True(t, errors.Is(err, common.ErrCannotSendEmpty))

	for name, conf := range map[string]application.TrafficConfig{
		"bad hex":     {Role: application.RoleSender, Raw: true, RawBytes: "00 zz"},
		"bad role":    {Role: "forwarder"},
		"no device":   {Role: application.RoleReceiver, DeviceIndex: 1},
		"no dest dev": {Role: application.RoleSender, PacketSize: 10, DestDeviceIndex: 3},
		"negative":    {Role: application.RoleSender, PacketSize: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := application.NewTrafficApp(s, conf, a, b)
			assert.Error(t, err)
		})
	}

	_, err = application.NewTrafficApp(s, application.TrafficConfig{Role: application.RoleSender, PacketSize: 10}, a, nil)
	assert.Error(t, err)
}

func hexString(b []byte) string {
	const digits = "0123456789abcdef"
	s := make([]byte, 0, 3*len(b))
	for i, v := range b {
		if i > 0 {
			s = append(s, ' ')
		}
		s = append(s, digits[v>>4], digits[v&0x0f])
	}
	return string(s)
}
