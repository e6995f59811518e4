package topology_test

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheuscscp/link-sim/config"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/observability"
	"github.com/matheuscscp/link-sim/simulator"
	"github.com/matheuscscp/link-sim/topology"

	"github.com/google/gopacket/pcapgo"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T) topology.Config {
	t.Helper()
	var conf topology.Config
	require.NoError(t, config.ReadYAML(filepath.Join("..", "scenarios", "two-lans.yaml"), &conf))
	dir := t.TempDir()
	conf.DropLog = filepath.Join(dir, "drops.log")
	conf.Pcap.Prefix = filepath.Join(dir, "endpoint")
	return conf
}

func countPcapFrames(t *testing.T, filename string) int {
	t.Helper()
	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	r, err := pcapgo.NewReader(f)
	require.NoError(t, err)
	n := 0
	for {
		_, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return n
		}
		require.NoError(t, err)
		n++
	}
}

func TestScenarioFile(t *testing.T) {
	conf := loadScenario(t)

	assert.Equal(t, 10*time.Second, conf.SimEnd)
	require.Len(t, conf.Channels, 3)
	assert.Equal(t, "lan1", conf.Channels[0].Name)
	assert.Equal(t, 3*time.Millisecond, conf.Channels[0].Delay)
	assert.Equal(t, 10*link.MegabitPerSecond, conf.Channels[0].Device.DataRate)
	assert.Equal(t, link.DataRate(1500000), conf.Channels[2].Device.DataRate)
	assert.True(t, conf.Channels[2].Device.PointToPointMode)
	require.NotNil(t, conf.Channels[1].Device.ReceiveErrorModel)
	assert.Equal(t, link.ErrorUnitByte, conf.Channels[1].Device.ReceiveErrorModel.Unit)
	require.Len(t, conf.Nodes, 6)
	require.Len(t, conf.Flows, 3)
	assert.Nil(t, conf.Flows[0].Start)
	require.NotNil(t, conf.Flows[1].Start)
	assert.Equal(t, 2*time.Second, *conf.Flows[1].Start)
}

func TestWithDefaults(t *testing.T) {
	three := 3
	conf := topology.Config{
		Flows: []topology.FlowConfig{{From: "a", To: "b"}, {From: "a", To: "b", PacketCount: &three}},
	}.WithDefaults()

	assert.Equal(t, topology.DefaultSimEnd, conf.SimEnd)
	assert.Equal(t, topology.DefaultNetwork, conf.Network)
	assert.Equal(t, topology.DefaultPcapPrefix, conf.Pcap.Prefix)
	assert.Equal(t, topology.DefaultRawBytes, conf.Raw.Bytes)
	assert.Equal(t, topology.DefaultStart, *conf.Raw.Start)
	assert.Equal(t, topology.DefaultStart, *conf.Flows[0].Start)
	assert.Equal(t, topology.DefaultPacketCount, *conf.Flows[0].PacketCount)
	assert.Equal(t, topology.DefaultPacketSize, conf.Flows[0].PacketSize)
	assert.Equal(t, topology.DefaultInterval, conf.Flows[0].Interval)
	assert.Equal(t, 3, *conf.Flows[1].PacketCount)
}

func TestRunFlows(t *testing.T) {
	conf := loadScenario(t)
	sim := simulator.New()
	topo, err := topology.New(sim, conf)
	require.NoError(t, err)

	n0 := topo.Node("n0")
	require.NotNil(t, n0)
	assert.Equal(t, "10.0.0.1", n0.IPv4Address().String())
	assert.Equal(t, "00:00:00:00:00:01", topo.Device("n0", "lan1").Address().String())
	assert.Equal(t, "00:00:00:00:00:04", topo.Device("n2", "backbone").Address().String())
	assert.Equal(t, uint32(1), topo.Device("n3", "lan2").IfIndex())
	assert.Equal(t, 3, topo.Channel("lan1").NDevices())
	assert.True(t, topo.Channel("lan2").IsBlackListed(topo.Device("n5", "lan2"), topo.Device("n3", "lan2")))

	report, err := topo.Run()
	require.NoError(t, err)

	require.Len(t, report.Flows, 3)
	assert.Equal(t, "n0->n1", report.Flows[0].Name)
	assert.Equal(t, 5, report.Flows[0].Sent)
	assert.Equal(t, 3, report.Flows[1].Sent)
	assert.Equal(t, 10, report.Flows[2].Sent)

	// lan1 has no error model
	assert.Equal(t, 5, report.Received("n1", 0))
	assert.Equal(t, 10, report.Received("n3", 0))
	assert.LessOrEqual(t, report.Received("n5", 0), 3)

	n1 := topo.Receiver(topo.Device("n1", "lan1"))
	require.NotNil(t, n1)
	arrivals := n1.Arrivals()
	require.Len(t, arrivals, 5)
	// 1052 bytes at 10Mbps plus 3ms of propagation
	assert.Equal(t, time.Second+841600*time.Nanosecond+3*time.Millisecond, arrivals[0].At)
	assert.Equal(t, time.Second, n1.Stats().MeanInterArrival)

	for _, d := range report.Drops {
		assert.Zero(t, d.Drops, d.Node)
	}

	assert.Equal(t, 5, countPcapFrames(t, conf.Pcap.Prefix+"-n0-0.pcap"))
	assert.Equal(t, 3, countPcapFrames(t, conf.Pcap.Prefix+"-n5-0.pcap"))
	_, err = os.Stat(conf.Pcap.Prefix + "-n1-0.pcap")
	assert.True(t, os.IsNotExist(err))

	b, err := os.ReadFile(conf.DropLog)
	require.NoError(t, err)
	assert.Equal(t, observability.DropLogHeader+"\n", string(b))

	var sb strings.Builder
	require.NoError(t, report.Write(&sb))
	assert.Contains(t, sb.String(), "n0->n1")

	// run closes the topology
	require.NoError(t, topo.Close())
	_, err = topo.Run()
	assert.Error(t, err)
}

func TestRunRaw(t *testing.T) {
	conf := loadScenario(t)
	conf.Raw.Enabled = true
	topo, err := topology.New(simulator.New(), conf)
	require.NoError(t, err)

	report, err := topo.Run()
	require.NoError(t, err)

	require.Len(t, report.Flows, 1)
	assert.True(t, report.Flows[0].Raw)
	assert.Equal(t, "n0", report.Flows[0].Node)
	assert.Equal(t, 1, report.Flows[0].Sent)

	// one receiver per device of every node
	assert.Len(t, report.Receivers, 8)
	total := 0
	for _, rr := range report.Receivers {
		total += rr.Stats.Received
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, report.Received("n2", 0))

	arrivals := topo.Receiver(topo.Device("n2", "lan1")).Arrivals()
	require.Len(t, arrivals, 1)
	assert.Equal(t, 78, arrivals[0].Size)
	assert.Equal(t, topo.Device("n0", "lan1").Address(), arrivals[0].From)
}

func TestRawUnknownSource(t *testing.T) {
	conf := loadScenario(t)
	conf.Raw.Enabled = true
	conf.Raw.Bytes = "00 00 00 00 00 99 00 00 00 00 00 03 08 00 00"

	_, err := topology.New(simulator.New(), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00:00:00:00:00:99")
}

func TestRawTooShort(t *testing.T) {
	conf := loadScenario(t)
	conf.Raw.Enabled = true
	conf.Raw.Bytes = "00 00 00"

	_, err := topology.New(simulator.New(), conf)
	assert.Error(t, err)
}

func TestDropLog(t *testing.T) {
	one := 1
	zero := time.Duration(0)
	dir := t.TempDir()
	conf := topology.Config{
		SimEnd:  time.Second,
		DropLog: filepath.Join(dir, "drops.log"),
		Channels: []topology.ChannelConfig{{
			Device: link.DeviceConfig{
				DataRate: link.KilobitPerSecond,
				TxQueue:  link.QueueConfig{MaxPackets: 1},
			},
		}},
		Flows: []topology.FlowConfig{
			{From: "a", To: "b", Start: &zero, PacketCount: &one},
			{From: "a", To: "b", Start: &zero, PacketCount: &one},
		},
		Nodes: []topology.NodeConfig{
			{Name: "a", Channels: []string{"c"}},
			{Name: "b", Channels: []string{"c"}},
		},
	}
	conf.Channels[0].Name = "c"

	topo, err := topology.New(simulator.New(), conf)
	require.NoError(t, err)
	report, err := topo.Run()
	require.NoError(t, err)

	// the second sender finds the queue full
	require.Len(t, report.Drops, 2)
	assert.Equal(t, topology.NodeDrops{Node: "a", ID: 0, Drops: 1}, report.Drops[0])
	assert.Equal(t, uint64(0), report.Drops[1].Drops)

	f, err := os.Open(conf.DropLog)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	s := bufio.NewScanner(f)
	for s.Scan() {
		lines = append(lines, s.Text())
	}
	require.NoError(t, s.Err())
	assert.Equal(t, []string{observability.DropLogHeader, "0\t0\t1"}, lines)
}

func TestValidate(t *testing.T) {
	conf := topology.Config{
		SimEnd: -time.Second,
		Channels: []topology.ChannelConfig{
			{},
			{BlackList: []topology.BlackListEntry{{From: "a", To: "z"}}},
			{Device: link.DeviceConfig{MACAddress: "00:00:00:00:00:01"}},
		},
		Nodes: []topology.NodeConfig{
			{Name: "a", Channels: []string{"x", "nope"}},
			{Name: "a"},
			{Name: "c", Channels: []string{"y"}},
		},
		Flows: []topology.FlowConfig{
			{From: "a", To: "ghost"},
			{From: "a", To: "c"},
			{From: "c", To: "c"},
			{From: "a", To: "c", Channel: "x"},
		},
	}
	conf.Channels[1].Name = "x"
	conf.Channels[2].Name = "y"

	err := conf.WithDefaults().Validate()
	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	for _, substr := range []string{
		"simEnd cannot be negative",
		"channel 0 has no name",
		"device mac addresses are allocated",
		"unknown channel 'nope'",
		"duplicate node name 'a'",
		"black-listed node 'z' is not attached",
		"flow 0: unknown node",
		"flow 1: 'a' and 'c' share no channel",
		"flow 2: node 'c' sends to itself",
		"flow 3: 'a' and 'c' do not share channel 'x'",
	} {
		assert.Contains(t, err.Error(), substr)
	}

	_, err = topology.New(simulator.New(), conf)
	assert.Error(t, err)
}

func TestPointToPointChannelLimit(t *testing.T) {
	conf := topology.Config{
		Channels: []topology.ChannelConfig{{Device: link.DeviceConfig{PointToPointMode: true}}},
	}
	conf.Channels[0].Name = "p2p"
	for i := 0; i < 3; i++ {
		conf.Nodes = append(conf.Nodes, topology.NodeConfig{
			Name:     fmt.Sprintf("n%d", i),
			Channels: []string{"p2p"},
		})
	}

	_, err := topology.New(simulator.New(), conf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "point-to-point")
}
