package topology

import (
	"fmt"
	"time"

	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/observability"

	"github.com/hashicorp/go-multierror"
)

const (
	DefaultSimEnd      = 10 * time.Second
	DefaultNetwork     = "10.0.0.0/24"
	DefaultPacketSize  = 1024
	DefaultPacketCount = 5
	DefaultInterval    = time.Second
	DefaultStart       = time.Second
	DefaultPcapPrefix  = "endpoint"
)

type (
	// Config describes a scenario: channels, the nodes attached to them
	// and the traffic flowing between nodes.
	Config struct {
		SimEnd       time.Duration              `yaml:"simEnd"`
		Network      string                     `yaml:"network"`
		Channels     []ChannelConfig            `yaml:"channels"`
		Nodes        []NodeConfig               `yaml:"nodes"`
		Flows        []FlowConfig               `yaml:"flows"`
		Raw          RawConfig                  `yaml:"raw"`
		DropLog      string                     `yaml:"dropLog"`
		Pcap         PcapConfig                 `yaml:"pcap"`
		MetricLabels observability.MetricLabels `yaml:"metricLabels"`
	}

	// ChannelConfig describes a channel and the devices attached to it.
	ChannelConfig struct {
		physical.ChannelConfig `yaml:",inline"`

		// Device is the config of every device attached to the channel.
		// MAC addresses are allocated sequentially across the scenario.
		Device link.DeviceConfig `yaml:"device"`

		BlackList []BlackListEntry `yaml:"blackList"`
	}

	// BlackListEntry blocks, on one channel, the frames sent by the device
	// of node From at the device of node To.
	BlackListEntry struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
	}

	// NodeConfig describes a node. The node gets one device per channel,
	// in the listed order.
	NodeConfig struct {
		Name     string   `yaml:"name"`
		Channels []string `yaml:"channels"`
		Pcap     bool     `yaml:"pcap"`
	}

	// FlowConfig describes a stream of UDP datagrams between two nodes
	// sharing a channel. The sender and the receiver start at Start and
	// stop at the end of the simulation.
	FlowConfig struct {
		From        string         `yaml:"from"`
		To          string         `yaml:"to"`
		Channel     string         `yaml:"channel"`
		Start       *time.Duration `yaml:"start"`
		PacketCount *int           `yaml:"packetCount"`
		PacketSize  int            `yaml:"packetSize"`
		Interval    time.Duration  `yaml:"interval"`
		SendFrom    bool           `yaml:"sendFrom"`
	}

	// RawConfig enables raw injection: the flows are ignored, the node
	// owning the MAC address in the first 6 bytes injects Bytes once and
	// every device of every node counts what it receives.
	RawConfig struct {
		Enabled  bool           `yaml:"enabled"`
		Bytes    string         `yaml:"bytes"`
		Start    *time.Duration `yaml:"start"`
		SendFrom bool           `yaml:"sendFrom"`
	}

	// PcapConfig contains the configs of pcap captures.
	PcapConfig struct {
		Prefix string `yaml:"prefix"`
	}
)

// DefaultRawBytes is a 92-byte frame carrying an IPv4/UDP datagram from
// 10.0.0.1 to 10.0.0.3, port 8080, from 00:00:00:00:00:01 to
// 00:00:00:00:00:03.
const DefaultRawBytes = "00 00 00 00 00 01 00 00 00 00 00 03 08 00 " +
	"45 00 00 4e 00 00 00 00 40 11 66 8c 0a 00 00 01 0a 00 00 03 " +
	"1f 90 1f 90 00 3a 00 00 " +
	"00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 " +
	"00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00"

// WithDefaults returns a copy of the config with defaults for the omitted
// fields.
func (c Config) WithDefaults() Config {
	if c.SimEnd == 0 {
		c.SimEnd = DefaultSimEnd
	}
	if c.Network == "" {
		c.Network = DefaultNetwork
	}
	if c.Pcap.Prefix == "" {
		c.Pcap.Prefix = DefaultPcapPrefix
	}
	if c.Raw.Bytes == "" {
		c.Raw.Bytes = DefaultRawBytes
	}
	if c.Raw.Start == nil {
		c.Raw.Start = durationPtr(DefaultStart)
	}
	channels := make([]ChannelConfig, len(c.Channels))
	for i, ch := range c.Channels {
		if ch.MetricLabels.StackName == "" {
			ch.MetricLabels = c.MetricLabels
		}
		if ch.Device.MetricLabels.StackName == "" {
			ch.Device.MetricLabels = c.MetricLabels
		}
		channels[i] = ch
	}
	c.Channels = channels
	flows := make([]FlowConfig, len(c.Flows))
	for i, f := range c.Flows {
		if f.Start == nil {
			f.Start = durationPtr(DefaultStart)
		}
		if f.PacketCount == nil {
			n := DefaultPacketCount
			f.PacketCount = &n
		}
		if f.PacketSize == 0 {
			f.PacketSize = DefaultPacketSize
		}
		if f.Interval == 0 {
			f.Interval = DefaultInterval
		}
		flows[i] = f
	}
	c.Flows = flows
	return c
}

// Validate checks the references between the parts of the config. All
// problems are reported together.
func (c Config) Validate() error {
	var err error
	if c.SimEnd < 0 {
		err = multierror.Append(err, fmt.Errorf("simEnd cannot be negative: %v", c.SimEnd))
	}

	channels := make(map[string]bool)
	for i, ch := range c.Channels {
		if ch.Name == "" {
			err = multierror.Append(err, fmt.Errorf("channel %d has no name", i))
			continue
		}
		if channels[ch.Name] {
			err = multierror.Append(err, fmt.Errorf("duplicate channel name '%s'", ch.Name))
		}
		channels[ch.Name] = true
		if ch.Device.MACAddress != "" {
			err = multierror.Append(err, fmt.Errorf("channel '%s': device mac addresses are allocated, not configured", ch.Name))
		}
	}

	members := make(map[string]map[string]bool) // node -> channels
	for i, n := range c.Nodes {
		if n.Name == "" {
			err = multierror.Append(err, fmt.Errorf("node %d has no name", i))
			continue
		}
		if _, ok := members[n.Name]; ok {
			err = multierror.Append(err, fmt.Errorf("duplicate node name '%s'", n.Name))
		}
		members[n.Name] = make(map[string]bool)
		for _, ch := range n.Channels {
			if !channels[ch] {
				err = multierror.Append(err, fmt.Errorf("node '%s': unknown channel '%s'", n.Name, ch))
			}
			if members[n.Name][ch] {
				err = multierror.Append(err, fmt.Errorf("node '%s': attached twice to channel '%s'", n.Name, ch))
			}
			members[n.Name][ch] = true
		}
	}

	for _, ch := range c.Channels {
		for _, e := range ch.BlackList {
			for _, name := range []string{e.From, e.To} {
				if !members[name][ch.Name] {
					err = multierror.Append(err, fmt.Errorf("channel '%s': black-listed node '%s' is not attached", ch.Name, name))
				}
			}
		}
	}

	if c.Raw.Enabled {
		return err
	}
	for i, f := range c.Flows {
		from, okFrom := members[f.From]
		to, okTo := members[f.To]
		if !okFrom || !okTo {
			err = multierror.Append(err, fmt.Errorf("flow %d: unknown node in '%s' -> '%s'", i, f.From, f.To))
			continue
		}
		if f.From == f.To {
			err = multierror.Append(err, fmt.Errorf("flow %d: node '%s' sends to itself", i, f.From))
		}
		if f.Channel != "" {
			if !from[f.Channel] || !to[f.Channel] {
				err = multierror.Append(err, fmt.Errorf("flow %d: '%s' and '%s' do not share channel '%s'", i, f.From, f.To, f.Channel))
			}
			continue
		}
		if sharedChannel(c.Nodes, f.From, f.To) == "" {
			err = multierror.Append(err, fmt.Errorf("flow %d: '%s' and '%s' share no channel", i, f.From, f.To))
		}
	}
	return err
}

// sharedChannel returns the first channel of from that to is attached to.
func sharedChannel(nodes []NodeConfig, from, to string) string {
	var fromChannels, toChannels []string
	for _, n := range nodes {
		switch n.Name {
		case from:
			fromChannels = n.Channels
		case to:
			toChannels = n.Channels
		}
	}
	for _, a := range fromChannels {
		for _, b := range toChannels {
			if a == b {
				return a
			}
		}
	}
	return ""
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
