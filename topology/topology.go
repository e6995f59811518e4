package topology

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/matheuscscp/link-sim/layers/application"
	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/node"
	"github.com/matheuscscp/link-sim/observability"
	pkgio "github.com/matheuscscp/link-sim/pkg/io"
	pkgnet "github.com/matheuscscp/link-sim/pkg/net"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

type (
	// Topology is a scenario built on a simulator: nodes attached to
	// shared channels and the traffic applications running on them.
	Topology struct {
		conf     *Config
		sim      *simulator.Simulator
		l        logrus.FieldLogger
		nodes    []*node.Node
		byName   map[string]*node.Node
		channels map[string]*physical.Channel
		devices  map[deviceKey]*link.Device
		flows    []*flow
		receiver map[*link.Device]*application.TrafficApp
		drops    *observability.DropCounter
		closers  pkgio.Closers
		closed   bool
	}

	deviceKey struct {
		node    string
		channel string
	}

	flow struct {
		name   string
		from   *node.Node
		to     *node.Node
		sender *application.TrafficApp
	}
)

// New builds the scenario described by conf on sim. Defaults are applied
// to conf first. Resources opened here are released by Close().
func New(sim *simulator.Simulator, conf Config) (*Topology, error) {
	conf = conf.WithDefaults()
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	t := &Topology{
		conf:     &conf,
		sim:      sim,
		l:        logrus.WithField("component", "topology"),
		byName:   make(map[string]*node.Node),
		channels: make(map[string]*physical.Channel),
		devices:  make(map[deviceKey]*link.Device),
		receiver: make(map[*link.Device]*application.TrafficApp),
	}
	if err := t.build(); err != nil {
		if closeErr := t.Close(); closeErr != nil {
			err = multierror.Append(err, closeErr)
		}
		return nil, err
	}
	return t, nil
}

func (t *Topology) build() error {
	ips, err := pkgnet.NewIPv4Allocator(t.conf.Network)
	if err != nil {
		return err
	}
	for i, nc := range t.conf.Nodes {
		n := node.New(t.sim, uint32(i), nc.Name)
		ip, err := ips.Allocate()
		if err != nil {
			return fmt.Errorf("error allocating ipv4 address of node %s: %w", nc.Name, err)
		}
		n.SetIPv4Address(ip)
		t.nodes = append(t.nodes, n)
		t.byName[nc.Name] = n
	}

	helper := NewDeviceHelper(t.sim, &t.closers)
	for _, cc := range t.conf.Channels {
		c, err := physical.NewChannel(t.sim, cc.ChannelConfig)
		if err != nil {
			return fmt.Errorf("error creating channel %s: %w", cc.Name, err)
		}
		t.channels[cc.Name] = c
	}
	// devices are created node by node so MAC addresses follow node order
	for _, nc := range t.conf.Nodes {
		n := t.byName[nc.Name]
		for _, name := range nc.Channels {
			devices, err := helper.Install(t.channels[name], t.channelConfig(name).Device, n)
			if err != nil {
				return err
			}
			t.devices[deviceKey{node: nc.Name, channel: name}] = devices[0]
		}
	}
	for _, cc := range t.conf.Channels {
		c := t.channels[cc.Name]
		for _, e := range cc.BlackList {
			c.BlackList(
				t.devices[deviceKey{node: e.From, channel: cc.Name}],
				t.devices[deviceKey{node: e.To, channel: cc.Name}],
			)
		}
	}

	for _, nc := range t.conf.Nodes {
		if !nc.Pcap {
			continue
		}
		n := t.byName[nc.Name]
		for _, d := range n.Devices() {
			if _, err := helper.EnablePcap(t.conf.Pcap.Prefix, n, d); err != nil {
				return err
			}
		}
	}

	if err := t.trackDrops(); err != nil {
		return err
	}

	if t.conf.Raw.Enabled {
		return t.installRaw()
	}
	return t.installFlows()
}

func (t *Topology) channelConfig(name string) ChannelConfig {
	for _, cc := range t.conf.Channels {
		if cc.Name == name {
			return cc
		}
	}
	return ChannelConfig{}
}

func (t *Topology) trackDrops() error {
	var w io.Writer
	if t.conf.DropLog != "" {
		f, err := os.Create(t.conf.DropLog)
		if err != nil {
			return fmt.Errorf("error creating drop log file: %w", err)
		}
		t.closers.Add(t.conf.DropLog, f)
		w = f
	}
	drops, err := observability.NewDropCounter(t.sim, w)
	if err != nil {
		return err
	}
	t.drops = drops
	count := func(d *link.Device, _ *common.Packet) {
		drops.Count(d.Context())
	}
	for _, n := range t.nodes {
		drops.Track(n.ID())
		for _, d := range n.Devices() {
			d.Trace(link.MacTxDrop, count)
			d.Trace(link.PhyTxDrop, count)
		}
	}
	return nil
}

func (t *Topology) installFlows() error {
	// the receiver of a device starts with its earliest flow
	starts := make(map[*link.Device]time.Duration)
	var order []*link.Device
	for _, fc := range t.conf.Flows {
		d := t.devices[deviceKey{node: fc.To, channel: t.flowChannel(fc)}]
		if start, ok := starts[d]; !ok || *fc.Start < start {
			if !ok {
				order = append(order, d)
			}
			starts[d] = *fc.Start
		}
	}
	for _, d := range order {
		if err := t.addReceiver(d, starts[d]); err != nil {
			return err
		}
	}

	for i, fc := range t.conf.Flows {
		from, to := t.byName[fc.From], t.byName[fc.To]
		channel := t.flowChannel(fc)
		src := t.devices[deviceKey{node: fc.From, channel: channel}]
		dst := t.devices[deviceKey{node: fc.To, channel: channel}]
		sender, err := application.NewTrafficApp(t.sim, application.TrafficConfig{
			Role:            application.RoleSender,
			PacketSize:      fc.PacketSize,
			PacketCount:     *fc.PacketCount,
			Interval:        fc.Interval,
			SendFrom:        fc.SendFrom,
			DeviceIndex:     int(src.IfIndex()),
			DestDeviceIndex: int(dst.IfIndex()),
		}, from, to)
		if err != nil {
			return fmt.Errorf("error creating sender of flow %d: %w", i, err)
		}
		if err := from.AddApplication(sender, *fc.Start, t.conf.SimEnd); err != nil {
			return fmt.Errorf("error adding sender of flow %d: %w", i, err)
		}
		t.flows = append(t.flows, &flow{
			name:   fmt.Sprintf("%s->%s", fc.From, fc.To),
			from:   from,
			to:     to,
			sender: sender,
		})
	}
	return nil
}

func (t *Topology) flowChannel(fc FlowConfig) string {
	if fc.Channel != "" {
		return fc.Channel
	}
	return sharedChannel(t.conf.Nodes, fc.From, fc.To)
}

func (t *Topology) installRaw() error {
	b, err := application.ParseHexBytes(t.conf.Raw.Bytes)
	if err != nil {
		return fmt.Errorf("error parsing raw bytes: %w", err)
	}
	raw, err := application.ParseRawFrame(b)
	if err != nil {
		return err
	}
	var src *node.Node
	var srcDevice *link.Device
	for _, n := range t.nodes {
		if d := n.DeviceByAddress(raw.Src); d != nil {
			src, srcDevice = n, d
			break
		}
	}
	if src == nil {
		return fmt.Errorf("no device has the raw source address %s", raw.Src)
	}

	start := *t.conf.Raw.Start
	for _, n := range t.nodes {
		for _, d := range n.Devices() {
			if err := t.addReceiver(d, start); err != nil {
				return err
			}
		}
	}
	sender, err := application.NewTrafficApp(t.sim, application.TrafficConfig{
		Role:        application.RoleSender,
		Raw:         true,
		RawBytes:    t.conf.Raw.Bytes,
		SendFrom:    t.conf.Raw.SendFrom,
		DeviceIndex: int(srcDevice.IfIndex()),
	}, src, nil)
	if err != nil {
		return fmt.Errorf("error creating raw sender: %w", err)
	}
	if err := src.AddApplication(sender, start, t.conf.SimEnd); err != nil {
		return fmt.Errorf("error adding raw sender: %w", err)
	}
	t.flows = append(t.flows, &flow{
		name:   fmt.Sprintf("%s->%s", src.Name(), raw.Dst),
		from:   src,
		sender: sender,
	})
	t.l.
		WithField("node", src.Name()).
		WithField("src", raw.Src.String()).
		WithField("dst", raw.Dst.String()).
		Info("raw injection enabled")
	return nil
}

func (t *Topology) addReceiver(d *link.Device, start time.Duration) error {
	n := t.nodes[d.Context()]
	receiver, err := application.NewTrafficApp(t.sim, application.TrafficConfig{
		Role:        application.RoleReceiver,
		DeviceIndex: int(d.IfIndex()),
	}, n, nil)
	if err != nil {
		return fmt.Errorf("error creating receiver of %s: %w", d.Address(), err)
	}
	if err := n.AddApplication(receiver, start, t.conf.SimEnd); err != nil {
		return fmt.Errorf("error adding receiver of %s: %w", d.Address(), err)
	}
	t.receiver[d] = receiver
	return nil
}

// Run runs the simulation until the configured end, closes the
// topology and returns the report.
func (t *Topology) Run() (*Report, error) {
	if t.closed {
		return nil, errors.New("topology is closed")
	}
	t.sim.Stop(t.conf.SimEnd)
	t.l.
		WithField("nodes", len(t.nodes)).
		WithField("channels", len(t.channels)).
		WithField("sim_end", t.conf.SimEnd).
		Info("running simulation")
	if err := t.sim.Run(); err != nil {
		return nil, err
	}
	report := t.Report()
	if err := t.Close(); err != nil {
		return report, err
	}
	return report, nil
}

// Close disposes the nodes and closes capture and drop log files. Calling
// it more than once is a no-op.
func (t *Topology) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	for _, n := range t.nodes {
		n.Dispose()
	}
	return t.closers.Close()
}

// Node returns the node with the given name, or nil.
func (t *Topology) Node(name string) *node.Node {
	return t.byName[name]
}

func (t *Topology) Nodes() []*node.Node {
	return t.nodes
}

// Channel returns the channel with the given name, or nil.
func (t *Topology) Channel(name string) *physical.Channel {
	return t.channels[name]
}

// Device returns the device of a node on a channel, or nil.
func (t *Topology) Device(nodeName, channel string) *link.Device {
	return t.devices[deviceKey{node: nodeName, channel: channel}]
}

// Receiver returns the receiver application listening on d, or nil.
func (t *Topology) Receiver(d *link.Device) *application.TrafficApp {
	return t.receiver[d]
}

func (t *Topology) Drops() *observability.DropCounter {
	return t.drops
}

func (t *Topology) Config() Config {
	return *t.conf
}
