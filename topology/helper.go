package topology

import (
	"fmt"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/node"
	"github.com/matheuscscp/link-sim/observability"
	pkgio "github.com/matheuscscp/link-sim/pkg/io"
	"github.com/matheuscscp/link-sim/simulator"
)

// DeviceHelper creates devices with sequentially allocated MAC addresses
// and attaches them to nodes and channels.
type DeviceHelper struct {
	sched     simulator.Scheduler
	addresses *link.AddressAllocator
	closers   *pkgio.Closers
}

// NewDeviceHelper creates a DeviceHelper. Capture files opened by
// EnablePcap are registered in closers.
func NewDeviceHelper(sched simulator.Scheduler, closers *pkgio.Closers) *DeviceHelper {
	return &DeviceHelper{
		sched:     sched,
		addresses: link.NewAddressAllocator(),
		closers:   closers,
	}
}

// Install creates one device per node from conf, adds it to the node and
// attaches it to c. Point-to-point devices are refused when the channel
// would end up with more than two devices.
func (h *DeviceHelper) Install(c *physical.Channel, conf link.DeviceConfig, nodes ...*node.Node) ([]*link.Device, error) {
	if conf.PointToPointMode && c.NDevices()+len(nodes) > 2 {
		return nil, fmt.Errorf("channel %s cannot hold %d point-to-point devices", c.Name(), c.NDevices()+len(nodes))
	}
	devices := make([]*link.Device, 0, len(nodes))
	for _, n := range nodes {
		conf.MACAddress = h.addresses.Allocate().String()
		d, err := link.NewDevice(h.sched, conf)
		if err != nil {
			return nil, fmt.Errorf("error creating device of node %s on channel %s: %w", n.Name(), c.Name(), err)
		}
		n.AddDevice(d)
		d.SetChannel(c)
		devices = append(devices, d)
	}
	return devices, nil
}

// EnablePcap captures the sniffer trace of d into <prefix>-<node>-<ifindex>.pcap.
func (h *DeviceHelper) EnablePcap(prefix string, n *node.Node, d *link.Device) (*observability.PcapSink, error) {
	filename := fmt.Sprintf("%s-%s-%d.pcap", prefix, n.Name(), d.IfIndex())
	sink, err := observability.CreatePcapFile(h.sched, filename)
	if err != nil {
		return nil, err
	}
	h.closers.Add(filename, sink)
	d.Trace(link.Sniffer, func(_ *link.Device, p *common.Packet) {
		sink.WritePacket(p)
	})
	return sink, nil
}
