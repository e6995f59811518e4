package node

import (
	"fmt"
	"net"
	"time"

	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	"github.com/sirupsen/logrus"
)

type (
	// Application is something a node starts and stops at given times.
	Application interface {
		Start()
		Stop()
	}

	// Node groups the devices and applications of one simulated host. The
	// node id is the execution context of everything running on it.
	Node struct {
		sched    simulator.Scheduler
		id       uint32
		name     string
		l        logrus.FieldLogger
		devices  []*link.Device
		apps     []Application
		ipv4     net.IP
		disposed bool
	}
)

// New creates a Node.
func New(sched simulator.Scheduler, id uint32, name string) *Node {
	return &Node{
		sched: sched,
		id:    id,
		name:  name,
		l: logrus.
			WithField("node", id).
			WithField("node_name", name),
	}
}

func (n *Node) ID() uint32 {
	return n.id
}

func (n *Node) Name() string {
	return n.name
}

// AddDevice binds d to the node and returns its interface index.
func (n *Node) AddDevice(d *link.Device) uint32 {
	ifIndex := uint32(len(n.devices))
	d.SetNode(n.id, ifIndex)
	n.devices = append(n.devices, d)
	return ifIndex
}

// Device returns the device at interface index i, or nil.
func (n *Node) Device(i int) *link.Device {
	if i < 0 || len(n.devices) <= i {
		return nil
	}
	return n.devices[i]
}

func (n *Node) Devices() []*link.Device {
	return n.devices
}

func (n *Node) NDevices() int {
	return len(n.devices)
}

// DeviceByAddress returns the device with the given MAC address, or nil.
func (n *Node) DeviceByAddress(addr gopacket.Endpoint) *link.Device {
	for _, d := range n.devices {
		if d.Address() == addr {
			return d
		}
	}
	return nil
}

// SetIPv4Address sets the address of the node's primary interface.
func (n *Node) SetIPv4Address(ip net.IP) {
	n.ipv4 = ip.To4()
	n.l = n.l.WithField("ipv4_address", n.ipv4.String())
}

// IPv4Address returns the address of the node's primary interface, or nil.
func (n *Node) IPv4Address() net.IP {
	return n.ipv4
}

// AddApplication schedules app to start at the virtual time start and to
// stop at stop. A zero stop means the application is never stopped.
func (n *Node) AddApplication(app Application, start, stop time.Duration) error {
	now := n.sched.Now()
	if start < now {
		return fmt.Errorf("application start time %v is in the past", start)
	}
	if stop != 0 && stop < start {
		return fmt.Errorf("application stop time %v is before its start time %v", stop, start)
	}
	n.apps = append(n.apps, app)
	n.sched.ScheduleWithContext(n.id, start-now, app.Start)
	if stop != 0 {
		n.sched.ScheduleWithContext(n.id, stop-now, app.Stop)
	}
	n.l.
		WithField("start", start).
		WithField("stop", stop).
		Debug("application added")
	return nil
}

func (n *Node) Applications() []Application {
	return n.apps
}

// Dispose stops the applications and disposes the devices. Calling it
// more than once is a no-op.
func (n *Node) Dispose() {
	if n.disposed {
		return
	}
	n.disposed = true
	for _, app := range n.apps {
		app.Stop()
	}
	for _, d := range n.devices {
		d.Dispose()
	}
}
