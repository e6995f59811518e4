package test

import (
	"net"
	"testing"
	"time"

	"github.com/matheuscscp/link-sim/layers/link"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/node"
	"github.com/matheuscscp/link-sim/simulator"

	petname "github.com/dustinkirkland/golang-petname"
)

// NewNodes creates n nodes with random names and ids 0..n-1. Node i gets
// the IPv4 address 10.0.0.(i+1).
func NewNodes(sched simulator.Scheduler, n int) []*node.Node {
	nodes := make([]*node.Node, 0, n)
	for i := 0; i < n; i++ {
		nd := node.New(sched, uint32(i), petname.Generate(2, "-"))
		nd.SetIPv4Address(net.IPv4(10, 0, 0, byte(i+1)))
		nodes = append(nodes, nd)
	}
	return nodes
}

// Connect gives every node a new device with conf and attaches all of them
// to a new channel. MAC addresses come from alloc.
func Connect(
	t *testing.T,
	sched simulator.Scheduler,
	alloc *link.AddressAllocator,
	delay time.Duration,
	conf link.DeviceConfig,
	nodes ...*node.Node,
) *physical.Channel {
	c := NewChannel(t, sched, delay)
	for _, nd := range nodes {
		d := NewDevice(t, sched, alloc.Allocate().String(), conf)
		nd.AddDevice(d)
		d.SetChannel(c)
	}
	return c
}
