package observability

import (
	"fmt"
	"io"

	"github.com/matheuscscp/link-sim/simulator"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// DropLogHeader is the first line of a drop log.
const DropLogHeader = "# Time(s)\tNodeID\tCumulativeDrops"

type (
	// DropCounter accumulates packet drops per node and appends one line
	// per drop to a log: virtual time in seconds, node id and the
	// cumulative count of the node, tab separated.
	DropCounter struct {
		sched  simulator.Scheduler
		w      io.Writer
		l      logrus.FieldLogger
		counts map[uint32]uint64
	}
)

// NewDropCounter creates a DropCounter. A nil w keeps the counts without
// writing a log.
func NewDropCounter(sched simulator.Scheduler, w io.Writer) (*DropCounter, error) {
	if w != nil {
		if _, err := fmt.Fprintln(w, DropLogHeader); err != nil {
			return nil, fmt.Errorf("error writing drop log header: %w", err)
		}
	}
	return &DropCounter{
		sched:  sched,
		w:      w,
		l:      logrus.WithField("component", "drop_counter"),
		counts: make(map[uint32]uint64),
	}, nil
}

// Track registers a node with a zero count so it shows up in Counts().
func (d *DropCounter) Track(node uint32) {
	if _, ok := d.counts[node]; !ok {
		d.counts[node] = 0
	}
}

// Count records one drop at node.
func (d *DropCounter) Count(node uint32) {
	d.counts[node]++
	total := d.counts[node]
	l := d.l.
		WithField("node", node).
		WithField("total_drops", total)
	l.Info("node dropped packet")
	if d.w == nil {
		return
	}
	if _, err := fmt.Fprintf(d.w, "%g\t%d\t%d\n", d.sched.Now().Seconds(), node, total); err != nil {
		l.
			WithError(err).
			Error("error writing drop log")
	}
}

// Drops returns the cumulative drops of node.
func (d *DropCounter) Drops(node uint32) uint64 {
	return d.counts[node]
}

// Nodes returns the tracked nodes in ascending order.
func (d *DropCounter) Nodes() []uint32 {
	nodes := make([]uint32, 0, len(d.counts))
	for n := range d.counts {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}
