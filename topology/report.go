package topology

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/matheuscscp/link-sim/layers/application"
)

type (
	// Report summarizes a finished simulation.
	Report struct {
		SimEnd    time.Duration
		Flows     []FlowReport
		Receivers []ReceiverReport
		Drops     []NodeDrops
	}

	FlowReport struct {
		Name string
		Node string
		Raw  bool
		Sent int
	}

	ReceiverReport struct {
		Node    string
		IfIndex uint32
		Address string
		Stats   application.Stats
	}

	NodeDrops struct {
		Node  string
		ID    uint32
		Drops uint64
	}
)

// Report returns the current counters of the applications and the drop
// counter.
func (t *Topology) Report() *Report {
	r := &Report{SimEnd: t.conf.SimEnd}
	for _, f := range t.flows {
		r.Flows = append(r.Flows, FlowReport{
			Name: f.name,
			Node: f.from.Name(),
			Raw:  f.to == nil,
			Sent: f.sender.Sent(),
		})
	}
	for _, n := range t.nodes {
		for _, d := range n.Devices() {
			receiver, ok := t.receiver[d]
			if !ok {
				continue
			}
			r.Receivers = append(r.Receivers, ReceiverReport{
				Node:    n.Name(),
				IfIndex: d.IfIndex(),
				Address: d.Address().String(),
				Stats:   receiver.Stats(),
			})
		}
	}
	for _, id := range t.drops.Nodes() {
		r.Drops = append(r.Drops, NodeDrops{
			Node:  t.nodes[id].Name(),
			ID:    id,
			Drops: t.drops.Drops(id),
		})
	}
	return r
}

// Received returns the number of frames counted by the receiver of a node
// device, or zero for devices without a receiver.
func (r *Report) Received(node string, ifIndex uint32) int {
	for _, rr := range r.Receivers {
		if rr.Node == node && rr.IfIndex == ifIndex {
			return rr.Stats.Received
		}
	}
	return 0
}

// Write prints the report as aligned tables.
func (r *Report) Write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "simulation end\t%v\n\n", r.SimEnd)

	fmt.Fprintln(tw, "FLOW\tNODE\tRAW\tSENT")
	for _, f := range r.Flows {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%d\n", f.Name, f.Node, f.Raw, f.Sent)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "RECEIVER\tIFINDEX\tADDRESS\tRECEIVED\tMEAN SIZE\tMEAN INTER-ARRIVAL")
	for _, rr := range r.Receivers {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%.1f\t%v\n",
			rr.Node, rr.IfIndex, rr.Address, rr.Stats.Received, rr.Stats.MeanSize, rr.Stats.MeanInterArrival)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "NODE\tID\tDROPS")
	for _, d := range r.Drops {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", d.Node, d.ID, d.Drops)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("error writing report: %w", err)
	}
	return nil
}
