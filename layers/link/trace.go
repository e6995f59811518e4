package link

import (
	"github.com/matheuscscp/link-sim/layers/common"
)

type (
	// TraceKind identifies a trace source of a Device.
	TraceKind int

	// TraceSink observes the packets of a trace source. The packet must
	// be treated as read-only.
	TraceSink func(d *Device, packet *common.Packet)

	traceSinks map[TraceKind][]TraceSink
)

const (
	// Sniffer fires for every frame sent or received by the device, with
	// an Ethernet view of the frame.
	Sniffer TraceKind = iota
	// MacTxDrop fires when the transmit queue rejects a packet.
	MacTxDrop
	// PhyTxDrop fires when a transmission finishes with no channel to
	// hand the packet to.
	PhyTxDrop
	// PhyRxDrop fires when the receive error model corrupts a packet.
	PhyRxDrop
)

func (k TraceKind) String() string {
	switch k {
	case Sniffer:
		return "sniffer"
	case MacTxDrop:
		return "mac_tx_drop"
	case PhyTxDrop:
		return "phy_tx_drop"
	case PhyRxDrop:
		return "phy_rx_drop"
	default:
		return "unknown"
	}
}

func (t traceSinks) fire(kind TraceKind, d *Device, packet *common.Packet) {
	for _, sink := range t[kind] {
		sink(d, packet)
	}
}
