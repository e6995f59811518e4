package link

import (
	"net"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
)

const (
	// HeaderLength is the Ethernet header length.
	HeaderLength = 14

	// AddressLength is the length of a MAC address.
	AddressLength = 6

	// DefaultMTU (maximum transmission unit) is the maximum number of bytes
	// a device accepts on the payload of a frame unless configured otherwise.
	DefaultMTU = 65535

	// DefaultQueueMaxPackets is the capacity of a transmit queue when
	// neither bound is configured.
	DefaultQueueMaxPackets = 100

	promNamespace = "link_layer"
)

// BroadcastMACAddress is the MAC address used for broadcast in a local network.
func BroadcastMACAddress() net.HardwareAddr {
	return net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

// BroadcastMACEndpoint is the MAC address used for broadcast in a local network.
func BroadcastMACEndpoint() gopacket.Endpoint {
	return gplayers.NewMACEndpoint(BroadcastMACAddress())
}
