package link

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
)

type (
	// AddressAllocator hands out MAC addresses sequentially, starting at
	// 00:00:00:00:00:01.
	AddressAllocator struct {
		next uint64
	}
)

// ParseAddress parses a MAC address string into an endpoint.
func ParseAddress(s string) (gopacket.Endpoint, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return gopacket.Endpoint{}, fmt.Errorf("error parsing mac address: %w", err)
	}
	if len(mac) != AddressLength {
		return gopacket.Endpoint{}, fmt.Errorf("mac address %s is not 48-bit", s)
	}
	return gplayers.NewMACEndpoint(mac), nil
}

// AddressFromBytes builds an endpoint out of the first 6 bytes of b.
func AddressFromBytes(b []byte) gopacket.Endpoint {
	mac := make(net.HardwareAddr, AddressLength)
	copy(mac, b)
	return gplayers.NewMACEndpoint(mac)
}

// IsBroadcast tells whether addr is the broadcast MAC address.
func IsBroadcast(addr gopacket.Endpoint) bool {
	return addr == BroadcastMACEndpoint()
}

// IsGroup tells whether addr has the group bit set (multicast and
// broadcast addresses).
func IsGroup(addr gopacket.Endpoint) bool {
	raw := addr.Raw()
	return len(raw) > 0 && raw[0]&0x01 != 0
}

// MulticastAddress maps an IP multicast group to its MAC address: for IPv4
// 01:00:5e followed by the low 23 bits of the group, for IPv6 33:33
// followed by the low 32 bits.
func MulticastAddress(group net.IP) gopacket.Endpoint {
	if ip4 := group.To4(); ip4 != nil {
		return gplayers.NewMACEndpoint(net.HardwareAddr{
			0x01, 0x00, 0x5e,
			ip4[1] & 0x7f, ip4[2], ip4[3],
		})
	}
	ip6 := group.To16()
	mac := net.HardwareAddr{0x33, 0x33, 0, 0, 0, 0}
	if ip6 != nil {
		copy(mac[2:], ip6[12:])
	}
	return gplayers.NewMACEndpoint(mac)
}

// NewAddressAllocator creates an AddressAllocator.
func NewAddressAllocator() *AddressAllocator {
	return &AddressAllocator{}
}

// Allocate returns the next address.
func (a *AddressAllocator) Allocate() gopacket.Endpoint {
	a.next++
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], a.next)
	return AddressFromBytes(b[2:])
}
