package pkgnet

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPv4Allocator hands out the host addresses of an IPv4 network in
// ascending order, skipping the network and broadcast addresses.
//
// Example: 10.0.0.0/24 => 10.0.0.1, 10.0.0.2, ..., 10.0.0.254
type IPv4Allocator struct {
	network *net.IPNet
	next    uint32
	last    uint32
}

// NewIPv4Allocator creates an IPv4Allocator for a network CIDR string.
func NewIPv4Allocator(cidr string) (*IPv4Allocator, error) {
	ipnet, err := ParseNetworkCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("error parsing network cidr: %w", err)
	}
	ip := ipnet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("network %s is not ipv4", cidr)
	}
	broadcast := BroadcastIPAddress(&net.IPNet{IP: ip, Mask: ipnet.Mask})
	return &IPv4Allocator{
		network: ipnet,
		next:    binary.BigEndian.Uint32(ip) + 1,
		last:    binary.BigEndian.Uint32(broadcast) - 1,
	}, nil
}

// Allocate returns the next free host address.
func (a *IPv4Allocator) Allocate() (net.IP, error) {
	if a.next > a.last {
		return nil, fmt.Errorf("network %s has no free addresses left", a.network)
	}
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, a.next)
	a.next++
	return ip, nil
}

func (a *IPv4Allocator) Network() *net.IPNet {
	return a.network
}
