package application

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/link"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
)

// RawFrame is a raw-injection literal split into its Ethernet header
// fields and payload.
type RawFrame struct {
	Src     gopacket.Endpoint
	Dst     gopacket.Endpoint
	Proto   gplayers.EthernetType
	Payload []byte
}

// ParseRawFrame splits b: bytes 0-5 are the source MAC address, 6-11 the
// destination MAC address, 12-13 the big-endian protocol number and the
// rest is the payload.
func ParseRawFrame(b []byte) (*RawFrame, error) {
	if len(b) < link.HeaderLength {
		return nil, fmt.Errorf("raw frame has %d bytes: %w", len(b), ErrRawFrameTooShort)
	}
	return &RawFrame{
		Src:     link.AddressFromBytes(b[0:link.AddressLength]),
		Dst:     link.AddressFromBytes(b[link.AddressLength : 2*link.AddressLength]),
		Proto:   gplayers.EthernetType(binary.BigEndian.Uint16(b[2*link.AddressLength:link.HeaderLength])),
		Payload: append([]byte(nil), b[link.HeaderLength:]...),
	}, nil
}

// ParseHexBytes parses whitespace separated hex bytes, e.g. "00 1f 90".
func ParseHexBytes(s string) ([]byte, error) {
	fields := strings.Fields(s)
	b := make([]byte, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("error parsing byte %d ('%s'): %w", i, f, err)
		}
		b = append(b, byte(v))
	}
	return b, nil
}

// Packet returns a new packet holding the payload.
func (r *RawFrame) Packet() *common.Packet {
	return common.NewPacketFromBytes(r.Payload)
}
