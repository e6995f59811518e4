package link

import (
	"encoding/binary"
	"fmt"

	"github.com/matheuscscp/link-sim/layers/common"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
)

// FrameTagLength is the serialized size of a FrameTag.
const FrameTagLength = 2*AddressLength + 2

type (
	// FrameTag is the addressing of a frame waiting in a transmit queue.
	// It travels next to the packet, never inside its bytes.
	FrameTag struct {
		Src   gopacket.Endpoint
		Dst   gopacket.Endpoint
		Proto gplayers.EthernetType
	}

	// QueueItem is a packet waiting for transmission together with its tag.
	QueueItem struct {
		Packet *common.Packet
		Tag    FrameTag
	}
)

// MarshalBinary encodes the tag as src, dst and big-endian protocol.
func (t FrameTag) MarshalBinary() ([]byte, error) {
	src, dst := t.Src.Raw(), t.Dst.Raw()
	if len(src) != AddressLength || len(dst) != AddressLength {
		return nil, fmt.Errorf("frame tag addresses must be %d bytes long", AddressLength)
	}
	b := make([]byte, FrameTagLength)
	copy(b, src)
	copy(b[AddressLength:], dst)
	binary.BigEndian.PutUint16(b[2*AddressLength:], uint16(t.Proto))
	return b, nil
}

// UnmarshalBinary decodes a tag encoded by MarshalBinary.
func (t *FrameTag) UnmarshalBinary(b []byte) error {
	if len(b) != FrameTagLength {
		return fmt.Errorf("frame tag must be %d bytes long, got %d", FrameTagLength, len(b))
	}
	t.Src = AddressFromBytes(b)
	t.Dst = AddressFromBytes(b[AddressLength:])
	t.Proto = gplayers.EthernetType(binary.BigEndian.Uint16(b[2*AddressLength:]))
	return nil
}

func (t FrameTag) String() string {
	return fmt.Sprintf("src=%s, dst=%s, proto=0x%04x", t.Src, t.Dst, uint16(t.Proto))
}
