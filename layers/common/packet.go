package common

import (
	"fmt"

	"github.com/google/gopacket"
)

// Packet is an ordered byte payload with stack discipline for headers:
// AddHeader() prepends, RemoveHeader() strips from the front.
//
// A Packet has a single owner at a time. Whoever hands a packet to more
// than one consumer must hand out Copy()s.
type Packet struct {
	buf []byte
}

var headerSerializeOptions = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

// NewPacket creates a packet with size zeroed payload bytes.
func NewPacket(size int) *Packet {
	return &Packet{buf: make([]byte, size)}
}

// NewPacketFromBytes creates a packet holding a copy of b.
func NewPacketFromBytes(b []byte) *Packet {
	return &Packet{buf: append([]byte(nil), b...)}
}

// Size returns the number of bytes in the packet.
func (p *Packet) Size() int {
	return len(p.buf)
}

// Bytes returns the wire bytes of the packet. The slice must be treated
// as read-only.
func (p *Packet) Bytes() []byte {
	return p.buf
}

// Copy returns an independently owned copy of the packet.
func (p *Packet) Copy() *Packet {
	return NewPacketFromBytes(p.buf)
}

// AddHeader serializes the given layers in front of the current bytes,
// outermost layer first, fixing lengths and computing checksums. Layers
// with pseudo-header checksums (UDP, TCP) must have their network layer
// set and be added in the same call as it.
func (p *Packet) AddHeader(headers ...gopacket.SerializableLayer) error {
	buf := gopacket.NewSerializeBuffer()
	layers := make([]gopacket.SerializableLayer, 0, len(headers)+1)
	layers = append(layers, headers...)
	layers = append(layers, gopacket.Payload(p.buf))
	if err := gopacket.SerializeLayers(buf, headerSerializeOptions, layers...); err != nil {
		return fmt.Errorf("error serializing headers: %w", err)
	}
	p.buf = append([]byte(nil), buf.Bytes()...)
	return nil
}

// PeekHeader decodes the outermost header into h without removing it.
func (p *Packet) PeekHeader(h gopacket.DecodingLayer) error {
	if err := h.DecodeFromBytes(p.buf, gopacket.NilDecodeFeedback); err != nil {
		return fmt.Errorf("error decoding header: %w", err)
	}
	return nil
}

// RemoveHeader decodes the outermost header into h and strips it, leaving
// the header's payload as the packet bytes.
func (p *Packet) RemoveHeader(h gopacket.DecodingLayer) error {
	if err := p.PeekHeader(h); err != nil {
		return err
	}
	p.buf = append([]byte(nil), h.LayerPayload()...)
	return nil
}

// Fragment returns a new packet with length bytes starting at offset.
func (p *Packet) Fragment(offset, length int) (*Packet, error) {
	if offset < 0 || length < 0 || len(p.buf) < offset+length {
		return nil, fmt.Errorf("fragment [%d, %d) of %d bytes: %w", offset, offset+length, len(p.buf), ErrPacketTooShort)
	}
	return NewPacketFromBytes(p.buf[offset : offset+length]), nil
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet(%d bytes)", len(p.buf))
}
