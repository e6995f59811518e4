package common

import "errors"

var (
	// ErrCannotSendEmpty is returned when trying to build or send an empty payload.
	ErrCannotSendEmpty = errors.New("cannot send empty payload")

	// ErrPacketTooShort is returned when a header or fragment does not fit
	// in the bytes of a packet.
	ErrPacketTooShort = errors.New("packet too short")
)
