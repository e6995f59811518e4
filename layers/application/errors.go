package application

import "errors"

var (
	// ErrRawFrameTooShort is returned when a raw-injection literal cannot
	// hold an Ethernet header.
	ErrRawFrameTooShort = errors.New("raw frame is shorter than an ethernet header")

	// ErrUnresolvedAddress is reported when an endpoint of a flow has no
	// IPv4 address.
	ErrUnresolvedAddress = errors.New("unresolved address")
)
