package common

type (
	// OperStatus is the state of a link: a device is up while it is
	// attached to a channel.
	OperStatus int
)

const (
	OperStatusDown OperStatus = iota
	OperStatusUp
)

func (s OperStatus) String() string {
	if s == OperStatusUp {
		return "up"
	}
	return "down"
}
