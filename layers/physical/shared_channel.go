package physical

import (
	"fmt"
	"time"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/observability"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

type (
	// Attachment is the side of a network device facing a Channel.
	Attachment interface {
		// Receive is invoked once per delivered frame, in the execution
		// context returned by Context(), with a copy owned by the callee.
		Receive(packet *common.Packet, protocol gplayers.EthernetType, to, from gopacket.Endpoint)
		// Context is the execution context deliveries are scheduled in,
		// usually the id of the node owning the device.
		Context() uint32
		// PointToPoint tells whether the device only tolerates one peer.
		PointToPoint() bool
	}

	// Channel represents a shared broadcast medium: a frame sent by one
	// attachment reaches every other attachment after a fixed propagation
	// delay. There is no collision detection and no loss. Loss is modeled
	// by the receive error models of the devices.
	//
	// Delivery from one attachment to another can be suppressed with
	// BlackList(). The block is unidirectional and evaluated at the
	// receiving attachment.
	Channel struct {
		conf       *ChannelConfig
		sched      simulator.Scheduler
		l          logrus.FieldLogger
		devices    []Attachment
		blackList  map[Attachment][]Attachment // receiver -> blocked senders
		deliveries prometheus.Counter
		suppressed prometheus.Counter
	}

	// ChannelConfig contains the configs for Channel.
	ChannelConfig struct {
		Name         string                     `yaml:"name"`
		Delay        time.Duration              `yaml:"delay"`
		MetricLabels observability.MetricLabels `yaml:"metricLabels"`
	}
)

const (
	promSubsystemChannel = "shared_channel"
	labelNameChannel     = "channel"
)

var (
	metricLabelsChannel = []string{
		observability.StackName,
		labelNameChannel,
	}
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemChannel,
		Name:      "deliveries",
		Help:      "Total number of frame deliveries scheduled by the channel.",
	}, metricLabelsChannel)
	suppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemChannel,
		Name:      "blacklisted_deliveries",
		Help:      "Total number of frame deliveries suppressed by the block-list.",
	}, metricLabelsChannel)
)

// NewChannel creates a Channel from config.
func NewChannel(sched simulator.Scheduler, conf ChannelConfig) (*Channel, error) {
	if conf.Delay < 0 {
		return nil, fmt.Errorf("channel delay cannot be negative: %v", conf.Delay)
	}
	if conf.Name == "" {
		conf.Name = "default"
	}
	metricLabels := prometheus.Labels{
		observability.StackName: conf.MetricLabels.Stack(),
		labelNameChannel:        conf.Name,
	}
	return &Channel{
		conf:       &conf,
		sched:      sched,
		l:          logrus.WithField("channel", conf.Name),
		blackList:  make(map[Attachment][]Attachment),
		deliveries: deliveries.With(metricLabels),
		suppressed: suppressed.With(metricLabels),
	}, nil
}

// Add attaches a device. Adding the same device twice makes it receive
// every frame twice.
//
// Panics if the channel would end up with more than two devices while
// one of them is in point-to-point mode.
func (c *Channel) Add(device Attachment) {
	c.devices = append(c.devices, device)
	if len(c.devices) <= 2 {
		return
	}
	for _, d := range c.devices {
		if d.PointToPoint() {
			panic(fmt.Sprintf("channel %s: device in point-to-point mode attached to a channel with %d devices",
				c.conf.Name, len(c.devices)))
		}
	}
}

// Send schedules, for every attached device other than sender that did
// not block it, the delivery of an independent copy of packet after the
// propagation delay.
func (c *Channel) Send(
	packet *common.Packet,
	protocol gplayers.EthernetType,
	to, from gopacket.Endpoint,
	sender Attachment,
) {
	for _, dev := range c.devices {
		if dev == sender {
			continue
		}
		if slices.Contains(c.blackList[dev], sender) {
			c.suppressed.Inc()
			continue
		}
		dev := dev
		p := packet.Copy()
		c.sched.ScheduleWithContext(dev.Context(), c.conf.Delay, func() {
			dev.Receive(p, protocol, to, from)
		})
		c.deliveries.Inc()
	}
	c.l.
		WithField("size", packet.Size()).
		WithField("to", to.String()).
		WithField("from", from.String()).
		Debug("frame handed to channel")
}

// BlackList blocks frames sent by from at the device to.
func (c *Channel) BlackList(from, to Attachment) {
	if !slices.Contains(c.blackList[to], from) {
		c.blackList[to] = append(c.blackList[to], from)
	}
}

// UnBlackList restores delivery from from to to.
func (c *Channel) UnBlackList(from, to Attachment) {
	blocked := c.blackList[to]
	if i := slices.Index(blocked, from); i >= 0 {
		c.blackList[to] = slices.Delete(blocked, i, i+1)
	}
}

// IsBlackListed tells whether frames from from are blocked at to.
func (c *Channel) IsBlackListed(from, to Attachment) bool {
	return slices.Contains(c.blackList[to], from)
}

// NDevices returns the number of attached devices.
func (c *Channel) NDevices() int {
	return len(c.devices)
}

// Device returns the i-th attached device in attachment order.
func (c *Channel) Device(i int) Attachment {
	return c.devices[i]
}

func (c *Channel) Delay() time.Duration {
	return c.conf.Delay
}

func (c *Channel) Name() string {
	return c.conf.Name
}
