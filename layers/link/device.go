package link

import (
	"fmt"
	"net"

	"github.com/matheuscscp/link-sim/layers/common"
	"github.com/matheuscscp/link-sim/layers/physical"
	"github.com/matheuscscp/link-sim/observability"
	"github.com/matheuscscp/link-sim/simulator"

	"github.com/google/gopacket"
	gplayers "github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

type (
	// Device represents a simulated network interface card attached to a
	// shared physical.Channel.
	//
	// Outbound frames wait in a transmit queue and are handed to the
	// channel one at a time, each after its transmission time at the
	// configured data rate. The frame being transmitted stays at the head
	// of the queue until its transmission finishes.
	//
	// Inbound frames go through the receive error model and are then
	// classified against the device's MAC address. Frames for other hosts
	// only reach the promiscuous callback.
	Device struct {
		conf          *DeviceConfig
		sched         simulator.Scheduler
		l             logrus.FieldLogger
		address       gopacket.Endpoint
		mtu           int
		ifIndex       uint32
		context       uint32
		operStatus    common.OperStatus
		disposed      bool
		channel       *physical.Channel
		queue         TransmitQueue
		flowControl   FlowControl
		errorModel    ErrorModel
		rxCallback    ReceiveFunc
		promiscRx     PromiscReceiveFunc
		linkCallbacks []func()
		traces        traceSinks
		finishEvent   *simulator.EventHandle

		txPackets prometheus.Counter
		txBytes   prometheus.Counter
		rxPackets prometheus.Counter
		rxBytes   prometheus.Counter
		drops     *prometheus.CounterVec
		queueLen  prometheus.Gauge
	}

	// DeviceConfig contains the configs for Device.
	DeviceConfig struct {
		MACAddress string `yaml:"macAddress"`
		MTU        int    `yaml:"mtu"`

		// PointToPointMode makes the device refuse channels with more than
		// two devices and report no broadcast, multicast or ARP support.
		PointToPointMode bool `yaml:"pointToPointMode"`

		DataRate          DataRate          `yaml:"dataRate"`
		TxQueue           QueueConfig       `yaml:"txQueue"`
		ReceiveErrorModel *ErrorModelConfig `yaml:"receiveErrorModel"`

		MetricLabels observability.MetricLabels `yaml:"metricLabels"`
	}

	// ReceiveFunc is invoked for frames addressed to the device, to the
	// broadcast address or to a group address. The boolean result is
	// informational.
	ReceiveFunc func(d *Device, packet *common.Packet, protocol gplayers.EthernetType, from gopacket.Endpoint) bool

	// PromiscReceiveFunc is invoked for every frame that survives the
	// receive error model.
	PromiscReceiveFunc func(
		d *Device,
		packet *common.Packet,
		protocol gplayers.EthernetType,
		from, to gopacket.Endpoint,
		packetType PacketType,
	) bool

	// PacketType classifies a received frame by its destination address.
	PacketType int
)

const (
	PacketHost PacketType = iota
	PacketBroadcast
	PacketMulticast
	PacketOtherHost
)

const (
	promSubsystemDevice = "device"
	labelNameMACAddress = "mac_address"
	labelNameTrace      = "trace"
)

var (
	metricLabelsDevice = []string{
		observability.StackName,
		labelNameMACAddress,
	}
	txPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "tx_packets",
		Help:      "Total number of packets handed to the channel.",
	}, metricLabelsDevice)
	txBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "tx_bytes",
		Help:      "Total number of bytes handed to the channel.",
	}, metricLabelsDevice)
	rxPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "rx_packets",
		Help:      "Total number of packets received from the channel and not corrupted.",
	}, metricLabelsDevice)
	rxBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "rx_bytes",
		Help:      "Total number of bytes received from the channel and not corrupted.",
	}, metricLabelsDevice)
	drops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "drops",
		Help:      "Total number of dropped packets by trace source.",
	}, append(metricLabelsDevice, labelNameTrace))
	queueLen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Subsystem: promSubsystemDevice,
		Name:      "tx_queue_length",
		Help:      "Number of packets in the transmit queue, including the one being transmitted.",
	}, metricLabelsDevice)
)

// NewDevice creates a Device from config.
func NewDevice(sched simulator.Scheduler, conf DeviceConfig) (*Device, error) {
	address, err := ParseAddress(conf.MACAddress)
	if err != nil {
		return nil, err
	}
	if conf.MTU < 0 {
		return nil, fmt.Errorf("mtu cannot be negative: %d", conf.MTU)
	}
	mtu := conf.MTU
	if mtu == 0 {
		mtu = DefaultMTU
	}
	queue, err := NewDropTailQueue(conf.TxQueue)
	if err != nil {
		return nil, fmt.Errorf("error creating transmit queue: %w", err)
	}
	var errorModel ErrorModel
	if conf.ReceiveErrorModel != nil {
		errorModel, err = NewErrorModel(*conf.ReceiveErrorModel)
		if err != nil {
			return nil, fmt.Errorf("error creating receive error model: %w", err)
		}
	}
	metricLabels := prometheus.Labels{
		observability.StackName: conf.MetricLabels.Stack(),
		labelNameMACAddress:     address.String(),
	}
	return &Device{
		conf:       &conf,
		sched:      sched,
		l:          logrus.WithField("device_mac_address", address.String()),
		address:    address,
		mtu:        mtu,
		context:    simulator.NoContext,
		queue:      queue,
		errorModel: errorModel,
		traces:     make(traceSinks),
		txPackets:  txPackets.With(metricLabels),
		txBytes:    txBytes.With(metricLabels),
		rxPackets:  rxPackets.With(metricLabels),
		rxBytes:    rxBytes.With(metricLabels),
		drops:      drops.MustCurryWith(metricLabels),
		queueLen:   queueLen.With(metricLabels),
	}, nil
}

// SetChannel attaches the device to c and brings the link up. Panics if
// the device already has a channel.
func (d *Device) SetChannel(c *physical.Channel) {
	if d.channel != nil {
		panic(fmt.Sprintf("device %s is already attached to channel %s", d.address, d.channel.Name()))
	}
	if d.disposed {
		panic(fmt.Sprintf("device %s was disposed", d.address))
	}
	c.Add(d)
	d.channel = c
	d.operStatus = common.OperStatusUp
	for _, cb := range d.linkCallbacks {
		cb()
	}
	d.l.WithField("channel", c.Name()).Debug("device attached to channel")
}

// Channel returns the attached channel, or nil.
func (d *Device) Channel() *physical.Channel {
	return d.channel
}

// Send transmits packet to dst with the device's own address as source.
func (d *Device) Send(packet *common.Packet, dst gopacket.Endpoint, protocol gplayers.EthernetType) bool {
	return d.SendFrom(packet, d.address, dst, protocol)
}

// SendFrom queues packet for transmission. It returns false without side
// effects if the packet is larger than the MTU, and false after firing
// MacTxDrop if the transmit queue is full.
func (d *Device) SendFrom(
	packet *common.Packet,
	src, dst gopacket.Endpoint,
	protocol gplayers.EthernetType,
) bool {
	if d.disposed {
		return false
	}
	if packet.Size() > d.mtu {
		d.l.
			WithField("size", packet.Size()).
			WithField("mtu", d.mtu).
			Debug("packet is larger than device mtu")
		return false
	}

	item := QueueItem{
		Packet: packet,
		Tag: FrameTag{
			Src:   src,
			Dst:   dst,
			Proto: protocol,
		},
	}
	d.sniff(packet, src, dst, protocol)
	if !d.queue.Enqueue(item) {
		d.drop(MacTxDrop, packet)
		return false
	}
	d.queueLen.Set(float64(d.queue.Len()))

	// the queue was idle before this packet
	if d.queue.Len() == 1 && !d.finishEvent.Pending() {
		d.startTransmission()
	}
	return true
}

func (d *Device) startTransmission() {
	if d.finishEvent.Pending() {
		panic(fmt.Sprintf("device %s tried to transmit a packet while another transmission was in progress", d.address))
	}
	item, ok := d.queue.Peek()
	if !ok {
		return
	}
	txTime := d.conf.DataRate.BytesTxTime(item.Packet.Size())
	d.finishEvent = d.sched.Schedule(txTime, d.finishTransmission)
}

func (d *Device) finishTransmission() {
	item, ok := d.queue.Dequeue()
	if !ok {
		return
	}
	d.queueLen.Set(float64(d.queue.Len()))
	tag := item.Tag
	if d.channel == nil {
		d.drop(PhyTxDrop, item.Packet)
	} else {
		d.txPackets.Inc()
		d.txBytes.Add(float64(item.Packet.Size()))
		d.l.
			WithField("size", item.Packet.Size()).
			WithField("tag", tag.String()).
			Debug("transmission finished")
		d.channel.Send(item.Packet, tag.Proto, tag.Dst, tag.Src, d)
	}
	// a flow control or trace callback may have started the next one
	if !d.finishEvent.Pending() {
		d.startTransmission()
	}
}

// Receive is invoked by the channel for every frame delivered to the
// device.
func (d *Device) Receive(packet *common.Packet, protocol gplayers.EthernetType, to, from gopacket.Endpoint) {
	if d.disposed {
		return
	}
	d.sniff(packet, from, to, protocol)

	if d.errorModel != nil && d.errorModel.IsCorrupt(packet) {
		d.drop(PhyRxDrop, packet)
		return
	}
	d.rxPackets.Inc()
	d.rxBytes.Add(float64(packet.Size()))

	packetType := d.classify(to)
	if packetType != PacketOtherHost && d.rxCallback != nil {
		d.rxCallback(d, packet, protocol, from)
	}
	if d.promiscRx != nil {
		d.promiscRx(d, packet, protocol, from, to, packetType)
	}
}

func (d *Device) classify(to gopacket.Endpoint) PacketType {
	switch {
	case to == d.address:
		return PacketHost
	case IsBroadcast(to):
		return PacketBroadcast
	case IsGroup(to):
		return PacketMulticast
	default:
		return PacketOtherHost
	}
}

// sniff fires Sniffer with an Ethernet view of the frame. The view is a
// separate packet, the queued packet bytes are never touched.
func (d *Device) sniff(packet *common.Packet, src, dst gopacket.Endpoint, protocol gplayers.EthernetType) {
	if len(d.traces[Sniffer]) == 0 {
		return
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{}
	frame := &gplayers.Ethernet{
		SrcMAC:       src.Raw(),
		DstMAC:       dst.Raw(),
		EthernetType: protocol,
	}
	if err := gopacket.SerializeLayers(buf, opts, frame, gopacket.Payload(packet.Bytes())); err != nil {
		d.l.
			WithError(err).
			Error("error serializing sniffer view of frame")
		return
	}
	// drop the zero padding gopacket appends to short frames
	view := buf.Bytes()[:HeaderLength+packet.Size()]
	d.traces.fire(Sniffer, d, common.NewPacketFromBytes(view))
}

func (d *Device) drop(kind TraceKind, packet *common.Packet) {
	d.drops.WithLabelValues(kind.String()).Inc()
	d.l.
		WithField("trace", kind.String()).
		WithField("size", packet.Size()).
		Debug("packet dropped")
	d.traces.fire(kind, d, packet)
}

// Trace subscribes sink to a trace source.
func (d *Device) Trace(kind TraceKind, sink TraceSink) {
	d.traces[kind] = append(d.traces[kind], sink)
}

// SetReceiveCallback registers the callback for frames addressed to the
// device, replacing any previous one.
func (d *Device) SetReceiveCallback(cb ReceiveFunc) {
	d.rxCallback = cb
}

// SetPromiscReceiveCallback registers the callback for every frame that
// is not corrupted, replacing any previous one.
func (d *Device) SetPromiscReceiveCallback(cb PromiscReceiveFunc) {
	d.promiscRx = cb
}

// AddLinkChangeCallback registers cb to be invoked when the link goes up.
func (d *Device) AddLinkChangeCallback(cb func()) {
	d.linkCallbacks = append(d.linkCallbacks, cb)
}

func (d *Device) SetReceiveErrorModel(em ErrorModel) {
	d.errorModel = em
}

func (d *Device) ReceiveErrorModel() ErrorModel {
	return d.errorModel
}

// SetFlowControl forwards queue notifications to fc.
func (d *Device) SetFlowControl(fc FlowControl) {
	d.flowControl = fc
	d.queue.SetFlowControl(fc)
}

func (d *Device) Queue() TransmitQueue {
	return d.queue
}

// SetQueue replaces the transmit queue, carrying over the flow control.
// Must be called before any Send().
func (d *Device) SetQueue(q TransmitQueue) {
	if d.flowControl != nil {
		q.SetFlowControl(d.flowControl)
	}
	d.queue = q
}

// Dispose detaches the device from its channel and callbacks, drops the
// queued packets and cancels the transmission in progress. Calling it
// more than once is a no-op.
func (d *Device) Dispose() {
	if d.disposed {
		return
	}
	d.disposed = true
	d.sched.Cancel(d.finishEvent)
	d.finishEvent = nil
	d.queue.Dispose()
	d.queueLen.Set(0)
	d.channel = nil
	d.errorModel = nil
	d.rxCallback = nil
	d.promiscRx = nil
	d.linkCallbacks = nil
	d.operStatus = common.OperStatusDown
	d.l.Debug("device disposed")
}

func (d *Device) Disposed() bool {
	return d.disposed
}

func (d *Device) Address() gopacket.Endpoint {
	return d.address
}

func (d *Device) MTU() int {
	return d.mtu
}

// SetMTU changes the MTU. Zero is rejected.
func (d *Device) SetMTU(mtu int) error {
	if mtu <= 0 {
		return fmt.Errorf("invalid mtu %d", mtu)
	}
	d.mtu = mtu
	return nil
}

func (d *Device) DataRate() DataRate {
	return d.conf.DataRate
}

func (d *Device) IsLinkUp() bool {
	return d.operStatus == common.OperStatusUp
}

func (d *Device) OperStatus() common.OperStatus {
	return d.operStatus
}

// IfIndex returns the index of the device in its node.
func (d *Device) IfIndex() uint32 {
	return d.ifIndex
}

// SetNode binds the device to its node: deliveries from the channel run
// in the node's execution context.
func (d *Device) SetNode(context, ifIndex uint32) {
	d.context = context
	d.ifIndex = ifIndex
	d.l = d.l.WithField("node_context", context).WithField("if_index", ifIndex)
}

// Context implements physical.Attachment.
func (d *Device) Context() uint32 {
	return d.context
}

// PointToPoint implements physical.Attachment.
func (d *Device) PointToPoint() bool {
	return d.conf.PointToPointMode
}

func (d *Device) IsBroadcast() bool {
	return !d.conf.PointToPointMode
}

func (d *Device) Broadcast() gopacket.Endpoint {
	return BroadcastMACEndpoint()
}

func (d *Device) IsMulticast() bool {
	return !d.conf.PointToPointMode
}

// Multicast returns the MAC address of an IP multicast group.
func (d *Device) Multicast(group net.IP) gopacket.Endpoint {
	return MulticastAddress(group)
}

func (d *Device) NeedsARP() bool {
	return !d.conf.PointToPointMode
}

func (d *Device) IsBridge() bool {
	return false
}

func (d *Device) SupportsSendFrom() bool {
	return true
}

func (p PacketType) String() string {
	switch p {
	case PacketHost:
		return "host"
	case PacketBroadcast:
		return "broadcast"
	case PacketMulticast:
		return "multicast"
	case PacketOtherHost:
		return "other_host"
	default:
		return "unknown"
	}
}
