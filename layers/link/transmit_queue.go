package link

import (
	"fmt"
)

type (
	// TransmitQueue is the bounded FIFO of frames waiting for a device's
	// transmitter. A full queue rejects new items and never evicts queued
	// ones.
	TransmitQueue interface {
		Enqueue(item QueueItem) bool
		Dequeue() (QueueItem, bool)
		Peek() (QueueItem, bool)
		Len() int
		Bytes() int
		Stats() QueueStats
		SetFlowControl(fc FlowControl)
		Dispose()
	}

	// FlowControl is notified when a queue becomes full (Stop) and when it
	// can accept items again (Wake).
	FlowControl interface {
		Stop()
		Wake()
	}

	// QueueConfig bounds a transmit queue by number of packets and/or by
	// total bytes. A zero bound is not enforced. When both are zero the
	// queue holds DefaultQueueMaxPackets packets.
	QueueConfig struct {
		MaxPackets int `yaml:"maxPackets"`
		MaxBytes   int `yaml:"maxBytes"`
	}

	// QueueStats counts what happened to the items offered to a queue.
	QueueStats struct {
		Enqueued uint64
		Dequeued uint64
		Dropped  uint64
	}

	// DropTailQueue is the TransmitQueue used by devices.
	DropTailQueue struct {
		conf    QueueConfig
		items   []QueueItem
		bytes   int
		stats   QueueStats
		fc      FlowControl
		stopped bool
	}
)

// NewDropTailQueue creates a DropTailQueue from config.
func NewDropTailQueue(conf QueueConfig) (*DropTailQueue, error) {
	if conf.MaxPackets < 0 {
		return nil, fmt.Errorf("queue max packets cannot be negative: %d", conf.MaxPackets)
	}
	if conf.MaxBytes < 0 {
		return nil, fmt.Errorf("queue max bytes cannot be negative: %d", conf.MaxBytes)
	}
	if conf.MaxPackets == 0 && conf.MaxBytes == 0 {
		conf.MaxPackets = DefaultQueueMaxPackets
	}
	return &DropTailQueue{conf: conf}, nil
}

func (q *DropTailQueue) Enqueue(item QueueItem) bool {
	if !q.fits(item.Packet.Size()) {
		q.stats.Dropped++
		q.stop()
		return false
	}
	q.items = append(q.items, item)
	q.bytes += item.Packet.Size()
	q.stats.Enqueued++
	if q.full() {
		q.stop()
	}
	return true
}

func (q *DropTailQueue) Dequeue() (QueueItem, bool) {
	if len(q.items) == 0 {
		return QueueItem{}, false
	}
	item := q.items[0]
	q.items[0] = QueueItem{}
	q.items = q.items[1:]
	q.bytes -= item.Packet.Size()
	q.stats.Dequeued++
	if q.stopped && !q.full() {
		q.stopped = false
		if q.fc != nil {
			q.fc.Wake()
		}
	}
	return item, true
}

func (q *DropTailQueue) Peek() (QueueItem, bool) {
	if len(q.items) == 0 {
		return QueueItem{}, false
	}
	return q.items[0], true
}

func (q *DropTailQueue) Len() int {
	return len(q.items)
}

func (q *DropTailQueue) Bytes() int {
	return q.bytes
}

func (q *DropTailQueue) Stats() QueueStats {
	return q.stats
}

func (q *DropTailQueue) SetFlowControl(fc FlowControl) {
	q.fc = fc
}

// Dispose drops every queued item. Dropped items are not counted in the
// stats.
func (q *DropTailQueue) Dispose() {
	q.items = nil
	q.bytes = 0
	q.fc = nil
	q.stopped = false
}

func (q *DropTailQueue) fits(size int) bool {
	if q.conf.MaxPackets > 0 && len(q.items) >= q.conf.MaxPackets {
		return false
	}
	if q.conf.MaxBytes > 0 && q.bytes+size > q.conf.MaxBytes {
		return false
	}
	return true
}

func (q *DropTailQueue) full() bool {
	if q.conf.MaxPackets > 0 && len(q.items) >= q.conf.MaxPackets {
		return true
	}
	return q.conf.MaxBytes > 0 && q.bytes >= q.conf.MaxBytes
}

func (q *DropTailQueue) stop() {
	if q.stopped {
		return
	}
	q.stopped = true
	if q.fc != nil {
		q.fc.Stop()
	}
}
