package link_test

import (
	"testing"

	"github.com/matheuscscp/link-sim/layers/link"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFlowControl struct {
	mock.Mock
}

func (m *mockFlowControl) Stop() {
	m.Called()
}

func (m *mockFlowControl) Wake() {
	m.Called()
}

func item(size int) link.QueueItem {
	return link.QueueItem{Packet: payload(size, 0)}
}

func TestDropTailQueueByPackets(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{MaxPackets: 2})
	require.NoError(t, err)

	first := item(10)
	assert.True(t, q.Enqueue(first))
	assert.True(t, q.Enqueue(item(20)))
	assert.False(t, q.Enqueue(item(30)))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 30, q.Bytes())

	head, ok := q.Peek()
	require.True(t, ok)
	assert.Same(t, first.Packet, head.Packet)
	assert.Equal(t, 2, q.Len())

	got, ok := q.Dequeue()
	require.True(t, ok)
	assert.Same(t, first.Packet, got.Packet)
	assert.Equal(t, 20, q.Bytes())
	assert.True(t, q.Enqueue(item(30)))

	assert.Equal(t, link.QueueStats{Enqueued: 3, Dequeued: 1, Dropped: 1}, q.Stats())
}

func TestDropTailQueueByBytes(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{MaxBytes: 100})
	require.NoError(t, err)

	assert.True(t, q.Enqueue(item(60)))
	assert.False(t, q.Enqueue(item(41)))
	assert.True(t, q.Enqueue(item(40)))
	assert.False(t, q.Enqueue(item(1)))
	assert.Equal(t, 100, q.Bytes())
}

func TestDropTailQueueDefaults(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{})
	require.NoError(t, err)
	for i := 0; i < link.DefaultQueueMaxPackets; i++ {
		require.True(t, q.Enqueue(item(1)))
	}
	assert.False(t, q.Enqueue(item(1)))

	_, err = link.NewDropTailQueue(link.QueueConfig{MaxBytes: -1})
	assert.Error(t, err)
}

func TestDropTailQueueEmpty(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{})
	require.NoError(t, err)
	_, ok := q.Dequeue()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)
}

func TestDropTailQueueFlowControl(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{MaxPackets: 2})
	require.NoError(t, err)
	fc := &mockFlowControl{}
	q.SetFlowControl(fc)

	fc.On("Stop").Once()
	assert.True(t, q.Enqueue(item(1)))
	assert.True(t, q.Enqueue(item(1)))
	assert.False(t, q.Enqueue(item(1)))
	fc.AssertExpectations(t)

	fc.On("Wake").Once()
	_, ok := q.Dequeue()
	require.True(t, ok)
	_, ok = q.Dequeue()
	require.True(t, ok)
	fc.AssertExpectations(t)
	fc.AssertNumberOfCalls(t, "Stop", 1)
	fc.AssertNumberOfCalls(t, "Wake", 1)
}

func TestDropTailQueueDispose(t *testing.T) {
	q, err := link.NewDropTailQueue(link.QueueConfig{})
	require.NoError(t, err)
	assert.True(t, q.Enqueue(item(10)))
	q.Dispose()
	q.Dispose()
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.Bytes())
}
