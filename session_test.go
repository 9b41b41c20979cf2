package asyncmqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPubrelSet(t *testing.T) {
	s := make(pubrelSet)

	assert.True(t, s.add(7))
	assert.False(t, s.add(7))
	assert.True(t, s.has(7))

	s.remove(7)
	assert.False(t, s.has(7))
	assert.True(t, s.add(7))

	s.remove(99)
}

func TestAckQueue(t *testing.T) {
	t.Run("fifo", func(t *testing.T) {
		var q ackQueue

		q.push(ackFrame{packetType: PacketPUBACK, packetID: 1})
		q.push(ackFrame{packetType: PacketPUBREC, packetID: 2})
		assert.Equal(t, 2, q.len())

		a, ok := q.front()
		require.True(t, ok)
		assert.Equal(t, uint16(1), a.packetID)

		q.pop()
		a, ok = q.front()
		require.True(t, ok)
		assert.Equal(t, uint16(2), a.packetID)

		q.pop()
		_, ok = q.front()
		assert.False(t, ok)
		assert.Equal(t, 0, q.len())

		q.pop()
		assert.Equal(t, 0, q.len())
	})

	t.Run("drain waits for space", func(t *testing.T) {
		var q ackQueue
		ft := newFakeTransport(ackFrameSize + 1)
		ft.open = true

		q.push(ackFrame{packetType: PacketPUBACK, packetID: 1})
		q.push(ackFrame{packetType: PacketPUBREC, packetID: 2})
		q.push(ackFrame{packetType: PacketPUBCOMP, packetID: 3})

		// Only one ack fits until the staged byte is flushed.
		ft.staged = []byte{0xFF}

		var sent []ackFrame
		n, err := q.drain(ft, func(a ackFrame) { sent = append(sent, a) })
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Len(t, sent, 3)

		out := ft.takeSent()
		assert.Equal(t, []byte{0xFF, 0x40, 0x02, 0x00, 0x01}, out[:5])
		assert.Equal(t, []byte{0x50, 0x02, 0x00, 0x02, 0x70, 0x02, 0x00, 0x03}, out[5:])
	})

	t.Run("drain keeps acks without space", func(t *testing.T) {
		var q ackQueue
		ft := newFakeTransport(ackFrameSize - 1)
		ft.open = true

		q.push(ackFrame{packetType: PacketPUBACK, packetID: 1})

		n, err := q.drain(ft, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, q.len())

		ft.setCapacity(ackFrameSize)
		n, err = q.drain(ft, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, 0, q.len())
		assert.Equal(t, []byte{0x40, 0x02, 0x00, 0x01}, ft.takeSent())
	})

	t.Run("drain keeps ack on transport failure", func(t *testing.T) {
		var q ackQueue
		ft := newFakeTransport(64)
		ft.open = true
		ft.flushErr = errors.New("broken pipe")

		q.push(ackFrame{packetType: PacketPUBACK, packetID: 1})

		n, err := q.drain(ft, nil)
		require.Error(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 1, q.len())
	})
}

func TestSessionTeardown(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := newSession(sessionConfig{
		version:       ProtocolV5,
		firstPacketID: 10,
		keepAlive:     time.Minute,
		topicAliasMax: 5,
	}, now)

	assert.Equal(t, uint16(10), s.ids.Allocate())
	s.pending.add(3)
	s.acks.push(ackFrame{packetType: PacketPUBREC, packetID: 3})
	s.aliases.topics[1] = "a/b"
	require.NoError(t, s.parser.feed([]byte{0x30, 0x05}, &eventRecorder{}))

	s.teardown()

	assert.Equal(t, uint16(1), s.ids.Next())
	assert.False(t, s.pending.has(3))
	assert.Equal(t, 0, s.acks.len())
	assert.Empty(t, s.aliases.topics)
	assert.Equal(t, phaseAwaitType, s.parser.phase)
}
