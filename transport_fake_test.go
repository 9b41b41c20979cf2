package asyncmqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory Transport. Space is the room left in a
// buffer of capacity bytes; Flush moves staged bytes to sent. Close reports
// OnTransportDisconnect synchronously.
type fakeTransport struct {
	mu       sync.Mutex
	handler  TransportHandler
	capacity int
	staged   []byte
	sent     []byte
	address  string
	closes   []bool
	open     bool

	connectErr error
	flushErr   error
}

func newFakeTransport(capacity int) *fakeTransport {
	return &fakeTransport{capacity: capacity}
}

func (f *fakeTransport) SetHandler(h TransportHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) Connect(_ context.Context, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.connectErr != nil {
		return f.connectErr
	}
	f.address = address
	return nil
}

func (f *fakeTransport) Space() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0
	}
	return f.capacity - len(f.staged)
}

func (f *fakeTransport) Add(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.open {
		return 0, NewTransportError(TransportClosed, nil)
	}
	if len(data) > f.capacity-len(f.staged) {
		return 0, ErrNoSpace
	}
	f.staged = append(f.staged, data...)
	return len(data), nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.flushErr != nil {
		return f.flushErr
	}
	f.sent = append(f.sent, f.staged...)
	f.staged = f.staged[:0]
	return nil
}

func (f *fakeTransport) Close(force bool) error {
	f.mu.Lock()
	f.closes = append(f.closes, force)
	wasOpen := f.open
	f.open = false
	h := f.handler
	f.mu.Unlock()

	if wasOpen {
		h.OnTransportDisconnect()
	}
	return nil
}

// accept simulates a completed dial.
func (f *fakeTransport) accept() {
	f.mu.Lock()
	f.open = true
	h := f.handler
	f.mu.Unlock()

	h.OnTransportConnect()
}

// receive delivers inbound bytes.
func (f *fakeTransport) receive(data ...byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()

	h.OnTransportData(data)
}

// setCapacity changes the send buffer size.
func (f *fakeTransport) setCapacity(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capacity = n
}

// takeSent returns and clears the flushed bytes.
func (f *fakeTransport) takeSent() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := f.sent
	f.sent = nil
	return out
}

func (f *fakeTransport) closeCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.closes...)
}

// splitPackets cuts a byte stream at packet boundaries.
func splitPackets(t testing.TB, data []byte) [][]byte {
	t.Helper()

	var out [][]byte
	for len(data) > 0 {
		remaining, n, err := decodeVarint(data[1:])
		require.NoError(t, err)

		size := 1 + n + int(remaining)
		require.LessOrEqual(t, size, len(data))

		out = append(out, data[:size])
		data = data[size:]
	}
	return out
}

// rawPacket frames body with a fixed header.
func rawPacket(t testing.TB, packetType PacketType, flags byte, body ...byte) []byte {
	t.Helper()

	h := FixedHeader{PacketType: packetType, Flags: flags, RemainingLength: uint32(len(body))}
	out, err := h.AppendTo(nil)
	require.NoError(t, err)
	return append(out, body...)
}

// manualClock is a Clock moved by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
