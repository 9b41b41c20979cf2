package asyncmqtt

// PacketIDAllocator hands out packet identifiers in the range 1..65535,
// wrapping from 65535 back to 1. Zero is never returned.
type PacketIDAllocator struct {
	next uint16
}

// NewPacketIDAllocator creates an allocator whose first id is start, or 1
// when start is zero.
func NewPacketIDAllocator(start uint16) *PacketIDAllocator {
	a := &PacketIDAllocator{}
	a.Reset(start)
	return a
}

// Allocate returns the next packet id.
func (a *PacketIDAllocator) Allocate() uint16 {
	if a.next == 0 {
		a.next = 1
	}

	id := a.next
	a.next++
	if a.next == 0 {
		a.next = 1
	}
	return id
}

// Next returns the id the following Allocate will yield.
func (a *PacketIDAllocator) Next() uint16 {
	if a.next == 0 {
		return 1
	}
	return a.next
}

// Reset restarts allocation at start, or at 1 when start is zero.
func (a *PacketIDAllocator) Reset(start uint16) {
	if start == 0 {
		start = 1
	}
	a.next = start
}
