package asyncmqtt

import "time"

// pubrelSet holds inbound QoS 2 packet ids that were answered with PUBREC
// and still wait for PUBREL.
type pubrelSet map[uint16]struct{}

func (s pubrelSet) add(id uint16) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s pubrelSet) remove(id uint16) {
	delete(s, id)
}

func (s pubrelSet) has(id uint16) bool {
	_, ok := s[id]
	return ok
}

// ackQueue is a FIFO of acknowledgements waiting for send space.
type ackQueue struct {
	items []ackFrame
	head  int
}

func (q *ackQueue) push(a ackFrame) {
	q.items = append(q.items, a)
}

func (q *ackQueue) len() int {
	return len(q.items) - q.head
}

func (q *ackQueue) front() (ackFrame, bool) {
	if q.len() == 0 {
		return ackFrame{}, false
	}
	return q.items[q.head], true
}

func (q *ackQueue) pop() {
	if q.len() == 0 {
		return
	}

	q.items[q.head] = ackFrame{}
	q.head++

	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
}

func (q *ackQueue) clear() {
	q.items = nil
	q.head = 0
}

// drain writes queued acks in order while the transport has room for a
// whole frame. An ack leaves the queue only after the transport took it.
// sent, if not nil, is called for each ack handed over.
func (q *ackQueue) drain(t Transport, sent func(ackFrame)) (int, error) {
	n := 0

	for {
		a, ok := q.front()
		if !ok || t.Space() < ackFrameSize {
			return n, nil
		}

		encoded := a.encode()
		if _, err := t.Add(encoded[:]); err != nil {
			return n, err
		}
		if err := t.Flush(); err != nil {
			return n, err
		}

		q.pop()
		n++
		if sent != nil {
			sent(a)
		}
	}
}

// session is the per-connection protocol state. It is created when CONNECT
// goes out and discarded on disconnect.
type session struct {
	parser    *streamParser
	ids       *PacketIDAllocator
	pending   pubrelSet
	acks      ackQueue
	keepAlive *keepAliveScheduler
	aliases   *topicAliases
}

type sessionConfig struct {
	version        ProtocolVersion
	maxTopicLength int
	maxPacketSize  uint32
	firstPacketID  uint16
	keepAlive      time.Duration
	topicAliasMax  uint16
}

func newSession(cfg sessionConfig, now time.Time) *session {
	return &session{
		parser:    newStreamParser(cfg.version, cfg.maxTopicLength, cfg.maxPacketSize),
		ids:       NewPacketIDAllocator(cfg.firstPacketID),
		pending:   make(pubrelSet),
		keepAlive: newKeepAliveScheduler(cfg.keepAlive, now),
		aliases:   newTopicAliases(cfg.topicAliasMax),
	}
}

// teardown empties every structure so nothing leaks into a later session.
func (s *session) teardown() {
	s.parser.reset()
	s.ids.Reset(1)
	clear(s.pending)
	s.acks.clear()
	s.aliases.clear()
}
