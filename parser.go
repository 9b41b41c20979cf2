package asyncmqtt

import (
	"errors"
	"unicode/utf8"
)

// Parser errors. They reach the application wrapped in a ProtocolError.
var (
	ErrUnexpectedPacket = errors.New("packet type not expected by a client")
	ErrMalformedPacket  = errors.New("packet fields do not match remaining length")
	ErrPacketTooLarge   = errors.New("packet exceeds maximum packet size")
	ErrZeroPacketID     = errors.New("packet identifier must not be zero")
	errParserNeedsReset = errors.New("parser stopped after a protocol error")
)

// defaultMaxTopicBytes bounds the topic buffer of an inbound PUBLISH.
const defaultMaxTopicBytes = 1024

// packetHandler receives decoded packets. Payload chunks borrow the slice
// passed to feed and must not be retained.
type packetHandler interface {
	onPacketStart(packetType PacketType)
	onConnack(sessionPresent bool, reason ReasonCode, props *Properties)
	onPublishPayload(msg *Message, chunk []byte, offset, total int)
	onPublishComplete(msg *Message)
	onAck(packetType PacketType, packetID uint16, reason ReasonCode, props *Properties)
	onSubscriptionAck(packetType PacketType, packetID uint16, reasons []ReasonCode, props *Properties)
	onPingResp()
	onDisconnect(reason ReasonCode, props *Properties)
}

type parserPhase uint8

const (
	phaseAwaitType parserPhase = iota
	phaseAwaitRemainingLength
	phaseAwaitBody
	phaseFailed
)

// streamParser turns arbitrarily chunked bytes into packet events. It keeps
// just enough state to resume at any byte boundary.
type streamParser struct {
	version        ProtocolVersion
	maxTopicLength int
	maxPacketSize  uint32

	phase  parserPhase
	header FixedHeader
	length varintDecoder
	body   bodyParser
}

func newStreamParser(version ProtocolVersion, maxTopicLength int, maxPacketSize uint32) *streamParser {
	if maxTopicLength <= 0 {
		maxTopicLength = defaultMaxTopicBytes
	}

	return &streamParser{
		version:        version,
		maxTopicLength: maxTopicLength,
		maxPacketSize:  maxPacketSize,
	}
}

// reset drops any partially parsed packet.
func (p *streamParser) reset() {
	p.phase = phaseAwaitType
	p.header = FixedHeader{}
	p.length.reset()
	p.body.clear()
}

// feed consumes one chunk. Any error is fatal for the connection; the parser
// refuses further input until reset.
func (p *streamParser) feed(data []byte, h packetHandler) error {
	if p.phase == phaseFailed {
		return errParserNeedsReset
	}

	for len(data) > 0 {
		switch p.phase {
		case phaseAwaitType:
			p.header = FixedHeader{
				PacketType: PacketType(data[0] >> 4),
				Flags:      data[0] & 0x0F,
			}
			data = data[1:]

			if err := p.header.ValidateFlags(); err != nil {
				return p.fail(err)
			}

			h.onPacketStart(p.header.PacketType)
			p.length.reset()
			p.phase = phaseAwaitRemainingLength

		case phaseAwaitRemainingLength:
			done, err := p.length.feed(data[0])
			data = data[1:]

			if err != nil {
				return p.fail(err)
			}
			if !done {
				continue
			}

			p.header.RemainingLength = p.length.value
			if p.maxPacketSize > 0 && uint64(p.header.Size())+uint64(p.header.RemainingLength) > uint64(p.maxPacketSize) {
				return p.fail(ErrPacketTooLarge)
			}

			if err := p.body.begin(&p.header, p.version, p.maxTopicLength); err != nil {
				return p.fail(err)
			}

			p.phase = phaseAwaitBody
			if err := p.body.settle(h); err != nil {
				return p.fail(err)
			}

			if p.body.state == stateDone {
				p.phase = phaseAwaitType
			}

		case phaseAwaitBody:
			n, err := p.body.advance(data, h)
			data = data[n:]

			if err != nil {
				return p.fail(err)
			}

			if p.body.state == stateDone {
				p.phase = phaseAwaitType
			}
		}
	}

	return nil
}

func (p *streamParser) fail(err error) error {
	packetType := p.header.PacketType
	p.phase = phaseFailed
	return NewProtocolError(packetType, err)
}

type bodyState uint8

const (
	stateTopicLength bodyState = iota
	stateTopic
	statePacketID
	stateConnackFlags
	stateReasonCode
	statePropertiesLength
	stateProperties
	stateReasonList
	statePayload
	stateDone
)

// bodyParser is the per-packet sub-parser. kind selects which fields are
// read; one struct serves every inbound type so that no allocation happens
// per packet beyond the decoded values.
type bodyParser struct {
	kind      PacketType
	flags     byte
	version   ProtocolVersion
	maxTopic  int
	state     bodyState
	remaining uint32

	word    uint16
	half    bool
	vbi     varintDecoder
	buf     []byte
	want    uint32
	ignored bool

	packetID       uint16
	reason         ReasonCode
	reasons        []ReasonCode
	sessionPresent bool
	props          *Properties
	topic          string
	msg            *Message
	payloadTotal   int
	payloadOffset  int
}

func (b *bodyParser) clear() {
	buf := b.buf[:0]
	*b = bodyParser{buf: buf}
}

// begin selects the field sequence for header's packet type.
func (b *bodyParser) begin(header *FixedHeader, version ProtocolVersion, maxTopic int) error {
	b.clear()
	b.kind = header.PacketType
	b.flags = header.Flags
	b.version = version
	b.maxTopic = maxTopic
	b.remaining = header.RemainingLength

	v5 := version == ProtocolV5

	switch b.kind {
	case PacketPUBLISH:
		b.state = stateTopicLength

	case PacketPUBACK, PacketPUBREC, PacketPUBREL, PacketPUBCOMP:
		if !v5 && b.remaining != 2 {
			return ErrMalformedPacket
		}
		b.state = statePacketID

	case PacketSUBACK:
		b.state = statePacketID

	case PacketUNSUBACK:
		if !v5 && b.remaining != 2 {
			return ErrMalformedPacket
		}
		b.state = statePacketID

	case PacketCONNACK:
		if !v5 && b.remaining != 2 {
			return ErrMalformedPacket
		}
		b.state = stateConnackFlags

	case PacketPINGRESP:
		if b.remaining != 0 {
			return ErrMalformedPacket
		}
		b.state = stateDone

	case PacketDISCONNECT:
		if !v5 && b.remaining != 0 {
			return ErrMalformedPacket
		}
		b.state = stateReasonCode

	default:
		return ErrUnexpectedPacket
	}

	return nil
}

// next returns the field that follows the current one.
func (b *bodyParser) next() bodyState {
	v5 := b.version == ProtocolV5

	switch b.kind {
	case PacketPUBLISH:
		switch b.state {
		case stateTopicLength:
			return stateTopic
		case stateTopic:
			if b.flags>>1&0x03 > 0 {
				return statePacketID
			}
			if v5 {
				return statePropertiesLength
			}
			return statePayload
		case statePacketID:
			if v5 {
				return statePropertiesLength
			}
			return statePayload
		case statePropertiesLength:
			return stateProperties
		case stateProperties:
			return statePayload
		}

	case PacketPUBACK, PacketPUBREC, PacketPUBREL, PacketPUBCOMP:
		switch b.state {
		case statePacketID:
			if b.remaining == 0 {
				return stateDone
			}
			return stateReasonCode
		case stateReasonCode:
			if b.remaining == 0 {
				return stateDone
			}
			return statePropertiesLength
		case statePropertiesLength:
			return stateProperties
		}

	case PacketSUBACK, PacketUNSUBACK:
		switch b.state {
		case statePacketID:
			if v5 {
				return statePropertiesLength
			}
			if b.kind == PacketUNSUBACK {
				return stateDone
			}
			return stateReasonList
		case statePropertiesLength:
			return stateProperties
		case stateProperties:
			return stateReasonList
		}

	case PacketCONNACK:
		switch b.state {
		case stateConnackFlags:
			return stateReasonCode
		case stateReasonCode:
			if v5 && b.remaining > 0 {
				return statePropertiesLength
			}
			return stateDone
		case statePropertiesLength:
			return stateProperties
		}

	case PacketDISCONNECT:
		switch b.state {
		case stateReasonCode:
			if b.remaining > 0 {
				return statePropertiesLength
			}
			return stateDone
		case statePropertiesLength:
			return stateProperties
		}
	}

	return stateDone
}

// settle runs the states that need no further input: empty property blocks,
// empty topics, an empty payload, optional trailing fields and completion.
func (b *bodyParser) settle(h packetHandler) error {
	for {
		switch b.state {
		case stateDone:
			return b.complete(h)

		case stateTopic, stateProperties:
			if b.want > 0 {
				return nil
			}
			if err := b.finishField(); err != nil {
				return err
			}
			b.state = b.next()
			continue

		case stateReasonList:
			if b.remaining > 0 {
				return nil
			}
			b.state = stateDone
			continue

		case statePayload:
			if b.msg == nil {
				b.startPayload()
			}
			if b.payloadTotal > 0 {
				return nil
			}
			if !b.ignored {
				h.onPublishPayload(b.msg, nil, 0, 0)
			}
			b.state = stateDone
			continue

		case stateReasonCode:
			if b.kind == PacketDISCONNECT && b.remaining == 0 {
				b.state = stateDone
				continue
			}
		}

		if b.remaining == 0 {
			return ErrMalformedPacket
		}
		return nil
	}
}

// advance consumes bytes of the current packet body from data and returns
// how many it used. Bytes past the end of the body are left for the next
// packet.
func (b *bodyParser) advance(data []byte, h packetHandler) (int, error) {
	consumed := 0

	for b.state != stateDone && consumed < len(data) {
		avail := data[consumed:]
		if uint64(len(avail)) > uint64(b.remaining) {
			avail = avail[:b.remaining]
		}
		if len(avail) == 0 {
			return consumed, ErrMalformedPacket
		}

		n, fieldDone, err := b.consume(avail, h)
		consumed += n
		b.remaining -= uint32(n)

		if err != nil {
			return consumed, err
		}

		if !fieldDone {
			continue
		}

		if err := b.finishField(); err != nil {
			return consumed, err
		}

		b.state = b.next()
		if err := b.settle(h); err != nil {
			return consumed, err
		}
	}

	return consumed, nil
}

// consume feeds avail to the current field.
func (b *bodyParser) consume(avail []byte, h packetHandler) (int, bool, error) {
	switch b.state {
	case stateTopicLength, statePacketID:
		if !b.half {
			b.word = uint16(avail[0]) << 8
			b.half = true
			return 1, false, nil
		}
		b.word |= uint16(avail[0])
		b.half = false
		return 1, true, nil

	case stateConnackFlags:
		b.sessionPresent = avail[0]&0x01 != 0
		return 1, true, nil

	case stateReasonCode:
		b.reason = ReasonCode(avail[0])
		return 1, true, nil

	case statePropertiesLength:
		done, err := b.vbi.feed(avail[0])
		return 1, done, err

	case stateTopic, stateProperties:
		take := min(len(avail), int(b.want)-len(b.buf))
		if !b.ignored {
			b.buf = append(b.buf, avail[:take]...)
		} else {
			b.buf = b.buf[:0]
			b.want -= uint32(take)
			return take, b.want == 0, nil
		}
		return take, len(b.buf) == int(b.want), nil

	case stateReasonList:
		for _, c := range avail {
			if b.version == ProtocolV5 || b.kind != PacketSUBACK {
				b.reasons = append(b.reasons, ReasonCode(c))
			} else {
				b.reasons = append(b.reasons, subackReasonV311(c))
			}
		}
		return len(avail), uint64(len(avail)) == uint64(b.remaining), nil

	case statePayload:
		if !b.ignored {
			h.onPublishPayload(b.msg, avail, b.payloadOffset, b.payloadTotal)
		}
		b.payloadOffset += len(avail)
		return len(avail), b.payloadOffset == b.payloadTotal, nil
	}

	return 0, false, ErrMalformedPacket
}

// finishField stores a completed field and prepares the one after it.
func (b *bodyParser) finishField() error {
	switch b.state {
	case stateTopicLength:
		b.want = uint32(b.word)
		if b.want > b.remaining {
			return ErrMalformedPacket
		}
		b.ignored = int(b.want) > b.maxTopic
		b.buf = b.buf[:0]

	case stateTopic:
		if !b.ignored {
			if !utf8.Valid(b.buf) {
				return ErrInvalidUTF8
			}
			b.topic = string(b.buf)
		}
		b.buf = b.buf[:0]

	case statePacketID:
		if b.word == 0 {
			return ErrZeroPacketID
		}
		b.packetID = b.word

	case statePropertiesLength:
		b.want = b.vbi.value
		b.vbi.reset()
		if b.want > b.remaining {
			return ErrPropertiesIncomplete
		}
		b.buf = b.buf[:0]

	case stateProperties:
		if b.ignored {
			b.buf = b.buf[:0]
			return nil
		}
		props, err := DecodeProperties(b.buf)
		if err != nil {
			return err
		}
		b.props = props
		b.buf = b.buf[:0]
		b.want = 0

	case statePayload:
		b.state = stateDone
	}

	return nil
}

func (b *bodyParser) startPayload() {
	b.payloadTotal = int(b.remaining)
	b.payloadOffset = 0

	if b.ignored {
		b.msg = &Message{}
		return
	}

	b.msg = &Message{
		Topic:      b.topic,
		QoS:        b.flags >> 1 & 0x03,
		Duplicate:  b.flags&0x08 != 0,
		Retain:     b.flags&0x01 != 0,
		PacketID:   b.packetID,
		Properties: b.props,
	}
}

// complete reports the decoded packet.
func (b *bodyParser) complete(h packetHandler) error {
	if b.remaining != 0 {
		return ErrMalformedPacket
	}

	switch b.kind {
	case PacketPUBLISH:
		if !b.ignored {
			h.onPublishComplete(b.msg)
		}

	case PacketPUBACK, PacketPUBREC, PacketPUBREL, PacketPUBCOMP:
		h.onAck(b.kind, b.packetID, b.reason, b.props)

	case PacketSUBACK, PacketUNSUBACK:
		h.onSubscriptionAck(b.kind, b.packetID, b.reasons, b.props)

	case PacketCONNACK:
		reason := b.reason
		if b.version != ProtocolV5 {
			reason = connackReasonV311(byte(b.reason))
		}
		h.onConnack(b.sessionPresent, reason, b.props)

	case PacketPINGRESP:
		h.onPingResp()

	case PacketDISCONNECT:
		h.onDisconnect(b.reason, b.props)
	}

	return nil
}
