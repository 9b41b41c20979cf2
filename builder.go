package asyncmqtt

import (
	"golang.org/x/crypto/cryptobyte"
)

const protocolName = "MQTT"

// CONNECT flag bits.
const (
	connectFlagCleanSession = 0x02
	connectFlagWill         = 0x04
	connectFlagWillRetain   = 0x20
	connectFlagPassword     = 0x40
	connectFlagUsername     = 0x80
	connectWillQoSShift     = 3
)

const (
	ackFrameSize        = 4
	pingreqFrameSize    = 2
	disconnectFrameSize = 2
)

// frame is one encoded packet as an ordered list of byte ranges. Ranges may
// borrow caller memory (topic, payload); the transport copies them on Add.
type frame struct {
	parts [][]byte
	size  int
}

func (f *frame) add(b []byte) {
	if len(b) == 0 {
		return
	}
	f.parts = append(f.parts, b)
	f.size += len(b)
}

// Len returns the total encoded length.
func (f *frame) Len() int {
	return f.size
}

// Bytes flattens the frame.
func (f *frame) Bytes() []byte {
	out := make([]byte, 0, f.size)
	for _, p := range f.parts {
		out = append(out, p...)
	}
	return out
}

// newFrame prefixes the variable header and payload with a fixed header.
func newFrame(packetType PacketType, flags byte, variable, payload []byte) (frame, error) {
	remaining := uint64(len(variable)) + uint64(len(payload))
	if remaining > maxVarint {
		return frame{}, ErrRemainingLengthTooLarge
	}

	header := FixedHeader{
		PacketType:      packetType,
		Flags:           flags,
		RemainingLength: uint32(remaining),
	}

	hdr, err := header.AppendTo(make([]byte, 0, 5))
	if err != nil {
		return frame{}, err
	}

	var f frame
	f.add(hdr)
	f.add(variable)
	f.add(payload)
	return f, nil
}

// addPropertyBlock writes a v5.0 property block. Nil properties encode as an
// empty block.
func addPropertyBlock(b *cryptobyte.Builder, props *Properties) {
	block, err := props.Encode()
	if err != nil {
		b.SetError(err)
		return
	}
	b.AddBytes(block)
}

func buildConnect(version ProtocolVersion, opts *ConnectOptions) (frame, error) {
	if !version.Valid() {
		return frame{}, ErrInvalidProtocolVersion
	}

	var flags byte
	if opts.CleanSession {
		flags |= connectFlagCleanSession
	}

	if w := opts.Will; w != nil {
		if w.QoS > 2 {
			return frame{}, ErrInvalidQoS
		}
		if err := ValidateTopicName(w.Topic); err != nil {
			return frame{}, err
		}

		flags |= connectFlagWill | w.QoS<<connectWillQoSShift
		if w.Retain {
			flags |= connectFlagWillRetain
		}
	}

	if opts.Password != nil {
		if opts.Username == "" && version == ProtocolV311 {
			return frame{}, ErrPasswordWithoutUsername
		}
		flags |= connectFlagPassword
	}

	if opts.Username != "" {
		flags |= connectFlagUsername
	}

	b := cryptobyte.NewBuilder(make([]byte, 0, 64))
	addString(b, protocolName)
	b.AddUint8(byte(version))
	b.AddUint8(flags)
	b.AddUint16(opts.KeepAlive)

	if version == ProtocolV5 {
		addPropertyBlock(b, opts.Properties)
	}

	addString(b, opts.ClientID)

	if w := opts.Will; w != nil {
		if version == ProtocolV5 {
			addPropertyBlock(b, w.Properties)
		}
		addString(b, w.Topic)
		addBinary(b, w.Payload)
	}

	if opts.Username != "" {
		addString(b, opts.Username)
	}

	if opts.Password != nil {
		addBinary(b, opts.Password)
	}

	variable, err := b.Bytes()
	if err != nil {
		return frame{}, err
	}

	return newFrame(PacketCONNECT, 0, variable, nil)
}

// buildPublish encodes a PUBLISH. The payload is referenced, not copied.
func buildPublish(version ProtocolVersion, topic string, qos byte, retain bool, packetID uint16, payload []byte, opts PublishOptions) (frame, error) {
	if qos > 2 {
		return frame{}, ErrInvalidQoS
	}

	if err := ValidateTopicName(topic); err != nil {
		return frame{}, err
	}

	if qos > 0 && packetID == 0 {
		return frame{}, ErrInvalidPacketID
	}

	b := cryptobyte.NewBuilder(make([]byte, 0, len(topic)+8))
	addString(b, topic)

	if qos > 0 {
		b.AddUint16(packetID)
	}

	if version == ProtocolV5 {
		addPropertyBlock(b, opts.Properties)
	}

	variable, err := b.Bytes()
	if err != nil {
		return frame{}, err
	}

	return newFrame(PacketPUBLISH, publishFlags(opts.Duplicate, qos, retain), variable, payload)
}

func buildSubscribe(version ProtocolVersion, packetID uint16, subs []Subscription, props *Properties) (frame, error) {
	if len(subs) == 0 {
		return frame{}, ErrEmptySubscription
	}

	if packetID == 0 {
		return frame{}, ErrInvalidPacketID
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(packetID)

	if version == ProtocolV5 {
		addPropertyBlock(b, props)
	}

	for _, sub := range subs {
		if err := ValidateTopicFilter(sub.TopicFilter); err != nil {
			return frame{}, err
		}
		if sub.QoS > 2 {
			return frame{}, ErrInvalidQoS
		}
		if sub.Options.RetainHandling > 2 {
			return frame{}, ErrInvalidRetainHandling
		}

		addString(b, sub.TopicFilter)

		if version == ProtocolV5 {
			b.AddUint8(sub.Options.encode(sub.QoS))
		} else {
			b.AddUint8(sub.QoS)
		}
	}

	variable, err := b.Bytes()
	if err != nil {
		return frame{}, err
	}

	return newFrame(PacketSUBSCRIBE, 0x02, variable, nil)
}

func buildUnsubscribe(version ProtocolVersion, packetID uint16, filters []string, props *Properties) (frame, error) {
	if len(filters) == 0 {
		return frame{}, ErrEmptySubscription
	}

	if packetID == 0 {
		return frame{}, ErrInvalidPacketID
	}

	b := cryptobyte.NewBuilder(nil)
	b.AddUint16(packetID)

	if version == ProtocolV5 {
		addPropertyBlock(b, props)
	}

	for _, filter := range filters {
		if err := ValidateTopicFilter(filter); err != nil {
			return frame{}, err
		}
		addString(b, filter)
	}

	variable, err := b.Bytes()
	if err != nil {
		return frame{}, err
	}

	return newFrame(PacketUNSUBSCRIBE, 0x02, variable, nil)
}

func buildPingreq() frame {
	var f frame
	f.add([]byte{byte(PacketPINGREQ) << 4, 0x00})
	return f
}

// buildDisconnect encodes a normal disconnection. v5.0 allows the reason
// code and properties to be omitted when the reason is success, which gives
// the same two bytes for both versions.
func buildDisconnect() frame {
	var f frame
	f.add([]byte{byte(PacketDISCONNECT) << 4, 0x00})
	return f
}

// ackFrame is a queued PUBACK, PUBREC, PUBREL or PUBCOMP carrying success.
type ackFrame struct {
	packetType PacketType
	packetID   uint16
}

// encode returns the short form shared by both versions: fixed header and
// packet id. In v5.0 an omitted reason code means success.
func (a ackFrame) encode() [ackFrameSize]byte {
	var flags byte
	if a.packetType == PacketPUBREL {
		flags = 0x02
	}

	return [ackFrameSize]byte{
		byte(a.packetType)<<4 | flags,
		0x02,
		byte(a.packetID >> 8),
		byte(a.packetID),
	}
}

// writeFrame hands f to t only if t has room for all of it; otherwise
// nothing is staged and ErrNoSpace is returned.
func writeFrame(t Transport, f frame) error {
	if t.Space() < f.Len() {
		return ErrNoSpace
	}

	for _, part := range f.parts {
		if _, err := t.Add(part); err != nil {
			return err
		}
	}

	return t.Flush()
}
