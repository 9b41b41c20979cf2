package asyncmqtt

import "errors"

// ProtocolVersion is the protocol level byte sent in CONNECT.
type ProtocolVersion byte

const (
	// ProtocolV311 is MQTT 3.1.1.
	ProtocolV311 ProtocolVersion = 4
	// ProtocolV5 is MQTT 5.0.
	ProtocolV5 ProtocolVersion = 5
)

// String returns the version name.
func (v ProtocolVersion) String() string {
	switch v {
	case ProtocolV311:
		return "3.1.1"
	case ProtocolV5:
		return "5.0"
	default:
		return "unknown"
	}
}

// Valid reports whether v is a supported protocol level.
func (v ProtocolVersion) Valid() bool {
	return v == ProtocolV311 || v == ProtocolV5
}

// Packet validation errors.
var (
	ErrInvalidQoS              = errors.New("invalid QoS level")
	ErrInvalidPacketID         = errors.New("invalid packet identifier")
	ErrInvalidProtocolVersion  = errors.New("invalid protocol version")
	ErrPasswordWithoutUsername = errors.New("password requires a user name in MQTT 3.1.1")
	ErrEmptySubscription       = errors.New("at least one topic filter is required")
	ErrInvalidRetainHandling   = errors.New("invalid retain handling value")
)

// Message describes an inbound PUBLISH. The payload is not part of it; it is
// delivered in chunks next to the message.
type Message struct {
	Topic      string
	QoS        byte
	Duplicate  bool
	Retain     bool
	PacketID   uint16
	Properties *Properties
}

// Will is the message the broker publishes when the client goes away
// without a DISCONNECT.
type Will struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties *Properties
}

// ConnectOptions are the values the CONNECT packet is built from.
type ConnectOptions struct {
	ClientID     string
	CleanSession bool
	KeepAlive    uint16
	Username     string
	Password     []byte
	Will         *Will
	Properties   *Properties
}

// PublishOptions tune a single publish.
type PublishOptions struct {
	// Duplicate marks a redelivery. Together with PacketID it resends with
	// the id of the earlier attempt instead of allocating a new one.
	Duplicate  bool
	PacketID   uint16
	Properties *Properties
}

// SubscribeOptions are the v5.0 subscription options. In 3.1.1 only the QoS
// bits reach the wire.
type SubscribeOptions struct {
	NoLocal           bool
	RetainAsPublished bool
	RetainHandling    byte
	Properties        *Properties
}

func (o SubscribeOptions) encode(qos byte) byte {
	b := qos & 0x03
	if o.NoLocal {
		b |= 0x04
	}
	if o.RetainAsPublished {
		b |= 0x08
	}
	b |= (o.RetainHandling & 0x03) << 4
	return b
}

// Subscription is one topic filter of a SUBSCRIBE.
type Subscription struct {
	TopicFilter string
	QoS         byte
	Options     SubscribeOptions
}
