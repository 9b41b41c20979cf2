package asyncmqtt

import (
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied by NewClient.
const (
	DefaultKeepAlive   uint16 = 60
	DefaultLockTimeout        = 100 * time.Millisecond
)

// ConnectHandler is called when the broker accepted the session.
type ConnectHandler func(sessionPresent bool, props *Properties)

// DisconnectHandler is called once per connection after teardown. The reason
// is the one sent by the server, ReasonSuccess after Disconnect, or the code
// matching the local failure.
type DisconnectHandler func(reason ReasonCode, props *Properties)

// SubscriptionHandler is called with the reason codes of a SUBACK or UNSUBACK.
type SubscriptionHandler func(packetID uint16, reasons []ReasonCode, props *Properties)

// MessageHandler receives the payload of an inbound PUBLISH in chunks. The
// message is complete when offset+len(chunk) == total. The chunk is only
// valid during the call.
type MessageHandler func(msg *Message, chunk []byte, offset, total int)

// PublishHandler is called when a QoS 1 or QoS 2 publish finished its
// handshake, or when PUBREC ended it with an error reason.
type PublishHandler func(packetID uint16, reason ReasonCode)

// ErrorHandler receives every asynchronous error.
type ErrorHandler func(err error)

// clientOptions holds configuration for a Client.
type clientOptions struct {
	// Connection settings
	address      string
	clientID     string
	generateID   bool
	username     string
	password     []byte
	keepAlive    uint16
	cleanSession bool
	will         *Will
	version      ProtocolVersion
	connectProps *Properties

	// Limits
	maxTopicLength int
	maxPacketSize  uint32
	publishLimit   *rate.Limiter

	// Security
	peerVerifier PeerVerifier

	// Runtime
	lock        Locker
	lockTimeout time.Duration
	clock       Clock
	logger      Logger
	metrics     Metrics

	// Callbacks
	onConnect     ConnectHandler
	onDisconnect  DisconnectHandler
	onSubscribe   SubscriptionHandler
	onUnsubscribe SubscriptionHandler
	onMessage     MessageHandler
	onPublish     PublishHandler
	onError       ErrorHandler
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() *clientOptions {
	return &clientOptions{
		keepAlive:      DefaultKeepAlive,
		cleanSession:   true,
		version:        ProtocolV311,
		maxTopicLength: defaultMaxTopicBytes,
		lockTimeout:    DefaultLockTimeout,
	}
}

// Option configures a Client.
type Option func(*clientOptions)

// WithServer sets the address handed to Transport.Connect, e.g.
// "broker:1883" for ConnTransport or a ws:// URL for a WebSocket dialer.
func WithServer(address string) Option {
	return func(o *clientOptions) {
		o.address = address
	}
}

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(o *clientOptions) {
		o.clientID = id
	}
}

// WithGeneratedClientID makes NewClient generate a random identifier when
// none was set.
func WithGeneratedClientID() Option {
	return func(o *clientOptions) {
		o.generateID = true
	}
}

// WithCredentials sets the username and password for authentication. An
// empty password is left out of CONNECT.
func WithCredentials(username, password string) Option {
	return func(o *clientOptions) {
		o.username = username
		o.password = nil
		if password != "" {
			o.password = []byte(password)
		}
	}
}

// WithKeepAlive sets the keep-alive interval in seconds. Zero disables it.
func WithKeepAlive(seconds uint16) Option {
	return func(o *clientOptions) {
		o.keepAlive = seconds
	}
}

// WithCleanSession sets the clean session (clean start in v5.0) flag.
func WithCleanSession(clean bool) Option {
	return func(o *clientOptions) {
		o.cleanSession = clean
	}
}

// WithWill sets the will message.
func WithWill(will *Will) Option {
	return func(o *clientOptions) {
		o.will = will
	}
}

// WithProtocolVersion selects MQTT 3.1.1 or 5.0.
func WithProtocolVersion(version ProtocolVersion) Option {
	return func(o *clientOptions) {
		o.version = version
	}
}

// WithConnectProperties sets the v5.0 CONNECT properties.
func WithConnectProperties(props *Properties) Option {
	return func(o *clientOptions) {
		o.connectProps = props
	}
}

// WithMaxTopicLength bounds the topic of inbound messages. Longer ones are
// skipped without delivery or acknowledgement.
func WithMaxTopicLength(n int) Option {
	return func(o *clientOptions) {
		o.maxTopicLength = n
	}
}

// WithMaxPacketSize rejects inbound packets larger than size bytes as a
// protocol error. Zero means no limit.
func WithMaxPacketSize(size uint32) Option {
	return func(o *clientOptions) {
		o.maxPacketSize = size
	}
}

// WithPublishRateLimit limits Publish to r messages per second with the
// given burst. Refused publishes return ErrRateLimited.
func WithPublishRateLimit(r float64, burst int) Option {
	return func(o *clientOptions) {
		o.publishLimit = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// WithFingerprints accepts the server only if the leaf certificate matches
// one of the SHA-1 or SHA-256 fingerprints.
func WithFingerprints(fps ...Fingerprint) Option {
	return func(o *clientOptions) {
		o.peerVerifier = NewFingerprintVerifier(fps...)
	}
}

// WithPeerVerifier installs a custom check of the server certificate chain.
func WithPeerVerifier(v PeerVerifier) Option {
	return func(o *clientOptions) {
		o.peerVerifier = v
	}
}

// WithLocker replaces the client lock. Use NoOpLocker when every call and
// transport event comes from one goroutine.
func WithLocker(l Locker) Option {
	return func(o *clientOptions) {
		o.lock = l
	}
}

// WithLockTimeout bounds how long public calls wait for the client lock
// before returning ErrBusy.
func WithLockTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.lockTimeout = d
	}
}

// WithClock sets the time source for keep-alive decisions.
func WithClock(c Clock) Option {
	return func(o *clientOptions) {
		o.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(o *clientOptions) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) {
		o.metrics = m
	}
}

// OnConnect sets the connect callback.
func OnConnect(fn ConnectHandler) Option {
	return func(o *clientOptions) {
		o.onConnect = fn
	}
}

// OnDisconnect sets the disconnect callback.
func OnDisconnect(fn DisconnectHandler) Option {
	return func(o *clientOptions) {
		o.onDisconnect = fn
	}
}

// OnSubscribe sets the SUBACK callback.
func OnSubscribe(fn SubscriptionHandler) Option {
	return func(o *clientOptions) {
		o.onSubscribe = fn
	}
}

// OnUnsubscribe sets the UNSUBACK callback.
func OnUnsubscribe(fn SubscriptionHandler) Option {
	return func(o *clientOptions) {
		o.onUnsubscribe = fn
	}
}

// OnMessage sets the inbound message callback.
func OnMessage(fn MessageHandler) Option {
	return func(o *clientOptions) {
		o.onMessage = fn
	}
}

// OnPublish sets the publish acknowledgement callback.
func OnPublish(fn PublishHandler) Option {
	return func(o *clientOptions) {
		o.onPublish = fn
	}
}

// OnError sets the error callback.
func OnError(fn ErrorHandler) Option {
	return func(o *clientOptions) {
		o.onError = fn
	}
}
