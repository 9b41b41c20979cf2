package asyncmqtt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
)

// ErrNoServer is returned by Connect when no address was configured.
var ErrNoServer = errors.New("no server address configured")

// ConnectionState is the lifecycle phase of a Client.
type ConnectionState uint8

const (
	// StateIdle means no connection and no session.
	StateIdle ConnectionState = iota
	// StateConnecting means the transport is connecting.
	StateConnecting
	// StateAwaitingConnAck means CONNECT was sent.
	StateAwaitingConnAck
	// StateConnected means the broker accepted the session.
	StateConnected
	// StateDisconnected means the session was torn down and the transport
	// has not reported its disconnect yet.
	StateDisconnected
)

var connectionStateStrings = map[ConnectionState]string{
	StateIdle:            "idle",
	StateConnecting:      "connecting",
	StateAwaitingConnAck: "awaiting connack",
	StateConnected:       "connected",
	StateDisconnected:    "disconnected",
}

// String returns the state name.
func (s ConnectionState) String() string {
	if name, ok := connectionStateStrings[s]; ok {
		return name
	}
	return "unknown"
}

type closeMode uint8

const (
	closeNone closeMode = iota
	closeGraceful
	closeForce
)

// Client is an asynchronous MQTT client. It owns no goroutines: work happens
// inside public calls and transport events, serialized by one lock.
// Callbacks run after the lock is released, so they may call back into the
// client.
type Client struct {
	transport Transport
	options   *clientOptions
	lock      Locker
	clock     Clock
	logger    Logger
	metrics   clientMetrics

	// Guarded by lock.
	state         ConnectionState
	session       *session
	connectSentAt time.Time
	clientID      string
	nextPacketID  uint16
	closeReason   ReasonCode
	closeProps    *Properties
	pendingClose  closeMode
	events        []func()
}

// NewClient creates a client running over transport and registers itself as
// the transport's handler.
func NewClient(transport Transport, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if !options.version.Valid() {
		return nil, ErrInvalidProtocolVersion
	}

	if options.will != nil {
		if err := ValidateTopicName(options.will.Topic); err != nil {
			return nil, fmt.Errorf("will: %w", err)
		}
		if options.will.QoS > 2 {
			return nil, fmt.Errorf("will: %w", ErrInvalidQoS)
		}
	}

	clientID := options.clientID
	if clientID == "" && options.generateID {
		id, err := uuid.GenerateUUID()
		if err != nil {
			return nil, fmt.Errorf("generate client id: %w", err)
		}
		clientID = id
	}

	c := &Client{
		transport:    transport,
		options:      options,
		lock:         options.lock,
		clock:        options.clock,
		logger:       options.logger,
		clientID:     clientID,
		nextPacketID: 1,
	}

	if c.lock == nil {
		c.lock = NewSemaphoreLocker()
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	if c.logger == nil {
		c.logger = NewNoOpLogger()
	}
	c.metrics.metrics = options.metrics
	if c.metrics.metrics == nil {
		c.metrics.metrics = NoOpMetrics{}
	}

	transport.SetHandler(&transportEvents{c: c})

	return c, nil
}

// Connect starts connecting. The result arrives through the connect, error
// and disconnect callbacks.
func (c *Client) Connect(ctx context.Context) error {
	if !c.lock.TryLockTimeout(c.options.lockTimeout) {
		return ErrBusy
	}

	if c.state != StateIdle {
		c.lock.Unlock()
		return ErrAlreadyConnected
	}
	if c.options.address == "" {
		c.lock.Unlock()
		return ErrNoServer
	}

	c.state = StateConnecting
	c.closeReason = ReasonUnspecifiedError
	c.closeProps = nil
	c.lock.Unlock()

	c.logger.Info("connecting", LogFields{
		LogFieldClientID: c.clientID,
		LogFieldAddress:  c.options.address,
	})

	if err := c.transport.Connect(ctx, c.options.address); err != nil {
		c.lock.Lock()
		if c.state == StateConnecting {
			c.state = StateIdle
		}
		c.lock.Unlock()
		return ClassifyTransportError(err)
	}

	return nil
}

// Disconnect ends the connection. A graceful disconnect sends DISCONNECT
// first when the transport has room for it, otherwise it falls back to a
// forced close.
func (c *Client) Disconnect(force bool) error {
	if !c.lock.TryLockTimeout(c.options.lockTimeout) {
		return ErrBusy
	}

	switch c.state {
	case StateIdle, StateDisconnected:
		c.lock.Unlock()
		return ErrNotConnected

	case StateConnecting:
		c.pendingClose = closeForce

	default:
		mode := closeForce
		if !force && c.transport.Space() >= disconnectFrameSize {
			if err := writeFrame(c.transport, buildDisconnect()); err == nil {
				mode = closeGraceful
			}
		}
		c.pendingClose = mode
	}

	c.closeReason = ReasonSuccess
	c.closeProps = nil
	c.state = StateDisconnected

	c.logger.Info("disconnecting", LogFields{
		LogFieldClientID: c.clientID,
		"force":          force,
	})

	c.finish()
	return nil
}

// Publish sends a message. For QoS 1 and 2 the returned packet id is later
// reported to the publish callback. A QoS 0 publish returns id 0.
//
// The payload is written before Publish returns and is not retained.
func (c *Client) Publish(topic string, qos byte, retain bool, payload []byte, opts PublishOptions) (uint16, error) {
	if qos > 2 {
		return 0, notSent(ErrInvalidQoS)
	}
	if err := ValidateTopicName(topic); err != nil {
		return 0, notSent(err)
	}
	if qos == 0 && opts.PacketID != 0 {
		return 0, notSent(ErrInvalidPacketID)
	}

	if !c.lock.TryLockTimeout(c.options.lockTimeout) {
		return 0, ErrBusy
	}
	defer c.finish()

	if c.state != StateConnected {
		return 0, ErrNotConnected
	}

	if c.options.publishLimit != nil && !c.options.publishLimit.AllowN(c.clock.Now(), 1) {
		return 0, ErrRateLimited
	}

	var id uint16
	if qos > 0 {
		id = opts.PacketID
		if id == 0 {
			id = c.session.ids.Next()
		}
	}

	f, err := buildPublish(c.options.version, topic, qos, retain, id, payload, opts)
	if err != nil {
		return 0, notSent(err)
	}

	if err := c.send(PacketPUBLISH, f); err != nil {
		return 0, err
	}

	if qos > 0 && opts.PacketID == 0 {
		c.session.ids.Allocate()
	}

	c.logger.Debug("publish sent", LogFields{
		LogFieldTopic:    topic,
		LogFieldQoS:      qos,
		LogFieldPacketID: id,
		LogFieldBytes:    len(payload),
	})

	return id, nil
}

// Subscribe subscribes to one topic filter. The result is reported to the
// subscribe callback under the returned packet id.
func (c *Client) Subscribe(filter string, qos byte, opts SubscribeOptions) (uint16, error) {
	if qos > 2 {
		return 0, notSent(ErrInvalidQoS)
	}
	if opts.RetainHandling > 2 {
		return 0, notSent(ErrInvalidRetainHandling)
	}
	if err := ValidateTopicFilter(filter); err != nil {
		return 0, notSent(err)
	}

	if !c.lock.TryLockTimeout(c.options.lockTimeout) {
		return 0, ErrBusy
	}
	defer c.finish()

	if c.state != StateConnected {
		return 0, ErrNotConnected
	}

	id := c.session.ids.Next()
	subs := []Subscription{{TopicFilter: filter, QoS: qos, Options: opts}}

	f, err := buildSubscribe(c.options.version, id, subs, opts.Properties)
	if err != nil {
		return 0, notSent(err)
	}

	if err := c.send(PacketSUBSCRIBE, f); err != nil {
		return 0, err
	}
	c.session.ids.Allocate()

	c.logger.Debug("subscribe sent", LogFields{
		LogFieldTopic:    filter,
		LogFieldQoS:      qos,
		LogFieldPacketID: id,
	})

	return id, nil
}

// Unsubscribe removes one topic filter. The result is reported to the
// unsubscribe callback under the returned packet id.
func (c *Client) Unsubscribe(filter string) (uint16, error) {
	if err := ValidateTopicFilter(filter); err != nil {
		return 0, notSent(err)
	}

	if !c.lock.TryLockTimeout(c.options.lockTimeout) {
		return 0, ErrBusy
	}
	defer c.finish()

	if c.state != StateConnected {
		return 0, ErrNotConnected
	}

	id := c.session.ids.Next()

	f, err := buildUnsubscribe(c.options.version, id, []string{filter}, nil)
	if err != nil {
		return 0, notSent(err)
	}

	if err := c.send(PacketUNSUBSCRIBE, f); err != nil {
		return 0, err
	}
	c.session.ids.Allocate()

	c.logger.Debug("unsubscribe sent", LogFields{
		LogFieldTopic:    filter,
		LogFieldPacketID: id,
	})

	return id, nil
}

// Poll runs the periodic work: draining queued acknowledgements and the
// keep-alive check. Transports call it through OnTransportPoll; applications
// with their own timer may call it directly.
func (c *Client) Poll() {
	c.lock.Lock()
	defer c.finish()

	if c.session == nil {
		return
	}

	c.drainAcks()

	if c.state != StateConnected {
		return
	}

	now := c.clock.Now()

	switch c.session.keepAlive.Check(now) {
	case keepAliveTimeout:
		c.logger.Warn("keep-alive timeout", LogFields{LogFieldClientID: c.clientID})
		c.metrics.keepAliveTimeout()
		c.closeReason = ReasonKeepAliveTimeout
		c.abort(ErrKeepAliveTimeout)

	case keepAliveSendPing:
		err := writeFrame(c.transport, buildPingreq())
		switch {
		case err == nil:
			c.session.keepAlive.PingSent(now)
			c.metrics.packetSent(PacketPINGREQ, 1)
			c.logger.Debug("ping sent", nil)
		case errors.Is(err, ErrNoSpace):
			// retried on the next tick
			c.metrics.sendRefused()
		default:
			c.abort(ClassifyTransportError(err))
		}
	}
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.state
}

// Connected reports whether the broker accepted the session.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// ClientID returns the client identifier, including one assigned by a v5.0
// broker.
func (c *Client) ClientID() string {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.clientID
}

// send writes f and records the activity. Transport failures end the
// connection; the caller only sees that nothing was sent.
func (c *Client) send(packetType PacketType, f frame) error {
	err := writeFrame(c.transport, f)
	if err == nil {
		c.session.keepAlive.Outbound(c.clock.Now())
		c.metrics.packetSent(packetType, 1)
		return nil
	}
	if errors.Is(err, ErrNoSpace) {
		c.metrics.sendRefused()
		return ErrNoSpace
	}

	c.abort(ClassifyTransportError(err))
	return notSent(err)
}

func (c *Client) drainAcks() {
	n, err := c.session.acks.drain(c.transport, func(a ackFrame) {
		c.metrics.packetSent(a.packetType, 1)
	})
	if n > 0 {
		c.session.keepAlive.Outbound(c.clock.Now())
	}
	if err != nil {
		c.abort(ClassifyTransportError(err))
	}
}

func (c *Client) enqueueAck(packetType PacketType, packetID uint16) {
	c.session.acks.push(ackFrame{packetType: packetType, packetID: packetID})
}

// emit queues fn to run once the lock is released.
func (c *Client) emit(fn func()) {
	c.events = append(c.events, fn)
}

func (c *Client) emitError(err error) {
	if c.options.onError == nil {
		return
	}
	fn := c.options.onError
	c.emit(func() { fn(err) })
}

// abort reports err and ends the connection with a forced close.
func (c *Client) abort(err error) {
	if c.state == StateDisconnected || c.state == StateIdle {
		return
	}

	c.logger.Warn("connection aborted", LogFields{
		LogFieldClientID: c.clientID,
		LogFieldState:    c.state.String(),
		LogFieldError:    err.Error(),
	})

	c.emitError(err)

	c.state = StateDisconnected
	c.pendingClose = closeForce
}

// endSession discards all per-connection state. The next packet id survives
// for a later session that is not clean.
func (c *Client) endSession() {
	if c.session == nil {
		return
	}

	c.nextPacketID = c.session.ids.Next()
	c.session.teardown()
	c.session = nil
}

// finish tears down a session that ended during this call, releases the
// lock, runs the collected callbacks and then closes the transport if asked.
func (c *Client) finish() {
	if c.state == StateDisconnected {
		c.endSession()
	}

	events := c.events
	c.events = nil
	mode := c.pendingClose
	c.pendingClose = closeNone

	c.lock.Unlock()

	for _, fn := range events {
		fn()
	}

	if mode != closeNone {
		if err := c.transport.Close(mode == closeForce); err != nil {
			c.logger.Debug("transport close failed", LogFields{LogFieldError: err.Error()})
		}
	}
}

func (c *Client) startSession() error {
	first := c.nextPacketID
	if c.options.cleanSession {
		first = 1
	}

	c.session = newSession(sessionConfig{
		version:        c.options.version,
		maxTopicLength: c.options.maxTopicLength,
		maxPacketSize:  c.options.maxPacketSize,
		firstPacketID:  first,
		keepAlive:      time.Duration(c.options.keepAlive) * time.Second,
		topicAliasMax:  c.options.connectProps.GetUint16(PropTopicAliasMaximum),
	}, c.clock.Now())
	c.state = StateAwaitingConnAck

	f, err := buildConnect(c.options.version, &ConnectOptions{
		ClientID:     c.clientID,
		CleanSession: c.options.cleanSession,
		KeepAlive:    c.options.keepAlive,
		Username:     c.options.username,
		Password:     c.options.password,
		Will:         c.options.will,
		Properties:   c.options.connectProps,
	})
	if err != nil {
		return err
	}

	if err := writeFrame(c.transport, f); err != nil {
		return err
	}

	c.connectSentAt = c.clock.Now()
	c.session.keepAlive.Outbound(c.connectSentAt)
	c.metrics.packetSent(PacketCONNECT, 1)

	c.logger.Debug("connect sent", LogFields{
		LogFieldClientID: c.clientID,
		"clean_session":  c.options.cleanSession,
		"keep_alive":     c.options.keepAlive,
	})

	return nil
}

func (c *Client) verifyPeer() error {
	if c.options.peerVerifier == nil {
		return nil
	}

	provider, ok := c.transport.(PeerCertificateProvider)
	if !ok {
		return NewSecurityError(ErrNoPeerCertificate)
	}
	if err := c.options.peerVerifier.VerifyPeer(provider.PeerCertificates()); err != nil {
		return NewSecurityError(err)
	}
	return nil
}

// transportEvents adapts the client to TransportHandler without exporting
// the event methods on Client.
type transportEvents struct {
	c *Client
}

func (e *transportEvents) OnTransportConnect() {
	c := e.c
	c.lock.Lock()
	defer c.finish()

	if c.state != StateConnecting {
		// Disconnect raced the dial.
		c.pendingClose = closeForce
		return
	}

	if err := c.verifyPeer(); err != nil {
		c.closeReason = ReasonNotAuthorized
		c.abort(err)
		return
	}

	if err := c.startSession(); err != nil {
		if errors.Is(err, ErrNoSpace) {
			c.abort(err)
		} else {
			c.abort(ClassifyTransportError(err))
		}
	}
}

func (e *transportEvents) OnTransportDisconnect() {
	c := e.c
	c.lock.Lock()
	defer c.finish()

	c.endSession()

	if c.state == StateIdle {
		return
	}
	c.state = StateIdle
	c.metrics.connected(false)

	c.logger.Info("disconnected", LogFields{
		LogFieldClientID:   c.clientID,
		LogFieldReasonCode: c.closeReason.String(),
	})

	if fn := c.options.onDisconnect; fn != nil {
		reason, props := c.closeReason, c.closeProps
		c.emit(func() { fn(reason, props) })
	}
}

func (e *transportEvents) OnTransportError(err error) {
	c := e.c
	c.lock.Lock()
	defer c.finish()

	c.logger.Warn("transport error", LogFields{
		LogFieldClientID: c.clientID,
		LogFieldError:    err.Error(),
	})

	c.emitError(ClassifyTransportError(err))
}

func (e *transportEvents) OnTransportTimeout() {
	c := e.c
	c.lock.Lock()
	defer c.finish()

	c.abort(NewTransportError(TransportTimeout, nil))
}

func (e *transportEvents) OnTransportData(data []byte) {
	c := e.c
	c.lock.Lock()
	defer c.finish()

	if c.session == nil {
		return
	}

	c.metrics.bytesReceived(len(data))

	if err := c.session.parser.feed(data, c); err != nil {
		if c.state != StateDisconnected {
			c.closeReason = parseFailureReason(err)
			c.metrics.protocolError()
		}
		c.abort(err)
		return
	}

	if c.state != StateDisconnected {
		c.drainAcks()
	}
}

func (e *transportEvents) OnTransportPoll() {
	e.c.Poll()
}

// parseFailureReason picks the disconnect reason reported for a parser error.
func parseFailureReason(err error) ReasonCode {
	switch {
	case errors.Is(err, ErrUnexpectedPacket):
		return ReasonProtocolError
	case errors.Is(err, ErrPacketTooLarge):
		return ReasonPacketTooLarge
	default:
		return ReasonMalformedPacket
	}
}

// The methods below receive parser events with the lock held.

func (c *Client) onPacketStart(packetType PacketType) {
	if c.state == StateDisconnected {
		return
	}

	c.session.keepAlive.Inbound(c.clock.Now())
	c.metrics.packetReceived(packetType)

	if packetType == PacketDISCONNECT {
		return
	}

	expectConnack := c.state == StateAwaitingConnAck
	if expectConnack != (packetType == PacketCONNACK) {
		c.closeReason = ReasonProtocolError
		c.metrics.protocolError()
		c.abort(NewProtocolError(packetType, ErrUnexpectedPacket))
	}
}

func (c *Client) onConnack(sessionPresent bool, reason ReasonCode, props *Properties) {
	if c.state != StateAwaitingConnAck {
		return
	}

	if reason != ReasonSuccess {
		c.closeReason = reason
		c.closeProps = props
		c.abort(NewConnectError(reason, props))
		return
	}

	if props.Has(PropServerKeepAlive) {
		c.session.keepAlive.SetInterval(time.Duration(props.GetUint16(PropServerKeepAlive)) * time.Second)
	}
	if assigned := props.GetString(PropAssignedClientIdentifier); assigned != "" {
		c.clientID = assigned
	}

	c.state = StateConnected
	c.metrics.connected(true)
	c.metrics.connectLatency(c.clock.Now().Sub(c.connectSentAt))

	c.logger.Info("connected", LogFields{
		LogFieldClientID:  c.clientID,
		"session_present": sessionPresent,
	})

	if fn := c.options.onConnect; fn != nil {
		c.emit(func() { fn(sessionPresent, props) })
	}
}

func (c *Client) onPublishPayload(msg *Message, chunk []byte, offset, total int) {
	if c.state != StateConnected {
		return
	}

	if offset == 0 {
		if err := c.session.aliases.resolve(msg); err != nil {
			c.closeReason = ReasonTopicAliasInvalid
			if errors.Is(err, ErrEmptyTopic) {
				c.closeReason = ReasonTopicNameInvalid
			}
			c.metrics.protocolError()
			c.abort(NewProtocolError(PacketPUBLISH, err))
			return
		}
	}

	// A redelivered QoS 2 message that was already handed over.
	if msg.QoS == 2 && c.session.pending.has(msg.PacketID) {
		return
	}

	if fn := c.options.onMessage; fn != nil {
		c.emit(func() { fn(msg, chunk, offset, total) })
	}
}

func (c *Client) onPublishComplete(msg *Message) {
	if c.state != StateConnected {
		return
	}

	c.logger.Debug("publish received", LogFields{
		LogFieldTopic:    msg.Topic,
		LogFieldQoS:      msg.QoS,
		LogFieldPacketID: msg.PacketID,
	})

	switch msg.QoS {
	case 0:
		c.metrics.messageDelivered(0)
	case 1:
		c.metrics.messageDelivered(1)
		c.enqueueAck(PacketPUBACK, msg.PacketID)
	case 2:
		if c.session.pending.add(msg.PacketID) {
			c.metrics.messageDelivered(2)
		} else {
			c.metrics.duplicateSuppressed()
		}
		c.enqueueAck(PacketPUBREC, msg.PacketID)
	}
}

func (c *Client) onAck(packetType PacketType, packetID uint16, reason ReasonCode, _ *Properties) {
	if c.state != StateConnected {
		return
	}

	c.logger.Debug("ack received", LogFields{
		LogFieldPacketType: packetType.String(),
		LogFieldPacketID:   packetID,
		LogFieldReasonCode: reason.String(),
	})

	switch packetType {
	case PacketPUBACK, PacketPUBCOMP:
		c.emitPublished(packetID, reason)

	case PacketPUBREC:
		if reason.IsError() {
			c.emitPublished(packetID, reason)
			return
		}
		c.enqueueAck(PacketPUBREL, packetID)

	case PacketPUBREL:
		c.session.pending.remove(packetID)
		c.enqueueAck(PacketPUBCOMP, packetID)
	}
}

func (c *Client) emitPublished(packetID uint16, reason ReasonCode) {
	if fn := c.options.onPublish; fn != nil {
		c.emit(func() { fn(packetID, reason) })
	}
}

func (c *Client) onSubscriptionAck(packetType PacketType, packetID uint16, reasons []ReasonCode, props *Properties) {
	if c.state != StateConnected {
		return
	}

	fn := c.options.onSubscribe
	if packetType == PacketUNSUBACK {
		fn = c.options.onUnsubscribe
	}
	if fn != nil {
		c.emit(func() { fn(packetID, reasons, props) })
	}
}

func (c *Client) onPingResp() {
	if c.state != StateConnected {
		return
	}
	c.session.keepAlive.PingResponse()
}

func (c *Client) onDisconnect(reason ReasonCode, props *Properties) {
	if c.state == StateDisconnected {
		return
	}

	c.logger.Info("disconnected by server", LogFields{
		LogFieldClientID:   c.clientID,
		LogFieldReasonCode: reason.String(),
	})

	c.closeReason = reason
	c.closeProps = props
	c.state = StateDisconnected
	c.pendingClose = closeForce
}
