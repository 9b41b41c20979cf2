package asyncmqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"
)

// ConnTransport defaults.
const (
	DefaultSendBufferSize = 5744
	DefaultReadBufferSize = 1460
	DefaultPollInterval   = 500 * time.Millisecond
)

var (
	errNoHandler          = errors.New("transport handler not set")
	errTransportBusy      = errors.New("transport already connected")
	errTransportNotActive = errors.New("transport not connected")
)

// ConnTransport runs the client over any net.Conn produced by a Dialer. It
// keeps a bounded send buffer, delivers reads from a goroutine and ticks
// OnTransportPoll at a fixed interval while connected.
type ConnTransport struct {
	dialer         Dialer
	sendBufferSize int
	readBufferSize int
	pollInterval   time.Duration
	writeTimeout   time.Duration
	readTimeout    time.Duration

	mu         sync.Mutex
	handler    TransportHandler
	conn       net.Conn
	out        []byte
	connecting bool
	closing    bool
}

// ConnTransportOption configures a ConnTransport.
type ConnTransportOption func(*ConnTransport)

// WithSendBufferSize bounds the bytes staged between flushes.
func WithSendBufferSize(n int) ConnTransportOption {
	return func(t *ConnTransport) {
		t.sendBufferSize = n
	}
}

// WithReadBufferSize sets the size of each read from the connection.
func WithReadBufferSize(n int) ConnTransportOption {
	return func(t *ConnTransport) {
		t.readBufferSize = n
	}
}

// WithPollInterval sets how often OnTransportPoll fires.
func WithPollInterval(d time.Duration) ConnTransportOption {
	return func(t *ConnTransport) {
		t.pollInterval = d
	}
}

// WithWriteTimeout bounds each Flush.
func WithWriteTimeout(d time.Duration) ConnTransportOption {
	return func(t *ConnTransport) {
		t.writeTimeout = d
	}
}

// WithReadTimeout closes the connection with OnTransportTimeout when nothing
// arrives for d. Zero disables it.
func WithReadTimeout(d time.Duration) ConnTransportOption {
	return func(t *ConnTransport) {
		t.readTimeout = d
	}
}

// NewConnTransport creates a transport that dials with dialer.
func NewConnTransport(dialer Dialer, opts ...ConnTransportOption) *ConnTransport {
	t := &ConnTransport{
		dialer:         dialer,
		sendBufferSize: DefaultSendBufferSize,
		readBufferSize: DefaultReadBufferSize,
		pollInterval:   DefaultPollInterval,
		writeTimeout:   5 * time.Second,
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// SetHandler registers the receiver of transport events.
func (t *ConnTransport) SetHandler(h TransportHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handler = h
}

// Connect dials in the background.
func (t *ConnTransport) Connect(ctx context.Context, address string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.handler == nil {
		return errNoHandler
	}
	if t.conn != nil || t.connecting {
		return errTransportBusy
	}

	t.connecting = true
	go t.run(ctx, address, t.handler)
	return nil
}

func (t *ConnTransport) run(ctx context.Context, address string, h TransportHandler) {
	conn, err := t.dialer.Dial(ctx, address)
	if err != nil {
		t.mu.Lock()
		t.connecting = false
		t.mu.Unlock()

		h.OnTransportError(ClassifyTransportError(err))
		h.OnTransportDisconnect()
		return
	}

	t.mu.Lock()
	t.conn = conn
	t.out = t.out[:0]
	t.connecting = false
	t.closing = false
	t.mu.Unlock()

	done := make(chan struct{})

	h.OnTransportConnect()
	go t.pollLoop(done, h)

	t.readLoop(conn, h)

	close(done)
	conn.Close()

	t.mu.Lock()
	t.conn = nil
	t.out = t.out[:0]
	t.mu.Unlock()

	h.OnTransportDisconnect()
}

func (t *ConnTransport) readLoop(conn net.Conn, h TransportHandler) {
	buf := make([]byte, t.readBufferSize)

	for {
		if t.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(t.readTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			h.OnTransportData(buf[:n])
		}

		if err == nil {
			continue
		}

		t.mu.Lock()
		closing := t.closing
		t.mu.Unlock()

		if closing {
			return
		}

		classified := ClassifyTransportError(err)
		switch classified.Kind {
		case TransportTimeout:
			h.OnTransportTimeout()
		case TransportClosed:
		default:
			h.OnTransportError(classified)
		}
		return
	}
}

func (t *ConnTransport) pollLoop(done <-chan struct{}, h TransportHandler) {
	if t.pollInterval <= 0 {
		return
	}

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			h.OnTransportPoll()
		}
	}
}

// Space returns the free room in the send buffer.
func (t *ConnTransport) Space() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return 0
	}
	return t.sendBufferSize - len(t.out)
}

// Add copies data into the send buffer.
func (t *ConnTransport) Add(data []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closing {
		return 0, NewTransportError(TransportClosed, errTransportNotActive)
	}
	if len(data) > t.sendBufferSize-len(t.out) {
		return 0, NewTransportError(TransportBuffer, ErrNoSpace)
	}

	t.out = append(t.out, data...)
	return len(data), nil
}

// Flush writes the send buffer to the connection.
func (t *ConnTransport) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.flushLocked()
}

func (t *ConnTransport) flushLocked() error {
	if t.conn == nil {
		return NewTransportError(TransportClosed, errTransportNotActive)
	}
	if len(t.out) == 0 {
		return nil
	}

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}

	_, err := t.conn.Write(t.out)
	t.out = t.out[:0]
	if err != nil {
		return ClassifyTransportError(err)
	}
	return nil
}

// Close closes the connection. The read goroutine then reports
// OnTransportDisconnect.
func (t *ConnTransport) Close(force bool) error {
	t.mu.Lock()
	conn := t.conn
	if conn == nil || t.closing {
		t.mu.Unlock()
		return nil
	}

	var flushErr error
	if !force {
		flushErr = t.flushLocked()
	}
	t.closing = true
	t.mu.Unlock()

	if err := conn.Close(); err != nil {
		return err
	}
	return flushErr
}

// PeerCertificates returns the server chain of a TLS connection.
func (t *ConnTransport) PeerCertificates() []*x509.Certificate {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ts, ok := t.conn.(tlsStater); ok {
		return ts.ConnectionState().PeerCertificates
	}
	return nil
}

// NewDialer picks a dialer for a broker URL and returns it with the address
// to pass to Connect. Schemes: tcp, mqtt, tls, ssl, mqtts, ws, wss, quic,
// unix.
// A non-empty proxyURL routes tcp and tls schemes through ProxyDialer.
func NewDialer(brokerURL string, tlsConfig *tls.Config, proxyURL string) (Dialer, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid address: %w", err)
	}

	if u.Scheme == "unix" {
		return &UnixDialer{}, u.Path, nil
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), defaultPort(u.Scheme))
	}

	switch u.Scheme {
	case "tcp", "mqtt":
		if proxyURL != "" {
			d, err := NewProxyDialer(proxyURL, nil)
			return d, host, err
		}
		return &TCPDialer{Timeout: 10 * time.Second}, host, nil

	case "tls", "ssl", "mqtts":
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		if proxyURL != "" {
			d, err := NewProxyDialer(proxyURL, tlsConfig)
			return d, host, err
		}
		return &TLSDialer{Config: tlsConfig, Timeout: 10 * time.Second}, host, nil

	case "ws", "wss":
		target := *u
		target.Host = host
		return NewWSDialer(tlsConfig), target.String(), nil

	case "quic":
		return &QUICDialer{TLSConfig: tlsConfig}, host, nil

	default:
		return nil, "", fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
}

func defaultPort(scheme string) string {
	switch scheme {
	case "tls", "ssl", "mqtts", "quic":
		return "8883"
	case "ws":
		return "80"
	case "wss":
		return "443"
	default:
		return "1883"
	}
}
