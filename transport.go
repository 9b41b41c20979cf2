package asyncmqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"
)

// Transport is the byte pipe the client runs over. Inbound bytes and
// connection events are pushed to the registered TransportHandler.
//
// Space, Add and Flush are called with the client lock held and must not
// call back into the handler. Connect and Close are called without it and
// may deliver events synchronously.
type Transport interface {
	// SetHandler registers the receiver of transport events.
	SetHandler(h TransportHandler)

	// Connect starts connecting to address. The outcome is reported through
	// OnTransportConnect, or OnTransportError followed by OnTransportDisconnect.
	Connect(ctx context.Context, address string) error

	// Space returns how many bytes Add accepts right now.
	Space() int

	// Add stages a copy of data for sending. It never blocks.
	Add(data []byte) (int, error)

	// Flush pushes staged bytes to the network.
	Flush() error

	// Close shuts the connection down. A graceful close flushes staged bytes
	// first. OnTransportDisconnect follows.
	Close(force bool) error
}

// TransportHandler receives transport events. Data slices are only valid for
// the duration of the call.
type TransportHandler interface {
	OnTransportConnect()
	OnTransportDisconnect()
	OnTransportError(err error)
	OnTransportTimeout()
	OnTransportData(data []byte)
	OnTransportPoll()
}

// PeerCertificateProvider is implemented by transports that run TLS and can
// show the server's certificate chain.
type PeerCertificateProvider interface {
	PeerCertificates() []*x509.Certificate
}

// Dialer establishes network connections for ConnTransport.
type Dialer interface {
	// Dial connects to the address with the given context.
	Dial(ctx context.Context, address string) (net.Conn, error)
}

// tlsStater is implemented by connections that carry TLS state.
type tlsStater interface {
	ConnectionState() tls.ConnectionState
}

// TCPDialer connects to MQTT brokers over TCP.
type TCPDialer struct {
	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address.
func (d *TCPDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}

// TLSDialer connects to MQTT brokers over TLS.
type TLSDialer struct {
	// Config is the TLS configuration.
	Config *tls.Config

	// Timeout is the maximum time to wait for a connection.
	// Zero means no timeout.
	Timeout time.Duration
}

// Dial connects to the address and completes the handshake.
func (d *TLSDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config:    d.Config,
	}
	return dialer.DialContext(ctx, "tcp", address)
}
