package asyncmqtt

import (
	"context"
	"net"
)

// UnixDialer connects to MQTT brokers over Unix domain sockets. The address
// is the socket path, e.g. "/var/run/mqtt.sock".
type UnixDialer struct{}

// Dial connects to the socket.
func (d *UnixDialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", address)
}
