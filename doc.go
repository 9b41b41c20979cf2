// Package asyncmqtt is an asynchronous MQTT 3.1.1 and 5.0 client engine.
//
// The client never blocks on the network and starts no goroutines of its
// own. It runs inside two kinds of calls: application calls (Connect,
// Publish, Subscribe, Unsubscribe, Disconnect) and events pushed by a
// Transport (data received, connected, disconnected, poll tick). Both are
// serialized by one lock; callbacks run after the lock is released.
//
// # Sending
//
// Every send checks the transport's free buffer space first. A packet that
// does not fit is not written at all and the call returns ErrNoSpace. All
// synchronous refusals wrap ErrNotSent:
//
//	id, err := client.Publish("a/b", 1, false, payload, asyncmqtt.PublishOptions{})
//	if errors.Is(err, asyncmqtt.ErrNotSent) {
//	    // retry later
//	}
//
// # Receiving
//
// Inbound bytes are parsed incrementally, so packets may arrive split at any
// byte boundary. PUBLISH payloads are handed to the message callback in
// chunks as they arrive:
//
//	asyncmqtt.OnMessage(func(msg *asyncmqtt.Message, chunk []byte, offset, total int) {
//	    buf = append(buf, chunk...)
//	})
//
// QoS 2 redeliveries of a message whose PUBREL is still outstanding are
// acknowledged again but not delivered twice.
//
// # Transports
//
// ConnTransport runs the client over any net.Conn. NewDialer picks TCP,
// TLS, WebSocket, QUIC or Unix socket dialing from a broker URL, optionally
// through an HTTP CONNECT or SOCKS5 proxy:
//
//	dialer, address, err := asyncmqtt.NewDialer("mqtts://broker:8883", nil, "")
//	transport := asyncmqtt.NewConnTransport(dialer)
//	client, err := asyncmqtt.NewClient(transport,
//	    asyncmqtt.WithServer(address),
//	    asyncmqtt.WithClientID("sensor-1"),
//	    asyncmqtt.WithKeepAlive(15),
//	)
//	err = client.Connect(ctx)
//
// # Errors
//
// Asynchronous failures reach the error callback as *TransportError,
// *ProtocolError, *SecurityError or *ConnectError. Protocol and security
// errors close the connection; every close tears down the session state
// before the disconnect callback runs.
package asyncmqtt
