package asyncmqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// ErrNotSent is the only signal a refused send gives its caller. Check with
// errors.Is; the more specific errors below all wrap it.
var ErrNotSent = errors.New("not sent")

// Sentinel errors for refused sends - check with errors.Is().
var (
	// ErrNoSpace is returned when the transport cannot take the whole packet
	// right now. Nothing was written; retry later.
	ErrNoSpace = fmt.Errorf("%w: insufficient send buffer space", ErrNotSent)

	// ErrNotConnected is returned when the client has no established session.
	ErrNotConnected = fmt.Errorf("%w: not connected", ErrNotSent)

	// ErrBusy is returned when the client lock could not be taken in time.
	ErrBusy = fmt.Errorf("%w: client busy", ErrNotSent)

	// ErrRateLimited is returned when the publish rate limit refused a message.
	ErrRateLimited = fmt.Errorf("%w: publish rate exceeded", ErrNotSent)
)

// Sentinel errors reported through the error callback - check with errors.Is().
var (
	// ErrProtocolError is wrapped by every ProtocolError.
	ErrProtocolError = errors.New("protocol error")

	// ErrTransportError is wrapped by every TransportError.
	ErrTransportError = errors.New("transport error")

	// ErrSecurityError is wrapped by every SecurityError.
	ErrSecurityError = errors.New("security error")

	// ErrKeepAliveTimeout is reported when a PINGREQ went unanswered.
	ErrKeepAliveTimeout = errors.New("keep-alive timeout")

	// ErrConnectRefused is wrapped by ConnectError.
	ErrConnectRefused = errors.New("connect refused")

	// ErrAuthFailed is wrapped by ConnectError for credential failures.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrFingerprintMismatch is the cause of a SecurityError raised by the
	// certificate fingerprint check.
	ErrFingerprintMismatch = errors.New("server certificate fingerprint not allowed")

	// ErrAlreadyConnected is returned by Connect on a client that is not idle.
	ErrAlreadyConnected = errors.New("already connected")
)

// TransportErrorKind classifies transport failures.
type TransportErrorKind int

const (
	TransportUnknown TransportErrorKind = iota
	TransportOutOfMemory
	TransportBuffer
	TransportTimeout
	TransportRouting
	TransportAborted
	TransportReset
	TransportClosed
	TransportLowLevel
	TransportDNS
)

var transportErrorKindStrings = map[TransportErrorKind]string{
	TransportUnknown:     "unknown",
	TransportOutOfMemory: "out of memory",
	TransportBuffer:      "buffer",
	TransportTimeout:     "timeout",
	TransportRouting:     "routing",
	TransportAborted:     "connection aborted",
	TransportReset:       "connection reset",
	TransportClosed:      "connection closed",
	TransportLowLevel:    "low level",
	TransportDNS:         "dns",
}

// String returns the kind name.
func (k TransportErrorKind) String() string {
	if s, ok := transportErrorKindStrings[k]; ok {
		return s
	}
	return "unknown"
}

// TransportError is a failure of the underlying connection.
// Extract with errors.As().
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return "transport error (" + e.Kind.String() + "): " + e.Err.Error()
	}
	return "transport error (" + e.Kind.String() + ")"
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransportError, e.Err} }

// NewTransportError creates a TransportError of the given kind.
func NewTransportError(kind TransportErrorKind, err error) *TransportError {
	return &TransportError{Kind: kind, Err: err}
}

// ClassifyTransportError maps a network error onto a TransportError.
func ClassifyTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	var (
		dnsErr  *net.DNSError
		netErr  net.Error
		callErr *os.SyscallError
	)

	kind := TransportUnknown

	switch {
	case errors.As(err, &dnsErr):
		kind = TransportDNS
	case errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		kind = TransportTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = TransportTimeout
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EPIPE):
		kind = TransportReset
	case errors.Is(err, syscall.ECONNABORTED), errors.Is(err, context.Canceled):
		kind = TransportAborted
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.ENETDOWN):
		kind = TransportRouting
	case errors.Is(err, syscall.ENOMEM):
		kind = TransportOutOfMemory
	case errors.Is(err, syscall.ENOBUFS):
		kind = TransportBuffer
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
		kind = TransportClosed
	case errors.As(err, &callErr):
		kind = TransportLowLevel
	}

	return &TransportError{Kind: kind, Err: err}
}

// ProtocolError is a malformed or unexpected inbound packet. It is fatal
// for the connection. Extract with errors.As().
type ProtocolError struct {
	PacketType PacketType
	Err        error
}

func (e *ProtocolError) Error() string {
	return "protocol error in " + e.PacketType.String() + ": " + e.Err.Error()
}

func (e *ProtocolError) Unwrap() []error { return []error{ErrProtocolError, e.Err} }

// NewProtocolError creates a ProtocolError for a packet of the given type.
func NewProtocolError(packetType PacketType, err error) *ProtocolError {
	return &ProtocolError{PacketType: packetType, Err: err}
}

// SecurityError is a failed TLS peer check. It is fatal for the connection.
// Extract with errors.As().
type SecurityError struct {
	Err error
}

func (e *SecurityError) Error() string {
	return "security error: " + e.Err.Error()
}

func (e *SecurityError) Unwrap() []error { return []error{ErrSecurityError, e.Err} }

// NewSecurityError creates a SecurityError.
func NewSecurityError(err error) *SecurityError {
	return &SecurityError{Err: err}
}

// ConnectError reports a CONNACK that refused the session.
// Extract with errors.As().
type ConnectError struct {
	err        error
	ReasonCode ReasonCode
	Properties *Properties
}

func (e *ConnectError) Error() string {
	return "connect failed: " + e.ReasonCode.String()
}

func (e *ConnectError) Unwrap() error { return e.err }

// NewConnectError creates a new ConnectError from a reason code.
func NewConnectError(reason ReasonCode, props *Properties) *ConnectError {
	baseErr := ErrConnectRefused
	if reason == ReasonBadUserNameOrPassword || reason == ReasonNotAuthorized {
		baseErr = ErrAuthFailed
	}
	return &ConnectError{
		err:        baseErr,
		ReasonCode: reason,
		Properties: props,
	}
}

// notSent wraps a validation failure so callers see ErrNotSent as well.
func notSent(err error) error {
	if errors.Is(err, ErrNotSent) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNotSent, err)
}
