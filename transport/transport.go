// Package transport owns the sockets that carry request/reply exchanges.
//
// Two socket kinds are available:
//
//	zmq    ZeroMQ REQ/REP over TCP (default). The socket type enforces strict alternation.
//	frame  Plain TCP using the protocol package's 14-byte frame header. The reply side
//	       serves one connected peer at a time.
//
// A Socket is owned by exactly one endpoint and must not be shared.
package transport

import (
	"context"
	"errors"
	"fmt"

	"mini-reqrep/protocol"
)

// Kind selects the socket implementation.
type Kind string

const (
	KindZMQ   Kind = "zmq"
	KindFrame Kind = "frame"
)

var (
	ErrUnknownKind      = errors.New("transport: unknown socket kind")
	ErrEmptyMessage     = errors.New("transport: empty message")
	ErrSequenceMismatch = errors.New("transport: reply sequence does not match request")
	ErrNoPeer           = errors.New("transport: no connected peer to reply to")
	ErrCodecMismatch    = errors.New("transport: frame codec does not match socket codec")
)

// Socket is a single bidirectional message socket.
type Socket interface {
	// Send transmits one message.
	Send(payload []byte) error
	// Recv blocks until one message arrives or the socket is closed.
	Recv() ([]byte, error)
	Close() error
	// Addr is the endpoint the socket was bound or connected to.
	Addr() string
}

// ConnectionError reports a failed connect to a peer. Connects are never retried.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

type socketOptions struct {
	codecType byte
}

// SocketOption configures Listen and Dial.
type SocketOption func(*socketOptions)

// WithCodecType sets the codec byte frame sockets write and expect. Defaults to JSON.
// ZeroMQ messages carry no codec byte, so zmq sockets ignore it.
func WithCodecType(ct byte) SocketOption {
	return func(o *socketOptions) { o.codecType = ct }
}

func newSocketOptions(opts []SocketOption) socketOptions {
	o := socketOptions{codecType: protocol.CodecTypeJSON}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ParseKind validates a configured kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindZMQ, KindFrame:
		return Kind(s), nil
	case "":
		return KindZMQ, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Listen binds a reply-side socket on every interface at port.
func Listen(ctx context.Context, kind Kind, port int, opts ...SocketOption) (Socket, error) {
	switch kind {
	case KindZMQ, "":
		return listenZMQ(ctx, port)
	case KindFrame:
		return listenFrame(ctx, port, newSocketOptions(opts))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Dial connects a request-side socket to host:port.
// A failure is returned as *ConnectionError.
func Dial(ctx context.Context, kind Kind, host string, port int, opts ...SocketOption) (Socket, error) {
	switch kind {
	case KindZMQ, "":
		return dialZMQ(ctx, host, port)
	case KindFrame:
		return dialFrame(ctx, host, port, newSocketOptions(opts))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
