// Package endpoint implements the messaging endpoint shared by server and client.
//
// An Endpoint wraps exactly one transport.Socket. Send transmits a message and can block
// for the acknowledgment; Receive blocks for the next incoming message.
//
// Acknowledgment timeouts are scoped to the call: when the deadline fires first, Send
// returns *TimeoutError and the rest of the process keeps running. A request/reply socket
// that gave up on its reply cannot be used again, so the endpoint closes itself.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mini-reqrep/codec"
	"mini-reqrep/message"
	"mini-reqrep/metrics"
	"mini-reqrep/transport"
)

var (
	// ErrTimeout is matched by every *TimeoutError.
	ErrTimeout = errors.New("endpoint: acknowledgment timed out")
	ErrClosed  = errors.New("endpoint: closed")
)

// TimeoutError reports an acknowledgment that did not arrive within the deadline.
type TimeoutError struct {
	Addr    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("no acknowledgment from %s within %s", e.Addr, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// Endpoint owns one socket for its lifetime.
type Endpoint struct {
	sock    transport.Socket
	codec   codec.Codec
	timeout time.Duration // Zero waits for acknowledgments indefinitely
	logger  *zap.Logger
	metrics *metrics.Metrics

	closeOnce sync.Once
	closed    atomic.Bool
	closeErr  error
}

type Option func(*Endpoint)

func WithCodec(c codec.Codec) Option {
	return func(e *Endpoint) { e.codec = c }
}

// WithTimeout bounds how long Send waits for an acknowledgment. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(e *Endpoint) { e.timeout = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Endpoint) { e.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Endpoint) { e.metrics = m }
}

// New wraps sock. The endpoint takes ownership and closes it in Close.
func New(sock transport.Socket, opts ...Option) *Endpoint {
	e := &Endpoint{
		sock:   sock,
		codec:  &codec.JSONCodec{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("addr", sock.Addr()))
	return e
}

// Send encodes and transmits m. Without waitForAck it returns m itself; otherwise it
// returns the decoded acknowledgment.
func (e *Endpoint) Send(ctx context.Context, m message.Message, waitForAck bool) (message.Message, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	data, err := e.codec.Encode(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	log := e.logger.With(zap.String("exchange", uuid.NewString()))
	log.Info("sending message", zap.Any("message", m))
	if err := e.sock.Send(data); err != nil {
		return nil, fmt.Errorf("send to %s: %w", e.sock.Addr(), err)
	}
	e.metrics.ObserveSend()

	if !waitForAck {
		return m, nil
	}

	log.Debug("waiting for acknowledgment", zap.Duration("timeout", e.timeout))
	ack, err := e.receive(ctx, e.timeout)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			e.metrics.ObserveTimeout()
			log.Warn("acknowledgment timed out", zap.Duration("timeout", e.timeout))
		}
		return nil, err
	}
	log.Info("acknowledgment", zap.Any("reply", ack))
	return ack, nil
}

// Receive blocks until a message arrives and returns it decoded.
// A malformed payload fails with *codec.ProtocolDecodeError.
func (e *Endpoint) Receive(ctx context.Context) (message.Message, error) {
	return e.receive(ctx, 0)
}

func (e *Endpoint) receive(ctx context.Context, timeout time.Duration) (message.Message, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Nothing can interrupt the wait, so skip the watcher goroutine.
	if waitCtx.Done() == nil {
		data, err := e.sock.Recv()
		return e.decode(data, err)
	}

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := e.sock.Recv()
		done <- result{data: data, err: err}
	}()

	select {
	case r := <-done:
		return e.decode(r.data, r.err)
	case <-waitCtx.Done():
		// Closing the socket releases the pending Recv.
		e.Close()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &TimeoutError{Addr: e.sock.Addr(), Timeout: timeout}
	}
}

func (e *Endpoint) decode(data []byte, err error) (message.Message, error) {
	if err != nil {
		if e.closed.Load() {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("receive from %s: %w", e.sock.Addr(), err)
	}
	return e.codec.Decode(data)
}

// Close releases the socket. It is safe to call more than once.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.closeErr = e.sock.Close()
	})
	return e.closeErr
}

// Closed reports whether the endpoint can no longer be used.
func (e *Endpoint) Closed() bool {
	return e.closed.Load()
}

func (e *Endpoint) Addr() string {
	return e.sock.Addr()
}

func (e *Endpoint) Timeout() time.Duration {
	return e.timeout
}
