package transport

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
)

// zmqLinger is how long Close waits for a queued reply to reach the wire.
// zmq4 hands a REP reply to a writer goroutine and Close cancels it.
const zmqLinger = 200 * time.Millisecond

type zmqSocket struct {
	sck    zmq4.Socket
	addr   string
	linger time.Duration // zero on the request side

	// pending is set between a Send and the next Recv.
	pending atomic.Bool
}

func listenZMQ(ctx context.Context, port int) (Socket, error) {
	addr := fmt.Sprintf("tcp://*:%d", port)
	sck := zmq4.NewRep(ctx)
	if err := sck.Listen(addr); err != nil {
		sck.Close()
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &zmqSocket{sck: sck, addr: addr, linger: zmqLinger}, nil
}

func dialZMQ(ctx context.Context, host string, port int) (Socket, error) {
	addr := fmt.Sprintf("tcp://%s:%d", host, port)
	// A single attempt: connect failures surface immediately.
	sck := zmq4.NewReq(ctx, zmq4.WithDialerMaxRetries(0))
	if err := sck.Dial(addr); err != nil {
		sck.Close()
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return &zmqSocket{sck: sck, addr: addr}, nil
}

func (s *zmqSocket) Send(payload []byte) error {
	if err := s.sck.Send(zmq4.NewMsg(payload)); err != nil {
		return err
	}
	s.pending.Store(true)
	return nil
}

func (s *zmqSocket) Recv() ([]byte, error) {
	msg, err := s.sck.Recv()
	if err != nil {
		return nil, err
	}
	s.pending.Store(false)
	if len(msg.Frames) == 0 {
		return nil, ErrEmptyMessage
	}
	return msg.Frames[0], nil
}

func (s *zmqSocket) Close() error {
	if s.linger > 0 && s.pending.Load() {
		time.Sleep(s.linger)
	}
	return s.sck.Close()
}

func (s *zmqSocket) Addr() string {
	return s.addr
}
