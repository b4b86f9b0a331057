package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"mini-reqrep/protocol"
)

// frameReplySocket is the server side of the frame transport.
// It serves one connected peer at a time: when the current peer hangs up or sends a
// malformed frame, the connection is dropped and the next Recv accepts a new peer.
type frameReplySocket struct {
	ln        net.Listener
	addr      string
	codecType byte

	mu     sync.Mutex
	conn   net.Conn
	seq    uint32 // Seq of the last request, echoed on the reply
	closed bool
}

func listenFrame(ctx context.Context, port int, o socketOptions) (Socket, error) {
	addr := fmt.Sprintf(":%d", port)
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &frameReplySocket{ln: ln, addr: addr, codecType: o.codecType}, nil
}

func (s *frameReplySocket) Recv() ([]byte, error) {
	for {
		conn, err := s.peer()
		if err != nil {
			return nil, err
		}

		header, body, err := protocol.Decode(conn)
		if err != nil {
			// Peer gone or speaking garbage: drop it and wait for the next one.
			s.dropPeer(conn)
			continue
		}
		if header.MsgType != protocol.MsgTypeRequest || header.CodecType != s.codecType {
			s.dropPeer(conn)
			continue
		}

		s.mu.Lock()
		s.seq = header.Seq
		s.mu.Unlock()
		return body, nil
	}
}

// peer returns the connected peer, accepting a new one if there is none.
func (s *frameReplySocket) peer() (net.Conn, error) {
	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if conn != nil {
		return conn, nil
	}

	conn, err := s.ln.Accept()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return nil, net.ErrClosed
	}
	s.conn = conn
	return conn, nil
}

func (s *frameReplySocket) dropPeer(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *frameReplySocket) Send(payload []byte) error {
	s.mu.Lock()
	conn, seq := s.conn, s.seq
	s.mu.Unlock()
	if conn == nil {
		return ErrNoPeer
	}

	header := protocol.Header{
		CodecType: s.codecType,
		MsgType:   protocol.MsgTypeReply,
		Seq:       seq,
	}
	if err := protocol.Encode(conn, &header, payload); err != nil {
		s.dropPeer(conn)
		return err
	}
	return nil
}

func (s *frameReplySocket) Close() error {
	s.mu.Lock()
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return s.ln.Close()
}

func (s *frameReplySocket) Addr() string {
	return s.addr
}

// frameRequestSocket is the client side of the frame transport.
type frameRequestSocket struct {
	conn      net.Conn
	addr      string
	codecType byte
	seq       uint32 // Seq of the outstanding request
}

func dialFrame(ctx context.Context, host string, port int, o socketOptions) (Socket, error) {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Err: err}
	}
	return &frameRequestSocket{conn: conn, addr: addr, codecType: o.codecType}, nil
}

func (s *frameRequestSocket) Send(payload []byte) error {
	s.seq++
	header := protocol.Header{
		CodecType: s.codecType,
		MsgType:   protocol.MsgTypeRequest,
		Seq:       s.seq,
	}
	return protocol.Encode(s.conn, &header, payload)
}

func (s *frameRequestSocket) Recv() ([]byte, error) {
	header, body, err := protocol.Decode(s.conn)
	if err != nil {
		return nil, err
	}
	if header.MsgType != protocol.MsgTypeReply {
		return nil, fmt.Errorf("transport: expected reply frame, got type %d", header.MsgType)
	}
	if header.CodecType != s.codecType {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCodecMismatch, header.CodecType, s.codecType)
	}
	if header.Seq != s.seq {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrSequenceMismatch, header.Seq, s.seq)
	}
	return body, nil
}

func (s *frameRequestSocket) Close() error {
	err := s.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *frameRequestSocket) Addr() string {
	return s.addr
}
