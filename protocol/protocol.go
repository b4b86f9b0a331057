// Package protocol implements the binary frame used by the plain TCP transport.
//
// A TCP stream has no message boundaries, so every message is prefixed with a fixed 14-byte
// header carrying the body length. The receiver reads the header first, then exactly that
// many body bytes.
//
// Frame format:
//
//	0      3  4  5  6         10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │ct│mt│   seq   │ bodyLen │    body ...    │
//	│ zrr  │01│  │  │ uint32  │ uint32  │ bodyLen bytes  │
//	└──────┴──┴──┴──┴─────────┴─────────┴───────────────┘
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "zrr" (request/reply).
// Rejects peers that speak something else on the port.
const (
	MagicNumber byte = 0x7a // 'z'
	MagicByte2  byte = 0x72 // 'r'
	MagicByte3  byte = 0x72 // 'r'
	Version     byte = 0x01
	HeaderSize  int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize bounds a single frame so a corrupt length cannot exhaust memory.
	MaxBodySize uint32 = 16 << 20
)

// MsgType distinguishes request and reply frames.
type MsgType byte

const (
	MsgTypeRequest MsgType = 0 // Client → Server
	MsgTypeReply   MsgType = 1 // Server → Client
)

// CodecTypeJSON is the default codec byte, mirrored from the codec package to avoid a
// circular import.
const (
	CodecTypeJSON byte = 0
)

// Header represents the fixed 14-byte frame header.
type Header struct {
	CodecType byte    // Serialization format, see codec.CodecType
	MsgType   MsgType // Request or Reply
	Seq       uint32  // A reply carries the seq of the request it answers
	BodyLen   uint32
}

// Encode writes a complete frame (header + body) to w.
// Header and body go out in one Write so a frame is never split by a concurrent writer.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))

	// Magic number: 3 bytes, protocol identification
	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	// Version: 1 byte
	buf[3] = Version
	// Codec type: 1 byte, chosen by the socket
	buf[4] = h.CodecType
	// Message type: 1 byte
	buf[5] = byte(h.MsgType)
	// Sequence number: 4 bytes, big-endian (network byte order)
	binary.BigEndian.PutUint32(buf[6:10], h.Seq)
	// Body length: 4 bytes, taken from body rather than h.BodyLen
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame (header + body) from r.
// It validates the magic number, version, message type and body size. The codec byte is
// returned as read; sockets compare it against their own codec.
// io.ReadFull guarantees exactly N bytes are read, so partial reads never leak through.
func Decode(r io.Reader) (*Header, []byte, error) {
	// Step 1: Read the fixed 14-byte header
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	// Step 2: Validate magic number, rejecting peers that speak another protocol
	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}

	// Step 3: Validate version
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}

	// Step 4: Validate message type
	msgType := headerBuf[5]
	if msgType != byte(MsgTypeRequest) && msgType != byte(MsgTypeReply) {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	// Step 5: Parse sequence number and body length
	seq := binary.BigEndian.Uint32(headerBuf[6:10])
	bodyLen := binary.BigEndian.Uint32(headerBuf[10:14])
	if bodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("frame body too large: %d bytes", bodyLen)
	}

	// Step 6: Read exactly bodyLen bytes, the frame boundary on the stream
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		Seq:       seq,
		BodyLen:   bodyLen,
	}, body, nil
}
