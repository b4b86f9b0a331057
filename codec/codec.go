package codec

import (
	"fmt"

	"mini-reqrep/message"
)

type CodecType byte

const (
	CodecTypeJSON CodecType = 0
)

// Codec turns a Message into wire bytes and back.
type Codec interface {
	Encode(m message.Message) ([]byte, error)
	Decode(data []byte) (message.Message, error)
	Type() CodecType
}

func (t CodecType) String() string {
	if t == CodecTypeJSON {
		return "json"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

// ParseCodecType maps a configured codec name to its type. Empty means JSON.
func ParseCodecType(name string) (CodecType, error) {
	switch name {
	case "json", "":
		return CodecTypeJSON, nil
	default:
		return 0, fmt.Errorf("unsupported codec %q", name)
	}
}

// GetCodec returns the codec that writes codecType on the wire.
func GetCodec(codecType CodecType) (Codec, error) {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported codec type: %d", codecType)
}

// ProtocolDecodeError reports a payload that could not be deserialized.
type ProtocolDecodeError struct {
	Codec CodecType
	Err   error
}

func (e *ProtocolDecodeError) Error() string {
	return fmt.Sprintf("decode payload (codec %d): %v", e.Codec, e.Err)
}

func (e *ProtocolDecodeError) Unwrap() error {
	return e.Err
}
