package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"mini-reqrep/message"
)

var errTrailingData = errors.New("unexpected data after JSON value")

// JSONCodec uses Go's standard library encoding/json for serialization.
// Objects decode to map[string]any and numbers to json.Number, so integers of any size
// survive a decode/encode round trip unchanged.
type JSONCodec struct{}

func (c *JSONCodec) Encode(m message.Message) ([]byte, error) {
	return json.Marshal(m)
}

func (c *JSONCodec) Decode(data []byte) (message.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ProtocolDecodeError{Codec: CodecTypeJSON, Err: err}
	}
	// One payload carries exactly one value.
	if _, err := dec.Token(); err != io.EOF {
		return nil, &ProtocolDecodeError{Codec: CodecTypeJSON, Err: errTrailingData}
	}
	return v, nil
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
