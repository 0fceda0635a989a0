package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Codec converts envelopes to and from single WebSocket frames.
type Codec interface {
	Encode(Envelope) ([]byte, error)
	Decode([]byte) (Envelope, error)
	FrameType() FrameType
}

const (
	CodecJSON  = "json"
	CodecProto = "proto"
)

// CodecByName resolves a configured codec name; empty means JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecProto, "protobuf":
		return ProtoCodec{}, nil
	default:
		return nil, fmt.Errorf("envelope: unknown codec %q", name)
	}
}

// JSONCodec is the default text-frame codec.
type JSONCodec struct{}

func (JSONCodec) FrameType() FrameType { return FrameText }

func (JSONCodec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (JSONCodec) Decode(raw []byte) (Envelope, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Envelope{}, malformed(raw, "empty frame", nil)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, malformed(raw, "invalid json", err)
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, malformed(raw, "invalid envelope", err)
	}
	return env, nil
}
