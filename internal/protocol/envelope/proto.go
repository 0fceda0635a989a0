package envelope

import (
	"encoding/json"
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ProtoCodec carries the envelope as a binary google.protobuf.Struct.
type ProtoCodec struct{}

func (ProtoCodec) FrameType() FrameType { return FrameBinary }

func (ProtoCodec) Encode(env Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	fields := map[string]any{"kind": string(env.Kind)}
	if env.ID != "" {
		fields["id"] = env.ID
	}
	if env.Method != "" {
		fields["method"] = env.Method
	}
	if env.Topic != "" {
		fields["topic"] = env.Topic
	}
	if len(env.Data) > 0 {
		data, err := normalize(env.Data)
		if err != nil {
			return nil, fmt.Errorf("envelope: normalize data: %w", err)
		}
		fields["data"] = data
	}
	if env.Error != nil {
		fields["error"] = map[string]any{
			"code":    env.Error.Code,
			"message": env.Error.Message,
		}
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("envelope: build struct: %w", err)
	}
	return proto.Marshal(st)
}

func (ProtoCodec) Decode(raw []byte) (Envelope, error) {
	if len(raw) == 0 {
		return Envelope{}, malformed(raw, "empty frame", nil)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		return Envelope{}, malformed(raw, "invalid protobuf", err)
	}
	fields := st.AsMap()

	var env Envelope
	var ok bool
	if env.Kind, ok = stringField[Kind](fields, "kind"); !ok {
		return Envelope{}, malformed(raw, "kind is not a string", nil)
	}
	for key, dst := range map[string]*string{"id": &env.ID, "method": &env.Method, "topic": &env.Topic} {
		if *dst, ok = stringField[string](fields, key); !ok {
			return Envelope{}, malformed(raw, key+" is not a string", nil)
		}
	}
	if v, present := fields["data"]; present && v != nil {
		data, isMap := v.(map[string]any)
		if !isMap {
			return Envelope{}, malformed(raw, "data is not an object", nil)
		}
		env.Data = data
	}
	if v, present := fields["error"]; present && v != nil {
		body, isMap := v.(map[string]any)
		if !isMap {
			return Envelope{}, malformed(raw, "error is not an object", nil)
		}
		code, isNum := body["code"].(float64)
		if _, present := body["code"]; present && (!isNum || code != math.Trunc(code)) {
			return Envelope{}, malformed(raw, "error.code is not an integer", nil)
		}
		msg, isStr := stringField[string](body, "message")
		if !isStr {
			return Envelope{}, malformed(raw, "error.message is not a string", nil)
		}
		env.Error = &ErrorBody{Code: int(code), Message: msg}
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, malformed(raw, "invalid envelope", err)
	}
	return env, nil
}

func stringField[T ~string](fields map[string]any, key string) (T, bool) {
	v, present := fields[key]
	if !present || v == nil {
		return "", true
	}
	s, ok := v.(string)
	return T(s), ok
}

// normalize reduces arbitrary Go values to the JSON value space structpb accepts.
func normalize(p Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
