package envelope

import (
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates the four envelope shapes.
type Kind string

const (
	KindCall     Kind = "call"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
	KindError    Kind = "error"
)

func (k Kind) Valid() bool {
	switch k {
	case KindCall, KindResponse, KindEvent, KindError:
		return true
	}
	return false
}

// FrameType mirrors the WebSocket data frame opcodes.
type FrameType int

const (
	FrameText   FrameType = 1
	FrameBinary FrameType = 2
)

// Payload is schema-agnostic structured data carried by every envelope.
//
// Values follow the JSON data model after a trip over the wire: numbers
// decode as float64, objects as map[string]any, and arrays as []any. A Go int
// sent as 10 comes back as float64(10).
type Payload map[string]any

// Clone returns a deep copy of nested objects and arrays. Scalars are shared.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Payload:
		return t.Clone()
	case map[string]any:
		return map[string]any(Payload(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// ErrorBody is the host-reported failure carried by error frames.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is one wire message.
type Envelope struct {
	Kind   Kind       `json:"kind"`
	ID     string     `json:"id,omitempty"`
	Method string     `json:"method,omitempty"`
	Topic  string     `json:"topic,omitempty"`
	Data   Payload    `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

var ErrInvalidEnvelope = errors.New("envelope: invalid envelope")

func NewCall(id, method string, data Payload) Envelope {
	return Envelope{Kind: KindCall, ID: id, Method: method, Data: data}
}

func NewResponse(id string, data Payload) Envelope {
	return Envelope{Kind: KindResponse, ID: id, Data: data}
}

func NewEvent(topic string, data Payload) Envelope {
	return Envelope{Kind: KindEvent, Topic: topic, Data: data}
}

func NewError(id string, code int, message string) Envelope {
	return Envelope{Kind: KindError, ID: id, Error: &ErrorBody{Code: code, Message: message}}
}

// Validate checks the required fields for the envelope kind.
func (e Envelope) Validate() error {
	if strings.TrimSpace(string(e.Kind)) == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEnvelope)
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEnvelope, e.Kind)
	}
	switch e.Kind {
	case KindCall:
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: call missing id", ErrInvalidEnvelope)
		}
		if strings.TrimSpace(e.Method) == "" {
			return fmt.Errorf("%w: call missing method", ErrInvalidEnvelope)
		}
	case KindResponse:
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: response missing id", ErrInvalidEnvelope)
		}
	case KindError:
		if strings.TrimSpace(e.ID) == "" {
			return fmt.Errorf("%w: error missing id", ErrInvalidEnvelope)
		}
		if e.Error == nil {
			return fmt.Errorf("%w: error missing error body", ErrInvalidEnvelope)
		}
	case KindEvent:
		if strings.TrimSpace(e.Topic) == "" {
			return fmt.Errorf("%w: event missing topic", ErrInvalidEnvelope)
		}
		if e.ID != "" {
			return fmt.Errorf("%w: event must not carry id", ErrInvalidEnvelope)
		}
	}
	return nil
}

// Name is the method for calls and the topic for events.
func (e Envelope) Name() string {
	if e.Kind == KindEvent {
		return e.Topic
	}
	return e.Method
}
