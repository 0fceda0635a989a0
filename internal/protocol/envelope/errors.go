package envelope

import (
	"errors"
	"fmt"
)

var ErrMalformedFrame = errors.New("envelope: malformed frame")

// MalformedFrameError keeps the raw bytes of a frame that failed to decode.
type MalformedFrameError struct {
	Raw    []byte
	Reason string
	Err    error
}

func (e *MalformedFrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedFrame, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedFrame, e.Reason)
}

func (e *MalformedFrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedFrame}
	}
	return []error{ErrMalformedFrame, e.Err}
}

func malformed(raw []byte, reason string, err error) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return &MalformedFrameError{Raw: cp, Reason: reason, Err: err}
}
