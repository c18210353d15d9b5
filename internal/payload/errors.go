package payload

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownTopic     = errors.New("unrecognized topic")
	ErrBadNumber        = errors.New("bad number")
	ErrMissingAlgorithm = errors.New("algorithm name missing in epoch")
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// DecodeError describes a payload that was dropped
type DecodeError struct {
	Topic   Topic
	Payload string
	Cause   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload %q: %v", e.Topic, e.Payload, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

func decodeError(topic Topic, raw []byte, cause error) *DecodeError {
	return &DecodeError{Topic: topic, Payload: string(raw), Cause: cause}
}
