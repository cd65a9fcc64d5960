package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures. The set is closed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindEncoding: the image could not be decoded or re-serialized
	KindEncoding
	// KindTransport: the endpoint could not be reached
	KindTransport
	// KindRemoteService: the endpoint answered with an error
	KindRemoteService
	// KindResponseShape: the answer lacks the expected content
	KindResponseShape
)

func (k ErrorKind) String() string {
	switch k {
	case KindEncoding:
		return "encoding"
	case KindTransport:
		return "transport"
	case KindRemoteService:
		return "remote_service"
	case KindResponseShape:
		return "response_shape"
	default:
		return "unknown"
	}
}

// ErrEmptyContent is returned when a model response has no content parts
var ErrEmptyContent = errors.New("response contains no content")

// Error is a pipeline failure tagged with its kind and the operation that failed
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError builds an *Error; a nil err yields nil
func NewError(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
