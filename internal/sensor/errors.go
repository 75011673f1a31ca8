package sensor

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers write failures, closed ports and missing replies.
	ErrTransport = errors.New("sensor transport error")
	// ErrProtocolFormat covers replies that are not a well formed reading.
	ErrProtocolFormat = errors.New("sensor protocol format error")
)

// ErrorKind classifies a CommError.
type ErrorKind int

const (
	KindTimeout ErrorKind = iota + 1
	KindWrite
	KindClosed
	KindFraming
	KindParse
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindWrite:
		return "write"
	case KindClosed:
		return "closed"
	case KindFraming:
		return "framing"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinel returns ErrTransport or ErrProtocolFormat for the kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindFraming, KindParse:
		return ErrProtocolFormat
	default:
		return ErrTransport
	}
}

// CommError is returned by Client.Poll for every failed exchange.
type CommError struct {
	Kind ErrorKind
	Err  error
}

func (e *CommError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v (%s)", e.Kind.Sentinel(), e.Kind)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind.Sentinel(), e.Kind, e.Err)
}

func (e *CommError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so
// errors.Is(err, ErrTransport) works without wrapping both.
func (e *CommError) Is(target error) bool {
	return target == e.Kind.Sentinel()
}
