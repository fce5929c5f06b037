package array

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failures a Mediator reports
type ErrorKind int

const (
	KindHostNotFound ErrorKind = iota + 1
	KindMultipleHostsFound
	KindPermissionDenied
	KindVolumeNotFound
	KindLunAlreadyInUse
	KindMappingFailed
	KindUnmappingFailed
	KindVolumeAlreadyUnmapped
	KindConnectionFailed
)

var kindNames = map[ErrorKind]string{
	KindHostNotFound:          "HostNotFound",
	KindMultipleHostsFound:    "MultipleHostsFound",
	KindPermissionDenied:      "PermissionDenied",
	KindVolumeNotFound:        "VolumeNotFound",
	KindLunAlreadyInUse:       "LunAlreadyInUse",
	KindMappingFailed:         "MappingFailed",
	KindUnmappingFailed:       "UnmappingFailed",
	KindVolumeAlreadyUnmapped: "VolumeAlreadyUnmapped",
	KindConnectionFailed:      "ConnectionFailed",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Sentinel errors returned by the connection manager before a session exists
var (
	// ErrUnsupportedArrayType indicates no family is registered for the volume's array type
	ErrUnsupportedArrayType = errors.New("unsupported array type")

	// ErrArrayUnavailable indicates the endpoint breaker is open
	ErrArrayUnavailable = errors.New("array temporarily unavailable")
)

// Error is the single error type returned by Mediator implementations
type Error struct {
	Kind    ErrorKind
	Message string
	Volume  string
	Host    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Volume != "" {
		msg = fmt.Sprintf("%s (volume=%s)", msg, e.Volume)
	}
	if e.Host != "" {
		msg = fmt.Sprintf("%s (host=%s)", msg, e.Host)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a Mediator error of the given kind
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithVolume records the volume the error concerns
func (e *Error) WithVolume(volume string) *Error {
	e.Volume = volume
	return e
}

// WithHost records the host the error concerns
func (e *Error) WithHost(host string) *Error {
	e.Host = host
	return e
}

// Wrap attaches the underlying cause
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf extracts the kind of a Mediator error anywhere in the chain
func KindOf(err error) (ErrorKind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
