package recording

import (
	"errors"
	"fmt"
)

// AudioErrorKind classifies microphone failures.
type AudioErrorKind int

const (
	PermissionDenied AudioErrorKind = iota + 1
	DeviceUnavailable
	FormatUnsupported
)

func (k AudioErrorKind) String() string {
	switch k {
	case PermissionDenied:
		return "permission denied"
	case DeviceUnavailable:
		return "device unavailable"
	case FormatUnsupported:
		return "format unsupported"
	}
	return fmt.Sprintf("audio error %d", int(k))
}

// AudioError is fatal to the session that observed it.
type AudioError struct {
	Kind AudioErrorKind
	Err  error
}

func (e *AudioError) Error() string {
	if e == nil {
		return "audio error"
	}
	if e.Err == nil {
		return "audio: " + e.Kind.String()
	}
	return fmt.Sprintf("audio: %s: %v", e.Kind, e.Err)
}

func (e *AudioError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewAudioError(kind AudioErrorKind, err error) error {
	return &AudioError{Kind: kind, Err: err}
}

// IsAudioError reports whether err is an AudioError of the given kind.
// A zero kind matches any AudioError.
func IsAudioError(err error, kind AudioErrorKind) bool {
	var ae *AudioError
	if !errors.As(err, &ae) {
		return false
	}
	return kind == 0 || ae.Kind == kind
}
