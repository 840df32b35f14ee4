package node

import (
	"errors"
)

// Status is the stable result code of the handle boundary
type Status int32

const (
	StatusOK                   Status = 0
	StatusInvalidArgument      Status = 1
	StatusSourceUnavailable    Status = 2
	StatusInvalidHandle        Status = 3
	StatusSerializationFailure Status = 4
	StatusInternal             Status = 99
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusSourceUnavailable:
		return "source_unavailable"
	case StatusInvalidHandle:
		return "invalid_handle"
	case StatusSerializationFailure:
		return "serialization_failure"
	default:
		return "internal"
	}
}

// StatusOf maps an error returned by this package to its Status
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, ErrInvalidHandle):
		return StatusInvalidHandle
	case errors.Is(err, ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, ErrSourceUnavailable):
		return StatusSourceUnavailable
	case errors.Is(err, ErrSerialization):
		return StatusSerializationFailure
	default:
		return StatusInternal
	}
}
