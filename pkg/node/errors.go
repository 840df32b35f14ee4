package node

import (
	"errors"
)

var (
	// ErrInvalidHandle is returned for operations on a destroyed or unknown node
	ErrInvalidHandle = errors.New("invalid node handle")
	// ErrInvalidArgument is returned when an input cannot be applied
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSourceUnavailable is returned when no telemetry could be obtained.
	// The underlying telemetry error is wrapped alongside it.
	ErrSourceUnavailable = errors.New("telemetry source unavailable")
	// ErrSerialization is returned when a descriptor cannot be encoded
	ErrSerialization = errors.New("capability serialization failed")
)
