package launch

import (
	"errors"
	"fmt"
)

// Status is the outcome reported by a device after Synchronize.
type Status int

const (
	StatusSuccess Status = iota
	StatusInvalidConfiguration
	StatusNoDevice
	StatusLaunchFailure
	StatusInvalidRecord
	StatusReadbackFailure
)

var statusText = map[Status]string{
	StatusSuccess:              "no error",
	StatusInvalidConfiguration: "invalid launch configuration",
	StatusNoDevice:             "no compute-capable device is available",
	StatusLaunchFailure:        "unspecified launch failure",
	StatusInvalidRecord:        "kernel produced an invalid lane record",
	StatusReadbackFailure:      "failed to read results back from the device",
}

// String returns the platform description of the status.
func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return text
	}
	return fmt.Sprintf("unknown status %d", int(s))
}

// Error is a device-reported failure.
type Error struct {
	Status Status
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Status.String()
	}
	return e.Status.String() + ": " + e.Detail
}

// Errorf builds an *Error with a formatted detail.
func Errorf(status Status, format string, args ...any) error {
	return &Error{Status: status, Detail: fmt.Sprintf(format, args...)}
}

// StatusOf maps err to a Status. Errors that do not carry a status are
// reported as launch failures.
func StatusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Status
	}
	return StatusLaunchFailure
}
