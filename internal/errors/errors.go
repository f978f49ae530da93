package errors

import (
	"fmt"
)

type ErrorType string

const (
	ErrorTypeConfig          ErrorType = "CONFIG"
	ErrorTypeSource          ErrorType = "SOURCE"
	ErrorTypeEngine          ErrorType = "ENGINE"
	ErrorTypeSnapshotCorrupt ErrorType = "SNAPSHOT_CORRUPT"
)

type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	NodeID  string    `json:"node_id,omitempty"`
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on error type, so callers can use errors.Is with a bare
// &Error{Type: ...} as the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func Config(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Message: fmt.Sprintf(format, args...),
	}
}

func Source(nodeID string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeSource,
		Message: cause.Error(),
		NodeID:  nodeID,
		Cause:   cause,
	}
}

func Engine(nodeID string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeEngine,
		Message: cause.Error(),
		NodeID:  nodeID,
		Cause:   cause,
	}
}

func SnapshotCorrupt(format string, args ...any) *Error {
	return &Error{
		Type:    ErrorTypeSnapshotCorrupt,
		Message: fmt.Sprintf(format, args...),
	}
}

// TypeOf walks the wrap chain and reports the taxonomy type of err,
// or "" if no taxonomy error is found.
func TypeOf(err error) ErrorType {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Type
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}
