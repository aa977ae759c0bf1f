// Package apierr defines the error taxonomy shared by the remote clients,
// the attach/prune engine, and the HTTP facade.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the engine reasons about it, per the
// error handling design: batch mutations never raise, they resolve to a
// per-item Outcome carrying one of these kinds.
type Kind string

const (
	KindInput     Kind = "input_error"
	KindNotFound  Kind = "not_found"
	KindTransport Kind = "transport"
	KindConflict  Kind = "conflict"
	KindEngine    Kind = "engine_error"
	KindUnknown   Kind = "unknown"
)

// Error wraps a Kind with a human-readable message and the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Outcome is the result of one item in a batch of remote mutations. A batch
// of N mutations always yields N outcomes; one item's failure never changes
// the outcome of another.
type Outcome struct {
	ToolID  string `json:"tool_id"`
	Name    string `json:"name,omitempty"`
	OK      bool   `json:"ok"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// OutcomeOK builds a successful Outcome.
func OutcomeOK(toolID, name string) Outcome {
	return Outcome{ToolID: toolID, Name: name, OK: true}
}

// OutcomeErr builds a failed Outcome from err.
func OutcomeErr(toolID, name string, err error) Outcome {
	return Outcome{
		ToolID:  toolID,
		Name:    name,
		OK:      false,
		Kind:    string(KindOf(err)),
		Message: err.Error(),
	}
}
