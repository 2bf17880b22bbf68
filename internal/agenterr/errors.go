// Package agenterr defines the error taxonomy used at every boundary of the
// agent: control-transport replies, startup failures, and platform errors all
// carry one of the exact kind strings named below.
package agenterr

import "fmt"

// Kind is one of the exact lowercase snake_case strings the control protocol
// uses in an error reply's "type" field.
type Kind string

const (
	KindParseError           Kind = "parse_error"
	KindSerializationError   Kind = "serialization_error"
	KindInvalidState         Kind = "invalid_state"
	KindNetworkNotFound      Kind = "network_not_found"
	KindConfigError          Kind = "config_error"
	KindPlatformError        Kind = "platform_error"
	KindInternalError        Kind = "internal_error"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindPermissionDenied     Kind = "permission_denied"
)

// Error is the concrete error type threaded through the core. Kind
// determines how the control transport reports it; Cause, when present, is
// preserved for logging and errors.Is/As but never included verbatim in a
// control reply (the Message is what callers see).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is compare by Kind only: a target *Error matches when its
// Kind equals e.Kind, whatever the Message or Cause. Targets of any other
// type never match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}
