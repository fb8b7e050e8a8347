// Package autherr defines the error taxonomy shared by every auth flow.
// Errors are typed by kind, not by message text; callers match kinds with
// errors.Is and read the user-facing message with errors.As.
package autherr

import "fmt"

type Kind int

const (
	KindNotFound Kind = iota + 1
	KindDuplicateEmail
	KindUnauthorized
	KindForbidden
	KindInvalidCredentials
	KindNotificationFailed
)

// Error carries a kind and a human-readable message. Two Errors match under
// errors.Is when their kinds are equal, regardless of message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrDuplicateEmail     = &Error{Kind: KindDuplicateEmail, Message: "email must be unique"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "Unauthorized"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "forbidden"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Email or password invalid"}
	ErrNotificationFailed = &Error{Kind: KindNotificationFailed, Message: "failed to send notification"}
)

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func DuplicateEmailf(format string, args ...any) error {
	return &Error{Kind: KindDuplicateEmail, Message: fmt.Sprintf(format, args...)}
}

func Unauthorizedf(format string, args ...any) error {
	return &Error{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidCredentialsf(format string, args ...any) error {
	return &Error{Kind: KindInvalidCredentials, Message: fmt.Sprintf(format, args...)}
}

func NotificationFailedf(format string, args ...any) error {
	return &Error{Kind: KindNotificationFailed, Message: fmt.Sprintf(format, args...)}
}
