package session

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure of the share flow.
type Kind string

// Failure kinds.  Each has a matching sentinel below for errors.Is.
const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindIllegalState       Kind = "illegal_state"
	KindAuthentication     Kind = "authentication_failed"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountRestricted  Kind = "account_restricted"
	KindProtocol           Kind = "protocol_error"
	KindTemplateValidation Kind = "template_validation_failed"
	KindInvalidAppKey      Kind = "invalid_app_key"
	KindSessionExpired     Kind = "session_expired"
	KindRoomNotFound       Kind = "room_not_found"
)

// Sentinels matched by (*Error).Is.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrIllegalState         = errors.New("client not initialised")
	ErrAuthenticationFailed = errors.New("login page request failed")
	ErrInvalidCredentials   = errors.New("email or password is incorrect")
	ErrAccountRestricted    = errors.New("account requires additional verification")
	ErrProtocol             = errors.New("unexpected response from service")
	ErrTemplateValidation   = errors.New("template rejected or origin not registered for app key")
	ErrInvalidAppKey        = errors.New("app key is not valid")
	ErrSessionExpired       = errors.New("login session expired; log in again")
	ErrRoomNotFound         = errors.New("chat room not found")
)

var sentinels = map[Kind]error{
	KindInvalidArgument:    ErrInvalidArgument,
	KindIllegalState:       ErrIllegalState,
	KindAuthentication:     ErrAuthenticationFailed,
	KindInvalidCredentials: ErrInvalidCredentials,
	KindAccountRestricted:  ErrAccountRestricted,
	KindProtocol:           ErrProtocol,
	KindTemplateValidation: ErrTemplateValidation,
	KindInvalidAppKey:      ErrInvalidAppKey,
	KindSessionExpired:     ErrSessionExpired,
	KindRoomNotFound:       ErrRoomNotFound,
}

// maxBodyInMessage bounds how much of a response body Error() repeats.
const maxBodyInMessage = 256

// Error is the error type returned by New, Login and Send.
type Error struct {
	Kind Kind
	// Op is the step that failed, e.g. "login/authenticate".
	Op string
	// StatusCode is the HTTP status involved, when there was one.
	StatusCode int
	// Body is the raw response body for kinds where the server's own
	// explanation matters (account restrictions, protocol errors).
	Body string
	// Room is the requested room for KindRoomNotFound.
	Room string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("session: ")
	b.WriteString(e.Op)
	b.WriteString(": ")
	if s, ok := sentinels[e.Kind]; ok {
		b.WriteString(s.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Room != "" {
		fmt.Fprintf(&b, " (room %q)", e.Room)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		body := e.Body
		if len(body) > maxBodyInMessage {
			body = body[:maxBodyInMessage] + "..."
		}
		fmt.Fprintf(&b, ": %s", body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
