// Package apperr defines the domain error taxonomy for the coordinator.
// Every rejected operation carries a stable machine-readable code plus a
// human message, and maps to an HTTP status through its kind.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindValidation Kind = iota // bad input shape
	KindNotFound               // missing or unauthorized-scoped entity
	KindConflict               // capacity, duplicate or race
	KindForbidden              // role or ownership violation
	KindUpstream               // external panel failure
)

// Error is a typed domain error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind to the status a caller-facing layer should
// return. Conflicts detected before any mutation are 400; the post-commit
// unique-violation race uses ConflictRetry which is 409.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		if e.Code == CodeConflictRetry || e.Code == CodeInviteeHasActiveSubscription {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Stable machine codes.
const (
	CodeFamilyDisabled               = "FAMILY_DISABLED"
	CodeInviteeNotFound              = "INVITEE_NOT_FOUND"
	CodeSelfInvite                   = "SELF_INVITE"
	CodeInviteeHasActiveSubscription = "INVITEE_HAS_ACTIVE_SUBSCRIPTION"
	CodeAlreadyInFamily              = "ALREADY_IN_FAMILY"
	CodeCapacityReached              = "CAPACITY_REACHED"
	CodeInviteAlreadyPending         = "INVITE_ALREADY_PENDING"
	CodeInviteNotFound               = "INVITE_NOT_FOUND"
	CodeInviteNotPending             = "INVITE_NOT_PENDING"
	CodeInviteExpired                = "INVITE_EXPIRED"
	CodeConflictRetry                = "CONFLICT_RETRY"
	CodeForbiddenDeviceDelete        = "FORBIDDEN_DEVICE_DELETE"
	CodeNotOwner                     = "NOT_OWNER"
	CodeNotMember                    = "NOT_MEMBER"
	CodeSelfRemove                   = "SELF_REMOVE"
	CodeMemberNotFound               = "MEMBER_NOT_FOUND"
	CodeDeviceNotFound               = "DEVICE_NOT_FOUND"
	CodeUserNotFound                 = "USER_NOT_FOUND"
	CodeInvalidHandle                = "INVALID_HANDLE"
	CodeNoActiveSubscription         = "NO_ACTIVE_SUBSCRIPTION"
	CodeInstanceNotFound             = "INSTANCE_NOT_FOUND"
	CodeInstanceExists               = "INSTANCE_EXISTS"
	CodeInstanceNotActive            = "INSTANCE_NOT_ACTIVE"
	CodeSubUserNotFound              = "SUB_USER_NOT_FOUND"
	CodeSubUserLimitReached          = "SUB_USER_LIMIT_REACHED"
	CodeRestartCooldown              = "RESTART_COOLDOWN"
	CodePanelUnavailable             = "PANEL_UNAVAILABLE"
)

// Validation builds a KindValidation error.
func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

// NotFound builds a KindNotFound error.
func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict builds a KindConflict error.
func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Forbidden builds a KindForbidden error.
func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

// Upstream wraps an external panel failure.
func Upstream(code, message string, err error) *Error {
	return &Error{Kind: KindUpstream, Code: code, Message: message, Err: err}
}

// Is reports whether err is an *Error with the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// KindOf returns the kind of err, or false when err is not an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
