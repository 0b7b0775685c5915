// Package apierr defines the error taxonomy surfaced by the request layer.
//
// Every failure that leaves the dispatcher is an *Error carrying a Category
// and a Retryable flag. The transport builds the *Error once, at the point
// where the HTTP status or network failure is observed; downstream code only
// inspects it with errors.As and never re-derives it from message text.
package apierr

import (
	"errors"
	"fmt"
)

// Category is a stable error class callers can switch on.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNetwork
	CategoryTimeout
	CategoryAuth
	CategoryPermission
	CategoryNotFound
	CategoryServer
)

var categoryNames = map[Category]string{
	CategoryUnknown:    "unknown",
	CategoryNetwork:    "network",
	CategoryTimeout:    "timeout",
	CategoryAuth:       "auth",
	CategoryPermission: "permission",
	CategoryNotFound:   "not_found",
	CategoryServer:     "server",
}

// String returns the stable category name.
func (c Category) String() string {
	if s, ok := categoryNames[c]; ok {
		return s
	}
	return "unknown"
}

// Retryable reports whether re-attempting may succeed without caller action.
func (c Category) Retryable() bool {
	switch c {
	case CategoryAuth, CategoryPermission, CategoryNotFound:
		return false
	default:
		return true
	}
}

// ErrNetworkUnavailable marks a call that could not reach the network at all,
// for example because the device is offline and nothing was cached.
var ErrNetworkUnavailable = errors.New("network unavailable")

// Error is a classified failure.
type Error struct {
	Category  Category
	Message   string
	Retryable bool
	// Status is the HTTP status when the server answered, 0 otherwise.
	Status int
	Err    error
}

// New builds an Error with the retryable flag implied by the category.
func New(category Category, message string, err error) *Error {
	return &Error{
		Category:  category,
		Message:   message,
		Retryable: category.Retryable(),
		Err:       err,
	}
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Category, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by category, so errors.Is(err, apierr.Auth)
// style checks work against the sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Status == 0 && t.Category == e.Category
}

// Category sentinels for errors.Is.
var (
	Network    = &Error{Category: CategoryNetwork, Retryable: true}
	Timeout    = &Error{Category: CategoryTimeout, Retryable: true}
	Auth       = &Error{Category: CategoryAuth}
	Permission = &Error{Category: CategoryPermission}
	NotFound   = &Error{Category: CategoryNotFound}
	Server     = &Error{Category: CategoryServer, Retryable: true}
	Unknown    = &Error{Category: CategoryUnknown, Retryable: true}
)

// CategoryOf returns the category of err, classifying it if needed.
func CategoryOf(err error) Category {
	if ce := Classify(err); ce != nil {
		return ce.Category
	}
	return CategoryUnknown
}

// IsRetryable is a convenience checker.
func IsRetryable(err error) bool {
	ce := Classify(err)
	return ce != nil && ce.Retryable
}
