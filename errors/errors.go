package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// ErrorClass represents the classification of errors for handling purposes.
type ErrorClass int

const (
	// ClassTransient represents temporary failures that may be retried
	// (timeouts, 5xx, 408/429, generic network failures).
	ClassTransient ErrorClass = iota
	// ClassPermanent represents failures that must never be retried
	// (other 4xx, malformed input, cancelled work).
	ClassPermanent
	// ClassQuota represents a storage tier rejecting a write for capacity
	// reasons. Handled internally by cascading to the next tier.
	ClassQuota
	// ClassRendering represents a UI subtree failure caught by a boundary.
	ClassRendering
)

// String returns the string representation of ErrorClass.
func (ec ErrorClass) String() string {
	switch ec {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassQuota:
		return "quota"
	case ClassRendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions.
var (
	// Storage errors
	ErrKeyNotFound     = errors.New("key not found")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrEntryTooLarge   = errors.New("entry exceeds tier capacity")
	ErrTierUnavailable = errors.New("storage tier unavailable")
	ErrTierClosed      = errors.New("storage tier closed")

	// Lifecycle errors
	ErrAlreadyStarted = errors.New("already started")
	ErrNotStarted     = errors.New("not started")
	ErrAlreadyStopped = errors.New("already stopped")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Recovery errors
	ErrSnapshotNotFound   = errors.New("session snapshot not found")
	ErrSnapshotExpired    = errors.New("session snapshot exceeds recovery age")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

	// Loader errors
	ErrUnknownResource    = errors.New("resource not registered")
	ErrUnsupportedType    = errors.New("unsupported resource type")
	ErrResourceFailed     = errors.New("resource load failed")
	ErrVisibilityDisabled = errors.New("visibility detection unavailable")
)

// ClassifiedError wraps a raw failure with its classification and the
// structured fields retry decisions are made from.
type ClassifiedError struct {
	Class      ErrorClass
	Err        error
	Message    string
	Component  string
	Operation  string
	HTTPStatus int           // 0 when the failure was not HTTP-shaped
	Code       string        // machine-readable code, e.g. "TIMEOUT"
	Retryable  bool          // derived once at classification time
	RetryAfter time.Duration // server-suggested delay, 0 when absent
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// Classify derives a ClassifiedError from a raw failure. The derivation is
// pure: HTTP status, timeout shape and message patterns fully determine the
// result. Already-classified errors pass through unchanged.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	var he *HTTPError
	if errors.As(err, &he) {
		return classifyHTTP(err, he)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Class: ClassTransient, Err: err, Code: "TIMEOUT", Retryable: true,
		}
	}
	if errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Class: ClassPermanent, Err: err, Code: "CANCELLED", Retryable: false,
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		code := "NETWORK"
		if netErr.Timeout() {
			code = "TIMEOUT"
		}
		return &ClassifiedError{
			Class: ClassTransient, Err: err, Code: code, Retryable: true,
		}
	}
	if errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrEntryTooLarge) {
		return &ClassifiedError{
			Class: ClassQuota, Err: err, Code: "QUOTA_EXCEEDED", Retryable: false,
		}
	}

	return classifyByMessage(err)
}

// classifyHTTP maps an HTTP status onto the retry taxonomy: 408, 429 and
// all 5xx are transient; every other 4xx is permanent.
func classifyHTTP(err error, he *HTTPError) *ClassifiedError {
	retryable := he.Status == 408 || he.Status == 429 || he.Status >= 500
	class := ClassPermanent
	code := "HTTP_CLIENT_ERROR"
	if retryable {
		class = ClassTransient
		code = "HTTP_RETRYABLE"
	}
	if he.Code != "" {
		code = he.Code
	}
	return &ClassifiedError{
		Class:      class,
		Err:        err,
		HTTPStatus: he.Status,
		Code:       code,
		Retryable:  retryable,
		RetryAfter: he.RetryAfter,
	}
}

// classifyByMessage falls back to well-known substrings for errors that
// carry no structured shape. Unknown errors default to transient so the
// retry engine gets a chance; malformed-input patterns are permanent.
func classifyByMessage(err error) *ClassifiedError {
	msg := strings.ToLower(err.Error())

	permanentPatterns := []string{
		"invalid", "malformed", "parse", "unmarshal", "decode",
		"unsupported", "not registered",
	}
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return &ClassifiedError{
				Class: ClassPermanent, Err: err, Code: "INVALID_INPUT", Retryable: false,
			}
		}
	}

	transientPatterns := []string{
		"timeout", "timed out", "connection", "network", "temporary",
		"unavailable", "busy", "reset by peer", "broken pipe",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return &ClassifiedError{
				Class: ClassTransient, Err: err, Code: "NETWORK", Retryable: true,
			}
		}
	}

	return &ClassifiedError{
		Class: ClassTransient, Err: err, Code: "UNKNOWN", Retryable: true,
	}
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain matching target's type.
func As(err error, target any) bool { return errors.As(err, target) }

// IsRetryable reports whether err classifies as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable
}

// IsQuota reports whether err is a storage-capacity rejection.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ClassQuota
	}
	return errors.Is(err, ErrQuotaExceeded) || errors.Is(err, ErrEntryTooLarge)
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, method, action string) error {
	return wrapClassified(ClassTransient, true, err, component, method, action)
}

// WrapPermanent wraps an error as permanent with context.
func WrapPermanent(err error, component, method, action string) error {
	return wrapClassified(ClassPermanent, false, err, component, method, action)
}

// WrapQuota wraps an error as a storage-capacity rejection with context.
func WrapQuota(err error, component, method, action string) error {
	return wrapClassified(ClassQuota, false, err, component, method, action)
}

func wrapClassified(class ErrorClass, retryable bool, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
		Retryable: retryable,
	}
}
