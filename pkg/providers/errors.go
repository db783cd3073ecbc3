package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Class is the dispatch-relevant failure category. It decides what the
// engine does with the credential that produced the failure.
type Class int

const (
	// ClassFatal means the credential or configuration itself is invalid.
	// The engine deactivates the credential and rotates.
	ClassFatal Class = iota

	// ClassTransient means the backend is temporarily overloaded or
	// unreachable. The engine rate-limits the credential and rotates.
	ClassTransient

	// ClassRejection means the backend declined to produce content for
	// policy reasons. Not a credential fault; never retried.
	ClassRejection

	// ClassCancelled means the caller's cancellation was observed.
	// Surfaced immediately with no credential mutation.
	ClassCancelled
)

// String returns the class name for logging.
func (c Class) String() string {
	switch c {
	case ClassFatal:
		return "fatal"
	case ClassTransient:
		return "transient"
	case ClassRejection:
		return "rejection"
	case ClassCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Code is the stable error code recorded on a credential and reported to
// the caller through the OnCredentialError callback.
type Code string

const (
	CodeInvalidCredential Code = "invalid_credential" // 401
	CodePermissionDenied  Code = "permission_denied"  // 403
	CodeModelNotFound     Code = "model_not_found"    // 404
	CodeBadRequest        Code = "bad_request"        // 400
	CodeBillingRequired   Code = "billing_required"   // 402
	CodeQuotaExceeded     Code = "quota_exceeded"     // 429
	CodeServerError       Code = "server_error"       // 5xx
	CodeNetworkIssue      Code = "network_issue"      // transport failure
	CodeRejected          Code = "rejected"           // content safety stop
	CodeCancelled         Code = "cancelled"          // caller cancellation
	CodeUnknown           Code = "unknown"            // unclassifiable
)

// ClassifiedError is the single error type adapters return. The dispatch
// engine's retry loop branches only on Class and Code; the original backend
// failure stays reachable through Unwrap for logging.
type ClassifiedError struct {
	// Provider is the backend family that produced the failure
	Provider Kind

	// Class is the dispatch-relevant category
	Class Class

	// Code is the stable error code
	Code Code

	// Status is the HTTP status where one was available (0 otherwise)
	Status int

	// Message is the backend's error text, possibly truncated
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider %q: %s (status %d): %s", e.Provider, e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("provider %q: %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether rotating to another credential can help.
func (e *ClassifiedError) Retryable() bool {
	return e.Class == ClassFatal || e.Class == ClassTransient
}

// ClassifyStatus maps an HTTP status code to a classified error:
//
//	400, 401, 402, 403, 404      -> Fatal (credential/configuration fault)
//	429, 5xx                     -> Transient (backend overload)
//	anything else                -> Fatal (unclassified conditions default
//	                                to fatal so misconfiguration is not
//	                                silently retried)
func ClassifyStatus(provider Kind, status int, message string) *ClassifiedError {
	e := &ClassifiedError{
		Provider: provider,
		Status:   status,
		Message:  message,
	}

	switch {
	case status == http.StatusBadRequest:
		e.Class, e.Code = ClassFatal, CodeBadRequest
	case status == http.StatusUnauthorized:
		e.Class, e.Code = ClassFatal, CodeInvalidCredential
	case status == http.StatusPaymentRequired:
		e.Class, e.Code = ClassFatal, CodeBillingRequired
	case status == http.StatusForbidden:
		e.Class, e.Code = ClassFatal, CodePermissionDenied
	case status == http.StatusNotFound:
		e.Class, e.Code = ClassFatal, CodeModelNotFound
	case status == http.StatusTooManyRequests:
		e.Class, e.Code = ClassTransient, CodeQuotaExceeded
	case status >= 500:
		e.Class, e.Code = ClassTransient, CodeServerError
	default:
		e.Class, e.Code = ClassFatal, CodeUnknown
	}

	return e
}

// ClassifyErr normalizes an arbitrary adapter failure. Already-classified
// errors pass through unchanged; cancellations and transport failures map
// to their classes; everything unrecognizable defaults to Fatal.
func ClassifyErr(provider Kind, err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Provider: provider,
			Class:    ClassCancelled,
			Code:     CodeCancelled,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ClassifiedError{
			Provider: provider,
			Class:    ClassTransient,
			Code:     CodeNetworkIssue,
			Message:  err.Error(),
			Cause:    err,
		}
	}

	return &ClassifiedError{
		Provider: provider,
		Class:    ClassFatal,
		Code:     CodeUnknown,
		Message:  err.Error(),
		Cause:    err,
	}
}

// NewRejection builds the non-retryable content-safety rejection error.
func NewRejection(provider Kind, message string) *ClassifiedError {
	return &ClassifiedError{
		Provider: provider,
		Class:    ClassRejection,
		Code:     CodeRejected,
		Message:  message,
	}
}

// AsClassified extracts a *ClassifiedError from an error chain.
func AsClassified(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	ok := errors.As(err, &ce)
	return ce, ok
}
