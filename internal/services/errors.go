package services

import (
	"errors"
	"fmt"
)

// ErrForbidden marks a ValidationError caused by the caller lacking rights on
// the specific object (not owning the apartment, not being the signer).
var ErrForbidden = errors.New("permission denied")

// ValidationError is a caller mistake; retrying the same request will not help.
type ValidationError struct {
	Message string
	err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

func NewValidationError(msg string) error {
	return &ValidationError{Message: msg}
}

func forbidden(msg string) error {
	return &ValidationError{Message: msg, err: ErrForbidden}
}

// NotFoundError means the referenced entity does not exist or has no document.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string {
	return e.Message
}

func notFound(format string, args ...interface{}) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// SigningProviderError wraps a failure of the e-signature provider, including
// responses that lack the expected signature metadata.
type SigningProviderError struct {
	err error
}

func (e *SigningProviderError) Error() string {
	return "signing provider: " + e.err.Error()
}

func (e *SigningProviderError) Unwrap() error {
	return e.err
}

func NewSigningProviderError(err error) error {
	return &SigningProviderError{err: err}
}

// UpstreamUnavailableError wraps a failure of the document store.
type UpstreamUnavailableError struct {
	Service string
	err     error
}

func (e *UpstreamUnavailableError) Error() string {
	return e.Service + " unavailable: " + e.err.Error()
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.err
}

func NewUpstreamUnavailableError(service string, err error) error {
	return &UpstreamUnavailableError{Service: service, err: err}
}

// SigningTimeoutError means the signed artifact was not available after every
// polling attempt. The contract stays SENT and the caller may poll again.
type SigningTimeoutError struct {
	SignatureRequestID string
	Attempts           int
	Last               error
}

func (e *SigningTimeoutError) Error() string {
	msg := fmt.Sprintf("signed document for request %s not available after %d attempts", e.SignatureRequestID, e.Attempts)
	if e.Last != nil {
		msg += ": " + e.Last.Error()
	}
	return msg
}

func (e *SigningTimeoutError) Unwrap() error {
	return e.Last
}

// IsValidation returns true if the error is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsForbidden returns true if the error is an object-level permission failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsSigningProvider(err error) bool {
	var sp *SigningProviderError
	return errors.As(err, &sp)
}

func IsUpstreamUnavailable(err error) bool {
	var up *UpstreamUnavailableError
	return errors.As(err, &up)
}

func IsSigningTimeout(err error) bool {
	var st *SigningTimeoutError
	return errors.As(err, &st)
}
