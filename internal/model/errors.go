package model

import (
	"errors"
	"fmt"
)

// ErrCustomerNotFound is returned by customer lookups the upstream does not recognise.
var ErrCustomerNotFound = errors.New("customer not found")

// ValidationError reports a missing or invalid upload field. Nothing has been sent downstream.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// PayloadTooLargeError reports an upload above the configured size limit.
type PayloadTooLargeError struct {
	Size  int64
	Limit int64
}

func (e *PayloadTooLargeError) Error() string {
	return fmt.Sprintf("payload of %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// AuthenticationError reports a failed credential acquisition.
// StatusCode is zero when the token endpoint could not be reached.
type AuthenticationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthenticationError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("authentication failed: %v", e.Err)
	default:
		return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Body)
	}
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// UpstreamUnavailableError reports that the banking API produced no response.
type UpstreamUnavailableError struct {
	Err error
}

func (e *UpstreamUnavailableError) Error() string {
	return fmt.Sprintf("upstream unavailable: %v", e.Err)
}

func (e *UpstreamUnavailableError) Unwrap() error { return e.Err }

// UnsupportedMethodError reports a proxy call with a verb other than GET, POST, PUT or DELETE.
type UnsupportedMethodError struct {
	Method string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("method %s is not supported", e.Method)
}

// DownstreamError reports a content store or core-banking notification failure.
type DownstreamError struct {
	System string
	Detail string
	Err    error
}

func (e *DownstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.System, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.System, e.Detail)
}

func (e *DownstreamError) Unwrap() error { return e.Err }
