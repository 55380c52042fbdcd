package provider

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies why a fetch failed
type ErrorKind string

const (
	// KindTransient is a network failure or server error that persisted across retries
	KindTransient ErrorKind = "transient"

	// KindRateLimited means the provider refused the request because of rate limiting
	KindRateLimited ErrorKind = "rate_limited"

	// KindMalformed means the provider returned a payload of an unexpected shape
	KindMalformed ErrorKind = "malformed"

	// KindRejected means the provider refused access to the repository
	KindRejected ErrorKind = "rejected"

	// KindTruncated means a stream had more pages than the configured page limit
	KindTruncated ErrorKind = "truncated"
)

// Sentinel errors, one per ErrorKind, for use with errors.Is
var (
	ErrTransient   = errors.New("transient provider failure")
	ErrRateLimited = errors.New("provider rate limit exceeded")
	ErrMalformed   = errors.New("malformed provider payload")
	ErrRejected    = errors.New("provider rejected the request")
	ErrTruncated   = errors.New("page limit reached before the activity was exhausted")

	// ErrUnsupportedHost is the cause of a KindRejected error for a repository
	// hosted somewhere the provider does not serve
	ErrUnsupportedHost = errors.New("repository host is not served by the provider")
)

// FetchError is returned by Fetcher implementations
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	// RetryAfter is the provider's hint for when to try again, zero if unknown
	RetryAfter time.Duration
	Err        error
}

func newFetchError(kind ErrorKind, url string, err error) *FetchError {
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// Error returns the error message
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s fetching %s", e.Kind, e.URL)
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *FetchError) Unwrap() []error {
	errs := []error{kindSentinel(e.Kind)}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindRateLimited:
		return ErrRateLimited
	case KindMalformed:
		return ErrMalformed
	case KindRejected:
		return ErrRejected
	case KindTruncated:
		return ErrTruncated
	default:
		return ErrTransient
	}
}
