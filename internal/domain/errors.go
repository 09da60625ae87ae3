package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrCircuitOpen   = errors.New("circuit open")
	ErrCooldown      = errors.New("source cooling down")
	ErrInvalidRecord = errors.New("invalid record")
	ErrNoData        = errors.New("no data")
	ErrLockHeld      = errors.New("lock held")
)

// FetchErrorKind classifies a failed source request.
type FetchErrorKind int

const (
	// FetchNetwork covers transport failures and unexpected server errors.
	FetchNetwork FetchErrorKind = iota
	// FetchClient covers 4xx responses other than rate limiting.
	FetchClient
	// FetchTransient covers 429 and 503 responses.
	FetchTransient
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTransient:
		return "transient"
	case FetchClient:
		return "client"
	default:
		return "network"
	}
}

// FetchError is returned by source adapters when a request fails.
type FetchError struct {
	Source     Source
	Kind       FetchErrorKind
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (HTTP %d): %v", e.Source, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Source, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError extracts a *FetchError from err's chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// IsTransient reports whether err is a rate-limit or unavailable response.
func IsTransient(err error) bool {
	if fe, ok := AsFetchError(err); ok {
		return fe.Kind == FetchTransient
	}
	return errors.Is(err, ErrRateLimited)
}

// MappingError reports a raw record that could not be normalized.
type MappingError struct {
	Source Source
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Source, ErrInvalidRecord, e.Reason)
}

func (e *MappingError) Unwrap() error { return ErrInvalidRecord }
