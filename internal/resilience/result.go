// Package resilience isolates failing sources: a per-source circuit breaker,
// retry with exponential backoff, and a coarse rate-limit cooldown.
package resilience

// Status tags the outcome of a guarded call.
type Status int

const (
	// StatusOK means the operation ran and succeeded.
	StatusOK Status = iota
	// StatusDegraded means no fresh value was produced but nothing is wrong
	// enough to escalate (open circuit, cooldown, fallback served).
	StatusDegraded
	// StatusFailed means the operation and any fallback failed.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDegraded:
		return "degraded"
	default:
		return "failed"
	}
}

// MarshalText renders the status in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the tagged outcome of Execute. Err is set for Degraded (the
// reason) and Failed (the cause).
type Result[T any] struct {
	Status Status
	Value  T
	Err    error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] { return Result[T]{Status: StatusOK, Value: v} }

// Degraded wraps a substitute value with the reason it was substituted.
func Degraded[T any](v T, reason error) Result[T] {
	return Result[T]{Status: StatusDegraded, Value: v, Err: reason}
}

// Failed wraps a failure.
func Failed[T any](err error) Result[T] { return Result[T]{Status: StatusFailed, Err: err} }
