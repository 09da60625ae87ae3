package engine

import (
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// DefaultOpsThrottle is how long a repeated operational alert is held back.
const DefaultOpsThrottle = 30 * time.Minute

// OpsAlert is an operational incident for the admin channel.
type OpsAlert struct {
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// OpsAlerts queues operational alerts between scans, throttling repeats of the
// same (source, message) pair.
type OpsAlerts struct {
	mu       sync.Mutex
	throttle time.Duration
	seen     map[string]time.Time
	pending  []OpsAlert
	now      func() time.Time
}

// NewOpsAlerts creates an alert queue. Non-positive throttle uses
// DefaultOpsThrottle; a nil clock uses time.Now.
func NewOpsAlerts(throttle time.Duration, now func() time.Time) *OpsAlerts {
	if throttle <= 0 {
		throttle = DefaultOpsThrottle
	}
	if now == nil {
		now = time.Now
	}
	return &OpsAlerts{throttle: throttle, seen: make(map[string]time.Time), now: now}
}

// Register queues an alert unless it is rate-limit noise or was queued within
// the throttle window. It reports whether the alert was queued.
func (o *OpsAlerts) Register(source, message string) bool {
	if IsRateLimitNoise(source, message) {
		return false
	}
	key := source + ":" + message

	o.mu.Lock()
	defer o.mu.Unlock()
	now := o.now()
	if until, ok := o.seen[key]; ok && now.Before(until) {
		return false
	}
	o.seen[key] = now.Add(o.throttle)
	o.pending = append(o.pending, OpsAlert{Source: source, Message: message, At: now})
	return true
}

// RegisterError queues an alert for a source failure. Transient errors are
// expected and never queued.
func (o *OpsAlerts) RegisterError(source string, err error) bool {
	if err == nil || domain.IsTransient(err) {
		return false
	}
	return o.Register(source, err.Error())
}

// Drain returns and clears the queued alerts and forgets expired throttles.
func (o *OpsAlerts) Drain() []OpsAlert {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending
	o.pending = nil
	o.sweepLocked()
	return out
}

// Sweep forgets expired throttles and returns how many were dropped.
func (o *OpsAlerts) Sweep() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sweepLocked()
}

func (o *OpsAlerts) sweepLocked() int {
	now := o.now()
	n := 0
	for k, until := range o.seen {
		if !now.Before(until) {
			delete(o.seen, k)
			n++
		}
	}
	return n
}

var rateLimitMarkers = []string{"rate limit", "rate-limit", "429", "503", "too many requests"}

// IsRateLimitNoise reports whether an alert describes rate limiting, which is
// expected behaviour rather than an incident.
func IsRateLimitNoise(source, message string) bool {
	text := strings.ToLower(source + " " + message)
	for _, m := range rateLimitMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
