// Package selection decides which scored markets are worth alerting on:
// eligibility thresholds, topical classification, and category-diverse
// top-k selection.
package selection

import (
	"math"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

const (
	day = 24 * time.Hour
	// ExtendedHorizon is the longest time to resolve that still gets a bucket.
	ExtendedHorizon = 30 * day
)

// Bucket assigns the time-to-resolution tier. Non-positive durations and
// anything beyond ExtendedHorizon get BucketNone.
func Bucket(ttr time.Duration) domain.Bucket {
	switch {
	case ttr <= 0:
		return domain.BucketNone
	case ttr <= time.Hour:
		return domain.Bucket1H
	case ttr <= day:
		return domain.Bucket24H
	case ttr <= 7*day:
		return domain.Bucket7D
	case ttr <= ExtendedHorizon:
		return domain.BucketExtended
	default:
		return domain.BucketNone
	}
}

// Thresholds are the eligibility gates. A zero MaxResolution or MaxMarketAge
// disables that gate.
type Thresholds struct {
	MinConfidence int
	MinLiquidity  float64
	MaxResolution time.Duration
	MaxMarketAge  time.Duration
}

// DefaultThresholds returns the stock gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence: 30,
		MinLiquidity:  500,
		MaxResolution: 7 * day,
		MaxMarketAge:  4 * day,
	}
}

// Reason names the gate that rejected a market.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonResolved      Reason = "resolved"
	ReasonTooFar        Reason = "resolution_too_far"
	ReasonNoBucket      Reason = "no_bucket"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonLowLiquidity  Reason = "low_liquidity"
	ReasonTooOld        Reason = "market_too_old"
)

// Check applies every gate in order and reports the first one that fails.
// TimeToResolve must already be refreshed against now.
func Check(m *domain.Market, th Thresholds, now time.Time) (bool, Reason) {
	if m.TimeToResolve <= 0 {
		return false, ReasonResolved
	}
	if th.MaxResolution > 0 && m.TimeToResolve > th.MaxResolution {
		return false, ReasonTooFar
	}
	if Bucket(m.TimeToResolve) == domain.BucketNone {
		return false, ReasonNoBucket
	}
	if m.Confidence < th.MinConfidence {
		return false, ReasonLowConfidence
	}
	if math.IsNaN(m.Liquidity) || m.Liquidity < th.MinLiquidity {
		return false, ReasonLowLiquidity
	}
	if th.MaxMarketAge > 0 && m.CreatedAt != nil && !m.CreatedAt.IsZero() {
		if now.Sub(*m.CreatedAt) > th.MaxMarketAge {
			return false, ReasonTooOld
		}
	}
	return true, ReasonNone
}

// IsEligible reports whether m passes every gate.
func IsEligible(m *domain.Market, th Thresholds, now time.Time) bool {
	ok, _ := Check(m, th, now)
	return ok
}
