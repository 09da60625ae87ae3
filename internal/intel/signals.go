package intel

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

const (
	trendThresholdPct   = 2.0
	strongVolumePct     = 10.0
	volatilityPct       = 15.0
	spikeMultiple       = 3.0
	tightSpread         = 0.02
	tightSpreadLiq      = 10000.0
	rushVolume          = 5000.0
	highLiquidity       = 20000.0
	elevatedLiquidity   = 10000.0
	trendWindow         = 5
	minTrendPoints      = 3
	maxTrendConfidence  = 90.0
	volumeBonus         = 20.0
	trendBaseConfidence = 50.0
)

// DetectTrend compares the mean price of the latest five points with the five
// before them. Fewer than three points, or no older points, is unknown.
func DetectTrend(history []Point) domain.TrendResult {
	unknown := domain.TrendResult{Direction: domain.TrendUnknown}
	if len(history) < minTrendPoints {
		return unknown
	}

	recentStart := max(0, len(history)-trendWindow)
	olderStart := max(0, recentStart-trendWindow)
	recent := history[recentStart:]
	older := history[olderStart:recentStart]
	if len(older) == 0 {
		return unknown
	}

	recentPrice, recentVol := means(recent)
	olderPrice, olderVol := means(older)

	var pricePct, volPct float64
	if olderPrice > 0 {
		pricePct = (recentPrice - olderPrice) / olderPrice * 100
	}
	if olderVol > 0 {
		volPct = (recentVol - olderVol) / olderVol * 100
	}

	res := domain.TrendResult{
		Direction:       domain.TrendNeutral,
		Strength:        math.Min(100, math.Abs(pricePct)),
		PriceChangePct:  round2(pricePct),
		VolumeChangePct: round2(volPct),
	}
	switch {
	case pricePct > trendThresholdPct:
		res.Direction = domain.TrendUp
		if volPct > strongVolumePct {
			res.Direction = domain.TrendStrongUp
		}
	case pricePct < -trendThresholdPct:
		res.Direction = domain.TrendDown
		if volPct > strongVolumePct {
			res.Direction = domain.TrendStrongDown
		}
	default:
		return res
	}

	conf := trendBaseConfidence + math.Abs(pricePct)
	if volPct > 0 {
		conf += volumeBonus
	}
	res.Confidence = math.Min(maxTrendConfidence, conf)
	return res
}

// DetectAnomalies evaluates every rule independently against m.
func DetectAnomalies(m domain.Market, trend domain.TrendResult, avgVolume float64) []domain.Anomaly {
	var out []domain.Anomaly

	if avgVolume > 0 && m.Volume24h > avgVolume*spikeMultiple {
		out = append(out, domain.Anomaly{
			Kind:     domain.AnomalyVolumeSpike,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("Volume spike: %.0f%% of average", m.Volume24h/avgVolume*100),
			Value:    m.Volume24h,
		})
	}
	if math.Abs(trend.PriceChangePct) > volatilityPct {
		out = append(out, domain.Anomaly{
			Kind:     domain.AnomalyPriceVolatility,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("Large price movement: %.2f%%", trend.PriceChangePct),
			Value:    trend.PriceChangePct,
		})
	}
	if m.Spread < tightSpread && m.Liquidity > tightSpreadLiq {
		out = append(out, domain.Anomaly{
			Kind:     domain.AnomalyTightSpread,
			Severity: domain.SeverityLow,
			Message:  "Very tight spread with high liquidity",
			Value:    m.Spread,
		})
	}
	if m.TimeToResolve < time.Hour && m.Volume24h > rushVolume {
		out = append(out, domain.Anomaly{
			Kind:     domain.AnomalyResolutionRush,
			Severity: domain.SeverityMedium,
			Message:  "High activity approaching resolution",
			Value:    m.Volume24h,
		})
	}
	return out
}

// CalculateUrgency adds time, trend, anomaly, and liquidity pressure, capped
// at 100.
func CalculateUrgency(m domain.Market, trend domain.TrendResult, anomalies []domain.Anomaly) int {
	urgency := 0

	switch ttr := m.TimeToResolve; {
	case ttr < time.Hour:
		urgency += 40
	case ttr < 6*time.Hour:
		urgency += 30
	case ttr < 24*time.Hour:
		urgency += 20
	}

	switch trend.Direction {
	case domain.TrendStrongUp:
		urgency += 20
	case domain.TrendStrongDown:
		urgency += 15
	case domain.TrendUp, domain.TrendDown, domain.TrendUnknown:
		urgency += 10
	}

	for _, a := range anomalies {
		switch a.Severity {
		case domain.SeverityHigh:
			urgency += 15
		case domain.SeverityMedium:
			urgency += 5
		}
	}

	switch {
	case m.Liquidity > highLiquidity:
		urgency += 10
	case m.Liquidity > elevatedLiquidity:
		urgency += 5
	}

	return min(100, max(0, urgency))
}

// Summarize renders a one-line description of the insights.
func Summarize(trend domain.TrendResult, anomalies []domain.Anomaly, urgency int) string {
	var parts []string
	if trend.Direction != domain.TrendNeutral && trend.Direction != domain.TrendUnknown && trend.Confidence > 50 {
		parts = append(parts, fmt.Sprintf("%s trend (%.0f%% confidence)",
			strings.ReplaceAll(string(trend.Direction), "_", " "), trend.Confidence))
	}
	high := 0
	for _, a := range anomalies {
		if a.Severity == domain.SeverityHigh {
			high++
		}
	}
	if high > 0 {
		parts = append(parts, fmt.Sprintf("%d high-priority anomalies", high))
	}
	switch {
	case urgency > 70:
		parts = append(parts, "high urgency, monitor closely")
	case urgency > 50:
		parts = append(parts, "moderate urgency")
	}
	if len(parts) == 0 {
		return "standard market conditions"
	}
	return strings.Join(parts, " | ")
}

func means(pts []Point) (price, volume float64) {
	for _, p := range pts {
		price += p.Price
		volume += p.Volume
	}
	n := float64(len(pts))
	return price / n, volume / n
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
