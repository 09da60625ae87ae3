package domain

// Trend is the direction of recent price movement.
type Trend string

const (
	TrendUnknown    Trend = "unknown"
	TrendStrongUp   Trend = "strong_up"
	TrendUp         Trend = "up"
	TrendNeutral    Trend = "neutral"
	TrendDown       Trend = "down"
	TrendStrongDown Trend = "strong_down"
)

// TrendResult describes the outcome of trend detection over price history.
type TrendResult struct {
	Direction       Trend   `json:"direction"`
	Strength        float64 `json:"strength"`
	Confidence      float64 `json:"confidence"`
	PriceChangePct  float64 `json:"price_change_pct"`
	VolumeChangePct float64 `json:"volume_change_pct"`
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyKind names a detection rule.
type AnomalyKind string

const (
	AnomalyVolumeSpike     AnomalyKind = "volume_spike"
	AnomalyPriceVolatility AnomalyKind = "price_volatility"
	AnomalyTightSpread     AnomalyKind = "tight_spread"
	AnomalyResolutionRush  AnomalyKind = "resolution_rush"
)

// Anomaly is a single fired detection rule.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Severity Severity    `json:"severity"`
	Message  string      `json:"message"`
	Value    float64     `json:"value"`
}

// Insights is the intelligence snapshot attached to a market during a scan.
type Insights struct {
	Trend     TrendResult `json:"trend"`
	Anomalies []Anomaly   `json:"anomalies,omitempty"`
	Urgency   int         `json:"urgency"`
	Summary   string      `json:"summary"`
}

// CountSeverity returns how many anomalies carry the given severity.
func (i *Insights) CountSeverity(s Severity) int {
	n := 0
	for _, a := range i.Anomalies {
		if a.Severity == s {
			n++
		}
	}
	return n
}
