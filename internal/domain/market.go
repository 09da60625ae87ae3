package domain

import "time"

// Source identifies an upstream market-data provider.
type Source string

const (
	SourcePolymarket Source = "polymarket"
	SourceKalshi     Source = "kalshi"
)

// Bucket is the coarse time-to-resolution tier of a market.
type Bucket string

const (
	Bucket1H       Bucket = "1H"
	Bucket24H      Bucket = "24H"
	Bucket7D       Bucket = "7D"
	BucketExtended Bucket = "EXTENDED"
	BucketNone     Bucket = ""
)

// Category is the topical classification of a market title.
type Category string

const (
	CategoryCrypto        Category = "crypto"
	CategoryPolitics      Category = "politics"
	CategorySports        Category = "sports"
	CategoryEntertainment Category = "entertainment"
	CategoryEconomics     Category = "economics"
	CategoryTechnology    Category = "technology"
	CategoryOther         Category = "other"
)

// Categories lists every category in selection order.
var Categories = []Category{
	CategoryCrypto,
	CategoryPolitics,
	CategorySports,
	CategoryEntertainment,
	CategoryEconomics,
	CategoryTechnology,
	CategoryOther,
}

// ParseCategory maps a free-form name onto a known Category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// ScoreBreakdown holds the weighted contribution of each scoring factor.
type ScoreBreakdown struct {
	Liquidity float64 `json:"liquidity"`
	Volume    float64 `json:"volume"`
	Price     float64 `json:"price"`
	Time      float64 `json:"time"`
	Spread    float64 `json:"spread"`
}

// Market is the canonical, source-independent view of a prediction market.
// It is rebuilt on every scan; TimeToResolve is only valid after Refresh.
type Market struct {
	Source Source `json:"source"`
	ID     string `json:"id"`
	Title  string `json:"title"`
	URL    string `json:"url"`

	ResolvesAt    time.Time     `json:"resolves_at"`
	TimeToResolve time.Duration `json:"time_to_resolve"`
	CreatedAt     *time.Time    `json:"created_at,omitempty"`

	LastPrice      float64 `json:"last_price"`
	Volume24h      float64 `json:"volume_24h"`
	Liquidity      float64 `json:"liquidity"`
	PriceChange1h  float64 `json:"price_change_1h"`
	PriceChange24h float64 `json:"price_change_24h"`
	PriceChange    float64 `json:"price_change"`
	VolumeChange   float64 `json:"volume_change"`
	Spread         float64 `json:"spread"`
	Priority       bool    `json:"priority"`

	Confidence   int            `json:"confidence"`
	Breakdown    ScoreBreakdown `json:"breakdown"`
	Explanations []string       `json:"explanations,omitempty"`
	Bucket       Bucket         `json:"bucket"`
	Category     Category       `json:"category"`
	Urgency      int            `json:"urgency"`
	Insights     *Insights      `json:"insights,omitempty"`
}

// Key returns the identity used for duplicate suppression.
func (m *Market) Key() string {
	return string(m.Source) + ":" + m.ID
}

// Refresh recomputes TimeToResolve relative to now.
func (m *Market) Refresh(now time.Time) {
	m.TimeToResolve = m.ResolvesAt.Sub(now)
}

// SelectionScore is the ordering key used by diversity selection.
func (m *Market) SelectionScore() int {
	return m.Urgency + m.Confidence
}
