package normalize

import (
	"strings"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// KalshiDefaultSpread is used when a record lacks yes bid/ask quotes.
const KalshiDefaultSpread = 0.10

var (
	kalshiIDFields        = []string{"ticker", "id", "market_id"}
	kalshiTitleFields     = []string{"title", "question", "name", "subtitle", "ticker"}
	kalshiResolveFields   = []string{"close_time", "close_time_iso", "expiration_time", "expected_expiration_time", "end_date", "settlement_time"}
	kalshiPriceFields     = []string{"last_price", "last_price_cents", "yes_price", "ticker_price", "yes_bid", "yes_ask"}
	kalshiVolumeFields    = []string{"volume_24h", "volume24h", "volume.day", "total_volume", "volume"}
	kalshiLiquidityFields = []string{"open_interest", "liquidity", "order_book.liquidity"}
	kalshiChange1hFields  = []string{"price_change_1h", "change1h"}
	kalshiChange24hFields = []string{"price_change_24h", "change24h"}
	kalshiCreatedFields   = []string{"listed_time", "created_time", "open_time"}
	kalshiMarketsURL      = "https://kalshi.com/markets"
)

// Kalshi maps a Kalshi REST or scraped market object onto a Market. Kalshi
// quotes prices in cents.
func Kalshi(r Record, now time.Time) (domain.Market, error) {
	src := domain.SourceKalshi
	status := strings.ToLower(r.String("status"))
	switch status {
	case "settled", "finalized", "determined":
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "status " + status}
	}

	id := r.String(kalshiIDFields...)
	if id == "" {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "missing ticker"}
	}

	resolvesAt, ok := r.Time(kalshiResolveFields...)
	if !ok {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "no resolution time"}
	}
	if !resolvesAt.After(now) {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "already resolved"}
	}

	title := r.String(kalshiTitleFields...)
	if title == "" {
		title = id
	}

	url := r.String("url")
	if url == "" {
		url = kalshiMarketsURL + "/" + strings.ToLower(id)
	}

	spread := KalshiDefaultSpread
	bid, hasBid := r.Float("yes_bid")
	ask, hasAsk := r.Float("yes_ask")
	if hasBid && hasAsk && bid > 0 && ask > 0 {
		spread = (ask - bid) / 100
	}

	price := fromCents(r.FloatOr(0, kalshiPriceFields...))

	m := domain.Market{
		Source:         src,
		ID:             "kalshi-" + id,
		Title:          title,
		URL:            url,
		ResolvesAt:     resolvesAt,
		LastPrice:      clampUnit(price),
		Volume24h:      r.FloatOr(0, kalshiVolumeFields...),
		Liquidity:      r.FloatOr(0, kalshiLiquidityFields...),
		PriceChange1h:  r.FloatOr(0, kalshiChange1hFields...) / 100,
		PriceChange24h: r.FloatOr(0, kalshiChange24hFields...) / 100,
		Spread:         spread,
		Priority:       status == "open" || status == "active",
	}
	if prev, ok := r.Float("previous_price"); ok && prev > 0 && m.LastPrice > 0 {
		m.PriceChange = m.LastPrice - fromCents(prev)
	}
	if created, ok := r.Time(kalshiCreatedFields...); ok {
		m.CreatedAt = &created
	}
	m.Refresh(now)
	return m, nil
}

func fromCents(v float64) float64 {
	if v > 1 {
		return v / 100
	}
	return v
}
