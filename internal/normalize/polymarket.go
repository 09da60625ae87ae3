package normalize

import (
	"encoding/json"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// PolymarketDefaultSpread is used when a record lacks a usable bid/ask pair.
const PolymarketDefaultSpread = 0.15

var (
	polyIDFields         = []string{"id", "market_id", "condition_id", "conditionId", "question_id", "slug", "market_slug"}
	polyTitleFields      = []string{"title", "question", "ticker"}
	polyResolveFields    = []string{"endDate", "end_date_iso", "endDateIso", "closeTime", "expiresAt", "closing_time", "end_date", "game_start_time"}
	polyTokenTimeFields  = []string{"expiration_date", "expirationDate", "expiresAt"}
	polyBidFields        = []string{"bestBid", "best_bid", "yesBid", "yes.bid"}
	polyAskFields        = []string{"bestAsk", "best_ask", "yesAsk", "yes.ask"}
	polyPriceFields      = []string{"lastPrice", "lastTradePrice", "yesPrice", "price", "midPrice"}
	polyVolumeFields     = []string{"volume24h", "volume24hr", "volume_24h", "totalVolume24h", "lastDayVolume"}
	polyLiquidityFields  = []string{"liquidity", "liquidityNum", "bestBidSize", "orderbook.total_yes", "yes.liquidity"}
	polyChange1hFields   = []string{"change1h", "change.h1", "delta1h", "oneHourPriceChange"}
	polyChange24hFields  = []string{"change24h", "change.h24", "delta24h", "oneDayPriceChange"}
	polyChangeFields     = []string{"priceChange", "change"}
	polyVolChangeFields  = []string{"volumeChange", "volume_change"}
	polyCreatedFields    = []string{"createdAt", "created_at", "opened_at", "created_time", "startDate"}
	polyPriorityFields   = []string{"accepting_orders", "acceptingOrders"}
	polyArchivedFields   = []string{"archived"}
	polymarketMarketsURL = "https://polymarket.com/markets"
)

// Polymarket maps a Gamma API (or scraped) market object onto a Market.
func Polymarket(r Record, now time.Time) (domain.Market, error) {
	src := domain.SourcePolymarket
	if r.Bool(polyArchivedFields...) {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "archived"}
	}

	id := r.String(polyIDFields...)
	if id == "" {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "missing id"}
	}

	resolvesAt, ok := r.Time(polyResolveFields...)
	if !ok {
		for _, tok := range r.Objects("tokens") {
			if resolvesAt, ok = tok.Time(polyTokenTimeFields...); ok {
				break
			}
		}
	}
	if !ok {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "no resolution time"}
	}
	if !resolvesAt.After(now) {
		return domain.Market{}, &domain.MappingError{Source: src, Reason: "already resolved"}
	}

	title := r.String(polyTitleFields...)
	if title == "" {
		title = "Untitled market"
	}

	url := r.String("url")
	if url == "" {
		if slug := r.String("slug", "market_slug"); slug != "" {
			url = "https://polymarket.com/event/" + slug
		} else {
			url = polymarketMarketsURL
		}
	}

	bid, hasBid := r.Float(polyBidFields...)
	ask, hasAsk := r.Float(polyAskFields...)
	spread := PolymarketDefaultSpread
	mid := 0.0
	if hasBid && hasAsk && bid > 0 && ask > 0 {
		spread = ask - bid
		mid = (ask + bid) / 2
	}

	price, ok := r.Float(polyPriceFields...)
	if !ok {
		if p, found := firstOutcomePrice(r); found {
			price = p
		} else {
			price = mid
		}
	}

	m := domain.Market{
		Source:         src,
		ID:             "polymarket-" + id,
		Title:          title,
		URL:            url,
		ResolvesAt:     resolvesAt,
		LastPrice:      clampUnit(price),
		Volume24h:      r.FloatOr(0, polyVolumeFields...),
		Liquidity:      r.FloatOr(0, polyLiquidityFields...),
		PriceChange1h:  r.FloatOr(0, polyChange1hFields...),
		PriceChange24h: r.FloatOr(0, polyChange24hFields...),
		PriceChange:    r.FloatOr(0, polyChangeFields...),
		VolumeChange:   r.FloatOr(0, polyVolChangeFields...),
		Spread:         spread,
		Priority:       r.Bool(polyPriorityFields...),
	}
	if created, ok := r.Time(polyCreatedFields...); ok {
		m.CreatedAt = &created
	}
	m.Refresh(now)
	return m, nil
}

// firstOutcomePrice reads outcomePrices, which Gamma serves either as a JSON
// array or as a JSON-encoded string of one.
func firstOutcomePrice(r Record) (float64, bool) {
	v, ok := r.lookup("outcomePrices")
	if !ok {
		return 0, false
	}
	var arr []any
	switch t := v.(type) {
	case []any:
		arr = t
	case string:
		if err := json.Unmarshal([]byte(t), &arr); err != nil {
			return 0, false
		}
	}
	if len(arr) == 0 {
		return 0, false
	}
	return toFloat(arr[0])
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
