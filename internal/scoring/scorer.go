package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

var phrases = map[Factor]string{
	FactorLiquidity: "solid liquidity",
	FactorVolume:    "notable volume momentum",
	FactorPrice:     "meaningful price movement",
	FactorTime:      "approaching resolution",
	FactorSpread:    "tight spread",
}

const baselinePhrase = "meets baseline filters"

// Result is the outcome of scoring one market.
type Result struct {
	Total        int
	Breakdown    domain.ScoreBreakdown
	Explanations []string
}

// Scorer scores markets with a fixed parameter set.
type Scorer struct {
	params Params
}

// NewScorer creates a Scorer from the defaults merged with overrides.
func NewScorer(o Overrides) *Scorer {
	return &Scorer{params: Defaults().Merge(o)}
}

// Params returns the effective parameters.
func (s *Scorer) Params() Params { return s.params }

// Apply scores m and stores the result on it.
func (s *Scorer) Apply(m *domain.Market) Result {
	res := s.Score(*m)
	m.Confidence = res.Total
	m.Breakdown = res.Breakdown
	m.Explanations = res.Explanations
	return res
}

// Score computes the confidence of m. m.TimeToResolve must be current.
func (s *Scorer) Score(m domain.Market) Result {
	p := s.params

	liq := ratio(m.Liquidity, p.Liquidity.Benchmark)
	spreadNorm := clamp01(1 - ratio(math.Abs(m.Spread), p.Spread.Baseline))

	var vol float64
	switch {
	case m.VolumeChange != 0:
		vol = ratio(math.Abs(m.VolumeChange), p.Volume.MomentumBaseline)
	case m.Volume24h > 0:
		vol = ratio(m.Volume24h, p.Volume.Benchmark)
	default:
		vol = liq * 0.5
	}

	move, direction := priceSignal(m)
	var price float64
	if move > 0 {
		price = ratio(move, p.Price.Baseline)
	} else {
		price = clamp01(liq*0.3 + spreadNorm*0.3)
	}

	bd := domain.ScoreBreakdown{
		Liquidity: round2(liq * p.Liquidity.Weight),
		Volume:    round2(vol * p.Volume.Weight),
		Price:     round2(price * p.Price.Weight),
		Time:      round2(timeFactor(m.TimeToResolve, p.Windows) * p.Time.Weight),
		Spread:    round2(spreadNorm * p.Spread.Weight),
	}
	sum := bd.Liquidity + bd.Volume + bd.Price + bd.Time + bd.Spread
	total := int(math.Round(sum))
	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}

	return Result{
		Total:        total,
		Breakdown:    bd,
		Explanations: explain(bd, direction),
	}
}

// priceSignal returns the strongest weighted price change and its sign.
func priceSignal(m domain.Market) (float64, float64) {
	candidates := []struct{ raw, weight float64 }{
		{m.PriceChange1h, 1},
		{m.PriceChange24h, 0.6},
		{m.PriceChange, 0.4},
	}
	best, dir := 0.0, 0.0
	for _, c := range candidates {
		if v := math.Abs(c.raw) * c.weight; v > best {
			best, dir = v, c.raw
		}
	}
	return best, dir
}

func timeFactor(ttr time.Duration, w TimeWindows) float64 {
	switch {
	case ttr <= 0:
		return 0
	case ttr <= w.Near:
		return 1
	case ttr <= w.Mid:
		return 0.75
	case ttr <= w.Far:
		return 0.4
	}
	if w.Decay <= 0 {
		return 0
	}
	over := float64(ttr - w.Far)
	return clamp01(1-over/float64(w.Decay)) * 0.3
}

func explain(bd domain.ScoreBreakdown, direction float64) []string {
	type contrib struct {
		f Factor
		v float64
	}
	all := []contrib{
		{FactorLiquidity, bd.Liquidity},
		{FactorVolume, bd.Volume},
		{FactorPrice, bd.Price},
		{FactorTime, bd.Time},
		{FactorSpread, bd.Spread},
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].v > all[j].v })

	out := make([]string, 0, 4)
	for _, c := range all {
		if len(out) == 3 || c.v <= 0 {
			break
		}
		out = append(out, phrases[c.f])
	}
	if len(out) == 0 {
		out = append(out, baselinePhrase)
	}
	switch {
	case direction > 0:
		out = append(out, "upward price drift")
	case direction < 0:
		out = append(out, "downward price drift")
	}
	return out
}

func ratio(v, denom float64) float64 {
	if denom <= 0 || math.IsNaN(v) {
		return 0
	}
	return clamp01(v / denom)
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
