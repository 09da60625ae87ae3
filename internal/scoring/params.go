// Package scoring computes the 0-100 confidence score of a market from five
// independently weighted factors: liquidity, volume momentum, price movement,
// time to resolution, and spread.
package scoring

import "time"

// Factor names a scoring component. The order of Factors is the tie-break
// order for explanations.
type Factor string

const (
	FactorLiquidity Factor = "liquidity"
	FactorVolume    Factor = "volume"
	FactorPrice     Factor = "price"
	FactorTime      Factor = "time"
	FactorSpread    Factor = "spread"
)

// Factors lists all factors in tie-break order.
var Factors = []Factor{FactorLiquidity, FactorVolume, FactorPrice, FactorTime, FactorSpread}

// FactorParams holds the weight and normalization constants of one factor.
// Not every factor uses every constant.
type FactorParams struct {
	Weight           float64
	Benchmark        float64
	Baseline         float64
	MomentumBaseline float64
}

// TimeWindows are the tiers of the time-to-resolution factor.
type TimeWindows struct {
	Near  time.Duration
	Mid   time.Duration
	Far   time.Duration
	Decay time.Duration
}

// Params is the full scorer configuration.
type Params struct {
	Liquidity FactorParams
	Volume    FactorParams
	Price     FactorParams
	Time      FactorParams
	Spread    FactorParams
	Windows   TimeWindows
}

// Defaults returns the stock scoring parameters.
func Defaults() Params {
	return Params{
		Liquidity: FactorParams{Weight: 30, Benchmark: 5000},
		Volume:    FactorParams{Weight: 25, Benchmark: 15000, MomentumBaseline: 0.4},
		Price:     FactorParams{Weight: 20, Baseline: 0.12},
		Time:      FactorParams{Weight: 15},
		Spread:    FactorParams{Weight: 10, Baseline: 0.12},
		Windows: TimeWindows{
			Near:  time.Hour,
			Mid:   24 * time.Hour,
			Far:   7 * 24 * time.Hour,
			Decay: 7 * 24 * time.Hour,
		},
	}
}

// FactorOverride carries optional replacements for one factor. Time windows
// are expressed in milliseconds so override files stay unit-free.
type FactorOverride struct {
	Weight           *float64 `toml:"weight" yaml:"weight"`
	Benchmark        *float64 `toml:"benchmark" yaml:"benchmark"`
	Baseline         *float64 `toml:"baseline" yaml:"baseline"`
	MomentumBaseline *float64 `toml:"momentum_baseline" yaml:"momentum_baseline"`
	NearMs           *float64 `toml:"near_resolution_ms" yaml:"near_resolution_ms"`
	MidMs            *float64 `toml:"mid_resolution_ms" yaml:"mid_resolution_ms"`
	FarMs            *float64 `toml:"far_resolution_ms" yaml:"far_resolution_ms"`
	DecayMs          *float64 `toml:"decay_ms" yaml:"decay_ms"`
}

// Overrides maps factor names to their overrides. Unknown names are ignored.
type Overrides map[string]FactorOverride

// Merge returns a copy of o with the fields set in later layered on top.
func (o Overrides) Merge(later Overrides) Overrides {
	out := make(Overrides, len(o)+len(later))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range later {
		cur := out[k]
		set(&cur.Weight, v.Weight)
		set(&cur.Benchmark, v.Benchmark)
		set(&cur.Baseline, v.Baseline)
		set(&cur.MomentumBaseline, v.MomentumBaseline)
		set(&cur.NearMs, v.NearMs)
		set(&cur.MidMs, v.MidMs)
		set(&cur.FarMs, v.FarMs)
		set(&cur.DecayMs, v.DecayMs)
		out[k] = cur
	}
	return out
}

func set(dst **float64, v *float64) {
	if v != nil {
		f := *v
		*dst = &f
	}
}

// Merge returns p with the overrides applied. p itself is not modified.
func (p Params) Merge(o Overrides) Params {
	out := p
	for name, fo := range o {
		switch Factor(name) {
		case FactorLiquidity:
			out.Liquidity = fo.apply(out.Liquidity)
		case FactorVolume:
			out.Volume = fo.apply(out.Volume)
		case FactorPrice:
			out.Price = fo.apply(out.Price)
		case FactorTime:
			out.Time = fo.apply(out.Time)
			out.Windows = fo.applyWindows(out.Windows)
		case FactorSpread:
			out.Spread = fo.apply(out.Spread)
		}
	}
	return out
}

func (fo FactorOverride) apply(p FactorParams) FactorParams {
	if fo.Weight != nil {
		p.Weight = *fo.Weight
	}
	if fo.Benchmark != nil {
		p.Benchmark = *fo.Benchmark
	}
	if fo.Baseline != nil {
		p.Baseline = *fo.Baseline
	}
	if fo.MomentumBaseline != nil {
		p.MomentumBaseline = *fo.MomentumBaseline
	}
	return p
}

func (fo FactorOverride) applyWindows(w TimeWindows) TimeWindows {
	ms := func(v *float64, cur time.Duration) time.Duration {
		if v == nil {
			return cur
		}
		return time.Duration(*v * float64(time.Millisecond))
	}
	w.Near = ms(fo.NearMs, w.Near)
	w.Mid = ms(fo.MidMs, w.Mid)
	w.Far = ms(fo.FarMs, w.Far)
	w.Decay = ms(fo.DecayMs, w.Decay)
	return w
}
