package selection

import (
	"slices"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// DiversityConfig bounds how many markets one category may contribute.
type DiversityConfig struct {
	Enabled        bool
	MaxPerCategory int
	MaxTotal       int
}

// DefaultDiversity returns the stock diversity settings.
func DefaultDiversity() DiversityConfig {
	return DiversityConfig{Enabled: true, MaxPerCategory: 3, MaxTotal: 10}
}

// Select picks at most cfg.MaxTotal markets. With diversity enabled it first
// round-robins over categories (best market per category per round, up to
// MaxPerCategory rounds) and then backfills from the best leftovers. No
// category ever exceeds 2*MaxPerCategory markets in total, so the result may
// hold fewer than MaxTotal. Markets without a category are classified by
// title.
func Select(markets []domain.Market, cfg DiversityConfig) []domain.Market {
	if len(markets) == 0 || cfg.MaxTotal <= 0 {
		return nil
	}

	ranked := slices.Clone(markets)
	for i := range ranked {
		if ranked[i].Category == "" {
			ranked[i].Category = Classify(ranked[i].Title)
		}
	}
	slices.SortStableFunc(ranked, func(a, b domain.Market) int {
		return b.SelectionScore() - a.SelectionScore()
	})

	if !cfg.Enabled || cfg.MaxPerCategory <= 0 || len(ranked) <= cfg.MaxPerCategory {
		return ranked[:min(cfg.MaxTotal, len(ranked))]
	}

	queues := make(map[domain.Category][]domain.Market)
	for _, m := range ranked {
		queues[m.Category] = append(queues[m.Category], m)
	}

	selected := make([]domain.Market, 0, cfg.MaxTotal)
	for round := 0; round < cfg.MaxPerCategory && len(selected) < cfg.MaxTotal; round++ {
		for _, cat := range domain.Categories {
			q := queues[cat]
			if len(q) == 0 {
				continue
			}
			selected = append(selected, q[0])
			queues[cat] = q[1:]
			if len(selected) >= cfg.MaxTotal {
				break
			}
		}
	}
	if len(selected) >= cfg.MaxTotal {
		return selected
	}

	var pool []domain.Market
	for _, cat := range domain.Categories {
		pool = append(pool, queues[cat]...)
	}
	slices.SortStableFunc(pool, func(a, b domain.Market) int {
		return b.SelectionScore() - a.SelectionScore()
	})

	counts := CountByCategory(selected)
	for _, m := range pool {
		if len(selected) >= cfg.MaxTotal {
			break
		}
		if counts[m.Category] >= 2*cfg.MaxPerCategory {
			continue
		}
		selected = append(selected, m)
		counts[m.Category]++
	}
	return selected
}

// CountByCategory tallies markets per category.
func CountByCategory(markets []domain.Market) map[domain.Category]int {
	out := make(map[domain.Category]int)
	for _, m := range markets {
		out[m.Category]++
	}
	return out
}
