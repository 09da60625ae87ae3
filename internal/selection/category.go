package selection

import (
	"strings"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// Rule maps a set of title keywords to a category.
type Rule struct {
	Category domain.Category
	Keywords []string
}

// DefaultRules is the classification table, evaluated in order.
var DefaultRules = []Rule{
	{domain.CategoryCrypto, []string{
		"bitcoin", "btc", "ethereum", "eth", "solana", "sol", "crypto", "cryptocurrency",
		"dogecoin", "doge", "cardano", "ada", "polygon", "matic", "avalanche", "avax",
		"chainlink", "litecoin", "ltc", "xrp", "ripple", "usdc", "usdt", "stablecoin",
		"defi", "nft", "web3", "blockchain", "altcoin", "meme coin", "shiba", "token",
		"up or down", "updown", "up/down",
	}},
	{domain.CategoryPolitics, []string{
		"election", "president", "senate", "congress", "trump", "biden", "democrat", "republican",
		"vote", "poll", "polling", "candidate", "primary", "impeachment", "supreme court",
		"congressional", "governor", "mayor", "political", "policy", "legislation", "bill",
	}},
	{domain.CategorySports, []string{
		"nfl", "nba", "mlb", "nhl", "super bowl", "world series", "playoff", "championship",
		"game", "match", "tournament", "sport", "team", "player",
		"football", "basketball", "baseball", "hockey", "soccer", "tennis", "golf",
	}},
	{domain.CategoryEntertainment, []string{
		"oscar", "grammy", "emmy", "award", "movie", "film", "tv show", "celebrity",
		"actor", "actress", "music", "album", "song", "concert", "box office", "streaming",
	}},
	{domain.CategoryEconomics, []string{
		"gdp", "inflation", "unemployment", "fed", "federal reserve", "interest rate",
		"stock market", "dow", "s&p", "nasdaq", "economy", "recession",
		"jobs report", "cpi", "ppi", "retail sales", "housing",
	}},
	{domain.CategoryTechnology, []string{
		"apple", "microsoft", "google", "meta", "facebook", "tesla", "ai", "artificial intelligence",
		"chatgpt", "openai", "nvidia", "amd", "intel", "iphone", "product launch", "tech",
	}},
}

// Classifier assigns categories from an ordered rule table. The first rule
// with a matching keyword wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a Classifier over rules.
func NewClassifier(rules []Rule) *Classifier {
	normalized := make([]Rule, len(rules))
	for i, r := range rules {
		kws := make([]string, len(r.Keywords))
		for j, kw := range r.Keywords {
			kws[j] = pad(kw)
		}
		normalized[i] = Rule{Category: r.Category, Keywords: kws}
	}
	return &Classifier{rules: normalized}
}

var defaultClassifier = NewClassifier(DefaultRules)

// Classify categorizes title with DefaultRules.
func Classify(title string) domain.Category {
	return defaultClassifier.Classify(title)
}

// Classify returns the category of the first rule whose keyword appears in
// title as a whole word or phrase (a trailing plural "s" is allowed).
func (c *Classifier) Classify(title string) domain.Category {
	if strings.TrimSpace(title) == "" {
		return domain.CategoryOther
	}
	t := pad(title)
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(t, kw) || strings.Contains(t, kw[:len(kw)-1]+"s ") {
				return r.Category
			}
		}
	}
	return domain.CategoryOther
}

// pad lowercases s, turns every separator into a single space, and wraps the
// result in spaces so keywords can be matched on word boundaries.
func pad(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		keep := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '&' || r == '/'
		if !keep {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}
