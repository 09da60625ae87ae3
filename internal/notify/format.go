package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
	"github.com/alanyoungcy/marketscout/internal/engine"
)

// FormatMarket renders the title and body of a market alert.
func FormatMarket(m domain.Market) (string, string) {
	bucket := string(m.Bucket)
	if bucket == "" {
		bucket = "?"
	}
	title := fmt.Sprintf("[%s] %s", bucket, m.Title)

	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s | Category: %s\n", m.Source, m.Category)
	fmt.Fprintf(&b, "Confidence: %d/100 | Urgency: %d\n", m.Confidence, m.Urgency)
	fmt.Fprintf(&b, "Price: %.1f%% | 24h volume: %s | Liquidity: %s\n",
		m.LastPrice*100, money(m.Volume24h), money(m.Liquidity))
	fmt.Fprintf(&b, "Resolves in %s (%s)\n", humanDuration(m.TimeToResolve), m.ResolvesAt.UTC().Format("Jan 2 15:04 MST"))
	if len(m.Explanations) > 0 {
		fmt.Fprintf(&b, "Why: %s\n", strings.Join(m.Explanations, ", "))
	}
	if m.Insights != nil && m.Insights.Summary != "" {
		fmt.Fprintf(&b, "Intel: %s\n", m.Insights.Summary)
	}
	b.WriteString(m.URL)
	return title, b.String()
}

// FormatOperational renders the title and body of an operational alert.
func FormatOperational(a engine.OpsAlert) (string, string) {
	return "Operational alert: " + a.Source,
		fmt.Sprintf("%s\nat %s", a.Message, a.At.UTC().Format(time.RFC3339))
}

func money(v float64) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("$%.1fM", v/1_000_000)
	case v >= 1_000:
		return fmt.Sprintf("$%.1fK", v/1_000)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func humanDuration(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	mins := (d - hours*time.Hour) / time.Minute
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
