// Package normalize maps raw source records onto the canonical domain.Market.
// Raw records are decoded JSON objects whose field names vary between API
// versions and scrape payloads, so every accessor takes an ordered list of
// candidate names and returns the first one that coerces cleanly.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/marketscout/internal/domain"
)

// Record is one raw market object as decoded from JSON.
type Record map[string]any

// Func converts a raw record into a Market evaluated at now.
type Func func(r Record, now time.Time) (domain.Market, error)

// Batch maps every record with fn, skipping the ones that fail to map.
// It returns the mapped markets and the number of skipped records.
func Batch(records []Record, fn Func, now time.Time) ([]domain.Market, int) {
	out := make([]domain.Market, 0, len(records))
	skipped := 0
	for _, r := range records {
		m, err := fn(r, now)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, m)
	}
	return out, skipped
}

// Records converts a slice of decoded JSON values into Records, dropping
// anything that is not an object.
func Records(values []any) []Record {
	out := make([]Record, 0, len(values))
	for _, v := range values {
		if obj, ok := v.(map[string]any); ok {
			out = append(out, Record(obj))
		}
	}
	return out
}

// lookup resolves a dotted path such as "yes.bid".
func (r Record) lookup(path string) (any, bool) {
	var cur any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String returns the first non-empty string (or number rendered as text).
func (r Record) String(keys ...string) string {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

// Float returns the first value that coerces to a finite number.
func (r Record) Float(keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// FloatOr is Float with a fallback.
func (r Record) FloatOr(fallback float64, keys ...string) float64 {
	if f, ok := r.Float(keys...); ok {
		return f
	}
	return fallback
}

// Bool reports whether any of the keys holds true (bool or "true").
func (r Record) Bool(keys ...string) bool {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			if t {
				return true
			}
		case string:
			if b, err := strconv.ParseBool(t); err == nil && b {
				return true
			}
		}
	}
	return false
}

// Time returns the first value that parses as a timestamp.
func (r Record) Time(keys ...string) (time.Time, bool) {
	for _, k := range keys {
		v, ok := r.lookup(k)
		if !ok {
			continue
		}
		if t, ok := toTime(v); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Objects returns the elements of an array field that are objects.
func (r Record) Objects(key string) []Record {
	v, ok := r.lookup(key)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	return Records(arr)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func toTime(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	// Epoch values above 1e12 are milliseconds.
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC(), true
	}
	return time.Unix(int64(f), 0).UTC(), true
}
