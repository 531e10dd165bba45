// Package history aggregates charging session lists into energy totals over a time window.
package history

import (
	"encoding/json"
	"math"
	"time"
)

// ISOLayout matches JavaScript's Date.toISOString output.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// Day is the span of the rolling history window.
const Day = 24 * time.Hour

// EnergyFields is the precedence list used to read the energy of one session record.
// The first field present with a non-null value wins, even when a later field disagrees.
var EnergyFields = []string{"kwh", "energy", "totalEnergy", "total_kwh"}

type Window struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	SessionsCount int     `json:"sessionsCount"`
	TotalKwh      float64 `json:"totalKwh"`
	Sessions      []any   `json:"sessions"`

	// Set by the live stream when a window is reused between passes
	ComputedAt string `json:"computedAt,omitempty"`
	AgeSeconds *int   `json:"ageSeconds,omitempty"`
}

// FormatISO renders t in ISOLayout, in UTC.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOLayout)
}

// isoLayouts are the ISO 8601 forms accepted for caller supplied bounds. Fractional
// seconds are accepted by every layout with seconds.
var isoLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.DateOnly,
}

// ParseISO parses an ISO 8601 timestamp or date. Values without a zone are read as UTC.
func ParseISO(value string) (time.Time, error) {
	var err error
	for _, layout := range isoLayouts {
		var t time.Time
		if t, err = time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// LastDay returns the ISO bounds of the 24 hours ending at now.
func LastDay(now time.Time) (from, to string) {
	return FormatISO(now.Add(-Day)), FormatISO(now)
}

// Energy returns the energy in kWh of a single session record. A winning field that is
// not numeric contributes 0.
func Energy(record any) float64 {
	fields, ok := record.(map[string]any)
	if !ok {
		return 0
	}
	for _, name := range EnergyFields {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		return number(v)
	}
	return 0
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) {
			return 0
		}
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Aggregate builds the window summary for records between from and to.
func Aggregate(from, to string, records []any) Window {
	if records == nil {
		records = []any{}
	}
	total := 0.0
	for _, r := range records {
		total += Energy(r)
	}
	return Window{
		From:          from,
		To:            to,
		SessionsCount: len(records),
		TotalKwh:      total,
		Sessions:      records,
	}
}

// ParseSessions decodes an upstream session list. Anything that is not a JSON array
// yields an empty list.
func ParseSessions(raw json.RawMessage) []any {
	var records []any
	if err := json.Unmarshal(raw, &records); err != nil || records == nil {
		return []any{}
	}
	return records
}

// Relabel returns a copy of w stamped with when it was computed and how old it is at now.
func (w Window) Relabel(computedAt, now time.Time) Window {
	age := int(now.Sub(computedAt) / time.Second)
	if age < 0 {
		age = 0
	}
	w.ComputedAt = FormatISO(computedAt)
	w.AgeSeconds = &age
	return w
}
