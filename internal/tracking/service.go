// Package tracking reads and records water, sleep and step entries per day
// and scores them against the user's goal.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"fitgram/internal/apiclient"
)

const DateLayout = "2006-01-02"

// Tracker runs one metric's calls for one viewer.
type Tracker struct {
	metric Metric
	api    *apiclient.Caller
	now    func() time.Time
}

func NewTracker(m Metric, api *apiclient.Caller) *Tracker {
	return &Tracker{metric: m, api: api, now: time.Now}
}

func (t *Tracker) Metric() Metric { return t.metric }

// FetchGoal loads the user's target. The API answers with a bare number or
// an object carrying it.
func (t *Tracker) FetchGoal(ctx context.Context) (float64, error) {
	var raw json.RawMessage
	if err := t.api.Get(ctx, t.metric.goalPath(), &raw); err != nil {
		return 0, err
	}
	goal, ok := t.numberIn(raw, "goal")
	if !ok {
		return 0, nil
	}
	return goal, nil
}

func (t *Tracker) FetchEntriesByDate(ctx context.Context, date string) ([]Entry, error) {
	if err := validDate(date); err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := t.api.Post(ctx, t.metric.byDatePath(), map[string]string{"date": date}, &raw); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		value, ok := t.numberIn(item, "value")
		if !ok {
			continue
		}
		entryDate := date
		var withDate struct {
			Date string `json:"date"`
		}
		if json.Unmarshal(item, &withDate) == nil && withDate.Date != "" {
			entryDate = withDate.Date
		}
		entries = append(entries, Entry{Date: entryDate, Value: value})
	}
	return entries, nil
}

// AddEntry validates before any request is sent.
func (t *Tracker) AddEntry(ctx context.Context, date string, value float64) error {
	if err := validDate(date); err != nil {
		return err
	}
	if err := t.validValue(value); err != nil {
		return err
	}
	return t.api.Post(ctx, t.metric.addPath(), map[string]any{
		"date":         date,
		t.metric.Field: value,
	}, nil)
}

// DeleteEntry removes every entry recorded for date.
func (t *Tracker) DeleteEntry(ctx context.Context, date string) error {
	if err := validDate(date); err != nil {
		return err
	}
	return t.api.Delete(ctx, t.metric.deletePath(), map[string]string{"date": date}, nil)
}

// Day assembles the page view for date.
func (t *Tracker) Day(ctx context.Context, date string) (Day, error) {
	entries, err := t.FetchEntriesByDate(ctx, date)
	if err != nil {
		return Day{}, err
	}
	goal, err := t.FetchGoal(ctx)
	if err != nil {
		return Day{}, err
	}
	total := Sum(entries)
	return Day{
		Metric:   t.metric,
		Date:     date,
		Goal:     goal,
		Entries:  entries,
		Total:    total,
		Progress: ComputeProgress(total, goal),
		LoadedAt: t.now().UTC(),
	}, nil
}

func Sum(entries []Entry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Value
	}
	return total
}

// ComputeProgress scores current against goal. Display is clamped to
// [0,100]; Raw is not.
func ComputeProgress(current, goal float64) Progress {
	if goal <= 0 {
		return Progress{}
	}
	raw := current / goal * 100
	return Progress{
		Raw:      raw,
		Display:  math.Max(0, math.Min(100, raw)),
		Achieved: raw >= 100,
	}
}

// Today is the date the pages open on.
func Today(now time.Time) string {
	return now.Format(DateLayout)
}

func validDate(date string) error {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return apiclient.Validation("Pick a valid date (YYYY-MM-DD).")
	}
	return nil
}

func (t *Tracker) validValue(value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return apiclient.Validation("Enter a positive number.")
	}
	if value > t.metric.Max {
		return apiclient.Validation(fmt.Sprintf("Value cannot exceed %s %s.", strconv.FormatFloat(t.metric.Max, 'f', -1, 64), t.metric.Unit))
	}
	return nil
}

// numberIn reads a number from raw: either raw itself, or key, or the
// metric's wire field inside an object.
func (t *Tracker) numberIn(raw json.RawMessage, key string) (float64, bool) {
	var n float64
	if json.Unmarshal(raw, &n) == nil {
		return n, true
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) != nil {
		return 0, false
	}
	for _, k := range []string{key, t.metric.Field, "goal"} {
		switch v := obj[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
