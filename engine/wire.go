/*
wire.go - JSON exchange format for recurrence rules and completions

PURPOSE:
  Recurrence rules travel between client and server as a tagged JSON
  structure; completion records as flat objects. This file converts
  between the wire shapes and the domain types, validating on the way
  in and producing a canonical form on the way out.

JSON SCHEMA (recurrence):
  {
    "type": "monthly",
    "startDate": "2024-01-01T00:00:00Z",
    "endDate": "2024-12-31T00:00:00Z",
    "interval": 2,
    "days": [1, 3, 5],
    "dayOfMonth": [15],
    "weekPattern": {"ordinal": -1, "dayOfWeek": 5},
    "month": 6,
    "additionalDates": ["2024-06-02T00:00:00Z"]
  }

  Dates are ISO-8601 UTC-midnight strings; bare "2006-01-02" dates are
  accepted on input. Fields irrelevant to the tagged type are ignored
  on input and omitted on output.

ROUND-TRIP GUARANTEE:
  DecodeRecurrence(EncodeRecurrence(r)) yields a rule equal to r for
  every valid r.

SEE ALSO:
  - recurrence.go: Domain type and validation
  - completion.go: Domain completion record
*/
package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// WIRE SHAPES
// =============================================================================

// RecurrenceJSON is the tagged wire representation of a rule.
type RecurrenceJSON struct {
	Type            string           `json:"type"`
	StartDate       string           `json:"startDate,omitempty"`
	EndDate         string           `json:"endDate,omitempty"`
	Interval        int              `json:"interval,omitempty"`
	Days            []int            `json:"days,omitempty"`
	DayOfMonth      []int            `json:"dayOfMonth,omitempty"`
	WeekPattern     *WeekPatternJSON `json:"weekPattern,omitempty"`
	Month           int              `json:"month,omitempty"`
	AdditionalDates []string         `json:"additionalDates,omitempty"`
}

type WeekPatternJSON struct {
	Ordinal   int `json:"ordinal"`
	DayOfWeek int `json:"dayOfWeek"`
}

// CompletionJSON is the wire representation of a completion record.
type CompletionJSON struct {
	TaskID      string     `json:"taskId"`
	Date        string     `json:"date"`
	Outcome     string     `json:"outcome,omitempty"`
	Note        string     `json:"note,omitempty"`
	ActualValue string     `json:"actualValue,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// =============================================================================
// RECURRENCE CODEC
// =============================================================================

// EncodeRecurrence converts a rule to its wire shape.
func EncodeRecurrence(r *Recurrence) *RecurrenceJSON {
	if r == nil {
		return nil
	}
	out := &RecurrenceJSON{
		Type:     string(r.Kind),
		Interval: r.Interval,
		Month:    r.Month,
	}
	if !r.Start.IsZero() {
		out.StartDate = wireDay(r.Start)
	}
	if !r.End.IsZero() {
		out.EndDate = wireDay(r.End)
	}
	if len(r.Days) > 0 {
		out.Days = append([]int(nil), r.Days...)
	}
	if len(r.DaysOfMonth) > 0 {
		out.DayOfMonth = append([]int(nil), r.DaysOfMonth...)
	}
	if r.WeekPattern != nil {
		out.WeekPattern = &WeekPatternJSON{Ordinal: r.WeekPattern.Ordinal, DayOfWeek: r.WeekPattern.DayOfWeek}
	}
	for _, d := range r.AdditionalDates {
		out.AdditionalDates = append(out.AdditionalDates, wireDay(d))
	}
	return out
}

// DecodeRecurrence converts the wire shape to a validated rule.
func DecodeRecurrence(j *RecurrenceJSON) (*Recurrence, error) {
	if j == nil {
		return nil, nil
	}
	r := &Recurrence{
		Kind:     Kind(j.Type),
		Interval: j.Interval,
		Month:    j.Month,
	}
	var err error
	if j.StartDate != "" {
		if r.Start, err = ParseDay(j.StartDate); err != nil {
			return nil, &InvalidRecurrenceError{Kind: r.Kind, Reason: "bad startDate: " + err.Error()}
		}
	}
	if j.EndDate != "" {
		if r.End, err = ParseDay(j.EndDate); err != nil {
			return nil, &InvalidRecurrenceError{Kind: r.Kind, Reason: "bad endDate: " + err.Error()}
		}
	}
	if len(j.Days) > 0 {
		r.Days = append([]int(nil), j.Days...)
	}
	if len(j.DayOfMonth) > 0 {
		r.DaysOfMonth = append([]int(nil), j.DayOfMonth...)
	}
	if j.WeekPattern != nil {
		r.WeekPattern = &WeekPattern{Ordinal: j.WeekPattern.Ordinal, DayOfWeek: j.WeekPattern.DayOfWeek}
	}
	for _, s := range j.AdditionalDates {
		d, err := ParseDay(s)
		if err != nil {
			return nil, &InvalidRecurrenceError{Kind: r.Kind, Reason: "bad additionalDate: " + err.Error()}
		}
		r.AdditionalDates = append(r.AdditionalDates, d)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// ParseRecurrenceJSON decodes a raw JSON document into a rule.
func ParseRecurrenceJSON(raw []byte) (*Recurrence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var j RecurrenceJSON
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("recurrence json: %w", err)
	}
	return DecodeRecurrence(&j)
}

// MarshalRecurrenceJSON encodes a rule to a raw JSON document.
// A nil rule encodes as JSON null.
func MarshalRecurrenceJSON(r *Recurrence) ([]byte, error) {
	return json.Marshal(EncodeRecurrence(r))
}

// =============================================================================
// COMPLETION CODEC
// =============================================================================

// EncodeCompletion converts a record to its wire shape.
func EncodeCompletion(c Completion) CompletionJSON {
	return CompletionJSON{
		TaskID:      string(c.TaskID),
		Date:        wireDay(c.Day),
		Outcome:     string(c.Outcome),
		Note:        c.Note,
		ActualValue: c.ActualValue,
		StartedAt:   c.StartedAt,
		CompletedAt: c.CompletedAt,
	}
}

// DecodeCompletion converts the wire shape to a domain record.
func DecodeCompletion(j CompletionJSON) (Completion, error) {
	day, err := ParseDay(j.Date)
	if err != nil {
		return Completion{}, fmt.Errorf("completion date: %w", err)
	}
	return Completion{
		TaskID:      TaskID(j.TaskID),
		Day:         day,
		Outcome:     Outcome(j.Outcome),
		Note:        j.Note,
		ActualValue: j.ActualValue,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
	}, nil
}

// wireDay formats a day as the ISO UTC-midnight string the clients use.
func wireDay(d Day) string {
	return d.Time().Format(time.RFC3339)
}
