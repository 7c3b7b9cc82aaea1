package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned when an interval does not start strictly before it ends.
var ErrInvalidRange = errors.New("invalid range")

// Interval is a half-open time range [start, end).
type Interval struct {
	start time.Time
	end   time.Time
}

// NewInterval validates and builds an interval.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: start %s is not before end %s",
			ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{start: start.UTC(), end: end.UTC()}, nil
}

// MustInterval is NewInterval for literals known to be valid.
func MustInterval(start, end time.Time) Interval {
	iv, err := NewInterval(start, end)
	if err != nil {
		panic(err)
	}
	return iv
}

func (i Interval) Start() time.Time { return i.start }
func (i Interval) End() time.Time   { return i.end }

func (i Interval) Duration() time.Duration { return i.end.Sub(i.start) }

func (i Interval) IsZero() bool { return i.start.IsZero() && i.end.IsZero() }

// Overlaps reports whether the two ranges share any instant.
// Ranges that only touch at a boundary do not overlap.
func (i Interval) Overlaps(other Interval) bool {
	return i.start.Before(other.end) && other.start.Before(i.end)
}

// Contains reports whether t lies in [start, end).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.start) && t.Before(i.end)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.start.Format(time.RFC3339), i.end.Format(time.RFC3339))
}

type intervalJSON struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{Start: i.start, End: i.end})
}

func (i *Interval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	iv, err := NewInterval(raw.Start, raw.End)
	if err != nil {
		return err
	}
	*i = iv
	return nil
}
