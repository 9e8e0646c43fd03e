package recovery

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granularity point in time
// =============================================================================

// Date is a calendar day. Grants and leaves are closed intervals of Dates;
// hours within a day never matter to this engine.
type Date struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

func Today() Date {
	now := time.Now().UTC()
	return NewDate(now.Year(), now.Month(), now.Day())
}

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }
func (d Date) IsZero() bool                  { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

func (d Date) String() string { return d.normalize().Format(dateLayout) }

// =============================================================================
// DATE RANGE - Closed interval
// =============================================================================

type DateRange struct {
	Start Date
	End   Date
}

// Overlaps uses the closed-interval test: two ranges collide when
// a.Start <= b.End AND a.End >= b.Start.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start.BeforeOrEqual(other.End) && r.End.AfterOrEqual(other.Start)
}

func (r DateRange) String() string {
	return r.Start.String() + " - " + r.End.String()
}

// FormatRanges renders colliding ranges for conflict messages.
func FormatRanges(ranges []DateRange) string {
	out := ""
	for i, r := range ranges {
		if i > 0 {
			out += ", "
		}
		out += r.String()
	}
	return out
}
