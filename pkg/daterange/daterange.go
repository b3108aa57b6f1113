package daterange

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in the database
const DateLayout = "2006-01-02"

// MaxSpanDays caps how many calendar days a single plan may cover
const MaxSpanDays = 731

// Options describes a capacity plan's date window and its skip rules
type Options struct {
	Start        time.Time
	End          time.Time
	SkipWeekdays []time.Weekday
	// SkipWeekends replaces SkipWeekdays with {Sunday, Saturday}
	SkipWeekends bool
	SkipDates    []time.Time
}

// Result is the outcome of expanding Options into concrete days
type Result struct {
	Dates    []time.Time
	Excluded []time.Time
}

// Normalize truncates t to its UTC calendar day
func Normalize(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into a UTC calendar day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// ParseDates parses every entry of values with ParseDate
func ParseDates(values []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(values))
	for _, v := range values {
		d, err := ParseDate(v)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// ParseWeekdays converts weekday indices (0=Sunday ... 6=Saturday)
func ParseWeekdays(indices []int) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i > 6 {
			return nil, fmt.Errorf("invalid weekday %d, expected 0 (Sunday) to 6 (Saturday)", i)
		}
		days = append(days, time.Weekday(i))
	}
	return days, nil
}

// Format renders dates as YYYY-MM-DD strings
func Format(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(DateLayout)
	}
	return out
}

// SpanDays returns the inclusive number of calendar days between start and end
func SpanDays(start, end time.Time) int {
	s, e := Normalize(start), Normalize(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// EffectiveWeekdays returns the weekday set the generator will skip
func (o Options) EffectiveWeekdays() map[time.Weekday]bool {
	set := make(map[time.Weekday]bool, 7)
	if o.SkipWeekends {
		set[time.Sunday] = true
		set[time.Saturday] = true
		return set
	}
	for _, wd := range o.SkipWeekdays {
		set[wd] = true
	}
	return set
}

// Generate returns the ascending days in [Start, End] that survive the skip rules.
// Start after End yields an empty list.
func Generate(opts Options) []time.Time {
	return Expand(opts).Dates
}

// Expand is Generate that also reports which days the skip rules removed
func Expand(opts Options) Result {
	res := Result{Dates: []time.Time{}, Excluded: []time.Time{}}

	start, end := Normalize(opts.Start), Normalize(opts.End)
	if start.After(end) {
		return res
	}

	weekdays := opts.EffectiveWeekdays()
	skipDates := make(map[time.Time]bool, len(opts.SkipDates))
	for _, d := range opts.SkipDates {
		skipDates[Normalize(d)] = true
	}

	for current := start; !current.After(end); current = current.AddDate(0, 0, 1) {
		if weekdays[current.Weekday()] || skipDates[current] {
			res.Excluded = append(res.Excluded, current)
			continue
		}
		res.Dates = append(res.Dates, current)
	}

	return res
}
