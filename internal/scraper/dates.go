package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Window modes accepted by WindowSpec.
const (
	ModeRecent    = "recent"
	ModeYesterday = "yesterday"
	ModeDate      = "date"
	ModeRange     = "range"
)

// DefaultWindowDays is the quick period used when no mode is configured.
const DefaultWindowDays = 4

// QuickPeriods lists the recent-day presets offered to dashboard users.
var QuickPeriods = []int{1, 3, 4, 7, 14, 30, 90}

// DateRange is an inclusive range of calendar days. From and To are always
// midnight UTC of the civil date they represent.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// civilDate drops the clock and the zone of t, keeping the calendar date as
// seen in t's own location.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LastDays returns the n most recent days ending today. n below 1 is treated
// as 1 (today only).
func LastDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	today := civilDate(now)
	return DateRange{From: today.AddDate(0, 0, -(n - 1)), To: today}
}

// SingleDay returns a range covering exactly the calendar day of d.
func SingleDay(d time.Time) DateRange {
	day := civilDate(d)
	return DateRange{From: day, To: day}
}

// Between returns the range spanning a and b, in either order.
func Between(a, b time.Time) DateRange {
	from, to := civilDate(a), civilDate(b)
	if to.Before(from) {
		from, to = to, from
	}
	return DateRange{From: from, To: to}
}

// Contains reports whether the calendar day of d lies inside the range.
func (r DateRange) Contains(d time.Time) bool {
	day := civilDate(d)
	return !day.Before(r.From) && !day.After(r.To)
}

// Days returns the inclusive number of days in the range.
func (r DateRange) Days() int {
	return int(r.To.Sub(r.From).Hours()/24) + 1
}

func (r DateRange) String() string {
	return r.From.Format("2006-01-02") + ".." + r.To.Format("2006-01-02")
}

// WindowSpec is the user-facing description of a date window, as it arrives
// from configuration, CLI flags or the API.
type WindowSpec struct {
	Mode string `json:"mode"`
	Days int    `json:"days,omitempty"`
	Date string `json:"date,omitempty"`
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Resolve normalizes the window into a DateRange relative to now.
func (s WindowSpec) Resolve(now time.Time) (DateRange, error) {
	switch strings.ToLower(strings.TrimSpace(s.Mode)) {
	case "", ModeRecent:
		days := s.Days
		if days == 0 {
			days = DefaultWindowDays
		}
		return LastDays(now, days), nil
	case ModeYesterday:
		return SingleDay(civilDate(now).AddDate(0, 0, -1)), nil
	case ModeDate:
		d, err := time.Parse("2006-01-02", strings.TrimSpace(s.Date))
		if err != nil {
			return DateRange{}, fmt.Errorf("window: date %q: %w", s.Date, err)
		}
		return SingleDay(d), nil
	case ModeRange:
		from, err := time.Parse("2006-01-02", strings.TrimSpace(s.From))
		if err != nil {
			return DateRange{}, fmt.Errorf("window: from %q: %w", s.From, err)
		}
		to, err := time.Parse("2006-01-02", strings.TrimSpace(s.To))
		if err != nil {
			return DateRange{}, fmt.Errorf("window: to %q: %w", s.To, err)
		}
		return Between(from, to), nil
	default:
		return DateRange{}, fmt.Errorf("window: unknown mode %q", s.Mode)
	}
}

// ParseWindow resolves the loose window parameters received from a flag set
// or query string.
func ParseWindow(mode string, days int, date, from, to string, now time.Time) (DateRange, error) {
	return WindowSpec{Mode: mode, Days: days, Date: date, From: from, To: to}.Resolve(now)
}

// Label renders a short human description used as the session period.
func (s WindowSpec) Label(r DateRange) string {
	switch strings.ToLower(strings.TrimSpace(s.Mode)) {
	case ModeYesterday:
		return "yesterday"
	case ModeDate:
		return r.From.Format("02.01.2006")
	case ModeRange:
		return r.From.Format("02.01.2006") + " - " + r.To.Format("02.01.2006")
	}
	if r.Days() == 1 {
		return "today"
	}
	return fmt.Sprintf("last %d days", r.Days())
}

var (
	reISODate  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	reURLDate  = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)
	dateLayout = []string{
		time.RFC1123Z,
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		"Mon, 2 Jan 2006 15:04:05 MST",
		"02 Jan 2006 15:04:05 -0700",
		"02.01.2006",
	}
)

// ParseLastmod extracts the calendar date encoded in a sitemap lastmod value.
// ISO values keep the date written in the string; the offset is not applied.
func ParseLastmod(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if m := reISODate.FindString(s); m != "" {
		t, err := time.Parse("2006-01-02", m)
		if err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	for _, layout := range dateLayout {
		if t, err := time.Parse(layout, s); err == nil {
			return civilDate(t), true
		}
	}
	return time.Time{}, false
}

// DateFromURL recovers a date from a /YYYY/MM/DD/ path segment.
func DateFromURL(rawURL string) (time.Time, bool) {
	m := reURLDate.FindStringSubmatch(rawURL)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
