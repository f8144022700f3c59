package scraper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestLastDays(t *testing.T) {
	now := time.Date(2024, 5, 10, 23, 30, 0, 0, time.UTC)

	r := LastDays(now, 4)
	assert.Equal(t, day("2024-05-07"), r.From)
	assert.Equal(t, day("2024-05-10"), r.To)
	assert.Equal(t, 4, r.Days())

	assert.Equal(t, LastDays(now, 1), LastDays(now, 0), "n below 1 means today")
	assert.Equal(t, 1, LastDays(now, -3).Days())
}

func TestLastDays_UsesLocalCalendarDate(t *testing.T) {
	msk := time.FixedZone("MSK", 3*3600)
	now := time.Date(2024, 5, 11, 1, 0, 0, 0, msk)
	assert.Equal(t, day("2024-05-11"), LastDays(now, 1).From)
}

func TestBetween_SwapsReversedBounds(t *testing.T) {
	r := Between(day("2024-05-07"), day("2024-05-01"))
	assert.Equal(t, day("2024-05-01"), r.From)
	assert.Equal(t, day("2024-05-07"), r.To)
	assert.Equal(t, 7, r.Days())
}

func TestDateRange_Contains(t *testing.T) {
	r := Between(day("2024-05-01"), day("2024-05-03"))
	assert.True(t, r.Contains(day("2024-05-01")))
	assert.True(t, r.Contains(time.Date(2024, 5, 3, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(day("2024-04-30")))
	assert.False(t, r.Contains(day("2024-05-04")))
}

func TestParseWindow(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		mode     string
		days     int
		date     string
		from, to string
		want     DateRange
		wantErr  bool
	}{
		{name: "default", want: LastDays(now, DefaultWindowDays)},
		{name: "recent", mode: "recent", days: 7, want: LastDays(now, 7)},
		{name: "yesterday", mode: "Yesterday", want: SingleDay(day("2024-05-09"))},
		{name: "date", mode: "date", date: "2024-04-01", want: SingleDay(day("2024-04-01"))},
		{name: "range", mode: "range", from: "2024-05-05", to: "2024-05-01", want: Between(day("2024-05-01"), day("2024-05-05"))},
		{name: "bad date", mode: "date", date: "01.04.2024", wantErr: true},
		{name: "missing to", mode: "range", from: "2024-05-01", wantErr: true},
		{name: "unknown mode", mode: "weekly", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.mode, tt.days, tt.date, tt.from, tt.to, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWindowSpec_Label(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	ws := WindowSpec{Mode: ModeRecent, Days: 1}
	r, _ := ws.Resolve(now)
	assert.Equal(t, "today", ws.Label(r))

	ws = WindowSpec{Mode: ModeRecent, Days: 7}
	r, _ = ws.Resolve(now)
	assert.Equal(t, "last 7 days", ws.Label(r))

	ws = WindowSpec{Mode: ModeRange, From: "2024-05-01", To: "2024-05-03"}
	r, _ = ws.Resolve(now)
	assert.Equal(t, "01.05.2024 - 03.05.2024", ws.Label(r))
}

func TestParseLastmod(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2024-05-10", "2024-05-10", true},
		{"2024-05-10T23:30:00+03:00", "2024-05-10", true},
		{"  2024-05-10T01:00:00Z ", "2024-05-10", true},
		{"Fri, 10 May 2024 08:00:00 +0300", "2024-05-10", true},
		{"10.05.2024", "2024-05-10", true},
		{"", "", false},
		{"yesterday", "", false},
		{"2024-13-45", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLastmod(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.Equal(t, day(tt.want), got, tt.in)
		}
	}
}

func TestDateFromURL(t *testing.T) {
	got, ok := DateFromURL("https://tv.example.ru/news/2024/05/09/budget-hearing")
	require.True(t, ok)
	assert.Equal(t, day("2024-05-09"), got)

	_, ok = DateFromURL("https://tv.example.ru/news/budget-hearing")
	assert.False(t, ok)

	_, ok = DateFromURL("https://tv.example.ru/2024/19/40/x")
	assert.False(t, ok)
}
