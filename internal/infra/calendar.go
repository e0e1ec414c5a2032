package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// ExchangeCalendar adapts an scmhub exchange calendar to domain.HolidayCalendar.
type ExchangeCalendar struct {
	MIC string
	cal *calendar.Calendar
}

// NewExchangeCalendar loads the calendar for a market identifier code such as "xnys".
func NewExchangeCalendar(mic string) (*ExchangeCalendar, error) {
	mic = strings.ToLower(strings.TrimSpace(mic))
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return nil, fmt.Errorf("unknown exchange calendar %q", mic)
	}
	return &ExchangeCalendar{MIC: mic, cal: cal}, nil
}

// IsBusinessDay reports whether the exchange trades on t's calendar date.
// The date is read in the caller's zone so the wall-clock rule and the holiday rule agree.
func (c *ExchangeCalendar) IsBusinessDay(t time.Time) bool {
	loc := c.cal.Loc
	if loc == nil {
		loc = time.UTC
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, loc)
	return c.cal.IsBusinessDay(day)
}
