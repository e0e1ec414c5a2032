package domain

import "time"

// Session is a half-open [Open, Close) window of local wall-clock minutes on a trading day.
type Session struct {
	Open  int // minutes after midnight
	Close int
}

func hm(h, m int) int { return h*60 + m }

var (
	StockSession      = Session{Open: hm(9, 30), Close: hm(17, 30)}
	MutualFundSession = Session{Open: hm(17, 30), Close: hm(21, 0)}
)

// Contains reports whether t's wall clock falls inside the session.
func (s Session) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= s.Open && m < s.Close
}

// MarketClock decides per asset class whether now is a meaningful time to request a quote.
// The zero value uses now's own location and a Monday to Friday week.
type MarketClock struct {
	// Location, if set, converts timestamps before reading the wall clock.
	Location *time.Location
	// Holidays, if set, additionally excludes exchange holidays.
	Holidays HolidayCalendar
}

// IsQuoteDue is the pure due-ness rule: a first quote is always due, crypto is never polled,
// stocks and mutual funds are due inside their session on a trading day.
func (c MarketClock) IsQuoteDue(a *Asset, now time.Time) bool {
	if a.IsCrypto() {
		return false
	}
	if !a.FirstUpdate {
		return true
	}
	if c.Location != nil {
		now = now.In(c.Location)
	}
	if !c.isTradingDay(now) {
		return false
	}
	switch a.Class {
	case ClassMutualFund:
		return MutualFundSession.Contains(now)
	case ClassStock:
		return StockSession.Contains(now)
	}
	return false
}

func (c MarketClock) isTradingDay(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	if c.Holidays != nil {
		return c.Holidays.IsBusinessDay(t)
	}
	return true
}

// IsQuoteDue applies the default MarketClock.
func IsQuoteDue(a *Asset, now time.Time) bool {
	return MarketClock{}.IsQuoteDue(a, now)
}
