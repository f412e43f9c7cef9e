// Package markethours gates signal emission on the trading session and grades
// how fresh the latest market data is.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // session timezone must resolve in minimal containers
)

// Config describes the trading session in local exchange time.
type Config struct {
	Timezone    string   `yaml:"timezone" default:"Europe/Zurich" validate:"required"`
	OpenHour    int      `yaml:"open_hour" default:"8" validate:"min=0,max=23"`
	OpenMinute  int      `yaml:"open_minute" validate:"min=0,max=59"`
	CloseHour   int      `yaml:"close_hour" default:"23" validate:"min=0,max=24"`
	CloseMinute int      `yaml:"close_minute" validate:"min=0,max=59"`
	Holidays    []string `yaml:"holidays"` // YYYY-MM-DD
}

// DefaultConfig returns the 08:00-23:00 Zurich session.
func DefaultConfig() Config {
	return Config{Timezone: "Europe/Zurich", OpenHour: 8, CloseHour: 23}
}

// Session answers session questions for one configured window.
type Session struct {
	loc      *time.Location
	open     int // minutes after midnight
	close    int
	holidays map[string]bool
}

// NewSession resolves the timezone and parses the holiday list.
func NewSession(cfg Config) (*Session, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("markethours: timezone %q: %w", cfg.Timezone, err)
	}
	s := &Session{
		loc:      loc,
		open:     cfg.OpenHour*60 + cfg.OpenMinute,
		close:    cfg.CloseHour*60 + cfg.CloseMinute,
		holidays: make(map[string]bool, len(cfg.Holidays)),
	}
	if s.close <= s.open {
		return nil, fmt.Errorf("markethours: close %02d:%02d not after open %02d:%02d",
			cfg.CloseHour, cfg.CloseMinute, cfg.OpenHour, cfg.OpenMinute)
	}
	for _, h := range cfg.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h, loc)
		if err != nil {
			return nil, fmt.Errorf("markethours: holiday %q: %w", h, err)
		}
		s.holidays[d.Format("2006-01-02")] = true
	}
	return s, nil
}

// Location returns the session timezone.
func (s *Session) Location() *time.Location { return s.loc }

// IsHoliday returns true if the local date of t is a configured holiday.
func (s *Session) IsHoliday(t time.Time) bool {
	return s.holidays[t.In(s.loc).Format("2006-01-02")]
}

// IsTradingDay returns true if t is Mon-Fri and not a holiday.
func (s *Session) IsTradingDay(t time.Time) bool {
	local := t.In(s.loc)
	wd := local.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !s.IsHoliday(local)
}

// IsOpen returns true if t falls within the session window on a trading day.
func (s *Session) IsOpen(t time.Time) bool {
	local := t.In(s.loc)
	if !s.IsTradingDay(local) {
		return false
	}
	hm := local.Hour()*60 + local.Minute()
	return hm >= s.open && hm < s.close
}

func (s *Session) at(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, s.loc)
}

// NextOpen returns the next session open. If t is before today's open on a
// trading day, returns today's open.
func (s *Session) NextOpen(t time.Time) time.Time {
	local := t.In(s.loc)
	if todayOpen := s.at(local, s.open); local.Before(todayOpen) && s.IsTradingDay(local) {
		return todayOpen
	}
	d := local.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ {
		if s.IsTradingDay(d) {
			return s.at(d, s.open)
		}
		d = d.AddDate(0, 0, 1)
	}
	return s.at(local.AddDate(0, 0, 1), s.open)
}

// TimeUntilClose returns the duration until today's close, 0 when closed.
func (s *Session) TimeUntilClose(t time.Time) time.Duration {
	if !s.IsOpen(t) {
		return 0
	}
	return s.at(t.In(s.loc), s.close).Sub(t)
}

// StatusString returns a human-readable session status.
func (s *Session) StatusString(t time.Time) string {
	if s.IsOpen(t) {
		return fmt.Sprintf("Session open, closes in %s", fmtDur(s.TimeUntilClose(t)))
	}
	next := s.NextOpen(t)
	return fmt.Sprintf("Session closed, opens %s %s (%s)",
		next.Weekday().String()[:3], next.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
