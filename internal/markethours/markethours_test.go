package markethours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(t *testing.T, holidays ...string) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Holidays = holidays
	s, err := NewSession(cfg)
	require.NoError(t, err)
	return s
}

func TestIsOpen(t *testing.T) {
	s := newSession(t, "2024-12-25")
	zrh := s.Location()

	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 5, 7, 59, 0, 0, zrh), false},
		{"at open", time.Date(2024, 3, 5, 8, 0, 0, 0, zrh), true},
		{"evening", time.Date(2024, 3, 5, 22, 59, 0, 0, zrh), true},
		{"at close", time.Date(2024, 3, 5, 23, 0, 0, 0, zrh), false},
		{"saturday", time.Date(2024, 3, 9, 12, 0, 0, 0, zrh), false},
		{"holiday", time.Date(2024, 12, 25, 12, 0, 0, 0, zrh), false},
		// 06:30 UTC is 07:30 CET: still closed
		{"utc input", time.Date(2024, 3, 5, 6, 30, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.IsOpen(tt.t))
		})
	}
}

func TestNextOpen(t *testing.T) {
	s := newSession(t)
	zrh := s.Location()

	// Friday evening -> Monday 08:00
	got := s.NextOpen(time.Date(2024, 3, 8, 23, 30, 0, 0, zrh))
	assert.Equal(t, time.Date(2024, 3, 11, 8, 0, 0, 0, zrh), got)

	// Early Tuesday -> same day
	got = s.NextOpen(time.Date(2024, 3, 5, 6, 0, 0, 0, zrh))
	assert.Equal(t, time.Date(2024, 3, 5, 8, 0, 0, 0, zrh), got)
}

func TestTimeUntilClose(t *testing.T) {
	s := newSession(t)
	zrh := s.Location()
	assert.Equal(t, 90*time.Minute, s.TimeUntilClose(time.Date(2024, 3, 5, 21, 30, 0, 0, zrh)))
	assert.Equal(t, time.Duration(0), s.TimeUntilClose(time.Date(2024, 3, 9, 12, 0, 0, 0, zrh)))
	assert.Contains(t, s.StatusString(time.Date(2024, 3, 9, 12, 0, 0, 0, zrh)), "opens Mon 08:00")
}

func TestNewSession_Invalid(t *testing.T) {
	_, err := NewSession(Config{Timezone: "Mars/Olympus", OpenHour: 8, CloseHour: 23})
	assert.Error(t, err)

	_, err = NewSession(Config{Timezone: "UTC", OpenHour: 10, CloseHour: 9})
	assert.Error(t, err)

	_, err = NewSession(Config{Timezone: "UTC", OpenHour: 8, CloseHour: 23, Holidays: []string{"25.12.2024"}})
	assert.Error(t, err)
}

func TestGrade(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, Live, Grade(now.Add(-14*time.Minute), now))
	assert.Equal(t, Delayed, Grade(now.Add(-15*time.Minute), now))
	assert.Equal(t, Delayed, Grade(now.Add(-59*time.Minute), now))
	assert.Equal(t, Stale, Grade(now.Add(-2*time.Hour), now))
}
