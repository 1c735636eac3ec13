package queue

import (
	"fmt"
	"strings"
	"time"
)

// Schedule yields the run following from. String must round-trip through
// ParseSchedule.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type every time.Duration

func (e every) Next(from time.Time) time.Time { return from.Add(time.Duration(e)) }
func (e every) String() string { return "every " + time.Duration(e).String() }

// daily fires at a wall clock time in the location of from.
type daily struct{ hour, minute int }

func (d daily) Next(from time.Time) time.Time {
	y, m, day := from.Date()
	at := time.Date(y, m, day, d.hour, d.minute, 0, 0, from.Location())
	if at.After(from) {
		return at
	}
	return at.AddDate(0, 0, 1)
}

func (d daily) String() string { return fmt.Sprintf("daily at %02d:%02d", d.hour, d.minute) }

func EveryInterval(d time.Duration) Schedule { return every(d) }

func DailyAt(hour, minute int) Schedule { return daily{hour: hour, minute: minute} }

// ParseSchedule reads "every <duration>" and "daily at HH:MM", case and
// surrounding space insensitive.
func ParseSchedule(s string) (Schedule, error) {
	in := strings.ToLower(strings.TrimSpace(s))

	if rest, ok := strings.CutPrefix(in, "every "); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(rest)); err == nil && d > 0 {
			return EveryInterval(d), nil
		}
	} else if rest, ok := strings.CutPrefix(in, "daily at "); ok {
		var h, m int
		_, err := fmt.Sscanf(strings.TrimSpace(rest), "%d:%d", &h, &m)
		if err == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return DailyAt(h, m), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, s)
}
