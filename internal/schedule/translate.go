// Package schedule maps the UI's refresh-interval buckets onto cron
// expressions and resolves which schedule a query definition actually runs
// on.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/plotly/falcon/internal/domain"
)

// Refresh-interval buckets exposed by the UI, in seconds.
const (
	OneMinute   = 60
	FiveMinutes = 300
	OneHour     = 3600
	OneDay      = 86400
	OneWeek     = 604800
)

const maxCronMinute = 59

// Parser accepts the five-field expressions stored by current clients and
// the six-field (leading seconds) expressions written by older ones.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// RefreshToCron maps a refresh interval to a cron expression. The minute,
// hour, and weekday anchors are captured from now at translation time; they
// pin the phase of the recurring schedule and are never recomputed.
func RefreshToCron(refreshInterval int64, now time.Time) string {
	switch {
	case refreshInterval <= OneMinute:
		return "* * * * *"
	case refreshInterval <= FiveMinutes:
		return fmt.Sprintf("%d %s * * * *", now.Second(), fiveMinuteMarks(now))
	case refreshInterval <= OneHour:
		return fmt.Sprintf("%d * * * *", now.Minute())
	case refreshInterval <= OneDay:
		return fmt.Sprintf("%d %d * * *", now.Minute(), now.Hour())
	default:
		return fmt.Sprintf("%d %d * * %d", now.Minute(), now.Hour(), int(now.Weekday()))
	}
}

// fiveMinuteMarks lists every fifth minute starting from now's offset within
// the current five-minute block, e.g. "2,7,12,...,57".
func fiveMinuteMarks(now time.Time) string {
	marks := make([]string, 0, 12)
	for m := now.Minute() % 5; m < maxCronMinute; m += 5 {
		marks = append(marks, fmt.Sprintf("%d", m))
	}
	return strings.Join(marks, ",")
}

// CronToRefresh is the best-effort inverse of RefreshToCron, used only for
// display. It recognizes the shapes RefreshToCron emits and rounds anything
// else up to the weekly bucket.
func CronToRefresh(cronExpr string) int64 {
	fields := strings.Fields(cronExpr)
	switch len(fields) {
	case 5:
		switch {
		case fields[0] == "*":
			return OneMinute
		case strings.Contains(fields[0], ","):
			return FiveMinutes
		case fields[1] == "*":
			return OneHour
		case fields[3] == "*" && fields[4] == "*":
			return OneDay
		default:
			return OneWeek
		}
	case 6:
		// Leading-seconds form; shift every check right by one field.
		switch {
		case fields[1] == "*":
			return OneMinute
		case strings.Contains(fields[1], ","):
			return FiveMinutes
		case fields[2] == "*":
			return OneHour
		case fields[4] == "*" && fields[5] == "*":
			return OneDay
		default:
			return OneWeek
		}
	default:
		return OneWeek
	}
}

// Resolve returns the effective cron expression for a definition. A stored
// cron expression always wins over the refresh interval; the interval is
// retained only for display. Refresh intervals below minRefresh are
// rejected.
func Resolve(def *domain.QueryDefinition, minRefresh int64) (string, error) {
	if def.CronInterval != "" {
		if _, err := Parser.Parse(def.CronInterval); err != nil {
			return "", domain.ErrInvalidSchedule("invalid cron expression %q: %v", def.CronInterval, err)
		}
		return def.CronInterval, nil
	}
	if def.RefreshInterval > 0 {
		if def.RefreshInterval < minRefresh {
			return "", domain.ErrInvalidSchedule(
				"refresh interval must be at least %d seconds, got %d", minRefresh, def.RefreshInterval,
			)
		}
		return RefreshToCron(def.RefreshInterval, time.Now()), nil
	}
	return "", domain.ErrInvalidSchedule("query must define either cronInterval or refreshInterval")
}

// NextAfter computes the next firing of a cron expression after t.
func NextAfter(cronExpr string, t time.Time) (time.Time, error) {
	sched, err := Parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, domain.ErrInvalidSchedule("invalid cron expression %q: %v", cronExpr, err)
	}
	return sched.Next(t), nil
}
