// Package admission decides whether a switch may accept a new payment right
// now, based on the device's opening hours, per-switch cooldown and rolling
// daily quota.
package admission

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zoosats/devicetimer/internal/config"
	"github.com/zoosats/devicetimer/internal/model"
)

// Verdict is the three-way admission decision. Closed (outside hours or
// quota exhausted) and Wait (cooldown active) stay distinct because callers
// show different fallback content for each.
type Verdict int

const (
	Open Verdict = iota + 1
	Closed
	Wait
)

func (v Verdict) String() string {
	switch v {
	case Open:
		return "open"
	case Closed:
		return "closed"
	case Wait:
		return "wait"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// History is the read-only slice of the payment store the evaluator needs.
type History interface {
	LastSettled(ctx context.Context, deviceID, switchID string) (*model.Payment, error)
	CountSettledSince(ctx context.Context, deviceID, switchID string, since time.Time) (int, error)
}

type Evaluator struct {
	history History
}

func NewEvaluator(history History) *Evaluator {
	return &Evaluator{history: history}
}

var timeOfDayRegex = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// ParseMinutes converts an "HH:MM" opening-hours string to minutes of day.
func ParseMinutes(timestr string) (int, error) {
	m := timeOfDayRegex.FindStringSubmatch(timestr)
	if m == nil {
		return 0, fmt.Errorf("illegal time format %q, want HH:MM", timestr)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	return hours*60 + minutes, nil
}

// Evaluate returns the admission verdict for (device, switch) at now. Wall
// clock is sampled once by the caller so a single decision never sees two
// different nows.
func (e *Evaluator) Evaluate(ctx context.Context, device *model.Device, sw *model.Switch, now time.Time) (Verdict, error) {
	loc, err := time.LoadLocation(device.Timezone)
	if err != nil {
		return 0, fmt.Errorf("load timezone %q: %w", device.Timezone, err)
	}
	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	start, err := ParseMinutes(device.AvailableStart)
	if err != nil {
		return 0, err
	}
	stop, err := ParseMinutes(device.AvailableStop)
	if err != nil {
		return 0, err
	}

	if !insideWindow(minutes, start, stop) {
		return Closed, nil
	}

	if device.MaxPerDay > 0 {
		count, err := e.history.CountSettledSince(ctx, device.ID, sw.ID, now.Add(-config.QuotaWindow))
		if err != nil {
			return 0, err
		}
		if count >= device.MaxPerDay {
			return Closed, nil
		}
	}

	last, err := e.history.LastSettled(ctx, device.ID, sw.ID)
	if err != nil {
		return 0, err
	}
	if last == nil {
		return Open, nil
	}

	elapsed := now.Sub(last.CreatedAt)
	if elapsed < device.Cooldown() {
		log.Debug().
			Str("deviceId", device.ID).
			Str("switchId", sw.ID).
			Dur("elapsed", elapsed).
			Dur("cooldown", device.Cooldown()).
			Msg("switch in cooldown")
		return Wait, nil
	}

	return Open, nil
}

// insideWindow checks a minute-of-day point against the opening window.
// When stop <= start the window wraps midnight (e.g. 22:00-06:00): the point
// is inside if it lies in [start, stop+1440] or [start-1440, stop].
func insideWindow(minutes, start, stop int) bool {
	if stop <= start {
		return (minutes >= start && minutes <= stop+24*60) ||
			(minutes >= start-24*60 && minutes <= stop)
	}
	return minutes >= start && minutes <= stop
}
