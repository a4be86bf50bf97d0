package service

import (
	"fmt"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
)

// Expander turns a schedule into concrete fire instants. It only expands
// time; it never gates on staleness, so a past-due one-shot is still
// returned and the caller decides whether to dispatch it.
type Expander struct {
	now func() time.Time
}

func NewExpander() *Expander {
	return &Expander{now: time.Now}
}

// Expand returns the ordered, deduplicated fire instants of the schedule
// inside [from, to). All recurrence arithmetic happens in the schedule's
// declared timezone before converting back to absolute instants.
func (e *Expander) Expand(schedule *domain.Schedule, from, to time.Time) ([]time.Time, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: schedule is required", domain.ErrValidation)
	}
	if !to.After(from) {
		return nil, fmt.Errorf("%w: window end must be after start", domain.ErrValidation)
	}
	if schedule.Status == domain.ScheduleCancelled {
		return nil, nil
	}

	loc, err := schedule.Location()
	if err != nil {
		return nil, err
	}

	first := e.firstFire(schedule)
	if !schedule.IsRecurring {
		if first.Before(from) || !first.Before(to) {
			return nil, nil
		}
		return []time.Time{first}, nil
	}

	anchor := first.In(loc)
	var fires []time.Time
	for step := 0; ; step++ {
		fire := advance(anchor, schedule.RecurringPattern, step)
		instant := fire.UTC()

		if schedule.RecurringEndDate != nil && instant.After(schedule.RecurringEndDate.UTC()) {
			break
		}
		if !instant.Before(to) {
			break
		}
		if instant.Before(from) {
			continue
		}
		if len(fires) > 0 && fires[len(fires)-1].Equal(instant) {
			continue
		}
		fires = append(fires, instant)
	}

	return fires, nil
}

// Next returns the first fire instant strictly after the given instant, or
// nil when the schedule has no further occurrence. The scheduler uses it to
// advance the next_fire_at slot once a fire completes.
func (e *Expander) Next(schedule *domain.Schedule, after time.Time) (*time.Time, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: schedule is required", domain.ErrValidation)
	}
	if schedule.Status == domain.ScheduleCancelled {
		return nil, nil
	}

	loc, err := schedule.Location()
	if err != nil {
		return nil, err
	}

	first := e.firstFire(schedule)
	if !schedule.IsRecurring {
		if first.After(after) {
			return &first, nil
		}
		return nil, nil
	}

	anchor := first.In(loc)
	for step := 0; ; step++ {
		instant := advance(anchor, schedule.RecurringPattern, step).UTC()
		if schedule.RecurringEndDate != nil && instant.After(schedule.RecurringEndDate.UTC()) {
			return nil, nil
		}
		if instant.After(after) {
			return &instant, nil
		}
	}
}

func (e *Expander) firstFire(schedule *domain.Schedule) time.Time {
	if schedule.ScheduledAt != nil {
		return schedule.ScheduledAt.UTC()
	}
	// Null scheduledAt means immediate dispatch.
	return e.now().UTC()
}

// advance steps the anchor forward by step recurrence intervals. Monthly
// steps always count from the anchor so the day-of-month clamp never
// latches: Jan 31 -> Feb 28/29 -> Mar 31.
func advance(anchor time.Time, pattern domain.RecurringPattern, step int) time.Time {
	if step == 0 {
		return anchor
	}

	switch pattern {
	case domain.PatternDaily:
		return anchor.AddDate(0, 0, step)
	case domain.PatternWeekly:
		return anchor.AddDate(0, 0, 7*step)
	case domain.PatternMonthly:
		return addMonthsClamped(anchor, step)
	}
	return anchor
}

// addMonthsClamped adds months keeping the anchor's day-of-month, clamping to
// the last valid day when the target month is shorter. time.AddDate would
// roll Feb 31 over into March instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())

	if last := lastDayOfMonth(target.Year(), target.Month()); day > last {
		day = last
	}

	return time.Date(target.Year(), target.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
