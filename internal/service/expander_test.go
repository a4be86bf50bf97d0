package service

import (
	"testing"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
)

func recurringSchedule(at time.Time, pattern domain.RecurringPattern) *domain.Schedule {
	return &domain.Schedule{
		TemplateID:       "t1",
		ScheduledAt:      &at,
		Timezone:         "UTC",
		IsRecurring:      true,
		RecurringPattern: pattern,
		EmailEnabled:     true,
		Status:           domain.ScheduleScheduled,
	}
}

func TestExpandOneShot(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	schedule := &domain.Schedule{
		TemplateID:   "t1",
		ScheduledAt:  &at,
		Timezone:     "UTC",
		EmailEnabled: true,
		Status:       domain.ScheduleScheduled,
	}

	expander := NewExpander()
	fires, err := expander.Expand(schedule,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fires) != 1 || !fires[0].Equal(at) {
		t.Fatalf("fires = %v, want [%v]", fires, at)
	}

	// Outside the window.
	fires, err = expander.Expand(schedule,
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fires) != 0 {
		t.Fatalf("fires = %v, want none", fires)
	}
}

func TestExpandDaily(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternDaily)

	fires, err := NewExpander().Expand(schedule,
		time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []time.Time{
		time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 18, 9, 0, 0, 0, time.UTC),
	}
	if len(fires) != len(want) {
		t.Fatalf("fires = %v, want %v", fires, want)
	}
	for i := range want {
		if !fires[i].Equal(want[i]) {
			t.Errorf("fires[%d] = %v, want %v", i, fires[i], want[i])
		}
	}
}

func TestExpandMonthlyClampsDayOfMonth(t *testing.T) {
	t.Parallel()

	// Jan 31 monthly: Feb clamps to 29 (2024 is a leap year), Mar returns
	// to 31. The clamp must not latch at 29.
	at := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternMonthly)

	fires, err := NewExpander().Expand(schedule,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []time.Time{
		time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 29, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 9, 0, 0, 0, time.UTC),
	}
	if len(fires) != len(want) {
		t.Fatalf("fires = %v, want %v", fires, want)
	}
	for i := range want {
		if !fires[i].Equal(want[i]) {
			t.Errorf("fires[%d] = %v, want %v", i, fires[i], want[i])
		}
	}
}

func TestExpandMonthlyNonLeapFebruary(t *testing.T) {
	t.Parallel()

	at := time.Date(2023, 1, 31, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternMonthly)

	fires, err := NewExpander().Expand(schedule,
		time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fires) != 1 || !fires[0].Equal(time.Date(2023, 2, 28, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("fires = %v, want [2023-02-28T09:00Z]", fires)
	}
}

func TestExpandEndDateInclusive(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternDaily)
	schedule.RecurringEndDate = &end

	fires, err := NewExpander().Expand(schedule,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	// A fire exactly on the end date still occurs.
	if len(fires) != 3 || !fires[2].Equal(end) {
		t.Fatalf("fires = %v, want 3 fires ending at %v", fires, end)
	}
}

func TestExpandCancelledYieldsNothing(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternDaily)
	schedule.Status = domain.ScheduleCancelled

	fires, err := NewExpander().Expand(schedule,
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fires) != 0 {
		t.Fatalf("cancelled schedule produced fires: %v", fires)
	}
}

func TestExpandIdempotent(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternWeekly)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	expander := NewExpander()
	first, err := expander.Expand(schedule, from, to)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	second, err := expander.Expand(schedule, from, to)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expansion not idempotent: %v vs %v", first, second)
	}
	for i := range first {
		if !first[i].Equal(second[i]) {
			t.Errorf("fire %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestExpandHonorsTimezone(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("LoadLocation() error = %v", err)
	}

	// 09:00 New York daily across the March 10 DST transition stays 09:00
	// local, so the UTC instant shifts from 14:00 to 13:00.
	at := time.Date(2024, 3, 9, 9, 0, 0, 0, loc)
	schedule := recurringSchedule(at, domain.PatternDaily)
	schedule.Timezone = "America/New_York"

	fires, err := NewExpander().Expand(schedule,
		time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(fires) != 2 {
		t.Fatalf("fires = %v, want 2", fires)
	}
	if fires[0].UTC().Hour() != 14 {
		t.Errorf("pre-DST fire at %v, want 14:00 UTC", fires[0].UTC())
	}
	if fires[1].UTC().Hour() != 13 {
		t.Errorf("post-DST fire at %v, want 13:00 UTC", fires[1].UTC())
	}
}

func TestNext(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	schedule := recurringSchedule(at, domain.PatternDaily)
	schedule.RecurringEndDate = &end

	expander := NewExpander()

	next, err := expander.Next(schedule, at)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next == nil || !next.Equal(end) {
		t.Fatalf("Next() = %v, want %v", next, end)
	}

	// Past the end date there is no further occurrence.
	next, err = expander.Next(schedule, end)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next != nil {
		t.Fatalf("Next() = %v, want nil", next)
	}

	// One-shot schedules have no next fire after the only one.
	oneShot := &domain.Schedule{ScheduledAt: &at, Timezone: "UTC", Status: domain.ScheduleScheduled}
	next, err = expander.Next(oneShot, at)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next != nil {
		t.Fatalf("Next() = %v, want nil", next)
	}
}
