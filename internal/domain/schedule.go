package domain

import (
	"fmt"
	"strings"
	"time"
)

// ScheduleStatus represents the lifecycle state of a schedule.
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "DRAFT"
	ScheduleScheduled ScheduleStatus = "SCHEDULED"
	ScheduleSent      ScheduleStatus = "SENT"
	ScheduleCancelled ScheduleStatus = "CANCELLED"
)

func (s ScheduleStatus) String() string { return string(s) }

func (s ScheduleStatus) IsValid() bool {
	switch s {
	case ScheduleDraft, ScheduleScheduled, ScheduleSent, ScheduleCancelled:
		return true
	}
	return false
}

func ParseScheduleStatusFromString(s string) (ScheduleStatus, error) {
	st := ScheduleStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid schedule status %q", ErrValidation, s)
	}
	return st, nil
}

// RecurringPattern is the recurrence step of a recurring schedule.
type RecurringPattern string

const (
	PatternDaily   RecurringPattern = "DAILY"
	PatternWeekly  RecurringPattern = "WEEKLY"
	PatternMonthly RecurringPattern = "MONTHLY"
)

func (p RecurringPattern) String() string { return string(p) }

func (p RecurringPattern) IsValid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly:
		return true
	}
	return false
}

func ParseRecurringPatternFromString(s string) (RecurringPattern, error) {
	p := RecurringPattern(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid recurring pattern %q", ErrValidation, s)
	}
	return p, nil
}

// Targeting selects recipients. Fields combine with union semantics: a user
// matched by any populated field is targeted; duplicates collapse during
// audience resolution.
type Targeting struct {
	Roles           []string `json:"roles,omitempty"`
	UserIDs         []string `json:"userIds,omitempty"`
	CourseIDs       []string `json:"courseIds,omitempty"`
	ClassIDs        []string `json:"classIds,omitempty"`
	IncludeTeachers bool     `json:"includeTeachers,omitempty"`
}

func (t Targeting) IsEmpty() bool {
	return len(t.Roles) == 0 && len(t.UserIDs) == 0 && len(t.CourseIDs) == 0 && len(t.ClassIDs) == 0
}

// Schedule is a declarative notification job: template + targeting + timing
// + channel configuration. NextFireAt is scheduler bookkeeping: the single
// due-scan slot that also keeps recurring occurrences strictly sequential.
type Schedule struct {
	ID               string           `gorm:"type:uuid;primaryKey"`
	TemplateID       string           `gorm:"type:uuid;not null"`
	Targeting        Targeting        `gorm:"serializer:json;type:jsonb;not null"`
	ScheduledAt      *time.Time       `gorm:"type:timestamptz"`
	Timezone         string           `gorm:"type:varchar(64);not null"`
	IsRecurring      bool             `gorm:"not null;default:false"`
	RecurringPattern RecurringPattern `gorm:"type:varchar(10)"`
	RecurringEndDate *time.Time       `gorm:"type:timestamptz"`
	EmailEnabled     bool             `gorm:"not null;default:false"`
	PushEnabled      bool             `gorm:"not null;default:false"`
	InAppEnabled     bool             `gorm:"not null;default:false"`
	Status           ScheduleStatus   `gorm:"type:varchar(10);not null"`
	NextFireAt       *time.Time       `gorm:"type:timestamptz"`
	LastFiredAt      *time.Time       `gorm:"type:timestamptz"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChannelEnabled reports whether the schedule sends over the given channel.
func (s *Schedule) ChannelEnabled(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		return s.EmailEnabled
	case ChannelPush:
		return s.PushEnabled
	case ChannelInApp:
		return s.InAppEnabled
	}
	return false
}

// Location resolves the schedule's IANA timezone. Validate guarantees it
// loads, so callers after validation may ignore the error.
func (s *Schedule) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timezone %q", ErrValidation, s.Timezone)
	}
	return loc, nil
}

func (s *Schedule) Validate() error {
	if strings.TrimSpace(s.TemplateID) == "" {
		return fmt.Errorf("%w: template id is required", ErrValidation)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: invalid schedule status %q", ErrValidation, s.Status)
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	if !s.EmailEnabled && !s.PushEnabled && !s.InAppEnabled {
		return fmt.Errorf("%w: at least one channel must be enabled", ErrValidation)
	}

	if s.IsRecurring {
		if !s.RecurringPattern.IsValid() {
			return fmt.Errorf("%w: recurring schedule requires a valid pattern", ErrValidation)
		}
		if s.ScheduledAt == nil {
			return fmt.Errorf("%w: recurring schedule requires scheduledAt", ErrValidation)
		}
	} else if s.RecurringPattern != "" {
		return fmt.Errorf("%w: recurring pattern set on non-recurring schedule", ErrValidation)
	}

	if s.RecurringEndDate != nil {
		if s.ScheduledAt == nil {
			return fmt.Errorf("%w: recurringEndDate requires scheduledAt", ErrValidation)
		}
		if s.RecurringEndDate.Before(*s.ScheduledAt) {
			return fmt.Errorf("%w: recurringEndDate is before scheduledAt", ErrValidation)
		}
	}

	return nil
}
