package domain

import (
	"fmt"
	"strings"
	"time"
)

// Frequency batches a recipient's notifications to periodic boundaries
// instead of immediate send.
type Frequency string

const (
	FrequencyImmediate Frequency = "IMMEDIATE"
	FrequencyDaily     Frequency = "DAILY"
	FrequencyWeekly    Frequency = "WEEKLY"
)

func (f Frequency) String() string { return string(f) }

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyImmediate, FrequencyDaily, FrequencyWeekly:
		return true
	}
	return false
}

func ParseFrequencyFromString(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: invalid frequency %q", ErrValidation, s)
	}
	return f, nil
}

// QuietHours is a local wall-clock window during which immediate delivery is
// deferred. The window may wrap midnight (e.g. 22:00-08:00).
type QuietHours struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime"` // "HH:MM", 24h
	EndTime   string `json:"endTime"`   // "HH:MM", 24h
}

func parseWallClock(s string) (minuteOfDay int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid wall-clock time %q", ErrValidation, s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func (q QuietHours) Validate() error {
	if !q.Enabled {
		return nil
	}
	if _, err := parseWallClock(q.StartTime); err != nil {
		return err
	}
	if _, err := parseWallClock(q.EndTime); err != nil {
		return err
	}
	return nil
}

// Contains reports whether the local time t falls inside [start, end).
// For wraparound windows (start > end) membership is (t >= start) || (t < end).
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := parseWallClock(q.StartTime)
	if err != nil {
		return false
	}
	end, err := parseWallClock(q.EndTime)
	if err != nil {
		return false
	}

	now := t.Hour()*60 + t.Minute()
	if start > end {
		return now >= start || now < end
	}
	return now >= start && now < end
}

// End returns the next instant at or after t when the window ends, in t's
// location. Only meaningful when Contains(t) is true.
func (q QuietHours) End(t time.Time) time.Time {
	end, err := parseWallClock(q.EndTime)
	if err != nil {
		return t
	}

	candidate := time.Date(t.Year(), t.Month(), t.Day(), end/60, end%60, 0, 0, t.Location())
	if !candidate.After(t) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// UserPreference is the recipient-side veto over schedule channel flags plus
// digest frequency and quiet hours. A user without a stored row gets
// DefaultPreference. Timezone is the recipient's local wall clock for
// quiet-hours and digest-boundary arithmetic.
type UserPreference struct {
	UserID       string                    `gorm:"type:varchar(64);primaryKey"`
	EmailEnabled bool                      `gorm:"not null;default:true"`
	PushEnabled  bool                      `gorm:"not null;default:true"`
	InAppEnabled bool                      `gorm:"not null;default:true"`
	Categories   map[NotificationType]bool `gorm:"serializer:json;type:jsonb"`
	Frequency    Frequency                 `gorm:"type:varchar(10);not null;default:'IMMEDIATE'"`
	QuietHours   QuietHours                `gorm:"serializer:json;type:jsonb"`
	Timezone     string                    `gorm:"type:varchar(64);not null;default:'UTC'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DefaultPreference is used for recipients without a stored preference row:
// everything enabled, immediate, no quiet hours.
func DefaultPreference(userID string) *UserPreference {
	return &UserPreference{
		UserID:       userID,
		EmailEnabled: true,
		PushEnabled:  true,
		InAppEnabled: true,
		Frequency:    FrequencyImmediate,
		Timezone:     "UTC",
	}
}

func (p *UserPreference) ChannelEnabled(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	case ChannelInApp:
		return p.InAppEnabled
	}
	return false
}

// CategoryEnabled reports whether the user accepts the notification type.
// Types absent from the map are enabled.
func (p *UserPreference) CategoryEnabled(t NotificationType) bool {
	if p.Categories == nil {
		return true
	}
	enabled, ok := p.Categories[t]
	if !ok {
		return true
	}
	return enabled
}

// Location resolves the user's timezone, falling back to UTC.
func (p *UserPreference) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

func (p *UserPreference) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if !p.Frequency.IsValid() {
		return fmt.Errorf("%w: invalid frequency %q", ErrValidation, p.Frequency)
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return fmt.Errorf("%w: invalid timezone %q", ErrValidation, p.Timezone)
	}
	for t := range p.Categories {
		if !t.IsValid() {
			return fmt.Errorf("%w: invalid notification type %q in categories", ErrValidation, t)
		}
	}
	return p.QuietHours.Validate()
}
