package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationType categorizes what a template is about. Recipients can
// toggle each type independently in their preferences.
type NotificationType string

const (
	TypeScheduleReminder   NotificationType = "SCHEDULE_REMINDER"
	TypeContentUpdate      NotificationType = "CONTENT_UPDATE"
	TypeQuizReminder       NotificationType = "QUIZ_REMINDER"
	TypeAssignmentDue      NotificationType = "ASSIGNMENT_DUE"
	TypeCourseAnnouncement NotificationType = "COURSE_ANNOUNCEMENT"
	TypeSystemNotification NotificationType = "SYSTEM_NOTIFICATION"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeScheduleReminder, TypeContentUpdate, TypeQuizReminder,
		TypeAssignmentDue, TypeCourseAnnouncement, TypeSystemNotification:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

const DefaultLocale = "en"

// Template holds reusable per-channel content for one notification type and
// locale. A channel whose content pair is empty is considered undefined for
// that channel; the dispatcher skips it with a warning.
//
// Templates stay editable: deliveries snapshot their rendered content at
// dispatch time, so edits never change what was already sent.
type Template struct {
	ID           string           `gorm:"type:uuid;primaryKey"`
	Type         NotificationType `gorm:"type:varchar(30);not null"`
	Locale       string           `gorm:"type:varchar(10);not null"`
	EmailSubject string           `gorm:"type:varchar(255)"`
	EmailBody    string           `gorm:"type:text"`
	PushTitle    string           `gorm:"type:varchar(255)"`
	PushMessage  string           `gorm:"type:text"`
	InAppTitle   string           `gorm:"type:varchar(255)"`
	InAppMessage string           `gorm:"type:text"`
	IsActive     bool             `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ContentFor returns the raw subject/body pair for a channel and whether the
// template defines content for it.
func (t *Template) ContentFor(channel Channel) (subject, body string, ok bool) {
	switch channel {
	case ChannelEmail:
		subject, body = t.EmailSubject, t.EmailBody
	case ChannelPush:
		subject, body = t.PushTitle, t.PushMessage
	case ChannelInApp:
		subject, body = t.InAppTitle, t.InAppMessage
	}
	return subject, body, strings.TrimSpace(body) != ""
}

func (t *Template) Validate() error {
	if !t.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, t.Type)
	}
	if strings.TrimSpace(t.Locale) == "" {
		return fmt.Errorf("%w: locale is required", ErrValidation)
	}

	defined := false
	for _, channel := range Channels() {
		if _, _, ok := t.ContentFor(channel); ok {
			defined = true
			break
		}
	}
	if !defined {
		return fmt.Errorf("%w: template must define content for at least one channel", ErrValidation)
	}

	return nil
}
