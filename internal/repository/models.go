package repository

import (
	"time"

	"github.com/classboard/notification-engine/internal/domain"
)

// TemplateModel is the persistence model for the templates table.
type TemplateModel struct {
	ID           string                  `gorm:"type:uuid;primaryKey"`
	Type         domain.NotificationType `gorm:"type:varchar(30);not null"`
	Locale       string                  `gorm:"type:varchar(10);not null"`
	EmailSubject string                  `gorm:"type:varchar(255)"`
	EmailBody    string                  `gorm:"type:text"`
	PushTitle    string                  `gorm:"type:varchar(255)"`
	PushMessage  string                  `gorm:"type:text"`
	InAppTitle   string                  `gorm:"type:varchar(255)"`
	InAppMessage string                  `gorm:"type:text"`
	IsActive     bool                    `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (TemplateModel) TableName() string {
	return "templates"
}

// ScheduleModel is the persistence model for the schedules table.
type ScheduleModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	TemplateID       string                  `gorm:"type:uuid;not null"`
	Targeting        domain.Targeting        `gorm:"serializer:json;type:jsonb;not null"`
	ScheduledAt      *time.Time              `gorm:"type:timestamptz"`
	Timezone         string                  `gorm:"type:varchar(64);not null"`
	IsRecurring      bool                    `gorm:"not null;default:false"`
	RecurringPattern domain.RecurringPattern `gorm:"type:varchar(10)"`
	RecurringEndDate *time.Time              `gorm:"type:timestamptz"`
	EmailEnabled     bool                    `gorm:"not null;default:false"`
	PushEnabled      bool                    `gorm:"not null;default:false"`
	InAppEnabled     bool                    `gorm:"not null;default:false"`
	Status           domain.ScheduleStatus   `gorm:"type:varchar(10);not null"`
	NextFireAt       *time.Time              `gorm:"type:timestamptz"`
	LastFiredAt      *time.Time              `gorm:"type:timestamptz"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (ScheduleModel) TableName() string {
	return "schedules"
}

// DeliveryModel is the persistence model for the deliveries table.
type DeliveryModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	ScheduleID       string                  `gorm:"type:uuid;not null"`
	FireID           string                  `gorm:"type:uuid;not null"`
	UserID           string                  `gorm:"type:varchar(64);not null"`
	Endpoint         string                  `gorm:"type:varchar(255);not null"`
	Channel          domain.Channel          `gorm:"type:varchar(10);not null"`
	NotificationType domain.NotificationType `gorm:"type:varchar(30);not null"`
	Subject          string                  `gorm:"type:varchar(255)"`
	Content          string                  `gorm:"type:text;not null"`
	Status           domain.DeliveryStatus   `gorm:"type:varchar(20);not null"`
	RetryCount       int                     `gorm:"not null;default:0"`
	MaxRetries       int                     `gorm:"not null;default:3"`
	NextRetryAt      *time.Time
	FailureReason    *string `gorm:"type:text"`
	SendAt           *time.Time
	ExpiresAt        *time.Time
	ExternalID       *string `gorm:"type:varchar(255)"`
	SentAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (DeliveryModel) TableName() string {
	return "deliveries"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	DeliveryID    string  `gorm:"type:uuid;not null"`
	AttemptNumber int     `gorm:"not null"`
	StatusCode    *int    `gorm:"type:int"`
	ResponseBody  *string `gorm:"type:text"`
	Error         *string `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// PreferenceModel is the persistence model for user_preferences.
type PreferenceModel struct {
	UserID       string                           `gorm:"type:varchar(64);primaryKey"`
	EmailEnabled bool                             `gorm:"not null;default:true"`
	PushEnabled  bool                             `gorm:"not null;default:true"`
	InAppEnabled bool                             `gorm:"not null;default:true"`
	Categories   map[domain.NotificationType]bool `gorm:"serializer:json;type:jsonb"`
	Frequency    domain.Frequency                 `gorm:"type:varchar(10);not null;default:'IMMEDIATE'"`
	QuietHours   domain.QuietHours                `gorm:"serializer:json;type:jsonb"`
	Timezone     string                           `gorm:"type:varchar(64);not null;default:'UTC'"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (PreferenceModel) TableName() string {
	return "user_preferences"
}

func templateModelFromDomain(t *domain.Template) *TemplateModel {
	if t == nil {
		return nil
	}
	return &TemplateModel{
		ID:           t.ID,
		Type:         t.Type,
		Locale:       t.Locale,
		EmailSubject: t.EmailSubject,
		EmailBody:    t.EmailBody,
		PushTitle:    t.PushTitle,
		PushMessage:  t.PushMessage,
		InAppTitle:   t.InAppTitle,
		InAppMessage: t.InAppMessage,
		IsActive:     t.IsActive,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func templateModelToDomain(m *TemplateModel) *domain.Template {
	if m == nil {
		return nil
	}
	return &domain.Template{
		ID:           m.ID,
		Type:         m.Type,
		Locale:       m.Locale,
		EmailSubject: m.EmailSubject,
		EmailBody:    m.EmailBody,
		PushTitle:    m.PushTitle,
		PushMessage:  m.PushMessage,
		InAppTitle:   m.InAppTitle,
		InAppMessage: m.InAppMessage,
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func scheduleModelFromDomain(s *domain.Schedule) *ScheduleModel {
	if s == nil {
		return nil
	}
	return &ScheduleModel{
		ID:               s.ID,
		TemplateID:       s.TemplateID,
		Targeting:        s.Targeting,
		ScheduledAt:      s.ScheduledAt,
		Timezone:         s.Timezone,
		IsRecurring:      s.IsRecurring,
		RecurringPattern: s.RecurringPattern,
		RecurringEndDate: s.RecurringEndDate,
		EmailEnabled:     s.EmailEnabled,
		PushEnabled:      s.PushEnabled,
		InAppEnabled:     s.InAppEnabled,
		Status:           s.Status,
		NextFireAt:       s.NextFireAt,
		LastFiredAt:      s.LastFiredAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func scheduleModelToDomain(m *ScheduleModel) *domain.Schedule {
	if m == nil {
		return nil
	}
	return &domain.Schedule{
		ID:               m.ID,
		TemplateID:       m.TemplateID,
		Targeting:        m.Targeting,
		ScheduledAt:      m.ScheduledAt,
		Timezone:         m.Timezone,
		IsRecurring:      m.IsRecurring,
		RecurringPattern: m.RecurringPattern,
		RecurringEndDate: m.RecurringEndDate,
		EmailEnabled:     m.EmailEnabled,
		PushEnabled:      m.PushEnabled,
		InAppEnabled:     m.InAppEnabled,
		Status:           m.Status,
		NextFireAt:       m.NextFireAt,
		LastFiredAt:      m.LastFiredAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}
	return &DeliveryModel{
		ID:               d.ID,
		ScheduleID:       d.ScheduleID,
		FireID:           d.FireID,
		UserID:           d.UserID,
		Endpoint:         d.Endpoint,
		Channel:          d.Channel,
		NotificationType: d.NotificationType,
		Subject:          d.Subject,
		Content:          d.Content,
		Status:           d.Status,
		RetryCount:       d.RetryCount,
		MaxRetries:       d.MaxRetries,
		NextRetryAt:      d.NextRetryAt,
		FailureReason:    d.FailureReason,
		SendAt:           d.SendAt,
		ExpiresAt:        d.ExpiresAt,
		ExternalID:       d.ExternalID,
		SentAt:           d.SentAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}
	return &domain.Delivery{
		ID:               m.ID,
		ScheduleID:       m.ScheduleID,
		FireID:           m.FireID,
		UserID:           m.UserID,
		Endpoint:         m.Endpoint,
		Channel:          m.Channel,
		NotificationType: m.NotificationType,
		Subject:          m.Subject,
		Content:          m.Content,
		Status:           m.Status,
		RetryCount:       m.RetryCount,
		MaxRetries:       m.MaxRetries,
		NextRetryAt:      m.NextRetryAt,
		FailureReason:    m.FailureReason,
		SendAt:           m.SendAt,
		ExpiresAt:        m.ExpiresAt,
		ExternalID:       m.ExternalID,
		SentAt:           m.SentAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}
	return &DeliveryAttemptModel{
		ID:            a.ID,
		DeliveryID:    a.DeliveryID,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}
	return &domain.DeliveryAttempt{
		ID:            m.ID,
		DeliveryID:    m.DeliveryID,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func preferenceModelFromDomain(p *domain.UserPreference) *PreferenceModel {
	if p == nil {
		return nil
	}
	return &PreferenceModel{
		UserID:       p.UserID,
		EmailEnabled: p.EmailEnabled,
		PushEnabled:  p.PushEnabled,
		InAppEnabled: p.InAppEnabled,
		Categories:   p.Categories,
		Frequency:    p.Frequency,
		QuietHours:   p.QuietHours,
		Timezone:     p.Timezone,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func preferenceModelToDomain(m *PreferenceModel) *domain.UserPreference {
	if m == nil {
		return nil
	}
	return &domain.UserPreference{
		UserID:       m.UserID,
		EmailEnabled: m.EmailEnabled,
		PushEnabled:  m.PushEnabled,
		InAppEnabled: m.InAppEnabled,
		Categories:   m.Categories,
		Frequency:    m.Frequency,
		QuietHours:   m.QuietHours,
		Timezone:     m.Timezone,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
