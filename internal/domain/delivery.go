package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels returns all delivery channels in a stable order.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelPush, ChannelInApp}
}

// DeliveryStatus represents the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "PENDING"
	DeliveryProcessing DeliveryStatus = "PROCESSING"
	DeliverySent       DeliveryStatus = "SENT"
	DeliveryDelivered  DeliveryStatus = "DELIVERED"
	DeliveryFailed     DeliveryStatus = "FAILED"
	DeliveryCancelled  DeliveryStatus = "CANCELLED"
	DeliveryExpired    DeliveryStatus = "EXPIRED"
	DeliveryScheduled  DeliveryStatus = "SCHEDULED"
)

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryProcessing, DeliverySent, DeliveryDelivered,
		DeliveryFailed, DeliveryCancelled, DeliveryExpired, DeliveryScheduled:
		return true
	}
	return false
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery status %q", ErrValidation, s)
	}
	return st, nil
}

// deliveryTransitions is the allowed transition table. FAILED -> PENDING
// covers both the automatic retry re-entry and the operator manual retry;
// whether the attempt budget permits it is checked by the caller.
var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryScheduled:  {DeliveryPending, DeliveryCancelled, DeliveryExpired},
	DeliveryPending:    {DeliveryProcessing, DeliveryCancelled, DeliveryExpired},
	DeliveryProcessing: {DeliverySent, DeliveryFailed},
	DeliveryFailed:     {DeliveryPending},
	DeliverySent:       {DeliveryDelivered},
}

// CanTransition reports whether from -> to is a legal delivery transition.
func (s DeliveryStatus) CanTransition(to DeliveryStatus) bool {
	for _, next := range deliveryTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

const DefaultMaxRetries = 3

// Delivery is one per-recipient, per-channel notification attempt. Subject,
// content, and notification type are snapshotted at dispatch time so later
// template edits never alter fired rows. Rows are append-only history.
type Delivery struct {
	ID               string           `gorm:"type:uuid;primaryKey"`
	ScheduleID       string           `gorm:"type:uuid;not null"`
	FireID           string           `gorm:"type:uuid;not null"`
	UserID           string           `gorm:"type:varchar(64);not null"`
	Endpoint         string           `gorm:"type:varchar(255);not null"`
	Channel          Channel          `gorm:"type:varchar(10);not null"`
	NotificationType NotificationType `gorm:"type:varchar(30);not null"`
	Subject          string           `gorm:"type:varchar(255)"`
	Content          string           `gorm:"type:text;not null"`
	Status           DeliveryStatus   `gorm:"type:varchar(20);not null"`
	RetryCount       int              `gorm:"not null;default:0"`
	MaxRetries       int              `gorm:"not null;default:3"`
	NextRetryAt      *time.Time
	FailureReason    *string `gorm:"type:text"`
	SendAt           *time.Time
	ExpiresAt        *time.Time
	ExternalID       *string `gorm:"type:varchar(255)"`
	SentAt           *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsTerminal reports whether no further automatic transition can occur.
// SENT counts as terminal for channels without delivery receipts.
func (d *Delivery) IsTerminal() bool {
	switch d.Status {
	case DeliverySent, DeliveryDelivered, DeliveryCancelled, DeliveryExpired:
		return true
	case DeliveryFailed:
		return d.NextRetryAt == nil
	}
	return false
}

// RetriesExhausted reports whether the automatic retry budget is spent.
func (d *Delivery) RetriesExhausted() bool {
	return d.RetryCount >= d.MaxRetries
}

func (d *Delivery) Validate() error {
	if strings.TrimSpace(d.ScheduleID) == "" {
		return fmt.Errorf("%w: schedule id is required", ErrValidation)
	}
	if strings.TrimSpace(d.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(d.Endpoint) == "" {
		return fmt.Errorf("%w: endpoint is required", ErrValidation)
	}
	if strings.TrimSpace(d.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !d.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, d.Channel)
	}
	if !d.NotificationType.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, d.NotificationType)
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("%w: invalid delivery status %q", ErrValidation, d.Status)
	}
	if d.RetryCount > d.MaxRetries {
		return fmt.Errorf("%w: retry count %d exceeds max retries %d", ErrValidation, d.RetryCount, d.MaxRetries)
	}
	return nil
}
