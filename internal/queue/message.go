package queue

import (
	"fmt"
	"strings"

	"github.com/classboard/notification-engine/internal/domain"
)

// DeliveryMessage is the broker payload for delivery processing. The row in
// the delivery store is the source of truth; the message only identifies it.
type DeliveryMessage struct {
	DeliveryID    string         `json:"deliveryId"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Channel       domain.Channel `json:"channel"`
}

func (m DeliveryMessage) Validate() error {
	if strings.TrimSpace(m.DeliveryID) == "" {
		return fmt.Errorf("deliveryId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	return nil
}
