package provider

import (
	"context"
	"fmt"

	"github.com/classboard/notification-engine/internal/domain"
)

// SendRequest carries the rendered snapshot handed to a channel sender.
type SendRequest struct {
	Endpoint string
	Subject  string
	Content  string
}

// SendResponse stores transport call metadata for audit and persistence.
// ExternalID is the transport provider's message identifier, when available.
type SendResponse struct {
	StatusCode int
	Body       string
	ExternalID string
}

// ChannelSender is the outbound delivery port. One implementation per
// channel keeps retry/backoff logic uniform across email, push, and in-app.
type ChannelSender interface {
	Send(ctx context.Context, req SendRequest) (*SendResponse, error)
}

// Registry maps channels to their senders.
type Registry map[domain.Channel]ChannelSender

// SenderFor returns the sender registered for a channel.
func (r Registry) SenderFor(channel domain.Channel) (ChannelSender, error) {
	sender, ok := r[channel]
	if !ok || sender == nil {
		return nil, fmt.Errorf("no sender registered for channel %q", channel)
	}
	return sender, nil
}
