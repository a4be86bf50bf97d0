package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Content string `json:"content"`
}

// WebhookSender delivers one channel's messages to a webhook-compatible
// transport endpoint.
type WebhookSender struct {
	client   *resty.Client
	channel  domain.Channel
	endpoint string
}

func NewWebhookSender(channel domain.Channel, endpoint string) (*WebhookSender, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookSenderWithClient(channel, endpoint, client)
}

func NewWebhookSenderWithClient(channel domain.Channel, endpoint string, client *resty.Client) (*WebhookSender, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid channel %q", channel)
	}

	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookSender{
		client:   client,
		channel:  channel,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *WebhookSender) Send(ctx context.Context, req SendRequest) (*SendResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("sender is not initialized")
	}
	if strings.TrimSpace(req.Endpoint) == "" {
		return nil, &SendError{Message: "recipient endpoint is required"}
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &SendError{Message: "content is required"}
	}

	reqBody := webhookRequest{
		To:      req.Endpoint,
		Channel: strings.ToLower(p.channel.String()),
		Subject: req.Subject,
		Content: req.Content,
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(p.endpoint)
	if err != nil {
		return nil, &SendError{
			Message:   "transport request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &SendError{
			Message:   "transport returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &SendResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			ExternalID: externalMessageID(response),
		}, nil
	}

	return nil, &SendError{
		StatusCode: statusCode,
		Message:    sendErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func sendErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("transport returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func externalMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}

// NewWebhookRegistry builds one webhook sender per channel from the
// configured endpoints.
func NewWebhookRegistry(emailURL, pushURL, inAppURL string) (Registry, error) {
	endpoints := map[domain.Channel]string{
		domain.ChannelEmail: emailURL,
		domain.ChannelPush:  pushURL,
		domain.ChannelInApp: inAppURL,
	}

	registry := make(Registry, len(endpoints))
	for channel, endpoint := range endpoints {
		sender, err := NewWebhookSender(channel, endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s sender: %w", strings.ToLower(channel.String()), err)
		}
		registry[channel] = sender
	}

	return registry, nil
}
