package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/classboard/notification-engine/internal/domain"
)

func TestWebhookSenderSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Header().Set("X-Message-ID", "msg-42")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	sender, err := NewWebhookSender(domain.ChannelEmail, server.URL)
	if err != nil {
		t.Fatalf("NewWebhookSender() error = %v", err)
	}

	resp, err := sender.Send(context.Background(), SendRequest{
		Endpoint: "user@example.com",
		Subject:  "Quiz tomorrow",
		Content:  "Don't forget the quiz.",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if resp.ExternalID != "msg-42" {
		t.Errorf("external id = %q, want msg-42", resp.ExternalID)
	}
}

func TestWebhookSenderTransientClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		transient bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusBadGateway, true},
		{"invalid endpoint", http.StatusBadRequest, false},
		{"rejected", http.StatusUnprocessableEntity, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			sender, err := NewWebhookSender(domain.ChannelPush, server.URL)
			if err != nil {
				t.Fatalf("NewWebhookSender() error = %v", err)
			}

			_, err = sender.Send(context.Background(), SendRequest{Endpoint: "device-token", Content: "hi"})
			if err == nil {
				t.Fatal("Send() should fail")
			}

			var sendErr *SendError
			if !errors.As(err, &sendErr) {
				t.Fatalf("error type = %T, want *SendError", err)
			}
			if sendErr.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", sendErr.StatusCode, tc.status)
			}
			if IsTransient(err) != tc.transient {
				t.Errorf("IsTransient() = %v, want %v", IsTransient(err), tc.transient)
			}
		})
	}
}

func TestWebhookSenderValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewWebhookSender(domain.ChannelEmail, ""); err == nil {
		t.Fatal("empty endpoint should error")
	}
	if _, err := NewWebhookSender(domain.Channel("FAX"), "https://hooks.example.com"); err == nil {
		t.Fatal("invalid channel should error")
	}

	sender, err := NewWebhookSender(domain.ChannelEmail, "https://hooks.example.com")
	if err != nil {
		t.Fatalf("NewWebhookSender() error = %v", err)
	}
	if _, err := sender.Send(context.Background(), SendRequest{Content: "hi"}); err == nil {
		t.Fatal("missing recipient endpoint should error")
	}
}

func TestNewWebhookRegistry(t *testing.T) {
	t.Parallel()

	registry, err := NewWebhookRegistry(
		"https://hooks.example.com/email",
		"https://hooks.example.com/push",
		"https://hooks.example.com/inapp",
	)
	if err != nil {
		t.Fatalf("NewWebhookRegistry() error = %v", err)
	}

	for _, channel := range domain.Channels() {
		if _, err := registry.SenderFor(channel); err != nil {
			t.Errorf("SenderFor(%s) error = %v", channel, err)
		}
	}

	if _, err := registry.SenderFor(domain.Channel("FAX")); err == nil {
		t.Fatal("unregistered channel should error")
	}
}
