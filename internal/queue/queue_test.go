package queue

import (
	"testing"

	"github.com/classboard/notification-engine/internal/domain"
)

func TestQueueNames(t *testing.T) {
	t.Parallel()

	cases := map[domain.Channel]string{
		domain.ChannelEmail: "email",
		domain.ChannelPush:  "push",
		domain.ChannelInApp: "inapp",
	}
	for channel, want := range cases {
		if got := QueueName(channel); got != want {
			t.Errorf("QueueName(%s) = %q, want %q", channel, got, want)
		}
		if got := DLQName(channel); got != "dlq."+want {
			t.Errorf("DLQName(%s) = %q, want dlq.%s", channel, got, want)
		}
	}

	if got := len(WorkQueueNames()); got != 3 {
		t.Fatalf("WorkQueueNames() returned %d queues, want 3", got)
	}
	if got := len(DLQNames()); got != 3 {
		t.Fatalf("DLQNames() returned %d queues, want 3", got)
	}
}

func TestDeliveryMessageValidate(t *testing.T) {
	t.Parallel()

	msg := DeliveryMessage{DeliveryID: "d1", Channel: domain.ChannelEmail}
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if err := (DeliveryMessage{Channel: domain.ChannelEmail}).Validate(); err == nil {
		t.Fatal("missing delivery id should error")
	}
	if err := (DeliveryMessage{DeliveryID: "d1", Channel: "SMOKE_SIGNAL"}).Validate(); err == nil {
		t.Fatal("invalid channel should error")
	}
}
