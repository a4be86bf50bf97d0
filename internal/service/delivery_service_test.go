package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

func newTestDeliveryService(t *testing.T, deliveries *fakeDeliveryRepo, pub *fakePublisher) *DeliveryService {
	t.Helper()
	svc, err := NewDeliveryService(deliveries, &fakeAttemptRepo{}, pub, zap.NewNop())
	if err != nil {
		t.Fatalf("NewDeliveryService() error = %v", err)
	}
	return svc
}

func terminalFailed(id string) *domain.Delivery {
	reason := "send error: status=400: bad address"
	return &domain.Delivery{
		ID:            id,
		FireID:        "fire-1",
		Channel:       domain.ChannelEmail,
		Status:        domain.DeliveryFailed,
		RetryCount:    domain.DefaultMaxRetries,
		MaxRetries:    domain.DefaultMaxRetries,
		FailureReason: &reason,
	}
}

func TestRetryPublishesToWorkQueue(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByID: func(_ context.Context, id string) (*domain.Delivery, error) {
			return terminalFailed(id), nil
		},
	}
	pub := &fakePublisher{}

	svc := newTestDeliveryService(t, deliveries, pub)
	if err := svc.Retry(context.Background(), "d1"); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	msgs := pub.messages()
	if len(msgs) != 1 || msgs[0].Queue != "email" || msgs[0].Message.DeliveryID != "d1" {
		t.Fatalf("messages = %+v, want d1 on email", msgs)
	}
}

func TestRetryNonTerminalIsConflict(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		getByID: func(_ context.Context, id string) (*domain.Delivery, error) {
			return terminalFailed(id), nil
		},
		manualRetry: func(context.Context, string) error {
			return domain.ErrConflict
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakePublisher{})
	if err := svc.Retry(context.Background(), "d1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRetryUnknownDeliveryIsNotFound(t *testing.T) {
	t.Parallel()

	svc := newTestDeliveryService(t, &fakeDeliveryRepo{}, &fakePublisher{})
	if err := svc.Retry(context.Background(), "ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRetryFailedSkipsDeliveriesStillRetrying(t *testing.T) {
	t.Parallel()

	next := time.Date(2024, 1, 15, 11, 0, 0, 0, time.UTC)
	waiting := *terminalFailed("d2")
	waiting.NextRetryAt = &next

	deliveries := &fakeDeliveryRepo{
		list: func(_ context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error) {
			if params.Page > 1 {
				return nil, 2, nil
			}
			return []domain.Delivery{*terminalFailed("d1"), waiting}, 2, nil
		},
	}
	pub := &fakePublisher{}

	svc := newTestDeliveryService(t, deliveries, pub)
	retried, err := svc.RetryFailed(context.Background(), repository.DeliveryListParams{})
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}

	if retried != 1 {
		t.Fatalf("retried = %d, want 1 (d2 still in the automatic ladder)", retried)
	}
	msgs := pub.messages()
	if len(msgs) != 1 || msgs[0].Message.DeliveryID != "d1" {
		t.Fatalf("messages = %+v, want only d1", msgs)
	}
}

func TestRetryFailedRetriesEveryTerminalRow(t *testing.T) {
	t.Parallel()

	// Retrying moves rows out of the FAILED filter while the bulk operation
	// runs, so the fake applies the filter and offset on every List call the
	// way the store does. Naive mutate-while-paginating would skip rows.
	store := make([]*domain.Delivery, 0, 300)
	for i := 0; i < 300; i++ {
		store = append(store, terminalFailed(fmt.Sprintf("d%03d", i)))
	}

	var mu sync.Mutex
	deliveries := &fakeDeliveryRepo{
		list: func(_ context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error) {
			mu.Lock()
			defer mu.Unlock()

			var matched []domain.Delivery
			for _, d := range store {
				if params.Status != nil && d.Status != *params.Status {
					continue
				}
				matched = append(matched, *d)
			}

			offset := (params.Page - 1) * params.PageSize
			if offset >= len(matched) {
				return nil, int64(len(matched)), nil
			}
			end := min(offset+params.PageSize, len(matched))
			return matched[offset:end], int64(len(matched)), nil
		},
		manualRetry: func(_ context.Context, id string) error {
			mu.Lock()
			defer mu.Unlock()
			for _, d := range store {
				if d.ID != id {
					continue
				}
				if d.Status != domain.DeliveryFailed || !d.IsTerminal() {
					return domain.ErrConflict
				}
				d.Status = domain.DeliveryPending
				d.FailureReason = nil
				return nil
			}
			return domain.ErrNotFound
		},
	}
	pub := &fakePublisher{}

	svc := newTestDeliveryService(t, deliveries, pub)
	retried, err := svc.RetryFailed(context.Background(), repository.DeliveryListParams{})
	if err != nil {
		t.Fatalf("RetryFailed() error = %v", err)
	}

	if retried != 300 {
		t.Fatalf("retried = %d, want all 300 terminal deliveries", retried)
	}
	if len(pub.messages()) != 300 {
		t.Fatalf("published %d messages, want 300", len(pub.messages()))
	}
}

func TestConfirmDeliveredConflictOutsideSent(t *testing.T) {
	t.Parallel()

	deliveries := &fakeDeliveryRepo{
		markDelivered: func(context.Context, string) error {
			return domain.ErrConflict
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakePublisher{})
	if err := svc.ConfirmDelivered(context.Background(), "d1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestCancelPendingScopesToSchedule(t *testing.T) {
	t.Parallel()

	var gotScope *string
	deliveries := &fakeDeliveryRepo{
		bulkCancel: func(_ context.Context, scheduleID *string) (int64, error) {
			gotScope = scheduleID
			return 7, nil
		},
	}

	svc := newTestDeliveryService(t, deliveries, &fakePublisher{})
	scope := "sch-1"
	cancelled, err := svc.CancelPending(context.Background(), &scope)
	if err != nil {
		t.Fatalf("CancelPending() error = %v", err)
	}
	if cancelled != 7 || gotScope == nil || *gotScope != "sch-1" {
		t.Fatalf("cancelled=%d scope=%v, want 7 scoped to sch-1", cancelled, gotScope)
	}
}
