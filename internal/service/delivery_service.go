package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

const bulkRetryBatchSize = 100

// DeliveryService exposes delivery inspection and the manual recovery
// operations: single retry, filtered bulk retry, and bulk cancel.
type DeliveryService struct {
	deliveries repository.DeliveryRepository
	attempts   repository.AttemptRepository
	publisher  queue.Publisher
	logger     *zap.Logger
}

func NewDeliveryService(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*DeliveryService, error) {
	if deliveries == nil || attempts == nil {
		return nil, fmt.Errorf("delivery and attempt repositories are required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &DeliveryService{
		deliveries: deliveries,
		attempts:   attempts,
		publisher:  publisher,
		logger:     logger,
	}, nil
}

func (s *DeliveryService) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	return s.deliveries.GetByID(ctx, id)
}

func (s *DeliveryService) List(ctx context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error) {
	return s.deliveries.List(ctx, params)
}

func (s *DeliveryService) Attempts(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	if _, err := s.deliveries.GetByID(ctx, deliveryID); err != nil {
		return nil, err
	}
	return s.attempts.ListByDelivery(ctx, deliveryID)
}

// Retry re-enters a terminally failed delivery. The manual path does not
// consume the automatic retry budget: retry_count stays where the automatic
// attempts left it, and a fresh transient failure after this retry fails
// terminally again rather than restarting the backoff ladder.
func (s *DeliveryService) Retry(ctx context.Context, id string) error {
	delivery, err := s.deliveries.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.deliveries.ManualRetry(ctx, id); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: delivery %s is not terminally failed", domain.ErrConflict, id)
		}
		return err
	}

	s.publish(ctx, delivery)
	s.logger.Info("delivery manually retried",
		zap.String("deliveryId", id),
		zap.Int("retryCount", delivery.RetryCount),
	)
	return nil
}

// RetryFailed bulk-retries terminally failed deliveries matching the filter,
// e.g. everything that failed with a given reason after a provider outage.
// Returns how many deliveries were re-entered.
func (s *DeliveryService) RetryFailed(ctx context.Context, params repository.DeliveryListParams) (int, error) {
	failed := domain.DeliveryFailed
	params.Status = &failed
	params.PageSize = bulkRetryBatchSize

	// Collect candidates before mutating: ManualRetry moves rows out of the
	// FAILED filter, so retrying while paginating would shift later pages
	// past still-failed rows.
	var candidates []domain.Delivery
	for page := 1; ; page++ {
		params.Page = page
		deliveries, _, err := s.deliveries.List(ctx, params)
		if err != nil {
			return 0, err
		}
		for i := range deliveries {
			if !deliveries[i].IsTerminal() {
				// Still inside the automatic retry ladder.
				continue
			}
			candidates = append(candidates, deliveries[i])
		}
		if len(deliveries) < bulkRetryBatchSize {
			break
		}
	}

	retried := 0
	for i := range candidates {
		delivery := &candidates[i]
		if err := s.deliveries.ManualRetry(ctx, delivery.ID); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return retried, err
		}
		s.publish(ctx, delivery)
		retried++
	}

	s.logger.Info("bulk retry finished", zap.Int("retried", retried))
	return retried, nil
}

// CancelPending bulk-cancels PENDING and SCHEDULED deliveries, optionally
// scoped to one schedule. PROCESSING deliveries are never touched.
func (s *DeliveryService) CancelPending(ctx context.Context, scheduleID *string) (int64, error) {
	cancelled, err := s.deliveries.BulkCancel(ctx, scheduleID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("bulk cancel finished", zap.Int64("cancelled", cancelled))
	return cancelled, nil
}

// ConfirmDelivered applies a provider delivery receipt: SENT -> DELIVERED.
func (s *DeliveryService) ConfirmDelivered(ctx context.Context, id string) error {
	if err := s.deliveries.MarkDelivered(ctx, id); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return fmt.Errorf("%w: delivery %s is not in SENT state", domain.ErrConflict, id)
		}
		return err
	}
	s.logger.Info("delivery confirmed", zap.String("deliveryId", id))
	return nil
}

func (s *DeliveryService) publish(ctx context.Context, delivery *domain.Delivery) {
	msg := queue.DeliveryMessage{
		DeliveryID:    delivery.ID,
		CorrelationID: delivery.FireID,
		Channel:       delivery.Channel,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(delivery.Channel), msg); err != nil {
		// Row is PENDING; the stale-pending sweep recovers it.
		s.logger.Warn("failed to publish retried delivery",
			zap.String("deliveryId", delivery.ID), zap.Error(err))
	}
}
