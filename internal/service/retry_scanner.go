package service

import (
	"context"
	"fmt"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/observability"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	dueDeliveryBatchSize = 500

	// stalePendingAge is how long a PENDING row may sit before the scanner
	// assumes its queue publish was lost and re-publishes it.
	stalePendingAge = time.Minute
)

// RetryScanner re-enters parked deliveries into the work queues: due
// automatic retries, due deferred (quiet hours / digest) deliveries, and
// PENDING rows whose original publish was lost. It also expires deliveries
// past their validity deadline.
type RetryScanner struct {
	deliveries repository.DeliveryRepository
	publisher  queue.Publisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	now        func() time.Time
}

func NewRetryScanner(
	deliveries repository.DeliveryRepository,
	publisher queue.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
	interval time.Duration,
) (*RetryScanner, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &RetryScanner{
		deliveries: deliveries,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}, nil
}

// Run scans once immediately, then on every tick until cancelled.
func (s *RetryScanner) Run(ctx context.Context) error {
	s.logger.Info("retry scanner started", zap.Duration("interval", s.interval))

	if err := s.Scan(ctx); err != nil {
		s.logger.Error("retry scan failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retry scanner stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.logger.Error("retry scan failed", zap.Error(err))
			}
		}
	}
}

// Scan runs one full pass. Expiry runs first so a due-but-expired delivery
// never re-enters a queue.
func (s *RetryScanner) Scan(ctx context.Context) error {
	now := s.now().UTC()

	expired, err := s.deliveries.ExpireDue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to expire deliveries: %w", err)
	}
	if expired > 0 {
		s.logger.Info("expired deliveries", zap.Int64("count", expired))
		if s.metrics != nil {
			s.metrics.IncDeliveryExpired(expired)
		}
	}

	if err := s.promoteRetries(ctx, now); err != nil {
		return err
	}
	if err := s.promoteScheduled(ctx, now); err != nil {
		return err
	}
	return s.republishStale(ctx, now)
}

func (s *RetryScanner) promoteRetries(ctx context.Context, now time.Time) error {
	due, err := s.deliveries.GetDueRetries(ctx, now, dueDeliveryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load due retries: %w", err)
	}

	for i := range due {
		delivery := &due[i]
		promoted, err := s.deliveries.PromoteRetry(ctx, delivery.ID)
		if err != nil {
			s.logger.Error("failed to promote retry",
				zap.String("deliveryId", delivery.ID), zap.Error(err))
			continue
		}
		if !promoted {
			continue
		}
		if s.metrics != nil {
			s.metrics.IncRetryScheduled(delivery.Channel.String())
		}
		s.publish(ctx, delivery)
	}
	return nil
}

func (s *RetryScanner) promoteScheduled(ctx context.Context, now time.Time) error {
	due, err := s.deliveries.GetDueScheduled(ctx, now, dueDeliveryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load due scheduled deliveries: %w", err)
	}

	for i := range due {
		delivery := &due[i]
		promoted, err := s.deliveries.PromoteScheduled(ctx, delivery.ID)
		if err != nil {
			s.logger.Error("failed to promote scheduled delivery",
				zap.String("deliveryId", delivery.ID), zap.Error(err))
			continue
		}
		if !promoted {
			continue
		}
		s.publish(ctx, delivery)
	}
	return nil
}

func (s *RetryScanner) republishStale(ctx context.Context, now time.Time) error {
	stale, err := s.deliveries.GetStalePending(ctx, now.Add(-stalePendingAge), dueDeliveryBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load stale pending deliveries: %w", err)
	}

	for i := range stale {
		s.publish(ctx, &stale[i])
	}
	return nil
}

func (s *RetryScanner) publish(ctx context.Context, delivery *domain.Delivery) {
	msg := queue.DeliveryMessage{
		DeliveryID:    delivery.ID,
		CorrelationID: delivery.FireID,
		Channel:       delivery.Channel,
	}
	if err := s.publisher.Publish(ctx, queue.QueueName(delivery.Channel), msg); err != nil {
		// Row is PENDING already; the next stale-pending sweep recovers it.
		s.logger.Warn("failed to publish promoted delivery",
			zap.String("deliveryId", delivery.ID),
			zap.String("channel", delivery.Channel.String()),
			zap.Error(err),
		)
	}
}
