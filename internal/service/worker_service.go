package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/observability"
	"github.com/classboard/notification-engine/internal/provider"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/ratelimit"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	retryBackoffBase = time.Minute
	retryBackoffCap  = time.Hour

	// jitterFraction spreads retries of deliveries that failed together so
	// they do not re-enter the queue as one burst.
	jitterFraction = 0.2

	sendTimeout = 30 * time.Second
)

// WorkerService consumes the channel work queues and executes the transport
// attempt for each delivery. The PENDING -> PROCESSING claim guarantees a
// delivery is attempted by at most one worker at a time even when a message
// is redelivered.
type WorkerService struct {
	deliveries repository.DeliveryRepository
	attempts   repository.AttemptRepository
	consumer   queue.Consumer
	senders    provider.Registry
	limiter    ratelimit.RateLimiter
	metrics    *observability.Metrics
	logger     *zap.Logger

	now     func() time.Time
	randInt func(n int64) int64
}

func NewWorkerService(
	deliveries repository.DeliveryRepository,
	attempts repository.AttemptRepository,
	consumer queue.Consumer,
	senders provider.Registry,
	limiter ratelimit.RateLimiter,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*WorkerService, error) {
	if deliveries == nil || attempts == nil {
		return nil, fmt.Errorf("delivery and attempt repositories are required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if len(senders) == 0 {
		return nil, fmt.Errorf("sender registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		deliveries: deliveries,
		attempts:   attempts,
		consumer:   consumer,
		senders:    senders,
		limiter:    limiter,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
		randInt:    rand.Int63n,
	}, nil
}

// Run starts one consumer per channel work queue and blocks until the
// context is cancelled or a consumer fails fatally.
func (w *WorkerService) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	for _, channel := range domain.Channels() {
		queueName := queue.QueueName(channel)
		group.Go(func() error {
			w.logger.Info("worker consuming", zap.String("queue", queueName))
			return w.consumer.Consume(ctx, queueName, w.HandleMessage)
		})
	}

	return group.Wait()
}

// HandleMessage processes one queue message. A nil return acks the message;
// an error nacks it to the channel's dead-letter queue.
func (w *WorkerService) HandleMessage(ctx context.Context, msg queue.DeliveryMessage) error {
	if err := msg.Validate(); err != nil {
		w.logger.Warn("dropping malformed delivery message", zap.Error(err))
		return nil
	}

	logger := w.logger.With(
		zap.String("deliveryId", msg.DeliveryID),
		zap.String("correlationId", msg.CorrelationID),
		zap.String("channel", msg.Channel.String()),
	)

	delivery, err := w.deliveries.ClaimForProcessing(ctx, msg.DeliveryID)
	if err != nil {
		logger.Error("failed to claim delivery", zap.Error(err))
		return err
	}
	if delivery == nil {
		// Already claimed, cancelled, expired, or done. Ack and move on.
		logger.Debug("delivery not claimable, skipping")
		return nil
	}

	channelName := delivery.Channel.String()
	if w.metrics != nil {
		w.metrics.IncWorkerInFlight(channelName)
		defer w.metrics.DecWorkerInFlight(channelName)
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, channelName); err != nil {
			if ctx.Err() != nil {
				// Shutdown interrupted the wait before any attempt ran. Put
				// the claim back and nack so the redelivered message finds a
				// PENDING row with its retry budget intact.
				w.releaseClaim(delivery, logger)
				return err
			}
			// Claim is already taken; park the row for a retry instead of
			// leaving it stuck in PROCESSING.
			w.failDelivery(ctx, delivery, fmt.Errorf("rate limiter wait: %w", err), true, logger)
			return nil
		}
	}

	sender, err := w.senders.SenderFor(delivery.Channel)
	if err != nil {
		w.failDelivery(ctx, delivery, err, false, logger)
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	started := w.now()
	resp, sendErr := sender.Send(sendCtx, provider.SendRequest{
		Endpoint: delivery.Endpoint,
		Subject:  delivery.Subject,
		Content:  delivery.Content,
	})
	elapsed := w.now().Sub(started)

	if w.metrics != nil {
		w.metrics.ObserveDeliverySendDuration(channelName, elapsed)
	}
	w.recordAttempt(ctx, delivery, resp, sendErr)

	if sendErr != nil {
		w.failDelivery(ctx, delivery, sendErr, provider.IsTransient(sendErr), logger)
		return nil
	}

	externalID := ""
	if resp != nil {
		externalID = resp.ExternalID
	}
	if err := w.deliveries.MarkSent(ctx, delivery.ID, w.now().UTC(), externalID); err != nil {
		logger.Error("failed to mark delivery sent", zap.Error(err))
		return err
	}

	if w.metrics != nil {
		w.metrics.IncDeliverySent(channelName)
	}
	logger.Info("delivery sent",
		zap.Duration("duration", elapsed),
		zap.String("externalId", externalID),
	)
	return nil
}

// releaseClaim returns an abandoned claim to PENDING. It runs on a fresh
// context because the worker's own context is already cancelled.
func (w *WorkerService) releaseClaim(delivery *domain.Delivery, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.deliveries.ReleaseClaim(ctx, delivery.ID); err != nil {
		// The stale-pending sweep cannot see a PROCESSING row, so this
		// delivery waits for the redelivered message instead.
		logger.Warn("failed to release delivery claim", zap.Error(err))
	}
}

// failDelivery routes a failed attempt: transient failures with remaining
// budget park the row for an automatic retry, everything else fails
// terminally.
func (w *WorkerService) failDelivery(ctx context.Context, delivery *domain.Delivery, cause error, transient bool, logger *zap.Logger) {
	reason := cause.Error()

	if transient && !delivery.RetriesExhausted() {
		nextRetryAt := w.now().UTC().Add(w.backoff(delivery.RetryCount))
		if err := w.deliveries.MarkFailedRetry(ctx, delivery.ID, reason, nextRetryAt); err != nil {
			logger.Error("failed to park delivery for retry", zap.Error(err))
			return
		}
		if w.metrics != nil {
			w.metrics.IncDeliveryFailed(delivery.Channel.String(), "transient")
		}
		logger.Warn("delivery failed, retry scheduled",
			zap.Int("retryCount", delivery.RetryCount+1),
			zap.Time("nextRetryAt", nextRetryAt),
			zap.String("reason", reason),
		)
		return
	}

	if err := w.deliveries.MarkFailedTerminal(ctx, delivery.ID, reason); err != nil {
		logger.Error("failed to mark delivery terminally failed", zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.IncDeliveryFailed(delivery.Channel.String(), "terminal")
	}
	logger.Error("delivery failed terminally",
		zap.Int("retryCount", delivery.RetryCount),
		zap.String("reason", reason),
	)
}

// backoff is exponential on the attempt number with a hard cap and jitter:
// 1m, 2m, 4m, ... up to 1h.
func (w *WorkerService) backoff(retryCount int) time.Duration {
	delay := retryBackoffBase << uint(retryCount)
	if delay <= 0 || delay > retryBackoffCap {
		delay = retryBackoffCap
	}

	jitterRange := int64(float64(delay) * jitterFraction)
	if jitterRange > 0 && w.randInt != nil {
		delay += time.Duration(w.randInt(jitterRange))
	}
	if delay > retryBackoffCap {
		delay = retryBackoffCap
	}
	return delay
}

func (w *WorkerService) recordAttempt(ctx context.Context, delivery *domain.Delivery, resp *provider.SendResponse, sendErr error) {
	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		DeliveryID:    delivery.ID,
		AttemptNumber: delivery.RetryCount + 1,
	}
	if resp != nil {
		code := resp.StatusCode
		attempt.StatusCode = &code
		if resp.Body != "" {
			body := resp.Body
			attempt.ResponseBody = &body
		}
	}
	if sendErr != nil {
		msg := sendErr.Error()
		attempt.Error = &msg
	}

	if err := w.attempts.Create(ctx, attempt); err != nil {
		w.logger.Warn("failed to record delivery attempt",
			zap.String("deliveryId", delivery.ID), zap.Error(err))
	}
}
