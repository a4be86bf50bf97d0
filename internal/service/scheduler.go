package service

import (
	"context"
	"fmt"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/observability"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

const dueScheduleBatchSize = 100

// Scheduler scans for due schedules and turns each due occurrence into a
// dispatched fire. The next_fire_at claim keeps multiple instances from
// double-firing the same occurrence and keeps a recurring schedule's fires
// strictly sequential.
type Scheduler struct {
	schedules  repository.ScheduleRepository
	templates  repository.TemplateRepository
	resolver   *AudienceResolver
	dispatcher *Dispatcher
	expander   *Expander
	metrics    *observability.Metrics
	logger     *zap.Logger
	interval   time.Duration
	now        func() time.Time
}

func NewScheduler(
	schedules repository.ScheduleRepository,
	templates repository.TemplateRepository,
	resolver *AudienceResolver,
	dispatcher *Dispatcher,
	expander *Expander,
	metrics *observability.Metrics,
	logger *zap.Logger,
	interval time.Duration,
) (*Scheduler, error) {
	if schedules == nil || templates == nil {
		return nil, fmt.Errorf("schedule and template repositories are required")
	}
	if resolver == nil || dispatcher == nil || expander == nil {
		return nil, fmt.Errorf("resolver, dispatcher, and expander are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Scheduler{
		schedules:  schedules,
		templates:  templates,
		resolver:   resolver,
		dispatcher: dispatcher,
		expander:   expander,
		metrics:    metrics,
		logger:     logger,
		interval:   interval,
		now:        time.Now,
	}, nil
}

// Run blocks scanning for due schedules until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Scan(ctx); err != nil {
				s.logger.Error("schedule scan failed", zap.Error(err))
			}
		}
	}
}

// Scan fires every due schedule occurrence once.
func (s *Scheduler) Scan(ctx context.Context) error {
	now := s.now().UTC()
	due, err := s.schedules.GetDueForFire(ctx, now, dueScheduleBatchSize)
	if err != nil {
		return fmt.Errorf("failed to load due schedules: %w", err)
	}

	for i := range due {
		schedule := &due[i]
		if schedule.NextFireAt == nil {
			continue
		}
		fireAt := schedule.NextFireAt.UTC()

		claimed, err := s.schedules.ClaimFire(ctx, schedule.ID, fireAt)
		if err != nil {
			s.logger.Error("failed to claim fire",
				zap.String("scheduleId", schedule.ID), zap.Error(err))
			continue
		}
		if !claimed {
			// Another instance got there first.
			continue
		}

		s.fire(ctx, schedule, fireAt)
	}

	return nil
}

// fire dispatches one claimed occurrence and advances the schedule's fire
// slot. A failed fire never blocks the next occurrence: the slot advances
// regardless, and the failure stays scoped to this occurrence.
func (s *Scheduler) fire(ctx context.Context, schedule *domain.Schedule, fireAt time.Time) {
	logger := s.logger.With(
		zap.String("scheduleId", schedule.ID),
		zap.Time("fireAt", fireAt),
	)

	result := "ok"
	if err := s.dispatchFire(ctx, schedule, fireAt, logger); err != nil {
		result = "failed"
		logger.Error("fire dispatch failed", zap.Error(err))
	}
	if s.metrics != nil {
		s.metrics.IncScheduleFire(result)
	}

	next, err := s.expander.Next(schedule, fireAt)
	if err != nil {
		logger.Error("failed to compute next fire", zap.Error(err))
		next = nil
	}

	if err := s.schedules.CompleteFire(ctx, schedule.ID, fireAt, next); err != nil {
		logger.Error("failed to complete fire", zap.Error(err))
	}
}

func (s *Scheduler) dispatchFire(ctx context.Context, schedule *domain.Schedule, fireAt time.Time, logger *zap.Logger) error {
	template, err := s.templates.GetByID(ctx, schedule.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to load template %s: %w", schedule.TemplateID, err)
	}
	if !template.IsActive {
		return fmt.Errorf("template %s is inactive", template.ID)
	}

	audience, err := s.resolver.Resolve(ctx, schedule.Targeting)
	if err != nil {
		return fmt.Errorf("failed to resolve audience: %w", err)
	}

	result, err := s.dispatcher.Dispatch(ctx, schedule, template, audience, fireAt)
	if err != nil {
		return err
	}

	logger.Info("schedule fired",
		zap.String("fireId", result.FireID),
		zap.Int("created", result.Created),
		zap.Int("deferred", result.Deferred),
		zap.Int("skipped", result.Skipped),
		zap.Int("warnings", len(result.Warnings)),
	)
	for _, warning := range result.Warnings {
		logger.Warn("fire warning", zap.String("fireId", result.FireID), zap.String("warning", warning))
	}

	return nil
}
