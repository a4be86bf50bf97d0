package service

import (
	"context"
	"fmt"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScheduleService manages notification schedules and executes the immediate
// send-now path, which shares the fire pipeline with the scheduler.
type ScheduleService struct {
	schedules  repository.ScheduleRepository
	templates  repository.TemplateRepository
	deliveries repository.DeliveryRepository
	resolver   *AudienceResolver
	dispatcher *Dispatcher
	expander   *Expander
	logger     *zap.Logger
	now        func() time.Time
}

func NewScheduleService(
	schedules repository.ScheduleRepository,
	templates repository.TemplateRepository,
	deliveries repository.DeliveryRepository,
	resolver *AudienceResolver,
	dispatcher *Dispatcher,
	expander *Expander,
	logger *zap.Logger,
) (*ScheduleService, error) {
	if schedules == nil || templates == nil || deliveries == nil {
		return nil, fmt.Errorf("schedule, template, and delivery repositories are required")
	}
	if resolver == nil || dispatcher == nil || expander == nil {
		return nil, fmt.Errorf("resolver, dispatcher, and expander are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ScheduleService{
		schedules:  schedules,
		templates:  templates,
		deliveries: deliveries,
		resolver:   resolver,
		dispatcher: dispatcher,
		expander:   expander,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Create validates and stores a new schedule. Non-draft schedules get their
// first fire slot immediately; a nil scheduledAt means fire as soon as the
// scheduler next scans.
func (s *ScheduleService) Create(ctx context.Context, schedule *domain.Schedule, draft bool) (*domain.Schedule, error) {
	if schedule == nil {
		return nil, fmt.Errorf("%w: schedule is required", domain.ErrValidation)
	}
	if schedule.Targeting.IsEmpty() {
		return nil, fmt.Errorf("%w: targeting must select at least one recipient source", domain.ErrValidation)
	}

	schedule.ID = uuid.NewString()
	schedule.Status = domain.ScheduleScheduled
	if draft {
		schedule.Status = domain.ScheduleDraft
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.templates.GetByID(ctx, schedule.TemplateID); err != nil {
		return nil, fmt.Errorf("template %s: %w", schedule.TemplateID, err)
	}

	if schedule.Status == domain.ScheduleScheduled {
		schedule.NextFireAt = s.initialFireAt(schedule)
	}

	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.Info("schedule created",
		zap.String("scheduleId", schedule.ID),
		zap.String("status", schedule.Status.String()),
		zap.Bool("recurring", schedule.IsRecurring),
	)
	return schedule, nil
}

func (s *ScheduleService) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *ScheduleService) List(ctx context.Context, params repository.ScheduleListParams) ([]domain.Schedule, int64, error) {
	return s.schedules.List(ctx, params)
}

// Update replaces a DRAFT or SCHEDULED schedule's definition and recomputes
// its fire slot. Schedules that already ran or were cancelled are immutable.
func (s *ScheduleService) Update(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error) {
	if schedule == nil || schedule.ID == "" {
		return nil, fmt.Errorf("%w: schedule id is required", domain.ErrValidation)
	}

	existing, err := s.schedules.GetByID(ctx, schedule.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status != domain.ScheduleDraft && existing.Status != domain.ScheduleScheduled {
		return nil, fmt.Errorf("%w: schedule %s is %s and cannot be updated",
			domain.ErrConflict, schedule.ID, existing.Status)
	}

	schedule.Status = existing.Status
	schedule.CreatedAt = existing.CreatedAt
	schedule.LastFiredAt = existing.LastFiredAt
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	if schedule.Targeting.IsEmpty() {
		return nil, fmt.Errorf("%w: targeting must select at least one recipient source", domain.ErrValidation)
	}

	schedule.NextFireAt = nil
	if schedule.Status == domain.ScheduleScheduled {
		schedule.NextFireAt = s.initialFireAt(schedule)
	}

	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}

	s.logger.Info("schedule updated", zap.String("scheduleId", schedule.ID))
	return schedule, nil
}

// Activate moves a DRAFT schedule to SCHEDULED and arms its fire slot.
func (s *ScheduleService) Activate(ctx context.Context, id string) (*domain.Schedule, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status != domain.ScheduleDraft {
		return nil, fmt.Errorf("%w: schedule %s is %s, only drafts can be activated",
			domain.ErrConflict, id, schedule.Status)
	}

	schedule.Status = domain.ScheduleScheduled
	schedule.NextFireAt = s.initialFireAt(schedule)
	if err := s.schedules.Update(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to activate schedule: %w", err)
	}

	s.logger.Info("schedule activated", zap.String("scheduleId", id))
	return schedule, nil
}

// Cancel stops future fires and cancels the schedule's not-yet-sent
// deliveries. In-flight and completed deliveries are untouched.
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	if err := s.schedules.Cancel(ctx, id); err != nil {
		return err
	}

	cancelled, err := s.deliveries.BulkCancel(ctx, &id)
	if err != nil {
		return fmt.Errorf("schedule cancelled but deliveries not: %w", err)
	}

	s.logger.Info("schedule cancelled",
		zap.String("scheduleId", id),
		zap.Int64("cancelledDeliveries", cancelled),
	)
	return nil
}

// SendNow fires a schedule immediately, ignoring its scheduled time. A
// one-shot schedule is consumed by this; a recurring schedule keeps its
// regular cadence and this fire is extra.
func (s *ScheduleService) SendNow(ctx context.Context, id string) (*DispatchResult, error) {
	schedule, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status != domain.ScheduleDraft && schedule.Status != domain.ScheduleScheduled {
		return nil, fmt.Errorf("%w: schedule %s is %s and cannot be sent",
			domain.ErrConflict, id, schedule.Status)
	}

	template, err := s.templates.GetByID(ctx, schedule.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", schedule.TemplateID, err)
	}
	if !template.IsActive {
		return nil, fmt.Errorf("%w: template %s is inactive", domain.ErrConflict, template.ID)
	}

	audience, err := s.resolver.Resolve(ctx, schedule.Targeting)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve audience: %w", err)
	}

	now := s.now().UTC()
	result, err := s.dispatcher.Dispatch(ctx, schedule, template, audience, now)
	if err != nil {
		return nil, err
	}

	if !schedule.IsRecurring {
		if err := s.schedules.CompleteFire(ctx, schedule.ID, now, nil); err != nil {
			s.logger.Error("send-now dispatched but schedule not completed",
				zap.String("scheduleId", id), zap.Error(err))
		}
	}

	s.logger.Info("schedule sent immediately",
		zap.String("scheduleId", id),
		zap.String("fireId", result.FireID),
		zap.Int("created", result.Created),
		zap.Int("deferred", result.Deferred),
	)
	return result, nil
}

// Summary reports the schedule's delivery counts grouped by status.
func (s *ScheduleService) Summary(ctx context.Context, id string) (map[domain.DeliveryStatus]int, error) {
	if _, err := s.schedules.GetByID(ctx, id); err != nil {
		return nil, err
	}

	counts, err := s.deliveries.GetScheduleSummary(ctx, id)
	if err != nil {
		return nil, err
	}

	summary := make(map[domain.DeliveryStatus]int, len(counts))
	for _, c := range counts {
		summary[c.Status] = c.Count
	}
	return summary, nil
}

func (s *ScheduleService) initialFireAt(schedule *domain.Schedule) *time.Time {
	if schedule.ScheduledAt != nil {
		at := schedule.ScheduledAt.UTC()
		return &at
	}
	now := s.now().UTC()
	return &now
}
