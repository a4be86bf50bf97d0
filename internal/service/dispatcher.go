package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/directory"
	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/render"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher turns one schedule fire occurrence into delivery records. Every
// per-recipient and per-channel failure is isolated: it becomes a warning on
// the result, never an abort of the whole fire.
type Dispatcher struct {
	deliveries  repository.DeliveryRepository
	preferences repository.PreferenceRepository
	templates   repository.TemplateRepository
	renderer    render.Renderer
	publisher   queue.Publisher
	logger      *zap.Logger
	now         func() time.Time
}

// DispatchResult summarizes one fire occurrence.
type DispatchResult struct {
	FireID   string
	Created  int
	Deferred int
	Skipped  int
	Warnings []string
}

func NewDispatcher(
	deliveries repository.DeliveryRepository,
	preferences repository.PreferenceRepository,
	templates repository.TemplateRepository,
	renderer render.Renderer,
	publisher queue.Publisher,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		deliveries:  deliveries,
		preferences: preferences,
		templates:   templates,
		renderer:    renderer,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Dispatch creates deliveries for one fire occurrence of a schedule.
// Recipients whose preferences defer the send (quiet hours, digest
// frequency) get SCHEDULED rows; everyone else gets PENDING rows that are
// published to the channel work queues immediately.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	schedule *domain.Schedule,
	template *domain.Template,
	audience *Audience,
	fireAt time.Time,
) (*DispatchResult, error) {
	if schedule == nil || template == nil || audience == nil {
		return nil, fmt.Errorf("%w: schedule, template, and audience are required", domain.ErrValidation)
	}

	result := &DispatchResult{FireID: uuid.NewString()}
	result.Warnings = append(result.Warnings, audience.Warnings...)

	userIDs := make([]string, 0, len(audience.Members))
	for _, member := range audience.Members {
		userIDs = append(userIDs, member.UserID)
	}
	storedPrefs, err := d.preferences.GetByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipient preferences: %w", err)
	}

	now := d.now().UTC()
	var toCreate []*domain.Delivery

	// One lookup per distinct recipient locale per fire.
	localized := map[string]*domain.Template{template.Locale: template}

	for _, member := range audience.Members {
		pref := storedPrefs[member.UserID]
		if pref == nil {
			pref = domain.DefaultPreference(member.UserID)
		}

		if !pref.CategoryEnabled(template.Type) {
			result.Skipped += len(domain.Channels())
			continue
		}

		memberTemplate := d.templateForLocale(ctx, template, member.Locale, localized)

		for _, channel := range domain.Channels() {
			if !schedule.ChannelEnabled(channel) || !pref.ChannelEnabled(channel) {
				result.Skipped++
				continue
			}

			delivery, warning := d.buildDelivery(ctx, schedule, memberTemplate, member, pref, channel, result.FireID, fireAt, now)
			if warning != "" {
				result.Warnings = append(result.Warnings, warning)
				result.Skipped++
				continue
			}
			if delivery == nil {
				result.Skipped++
				continue
			}

			toCreate = append(toCreate, delivery)
		}
	}

	if len(toCreate) == 0 {
		return result, nil
	}

	if err := d.deliveries.CreateBatch(ctx, toCreate); err != nil {
		return nil, fmt.Errorf("failed to create deliveries for fire: %w", err)
	}

	for _, delivery := range toCreate {
		if delivery.Status == domain.DeliveryScheduled {
			result.Deferred++
			continue
		}
		result.Created++

		msg := queue.DeliveryMessage{
			DeliveryID:    delivery.ID,
			CorrelationID: result.FireID,
			Channel:       delivery.Channel,
		}
		if err := d.publisher.Publish(ctx, queue.QueueName(delivery.Channel), msg); err != nil {
			// Row stays PENDING; the retry scanner's stale-pending sweep
			// re-publishes it.
			d.logger.Warn("failed to publish delivery, leaving pending",
				zap.String("deliveryId", delivery.ID),
				zap.String("channel", delivery.Channel.String()),
				zap.Error(err),
			)
		}
	}

	return result, nil
}

// templateForLocale picks the active template variant matching the
// recipient's locale, falling back to the schedule's template when no
// variant exists. Results are cached per fire in localized.
func (d *Dispatcher) templateForLocale(
	ctx context.Context,
	fallback *domain.Template,
	locale string,
	localized map[string]*domain.Template,
) *domain.Template {
	locale = strings.TrimSpace(locale)
	if locale == "" || locale == fallback.Locale {
		return fallback
	}
	if cached, ok := localized[locale]; ok {
		return cached
	}

	variant, err := d.templates.GetActiveByTypeAndLocale(ctx, fallback.Type, locale)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.Warn("locale template lookup failed, using default",
				zap.String("locale", locale),
				zap.String("type", fallback.Type.String()),
				zap.Error(err),
			)
		}
		localized[locale] = fallback
		return fallback
	}

	localized[locale] = variant
	return variant
}

func (d *Dispatcher) buildDelivery(
	ctx context.Context,
	schedule *domain.Schedule,
	template *domain.Template,
	member directory.Member,
	pref *domain.UserPreference,
	channel domain.Channel,
	fireID string,
	fireAt time.Time,
	now time.Time,
) (*domain.Delivery, string) {
	endpoint := strings.TrimSpace(member.Endpoints[channel])
	if endpoint == "" {
		return nil, fmt.Sprintf("user %s has no %s endpoint", member.UserID, strings.ToLower(channel.String()))
	}

	rawSubject, rawBody, ok := template.ContentFor(channel)
	if !ok {
		return nil, fmt.Sprintf("template %s has no %s content", template.ID, strings.ToLower(channel.String()))
	}

	rendered, err := d.renderer.Render(ctx, rawSubject, rawBody, renderVariables(schedule, template, member, fireAt))
	if err != nil {
		return nil, fmt.Sprintf("render failed for user %s on %s: %v", member.UserID, strings.ToLower(channel.String()), err)
	}

	delivery := &domain.Delivery{
		ID:               uuid.NewString(),
		ScheduleID:       schedule.ID,
		FireID:           fireID,
		UserID:           member.UserID,
		Endpoint:         endpoint,
		Channel:          channel,
		NotificationType: template.Type,
		Subject:          rendered.Subject,
		Content:          rendered.Content,
		Status:           domain.DeliveryPending,
		MaxRetries:       domain.DefaultMaxRetries,
		ExpiresAt:        schedule.RecurringEndDate,
	}

	if sendAt := d.effectiveSendTime(pref, now); sendAt.After(now) {
		delivery.Status = domain.DeliveryScheduled
		delivery.SendAt = &sendAt
	}

	return delivery, ""
}

// effectiveSendTime is the deferral point for quiet hours and digest
// frequency, computed in the recipient's local time. When both apply the
// later one wins.
func (d *Dispatcher) effectiveSendTime(pref *domain.UserPreference, now time.Time) time.Time {
	local := now.In(pref.Location())
	sendAt := now

	if pref.QuietHours.Contains(local) {
		if cleared := pref.QuietHours.End(local).UTC(); cleared.After(sendAt) {
			sendAt = cleared
		}
	}

	if boundary := digestBoundary(pref.Frequency, local); boundary != nil {
		if instant := boundary.UTC(); instant.After(sendAt) {
			sendAt = instant
		}
	}

	return sendAt
}

// digestBoundary returns the recipient's next digest instant: the next local
// midnight for DAILY, the next local Monday midnight for WEEKLY, nil for
// IMMEDIATE.
func digestBoundary(frequency domain.Frequency, local time.Time) *time.Time {
	switch frequency {
	case domain.FrequencyDaily:
		next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()).AddDate(0, 0, 1)
		return &next
	case domain.FrequencyWeekly:
		next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
		daysUntilMonday := (int(time.Monday) - int(next.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		next = next.AddDate(0, 0, daysUntilMonday)
		return &next
	}
	return nil
}

func renderVariables(schedule *domain.Schedule, template *domain.Template, member directory.Member, fireAt time.Time) map[string]string {
	return map[string]string{
		"user_id":           member.UserID,
		"user_role":         member.Role,
		"user_locale":       member.Locale,
		"schedule_id":       schedule.ID,
		"template_locale":   template.Locale,
		"notification_type": template.Type.String(),
		"fire_at":           fireAt.UTC().Format(time.RFC3339),
	}
}
