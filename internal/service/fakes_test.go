package service

import (
	"context"
	"sync"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/provider"
	"github.com/classboard/notification-engine/internal/queue"
	"github.com/classboard/notification-engine/internal/repository"
)

// fakeDeliveryRepo implements repository.DeliveryRepository with overridable
// function fields. Unset fields behave as no-ops.
type fakeDeliveryRepo struct {
	mu      sync.Mutex
	created []*domain.Delivery

	createBatch        func(ctx context.Context, deliveries []*domain.Delivery) error
	getByID            func(ctx context.Context, id string) (*domain.Delivery, error)
	list               func(ctx context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error)
	claimForProcessing func(ctx context.Context, id string) (*domain.Delivery, error)
	releaseClaim       func(ctx context.Context, id string) error
	markSent           func(ctx context.Context, id string, sentAt time.Time, externalID string) error
	markDelivered      func(ctx context.Context, id string) error
	markFailedRetry    func(ctx context.Context, id string, reason string, nextRetryAt time.Time) error
	markFailedTerminal func(ctx context.Context, id string, reason string) error
	promoteRetry       func(ctx context.Context, id string) (bool, error)
	promoteScheduled   func(ctx context.Context, id string) (bool, error)
	manualRetry        func(ctx context.Context, id string) error
	getDueRetries      func(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	getDueScheduled    func(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	getStalePending    func(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error)
	expireDue          func(ctx context.Context, now time.Time) (int64, error)
	bulkCancel         func(ctx context.Context, scheduleID *string) (int64, error)
	getScheduleSummary func(ctx context.Context, scheduleID string) ([]repository.DeliveryStatusCount, error)
	getInRange         func(ctx context.Context, from, to time.Time) ([]domain.Delivery, error)
}

func (f *fakeDeliveryRepo) CreateBatch(ctx context.Context, deliveries []*domain.Delivery) error {
	f.mu.Lock()
	f.created = append(f.created, deliveries...)
	f.mu.Unlock()
	if f.createBatch != nil {
		return f.createBatch(ctx, deliveries)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.getByID != nil {
		return f.getByID(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) List(ctx context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error) {
	if f.list != nil {
		return f.list(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeDeliveryRepo) ClaimForProcessing(ctx context.Context, id string) (*domain.Delivery, error) {
	if f.claimForProcessing != nil {
		return f.claimForProcessing(ctx, id)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) ReleaseClaim(ctx context.Context, id string) error {
	if f.releaseClaim != nil {
		return f.releaseClaim(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkSent(ctx context.Context, id string, sentAt time.Time, externalID string) error {
	if f.markSent != nil {
		return f.markSent(ctx, id, sentAt, externalID)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	if f.markDelivered != nil {
		return f.markDelivered(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailedRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error {
	if f.markFailedRetry != nil {
		return f.markFailedRetry(ctx, id, reason, nextRetryAt)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailedTerminal(ctx context.Context, id string, reason string) error {
	if f.markFailedTerminal != nil {
		return f.markFailedTerminal(ctx, id, reason)
	}
	return nil
}

func (f *fakeDeliveryRepo) PromoteRetry(ctx context.Context, id string) (bool, error) {
	if f.promoteRetry != nil {
		return f.promoteRetry(ctx, id)
	}
	return true, nil
}

func (f *fakeDeliveryRepo) PromoteScheduled(ctx context.Context, id string) (bool, error) {
	if f.promoteScheduled != nil {
		return f.promoteScheduled(ctx, id)
	}
	return true, nil
}

func (f *fakeDeliveryRepo) ManualRetry(ctx context.Context, id string) error {
	if f.manualRetry != nil {
		return f.manualRetry(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	if f.getDueRetries != nil {
		return f.getDueRetries(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	if f.getDueScheduled != nil {
		return f.getDueScheduled(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error) {
	if f.getStalePending != nil {
		return f.getStalePending(ctx, olderThan, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	if f.expireDue != nil {
		return f.expireDue(ctx, now)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) BulkCancel(ctx context.Context, scheduleID *string) (int64, error) {
	if f.bulkCancel != nil {
		return f.bulkCancel(ctx, scheduleID)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) GetScheduleSummary(ctx context.Context, scheduleID string) ([]repository.DeliveryStatusCount, error) {
	if f.getScheduleSummary != nil {
		return f.getScheduleSummary(ctx, scheduleID)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetInRange(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
	if f.getInRange != nil {
		return f.getInRange(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) createdDeliveries() []*domain.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Delivery(nil), f.created...)
}

type fakePreferenceRepo struct {
	byUserID  func(ctx context.Context, userID string) (*domain.UserPreference, error)
	byUserIDs func(ctx context.Context, userIDs []string) (map[string]*domain.UserPreference, error)
	upsert    func(ctx context.Context, p *domain.UserPreference) error
}

func (f *fakePreferenceRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserPreference, error) {
	if f.byUserID != nil {
		return f.byUserID(ctx, userID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePreferenceRepo) GetByUserIDs(ctx context.Context, userIDs []string) (map[string]*domain.UserPreference, error) {
	if f.byUserIDs != nil {
		return f.byUserIDs(ctx, userIDs)
	}
	return map[string]*domain.UserPreference{}, nil
}

func (f *fakePreferenceRepo) Upsert(ctx context.Context, p *domain.UserPreference) error {
	if f.upsert != nil {
		return f.upsert(ctx, p)
	}
	return nil
}

type fakeScheduleRepo struct {
	create        func(ctx context.Context, s *domain.Schedule) error
	getByID       func(ctx context.Context, id string) (*domain.Schedule, error)
	list          func(ctx context.Context, params repository.ScheduleListParams) ([]domain.Schedule, int64, error)
	update        func(ctx context.Context, s *domain.Schedule) error
	getDueForFire func(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	claimFire     func(ctx context.Context, id string, fireAt time.Time) (bool, error)
	completeFire  func(ctx context.Context, id string, firedAt time.Time, nextFireAt *time.Time) error
	cancel        func(ctx context.Context, id string) error
}

func (f *fakeScheduleRepo) Create(ctx context.Context, s *domain.Schedule) error {
	if f.create != nil {
		return f.create(ctx, s)
	}
	return nil
}

func (f *fakeScheduleRepo) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	if f.getByID != nil {
		return f.getByID(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeScheduleRepo) List(ctx context.Context, params repository.ScheduleListParams) ([]domain.Schedule, int64, error) {
	if f.list != nil {
		return f.list(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	if f.update != nil {
		return f.update(ctx, s)
	}
	return nil
}

func (f *fakeScheduleRepo) GetDueForFire(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	if f.getDueForFire != nil {
		return f.getDueForFire(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeScheduleRepo) ClaimFire(ctx context.Context, id string, fireAt time.Time) (bool, error) {
	if f.claimFire != nil {
		return f.claimFire(ctx, id, fireAt)
	}
	return true, nil
}

func (f *fakeScheduleRepo) CompleteFire(ctx context.Context, id string, firedAt time.Time, nextFireAt *time.Time) error {
	if f.completeFire != nil {
		return f.completeFire(ctx, id, firedAt, nextFireAt)
	}
	return nil
}

func (f *fakeScheduleRepo) Cancel(ctx context.Context, id string) error {
	if f.cancel != nil {
		return f.cancel(ctx, id)
	}
	return nil
}

type fakeTemplateRepo struct {
	create           func(ctx context.Context, t *domain.Template) error
	getByID          func(ctx context.Context, id string) (*domain.Template, error)
	getActiveVariant func(ctx context.Context, notificationType domain.NotificationType, locale string) (*domain.Template, error)
	list             func(ctx context.Context, params repository.TemplateListParams) ([]domain.Template, int64, error)
	update           func(ctx context.Context, t *domain.Template) error
	deactivate       func(ctx context.Context, id string) error
}

func (f *fakeTemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	if f.create != nil {
		return f.create(ctx, t)
	}
	return nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	if f.getByID != nil {
		return f.getByID(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) GetActiveByTypeAndLocale(ctx context.Context, notificationType domain.NotificationType, locale string) (*domain.Template, error) {
	if f.getActiveVariant != nil {
		return f.getActiveVariant(ctx, notificationType, locale)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTemplateRepo) List(ctx context.Context, params repository.TemplateListParams) ([]domain.Template, int64, error) {
	if f.list != nil {
		return f.list(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeTemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	if f.update != nil {
		return f.update(ctx, t)
	}
	return nil
}

func (f *fakeTemplateRepo) Deactivate(ctx context.Context, id string) error {
	if f.deactivate != nil {
		return f.deactivate(ctx, id)
	}
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []*domain.DeliveryAttempt
}

func (f *fakeAttemptRepo) Create(_ context.Context, a *domain.DeliveryAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, a)
	return nil
}

func (f *fakeAttemptRepo) ListByDelivery(_ context.Context, deliveryID string) ([]domain.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.DeliveryAttempt
	for _, a := range f.attempts {
		if a.DeliveryID == deliveryID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type publishedMessage struct {
	Queue   string
	Message queue.DeliveryMessage
}

type fakePublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

func (f *fakePublisher) Publish(_ context.Context, queueName string, msg queue.DeliveryMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{Queue: queueName, Message: msg})
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.published...)
}

type fakeSender struct {
	send func(ctx context.Context, req provider.SendRequest) (*provider.SendResponse, error)
}

func (f *fakeSender) Send(ctx context.Context, req provider.SendRequest) (*provider.SendResponse, error) {
	if f.send != nil {
		return f.send(ctx, req)
	}
	return &provider.SendResponse{StatusCode: 200}, nil
}

type fakeLimiter struct {
	wait func(ctx context.Context, channel string) error
}

func (f *fakeLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

func (f *fakeLimiter) Wait(ctx context.Context, channel string) error {
	if f.wait != nil {
		return f.wait(ctx, channel)
	}
	return nil
}
