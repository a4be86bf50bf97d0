package repository

import (
	"context"
	"errors"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeliveryListParams struct {
	ScheduleID    *string
	Status        *domain.DeliveryStatus
	Channel       *domain.Channel
	Type          *domain.NotificationType
	FailureReason *string
	From          *time.Time
	To            *time.Time
	Page          int
	PageSize      int
	SortBy        string
	SortDesc      bool
}

type DeliveryStatusCount struct {
	Status domain.DeliveryStatus `gorm:"column:status"`
	Count  int                   `gorm:"column:count"`
}

type DeliveryRepository interface {
	CreateBatch(ctx context.Context, deliveries []*domain.Delivery) error
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, params DeliveryListParams) ([]domain.Delivery, int64, error)
	// ClaimForProcessing is the atomic PENDING -> PROCESSING compare-and-swap
	// guaranteeing at-most-one-worker-per-delivery. Returns nil (no error)
	// when the row is not claimable.
	ClaimForProcessing(ctx context.Context, id string) (*domain.Delivery, error)
	// ReleaseClaim undoes ClaimForProcessing: PROCESSING back to PENDING,
	// for claims abandoned before the attempt ran. A row that already moved
	// on is left alone.
	ReleaseClaim(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, sentAt time.Time, externalID string) error
	MarkDelivered(ctx context.Context, id string) error
	// MarkFailedRetry records a recoverable failure: increments retry_count
	// and parks the row as FAILED until nextRetryAt.
	MarkFailedRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error
	MarkFailedTerminal(ctx context.Context, id string, reason string) error
	// PromoteRetry re-enters a due automatic retry: FAILED with a due
	// next_retry_at becomes PENDING with next_retry_at cleared.
	PromoteRetry(ctx context.Context, id string) (bool, error)
	// PromoteScheduled moves a due deferred delivery to PENDING.
	PromoteScheduled(ctx context.Context, id string) (bool, error)
	// ManualRetry re-enters a terminal FAILED delivery: PENDING with
	// failure_reason cleared and retry_count untouched.
	ManualRetry(ctx context.Context, id string) error
	GetDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error)
	// GetStalePending returns PENDING deliveries untouched since olderThan,
	// typically rows whose queue publish was lost. Promoted deferred rows
	// keep their send_at, so the sweep matches on status alone. The caller
	// re-publishes them without changing status.
	GetStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error)
	// ExpireDue transitions PENDING/SCHEDULED deliveries past their validity
	// deadline to EXPIRED and reports how many rows changed.
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
	// BulkCancel transitions PENDING/SCHEDULED (never PROCESSING) deliveries
	// to CANCELLED, optionally restricted to one schedule.
	BulkCancel(ctx context.Context, scheduleID *string) (int64, error)
	GetScheduleSummary(ctx context.Context, scheduleID string) ([]DeliveryStatusCount, error)
	// GetInRange returns all deliveries created inside [from, to) for the
	// analytics aggregator.
	GetInRange(ctx context.Context, from, to time.Time) ([]domain.Delivery, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) CreateBatch(ctx context.Context, deliveries []*domain.Delivery) error {
	models := make([]DeliveryModel, 0, len(deliveries))
	modelIndexes := make([]int, 0, len(deliveries))
	for i, d := range deliveries {
		model := deliveryModelFromDomain(d)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	// The (fire_id, user_id, channel) unique index plus DoNothing makes
	// re-dispatching a crashed fire occurrence idempotent.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "fire_id"}, {Name: "user_id"}, {Name: "channel"}},
			DoNothing: true,
		}).
		CreateInBatches(&models, 100).Error
	if err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(deliveries) && deliveries[idx] != nil {
			*deliveries[idx] = *deliveryModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.Delivery, error) {
	var model DeliveryModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params DeliveryListParams) ([]domain.Delivery, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryModel{})

	if params.ScheduleID != nil {
		query = query.Where("schedule_id = ?", *params.ScheduleID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.Type != nil {
		query = query.Where("notification_type = ?", *params.Type)
	}
	if params.FailureReason != nil {
		query = query.Where("failure_reason = ?", *params.FailureReason)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at < ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryModel
	err := query.
		Order(sortClause(params.SortBy, params.SortDesc)).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}

	return deliveries, total, nil
}

func sortClause(sortBy string, desc bool) string {
	column := "created_at"
	switch sortBy {
	case "sent_at", "status", "channel", "created_at":
		column = sortBy
	}
	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

func (r *GormDeliveryRepo) ClaimForProcessing(ctx context.Context, id string) (*domain.Delivery, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryPending).
		Update("status", domain.DeliveryProcessing)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Terminal, already claimed, or missing; caller acks and skips.
		return nil, nil
	}

	var model DeliveryModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return deliveryModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) ReleaseClaim(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryProcessing).
		Update("status", domain.DeliveryPending).Error
}

func (r *GormDeliveryRepo) MarkSent(ctx context.Context, id string, sentAt time.Time, externalID string) error {
	updates := map[string]any{
		"status":  domain.DeliverySent,
		"sent_at": sentAt,
	}
	if externalID != "" {
		updates["external_id"] = externalID
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliverySent).
		Update("status", domain.DeliveryDelivered)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) MarkFailedRetry(ctx context.Context, id string, reason string, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryProcessing).
		Updates(map[string]any{
			"status":         domain.DeliveryFailed,
			"failure_reason": reason,
			"next_retry_at":  nextRetryAt,
			"retry_count":    gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) MarkFailedTerminal(ctx context.Context, id string, reason string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryProcessing).
		Updates(map[string]any{
			"status":         domain.DeliveryFailed,
			"failure_reason": reason,
			"next_retry_at":  nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) PromoteRetry(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ? AND next_retry_at IS NOT NULL", id, domain.DeliveryFailed).
		Updates(map[string]any{
			"status":        domain.DeliveryPending,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) PromoteScheduled(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ?", id, domain.DeliveryScheduled).
		Update("status", domain.DeliveryPending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) ManualRetry(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("id = ? AND status = ? AND next_retry_at IS NULL", id, domain.DeliveryFailed).
		Updates(map[string]any{
			"status":         domain.DeliveryPending,
			"failure_reason": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) GetDueRetries(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", domain.DeliveryFailed, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToDomain(models), nil
}

func (r *GormDeliveryRepo) GetDueScheduled(ctx context.Context, now time.Time, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND send_at IS NOT NULL AND send_at <= ?", domain.DeliveryScheduled, now).
		Order("send_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToDomain(models), nil
}

func (r *GormDeliveryRepo) GetStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at <= ?", domain.DeliveryPending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToDomain(models), nil
}

func (r *GormDeliveryRepo) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at <= ?",
			[]domain.DeliveryStatus{domain.DeliveryPending, domain.DeliveryScheduled}, now).
		Updates(map[string]any{
			"status":        domain.DeliveryExpired,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) BulkCancel(ctx context.Context, scheduleID *string) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Where("status IN ?", []domain.DeliveryStatus{domain.DeliveryPending, domain.DeliveryScheduled})
	if scheduleID != nil {
		query = query.Where("schedule_id = ?", *scheduleID)
	}

	result := query.Updates(map[string]any{
		"status":        domain.DeliveryCancelled,
		"next_retry_at": nil,
	})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) GetScheduleSummary(ctx context.Context, scheduleID string) ([]DeliveryStatusCount, error) {
	var summaries []DeliveryStatusCount
	err := r.db.WithContext(ctx).
		Model(&DeliveryModel{}).
		Select("status, COUNT(*) as count").
		Where("schedule_id = ?", scheduleID).
		Group("status").
		Scan(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *GormDeliveryRepo) GetInRange(ctx context.Context, from, to time.Time) ([]domain.Delivery, error) {
	var models []DeliveryModel
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return modelsToDomain(models), nil
}

func modelsToDomain(models []DeliveryModel) []domain.Delivery {
	deliveries := make([]domain.Delivery, 0, len(models))
	for i := range models {
		deliveries = append(deliveries, *deliveryModelToDomain(&models[i]))
	}
	return deliveries
}
