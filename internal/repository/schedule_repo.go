package repository

import (
	"context"
	"errors"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"gorm.io/gorm"
)

type ScheduleListParams struct {
	Status   *domain.ScheduleStatus
	Page     int
	PageSize int
}

type ScheduleRepository interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, params ScheduleListParams) ([]domain.Schedule, int64, error)
	Update(ctx context.Context, s *domain.Schedule) error
	GetDueForFire(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	// ClaimFire atomically clears next_fire_at iff it still matches fireAt,
	// keeping recurring occurrences strictly sequential across scheduler
	// instances. Returns false when another instance claimed the fire first.
	ClaimFire(ctx context.Context, id string, fireAt time.Time) (bool, error)
	// CompleteFire records the fired occurrence and either sets the next
	// fire slot or marks the schedule SENT when none remains.
	CompleteFire(ctx context.Context, id string, firedAt time.Time, nextFireAt *time.Time) error
	Cancel(ctx context.Context, id string) error
}

type GormScheduleRepo struct {
	db *gorm.DB
}

func NewGormScheduleRepo(db *gorm.DB) *GormScheduleRepo {
	return &GormScheduleRepo{db: db}
}

func (r *GormScheduleRepo) Create(ctx context.Context, s *domain.Schedule) error {
	model := scheduleModelFromDomain(s)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if s != nil {
		*s = *scheduleModelToDomain(model)
	}
	return nil
}

func (r *GormScheduleRepo) GetByID(ctx context.Context, id string) (*domain.Schedule, error) {
	var model ScheduleModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return scheduleModelToDomain(&model), nil
}

func (r *GormScheduleRepo) List(ctx context.Context, params ScheduleListParams) ([]domain.Schedule, int64, error) {
	query := r.db.WithContext(ctx).Model(&ScheduleModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
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

	var models []ScheduleModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	schedules := make([]domain.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *scheduleModelToDomain(&models[i]))
	}

	return schedules, total, nil
}

func (r *GormScheduleRepo) Update(ctx context.Context, s *domain.Schedule) error {
	model := scheduleModelFromDomain(s)
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ?", model.ID).
		Select("template_id", "targeting", "scheduled_at", "timezone",
			"is_recurring", "recurring_pattern", "recurring_end_date",
			"email_enabled", "push_enabled", "in_app_enabled", "status",
			"next_fire_at").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormScheduleRepo) GetDueForFire(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	var models []ScheduleModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_fire_at IS NOT NULL AND next_fire_at <= ?", domain.ScheduleScheduled, now).
		Order("next_fire_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	schedules := make([]domain.Schedule, 0, len(models))
	for i := range models {
		schedules = append(schedules, *scheduleModelToDomain(&models[i]))
	}

	return schedules, nil
}

func (r *GormScheduleRepo) ClaimFire(ctx context.Context, id string, fireAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ? AND status = ? AND next_fire_at = ?", id, domain.ScheduleScheduled, fireAt).
		Update("next_fire_at", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormScheduleRepo) CompleteFire(ctx context.Context, id string, firedAt time.Time, nextFireAt *time.Time) error {
	updates := map[string]any{
		"last_fired_at": firedAt,
		"next_fire_at":  nextFireAt,
	}
	if nextFireAt == nil {
		updates["status"] = domain.ScheduleSent
	}

	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ? AND status = ?", id, domain.ScheduleScheduled).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Cancelled mid-fire; deliveries already created stay untouched.
		return domain.ErrConflict
	}
	return nil
}

func (r *GormScheduleRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&ScheduleModel{}).
		Where("id = ? AND status IN ?", id, []domain.ScheduleStatus{domain.ScheduleDraft, domain.ScheduleScheduled}).
		Updates(map[string]any{
			"status":       domain.ScheduleCancelled,
			"next_fire_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}
