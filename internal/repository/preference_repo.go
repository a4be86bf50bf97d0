package repository

import (
	"context"
	"errors"

	"github.com/classboard/notification-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PreferenceRepository interface {
	// GetByUserID returns ErrNotFound for users without a stored row; the
	// service substitutes DefaultPreference.
	GetByUserID(ctx context.Context, userID string) (*domain.UserPreference, error)
	GetByUserIDs(ctx context.Context, userIDs []string) (map[string]*domain.UserPreference, error)
	Upsert(ctx context.Context, p *domain.UserPreference) error
}

type GormPreferenceRepo struct {
	db *gorm.DB
}

func NewGormPreferenceRepo(db *gorm.DB) *GormPreferenceRepo {
	return &GormPreferenceRepo{db: db}
}

func (r *GormPreferenceRepo) GetByUserID(ctx context.Context, userID string) (*domain.UserPreference, error) {
	var model PreferenceModel
	err := r.db.WithContext(ctx).First(&model, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return preferenceModelToDomain(&model), nil
}

func (r *GormPreferenceRepo) GetByUserIDs(ctx context.Context, userIDs []string) (map[string]*domain.UserPreference, error) {
	if len(userIDs) == 0 {
		return map[string]*domain.UserPreference{}, nil
	}

	var models []PreferenceModel
	err := r.db.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	preferences := make(map[string]*domain.UserPreference, len(models))
	for i := range models {
		preferences[models[i].UserID] = preferenceModelToDomain(&models[i])
	}
	return preferences, nil
}

func (r *GormPreferenceRepo) Upsert(ctx context.Context, p *domain.UserPreference) error {
	model := preferenceModelFromDomain(p)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"email_enabled", "push_enabled", "in_app_enabled",
				"categories", "frequency", "quiet_hours", "timezone",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}
	if p != nil {
		*p = *preferenceModelToDomain(model)
	}
	return nil
}
