package repository

import (
	"context"
	"errors"

	"github.com/classboard/notification-engine/internal/domain"
	"gorm.io/gorm"
)

type TemplateListParams struct {
	Type     *domain.NotificationType
	Locale   *string
	Active   *bool
	Page     int
	PageSize int
}

type TemplateRepository interface {
	Create(ctx context.Context, t *domain.Template) error
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	// GetActiveByTypeAndLocale finds the active template variant for a
	// recipient locale. At most one row matches per (type, locale) thanks to
	// the partial unique index.
	GetActiveByTypeAndLocale(ctx context.Context, notificationType domain.NotificationType, locale string) (*domain.Template, error)
	List(ctx context.Context, params TemplateListParams) ([]domain.Template, int64, error)
	Update(ctx context.Context, t *domain.Template) error
	Deactivate(ctx context.Context, id string) error
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	model := templateModelFromDomain(t)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *templateModelToDomain(model)
	}
	return nil
}

func (r *GormTemplateRepo) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) GetActiveByTypeAndLocale(ctx context.Context, notificationType domain.NotificationType, locale string) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		First(&model, "type = ? AND locale = ? AND is_active = ?", notificationType, locale, true).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model), nil
}

func (r *GormTemplateRepo) List(ctx context.Context, params TemplateListParams) ([]domain.Template, int64, error) {
	query := r.db.WithContext(ctx).Model(&TemplateModel{})

	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.Locale != nil {
		query = query.Where("locale = ?", *params.Locale)
	}
	if params.Active != nil {
		query = query.Where("is_active = ?", *params.Active)
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

	var models []TemplateModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	templates := make([]domain.Template, 0, len(models))
	for i := range models {
		templates = append(templates, *templateModelToDomain(&models[i]))
	}

	return templates, total, nil
}

func (r *GormTemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	model := templateModelFromDomain(t)
	result := r.db.WithContext(ctx).
		Model(&TemplateModel{}).
		Where("id = ?", model.ID).
		Select("type", "locale", "email_subject", "email_body", "push_title",
			"push_message", "in_app_title", "in_app_message", "is_active").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormTemplateRepo) Deactivate(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&TemplateModel{}).
		Where("id = ?", id).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
