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

// TemplateService manages notification templates. Editing a template never
// rewrites history: deliveries snapshot rendered content at dispatch time.
type TemplateService struct {
	templates repository.TemplateRepository
	logger    *zap.Logger
}

func NewTemplateService(templates repository.TemplateRepository, logger *zap.Logger) (*TemplateService, error) {
	if templates == nil {
		return nil, fmt.Errorf("template repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemplateService{templates: templates, logger: logger}, nil
}

func (s *TemplateService) Create(ctx context.Context, template *domain.Template) (*domain.Template, error) {
	if template == nil {
		return nil, fmt.Errorf("%w: template is required", domain.ErrValidation)
	}
	if template.Locale == "" {
		template.Locale = domain.DefaultLocale
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	template.ID = uuid.NewString()
	template.IsActive = true
	template.CreatedAt = time.Now().UTC()
	template.UpdatedAt = template.CreatedAt

	if err := s.templates.Create(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.Info("template created",
		zap.String("templateId", template.ID),
		zap.String("type", template.Type.String()),
		zap.String("locale", template.Locale),
	)
	return template, nil
}

func (s *TemplateService) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	return s.templates.GetByID(ctx, id)
}

func (s *TemplateService) List(ctx context.Context, params repository.TemplateListParams) ([]domain.Template, int64, error) {
	return s.templates.List(ctx, params)
}

func (s *TemplateService) Update(ctx context.Context, template *domain.Template) (*domain.Template, error) {
	if template == nil || template.ID == "" {
		return nil, fmt.Errorf("%w: template id is required", domain.ErrValidation)
	}

	existing, err := s.templates.GetByID(ctx, template.ID)
	if err != nil {
		return nil, err
	}

	// Type and locale are identity, not content.
	template.Type = existing.Type
	template.Locale = existing.Locale
	template.IsActive = existing.IsActive
	template.CreatedAt = existing.CreatedAt
	template.UpdatedAt = time.Now().UTC()

	if err := template.Validate(); err != nil {
		return nil, err
	}
	if err := s.templates.Update(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	s.logger.Info("template updated", zap.String("templateId", template.ID))
	return template, nil
}

// Deactivate retires a template. Schedules referencing it keep their
// reference; their subsequent fires fail occurrence-by-occurrence.
func (s *TemplateService) Deactivate(ctx context.Context, id string) error {
	if err := s.templates.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Info("template deactivated", zap.String("templateId", id))
	return nil
}
