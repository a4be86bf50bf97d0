package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"go.uber.org/zap"
)

// PreferenceService manages recipient notification preferences. Reads never
// fail for unknown users: they get the default preference.
type PreferenceService struct {
	preferences repository.PreferenceRepository
	logger      *zap.Logger
}

func NewPreferenceService(preferences repository.PreferenceRepository, logger *zap.Logger) (*PreferenceService, error) {
	if preferences == nil {
		return nil, fmt.Errorf("preference repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{preferences: preferences, logger: logger}, nil
}

func (s *PreferenceService) Get(ctx context.Context, userID string) (*domain.UserPreference, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	pref, err := s.preferences.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultPreference(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return pref, nil
}

func (s *PreferenceService) Upsert(ctx context.Context, pref *domain.UserPreference) (*domain.UserPreference, error) {
	if pref == nil {
		return nil, fmt.Errorf("%w: preference is required", domain.ErrValidation)
	}
	if pref.Timezone == "" {
		pref.Timezone = "UTC"
	}
	if pref.Frequency == "" {
		pref.Frequency = domain.FrequencyImmediate
	}
	if err := pref.Validate(); err != nil {
		return nil, err
	}

	if err := s.preferences.Upsert(ctx, pref); err != nil {
		return nil, fmt.Errorf("failed to save preference: %w", err)
	}

	s.logger.Info("preference saved", zap.String("userId", pref.UserID))
	return pref, nil
}
