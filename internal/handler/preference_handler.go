package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/gofiber/fiber/v2"
)

type PreferenceService interface {
	Get(ctx context.Context, userID string) (*domain.UserPreference, error)
	Upsert(ctx context.Context, pref *domain.UserPreference) (*domain.UserPreference, error)
}

type PreferenceHandler struct {
	service PreferenceService
}

func NewPreferenceHandler(service PreferenceService) (*PreferenceHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("preference service is required")
	}
	return &PreferenceHandler{service: service}, nil
}

func RegisterPreferenceRoutes(router fiber.Router, service PreferenceService) error {
	h, err := NewPreferenceHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/users/:userId/preferences", h.GetPreference)
	v1.Put("/users/:userId/preferences", h.UpsertPreference)

	return nil
}

type quietHoursRequest struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"startTime,omitempty"`
	EndTime   string `json:"endTime,omitempty"`
}

type preferenceRequest struct {
	EmailEnabled *bool              `json:"emailEnabled,omitempty"`
	PushEnabled  *bool              `json:"pushEnabled,omitempty"`
	InAppEnabled *bool              `json:"inAppEnabled,omitempty"`
	Categories   map[string]bool    `json:"categories,omitempty"`
	Frequency    string             `json:"frequency,omitempty"`
	QuietHours   *quietHoursRequest `json:"quietHours,omitempty"`
	Timezone     string             `json:"timezone,omitempty"`
}

type preferenceResponse struct {
	UserID       string            `json:"userId"`
	EmailEnabled bool              `json:"emailEnabled"`
	PushEnabled  bool              `json:"pushEnabled"`
	InAppEnabled bool              `json:"inAppEnabled"`
	Categories   map[string]bool   `json:"categories,omitempty"`
	Frequency    string            `json:"frequency"`
	QuietHours   quietHoursRequest `json:"quietHours"`
	Timezone     string            `json:"timezone"`
}

func (h *PreferenceHandler) GetPreference(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	pref, err := h.service.Get(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPreferenceResponse(pref))
}

func (h *PreferenceHandler) UpsertPreference(c *fiber.Ctx) error {
	var req preferenceRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	userID := strings.TrimSpace(c.Params("userId"))
	pref, err := requestToDomainPreference(userID, req)
	if err != nil {
		return toHTTPError(err)
	}

	saved, err := h.service.Upsert(c.Context(), pref)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toPreferenceResponse(saved))
}

// requestToDomainPreference starts from the all-enabled default so partial
// updates only override what the request names.
func requestToDomainPreference(userID string, req preferenceRequest) (*domain.UserPreference, error) {
	pref := domain.DefaultPreference(userID)

	if req.EmailEnabled != nil {
		pref.EmailEnabled = *req.EmailEnabled
	}
	if req.PushEnabled != nil {
		pref.PushEnabled = *req.PushEnabled
	}
	if req.InAppEnabled != nil {
		pref.InAppEnabled = *req.InAppEnabled
	}
	if req.Timezone != "" {
		pref.Timezone = strings.TrimSpace(req.Timezone)
	}

	if req.Frequency != "" {
		frequency, err := domain.ParseFrequencyFromString(req.Frequency)
		if err != nil {
			return nil, err
		}
		pref.Frequency = frequency
	}

	if len(req.Categories) > 0 {
		pref.Categories = make(map[domain.NotificationType]bool, len(req.Categories))
		for raw, enabled := range req.Categories {
			notificationType, err := domain.ParseNotificationTypeFromString(raw)
			if err != nil {
				return nil, err
			}
			pref.Categories[notificationType] = enabled
		}
	}

	if req.QuietHours != nil {
		pref.QuietHours = domain.QuietHours{
			Enabled:   req.QuietHours.Enabled,
			StartTime: strings.TrimSpace(req.QuietHours.StartTime),
			EndTime:   strings.TrimSpace(req.QuietHours.EndTime),
		}
	}

	return pref, nil
}

func toPreferenceResponse(p *domain.UserPreference) preferenceResponse {
	if p == nil {
		return preferenceResponse{}
	}

	var categories map[string]bool
	if len(p.Categories) > 0 {
		categories = make(map[string]bool, len(p.Categories))
		for notificationType, enabled := range p.Categories {
			categories[notificationType.String()] = enabled
		}
	}

	return preferenceResponse{
		UserID:       p.UserID,
		EmailEnabled: p.EmailEnabled,
		PushEnabled:  p.PushEnabled,
		InAppEnabled: p.InAppEnabled,
		Categories:   categories,
		Frequency:    p.Frequency.String(),
		QuietHours: quietHoursRequest{
			Enabled:   p.QuietHours.Enabled,
			StartTime: p.QuietHours.StartTime,
			EndTime:   p.QuietHours.EndTime,
		},
		Timezone: p.Timezone,
	}
}
