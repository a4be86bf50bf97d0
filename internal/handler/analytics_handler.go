package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

const defaultReportWindow = 7 * 24 * time.Hour

type AnalyticsService interface {
	Aggregate(ctx context.Context, from, to time.Time) (*service.Report, error)
}

type AnalyticsHandler struct {
	service AnalyticsService
}

func NewAnalyticsHandler(service AnalyticsService) (*AnalyticsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("analytics service is required")
	}
	return &AnalyticsHandler{service: service}, nil
}

func RegisterAnalyticsRoutes(router fiber.Router, service AnalyticsService) error {
	h, err := NewAnalyticsHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/analytics/deliveries", h.GetDeliveryReport)

	return nil
}

// GetDeliveryReport aggregates delivery outcomes over [from, to). Without
// query parameters the report covers the last seven days.
func (h *AnalyticsHandler) GetDeliveryReport(c *fiber.Ctx) error {
	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return toHTTPError(err)
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return toHTTPError(err)
	}

	now := time.Now().UTC()
	if to == nil {
		to = &now
	}
	if from == nil {
		start := to.Add(-defaultReportWindow)
		from = &start
	}
	if !to.After(*from) {
		return toHTTPError(fmt.Errorf("%w: to must be after from", domain.ErrValidation))
	}

	report, err := h.service.Aggregate(c.Context(), *from, *to)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(report)
}
