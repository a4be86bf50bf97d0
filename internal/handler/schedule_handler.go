package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/classboard/notification-engine/internal/service"
	"github.com/gofiber/fiber/v2"
)

type ScheduleService interface {
	Create(ctx context.Context, schedule *domain.Schedule, draft bool) (*domain.Schedule, error)
	GetByID(ctx context.Context, id string) (*domain.Schedule, error)
	List(ctx context.Context, params repository.ScheduleListParams) ([]domain.Schedule, int64, error)
	Update(ctx context.Context, schedule *domain.Schedule) (*domain.Schedule, error)
	Activate(ctx context.Context, id string) (*domain.Schedule, error)
	Cancel(ctx context.Context, id string) error
	SendNow(ctx context.Context, id string) (*service.DispatchResult, error)
	Summary(ctx context.Context, id string) (map[domain.DeliveryStatus]int, error)
}

type ScheduleHandler struct {
	service ScheduleService
}

func NewScheduleHandler(service ScheduleService) (*ScheduleHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("schedule service is required")
	}
	return &ScheduleHandler{service: service}, nil
}

func RegisterScheduleRoutes(router fiber.Router, service ScheduleService) error {
	h, err := NewScheduleHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/schedules", h.CreateSchedule)
	v1.Get("/schedules", h.ListSchedules)
	v1.Get("/schedules/:id", h.GetSchedule)
	v1.Put("/schedules/:id", h.UpdateSchedule)
	v1.Post("/schedules/:id/activate", h.ActivateSchedule)
	v1.Post("/schedules/:id/cancel", h.CancelSchedule)
	v1.Post("/schedules/:id/send-now", h.SendNow)
	v1.Get("/schedules/:id/summary", h.GetScheduleSummary)

	return nil
}

type targetingRequest struct {
	Roles           []string `json:"roles,omitempty"`
	UserIDs         []string `json:"userIds,omitempty"`
	CourseIDs       []string `json:"courseIds,omitempty"`
	ClassIDs        []string `json:"classIds,omitempty"`
	IncludeTeachers bool     `json:"includeTeachers,omitempty"`
}

type scheduleRequest struct {
	TemplateID       string           `json:"templateId"`
	Targeting        targetingRequest `json:"targeting"`
	ScheduledAt      *time.Time       `json:"scheduledAt,omitempty"`
	Timezone         string           `json:"timezone"`
	IsRecurring      bool             `json:"isRecurring"`
	RecurringPattern string           `json:"recurringPattern,omitempty"`
	RecurringEndDate *time.Time       `json:"recurringEndDate,omitempty"`
	EmailEnabled     bool             `json:"emailEnabled"`
	PushEnabled      bool             `json:"pushEnabled"`
	InAppEnabled     bool             `json:"inAppEnabled"`
	Draft            bool             `json:"draft,omitempty"`
}

type scheduleResponse struct {
	ID               string           `json:"id"`
	TemplateID       string           `json:"templateId"`
	Targeting        targetingRequest `json:"targeting"`
	ScheduledAt      *time.Time       `json:"scheduledAt,omitempty"`
	Timezone         string           `json:"timezone"`
	IsRecurring      bool             `json:"isRecurring"`
	RecurringPattern string           `json:"recurringPattern,omitempty"`
	RecurringEndDate *time.Time       `json:"recurringEndDate,omitempty"`
	EmailEnabled     bool             `json:"emailEnabled"`
	PushEnabled      bool             `json:"pushEnabled"`
	InAppEnabled     bool             `json:"inAppEnabled"`
	Status           string           `json:"status"`
	NextFireAt       *time.Time       `json:"nextFireAt,omitempty"`
	LastFiredAt      *time.Time       `json:"lastFiredAt,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

type listSchedulesResponse struct {
	Data []scheduleResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type dispatchResultResponse struct {
	FireID   string   `json:"fireId"`
	Created  int      `json:"created"`
	Deferred int      `json:"deferred"`
	Skipped  int      `json:"skipped"`
	Warnings []string `json:"warnings,omitempty"`
}

func (h *ScheduleHandler) CreateSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	schedule, err := requestToDomainSchedule(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), schedule, req.Draft)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusCreated).JSON(toScheduleResponse(created))
}

func (h *ScheduleHandler) GetSchedule(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	schedule, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toScheduleResponse(schedule))
}

func (h *ScheduleHandler) ListSchedules(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return toHTTPError(err)
	}
	params := repository.ScheduleListParams{Page: page, PageSize: pageSize}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseScheduleStatusFromString(rawStatus)
		if err != nil {
			return toHTTPError(err)
		}
		params.Status = &status
	}

	schedules, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]scheduleResponse, 0, len(schedules))
	for i := range schedules {
		data = append(data, toScheduleResponse(&schedules[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listSchedulesResponse{
		Data: data,
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *ScheduleHandler) UpdateSchedule(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	schedule, err := requestToDomainSchedule(req)
	if err != nil {
		return toHTTPError(err)
	}
	schedule.ID = strings.TrimSpace(c.Params("id"))

	updated, err := h.service.Update(c.Context(), schedule)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toScheduleResponse(updated))
}

func (h *ScheduleHandler) ActivateSchedule(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	schedule, err := h.service.Activate(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toScheduleResponse(schedule))
}

func (h *ScheduleHandler) CancelSchedule(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"scheduleId": id,
		"status":     domain.ScheduleCancelled.String(),
	})
}

func (h *ScheduleHandler) SendNow(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	result, err := h.service.SendNow(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(dispatchResultResponse{
		FireID:   result.FireID,
		Created:  result.Created,
		Deferred: result.Deferred,
		Skipped:  result.Skipped,
		Warnings: result.Warnings,
	})
}

func (h *ScheduleHandler) GetScheduleSummary(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	summary, err := h.service.Summary(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	counts := make(map[string]int, len(summary))
	for status, count := range summary {
		counts[status.String()] = count
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"scheduleId": id,
		"counts":     counts,
	})
}

func requestToDomainSchedule(req scheduleRequest) (*domain.Schedule, error) {
	schedule := &domain.Schedule{
		TemplateID: strings.TrimSpace(req.TemplateID),
		Targeting: domain.Targeting{
			Roles:           req.Targeting.Roles,
			UserIDs:         req.Targeting.UserIDs,
			CourseIDs:       req.Targeting.CourseIDs,
			ClassIDs:        req.Targeting.ClassIDs,
			IncludeTeachers: req.Targeting.IncludeTeachers,
		},
		ScheduledAt:      req.ScheduledAt,
		Timezone:         strings.TrimSpace(req.Timezone),
		IsRecurring:      req.IsRecurring,
		RecurringEndDate: req.RecurringEndDate,
		EmailEnabled:     req.EmailEnabled,
		PushEnabled:      req.PushEnabled,
		InAppEnabled:     req.InAppEnabled,
	}
	if schedule.Timezone == "" {
		schedule.Timezone = "UTC"
	}

	if raw := strings.TrimSpace(req.RecurringPattern); raw != "" {
		pattern, err := domain.ParseRecurringPatternFromString(raw)
		if err != nil {
			return nil, err
		}
		schedule.RecurringPattern = pattern
	}

	return schedule, nil
}

func toScheduleResponse(s *domain.Schedule) scheduleResponse {
	if s == nil {
		return scheduleResponse{}
	}
	return scheduleResponse{
		ID:         s.ID,
		TemplateID: s.TemplateID,
		Targeting: targetingRequest{
			Roles:           s.Targeting.Roles,
			UserIDs:         s.Targeting.UserIDs,
			CourseIDs:       s.Targeting.CourseIDs,
			ClassIDs:        s.Targeting.ClassIDs,
			IncludeTeachers: s.Targeting.IncludeTeachers,
		},
		ScheduledAt:      s.ScheduledAt,
		Timezone:         s.Timezone,
		IsRecurring:      s.IsRecurring,
		RecurringPattern: s.RecurringPattern.String(),
		RecurringEndDate: s.RecurringEndDate,
		EmailEnabled:     s.EmailEnabled,
		PushEnabled:      s.PushEnabled,
		InAppEnabled:     s.InAppEnabled,
		Status:           s.Status.String(),
		NextFireAt:       s.NextFireAt,
		LastFiredAt:      s.LastFiredAt,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}
