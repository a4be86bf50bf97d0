package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/classboard/notification-engine/internal/domain"
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type TemplateService interface {
	Create(ctx context.Context, template *domain.Template) (*domain.Template, error)
	GetByID(ctx context.Context, id string) (*domain.Template, error)
	List(ctx context.Context, params repository.TemplateListParams) ([]domain.Template, int64, error)
	Update(ctx context.Context, template *domain.Template) (*domain.Template, error)
	Deactivate(ctx context.Context, id string) error
}

type TemplateHandler struct {
	service TemplateService
}

func NewTemplateHandler(service TemplateService) (*TemplateHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("template service is required")
	}
	return &TemplateHandler{service: service}, nil
}

func RegisterTemplateRoutes(router fiber.Router, service TemplateService) error {
	h, err := NewTemplateHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/templates", h.CreateTemplate)
	v1.Get("/templates", h.ListTemplates)
	v1.Get("/templates/:id", h.GetTemplate)
	v1.Put("/templates/:id", h.UpdateTemplate)
	v1.Delete("/templates/:id", h.DeactivateTemplate)

	return nil
}

type templateRequest struct {
	Type         string `json:"type"`
	Locale       string `json:"locale"`
	EmailSubject string `json:"emailSubject"`
	EmailBody    string `json:"emailBody"`
	PushTitle    string `json:"pushTitle"`
	PushMessage  string `json:"pushMessage"`
	InAppTitle   string `json:"inAppTitle"`
	InAppMessage string `json:"inAppMessage"`
}

type templateResponse struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	Locale       string    `json:"locale"`
	EmailSubject string    `json:"emailSubject,omitempty"`
	EmailBody    string    `json:"emailBody,omitempty"`
	PushTitle    string    `json:"pushTitle,omitempty"`
	PushMessage  string    `json:"pushMessage,omitempty"`
	InAppTitle   string    `json:"inAppTitle,omitempty"`
	InAppMessage string    `json:"inAppMessage,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type listTemplatesResponse struct {
	Data []templateResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

func (h *TemplateHandler) CreateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	template, err := requestToDomainTemplate(req)
	if err != nil {
		return toHTTPError(err)
	}

	created, err := h.service.Create(c.Context(), template)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toTemplateResponse(created))
}

func (h *TemplateHandler) GetTemplate(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	template, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toTemplateResponse(template))
}

func (h *TemplateHandler) ListTemplates(c *fiber.Ctx) error {
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return toHTTPError(err)
	}
	params := repository.TemplateListParams{Page: page, PageSize: pageSize}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return toHTTPError(err)
		}
		params.Type = &notificationType
	}
	if locale := strings.TrimSpace(c.Query("locale")); locale != "" {
		params.Locale = &locale
	}
	if rawActive := strings.TrimSpace(c.Query("active")); rawActive != "" {
		active := rawActive == "true"
		params.Active = &active
	}

	templates, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]templateResponse, 0, len(templates))
	for i := range templates {
		data = append(data, toTemplateResponse(&templates[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listTemplatesResponse{
		Data: data,
		Meta: listMeta{Page: page, PageSize: pageSize, Total: total},
	})
}

func (h *TemplateHandler) UpdateTemplate(c *fiber.Ctx) error {
	var req templateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	template, err := requestToDomainTemplate(req)
	if err != nil {
		return toHTTPError(err)
	}
	template.ID = strings.TrimSpace(c.Params("id"))

	updated, err := h.service.Update(c.Context(), template)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toTemplateResponse(updated))
}

func (h *TemplateHandler) DeactivateTemplate(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Deactivate(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"templateId": id,
		"isActive":   false,
	})
}

func requestToDomainTemplate(req templateRequest) (*domain.Template, error) {
	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return nil, err
	}

	return &domain.Template{
		Type:         notificationType,
		Locale:       strings.TrimSpace(req.Locale),
		EmailSubject: req.EmailSubject,
		EmailBody:    req.EmailBody,
		PushTitle:    req.PushTitle,
		PushMessage:  req.PushMessage,
		InAppTitle:   req.InAppTitle,
		InAppMessage: req.InAppMessage,
	}, nil
}

func toTemplateResponse(t *domain.Template) templateResponse {
	if t == nil {
		return templateResponse{}
	}
	return templateResponse{
		ID:           t.ID,
		Type:         t.Type.String(),
		Locale:       t.Locale,
		EmailSubject: t.EmailSubject,
		EmailBody:    t.EmailBody,
		PushTitle:    t.PushTitle,
		PushMessage:  t.PushMessage,
		InAppTitle:   t.InAppTitle,
		InAppMessage: t.InAppMessage,
		IsActive:     t.IsActive,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}
