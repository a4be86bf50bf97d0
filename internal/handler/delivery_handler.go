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

type DeliveryService interface {
	GetByID(ctx context.Context, id string) (*domain.Delivery, error)
	List(ctx context.Context, params repository.DeliveryListParams) ([]domain.Delivery, int64, error)
	Attempts(ctx context.Context, deliveryID string) ([]domain.DeliveryAttempt, error)
	Retry(ctx context.Context, id string) error
	RetryFailed(ctx context.Context, params repository.DeliveryListParams) (int, error)
	CancelPending(ctx context.Context, scheduleID *string) (int64, error)
	ConfirmDelivered(ctx context.Context, id string) error
}

type DeliveryHandler struct {
	service DeliveryService
}

func NewDeliveryHandler(service DeliveryService) (*DeliveryHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("delivery service is required")
	}
	return &DeliveryHandler{service: service}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, service DeliveryService) error {
	h, err := NewDeliveryHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Get("/deliveries/:id/attempts", h.GetDeliveryAttempts)
	v1.Post("/deliveries/:id/retry", h.RetryDelivery)
	v1.Post("/deliveries/:id/delivered", h.ConfirmDelivered)
	v1.Post("/deliveries/bulk-retry", h.BulkRetry)
	v1.Post("/deliveries/bulk-cancel", h.BulkCancel)

	return nil
}

type deliveryResponse struct {
	ID               string     `json:"id"`
	ScheduleID       string     `json:"scheduleId"`
	FireID           string     `json:"fireId"`
	UserID           string     `json:"userId"`
	Channel          string     `json:"channel"`
	NotificationType string     `json:"notificationType"`
	Subject          string     `json:"subject,omitempty"`
	Content          string     `json:"content"`
	Status           string     `json:"status"`
	RetryCount       int        `json:"retryCount"`
	MaxRetries       int        `json:"maxRetries"`
	NextRetryAt      *time.Time `json:"nextRetryAt,omitempty"`
	FailureReason    *string    `json:"failureReason,omitempty"`
	SendAt           *time.Time `json:"sendAt,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	ExternalID       *string    `json:"externalId,omitempty"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta listMeta           `json:"meta"`
}

type attemptResponse struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	StatusCode    *int      `json:"statusCode,omitempty"`
	ResponseBody  *string   `json:"responseBody,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type bulkRetryRequest struct {
	ScheduleID    *string `json:"scheduleId,omitempty"`
	Channel       *string `json:"channel,omitempty"`
	Type          *string `json:"type,omitempty"`
	FailureReason *string `json:"failureReason,omitempty"`
	From          *string `json:"from,omitempty"`
	To            *string `json:"to,omitempty"`
}

type bulkCancelRequest struct {
	ScheduleID *string `json:"scheduleId,omitempty"`
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	delivery, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(delivery))
}

func (h *DeliveryHandler) GetDeliveryAttempts(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	attempts, err := h.service.Attempts(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, attemptResponse{
			ID:            a.ID,
			AttemptNumber: a.AttemptNumber,
			StatusCode:    a.StatusCode,
			ResponseBody:  a.ResponseBody,
			Error:         a.Error,
			CreatedAt:     a.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": id,
		"attempts":   data,
	})
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	params, err := parseDeliveryListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	deliveries, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]deliveryResponse, 0, len(deliveries))
	for i := range deliveries {
		data = append(data, toDeliveryResponse(&deliveries[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{
		Data: data,
		Meta: listMeta{Page: params.Page, PageSize: params.PageSize, Total: total},
	})
}

func (h *DeliveryHandler) RetryDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Retry(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"deliveryId": id,
		"status":     domain.DeliveryPending.String(),
	})
}

func (h *DeliveryHandler) ConfirmDelivered(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.ConfirmDelivered(c.Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": id,
		"status":     domain.DeliveryDelivered.String(),
	})
}

func (h *DeliveryHandler) BulkRetry(c *fiber.Ctx) error {
	var req bulkRetryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	params := repository.DeliveryListParams{
		ScheduleID:    req.ScheduleID,
		FailureReason: req.FailureReason,
	}
	if req.Channel != nil {
		channel, err := domain.ParseChannelFromString(*req.Channel)
		if err != nil {
			return toHTTPError(err)
		}
		params.Channel = &channel
	}
	if req.Type != nil {
		notificationType, err := domain.ParseNotificationTypeFromString(*req.Type)
		if err != nil {
			return toHTTPError(err)
		}
		params.Type = &notificationType
	}
	if req.From != nil {
		from, err := parseRFC3339Query(*req.From, "from")
		if err != nil {
			return toHTTPError(err)
		}
		params.From = from
	}
	if req.To != nil {
		to, err := parseRFC3339Query(*req.To, "to")
		if err != nil {
			return toHTTPError(err)
		}
		params.To = to
	}

	retried, err := h.service.RetryFailed(c.Context(), params)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"retried": retried,
	})
}

func (h *DeliveryHandler) BulkCancel(c *fiber.Ctx) error {
	var req bulkCancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	cancelled, err := h.service.CancelPending(c.Context(), req.ScheduleID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"cancelled": cancelled,
	})
}

func parseDeliveryListParams(c *fiber.Ctx) (repository.DeliveryListParams, error) {
	page, pageSize, err := parsePagination(c)
	if err != nil {
		return repository.DeliveryListParams{}, err
	}
	params := repository.DeliveryListParams{
		Page:     page,
		PageSize: pageSize,
		SortBy:   strings.TrimSpace(c.Query("sortBy")),
		SortDesc: c.Query("sortOrder") == "desc",
	}

	if scheduleID := strings.TrimSpace(c.Query("scheduleId")); scheduleID != "" {
		params.ScheduleID = &scheduleID
	}
	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseDeliveryStatusFromString(rawStatus)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Status = &status
	}
	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Channel = &channel
	}
	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return repository.DeliveryListParams{}, err
		}
		params.Type = &notificationType
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.DeliveryListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.DeliveryListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}
	return deliveryResponse{
		ID:               d.ID,
		ScheduleID:       d.ScheduleID,
		FireID:           d.FireID,
		UserID:           d.UserID,
		Channel:          d.Channel.String(),
		NotificationType: d.NotificationType.String(),
		Subject:          d.Subject,
		Content:          d.Content,
		Status:           d.Status.String(),
		RetryCount:       d.RetryCount,
		MaxRetries:       d.MaxRetries,
		NextRetryAt:      d.NextRetryAt,
		FailureReason:    d.FailureReason,
		SendAt:           d.SendAt,
		ExpiresAt:        d.ExpiresAt,
		ExternalID:       d.ExternalID,
		SentAt:           d.SentAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
