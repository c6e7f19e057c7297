package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
	"github.com/rami-aouinti/shopware-sub000/internal/service"
)

type ExportService interface {
	ExportOrder(ctx context.Context, orderID string, isRetry bool) (*domain.ExportRecord, error)
	GetLatestExportStatus(ctx context.Context, orderID string) (domain.ExportStatusView, error)
	ProcessRetries(ctx context.Context) (service.RetryRunSummary, error)
	ServeSignedDocument(ctx context.Context, token string) ([]byte, error)
}

type StatusService interface {
	UpdateOrderStatus(ctx context.Context, req service.StatusChangeRequest) (*domain.Order, error)
}

type ExternalOrderReader interface {
	GetExternalOrder(ctx context.Context, externalID string) (*domain.ExternalOrder, error)
}

// statusSourceAPI marks status changes that came in over HTTP.
const statusSourceAPI = "api"

type OrderHandler struct {
	exports  ExportService
	statuses StatusService
	external ExternalOrderReader
	validate *validator.Validate
}

func NewOrderHandler(exports ExportService, statuses StatusService, external ExternalOrderReader) (*OrderHandler, error) {
	if exports == nil {
		return nil, fmt.Errorf("export service is required")
	}
	if statuses == nil {
		return nil, fmt.Errorf("status service is required")
	}
	if external == nil {
		return nil, fmt.Errorf("external order reader is required")
	}
	return &OrderHandler{
		exports:  exports,
		statuses: statuses,
		external: external,
		validate: validator.New(),
	}, nil
}

func RegisterOrderRoutes(router fiber.Router, exports ExportService, statuses StatusService, external ExternalOrderReader) error {
	h, err := NewOrderHandler(exports, statuses, external)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/orders/:id/export", h.ExportOrder)
	v1.Get("/orders/:id/export-status", h.GetExportStatus)
	v1.Put("/orders/:id/status", h.UpdateStatus)
	v1.Post("/exports/retries", h.ProcessRetries)
	v1.Get("/exports/documents/:token", h.GetSignedDocument)
	v1.Get("/external-orders/:externalId", h.GetExternalOrder)

	return nil
}

type updateStatusRequest struct {
	Status               int       `json:"status" validate:"required,oneof=8 9"`
	ExpectedLastModified time.Time `json:"expectedLastModified" validate:"required"`
	Actor                string    `json:"actor" validate:"required,max=255"`
	Reason               string    `json:"reason" validate:"max=1024"`
}

type exportStatusResponse struct {
	ExportID        string     `json:"exportId"`
	OrderID         string     `json:"orderId"`
	Status          string     `json:"status"`
	Strategy        string     `json:"strategy"`
	Attempts        int        `json:"attempts"`
	ResponseCode    *int       `json:"responseCode,omitempty"`
	ResponseMessage *string    `json:"responseMessage,omitempty"`
	LastError       *string    `json:"lastError,omitempty"`
	NextRetryAt     *time.Time `json:"nextRetryAt,omitempty"`
	CorrelationID   string     `json:"correlationId"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type orderStatusResponse struct {
	OrderID         string    `json:"orderId"`
	Status          int       `json:"status"`
	StatusName      string    `json:"statusName"`
	StatusChangedBy string    `json:"statusChangedBy,omitempty"`
	LastModified    time.Time `json:"lastModified"`
}

type conflictResponse struct {
	Error               string     `json:"error"`
	Exists              bool       `json:"exists"`
	CurrentLastModified *time.Time `json:"currentLastModified"`
}

type retryRunResponse struct {
	Due     int `json:"due"`
	Claimed int `json:"claimed"`
	Skipped int `json:"skipped"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type externalOrderResponse struct {
	ExternalID    string                       `json:"externalId"`
	OrderNumber   string                       `json:"orderNumber,omitempty"`
	CustomerName  string                       `json:"customerName,omitempty"`
	CustomerEmail string                       `json:"customerEmail,omitempty"`
	Total         float64                      `json:"total"`
	Payload       domain.CanonicalOrderPayload `json:"payload"`
	ImportedAt    time.Time                    `json:"importedAt"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
}

// ExportOrder triggers an immediate export. A failed delivery still answers with the persisted record.
func (h *OrderHandler) ExportOrder(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.exports.ExportOrder(c.UserContext(), id, false)
	if err != nil {
		if errors.Is(err, service.ErrDeliveryFailed) && record != nil {
			return c.Status(fiber.StatusBadGateway).JSON(toExportStatusResponse(record.View()))
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toExportStatusResponse(record.View()))
}

func (h *OrderHandler) GetExportStatus(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	view, err := h.exports.GetLatestExportStatus(c.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toExportStatusResponse(view))
}

func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req updateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return toHTTPError(validationError(err))
	}

	order, err := h.statuses.UpdateOrderStatus(c.UserContext(), service.StatusChangeRequest{
		OrderID:              strings.TrimSpace(c.Params("id")),
		Status:               domain.OrderStatus(req.Status),
		ExpectedLastModified: req.ExpectedLastModified,
		Actor:                strings.TrimSpace(req.Actor),
		Reason:               strings.TrimSpace(req.Reason),
		Source:               statusSourceAPI,
	})

	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		return c.Status(fiber.StatusConflict).JSON(conflictResponse{
			Error:               conflict.Error(),
			Exists:              conflict.Exists,
			CurrentLastModified: conflict.CurrentUpdatedAt,
		})
	}
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(orderStatusResponse{
		OrderID:         order.ID,
		Status:          int(order.Status),
		StatusName:      order.Status.String(),
		StatusChangedBy: order.StatusChangedBy,
		LastModified:    order.UpdatedAt,
	})
}

func (h *OrderHandler) ProcessRetries(c *fiber.Ctx) error {
	summary, err := h.exports.ProcessRetries(c.UserContext())
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(retryRunResponse{
		Due:     summary.Due,
		Claimed: summary.Claimed,
		Skipped: summary.Skipped,
		Sent:    summary.Sent,
		Failed:  summary.Failed,
	})
}

// GetSignedDocument is called by the mainframe in pull mode. Every rejection looks the same.
func (h *OrderHandler) GetSignedDocument(c *fiber.Ctx) error {
	document, err := h.exports.ServeSignedDocument(c.UserContext(), c.Params("token"))
	if errors.Is(err, domain.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "document not found")
	}
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationXMLCharsetUTF8)
	return c.Status(fiber.StatusOK).Send(document)
}

func (h *OrderHandler) GetExternalOrder(c *fiber.Ctx) error {
	order, err := h.external.GetExternalOrder(c.UserContext(), c.Params("externalId"))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(externalOrderResponse{
		ExternalID:    order.ExternalID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Total:         order.Total,
		Payload:       order.Payload,
		ImportedAt:    order.ImportedAt,
		UpdatedAt:     order.UpdatedAt,
	})
}

func toExportStatusResponse(view domain.ExportStatusView) exportStatusResponse {
	return exportStatusResponse{
		ExportID:        view.ExportID,
		OrderID:         view.OrderID,
		Status:          view.Status.String(),
		Strategy:        view.Strategy.String(),
		Attempts:        view.Attempts,
		ResponseCode:    view.ResponseCode,
		ResponseMessage: view.ResponseMessage,
		LastError:       view.LastError,
		NextRetryAt:     view.NextRetryAt,
		CorrelationID:   view.CorrelationID,
		CreatedAt:       view.CreatedAt,
		UpdatedAt:       view.UpdatedAt,
	}
}
