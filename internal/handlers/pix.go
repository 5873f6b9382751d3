package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/depix-gateway/internal/models"
	"github.com/example/depix-gateway/internal/services"
	"github.com/example/depix-gateway/internal/utils"
)

// PixHandler manages Depix payment endpoints.
type PixHandler struct {
	db    *gorm.DB
	depix *services.DepixService
	state *services.PaymentStateService
}

func NewPixHandler(db *gorm.DB, depix *services.DepixService, state *services.PaymentStateService) *PixHandler {
	return &PixHandler{db: db, depix: depix, state: state}
}

type checkoutRequest struct {
	OrderID string `json:"order_id"`
}

// Checkout initiates a Pix payment for a pending order and returns the
// QR code payload for the shopper-facing widget.
func (h *PixHandler) Checkout(c *fiber.Ctx) error {
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "order_id is required")
	}

	order, err := h.findOrder(req.OrderID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	if order.Status != services.OrderStatusPending {
		return fiber.NewError(fiber.StatusConflict, fmt.Sprintf("order is %s", order.Status))
	}

	result, err := h.depix.InitiatePayment(c.Context(), order, c.IP())
	if err != nil {
		// Full detail goes to the log inside the client; the shopper
		// only ever sees a generic notice.
		log.Printf("[Depix] Checkout failed for order %s: %v", order.OrderNumber, err)
		if kind, ok := services.PaymentErrorKindOf(err); ok && kind == services.ErrKindConfiguration {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"success": false,
				"message": "Pix payments are not available right now.",
			})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Error generating Pix payment. Please try again.",
		})
	}

	if err := h.state.RecordInitiated(c.Context(), order.ID, result); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"order_id":      order.ID,
		"order_number":  order.OrderNumber,
		"status":        services.OrderStatusOnHold,
		"depix_id":      result.DepixID,
		"qr_copy_paste": result.QRCopyPaste,
		"qr_image_url":  "https://quickchart.io/qr?text=" + url.QueryEscape(result.QRCopyPaste) + "&size=300",
	})
}

// flexID accepts a JSON string or number order identifier.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch vv := v.(type) {
	case string:
		*f = flexID(vv)
	case float64:
		*f = flexID(strconv.FormatInt(int64(vv), 10))
	case nil:
		*f = ""
	default:
		return fmt.Errorf("unexpected order_id type %T", v)
	}
	return nil
}

type webhookRequest struct {
	TransactionID *flexID `json:"transaction_id"`
	OrderID       *flexID `json:"order_id"`
	Status        *string `json:"status"`
}

var plainTextPattern = regexp.MustCompile(`<[^>]*>|[[:cntrl:]]`)

func sanitizeText(s string) string {
	return strings.TrimSpace(plainTextPattern.ReplaceAllString(s, ""))
}

// UpdateStatusOrder handles the provider webhook announcing a
// settlement status. Delivery is at-least-once; repeats of a terminal
// status are accepted idempotently.
func (h *PixHandler) UpdateStatusOrder(c *fiber.Ctx) error {
	var req webhookRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Printf("[Depix] Invalid webhook body: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid webhook data",
		})
	}

	if req.TransactionID == nil || req.OrderID == nil || req.Status == nil {
		log.Printf("[Depix] Webhook missing fields: %s", string(c.Body()))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid webhook data",
		})
	}

	status := sanitizeText(*req.Status)
	transactionID := sanitizeText(string(*req.TransactionID))

	updated, err := h.state.ApplyStatus(c.Context(), string(*req.OrderID), status, transactionID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "Order not found",
			})
		}
		if errors.Is(err, services.ErrUnknownStatus) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"status":  "error",
				"message": "Unknown status: " + status,
			})
		}
		return err
	}

	return c.JSON(fiber.Map{
		"status":         "success",
		"message":        "Order status updated",
		"updated_status": updated,
	})
}

// CheckPayment proxies a shopper-initiated status poll to the provider
// and returns the raw provider body. Purely advisory: no order mutation.
func (h *PixHandler) CheckPayment(c *fiber.Ctx) error {
	depixID := c.Query("depixId")
	orderID := c.Query("orderId")

	body, err := h.depix.CheckPayment(c.Context(), depixID, orderID)
	if err != nil {
		log.Printf("[Depix] Payment check failed for %s: %v", depixID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Request failed",
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// ListPayments returns Pix payment records, optionally filtered.
func (h *PixHandler) ListPayments(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PixPayment{})

	if orderNumber := strings.TrimSpace(c.Query("order_number")); orderNumber != "" {
		query = query.Where("order_number = ?", orderNumber)
	}
	if depixID := strings.TrimSpace(c.Query("depix_id")); depixID != "" {
		query = query.Where("depix_id = ?", depixID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var payments []models.PixPayment
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&payments).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    payments,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

func (h *PixHandler) findOrder(ref string) (*models.Order, error) {
	var order models.Order

	if parsed, err := uuid.Parse(ref); err == nil {
		if err := h.db.Preload("Items").Where("id = ?", parsed).First(&order).Error; err == nil {
			return &order, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := h.db.Preload("Items").Where("order_number = ?", ref).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrOrderNotFound
		}
		return nil, err
	}

	return &order, nil
}
