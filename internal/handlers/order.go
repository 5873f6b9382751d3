package handlers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/depix-gateway/internal/models"
	"github.com/example/depix-gateway/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	db *gorm.DB
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB) *OrderHandler {
	return &OrderHandler{db: db}
}

type orderItemRequest struct {
	ProductVariantID string  `json:"product_variant_id"`
	ProductName      string  `json:"product_name"`
	Quantity         int     `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	LineTotal        float64 `json:"line_total"`
}

type createOrderRequest struct {
	OrderNumber string             `json:"order_number"`
	Currency    string             `json:"currency"`
	TotalAmount float64            `json:"total_amount"`
	Notes       string             `json:"notes"`
	Items       []orderItemRequest `json:"items"`
}

// CreateOrder registers a new order awaiting payment.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.TotalAmount <= 0 {
		return fiber.NewError(fiber.StatusBadRequest, "invalid total_amount")
	}

	order := models.Order{
		OrderNumber:   strings.TrimSpace(req.OrderNumber),
		Status:        "pending",
		PlacedAt:      time.Now(),
		TotalAmount:   req.TotalAmount,
		Currency:      req.Currency,
		PaymentMethod: "depix",
		Notes:         req.Notes,
	}

	if order.Currency == "" {
		order.Currency = "BRL"
	}
	if order.OrderNumber == "" {
		order.OrderNumber = fmt.Sprintf("%d", time.Now().UnixMilli())
	}

	var subtotal float64
	for _, item := range req.Items {
		lineTotal := item.LineTotal
		if lineTotal == 0 {
			lineTotal = item.UnitPrice * float64(item.Quantity)
		}
		subtotal += lineTotal

		orderItem := models.OrderItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   lineTotal,
		}
		if item.ProductVariantID != "" {
			if id, err := uuid.Parse(item.ProductVariantID); err == nil {
				orderItem.ProductVariantID = &id
			}
		}
		order.Items = append(order.Items, orderItem)
	}

	if err := h.db.Create(&order).Error; err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(order)
}

// ListOrders returns orders, optionally filtered by status.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.
		Preload("Items").
		Order("placed_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder fetches a single order with its items and audit notes.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var order models.Order
	if err := h.db.Preload("Items").First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "order not found")
		}
		return err
	}

	var notes []models.OrderNote
	if err := h.db.Where("order_id = ?", order.ID).Order("created_at asc").Find(&notes).Error; err != nil {
		return err
	}

	var payment models.PixPayment
	var paymentPtr *models.PixPayment
	if err := h.db.Where("order_id = ?", order.ID).First(&payment).Error; err == nil {
		paymentPtr = &payment
	}

	return c.JSON(fiber.Map{
		"order":   order,
		"notes":   notes,
		"payment": paymentPtr,
	})
}
