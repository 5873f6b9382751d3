package models

import (
	"time"

	"github.com/google/uuid"
)

type Order struct {
	BaseModel
	OrderNumber   string      `gorm:"uniqueIndex" json:"order_number"`
	Status        string      `json:"status"`
	PlacedAt      time.Time   `json:"placed_at"`
	TotalAmount   float64     `json:"total_amount"`
	Currency      string      `json:"currency"`
	PaymentMethod string      `json:"payment_method"`
	TransactionID string      `json:"transaction_id"`
	Notes         string      `json:"notes"`
	Items         []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID          uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductVariantID *uuid.UUID `gorm:"type:uuid" json:"product_variant_id"`
	ProductName      string     `json:"product_name"`
	Quantity         int        `json:"quantity"`
	UnitPrice        float64    `json:"unit_price"`
	LineTotal        float64    `json:"line_total"`
}

// OrderNote is an append-only audit note attached to an order.
type OrderNote struct {
	BaseModel
	OrderID uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	Note    string    `json:"note"`
}
