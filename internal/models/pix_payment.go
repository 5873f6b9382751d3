package models

import (
	"github.com/google/uuid"
)

// PixPayment stores the provider-assigned Pix payment data for an order.
// Created exactly once per successful initiation, never deleted.
type PixPayment struct {
	BaseModel
	OrderID     uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	OrderNumber string    `gorm:"index" json:"order_number"`
	DepixID     string    `gorm:"column:depix_id;index" json:"depix_id"`
	QRCopyPaste string    `gorm:"column:qr_copy_paste" json:"qr_copy_paste"`
	Provider    string    `json:"provider"`
	RawResponse []byte    `gorm:"type:jsonb" json:"-"`
}
