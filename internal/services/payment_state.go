package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/depix-gateway/internal/models"
)

// Order payment statuses.
const (
	OrderStatusPending = "pending"
	OrderStatusOnHold  = "on-hold"
	OrderStatusPaid    = "paid"
	OrderStatusFailed  = "failed"
)

// PaymentStateService maps orders to their Pix payment records and
// applies the allowed status transitions.
type PaymentStateService struct {
	db       *gorm.DB
	telegram *TelegramService
}

func NewPaymentStateService(db *gorm.DB, telegram *TelegramService) *PaymentStateService {
	return &PaymentStateService{db: db, telegram: telegram}
}

func isTerminalStatus(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusFailed
}

// forUpdate adds a row lock where the dialect supports it. SQLite has
// no FOR UPDATE; its writers are serialized anyway.
func forUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// RecordInitiated moves a pending order to on-hold, reserves stock for
// its line items and writes the PixPayment record. Calling it again for
// an order that already left pending is a no-op: stock is decremented
// at most once and the record is never overwritten.
func (s *PaymentStateService) RecordInitiated(ctx context.Context, orderID uuid.UUID, result *PaymentResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		if err := forUpdate(tx).
			Preload("Items").
			Where("id = ?", orderID).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		if order.Status != OrderStatusPending {
			log.Printf("[Depix] Order %s already %s, skipping initiation record", order.OrderNumber, order.Status)
			return nil
		}

		payment := models.PixPayment{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			DepixID:     result.DepixID,
			QRCopyPaste: result.QRCopyPaste,
			Provider:    "depix",
			RawResponse: result.Raw,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		for _, item := range order.Items {
			if item.ProductVariantID == nil || item.Quantity <= 0 {
				continue
			}
			if err := tx.Model(&models.ProductVariant{}).
				Where("id = ?", *item.ProductVariantID).
				UpdateColumn("stock_quantity", gorm.Expr("stock_quantity - ?", item.Quantity)).Error; err != nil {
				return err
			}
		}

		note := models.OrderNote{
			OrderID: order.ID,
			Note:    fmt.Sprintf("Awaiting Pix payment via Depix. Transaction ID: %s", result.DepixID),
		}
		if err := tx.Create(&note).Error; err != nil {
			return err
		}

		return tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"status":         OrderStatusOnHold,
				"transaction_id": result.DepixID,
			}).Error
	})
}

// ApplyStatus applies a provider-reported settlement status to the
// order referenced by orderRef (uuid or order number) and returns the
// resulting order status. Terminal states are sticky: the first
// terminal status wins and later conflicting reports are logged and
// ignored rather than applied.
func (s *PaymentStateService) ApplyStatus(ctx context.Context, orderRef, status, transactionID string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(status))

	var updated string
	var notifyOrder *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.findOrderByRef(tx, orderRef)
		if err != nil {
			return err
		}

		var target string
		switch normalized {
		case "paid", "completed":
			target = OrderStatusPaid
		case "failed":
			target = OrderStatusFailed
		default:
			return ErrUnknownStatus
		}

		if order.Status == target {
			updated = order.Status
			return nil
		}

		if isTerminalStatus(order.Status) {
			log.Printf("[Depix] Ignoring status %q for order %s already %s", normalized, order.OrderNumber, order.Status)
			updated = order.Status
			return nil
		}

		var note string
		if target == OrderStatusPaid {
			note = fmt.Sprintf("Payment received via Depix. Transaction ID: %s", transactionID)
		} else {
			note = "Payment failed via Depix."
		}

		if err := tx.Create(&models.OrderNote{OrderID: order.ID, Note: note}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.Order{}).
			Where("id = ?", order.ID).
			Update("status", target).Error; err != nil {
			return err
		}

		updated = target
		notifyOrder = order
		return nil
	})
	if err != nil {
		return "", err
	}
	if notifyOrder != nil {
		s.notifyStatus(notifyOrder, updated, transactionID)
	}
	return updated, nil
}

func (s *PaymentStateService) findOrderByRef(tx *gorm.DB, orderRef string) (*models.Order, error) {
	var order models.Order
	db := forUpdate(tx)

	if parsed, err := uuid.Parse(orderRef); err == nil {
		if err := db.Where("id = ?", parsed).First(&order).Error; err == nil {
			return &order, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := db.Where("order_number = ?", orderRef).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	return &order, nil
}

func (s *PaymentStateService) notifyStatus(order *models.Order, status, transactionID string) {
	if s.telegram == nil {
		return
	}
	go func() {
		var err error
		if status == OrderStatusPaid {
			err = s.telegram.NotifyPaymentSuccess(PaymentNotification{
				OrderNumber:   order.OrderNumber,
				TransactionID: transactionID,
				Amount:        order.TotalAmount,
				Currency:      order.Currency,
			})
		} else {
			err = s.telegram.NotifyPaymentFailed(PaymentNotification{
				OrderNumber:   order.OrderNumber,
				TransactionID: transactionID,
				Amount:        order.TotalAmount,
				Currency:      order.Currency,
			})
		}
		if err != nil {
			log.Printf("[Depix] Telegram notification failed for order %s: %v", order.OrderNumber, err)
		}
	}()
}
