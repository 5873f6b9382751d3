package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/depix-gateway/internal/middleware"
	"github.com/example/depix-gateway/internal/models"
	"github.com/example/depix-gateway/internal/services"
)

const testWebhookSecret = "test-webhook-secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handlers-%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.ProductVariant{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderNote{},
		&models.PixPayment{},
	))

	return db
}

func newTestApp(t *testing.T, db *gorm.DB, providerURL string) *fiber.App {
	t.Helper()

	depixService := services.NewDepixService(func() services.DepixConfig {
		return services.DepixConfig{
			StoreCode:     "ABC123",
			Production:    false,
			SiteBaseURL:   "https://shop.example.com",
			SandboxURL:    providerURL,
			ProductionURL: "https://live.invalid",
		}
	})
	stateService := services.NewPaymentStateService(db, nil)
	handler := NewPixHandler(db, depixService, stateService)

	app := fiber.New()
	pix := app.Group("/api/pix")
	pix.Post("/checkout", handler.Checkout)
	pix.Post("/update-status-order", middleware.WebhookAuthMiddleware(testWebhookSecret), handler.UpdateStatusOrder)
	pix.Get("/check-payment", handler.CheckPayment)

	return app
}

func seedOrder(t *testing.T, db *gorm.DB, status string) *models.Order {
	t.Helper()

	variant := models.ProductVariant{SKU: "SKU-" + uuid.NewString(), Name: "Widget", StockQuantity: 10}
	require.NoError(t, db.Create(&variant).Error)

	order := models.Order{
		OrderNumber: "42",
		Status:      status,
		PlacedAt:    time.Now(),
		TotalAmount: 25.00,
		Currency:    "BRL",
		Items: []models.OrderItem{
			{
				ProductVariantID: &variant.ID,
				ProductName:      "Widget",
				Quantity:         2,
				UnitPrice:        12.50,
				LineTotal:        25.00,
			},
		},
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func postWebhook(t *testing.T, app *fiber.App, secret string, payload string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/pix/update-status-order", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-API-KEY", secret)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCheckoutEndToEnd(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/api/integrated-payment", r.URL.Path)
		assert.Equal(t, "25.00", r.PostForm.Get("value"))
		assert.Equal(t, "ABC123", r.PostForm.Get("code"))
		_, _ = w.Write([]byte(`{"pix":{"data":{"response":{"id":"pay_1","qrCopyPaste":"00020101..."}}}}`))
	}))
	defer provider.Close()

	db := newTestDB(t)
	app := newTestApp(t, db, provider.URL)
	order := seedOrder(t, db, services.OrderStatusPending)

	req := httptest.NewRequest(http.MethodPost, "/api/pix/checkout",
		bytes.NewReader([]byte(`{"order_id":"42"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "on-hold", body["status"])
	assert.Equal(t, "pay_1", body["depix_id"])
	assert.Equal(t, "00020101...", body["qr_copy_paste"])
	assert.Contains(t, body["qr_image_url"], "quickchart.io/qr")

	var payment models.PixPayment
	require.NoError(t, db.First(&payment, "order_id = ?", order.ID).Error)
	assert.Equal(t, "pay_1", payment.DepixID)
	assert.Equal(t, "00020101...", payment.QRCopyPaste)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusOnHold, stored.Status)
}

func TestCheckoutProviderFailureLeavesOrderPending(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"store code rejected"}`))
	}))
	defer provider.Close()

	db := newTestDB(t)
	app := newTestApp(t, db, provider.URL)
	order := seedOrder(t, db, services.OrderStatusPending)

	req := httptest.NewRequest(http.MethodPost, "/api/pix/checkout",
		bytes.NewReader([]byte(`{"order_id":"42"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, false, body["success"])
	assert.NotContains(t, body["message"], "store code rejected", "provider detail must not reach the shopper")

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusPending, stored.Status)

	var payments int64
	require.NoError(t, db.Model(&models.PixPayment{}).Count(&payments).Error)
	assert.EqualValues(t, 0, payments, "failed initiation must not create a record")
}

func TestCheckoutUnknownOrder(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")

	req := httptest.NewRequest(http.MethodPost, "/api/pix/checkout",
		bytes.NewReader([]byte(`{"order_id":"9999"}`)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	order := seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, "wrong-secret",
		`{"transaction_id":"pay_1","order_id":"42","status":"paid"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "error", body["status"])

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusOnHold, stored.Status, "no state change before auth")
}

func TestWebhookRejectsMissingSecret(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, "",
		`{"transaction_id":"pay_1","order_id":"42","status":"paid"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebhookMissingStatusField(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	order := seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, testWebhookSecret,
		`{"transaction_id":"pay_1","order_id":"42"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "Invalid webhook data", body["message"])

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusOnHold, stored.Status)
}

func TestWebhookUnknownOrder(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")

	resp := postWebhook(t, app, testWebhookSecret,
		`{"transaction_id":"pay_1","order_id":"9999","status":"paid"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Order not found", body["message"])
}

func TestWebhookUnknownStatus(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	order := seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, testWebhookSecret,
		`{"transaction_id":"pay_1","order_id":"42","status":"chargeback"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["message"], "Unknown status")

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusOnHold, stored.Status)
}

func TestWebhookMarksOrderPaid(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	order := seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, testWebhookSecret,
		`{"transaction_id":"pay_1","order_id":42,"status":"paid"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "paid", body["updated_status"])

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusPaid, stored.Status)
}

func TestWebhookRepeatDeliveryIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	seedOrder(t, db, services.OrderStatusOnHold)

	payload := `{"transaction_id":"pay_1","order_id":"42","status":"paid"}`
	resp := postWebhook(t, app, testWebhookSecret, payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postWebhook(t, app, testWebhookSecret, payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "paid", body["updated_status"])
}

func TestWebhookSanitizesStatus(t *testing.T) {
	db := newTestDB(t)
	app := newTestApp(t, db, "http://localhost:0")
	order := seedOrder(t, db, services.OrderStatusOnHold)

	resp := postWebhook(t, app, testWebhookSecret,
		`{"transaction_id":"pay_1","order_id":"42","status":"<b>paid</b>"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stored models.Order
	require.NoError(t, db.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, services.OrderStatusPaid, stored.Status)
}

func TestCheckPaymentProxiesProvider(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dep_1", r.URL.Query().Get("depixId"))
		assert.Equal(t, "42", r.URL.Query().Get("orderId"))
		_, _ = w.Write([]byte(`{"success":true,"response":[{"status":"paid"}]}`))
	}))
	defer provider.Close()

	db := newTestDB(t)
	app := newTestApp(t, db, provider.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/pix/check-payment?depixId=dep_1&orderId=42", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"response":[{"status":"paid"}]}`, string(raw))
}

func TestCheckPaymentTransportError(t *testing.T) {
	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	provider.Close()

	db := newTestDB(t)
	app := newTestApp(t, db, provider.URL)

	req := httptest.NewRequest(http.MethodGet, "/api/pix/check-payment?depixId=dep_1&orderId=42", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
