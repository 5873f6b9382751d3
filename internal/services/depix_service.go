package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/depix-gateway/internal/models"
)

const (
	depixInitiatePath = "/api/integrated-payment"
	depixStatusPath   = "/check-bank-slip-paid-by-id"

	depixInitiateTimeout = 30 * time.Second
	depixStatusTimeout   = 90 * time.Second
)

// DepixConfig holds the provider settings resolved for a single call.
type DepixConfig struct {
	StoreCode     string
	Production    bool
	SiteBaseURL   string
	SandboxURL    string
	ProductionURL string
}

// BaseURL selects between the two fixed provider endpoints.
func (c DepixConfig) BaseURL() string {
	if c.Production {
		return strings.TrimRight(c.ProductionURL, "/")
	}
	return strings.TrimRight(c.SandboxURL, "/")
}

// CallbackURL is the webhook address handed to the provider.
func (c DepixConfig) CallbackURL() string {
	return strings.TrimRight(c.SiteBaseURL, "/") + "/api/pix/update-status-order"
}

// PaymentResult is the normalized outcome of a successful initiation.
type PaymentResult struct {
	DepixID     string
	QRCopyPaste string
	Raw         []byte
}

// DepixService issues payment initiation and status calls against the
// Depix provider. Config is resolved through the provider func on every
// call so the production toggle takes effect without a restart.
type DepixService struct {
	cfg            func() DepixConfig
	initiateClient *http.Client
	statusClient   *http.Client
}

func NewDepixService(cfg func() DepixConfig) *DepixService {
	return &DepixService{
		cfg:            cfg,
		initiateClient: &http.Client{Timeout: depixInitiateTimeout},
		statusClient:   &http.Client{Timeout: depixStatusTimeout},
	}
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch vv := v.(type) {
	case string:
		*f = flexString(vv)
	case float64:
		*f = flexString(strconv.FormatInt(int64(vv), 10))
	case nil:
		*f = ""
	default:
		return fmt.Errorf("unexpected id type %T", v)
	}
	return nil
}

type depixInitiateResponse struct {
	Error string `json:"error"`
	Pix   struct {
		Data struct {
			Response struct {
				ID          flexString `json:"id"`
				QRCopyPaste string     `json:"qrCopyPaste"`
			} `json:"response"`
		} `json:"data"`
	} `json:"pix"`
}

// InitiatePayment requests a Pix QR code for the order. Single
// best-effort attempt; retrying is the caller's decision.
func (s *DepixService) InitiatePayment(ctx context.Context, order *models.Order, clientIP string) (*PaymentResult, error) {
	cfg := s.cfg()

	if strings.TrimSpace(cfg.StoreCode) == "" {
		return nil, newPaymentError(ErrKindConfiguration, "store code not configured", nil)
	}

	endpoint := cfg.BaseURL() + depixInitiatePath

	form := url.Values{}
	form.Set("description", fmt.Sprintf("Pagamento para o pedido #%s", order.OrderNumber))
	form.Set("code", cfg.StoreCode)
	form.Set("value", FormatAmount(order.TotalAmount))
	form.Set("order_id", order.OrderNumber)
	form.Set("url_response_payment", cfg.CallbackURL())
	form.Set("transaction_id", order.TransactionID)
	form.Set("origin", cfg.SiteBaseURL)
	form.Set("ip_origin", clientIP)

	log.Printf("[Depix] Initiating payment for order %s at %s", order.OrderNumber, endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newPaymentError(ErrKindTransport, "build initiation request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.initiateClient.Do(req)
	if err != nil {
		log.Printf("[Depix] Initiation request failed for order %s: %v", order.OrderNumber, err)
		return nil, newPaymentError(ErrKindTransport, "initiation request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newPaymentError(ErrKindTransport, "read initiation response", err)
	}

	var parsed depixInitiateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		log.Printf("[Depix] Invalid initiation response for order %s: %s", order.OrderNumber, string(body))
		return nil, newPaymentError(ErrKindInvalidResponse, "invalid provider response", err)
	}

	if parsed.Error != "" {
		log.Printf("[Depix] Provider rejected order %s: %s", order.OrderNumber, parsed.Error)
		return nil, newPaymentError(ErrKindProvider, parsed.Error, nil)
	}

	depixID := strings.TrimSpace(string(parsed.Pix.Data.Response.ID))
	qrCopyPaste := parsed.Pix.Data.Response.QRCopyPaste
	if depixID == "" || qrCopyPaste == "" {
		log.Printf("[Depix] Incomplete initiation response for order %s: %s", order.OrderNumber, string(body))
		return nil, newPaymentError(ErrKindIncompleteResponse, "provider response missing qr code data", nil)
	}

	log.Printf("[Depix] Payment %s created for order %s", depixID, order.OrderNumber)

	return &PaymentResult{
		DepixID:     depixID,
		QRCopyPaste: qrCopyPaste,
		Raw:         body,
	}, nil
}

// CheckPayment proxies a status lookup to the provider and returns the
// raw response body. Read-only: it never touches order state.
func (s *DepixService) CheckPayment(ctx context.Context, depixID, orderID string) ([]byte, error) {
	cfg := s.cfg()

	endpoint := fmt.Sprintf("%s%s?depixId=%s&orderId=%s",
		cfg.BaseURL(), depixStatusPath, url.QueryEscape(depixID), url.QueryEscape(orderID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newPaymentError(ErrKindTransport, "build status request", err)
	}

	resp, err := s.statusClient.Do(req)
	if err != nil {
		log.Printf("[Depix] Status request failed for payment %s: %v", depixID, err)
		return nil, newPaymentError(ErrKindTransport, "status request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newPaymentError(ErrKindTransport, "read status response", err)
	}

	return body, nil
}

// FormatAmount renders a currency value with exactly two fractional
// digits, a literal dot separator and no grouping.
func FormatAmount(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
