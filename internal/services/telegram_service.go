package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// TelegramService handles sending operator notifications to Telegram.
type TelegramService struct {
	botToken    string
	adminChatID string
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", s.botToken)

	msg := telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Telegram] Failed to send message: %v", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Telegram] Unexpected status: %d", resp.StatusCode)
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(s.adminChatID, text)
}

// PaymentNotification contains payment data for a Telegram notification.
type PaymentNotification struct {
	OrderNumber   string
	TransactionID string
	Amount        float64
	Currency      string
}

// FormatPrice formats an amount with its currency code.
func FormatPrice(amount float64, currency string) string {
	if currency == "" {
		currency = "BRL"
	}
	return FormatAmount(amount) + " " + currency
}

// NotifyPaymentSuccess sends notification about a settled Pix payment.
func (s *TelegramService) NotifyPaymentSuccess(payment PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>✅ PAYMENT RECEIVED</b>
<b>📋 Order:</b> %s
<b>🔑 Transaction:</b> %s
<b>💰 Amount:</b> %s
<b>💳 Method:</b> Pix (Depix)
━━━━━━━━━━━━━━━━━━`,
		payment.OrderNumber,
		payment.TransactionID,
		FormatPrice(payment.Amount, payment.Currency),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}

// NotifyPaymentFailed sends notification about a failed Pix payment.
func (s *TelegramService) NotifyPaymentFailed(payment PaymentNotification) error {
	if s.adminChatID == "" {
		return nil
	}

	message := fmt.Sprintf(`<b>❌ PAYMENT FAILED</b>
<b>📋 Order:</b> %s
<b>🔑 Transaction:</b> %s
<b>💰 Amount:</b> %s
<b>💳 Method:</b> Pix (Depix)
━━━━━━━━━━━━━━━━━━`,
		payment.OrderNumber,
		payment.TransactionID,
		FormatPrice(payment.Amount, payment.Currency),
	)

	return s.SendToAdmin(strings.TrimSpace(message))
}
