package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers staff alerts about ledger activity that needs review.
type Notifier interface {
	NotifySuspiciousPurchase(ctx context.Context, n SuspiciousPurchaseNotification) error
	NotifyTransactionFlagged(ctx context.Context, n FlaggedTransactionNotification) error
}

// TelegramService sends staff alerts through the Telegram Bot API.
type TelegramService struct {
	botToken    string
	adminChatID string
	baseURL     string
	client      *http.Client
}

// NewTelegramService creates a new TelegramService.
func NewTelegramService(botToken, adminChatID string) *TelegramService {
	return &TelegramService{
		botToken:    botToken,
		adminChatID: adminChatID,
		baseURL:     "https://api.telegram.org",
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type telegramMessage struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// SendMessage sends a message to specified chat.
func (s *TelegramService) SendMessage(ctx context.Context, chatID, text string) error {
	if s.botToken == "" {
		log.Println("[Telegram] Bot token not configured")
		return nil
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)

	body, err := json.Marshal(telegramMessage{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	return nil
}

// SendToAdmin sends a message to the admin chat.
func (s *TelegramService) SendToAdmin(ctx context.Context, text string) error {
	if s.adminChatID == "" {
		log.Println("[Telegram] Admin chat ID not configured")
		return nil
	}
	return s.SendMessage(ctx, s.adminChatID, text)
}

// SuspiciousPurchaseNotification describes a purchase recorded by a flagged cashier.
type SuspiciousPurchaseNotification struct {
	TransactionID uint
	Utorid        string
	Cashier       string
	Spent         string
	Amount        int
}

// NotifySuspiciousPurchase alerts staff that a purchase is on hold.
func (s *TelegramService) NotifySuspiciousPurchase(ctx context.Context, n SuspiciousPurchaseNotification) error {
	message := fmt.Sprintf(`<b>Purchase held for review</b>
<b>Transaction:</b> #%d
<b>Customer:</b> %s
<b>Cashier:</b> %s (flagged suspicious)
<b>Spent:</b> $%s
<b>Points withheld:</b> %d`,
		n.TransactionID,
		html.EscapeString(n.Utorid),
		html.EscapeString(n.Cashier),
		n.Spent,
		n.Amount,
	)
	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}

// FlaggedTransactionNotification describes a suspicious-flag change.
type FlaggedTransactionNotification struct {
	TransactionID uint
	Type          string
	Utorid        string
	Amount        int
	Suspicious    bool
	FlaggedBy     string
}

// NotifyTransactionFlagged alerts staff that a transaction was flagged or cleared.
func (s *TelegramService) NotifyTransactionFlagged(ctx context.Context, n FlaggedTransactionNotification) error {
	state := "cleared"
	if n.Suspicious {
		state = "flagged suspicious"
	}
	message := fmt.Sprintf(`<b>Transaction %s</b>
<b>Transaction:</b> #%d (%s)
<b>Owner:</b> %s
<b>Amount:</b> %d
<b>By:</b> %s`,
		state,
		n.TransactionID,
		n.Type,
		html.EscapeString(n.Utorid),
		n.Amount,
		html.EscapeString(n.FlaggedBy),
	)
	return s.SendToAdmin(ctx, strings.TrimSpace(message))
}
