package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegram_NotifySuspiciousPurchase(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42")
	svc.baseURL = srv.URL

	err := svc.NotifySuspiciousPurchase(context.Background(), SuspiciousPurchaseNotification{
		TransactionID: 7,
		Utorid:        "buyer001",
		Cashier:       "<cashier>",
		Spent:         "12.50",
		Amount:        50,
	})
	require.NoError(t, err)

	assert.Equal(t, "/bottoken/sendMessage", path)
	assert.Equal(t, "42", got.ChatID)
	assert.Equal(t, "HTML", got.ParseMode)
	assert.Contains(t, got.Text, "#7")
	assert.Contains(t, got.Text, "&lt;cashier&gt;")
}

func TestTelegram_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc := NewTelegramService("token", "42")
	svc.baseURL = srv.URL
	assert.Error(t, svc.SendToAdmin(context.Background(), "hello"))

	// unconfigured bots are a no-op
	assert.NoError(t, NewTelegramService("", "42").SendToAdmin(context.Background(), "hello"))
	assert.NoError(t, NewTelegramService("token", "").SendToAdmin(context.Background(), "hello"))
}
