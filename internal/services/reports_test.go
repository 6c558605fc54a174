package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campuspoints/internal/models"
)

func TestReports_Summary(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)

	_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid: "buyer001",
		Spent:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	_, err = ledger.Redeem(context.Background(), buyer, 100, "")
	require.NoError(t, err)

	createEvent(t, db, testNow.Add(time.Hour), testNow.Add(2*time.Hour), nil, 500, true)
	createEvent(t, db, testNow.Add(time.Hour), testNow.Add(2*time.Hour), nil, 900, false)
	createEvent(t, db, testNow.Add(-2*time.Hour), testNow.Add(-time.Hour), nil, 700, true)

	reports, err := NewReportService(db)
	require.NoError(t, err)
	summary, err := reports.Summary(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 300, summary.PointsInCirculation)
	assert.Equal(t, []RoleCount{{Role: "cashier", Count: 1}, {Role: "regular", Count: 1}}, summary.Users)
	assert.Equal(t, []TypeTotal{
		{Type: "purchase", Count: 1, Points: 400},
		{Type: "redemption", Count: 1, Points: -100},
	}, summary.Transactions)
	assert.EqualValues(t, 1, summary.PendingRedemptions)
	assert.EqualValues(t, 100, summary.PendingRedemptionPoints)
	assert.Zero(t, summary.SuspiciousTransactions)
	assert.EqualValues(t, 1, summary.ActiveEvents)
	assert.EqualValues(t, 500, summary.EventPointsRemaining)
}
