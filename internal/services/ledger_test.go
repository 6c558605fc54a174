package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/campuspoints/internal/models"
)

func newLedger(t *testing.T) (*LedgerService, *recordingNotifier) {
	t.Helper()
	db := setupTestDB(t)
	notifier := newRecordingNotifier()
	return NewLedgerService(db, NewPromotionService(db), notifier), notifier
}

func TestBasePoints(t *testing.T) {
	tests := []struct {
		spent string
		want  int
	}{
		{"100", 400},
		{"19.99", 80},
		{"0.12", 0},
		{"0.13", 1},
		{"10.10", 40},
	}
	for _, tt := range tests {
		t.Run(tt.spent, func(t *testing.T) {
			assert.Equal(t, tt.want, BasePoints(decimal.RequireFromString(tt.spent)))
		})
	}
}

func TestLedger_Purchase_CreditsBasePoints(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)

	result, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid: "BUYER001",
		Spent:  decimal.NewFromInt(100),
		Remark: "coffee",
	})
	require.NoError(t, err)

	assert.Equal(t, 400, result.Earned)
	assert.Equal(t, 400, result.Transaction.Amount)
	assert.Equal(t, "buyer001", result.Transaction.Utorid)
	assert.Equal(t, "cashier1", result.Transaction.CreatedBy)
	assert.False(t, result.Transaction.Suspicious)
	assert.Equal(t, 400, balance(t, db, buyer.ID))
}

func TestLedger_Purchase_Validation(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	regular := createUser(t, db, "buyer001", models.RoleRegular, 0)

	_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "buyer001", Spent: decimal.Zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "nobody01", Spent: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ledger.Purchase(context.Background(), regular, PurchaseInput{Utorid: "buyer001", Spent: decimal.NewFromInt(5)})
	assert.ErrorIs(t, err, ErrPermission)
}

func TestLedger_Purchase_OneTimePromotionUsedOnce(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)
	promo := createPromotion(t, db, models.Promotion{
		Name:      "Welcome",
		Type:      models.PromotionOneTime,
		StartTime: testNow.Add(-time.Hour),
		EndTime:   testNow.Add(time.Hour),
		Rate:      decimal.NewNullDecimal(decimal.RequireFromString("0.01")),
		Points:    50,
	})

	result, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid:       "buyer001",
		Spent:        decimal.NewFromInt(20),
		PromotionIDs: []uint{promo.ID},
	})
	require.NoError(t, err)
	// 80 base + 50 flat + round(0.01 * 100 * 20)
	assert.Equal(t, 150, result.Earned)
	assert.Equal(t, []uint{promo.ID}, result.Transaction.PromotionIDs())
	assert.Equal(t, 150, balance(t, db, buyer.ID))

	_, err = ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid:       "buyer001",
		Spent:        decimal.NewFromInt(20),
		PromotionIDs: []uint{promo.ID},
	})
	assert.ErrorIs(t, err, ErrPolicy)
	assert.Equal(t, 150, balance(t, db, buyer.ID))
}

func TestLedger_Purchase_PromotionRules(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	createUser(t, db, "buyer001", models.RoleRegular, 0)

	expired := createPromotion(t, db, models.Promotion{
		Name: "Old", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-48 * time.Hour), EndTime: testNow.Add(-24 * time.Hour),
	})
	future := createPromotion(t, db, models.Promotion{
		Name: "Soon", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(24 * time.Hour), EndTime: testNow.Add(48 * time.Hour),
	})
	threshold := createPromotion(t, db, models.Promotion{
		Name: "Big spender", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour),
		MinSpending: decimal.NewNullDecimal(decimal.NewFromInt(50)),
	})

	tests := []struct {
		name  string
		ids   []uint
		spent int64
		want  error
	}{
		{"missing", []uint{9999}, 10, ErrNotFound},
		{"expired", []uint{expired.ID}, 10, ErrPolicy},
		{"not started", []uint{future.ID}, 10, ErrPolicy},
		{"under minimum", []uint{threshold.ID}, 10, ErrPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
				Utorid:       "buyer001",
				Spent:        decimal.NewFromInt(tt.spent),
				PromotionIDs: tt.ids,
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// minimum spend is checked before the promotion window
	lapsed := createPromotion(t, db, models.Promotion{
		Name: "Lapsed spender", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-48 * time.Hour), EndTime: testNow.Add(-24 * time.Hour),
		MinSpending: decimal.NewNullDecimal(decimal.NewFromInt(50)),
	})
	_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid:       "buyer001",
		Spent:        decimal.NewFromInt(10),
		PromotionIDs: []uint{lapsed.ID},
	})
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: fmt.Sprintf("Promotion %d requires a minimum spend of 50.00", lapsed.ID)})

	result, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid:       "buyer001",
		Spent:        decimal.NewFromInt(50),
		PromotionIDs: []uint{threshold.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 200, result.Earned, "automatic promotions add no bonus")
}

func TestLedger_Purchase_SuspiciousCashier(t *testing.T) {
	ledger, notifier := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	require.NoError(t, db.Model(cashier).Update("suspicious", true).Error)
	cashier.Suspicious = true
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)

	result, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{
		Utorid: "buyer001",
		Spent:  decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, result.Transaction.Suspicious)
	assert.Equal(t, 0, result.Earned)
	assert.Equal(t, 40, result.Transaction.Amount)
	assert.Equal(t, 0, balance(t, db, buyer.ID))

	notifier.wait(t)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.suspicious, 1)
	assert.Equal(t, "cashier1", notifier.suspicious[0].Cashier)
}

func TestLedger_Adjust(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)

	purchase, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "buyer001", Spent: decimal.NewFromInt(10)})
	require.NoError(t, err)

	_, err = ledger.Adjust(context.Background(), cashier, AdjustmentInput{Utorid: "buyer001", Amount: -5, RelatedID: purchase.Transaction.ID})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = ledger.Adjust(context.Background(), manager, AdjustmentInput{Utorid: "buyer001", Amount: -5, RelatedID: 9999})
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound, Message: "Related transaction not found"})

	adj, err := ledger.Adjust(context.Background(), manager, AdjustmentInput{
		Utorid:    "buyer001",
		Amount:    -15,
		RelatedID: purchase.Transaction.ID,
		Remark:    "overcharged",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TransactionAdjustment, adj.Type)
	require.NotNil(t, adj.RelatedID)
	assert.Equal(t, purchase.Transaction.ID, *adj.RelatedID)
	assert.Equal(t, 25, balance(t, db, buyer.ID))
}

func TestLedger_Transfer(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	sender := createUser(t, db, "sender01", models.RoleRegular, 500)
	recipient := createUser(t, db, "recvr001", models.RoleRegular, 10)

	result, err := ledger.Transfer(context.Background(), sender, recipient.ID, 200, "lunch")
	require.NoError(t, err)

	assert.Equal(t, -200, result.Sent.Amount)
	assert.Equal(t, 200, result.Received.Amount)
	assert.Equal(t, "recvr001", result.Recipient)
	require.NotNil(t, result.Sent.RelatedID)
	assert.Equal(t, recipient.ID, *result.Sent.RelatedID)
	require.NotNil(t, result.Received.RelatedID)
	assert.Equal(t, sender.ID, *result.Received.RelatedID)

	assert.Equal(t, 300, balance(t, db, sender.ID))
	assert.Equal(t, 210, balance(t, db, recipient.ID))
}

func TestLedger_Transfer_Rejections(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	sender := createUser(t, db, "sender01", models.RoleRegular, 100)
	recipient := createUser(t, db, "recvr001", models.RoleRegular, 0)
	unverified := createUser(t, db, "unverif1", models.RoleRegular, 100)
	require.NoError(t, db.Model(unverified).Update("verified", false).Error)
	unverified.Verified = false

	_, err := ledger.Transfer(context.Background(), sender, recipient.ID, 101, "")
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Not enough points"})

	_, err = ledger.Transfer(context.Background(), sender, 9999, 10, "")
	assert.ErrorIs(t, err, &Error{Kind: KindNotFound, Message: "Recipient not found"})

	_, err = ledger.Transfer(context.Background(), sender, sender.ID, 10, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.Transfer(context.Background(), unverified, recipient.ID, 10, "")
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Sender is not verified"})

	_, err = ledger.Transfer(context.Background(), sender, recipient.ID, 0, "")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, 100, balance(t, db, sender.ID))
	assert.Equal(t, 0, balance(t, db, recipient.ID))
}

func TestLedger_RedeemAndProcess(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	user := createUser(t, db, "redeemr1", models.RoleRegular, 1000)
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)

	_, err := ledger.Redeem(context.Background(), user, 1001, "")
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Not enough points"})

	txn, err := ledger.Redeem(context.Background(), user, 300, "mug")
	require.NoError(t, err)
	assert.Equal(t, -300, txn.Amount)
	assert.False(t, txn.Processed)
	assert.Equal(t, 700, balance(t, db, user.ID))

	processed, err := ledger.ProcessRedemption(context.Background(), cashier, txn.ID)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	require.NotNil(t, processed.RelatedID)
	assert.Equal(t, cashier.ID, *processed.RelatedID)
	assert.Equal(t, 700, balance(t, db, user.ID), "processing does not touch the balance again")

	_, err = ledger.ProcessRedemption(context.Background(), cashier, txn.ID)
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Redemption has already been processed"})

	_, err = ledger.ProcessRedemption(context.Background(), user, txn.ID)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestLedger_ProcessRejectsOtherTypes(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	createUser(t, db, "buyer001", models.RoleRegular, 0)

	purchase, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "buyer001", Spent: decimal.NewFromInt(1)})
	require.NoError(t, err)

	_, err = ledger.ProcessRedemption(context.Background(), cashier, purchase.Transaction.ID)
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Transaction is not a redemption"})

	_, err = ledger.ProcessRedemption(context.Background(), cashier, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLedger_Redeem_Unverified(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	user := createUser(t, db, "redeemr1", models.RoleRegular, 1000)
	require.NoError(t, db.Model(user).Update("verified", false).Error)

	_, err := ledger.Redeem(context.Background(), user, 10, "")
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "User is not verified"})
	assert.Equal(t, 1000, balance(t, db, user.ID))
}

func TestLedger_SetSuspicious_RoundTrip(t *testing.T) {
	ledger, notifier := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)

	purchase, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "buyer001", Spent: decimal.NewFromInt(25)})
	require.NoError(t, err)
	require.Equal(t, 100, balance(t, db, buyer.ID))

	flagged, err := ledger.SetSuspicious(context.Background(), manager, purchase.Transaction.ID, true)
	require.NoError(t, err)
	assert.True(t, flagged.Suspicious)
	assert.Equal(t, 0, balance(t, db, buyer.ID))
	notifier.wait(t)

	// unchanged value is a no-op
	_, err = ledger.SetSuspicious(context.Background(), manager, purchase.Transaction.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 0, balance(t, db, buyer.ID))

	cleared, err := ledger.SetSuspicious(context.Background(), manager, purchase.Transaction.ID, false)
	require.NoError(t, err)
	assert.False(t, cleared.Suspicious)
	assert.Equal(t, 100, balance(t, db, buyer.ID))
	notifier.wait(t)

	_, err = ledger.SetSuspicious(context.Background(), cashier, purchase.Transaction.ID, true)
	assert.ErrorIs(t, err, ErrPermission)
}

func TestLedger_SetSuspicious_Redemption(t *testing.T) {
	ledger, notifier := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	user := createUser(t, db, "regular1", models.RoleRegular, 1000)

	redemption, err := ledger.Redeem(context.Background(), user, 300, "")
	require.NoError(t, err)
	assert.Equal(t, 700, balance(t, db, user.ID))

	// flagging gives the reserved points back
	_, err = ledger.SetSuspicious(context.Background(), manager, redemption.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1000, balance(t, db, user.ID))
	notifier.wait(t)

	_, err = ledger.SetSuspicious(context.Background(), manager, redemption.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 700, balance(t, db, user.ID))
	notifier.wait(t)

	processed, err := ledger.ProcessRedemption(context.Background(), cashier, redemption.ID)
	require.NoError(t, err)
	assert.True(t, processed.Processed)
	assert.Equal(t, 700, balance(t, db, user.ID))

	_, err = ledger.ProcessRedemption(context.Background(), cashier, redemption.ID)
	assert.ErrorIs(t, err, ErrPolicy)
	assert.Equal(t, 700, balance(t, db, user.ID))
}

func TestLedger_AwardEventPoints(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	organizer := createUser(t, db, "organiz1", models.RoleRegular, 0)
	guestA := createUser(t, db, "guest001", models.RoleRegular, 0)
	guestB := createUser(t, db, "guest002", models.RoleRegular, 0)
	outsider := createUser(t, db, "outsidr1", models.RoleRegular, 0)

	event := createEvent(t, db, testNow.Add(-time.Hour), testNow.Add(time.Hour), nil, 100, true)
	require.NoError(t, db.Exec("INSERT INTO event_organizers (event_id, user_id) VALUES (?, ?)", event.ID, organizer.ID).Error)
	for _, g := range []*models.User{guestA, guestB} {
		require.NoError(t, db.Exec("INSERT INTO event_guests (event_id, user_id) VALUES (?, ?)", event.ID, g.ID).Error)
	}

	_, err := ledger.AwardEventPoints(context.Background(), outsider, event.ID, EventRewardInput{Utorid: "guest001", Amount: 10})
	assert.ErrorIs(t, err, ErrPermission)

	_, err = ledger.AwardEventPoints(context.Background(), organizer, event.ID, EventRewardInput{Utorid: "outsidr1", Amount: 10})
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "User is not a guest of this event"})

	rows, err := ledger.AwardEventPoints(context.Background(), organizer, event.ID, EventRewardInput{Utorid: "guest001", Amount: 30})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.TransactionEvent, rows[0].Type)
	require.NotNil(t, rows[0].RelatedID)
	assert.Equal(t, event.ID, *rows[0].RelatedID)
	assert.Equal(t, 30, balance(t, db, guestA.ID))

	// 2 guests x 40 exceeds the remaining 70; nothing may be paid
	_, err = ledger.AwardEventPoints(context.Background(), manager, event.ID, EventRewardInput{Amount: 40})
	assert.ErrorIs(t, err, &Error{Kind: KindPolicy, Message: "Points not enough"})
	assert.Equal(t, 30, balance(t, db, guestA.ID))
	assert.Equal(t, 0, balance(t, db, guestB.ID))

	rows, err = ledger.AwardEventPoints(context.Background(), manager, event.ID, EventRewardInput{Amount: 35})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
	assert.Equal(t, 65, balance(t, db, guestA.ID))
	assert.Equal(t, 35, balance(t, db, guestB.ID))

	var reloaded models.Event
	require.NoError(t, db.First(&reloaded, event.ID).Error)
	assert.Equal(t, 0, reloaded.PointsRemain)
	assert.Equal(t, 100, reloaded.PointsAwarded)
}

func TestLedger_List(t *testing.T) {
	ledger, _ := newLedger(t)
	db := ledger.db
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)
	buyer := createUser(t, db, "buyer001", models.RoleRegular, 0)
	createUser(t, db, "other001", models.RoleRegular, 0)

	for _, spent := range []int64{10, 20, 30} {
		_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "buyer001", Spent: decimal.NewFromInt(spent)})
		require.NoError(t, err)
	}
	_, err := ledger.Purchase(context.Background(), cashier, PurchaseInput{Utorid: "other001", Spent: decimal.NewFromInt(5)})
	require.NoError(t, err)

	page := func(limit int) TransactionFilter {
		f := TransactionFilter{}
		f.Page.Limit = limit
		return f
	}

	f := page(2)
	f.UserID = buyer.ID
	rows, count, err := ledger.List(context.Background(), f)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
	assert.Len(t, rows, 2)

	f = page(10)
	f.Amount, f.Operator = intPtr(80), "gte"
	f.SortBy, f.Order = "amount", "desc"
	rows, count, err = ledger.List(context.Background(), f)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.Equal(t, 120, rows[0].Amount)

	f = page(10)
	f.Name = "OTHER"
	_, count, err = ledger.List(context.Background(), f)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	f = page(10)
	f.Amount = intPtr(5)
	_, _, err = ledger.List(context.Background(), f)
	assert.ErrorIs(t, err, ErrValidation)

	related := uint(1)
	f = page(10)
	f.RelatedID = &related
	_, _, err = ledger.List(context.Background(), f)
	assert.ErrorIs(t, err, ErrValidation)
}
