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

func TestBonus(t *testing.T) {
	rate := decimal.NewNullDecimal(decimal.RequireFromString("0.02"))
	tests := []struct {
		name  string
		promo models.Promotion
		spent string
		want  int
	}{
		{"one-time flat", models.Promotion{Type: models.PromotionOneTime, Points: 25}, "10", 25},
		{"one-time rate", models.Promotion{Type: models.PromotionOneTime, Rate: rate}, "12.50", 25},
		{"one-time both", models.Promotion{Type: models.PromotionOneTime, Rate: rate, Points: 5}, "10", 25},
		{"automatic", models.Promotion{Type: models.PromotionAutomatic, Rate: rate, Points: 5}, "10", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Bonus(&tt.promo, decimal.RequireFromString(tt.spent)))
		})
	}
}

func validPromotionInput() PromotionInput {
	return PromotionInput{
		Name:        "Double Tuesday",
		Description: "Extra points on Tuesdays",
		Type:        models.PromotionAutomatic,
		StartTime:   testNow.Add(time.Hour),
		EndTime:     testNow.Add(48 * time.Hour),
		Points:      10,
	}
}

func TestPromotions_CreateAttachesToUsers(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPromotionService(db)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	createUser(t, db, "regular1", models.RoleRegular, 0)

	promo, err := svc.Create(context.Background(), manager, validPromotionInput())
	require.NoError(t, err)
	assert.NotZero(t, promo.ID)

	var n int64
	require.NoError(t, db.Table("user_promotions").Where("promotion_id = ?", promo.ID).Count(&n).Error)
	assert.EqualValues(t, 2, n)
}

func TestPromotions_CreateValidation(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPromotionService(db)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	cashier := createUser(t, db, "cashier1", models.RoleCashier, 0)

	_, err := svc.Create(context.Background(), cashier, validPromotionInput())
	assert.ErrorIs(t, err, ErrPermission)

	negative := decimal.NewFromInt(-1)
	tests := []struct {
		name   string
		mutate func(*PromotionInput)
	}{
		{"no name", func(in *PromotionInput) { in.Name = " " }},
		{"bad type", func(in *PromotionInput) { in.Type = "weekly" }},
		{"end before start", func(in *PromotionInput) { in.EndTime = in.StartTime.Add(-time.Minute) }},
		{"negative rate", func(in *PromotionInput) { in.Rate = &negative }},
		{"negative min spending", func(in *PromotionInput) { in.MinSpending = &negative }},
		{"negative points", func(in *PromotionInput) { in.Points = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validPromotionInput()
			tt.mutate(&in)
			_, err := svc.Create(context.Background(), manager, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestPromotions_ListAndGetVisibility(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPromotionService(db)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)
	regular := createUser(t, db, "regular1", models.RoleRegular, 0)

	active := createPromotion(t, db, models.Promotion{
		Name: "Now", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour),
	})
	future := createPromotion(t, db, models.Promotion{
		Name: "Later", Type: models.PromotionOneTime,
		StartTime: testNow.Add(time.Hour), EndTime: testNow.Add(2 * time.Hour),
	})
	createPromotion(t, db, models.Promotion{
		Name: "Over", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-2 * time.Hour), EndTime: testNow.Add(-time.Hour),
	})

	page := PromotionFilter{}
	page.Page.Limit = 10

	promos, count, err := svc.List(context.Background(), regular, page)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, active.ID, promos[0].ID)

	_, count, err = svc.List(context.Background(), manager, page)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	started := false
	notStarted := page
	notStarted.Started = &started
	promos, count, err = svc.List(context.Background(), manager, notStarted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, future.ID, promos[0].ID)

	both := page
	both.Started, both.Ended = &started, &started
	_, _, err = svc.List(context.Background(), manager, both)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Get(context.Background(), regular, future.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(context.Background(), manager, future.ID)
	require.NoError(t, err)
	assert.Equal(t, "Later", got.Name)
}

func TestPromotions_UpdateAndDelete(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPromotionService(db)
	manager := createUser(t, db, "manager1", models.RoleManager, 0)

	promo, err := svc.Create(context.Background(), manager, validPromotionInput())
	require.NoError(t, err)

	points := 99
	updated, changed, err := svc.Update(context.Background(), manager, promo.ID, PromotionPatch{Points: &points})
	require.NoError(t, err)
	assert.Equal(t, 99, updated.Points)
	assert.Equal(t, []string{"points"}, changed)

	badEnd := promo.StartTime.Add(-time.Minute)
	_, _, err = svc.Update(context.Background(), manager, promo.ID, PromotionPatch{EndTime: &badEnd})
	assert.ErrorIs(t, err, ErrValidation)

	running := createPromotion(t, db, models.Promotion{
		Name: "Running", Type: models.PromotionAutomatic,
		StartTime: testNow.Add(-time.Hour), EndTime: testNow.Add(time.Hour),
	})
	_, _, err = svc.Update(context.Background(), manager, running.ID, PromotionPatch{Points: &points})
	assert.ErrorIs(t, err, ErrPolicy)
	assert.ErrorIs(t, svc.Delete(context.Background(), manager, running.ID), ErrPolicy)

	require.NoError(t, svc.Delete(context.Background(), manager, promo.ID))
	var n int64
	require.NoError(t, db.Table("user_promotions").Where("promotion_id = ?", promo.ID).Count(&n).Error)
	assert.Zero(t, n)

	_, err = svc.Get(context.Background(), manager, promo.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
