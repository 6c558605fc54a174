package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/campuspoints/internal/database"
	"github.com/example/campuspoints/internal/models"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// setupTestDB opens a private in-memory database and freezes the clock.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "failed to open test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db), "failed to migrate schema")

	prev := now
	now = func() time.Time { return testNow }
	t.Cleanup(func() { now = prev })

	return db
}

func createUser(t *testing.T, db *gorm.DB, utorid string, role models.Role, points int) *models.User {
	t.Helper()
	user := models.User{
		Utorid:   utorid,
		Name:     utorid,
		Email:    utorid + "@mail.utoronto.ca",
		Role:     role,
		Points:   points,
		Verified: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func createEvent(t *testing.T, db *gorm.DB, start, end time.Time, capacity *int, points int, published bool) *models.Event {
	t.Helper()
	event := models.Event{
		Name:         "Study Jam",
		Description:  "Group study session",
		Location:     "BA 1130",
		StartTime:    start,
		EndTime:      end,
		Capacity:     capacity,
		PointsRemain: points,
		Published:    published,
	}
	require.NoError(t, db.Create(&event).Error)
	return &event
}

func createPromotion(t *testing.T, db *gorm.DB, p models.Promotion) *models.Promotion {
	t.Helper()
	require.NoError(t, db.Create(&p).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO user_promotions (user_id, promotion_id) SELECT id, ? FROM users", p.ID,
	).Error)
	return &p
}

func balance(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var user models.User
	require.NoError(t, db.First(&user, id).Error)
	return user.Points
}

func intPtr(v int) *int { return &v }

type recordingNotifier struct {
	mu         sync.Mutex
	suspicious []SuspiciousPurchaseNotification
	flagged    []FlaggedTransactionNotification
	done       chan struct{}
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{done: make(chan struct{}, 8)}
}

func (r *recordingNotifier) NotifySuspiciousPurchase(_ context.Context, n SuspiciousPurchaseNotification) error {
	r.mu.Lock()
	r.suspicious = append(r.suspicious, n)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingNotifier) NotifyTransactionFlagged(_ context.Context, n FlaggedTransactionNotification) error {
	r.mu.Lock()
	r.flagged = append(r.flagged, n)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingNotifier) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not sent")
	}
}
