package services

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// ReportService runs read-only aggregate queries over the ledger.
type ReportService struct {
	db *sqlx.DB
}

// NewReportService shares the GORM connection pool with sqlx.
func NewReportService(gdb *gorm.DB) (*ReportService, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("reports: %w", err)
	}
	driver := gdb.Dialector.Name()
	if driver == "sqlite" {
		driver = "sqlite3"
	}
	return &ReportService{db: sqlx.NewDb(sqlDB, driver)}, nil
}

// TypeTotal is the row count and signed point sum for one transaction type.
type TypeTotal struct {
	Type   string `db:"type" json:"type"`
	Count  int64  `db:"count" json:"count"`
	Points int64  `db:"points" json:"points"`
}

// RoleCount is the number of users holding a role.
type RoleCount struct {
	Role  string `db:"role" json:"role"`
	Count int64  `db:"count" json:"count"`
}

// Summary is a snapshot of the program's state.
type Summary struct {
	PointsInCirculation     int64       `json:"pointsInCirculation"`
	Users                   []RoleCount `json:"users"`
	Transactions            []TypeTotal `json:"transactions"`
	PendingRedemptions      int64       `json:"pendingRedemptions"`
	PendingRedemptionPoints int64       `json:"pendingRedemptionPoints"`
	SuspiciousTransactions  int64       `json:"suspiciousTransactions"`
	ActiveEvents            int64       `json:"activeEvents"`
	EventPointsRemaining    int64       `json:"eventPointsRemaining"`
}

// Summary computes the current program snapshot.
func (s *ReportService) Summary(ctx context.Context) (*Summary, error) {
	var out Summary

	if err := s.db.GetContext(ctx, &out.PointsInCirculation,
		`SELECT COALESCE(SUM(points), 0) FROM users`); err != nil {
		return nil, fmt.Errorf("points in circulation: %w", err)
	}

	if err := s.db.SelectContext(ctx, &out.Users,
		`SELECT role, COUNT(*) AS count FROM users GROUP BY role ORDER BY role`); err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}

	if err := s.db.SelectContext(ctx, &out.Transactions,
		s.db.Rebind(`SELECT type, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS points
			FROM transactions WHERE suspicious = ? GROUP BY type ORDER BY type`), false); err != nil {
		return nil, fmt.Errorf("transactions by type: %w", err)
	}

	pending := struct {
		Count  int64 `db:"count"`
		Points int64 `db:"points"`
	}{}
	if err := s.db.GetContext(ctx, &pending,
		s.db.Rebind(`SELECT COUNT(*) AS count, COALESCE(SUM(-amount), 0) AS points
			FROM transactions WHERE type = ? AND processed = ? AND suspicious = ?`),
		"redemption", false, false); err != nil {
		return nil, fmt.Errorf("pending redemptions: %w", err)
	}
	out.PendingRedemptions, out.PendingRedemptionPoints = pending.Count, pending.Points

	if err := s.db.GetContext(ctx, &out.SuspiciousTransactions,
		s.db.Rebind(`SELECT COUNT(*) FROM transactions WHERE suspicious = ?`), true); err != nil {
		return nil, fmt.Errorf("suspicious transactions: %w", err)
	}

	events := struct {
		Count  int64 `db:"count"`
		Points int64 `db:"points"`
	}{}
	at := now()
	if err := s.db.GetContext(ctx, &events,
		s.db.Rebind(`SELECT COUNT(*) AS count, COALESCE(SUM(points_remain), 0) AS points
			FROM events WHERE published = ? AND end_time >= ?`), true, at); err != nil {
		return nil, fmt.Errorf("active events: %w", err)
	}
	out.ActiveEvents, out.EventPointsRemaining = events.Count, events.Points

	return &out, nil
}
