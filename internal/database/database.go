package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/campuspoints/internal/models"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// Connect opens the Postgres pool, creating the database on first boot, and
// brings the schema up to date. Any failure is fatal.
func Connect(dsn string) *gorm.DB {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ensureDatabase(ctx, dsn); err != nil {
		log.Fatalf("failed to ensure database: %v", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		log.Fatalf("failed to get connection pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := Migrate(conn.WithContext(ctx)); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("[DB] schema up to date")

	return conn
}

// Migrate creates or updates the schema in one pass so GORM can order the
// join tables after the tables they reference.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.User{},
		&models.Promotion{},
		&models.Event{},
		&models.Transaction{},
		&models.GoogleCalendarEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// ensureDatabase creates the target database through the maintenance
// database when it does not exist yet. Non-URL DSNs are left alone.
func ensureDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	target, err := url.Parse(dsn)
	if err != nil {
		return err
	}
	name := strings.TrimPrefix(target.Path, "/")
	if name == "" {
		return nil
	}

	maintenance := *target
	maintenance.Path = "/postgres"
	admin, err := sql.Open("postgres", maintenance.String())
	if err != nil {
		return err
	}
	defer admin.Close()

	var exists bool
	err = admin.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name,
	).Scan(&exists)
	if err != nil || exists {
		return err
	}

	log.Printf("[DB] creating database %s", name)
	_, err = admin.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(name))
	return err
}
