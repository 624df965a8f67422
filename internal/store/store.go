package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kjstillabower/smart-farm-service/internal/models"
)

// HistoryLimit bounds the store fallback used by /history.
const HistoryLimit = 200

// ErrAlertNotFound is returned by ResolveAlert for an unknown id.
var ErrAlertNotFound = errors.New("alert not found")

// Options selects the database driver and pool sizing.
type Options struct {
	Driver          string // "sqlite", "mysql" or "postgres"
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogQueries      bool
}

// Store persists readings and alerts.
type Store struct {
	db *gorm.DB
}

// Open connects using opts and migrates the schema.
func Open(opts Options) (*Store, error) {
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}
	level := logger.Silent
	if opts.LogQueries {
		level = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", opts.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	switch {
	case opts.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	case isSQLite(opts.Driver):
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&models.Reading{}, &models.Alert{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

func isSQLite(driver string) bool {
	d := strings.ToLower(strings.TrimSpace(driver))
	return d == "" || d == "sqlite"
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	if isSQLite(opts.Driver) {
		dsn := opts.DSN
		if dsn == "" {
			dsn = filepath.Join("instance", "crops.db")
		}
		if dir := filepath.Dir(dsn); dir != "." && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	}
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "mysql":
		return mysql.Open(opts.DSN), nil
	case "postgres":
		return postgres.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// CreateReading inserts r and fills in its ID. A zero Timestamp is set to now (UTC).
func (s *Store) CreateReading(ctx context.Context, r *models.Reading) error {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// CreateAlert inserts a.
func (s *Store) CreateAlert(ctx context.Context, a *models.Alert) error {
	if err := s.db.WithContext(ctx).Omit("Reading").Create(a).Error; err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RecentReadings returns at most limit readings, newest first.
func (s *Store) RecentReadings(ctx context.Context, limit int) ([]models.Reading, error) {
	var out []models.Reading
	q := s.db.WithContext(ctx).Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	return out, nil
}

// AllReadings returns every reading, newest first.
func (s *Store) AllReadings(ctx context.Context) ([]models.Reading, error) {
	return s.RecentReadings(ctx, 0)
}

// ListAlerts returns every alert, newest first.
func (s *Store) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	if err := s.db.WithContext(ctx).Order("created_at desc, id desc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	return out, nil
}

// ResolveAlert marks the alert resolved. Resolving twice is a no-op.
func (s *Store) ResolveAlert(ctx context.Context, id uint) error {
	var a models.Alert
	err := s.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAlertNotFound
	}
	if err != nil {
		return fmt.Errorf("load alert %d: %w", id, err)
	}
	if a.Resolved {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(&a).Update("resolved", true).Error; err != nil {
		return fmt.Errorf("resolve alert %d: %w", id, err)
	}
	return nil
}

// Ping checks database reachability. Used for health checks.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool. Call during shutdown.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
