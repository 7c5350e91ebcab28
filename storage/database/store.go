package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

const (
	// DefaultPurgeInterval is how often expired rows are deleted.
	DefaultPurgeInterval = 5 * time.Minute

	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// Config holds database connection configuration
type Config struct {
	// Driver is "postgres" or "sqlite" (default).
	Driver string

	// DSN is the driver specific data source name, e.g.
	// "host=db user=gw password=... dbname=gw sslmode=require" or "gateway.sqlite".
	DSN string

	// PurgeInterval controls the expired row sweep. Values <= 0 use DefaultPurgeInterval.
	PurgeInterval time.Duration

	Logger *slog.Logger
}

// Entry is one stored credential.
type Entry struct {
	Key       string     `gorm:"primaryKey;size:512"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
}

// TableName sets the table name for Entry.
func (Entry) TableName() string {
	return "gateway_credentials"
}

// Store is a gorm-backed implementation of storage.KV.
type Store struct {
	db     *gorm.DB
	now    func() time.Time
	logger *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

var _ storage.KV = (*Store)(nil)

// Open connects using cfg, migrates the schema and starts the purge loop.
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	driver := strings.ToLower(cfg.Driver)
	switch driver {
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("sqlite DSN is required")
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if driver == "sqlite" || driver == "" {
		// SQLite allows a single writer; serialise through one connection.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(maxOpenConns)
		sqlDB.SetMaxIdleConns(maxIdleConns)
		sqlDB.SetConnMaxLifetime(connMaxLifetime)
	}

	s, err := New(db, cfg.Logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	interval := cfg.PurgeInterval
	if interval <= 0 {
		interval = DefaultPurgeInterval
	}
	go s.purgeLoop(interval)

	s.logger.Info("Connected to database storage", "driver", driver)
	return s, nil
}

// New wraps an existing connection and migrates the schema. It does not start
// the purge loop; call PurgeExpired yourself or use Open.
func New(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate credential table: %w", err)
	}
	return &Store{
		db:     db,
		now:    time.Now,
		logger: logger,
		stop:   make(chan struct{}),
	}, nil
}

// SetClock replaces the clock used for expiry. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// Close stops the purge loop and closes the connection pool.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Put upserts value under key. A ttl <= 0 stores without expiry.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	now := s.now().UTC()
	e := Entry{Key: key, Value: value, CreatedAt: now}
	if ttl > 0 {
		expiresAt := now.Add(ttl)
		e.ExpiresAt = &expiresAt
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "created_at"}),
	}).Create(&e).Error
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

// Get returns the value under key, or storage.ErrNotFound if it is absent or expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrNotFound
	}

	var e Entry
	err := s.db.WithContext(ctx).Where(&Entry{Key: key}).Take(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}
	if s.expired(&e) {
		return nil, storage.ErrNotFound
	}
	return e.Value, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := s.db.WithContext(ctx).Where(&Entry{Key: key}).Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return nil
}

// Take deletes the row with DELETE ... RETURNING, so only one caller can observe it.
func (s *Store) Take(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, storage.ErrNotFound
	}

	var rows []Entry
	result := s.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where(&Entry{Key: key}).
		Delete(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to take entry: %w", result.Error)
	}
	if result.RowsAffected == 0 || len(rows) == 0 {
		return nil, storage.ErrNotFound
	}
	if s.expired(&rows[0]) {
		return nil, storage.ErrNotFound
	}
	return rows[0].Value, nil
}

// PurgeExpired deletes every expired row and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at < ?", s.now().UTC()).
		Delete(&Entry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *Store) expired(e *Entry) bool {
	return e.ExpiresAt != nil && s.now().After(*e.ExpiresAt)
}

func (s *Store) purgeLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			n, err := s.PurgeExpired(context.Background())
			if err != nil {
				s.logger.Warn("Failed to purge expired credentials", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("Purged expired credentials", "count", n)
			}
		}
	}
}
