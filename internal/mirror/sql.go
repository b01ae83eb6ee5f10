package mirror

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vortexx/internal/observability"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Entry is one row of mirror_entries.
type Entry struct {
	Key       string `gorm:"primaryKey;size:191"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
	// ExpiresAt is nil for values that never expire.
	ExpiresAt *time.Time `gorm:"index"`
}

func (Entry) TableName() string { return "mirror_entries" }

// gormLogger routes gorm logs through slog and ignores missing rows.
type gormLogger struct {
	logger *slog.Logger
	config logger.Config
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *l
	next.config.LogLevel = level
	return &next
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.config.LogLevel >= logger.Info {
		l.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.config.LogLevel >= logger.Warn {
		l.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.config.LogLevel >= logger.Error {
		l.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.config.LogLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.config.LogLevel >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		query, rows := fc()
		l.logger.ErrorContext(ctx, "mirror query error",
			slog.String("sql", query),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
	case l.config.SlowThreshold != 0 && elapsed > l.config.SlowThreshold && l.config.LogLevel >= logger.Warn:
		query, rows := fc()
		l.logger.WarnContext(ctx, "mirror slow query",
			slog.String("sql", query),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
		)
	}
}

// OpenSQL opens the sqlite or postgres database at dsn and migrates the
// mirror table.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var (
		dialector gorm.Dialector
		pool      *sql.DB
	)
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		conn, err := openPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		pool = conn
		dialector = postgres.New(postgres.Config{Conn: conn})
	default:
		return nil, fmt.Errorf("mirror: unsupported sql driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: &gormLogger{
			logger: observability.GlobalLogger.Logger,
			config: logger.Config{
				SlowThreshold: 200 * time.Millisecond,
				LogLevel:      logger.Warn,
			},
		},
	})
	if err != nil {
		if pool != nil {
			_ = pool.Close()
		}
		return nil, fmt.Errorf("mirror: open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// an in-memory database lives only as long as its single connection
		sqlDB.SetMaxOpenConns(1)
	}

	return migrated(ctx, db)
}

// migrated wraps db and migrates it, closing the pool when that fails.
func migrated(ctx context.Context, db *gorm.DB) (*SQLStore, error) {
	store := NewSQLStore(db)
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// openPostgres opens a pgx-backed pool and pings it with a short timeout.
func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mirror: ping postgres: %w", err)
	}
	return db, nil
}

// SQLStore keeps values in the mirror_entries table.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps db without migrating.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates or updates the mirror table.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("mirror: migrate: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).
		Where(&Entry{Key: key}).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Take(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal([]byte(e.Value), dest)
}

func (s *SQLStore) Set(ctx context.Context, key string, v any) error {
	return s.SetTTL(ctx, key, v, 0)
}

func (s *SQLStore) SetTTL(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	e := Entry{Key: key, Value: string(data), UpdatedAt: now}
	if ttl > 0 {
		expires := now.Add(ttl)
		e.ExpiresAt = &expires
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at", "expires_at"}),
	}).Create(&e).Error
}

// DeleteExpired removes rows whose expiry is at or before now.
func (s *SQLStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Delete(&Entry{})
	return int(res.RowsAffected), res.Error
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where(&Entry{Key: key}).Delete(&Entry{}).Error
}

func (s *SQLStore) Flush(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&Entry{}).Error
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
