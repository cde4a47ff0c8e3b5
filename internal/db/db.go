package db

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"usersvc/internal/model"
)

// Options tune the connection.
type Options struct {
	// Verbose logs every SQL statement.
	Verbose bool
}

// Open picks a driver from the DSN shape: postgres:// or postgresql:// URLs,
// sqlite: or file: paths, anything else is treated as a MySQL DSN.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgres(dsn, opts)
	case strings.HasPrefix(lower, "sqlite:"):
		return NewSQLite(strings.TrimPrefix(strings.TrimSpace(dsn), "sqlite:"), opts)
	case strings.HasPrefix(lower, "file:"):
		return NewSQLite(dsn, opts)
	default:
		return NewMySQL(dsn, opts)
	}
}

// NewMySQL returns a connected GORM DB instance.
func NewMySQL(dsn string, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}
	return withPool(db, 10, 30)
}

// NewPostgres returns a connected GORM DB instance.
func NewPostgres(dsn string, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return withPool(db, 10, 30)
}

// NewSQLite opens a sqlite database. SQLite allows a single writer, so the pool
// is limited to one connection and writers wait on the busy timeout.
func NewSQLite(path string, opts Options) (*gorm.DB, error) {
	if !strings.Contains(path, "_busy_timeout") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + "_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig(opts))
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return withPool(db, 1, 1)
}

// Migrate creates or updates the tables this service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.User{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func gormConfig(opts Options) *gorm.Config {
	level := logger.Warn
	if opts.Verbose {
		level = logger.Info
	}
	return &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func withPool(db *gorm.DB, idle, open int) (*gorm.DB, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetMaxOpenConns(open)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}
