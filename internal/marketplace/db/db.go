// Package db implements the marketplace repository on top of GORM.
// Postgres is used in production; sqlite backs local runs and tests.
package db

import (
	"context"
	"fmt"

	dbmodels "github.com/gartstein/internhub/internal/marketplace/db/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the sqlite database file, used when Driver is sqlite.
	Path string
}

// Dialector picks the GORM dialector for cfg.
func (cfg *Config) Dialector() (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		return postgres.Open(dsn), nil
	case DriverSQLite:
		return sqlite.Open(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func NewRepository(cfg *Config) (*Repository, error) {
	dialector, err := cfg.Dialector()
	if err != nil {
		return nil, err
	}
	db, err := connect(dialector)
	if err != nil {
		return nil, err
	}
	if cfg.Driver == DriverSQLite {
		// sqlite allows one writer, and ":memory:" is private to a connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return migrate(db)
}

// connect opens the GORM handle. Foreign keys are not emitted by the
// migration; cascades are performed explicitly inside transactions.
func connect(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError:                           true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Error),
	}
}

func migrate(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(dbmodels.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Repository{db: db}, nil
}

func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// Ping checks the underlying connection.
func (r *Repository) Ping(ctx context.Context) error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func likePattern(s string) string {
	return "%" + s + "%"
}
