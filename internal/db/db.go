package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrSetDialect      = errors.New("db: failed to set migration dialect")
	ErrApplyMigrations = errors.New("db: failed to apply migrations")
)

type DB struct {
	*sql.DB
}

// New opens the sqlite database at path. ":memory:" opens a private
// in-memory database limited to one connection.
func New(path string) (*DB, error) {
	memory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")

	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
	if memory {
		dsn = path + "?_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{db}, nil
}

// Migrate applies the embedded goose migrations.
func (db *DB) Migrate(ctx context.Context, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{log})

	if err := goose.SetDialect("sqlite3"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}

	return nil
}

// Version returns the current schema version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, errors.Join(ErrSetDialect, err)
	}
	return goose.GetDBVersionContext(ctx, db.DB)
}

type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, args ...any) {
	g.log.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (g *gooseLogger) Fatalf(format string, args ...any) {
	// goose returns the error as well; no exit here.
	g.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
