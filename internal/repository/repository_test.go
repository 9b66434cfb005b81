package repository

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/foxzi/relaydesk/internal/db"
	"github.com/foxzi/relaydesk/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := database.Migrate(context.Background(), log); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return database.DB
}

func createTestProject(t *testing.T, sqlDB *sql.DB, userID string) *models.Project {
	t.Helper()

	p := &models.Project{UserID: userID, Name: "Test Project"}
	if err := NewProjectRepository(sqlDB).Create(context.Background(), p, nil); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return p
}
