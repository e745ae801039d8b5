package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GideonNut/moviemeter/pkg/database"
	"github.com/GideonNut/moviemeter/pkg/models"
)

// OpenTestDB opens a temp-file sqlite database with the full schema applied.
// The file and connection are cleaned up when the test finishes.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	tmp, err := os.CreateTemp("", "moviemeter-test-*.db")
	if err != nil {
		t.Fatalf("create temp db file: %v", err)
	}
	tmp.Close()

	db, err := database.Open(database.Config{Path: tmp.Name()})
	if err != nil {
		os.Remove(tmp.Name())
		t.Fatalf("open test db: %v", err)
	}
	// serialize writers; sqlite returns SQLITE_BUSY under contention
	db.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		db.Close()
		os.Remove(tmp.Name())
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
		os.Remove(tmp.Name())
	})
	return db
}

// InsertMedia seeds one media row and returns its id.
func InsertMedia(t *testing.T, db *sql.DB, kind models.MediaKind, providerID, title string, createdAt time.Time) string {
	t.Helper()

	id := uuid.NewString()
	_, err := db.ExecContext(context.Background(), `
		INSERT INTO media (id, kind, provider_id, title, genres, created_at, updated_at)
		VALUES (?, ?, ?, ?, '[]', ?, ?)
	`, id, kind, providerID, title, createdAt, createdAt)
	if err != nil {
		t.Fatalf("insert test media: %v", err)
	}
	return id
}
