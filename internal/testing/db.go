// Package testing provides fixtures, mocks and database helpers shared by package tests.
package testing

import (
	"fmt"
	"strings"
	"testing"

	"github.com/aristath/lpsentinel/internal/database"
)

// NewTestDB creates an isolated in-memory SQLite database with the named schema applied.
// Supported schema names: "positions", "history". Unknown names yield an empty database.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	// Each test gets its own named in-memory database
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, sanitize(t.Name()))
	db, err := database.New(database.Config{
		Path:    dsn,
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})
	return db
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
