// README: PostgreSQL fixture for store tests; skipped unless TWENDE_TEST_DSN is set.
package testdb

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
)

const truncateAll = "TRUNCATE TABLE error_logs, system_messages, bulk_messages, assist_quota, ride_messages, " +
	"payment_response_logs, payment_responses, payments, ratings, ride_logs, rides, location_logs, users"

// Open connects to TWENDE_TEST_DSN, applies the schema and empties every
// table except fare_rates. The pool is closed when the test ends.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TWENDE_TEST_DSN")
	if dsn == "" {
		t.Skip("TWENDE_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, truncateAll); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}

// SeedUsers inserts available users. Ids starting with "d" are drivers.
func SeedUsers(t *testing.T, db *pgxpool.Pool, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := db.Exec(context.Background(), `
			INSERT INTO users (id, username, phone, is_driver, state)
			VALUES ($1, $1, '254700000000', $2, 'available')`,
			id, strings.HasPrefix(id, "d"),
		)
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		stmt := strings.TrimSpace(p)
		if stmt == "" {
			continue
		}
		out = append(out, stmt)
	}
	return out
}
