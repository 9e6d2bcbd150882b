// Package integration contains tests that verify components against real
// external backends: the document catalog against PostgreSQL and the OCR
// cache store against Redis. Each test skips itself when its backend is
// unreachable, so the suite is safe to run anywhere.
package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/ashfaque/local-search-in-scanned-pdf/internal/catalog"
	"github.com/ashfaque/local-search-in-scanned-pdf/internal/document"
	"github.com/ashfaque/local-search-in-scanned-pdf/pkg/config"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// skipIfNoPostgres skips the test when PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *catalog.Postgres {
	t.Helper()
	cat, err := catalog.NewPostgres(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "pdfsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "pdfsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func testRecord(docID string) catalog.Record {
	return catalog.Record{
		DocID:         docID,
		Source:        "/archive/" + docID,
		Size:          4096,
		ModTime:       time.Now().UTC().Truncate(time.Second),
		ContentDigest: "sha256:feed",
		State:         document.StateReady,
		PagesOK:       3,
		PagesFailed:   1,
		Engine:        "tesseract/5.3.0",
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

// TestPostgresCatalogRoundTrip exercises the full record lifecycle against a
// real database: upsert, read back, state change, list, delete.
func TestPostgresCatalogRoundTrip(t *testing.T) {
	cat := skipIfNoPostgres(t)
	ctx := context.Background()

	docID := fmt.Sprintf("it-%d.pdf", time.Now().UnixNano())
	rec := testRecord(docID)
	t.Cleanup(func() { cat.Delete(ctx, docID) })

	if err := cat.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, found, err := cat.Get(ctx, docID)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if got.Source != rec.Source || got.Size != rec.Size || got.State != rec.State {
		t.Errorf("Get returned %+v, want fields of %+v", got, rec)
	}
	if !got.ModTime.Equal(rec.ModTime) {
		t.Errorf("ModTime = %v, want %v", got.ModTime, rec.ModTime)
	}
	if got.PagesOK != 3 || got.PagesFailed != 1 {
		t.Errorf("page counts = %d/%d, want 3/1", got.PagesOK, got.PagesFailed)
	}

	if err := cat.SetState(ctx, docID, document.StateFailed, "pdftoppm exited 1"); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	got, _, err = cat.Get(ctx, docID)
	if err != nil {
		t.Fatalf("Get after SetState: %v", err)
	}
	if got.State != document.StateFailed || got.LastError != "pdftoppm exited 1" {
		t.Errorf("after SetState: state=%s lastError=%q", got.State, got.LastError)
	}

	recs, err := cat.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	listed := false
	for _, r := range recs {
		if r.DocID == docID {
			listed = true
			break
		}
	}
	if !listed {
		t.Error("upserted record missing from List")
	}

	if err := cat.Delete(ctx, docID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, found, _ := cat.Get(ctx, docID); found {
		t.Error("record still present after Delete")
	}
}

// TestPostgresCatalogUpsertPreservesCreatedAt verifies that re-upserting a
// document keeps its original creation time while refreshing UpdatedAt.
func TestPostgresCatalogUpsertPreservesCreatedAt(t *testing.T) {
	cat := skipIfNoPostgres(t)
	ctx := context.Background()

	docID := fmt.Sprintf("it-created-%d.pdf", time.Now().UnixNano())
	t.Cleanup(func() { cat.Delete(ctx, docID) })

	if err := cat.Upsert(ctx, testRecord(docID)); err != nil {
		t.Fatalf("first Upsert: %v", err)
	}
	first, _, err := cat.Get(ctx, docID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	rec := testRecord(docID)
	rec.Size = 8192
	if err := cat.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	second, _, err := cat.Get(ctx, docID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt changed on re-upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.Size != 8192 {
		t.Errorf("Size = %d, want 8192", second.Size)
	}
}

// TestPostgresCatalogDeleteAbsent verifies deletes are idempotent.
func TestPostgresCatalogDeleteAbsent(t *testing.T) {
	cat := skipIfNoPostgres(t)
	ctx := context.Background()

	if err := cat.Delete(ctx, "never-existed.pdf"); err != nil {
		t.Errorf("deleting an absent record: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Env helpers
// ---------------------------------------------------------------------------

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
