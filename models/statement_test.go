package models

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// The claim UPDATE filters on claimableStatuses directly; it must stay in
// lockstep with StatementStatus.Claimable or a status could become claimable
// in one path but not the other.
func TestClaimableStatusesMatchPredicate(t *testing.T) {
	all := []StatementStatus{
		StatementStatusPending,
		StatementStatusQueued,
		StatementStatusProcessing,
		StatementStatusExtracted,
		StatementStatusConfirmed,
		StatementStatusRejected,
		StatementStatusFailed,
	}

	inList := make(map[StatementStatus]bool, len(claimableStatuses))
	for _, s := range claimableStatuses {
		inList[s] = true
	}

	for _, s := range all {
		if s.Claimable() != inList[s] {
			t.Fatalf("claimable mismatch for %s: predicate=%v list=%v", s, s.Claimable(), inList[s])
		}
	}
	if len(claimableStatuses) != 3 {
		t.Fatalf("claimableStatuses has %d entries, want 3", len(claimableStatuses))
	}
}

// openStatementTestDB builds an in-memory sqlite database with just the
// columns the claim and sweep statements touch. MySQL enum column types do
// not migrate to sqlite, so the tables are created by hand.
func openStatementTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A second connection would see its own empty in-memory database.
	sqlDB.SetMaxOpenConns(1)

	ddl := []string{
		`CREATE TABLE statements (
			id INTEGER PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'Pending',
			mode TEXT NOT NULL DEFAULT 'Full',
			image_object_key TEXT NOT NULL DEFAULT '',
			locked_by TEXT,
			lock_expires_at DATETIME,
			retry_count INTEGER NOT NULL DEFAULT 0,
			next_retry_at DATETIME,
			error_message TEXT,
			error_stage TEXT,
			failed_at DATETIME,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE statement_line_items (
			id INTEGER PRIMARY KEY,
			statement_id INTEGER NOT NULL,
			line_no INTEGER NOT NULL DEFAULT 0,
			name TEXT,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create table: %v", err)
		}
	}
	return db
}

func seedStatement(t *testing.T, db *gorm.DB, id int, status StatementStatus, createdAt time.Time) {
	t.Helper()
	err := db.Exec(
		`INSERT INTO statements (id, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, status, createdAt, createdAt,
	).Error
	if err != nil {
		t.Fatalf("seed statement %d: %v", id, err)
	}
}

func TestClaimStatement_ExactlyOneWinner(t *testing.T) {
	db := openStatementTestDB(t)
	ctx := context.Background()
	seedStatement(t, db, 1, StatementStatusPending, time.Now().UTC())

	first, err := ClaimStatement(ctx, db, 1, "worker-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil {
		t.Fatal("first claim must win")
	}
	if first.Status != StatementStatusProcessing {
		t.Fatalf("claimed statement status %s, want Processing", first.Status)
	}
	if first.LockedBy == nil || *first.LockedBy != "worker-a" {
		t.Fatalf("claimed statement locked_by %v, want worker-a", first.LockedBy)
	}

	second, err := ClaimStatement(ctx, db, 1, "worker-b", 10*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second != nil {
		t.Fatal("second concurrent claim on the same id must lose")
	}
}

func TestClaimStatement_ExpiredLockIsReclaimable(t *testing.T) {
	db := openStatementTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// A dead worker's claim: Failed with an expired lock and elapsed backoff.
	seedStatement(t, db, 1, StatementStatusFailed, now.Add(-time.Hour))
	err := db.Exec(
		`UPDATE statements SET locked_by = ?, lock_expires_at = ?, next_retry_at = ? WHERE id = 1`,
		"worker-dead", now.Add(-time.Minute), now.Add(-time.Minute),
	).Error
	if err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	stmt, err := ClaimStatement(ctx, db, 1, "worker-b", 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if stmt == nil {
		t.Fatal("expired lock must be reclaimable")
	}
	if stmt.LockedBy == nil || *stmt.LockedBy != "worker-b" {
		t.Fatalf("locked_by %v, want worker-b", stmt.LockedBy)
	}
}

func TestClaimStatement_BackoffGates(t *testing.T) {
	db := openStatementTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedStatement(t, db, 1, StatementStatusFailed, now.Add(-time.Hour))
	err := db.Exec(`UPDATE statements SET next_retry_at = ? WHERE id = 1`, now.Add(time.Hour)).Error
	if err != nil {
		t.Fatalf("seed backoff: %v", err)
	}

	stmt, err := ClaimStatement(ctx, db, 1, "worker-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if stmt != nil {
		t.Fatal("a statement inside its retry backoff must not be claimable")
	}
}

func TestClaimNextStatement_OldestDueFirst(t *testing.T) {
	db := openStatementTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seedStatement(t, db, 1, StatementStatusPending, now.Add(-time.Minute))
	seedStatement(t, db, 2, StatementStatusPending, now.Add(-time.Hour))

	first, err := ClaimNextStatement(ctx, db, "worker-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first == nil || first.ID != 2 {
		t.Fatalf("expected the older statement 2 first, got %+v", first)
	}

	second, err := ClaimNextStatement(ctx, db, "worker-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second == nil || second.ID != 1 {
		t.Fatalf("expected statement 1 next, got %+v", second)
	}

	third, err := ClaimNextStatement(ctx, db, "worker-a", 10*time.Minute)
	if err != nil {
		t.Fatalf("third claim: %v", err)
	}
	if third != nil {
		t.Fatalf("queue drained, expected no claim, got %+v", third)
	}
}

func TestSweepStaleProcessing(t *testing.T) {
	db := openStatementTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Stale: Processing with an expired lock. Fresh: Processing, lock alive.
	seedStatement(t, db, 1, StatementStatusProcessing, now.Add(-time.Hour))
	seedStatement(t, db, 2, StatementStatusProcessing, now.Add(-time.Minute))
	err := db.Exec(`UPDATE statements SET locked_by = 'worker-dead', lock_expires_at = ? WHERE id = 1`,
		now.Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("seed stale: %v", err)
	}
	err = db.Exec(`UPDATE statements SET locked_by = 'worker-live', lock_expires_at = ? WHERE id = 2`,
		now.Add(time.Hour)).Error
	if err != nil {
		t.Fatalf("seed live: %v", err)
	}

	swept, err := SweepStaleProcessing(ctx, db, 10*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept %d statements, want 1", swept)
	}

	var stale Statement
	if err := db.Take(&stale, 1).Error; err != nil {
		t.Fatalf("reload stale: %v", err)
	}
	if stale.Status != StatementStatusFailed {
		t.Fatalf("stale status %s, want Failed", stale.Status)
	}
	if stale.RetryCount != 1 {
		t.Fatalf("stale retry_count %d, want 1", stale.RetryCount)
	}
	if stale.LockedBy != nil {
		t.Fatalf("stale locked_by %v, want released", stale.LockedBy)
	}

	var live Statement
	if err := db.Take(&live, 2).Error; err != nil {
		t.Fatalf("reload live: %v", err)
	}
	if live.Status != StatementStatusProcessing {
		t.Fatalf("live status %s, want Processing", live.Status)
	}
}
