package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/repository"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&domain.LoadRecord{}); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return New(db, repository.NewLoadRecordRepository(db)), db
}

func targetTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec(`CREATE TABLE widgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`).Error
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
}

func startedRecord(t *testing.T, lg *Ledger) *domain.LoadRecord {
	t.Helper()
	job := &domain.Job{ID: "job-1", Kind: "load"}
	rec, err := lg.Start(context.Background(), job, "cfg", "widgets.csv", "widgets", domain.LoadModeInsert, "tester")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return rec
}

func TestLifecycleAndSuccessRate(t *testing.T) {
	lg, _ := newTestLedger(t)
	ctx := context.Background()
	rec := startedRecord(t, lg)

	if rec.Status != domain.LoadStatusProcessing {
		t.Fatalf("status = %s, want processing", rec.Status)
	}

	if err := lg.Progress(ctx, rec, 10, 8, 0, 2); err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if err := lg.Progress(ctx, rec, 5, 5, 0, 0); err != nil {
		t.Fatalf("progress failed: %v", err)
	}

	start := time.Now().Add(-2 * time.Second)
	if err := lg.CompleteSuccessfully(ctx, rec, start, []int64{1, 2, 3}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if rec.Status != domain.LoadStatusCompleted {
		t.Errorf("status = %s, want completed", rec.Status)
	}
	if rec.TotalRows != 15 || rec.InsertedRows != 13 || rec.ErrorRows != 2 {
		t.Errorf("counters = %d/%d/%d, want 15/13/2", rec.TotalRows, rec.InsertedRows, rec.ErrorRows)
	}
	wantRate := float64(13) / 15 * 100
	if rec.SuccessRate != wantRate {
		t.Errorf("success rate = %v, want %v", rec.SuccessRate, wantRate)
	}
	if !rec.CanRollback() {
		t.Error("completed insert load with descriptor must be rollbackable")
	}

	info, err := rec.RollbackInfo()
	if err != nil {
		t.Fatalf("decoding descriptor: %v", err)
	}
	if len(info.InsertedIDs) != 3 {
		t.Errorf("captured ids = %v, want 3", info.InsertedIDs)
	}
}

func TestSecondTerminalTransitionRejected(t *testing.T) {
	lg, _ := newTestLedger(t)
	ctx := context.Background()
	rec := startedRecord(t, lg)
	start := time.Now()

	if err := lg.CompleteSuccessfully(ctx, rec, start, nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if err := lg.CompleteSuccessfully(ctx, rec, start, nil); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("second complete = %v, want ErrAlreadyFinal", err)
	}
	if err := lg.FailWithError(ctx, rec, start, errors.New("boom")); !errors.Is(err, ErrAlreadyFinal) {
		t.Errorf("fail after complete = %v, want ErrAlreadyFinal", err)
	}
}

func TestFailKeepsPartialCounters(t *testing.T) {
	lg, _ := newTestLedger(t)
	ctx := context.Background()
	rec := startedRecord(t, lg)

	if err := lg.Progress(ctx, rec, 10, 7, 0, 3); err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if err := lg.FailWithError(ctx, rec, time.Now(), errors.New("chunk 2 exploded")); err != nil {
		t.Fatalf("fail failed: %v", err)
	}

	if rec.Status != domain.LoadStatusFailed {
		t.Errorf("status = %s, want failed", rec.Status)
	}
	if rec.InsertedRows != 7 || rec.ErrorRows != 3 {
		t.Errorf("partial counters lost: %d/%d", rec.InsertedRows, rec.ErrorRows)
	}
	if rec.ErrorMessage == "" {
		t.Error("error message missing")
	}
	if rec.CanRollback() {
		t.Error("failed load must not be rollbackable")
	}
}

func TestRollbackByCapturedIDs(t *testing.T) {
	lg, db := newTestLedger(t)
	targetTable(t, db)
	ctx := context.Background()

	for _, name := range []string{"keep", "loaded1", "loaded2"} {
		if err := db.Exec(`INSERT INTO widgets (name) VALUES (?)`, name).Error; err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	rec := startedRecord(t, lg)
	if err := lg.Progress(ctx, rec, 2, 2, 0, 0); err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	// Rows 2 and 3 belong to this load; row 1 predates it.
	if err := lg.CompleteSuccessfully(ctx, rec, time.Now(), []int64{2, 3}); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	reversal, err := lg.ExecuteRollback(ctx, rec.ID, "tester")
	if err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if reversal.Mode != domain.LoadModeRollback {
		t.Errorf("reversal mode = %s, want rollback", reversal.Mode)
	}
	if reversal.TotalRows != 2 {
		t.Errorf("reversal rows = %d, want 2", reversal.TotalRows)
	}

	var names []string
	if err := db.Raw(`SELECT name FROM widgets ORDER BY id`).Scan(&names).Error; err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if len(names) != 1 || names[0] != "keep" {
		t.Errorf("surviving rows = %v, want only the pre-existing one", names)
	}

	// The descriptor is spent: a second rollback is illegal.
	if _, err := lg.ExecuteRollback(ctx, rec.ID, "tester"); !errors.Is(err, ErrNotRollbackable) {
		t.Errorf("second rollback = %v, want ErrNotRollbackable", err)
	}
}

func TestRollbackRequiresCompletedInsert(t *testing.T) {
	lg, db := newTestLedger(t)
	targetTable(t, db)
	ctx := context.Background()

	job := &domain.Job{ID: "job-2", Kind: "load"}
	rec, err := lg.Start(ctx, job, "cfg", "widgets.csv", "widgets", domain.LoadModeUpdate, "")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := lg.CompleteSuccessfully(ctx, rec, time.Now(), nil); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := lg.ExecuteRollback(ctx, rec.ID, ""); !errors.Is(err, ErrNotRollbackable) {
		t.Errorf("rollback of update load = %v, want ErrNotRollbackable", err)
	}
}
