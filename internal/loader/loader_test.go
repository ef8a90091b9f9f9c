package loader

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/schema"
)

func newTestDB(t *testing.T) *gorm.DB {
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
	return db
}

func describe(t *testing.T, db *gorm.DB, table string) *domain.TableSchema {
	t.Helper()
	s, err := schema.NewProvider(db).Describe(context.Background(), table)
	if err != nil {
		t.Fatalf("describing %s: %v", table, err)
	}
	return s
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	if err := db.Raw("SELECT COUNT(*) FROM " + table).Scan(&n).Error; err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

func peopleTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec(`CREATE TABLE people (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		name TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`).Error
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
}

func productsTable(t *testing.T, db *gorm.DB) {
	t.Helper()
	err := db.Exec(`CREATE TABLE products (
		sku TEXT PRIMARY KEY,
		name TEXT,
		price REAL
	)`).Error
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
}

func TestInsertCountsNullViolationsAsErrors(t *testing.T) {
	db := newTestDB(t)
	peopleTable(t, db)
	ld := New(db)

	chunk := &domain.Chunk{
		Columns: []string{"email", "name"},
		Rows: []domain.Row{
			{"email": "a@x.com", "name": "Ana"},
			{"email": nil, "name": "Sin Correo"},
			{"email": "b@x.com", "name": "Beto"},
		},
	}
	res, err := ld.LoadChunk(context.Background(), describe(t, db, "people"), chunk, domain.LoadModeInsert, true)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if res.Inserted != 2 || res.Errors != 1 || res.Updated != 0 {
		t.Errorf("got inserted=%d updated=%d errors=%d, want 2/0/1", res.Inserted, res.Updated, res.Errors)
	}
	if res.Inserted+res.Updated+res.Errors != chunk.Len() {
		t.Error("accounting does not cover every row")
	}
	if len(res.InsertedIDs) != 2 {
		t.Errorf("expected 2 captured ids, got %v", res.InsertedIDs)
	}
	if n := countRows(t, db, "people"); n != 2 {
		t.Errorf("table holds %d rows, want 2", n)
	}
}

func TestInsertCountsConstraintViolationsAsErrors(t *testing.T) {
	db := newTestDB(t)
	err := db.Exec(`CREATE TABLE accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		name TEXT
	)`).Error
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	ld := New(db)

	chunk := &domain.Chunk{
		Columns: []string{"email", "name"},
		Rows: []domain.Row{
			{"email": "a@x.com", "name": "Ana"},
			{"email": "a@x.com", "name": "Duplicada"},
			{"email": "b@x.com", "name": "Beto"},
		},
	}
	res, err := ld.LoadChunk(context.Background(), describe(t, db, "accounts"), chunk, domain.LoadModeInsert, true)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if res.Inserted != 2 || res.Errors != 1 || res.Updated != 0 {
		t.Errorf("got inserted=%d updated=%d errors=%d, want 2/0/1", res.Inserted, res.Updated, res.Errors)
	}
	if len(res.InsertedIDs) != 2 {
		t.Errorf("expected 2 captured ids, got %v", res.InsertedIDs)
	}
	// The rejected row must not take the accepted ones down with it.
	if n := countRows(t, db, "accounts"); n != 2 {
		t.Errorf("table holds %d rows, want 2", n)
	}
}

func TestInsertTruncateCommitsBeforeChunkWrites(t *testing.T) {
	db := newTestDB(t)
	peopleTable(t, db)
	if err := db.Exec(`INSERT INTO people (email, name) VALUES ('old@x.com', 'Old')`).Error; err != nil {
		t.Fatalf("seeding: %v", err)
	}
	s := describe(t, db, "people")

	// Force the chunk transaction itself to roll back on any insert.
	trigger := `CREATE TRIGGER people_block BEFORE INSERT ON people
		BEGIN SELECT RAISE(ROLLBACK, 'blocked'); END`
	if err := db.Exec(trigger).Error; err != nil {
		t.Fatalf("creating trigger: %v", err)
	}
	ld := New(db)

	chunk := &domain.Chunk{
		Columns: []string{"email"},
		Rows:    []domain.Row{{"email": "new@x.com"}},
	}
	if _, err := ld.LoadChunk(context.Background(), s, chunk, domain.LoadModeInsert, true); err == nil {
		t.Fatal("expected chunk to fail")
	}

	// The clean-out committed on its own, so the failed chunk still
	// leaves the table cleared.
	if n := countRows(t, db, "people"); n != 0 {
		t.Errorf("table holds %d rows after failed first chunk, want 0", n)
	}
}

func TestInsertFirstChunkClearsTable(t *testing.T) {
	db := newTestDB(t)
	peopleTable(t, db)
	if err := db.Exec(`INSERT INTO people (email, name) VALUES ('old@x.com', 'Old')`).Error; err != nil {
		t.Fatalf("seeding: %v", err)
	}
	ld := New(db)
	s := describe(t, db, "people")

	first := &domain.Chunk{
		Columns: []string{"email"},
		Rows:    []domain.Row{{"email": "new@x.com"}},
	}
	if _, err := ld.LoadChunk(context.Background(), s, first, domain.LoadModeInsert, true); err != nil {
		t.Fatalf("first chunk failed: %v", err)
	}
	if n := countRows(t, db, "people"); n != 1 {
		t.Fatalf("expected pre-existing rows gone, have %d", n)
	}

	// A later chunk must not clear again.
	second := &domain.Chunk{
		Columns: []string{"email"},
		Rows:    []domain.Row{{"email": "more@x.com"}},
	}
	if _, err := ld.LoadChunk(context.Background(), s, second, domain.LoadModeInsert, false); err != nil {
		t.Fatalf("second chunk failed: %v", err)
	}
	if n := countRows(t, db, "people"); n != 2 {
		t.Errorf("expected 2 rows after second chunk, have %d", n)
	}
}

func TestUpdateByKeyMissingKeyIsError(t *testing.T) {
	db := newTestDB(t)
	productsTable(t, db)
	seed := `INSERT INTO products (sku, name, price) VALUES ('A1', 'Widget', 10), ('B2', 'Gadget', 20)`
	if err := db.Exec(seed).Error; err != nil {
		t.Fatalf("seeding: %v", err)
	}
	ld := New(db)

	chunk := &domain.Chunk{
		Columns: []string{"sku", "price"},
		Rows: []domain.Row{
			{"sku": "A1", "price": 12.5},
			{"sku": "ZZ", "price": 99.0}, // no such key
		},
	}
	res, err := ld.LoadChunk(context.Background(), describe(t, db, "products"), chunk, domain.LoadModeUpdate, true)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if res.Updated != 1 || res.Errors != 1 || res.Inserted != 0 {
		t.Errorf("got inserted=%d updated=%d errors=%d, want 0/1/1", res.Inserted, res.Updated, res.Errors)
	}

	var price float64
	if err := db.Raw(`SELECT price FROM products WHERE sku = 'A1'`).Scan(&price).Error; err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if price != 12.5 {
		t.Errorf("price = %v, want 12.5", price)
	}
	// Update mode never truncates, existing unrelated rows survive.
	if n := countRows(t, db, "products"); n != 2 {
		t.Errorf("table holds %d rows, want 2", n)
	}
}

func TestSyncUpserts(t *testing.T) {
	db := newTestDB(t)
	productsTable(t, db)
	if err := db.Exec(`INSERT INTO products (sku, name, price) VALUES ('A1', 'Widget', 10)`).Error; err != nil {
		t.Fatalf("seeding: %v", err)
	}
	ld := New(db)

	chunk := &domain.Chunk{
		Columns: []string{"sku", "name", "price"},
		Rows: []domain.Row{
			{"sku": "A1", "name": "Widget v2", "price": 11.0},
			{"sku": "C3", "name": "Doohickey", "price": 5.0},
		},
	}
	res, err := ld.LoadChunk(context.Background(), describe(t, db, "products"), chunk, domain.LoadModeSync, true)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 1 || res.Errors != 0 {
		t.Errorf("got inserted=%d updated=%d errors=%d, want 1/1/0", res.Inserted, res.Updated, res.Errors)
	}

	var name string
	if err := db.Raw(`SELECT name FROM products WHERE sku = 'A1'`).Scan(&name).Error; err != nil {
		t.Fatalf("reading back: %v", err)
	}
	if name != "Widget v2" {
		t.Errorf("name = %q, want updated value", name)
	}
	if n := countRows(t, db, "products"); n != 2 {
		t.Errorf("table holds %d rows, want 2", n)
	}
}

func TestConfigErrors(t *testing.T) {
	db := newTestDB(t)
	peopleTable(t, db)
	productsTable(t, db)
	ld := New(db)
	ctx := context.Background()

	t.Run("no mapped column matches", func(t *testing.T) {
		chunk := &domain.Chunk{Columns: []string{"nope"}, Rows: []domain.Row{{"nope": "x"}}}
		_, err := ld.LoadChunk(ctx, describe(t, db, "people"), chunk, domain.LoadModeInsert, true)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})

	t.Run("update without key column", func(t *testing.T) {
		// people's key is the bookkeeping id, never mapped.
		chunk := &domain.Chunk{Columns: []string{"email", "name"}, Rows: []domain.Row{{"email": "a@x.com"}}}
		_, err := ld.LoadChunk(ctx, describe(t, db, "people"), chunk, domain.LoadModeUpdate, true)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})

	t.Run("update with only key columns", func(t *testing.T) {
		chunk := &domain.Chunk{Columns: []string{"sku"}, Rows: []domain.Row{{"sku": "A1"}}}
		_, err := ld.LoadChunk(ctx, describe(t, db, "products"), chunk, domain.LoadModeUpdate, true)
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("expected ConfigError, got %v", err)
		}
	})
}
