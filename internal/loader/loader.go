// Package loader writes chunks into target tables. Each chunk is one
// database transaction with a savepoint per row, so a rejected row is
// counted and skipped while the rest of the chunk commits. The three
// modes differ only in how a row reaches the table (append,
// key-equality update, upsert).
package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/logger"
)

// ConfigError marks a misconfigured load: the whole load must fail
// before any row is written, as opposed to per-row errors which are
// counted and skipped.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ChunkResult is the per-chunk accounting. Inserted + Updated + Errors
// always equals the number of rows handed in.
type ChunkResult struct {
	Inserted int
	Updated  int
	Errors   int
	// InsertedIDs holds the identifiers of appended rows when the target
	// table carries an id column; used to build the rollback descriptor.
	InsertedIDs []int64
}

// Loader writes chunks into target tables through one gorm handle.
// Safe for concurrent use: concurrent loads into the same table
// serialize only around the destructive truncate step.
type Loader struct {
	db *gorm.DB

	mu         sync.Mutex
	tableLocks map[string]*sync.Mutex
}

// New creates a Loader over the given database handle.
func New(db *gorm.DB) *Loader {
	return &Loader{db: db, tableLocks: make(map[string]*sync.Mutex)}
}

func (l *Loader) tableLock(table string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.tableLocks[table]
	if !ok {
		lock = &sync.Mutex{}
		l.tableLocks[table] = lock
	}
	return lock
}

// rowSavepoint bounds each row write inside the chunk transaction.
const rowSavepoint = "chunk_row"

// LoadChunk writes one chunk. firstChunk selects the destructive
// truncate in insert mode; it must be true exactly once per load.
// Rows that cannot be written (a null in a non-nullable column, an
// update key that matches nothing, or a database rejection such as a
// constraint violation) are counted as errors and skipped; the rest of
// the chunk still commits.
func (l *Loader) LoadChunk(ctx context.Context, schema *domain.TableSchema, chunk *domain.Chunk, mode domain.LoadMode, firstChunk bool) (*ChunkResult, error) {
	if !mode.Valid() {
		return nil, configErrorf("unsupported load mode %q", mode)
	}
	cols, err := targetColumns(schema, chunk)
	if err != nil {
		return nil, err
	}

	var keys []string
	if mode == domain.LoadModeUpdate || mode == domain.LoadModeSync {
		keys = keyColumns(schema, cols)
		if len(keys) == 0 {
			return nil, configErrorf("table %s has no key column among the mapped columns; %s mode needs one", schema.Table, mode)
		}
		if len(nonKey(cols, keys)) == 0 {
			return nil, configErrorf("mapping for table %s has only key columns; nothing to %s", schema.Table, mode)
		}
	}

	hasID := schema.Column("id") != nil
	result := &ChunkResult{}
	start := time.Now()

	// The truncate commits on its own before any chunk writes; a chunk
	// failure afterwards leaves the table cleared.
	if mode == domain.LoadModeInsert && firstChunk {
		lock := l.tableLock(schema.Table)
		lock.Lock()
		err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return l.truncate(ctx, tx, schema.Table)
		})
		lock.Unlock()
		if err != nil {
			return nil, err
		}
	}

	err = l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range chunk.Rows {
			if col := nullViolation(schema, cols, row); col != "" {
				result.Errors++
				continue
			}
			if err := tx.SavePoint(rowSavepoint).Error; err != nil {
				return err
			}
			inserted, updated, id, err := l.writeRow(tx, schema.Table, cols, keys, row, mode, hasID)
			if err != nil {
				if rbErr := tx.RollbackTo(rowSavepoint).Error; rbErr != nil {
					return rbErr
				}
				result.Errors++
				continue
			}
			switch {
			case inserted:
				result.Inserted++
				if hasID && mode == domain.LoadModeInsert {
					result.InsertedIDs = append(result.InsertedIDs, id)
				}
			case updated:
				result.Updated++
			default:
				// Update-mode row whose key matched nothing.
				result.Errors++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent:  "loader",
		logger.FieldTable:      schema.Table,
		logger.FieldRows:       chunk.Len(),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"inserted":             result.Inserted,
		"updated":              result.Updated,
		"errors":               result.Errors,
	}).Debug("chunk written")
	return result, nil
}

// writeRow dispatches one row to its mode's statement. inserted and
// updated report what happened; both false with a nil error means an
// update-mode key matched no existing row.
func (l *Loader) writeRow(tx *gorm.DB, table string, cols, keys []string, row domain.Row, mode domain.LoadMode, wantID bool) (inserted, updated bool, id int64, err error) {
	switch mode {
	case domain.LoadModeInsert:
		id, err = l.insertRow(tx, table, cols, row, wantID)
		if err != nil {
			return false, false, 0, err
		}
		return true, false, id, nil
	case domain.LoadModeUpdate:
		updated, err = l.updateRow(tx, table, cols, keys, row)
		if err != nil {
			return false, false, 0, err
		}
		return false, updated, 0, nil
	default:
		inserted, err = l.syncRow(tx, table, cols, keys, row)
		if err != nil {
			return false, false, 0, err
		}
		return inserted, !inserted, 0, nil
	}
}

// truncate empties the target table before the first insert-mode chunk.
// On postgres, triggers are disabled around the truncate so foreign-key
// triggers do not fire, and re-enabled even when the truncate fails.
func (l *Loader) truncate(ctx context.Context, tx *gorm.DB, table string) error {
	log := logger.FromContext(ctx).WithFields(logger.Fields{
		logger.FieldComponent: "loader",
		logger.FieldTable:     table,
	})
	if tx.Dialector.Name() != "postgres" {
		log.Info("clearing target table")
		return tx.Exec(fmt.Sprintf(`DELETE FROM %s`, quoteIdent(table))).Error
	}

	if err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s DISABLE TRIGGER ALL`, quoteIdent(table))).Error; err != nil {
		return fmt.Errorf("disabling triggers on %s: %w", table, err)
	}
	defer func() {
		if err := tx.Exec(fmt.Sprintf(`ALTER TABLE %s ENABLE TRIGGER ALL`, quoteIdent(table))).Error; err != nil {
			log.WithError(err).Warn("re-enabling triggers failed")
		}
	}()

	if err := tx.Exec(`SET CONSTRAINTS ALL DEFERRED`).Error; err != nil {
		return fmt.Errorf("deferring constraints: %w", err)
	}
	log.Info("truncating target table")
	if err := tx.Exec(fmt.Sprintf(`TRUNCATE TABLE %s CASCADE`, quoteIdent(table))).Error; err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	return nil
}

func (l *Loader) insertRow(tx *gorm.DB, table string, cols []string, row domain.Row, wantID bool) (int64, error) {
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	values := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
		marks[i] = "?"
		values[i] = row[c]
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		quoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	if !wantID {
		if err := tx.Exec(stmt, values...).Error; err != nil {
			return 0, fmt.Errorf("inserting into %s: %w", table, err)
		}
		return 0, nil
	}

	var id int64
	if err := tx.Raw(stmt+` RETURNING id`, values...).Scan(&id).Error; err != nil {
		return 0, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return id, nil
}

func (l *Loader) updateRow(tx *gorm.DB, table string, cols, keys []string, row domain.Row) (bool, error) {
	sets := nonKey(cols, keys)
	assignments := make([]string, len(sets))
	values := make([]any, 0, len(cols))
	for i, c := range sets {
		assignments[i] = quoteIdent(c) + " = ?"
		values = append(values, row[c])
	}
	where, whereVals := keyPredicate(keys, row)
	values = append(values, whereVals...)

	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE %s`,
		quoteIdent(table), strings.Join(assignments, ", "), where)
	res := tx.Exec(stmt, values...)
	if res.Error != nil {
		return false, fmt.Errorf("updating %s: %w", table, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// syncRow upserts: existing keys are updated, missing keys inserted.
// Returns true when the row was inserted.
func (l *Loader) syncRow(tx *gorm.DB, table string, cols, keys []string, row domain.Row) (bool, error) {
	where, whereVals := keyPredicate(keys, row)
	var count int64
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE %s`, quoteIdent(table), where)
	if err := tx.Raw(stmt, whereVals...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("probing %s: %w", table, err)
	}
	if count > 0 {
		if _, err := l.updateRow(tx, table, cols, keys, row); err != nil {
			return false, err
		}
		return false, nil
	}
	if _, err := l.insertRow(tx, table, cols, row, false); err != nil {
		return false, err
	}
	return true, nil
}

// targetColumns intersects the chunk columns with the table's writable
// columns, keeping chunk order. An empty intersection is a config error.
func targetColumns(schema *domain.TableSchema, chunk *domain.Chunk) ([]string, error) {
	writable := make(map[string]bool)
	for _, col := range schema.WritableColumns() {
		writable[col.Name] = true
	}
	var cols []string
	for _, c := range chunk.Columns {
		if writable[c] {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		return nil, configErrorf("no mapped column matches a writable column of table %s", schema.Table)
	}
	return cols, nil
}

// keyColumns returns the table's key columns present in the mapped set,
// in a stable order.
func keyColumns(schema *domain.TableSchema, cols []string) []string {
	mapped := make(map[string]bool, len(cols))
	for _, c := range cols {
		mapped[c] = true
	}
	var keys []string
	for _, k := range schema.KeyColumns() {
		if mapped[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func nonKey(cols, keys []string) []string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var out []string
	for _, c := range cols {
		if !keySet[c] {
			out = append(out, c)
		}
	}
	return out
}

// nullViolation returns the first mapped non-nullable column that the
// row leaves null, or "" when the row is writable.
func nullViolation(schema *domain.TableSchema, cols []string, row domain.Row) string {
	for _, c := range cols {
		col := schema.Column(c)
		if col == nil || col.Nullable {
			continue
		}
		if isNullValue(row[c]) {
			return c
		}
	}
	return ""
}

func isNullValue(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func keyPredicate(keys []string, row domain.Row) (string, []any) {
	parts := make([]string, len(keys))
	values := make([]any, len(keys))
	for i, k := range keys {
		parts[i] = quoteIdent(k) + " = ?"
		values[i] = row[k]
	}
	return strings.Join(parts, " AND "), values
}

// quoteIdent double-quotes an identifier; valid for postgres and sqlite.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
