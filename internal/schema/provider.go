package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresvega/loaderd/internal/domain"
	"gorm.io/gorm"
)

// Provider discovers target table schemas at runtime. Discovery is a
// pure read: the result is fetched once per job and threaded through the
// loader, never cached across jobs.
type Provider struct {
	db *gorm.DB
}

// NewProvider creates a schema provider over the given database handle.
func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

// Describe returns the column metadata of a table, with key columns
// resolved from the primary key or, failing that, the first unique index.
func (p *Provider) Describe(ctx context.Context, table string) (*domain.TableSchema, error) {
	switch p.db.Dialector.Name() {
	case "postgres":
		return p.describePostgres(ctx, table)
	default:
		return p.describeSQLite(ctx, table)
	}
}

func (p *Provider) describePostgres(ctx context.Context, table string) (*domain.TableSchema, error) {
	type colRow struct {
		ColumnName string
		DataType   string
		IsNullable string
	}
	var cols []colRow
	err := p.db.WithContext(ctx).Raw(`
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_name = ? AND table_schema = 'public'
		ORDER BY ordinal_position`, table).Scan(&cols).Error
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}

	keys, err := p.postgresKeyColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}

	s := &domain.TableSchema{Table: table}
	for _, c := range cols {
		s.Columns = append(s.Columns, domain.Column{
			Name:     c.ColumnName,
			Kind:     kindFromPostgres(c.DataType),
			Nullable: c.IsNullable == "YES",
			IsKey:    keySet[c.ColumnName],
		})
	}
	return s, nil
}

// postgresKeyColumns resolves the primary key columns, falling back to
// the first unique index when the table has no primary key.
func (p *Provider) postgresKeyColumns(ctx context.Context, table string) ([]string, error) {
	var keys []string
	err := p.db.WithContext(ctx).Raw(`
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = ?::regclass AND i.indisprimary`, table).Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("resolving primary key of %s: %w", table, err)
	}
	if len(keys) > 0 {
		return keys, nil
	}

	err = p.db.WithContext(ctx).Raw(`
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = ?::regclass AND i.indisunique
		LIMIT 1`, table).Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("resolving unique index of %s: %w", table, err)
	}
	return keys, nil
}

func (p *Provider) describeSQLite(ctx context.Context, table string) (*domain.TableSchema, error) {
	type pragmaRow struct {
		Name    string
		Type    string
		NotNull int
		Pk      int
	}
	var cols []pragmaRow
	err := p.db.WithContext(ctx).
		Raw(fmt.Sprintf(`PRAGMA table_info(%q)`, table)).Scan(&cols).Error
	if err != nil {
		return nil, fmt.Errorf("describing table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", table)
	}

	s := &domain.TableSchema{Table: table}
	hasPk := false
	for _, c := range cols {
		if c.Pk > 0 {
			hasPk = true
		}
		s.Columns = append(s.Columns, domain.Column{
			Name:     c.Name,
			Kind:     kindFromSQLite(c.Type),
			Nullable: c.NotNull == 0 && c.Pk == 0,
			IsKey:    c.Pk > 0,
		})
	}
	if !hasPk {
		if err := p.sqliteUniqueKeys(ctx, table, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// sqliteUniqueKeys marks the columns of the first unique index as keys.
func (p *Provider) sqliteUniqueKeys(ctx context.Context, table string, s *domain.TableSchema) error {
	type indexRow struct {
		Name   string
		Unique int
	}
	var indexes []indexRow
	err := p.db.WithContext(ctx).
		Raw(fmt.Sprintf(`PRAGMA index_list(%q)`, table)).Scan(&indexes).Error
	if err != nil {
		return fmt.Errorf("listing indexes of %s: %w", table, err)
	}
	for _, idx := range indexes {
		if idx.Unique == 0 {
			continue
		}
		var idxCols []struct{ Name string }
		err := p.db.WithContext(ctx).
			Raw(fmt.Sprintf(`PRAGMA index_info(%q)`, idx.Name)).Scan(&idxCols).Error
		if err != nil {
			return fmt.Errorf("reading index %s: %w", idx.Name, err)
		}
		for _, ic := range idxCols {
			if col := s.Column(ic.Name); col != nil {
				col.IsKey = true
			}
		}
		return nil
	}
	return nil
}

func kindFromPostgres(dataType string) domain.ColumnKind {
	switch dataType {
	case "character varying", "character", "text":
		return domain.ColumnKindText
	case "integer", "bigint", "smallint", "numeric", "real", "double precision":
		return domain.ColumnKindNumber
	case "timestamp without time zone", "timestamp with time zone", "date", "time without time zone":
		return domain.ColumnKindDatetime
	case "boolean":
		return domain.ColumnKindBoolean
	default:
		return domain.ColumnKindOther
	}
}

func kindFromSQLite(declType string) domain.ColumnKind {
	t := strings.ToUpper(declType)
	switch {
	case strings.Contains(t, "INT"), strings.Contains(t, "REAL"),
		strings.Contains(t, "NUMERIC"), strings.Contains(t, "DECIMAL"),
		strings.Contains(t, "FLOAT"), strings.Contains(t, "DOUBLE"):
		return domain.ColumnKindNumber
	case strings.Contains(t, "CHAR"), strings.Contains(t, "TEXT"), strings.Contains(t, "CLOB"):
		return domain.ColumnKindText
	case strings.Contains(t, "DATE"), strings.Contains(t, "TIME"):
		return domain.ColumnKindDatetime
	case strings.Contains(t, "BOOL"):
		return domain.ColumnKindBoolean
	default:
		return domain.ColumnKindOther
	}
}
