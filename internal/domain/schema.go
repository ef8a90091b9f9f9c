package domain

// ColumnKind is the coarse data kind of a table column.
type ColumnKind string

const (
	ColumnKindText     ColumnKind = "text"
	ColumnKindNumber   ColumnKind = "number"
	ColumnKindDatetime ColumnKind = "datetime"
	ColumnKindBoolean  ColumnKind = "boolean"
	ColumnKindOther    ColumnKind = "other"
)

// Column describes one column of a target table.
type Column struct {
	Name     string     `json:"name"`
	Kind     ColumnKind `json:"kind"`
	Nullable bool       `json:"nullable"`
	IsKey    bool       `json:"is_key"`
}

// TableSchema is the runtime-discovered shape of a target table. It is
// fetched once per job and threaded through the loader; it is never
// cached across jobs because the target table is chosen at submission.
type TableSchema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Column returns the named column, or nil.
func (s *TableSchema) Column(name string) *Column {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// KeyColumns returns the columns usable for key-equality matching in
// update and sync modes.
func (s *TableSchema) KeyColumns() []string {
	var keys []string
	for _, col := range s.Columns {
		if col.IsKey {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// bookkeepingColumns are managed by the database and never written by a load.
var bookkeepingColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
}

// WritableColumns returns the columns a load may write to.
func (s *TableSchema) WritableColumns() []Column {
	out := make([]Column, 0, len(s.Columns))
	for _, col := range s.Columns {
		if !bookkeepingColumns[col.Name] {
			out = append(out, col)
		}
	}
	return out
}
