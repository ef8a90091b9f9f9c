package domain

// Row maps column names to cell values. Values are strings as read from
// the source; transformations may replace them with numbers, times or nil.
type Row map[string]any

// Chunk is a bounded slice of the source file processed as one unit
// through validate, transform and load. Columns preserves source order.
type Chunk struct {
	Columns []string
	Rows    []Row
}

// Len returns the number of rows in the chunk.
func (c *Chunk) Len() int {
	return len(c.Rows)
}

// HasColumn reports whether the chunk carries the named column.
func (c *Chunk) HasColumn(name string) bool {
	for _, col := range c.Columns {
		if col == name {
			return true
		}
	}
	return false
}

// ColumnValues collects the values of one column across all rows.
func (c *Chunk) ColumnValues(name string) []any {
	values := make([]any, 0, len(c.Rows))
	for _, row := range c.Rows {
		values = append(values, row[name])
	}
	return values
}

// SetColumn replaces the values of one column across all rows.
// values must have one entry per row.
func (c *Chunk) SetColumn(name string, values []any) {
	for i, row := range c.Rows {
		if i < len(values) {
			row[name] = values[i]
		}
	}
}

// Project returns a new chunk containing only the mapped columns, renamed
// to their targets. Source columns absent from the chunk are skipped.
func (c *Chunk) Project(mapping map[string]string) *Chunk {
	projected := &Chunk{}
	for _, col := range c.Columns {
		if target, ok := mapping[col]; ok {
			projected.Columns = append(projected.Columns, target)
		}
	}
	for _, row := range c.Rows {
		out := make(Row, len(projected.Columns))
		for src, dst := range mapping {
			if v, ok := row[src]; ok {
				out[dst] = v
			}
		}
		projected.Rows = append(projected.Rows, out)
	}
	return projected
}
