package validate

import (
	"testing"

	"github.com/andresvega/loaderd/internal/domain"
)

func chunkOf(col string, values ...any) *domain.Chunk {
	c := &domain.Chunk{Columns: []string{col}}
	for _, v := range values {
		c.Rows = append(c.Rows, domain.Row{col: v})
	}
	return c
}

func findingOfType(report *domain.ValidationReport, col, typ string) *domain.Finding {
	for i := range report.Findings {
		if report.Findings[i].Column == col && report.Findings[i].Type == typ {
			return &report.Findings[i]
		}
	}
	return nil
}

func TestNullSeverityThresholds(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   domain.Severity
	}{
		{"no nulls", []any{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, domain.SeverityInfo},
		{"over 10 percent warns", []any{nil, nil, "c", "d", "e", "f", "g", "h", "i", "j"}, domain.SeverityWarning},
		{"over half errors", []any{nil, nil, nil, nil, nil, nil, "g", "h", "i", "j"}, domain.SeverityError},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := v.Validate(chunkOf("c", tt.values...))
			f := findingOfType(report, "c", "null_count")
			if f == nil {
				t.Fatal("null_count finding missing")
			}
			if f.Severity != tt.want {
				t.Errorf("severity = %s, want %s", f.Severity, tt.want)
			}
		})
	}
}

func TestTypeInference(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   string
	}{
		{"numeric", []any{"1", "2.5", "-3", "4", "5"}, "numeric"},
		{"dates", []any{"2024-01-01", "2024-02-15", "2024-03-20", "2024-04-01", "2024-05-05"}, "date"},
		{"emails", []any{"a@b.com", "c@d.org", "e@f.net", "g@h.io", "i@j.co"}, "email"},
		{"mixed text", []any{"hello", "world", "foo", "bar", "baz"}, "text"},
		{"eighty percent numeric wins", []any{"1", "2", "3", "4", "x"}, "numeric"},
		{"all nulls", []any{nil, nil, ""}, "empty"},
	}

	v := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := v.Validate(chunkOf("c", tt.values...))
			f := findingOfType(report, "c", "data_type")
			if f == nil {
				t.Fatal("data_type finding missing")
			}
			if got := f.Result["inferred_type"]; got != tt.want {
				t.Errorf("inferred_type = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmailValidity(t *testing.T) {
	v := New()
	report := v.Validate(chunkOf("mail", "a@b.com", "b@c.org", "c@d.net", "d@e.io", "not-an-email"))
	f := findingOfType(report, "mail", "email_format")
	if f == nil {
		t.Fatal("email_format finding missing")
	}
	if f.Severity != domain.SeverityWarning {
		t.Errorf("severity = %s, want warning for a minority of invalid emails", f.Severity)
	}
	if got := f.Result["invalid_emails"]; got != 1 {
		t.Errorf("invalid_emails = %v, want 1", got)
	}
}

func TestNumericFindings(t *testing.T) {
	v := New()
	report := v.Validate(chunkOf("n", "1", "2", "3", "4", "1000"))
	f := findingOfType(report, "n", "numeric_statistics")
	if f == nil {
		t.Fatal("numeric_statistics finding missing")
	}
	if got := f.Result["outliers_count"]; got != 1 {
		t.Errorf("outliers_count = %v, want 1", got)
	}
}

func TestGeneralFindings(t *testing.T) {
	chunk := &domain.Chunk{
		Columns: []string{"a", "b"},
		Rows: []domain.Row{
			{"a": "1", "b": "x"},
			{"a": "1", "b": "x"},
			{"a": nil, "b": ""},
		},
	}
	v := New()
	report := v.Validate(chunk)

	if f := findingOfType(report, domain.AllColumns, "duplicate_rows"); f == nil {
		t.Error("duplicate_rows finding missing")
	} else if got := f.Result["duplicate_rows"]; got != 1 {
		t.Errorf("duplicate_rows = %v, want 1", got)
	}

	if f := findingOfType(report, domain.AllColumns, "empty_rows"); f == nil {
		t.Error("empty_rows finding missing")
	} else if got := f.Result["empty_rows"]; got != 1 {
		t.Errorf("empty_rows = %v, want 1", got)
	}
}

func TestRecommendationsAndSummary(t *testing.T) {
	v := New()
	report := v.Validate(chunkOf("c", nil, nil, nil, nil, nil, nil, "g", "h", "i", "j"))

	if report.Summary.Errors == 0 {
		t.Error("expected error findings in summary")
	}
	if len(report.Recommendations) == 0 {
		t.Fatal("expected recommendations")
	}

	clean := v.Validate(chunkOf("c", "a", "b", "c", "d", "e"))
	if len(clean.Recommendations) != 1 {
		t.Fatalf("expected the single all-clear recommendation, got %v", clean.Recommendations)
	}
}
