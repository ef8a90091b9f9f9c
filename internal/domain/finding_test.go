package domain

import (
	"reflect"
	"testing"
)

func TestValidationReportMerge(t *testing.T) {
	r := &ValidationReport{
		TotalRows:    100,
		TotalColumns: 3,
		Findings: []Finding{
			{Column: "email", Type: "email_format", Severity: SeverityWarning},
		},
		Summary:         ValidationSummary{Warnings: 1},
		Recommendations: []string{"fix emails"},
	}
	other := &ValidationReport{
		TotalRows:    50,
		TotalColumns: 3,
		Findings: []Finding{
			{Column: "age", Type: "null_count", Severity: SeverityError},
		},
		Summary:         ValidationSummary{Errors: 1, Info: 2},
		Recommendations: []string{"fix emails", "fill nulls"},
	}

	r.Merge(other)

	if r.TotalRows != 150 {
		t.Errorf("total rows = %d, want 150", r.TotalRows)
	}
	if r.TotalColumns != 3 {
		t.Errorf("total columns = %d, want 3", r.TotalColumns)
	}
	if len(r.Findings) != 2 {
		t.Errorf("findings = %d, want 2", len(r.Findings))
	}
	if r.Summary.Errors != 1 || r.Summary.Warnings != 1 || r.Summary.Info != 2 {
		t.Errorf("summary = %+v, want 1/1/2", r.Summary)
	}
	if want := []string{"fix emails", "fill nulls"}; !reflect.DeepEqual(r.Recommendations, want) {
		t.Errorf("recommendations = %v, want %v", r.Recommendations, want)
	}
}

func TestValidationReportMergeNil(t *testing.T) {
	r := &ValidationReport{TotalRows: 10}
	r.Merge(nil)
	if r.TotalRows != 10 {
		t.Errorf("total rows = %d, want untouched 10", r.TotalRows)
	}
}
