package domain

// Severity grades a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// AllColumns is the sentinel column name for table-wide findings.
const AllColumns = "ALL"

// Finding is one typed data-quality observation about a chunk. Findings
// are reporting only; they never stop a load.
type Finding struct {
	Column   string         `json:"column_name"`
	Type     string         `json:"validation_type"`
	Result   map[string]any `json:"validation_result"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
}

// ValidationSummary counts findings per severity.
type ValidationSummary struct {
	Errors   int `json:"errors"`
	Warnings int `json:"warnings"`
	Info     int `json:"info"`
}

// ValidationReport is the outcome of one validation pass over a chunk.
type ValidationReport struct {
	TotalRows       int               `json:"total_rows"`
	TotalColumns    int               `json:"total_columns"`
	Findings        []Finding         `json:"validations"`
	Summary         ValidationSummary `json:"summary"`
	Recommendations []string          `json:"recommendations"`
}

// Merge folds another chunk's report into r: row totals and severity
// counts add up, findings append, and each recommendation is kept once.
func (r *ValidationReport) Merge(other *ValidationReport) {
	if other == nil {
		return
	}
	r.TotalRows += other.TotalRows
	if other.TotalColumns > r.TotalColumns {
		r.TotalColumns = other.TotalColumns
	}
	r.Findings = append(r.Findings, other.Findings...)
	r.Summary.Errors += other.Summary.Errors
	r.Summary.Warnings += other.Summary.Warnings
	r.Summary.Info += other.Summary.Info

	seen := make(map[string]bool, len(r.Recommendations))
	for _, rec := range r.Recommendations {
		seen[rec] = true
	}
	for _, rec := range other.Recommendations {
		if !seen[rec] {
			r.Recommendations = append(r.Recommendations, rec)
			seen[rec] = true
		}
	}
}
