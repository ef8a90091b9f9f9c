// Package validate inspects tabular chunks and produces typed data
// quality findings. Findings are reporting only: they influence log
// severity but never stop a load.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
)

var (
	emailRe   = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	dateRe    = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{2,4}$|^\d{4}[/-]\d{1,2}[/-]\d{1,2}$`)
	numericRe = regexp.MustCompile(`^-?\d+\.?\d*$`)
	phoneRe   = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	urlRe     = regexp.MustCompile(`^https?://`)
	booleanRe = regexp.MustCompile(`(?i)^(true|false|yes|no|si|1|0)$`)

	onlyNumbersRe  = regexp.MustCompile(`^\d+$`)
	specialCharsRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
	allUpperRe     = regexp.MustCompile(`^[A-Z\s]+$`)
	allLowerRe     = regexp.MustCompile(`^[a-z\s]+$`)
)

// Validator produces quality findings over chunks. Stateless; safe for
// concurrent use across workers.
type Validator struct{}

// New creates a Validator.
func New() *Validator {
	return &Validator{}
}

// Validate inspects a chunk and returns the full report: per-column and
// table-wide findings, severity summary and recommendations.
func (v *Validator) Validate(chunk *domain.Chunk) *domain.ValidationReport {
	report := &domain.ValidationReport{
		TotalRows:    chunk.Len(),
		TotalColumns: len(chunk.Columns),
	}

	for _, col := range chunk.Columns {
		report.Findings = append(report.Findings, v.validateColumn(chunk, col)...)
	}
	report.Findings = append(report.Findings, v.validateGeneral(chunk)...)

	for _, f := range report.Findings {
		switch f.Severity {
		case domain.SeverityError:
			report.Summary.Errors++
		case domain.SeverityWarning:
			report.Summary.Warnings++
		default:
			report.Summary.Info++
		}
	}

	report.Recommendations = recommendations(report.Findings)
	return report
}

func (v *Validator) validateColumn(chunk *domain.Chunk, col string) []domain.Finding {
	values := chunk.ColumnValues(col)
	findings := []domain.Finding{
		nullFinding(col, values),
		duplicateFinding(col, values),
	}

	inferred := inferKind(values)
	sample := sampleValues(values, 5)
	findings = append(findings, domain.Finding{
		Column: col,
		Type:   "data_type",
		Result: map[string]any{
			"inferred_type": inferred,
			"sample_values": sample,
		},
		Severity: domain.SeverityInfo,
		Message:  fmt.Sprintf("column %q appears to be of type %q", col, inferred),
	})

	switch inferred {
	case "numeric":
		findings = append(findings, numericFindings(col, values)...)
	case "date":
		findings = append(findings, dateFindings(col, values)...)
	case "email":
		findings = append(findings, emailFinding(col, values))
	case "text":
		findings = append(findings, textFindings(col, values)...)
	}
	return findings
}

func nullFinding(col string, values []any) domain.Finding {
	nulls := 0
	for _, v := range values {
		if isNull(v) {
			nulls++
		}
	}
	pct := percent(nulls, len(values))

	severity := domain.SeverityInfo
	if pct > 50 {
		severity = domain.SeverityError
	} else if pct > 10 {
		severity = domain.SeverityWarning
	}
	return domain.Finding{
		Column: col,
		Type:   "null_count",
		Result: map[string]any{
			"null_count":      nulls,
			"null_percentage": round2(pct),
			"total_rows":      len(values),
		},
		Severity: severity,
		Message:  fmt.Sprintf("column %q has %d null values (%.1f%%)", col, nulls, pct),
	}
}

func duplicateFinding(col string, values []any) domain.Finding {
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		seen[stringify(v)] = true
	}
	unique := len(seen)
	duplicates := len(values) - unique
	pct := percent(duplicates, len(values))

	severity := domain.SeverityInfo
	if pct > 80 {
		severity = domain.SeverityWarning
	}
	return domain.Finding{
		Column: col,
		Type:   "duplicate_count",
		Result: map[string]any{
			"unique_count":         unique,
			"duplicate_count":      duplicates,
			"duplicate_percentage": round2(pct),
			"total_rows":           len(values),
		},
		Severity: severity,
		Message:  fmt.Sprintf("column %q has %d unique values, %d duplicates", col, unique, duplicates),
	}
}

func numericFindings(col string, values []any) []domain.Finding {
	var findings []domain.Finding
	var nums []float64
	conversionErrors := 0
	for _, v := range values {
		if isNull(v) {
			continue
		}
		n, ok := parseFloat(v)
		if !ok {
			conversionErrors++
			continue
		}
		nums = append(nums, n)
	}

	if conversionErrors > 0 {
		findings = append(findings, domain.Finding{
			Column: col,
			Type:   "numeric_conversion_errors",
			Result: map[string]any{
				"conversion_errors": conversionErrors,
				"percentage":        round2(percent(conversionErrors, len(values))),
			},
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("column %q has %d values that cannot be converted to a number", col, conversionErrors),
		})
	}

	if len(nums) == 0 {
		return findings
	}

	sorted := append([]float64(nil), nums...)
	sort.Float64s(sorted)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	iqr := q3 - q1
	outliers := 0
	for _, n := range nums {
		if n < q1-1.5*iqr || n > q3+1.5*iqr {
			outliers++
		}
	}

	severity := domain.SeverityInfo
	if float64(outliers) > float64(len(nums))*0.1 {
		severity = domain.SeverityWarning
	}
	findings = append(findings, domain.Finding{
		Column: col,
		Type:   "numeric_statistics",
		Result: map[string]any{
			"statistics": map[string]any{
				"min":    sorted[0],
				"max":    sorted[len(sorted)-1],
				"mean":   round2(mean(nums)),
				"median": quantile(sorted, 0.5),
				"std":    round2(stddev(nums)),
			},
			"outliers_count":      outliers,
			"outliers_percentage": round2(percent(outliers, len(nums))),
		},
		Severity: severity,
		Message:  fmt.Sprintf("column %q: %d outliers detected", col, outliers),
	})
	return findings
}

func dateFindings(col string, values []any) []domain.Finding {
	var findings []domain.Finding
	var dates []time.Time
	conversionErrors := 0
	for _, v := range values {
		if isNull(v) {
			continue
		}
		ts, ok := parseDate(stringify(v))
		if !ok {
			conversionErrors++
			continue
		}
		dates = append(dates, ts)
	}

	if conversionErrors > 0 {
		findings = append(findings, domain.Finding{
			Column: col,
			Type:   "date_conversion_errors",
			Result: map[string]any{
				"conversion_errors": conversionErrors,
				"percentage":        round2(percent(conversionErrors, len(values))),
			},
			Severity: domain.SeverityError,
			Message:  fmt.Sprintf("column %q has %d values that cannot be converted to a date", col, conversionErrors),
		})
	}

	if len(dates) == 0 {
		return findings
	}

	minDate, maxDate := dates[0], dates[0]
	future, old := 0, 0
	now := time.Now()
	epoch1900 := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, d := range dates {
		if d.Before(minDate) {
			minDate = d
		}
		if d.After(maxDate) {
			maxDate = d
		}
		if d.After(now) {
			future++
		}
		if d.Before(epoch1900) {
			old++
		}
	}

	severity := domain.SeverityInfo
	if future > 0 || old > 0 {
		severity = domain.SeverityWarning
	}
	findings = append(findings, domain.Finding{
		Column: col,
		Type:   "date_range",
		Result: map[string]any{
			"min_date":     minDate.Format(time.RFC3339),
			"max_date":     maxDate.Format(time.RFC3339),
			"future_dates": future,
			"old_dates":    old,
		},
		Severity: severity,
		Message:  fmt.Sprintf("column %q: range %s to %s", col, minDate.Format("2006-01-02"), maxDate.Format("2006-01-02")),
	})
	return findings
}

func textFindings(col string, values []any) []domain.Finding {
	minLen, maxLen, totalLen := math.MaxInt, 0, 0
	emptyStrings := 0
	patterns := map[string]int{
		"only_numbers":           0,
		"contains_special_chars": 0,
		"all_uppercase":          0,
		"all_lowercase":          0,
	}
	for _, v := range values {
		s := stringify(v)
		if s == "" {
			emptyStrings++
		}
		l := len([]rune(s))
		if l < minLen {
			minLen = l
		}
		if l > maxLen {
			maxLen = l
		}
		totalLen += l

		if onlyNumbersRe.MatchString(s) {
			patterns["only_numbers"]++
		}
		if specialCharsRe.MatchString(s) {
			patterns["contains_special_chars"]++
		}
		if allUpperRe.MatchString(s) {
			patterns["all_uppercase"]++
		}
		if allLowerRe.MatchString(s) {
			patterns["all_lowercase"]++
		}
	}
	if minLen == math.MaxInt {
		minLen = 0
	}
	avgLen := 0.0
	if len(values) > 0 {
		avgLen = float64(totalLen) / float64(len(values))
	}

	return []domain.Finding{
		{
			Column: col,
			Type:   "text_length",
			Result: map[string]any{
				"min_length":    minLen,
				"max_length":    maxLen,
				"avg_length":    round2(avgLen),
				"empty_strings": emptyStrings,
			},
			Severity: domain.SeverityInfo,
			Message:  fmt.Sprintf("column %q: average length %.1f characters", col, avgLen),
		},
		{
			Column:   col,
			Type:     "text_patterns",
			Result:   map[string]any{"patterns": patterns},
			Severity: domain.SeverityInfo,
			Message:  fmt.Sprintf("column %q: text pattern analysis completed", col),
		},
	}
}

func emailFinding(col string, values []any) domain.Finding {
	valid, total := 0, 0
	for _, v := range values {
		if isNull(v) {
			continue
		}
		total++
		if emailRe.MatchString(stringify(v)) {
			valid++
		}
	}
	invalid := total - valid

	severity := domain.SeverityInfo
	if invalid > valid {
		severity = domain.SeverityError
	} else if invalid > 0 {
		severity = domain.SeverityWarning
	}
	validity := 0.0
	if total > 0 {
		validity = percent(valid, total)
	}
	return domain.Finding{
		Column: col,
		Type:   "email_format",
		Result: map[string]any{
			"valid_emails":        valid,
			"invalid_emails":      invalid,
			"validity_percentage": round2(validity),
		},
		Severity: severity,
		Message:  fmt.Sprintf("column %q: %d valid emails, %d invalid", col, valid, invalid),
	}
}

func (v *Validator) validateGeneral(chunk *domain.Chunk) []domain.Finding {
	var findings []domain.Finding

	emptyRows := 0
	seen := make(map[string]bool, chunk.Len())
	duplicateRows := 0
	for _, row := range chunk.Rows {
		empty := true
		var sb strings.Builder
		for _, col := range chunk.Columns {
			val := row[col]
			if !isNull(val) {
				empty = false
			}
			sb.WriteString(stringify(val))
			sb.WriteByte('\x1f')
		}
		if empty {
			emptyRows++
		}
		key := sb.String()
		if seen[key] {
			duplicateRows++
		}
		seen[key] = true
	}

	if emptyRows > 0 {
		findings = append(findings, domain.Finding{
			Column: domain.AllColumns,
			Type:   "empty_rows",
			Result: map[string]any{
				"empty_rows": emptyRows,
				"percentage": round2(percent(emptyRows, chunk.Len())),
			},
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("found %d completely empty rows", emptyRows),
		})
	}
	if duplicateRows > 0 {
		findings = append(findings, domain.Finding{
			Column: domain.AllColumns,
			Type:   "duplicate_rows",
			Result: map[string]any{
				"duplicate_rows": duplicateRows,
				"percentage":     round2(percent(duplicateRows, chunk.Len())),
			},
			Severity: domain.SeverityWarning,
			Message:  fmt.Sprintf("found %d completely duplicated rows", duplicateRows),
		})
	}
	return findings
}

// inferKind guesses the data kind of a column: a pattern must match at
// least 80% of the non-null values to win.
func inferKind(values []any) string {
	var clean []string
	for _, v := range values {
		if !isNull(v) {
			clean = append(clean, stringify(v))
		}
	}
	if len(clean) == 0 {
		return "empty"
	}

	patterns := []struct {
		kind string
		re   *regexp.Regexp
	}{
		{"email", emailRe},
		{"date", dateRe},
		{"numeric", numericRe},
		{"phone", phoneRe},
		{"url", urlRe},
		{"boolean", booleanRe},
	}
	threshold := float64(len(clean)) * 0.8
	for _, p := range patterns {
		matches := 0
		for _, s := range clean {
			if p.re.MatchString(s) {
				matches++
			}
		}
		if float64(matches) >= threshold {
			return p.kind
		}
	}

	numeric := true
	for _, s := range clean {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		return "numeric"
	}

	dates := true
	for _, s := range clean {
		if _, ok := parseDate(s); !ok {
			dates = false
			break
		}
	}
	if dates {
		return "date"
	}

	return "text"
}

func recommendations(findings []domain.Finding) []string {
	var highNull, conversionErr, outlier []string
	errors, warnings := 0, 0
	for _, f := range findings {
		switch f.Severity {
		case domain.SeverityError:
			errors++
		case domain.SeverityWarning:
			warnings++
		}
		switch {
		case f.Type == "null_count" && f.Severity != domain.SeverityInfo:
			highNull = append(highNull, f.Column)
		case strings.Contains(f.Type, "conversion_errors") && f.Severity == domain.SeverityError:
			conversionErr = append(conversionErr, f.Column)
		case f.Type == "numeric_statistics":
			if n, ok := f.Result["outliers_count"].(int); ok && n > 0 {
				outlier = append(outlier, f.Column)
			}
		}
	}

	var recs []string
	if len(highNull) > 0 {
		recs = append(recs, fmt.Sprintf("consider cleaning or imputing null values in: %s", strings.Join(highNull, ", ")))
	}
	if len(conversionErr) > 0 {
		recs = append(recs, fmt.Sprintf("review and fix format errors in: %s", strings.Join(conversionErr, ", ")))
	}
	if len(outlier) > 0 {
		recs = append(recs, fmt.Sprintf("analyze outlier values in: %s", strings.Join(outlier, ", ")))
	}
	if errors > 0 {
		recs = append(recs, fmt.Sprintf("%d critical errors found that should be fixed before loading", errors))
	}
	if warnings > 5 {
		recs = append(recs, "consider reviewing the warnings before continuing")
	}
	if len(recs) == 0 {
		recs = append(recs, "data looks in good condition for loading")
	}
	return recs
}

// ---- helpers ----

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func parseFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func sampleValues(values []any, n int) []any {
	var sample []any
	for _, v := range values {
		if isNull(v) {
			continue
		}
		sample = append(sample, v)
		if len(sample) == n {
			break
		}
	}
	return sample
}

func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func mean(nums []float64) float64 {
	if len(nums) == 0 {
		return 0
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums))
}

func stddev(nums []float64) float64 {
	if len(nums) < 2 {
		return 0
	}
	m := mean(nums)
	sum := 0.0
	for _, n := range nums {
		sum += (n - m) * (n - m)
	}
	return math.Sqrt(sum / float64(len(nums)-1))
}

// quantile interpolates linearly over a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
