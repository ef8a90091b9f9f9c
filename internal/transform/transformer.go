// Package transform applies declarative per-column transformations to
// chunks. Apply is a total function: any per-column failure degrades to
// leaving that column's values unchanged and is recorded in the
// transformation log, never aborting the job.
package transform

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/logger"
	"github.com/andresvega/loaderd/internal/transform/expr"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Transformer applies a TransformSpec to chunks and records a per-column
// transformation log.
type Transformer struct {
	registry *Registry
	log      []domain.TransformLogEntry
}

// New creates a Transformer. registry may be nil when custom
// transformations by name are not needed.
func New(registry *Registry) *Transformer {
	return &Transformer{registry: registry}
}

// Log returns the transformation log accumulated so far.
func (t *Transformer) Log() []domain.TransformLogEntry {
	return t.log
}

// Apply runs every transformation in spec against the chunk, column by
// column. Columns named in the spec but absent from the chunk are
// skipped. The input chunk is modified in place and returned.
func (t *Transformer) Apply(ctx context.Context, chunk *domain.Chunk, spec domain.TransformSpec) *domain.Chunk {
	if len(spec) == 0 {
		return chunk
	}

	columns := make([]string, 0, len(spec))
	for col := range spec {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	for _, col := range columns {
		ct := spec[col]
		if !chunk.HasColumn(col) {
			logger.FromContext(ctx).WithField("column", col).
				Warn("transformation column not present in chunk")
			continue
		}

		values, err := t.applyOne(ctx, chunk.ColumnValues(col), ct)
		entry := domain.TransformLogEntry{
			Column:    col,
			Type:      ct.Type,
			Status:    "success",
			Timestamp: time.Now(),
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
			logger.FromContext(ctx).WithError(err).WithField("column", col).
				Warn("transformation failed, column left unchanged")
		} else {
			chunk.SetColumn(col, values)
		}
		t.log = append(t.log, entry)
	}
	return chunk
}

func (t *Transformer) applyOne(ctx context.Context, values []any, ct domain.ColumnTransform) ([]any, error) {
	opts := ct.Options
	switch ct.Type {
	case domain.TransformDate:
		return transformDate(values, opts)
	case domain.TransformNumber:
		return transformNumber(values, opts)
	case domain.TransformText:
		return transformText(values, opts)
	case domain.TransformReplace:
		return transformReplace(values, opts)
	case domain.TransformRegex:
		return transformRegex(values, opts)
	case domain.TransformMathematical:
		return transformMathematical(values, opts)
	case domain.TransformConditional:
		return transformConditional(values, opts)
	case domain.TransformCustom:
		return t.transformCustom(ctx, values, opts)
	default:
		return nil, fmt.Errorf("unknown transformation type %q", ct.Type)
	}
}

// ---- date ----

// autoLayouts are tried in order when date_format_from is "auto" or empty.
var autoLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
	"Jan 2, 2006",
}

// strftimeToLayout converts the strftime-style directives accepted on
// the wire into a Go time layout.
var strftimeReplacer = strings.NewReplacer(
	"%Y", "2006", "%y", "06",
	"%m", "01", "%d", "02",
	"%H", "15", "%M", "04", "%S", "05",
	"%b", "Jan", "%B", "January",
)

func strftimeToLayout(format string) string {
	return strftimeReplacer.Replace(format)
}

func parseDate(s, formatFrom string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if formatFrom == "" || formatFrom == "auto" {
		for _, layout := range autoLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	}
	ts, err := time.Parse(strftimeToLayout(formatFrom), s)
	return ts, err == nil
}

func transformDate(values []any, opts domain.TransformOptions) ([]any, error) {
	formatTo := opts.DateFormatTo
	if formatTo == "" {
		formatTo = "%Y-%m-%d"
	}
	handleErrors := opts.HandleErrors
	if handleErrors == "" {
		handleErrors = "coerce"
	}

	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		ts, ok := parseDate(asString(v), opts.DateFormatFrom)
		if !ok {
			// coerce: unparsable values become null; ignore: pass through.
			if handleErrors == "ignore" {
				out[i] = v
			} else {
				out[i] = nil
			}
			continue
		}
		switch formatTo {
		case "timestamp":
			out[i] = float64(ts.Unix())
		case "iso":
			out[i] = ts.Format("2006-01-02T15:04:05")
		default:
			out[i] = ts.Format(strftimeToLayout(formatTo))
		}
	}
	return out, nil
}

// ---- number ----

func transformNumber(values []any, opts domain.TransformOptions) ([]any, error) {
	decimalSep := opts.DecimalSeparator
	if decimalSep == "" {
		decimalSep = "."
	}

	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = fillNA(opts)
			continue
		}
		s := asString(v)
		if opts.ThousandsSeparator != "" {
			s = strings.ReplaceAll(s, opts.ThousandsSeparator, "")
		}
		if decimalSep != "." {
			s = strings.ReplaceAll(s, decimalSep, ".")
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			out[i] = fillNA(opts)
			continue
		}
		if opts.RoundDecimals != nil {
			factor := math.Pow(10, float64(*opts.RoundDecimals))
			n = math.Round(n*factor) / factor
		}
		out[i] = n
	}
	return out, nil
}

func fillNA(opts domain.TransformOptions) any {
	if opts.FillNA != nil {
		return *opts.FillNA
	}
	return nil
}

// ---- text ----

func transformText(values []any, opts domain.TransformOptions) ([]any, error) {
	collapse := true
	if opts.RemoveExtraSpaces != nil {
		collapse = *opts.RemoveExtraSpaces
	}

	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		s := asString(v)
		switch opts.TextTransform {
		case "upper":
			s = strings.ToUpper(s)
		case "lower":
			s = strings.ToLower(s)
		case "title":
			s = strings.Title(strings.ToLower(s)) //nolint:staticcheck // column data
		case "capitalize":
			s = capitalize(s)
		case "trim":
			s = strings.TrimSpace(s)
		}
		if opts.RemoveAccents {
			s = removeAccents(s)
		}
		if collapse {
			s = strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
		}
		out[i] = s
	}
	return out, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(strings.ToLower(s))
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

// ---- replace ----

func transformReplace(values []any, opts domain.TransformOptions) ([]any, error) {
	if opts.ReplaceFrom == "" {
		return values, nil
	}
	caseSensitive := true
	if opts.CaseSensitive != nil {
		caseSensitive = *opts.CaseSensitive
	}

	var re *regexp.Regexp
	var err error
	switch {
	case opts.UseRegex:
		pattern := opts.ReplaceFrom
		if !caseSensitive {
			pattern = "(?i)" + pattern
		}
		re, err = regexp.Compile(pattern)
	case !caseSensitive:
		re, err = regexp.Compile("(?i)" + regexp.QuoteMeta(opts.ReplaceFrom))
	}
	if err != nil {
		return nil, fmt.Errorf("invalid replace pattern: %w", err)
	}

	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		s := asString(v)
		if re != nil {
			out[i] = re.ReplaceAllString(s, opts.ReplaceTo)
		} else {
			out[i] = strings.ReplaceAll(s, opts.ReplaceFrom, opts.ReplaceTo)
		}
	}
	return out, nil
}

// ---- regex ----

func transformRegex(values []any, opts domain.TransformOptions) ([]any, error) {
	if opts.Pattern == "" {
		return values, nil
	}
	pattern := opts.Pattern
	if opts.CaseInsensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	out := make([]any, len(values))
	for i, v := range values {
		if v == nil {
			out[i] = nil
			continue
		}
		s := asString(v)
		if opts.ExtractGroup != nil {
			groups := re.FindStringSubmatch(s)
			idx := *opts.ExtractGroup
			if groups == nil || idx < 0 || idx >= len(groups) {
				out[i] = nil
			} else {
				out[i] = groups[idx]
			}
			continue
		}
		out[i] = re.ReplaceAllString(s, opts.Replacement)
	}
	return out, nil
}

// ---- mathematical ----

func transformMathematical(values []any, opts domain.TransformOptions) ([]any, error) {
	op := opts.Operation
	operand := opts.Operand

	apply := func(n float64) (float64, bool) {
		switch op {
		case "add":
			return n + operand, true
		case "subtract":
			return n - operand, true
		case "multiply":
			return n * operand, true
		case "divide":
			// Divide-by-zero operand is a no-op, not an error.
			if operand == 0 {
				return n, true
			}
			return n / operand, true
		case "power":
			return math.Pow(n, operand), true
		case "sqrt":
			return math.Sqrt(n), true
		case "log":
			return math.Log(n), true
		case "log10":
			return math.Log10(n), true
		case "abs":
			return math.Abs(n), true
		case "round":
			factor := math.Pow(10, operand)
			return math.Round(n*factor) / factor, true
		}
		return 0, false
	}

	// Probe the operation once so an unknown name fails the whole column.
	if _, ok := apply(1); !ok {
		return nil, fmt.Errorf("unknown mathematical operation %q", op)
	}

	out := make([]any, len(values))
	for i, v := range values {
		n, ok := asFloat(v)
		if !ok {
			out[i] = nil
			continue
		}
		result, _ := apply(n)
		if math.IsNaN(result) || math.IsInf(result, 0) {
			out[i] = nil
			continue
		}
		out[i] = result
	}
	return out, nil
}

// ---- conditional ----

func transformConditional(values []any, opts domain.TransformOptions) ([]any, error) {
	type compiled struct {
		prog  *expr.Program
		value any
	}
	cases := make([]compiled, 0, len(opts.Conditions))
	for _, c := range opts.Conditions {
		prog, err := expr.Compile(c.Condition)
		if err != nil {
			return nil, fmt.Errorf("invalid condition %q: %w", c.Condition, err)
		}
		cases = append(cases, compiled{prog: prog, value: c.Value})
	}

	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
		matched := false
		for _, c := range cases {
			res, err := c.prog.Run(v, nil)
			if err != nil {
				continue
			}
			if b, ok := res.(bool); ok && b {
				out[i] = c.value
				matched = true
				break // first match wins
			}
		}
		if !matched && opts.DefaultValue != nil {
			out[i] = opts.DefaultValue
		}
	}
	return out, nil
}

// ---- custom ----

func (t *Transformer) transformCustom(ctx context.Context, values []any, opts domain.TransformOptions) ([]any, error) {
	var prog *expr.Program
	params := opts.Parameters

	switch {
	case opts.Expression != "":
		var err error
		prog, err = expr.Compile(opts.Expression)
		if err != nil {
			return nil, fmt.Errorf("invalid custom expression: %w", err)
		}
	case opts.Name != "":
		if t.registry == nil {
			return nil, fmt.Errorf("no transformation registry configured")
		}
		resolved, defaults, err := t.registry.Resolve(ctx, opts.Name)
		if err != nil {
			return nil, err
		}
		prog = resolved
		if params == nil {
			params = defaults
		}
	default:
		return nil, fmt.Errorf("custom transformation needs an expression or a registered name")
	}

	out := make([]any, len(values))
	for i, v := range values {
		res, err := prog.Run(v, params)
		if err != nil {
			// Per-value evaluation errors degrade to passthrough.
			out[i] = v
			continue
		}
		out[i] = res
	}
	return out, nil
}

// ---- coercion helpers ----

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
