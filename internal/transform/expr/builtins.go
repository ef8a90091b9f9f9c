package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

type builtin func(args []any) (any, error)

// builtins is the complete callable surface of the language.
var builtins = map[string]builtin{
	"len":      fnLen,
	"upper":    stringFn("upper", strings.ToUpper),
	"lower":    stringFn("lower", strings.ToLower),
	"trim":     stringFn("trim", strings.TrimSpace),
	"title":    stringFn("title", titleCase),
	"abs":      numberFn("abs", math.Abs),
	"sqrt":     numberFn("sqrt", math.Sqrt),
	"round":    fnRound,
	"min":      fnMin,
	"max":      fnMax,
	"contains": fnContains,
	"replace":  fnReplace,
	"substr":   fnSubstr,
	"number":   fnNumber,
	"text":     fnText,
	"coalesce": fnCoalesce,
}

func argCount(name string, args []any, want int) error {
	if len(args) != want {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, want, len(args))
	}
	return nil
}

func stringFn(name string, f func(string) string) builtin {
	return func(args []any) (any, error) {
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		return f(toString(args[0])), nil
	}
}

func numberFn(name string, f func(float64) float64) builtin {
	return func(args []any) (any, error) {
		if err := argCount(name, args, 1); err != nil {
			return nil, err
		}
		n, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("%s expects a number", name)
		}
		return f(n), nil
	}
}

func fnLen(args []any) (any, error) {
	if err := argCount("len", args, 1); err != nil {
		return nil, err
	}
	return float64(len(toString(args[0]))), nil
}

func fnRound(args []any) (any, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, fmt.Errorf("round expects 1 or 2 arguments, got %d", len(args))
	}
	n, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("round expects a number")
	}
	decimals := 0.0
	if len(args) == 2 {
		d, ok := toFloat(args[1])
		if !ok {
			return nil, fmt.Errorf("round expects a numeric decimal count")
		}
		decimals = d
	}
	factor := math.Pow(10, decimals)
	return math.Round(n*factor) / factor, nil
}

func fnMin(args []any) (any, error) {
	return fold("min", args, math.Min)
}

func fnMax(args []any) (any, error) {
	return fold("max", args, math.Max)
}

func fold(name string, args []any, f func(float64, float64) float64) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s expects at least 2 arguments", name)
	}
	acc, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("%s expects numbers", name)
	}
	for _, a := range args[1:] {
		n, ok := toFloat(a)
		if !ok {
			return nil, fmt.Errorf("%s expects numbers", name)
		}
		acc = f(acc, n)
	}
	return acc, nil
}

func fnContains(args []any) (any, error) {
	if err := argCount("contains", args, 2); err != nil {
		return nil, err
	}
	return strings.Contains(toString(args[0]), toString(args[1])), nil
}

func fnReplace(args []any) (any, error) {
	if err := argCount("replace", args, 3); err != nil {
		return nil, err
	}
	return strings.ReplaceAll(toString(args[0]), toString(args[1]), toString(args[2])), nil
}

func fnSubstr(args []any) (any, error) {
	if err := argCount("substr", args, 3); err != nil {
		return nil, err
	}
	s := []rune(toString(args[0]))
	start, ok1 := toFloat(args[1])
	length, ok2 := toFloat(args[2])
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("substr expects numeric start and length")
	}
	from := int(start)
	if from < 0 {
		from = 0
	}
	if from > len(s) {
		from = len(s)
	}
	to := from + int(length)
	if to > len(s) {
		to = len(s)
	}
	if to < from {
		to = from
	}
	return string(s[from:to]), nil
}

func fnNumber(args []any) (any, error) {
	if err := argCount("number", args, 1); err != nil {
		return nil, err
	}
	n, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("cannot convert %q to number", toString(args[0]))
	}
	return n, nil
}

func fnText(args []any) (any, error) {
	if err := argCount("text", args, 1); err != nil {
		return nil, err
	}
	return toString(args[0]), nil
}

func fnCoalesce(args []any) (any, error) {
	for _, a := range args {
		if a != nil && toString(a) != "" {
			return a, nil
		}
	}
	return nil, nil
}

func titleCase(s string) string {
	return strings.Title(strings.ToLower(s)) //nolint:staticcheck // ASCII column data
}

// ---- value coercion ----

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toString(v any) string {
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

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	return toString(a) == toString(b)
}

func compare(op string, a, b any) (any, error) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch op {
			case "<":
				return af < bf, nil
			case "<=":
				return af <= bf, nil
			case ">":
				return af > bf, nil
			case ">=":
				return af >= bf, nil
			}
		}
	}
	as, bs := toString(a), toString(b)
	switch op {
	case "<":
		return as < bs, nil
	case "<=":
		return as <= bs, nil
	case ">":
		return as > bs, nil
	case ">=":
		return as >= bs, nil
	}
	return nil, fmt.Errorf("unknown comparison %q", op)
}
