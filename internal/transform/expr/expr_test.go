package expr

import (
	"strings"
	"testing"
)

func TestCompileAndRun(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		value  any
		params map[string]any
		want   any
	}{
		{
			name:  "arithmetic on value",
			code:  "value * 2 + 1",
			value: 10.0,
			want:  21.0,
		},
		{
			name:  "string concatenation via builtins",
			code:  `upper(trim(value))`,
			value: "  hola  ",
			want:  "HOLA",
		},
		{
			name:  "ternary",
			code:  `value > 100 ? "high" : "low"`,
			value: 42.0,
			want:  "low",
		},
		{
			name:  "logical operators",
			code:  `value > 0 && value < 10`,
			value: 5.0,
			want:  true,
		},
		{
			name:   "parameters",
			code:   "value * params.factor",
			value:  3.0,
			params: map[string]any{"factor": 4.0},
			want:   12.0,
		},
		{
			name:  "round with decimals",
			code:  "round(value, 2)",
			value: 3.14159,
			want:  3.14,
		},
		{
			name:  "coalesce falls through empties",
			code:  `coalesce(value, "fallback")`,
			value: "",
			want:  "fallback",
		},
		{
			name:  "string coercion in comparison",
			code:  `value == "42"`,
			value: 42.0,
			want:  true,
		},
		{
			name:  "substr",
			code:  "substr(value, 0, 3)",
			value: "abcdef",
			want:  "abc",
		},
		{
			name:  "unary minus",
			code:  "-value",
			value: 7.0,
			want:  -7.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := Compile(tt.code)
			if err != nil {
				t.Fatalf("compile failed: %v", err)
			}
			got, err := prog.Run(tt.value, tt.params)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestCompileRejectsUnknownNames(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unknown identifier", "foo + 1"},
		{"unknown function", "sleep(100)"},
		{"bare params", "params + 1"},
		{"unbalanced parens", "(value + 1"},
		{"empty expression", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.code); err == nil {
				t.Errorf("expected compile of %q to fail", tt.code)
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	prog, err := Compile("sqrt(value)")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if _, err := prog.Run("not a number", nil); err == nil {
		t.Error("expected type error at run time")
	}
}

func TestDivisionByZero(t *testing.T) {
	prog, err := Compile("value / 0")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	_, err = prog.Run(1.0, nil)
	if err == nil || !strings.Contains(err.Error(), "division by zero") {
		t.Errorf("expected division by zero error, got %v", err)
	}
}
