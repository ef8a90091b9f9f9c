package domain

import "time"

// TransformKind identifies a built-in column transformation.
type TransformKind string

const (
	TransformDate         TransformKind = "date"
	TransformNumber       TransformKind = "number"
	TransformText         TransformKind = "text"
	TransformReplace      TransformKind = "replace"
	TransformRegex        TransformKind = "regex"
	TransformMathematical TransformKind = "mathematical"
	TransformConditional  TransformKind = "conditional"
	TransformCustom       TransformKind = "custom"
)

// ConditionalCase is one branch of a conditional transform. The first
// case whose condition matches wins.
type ConditionalCase struct {
	Condition string `json:"condition"`
	Value     any    `json:"value"`
}

// TransformOptions carries the kind-specific settings of a column
// transform. Field names mirror the wire format accepted on submission.
type TransformOptions struct {
	// date
	DateFormatFrom string `json:"date_format_from,omitempty"`
	DateFormatTo   string `json:"date_format_to,omitempty"`
	HandleErrors   string `json:"handle_errors,omitempty"` // coerce (default) or ignore

	// number
	DecimalSeparator   string   `json:"decimal_separator,omitempty"`
	ThousandsSeparator string   `json:"thousands_separator,omitempty"`
	RoundDecimals      *int     `json:"round_decimals,omitempty"`
	FillNA             *float64 `json:"fill_na,omitempty"`

	// text
	TextTransform     string `json:"text_transform,omitempty"` // upper, lower, title, capitalize, trim
	RemoveAccents     bool   `json:"remove_accents,omitempty"`
	RemoveExtraSpaces *bool  `json:"remove_extra_spaces,omitempty"` // default true

	// replace
	ReplaceFrom   string `json:"replace_from,omitempty"`
	ReplaceTo     string `json:"replace_to,omitempty"`
	UseRegex      bool   `json:"use_regex,omitempty"`
	CaseSensitive *bool  `json:"case_sensitive,omitempty"` // default true

	// regex
	Pattern         string `json:"pattern,omitempty"`
	Replacement     string `json:"replacement,omitempty"`
	ExtractGroup    *int   `json:"extract_group,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`

	// mathematical
	Operation string  `json:"operation,omitempty"` // add, subtract, multiply, divide, power, sqrt, log, log10, abs, round
	Operand   float64 `json:"operand,omitempty"`

	// conditional
	Conditions   []ConditionalCase `json:"conditions,omitempty"`
	DefaultValue any               `json:"default_value,omitempty"`

	// custom
	Name       string         `json:"name,omitempty"`       // registered transformation name
	Expression string         `json:"expression,omitempty"` // inline expression
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ColumnTransform is one declarative transformation applied to a column.
type ColumnTransform struct {
	Type    TransformKind    `json:"type"`
	Options TransformOptions `json:"options"`
}

// TransformSpec maps column names to their transformation. Supplied per
// job and not persisted by the core.
type TransformSpec map[string]ColumnTransform

// TransformLogEntry records one applied (or failed) column transformation.
type TransformLogEntry struct {
	Column    string        `json:"column"`
	Type      TransformKind `json:"type"`
	Status    string        `json:"status"` // success or error
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// CustomTransformation is a caller-registered expression kept in the
// transformation registry. The expression is validated at registration
// and evaluated per value inside the sandbox at load time.
type CustomTransformation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description,omitempty"`
	Expression  string    `gorm:"type:text;not null" json:"expression"`
	Parameters  string    `gorm:"type:text" json:"-"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for CustomTransformation.
func (CustomTransformation) TableName() string {
	return "custom_transformations"
}
