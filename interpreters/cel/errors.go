package cel

import (
	"encoding/json"
	"errors"
	"fmt"

	celgo "github.com/google/cel-go/cel"
)

var (
	// ErrExpressionCheck is returned when a CEL rule fails syntax or
	// type checking.
	ErrExpressionCheck = errors.New("CEL expression check failed")

	// ErrEvaluation is returned when a CEL rule fails at runtime.
	ErrEvaluation = errors.New("CEL expression evaluation failed")

	// ErrInvalidResult is returned when a rule's result can't be
	// turned into a FilterX object.
	ErrInvalidResult = errors.New("CEL expression returned invalid result type")
)

// ErrKind says which compilation phase failed.
type ErrKind string

const (
	ErrKindParse ErrKind = "parse"
	ErrKindCheck ErrKind = "check"
)

// ErrInstance is one problem at one place in a rule.
type ErrInstance struct {
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// ErrDetails lists the problems found in a rule.
type ErrDetails struct {
	Errors []ErrInstance `json:"errors,omitempty"`
	Source string        `json:"source,omitempty"`
}

// AsJSON returns the details as a JSON string.
func (ed *ErrDetails) AsJSON() string {
	bs, err := json.Marshal(ed)
	if err != nil {
		return fmt.Sprintf(`{"error": "failed to marshal JSON: %s"}`, err)
	}
	return string(bs)
}

func errDetails(source string, issues *celgo.Issues) ErrDetails {
	ed := ErrDetails{
		Source: source,
		Errors: make([]ErrInstance, 0, len(issues.Errors())),
	}
	for _, err := range issues.Errors() {
		ed.Errors = append(ed.Errors, ErrInstance{
			Line: err.Location.Line(),
			Col:  err.Location.Column(),
			Msg:  err.Message,
		})
	}
	return ed
}

// ParseError is a syntax error in a rule.
type ParseError struct {
	ErrDetails
	original error
}

func (pe *ParseError) Error() string {
	return fmt.Sprintf("CEL %s error in expression %q: %s", ErrKindParse, pe.Source, pe.original)
}

func (pe *ParseError) Unwrap() error {
	return pe.original
}

// CheckError is a type error in a rule.
type CheckError struct {
	ErrDetails
	original error
}

func (ce *CheckError) Error() string {
	return fmt.Sprintf("CEL %s error in expression %q: %s", ErrKindCheck, ce.Source, ce.original)
}

func (ce *CheckError) Unwrap() error {
	return ce.original
}

func newParseError(source string, issues *celgo.Issues) error {
	return &ParseError{
		ErrDetails: errDetails(source, issues),
		original:   fmt.Errorf("%w: %w", ErrExpressionCheck, issues.Err()),
	}
}

func newCheckError(source string, issues *celgo.Issues) error {
	return &CheckError{
		ErrDetails: errDetails(source, issues),
		original:   fmt.Errorf("%w: %w", ErrExpressionCheck, issues.Err()),
	}
}
