// Package native compiles FilterX blocks written in the FilterX
// statement language.
//
// A block is a list of statements separated by newlines or ';':
//
//	$PROGRAM == "sshd"
//	user = $MESSAGE                # floating variable
//	$.SDATA.meta = {"user": user}  # message-tied, dotted name
//	$doc.level = 3                 # attribute assignment
//	unset($pid); isset($HOST) or drop
//	done
//
// Expressions are message references ($NAME, ${NAME}), floating
// variables, literals (strings, numbers, true, false, null), dict and
// list literals, attribute access, function calls, comparisons and
// and/or/not.  A double-quoted string containing '$' is a template.
package native

import (
	"context"
	"fmt"

	"github.com/OverOrion/axosyslog/filterx"
)

// DefaultFile names the source of rules compiled without one.
const DefaultFile = "filterx"

// Interpreter compiles native FilterX blocks.
type Interpreter struct {
	// File is used in locations when the source doesn't name one.
	File string
}

func NewInterpreter() *Interpreter {
	return &Interpreter{File: DefaultFile}
}

// AsSource accepts a string or a map with "code" and optionally
// "file".
func AsSource(src interface{}) (file, code string, err error) {
	switch vv := src.(type) {
	case string:
		return "", vv, nil
	case map[string]interface{}:
		code, is := vv["code"].(string)
		if !is {
			return "", "", fmt.Errorf("bad native rule code (%T)", vv["code"])
		}
		switch f := vv["file"].(type) {
		case nil:
		case string:
			file = f
		default:
			return "", "", fmt.Errorf("bad native rule file (%T)", f)
		}
		return file, code, nil
	}
	return "", "", fmt.Errorf("bad native source (%T)", src)
}

func (i *Interpreter) Compile(ctx context.Context, src interface{}) (filterx.Expr, error) {
	file, code, err := AsSource(src)
	if err != nil {
		return nil, err
	}
	if file == "" {
		file = i.File
	}
	if file == "" {
		file = DefaultFile
	}
	return Parse(file, code)
}

// Parse compiles code into a compound expression.
func Parse(file, code string) (filterx.Expr, error) {
	toks, err := lex(file, code)
	if err != nil {
		return nil, err
	}
	p := &parser{file: file, src: code, toks: toks}
	return p.program()
}
