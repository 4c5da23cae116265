package native

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OverOrion/axosyslog/filterx"
)

// parser is a recursive descent parser over the token list.
//
// Every method returning a filterx.Expr hands over one reference.  On
// error, whatever was built so far has been released.
type parser struct {
	file string
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) prev() token {
	return p.toks[p.i-1]
}

func (p *parser) match(tt ...tokenType) bool {
	for _, t := range tt {
		if p.peek().Type == t {
			p.i++
			return true
		}
	}
	return false
}

func (p *parser) errorf(t token, format string, args ...interface{}) error {
	return &SyntaxError{File: p.file, Line: t.Line, Col: t.Col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) need(tt tokenType) (token, error) {
	t := p.peek()
	if t.Type != tt {
		return t, p.errorf(t, "expected %s, got %q", tt, t.Text)
	}
	p.i++
	return t, nil
}

// loc covers the source from start to the previous token.
func (p *parser) loc(start token) filterx.Location {
	if p.i == 0 {
		return filterx.Location{File: p.file, Line: start.Line, Column: start.Col}
	}
	end := p.prev().End
	if end < start.Off {
		end = start.End
	}
	return filterx.Location{
		File:   p.file,
		Line:   start.Line,
		Column: start.Col,
		Text:   strings.TrimSpace(p.src[start.Off:end]),
	}
}

func located[E interface {
	filterx.Expr
	SetLocation(filterx.Location)
}](p *parser, e E, start token) E {
	return filterx.WithLocation(e, p.loc(start))
}

func unrefAll(es []filterx.Expr) {
	for _, e := range es {
		e.Unref()
	}
}

func (p *parser) skipSemis() {
	for p.match(tSemi) {
	}
}

// program := stmt ((';' | newline) stmt)*
func (p *parser) program() (filterx.Expr, error) {
	var stmts []filterx.Expr
	p.skipSemis()
	start := p.peek()
	for p.peek().Type != tEOF {
		s, err := p.statement()
		if err != nil {
			unrefAll(stmts)
			return nil, err
		}
		stmts = append(stmts, s)
		if p.peek().Type == tEOF {
			break
		}
		if _, err := p.need(tSemi); err != nil {
			unrefAll(stmts)
			return nil, err
		}
		p.skipSemis()
	}
	c := filterx.NewCompound(stmts...)
	l := p.loc(start)
	if n := strings.IndexByte(l.Text, '\n'); n >= 0 {
		l.Text = l.Text[:n]
	}
	c.SetLocation(l)
	return c, nil
}

// statement := target '=' expr | expr
func (p *parser) statement() (filterx.Expr, error) {
	start := p.peek()
	lhs, err := p.expr()
	if err != nil {
		return nil, err
	}
	if !p.match(tAssign) {
		return lhs, nil
	}
	eq := p.prev()

	rhs, err := p.expr()
	if err != nil {
		lhs.Unref()
		return nil, err
	}

	switch target := lhs.(type) {
	case *filterx.Variable:
		return located(p, filterx.NewAssign(target, rhs), start), nil
	case *filterx.GetAttr:
		obj := target.Obj
		obj.Ref()
		key := target.Key
		target.Unref()
		return located(p, filterx.NewSetAttr(obj, key, rhs), start), nil
	}
	lhs.Unref()
	rhs.Unref()
	return nil, p.errorf(eq, "can't assign to %s", start.Text)
}

func (p *parser) expr() (filterx.Expr, error) {
	return p.or()
}

func (p *parser) or() (filterx.Expr, error) {
	start := p.peek()
	lhs, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.match(tOr) {
		rhs, err := p.and()
		if err != nil {
			lhs.Unref()
			return nil, err
		}
		lhs = located(p, filterx.NewOr(lhs, rhs), start)
	}
	return lhs, nil
}

func (p *parser) and() (filterx.Expr, error) {
	start := p.peek()
	lhs, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.match(tAnd) {
		rhs, err := p.not()
		if err != nil {
			lhs.Unref()
			return nil, err
		}
		lhs = located(p, filterx.NewAnd(lhs, rhs), start)
	}
	return lhs, nil
}

func (p *parser) not() (filterx.Expr, error) {
	start := p.peek()
	if p.match(tNot) {
		operand, err := p.not()
		if err != nil {
			return nil, err
		}
		return located(p, filterx.NewNot(operand), start), nil
	}
	return p.comparison()
}

// comparison := postfix (op postfix)?
func (p *parser) comparison() (filterx.Expr, error) {
	start := p.peek()
	lhs, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if !p.match(tCompare) {
		return lhs, nil
	}
	opTok := p.prev()
	op, err := filterx.ParseCompareOp(opTok.Text)
	if err != nil {
		lhs.Unref()
		return nil, p.errorf(opTok, "%s", err)
	}
	rhs, err := p.postfix()
	if err != nil {
		lhs.Unref()
		return nil, err
	}
	if p.peek().Type == tCompare {
		lhs.Unref()
		rhs.Unref()
		return nil, p.errorf(p.peek(), "comparisons don't chain")
	}
	return located(p, filterx.NewCompare(op, lhs, rhs), start), nil
}

// postfix := primary ('.' name)*
func (p *parser) postfix() (filterx.Expr, error) {
	start := p.peek()
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for p.match(tPeriod) {
		t := p.peek()
		if t.Type != tID && t.Type != tString && t.Type != tRawString {
			e.Unref()
			return nil, p.errorf(t, "expected attribute name, got %q", t.Text)
		}
		p.i++
		e = located(p, filterx.NewGetAttr(e, t.Value), start)
	}
	return e, nil
}

func (p *parser) primary() (filterx.Expr, error) {
	t := p.peek()
	p.i++

	switch t.Type {
	case tMsgRef:
		return located(p, filterx.NewMessageRef(t.Value), t), nil
	case tTrue, tFalse:
		return p.literal(filterx.NewBoolean(t.Type == tTrue), t), nil
	case tNull:
		return p.literal(filterx.NewNull(), t), nil
	case tDrop:
		return located(p, filterx.NewDrop(), t), nil
	case tDone:
		return located(p, filterx.NewDone(), t), nil
	case tInteger:
		n, err := strconv.ParseInt(t.Text, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "bad integer: %s", err)
		}
		return p.literal(filterx.NewInteger(n), t), nil
	case tNumber:
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, p.errorf(t, "bad number: %s", err)
		}
		return p.literal(filterx.NewDouble(f), t), nil
	case tString:
		if strings.IndexByte(t.Value, '$') >= 0 {
			return located(p, filterx.NewTemplate(t.Value), t), nil
		}
		return p.literal(filterx.NewString(t.Value), t), nil
	case tRawString:
		return p.literal(filterx.NewString(t.Value), t), nil
	case tLRound:
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.need(tRRound); err != nil {
			e.Unref()
			return nil, err
		}
		return e, nil
	case tLSquare:
		return p.list(t)
	case tLCurly:
		return p.dict(t)
	case tID:
		if p.peek().Type == tLRound {
			return p.call(t)
		}
		return located(p, filterx.NewFloatingVariable(t.Value), t), nil
	}

	if t.Type == tEOF {
		return nil, p.errorf(t, "unexpected %s", t.Type)
	}
	return nil, p.errorf(t, "unexpected %q", t.Text)
}

func (p *parser) literal(o filterx.Object, t token) filterx.Expr {
	return located(p, filterx.NewLiteral(o), t)
}

// args parses a comma separated list up to the closing token, which
// it consumes.
func (p *parser) args(end tokenType) ([]filterx.Expr, error) {
	var acc []filterx.Expr
	if p.match(end) {
		return acc, nil
	}
	for {
		e, err := p.expr()
		if err != nil {
			unrefAll(acc)
			return nil, err
		}
		acc = append(acc, e)
		if p.match(end) {
			return acc, nil
		}
		if _, err := p.need(tComma); err != nil {
			unrefAll(acc)
			return nil, err
		}
		if p.match(end) {
			return acc, nil
		}
	}
}

func (p *parser) variableArg(name token) (*filterx.Variable, error) {
	args, err := p.args(tRRound)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 {
		if v, is := args[0].(*filterx.Variable); is {
			return v, nil
		}
	}
	unrefAll(args)
	return nil, p.errorf(name, "%s() takes one variable", name.Text)
}

// call := name '(' args ')'.  isset() and unset() take a variable
// rather than its value.
func (p *parser) call(name token) (filterx.Expr, error) {
	p.i++ // '('

	switch name.Text {
	case "isset":
		v, err := p.variableArg(name)
		if err != nil {
			return nil, err
		}
		return located(p, filterx.NewIsset(v), name), nil
	case "unset":
		v, err := p.variableArg(name)
		if err != nil {
			return nil, err
		}
		return located(p, filterx.NewUnset(v), name), nil
	}

	args, err := p.args(tRRound)
	if err != nil {
		return nil, err
	}
	c, err := filterx.NewCall(name.Text, args)
	if err != nil {
		unrefAll(args)
		return nil, p.errorf(name, "%s", err)
	}
	return located(p, c, name), nil
}

func (p *parser) list(open token) (filterx.Expr, error) {
	elts, err := p.args(tRSquare)
	if err != nil {
		return nil, err
	}
	return located(p, filterx.NewListLiteral(elts), open), nil
}

// dict := '{' (key ':' expr (',' key ':' expr)* ','?)? '}'
func (p *parser) dict(open token) (filterx.Expr, error) {
	var (
		keys   []string
		values []filterx.Expr
	)
	for !p.match(tRCurly) {
		k := p.peek()
		if k.Type != tString && k.Type != tRawString && k.Type != tID {
			unrefAll(values)
			return nil, p.errorf(k, "expected key, got %q", k.Text)
		}
		p.i++
		if _, err := p.need(tColon); err != nil {
			unrefAll(values)
			return nil, err
		}
		v, err := p.expr()
		if err != nil {
			unrefAll(values)
			return nil, err
		}
		keys = append(keys, k.Value)
		values = append(values, v)
		if p.match(tRCurly) {
			break
		}
		if _, err := p.need(tComma); err != nil {
			unrefAll(values)
			return nil, err
		}
	}
	return located(p, filterx.NewDictLiteral(keys, values), open), nil
}
