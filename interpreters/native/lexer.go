package native

import (
	"fmt"
	"strings"
)

type tokenType int

const (
	tEOF tokenType = iota
	tSemi
	tID
	tMsgRef
	tString
	tRawString
	tInteger
	tNumber
	tLRound
	tRRound
	tLSquare
	tRSquare
	tLCurly
	tRCurly
	tColon
	tComma
	tPeriod
	tAssign
	tCompare
	tAnd
	tOr
	tNot
	tTrue
	tFalse
	tNull
	tDrop
	tDone
)

var tokenNames = map[tokenType]string{
	tEOF: "end of input", tSemi: "';'", tID: "name", tMsgRef: "message reference",
	tString: "string", tRawString: "string", tInteger: "integer", tNumber: "number",
	tLRound: "'('", tRRound: "')'", tLSquare: "'['", tRSquare: "']'",
	tLCurly: "'{'", tRCurly: "'}'", tColon: "':'", tComma: "','", tPeriod: "'.'",
	tAssign: "'='", tCompare: "comparison", tAnd: "'and'", tOr: "'or'", tNot: "'not'",
	tTrue: "'true'", tFalse: "'false'", tNull: "'null'", tDrop: "'drop'", tDone: "'done'",
}

func (t tokenType) String() string {
	return tokenNames[t]
}

var keywords = map[string]tokenType{
	"and":   tAnd,
	"or":    tOr,
	"not":   tNot,
	"true":  tTrue,
	"false": tFalse,
	"null":  tNull,
	"drop":  tDrop,
	"done":  tDone,
}

// token is a lexeme with its position.  Off and End are byte offsets
// into the source; Line and Col are 1-based.
type token struct {
	Type  tokenType
	Text  string
	Value string
	Off   int
	End   int
	Line  int
	Col   int
}

// SyntaxError reports a problem at a position in a rule.
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

type lexer struct {
	file   string
	src    string
	cur    int
	line   int
	col    int
	depth  int
	tokens []token
}

func lex(file, src string) ([]token, error) {
	l := &lexer{file: file, src: src, line: 1, col: 1}
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		l.tokens = append(l.tokens, t)
		if t.Type == tEOF {
			return l.tokens, nil
		}
	}
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &SyntaxError{File: l.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peekByte(n int) byte {
	if l.cur+n < len(l.src) {
		return l.src[l.cur+n]
	}
	return 0
}

func (l *lexer) advance() byte {
	b := l.src[l.cur]
	l.cur++
	if b == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return b
}

func isNameStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isNameByte(b byte) bool {
	return isNameStart(b) || (b >= '0' && b <= '9')
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// skip eats blanks and comments.  Newlines are statement separators
// except inside brackets.
func (l *lexer) skip() {
	for l.cur < len(l.src) {
		switch b := l.src[l.cur]; {
		case b == '\n' && l.depth == 0:
			return
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			l.advance()
		case b == '#':
			for l.cur < len(l.src) && l.src[l.cur] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skip()

	t := token{Off: l.cur, Line: l.line, Col: l.col}
	finish := func(typ tokenType) (token, error) {
		t.Type = typ
		t.End = l.cur
		t.Text = l.src[t.Off:l.cur]
		if typ != tString && typ != tRawString {
			t.Value = t.Text
		}
		return t, nil
	}

	if l.cur >= len(l.src) {
		return finish(tEOF)
	}

	b := l.advance()
	switch b {
	case '\n', ';':
		return finish(tSemi)
	case '(':
		l.depth++
		return finish(tLRound)
	case ')':
		l.depth--
		return finish(tRRound)
	case '[':
		l.depth++
		return finish(tLSquare)
	case ']':
		l.depth--
		return finish(tRSquare)
	case '{':
		l.depth++
		return finish(tLCurly)
	case '}':
		l.depth--
		return finish(tRCurly)
	case ':':
		return finish(tColon)
	case ',':
		return finish(tComma)
	case '.':
		return finish(tPeriod)
	case '=':
		if l.peekByte(0) == '=' {
			l.advance()
			return finish(tCompare)
		}
		return finish(tAssign)
	case '!':
		if l.peekByte(0) == '=' {
			l.advance()
			return finish(tCompare)
		}
		return finish(tNot)
	case '<', '>':
		if l.peekByte(0) == '=' {
			l.advance()
		}
		return finish(tCompare)
	case '&', '|':
		if l.peekByte(0) != b {
			return t, l.errorf(t.Line, t.Col, "unexpected '%c'", b)
		}
		l.advance()
		if b == '&' {
			return finish(tAnd)
		}
		return finish(tOr)
	case '$':
		return l.msgRef(t)
	case '"', '\'':
		s, err := l.str(b, t)
		if err != nil {
			return t, err
		}
		t.Value = s
		if b == '"' {
			return finish(tString)
		}
		return finish(tRawString)
	}

	switch {
	case isDigit(b) || (b == '-' && isDigit(l.peekByte(0))):
		typ := tInteger
		for l.cur < len(l.src) && isDigit(l.src[l.cur]) {
			l.advance()
		}
		if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
			typ = tNumber
			l.advance()
			for l.cur < len(l.src) && isDigit(l.src[l.cur]) {
				l.advance()
			}
		}
		return finish(typ)
	case isNameStart(b):
		for l.cur < len(l.src) && isNameByte(l.src[l.cur]) {
			l.advance()
		}
		if kw, have := keywords[l.src[t.Off:l.cur]]; have {
			return finish(kw)
		}
		return finish(tID)
	}

	return t, l.errorf(t.Line, t.Col, "unexpected '%c'", b)
}

// msgRef lexes $NAME or ${NAME}.  A name that starts with a dot, as in
// $.SDATA.origin.ip, keeps its dots; otherwise a dot is attribute
// access.
func (l *lexer) msgRef(t token) (token, error) {
	var name string
	if l.peekByte(0) == '{' {
		end := strings.IndexByte(l.src[l.cur:], '}')
		if end < 0 {
			return t, l.errorf(t.Line, t.Col, "unterminated ${")
		}
		name = l.src[l.cur+1 : l.cur+end]
		for i := 0; i <= end; i++ {
			l.advance()
		}
	} else {
		start := l.cur
		dotted := l.peekByte(0) == '.'
		for l.cur < len(l.src) && (isNameByte(l.src[l.cur]) || (dotted && l.src[l.cur] == '.')) {
			l.advance()
		}
		name = l.src[start:l.cur]
	}
	if name == "" {
		return t, l.errorf(t.Line, t.Col, "empty message reference")
	}
	t.Type = tMsgRef
	t.Value = name
	t.End = l.cur
	t.Text = l.src[t.Off:l.cur]
	return t, nil
}

func (l *lexer) str(quote byte, t token) (string, error) {
	var sb strings.Builder
	for {
		if l.cur >= len(l.src) {
			return "", l.errorf(t.Line, t.Col, "unterminated string")
		}
		b := l.advance()
		switch {
		case b == quote:
			return sb.String(), nil
		case b == '\n':
			return "", l.errorf(t.Line, t.Col, "newline in string")
		case b == '\\' && quote == '"':
			if l.cur >= len(l.src) {
				return "", l.errorf(t.Line, t.Col, "unterminated string")
			}
			switch e := l.advance(); e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\', '\'':
				sb.WriteByte(e)
			default:
				return "", l.errorf(l.line, l.col-2, "bad escape '\\%c'", e)
			}
		default:
			sb.WriteByte(b)
		}
	}
}
