package rules

import "fmt"

// LexError is a lexical error with its source position
type LexError struct {
	Pos     Pos
	Message string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// Lexer produces the token stream of a rules source file
type Lexer struct {
	src  string
	off  int
	line int
	col  int
	// prev tracks the last significant token so '/' can be disambiguated
	// between division and the start of a path literal.
	prev     Token
	havePrev bool
}

// NewLexer creates a lexer over the given source
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, col: 1}
}

// Tokenize lexes the whole source
func Tokenize(src string) ([]Token, error) {
	l := NewLexer(src)
	var toks []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return toks, err
		}
		toks = append(toks, tok)
		if tok.Type == TokEOF {
			return toks, nil
		}
	}
}

func (l *Lexer) pos() Pos {
	return Pos{Line: l.line, Column: l.col, Offset: l.off}
}

func (l *Lexer) peek() byte {
	if l.off >= len(l.src) {
		return 0
	}
	return l.src[l.off]
}

func (l *Lexer) peekAt(n int) byte {
	if l.off+n >= len(l.src) {
		return 0
	}
	return l.src[l.off+n]
}

func (l *Lexer) advance() byte {
	c := l.src[l.off]
	l.off++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *Lexer) errorf(pos Pos, format string, args ...interface{}) error {
	return &LexError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// skipSpace consumes whitespace and comments
func (l *Lexer) skipSpace() error {
	for l.off < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '/' && l.peekAt(1) == '/':
			for l.off < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		case c == '/' && l.peekAt(1) == '*':
			start := l.pos()
			l.advance()
			l.advance()
			closed := false
			for l.off < len(l.src) {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					closed = true
					break
				}
				l.advance()
			}
			if !closed {
				return l.errorf(start, "unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

// Next returns the next token
func (l *Lexer) Next() (Token, error) {
	if err := l.skipSpace(); err != nil {
		return Token{}, err
	}
	start := l.pos()
	if l.off >= len(l.src) {
		return l.emit(Token{Type: TokEOF, Pos: start}), nil
	}

	c := l.peek()
	switch {
	case isIdentStart(c):
		return l.lexWord(start)
	case c >= '0' && c <= '9':
		return l.lexNumber(start)
	case c == '"' || c == '\'':
		return l.lexString(start)
	case c == '/':
		if l.pathMayStart() {
			return l.lexPath(start)
		}
		l.advance()
		return l.emit(Token{Type: TokSlash, Text: "/", Pos: start}), nil
	}

	return l.lexOperator(start)
}

func (l *Lexer) emit(tok Token) Token {
	l.prev = tok
	l.havePrev = true
	return tok
}

// pathMayStart reports whether a '/' begins a path literal rather than a
// division: only when the previous token cannot end an operand.
func (l *Lexer) pathMayStart() bool {
	if !l.havePrev {
		return true
	}
	switch l.prev.Type {
	case TokIdent, TokNumber, TokString, TokPath, TokRParen, TokRBracket:
		return false
	case TokKeyword:
		switch l.prev.Text {
		case "true", "false", "null":
			return false
		}
		return true
	default:
		return true
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func (l *Lexer) lexWord(start Pos) (Token, error) {
	begin := l.off
	for l.off < len(l.src) && isIdentPart(l.peek()) {
		l.advance()
	}
	text := l.src[begin:l.off]
	typ := TokIdent
	if keywords[text] {
		typ = TokKeyword
	}
	return l.emit(Token{Type: typ, Text: text, Pos: start}), nil
}

func (l *Lexer) lexNumber(start Pos) (Token, error) {
	begin := l.off
	for l.off < len(l.src) && l.peek() >= '0' && l.peek() <= '9' {
		l.advance()
	}
	if l.peek() == '.' && l.peekAt(1) >= '0' && l.peekAt(1) <= '9' {
		l.advance()
		for l.off < len(l.src) && l.peek() >= '0' && l.peek() <= '9' {
			l.advance()
		}
	}
	return l.emit(Token{Type: TokNumber, Text: l.src[begin:l.off], Pos: start}), nil
}

func (l *Lexer) lexString(start Pos) (Token, error) {
	quote := l.advance()
	var out []byte
	for {
		if l.off >= len(l.src) || l.peek() == '\n' {
			return Token{}, l.errorf(start, "unterminated string")
		}
		c := l.advance()
		if c == quote {
			return l.emit(Token{Type: TokString, Text: string(out), Pos: start}), nil
		}
		if c != '\\' {
			out = append(out, c)
			continue
		}
		if l.off >= len(l.src) {
			return Token{}, l.errorf(start, "unterminated string")
		}
		esc := l.advance()
		switch esc {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '\\', '"', '\'':
			out = append(out, esc)
		default:
			return Token{}, l.errorf(start, "invalid escape sequence '\\%c'", esc)
		}
	}
}

// lexPath scans a path literal: /seg/{name}/{name=**}/$(expr)/... The raw
// text including braces and interpolations is kept for the parser.
func (l *Lexer) lexPath(start Pos) (Token, error) {
	begin := l.off
	for l.off < len(l.src) && l.peek() == '/' {
		l.advance()
		switch {
		case l.peek() == '{':
			open := l.pos()
			l.advance()
			closed := false
			for l.off < len(l.src) && l.peek() != '\n' {
				if l.advance() == '}' {
					closed = true
					break
				}
			}
			if !closed {
				return Token{}, l.errorf(open, "unterminated path wildcard")
			}
		case l.peek() == '$' && l.peekAt(1) == '(':
			open := l.pos()
			l.advance()
			l.advance()
			depth := 1
			for l.off < len(l.src) && depth > 0 {
				switch l.peek() {
				case '(':
					depth++
				case ')':
					depth--
				case '"', '\'':
					q := l.advance()
					for l.off < len(l.src) && l.peek() != q {
						if l.peek() == '\\' {
							l.advance()
						}
						if l.off < len(l.src) {
							l.advance()
						}
					}
					if l.off >= len(l.src) {
						return Token{}, l.errorf(open, "unterminated string in path interpolation")
					}
				}
				l.advance()
			}
			if depth != 0 {
				return Token{}, l.errorf(open, "unbalanced parentheses in path interpolation")
			}
		default:
			for l.off < len(l.src) && isPathSegmentChar(l.peek()) {
				l.advance()
			}
		}
	}
	return l.emit(Token{Type: TokPath, Text: l.src[begin:l.off], Pos: start}), nil
}

// isPathSegmentChar accepts the characters of a literal path segment
func isPathSegmentChar(c byte) bool {
	switch {
	case isIdentPart(c):
		return true
	case c == '-' || c == '.' || c == '~' || c == '%' || c == '@':
		return true
	default:
		return false
	}
}

func (l *Lexer) lexOperator(start Pos) (Token, error) {
	c := l.advance()
	two := func(next byte, t2 TokenType, t1 TokenType) (Token, error) {
		if l.peek() == next {
			l.advance()
			return l.emit(Token{Type: t2, Text: l.src[start.Offset:l.off], Pos: start}), nil
		}
		return l.emit(Token{Type: t1, Text: string(c), Pos: start}), nil
	}

	switch c {
	case '=':
		return two('=', TokEq, TokAssign)
	case '!':
		return two('=', TokNeq, TokBang)
	case '<':
		return two('=', TokLe, TokLt)
	case '>':
		return two('=', TokGe, TokGt)
	case '&':
		if l.peek() == '&' {
			l.advance()
			return l.emit(Token{Type: TokAnd, Text: "&&", Pos: start}), nil
		}
		return Token{}, l.errorf(start, "unexpected character '&'")
	case '|':
		if l.peek() == '|' {
			l.advance()
			return l.emit(Token{Type: TokOr, Text: "||", Pos: start}), nil
		}
		return Token{}, l.errorf(start, "unexpected character '|'")
	case '+':
		return l.emit(Token{Type: TokPlus, Text: "+", Pos: start}), nil
	case '-':
		return l.emit(Token{Type: TokMinus, Text: "-", Pos: start}), nil
	case '*':
		return l.emit(Token{Type: TokStar, Text: "*", Pos: start}), nil
	case '%':
		return l.emit(Token{Type: TokPercent, Text: "%", Pos: start}), nil
	case ';':
		return l.emit(Token{Type: TokSemi, Text: ";", Pos: start}), nil
	case ':':
		return l.emit(Token{Type: TokColon, Text: ":", Pos: start}), nil
	case ',':
		return l.emit(Token{Type: TokComma, Text: ",", Pos: start}), nil
	case '.':
		return l.emit(Token{Type: TokDot, Text: ".", Pos: start}), nil
	case '(':
		return l.emit(Token{Type: TokLParen, Text: "(", Pos: start}), nil
	case ')':
		return l.emit(Token{Type: TokRParen, Text: ")", Pos: start}), nil
	case '{':
		return l.emit(Token{Type: TokLBrace, Text: "{", Pos: start}), nil
	case '}':
		return l.emit(Token{Type: TokRBrace, Text: "}", Pos: start}), nil
	case '[':
		return l.emit(Token{Type: TokLBracket, Text: "[", Pos: start}), nil
	case ']':
		return l.emit(Token{Type: TokRBracket, Text: "]", Pos: start}), nil
	case '$':
		return l.emit(Token{Type: TokDollar, Text: "$", Pos: start}), nil
	}
	return Token{}, l.errorf(start, "unexpected character %q", string(c))
}
