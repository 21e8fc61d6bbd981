package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError is a syntax error with its source position
type ParseError struct {
	Pos     Pos
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// allowedServices are the service names the parser accepts
var allowedServices = map[string]bool{
	"cloud.firestore":  true,
	"firebase.storage": true,
}

// allowedOps are the operations an allow statement may grant
var allowedOps = map[string]bool{
	"read":   true,
	"write":  true,
	"get":    true,
	"list":   true,
	"create": true,
	"update": true,
	"delete": true,
}

// Parser is a recursive-descent parser over a token stream
type Parser struct {
	toks    []Token
	pos     int
	errs    []error
	recover bool
}

// Parse parses a ruleset strictly, failing on the first error
func Parse(src string) (*File, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	file, err := p.parseFile()
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ParseLenient parses with error recovery, returning a best-effort AST
// plus every error encountered.
func ParseLenient(src string) (*File, []error) {
	toks, lexErr := Tokenize(src)
	p := &Parser{toks: toks, recover: true}
	if lexErr != nil {
		p.errs = append(p.errs, lexErr)
	}
	if len(toks) == 0 || toks[len(toks)-1].Type != TokEOF {
		p.toks = append(p.toks, Token{Type: TokEOF})
	}
	file, err := p.parseFile()
	if err != nil {
		p.errs = append(p.errs, err)
	}
	if file == nil {
		file = &File{Version: "1"}
	}
	return file, p.errs
}

// ParseExpression parses a standalone expression, used for path
// interpolations.
func ParseExpression(src string) (Expr, error) {
	toks, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{toks: toks}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokEOF {
		return nil, p.failf(p.cur().Pos, "unexpected %s after expression", p.cur().Type)
	}
	return expr, nil
}

func (p *Parser) cur() Token {
	if p.pos >= len(p.toks) {
		return Token{Type: TokEOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) next() Token {
	tok := p.cur()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return tok
}

func (p *Parser) accept(typ TokenType) (Token, bool) {
	if p.cur().Type == typ {
		return p.next(), true
	}
	return Token{}, false
}

func (p *Parser) expect(typ TokenType) (Token, error) {
	if p.cur().Type == typ {
		return p.next(), nil
	}
	return Token{}, p.failf(p.cur().Pos, "expected %s, found %s", typ, p.describe(p.cur()))
}

func (p *Parser) expectKeyword(kw string) (Token, error) {
	if p.cur().Is(kw) {
		return p.next(), nil
	}
	return Token{}, p.failf(p.cur().Pos, "expected '%s', found %s", kw, p.describe(p.cur()))
}

func (p *Parser) describe(tok Token) string {
	switch tok.Type {
	case TokEOF:
		return "end of input"
	case TokIdent, TokKeyword, TokNumber:
		return fmt.Sprintf("'%s'", tok.Text)
	case TokString:
		return fmt.Sprintf("string %q", tok.Text)
	case TokPath:
		return fmt.Sprintf("path '%s'", tok.Text)
	default:
		return tok.Type.String()
	}
}

func (p *Parser) failf(pos Pos, format string, args ...interface{}) error {
	return &ParseError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// record stores an error in recovery mode; in strict mode errors abort
// through return values before reaching here.
func (p *Parser) record(err error) {
	p.errs = append(p.errs, err)
}

// sync skips tokens to a statement boundary: past the next semicolon, or
// up to a closing brace.
func (p *Parser) sync() {
	for {
		switch p.cur().Type {
		case TokEOF, TokRBrace:
			return
		case TokSemi:
			p.next()
			return
		}
		p.next()
	}
}

func (p *Parser) parseFile() (*File, error) {
	file := &File{Version: "1", Pos: p.cur().Pos}

	if p.cur().Is("rules_version") {
		p.next()
		if _, err := p.expect(TokAssign); err != nil {
			return file, err
		}
		ver, err := p.expect(TokString)
		if err != nil {
			return file, err
		}
		file.Version = ver.Text
		if _, err := p.expect(TokSemi); err != nil {
			return file, err
		}
	}

	for p.cur().Type != TokEOF {
		if !p.cur().Is("service") {
			err := p.failf(p.cur().Pos, "expected 'service', found %s", p.describe(p.cur()))
			if !p.recover {
				return file, err
			}
			p.record(err)
			p.next()
			continue
		}
		svc, err := p.parseService()
		if err != nil {
			if !p.recover {
				return file, err
			}
			p.record(err)
			p.sync()
			continue
		}
		file.Services = append(file.Services, svc)
	}
	return file, nil
}

func (p *Parser) parseService() (*Service, error) {
	kw, err := p.expectKeyword("service")
	if err != nil {
		return nil, err
	}
	svc := &Service{Pos: kw.Pos}

	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	parts := []string{name.Text}
	for {
		if _, ok := p.accept(TokDot); !ok {
			break
		}
		part, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part.Text)
	}
	svc.Name = strings.Join(parts, ".")
	if !allowedServices[svc.Name] {
		return nil, p.failf(name.Pos, "unknown service %q", svc.Name)
	}

	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	for p.cur().Is("match") {
		m, err := p.parseMatch()
		if err != nil {
			if !p.recover {
				return nil, err
			}
			p.record(err)
			p.sync()
			continue
		}
		svc.Matches = append(svc.Matches, m)
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return svc, nil
}

func (p *Parser) parseMatch() (*MatchBlock, error) {
	kw, err := p.expectKeyword("match")
	if err != nil {
		return nil, err
	}
	block := &MatchBlock{Pos: kw.Pos}

	pathTok, err := p.expect(TokPath)
	if err != nil {
		return nil, err
	}
	tmpl, err := parsePathTemplate(pathTok.Text, pathTok.Pos)
	if err != nil {
		return nil, err
	}
	block.Pattern = tmpl

	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		switch {
		case tok.Type == TokRBrace:
			p.next()
			return block, nil
		case tok.Is("match"):
			m, err := p.parseMatch()
			if err != nil {
				if !p.recover {
					return nil, err
				}
				p.record(err)
				p.sync()
				continue
			}
			block.Matches = append(block.Matches, m)
		case tok.Is("allow"):
			a, err := p.parseAllow()
			if err != nil {
				if !p.recover {
					return nil, err
				}
				p.record(err)
				p.sync()
				continue
			}
			block.Allows = append(block.Allows, a)
		case tok.Is("function"):
			f, err := p.parseFunction()
			if err != nil {
				if !p.recover {
					return nil, err
				}
				p.record(err)
				p.sync()
				continue
			}
			block.Functions = append(block.Functions, f)
		case tok.Type == TokEOF:
			return nil, p.failf(tok.Pos, "unexpected end of input inside match block")
		default:
			err := p.failf(tok.Pos, "expected 'match', 'allow', 'function' or '}', found %s", p.describe(tok))
			if !p.recover {
				return nil, err
			}
			p.record(err)
			p.sync()
		}
	}
}

func (p *Parser) parseAllow() (*AllowStatement, error) {
	kw, err := p.expectKeyword("allow")
	if err != nil {
		return nil, err
	}
	stmt := &AllowStatement{Pos: kw.Pos}

	for {
		op, err := p.expect(TokIdent)
		if err != nil {
			return nil, err
		}
		if !allowedOps[op.Text] {
			return nil, p.failf(op.Pos, "unknown operation %q", op.Text)
		}
		stmt.Ops = append(stmt.Ops, op.Text)
		if _, ok := p.accept(TokComma); !ok {
			break
		}
	}

	if _, ok := p.accept(TokColon); ok {
		if _, err := p.expectKeyword("if"); err != nil {
			return nil, err
		}
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Condition = cond
	}
	if _, err := p.expect(TokSemi); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseFunction() (*FunctionDecl, error) {
	kw, err := p.expectKeyword("function")
	if err != nil {
		return nil, err
	}
	fn := &FunctionDecl{Pos: kw.Pos}

	name, err := p.expect(TokIdent)
	if err != nil {
		return nil, err
	}
	fn.Name = name.Text

	if _, err := p.expect(TokLParen); err != nil {
		return nil, err
	}
	if p.cur().Type != TokRParen {
		for {
			param, err := p.expect(TokIdent)
			if err != nil {
				return nil, err
			}
			fn.Params = append(fn.Params, param.Text)
			if _, ok := p.accept(TokComma); !ok {
				break
			}
		}
	}
	if _, err := p.expect(TokRParen); err != nil {
		return nil, err
	}

	if _, err := p.expect(TokLBrace); err != nil {
		return nil, err
	}
	if _, err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	fn.Body = body
	if _, err := p.expect(TokSemi); err != nil {
		return nil, err
	}
	if _, err := p.expect(TokRBrace); err != nil {
		return nil, err
	}
	return fn, nil
}

// Expression grammar, lowest precedence first.

func (p *Parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokOr {
		op := p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokAnd {
		op := p.next()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *Parser) parseEquality() (Expr, error) {
	left, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		tok := p.cur()
		switch {
		case tok.Type == TokEq:
			op = "=="
		case tok.Type == TokNeq:
			op = "!="
		case tok.Is("in"):
			op = "in"
		case tok.Is("is"):
			op = "is"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
}

func (p *Parser) parseRelational() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		tok := p.cur()
		switch tok.Type {
		case TokLt:
			op = "<"
		case TokGt:
			op = ">"
		case TokLe:
			op = "<="
		case TokGe:
			op = ">="
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		tok := p.cur()
		switch tok.Type {
		case TokPlus:
			op = "+"
		case TokMinus:
			op = "-"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		tok := p.cur()
		switch tok.Type {
		case TokStar:
			op = "*"
		case TokSlash:
			op = "/"
		case TokPercent:
			op = "%"
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case TokBang:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "!", Operand: operand, Pos: tok.Pos}, nil
	case TokMinus:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", Operand: operand, Pos: tok.Pos}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.cur()
		switch tok.Type {
		case TokDot:
			p.next()
			name := p.cur()
			if name.Type != TokIdent && name.Type != TokKeyword {
				return nil, p.failf(name.Pos, "expected property name, found %s", p.describe(name))
			}
			p.next()
			expr = &MemberExpr{Target: expr, Name: name.Text, Pos: tok.Pos}
		case TokLBracket:
			p.next()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokRBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Target: expr, Key: key, Pos: tok.Pos}
		case TokLParen:
			p.next()
			var args []Expr
			if p.cur().Type != TokRParen {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if _, ok := p.accept(TokComma); !ok {
						break
					}
				}
			}
			if _, err := p.expect(TokRParen); err != nil {
				return nil, err
			}
			expr = &CallExpr{Target: expr, Args: args, Pos: tok.Pos}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.cur()
	switch tok.Type {
	case TokNumber:
		p.next()
		if strings.Contains(tok.Text, ".") {
			f, err := strconv.ParseFloat(tok.Text, 64)
			if err != nil {
				return nil, p.failf(tok.Pos, "invalid number %q", tok.Text)
			}
			return &LiteralExpr{Kind: LitFloat, Dbl: f, Pos: tok.Pos}, nil
		}
		i, err := strconv.ParseInt(tok.Text, 10, 64)
		if err != nil {
			return nil, p.failf(tok.Pos, "invalid number %q", tok.Text)
		}
		return &LiteralExpr{Kind: LitInt, Int: i, Pos: tok.Pos}, nil
	case TokString:
		p.next()
		return &LiteralExpr{Kind: LitString, Str: tok.Text, Pos: tok.Pos}, nil
	case TokIdent:
		p.next()
		return &IdentExpr{Name: tok.Text, Pos: tok.Pos}, nil
	case TokKeyword:
		switch tok.Text {
		case "true", "false":
			p.next()
			return &LiteralExpr{Kind: LitBool, Bool: tok.Text == "true", Pos: tok.Pos}, nil
		case "null":
			p.next()
			return &LiteralExpr{Kind: LitNull, Pos: tok.Pos}, nil
		}
	case TokLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen); err != nil {
			return nil, err
		}
		return expr, nil
	case TokLBracket:
		p.next()
		list := &ListExpr{Pos: tok.Pos}
		if p.cur().Type != TokRBracket {
			for {
				elem, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				list.Elems = append(list.Elems, elem)
				if _, ok := p.accept(TokComma); !ok {
					break
				}
			}
		}
		if _, err := p.expect(TokRBracket); err != nil {
			return nil, err
		}
		return list, nil
	case TokPath:
		p.next()
		tmpl, err := parsePathTemplate(tok.Text, tok.Pos)
		if err != nil {
			return nil, err
		}
		return &PathExpr{Template: tmpl, Pos: tok.Pos}, nil
	}
	return nil, p.failf(tok.Pos, "unexpected %s", p.describe(tok))
}

// parsePathTemplate splits the raw text of a path literal into segments:
// literals, {name} wildcards, {name=**} recursive wildcards and $(expr)
// interpolations.
func parsePathTemplate(raw string, pos Pos) (*PathTemplate, error) {
	tmpl := &PathTemplate{Raw: raw, Pos: pos}
	rest := raw
	for len(rest) > 0 {
		if rest[0] != '/' {
			return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("malformed path %q", raw)}
		}
		rest = rest[1:]
		switch {
		case len(rest) > 0 && rest[0] == '{':
			end := strings.IndexByte(rest, '}')
			if end < 0 {
				return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("unterminated wildcard in path %q", raw)}
			}
			inner := rest[1:end]
			rest = rest[end+1:]
			if name, ok := strings.CutSuffix(inner, "=**"); ok {
				if name == "" {
					return nil, &ParseError{Pos: pos, Message: "recursive wildcard needs a name"}
				}
				tmpl.Segments = append(tmpl.Segments, PathSegment{Kind: SegRecursive, Text: name})
			} else {
				if inner == "" {
					return nil, &ParseError{Pos: pos, Message: "wildcard needs a name"}
				}
				tmpl.Segments = append(tmpl.Segments, PathSegment{Kind: SegWildcard, Text: inner})
			}
		case strings.HasPrefix(rest, "$("):
			end := matchParen(rest[1:])
			if end < 0 {
				return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("unbalanced interpolation in path %q", raw)}
			}
			snippet := rest[2 : 1+end]
			rest = rest[2+end:]
			expr, err := ParseExpression(snippet)
			if err != nil {
				return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("in path interpolation: %v", err)}
			}
			tmpl.Segments = append(tmpl.Segments, PathSegment{Kind: SegInterp, Text: snippet, Expr: expr})
		default:
			end := strings.IndexByte(rest, '/')
			if end < 0 {
				end = len(rest)
			}
			seg := rest[:end]
			rest = rest[end:]
			if seg == "" {
				continue // collapse empty segments
			}
			tmpl.Segments = append(tmpl.Segments, PathSegment{Kind: SegLiteral, Text: seg})
		}
	}
	if len(tmpl.Segments) == 0 {
		return nil, &ParseError{Pos: pos, Message: fmt.Sprintf("empty path %q", raw)}
	}
	return tmpl, nil
}

// matchParen returns the index of the ')' balancing s[0] which must be
// '(', or -1.
func matchParen(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '"', '\'':
			q := s[i]
			for i++; i < len(s) && s[i] != q; i++ {
				if s[i] == '\\' {
					i++
				}
			}
		}
	}
	return -1
}
