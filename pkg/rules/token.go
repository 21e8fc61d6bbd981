// Package rules implements the security-rules DSL: lexer, parser, path
// matcher and expression evaluator, plus the safe-regex guard that bounds
// user-supplied patterns.
package rules

import "fmt"

// Pos is a source position, 1-based line and column plus byte offset
type Pos struct {
	Line   int
	Column int
	Offset int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// TokenType identifies a lexical token
type TokenType int

const (
	TokEOF TokenType = iota
	TokIdent
	TokKeyword
	TokNumber
	TokString
	TokPath

	TokEq      // ==
	TokNeq     // !=
	TokLt      // <
	TokGt      // >
	TokLe      // <=
	TokGe      // >=
	TokAnd     // &&
	TokOr      // ||
	TokBang    // !
	TokPlus    // +
	TokMinus   // -
	TokStar    // *
	TokSlash   // /
	TokPercent // %
	TokAssign  // =

	TokSemi     // ;
	TokColon    // :
	TokComma    // ,
	TokDot      // .
	TokLParen   // (
	TokRParen   // )
	TokLBrace   // {
	TokRBrace   // }
	TokLBracket // [
	TokRBracket // ]
	TokDollar   // $
)

// String returns a readable name for diagnostics
func (t TokenType) String() string {
	switch t {
	case TokEOF:
		return "end of input"
	case TokIdent:
		return "identifier"
	case TokKeyword:
		return "keyword"
	case TokNumber:
		return "number"
	case TokString:
		return "string"
	case TokPath:
		return "path"
	case TokEq:
		return "'=='"
	case TokNeq:
		return "'!='"
	case TokLt:
		return "'<'"
	case TokGt:
		return "'>'"
	case TokLe:
		return "'<='"
	case TokGe:
		return "'>='"
	case TokAnd:
		return "'&&'"
	case TokOr:
		return "'||'"
	case TokBang:
		return "'!'"
	case TokPlus:
		return "'+'"
	case TokMinus:
		return "'-'"
	case TokStar:
		return "'*'"
	case TokSlash:
		return "'/'"
	case TokPercent:
		return "'%'"
	case TokAssign:
		return "'='"
	case TokSemi:
		return "';'"
	case TokColon:
		return "':'"
	case TokComma:
		return "','"
	case TokDot:
		return "'.'"
	case TokLParen:
		return "'('"
	case TokRParen:
		return "')'"
	case TokLBrace:
		return "'{'"
	case TokRBrace:
		return "'}'"
	case TokLBracket:
		return "'['"
	case TokRBracket:
		return "']'"
	case TokDollar:
		return "'$'"
	default:
		return "unknown token"
	}
}

// Token is one lexical token with its source text and position
type Token struct {
	Type TokenType
	Text string
	Pos  Pos
}

// keywords of the rules DSL
var keywords = map[string]bool{
	"rules_version": true,
	"service":       true,
	"match":         true,
	"allow":         true,
	"if":            true,
	"function":      true,
	"return":        true,
	"true":          true,
	"false":         true,
	"null":          true,
	"in":            true,
	"is":            true,
}

// Is reports whether the token is the given keyword
func (t Token) Is(keyword string) bool {
	return t.Type == TokKeyword && t.Text == keyword
}
