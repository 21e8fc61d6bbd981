package rules

// Node is any AST node with a source position
type Node interface {
	Position() Pos
}

// File is a parsed ruleset source file
type File struct {
	Version  string
	Services []*Service
	Pos      Pos
}

func (f *File) Position() Pos { return f.Pos }

// Service is a service declaration and its match blocks
type Service struct {
	Name    string
	Matches []*MatchBlock
	Pos     Pos
}

func (s *Service) Position() Pos { return s.Pos }

// MatchBlock is a match statement: a path pattern plus nested blocks,
// allow statements and function declarations.
type MatchBlock struct {
	Pattern   *PathTemplate
	Matches   []*MatchBlock
	Allows    []*AllowStatement
	Functions []*FunctionDecl
	Pos       Pos
}

func (m *MatchBlock) Position() Pos { return m.Pos }

// AllowStatement grants a set of operations, optionally behind a condition
type AllowStatement struct {
	Ops       []string
	Condition Expr // nil grants unconditionally
	Pos       Pos
}

func (a *AllowStatement) Position() Pos { return a.Pos }

// FunctionDecl is a user-defined function with a single return expression
type FunctionDecl struct {
	Name   string
	Params []string
	Body   Expr
	Pos    Pos
}

func (f *FunctionDecl) Position() Pos { return f.Pos }

// Expr is an expression node
type Expr interface {
	Node
	exprNode()
}

// LiteralExpr is a null, boolean, number or string literal
type LiteralExpr struct {
	Kind LiteralKind
	Bool bool
	Int  int64
	Dbl  float64
	Str  string
	Pos  Pos
}

// LiteralKind selects the literal payload
type LiteralKind int

const (
	LitNull LiteralKind = iota
	LitBool
	LitInt
	LitFloat
	LitString
)

func (e *LiteralExpr) Position() Pos { return e.Pos }
func (e *LiteralExpr) exprNode()     {}

// IdentExpr references a name: a context identifier, wildcard binding,
// function or parameter.
type IdentExpr struct {
	Name string
	Pos  Pos
}

func (e *IdentExpr) Position() Pos { return e.Pos }
func (e *IdentExpr) exprNode()     {}

// BinaryExpr is a binary operation; Op is the operator's source text
// ("==", "&&", "in", "is", ...).
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Pos   Pos
}

func (e *BinaryExpr) Position() Pos { return e.Pos }
func (e *BinaryExpr) exprNode()     {}

// UnaryExpr is ! or unary -
type UnaryExpr struct {
	Op      string
	Operand Expr
	Pos     Pos
}

func (e *UnaryExpr) Position() Pos { return e.Pos }
func (e *UnaryExpr) exprNode()     {}

// MemberExpr is dot access, target.name
type MemberExpr struct {
	Target Expr
	Name   string
	Pos    Pos
}

func (e *MemberExpr) Position() Pos { return e.Pos }
func (e *MemberExpr) exprNode()     {}

// IndexExpr is computed access, target[key]
type IndexExpr struct {
	Target Expr
	Key    Expr
	Pos    Pos
}

func (e *IndexExpr) Position() Pos { return e.Pos }
func (e *IndexExpr) exprNode()     {}

// CallExpr invokes a builtin, user function or method. Target is an
// IdentExpr or MemberExpr.
type CallExpr struct {
	Target Expr
	Args   []Expr
	Pos    Pos
}

func (e *CallExpr) Position() Pos { return e.Pos }
func (e *CallExpr) exprNode()     {}

// ListExpr is a list literal
type ListExpr struct {
	Elems []Expr
	Pos   Pos
}

func (e *ListExpr) Position() Pos { return e.Pos }
func (e *ListExpr) exprNode()     {}

// PathExpr is a path literal used as an expression; interpolations are
// resolved at evaluation time.
type PathExpr struct {
	Template *PathTemplate
	Pos      Pos
}

func (e *PathExpr) Position() Pos { return e.Pos }
func (e *PathExpr) exprNode()     {}

// SegmentKind classifies a path template segment
type SegmentKind int

const (
	SegLiteral SegmentKind = iota
	SegWildcard
	SegRecursive
	SegInterp
)

// PathSegment is one segment of a path template
type PathSegment struct {
	Kind SegmentKind
	Text string // literal text or wildcard name
	Expr Expr   // interpolation expression
}

// PathTemplate is a parsed path literal: its raw source text and segments
type PathTemplate struct {
	Raw      string
	Segments []PathSegment
	Pos      Pos
}
