package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mnohosten/flamestore/pkg/value"
)

// maxEvalDepth caps the combined expression and call recursion depth
const maxEvalDepth = 100

// EvalError is a runtime evaluation failure. It surfaces as a denial,
// never as a crash.
type EvalError struct {
	Pos     Pos
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Message)
}

// evaluator walks one condition expression
type evaluator struct {
	ctx   *EvalContext
	guard *RegexGuard
	funcs map[string]*FunctionDecl
	vars  map[string]*value.Value
	depth int
}

func (e *evaluator) errf(pos Pos, format string, args ...interface{}) error {
	return &EvalError{Pos: pos, Message: fmt.Sprintf(format, args...)}
}

// Truthy implements the DSL's truthiness: null is false, booleans are
// themselves, numbers compare against zero, strings against emptiness,
// everything else is true.
func Truthy(v *value.Value) bool {
	if v == nil {
		return false
	}
	switch v.Type {
	case value.TypeNull:
		return false
	case value.TypeBoolean:
		return v.Bool
	case value.TypeInteger:
		return v.Int != 0
	case value.TypeDouble:
		return v.Dbl != 0
	case value.TypeString:
		return len(v.Str) > 0
	default:
		return true
	}
}

func (e *evaluator) eval(expr Expr) (*value.Value, error) {
	e.depth++
	defer func() { e.depth-- }()
	if e.depth > maxEvalDepth {
		return nil, e.errf(expr.Position(), "evaluation depth exceeds %d", maxEvalDepth)
	}

	switch n := expr.(type) {
	case *LiteralExpr:
		return e.evalLiteral(n), nil
	case *IdentExpr:
		return e.evalIdent(n)
	case *UnaryExpr:
		return e.evalUnary(n)
	case *BinaryExpr:
		return e.evalBinary(n)
	case *MemberExpr:
		return e.evalMember(n)
	case *IndexExpr:
		return e.evalIndex(n)
	case *CallExpr:
		return e.evalCall(n)
	case *ListExpr:
		elems := make([]*value.Value, 0, len(n.Elems))
		for _, el := range n.Elems {
			v, err := e.eval(el)
			if err != nil {
				return nil, err
			}
			elems = append(elems, v)
		}
		return value.ArrayVal(elems...), nil
	case *PathExpr:
		path, err := e.resolvePath(n.Template, n.Pos)
		if err != nil {
			return nil, err
		}
		return value.Reference(path), nil
	}
	return nil, e.errf(expr.Position(), "unsupported expression")
}

func (e *evaluator) evalLiteral(n *LiteralExpr) *value.Value {
	switch n.Kind {
	case LitNull:
		return value.Null()
	case LitBool:
		return value.Boolean(n.Bool)
	case LitInt:
		return value.Integer(n.Int)
	case LitFloat:
		return value.Double(n.Dbl)
	default:
		return value.String(n.Str)
	}
}

func (e *evaluator) evalIdent(n *IdentExpr) (*value.Value, error) {
	if v, ok := e.vars[n.Name]; ok {
		return v, nil
	}
	switch n.Name {
	case "request":
		if e.ctx.Request != nil {
			return e.ctx.Request, nil
		}
		return value.Null(), nil
	case "resource":
		if e.ctx.Resource != nil {
			return e.ctx.Resource, nil
		}
		return value.Null(), nil
	case "database":
		return value.String(e.ctx.Database), nil
	}
	return nil, e.errf(n.Pos, "unknown identifier %q", n.Name)
}

func (e *evaluator) evalUnary(n *UnaryExpr) (*value.Value, error) {
	v, err := e.eval(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case "!":
		return value.Boolean(!Truthy(v)), nil
	case "-":
		switch v.Type {
		case value.TypeInteger:
			return value.Integer(-v.Int), nil
		case value.TypeDouble:
			return value.Double(-v.Dbl), nil
		}
		return nil, e.errf(n.Pos, "unary - requires a number, got %s", v.Type)
	}
	return nil, e.errf(n.Pos, "unknown unary operator %q", n.Op)
}

// valuesEqual compares for the DSL: numbers compare on the number line,
// everything else structurally.
func valuesEqual(a, b *value.Value) bool {
	if a.Type.IsNumeric() && b.Type.IsNumeric() {
		return value.CompareNumbers(a, b) == 0
	}
	return a.Equal(b)
}

func (e *evaluator) evalBinary(n *BinaryExpr) (*value.Value, error) {
	// Short-circuit forms never evaluate the skipped branch, so a
	// raising right-hand side cannot fail the condition.
	switch n.Op {
	case "&&":
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if !Truthy(left) {
			return value.Boolean(false), nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return value.Boolean(Truthy(right)), nil
	case "||":
		left, err := e.eval(n.Left)
		if err != nil {
			return nil, err
		}
		if Truthy(left) {
			return value.Boolean(true), nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return nil, err
		}
		return value.Boolean(Truthy(right)), nil
	case "is":
		return e.evalTypeTest(n)
	}

	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "==":
		return value.Boolean(valuesEqual(left, right)), nil
	case "!=":
		return value.Boolean(!valuesEqual(left, right)), nil
	case "in":
		if right.Type != value.TypeArray {
			return nil, e.errf(n.Pos, "'in' requires a list on the right, got %s", right.Type)
		}
		for _, el := range right.Array {
			if valuesEqual(left, el) {
				return value.Boolean(true), nil
			}
		}
		return value.Boolean(false), nil
	case "+":
		if left.Type == value.TypeString && right.Type == value.TypeString {
			return value.String(left.Str + right.Str), nil
		}
		return e.arith(n, left, right)
	case "-", "*", "/", "%":
		return e.arith(n, left, right)
	case "<", ">", "<=", ">=":
		if !left.Type.IsNumeric() || !right.Type.IsNumeric() {
			return nil, e.errf(n.Pos, "'%s' requires numbers, got %s and %s", n.Op, left.Type, right.Type)
		}
		c := value.CompareNumbers(left, right)
		switch n.Op {
		case "<":
			return value.Boolean(c < 0), nil
		case ">":
			return value.Boolean(c > 0), nil
		case "<=":
			return value.Boolean(c <= 0), nil
		default:
			return value.Boolean(c >= 0), nil
		}
	}
	return nil, e.errf(n.Pos, "unknown operator %q", n.Op)
}

func (e *evaluator) arith(n *BinaryExpr, left, right *value.Value) (*value.Value, error) {
	if !left.Type.IsNumeric() || !right.Type.IsNumeric() {
		return nil, e.errf(n.Pos, "'%s' requires numbers, got %s and %s", n.Op, left.Type, right.Type)
	}
	bothInt := left.Type == value.TypeInteger && right.Type == value.TypeInteger

	switch n.Op {
	case "+":
		if bothInt {
			return value.Integer(left.Int + right.Int), nil
		}
		return value.Double(left.AsFloat() + right.AsFloat()), nil
	case "-":
		if bothInt {
			return value.Integer(left.Int - right.Int), nil
		}
		return value.Double(left.AsFloat() - right.AsFloat()), nil
	case "*":
		if bothInt {
			return value.Integer(left.Int * right.Int), nil
		}
		return value.Double(left.AsFloat() * right.AsFloat()), nil
	case "/":
		if bothInt {
			if right.Int == 0 {
				return nil, e.errf(n.Pos, "division by zero")
			}
			return value.Integer(left.Int / right.Int), nil
		}
		if right.AsFloat() == 0 {
			return nil, e.errf(n.Pos, "division by zero")
		}
		return value.Double(left.AsFloat() / right.AsFloat()), nil
	case "%":
		if !bothInt {
			return nil, e.errf(n.Pos, "'%%' requires integers, got %s and %s", left.Type, right.Type)
		}
		if right.Int == 0 {
			return nil, e.errf(n.Pos, "modulo by zero")
		}
		return value.Integer(left.Int % right.Int), nil
	}
	return nil, e.errf(n.Pos, "unknown operator %q", n.Op)
}

// typeNames maps `is` operands onto value tags
func typeMatches(v *value.Value, name string) (bool, bool) {
	switch name {
	case "bool":
		return v.Type == value.TypeBoolean, true
	case "int":
		return v.Type == value.TypeInteger, true
	case "float":
		return v.Type == value.TypeDouble, true
	case "number":
		return v.Type.IsNumeric(), true
	case "string":
		return v.Type == value.TypeString, true
	case "list":
		return v.Type == value.TypeArray, true
	case "map":
		return v.Type == value.TypeMap, true
	case "timestamp":
		return v.Type == value.TypeTimestamp, true
	case "bytes":
		return v.Type == value.TypeBytes, true
	case "path":
		return v.Type == value.TypeReference, true
	case "latlng":
		return v.Type == value.TypeGeoPoint, true
	}
	return false, false
}

func (e *evaluator) evalTypeTest(n *BinaryExpr) (*value.Value, error) {
	ident, ok := n.Right.(*IdentExpr)
	if !ok {
		return nil, e.errf(n.Pos, "'is' requires a type name on the right")
	}
	left, err := e.eval(n.Left)
	if err != nil {
		return nil, err
	}
	matched, known := typeMatches(left, ident.Name)
	if !known {
		return nil, e.errf(ident.Pos, "unknown type name %q", ident.Name)
	}
	return value.Boolean(matched), nil
}

func (e *evaluator) evalMember(n *MemberExpr) (*value.Value, error) {
	target, err := e.eval(n.Target)
	if err != nil {
		return nil, err
	}
	// Dereferencing null is null-safe, as is a missing property.
	if target.Type == value.TypeNull {
		return value.Null(), nil
	}
	if target.Type != value.TypeMap {
		return nil, e.errf(n.Pos, "cannot access property %q on %s", n.Name, target.Type)
	}
	if v, ok := target.Map[n.Name]; ok {
		return v, nil
	}
	return value.Null(), nil
}

func (e *evaluator) evalIndex(n *IndexExpr) (*value.Value, error) {
	target, err := e.eval(n.Target)
	if err != nil {
		return nil, err
	}
	key, err := e.eval(n.Key)
	if err != nil {
		return nil, err
	}
	if target.Type == value.TypeNull {
		return value.Null(), nil
	}
	switch target.Type {
	case value.TypeMap:
		if key.Type != value.TypeString {
			return nil, e.errf(n.Pos, "map index must be a string, got %s", key.Type)
		}
		if v, ok := target.Map[key.Str]; ok {
			return v, nil
		}
		return value.Null(), nil
	case value.TypeArray:
		if key.Type != value.TypeInteger {
			return nil, e.errf(n.Pos, "list index must be an integer, got %s", key.Type)
		}
		if key.Int < 0 || key.Int >= int64(len(target.Array)) {
			return nil, e.errf(n.Pos, "list index %d out of range", key.Int)
		}
		return target.Array[key.Int], nil
	}
	return nil, e.errf(n.Pos, "cannot index %s", target.Type)
}

func (e *evaluator) evalCall(n *CallExpr) (*value.Value, error) {
	switch target := n.Target.(type) {
	case *IdentExpr:
		return e.callNamed(n, target.Name)
	case *MemberExpr:
		return e.callMethod(n, target)
	}
	return nil, e.errf(n.Pos, "expression is not callable")
}

func (e *evaluator) callNamed(n *CallExpr, name string) (*value.Value, error) {
	if fn, ok := e.funcs[name]; ok {
		return e.callFunction(n, fn)
	}
	switch name {
	case "get":
		fields, docName, err := e.lookup(n)
		if err != nil {
			return nil, err
		}
		if fields == nil {
			return nil, e.errf(n.Pos, "document %q does not exist", docName)
		}
		return NewResource(docName, fields), nil
	case "exists":
		fields, _, err := e.lookup(n)
		if err != nil {
			return nil, err
		}
		return value.Boolean(fields != nil), nil
	}
	return nil, e.errf(n.Pos, "unknown function %q", name)
}

// lookup resolves the single path argument of get()/exists() through the
// context's document reader.
func (e *evaluator) lookup(n *CallExpr) (map[string]*value.Value, string, error) {
	if len(n.Args) != 1 {
		return nil, "", e.errf(n.Pos, "expected one path argument, got %d", len(n.Args))
	}
	arg, err := e.eval(n.Args[0])
	if err != nil {
		return nil, "", err
	}
	var path string
	switch arg.Type {
	case value.TypeReference, value.TypeString:
		path = arg.Str
	default:
		return nil, "", e.errf(n.Pos, "path argument must be a path, got %s", arg.Type)
	}
	if e.ctx.Reader == nil {
		return nil, "", e.errf(n.Pos, "cross-document reads are not available")
	}
	fields, name, ok := e.ctx.Reader.ReadDocument(path)
	if !ok {
		return nil, path, nil
	}
	return fields, name, nil
}

func (e *evaluator) callFunction(n *CallExpr, fn *FunctionDecl) (*value.Value, error) {
	if len(n.Args) != len(fn.Params) {
		return nil, e.errf(n.Pos, "function %q expects %d arguments, got %d",
			fn.Name, len(fn.Params), len(n.Args))
	}
	frame := make(map[string]*value.Value, len(e.vars)+len(fn.Params))
	for k, v := range e.vars {
		frame[k] = v
	}
	for i, param := range fn.Params {
		v, err := e.eval(n.Args[i])
		if err != nil {
			return nil, err
		}
		frame[param] = v
	}
	saved := e.vars
	e.vars = frame
	defer func() { e.vars = saved }()
	return e.eval(fn.Body)
}

func (e *evaluator) callMethod(n *CallExpr, target *MemberExpr) (*value.Value, error) {
	// A member-call may also be a plain function access through a record
	// holding no methods; receiver type decides the dispatch.
	recv, err := e.eval(target.Target)
	if err != nil {
		return nil, err
	}
	args := make([]*value.Value, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	switch recv.Type {
	case value.TypeString:
		return e.stringMethod(n, recv, target.Name, args)
	case value.TypeArray:
		return e.listMethod(n, recv, target.Name, args)
	}
	return nil, e.errf(n.Pos, "%s has no method %q", recv.Type, target.Name)
}

func (e *evaluator) stringMethod(n *CallExpr, recv *value.Value, name string, args []*value.Value) (*value.Value, error) {
	switch name {
	case "size":
		if len(args) != 0 {
			return nil, e.errf(n.Pos, "size() takes no arguments")
		}
		return value.Integer(int64(len(recv.Str))), nil
	case "matches":
		if len(args) != 1 || args[0].Type != value.TypeString {
			return nil, e.errf(n.Pos, "matches() takes one string argument")
		}
		matched, err := e.guard.Match(args[0].Str, recv.Str)
		if err != nil {
			return nil, e.errf(n.Pos, "%v", err)
		}
		return value.Boolean(matched), nil
	}
	return nil, e.errf(n.Pos, "string has no method %q", name)
}

func (e *evaluator) listMethod(n *CallExpr, recv *value.Value, name string, args []*value.Value) (*value.Value, error) {
	switch name {
	case "size":
		if len(args) != 0 {
			return nil, e.errf(n.Pos, "size() takes no arguments")
		}
		return value.Integer(int64(len(recv.Array))), nil
	case "hasAny", "hasAll":
		if len(args) != 1 || args[0].Type != value.TypeArray {
			return nil, e.errf(n.Pos, "%s() takes one list argument", name)
		}
		contains := func(x *value.Value) bool {
			for _, el := range recv.Array {
				if valuesEqual(el, x) {
					return true
				}
			}
			return false
		}
		if name == "hasAny" {
			for _, x := range args[0].Array {
				if contains(x) {
					return value.Boolean(true), nil
				}
			}
			return value.Boolean(false), nil
		}
		for _, x := range args[0].Array {
			if !contains(x) {
				return value.Boolean(false), nil
			}
		}
		return value.Boolean(true), nil
	}
	return nil, e.errf(n.Pos, "list has no method %q", name)
}

// resolvePath renders a path template to a concrete path, evaluating
// $(expr) interpolations and substituting wildcard bindings.
func (e *evaluator) resolvePath(tmpl *PathTemplate, pos Pos) (string, error) {
	segs := make([]string, 0, len(tmpl.Segments))
	for _, ps := range tmpl.Segments {
		switch ps.Kind {
		case SegLiteral:
			segs = append(segs, ps.Text)
		case SegWildcard, SegRecursive:
			v, ok := e.vars[ps.Text]
			if !ok {
				return "", e.errf(pos, "unbound wildcard %q in path", ps.Text)
			}
			segs = append(segs, stringifySegment(v))
		case SegInterp:
			v, err := e.eval(ps.Expr)
			if err != nil {
				return "", err
			}
			segs = append(segs, stringifySegment(v))
		}
	}
	return strings.Join(segs, "/"), nil
}

func stringifySegment(v *value.Value) string {
	switch v.Type {
	case value.TypeString, value.TypeReference:
		return v.Str
	case value.TypeInteger:
		return strconv.FormatInt(v.Int, 10)
	default:
		return ""
	}
}
