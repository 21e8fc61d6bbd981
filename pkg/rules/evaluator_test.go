package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnohosten/flamestore/pkg/value"
)

type fakeReader struct {
	docs map[string]map[string]*value.Value
}

func (r *fakeReader) ReadDocument(path string) (map[string]*value.Value, string, bool) {
	fields, ok := r.docs[path]
	if !ok {
		return nil, "", false
	}
	return fields, path, true
}

func evalSrc(t *testing.T, src string, ctx *EvalContext) (*value.Value, error) {
	t.Helper()
	expr, err := ParseExpression(src)
	require.NoError(t, err)
	if ctx == nil {
		ctx = &EvalContext{}
	}
	ev := &evaluator{
		ctx:   ctx,
		guard: NewRegexGuard(),
		funcs: map[string]*FunctionDecl{},
		vars:  map[string]*value.Value{},
	}
	return ev.eval(expr)
}

func mustEval(t *testing.T, src string, ctx *EvalContext) *value.Value {
	t.Helper()
	v, err := evalSrc(t, src, ctx)
	require.NoError(t, err)
	return v
}

func TestEvalLiteralsAndArithmetic(t *testing.T) {
	assert.Equal(t, int64(7), mustEval(t, "1 + 2 * 3", nil).Int)
	assert.Equal(t, int64(2), mustEval(t, "5 / 2", nil).Int)
	assert.Equal(t, 2.5, mustEval(t, "5.0 / 2", nil).Dbl)
	assert.Equal(t, int64(1), mustEval(t, "7 % 3", nil).Int)
	assert.Equal(t, int64(-4), mustEval(t, "-4", nil).Int)
	assert.Equal(t, "ab", mustEval(t, `"a" + "b"`, nil).Str)
}

func TestEvalArithmeticErrors(t *testing.T) {
	for _, src := range []string{
		`1 / 0`,
		`1 % 0`,
		`1.5 % 2`,
		`"a" - "b"`,
		`true + 1`,
	} {
		_, err := evalSrc(t, src, nil)
		assert.Error(t, err, "source %q", src)
	}
}

func TestEvalComparisons(t *testing.T) {
	assert.True(t, mustEval(t, "1 < 2", nil).Bool)
	assert.True(t, mustEval(t, "2 <= 2", nil).Bool)
	assert.False(t, mustEval(t, "2 > 2.5", nil).Bool)
	// Integers and doubles compare on the number line.
	assert.True(t, mustEval(t, "1 == 1.0", nil).Bool)
	assert.True(t, mustEval(t, `"a" != "b"`, nil).Bool)
	assert.False(t, mustEval(t, `"a" == 1`, nil).Bool)
}

func TestEvalInOperator(t *testing.T) {
	assert.True(t, mustEval(t, `"b" in ["a", "b"]`, nil).Bool)
	assert.False(t, mustEval(t, `"c" in ["a", "b"]`, nil).Bool)
	assert.True(t, mustEval(t, `2 in [1, 2.0]`, nil).Bool)

	_, err := evalSrc(t, `1 in "abc"`, nil)
	assert.Error(t, err)
}

func TestEvalIsOperator(t *testing.T) {
	assert.True(t, mustEval(t, `"x" is string`, nil).Bool)
	assert.True(t, mustEval(t, "1 is int", nil).Bool)
	assert.True(t, mustEval(t, "1 is number", nil).Bool)
	assert.True(t, mustEval(t, "1.5 is float", nil).Bool)
	assert.False(t, mustEval(t, "1 is float", nil).Bool)
	assert.True(t, mustEval(t, "[1] is list", nil).Bool)

	_, err := evalSrc(t, "1 is widget", nil)
	assert.Error(t, err)
}

func TestEvalTruthinessAndLogic(t *testing.T) {
	assert.False(t, mustEval(t, "!true", nil).Bool)
	assert.True(t, mustEval(t, "true && 1", nil).Bool)
	assert.False(t, mustEval(t, `false || ""`, nil).Bool)
	assert.True(t, mustEval(t, `0 || "x"`, nil).Bool)
}

func TestEvalShortCircuitSkipsErrors(t *testing.T) {
	// The skipped branch would raise; short-circuit means it never runs.
	v := mustEval(t, "false && (1 / 0 == 1)", nil)
	assert.False(t, v.Bool)

	v = mustEval(t, "true || (1 / 0 == 1)", nil)
	assert.True(t, v.Bool)
}

func TestEvalOwnerCheckShortCircuit(t *testing.T) {
	// With a null auth the uid dereference on the right is never reached.
	ctx := &EvalContext{
		Request: NewRequest(nil, "get", "databases/(default)/documents/users/alice", nil, nil),
		Resource: NewResource("users/alice", map[string]*value.Value{
			"owner": value.String("alice"),
		}),
	}
	v := mustEval(t, "request.auth != null && request.auth.uid == resource.data.owner", ctx)
	assert.False(t, v.Bool)
}

func TestEvalMemberAccess(t *testing.T) {
	ctx := &EvalContext{
		Request: NewRequest(
			value.MapVal(map[string]*value.Value{"uid": value.String("alice")}),
			"get", "users/alice", nil, nil),
	}
	assert.Equal(t, "alice", mustEval(t, "request.auth.uid", ctx).Str)
	assert.Equal(t, "get", mustEval(t, "request.method", ctx).Str)

	// Missing properties and null receivers read as null.
	assert.Equal(t, value.TypeNull, mustEval(t, "request.auth.missing", ctx).Type)
	assert.Equal(t, value.TypeNull, mustEval(t, "request.auth.missing.deeper", ctx).Type)

	_, err := evalSrc(t, "request.method.nope", ctx)
	assert.Error(t, err, "strings have no properties")
}

func TestEvalIndexAccess(t *testing.T) {
	ctx := &EvalContext{
		Resource: NewResource("users/alice", map[string]*value.Value{
			"tags": value.ArrayVal(value.String("x"), value.String("y")),
		}),
	}
	assert.Equal(t, "y", mustEval(t, `resource.data.tags[1]`, ctx).Str)
	assert.Equal(t, "x", mustEval(t, `resource.data["tags"][0]`, ctx).Str)

	_, err := evalSrc(t, `resource.data.tags[5]`, ctx)
	assert.Error(t, err)
	_, err = evalSrc(t, `resource.data.tags["x"]`, ctx)
	assert.Error(t, err)
}

func TestEvalStringMethods(t *testing.T) {
	assert.Equal(t, int64(5), mustEval(t, `"hello".size()`, nil).Int)
	assert.True(t, mustEval(t, `"hello".matches("[a-z]+")`, nil).Bool)
	assert.False(t, mustEval(t, `"hello123".matches("[a-z]+")`, nil).Bool)

	_, err := evalSrc(t, `"x".matches("(a+)+")`, nil)
	assert.Error(t, err, "unsafe patterns raise")
}

func TestEvalListMethods(t *testing.T) {
	assert.Equal(t, int64(3), mustEval(t, "[1, 2, 3].size()", nil).Int)
	assert.True(t, mustEval(t, `["a", "b"].hasAny(["b", "c"])`, nil).Bool)
	assert.False(t, mustEval(t, `["a", "b"].hasAny(["c"])`, nil).Bool)
	assert.True(t, mustEval(t, `["a", "b", "c"].hasAll(["a", "c"])`, nil).Bool)
	assert.False(t, mustEval(t, `["a"].hasAll(["a", "b"])`, nil).Bool)
}

func TestEvalGetAndExists(t *testing.T) {
	reader := &fakeReader{docs: map[string]map[string]*value.Value{
		"databases/(default)/documents/users/alice": {
			"role": value.String("admin"),
		},
	}}
	ctx := &EvalContext{Reader: reader, Database: "(default)"}

	v := mustEval(t, `get(/databases/$(database)/documents/users/alice).data.role`, ctx)
	assert.Equal(t, "admin", v.Str)

	assert.True(t, mustEval(t, `exists(/databases/$(database)/documents/users/alice)`, ctx).Bool)
	assert.False(t, mustEval(t, `exists(/databases/$(database)/documents/users/bob)`, ctx).Bool)

	_, err := evalSrc(t, `get(/databases/$(database)/documents/users/bob)`, ctx)
	assert.Error(t, err, "get of a missing document raises")

	_, err = evalSrc(t, `exists(/databases/x/documents/y/z)`, &EvalContext{})
	assert.Error(t, err, "no reader configured")
}

func TestEvalPathInterpolation(t *testing.T) {
	reader := &fakeReader{docs: map[string]map[string]*value.Value{
		"users/alice": {"ok": value.Boolean(true)},
	}}
	ctx := &EvalContext{
		Reader: reader,
		Request: NewRequest(
			value.MapVal(map[string]*value.Value{"uid": value.String("alice")}),
			"get", "users/alice", nil, nil),
	}
	assert.True(t, mustEval(t, `exists(/users/$(request.auth.uid))`, ctx).Bool)
}

func TestEvalUnknownIdentifier(t *testing.T) {
	_, err := evalSrc(t, "nonsense", nil)
	require.Error(t, err)
	var evalErr *EvalError
	assert.ErrorAs(t, err, &evalErr)
}

func TestEvalDepthLimit(t *testing.T) {
	src := strings.Repeat("!", maxEvalDepth+1) + "true"
	_, err := evalSrc(t, src, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "depth")
}
