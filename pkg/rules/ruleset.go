package rules

import (
	"fmt"

	"github.com/mnohosten/flamestore/pkg/value"
)

// FirestoreService is the service name guarding document access
const FirestoreService = "cloud.firestore"

// opCovers expands the grouped operations onto the concrete ones
var opCovers = map[string][]string{
	"read":  {"get", "list"},
	"write": {"create", "update", "delete"},
}

// Ruleset is a compiled rules source ready for authorization checks
type Ruleset struct {
	file  *File
	guard *RegexGuard
}

// Decision is the outcome of one authorization check. Diagnostics carry
// evaluation errors from conditions that raised; a raising condition is
// treated as false.
type Decision struct {
	Allowed     bool
	Diagnostics []string
}

// CompileRuleset parses source strictly and returns a ruleset
func CompileRuleset(source string) (*Ruleset, error) {
	file, err := Parse(source)
	if err != nil {
		return nil, err
	}
	return &Ruleset{file: file, guard: NewRegexGuard()}, nil
}

// CompileRulesetLenient parses with error recovery, returning the ruleset
// alongside any parse errors. A ruleset with parse errors still
// authorizes against the blocks that parsed.
func CompileRulesetLenient(source string) (*Ruleset, []error) {
	file, errs := ParseLenient(source)
	return &Ruleset{file: file, guard: NewRegexGuard()}, errs
}

// Guard exposes the ruleset's regex guard for threshold tuning
func (r *Ruleset) Guard() *RegexGuard { return r.guard }

// Authorize checks whether op on path is granted. The path is relative
// to the service root, e.g. "databases/(default)/documents/users/alice".
// Any matching allow statement with a truthy condition grants; condition
// errors deny that statement and are reported as diagnostics.
func (r *Ruleset) Authorize(op, path string, ctx *EvalContext) Decision {
	dec := Decision{}
	svc := r.service(FirestoreService)
	if svc == nil {
		return dec
	}
	segs := normalizeSegments(path)
	for _, m := range svc.Matches {
		r.walk(m, segs, op, ctx, map[string]string{}, map[string]*FunctionDecl{}, &dec)
	}
	return dec
}

func (r *Ruleset) service(name string) *Service {
	for _, s := range r.file.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// walk descends one match block: consume the block's pattern from the
// front of the remaining segments, accumulate bindings and functions,
// then test allow statements when the path is fully consumed and recurse
// into nested blocks otherwise.
func (r *Ruleset) walk(m *MatchBlock, segs []string, op string, ctx *EvalContext,
	bindings map[string]string, funcs map[string]*FunctionDecl, dec *Decision) {

	newBindings, consumed, ok := matchPrefix(m.Pattern, segs)
	if !ok {
		return
	}

	merged := bindings
	if len(newBindings) > 0 {
		merged = make(map[string]string, len(bindings)+len(newBindings))
		for k, v := range bindings {
			merged[k] = v
		}
		for k, v := range newBindings {
			merged[k] = v
		}
	}

	scope := funcs
	if len(m.Functions) > 0 {
		scope = make(map[string]*FunctionDecl, len(funcs)+len(m.Functions))
		for k, v := range funcs {
			scope[k] = v
		}
		for _, fn := range m.Functions {
			scope[fn.Name] = fn
		}
	}

	rest := segs[consumed:]
	if len(rest) == 0 {
		for _, allow := range m.Allows {
			if dec.Allowed {
				return
			}
			if !allowGrants(allow, op) {
				continue
			}
			if allow.Condition == nil {
				dec.Allowed = true
				return
			}
			granted, err := r.evalCondition(allow.Condition, ctx, merged, scope)
			if err != nil {
				dec.Diagnostics = append(dec.Diagnostics, err.Error())
				continue
			}
			if granted {
				dec.Allowed = true
				return
			}
		}
	}
	for _, child := range m.Matches {
		if dec.Allowed {
			return
		}
		r.walk(child, rest, op, ctx, merged, scope, dec)
	}
}

func allowGrants(allow *AllowStatement, op string) bool {
	for _, o := range allow.Ops {
		if o == op {
			return true
		}
		for _, covered := range opCovers[o] {
			if covered == op {
				return true
			}
		}
	}
	return false
}

func (r *Ruleset) evalCondition(cond Expr, ctx *EvalContext,
	bindings map[string]string, funcs map[string]*FunctionDecl) (bool, error) {

	vars := make(map[string]*value.Value, len(bindings))
	for k, v := range bindings {
		vars[k] = value.String(v)
	}
	ev := &evaluator{ctx: ctx, guard: r.guard, funcs: funcs, vars: vars}
	v, err := ev.eval(cond)
	if err != nil {
		return false, fmt.Errorf("condition at %s: %v", cond.Position(), err)
	}
	return Truthy(v), nil
}

// EvalExpression parses and evaluates a standalone expression against a
// context. Used by the rules playground endpoint.
func (r *Ruleset) EvalExpression(source string, ctx *EvalContext) (*value.Value, error) {
	return evalWithGuard(source, ctx, r.guard)
}

// EvalStandalone evaluates one expression with a fresh guard, outside any
// ruleset. The playground endpoint uses it before rules are installed.
func EvalStandalone(source string, ctx *EvalContext) (*value.Value, error) {
	return evalWithGuard(source, ctx, NewRegexGuard())
}

func evalWithGuard(source string, ctx *EvalContext, guard *RegexGuard) (*value.Value, error) {
	expr, err := ParseExpression(source)
	if err != nil {
		return nil, err
	}
	ev := &evaluator{ctx: ctx, guard: guard, funcs: map[string]*FunctionDecl{}, vars: map[string]*value.Value{}}
	return ev.eval(expr)
}
