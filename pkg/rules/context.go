package rules

import (
	"strings"

	"github.com/mnohosten/flamestore/pkg/value"
)

// DocumentReader supplies cross-document reads to the evaluator's get()
// and exists() builtins. Implemented by the store adapter.
type DocumentReader interface {
	ReadDocument(path string) (fields map[string]*value.Value, name string, ok bool)
}

// EvalContext carries the ambient identifiers of one authorization check
type EvalContext struct {
	// Request is the request record: auth, method, path, time and, for
	// writes, resource (the incoming document).
	Request *value.Value
	// Resource is the stored document the request targets, or null.
	Resource *value.Value
	// Database is the database name bound to the `database` identifier.
	Database string
	// Reader resolves get()/exists() lookups. May be nil, in which case
	// both builtins fail the condition.
	Reader DocumentReader
}

// NewResource builds the resource record for a document: its data, id
// and __name__.
func NewResource(name string, fields map[string]*value.Value) *value.Value {
	segs := strings.Split(name, "/")
	return value.MapVal(map[string]*value.Value{
		"data":     value.MapVal(value.CloneFields(fields)),
		"id":       value.String(segs[len(segs)-1]),
		"__name__": value.Reference(name),
	})
}

// NewRequest builds the request record from the auth claims, method and
// path, with optional incoming resource data for writes.
func NewRequest(auth *value.Value, method, path string, at *value.Value, incoming *value.Value) *value.Value {
	if auth == nil {
		auth = value.Null()
	}
	fields := map[string]*value.Value{
		"auth":   auth,
		"method": value.String(method),
		"path":   value.Reference(path),
	}
	if at != nil {
		fields["time"] = at
	}
	if incoming != nil {
		fields["resource"] = incoming
	}
	return value.MapVal(fields)
}
