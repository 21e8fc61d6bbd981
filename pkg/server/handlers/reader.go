package handlers

import (
	"strings"

	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
)

// storeReader resolves get()/exists() lookups from rules conditions
// against the document store. Paths are service-relative
// (databases/{db}/documents/...) or full document names.
type storeReader struct {
	store   *store.Store
	project string
}

func (sr *storeReader) ReadDocument(path string) (map[string]*value.Value, string, bool) {
	name := strings.TrimPrefix(path, "/")
	if !strings.HasPrefix(name, "projects/") {
		name = "projects/" + sr.project + "/" + name
	}
	doc, ok := sr.store.Get(name)
	if !ok {
		return nil, "", false
	}
	return doc.Fields, doc.Name, true
}
