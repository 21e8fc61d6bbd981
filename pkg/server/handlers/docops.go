package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// resourceName rebuilds the full resource name addressed by a
// single-document route from its URL parameters.
func resourceName(r *http.Request) string {
	return docpath.Build(
		chi.URLParam(r, "project"),
		chi.URLParam(r, "database"),
		strings.Split(chi.URLParam(r, "*"), "/")...)
}

// maskFromQuery reads the repeated mask.fieldPaths query parameter
func maskFromQuery(r *http.Request) *wire.DocumentMask {
	paths := r.URL.Query()["mask.fieldPaths"]
	if len(paths) == 0 {
		return nil
	}
	return &wire.DocumentMask{FieldPaths: paths}
}

// preconditionFromQuery reads the currentDocument.* query parameters
func preconditionFromQuery(r *http.Request) (*wire.Precondition, error) {
	q := r.URL.Query()
	existsStr := q.Get("currentDocument.exists")
	updateTime := q.Get("currentDocument.updateTime")

	if existsStr == "" && updateTime == "" {
		return nil, nil
	}
	if existsStr != "" && updateTime != "" {
		return nil, wire.InvalidArgument("currentDocument sets both exists and updateTime")
	}
	if existsStr != "" {
		switch existsStr {
		case "true", "false":
			exists := existsStr == "true"
			return &wire.Precondition{Exists: &exists}, nil
		}
		return nil, wire.InvalidArgument("currentDocument.exists must be true or false")
	}
	return &wire.Precondition{UpdateTime: &updateTime}, nil
}

// GetOrList handles GET on a documents path: an even number of segments
// addresses a document, an odd number lists a collection.
func (h *Handlers) GetOrList(w http.ResponseWriter, r *http.Request) {
	rest := chi.URLParam(r, "*")
	segments := strings.Split(strings.Trim(rest, "/"), "/")
	if len(segments)%2 == 0 {
		h.getDocument(w, r)
		return
	}
	h.listCollection(w, r, segments)
}

func (h *Handlers) getDocument(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	p, err := docpath.Parse(name)
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}
	if err := p.CheckDatabase(); err != nil {
		h.writeError(w, wire.NotFound("%v", err))
		return
	}

	if err := h.authorize(identityFromRequest(r), "get", p, nil); err != nil {
		h.writeError(w, err)
		return
	}

	doc, ok := h.store.Get(name)
	if !ok {
		h.writeError(w, wire.NotFound("document %q not found", name))
		return
	}
	writeJSON(w, http.StatusOK, doc.ToWire(maskFromQuery(r)))
}

// listCollection lists the documents directly inside a collection.
// Rules are checked against the collection's documents with every
// wildcard bound to "*".
func (h *Handlers) listCollection(w http.ResponseWriter, r *http.Request, segments []string) {
	project := chi.URLParam(r, "project")
	database := chi.URLParam(r, "database")
	if database != docpath.DefaultDatabase {
		h.writeError(w, wire.NotFound("unknown database %q", database))
		return
	}

	probeSegs := append(append([]string{}, segments...), "*")
	probe, err := docpath.Parse(docpath.Build(project, database, probeSegs...))
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}
	if err := h.authorize(identityFromRequest(r), "list", probe, nil); err != nil {
		h.writeError(w, err)
		return
	}

	prefix := docpath.Build(project, database, segments...)
	docs := h.store.ListCollection(prefix)
	mask := maskFromQuery(r)
	out := make([]*wire.Document, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.ToWire(mask))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": out})
}

// PatchDocument handles PATCH on a document: create or update with an
// optional update mask and precondition.
func (h *Handlers) PatchDocument(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	if _, err := docpath.Parse(name); err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}

	var body wire.Document
	if err := parseJSONBody(r, &body); err != nil {
		h.writeError(w, err)
		return
	}
	precondition, err := preconditionFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var mask *wire.DocumentMask
	if paths := r.URL.Query()["updateMask.fieldPaths"]; len(paths) > 0 {
		mask = &wire.DocumentMask{FieldPaths: paths}
	}

	write := &wire.Write{
		Update:          &wire.Document{Name: name, Fields: body.Fields},
		UpdateMask:      mask,
		CurrentDocument: precondition,
	}
	if err := h.authorizeWrite(identityFromRequest(r), write); err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.store.Commit(&wire.CommitRequest{Writes: []*wire.Write{write}}); err != nil {
		h.writeError(w, err)
		return
	}
	doc, ok := h.store.Get(name)
	if !ok {
		h.writeError(w, wire.Internal("document missing after write"))
		return
	}
	writeJSON(w, http.StatusOK, doc.ToWire(nil))
}

// DeleteDocument handles DELETE on a document. Deleting a missing
// document succeeds unless a precondition says otherwise.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	name := resourceName(r)
	p, err := docpath.Parse(name)
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}
	precondition, err := preconditionFromQuery(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.authorize(identityFromRequest(r), "delete", p, nil); err != nil {
		h.writeError(w, err)
		return
	}

	write := &wire.Write{Delete: name, CurrentDocument: precondition}
	if _, err := h.store.Commit(&wire.CommitRequest{Writes: []*wire.Write{write}}); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}
