package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/rules"
	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// servicePath is the rules-facing path of a document, relative to the
// cloud.firestore service root.
func servicePath(p *docpath.Path) string {
	return "databases/" + p.Database + "/documents/" + p.RelativePath()
}

// authorize checks one operation against the installed rules. Owner
// requests bypass rules entirely. incoming carries the would-be document
// fields of a write, nil for reads and deletes.
func (h *Handlers) authorize(ident callerIdentity, op string, p *docpath.Path, incoming map[string]*value.Value) error {
	if ident.Owner {
		return nil
	}
	ctx := &rules.EvalContext{
		Database: p.Database,
		Reader:   &storeReader{store: h.store, project: p.Project},
	}
	if current, ok := h.store.Get(p.String()); ok {
		ctx.Resource = rules.NewResource(current.Name, current.Fields)
	}
	var incomingRes *value.Value
	if incoming != nil {
		incomingRes = rules.NewResource(p.String(), incoming)
	}
	now := value.Timestamp(time.Now().UTC())
	ctx.Request = rules.NewRequest(ident.Auth, op, servicePath(p), now, incomingRes)
	return h.rules.Authorize(op, servicePath(p), ctx)
}

// writeTarget extracts the document name and rules operation of a commit
// write. Unparseable writes are left for the engine's validation.
func (h *Handlers) authorizeWrite(ident callerIdentity, wr *wire.Write) error {
	var name string
	var incoming map[string]*value.Value
	var op string

	switch {
	case wr.Update != nil:
		name = wr.Update.Name
		incoming = wr.Update.Fields
		op = "update"
	case wr.Delete != "":
		name = wr.Delete
		op = "delete"
	case wr.Transform != nil:
		name = wr.Transform.Document
		op = "update"
	default:
		return nil
	}

	p, err := docpath.Parse(name)
	if err != nil {
		return nil
	}
	if op == "update" && !h.store.Exists(name) {
		op = "create"
	}
	return h.authorize(ident, op, p, incoming)
}

// BatchGet handles POST .../documents:batchGet
func (h *Handlers) BatchGet(w http.ResponseWriter, r *http.Request) {
	var req wire.BatchGetRequest
	if err := parseJSONBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ident := identityFromRequest(r)
	for _, name := range req.Documents {
		p, err := docpath.Parse(name)
		if err != nil {
			continue // engine validation reports the malformed name
		}
		if err := h.authorize(ident, "get", p, nil); err != nil {
			h.writeError(w, err)
			return
		}
	}

	entries, err := h.store.BatchGet(&req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Commit handles POST .../documents:commit
func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	var req wire.CommitRequest
	if err := parseJSONBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	ident := identityFromRequest(r)
	for _, wr := range req.Writes {
		if wr == nil {
			continue
		}
		if err := h.authorizeWrite(ident, wr); err != nil {
			h.writeError(w, err)
			return
		}
	}

	resp, err := h.store.Commit(&req)
	if err != nil {
		if h.metrics != nil && wire.AsStatus(err).Status == wire.StatusAborted {
			h.metrics.TransactionsAborted.Inc()
		}
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.CommitWrites.Observe(float64(len(req.Writes)))
		if req.Transaction != "" {
			h.metrics.TransactionsCommitted.Inc()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// BeginTransaction handles POST .../documents:beginTransaction. An empty
// body starts a plain read-write transaction.
func (h *Handlers) BeginTransaction(w http.ResponseWriter, r *http.Request) {
	var req wire.BeginTransactionRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, wire.InvalidArgument("failed to read request body"))
		return
	}
	if len(body) > 0 {
		if err := parseBody(body, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	txn := h.store.BeginTransaction(req.Options)
	if h.metrics != nil {
		h.metrics.TransactionsStarted.Inc()
	}
	writeJSON(w, http.StatusOK, wire.BeginTransactionResponse{Transaction: txn.ID})
}

// Rollback handles POST .../documents:rollback
func (h *Handlers) Rollback(w http.ResponseWriter, r *http.Request) {
	var req wire.RollbackRequest
	if err := parseJSONBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Transaction == "" {
		h.writeError(w, wire.InvalidArgument("missing transaction"))
		return
	}

	if err := h.store.Rollback(req.Transaction); err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) || errors.Is(err, store.ErrTransactionFinished) {
			h.writeError(w, wire.InvalidArgument("%v", err))
			return
		}
		h.writeError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TransactionsAborted.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}
