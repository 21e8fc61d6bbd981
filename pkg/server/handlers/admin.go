package handlers

import (
	"net/http"
	"time"

	"github.com/mnohosten/flamestore/pkg/impex"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// Reset handles DELETE on the documents root, dropping every document
// and transaction. Test suites call this between runs.
func (h *Handlers) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.Clear()
	h.log.Info("store reset")
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// Health reports liveness and engine counters
func (h *Handlers) Health(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":             "ok",
			"uptime":             time.Since(startTime).String(),
			"documents":          h.store.Len(),
			"activeTransactions": h.store.ActiveTransactions(),
		})
	}
}

// Export streams the store as JSONL, compressed per the codec query
// parameter (none, gzip or zstd).
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	codec, err := impex.ParseCodec(r.URL.Query().Get("codec"))
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="flamestore-export.jsonl.`+codec.String()+`"`)
	n, err := impex.Export(w, h.store, codec)
	if err != nil {
		// Headers are already out; all we can do is log.
		h.log.WithError(err).Error("export failed")
		return
	}
	h.log.WithField("documents", n).Info("export complete")
}

// Import loads a JSONL export from the request body into the store
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	codec, err := impex.ParseCodec(r.URL.Query().Get("codec"))
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}

	n, err := impex.Import(r.Body, h.store, codec)
	if err != nil {
		h.writeError(w, wire.InvalidArgument("import failed: %v", err))
		return
	}
	h.log.WithField("documents", n).Info("import complete")
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": n})
}
