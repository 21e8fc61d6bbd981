// Package handlers implements the emulator's HTTP endpoints: the
// document RPCs (batchGet, commit, beginTransaction, rollback), the
// single-document verbs, rules management and the admin surface.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/mnohosten/flamestore/pkg/metrics"
	"github.com/mnohosten/flamestore/pkg/store"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// Handlers holds the engine and rules manager behind the HTTP surface
type Handlers struct {
	store   *store.Store
	rules   *RulesManager
	metrics *metrics.Metrics
	log     *logrus.Logger
}

// New creates a Handlers instance. metrics may be nil when the metrics
// endpoint is disabled.
func New(s *store.Store, rules *RulesManager, m *metrics.Metrics, log *logrus.Logger) *Handlers {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handlers{store: s, rules: rules, metrics: m, log: log}
}

// parseJSONBody parses the JSON request body into target
func parseJSONBody(r *http.Request, target interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return wire.InvalidArgument("failed to read request body")
	}
	defer r.Body.Close()

	if len(body) == 0 {
		return wire.InvalidArgument("request body is empty")
	}
	return parseBody(body, target)
}

// parseBody unmarshals an already-read body
func parseBody(body []byte, target interface{}) error {
	if err := json.Unmarshal(body, target); err != nil {
		return wire.InvalidArgument("invalid JSON: %v", err)
	}
	return nil
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError renders err as the REST error envelope
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	se := wire.AsStatus(err)
	if se.Status == wire.StatusInternal {
		h.log.WithError(err).Error("internal error")
	}
	writeJSON(w, se.Status.HTTPCode(), se.Body())
}
