package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/mnohosten/flamestore/pkg/docpath"
	"github.com/mnohosten/flamestore/pkg/metrics"
	"github.com/mnohosten/flamestore/pkg/rules"
	"github.com/mnohosten/flamestore/pkg/value"
	"github.com/mnohosten/flamestore/pkg/wire"
)

// RulesManager holds the active ruleset. Swapping rules and authorizing
// requests may happen concurrently.
type RulesManager struct {
	mu      sync.RWMutex
	enforce bool
	source  string
	ruleset *rules.Ruleset

	metrics *metrics.Metrics
	log     *logrus.Logger
}

// NewRulesManager creates a manager; with enforce false every check
// passes without consulting the ruleset.
func NewRulesManager(enforce bool, m *metrics.Metrics, log *logrus.Logger) *RulesManager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RulesManager{enforce: enforce, metrics: m, log: log}
}

// SetSource compiles and installs a new ruleset
func (rm *RulesManager) SetSource(source string) error {
	ruleset, err := rules.CompileRuleset(source)
	if err != nil {
		return wire.InvalidArgument("invalid rules: %v", err)
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.source = source
	rm.ruleset = ruleset
	return nil
}

// Source returns the currently installed rules source
func (rm *RulesManager) Source() string {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.source
}

// Authorize checks op on the service-relative path. With enforcement
// off, or before any ruleset is installed, everything is allowed.
// Evaluation errors are logged and count as denials.
func (rm *RulesManager) Authorize(op, path string, ctx *rules.EvalContext) error {
	rm.mu.RLock()
	enforce, ruleset := rm.enforce, rm.ruleset
	rm.mu.RUnlock()

	if !enforce || ruleset == nil {
		return nil
	}

	dec := ruleset.Authorize(op, path, ctx)
	for _, diag := range dec.Diagnostics {
		rm.log.WithFields(logrus.Fields{
			"op":   op,
			"path": path,
		}).Warnf("rules evaluation error: %s", diag)
	}

	outcome := "allow"
	if !dec.Allowed {
		outcome = "deny"
		if len(dec.Diagnostics) > 0 {
			outcome = "error"
		}
	}
	if rm.metrics != nil {
		rm.metrics.RulesDecisions.WithLabelValues(op, outcome).Inc()
	}

	if !dec.Allowed {
		return wire.PermissionDenied("%s on %q denied by security rules", op, path)
	}
	return nil
}

// Eval evaluates a standalone rules expression, using the installed
// ruleset's regex guard when one is present.
func (rm *RulesManager) Eval(source string, ctx *rules.EvalContext) (*value.Value, error) {
	rm.mu.RLock()
	ruleset := rm.ruleset
	rm.mu.RUnlock()

	if ruleset != nil {
		return ruleset.EvalExpression(source, ctx)
	}
	return rules.EvalStandalone(source, ctx)
}

// rulesPayload is the body of the rules management endpoint
type rulesPayload struct {
	Rules string `json:"rules"`
}

// evalPayload is the body of the rules playground endpoint
type evalPayload struct {
	Expression string `json:"expression"`
}

// PutRules installs a new ruleset source
func (h *Handlers) PutRules(w http.ResponseWriter, r *http.Request) {
	var payload rulesPayload
	if err := parseJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Rules == "" {
		h.writeError(w, wire.InvalidArgument("rules source is empty"))
		return
	}
	if err := h.rules.SetSource(payload.Rules); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetRules returns the installed ruleset source
func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rulesPayload{Rules: h.rules.Source()})
}

// EvalRules evaluates one rules expression with the caller's identity
// bound to request.auth. A playground for rule authors: get() and
// exists() read the live store.
func (h *Handlers) EvalRules(w http.ResponseWriter, r *http.Request) {
	var payload evalPayload
	if err := parseJSONBody(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	if payload.Expression == "" {
		h.writeError(w, wire.InvalidArgument("expression is empty"))
		return
	}

	project := chi.URLParam(r, "project")
	ident := identityFromRequest(r)
	ctx := &rules.EvalContext{
		Database: docpath.DefaultDatabase,
		Reader:   &storeReader{store: h.store, project: project},
	}
	ctx.Request = rules.NewRequest(ident.Auth, "get",
		"databases/"+docpath.DefaultDatabase+"/documents",
		value.Timestamp(time.Now().UTC()), nil)

	v, err := h.rules.Eval(payload.Expression, ctx)
	if err != nil {
		h.writeError(w, wire.InvalidArgument("%v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": v})
}
