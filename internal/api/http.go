package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"

	"github.com/sgerhart/aegisflux/analyzer/internal/analyzer"
	"github.com/sgerhart/aegisflux/analyzer/internal/metrics"
	"github.com/sgerhart/aegisflux/analyzer/internal/model"
	"github.com/sgerhart/aegisflux/analyzer/internal/rules"
	"github.com/sgerhart/aegisflux/analyzer/internal/store"
)

const maxBodySize = 4 << 20

// HTTPAPI provides HTTP endpoints for the analyzer service
type HTTPAPI struct {
	analyzer *analyzer.Analyzer
	repo     rules.Repository
	store    *store.MemoryStore
	metrics  *metrics.Metrics
	natsConn *nats.Conn
	logger   *slog.Logger
	router   *mux.Router
}

// NewHTTPAPI creates a new HTTP API instance. natsConn may be nil when NATS
// is disabled.
func NewHTTPAPI(a *analyzer.Analyzer, repo rules.Repository, store *store.MemoryStore, metrics *metrics.Metrics, natsConn *nats.Conn, logger *slog.Logger) *HTTPAPI {
	api := &HTTPAPI{
		analyzer: a,
		repo:     repo,
		store:    store,
		metrics:  metrics,
		natsConn: natsConn,
		logger:   logger,
		router:   mux.NewRouter(),
	}
	api.setupRoutes()
	return api
}

// setupRoutes configures HTTP routes
func (api *HTTPAPI) setupRoutes() {
	api.router.HandleFunc("/classify", api.handleClassify).Methods(http.MethodPost)
	api.router.HandleFunc("/results", api.handleResults).Methods(http.MethodGet)
	api.router.HandleFunc("/results/reset", api.handleResetResults).Methods(http.MethodPost)
	api.router.HandleFunc("/rules", api.handleRules).Methods(http.MethodGet)
	api.router.HandleFunc("/rules/reload", api.handleReload).Methods(http.MethodPost)
	api.router.HandleFunc("/rules/overrides", api.handleListOverrides).Methods(http.MethodGet)
	api.router.HandleFunc("/rules/overrides", api.handleAddOverride).Methods(http.MethodPost)
	api.router.HandleFunc("/rules/overrides/{id}", api.handleGetOverride).Methods(http.MethodGet)
	api.router.HandleFunc("/rules/overrides/{id}", api.handleDeleteOverride).Methods(http.MethodDelete)
	api.router.Handle("/metrics", api.metrics.Handler()).Methods(http.MethodGet)
	api.router.HandleFunc("/healthz", api.handleHealth).Methods(http.MethodGet)
	api.router.HandleFunc("/readyz", api.handleReady).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler interface
func (api *HTTPAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

// handleClassify handles POST /classify with one change record or an array
func (api *HTTPAPI) handleClassify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		api.writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	records, err := model.DecodeChangeRecords(body)
	if err != nil {
		api.metrics.IncrementRecordsInvalid()
		api.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid change records: %v", err))
		return
	}

	results := api.analyzer.ClassifyAll(records)
	for i := range results {
		api.store.Add(&results[i])
	}

	api.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"count":     len(results),
		"timestamp": time.Now().UTC(),
	})
}

// handleResults handles GET /results with optional severity, category and limit
func (api *HTTPAPI) handleResults(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	minSeverity := model.SeverityNone
	if value := query.Get("severity"); value != "" {
		parsed, err := model.ParseSeverity(value)
		if err != nil {
			api.writeErrorResponse(w, http.StatusBadRequest, err.Error())
			return
		}
		minSeverity = parsed
	}

	var category model.Category
	if value := query.Get("category"); value != "" {
		category = model.Category(value)
		if !category.Valid() {
			api.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", value))
			return
		}
	}

	results := api.store.Query(minSeverity, category)

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit < len(results) {
			// most recent results
			results = results[len(results)-limit:]
		}
	}

	api.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"count":     len(results),
		"timestamp": time.Now().UTC(),
	})
}

// handleResetResults handles POST /results/reset
func (api *HTTPAPI) handleResetResults(w http.ResponseWriter, r *http.Request) {
	api.store.Clear()

	api.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message":   "Results cleared successfully",
		"timestamp": time.Now().UTC(),
	})
}

// handleRules handles GET /rules
func (api *HTTPAPI) handleRules(w http.ResponseWriter, r *http.Request) {
	set := api.analyzer.RuleSet()

	overrides := []rules.RuleOverride{}
	if om := api.analyzer.Overrides(); om != nil {
		overrides = om.ListOverrides()
	}

	api.writeJSONResponse(w, http.StatusOK, rules.RuleSummaryResponse{
		Source:    set.Source,
		Version:   set.Version,
		Rules:     rules.Summarize(set),
		Overrides: overrides,
	})
}

// handleReload handles POST /rules/reload. A failed load leaves the analyzer
// with an empty rule set and is reported in the response.
func (api *HTTPAPI) handleReload(w http.ResponseWriter, r *http.Request) {
	if api.repo == nil {
		api.writeErrorResponse(w, http.StatusServiceUnavailable, "No rule repository configured")
		return
	}

	response := map[string]interface{}{
		"source":    api.repo.Source(),
		"timestamp": time.Now().UTC(),
	}

	status := http.StatusOK
	if err := api.analyzer.Reload(api.repo); err != nil {
		status = http.StatusUnprocessableEntity
		response["error"] = err.Error()
	}
	response["rules_count"] = api.analyzer.RuleSet().Len()

	api.writeJSONResponse(w, status, response)
}

// handleListOverrides handles GET /rules/overrides
func (api *HTTPAPI) handleListOverrides(w http.ResponseWriter, r *http.Request) {
	om := api.analyzer.Overrides()
	if om == nil {
		api.writeJSONResponse(w, http.StatusOK, []rules.RuleOverride{})
		return
	}
	api.writeJSONResponse(w, http.StatusOK, om.ListOverrides())
}

// handleAddOverride handles POST /rules/overrides
func (api *HTTPAPI) handleAddOverride(w http.ResponseWriter, r *http.Request) {
	om := api.analyzer.Overrides()
	if om == nil {
		api.writeErrorResponse(w, http.StatusServiceUnavailable, "Overrides are disabled")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		api.writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	override, err := om.AddOverrideFromJSON(body)
	if err != nil {
		api.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid override: %v", err))
		return
	}

	api.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"id":        override.ID,
		"message":   "Override added successfully",
		"timestamp": time.Now().UTC(),
	})
}

// handleGetOverride handles GET /rules/overrides/{id}
func (api *HTTPAPI) handleGetOverride(w http.ResponseWriter, r *http.Request) {
	om := api.analyzer.Overrides()
	if om == nil {
		api.writeErrorResponse(w, http.StatusNotFound, "Override not found")
		return
	}

	override, err := om.GetOverride(mux.Vars(r)["id"])
	if err != nil {
		api.writeErrorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	api.writeJSONResponse(w, http.StatusOK, override)
}

// handleDeleteOverride handles DELETE /rules/overrides/{id}
func (api *HTTPAPI) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	om := api.analyzer.Overrides()
	if om == nil {
		api.writeErrorResponse(w, http.StatusNotFound, "Override not found")
		return
	}

	if err := om.RemoveOverride(mux.Vars(r)["id"]); err != nil {
		api.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Failed to remove override: %v", err))
		return
	}

	api.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"message":   "Override removed successfully",
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth handles GET /healthz
func (api *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	api.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"stats":     api.store.GetStats(),
	})
}

// handleReady handles GET /readyz. When NATS is configured the connection
// must be up.
func (api *HTTPAPI) handleReady(w http.ResponseWriter, r *http.Request) {
	natsEnabled := api.natsConn != nil
	natsConnected := natsEnabled && api.natsConn.IsConnected()
	if natsEnabled {
		api.metrics.SetNatsConnected(natsConnected)
	}

	set := api.analyzer.RuleSet()
	ready := !natsEnabled || natsConnected

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	api.writeJSONResponse(w, statusCode, map[string]interface{}{
		"status":         status,
		"timestamp":      time.Now().UTC(),
		"nats_enabled":   natsEnabled,
		"nats_connected": natsConnected,
		"rules_source":   set.Source,
		"rules_count":    set.Len(),
		"platform":       api.analyzer.Platform(),
	})
}

// writeJSONResponse writes a JSON response
func (api *HTTPAPI) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes an error response
func (api *HTTPAPI) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	api.writeJSONResponse(w, statusCode, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
