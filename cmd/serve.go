package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pricelens/pricelens/internal/decision"
	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/outcome"
	"github.com/pricelens/pricelens/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}
		zap.L().Info("serve: listening", zap.Int("port", cfg.Server.Port))
		return srv.ListenAndServe()
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/decisions", func(r chi.Router) {
		r.Post("/", env.handleCreateDecision)
		r.Get("/", env.handleListDecisions)
		r.Get("/compare", env.handleCompareDecisions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", env.handleGetDecision)
			r.Delete("/", env.handleDeleteDecision)
			r.Post("/status", env.handleStatusChange)
			r.Post("/rollback", env.handleRollback)
			r.Post("/context", env.handleAppendContext)
			r.Post("/verdict/regenerate", env.handleRegenerate)
			r.Post("/scenarios", env.handleGenerateScenarios)
			r.Put("/scenarios/{sid}/choose", env.handleChooseScenario)
			r.Post("/outcome", env.handleRecordOutcome)
			r.Put("/outcome/kpi/{key}", env.handleUpdateKPIActual)
			r.Get("/outcome/effective", env.handleEffectiveOutcome)
		})
	})

	return r
}

type createDecisionRequest struct {
	OwnerID     string              `json:"owner_id"`
	CompanyName string              `json:"company_name"`
	WebsiteURL  string              `json:"website_url"`
	Inputs      model.PricingInputs `json:"inputs"`
	Context     contextRequest      `json:"context"`
}

// contextRequest maps the API's flat context shape onto provenance-tracked
// fields. Anything the caller sends is user-provided by definition.
type contextRequest struct {
	CompanyStage  *string `json:"company_stage"`
	BusinessModel *string `json:"business_model"`
	PrimaryKPI    *string `json:"primary_kpi"`
	MarketType    *string `json:"market_type"`
	MarketSegment *string `json:"market_segment"`
}

func (c contextRequest) toModel() model.DecisionContext {
	var out model.DecisionContext
	if c.CompanyStage != nil {
		out.CompanyStage = model.UserField(*c.CompanyStage)
	}
	if c.BusinessModel != nil {
		out.BusinessModel = model.UserField(*c.BusinessModel)
	}
	if c.PrimaryKPI != nil {
		out.PrimaryKPI = model.UserField(*c.PrimaryKPI)
	}
	if c.MarketType != nil {
		out.MarketType = model.UserField(*c.MarketType)
	}
	if c.MarketSegment != nil {
		out.MarketSegment = model.UserField(*c.MarketSegment)
	}
	return out
}

func (e *appEnv) handleCreateDecision(w http.ResponseWriter, r *http.Request) {
	var req createDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	d, err := e.decisions.Create(r.Context(), decision.CreateParams{
		OwnerID:     req.OwnerID,
		CompanyName: req.CompanyName,
		WebsiteURL:  req.WebsiteURL,
		Inputs:      req.Inputs,
		Context:     req.Context.toModel(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (e *appEnv) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	ds, err := e.decisions.List(r.Context(), store.DecisionFilter{
		Status:  model.Status(r.URL.Query().Get("status")),
		OwnerID: r.URL.Query().Get("owner_id"),
		Limit:   50,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (e *appEnv) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	d, err := e.decisions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (e *appEnv) handleDeleteDecision(w http.ResponseWriter, r *http.Request) {
	if err := e.decisions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusChangeRequest struct {
	Status        string     `json:"status"`
	Reason        string     `json:"reason"`
	Actor         string     `json:"actor"`
	ImplementedAt *time.Time `json:"implemented_at"`
}

func (e *appEnv) handleStatusChange(w http.ResponseWriter, r *http.Request) {
	var req statusChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	d, err := e.decisions.Transition(r.Context(), chi.URLParam(r, "id"), model.Status(req.Status), decision.TransitionParams{
		Reason:        req.Reason,
		Actor:         req.Actor,
		ImplementedAt: req.ImplementedAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type rollbackRequest struct {
	Reason     string     `json:"reason"`
	Actor      string     `json:"actor"`
	RollbackAt *time.Time `json:"rollback_at"`
}

func (e *appEnv) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req rollbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	at := time.Now()
	if req.RollbackAt != nil {
		at = *req.RollbackAt
	}
	d, err := e.decisions.Rollback(r.Context(), chi.URLParam(r, "id"), req.Reason, req.Actor, at)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type appendContextRequest struct {
	Context contextRequest `json:"context"`
	Reason  string         `json:"reason"`
}

func (e *appEnv) handleAppendContext(w http.ResponseWriter, r *http.Request) {
	var req appendContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	d, err := e.decisions.AppendContext(r.Context(), chi.URLParam(r, "id"), req.Context.toModel(), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (e *appEnv) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	d, err := e.decisions.RegenerateVerdict(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (e *appEnv) handleCompareDecisions(w http.ResponseWriter, r *http.Request) {
	ids := strings.Split(r.URL.Query().Get("ids"), ",")
	view, err := e.decisions.Compare(r.Context(), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type generateScenariosRequest struct {
	Goals []model.Goal `json:"goals"`
}

func (e *appEnv) handleGenerateScenarios(w http.ResponseWriter, r *http.Request) {
	var req generateScenariosRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fault.NewValidation("body", "invalid JSON"))
			return
		}
	}
	d, err := e.scenarios.Generate(r.Context(), chi.URLParam(r, "id"), req.Goals)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d.Scenarios)
}

func (e *appEnv) handleChooseScenario(w http.ResponseWriter, r *http.Request) {
	d, err := e.scenarios.Choose(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Scenarios)
}

type recordOutcomeRequest struct {
	DecisionTaken   *bool                `json:"decision_taken"`
	DateImplemented string               `json:"date_implemented"`
	Notes           *string              `json:"notes"`
	Status          *model.OutcomeStatus `json:"status"`
	KPIActuals      map[string]string    `json:"kpi_actuals"`
}

func (e *appEnv) handleRecordOutcome(w http.ResponseWriter, r *http.Request) {
	var req recordOutcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	d, err := e.outcomes.Record(r.Context(), chi.URLParam(r, "id"), outcome.RecordParams{
		DecisionTaken:   req.DecisionTaken,
		DateImplemented: req.DateImplemented,
		Notes:           req.Notes,
		Status:          req.Status,
		KPIActuals:      req.KPIActuals,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Outcome)
}

type updateKPIRequest struct {
	Actual float64 `json:"actual"`
}

func (e *appEnv) handleUpdateKPIActual(w http.ResponseWriter, r *http.Request) {
	var req updateKPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.NewValidation("body", "invalid JSON"))
		return
	}
	d, err := e.outcomes.UpdateKPIActual(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "key"), req.Actual)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Outcome)
}

func (e *appEnv) handleEffectiveOutcome(w http.ResponseWriter, r *http.Request) {
	view, err := e.outcomes.Effective(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("serve: encode response", zap.Error(err))
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Invariant
// violations and unknown errors are both 500s; the distinction only matters
// in the logs.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case fault.AsValidation(err):
		status = http.StatusBadRequest
	case fault.AsNotFound(err):
		status = http.StatusNotFound
	case fault.AsInvalidTransition(err):
		status = http.StatusConflict
	case fault.AsConcurrencyConflict(err):
		status = http.StatusConflict
	case fault.AsLimitExceeded(err):
		status = http.StatusTooManyRequests
	case fault.AsDependency(err):
		status = http.StatusBadGateway
	case fault.AsConfiguration(err):
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		zap.L().Error("serve: request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": errorKind(err)})
}

func errorKind(err error) string {
	switch {
	case fault.AsValidation(err):
		return "validation"
	case fault.AsNotFound(err):
		return "not_found"
	case fault.AsInvalidTransition(err):
		return "invalid_transition"
	case fault.AsConcurrencyConflict(err):
		return "concurrency_conflict"
	case fault.AsLimitExceeded(err):
		return "limit_exceeded"
	case fault.AsDependency(err):
		return "dependency"
	case fault.AsConfiguration(err):
		return "configuration"
	case fault.AsInvariantViolation(err):
		return "invariant_violation"
	}
	return "internal"
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
