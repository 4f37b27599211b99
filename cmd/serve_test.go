package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricelens/pricelens/internal/decision"
	"github.com/pricelens/pricelens/internal/elasticity"
	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/inference"
	"github.com/pricelens/pricelens/internal/limits"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/outcome"
	"github.com/pricelens/pricelens/internal/scenario"
	"github.com/pricelens/pricelens/internal/simulation"
	"github.com/pricelens/pricelens/internal/store"
)

type fakeGenerator struct{}

func (fakeGenerator) GenerateVerdict(_ context.Context, _ model.DecisionContext, _ *model.SimulationResult) (model.Verdict, model.ModelMeta, error) {
	return model.Verdict{Headline: "Raise it"}, model.ModelMeta{Model: "test"}, nil
}

func (fakeGenerator) GenerateScenarioNarrative(_ context.Context, in inference.ScenarioInputs) (string, error) {
	return "narrative for " + in.Name, nil
}

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	table, err := elasticity.Default()
	require.NoError(t, err)
	engine := simulation.NewEngine(table)
	gen := fakeGenerator{}
	gate := limits.NewFixedAllowance(nil)

	return &appEnv{
		store:     st,
		engine:    engine,
		decisions: decision.NewService(st, engine, gen, gate),
		scenarios: scenario.NewGenerator(st, engine, gen, gate),
		outcomes:  outcome.NewTracker(st),
	}
}

func createViaAPI(t *testing.T, srv *httptest.Server) map[string]any {
	t.Helper()
	body := `{
		"owner_id": "owner-1",
		"company_name": "Acme",
		"inputs": {
			"current_price": 79, "new_price": 99, "currency": "USD",
			"active_customers": 423, "global_churn_rate": 5, "goal": "base"
		},
		"context": {"company_stage": "growth"}
	}`
	resp, err := http.Post(srv.URL+"/decisions", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestAPI_CreateAndGetDecision(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	created := createViaAPI(t, srv)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", created["status"])

	resp, err := http.Get(srv.URL + "/decisions/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_GetMissingDecisionIs404(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/decisions/ghost")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "not_found", body["kind"])
}

func TestAPI_InvalidTransitionIs409(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	created := createViaAPI(t, srv)
	id := created["id"].(string)

	// pending -> completed skips approval.
	body := `{"status": "completed", "actor": "alice"}`
	resp, err := http.Post(srv.URL+"/decisions/"+id+"/status", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ScenarioFlow(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	created := createViaAPI(t, srv)
	id := created["id"].(string)

	resp, err := http.Post(srv.URL+"/decisions/"+id+"/scenarios", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var scenarios []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scenarios))
	require.Len(t, scenarios, 3)

	sid := scenarios[1]["id"].(string)
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/decisions/"+id+"/scenarios/"+sid+"/choose", nil)
	require.NoError(t, err)
	chooseResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer chooseResp.Body.Close()
	assert.Equal(t, http.StatusOK, chooseResp.StatusCode)
}

func TestAPI_BadJSONIs400(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/decisions", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_CompareRequiresTwoIDs(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/decisions/compare?ids=only-one")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fault.NewValidation("f", "m"), http.StatusBadRequest},
		{fault.NewNotFound("decision", "id"), http.StatusNotFound},
		{&fault.InvalidTransitionError{From: "rejected", To: "approved"}, http.StatusConflict},
		{&fault.ConcurrencyConflictError{DecisionID: "id"}, http.StatusConflict},
		{&fault.LimitExceededError{Resource: "decisions"}, http.StatusTooManyRequests},
		{fault.NewDependency("inference", errors.New("down")), http.StatusBadGateway},
		{fault.NewConfiguration("bad table"), http.StatusInternalServerError},
		{&fault.InvariantViolationError{DecisionID: "id"}, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, tt.err)
		assert.Equal(t, tt.want, rec.Code, "%v", tt.err)
	}
}

func TestAPI_Healthz(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_UpdateKPIActual(t *testing.T) {
	srv := httptest.NewServer(newRouter(newTestEnv(t)))
	defer srv.Close()

	created := createViaAPI(t, srv)
	id := created["id"].(string)

	approveBody := `{"status": "approved", "actor": "alice"}`
	resp, err := http.Post(srv.URL+"/decisions/"+id+"/status", "application/json", bytes.NewBufferString(approveBody))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/decisions/"+id+"/scenarios", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	var scenarios []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scenarios))
	resp.Body.Close()
	sid := scenarios[1]["id"].(string)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/decisions/"+id+"/scenarios/"+sid+"/choose", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/decisions/"+id+"/outcome/kpi/new_mrr",
		bytes.NewBufferString(`{"actual": 41500}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	kpis := out["kpis"].(map[string]any)
	mrr := kpis["new_mrr"].(map[string]any)
	assert.Equal(t, 41500.0, mrr["actual"])

	// Keys outside the chosen scenario's set are rejected.
	req, err = http.NewRequest(http.MethodPut, srv.URL+"/decisions/"+id+"/outcome/kpi/made_up",
		bytes.NewBufferString(`{"actual": 1}`))
	require.NoError(t, err)
	badResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer badResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, badResp.StatusCode)
}
