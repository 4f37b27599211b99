// Package limits gates mutating operations on the customer's plan
// allowance. The gate is consulted before any write; an exceeded allowance
// is a user-facing plan error, not a system fault.
package limits

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricelens/pricelens/internal/fault"
)

// Resource names a gated allowance.
type Resource string

const (
	ResourceDecisions Resource = "decisions"
	ResourceScenarios Resource = "scenarios"
	ResourceVerdicts  Resource = "verdicts"
)

// Gate pre-checks whether the owner may consume one unit of a resource.
// A nil return means the operation may proceed.
type Gate interface {
	Check(ctx context.Context, ownerID string, resource Resource) error
}

// FixedAllowance is a local gate counting usage in memory against flat
// per-resource limits. Zero or negative limits mean unlimited. Intended for
// dev and tests; production uses the HTTP gate.
type FixedAllowance struct {
	Limits map[Resource]int

	mu   sync.Mutex
	used map[string]map[Resource]int
}

// NewFixedAllowance creates a FixedAllowance with the given limits.
func NewFixedAllowance(limits map[Resource]int) *FixedAllowance {
	return &FixedAllowance{
		Limits: limits,
		used:   make(map[string]map[Resource]int),
	}
}

func (f *FixedAllowance) Check(_ context.Context, ownerID string, resource Resource) error {
	limit := f.Limits[resource]
	if limit <= 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used[ownerID] == nil {
		f.used[ownerID] = make(map[Resource]int)
	}
	if f.used[ownerID][resource] >= limit {
		return &fault.LimitExceededError{Resource: string(resource), Limit: limit}
	}
	f.used[ownerID][resource]++
	return nil
}

// HTTPGate asks the billing service whether the owner has allowance left.
type HTTPGate struct {
	url    string
	client *http.Client
}

// NewHTTPGate creates an HTTPGate against the given endpoint.
func NewHTTPGate(url string, timeout time.Duration) *HTTPGate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPGate{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	OwnerID  string `json:"owner_id"`
	Resource string `json:"resource"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
	Limit   int  `json:"limit"`
}

func (g *HTTPGate) Check(ctx context.Context, ownerID string, resource Resource) error {
	body, err := json.Marshal(checkRequest{OwnerID: ownerID, Resource: string(resource)})
	if err != nil {
		return eris.Wrap(err, "limits: marshal check request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "limits: build check request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fault.NewDependency("limits", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.NewDependency("limits", eris.Errorf("limits service returned %d", resp.StatusCode))
	}

	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fault.NewDependency("limits", err)
	}
	if !out.Allowed {
		return &fault.LimitExceededError{Resource: string(resource), Limit: out.Limit}
	}
	return nil
}
