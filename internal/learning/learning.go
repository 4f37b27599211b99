// Package learning aggregates predicted-vs-actual delta history across
// decisions into the signal the verdict-biasing service consumes. The
// engine only produces the snapshot; learning itself happens downstream.
package learning

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/outcome"
	"github.com/pricelens/pricelens/internal/store"
)

// KPIAccuracy tallies how one KPI's actuals landed against predictions.
type KPIAccuracy struct {
	KPIKey  string `json:"kpi_key"`
	Below   int    `json:"below"`
	OnTrack int    `json:"on_track"`
	Above   int    `json:"above"`
	// Bias is the dominant miss direction, or "none" when on-track
	// classifications are the majority.
	Bias string `json:"bias"`
}

// Snapshot is the aggregated delta history across decisions.
type Snapshot struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	DecisionCount int           `json:"decision_count"`
	MeasuredCount int           `json:"measured_count"`
	PerKPI        []KPIAccuracy `json:"per_kpi"`
}

// Aggregator builds snapshots from stored decisions.
type Aggregator struct {
	store store.Store
	now   func() time.Time
}

// NewAggregator creates an Aggregator.
func NewAggregator(st store.Store) *Aggregator {
	return &Aggregator{store: st, now: time.Now}
}

// Collect tallies deltas across all approved and completed decisions.
func (a *Aggregator) Collect(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{GeneratedAt: a.now()}
	tallies := map[string]*KPIAccuracy{}

	for _, status := range []model.Status{model.StatusApproved, model.StatusCompleted} {
		decisions, err := a.store.ListDecisions(ctx, store.DecisionFilter{Status: status})
		if err != nil {
			return nil, err
		}
		for i := range decisions {
			snap.DecisionCount++
			deltas := outcome.ComputeDeltas(&decisions[i])
			if len(deltas) > 0 {
				snap.MeasuredCount++
			}
			for _, delta := range deltas {
				acc := tallies[delta.KPIKey]
				if acc == nil {
					acc = &KPIAccuracy{KPIKey: delta.KPIKey}
					tallies[delta.KPIKey] = acc
				}
				switch delta.Status {
				case model.DeltaBelow:
					acc.Below++
				case model.DeltaAbove:
					acc.Above++
				default:
					acc.OnTrack++
				}
			}
		}
	}

	keys := make([]string, 0, len(tallies))
	for k := range tallies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		acc := tallies[k]
		acc.Bias = bias(acc)
		snap.PerKPI = append(snap.PerKPI, *acc)
	}
	return snap, nil
}

func bias(acc *KPIAccuracy) string {
	switch {
	case acc.OnTrack >= acc.Below && acc.OnTrack >= acc.Above:
		return "none"
	case acc.Below > acc.Above:
		return "overestimate"
	default:
		return "underestimate"
	}
}

// Exporter ships snapshots to the learning service's ingestion webhook.
type Exporter struct {
	url    string
	client *http.Client
}

// NewExporter creates an Exporter. An empty URL disables sending.
func NewExporter(url string, timeout time.Duration) *Exporter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Exporter{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Send POSTs the snapshot. Failures are DependencyError so callers retry
// with backoff; a disabled exporter is a no-op.
func (e *Exporter) Send(ctx context.Context, snap *Snapshot) error {
	if e.url == "" {
		zap.L().Debug("learning: exporter disabled, skipping send")
		return nil
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "learning: marshal snapshot")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "learning: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fault.NewDependency("learning", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fault.NewDependency("learning", eris.Errorf("learning webhook returned %d", resp.StatusCode))
	}

	zap.L().Info("learning: snapshot exported",
		zap.Int("decision_count", snap.DecisionCount),
		zap.Int("kpi_count", len(snap.PerKPI)),
	)
	return nil
}
