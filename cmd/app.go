package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/pricelens/pricelens/internal/cost"
	"github.com/pricelens/pricelens/internal/decision"
	"github.com/pricelens/pricelens/internal/elasticity"
	"github.com/pricelens/pricelens/internal/inference"
	"github.com/pricelens/pricelens/internal/limits"
	"github.com/pricelens/pricelens/internal/outcome"
	"github.com/pricelens/pricelens/internal/scenario"
	"github.com/pricelens/pricelens/internal/simulation"
	"github.com/pricelens/pricelens/internal/store"
	"github.com/pricelens/pricelens/pkg/anthropic"
)

// appEnv holds the wired engine for one command invocation.
type appEnv struct {
	store     store.Store
	engine    *simulation.Engine
	decisions *decision.Service
	scenarios *scenario.Generator
	outcomes  *outcome.Tracker
}

// initApp wires the store, elasticity table, inference, and services from
// the loaded config.
func initApp(ctx context.Context) (*appEnv, error) {
	var st store.Store
	var err error
	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	table, err := elasticity.Load(cfg.Elasticity.TablePath)
	if err != nil {
		st.Close()
		return nil, err
	}
	engine := simulation.NewEngine(table)

	rates := cfg.Pricing
	if len(rates.Anthropic) == 0 {
		rates = cost.DefaultRates()
	}
	calc := cost.NewCalculator(rates)

	gen := inference.NewClaudeGenerator(
		anthropic.NewClient(cfg.Anthropic.Key),
		calc,
		inference.Options{
			Model:          cfg.Anthropic.Model,
			MaxTokens:      cfg.Anthropic.MaxTokens,
			Timeout:        time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
			RequestsPerSec: cfg.Anthropic.RequestsPerSec,
		},
	)

	var gate limits.Gate
	if cfg.Limits.URL != "" {
		gate = limits.NewHTTPGate(cfg.Limits.URL, time.Duration(cfg.Limits.TimeoutSecs)*time.Second)
	} else {
		gate = limits.NewFixedAllowance(map[limits.Resource]int{
			limits.ResourceDecisions: cfg.Limits.MaxDecisions,
			limits.ResourceScenarios: cfg.Limits.MaxScenarios,
			limits.ResourceVerdicts:  cfg.Limits.MaxVerdicts,
		})
	}

	return &appEnv{
		store:     st,
		engine:    engine,
		decisions: decision.NewService(st, engine, gen, gate),
		scenarios: scenario.NewGenerator(st, engine, gen, gate),
		outcomes:  outcome.NewTracker(st),
	}, nil
}

func (e *appEnv) Close() {
	if e.store != nil {
		_ = e.store.Close()
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(data))
	return nil
}
