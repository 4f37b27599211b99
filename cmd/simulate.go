package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/pricelens/pricelens/internal/elasticity"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/simulation"
)

var simulateFlags struct {
	currentPrice float64
	newPrice     float64
	customers    int
	currencyCode string
	mrr          float64
	churnRate    float64
	goal         string
	jsonOutput   bool
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an elasticity projection for a price change",
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := elasticity.Load(cfg.Elasticity.TablePath)
		if err != nil {
			return err
		}
		engine := simulation.NewEngine(table)

		result, err := engine.Simulate(simulation.Input{
			CurrentPrice:    simulateFlags.currentPrice,
			NewPrice:        simulateFlags.newPrice,
			ActiveCustomers: simulateFlags.customers,
			Currency:        simulateFlags.currencyCode,
			GlobalMRR:       simulateFlags.mrr,
			GlobalChurnRate: simulateFlags.churnRate,
			Goal:            model.Goal(simulateFlags.goal),
		})
		if err != nil {
			return err
		}

		if simulateFlags.jsonOutput {
			return printJSON(result)
		}
		printProjection(result)
		return nil
	},
}

// printProjection renders a human-readable projection table with
// currency-aware formatting.
func printProjection(r *model.SimulationResult) {
	p := message.NewPrinter(language.English)
	unit, err := currency.ParseISO(r.Currency)
	if err != nil {
		unit = currency.USD
	}

	p.Printf("Price change: %.1f%% (%v%.2f -> %v%.2f), risk %s\n",
		r.PriceChangePct, currency.Symbol(unit), r.CurrentPrice, currency.Symbol(unit), r.NewPrice, r.RiskLevel)
	for _, goal := range model.Goals() {
		band, ok := r.Band(goal)
		if !ok {
			continue
		}
		fmt.Println()
		p.Printf("%s:\n", goal)
		p.Printf("  customers  %d - %d\n", band.NewCustomerCountMin, band.NewCustomerCountMax)
		p.Printf("  MRR        %v%.2f - %v%.2f\n", currency.Symbol(unit), band.NewMRRMin, currency.Symbol(unit), band.NewMRRMax)
		p.Printf("  ARR        %v%.2f - %v%.2f\n", currency.Symbol(unit), band.NewARRMin, currency.Symbol(unit), band.NewARRMax)
	}
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateFlags.currentPrice, "current-price", 0, "current monthly price")
	simulateCmd.Flags().Float64Var(&simulateFlags.newPrice, "new-price", 0, "proposed monthly price")
	simulateCmd.Flags().IntVar(&simulateFlags.customers, "customers", 0, "active customer count")
	simulateCmd.Flags().StringVar(&simulateFlags.currencyCode, "currency", "USD", "ISO currency code")
	simulateCmd.Flags().Float64Var(&simulateFlags.mrr, "mrr", 0, "current global MRR")
	simulateCmd.Flags().Float64Var(&simulateFlags.churnRate, "churn", 0, "global monthly churn rate percent")
	simulateCmd.Flags().StringVar(&simulateFlags.goal, "goal", "base", "pricing goal: conservative, base, aggressive")
	simulateCmd.Flags().BoolVar(&simulateFlags.jsonOutput, "json", false, "output JSON")
	_ = simulateCmd.MarkFlagRequired("current-price")
	_ = simulateCmd.MarkFlagRequired("new-price")
	_ = simulateCmd.MarkFlagRequired("customers")
	rootCmd.AddCommand(simulateCmd)
}
