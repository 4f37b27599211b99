package main

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pricelens/pricelens/internal/fault"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/outcome"
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome",
	Short: "Record and inspect real-world outcomes",
}

var recordFlags struct {
	taken       bool
	notTaken    bool
	implemented string
	notes       string
	status      string
	kpis        map[string]string
}

var outcomeRecordCmd = &cobra.Command{
	Use:   "record <decision-id>",
	Short: "Merge a partial outcome update into the decision's outcome record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		p := outcome.RecordParams{
			DateImplemented: recordFlags.implemented,
			KPIActuals:      recordFlags.kpis,
		}
		if recordFlags.taken {
			v := true
			p.DecisionTaken = &v
		} else if recordFlags.notTaken {
			v := false
			p.DecisionTaken = &v
		}
		if cmd.Flags().Changed("notes") {
			p.Notes = &recordFlags.notes
		}
		if recordFlags.status != "" {
			st := model.OutcomeStatus(recordFlags.status)
			p.Status = &st
		}
		d, err := env.outcomes.Record(cmd.Context(), args[0], p)
		if err != nil {
			return err
		}
		return printJSON(d.Outcome)
	},
}

var outcomeKPICmd = &cobra.Command{
	Use:   "kpi <decision-id> <kpi-key> <actual>",
	Short: "Set the actual measurement for one KPI",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		actual, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return fault.NewValidation("actual", "must be a number")
		}

		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.outcomes.UpdateKPIActual(cmd.Context(), args[0], args[1], actual)
		if err != nil {
			return err
		}
		return printJSON(d.Outcome)
	},
}

var outcomeShowCmd = &cobra.Command{
	Use:   "show <decision-id>",
	Short: "Show the effective outcome view with predicted-vs-actual deltas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := env.outcomes.Effective(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(view)
	},
}

func init() {
	outcomeRecordCmd.Flags().BoolVar(&recordFlags.taken, "taken", false, "the price change was implemented")
	outcomeRecordCmd.Flags().BoolVar(&recordFlags.notTaken, "not-taken", false, "the price change was abandoned")
	outcomeRecordCmd.Flags().StringVar(&recordFlags.implemented, "implemented", "", "implementation date")
	outcomeRecordCmd.Flags().StringVar(&recordFlags.notes, "notes", "", "free-text notes")
	outcomeRecordCmd.Flags().StringVar(&recordFlags.status, "status", "", "measuring or reconciled")
	outcomeRecordCmd.Flags().StringToStringVar(&recordFlags.kpis, "kpi", nil, "actual KPI values, e.g. new_mrr=41500")
	outcomeRecordCmd.MarkFlagsMutuallyExclusive("taken", "not-taken")

	outcomeCmd.AddCommand(outcomeRecordCmd, outcomeKPICmd, outcomeShowCmd)
	rootCmd.AddCommand(outcomeCmd)
}
