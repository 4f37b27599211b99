package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pricelens/pricelens/internal/learning"
)

var exportFlags struct {
	send bool
}

var learningCmd = &cobra.Command{
	Use:   "learning",
	Short: "Aggregate prediction accuracy across closed decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := learning.NewAggregator(env.store).Collect(cmd.Context())
		if err != nil {
			return err
		}
		if exportFlags.send {
			exp := learning.NewExporter(cfg.Learning.WebhookURL, time.Duration(cfg.Learning.TimeoutSecs)*time.Second)
			if err := exp.Send(cmd.Context(), snap); err != nil {
				return err
			}
		}
		return printJSON(snap)
	},
}

func init() {
	learningCmd.Flags().BoolVar(&exportFlags.send, "send", false, "also POST the snapshot to the configured webhook")
	rootCmd.AddCommand(learningCmd)
}
