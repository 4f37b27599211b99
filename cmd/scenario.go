package main

import (
	"github.com/spf13/cobra"

	"github.com/pricelens/pricelens/internal/model"
)

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Generate and choose pricing scenarios",
}

var generateFlags struct {
	goals []string
}

var scenarioGenerateCmd = &cobra.Command{
	Use:   "generate <decision-id>",
	Short: "Generate a fresh scenario set for a decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		goals := make([]model.Goal, 0, len(generateFlags.goals))
		for _, g := range generateFlags.goals {
			goals = append(goals, model.Goal(g))
		}
		d, err := env.scenarios.Generate(cmd.Context(), args[0], goals)
		if err != nil {
			return err
		}
		return printJSON(d.Scenarios)
	},
}

var scenarioChooseCmd = &cobra.Command{
	Use:   "choose <decision-id> <scenario-id>",
	Short: "Mark one scenario as the chosen path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.scenarios.Choose(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(d.Scenarios)
	},
}

func init() {
	scenarioGenerateCmd.Flags().StringSliceVar(&generateFlags.goals, "goals", nil,
		"goals to generate scenarios for (default conservative,base,aggressive)")

	scenarioCmd.AddCommand(scenarioGenerateCmd, scenarioChooseCmd)
	rootCmd.AddCommand(scenarioCmd)
}
