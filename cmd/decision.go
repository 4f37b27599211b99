package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/pricelens/pricelens/internal/decision"
	"github.com/pricelens/pricelens/internal/model"
	"github.com/pricelens/pricelens/internal/store"
)

var decisionCmd = &cobra.Command{
	Use:   "decision",
	Short: "Manage pricing decisions",
}

var createFlags struct {
	owner         string
	company       string
	website       string
	currentPrice  float64
	newPrice      float64
	currencyCode  string
	customers     int
	mrr           float64
	churnRate     float64
	goal          string
	stage         string
	businessModel string
	primaryKPI    string
	marketType    string
	marketSegment string
}

var decisionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a pricing decision with an initial verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.decisions.Create(cmd.Context(), decision.CreateParams{
			OwnerID:     createFlags.owner,
			CompanyName: createFlags.company,
			WebsiteURL:  createFlags.website,
			Inputs: model.PricingInputs{
				CurrentPrice:    createFlags.currentPrice,
				NewPrice:        createFlags.newPrice,
				Currency:        createFlags.currencyCode,
				ActiveCustomers: createFlags.customers,
				GlobalMRR:       createFlags.mrr,
				GlobalChurnRate: createFlags.churnRate,
				Goal:            model.Goal(createFlags.goal),
			},
			Context: buildContext(),
		})
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

// buildContext marks flag-supplied fields as user-provided and leaves the
// rest unresolved for downstream inference.
func buildContext() model.DecisionContext {
	var ctx model.DecisionContext
	if createFlags.stage != "" {
		ctx.CompanyStage = model.UserField(createFlags.stage)
	}
	if createFlags.businessModel != "" {
		ctx.BusinessModel = model.UserField(createFlags.businessModel)
	}
	if createFlags.primaryKPI != "" {
		ctx.PrimaryKPI = model.UserField(createFlags.primaryKPI)
	}
	if createFlags.marketType != "" {
		ctx.MarketType = model.UserField(createFlags.marketType)
	}
	if createFlags.marketSegment != "" {
		ctx.MarketSegment = model.UserField(createFlags.marketSegment)
	}
	return ctx
}

var decisionShowCmd = &cobra.Command{
	Use:   "show <decision-id>",
	Short: "Show a decision with its full version history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.decisions.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var listFlags struct {
	status string
	owner  string
	limit  int
}

var decisionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		ds, err := env.decisions.List(cmd.Context(), store.DecisionFilter{
			Status:  model.Status(listFlags.status),
			OwnerID: listFlags.owner,
			Limit:   listFlags.limit,
		})
		if err != nil {
			return err
		}
		return printJSON(ds)
	},
}

var transitionFlags struct {
	reason      string
	actor       string
	implemented string
}

func transitionCommand(use, short string, target model.Status) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <decision-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := initApp(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			params := decision.TransitionParams{
				Reason: transitionFlags.reason,
				Actor:  transitionFlags.actor,
			}
			if transitionFlags.implemented != "" {
				if ts, err := time.Parse("2006-01-02", transitionFlags.implemented); err == nil {
					params.ImplementedAt = &ts
				}
			}
			d, err := env.decisions.Transition(cmd.Context(), args[0], target, params)
			if err != nil {
				return err
			}
			return printJSON(d)
		},
	}
	cmd.Flags().StringVar(&transitionFlags.reason, "reason", "", "reason for the status change")
	cmd.Flags().StringVar(&transitionFlags.actor, "actor", "", "who is making the change")
	cmd.Flags().StringVar(&transitionFlags.implemented, "implemented-at", "", "implementation date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

var decisionRollbackCmd = &cobra.Command{
	Use:   "rollback <decision-id>",
	Short: "Record rollback intent on a completed decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.decisions.Rollback(cmd.Context(), args[0], transitionFlags.reason, transitionFlags.actor, time.Now())
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <decision-id>",
	Short: "Regenerate the verdict as a new version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := env.decisions.RegenerateVerdict(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(d)
	},
}

var decisionDeleteCmd = &cobra.Command{
	Use:   "delete <decision-id>",
	Short: "Soft-delete a decision and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		return env.decisions.Delete(cmd.Context(), args[0])
	},
}

var decisionCompareCmd = &cobra.Command{
	Use:   "compare <decision-id> <decision-id> [decision-id...]",
	Short: "Compare decisions side by side",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		view, err := env.decisions.Compare(cmd.Context(), args)
		if err != nil {
			return err
		}
		return printJSON(view)
	},
}

func init() {
	decisionCreateCmd.Flags().StringVar(&createFlags.owner, "owner", "", "owner id")
	decisionCreateCmd.Flags().StringVar(&createFlags.company, "company", "", "company name")
	decisionCreateCmd.Flags().StringVar(&createFlags.website, "website", "", "company website URL")
	decisionCreateCmd.Flags().Float64Var(&createFlags.currentPrice, "current-price", 0, "current monthly price")
	decisionCreateCmd.Flags().Float64Var(&createFlags.newPrice, "new-price", 0, "proposed monthly price")
	decisionCreateCmd.Flags().StringVar(&createFlags.currencyCode, "currency", "USD", "ISO currency code")
	decisionCreateCmd.Flags().IntVar(&createFlags.customers, "customers", 0, "active customer count")
	decisionCreateCmd.Flags().Float64Var(&createFlags.mrr, "mrr", 0, "current global MRR")
	decisionCreateCmd.Flags().Float64Var(&createFlags.churnRate, "churn", 0, "global monthly churn rate percent")
	decisionCreateCmd.Flags().StringVar(&createFlags.goal, "goal", "base", "pricing goal")
	decisionCreateCmd.Flags().StringVar(&createFlags.stage, "stage", "", "company stage")
	decisionCreateCmd.Flags().StringVar(&createFlags.businessModel, "business-model", "", "business model")
	decisionCreateCmd.Flags().StringVar(&createFlags.primaryKPI, "primary-kpi", "", "primary KPI")
	decisionCreateCmd.Flags().StringVar(&createFlags.marketType, "market-type", "", "market type")
	decisionCreateCmd.Flags().StringVar(&createFlags.marketSegment, "market-segment", "", "market segment")
	_ = decisionCreateCmd.MarkFlagRequired("owner")
	_ = decisionCreateCmd.MarkFlagRequired("company")
	_ = decisionCreateCmd.MarkFlagRequired("current-price")
	_ = decisionCreateCmd.MarkFlagRequired("new-price")
	_ = decisionCreateCmd.MarkFlagRequired("customers")

	decisionListCmd.Flags().StringVar(&listFlags.status, "status", "", "filter by status")
	decisionListCmd.Flags().StringVar(&listFlags.owner, "owner", "", "filter by owner")
	decisionListCmd.Flags().IntVar(&listFlags.limit, "limit", 50, "max results")

	decisionRollbackCmd.Flags().StringVar(&transitionFlags.reason, "reason", "", "reason for the rollback")
	decisionRollbackCmd.Flags().StringVar(&transitionFlags.actor, "actor", "", "who is rolling back")
	_ = decisionRollbackCmd.MarkFlagRequired("actor")

	decisionCmd.AddCommand(
		decisionCreateCmd,
		decisionShowCmd,
		decisionListCmd,
		transitionCommand("approve", "Approve a pending decision", model.StatusApproved),
		transitionCommand("reject", "Reject a pending decision", model.StatusRejected),
		transitionCommand("complete", "Mark an approved decision completed", model.StatusCompleted),
		decisionRollbackCmd,
		regenerateCmd,
		decisionDeleteCmd,
		decisionCompareCmd,
	)
	rootCmd.AddCommand(decisionCmd)
}
