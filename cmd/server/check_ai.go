package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyjia/workflow-orchestrator/internal/application/port"
	"github.com/garyjia/workflow-orchestrator/internal/domain/workflow"
)

var checkAIOrgID string

var checkAICmd = &cobra.Command{
	Use:   "check-ai",
	Short: "Send a sample AI guard request to the organization's model provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, logger, err := bootstrap(cmd.Context(), withoutWorkers)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer c.Close()

		decision := c.AI().Guard.EvaluateGuard(cmd.Context(), port.GuardRequest{
			OrgID:        checkAIOrgID,
			EntityType:   "deal",
			Entity:       map[string]any{"id": "sample", "amount": 12000, "stage": "negotiation", "signed_contract": true},
			CurrentState: "negotiation",
			ToState:      "won",
			Transition: workflow.Transition{
				From:  "negotiation",
				To:    "won",
				Guard: workflow.AIGuardKeyword + ":only allow when the contract is signed",
			},
		})

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "allowed: %t\n", decision.Allowed)
		fmt.Fprintf(out, "model:   %s\n", decision.Model)
		fmt.Fprintf(out, "reason:  %s\n", decision.Reason)
		if decision.Error != "" {
			return fmt.Errorf("AI guard check failed: %s", decision.Error)
		}
		return nil
	},
}

func init() {
	checkAICmd.Flags().StringVar(&checkAIOrgID, "org", "", "organization whose provider is used; empty uses the global default")
}
