package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run one auto-transition sweep and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, logger, err := bootstrap(cmd.Context(), withoutWorkers)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer c.Close()

		report, err := c.Services().AutoTransition.Run(cmd.Context())
		if report != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
		}
		return err
	},
}
