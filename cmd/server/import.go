package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	importFile  string
	importOrgID string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Create workflow definitions from a YAML document",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(importFile)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", importFile, err)
		}
		defer f.Close()

		c, _, logger, err := bootstrap(cmd.Context(), withoutWorkers)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer c.Close()

		defs, err := c.Services().Definition.ImportYAML(cmd.Context(), importOrgID, f)
		if err != nil {
			return err
		}
		for _, def := range defs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", def.ID(), def.Name(), def.EntityType(), def.Status())
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "YAML file with a workflows list")
	importCmd.Flags().StringVar(&importOrgID, "org", "", "organization that owns the imported definitions")
	_ = importCmd.MarkFlagRequired("file")
	_ = importCmd.MarkFlagRequired("org")
}
