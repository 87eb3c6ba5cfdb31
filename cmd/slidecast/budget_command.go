package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"slidecast/internal/speech"
)

func newBudgetCommand(ctx *commandContext) *cobra.Command {
	budgetCmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect the speech synthesis character budget",
	}

	budgetCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show lifetime synthesized characters against the cap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			used, err := s.Counter(speech.BudgetCounterName).Value()
			if err != nil {
				return err
			}
			if cfg.Speech.MaxChars > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Used %d of %d characters (%.1f%%).\n",
					used, cfg.Speech.MaxChars, float64(used)*100/float64(cfg.Speech.MaxChars))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Used %d characters (no cap configured).\n", used)
			}
			return nil
		},
	})

	budgetCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Zero the lifetime character counter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Counter(speech.BudgetCounterName).Reset(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Budget counter reset.")
			return nil
		},
	})

	return budgetCmd
}
