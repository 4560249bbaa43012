package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "debtster_portal",
		Short: "Debtor portal: sign in, verify identity, view balances and pay",
		// serve is the default when no subcommand is given
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), 0)
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
