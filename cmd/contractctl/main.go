// Command contractctl is the operator CLI for the contract-service: schema migrations,
// lease repair and one-off payment reconciliation.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "contractctl",
		Short:         "Contract service operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		migrateCmd(),
		repairLeasesCmd(),
		reconcileCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
