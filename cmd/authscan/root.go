// Package main provides the entry point for the authscan CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for authscan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authscan",
		Short: "Authenticated crawler for web applications",
		Long: `Authscan is an authenticated crawler for web applications with form-based login.
It authenticates against the target, crawls every page reachable from the
dashboard, and reports which URLs return errors behind authentication.

Credentials and target routes are read from a .authscan configuration file
or supplied via flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewInvestigateCmd())
	cmd.AddCommand(NewCompareCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
