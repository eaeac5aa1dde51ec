package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aria5/authscan/internal/auth"
	"github.com/aria5/authscan/internal/config"
	"github.com/aria5/authscan/internal/database"
	"github.com/aria5/authscan/internal/investigate"
	"github.com/aria5/authscan/internal/log"
	"github.com/aria5/authscan/internal/model"
	"github.com/spf13/cobra"
)

// NewInvestigateCmd creates the investigate command.
func NewInvestigateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "investigate [target-url]",
		Short: "Re-fetch error pages from the last scan and analyze them",
		Long: `Investigate loads the most recent scan report for the target, re-fetches
every page that returned a server error, and inspects the response bodies
for error indicators (stack traces, exception names, database errors).

It also groups 404 pages into API endpoints versus UI pages, saves each
error response body for manual review, and derives prioritized
recommendations.

The target must have been scanned first with 'authscan scan'. Credentials
are read from the configuration file or flags, because the error pages sit
behind authentication.

Examples:
  # Investigate errors from the latest scan
  authscan investigate http://grc.example.com

  # Investigate a specific historical scan
  authscan investigate --scan-id 5 http://grc.example.com

  # Save response bodies to a custom directory
  authscan investigate -O ./error-bodies http://grc.example.com`,
		Args: cobra.MaximumNArgs(1),
		RunE: runInvestigateCmd,
	}

	cmd.Flags().StringP("username", "u", "", "Login username")
	cmd.Flags().StringP("password", "P", "", "Login password")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .authscan in current or home directory)")
	cmd.Flags().Int64P("scan-id", "i", 0,
		"Investigate a specific scan by ID (use 'compare --list' to see IDs)")
	cmd.Flags().StringP("output-dir", "O", "error_responses",
		"Directory to save error response bodies to")
	cmd.Flags().StringP("output", "o", "",
		"Write the investigation JSON to this file instead of stdout")

	return cmd
}

// runInvestigateCmd executes the investigate command.
func runInvestigateCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildBaseConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.Target == "" {
		return config.ErrNoTarget
	}
	if len(cfg.Credentials) == 0 {
		return config.ErrNoCredentials
	}

	scanID, err := cmd.Flags().GetInt64("scan-id")
	if err != nil {
		return err
	}
	outputDir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return err
	}
	outputFile, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	// Load the scan report to investigate
	scanReport, err := loadScanReport(ctx, cfg, scanID)
	if err != nil {
		return err
	}

	if len(scanReport.ServerErrors) == 0 && len(scanReport.ClientErrors) == 0 {
		fmt.Println("No error pages in the last scan. Nothing to investigate.")
		return nil
	}

	// Authenticate so the probes see the same pages the scan saw
	session, err := auth.NewSession(cfg.Target, cfg.Credentials,
		auth.WithTimeout(cfg.Timeout),
		auth.WithUserAgent(cfg.UserAgent),
		auth.WithHeaders(cfg.Headers),
		auth.WithLoginEndpoints(cfg.LoginPath, cfg.AuthPath, cfg.VerifyPath),
		auth.WithSessionCookie(cfg.SessionCookie),
		auth.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if err := session.Login(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Printf("Investigating %d server error(s) and %d client error(s)...\n\n",
		len(scanReport.ServerErrors), len(scanReport.ClientErrors))

	investigator := investigate.NewInvestigator(session,
		investigate.WithOutputDir(outputDir),
		investigate.WithLogger(logger),
	)

	investigation, err := investigator.Run(ctx, scanReport)
	if err != nil {
		return fmt.Errorf("investigation failed: %w", err)
	}

	return outputInvestigation(investigation, outputFile)
}

// loadScanReport retrieves the report to investigate from the history database.
func loadScanReport(ctx context.Context, cfg *config.Config, scanID int64) (*model.ScanReport, error) {
	db, err := database.Open(cfg.DBDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return nil, fmt.Errorf("failed to open database (scan the target first): %w", err)
	}
	defer db.Close()

	var scanReport *model.ScanReport
	if scanID > 0 {
		scanReport, err = db.GetScanReportByID(ctx, scanID)
		if err != nil {
			return nil, fmt.Errorf("failed to get scan with ID %d: %w", scanID, err)
		}
		if scanReport == nil {
			return nil, fmt.Errorf("scan with ID %d not found", scanID)
		}
		if scanReport.Target != cfg.Target {
			return nil, fmt.Errorf("scan ID %d belongs to %s, not %s", scanID, scanReport.Target, cfg.Target)
		}
	} else {
		scanReport, err = db.GetLatestScanReport(ctx, cfg.Target)
		if err != nil {
			return nil, fmt.Errorf("failed to get latest scan: %w", err)
		}
		if scanReport == nil {
			return nil, fmt.Errorf("no scan history found for %s (run 'authscan scan' first)", cfg.Target)
		}
	}

	return scanReport, nil
}

// outputInvestigation writes the investigation result as indented JSON.
func outputInvestigation(investigation *investigate.Investigation, outputFile string) error {
	output := os.Stdout
	if outputFile != "" {
		f, err := createReportFile(outputFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(investigation); err != nil {
		return err
	}

	// Print the recommendations to stderr as well when writing to a file,
	// so the operator sees them without opening the JSON.
	if outputFile != "" {
		for _, rec := range investigation.Recommendations {
			fmt.Fprintf(os.Stderr, "  %s\n", rec)
		}
		fmt.Fprintf(os.Stderr, "Investigation written to %s\n", outputFile)
	}

	return nil
}
