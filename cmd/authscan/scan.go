package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aria5/authscan/internal/auth"
	"github.com/aria5/authscan/internal/config"
	"github.com/aria5/authscan/internal/database"
	"github.com/aria5/authscan/internal/log"
	"github.com/aria5/authscan/internal/model"
	"github.com/aria5/authscan/internal/pipeline"
	"github.com/aria5/authscan/internal/report"
	"github.com/spf13/cobra"
)

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [target-url]",
		Short: "Authenticate against a web application and crawl it for errors",
		Long: `Scan logs in to the target web application, crawls every page reachable
from the authenticated session, and buckets the responses by status code.

The crawl follows <a href> links, form actions, and htmx endpoint attributes,
stays on the target host, and waits between requests so it never competes
with real traffic. Requests bounced back to the login page are recorded as
authentication failures and the session is re-established.

Examples:
  # Scan with credentials from .authscan in the current directory
  authscan scan http://grc.example.com

  # Supply credentials on the command line
  authscan scan -u admin -P secret http://grc.example.com

  # Output JSON report to a file
  authscan scan --json -o report.json http://grc.example.com

  # Additionally write the error table as CSV
  authscan scan --csv errors.csv http://grc.example.com

  # Use a custom configuration file
  authscan scan -c myconfig.yaml

Configuration file (.authscan) example:
  target: http://grc.example.com
  credentials:
    - username: admin
      password: secret
      role: administrator
  routes:
    - /dashboard
    - /risks
    - /audits`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScanCmd,
	}

	// Credential flags
	cmd.Flags().StringP("username", "u", "", "Login username")
	cmd.Flags().StringP("password", "P", "", "Login password")

	// Scan behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Connection timeout for each request")
	cmd.Flags().DurationP("delay", "d", config.DefaultRequestDelay,
		"Delay between requests")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages,
		"Maximum number of pages to crawl")
	cmd.Flags().IntP("max-retries", "r", config.DefaultMaxRetries,
		"Retry attempts for timed-out requests")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .authscan in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().String("csv", "",
		"Additionally write the flat error table to this CSV file")
	cmd.Flags().Bool("no-db", false,
		"Do not save scan results to the history database")
	cmd.Flags().Duration("skip-recent", 0,
		"Skip the scan when the target was crawled within this window (0 disables)")

	return cmd
}

// runScanCmd executes the scan command.
func runScanCmd(cmd *cobra.Command, args []string) error {
	// Build config from flags and config file
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	// Set up sanitizing structured logging. The scanner logs its own
	// requests, so the handler must mask credentials and session cookies.
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	// Set up context with signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, cancelling...")
		cancel()
	}()

	return runScan(ctx, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildBaseConfig creates a Config from the flags shared by the scan and
// investigate commands: the config file, target, and credentials.
// Flags override file settings, which override defaults.
func buildBaseConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// Load target configuration from file. If the user explicitly specified
	// a config file path, error if not found. Otherwise the file is optional.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)

	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	} else if explicitConfigPath {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	// Positional target overrides the file's target
	if len(args) > 0 {
		cfg.Target = args[0]
	}
	cfg.Target, err = config.NormalizeTarget(cfg.Target)
	if err != nil {
		return nil, err
	}

	// Command-line credentials take precedence over the file's
	username, err := cmd.Flags().GetString("username")
	if err != nil {
		return nil, err
	}
	password, err := cmd.Flags().GetString("password")
	if err != nil {
		return nil, err
	}
	if username != "" {
		cfg.Credentials = []config.Credential{{Username: username, Password: password}}
	}

	cfg.DBDir = config.XDGDataDir()
	cfg.Verbose = getVerboseFlag(cmd)

	return cfg, nil
}

// buildConfig creates a Config from the scan command's flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := buildBaseConfig(cmd, args)
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.RequestDelay, err = cmd.Flags().GetDuration("delay")
	if err != nil {
		return nil, err
	}

	cfg.MaxPages, err = cmd.Flags().GetInt("max-pages")
	if err != nil {
		return nil, err
	}

	cfg.MaxRetries, err = cmd.Flags().GetInt("max-retries")
	if err != nil {
		return nil, err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return nil, err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return nil, err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return nil, err
	}

	cfg.CSVFile, err = cmd.Flags().GetString("csv")
	if err != nil {
		return nil, err
	}

	noDB, err := cmd.Flags().GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB

	cfg.SkipRecent, err = cmd.Flags().GetDuration("skip-recent")
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// runScan executes the scan.
func runScan(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting scan",
		"target", cfg.Target,
		"maxPages", cfg.MaxPages,
		"saveToDB", cfg.SaveToDB,
	)

	// Open database connection if saving is enabled
	var db *database.ScanDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		logger.Info("database opened", "dir", cfg.DBDir)
	}

	if db != nil && skipForRecentCrawl(ctx, db, cfg.Target, cfg.SkipRecent) {
		fmt.Printf("Target %s was crawled within the last %s, skipping\n", cfg.Target, cfg.SkipRecent)
		return nil
	}

	// Establish the authenticated session
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

	// Assemble the pipeline: authenticate, crawl, persist
	p := pipeline.New(
		pipeline.WithLogger(logger),
	)
	p.AddStep(pipeline.NewAuthenticateStep(session, pipeline.WithAuthLogger(logger)))
	p.AddStep(pipeline.NewCrawlStep(session, cfg, pipeline.WithCrawlLogger(logger)))
	if db != nil {
		p.AddStep(pipeline.NewPersistStep(db, pipeline.WithPersistLogger(logger)))
	}

	scanReport := model.NewScanReport(cfg.Target)

	fmt.Printf("Scanning %s...\n", cfg.Target)
	startTime := time.Now()

	err = p.Execute(ctx, scanReport)
	scanReport.Finalize()

	if err != nil {
		logger.Error("scan failed", "target", cfg.Target, "error", err)
		// An interrupted crawl still produced partial results worth reporting
		if !scanReport.Interrupted && scanReport.PagesCrawled() == 0 {
			return err
		}
		// The pipeline stopped before the persist step ran, so the partial
		// results are saved here.
		if db != nil {
			savePartialScan(db, scanReport, logger)
		}
	}

	elapsed := time.Since(startTime)
	fmt.Printf("Scan completed in %s\n\n", elapsed.Round(time.Millisecond))

	// Generate and output report
	if err := outputReport(cfg, scanReport); err != nil {
		logger.Error("report failed", "target", cfg.Target, "error", err)
		return err
	}

	// Additionally write the CSV error table if requested
	if cfg.CSVFile != "" {
		if err := writeCSVReport(cfg.CSVFile, scanReport); err != nil {
			logger.Error("failed to write CSV report", "path", cfg.CSVFile, "error", err)
			return err
		}
		fmt.Printf("Error table written to %s\n", cfg.CSVFile)
	}

	return nil
}

// skipForRecentCrawl reports whether the target root page was fetched
// within the window. The root seeds every crawl, so its record timestamp
// tracks the last scan of the target.
func skipForRecentCrawl(ctx context.Context, db *database.ScanDB, target string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	recent, err := db.HasRecentCrawl(ctx, target+"/", window)
	if err != nil {
		return false
	}
	return recent
}

// savePartialScan persists an interrupted scan so the history and
// investigate commands can still use its partial results. The crawl
// context is already cancelled at this point, so the save gets its own.
func savePartialScan(db *database.ScanDB, scanReport *model.ScanReport, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.SaveScanReport(ctx, scanReport); err != nil {
		logger.Error("failed to save partial scan", "target", scanReport.Target, "error", err)
		return
	}
	logger.Info("partial scan saved",
		"target", scanReport.Target,
		"pages", scanReport.PagesCrawled(),
	)
}

// outputReport outputs the scan report in the requested format.
func outputReport(cfg *config.Config, scanReport *model.ScanReport) error {
	// Determine output destination
	var output io.Writer
	if cfg.ReportFile != "" {
		f, err := createReportFile(cfg.ReportFile)
		if err != nil {
			return err
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	_, err := writer.Write(scanReport)
	return err
}

// writeCSVReport writes the flat error table to the given path.
func writeCSVReport(path string, scanReport *model.ScanReport) error {
	f, err := createReportFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	writer := report.NewCSVWriter(f)
	_, err = writer.Write(scanReport)
	return err
}

// createReportFile creates the report file with restrictive permissions,
// creating parent directories as needed. Reports contain internal URLs and
// usernames, so they are readable by the owner only.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}
