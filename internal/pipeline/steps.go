package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aria5/authscan/internal/auth"
	"github.com/aria5/authscan/internal/config"
	"github.com/aria5/authscan/internal/crawler"
	"github.com/aria5/authscan/internal/database"
	"github.com/aria5/authscan/internal/model"
)

// AuthenticateStep establishes the authenticated session before the crawl.
// It tries each configured credential in order and verifies the session
// against a protected page.
//
// Design decision: Authentication is a separate step rather than part of
// the crawl because a rejected login should abort the scan with a clear
// error, not surface as a wall of 302 results.
type AuthenticateStep struct {
	// session is the authenticated session shared with the crawl step.
	session *auth.Session

	// logger for structured logging.
	logger *slog.Logger
}

// AuthenticateStepOption configures an AuthenticateStep.
type AuthenticateStepOption func(*AuthenticateStep)

// WithAuthLogger sets a custom logger for the authentication step.
func WithAuthLogger(logger *slog.Logger) AuthenticateStepOption {
	return func(s *AuthenticateStep) {
		s.logger = logger
	}
}

// NewAuthenticateStep creates a new authentication step.
func NewAuthenticateStep(session *auth.Session, opts ...AuthenticateStepOption) *AuthenticateStep {
	s := &AuthenticateStep{
		session: session,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *AuthenticateStep) Name() string {
	return "authenticate"
}

// Do executes the authentication step.
func (s *AuthenticateStep) Do(ctx context.Context, report *model.ScanReport) error {
	if err := s.session.Login(ctx); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	username, role := s.session.CurrentUser()
	report.AuthenticatedAs = username
	report.AuthenticatedRole = role

	verified, err := s.session.Verify(ctx)
	if err != nil {
		s.logger.Warn("session verification request failed", "error", err)
	} else if !verified {
		s.logger.Warn("session did not verify against protected page",
			"user", username,
		)
	} else {
		s.logger.Info("session verified", "user", username, "role", role)
	}

	return nil
}

// CrawlStep performs the breadth-first crawl of the target application.
// It seeds the queue with the base URL and the configured known routes,
// then records every page result in the report.
type CrawlStep struct {
	// client is the authenticated client the spider crawls through.
	client crawler.Client

	// cfg supplies the crawl limits and skip patterns.
	cfg *config.Config

	// logger for structured logging.
	logger *slog.Logger
}

// CrawlStepOption configures a CrawlStep.
type CrawlStepOption func(*CrawlStep)

// WithCrawlLogger sets a custom logger for the crawl step.
func WithCrawlLogger(logger *slog.Logger) CrawlStepOption {
	return func(s *CrawlStep) {
		s.logger = logger
	}
}

// NewCrawlStep creates a new crawl step.
func NewCrawlStep(client crawler.Client, cfg *config.Config, opts ...CrawlStepOption) *CrawlStep {
	s := &CrawlStep{
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do executes the crawl step.
func (s *CrawlStep) Do(ctx context.Context, report *model.ScanReport) error {
	spider, err := crawler.NewSpider(
		s.client,
		report.Target,
		crawler.WithMaxPages(s.cfg.MaxPages),
		crawler.WithMaxRetries(s.cfg.MaxRetries),
		crawler.WithDelay(s.cfg.RequestDelay),
		crawler.WithMaxBodySize(s.cfg.MaxBodySize),
		crawler.WithSkipPatterns(s.cfg.SkipPatterns),
		crawler.WithSpiderLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to create spider: %w", err)
	}

	// The root page always seeds the crawl; known routes supplement it.
	seeds := append([]string{"/"}, s.cfg.KnownRoutes...)

	if err := spider.Crawl(ctx, seeds, report); err != nil {
		return fmt.Errorf("crawl aborted: %w", err)
	}
	return nil
}

// PersistStep saves the crawl results to the scan history database:
// one page record per result, the endpoints discovered in page markup,
// and the complete report as JSON.
type PersistStep struct {
	// db is the scan history database.
	db *database.ScanDB

	// logger for structured logging.
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persist step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates a new persistence step.
func NewPersistStep(db *database.ScanDB, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist"
}

// Do executes the persistence step.
// Individual record failures are logged but don't abort the step; the
// report save is the part that matters for history queries.
func (s *PersistStep) Do(ctx context.Context, report *model.ScanReport) error {
	saved := 0
	for _, result := range report.Results() {
		record := database.NewPageRecord(report.Target, result)
		if _, err := s.db.InsertPageRecord(ctx, record); err != nil {
			s.logger.Warn("failed to save page record", "url", result.URL, "error", err)
			continue
		}
		saved++

		for _, ep := range result.Endpoints {
			endpoint := &database.Endpoint{
				Target:    report.Target,
				Endpoint:  ep.URL,
				Method:    ep.Method,
				SourceURL: result.URL,
			}
			if err := s.db.InsertEndpoint(ctx, endpoint); err != nil {
				s.logger.Warn("failed to save endpoint", "endpoint", ep.URL, "error", err)
			}
		}
	}

	if err := s.db.SaveScanReport(ctx, report); err != nil {
		return fmt.Errorf("failed to save scan report: %w", err)
	}

	s.logger.Info("scan results persisted",
		"pages", saved,
		"target", report.Target,
	)
	return nil
}
