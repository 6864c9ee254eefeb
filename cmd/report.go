// -- cmd/report.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/auth"
	"github.com/xkilldash9x/dripper/internal/browser"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/credentials"
	"github.com/xkilldash9x/dripper/internal/faucet"
	"github.com/xkilldash9x/dripper/internal/observability"
	"github.com/xkilldash9x/dripper/internal/report"
	"github.com/xkilldash9x/dripper/internal/store"
	"github.com/xkilldash9x/dripper/internal/totp"
)

// sessionProvider defines an interface for components that can produce a live
// browser page. This abstraction is what lets command tests substitute a mock
// page instead of launching a real browser.
type sessionProvider interface {
	// Create opens a page, returning a cleanup function that releases the
	// browser behind it.
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Page, func(), error)
}

// defaultSessionProvider is the production implementation backed by a real
// headless browser.
type defaultSessionProvider struct{}

// NewSessionProvider creates the production session provider.
func NewSessionProvider() sessionProvider {
	return &defaultSessionProvider{}
}

func (p *defaultSessionProvider) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (schemas.Page, func(), error) {
	manager := browser.NewManager(ctx, cfg, logger)
	page, err := manager.NewSession(ctx)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = manager.Shutdown(shutdownCtx)
		return nil, nil, fmt.Errorf("failed to open a browser session: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		}
	}
	return page, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider sessionProvider) *cobra.Command {
	var outputPath string
	var format string
	var history int

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Sign in, read the account standing and write a report",
		Long: `Signs in once, reads the BTC balance, reward points and lottery tickets,
and writes them as a text or JSON report. With --history and a configured
claim store the most recent claim records are listed as well.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Unset flags fall back to the configured report output.
			if !cmd.Flags().Changed("format") && cfg.Report.Format != "" {
				format = cfg.Report.Format
			}
			if !cmd.Flags().Changed("output") && cfg.Report.Output != "" {
				outputPath = cfg.Report.Output
			}

			// Delegate to the testable core logic function.
			return runReport(ctx, logger, cfg, outputPath, format, history, provider)
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report goes to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "text", "Report format ('text' or 'json').")
	reportCmd.Flags().IntVar(&history, "history", 0, "List the N most recent claim records (requires a configured store).")

	return reportCmd
}

// runReport contains the core, testable logic for the report command.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	outputPath, format string,
	history int,
	provider sessionProvider,
) error {
	creds, err := credentials.NewProvider(logger).Resolve(cfg.Credentials)
	if err != nil {
		return err
	}

	page, cleanup, err := provider.Create(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	pages := faucet.New(cfg, logger)
	authn := auth.New(cfg, totp.NewGenerator(), pages, logger)
	if err := authn.Login(ctx, page, creds); err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}
	defer func() {
		logoutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := authn.Logout(logoutCtx, page); err != nil {
			logger.Debug("Best effort logout failed.", zap.Error(err))
		}
	}()

	snap, err := report.New(pages, logger).Snapshot(ctx, page, creds.Address)
	if err != nil {
		return fmt.Errorf("failed to read the account standing: %w", err)
	}

	writer, err := report.NewWriter(format, outputPath)
	if err != nil {
		return err
	}
	if err := writer.Write(snap); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if outputPath != "" {
		logger.Info("Report written.", zap.String("path", outputPath))
	}

	if history > 0 {
		return printClaimHistory(ctx, cfg, creds.Address, history, logger)
	}
	return nil
}

// printClaimHistory lists the most recent persisted claim records.
func printClaimHistory(ctx context.Context, cfg *config.Config, address string, limit int, logger *zap.Logger) error {
	if !cfg.Store.Enabled() {
		return schemas.ConfigErrorf("claim history requested but store.url is not configured")
	}

	pool, err := pgxpool.New(ctx, cfg.Store.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to the claim store: %w", err)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool, address, logger)
	if err != nil {
		return err
	}
	claims, err := st.RecentClaims(ctx, address, limit)
	if err != nil {
		return fmt.Errorf("failed to read claim history: %w", err)
	}

	fmt.Fprintf(os.Stdout, "\nRecent claims (%d):\n", len(claims))
	for _, c := range claims {
		fmt.Fprintf(os.Stdout, "  %s  %-10s %-9s %12d\n",
			c.At.UTC().Format("2006-01-02 15:04:05"), c.Kind, c.Outcome, c.Amount)
	}
	return nil
}
