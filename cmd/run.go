// -- cmd/run.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/xkilldash9x/dripper/internal/scheduler"
	"github.com/xkilldash9x/dripper/internal/settings"
	"github.com/xkilldash9x/dripper/internal/store"
	"github.com/xkilldash9x/dripper/internal/totp"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the play and claim loop until stopped",
		Long: `Signs the account in and keeps it working: rolls the free play whenever
the cooldown allows, claims reward bonuses in the configured order, applies
the desired account settings once, and snapshots the balances. The loop runs
until a signal or a fatal failure stops it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			creds, err := credentials.NewProvider(logger).Resolve(cfg.Credentials)
			if err != nil {
				return err
			}

			components, err := initializeRunComponents(ctx, cfg, creds, logger)
			if err != nil {
				if components != nil {
					components.Shutdown(logger)
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown(logger)

			logger.Info("Starting the account loop.",
				zap.String("address", creds.Address),
				zap.Bool("bonuses", cfg.Bonuses.Enabled),
				zap.Bool("claim_history", cfg.Store.Enabled()))

			if err := components.Scheduler.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("Loop stopped by signal.")
					return nil
				}
				return err
			}
			return nil
		},
	}
	return runCmd
}

// runComponents holds the initialized services behind the loop.
type runComponents struct {
	Manager   *browser.Manager
	DBPool    *pgxpool.Pool
	Scheduler *scheduler.Scheduler
}

// Shutdown releases the browser and the database pool.
func (rc *runComponents) Shutdown(logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if rc.Manager != nil {
		if err := rc.Manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// initializeRunComponents handles dependency injection for the run command.
func initializeRunComponents(ctx context.Context, cfg *config.Config, creds schemas.Credentials, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. Browser session
	components.Manager = browser.NewManager(ctx, cfg, logger)
	page, err := components.Manager.NewSession(ctx)
	if err != nil {
		return components, fmt.Errorf("failed to open a browser session: %w", err)
	}

	// 2. Claim history store (optional)
	var claimStore schemas.ClaimStore
	if cfg.Store.Enabled() {
		pool, perr := pgxpool.New(ctx, cfg.Store.URL)
		if perr != nil {
			return components, fmt.Errorf("failed to connect to the claim store: %w", perr)
		}
		components.DBPool = pool

		st, serr := store.New(ctx, pool, creds.Address, logger)
		if serr != nil {
			return components, fmt.Errorf("failed to initialize the claim store: %w", serr)
		}
		claimStore = st
	} else {
		logger.Info("Claim history persistence disabled; no store URL configured.")
	}

	// 3. Page operations and session management
	pages := faucet.New(cfg, logger)
	authn := auth.New(cfg, totp.NewGenerator(), pages, logger)

	// 4. Settings and reporting
	applier := settings.New(cfg, logger)
	reporter := report.New(pages, logger)

	// 5. Scheduler
	sched, err := scheduler.New(cfg, logger, page, authn, pages, applier, reporter, claimStore, creds)
	if err != nil {
		return components, fmt.Errorf("failed to create scheduler: %w", err)
	}
	components.Scheduler = sched

	return components, nil
}
