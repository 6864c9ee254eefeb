// -- cmd/settings.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/internal/auth"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/credentials"
	"github.com/xkilldash9x/dripper/internal/faucet"
	"github.com/xkilldash9x/dripper/internal/observability"
	"github.com/xkilldash9x/dripper/internal/settings"
	"github.com/xkilldash9x/dripper/internal/totp"
)

// newSettingsCmd creates and configures the `settings` command.
func newSettingsCmd(provider sessionProvider) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Sign in and apply the configured account settings once",
		Long: `Signs in, diffs the desired settings from the configuration against the
account's settings page, and submits whatever differs. The run loop does the
same on startup; this command exists for one-shot reconciliation, and it
applies even when settings.apply_on is set to never.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runSettings(ctx, logger, cfg, provider)
		},
	}
	return settingsCmd
}

// runSettings contains the core, testable logic for the settings command.
func runSettings(ctx context.Context, logger *zap.Logger, cfg *config.Config, provider sessionProvider) error {
	if len(cfg.Settings.Desired) == 0 {
		fmt.Fprintln(os.Stdout, "No desired settings configured; nothing to do.")
		return nil
	}

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

	changes, err := settings.New(cfg, logger).ApplyAll(ctx, page)
	for _, change := range changes {
		status := "applied"
		if !change.Applied {
			status = "FAILED"
		}
		fmt.Fprintf(os.Stdout, "  %-24s -> %-8s [%s]\n", change.Field, change.DesiredValue, status)
	}
	if err != nil {
		return fmt.Errorf("some settings did not apply: %w", err)
	}
	fmt.Fprintf(os.Stdout, "%d settings reconciled.\n", len(changes))
	return nil
}
