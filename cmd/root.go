// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/observability"
)

// ctxKey is the private type for values stored on the command context.
type ctxKey string

const configKey ctxKey = "config"

// NewRootCommand assembles a pristine command tree. Every call builds fresh
// commands so repeated executions never share flag or config state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:     "dripper",
		Short:   "Dripper keeps a freebitco.in account rolling on a schedule.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A .env file feeds the FBTC_* credential variables before
			// viper reads the environment; a missing file is fine.
			_ = godotenv.Load()

			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				// Fall back to a basic logger so the failure is visible.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dripper"})
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "dripper"})
				return err
			}

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Info("Starting dripper.", zap.String("version", Version))

			// Subcommands read the validated config back off the context.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./dripper.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "dripper version %s\n" .Version}}`)

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newReportCmd(NewSessionProvider()))
	rootCmd.AddCommand(newSettingsCmd(NewSessionProvider()))

	return rootCmd
}

// Execute runs a fresh command tree against the signal-aware context from
// main. The classified error comes back to main for the exit code.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		return err
	}
	return nil
}

// initializeConfig layers the optional config file and DRIPPER_* environment
// variables over the defaults already set on v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dripper")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DRIPPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment carry the run.
	}
	return nil
}

// getConfigFromContext pulls the validated configuration stored by the root
// command's PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration missing from command context")
	}
	return cfg, nil
}
