// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/observability"
)

// quietLoggerYAML keeps command tests from writing log files.
const quietLoggerYAML = `
logger:
  level: fatal
  format: console
  log_file: ""
`

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dripper.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// probeCommand attaches a subcommand that captures the config the root
// command stored on the context.
func probeCommand(rootCmd *cobra.Command, captured **config.Config) {
	rootCmd.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			*captured = cfg
			return err
		},
	})
}

func TestRootCmd_VersionFlag(t *testing.T) {
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--version"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "dripper version "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	assert.Contains(t, out.String(), "rolling on a schedule")
	for _, sub := range []string{"run", "report", "settings"} {
		assert.Contains(t, out.String(), sub)
	}
}

func TestRootCmd_ConfigFileOverride(t *testing.T) {
	observability.ResetForTest()
	configFile := createTempConfig(t, quietLoggerYAML+`
scheduler:
  max_idle: 45m
bonuses:
  enabled: false
`)

	rootCmd := NewRootCommand()
	var captured *config.Config
	probeCommand(rootCmd, &captured)
	rootCmd.SetArgs([]string{"--config", configFile, "probe"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, 45*time.Minute, captured.Scheduler.MaxIdle, "file value overrides the default")
	assert.False(t, captured.Bonuses.Enabled)
	assert.Equal(t, "https://freebitco.in", captured.Site.BaseURL, "untouched keys keep their defaults")
	assert.Equal(t, 3, captured.Scheduler.LoginAttempts)
}

func TestRootCmd_EnvOverride(t *testing.T) {
	observability.ResetForTest()
	configFile := createTempConfig(t, quietLoggerYAML)
	t.Setenv("DRIPPER_SCHEDULER_MAX_IDLE", "2h")
	t.Setenv("FBTC_ADDRESS", "1BoatSLRHtKNngkdXEeobR76b53LETtpyT")

	rootCmd := NewRootCommand()
	var captured *config.Config
	probeCommand(rootCmd, &captured)
	rootCmd.SetArgs([]string{"--config", configFile, "probe"})

	err := rootCmd.ExecuteContext(context.Background())

	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, 2*time.Hour, captured.Scheduler.MaxIdle, "DRIPPER_* variables override the file")
	assert.Equal(t, "1BoatSLRHtKNngkdXEeobR76b53LETtpyT", captured.Credentials.Address, "FBTC_* variables feed the credentials")
}

func TestRootCmd_RejectsInvalidConfig(t *testing.T) {
	observability.ResetForTest()
	configFile := createTempConfig(t, quietLoggerYAML+`
bonuses:
  enabled: true
  order: ["mystery"]
`)

	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--config", configFile, "settings"})

	err := rootCmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown bonus")
}

func TestRootCmd_MissingExplicitConfigFails(t *testing.T) {
	observability.ResetForTest()
	rootCmd := NewRootCommand()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "settings"})

	err := rootCmd.ExecuteContext(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize configuration")
}

func TestGetConfigFromContext_Missing(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration missing")
}
