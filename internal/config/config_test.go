// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "https://freebitco.in", cfg.Site.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Site.PageLoadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Site.ElementTimeout)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 3, cfg.Scheduler.LoginAttempts)
	assert.Equal(t, 5*time.Second, cfg.Scheduler.BackoffBase)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.BackoffCap)
	assert.Equal(t, []string{"btc", "wof"}, cfg.Bonuses.Order)
	assert.Equal(t, int64(1000), cfg.Bonuses.Picks["btc"])
	assert.Equal(t, "startup", cfg.Settings.ApplyOn)
	assert.False(t, cfg.Store.Enabled())
}

func TestDefaultsSurviveTheViperRoundTrip(t *testing.T) {
	// Ambient credentials or a store URL would show up as a diff.
	t.Setenv("FBTC_ADDRESS", "")
	t.Setenv("FBTC_PASSWORD", "")
	t.Setenv("FBTC_TOTP_SECRET", "")
	t.Setenv("DRIPPER_STORE_URL", "")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	if diff := cmp.Diff(NewDefaultConfig(), cfg); diff != "" {
		t.Errorf("defaults drifted between the two constructors (-want +got):\n%s", diff)
	}
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.NoError(t, cfg.Validate(), "defaults must validate")

		noScheme := *cfg
		noScheme.Site.BaseURL = "freebitco.in"
		err := noScheme.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must include a scheme")

		badRate := *cfg
		badRate.Browser.OpsPerSecond = 0
		err = badRate.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "ops_per_second must be positive")

		badFormat := *cfg
		badFormat.Report.Format = "xml"
		err = badFormat.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "report.format must be text or json")
	})

	t.Run("Scheduler Validation", func(t *testing.T) {
		valid := SchedulerConfig{
			LoginAttempts:    3,
			PlayAttempts:     3,
			BackoffBase:      5 * time.Second,
			BackoffCap:       5 * time.Minute,
			SiteDownBase:     5 * time.Minute,
			SiteDownAttempts: 5,
			IdleThreshold:    30 * time.Minute,
			MaxIdle:          time.Hour,
			BonusClaimCap:    2,
			MismatchCeiling:  5,
		}
		assert.NoError(t, valid.Validate())

		capBelowBase := valid
		capBelowBase.BackoffCap = time.Second
		err := capBelowBase.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "backoff_cap >= backoff_base")

		zeroAttempts := valid
		zeroAttempts.LoginAttempts = 0
		err = zeroAttempts.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "must be positive")

		negativeCap := valid
		negativeCap.BonusClaimCap = -1
		err = negativeCap.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "bonus_claim_cap must not be negative")
	})

	t.Run("Bonuses Validation", func(t *testing.T) {
		valid := BonusesConfig{
			Enabled: true,
			Order:   []string{"btc", "wof"},
			Picks:   map[string]int64{"btc": 1000, "wof": 5},
		}
		assert.NoError(t, valid.Validate())

		disabled := BonusesConfig{Enabled: false, Order: []string{"ghost"}}
		assert.NoError(t, disabled.Validate(), "disabled bonuses section should always be valid")

		unknown := valid
		unknown.Order = []string{"btc", "lottery"}
		err := unknown.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown bonus")

		missingPick := valid
		missingPick.Order = []string{"btc", "lott"}
		err = missingPick.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "no entry for it")

		duplicate := valid
		duplicate.Order = []string{"btc", "btc"}
		err = duplicate.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "twice")
	})

	t.Run("Settings Validation", func(t *testing.T) {
		assert.NoError(t, (&SettingsConfig{ApplyOn: "startup"}).Validate())
		assert.NoError(t, (&SettingsConfig{ApplyOn: "never"}).Validate())
		assert.NoError(t, (&SettingsConfig{}).Validate())

		err := (&SettingsConfig{ApplyOn: "hourly"}).Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "apply_on must be startup or never")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
site:
  base_url: "https://faucet.example.test"
scheduler:
  login_attempts: 7
bonuses:
  order: ["btc"]
  picks:
    btc: 500
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		err := v.ReadConfig(bytes.NewBuffer(yamlBytes))
		require.NoError(t, err)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "https://faucet.example.test", cfg.Site.BaseURL)
		assert.Equal(t, 7, cfg.Scheduler.LoginAttempts)
		assert.Equal(t, []string{"btc"}, cfg.Bonuses.Order)
		// Check a default value was also loaded.
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("scheduler.play_attempts", 0) // Intentionally invalid

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		t.Setenv("FBTC_ADDRESS", "1EnvAddressWinsXXXXXXXXXXXXXXXXXXX")
		t.Setenv("FBTC_PASSWORD", "env-password")

		v := viper.New()
		SetDefaults(v)
		v.Set("credentials.address", "1FileAddressLosesXXXXXXXXXXXXXXXXX")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "1EnvAddressWinsXXXXXXXXXXXXXXXXXXX", cfg.Credentials.Address,
			"environment credential must override the file value")
		assert.Equal(t, "env-password", cfg.Credentials.Password)
	})
}
