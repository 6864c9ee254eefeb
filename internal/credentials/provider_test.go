// internal/credentials/provider_test.go
package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
)

func staticEnv(env map[string]string) LookupFunc {
	return func(key string) string { return env[key] }
}

func TestResolvePrecedence(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		cfg      config.CredentialsConfig
		env      map[string]string
		expected schemas.Credentials
	}{
		{
			name: "config only",
			cfg: config.CredentialsConfig{
				Address:  "1ConfigAddr",
				Password: "config-pass",
			},
			env:      map[string]string{},
			expected: schemas.Credentials{Address: "1ConfigAddr", Password: "config-pass"},
		},
		{
			name: "env overrides config",
			cfg: config.CredentialsConfig{
				Address:  "1ConfigAddr",
				Password: "config-pass",
			},
			env: map[string]string{
				EnvAddress:  "1EnvAddr",
				EnvPassword: "env-pass",
			},
			expected: schemas.Credentials{Address: "1EnvAddr", Password: "env-pass"},
		},
		{
			name: "empty env values do not override",
			cfg: config.CredentialsConfig{
				Address:  "1ConfigAddr",
				Password: "config-pass",
			},
			env: map[string]string{
				EnvAddress: "   ",
			},
			expected: schemas.Credentials{Address: "1ConfigAddr", Password: "config-pass"},
		},
		{
			name: "totp secret from env",
			cfg: config.CredentialsConfig{
				Address:  "1ConfigAddr",
				Password: "config-pass",
			},
			env: map[string]string{
				EnvTotpSecret: "JBSWY3DPEHPK3PXP",
			},
			expected: schemas.Credentials{
				Address:    "1ConfigAddr",
				Password:   "config-pass",
				TotpSecret: "JBSWY3DPEHPK3PXP",
			},
		},
		{
			name: "values are trimmed",
			cfg: config.CredentialsConfig{
				Address:  "  1ConfigAddr  ",
				Password: " config-pass ",
			},
			env:      map[string]string{},
			expected: schemas.Credentials{Address: "1ConfigAddr", Password: "config-pass"},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewProvider(zaptest.NewLogger(t), WithLookup(staticEnv(tt.env)))

			got, err := p.Resolve(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestResolveMissingValues(t *testing.T) {
	t.Parallel()

	p := NewProvider(zaptest.NewLogger(t), WithLookup(staticEnv(nil)))

	_, err := p.Resolve(config.CredentialsConfig{Password: "pass"})
	require.Error(t, err)
	assert.True(t, schemas.IsClass(err, schemas.ClassConfig), "missing address is a config error")
	assert.Contains(t, err.Error(), EnvAddress)

	_, err = p.Resolve(config.CredentialsConfig{Address: "1Addr"})
	require.Error(t, err)
	assert.True(t, schemas.IsClass(err, schemas.ClassConfig), "missing password is a config error")

	// TOTP is optional.
	creds, err := p.Resolve(config.CredentialsConfig{Address: "1Addr", Password: "pass"})
	require.NoError(t, err)
	assert.False(t, creds.HasTOTP())
}
