// internal/credentials/provider.go
package credentials

import (
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
)

// Environment variables that override configured credential values. These
// names predate this codebase and are kept for deployment compatibility.
const (
	EnvAddress    = "FBTC_ADDRESS"
	EnvPassword   = "FBTC_PASSWORD"
	EnvTotpSecret = "FBTC_TOTP_SECRET"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) string

// Provider resolves account credentials from configuration and environment.
// Precedence: a non-empty environment value always wins over the config file.
type Provider struct {
	lookup LookupFunc
	logger *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithLookup replaces the environment lookup, primarily for tests.
func WithLookup(fn LookupFunc) Option {
	return func(p *Provider) { p.lookup = fn }
}

// NewProvider creates a credential provider.
func NewProvider(logger *zap.Logger, opts ...Option) *Provider {
	p := &Provider{
		lookup: os.Getenv,
		logger: logger.Named("credentials"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve produces the immutable credential set for this run. Missing
// address or password is a configuration error; a missing TOTP secret just
// means the account has no two-factor enrollment.
func (p *Provider) Resolve(cfg config.CredentialsConfig) (schemas.Credentials, error) {
	creds := schemas.Credentials{
		Address:    p.override(EnvAddress, cfg.Address),
		Password:   p.override(EnvPassword, cfg.Password),
		TotpSecret: p.override(EnvTotpSecret, cfg.TotpSecret),
	}

	if creds.Address == "" {
		return schemas.Credentials{}, schemas.ConfigErrorf(
			"no account address: set credentials.address or %s", EnvAddress)
	}
	if creds.Password == "" {
		return schemas.Credentials{}, schemas.ConfigErrorf(
			"no account password: set credentials.password or %s", EnvPassword)
	}

	p.logger.Debug("Credentials resolved.",
		zap.String("address", creds.Address),
		zap.Bool("totp_enrolled", creds.HasTOTP()),
	)
	return creds, nil
}

func (p *Provider) override(envKey, configured string) string {
	if v := strings.TrimSpace(p.lookup(envKey)); v != "" {
		return v
	}
	return strings.TrimSpace(configured)
}
