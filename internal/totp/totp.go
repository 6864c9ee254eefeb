// internal/totp/totp.go
package totp

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// The site validates standard RFC 6238 codes: 30 second step, 6 digits, SHA-1.
const (
	Step   = 30 * time.Second
	Digits = 6
)

// ErrInvalidSecret reports a secret that does not decode as base32. The
// caller should treat this as a configuration error, not retry it.
var ErrInvalidSecret = errors.New("totp secret is not valid base32")

// Generator produces one-time codes. Codes are computed fresh on every call;
// nothing is cached between calls.
type Generator struct {
	now func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a code generator using the system clock.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Code generates the code for the current moment.
func (g *Generator) Code(secret string) (string, error) {
	return g.CodeAt(secret, g.now())
}

// CodeAt generates the code valid at the given time.
func (g *Generator) CodeAt(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(Normalize(secret), at, totp.ValidateOpts{
		Period:    uint(Step / time.Second),
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		if errors.Is(err, otp.ErrValidateSecretInvalidBase32) {
			return "", ErrInvalidSecret
		}
		return "", err
	}
	return code, nil
}

// UntilNextWindow returns how long the code valid at t keeps working.
// Callers submitting near a boundary can wait this long and generate a
// fresh code instead of racing the clock.
func (g *Generator) UntilNextWindow(at time.Time) time.Duration {
	elapsed := time.Duration(at.Unix()%int64(Step/time.Second)) * time.Second
	return Step - elapsed
}

// Normalize cleans up a pasted secret: uppercased, separators removed.
// Authenticator apps export secrets grouped in spaced quads; users paste
// them verbatim.
func Normalize(secret string) string {
	s := strings.ToUpper(strings.TrimSpace(secret))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}
