// internal/faucet/errors.go
package faucet

import (
	"errors"
	"fmt"
	"time"
)

// ErrSiteDown marks pages whose title no longer matches the site, which is
// how the faucet presents its maintenance windows. Callers apply the long
// retry policy instead of the regular backoff.
var ErrSiteDown = errors.New("site unavailable")

// CooldownError reports that the free play timer has not expired yet.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("free play on cooldown for %s", e.Remaining)
}

// InsufficientPointsError reports a claim or captcha-free roll that costs
// more reward points than the account holds. The action is deferred, not
// failed: the balance grows with every roll.
type InsufficientPointsError struct {
	Need int64
	Have int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("need %d reward points, have %d", e.Need, e.Have)
}
