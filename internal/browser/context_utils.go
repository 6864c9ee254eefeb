// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext creates a context derived from ctx1 (the session context)
// that is canceled when either ctx1 or ctx2 (the operational context) is
// canceled. Deriving from ctx1 preserves the CDP connection values chromedp
// stores there; ctx2 contributes only its lifetime.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values but not cancellation.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context that keeps ctx's values (including CDP target
// information) but ignores its deadline and cancellation. Used for cleanup
// work that must run while the session is being torn down.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
