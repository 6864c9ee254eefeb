// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/browser/stealth"
	"github.com/xkilldash9x/dripper/internal/config"
)

// Session implements schemas.Page against a live browser tab.
var _ schemas.Page = (*Session)(nil)

// Session is the single active browser tab. It owns the chromedp target
// context and serializes all page operations through a rate limiter so the
// site never sees bursts of CDP-driven activity.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	limiter *rate.Limiter

	onClose func()

	mu            sync.Mutex
	isClosed      bool
	established   time.Time
	lastActivity  time.Time
	authenticated bool
}

// NewSession wraps an already-created chromedp target context.
func NewSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(),
) *Session {
	sessionID := uuid.New().String()

	ops := cfg.Browser.OpsPerSecond
	if ops <= 0 {
		ops = 2.0
	}

	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(ops), 1),
		onClose: onClose,
	}
}

// Initialize connects to the target and applies session-wide state: the
// stealth persona, cache policy, and extra HTTP headers. Must be called
// before any page operation, and before the first navigation so the persona
// covers every document.
func (s *Session) Initialize(ctx context.Context) error {
	// Ensure the target (tab) is created and CDP is connected.
	if err := chromedp.Run(s.ctx); err != nil {
		return fmt.Errorf("failed to initialize browser target connection: %w", err)
	}

	var tasks chromedp.Tasks

	persona := stealth.FromConfig(s.cfg)
	if s.cfg.Browser.Stealth {
		tasks = append(tasks, stealth.Apply(persona, s.logger))
	}

	if s.cfg.Browser.DisableCache {
		tasks = append(tasks, network.SetCacheDisabled(true))
	}

	if len(s.cfg.Site.Headers) > 0 {
		headers := make(network.Headers, len(s.cfg.Site.Headers)+1)
		// A later SetExtraHTTPHeaders replaces the whole set, so the persona's
		// Accept-Language has to ride along unless the config overrides it.
		if s.cfg.Browser.Stealth {
			if al := persona.AcceptLanguage(); al != "" {
				headers["Accept-Language"] = al
			}
		}
		for k, v := range s.cfg.Site.Headers {
			headers[k] = v
		}
		tasks = append(tasks, network.Enable(), network.SetExtraHTTPHeaders(headers))
	}

	if len(tasks) > 0 {
		initCtx, cancel := CombineContext(s.ctx, ctx)
		defer cancel()
		if err := chromedp.Run(initCtx, tasks); err != nil {
			return fmt.Errorf("failed to run session initialization tasks: %w", err)
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.established = now
	s.lastActivity = now
	s.mu.Unlock()

	s.logger.Debug("Browser session initialized.")
	return nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// EstablishedAt reports when the session finished initializing.
func (s *Session) EstablishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

// LastActivity reports the time of the last successful page operation.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Stale reports whether the session has idled past the threshold at the
// given instant. Staleness is advisory: the authenticator still probes the
// page before trusting either answer.
func (s *Session) Stale(threshold time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActivity.IsZero() {
		return true
	}
	return now.Sub(s.lastActivity) > threshold
}

// MarkAuthenticated records the authentication state. Only the authenticator
// calls this.
func (s *Session) MarkAuthenticated(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = ok
}

// Authenticated reports whether the session holds a logged-in page.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Close terminates the browser session. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// stabilize waits for the DOM to be ready and then for a quiet period,
// bounded by the configured page-load timeout.
func (s *Session) stabilize(ctx context.Context, quietPeriod time.Duration) error {
	timeout := s.cfg.Site.PageLoadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := chromedp.Run(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	if quietPeriod > 0 {
		if err := chromedp.Run(stabCtx, chromedp.Sleep(quietPeriod)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Quiet period interrupted during stabilization.", zap.Error(err))
		}
	}
	return nil
}

// runActions executes chromedp actions, respecting both the session lifetime
// (s.ctx) and the incoming request context (ctx), after taking a rate
// limiter token.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	if err := s.limiter.Wait(runCtx); err != nil {
		return err
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Cookies returns all cookies visible to the current page, converted to the
// cdproto-free schema type. CDP reports expiry as seconds since the epoch and
// -1 for session cookies.
func (s *Session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, schemas.Transient("browser.cookies", err)
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, c := range raw {
		ck := schemas.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			sec, frac := math.Modf(c.Expires)
			ck.Expires = time.Unix(int64(sec), int64(frac*float64(time.Second)))
		}
		cookies = append(cookies, ck)
	}
	return cookies, nil
}

// CurrentURL reports the page's location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", schemas.Transient("browser.location", err)
	}
	return url, nil
}

// OuterHTML captures the full serialized DOM of the current page.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var dom string
	opCtx, cancel := context.WithTimeout(ctx, s.cfg.Site.PageLoadTimeout)
	defer cancel()
	if err := s.runActions(opCtx, chromedp.OuterHTML("html", &dom, chromedp.ByQuery)); err != nil {
		return "", schemas.Transient("browser.dom", err)
	}
	return dom, nil
}
