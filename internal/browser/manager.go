// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process lifecycle. One account means one browser
// and one session; the manager enforces that.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu      sync.Mutex
	session *Session
	wg      sync.WaitGroup
}

// NewManager creates the exec allocator for the browser process. The actual
// process starts lazily with the first session.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) *Manager {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOptions(cfg)...)

	m := &Manager{
		logger:      logger.Named("browser_manager"),
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}
	m.logger.Debug("Browser manager created (process start deferred).")
	return m
}

// execOptions translates the application config into chromedp allocator options.
func execOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened systems where the sandbox cannot start.
		chromedp.NoSandbox,
		// Recommended for stability in containers/headless envs.
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless, chromedp.DisableGPU)
	}

	if cfg.Site.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Site.UserAgent))
	}

	// Add additional flags from the config file's 'args' slice.
	for _, flag := range parseBrowserArgs(cfg.Browser.Args) {
		if flag.Value == "" {
			opts = append(opts, chromedp.Flag(flag.Key, true))
		} else {
			opts = append(opts, chromedp.Flag(flag.Key, flag.Value))
		}
	}
	return opts
}

// browserFlag is one normalized Chrome command-line flag. An empty Value
// means a boolean switch.
type browserFlag struct {
	Key   string
	Value string
}

// parseBrowserArgs normalizes user-supplied Chrome arguments: the leading
// dashes are stripped, key=value forms are split, everything else becomes a
// boolean switch. Empty entries are dropped.
func parseBrowserArgs(args []string) []browserFlag {
	flags := make([]browserFlag, 0, len(args))
	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		arg = strings.TrimPrefix(arg, "--")
		if arg == "" {
			continue
		}

		if key, value, found := strings.Cut(arg, "="); found {
			flags = append(flags, browserFlag{Key: key, Value: value})
		} else {
			flags = append(flags, browserFlag{Key: arg})
		}
	}
	return flags
}

// NewSession creates and initializes the session, starting the browser
// process on first use. A second session while one is live is a programming
// error.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.session != nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("a session is already active; close it first")
	}
	m.mu.Unlock()

	var ctxOpts []chromedp.ContextOption
	if m.cfg.Browser.Debug {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(format string, args ...interface{}) {
				m.logger.Sugar().Debugf(format, args...)
			}),
		)
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx, ctxOpts...)

	m.wg.Add(1)
	session := NewSession(tabCtx, tabCancel, m.cfg, m.logger, func() {
		m.mu.Lock()
		m.session = nil
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Session removed from manager.")
	})

	if err := session.Initialize(ctx); err != nil {
		// Session ctx may be the broken piece; clean up on a fresh one.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		session.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}

	m.mu.Lock()
	m.session = session
	m.mu.Unlock()

	m.logger.Info("Browser session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Session returns the live session, or nil when none exists.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Shutdown closes the session and tears down the browser process. The
// passed context bounds how long we wait for a graceful close.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	m.mu.Lock()
	session := m.session
	m.mu.Unlock()

	if session != nil {
		go func() {
			if err := session.Close(ctx); err != nil {
				m.logger.Warn("Error closing session during shutdown.", zap.Error(err))
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("Session closed gracefully.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for session close; forcing browser teardown.", zap.Error(ctx.Err()))
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Grace period elapsed waiting for session close; forcing browser teardown.")
	}

	// Cancelling the allocator context kills the browser process.
	m.allocCancel()

	m.logger.Info("Browser manager shutdown complete.")
	return nil
}
