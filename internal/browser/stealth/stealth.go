// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to present to the site.
type Persona struct {
	UserAgent string
	Platform  string
	Languages []string
	Timezone  string
	Locale    string
}

// DefaultPersona is a plausible desktop Chrome profile. The languages must
// stay consistent with what evasions.js reports for navigator.languages.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"en-US", "en"},
	Timezone:  "America/Los_Angeles",
	Locale:    "en-US",
}

// FromConfig builds the persona for a session: the default profile with the
// configured user agent layered on top when one is set.
func FromConfig(cfg *config.Config) Persona {
	p := DefaultPersona
	if cfg != nil && cfg.Site.UserAgent != "" {
		p.UserAgent = cfg.Site.UserAgent
	}
	return p
}

// AcceptLanguage renders the persona's language list as an Accept-Language
// header value, with descending q-weights after the first entry.
func (p Persona) AcceptLanguage() string {
	if len(p.Languages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(p.Languages))
	parts = append(parts, p.Languages[0])
	for i, lang := range p.Languages[1:] {
		q := 0.9 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Apply returns the CDP actions that make a headless tab present as a
// user-operated browser. Must run on a fresh target, before the first
// navigation, so the injected script sees every document from the start.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona.",
		zap.String("user_agent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(p.AcceptLanguage()),

		// AddScriptToEvaluateOnNewDocument returns an identifier alongside the
		// error, so it cannot be used as a chromedp.Action directly.
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(evasionsScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}

	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if al := p.AcceptLanguage(); al != "" {
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": al}),
		)
	}
	return tasks
}
