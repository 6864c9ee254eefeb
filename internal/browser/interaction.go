// internal/browser/interaction.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// elementTimeout returns the configured bound for element waits.
func (s *Session) elementTimeout() time.Duration {
	if t := s.cfg.Site.ElementTimeout; t > 0 {
		return t
	}
	return 10 * time.Second
}

// Navigate loads the URL and waits for the page to stabilize.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Site.PageLoadTimeout
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	if err := s.limiter.Wait(navCtx); err != nil {
		return err
	}

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded && opCtx.Err() == nil {
			return schemas.Transient("browser.navigate",
				fmt.Errorf("navigation timed out after %s: %w", navTimeout, err))
		}
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		return schemas.Transient("browser.navigate", fmt.Errorf("navigation failed: %w", err))
	}

	if err := s.stabilize(opCtx, s.cfg.Site.PostLoadWait); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		s.logger.Warn("Page stabilization failed after navigation (non-critical).", zap.Error(err))
	}

	s.touch()
	return nil
}

// Reload refreshes the current page and waits for it to stabilize.
func (s *Session) Reload(ctx context.Context) error {
	s.logger.Debug("Reloading page.")

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	if err := s.runActions(opCtx, chromedp.Reload()); err != nil {
		if opCtx.Err() != nil {
			return opCtx.Err()
		}
		return schemas.Transient("browser.reload", err)
	}

	if err := s.stabilize(opCtx, s.cfg.Site.PostLoadWait); err != nil && opCtx.Err() != nil {
		return opCtx.Err()
	}
	return nil
}

// Find reports whether at least one element matches the selector right now.
// Absence is an answer, not an error.
func (s *Session) Find(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	err := s.runActions(ctx,
		chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, schemas.Transient("browser.find", fmt.Errorf("query %q: %w", selector, err))
	}
	return len(nodes) > 0, nil
}

// Visible reports whether the first element matching the selector is
// currently rendered. A missing element is simply not visible.
func (s *Session) Visible(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const e = document.querySelector(%q);
		if (!e) { return false; }
		const st = window.getComputedStyle(e);
		return st.display !== 'none' && st.visibility !== 'hidden' && e.offsetParent !== null;
	})()`, selector)

	var visible bool
	if err := s.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

// WaitVisible blocks until the selector is visible or the element timeout
// expires. Timeouts are transient: the page may simply be slow.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	return s.boundedWait(ctx, selector, "browser.wait_visible",
		chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// WaitHidden blocks until the selector is gone or hidden.
func (s *Session) WaitHidden(ctx context.Context, selector string) error {
	return s.boundedWait(ctx, selector, "browser.wait_hidden",
		chromedp.WaitNotVisible(selector, chromedp.ByQuery))
}

// WaitReady blocks until the selector exists in the DOM.
func (s *Session) WaitReady(ctx context.Context, selector string) error {
	return s.boundedWait(ctx, selector, "browser.wait_ready",
		chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (s *Session) boundedWait(ctx context.Context, selector, step string, action chromedp.Action) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()

	if err := s.runActions(waitCtx, action); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.Transient(step,
			fmt.Errorf("selector %q not in expected state within %s: %w", selector, s.elementTimeout(), err))
	}
	return nil
}

// Click scrolls the element into view and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	clickCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()

	action := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	}
	if err := s.runActions(clickCtx, action); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.Transient("browser.click", fmt.Errorf("click %q: %w", selector, err))
	}
	return nil
}

// Type clears the field and enters the text.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing into element.",
		zap.String("selector", selector), zap.Int("text_length", len(text)))

	typeCtx, cancel := context.WithTimeout(ctx, s.elementTimeout()+time.Duration(len(text))*50*time.Millisecond)
	defer cancel()

	action := chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	}
	if err := s.runActions(typeCtx, action); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.Transient("browser.type", fmt.Errorf("type into %q: %w", selector, err))
	}
	return nil
}

// Text extracts the rendered text of the first matching element.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var out string
	textCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()

	if err := s.runActions(textCtx, chromedp.Text(selector, &out, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", schemas.Transient("browser.text", fmt.Errorf("text of %q: %w", selector, err))
	}
	return out, nil
}

// Value reads the value property of a form field.
func (s *Session) Value(ctx context.Context, selector string) (string, error) {
	var out string
	valCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()

	if err := s.runActions(valCtx, chromedp.Value(selector, &out, chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", schemas.Transient("browser.value", fmt.Errorf("value of %q: %w", selector, err))
	}
	return out, nil
}

// Checked reads the checked property of a checkbox.
func (s *Session) Checked(ctx context.Context, selector string) (bool, error) {
	script := fmt.Sprintf(`(() => {
		const e = document.querySelector(%q);
		return !!(e && e.checked);
	})()`, selector)

	var checked bool
	if err := s.Evaluate(ctx, script, &checked); err != nil {
		return false, err
	}
	return checked, nil
}

// SetChecked clicks the checkbox when its state differs from the desired
// one. The click path exercises the page's own change handlers, which a
// direct property write would skip.
func (s *Session) SetChecked(ctx context.Context, selector string, checked bool) error {
	script := fmt.Sprintf(`(() => {
		const e = document.querySelector(%q);
		if (!e) { return "missing"; }
		if (e.checked === %t) { return "noop"; }
		e.click();
		return "clicked";
	})()`, selector, checked)

	var status string
	if err := s.Evaluate(ctx, script, &status); err != nil {
		return err
	}
	if status == "missing" {
		return schemas.PageMismatch("browser.set_checked",
			fmt.Sprintf("no checkbox matches %q", selector))
	}
	return nil
}

// Evaluate runs a JavaScript expression, unmarshaling its result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	evalCtx, cancel := context.WithTimeout(ctx, s.elementTimeout())
	defer cancel()

	if err := s.runActions(evalCtx, chromedp.Evaluate(script, out)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return schemas.Transient("browser.evaluate", err)
	}
	return nil
}
