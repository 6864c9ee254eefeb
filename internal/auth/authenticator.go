// internal/auth/authenticator.go

// Package auth signs the account in and out and keeps the session's
// authenticated flag truthful. Login is a small state machine with exactly
// one terminal outcome per attempt; after a failure the caller must Reset
// before trying again, so a half-submitted form is never resubmitted blind.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/faucet"
	"github.com/xkilldash9x/dripper/internal/totp"
)

// State is the position of the login state machine.
type State int

const (
	// StateUnauthenticated is the rest state; Login may run.
	StateUnauthenticated State = iota
	// StateCredentialsSubmitted means the form went in and the outcome is
	// being polled for.
	StateCredentialsSubmitted
	// StateTwoFactorPrompt means the site rejected the first submit asking
	// for a two-factor code; one fresh-code resubmit is in flight.
	StateTwoFactorPrompt
	// StateAuthenticated is the logged-in terminal state.
	StateAuthenticated
	// StateLoginFailed is the failed terminal state. Reset leaves it.
	StateLoginFailed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateCredentialsSubmitted:
		return "credentials_submitted"
	case StateTwoFactorPrompt:
		return "two_factor_prompt"
	case StateAuthenticated:
		return "authenticated"
	case StateLoginFailed:
		return "login_failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// totpBoundaryGuard is how close to a window boundary a code may still be
// submitted. Closer than this, the code is generated after the boundary
// instead of racing server clock skew.
const totpBoundaryGuard = 2 * time.Second

// fillAttempts bounds the type-then-readback loop per input field.
const fillAttempts = 2

// Authenticator drives sign-in and sign-out against the login form.
type Authenticator struct {
	logger *zap.Logger
	cfg    *config.Config
	codes  *totp.Generator
	pages  *faucet.Operator

	mu    sync.Mutex
	state State

	pollInterval time.Duration
	now          func() time.Time
}

// New builds an Authenticator. The faucet operator is borrowed for modal
// dismissal and JS-dispatched clicks; the login form shares the page with the
// same overlays everything else fights.
func New(cfg *config.Config, codes *totp.Generator, pages *faucet.Operator, logger *zap.Logger) *Authenticator {
	return &Authenticator{
		logger:       logger.Named("auth"),
		cfg:          cfg,
		codes:        codes,
		pages:        pages,
		pollInterval: 500 * time.Millisecond,
		now:          time.Now,
	}
}

// State returns the current machine position.
func (a *Authenticator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Reset returns the machine to the rest state after a failed attempt.
func (a *Authenticator) Reset() {
	a.setState(StateUnauthenticated)
}

func (a *Authenticator) setState(s State) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	if prev != s {
		a.logger.Debug("Auth state changed.", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Login signs the account in. It navigates to the site, reveals and fills the
// login form, submits, and polls the page for the outcome: the logout link
// for success, a notice banner for a classified failure. A two-factor demand
// with a configured secret gets exactly one fresh-code resubmit.
func (a *Authenticator) Login(ctx context.Context, page schemas.Page, creds schemas.Credentials) error {
	if a.State() == StateLoginFailed {
		return schemas.NewStepError(schemas.ClassConfig, "auth.login",
			errors.New("previous login attempt failed; Reset before retrying"))
	}

	// The page is the ground truth; an already-live session needs no form.
	if visible, err := page.Visible(ctx, faucet.SelLogoutLink); err == nil && visible {
		page.MarkAuthenticated(true)
		a.setState(StateAuthenticated)
		a.logger.Info("Session already signed in.")
		return nil
	}

	a.logger.Info("Signing in.", zap.String("address", creds.Address))

	if err := page.Navigate(ctx, a.cfg.Site.BaseURL); err != nil {
		return a.fail(page, asStep("auth.login", err))
	}
	a.pages.DismissModals(ctx, page)

	if err := a.revealLoginForm(ctx, page); err != nil {
		return a.fail(page, asStep("auth.login_form", err))
	}

	if err := a.fillVerified(ctx, page, faucet.SelLoginAddress, creds.Address, "auth.fill_address"); err != nil {
		return a.fail(page, asStep("auth.fill_address", err))
	}
	if err := a.fillVerified(ctx, page, faucet.SelLoginPassword, creds.Password, "auth.fill_password"); err != nil {
		return a.fail(page, asStep("auth.fill_password", err))
	}
	if creds.HasTOTP() {
		if err := a.fillTwoFactor(ctx, page, creds.TotpSecret); err != nil {
			return a.fail(page, asStep("auth.fill_totp", err))
		}
	}

	if err := a.pages.ClickJS(ctx, page, faucet.SelLoginButton); err != nil {
		return a.fail(page, asStep("auth.submit", err))
	}
	a.setState(StateCredentialsSubmitted)

	return a.awaitOutcome(ctx, page, creds)
}

// revealLoginForm makes sure the login form is on screen; on the landing page
// it hides behind the menu button.
func (a *Authenticator) revealLoginForm(ctx context.Context, page schemas.Page) error {
	visible, err := page.Visible(ctx, faucet.SelLoginForm)
	if err != nil {
		return err
	}
	if !visible {
		if err := a.pages.ClickJS(ctx, page, faucet.SelLoginMenu); err != nil {
			a.logger.Debug("Login menu button not clickable.", zap.Error(err))
		}
	}
	if err := page.WaitVisible(ctx, faucet.SelLoginForm); err != nil {
		page.Diagnose(ctx, "auth.login_form")
		return schemas.PageMismatch("auth.login_form", "login form did not appear")
	}
	return nil
}

// fillVerified types a value and reads it back. The site's input handlers
// occasionally swallow keystrokes mid-page-load; one refill covers that.
func (a *Authenticator) fillVerified(ctx context.Context, page schemas.Page, selector, value, step string) error {
	for attempt := 0; attempt < fillAttempts; attempt++ {
		if err := page.Type(ctx, selector, value); err != nil {
			return err
		}
		got, err := page.Value(ctx, selector)
		if err != nil {
			return err
		}
		if got == value {
			return nil
		}
		a.logger.Debug("Input did not retain its value, refilling.", zap.String("selector", selector))
	}
	return schemas.PageMismatch(step, fmt.Sprintf("input %s did not retain its value", selector))
}

// fillTwoFactor generates a fresh code and fills the 2FA field when the form
// shows one. A hidden field with a configured secret is fine; the account may
// have had its enrollment removed.
func (a *Authenticator) fillTwoFactor(ctx context.Context, page schemas.Page, secret string) error {
	visible, err := page.Visible(ctx, faucet.SelLoginTwoFactor)
	if err != nil {
		return err
	}
	if !visible {
		a.logger.Debug("No two-factor field on the form; skipping code.")
		return nil
	}
	code, err := a.freshCode(ctx, secret)
	if err != nil {
		return err
	}
	return a.fillVerified(ctx, page, faucet.SelLoginTwoFactor, code, "auth.fill_totp")
}

// freshCode generates a code, waiting out the window boundary when the
// current one is about to close under the submission.
func (a *Authenticator) freshCode(ctx context.Context, secret string) (string, error) {
	if wait := a.codes.UntilNextWindow(a.now()); wait < totpBoundaryGuard {
		a.logger.Debug("Waiting out a closing code window.", zap.Duration("wait", wait))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	code, err := a.codes.Code(secret)
	if err != nil {
		if errors.Is(err, totp.ErrInvalidSecret) {
			return "", schemas.NewStepError(schemas.ClassConfig, "auth.totp", err)
		}
		return "", schemas.Transient("auth.totp", err)
	}
	return code, nil
}

// awaitOutcome polls the page after submit until one terminal outcome shows:
// the logout link, a classified notice banner, or the deadline.
func (a *Authenticator) awaitOutcome(ctx context.Context, page schemas.Page, creds schemas.Credentials) error {
	deadline := a.now().Add(a.cfg.Site.PageLoadTimeout)
	retried := false

	for {
		if visible, err := page.Visible(ctx, faucet.SelLogoutLink); err == nil && visible {
			page.MarkAuthenticated(true)
			a.setState(StateAuthenticated)
			a.logger.Info("Signed in.", zap.String("address", creds.Address))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if text, ok := a.noticeText(ctx, page); ok {
			done, err := a.handleNotice(ctx, page, creds, text, &retried, &deadline)
			if done {
				return err
			}
		}

		if a.now().After(deadline) {
			page.Diagnose(ctx, "auth.login")
			return a.fail(page, schemas.PageMismatch("auth.login",
				"no recognizable outcome after submitting the login form"))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

// noticeText reads the notice banner when one is up.
func (a *Authenticator) noticeText(ctx context.Context, page schemas.Page) (string, bool) {
	visible, err := page.Visible(ctx, faucet.SelNoticeText)
	if err != nil || !visible {
		return "", false
	}
	text, err := page.Text(ctx, faucet.SelNoticeText)
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// handleNotice turns a banner into a terminal outcome, or resubmits once with
// a fresh code on a two-factor demand. done is false only on that resubmit.
func (a *Authenticator) handleNotice(ctx context.Context, page schemas.Page, creds schemas.Credentials,
	text string, retried *bool, deadline *time.Time) (bool, error) {

	a.logger.Debug("Login notice shown.", zap.String("notice", text))

	switch classifyNotice(text) {
	case noticeTwoFactor:
		if !creds.HasTOTP() {
			return true, a.fail(page, schemas.NewStepError(schemas.ClassConfig, "auth.login",
				fmt.Errorf("the account demands a two-factor code but no secret is configured: %s", text)))
		}
		if *retried {
			return true, a.fail(page, schemas.NewStepError(schemas.ClassBadTotp, "auth.login",
				fmt.Errorf("two-factor code rejected: %s", text)))
		}
		if err := a.resubmitTwoFactor(ctx, page, creds.TotpSecret); err != nil {
			return true, a.fail(page, asStep("auth.totp_retry", err))
		}
		*retried = true
		*deadline = a.now().Add(a.cfg.Site.PageLoadTimeout)
		return false, nil

	case noticeBlocked:
		return true, a.fail(page, schemas.NewStepError(schemas.ClassBlocked, "auth.login",
			fmt.Errorf("account access blocked: %s", text)))

	case noticeBadCredentials:
		return true, a.fail(page, schemas.NewStepError(schemas.ClassBadCredentials, "auth.login",
			fmt.Errorf("credentials rejected: %s", text)))

	case noticeTransient:
		return true, a.fail(page, schemas.Transient("auth.login",
			fmt.Errorf("site reported a transient failure: %s", text)))

	default:
		return true, a.fail(page, schemas.PageMismatch("auth.login",
			fmt.Sprintf("unrecognized login notice: %s", text)))
	}
}

// resubmitTwoFactor refills the code field and submits again. The stale
// banner is waited out so the next poll cannot mistake it for a second
// rejection.
func (a *Authenticator) resubmitTwoFactor(ctx context.Context, page schemas.Page, secret string) error {
	a.setState(StateTwoFactorPrompt)
	a.logger.Info("Two-factor code demanded; resubmitting with a fresh one.")

	code, err := a.freshCode(ctx, secret)
	if err != nil {
		return err
	}
	if err := a.fillVerified(ctx, page, faucet.SelLoginTwoFactor, code, "auth.fill_totp"); err != nil {
		return err
	}
	if err := a.pages.ClickJS(ctx, page, faucet.SelLoginButton); err != nil {
		return err
	}
	a.setState(StateCredentialsSubmitted)

	if err := page.WaitHidden(ctx, faucet.SelNoticeText); err != nil {
		a.logger.Debug("Notice banner still up after resubmit.", zap.Error(err))
	}
	return nil
}

// Probe checks cheaply whether the session is still signed in. A vanished
// logout link flips the session back to unauthenticated; the scheduler
// re-runs Login from there.
func (a *Authenticator) Probe(ctx context.Context, page schemas.Page) (bool, error) {
	found, err := page.Find(ctx, faucet.SelLogoutLink)
	if err != nil {
		return false, err
	}
	if !found {
		page.MarkAuthenticated(false)
		a.setState(StateUnauthenticated)
		a.logger.Info("Session is no longer signed in.")
	}
	return found, nil
}

// Logout signs the account out and confirms the login button returns.
// Best-effort during shutdown; an already signed-out page is a success.
func (a *Authenticator) Logout(ctx context.Context, page schemas.Page) error {
	visible, err := page.Visible(ctx, faucet.SelLogoutLink)
	if err != nil {
		return asStep("auth.logout", err)
	}
	if !visible {
		page.MarkAuthenticated(false)
		a.setState(StateUnauthenticated)
		return nil
	}

	if err := a.pages.ClickJS(ctx, page, faucet.SelLogoutLink); err != nil {
		return asStep("auth.logout", err)
	}
	if err := page.WaitVisible(ctx, faucet.SelLoginButton); err != nil {
		return asStep("auth.logout", err)
	}

	page.MarkAuthenticated(false)
	a.setState(StateUnauthenticated)
	a.logger.Info("Signed out.")
	return nil
}

// fail records the terminal failure and hands the classified error back.
func (a *Authenticator) fail(page schemas.Page, err *schemas.StepError) error {
	a.setState(StateLoginFailed)
	page.MarkAuthenticated(false)
	a.logger.Warn("Login failed.", zap.String("class", string(err.Class)), zap.Error(err))
	return err
}

// asStep passes through an already classified error and wraps anything else
// as transient.
func asStep(step string, err error) *schemas.StepError {
	var se *schemas.StepError
	if errors.As(err, &se) {
		return se
	}
	return schemas.Transient(step, err)
}
