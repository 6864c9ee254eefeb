// internal/auth/authenticator_test.go
package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/faucet"
	"github.com/xkilldash9x/dripper/internal/mocks"
	"github.com/xkilldash9x/dripper/internal/totp"
)

const testSecret = "JBSWY3DPEHPK3PXP"

func testCreds() schemas.Credentials {
	return schemas.Credentials{
		Address:  "1BoatSLRHtKNngkdXEeobR76b53LETtpyT",
		Password: "correct-horse-battery",
	}
}

func newTestAuthenticator(t *testing.T) (*Authenticator, *config.Config) {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Site.PageLoadTimeout = 250 * time.Millisecond
	cfg.Site.ElementTimeout = 250 * time.Millisecond

	ops := faucet.New(cfg, zaptest.NewLogger(t))
	a := New(cfg, totp.NewGenerator(), ops, zaptest.NewLogger(t))
	a.pollInterval = 10 * time.Millisecond
	return a, cfg
}

// pinClock freezes the authenticator and its code generator mid-window so
// two-factor tests are deterministic and never sleep out a boundary.
func pinClock(a *Authenticator, at time.Time) {
	a.now = func() time.Time { return at }
	a.codes = totp.NewGenerator(totp.WithClock(func() time.Time { return at }))
}

// midWindow is 5 seconds into a 30 second code window.
var midWindow = time.Unix(1_700_000_015, 0)

func matchScript(selector string) interface{} {
	quoted := fmt.Sprintf("%q", selector)
	return mock.MatchedBy(func(script string) bool {
		return strings.Contains(script, quoted)
	})
}

func stubJSClick(page *mocks.MockPage, selector string) *mock.Call {
	return page.On("Evaluate", mock.Anything, matchScript(selector), mock.Anything).
		Run(func(args mock.Arguments) {
			*(args.Get(2).(*string)) = "clicked"
		}).Return(nil)
}

func stubNoModals(page *mocks.MockPage) {
	for _, sel := range []string{"div.cc_banner-wrapper", "#push_notification_modal", "#myModal22"} {
		page.On("Visible", mock.Anything, sel).Return(false, nil)
	}
}

func stubField(page *mocks.MockPage, selector, value string) {
	page.On("Type", mock.Anything, selector, value).Return(nil)
	page.On("Value", mock.Anything, selector).Return(value, nil)
}

// stubLoginForm wires the happy path up to the submit click.
func stubLoginForm(page *mocks.MockPage, cfg *config.Config, creds schemas.Credentials) {
	page.On("Navigate", mock.Anything, cfg.Site.BaseURL).Return(nil)
	stubNoModals(page)
	page.On("Visible", mock.Anything, faucet.SelLoginForm).Return(true, nil)
	page.On("WaitVisible", mock.Anything, faucet.SelLoginForm).Return(nil)
	stubField(page, faucet.SelLoginAddress, creds.Address)
	stubField(page, faucet.SelLoginPassword, creds.Password)
	stubJSClick(page, faucet.SelLoginButton)
}

func TestLogin_Success(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil).Once()
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
	page.On("MarkAuthenticated", true).Return()

	err := a.Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, a.State())
	page.AssertExpectations(t)
}

func TestLogin_RevealsFormViaMenu(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil).Once()
	page.On("Navigate", mock.Anything, cfg.Site.BaseURL).Return(nil)
	stubNoModals(page)
	// Landing page: the form hides until the menu button is clicked.
	page.On("Visible", mock.Anything, faucet.SelLoginForm).Return(false, nil)
	stubJSClick(page, faucet.SelLoginMenu)
	page.On("WaitVisible", mock.Anything, faucet.SelLoginForm).Return(nil)
	stubField(page, faucet.SelLoginAddress, creds.Address)
	stubField(page, faucet.SelLoginPassword, creds.Password)
	stubJSClick(page, faucet.SelLoginButton)
	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
	page.On("MarkAuthenticated", true).Return()

	err := a.Login(context.Background(), page, creds)

	require.NoError(t, err)
	page.AssertExpectations(t)
}

func TestLogin_ShortCircuitsWhenSignedIn(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	page := mocks.NewMockPage()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
	page.On("MarkAuthenticated", true).Return()

	err := a.Login(context.Background(), page, testCreds())

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, a.State())
	page.AssertNumberOfCalls(t, "Navigate", 0)
}

func TestLogin_BadPassword(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).Return("Invalid password. Please try again.", nil)
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	require.Error(t, err)
	assert.True(t, schemas.IsClass(err, schemas.ClassBadCredentials))
	var se *schemas.StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Fatal())
	assert.Equal(t, StateLoginFailed, a.State())

	// A failed machine refuses another attempt until Reset.
	err = a.Login(context.Background(), page, creds)
	assert.True(t, schemas.IsClass(err, schemas.ClassConfig))

	a.Reset()
	assert.Equal(t, StateUnauthenticated, a.State())
}

func TestLogin_Blocked(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).
		Return("Your account has been locked due to unusual activity", nil)
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassBlocked))
	var se *schemas.StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Fatal())
}

func TestLogin_TransientBanner(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).
		Return("Something went wrong, please try again", nil)
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassTransient))
	var se *schemas.StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
}

func TestLogin_UnrecognizedNotice(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).Return("Captcha verification failed", nil)
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassPageMismatch))
	var se *schemas.StepError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
}

func TestLogin_TwoFactorSuccess(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	pinClock(a, midWindow)
	page := mocks.NewMockPage()
	creds := testCreds()
	creds.TotpSecret = testSecret

	wantCode, err := a.codes.Code(testSecret)
	require.NoError(t, err)

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil).Once()
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelLoginTwoFactor).Return(true, nil)
	stubField(page, faucet.SelLoginTwoFactor, wantCode)
	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
	page.On("MarkAuthenticated", true).Return()

	err = a.Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, a.State())
	page.AssertExpectations(t)
}

func TestLogin_TwoFactorRetrySucceeds(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	pinClock(a, midWindow)
	page := mocks.NewMockPage()
	creds := testCreds()
	creds.TotpSecret = testSecret

	wantCode, err := a.codes.Code(testSecret)
	require.NoError(t, err)

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil).Twice()
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelLoginTwoFactor).Return(true, nil)
	stubField(page, faucet.SelLoginTwoFactor, wantCode)
	// First poll sees the rejection, second poll sees the session.
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil).Once()
	page.On("Text", mock.Anything, faucet.SelNoticeText).
		Return("Invalid 2FA code, please try again", nil).Once()
	page.On("WaitHidden", mock.Anything, faucet.SelNoticeText).Return(nil)
	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
	page.On("MarkAuthenticated", true).Return()

	err = a.Login(context.Background(), page, creds)

	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, a.State())
	// Exactly two submits: the original and the single fresh-code retry.
	page.AssertNumberOfCalls(t, "Evaluate", 2)
	page.AssertExpectations(t)
}

func TestLogin_TwoFactorSecondRejection(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	pinClock(a, midWindow)
	page := mocks.NewMockPage()
	creds := testCreds()
	creds.TotpSecret = testSecret

	wantCode, err := a.codes.Code(testSecret)
	require.NoError(t, err)

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelLoginTwoFactor).Return(true, nil)
	stubField(page, faucet.SelLoginTwoFactor, wantCode)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).
		Return("Invalid 2FA code, please try again", nil)
	page.On("WaitHidden", mock.Anything, faucet.SelNoticeText).Return(nil)
	page.On("MarkAuthenticated", false).Return()

	err = a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassBadTotp))
	assert.Equal(t, StateLoginFailed, a.State())
	page.AssertNumberOfCalls(t, "Evaluate", 2)
}

func TestLogin_DemandsTwoFactorWithoutSecret(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds() // no secret configured

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(true, nil)
	page.On("Text", mock.Anything, faucet.SelNoticeText).
		Return("Please enter your 2FA code to continue", nil)
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassConfig))
	assert.Equal(t, StateLoginFailed, a.State())
}

func TestLogin_TimesOutWithoutOutcome(t *testing.T) {
	a, cfg := newTestAuthenticator(t)
	page := mocks.NewMockPage()
	creds := testCreds()

	page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
	stubLoginForm(page, cfg, creds)
	page.On("Visible", mock.Anything, faucet.SelNoticeText).Return(false, nil)
	page.On("Diagnose", mock.Anything, "auth.login").Return(schemas.PageSummary{})
	page.On("MarkAuthenticated", false).Return()

	err := a.Login(context.Background(), page, creds)

	assert.True(t, schemas.IsClass(err, schemas.ClassPageMismatch))
	page.AssertCalled(t, "Diagnose", mock.Anything, "auth.login")
}

func TestFreshCode_InvalidSecret(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	pinClock(a, midWindow)

	_, err := a.freshCode(context.Background(), "not-base32!!")

	assert.True(t, schemas.IsClass(err, schemas.ClassConfig))
}

func TestFreshCode_WaitsOutClosingWindow(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	// One second before the window boundary.
	edge := time.Unix(1_700_000_010+29, 0)
	a.now = func() time.Time { return edge }
	a.codes = totp.NewGenerator(totp.WithClock(func() time.Time { return edge }))

	start := time.Now()
	code, err := a.freshCode(context.Background(), testSecret)

	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond,
		"expected the boundary guard to wait out the closing window")
}

func TestProbe(t *testing.T) {
	t.Run("Still Signed In", func(t *testing.T) {
		a, _ := newTestAuthenticator(t)
		a.setState(StateAuthenticated)
		page := mocks.NewMockPage()
		page.On("Find", mock.Anything, faucet.SelLogoutLink).Return(true, nil)

		alive, err := a.Probe(context.Background(), page)

		require.NoError(t, err)
		assert.True(t, alive)
		assert.Equal(t, StateAuthenticated, a.State())
	})

	t.Run("Session Expired", func(t *testing.T) {
		a, _ := newTestAuthenticator(t)
		a.setState(StateAuthenticated)
		page := mocks.NewMockPage()
		page.On("Find", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
		page.On("MarkAuthenticated", false).Return()

		alive, err := a.Probe(context.Background(), page)

		require.NoError(t, err)
		assert.False(t, alive)
		assert.Equal(t, StateUnauthenticated, a.State())
	})
}

func TestLogout(t *testing.T) {
	t.Run("Signed In", func(t *testing.T) {
		a, _ := newTestAuthenticator(t)
		a.setState(StateAuthenticated)
		page := mocks.NewMockPage()
		page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(true, nil)
		stubJSClick(page, faucet.SelLogoutLink)
		page.On("WaitVisible", mock.Anything, faucet.SelLoginButton).Return(nil)
		page.On("MarkAuthenticated", false).Return()

		err := a.Logout(context.Background(), page)

		require.NoError(t, err)
		assert.Equal(t, StateUnauthenticated, a.State())
		page.AssertExpectations(t)
	})

	t.Run("Already Signed Out", func(t *testing.T) {
		a, _ := newTestAuthenticator(t)
		page := mocks.NewMockPage()
		page.On("Visible", mock.Anything, faucet.SelLogoutLink).Return(false, nil)
		page.On("MarkAuthenticated", false).Return()

		err := a.Logout(context.Background(), page)

		require.NoError(t, err)
		page.AssertNumberOfCalls(t, "Evaluate", 0)
	})
}
