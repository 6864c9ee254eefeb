// internal/auth/classify.go
package auth

import "strings"

// noticeKind buckets the site's login notice banner by content.
type noticeKind int

const (
	noticeUnknown noticeKind = iota
	noticeTwoFactor
	noticeBlocked
	noticeBadCredentials
	noticeTransient
)

// Keyword lists are matched lowercased. The site rewords its banners now and
// then; matching stays on stable fragments rather than full sentences.
var (
	twoFactorKeywords = []string{
		"2fa", "two-factor", "two factor", "authentication code", "one-time", "totp",
	}
	blockedKeywords = []string{
		"blocked", "banned", "suspended", "locked", "too many", "unusual activity",
	}
	badCredentialKeywords = []string{
		"invalid password", "wrong password", "incorrect password",
		"invalid login", "invalid credentials", "invalid address",
		"no user", "does not exist", "not registered",
	}
	transientKeywords = []string{
		"try again", "temporarily", "timeout", "server error", "something went wrong",
	}
)

// classifyNotice maps a login banner to its outcome. Two-factor keywords are
// checked first because those banners routinely also contain generic retry
// phrasing; blocked beats bad-credentials for the same reason.
func classifyNotice(text string) noticeKind {
	lower := strings.ToLower(text)

	for _, kw := range twoFactorKeywords {
		if strings.Contains(lower, kw) {
			return noticeTwoFactor
		}
	}
	for _, kw := range blockedKeywords {
		if strings.Contains(lower, kw) {
			return noticeBlocked
		}
	}
	for _, kw := range badCredentialKeywords {
		if strings.Contains(lower, kw) {
			return noticeBadCredentials
		}
	}
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return noticeTransient
		}
	}
	return noticeUnknown
}
