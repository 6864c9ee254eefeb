// internal/auth/classify_test.go
package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyNotice(t *testing.T) {
	tests := []struct {
		name string
		text string
		want noticeKind
	}{
		{
			name: "two factor demand",
			text: "Please enter your 2FA code to continue",
			want: noticeTwoFactor,
		},
		{
			name: "two factor beats retry phrasing",
			text: "Invalid 2FA code, please try again",
			want: noticeTwoFactor,
		},
		{
			name: "blocked",
			text: "Your account has been locked due to unusual activity",
			want: noticeBlocked,
		},
		{
			name: "blocked beats credential phrasing",
			text: "Account suspended after repeated invalid login attempts",
			want: noticeBlocked,
		},
		{
			name: "bad password",
			text: "Invalid password. Please try again.",
			want: noticeBadCredentials,
		},
		{
			name: "unknown address",
			text: "A user with that address does not exist",
			want: noticeBadCredentials,
		},
		{
			name: "transient",
			text: "Something went wrong, please try again",
			want: noticeTransient,
		},
		{
			name: "unrecognized",
			text: "Captcha verification failed",
			want: noticeUnknown,
		},
		{
			name: "empty",
			text: "",
			want: noticeUnknown,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, classifyNotice(tc.text))
		})
	}
}
