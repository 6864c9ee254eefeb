// internal/faucet/selectors.go
package faucet

// DOM selectors for the faucet site. All are CSS. The element ids come from
// the site's own markup and only break when the site changes.

// Login and session selectors, shared with the authenticator.
const (
	SelLoginForm      = "#login_form"
	SelLoginAddress   = "#login_form_btc_address"
	SelLoginPassword  = "#login_form_password"
	SelLoginTwoFactor = "#login_form_2fa"
	SelLoginButton    = "#login_button"
	SelLoginMenu      = ".login_menu_button"
	SelLogoutLink     = "a.logout_link"
	SelNoticeText     = "span.noty_text"
)

// Account settings checkboxes, shared with the settings applier.
const (
	SelSoundCheckbox   = "#free_play_sound"
	SelDisableLottery  = "#disable_lottery_checkbox"
	SelDisableInterest = "#disable_interest_checkbox"
)

// Free play form.
const (
	selFreePlayButton    = "#free_play_form_button"
	selFreePlayResult    = "#free_play_result"
	selTimeRemaining     = "#time_remaining"
	selCountdownSections = "#time_remaining span.countdown_amount"
	selFreePlayCost      = "#play_without_captcha_desc span"
	selNoCaptchaSwitch   = "#play_without_captchas_button"
	selWithCaptchaSwitch = "#play_with_captcha_button"
)

// Winnings rendered after a roll.
const (
	selWinBTC     = "#winnings"
	selWinPoints  = "#fp_reward_points_won"
	selWinTickets = "#fp_lottery_tickets_won"
	selWinSpins   = "#fp_bonus_wins a"
)

// Account balance counters. The reward point counter lives inside the
// rewards tab pane, which is usually display:none.
const (
	selBalanceBTC     = `[id^="balance"]`
	selBalancePoints  = "#rewards_tab div.user_reward_points"
	selBalanceTickets = "#user_lottery_tickets"
)

// Page tab navigation links.
const (
	selRewardsTabLink  = "a.rewards_link"
	selFreePlayTabLink = "a.free_play_link"
)

// modalTarget pairs an overlay container with the control that dismisses it.
// The dismiss selector is scoped inside the container.
type modalTarget struct {
	name      string
	container string
	dismiss   string
}

var modalTargets = []modalTarget{
	{name: "cookie_banner", container: "div.cc_banner-wrapper", dismiss: "a.cc_btn"},
	{name: "push_prompt", container: "#push_notification_modal", dismiss: "div.pushpad_deny_button"},
	{name: "post_play_promo", container: "#myModal22", dismiss: "a.close-reveal-modal"},
}

// bonusTable describes one reward table on the rewards tab. The active
// banner id is the table id with the _rewards suffix dropped.
type bonusTable struct {
	name      string
	tableID   string
	container string
}

var bonusTables = map[string]bonusTable{
	"btc":  {name: "btc", tableID: "fp_bonus_rewards", container: "bonus_container_fp_bonus"},
	"lott": {name: "lott", tableID: "free_lott_rewards", container: "bonus_container_free_lott"},
	"wof":  {name: "wof", tableID: "free_wof_rewards", container: "bonus_container_free_wof"},
}
