package schemas

import (
	"encoding/json"
	"time"
)

// ClaimKind defines the kind of account activity a record describes.
type ClaimKind string

const (
	ClaimFreePlay     ClaimKind = "FREE_PLAY"
	ClaimBonus        ClaimKind = "BONUS"
	ClaimSetting      ClaimKind = "SETTING"
	ClaimAuthEvent    ClaimKind = "AUTH_EVENT"
	ClaimSnapshotRead ClaimKind = "SNAPSHOT"
)

// Outcome is the terminal result of a single recorded action.
type Outcome string

const (
	OutcomeSuccess  Outcome = "SUCCESS"
	OutcomeRetried  Outcome = "RETRIED"
	OutcomeDeferred Outcome = "DEFERRED"
	OutcomeFailed   Outcome = "FAILED"
)

// Credentials holds everything needed to authenticate one account.
// TotpSecret is empty when the account has no two-factor enrollment.
// The struct is resolved once at startup and never mutated afterwards.
type Credentials struct {
	Address    string `json:"address"`
	Password   string `json:"-"`
	TotpSecret string `json:"-"`
}

// HasTOTP reports whether a two-factor secret is configured.
func (c Credentials) HasTOTP() bool { return c.TotpSecret != "" }

// Redacted returns a loggable copy with secret material blanked.
func (c Credentials) Redacted() Credentials {
	c.Password = ""
	c.TotpSecret = ""
	return c
}

// BonusState describes one claimable reward bonus as read from the page
// during a polling cycle. States are observations, never persisted.
type BonusState struct {
	Name           string     `json:"name"`
	Available      bool       `json:"available"`
	Active         bool       `json:"active"`
	Cost           int64      `json:"cost"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty"`
}

// SettingChange is one declarative account-setting mutation. Applied flips
// to true only after the new value has been read back from the page.
type SettingChange struct {
	Field        string `json:"field"`
	DesiredValue string `json:"desired_value"`
	Applied      bool   `json:"applied"`
}

// AccountSnapshot is a read-only view of the account's standing.
// BalanceSat is the BTC balance in satoshis.
type AccountSnapshot struct {
	Address        string    `json:"address"`
	BalanceSat     int64     `json:"balance_sat"`
	RewardPoints   int64     `json:"reward_points"`
	LotteryTickets int64     `json:"lottery_tickets"`
	CollectedAt    time.Time `json:"collected_at"`
}

// PlayResult captures the winnings of one successful free play.
type PlayResult struct {
	WonSat         int64     `json:"won_sat"`
	LotteryTickets int64     `json:"lottery_tickets"`
	RewardPoints   int64     `json:"reward_points"`
	WheelSpins     int64     `json:"wheel_spins"`
	At             time.Time `json:"at"`
}

// ClaimRecord is the persisted form of one account action.
type ClaimRecord struct {
	ID      string          `json:"id"`
	RunID   string          `json:"run_id"`
	Kind    ClaimKind       `json:"kind"`
	Outcome Outcome         `json:"outcome"`
	Amount  int64           `json:"amount"`
	At      time.Time       `json:"at"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}
