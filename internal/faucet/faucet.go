// internal/faucet/faucet.go

// Package faucet holds the page vocabulary of the faucet site and the
// operations that run against it: rolling the free play, reading balances
// and countdowns, claiming reward bonuses, and clearing the overlay modals
// the site likes to put in the way. Everything works through the
// schemas.Page contract, so the whole package is testable against a mock.
package faucet

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
)

// Operator drives the faucet pages. One instance serves the whole process;
// all state lives on the page, not here.
type Operator struct {
	logger *zap.Logger
	cfg    *config.Config

	pollInterval time.Duration
	now          func() time.Time
}

// New builds an Operator bound to the resolved configuration.
func New(cfg *config.Config, logger *zap.Logger) *Operator {
	return &Operator{
		logger:       logger.Named("faucet"),
		cfg:          cfg,
		pollInterval: 500 * time.Millisecond,
		now:          time.Now,
	}
}

func (o *Operator) elementTimeout() time.Duration {
	if t := o.cfg.Site.ElementTimeout; t > 0 {
		return t
	}
	return 10 * time.Second
}

// -- Low-level page reads --

// textOf reads the text content of the first element matching the selector,
// empty when absent. Reads go through textContent so values inside hidden
// tab panes still resolve.
func (o *Operator) textOf(ctx context.Context, page schemas.Page, selector string) (string, error) {
	script := fmt.Sprintf(
		`(() => { const e = document.querySelector(%q); return e ? e.textContent : ""; })()`, selector)
	var out string
	if err := page.Evaluate(ctx, script, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// textsOf collects the text content of every element matching the selector.
func (o *Operator) textsOf(ctx context.Context, page schemas.Page, selector string) ([]string, error) {
	script := fmt.Sprintf(
		`Array.from(document.querySelectorAll(%q), e => e.textContent)`, selector)
	var out []string
	if err := page.Evaluate(ctx, script, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClickJS dispatches a click from page context. The site hides several of
// its controls behind styled overlays and inactive tabs where a trusted
// pointer click cannot land.
func (o *Operator) ClickJS(ctx context.Context, page schemas.Page, selector string) error {
	script := fmt.Sprintf(`(() => {
		const e = document.querySelector(%q);
		if (!e) { return "missing"; }
		e.click();
		return "clicked";
	})()`, selector)

	var status string
	if err := page.Evaluate(ctx, script, &status); err != nil {
		return err
	}
	if status == "missing" {
		return schemas.PageMismatch("faucet.click", fmt.Sprintf("no element matches %q", selector))
	}
	return nil
}

// jsClickNth clicks the index-th element matching the selector.
func (o *Operator) jsClickNth(ctx context.Context, page schemas.Page, selector string, index int) error {
	script := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%q);
		if (els.length <= %d) { return "missing"; }
		els[%d].click();
		return "clicked";
	})()`, selector, index, index)

	var status string
	if err := page.Evaluate(ctx, script, &status); err != nil {
		return err
	}
	if status == "missing" {
		return schemas.PageMismatch("faucet.click",
			fmt.Sprintf("fewer than %d elements match %q", index+1, selector))
	}
	return nil
}

// -- Page state --

// Available confirms the page still belongs to the faucet. The site serves
// its maintenance pages under a generic title, so a title check is the
// cheapest liveness signal.
func (o *Operator) Available(ctx context.Context, page schemas.Page) error {
	var title string
	if err := page.Evaluate(ctx, "document.title", &title); err != nil {
		return err
	}
	marker := o.titleMarker()
	if !strings.Contains(strings.ToLower(title), marker) {
		return schemas.NewStepError(schemas.ClassTransient, "faucet.available",
			fmt.Errorf("%w: page title %q does not mention %q", ErrSiteDown, title, marker))
	}
	return nil
}

func (o *Operator) titleMarker() string {
	if u, err := url.Parse(o.cfg.Site.BaseURL); err == nil {
		if host := strings.TrimPrefix(u.Hostname(), "www."); host != "" {
			return strings.ToLower(host)
		}
	}
	return "freebitco.in"
}

// Countdown reports the remaining free play cooldown. ok is false when no
// timer is displayed, meaning the roll should be ready.
func (o *Operator) Countdown(ctx context.Context, page schemas.Page) (time.Duration, bool, error) {
	visible, err := page.Visible(ctx, selTimeRemaining)
	if err != nil {
		return 0, false, err
	}
	if !visible {
		return 0, false, nil
	}

	sections, err := o.textsOf(ctx, page, selCountdownSections)
	if err != nil {
		return 0, true, err
	}
	remaining, err := ParseCountdown(sections)
	if err != nil {
		return 0, true, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.countdown", err)
	}
	return remaining, true, nil
}

// FreePlayCost reads the reward point price of rolling without a captcha.
// Zero when the site is not charging for it.
func (o *Operator) FreePlayCost(ctx context.Context, page schemas.Page) (int64, error) {
	text, err := o.textOf(ctx, page, selFreePlayCost)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	cost, err := ParseInt(text)
	if err != nil {
		return 0, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.play_cost", err)
	}
	return cost, nil
}

// Balances reads the account counters from the page. Address is left for
// the caller to fill in; the page never renders it next to the numbers.
func (o *Operator) Balances(ctx context.Context, page schemas.Page) (schemas.AccountSnapshot, error) {
	snap := schemas.AccountSnapshot{CollectedAt: o.now()}

	btcText, err := o.textOf(ctx, page, selBalanceBTC)
	if err != nil {
		return snap, err
	}
	if btcText != "" {
		if snap.BalanceSat, err = ParseBTC(btcText); err != nil {
			return snap, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.balance", err)
		}
	}

	rpText, err := o.textOf(ctx, page, selBalancePoints)
	if err != nil {
		return snap, err
	}
	if rpText != "" {
		if snap.RewardPoints, err = ParseInt(rpText); err != nil {
			return snap, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.balance", err)
		}
	}

	ltText, err := o.textOf(ctx, page, selBalanceTickets)
	if err != nil {
		return snap, err
	}
	if ltText != "" {
		if snap.LotteryTickets, err = ParseInt(ltText); err != nil {
			return snap, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.balance", err)
		}
	}
	return snap, nil
}

// DismissModals closes whichever overlays are currently shown: the cookie
// banner, the push notification prompt, and the post-play promo. Dismissal
// is best-effort; a modal that refuses to close is logged and skipped so it
// never blocks the main flow. Returns the number of modals closed.
func (o *Operator) DismissModals(ctx context.Context, page schemas.Page) int {
	closed := 0
	for _, m := range modalTargets {
		visible, err := page.Visible(ctx, m.container)
		if err != nil {
			o.logger.Debug("Modal visibility check failed.",
				zap.String("modal", m.name), zap.Error(err))
			continue
		}
		if !visible {
			continue
		}

		if err := o.ClickJS(ctx, page, m.container+" "+m.dismiss); err != nil {
			o.logger.Debug("Modal dismiss control missing.",
				zap.String("modal", m.name), zap.Error(err))
			continue
		}
		if err := page.WaitHidden(ctx, m.container); err != nil {
			o.logger.Warn("Modal did not close after dismissal.",
				zap.String("modal", m.name), zap.Error(err))
			continue
		}

		o.logger.Info("Modal closed.", zap.String("modal", m.name))
		closed++
	}
	return closed
}

// -- Free play --

// Play rolls the free play. It retries up to the configured attempt count
// with a reload between tries; a cooldown or a fatal classification ends
// the attempts immediately.
func (o *Operator) Play(ctx context.Context, page schemas.Page) (schemas.PlayResult, error) {
	attempts := o.cfg.Scheduler.PlayAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			o.logger.Info("Retrying free play.", zap.Int("attempt", attempt), zap.Int("of", attempts))
			if err := page.Reload(ctx); err != nil {
				lastErr = err
				continue
			}
			o.DismissModals(ctx, page)
		}

		result, err := o.playOnce(ctx, page)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			return schemas.PlayResult{}, ctx.Err()
		}

		var cooldown *CooldownError
		var broke *InsufficientPointsError
		if errors.As(err, &cooldown) || errors.As(err, &broke) {
			return schemas.PlayResult{}, err
		}
		// Reloading will not end a maintenance window; the caller owns the
		// long retry policy.
		if errors.Is(err, ErrSiteDown) {
			return schemas.PlayResult{}, err
		}
		var step *schemas.StepError
		if errors.As(err, &step) && step.Fatal() {
			return schemas.PlayResult{}, err
		}

		lastErr = err
		o.logger.Warn("Free play attempt failed.", zap.Int("attempt", attempt), zap.Error(err))
	}
	return schemas.PlayResult{}, lastErr
}

func (o *Operator) playOnce(ctx context.Context, page schemas.Page) (schemas.PlayResult, error) {
	var zero schemas.PlayResult

	if err := o.Available(ctx, page); err != nil {
		return zero, err
	}
	if remaining, active, err := o.Countdown(ctx, page); err != nil {
		return zero, err
	} else if active {
		return zero, &CooldownError{Remaining: remaining}
	}

	ready, err := page.Visible(ctx, selFreePlayButton)
	if err != nil {
		return zero, err
	}
	if !ready {
		if err := o.enterCaptchaFreeMode(ctx, page); err != nil {
			return zero, err
		}
		if err := page.WaitVisible(ctx, selFreePlayButton); err != nil {
			page.Diagnose(ctx, "faucet.play")
			return zero, err
		}
	}

	if err := o.ClickJS(ctx, page, selFreePlayButton); err != nil {
		return zero, err
	}
	if err := page.WaitVisible(ctx, selFreePlayResult); err != nil {
		page.Diagnose(ctx, "faucet.play_result")
		return zero, err
	}

	result, err := o.readWinnings(ctx, page)
	if err != nil {
		return zero, err
	}
	o.logger.Info("Free play rolled.",
		zap.Int64("won_sat", result.WonSat),
		zap.Int64("reward_points", result.RewardPoints),
		zap.Int64("lottery_tickets", result.LotteryTickets),
		zap.Int64("wheel_spins", result.WheelSpins),
	)

	o.DismissModals(ctx, page)
	return result, nil
}

// enterCaptchaFreeMode switches the roll form to the reward-point paid mode
// when the plain roll button is not on offer. The switch costs points, so
// the balance is checked first.
func (o *Operator) enterCaptchaFreeMode(ctx context.Context, page schemas.Page) error {
	offered, err := page.Visible(ctx, selNoCaptchaSwitch)
	if err != nil {
		return err
	}
	if !offered {
		// Nothing to switch; the caller re-checks the roll button.
		return nil
	}

	cost, err := o.FreePlayCost(ctx, page)
	if err != nil {
		return err
	}
	if cost > 0 {
		snap, err := o.Balances(ctx, page)
		if err != nil {
			return err
		}
		if snap.RewardPoints < cost {
			return &InsufficientPointsError{Need: cost, Have: snap.RewardPoints}
		}
		o.logger.Info("Switching to captcha-free play.",
			zap.Int64("cost_rp", cost), zap.Int64("balance_rp", snap.RewardPoints))
	}

	if err := o.ClickJS(ctx, page, selNoCaptchaSwitch); err != nil {
		return err
	}
	return page.WaitVisible(ctx, selWithCaptchaSwitch)
}

// readWinnings collects the roll outcome counters. Counters the site did
// not render read as zero; the roll itself already happened.
func (o *Operator) readWinnings(ctx context.Context, page schemas.Page) (schemas.PlayResult, error) {
	result := schemas.PlayResult{At: o.now()}

	reads := []struct {
		selector string
		parse    func(string) (int64, error)
		dest     *int64
	}{
		{selWinBTC, ParseBTC, &result.WonSat},
		{selWinPoints, ParseInt, &result.RewardPoints},
		{selWinTickets, ParseInt, &result.LotteryTickets},
		{selWinSpins, ParseLeadingInt, &result.WheelSpins},
	}
	for _, r := range reads {
		text, err := o.textOf(ctx, page, r.selector)
		if err != nil {
			return result, err
		}
		if text == "" {
			continue
		}
		value, err := r.parse(text)
		if err != nil {
			o.logger.Debug("Unparseable winnings counter.",
				zap.String("selector", r.selector), zap.String("text", text), zap.Error(err))
			continue
		}
		*r.dest = value
	}
	return result, nil
}

// -- Reward bonuses --

// LoadBonusTables hops to the rewards tab and back so the reward tables are
// present in the DOM. The site lazy-loads them on first visit.
func (o *Operator) LoadBonusTables(ctx context.Context, page schemas.Page) error {
	if err := o.ClickJS(ctx, page, selRewardsTabLink); err != nil {
		return err
	}
	if err := page.WaitReady(ctx, "#"+bonusTables["btc"].tableID); err != nil {
		page.Diagnose(ctx, "faucet.bonus_tables")
		return err
	}
	return o.ClickJS(ctx, page, selFreePlayTabLink)
}

// Bonuses reports the state of every configured bonus in activation order
// without claiming anything.
func (o *Operator) Bonuses(ctx context.Context, page schemas.Page) ([]schemas.BonusState, error) {
	states := make([]schemas.BonusState, 0, len(o.cfg.Bonuses.Order))
	for _, name := range o.cfg.Bonuses.Order {
		state, err := o.BonusStatus(ctx, page, name)
		if err != nil {
			return states, err
		}
		states = append(states, state)
	}
	return states, nil
}

// BonusStatus inspects one reward table: whether the configured product is
// active, on offer, and what it costs.
func (o *Operator) BonusStatus(ctx context.Context, page schemas.Page, name string) (schemas.BonusState, error) {
	state := schemas.BonusState{Name: name}
	t, ok := bonusTables[name]
	if !ok {
		return state, schemas.ConfigErrorf("unknown bonus %q", name)
	}
	pick := o.cfg.Bonuses.Picks[name]

	key, active, err := o.activeBonusKey(ctx, page, t)
	if err != nil {
		return state, err
	}
	if active {
		state.Active = key == pick
		if !state.Active {
			o.logger.Warn("A different bonus is active in this table.",
				zap.String("bonus", name), zap.Int64("active_key", key), zap.Int64("configured", pick))
		}
		return state, nil
	}

	offers, err := o.bonusOffers(ctx, page, t)
	if err != nil {
		return state, err
	}
	for _, offer := range offers {
		if offer.key == pick {
			state.Available = true
			state.Cost = offer.cost
			break
		}
	}
	return state, nil
}

// ClaimBonus redeems the configured product from the named reward table and
// verifies the activation by polling the table's active banner. An already
// active matching bonus is a no-op success.
func (o *Operator) ClaimBonus(ctx context.Context, page schemas.Page, name string) (schemas.BonusState, error) {
	state := schemas.BonusState{Name: name}
	t, ok := bonusTables[name]
	if !ok {
		return state, schemas.ConfigErrorf("unknown bonus %q", name)
	}
	pick := o.cfg.Bonuses.Picks[name]

	key, active, err := o.activeBonusKey(ctx, page, t)
	if err != nil {
		return state, err
	}
	if active {
		state.Active = key == pick
		return state, nil
	}

	offers, err := o.bonusOffers(ctx, page, t)
	if err != nil {
		return state, err
	}
	index := -1
	for _, offer := range offers {
		if offer.key == pick {
			index = offer.index
			state.Available = true
			state.Cost = offer.cost
			break
		}
	}
	if index < 0 {
		o.logger.Warn("Configured bonus is not offered.",
			zap.String("bonus", name), zap.Int64("pick", pick))
		return state, nil
	}

	snap, err := o.Balances(ctx, page)
	if err != nil {
		return state, err
	}
	if snap.RewardPoints < state.Cost {
		return state, &InsufficientPointsError{Need: state.Cost, Have: snap.RewardPoints}
	}

	buttons := fmt.Sprintf("#%s button.reward_link_redeem_button_style", t.tableID)
	if err := o.jsClickNth(ctx, page, buttons, index); err != nil {
		return state, err
	}

	deadline := o.now().Add(o.elementTimeout())
	for {
		key, active, err := o.activeBonusKey(ctx, page, t)
		if err == nil && active && key == pick {
			state.Active = true
			o.logger.Info("Bonus activated.",
				zap.String("bonus", name), zap.Int64("key", pick), zap.Int64("cost_rp", state.Cost))
			return state, nil
		}
		if o.now().After(deadline) {
			page.Diagnose(ctx, "faucet.bonus_claim")
			return state, schemas.PageMismatch("faucet.bonus_claim",
				fmt.Sprintf("bonus %q did not activate within %s", name, o.elementTimeout()))
		}
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(o.pollInterval):
		}
	}
}

// activeBonusKey reads the active-bonus banner of one table. ok is false
// when no bonus is active there.
func (o *Operator) activeBonusKey(ctx context.Context, page schemas.Page, t bonusTable) (int64, bool, error) {
	text, err := o.textOf(ctx, page, "#"+t.container+" > p > span:first-of-type")
	if err != nil {
		return 0, false, err
	}
	if text == "" {
		return 0, false, nil
	}
	key, err := ParseBonusKey(text)
	if err != nil {
		return 0, true, schemas.NewStepError(schemas.ClassPageMismatch, "faucet.bonus_active", err)
	}
	return key, true, nil
}

// bonusOffer is one row of a reward table: the product key, its reward
// point cost, and its DOM position for clicking the redeem button.
type bonusOffer struct {
	index int
	key   int64
	cost  int64
}

// bonusOffers reads the product keys and costs from one reward table.
// Unparseable rows are skipped; the row index keeps its DOM position so the
// redeem click still lands on the right button.
func (o *Operator) bonusOffers(ctx context.Context, page schemas.Page, t bonusTable) ([]bonusOffer, error) {
	names, err := o.textsOf(ctx, page, fmt.Sprintf("#%s div.reward_product_name", t.tableID))
	if err != nil {
		return nil, err
	}
	costs, err := o.textsOf(ctx, page, fmt.Sprintf("#%s div.reward_dollar_value_style", t.tableID))
	if err != nil {
		return nil, err
	}
	if len(names) != len(costs) {
		return nil, schemas.PageMismatch("faucet.bonus_table",
			fmt.Sprintf("table %s has %d products but %d prices", t.tableID, len(names), len(costs)))
	}

	offers := make([]bonusOffer, 0, len(names))
	for i := range names {
		key, err := ParseBonusKey(names[i])
		if err != nil {
			o.logger.Debug("Skipping unparseable bonus row.",
				zap.String("table", t.tableID), zap.String("product", names[i]))
			continue
		}
		cost, err := ParseLeadingInt(costs[i])
		if err != nil {
			o.logger.Debug("Skipping bonus row with unparseable cost.",
				zap.String("table", t.tableID), zap.String("cost", costs[i]))
			continue
		}
		offers = append(offers, bonusOffer{index: i, key: key, cost: cost})
	}
	return offers, nil
}
