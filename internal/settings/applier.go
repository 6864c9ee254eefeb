// internal/settings/applier.go

// Package settings reconciles the account's play settings with the
// configured desired values. The site's settings are styled checkboxes that
// apply on click; reconciliation is read, toggle when different, read back.
package settings

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/config"
	"github.com/xkilldash9x/dripper/internal/faucet"
)

// Field names accepted under settings.desired.
const (
	FieldPlaySound       = "play_sound"
	FieldDisableLottery  = "disable_lottery"
	FieldDisableInterest = "disable_interest"
)

var fieldSelectors = map[string]string{
	FieldPlaySound:       faucet.SelSoundCheckbox,
	FieldDisableLottery:  faucet.SelDisableLottery,
	FieldDisableInterest: faucet.SelDisableInterest,
}

// setAttempts bounds toggle attempts per change. A checkbox that will not
// hold its value after this many toggles is reported, never hammered.
const setAttempts = 2

// Applier applies the configured setting changes to the page.
type Applier struct {
	logger *zap.Logger
	cfg    *config.Config
}

// New builds an Applier bound to the resolved configuration.
func New(cfg *config.Config, logger *zap.Logger) *Applier {
	return &Applier{
		logger: logger.Named("settings"),
		cfg:    cfg,
	}
}

// Changes builds the change list from the configured desired values, in a
// stable field order. Unknown fields and non-boolean values are configuration
// errors; nothing is touched on the page here.
func (a *Applier) Changes() ([]schemas.SettingChange, error) {
	desired := a.cfg.Settings.Desired
	if len(desired) == 0 {
		return nil, nil
	}

	fields := make([]string, 0, len(desired))
	for f := range desired {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	changes := make([]schemas.SettingChange, 0, len(fields))
	for _, f := range fields {
		if _, ok := fieldSelectors[f]; !ok {
			return nil, schemas.ConfigErrorf(
				"unknown setting %q (valid: %s, %s, %s)",
				f, FieldPlaySound, FieldDisableLottery, FieldDisableInterest)
		}
		raw := desired[f]
		if _, err := strconv.ParseBool(raw); err != nil {
			return nil, schemas.ConfigErrorf("setting %q wants a boolean value, got %q", f, raw)
		}
		changes = append(changes, schemas.SettingChange{Field: f, DesiredValue: raw})
	}
	return changes, nil
}

// Apply reconciles one change. Already-matching state is a no-op success;
// otherwise the checkbox is toggled and read back, with one retry before the
// change is given up on. Applied flips only after a confirming read.
func (a *Applier) Apply(ctx context.Context, page schemas.Page, change *schemas.SettingChange) error {
	sel, ok := fieldSelectors[change.Field]
	if !ok {
		return schemas.ConfigErrorf("unknown setting %q", change.Field)
	}
	desired, err := strconv.ParseBool(change.DesiredValue)
	if err != nil {
		return schemas.ConfigErrorf("setting %q wants a boolean value, got %q", change.Field, change.DesiredValue)
	}

	current, err := page.Checked(ctx, sel)
	if err != nil {
		return err
	}
	if current == desired {
		change.Applied = true
		a.logger.Debug("Setting already as desired.", zap.String("field", change.Field))
		return nil
	}

	for attempt := 1; attempt <= setAttempts; attempt++ {
		if err := page.SetChecked(ctx, sel, desired); err != nil {
			return err
		}
		current, err = page.Checked(ctx, sel)
		if err != nil {
			return err
		}
		if current == desired {
			change.Applied = true
			a.logger.Info("Setting applied.",
				zap.String("field", change.Field), zap.Bool("value", desired))
			return nil
		}
		a.logger.Warn("Setting did not hold after toggling.",
			zap.String("field", change.Field), zap.Int("attempt", attempt))
	}
	return schemas.PageMismatch("settings.apply",
		fmt.Sprintf("checkbox for %s would not hold %v", change.Field, desired))
}

// ApplyAll reconciles every configured change against the page. One stuck
// change does not stop the rest; failures come back joined.
func (a *Applier) ApplyAll(ctx context.Context, page schemas.Page) ([]schemas.SettingChange, error) {
	changes, err := a.Changes()
	if err != nil {
		return nil, err
	}

	var errs []error
	for i := range changes {
		if ctx.Err() != nil {
			return changes, ctx.Err()
		}
		if err := a.Apply(ctx, page, &changes[i]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", changes[i].Field, err))
		}
	}
	return changes, errors.Join(errs...)
}
