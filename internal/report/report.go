// internal/report/report.go

// Package report reads the account's standing and renders it for people:
// a read-only snapshot of balance, reward points and lottery tickets, and
// writers that emit it as text or JSON.
package report

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
	"github.com/xkilldash9x/dripper/internal/faucet"
)

// Reporter reads account state off the page. It never mutates anything on
// the site; a snapshot is safe at any point of a run.
type Reporter struct {
	logger *zap.Logger
	pages  *faucet.Operator
}

// New builds a Reporter over the faucet page operations.
func New(pages *faucet.Operator, logger *zap.Logger) *Reporter {
	return &Reporter{
		logger: logger.Named("report"),
		pages:  pages,
	}
}

// Snapshot reads the current balances and stamps the snapshot with the
// account address, which the page itself never renders next to the numbers.
func (r *Reporter) Snapshot(ctx context.Context, page schemas.Page, address string) (schemas.AccountSnapshot, error) {
	snap, err := r.pages.Balances(ctx, page)
	if err != nil {
		return snap, err
	}
	snap.Address = address

	r.logger.Info("Account snapshot collected.",
		zap.String("address", address),
		zap.Int64("balance_sat", snap.BalanceSat),
		zap.Int64("reward_points", snap.RewardPoints),
		zap.Int64("lottery_tickets", snap.LotteryTickets),
	)
	return snap, nil
}
