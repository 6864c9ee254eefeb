// internal/scheduler/records.go
package scheduler

import (
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dripper/api/schemas"
)

// Detail payloads attached to claim records. Amounts that belong in queries
// live on the record itself; these carry the rest of the context.

type playDetail struct {
	RewardPoints   int64 `json:"reward_points,omitempty"`
	LotteryTickets int64 `json:"lottery_tickets,omitempty"`
	WheelSpins     int64 `json:"wheel_spins,omitempty"`
}

type bonusDetail struct {
	Bonus string `json:"bonus"`
	Cost  int64  `json:"cost,omitempty"`
	Need  int64  `json:"need,omitempty"`
	Have  int64  `json:"have,omitempty"`
}

type settingDetail struct {
	Field   string `json:"field"`
	Desired string `json:"desired"`
}

type authDetail struct {
	Attempt int    `json:"attempt"`
	Error   string `json:"error,omitempty"`
}

type stepDetail struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

type snapshotDetail struct {
	RewardPoints   int64 `json:"reward_points"`
	LotteryTickets int64 `json:"lottery_tickets"`
}

// newRecord stamps a claim record with the run identity and the wall clock.
func (s *Scheduler) newRecord(kind schemas.ClaimKind, outcome schemas.Outcome, amount int64, detail any) schemas.ClaimRecord {
	rec := schemas.ClaimRecord{
		ID:      uuid.NewString(),
		RunID:   s.runID,
		Kind:    kind,
		Outcome: outcome,
		Amount:  amount,
		At:      s.now(),
	}
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err != nil {
			s.logger.Debug("Claim detail marshaling failed.", zap.Error(err))
		} else {
			rec.Detail = raw
		}
	}
	return rec
}

// record hands a claim record to the store writer. History is best effort:
// when persistence is disabled or the buffer is full the record is dropped,
// never blocking the browser loop on the database.
func (s *Scheduler) record(rec schemas.ClaimRecord) {
	if s.records == nil {
		return
	}
	select {
	case s.records <- rec:
	default:
		s.logger.Warn("Claim history buffer full, dropping record.",
			zap.String("kind", string(rec.Kind)), zap.String("outcome", string(rec.Outcome)))
	}
}
