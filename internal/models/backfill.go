package models

import (
	"time"

	"github.com/whalewatch/engine/internal/types"
)

// BackfillStatus is the per-whale backfill job state.
//
// State machine: idle -> running -> (done | error); done/error -> running
// is allowed on a new start. Only one running job per whale at a time.
type BackfillStatus struct {
	WhaleID   string              `json:"whaleId" db:"whale_id"`
	State     types.BackfillState `json:"state" db:"state"`
	Progress  int                 `json:"progress" db:"progress"` // 0-100
	Message   *string             `json:"message,omitempty" db:"message"`
	UpdatedAt time.Time           `json:"updatedAt" db:"updated_at"`
}

// CanStart reports whether a new backfill may begin from the current state.
func (b *BackfillStatus) CanStart() bool {
	return b.State != types.BackfillRunning
}
