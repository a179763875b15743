package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestAdvanceMovesTimestampForward(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := &IngestionCheckpoint{LastTimestamp: base}

	advanced := cp.Advance(base.Add(time.Hour), nil)

	assert.True(t, advanced)
	assert.True(t, cp.LastTimestamp.Equal(base.Add(time.Hour)))
}

func TestAdvanceNeverRegressesTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := &IngestionCheckpoint{LastTimestamp: base}

	advanced := cp.Advance(base.Add(-time.Hour), nil)

	assert.False(t, advanced)
	assert.True(t, cp.LastTimestamp.Equal(base), "checkpoint must not regress on a stale timestamp")
}

func TestAdvanceIgnoresEqualTimestamp(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cp := &IngestionCheckpoint{LastTimestamp: base}

	advanced := cp.Advance(base, nil)

	assert.False(t, advanced)
}

func TestAdvanceBlockHeightForwardOnly(t *testing.T) {
	height := uint64(100)
	cp := &IngestionCheckpoint{LastBlockHeight: &height}

	lower := uint64(50)
	advanced := cp.Advance(time.Time{}, &lower)
	assert.False(t, advanced, "a lower block height must not regress the checkpoint")
	assert.Equal(t, uint64(100), *cp.LastBlockHeight)

	higher := uint64(200)
	advanced = cp.Advance(time.Time{}, &higher)
	assert.True(t, advanced)
	assert.Equal(t, uint64(200), *cp.LastBlockHeight)
}

func TestAdvanceSetsBlockHeightWhenNoneRecorded(t *testing.T) {
	cp := &IngestionCheckpoint{}
	height := uint64(10)

	advanced := cp.Advance(time.Time{}, &height)

	assert.True(t, advanced)
	assert.Equal(t, uint64(10), *cp.LastBlockHeight)
}

// TestAdvanceMonotonicityProperty checks that a checkpoint's recorded
// timestamp never decreases across an arbitrary sequence of Advance calls,
// regardless of the order in which out-of-order source records arrive.
func TestAdvanceMonotonicityProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("LastTimestamp is non-decreasing across any sequence of Advance calls", prop.ForAll(
		func(offsets []int64) bool {
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			cp := &IngestionCheckpoint{LastTimestamp: base}

			prev := cp.LastTimestamp
			for _, off := range offsets {
				cp.Advance(base.Add(time.Duration(off)*time.Second), nil)
				if cp.LastTimestamp.Before(prev) {
					return false
				}
				prev = cp.LastTimestamp
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(-1000, 1000)),
	))

	properties.TestingRun(t)
}
