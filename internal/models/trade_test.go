package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/whalewatch/engine/internal/types"
)

func TestDedupeKeyCombinesWhaleAndTxHash(t *testing.T) {
	hash := "0xabc"
	tr := &Trade{WhaleID: "whale-1", TxHash: &hash}

	key, ok := tr.DedupeKey()

	assert.True(t, ok)
	assert.Equal(t, "whale-1:0xabc", key)
}

func TestDedupeKeyAbsentWithoutTxHash(t *testing.T) {
	tr := &Trade{WhaleID: "whale-1"}
	_, ok := tr.DedupeKey()
	assert.False(t, ok)
}

func TestDedupeKeyAbsentForEmptyTxHash(t *testing.T) {
	empty := ""
	tr := &Trade{WhaleID: "whale-1", TxHash: &empty}
	_, ok := tr.DedupeKey()
	assert.False(t, ok)
}

func TestDedupeKeyIsStableAcrossReplaysOfTheSameTrade(t *testing.T) {
	hash := "0xabc"
	first := &Trade{WhaleID: "whale-1", TxHash: &hash, BaseAmount: decimal.NewFromInt(1)}
	replay := &Trade{WhaleID: "whale-1", TxHash: &hash, BaseAmount: decimal.NewFromInt(1)}

	keyA, okA := first.DedupeKey()
	keyB, okB := replay.DedupeKey()

	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, keyA, keyB, "replaying the same source record must produce the same dedupe key")
}

func TestDedupeKeyDistinguishesDifferentWhalesOnSameTxHash(t *testing.T) {
	hash := "0xabc"
	a := &Trade{WhaleID: "whale-1", TxHash: &hash}
	b := &Trade{WhaleID: "whale-2", TxHash: &hash}

	keyA, _ := a.DedupeKey()
	keyB, _ := b.DedupeKey()

	assert.NotEqual(t, keyA, keyB)
}

func TestIsCloseDirections(t *testing.T) {
	assert.True(t, (&Trade{Direction: types.DirectionSell}).IsClose())
	assert.True(t, (&Trade{Direction: types.DirectionCloseLong}).IsClose())
	assert.True(t, (&Trade{Direction: types.DirectionCloseShort}).IsClose())
	assert.False(t, (&Trade{Direction: types.DirectionBuy}).IsClose())
	assert.False(t, (&Trade{Direction: types.DirectionLong}).IsClose())
}

func TestIsPerpCloseOnlyForPerpCloseDirections(t *testing.T) {
	assert.True(t, (&Trade{Direction: types.DirectionCloseLong}).IsPerpClose())
	assert.True(t, (&Trade{Direction: types.DirectionCloseShort}).IsPerpClose())
	assert.False(t, (&Trade{Direction: types.DirectionSell}).IsPerpClose())
}
