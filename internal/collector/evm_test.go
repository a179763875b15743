package collector

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

func testThresholds() EventThresholds {
	return EventThresholds{
		LargeSwap:     decimal.NewFromInt(100000),
		LargeTransfer: decimal.NewFromInt(50000),
		ExchangeFlow:  decimal.NewFromInt(25000),
		PerpTrade:     decimal.NewFromInt(50000),
	}
}

func TestClassifyEventNilWithoutValueUSD(t *testing.T) {
	c := &EVMCollector{thresholds: testThresholds()}
	evt := c.classifyEvent(&models.Trade{})
	assert.Nil(t, evt)
}

func TestClassifyEventNilBelowThreshold(t *testing.T) {
	c := &EVMCollector{thresholds: testThresholds()}
	value := decimal.NewFromInt(1000)
	evt := c.classifyEvent(&models.Trade{ValueUSD: &value, Source: types.SourceOnchain})
	assert.Nil(t, evt, "a $1000 transfer should not clear the $50000 large-transfer threshold")
}

func TestClassifyEventAtExactThresholdQualifies(t *testing.T) {
	c := &EVMCollector{thresholds: testThresholds()}
	value := decimal.NewFromInt(50000)
	evt := c.classifyEvent(&models.Trade{ValueUSD: &value, Source: types.SourceOnchain})
	require.NotNil(t, evt)
	assert.Equal(t, types.EventLargeTransfer, evt.Type)
}

func TestClassifyEventExchangeFlowUsesExchangeThreshold(t *testing.T) {
	c := &EVMCollector{thresholds: testThresholds()}
	value := decimal.NewFromInt(30000)
	evt := c.classifyEvent(&models.Trade{ValueUSD: &value, Source: types.SourceExchangeFlow})
	require.NotNil(t, evt, "a $30000 exchange-flow trade clears the $25000 exchange-flow threshold even though it's below the large-transfer threshold")
	assert.Equal(t, types.EventExchangeFlow, evt.Type)
}

func TestClassifyEventPreservesTradeIdentity(t *testing.T) {
	c := &EVMCollector{thresholds: testThresholds()}
	value := decimal.NewFromInt(60000)
	txHash := "0xabc"
	evt := c.classifyEvent(&models.Trade{
		WhaleID:  "whale-1",
		ValueUSD: &value,
		TxHash:   &txHash,
		Source:   types.SourceOnchain,
	})
	require.NotNil(t, evt)
	assert.Equal(t, "whale-1", evt.WhaleID)
	assert.Equal(t, &txHash, evt.TxHash)
	assert.True(t, evt.ValueUSD.Equal(value))
}

func TestDecodeTransferAmountParsesBigEndianUint256(t *testing.T) {
	data := make([]byte, 32)
	amount := big.NewInt(123456789)
	amount.FillBytes(data)

	got := decodeTransferAmount(data)
	assert.True(t, got.Equal(decimal.NewFromInt(123456789)), "got %s", got)
}

func TestDecodeTransferAmountShortDataReturnsZero(t *testing.T) {
	assert.True(t, decodeTransferAmount([]byte{1, 2, 3}).IsZero())
}
