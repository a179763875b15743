package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/models"
)

func d(v string) decimal.Decimal {
	dec, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return dec
}

func TestAssetBookFIFOConsume(t *testing.T) {
	book := &assetBook{}
	book.add(d("10"), d("100")) // lot 1: 10 @ 100
	book.add(d("5"), d("200"))  // lot 2: 5 @ 200

	realized, closed := book.consume(d("12"), d("150"))

	// Closes all of lot 1 (10 @ 100 -> 50*10=500 profit) plus 2 of lot 2
	// (150-200)*2 = -100, net realized = 400.
	assert.True(t, realized.Equal(d("400")), "realized = %s", realized)
	assert.True(t, closed.Equal(d("12")))
	assert.True(t, book.netQuantity().Equal(d("3")))
}

func TestAssetBookConsumeMoreThanHeld(t *testing.T) {
	book := &assetBook{}
	book.add(d("5"), d("100"))

	realized, closed := book.consume(d("20"), d("120"))

	assert.True(t, closed.Equal(d("5")), "closedQty should cap at held quantity")
	assert.True(t, realized.Equal(d("100")), "realized = %s", realized) // (120-100)*5
	assert.True(t, book.netQuantity().IsZero())
}

func TestAssetBookCostBasis(t *testing.T) {
	book := &assetBook{}
	book.add(d("2"), d("10"))
	book.add(d("3"), d("20"))

	assert.True(t, book.costBasis().Equal(d("80"))) // 2*10 + 3*20
}

func TestUnitPriceFallsBackToZeroWithoutValue(t *testing.T) {
	tr := &models.Trade{BaseAmount: d("2")}
	assert.True(t, unitPrice(tr).IsZero())
}

func TestUnitPriceDividesValueByAbsAmount(t *testing.T) {
	value := d("500")
	tr := &models.Trade{BaseAmount: d("-5"), ValueUSD: &value}
	assert.True(t, unitPrice(tr).Equal(d("100")))
}

func TestTruncateDayDropsTimeOfDay(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 32, 9, 0, time.UTC)
	got := truncateDay(ts)
	want := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	require.True(t, got.Equal(want))
}

func TestTruncateDayIsIdempotent(t *testing.T) {
	ts := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.True(t, truncateDay(ts).Equal(truncateDay(truncateDay(ts))))
}

func TestAssetBookFIFOOrderMattersForRealizedPnL(t *testing.T) {
	// The same net position, bought in two orders, must realize different
	// PnL on a partial close because FIFO always exits the oldest lot first.
	cheapFirst := &assetBook{}
	cheapFirst.add(d("1"), d("10"))
	cheapFirst.add(d("1"), d("50"))
	realizedA, _ := cheapFirst.consume(d("1"), d("30"))

	expensiveFirst := &assetBook{}
	expensiveFirst.add(d("1"), d("50"))
	expensiveFirst.add(d("1"), d("10"))
	realizedB, _ := expensiveFirst.consume(d("1"), d("30"))

	assert.False(t, realizedA.Equal(realizedB), "FIFO ordering should change realized PnL for a partial close")
	assert.True(t, realizedA.Equal(d("20")))  // (30-10)
	assert.True(t, realizedB.Equal(d("-20"))) // (30-50)
}
