package collector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExchangeAddressKnownHotWallet(t *testing.T) {
	assert.True(t, IsExchangeAddress("0x28c6c06298d514db089934071355e5743bf21d60"))
}

func TestIsExchangeAddressIsCaseInsensitive(t *testing.T) {
	addr := "0x28c6c06298d514db089934071355e5743bf21d60"
	assert.True(t, IsExchangeAddress(strings.ToUpper(addr)))
}

func TestIsExchangeAddressUnknownAddress(t *testing.T) {
	assert.False(t, IsExchangeAddress("0x0000000000000000000000000000000000dead"))
}

func TestIsDexRouterKnownRouter(t *testing.T) {
	assert.True(t, IsDexRouter("0x7a250d5630b4cf539739df2c5dacb4c659f2488d"))
	assert.False(t, IsDexRouter("0x28c6c06298d514db089934071355e5743bf21d60")) // exchange, not a router
}

func TestLabelReturnsEmptyForUnknownAddress(t *testing.T) {
	assert.Equal(t, "", Label("0xnotinthecatalog00000000000000000000000"))
}

func TestLabelReturnsCatalogedName(t *testing.T) {
	assert.Equal(t, "uniswap v2 router", Label("0x7a250d5630b4cf539739df2c5dacb4c659f2488d"))
}
