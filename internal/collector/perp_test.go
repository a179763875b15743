package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whalewatch/engine/internal/types"
)

func TestDirectionForFillKnownValues(t *testing.T) {
	cases := map[string]types.TradeDirection{
		"Open Long":   types.DirectionLong,
		"Open Short":  types.DirectionShort,
		"Close Long":  types.DirectionCloseLong,
		"Close Short": types.DirectionCloseShort,
	}

	for raw, want := range cases {
		assert.Equal(t, want, directionForFill(raw), "input %q", raw)
	}
}

func TestDirectionForFillUnknownValueDefaultsToLong(t *testing.T) {
	assert.Equal(t, types.DirectionLong, directionForFill("something unexpected"))
}
