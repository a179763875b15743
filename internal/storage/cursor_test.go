package storage

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/types"
)

func TestCursorRoundTrip(t *testing.T) {
	c := types.Cursor{TimestampMicros: 1234567890, ID: 42}
	token := EncodeCursor(c)
	require.NotEmpty(t, token)

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCursorEmptyTokenIsStartOfResults(t *testing.T) {
	decoded, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Equal(t, types.Cursor{}, decoded)
}

func TestDecodeCursorRejectsMalformedToken(t *testing.T) {
	_, err := DecodeCursor("not-valid-base64!!")
	assert.Error(t, err)
}

func TestDecodeCursorRejectsTruncatedPayload(t *testing.T) {
	token := base64.RawURLEncoding.EncodeToString([]byte("no-colon-here"))
	_, err := DecodeCursor(token)
	assert.Error(t, err)
}

func TestNewCursorAndCursorTime(t *testing.T) {
	ts := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	c := NewCursor(ts, 7)
	assert.Equal(t, int64(7), c.ID)
	assert.True(t, CursorTime(c).Equal(ts))
}

// TestCursorRoundTripProperty checks that EncodeCursor/DecodeCursor form a
// bijection for any cursor a trade or event listing could produce.
func TestCursorRoundTripProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decode(encode(c)) == c", prop.ForAll(
		func(ts int64, id int64) bool {
			c := types.Cursor{TimestampMicros: ts, ID: id}
			decoded, err := DecodeCursor(EncodeCursor(c))
			return err == nil && decoded == c
		},
		gen.Int64(),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
