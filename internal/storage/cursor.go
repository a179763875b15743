package storage

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/whalewatch/engine/internal/types"
)

// EncodeCursor renders a pagination cursor as an opaque base64 token. Trade
// and Event listings order by timestamp DESC, id DESC; the cursor names the
// last row of the previous page so pages stay stable under concurrent
// inserts that share a timestamp.
func EncodeCursor(c types.Cursor) string {
	raw := fmt.Sprintf("%d:%d", c.TimestampMicros, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token previously produced by EncodeCursor. An empty
// token decodes to the zero Cursor, representing "start of results".
func DecodeCursor(token string) (types.Cursor, error) {
	if token == "" {
		return types.Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return types.Cursor{}, fmt.Errorf("invalid cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 {
		return types.Cursor{}, fmt.Errorf("invalid cursor: malformed token")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return types.Cursor{}, fmt.Errorf("invalid cursor: malformed timestamp")
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return types.Cursor{}, fmt.Errorf("invalid cursor: malformed id")
	}
	return types.Cursor{TimestampMicros: ts, ID: id}, nil
}

// NewCursor builds a Cursor from a row's timestamp and id.
func NewCursor(ts time.Time, id int64) types.Cursor {
	return types.Cursor{TimestampMicros: ts.UnixMicro(), ID: id}
}

// CursorTime reconstructs the UTC time encoded in the cursor.
func CursorTime(c types.Cursor) time.Time {
	return time.UnixMicro(c.TimestampMicros).UTC()
}
