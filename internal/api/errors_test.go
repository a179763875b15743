package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whalewatch/engine/internal/types"
)

func TestMapServiceErrorKnownKinds(t *testing.T) {
	cases := []struct {
		kind       types.ErrorKind
		wantStatus int
	}{
		{types.KindInvalidInput, http.StatusBadRequest},
		{types.KindNotFound, http.StatusNotFound},
		{types.KindConflict, http.StatusConflict},
		{types.KindConflictSkipped, http.StatusConflict},
		{types.KindRateLimited, http.StatusTooManyRequests},
		{types.KindUpstreamUnavailable, http.StatusServiceUnavailable},
		{types.KindDecodeError, http.StatusInternalServerError},
		{types.KindInvariant, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := types.NewServiceError(tc.kind, "boom", nil)
			status, kind, message := mapServiceError(err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, "boom", message)
		})
	}
}

func TestMapServiceErrorUnwrappedErrorIsInternal(t *testing.T) {
	status, kind, message := mapServiceError(errors.New("something broke"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, types.KindInternal, kind)
	assert.Equal(t, "an internal error occurred", message)
}

func TestMapServiceErrorPreservesDetails(t *testing.T) {
	err := types.NewServiceError(types.KindInvalidInput, "bad field", map[string]interface{}{"field": "whaleId"})
	status, kind, _ := mapServiceError(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, types.KindInvalidInput, kind)
}
