package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

func TestWriteErrorMapsKindToStatusAndBody(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/", nil)

	err := apperr.New(apperr.NotFound, "ticket not found").WithDetails(map[string]any{"ticket_id": "t1"})
	require.NoError(t, writeError(c, err))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperr.NotFound, body.Error.Kind)
	assert.Equal(t, "ticket not found", body.Error.Message)
	assert.Equal(t, "t1", body.Error.Details["ticket_id"])
}

func TestWriteErrorWrapsPlainErrorAsInternal(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/", nil)

	require.NoError(t, writeError(c, assert.AnError))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperr.Internal, body.Error.Kind)
}
