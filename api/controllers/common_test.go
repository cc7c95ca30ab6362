package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/smartaccess-backend/internal/bulk"
	pkgerrors "github.com/angelmondragon/smartaccess-backend/pkg/errors"
	"github.com/angelmondragon/smartaccess-backend/pkg/logger"
)

func TestWriteBulkResultLogsPartialFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	missing := uuid.New()
	result := bulk.Result{
		Succeeded: 4,
		Failed:    1,
		Failures:  []bulk.Failure{{ID: missing, Code: pkgerrors.CodeNotFound, Message: "door not found"}},
	}

	w := httptest.NewRecorder()
	writeBulkResult(w, httptest.NewRequest(http.MethodPost, "/api/v1/doors/bulk/state", nil), logg, "doors.set_state", result)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data bulk.Result `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 4, body.Data.Succeeded)
	assert.Equal(t, 1, body.Data.Failed)

	out := buf.String()
	assert.Contains(t, out, "bulk.partial_failure")
	assert.Contains(t, out, `"operation":"doors.set_state"`)
	assert.Contains(t, out, missing.String())
}

func TestWriteBulkResultQuietOnFullSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})

	w := httptest.NewRecorder()
	writeBulkResult(w, httptest.NewRequest(http.MethodPost, "/api/v1/locks/bulk/engage", nil), logg, "locks.engage", bulk.Result{Succeeded: 3})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, strings.Contains(buf.String(), "bulk.partial_failure"))
}
