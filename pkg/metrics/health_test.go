package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLivenessNoPingFunc(t *testing.T) {
	liveness = &livenessState{startTime: time.Now()}
	status := GetLiveness(time.Second)
	assert.Equal(t, "alive", status.Status)
}

func TestGetLivenessReportsStall(t *testing.T) {
	liveness = &livenessState{startTime: time.Now()}
	SetPingFunc(func(timeout time.Duration) (time.Duration, bool) {
		return timeout, false
	})
	status := GetLiveness(10 * time.Millisecond)
	assert.Equal(t, "stalled", status.Status)
}

func TestHealthzHandlerAlive(t *testing.T) {
	liveness = &livenessState{startTime: time.Now()}
	SetPingFunc(func(timeout time.Duration) (time.Duration, bool) {
		return time.Millisecond, true
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	HealthzHandler(time.Second)(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var status LivenessStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	assert.Equal(t, "alive", status.Status)
}

func TestHealthzHandlerStalled(t *testing.T) {
	liveness = &livenessState{startTime: time.Now()}
	SetPingFunc(func(timeout time.Duration) (time.Duration, bool) {
		return timeout, false
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	HealthzHandler(time.Millisecond)(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
