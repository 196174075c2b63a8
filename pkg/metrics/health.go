package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// LivenessStatus is the body returned by the /healthz probe: does the
// dispatch loop still answer within a timeout. Grounded on the teacher's
// health.Checker/health.Result shape, reduced to a single liveness check —
// there is no container/TCP/exec checker taxonomy to model here.
type LivenessStatus struct {
	Status  string    `json:"status"` // "alive" or "stalled"
	Pinged  time.Time `json:"pinged"`
	Latency string    `json:"latency"`
	Uptime  string    `json:"uptime"`
}

type livenessState struct {
	mu        sync.RWMutex
	ping      func(timeout time.Duration) (time.Duration, bool)
	startTime time.Time
}

var liveness = &livenessState{startTime: time.Now()}

// SetPingFunc installs the probe the server uses to check its own dispatch
// loop: ping should attempt a no-op round trip through command dispatch and
// report whether it completed within timeout.
func SetPingFunc(ping func(timeout time.Duration) (time.Duration, bool)) {
	liveness.mu.Lock()
	defer liveness.mu.Unlock()
	liveness.ping = ping
}

func GetLiveness(timeout time.Duration) LivenessStatus {
	liveness.mu.RLock()
	ping := liveness.ping
	liveness.mu.RUnlock()

	status := LivenessStatus{
		Pinged: time.Now(),
		Uptime: time.Since(liveness.startTime).String(),
	}
	if ping == nil {
		status.Status = "alive"
		return status
	}
	latency, ok := ping(timeout)
	status.Latency = latency.String()
	if ok {
		status.Status = "alive"
	} else {
		status.Status = "stalled"
	}
	return status
}

// HealthzHandler serves the liveness probe on the side metrics listener.
func HealthzHandler(timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := GetLiveness(timeout)
		w.Header().Set("Content-Type", "application/json")
		if status.Status != "alive" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}
