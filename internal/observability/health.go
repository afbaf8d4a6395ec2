package observability

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthStatus is the response body of the health endpoint
type HealthStatus struct {
	Status            string   `json:"status"`
	Timestamp         string   `json:"timestamp"`
	ActiveSessions    int      `json:"activeSessions"`
	SocketConnections int      `json:"socketConnections"`
	Regions           []string `json:"regions"`
}

// HealthCounts supplies the live counts reported by the health endpoint.
// It keeps this package free of imports from the session and gateway packages.
type HealthCounts interface {
	ActiveSessions() int
	SocketConnections() int
	Regions() []string
}

// HealthCheckHandler handles health check requests
func HealthCheckHandler(counts HealthCounts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if counts != nil {
			status.ActiveSessions = counts.ActiveSessions()
			status.SocketConnections = counts.SocketConnections()
			status.Regions = counts.Regions()
		}
		if status.Regions == nil {
			status.Regions = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
	}
}
