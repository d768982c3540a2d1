package registry

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// ClientDetail is one client's aggregate view for admin/introspection.
// Name and ConnectedAt come from the client's oldest surviving
// connection; LastSeen is the freshest across all of its connections.
type ClientDetail struct {
	ID              string    `json:"id"`
	Name            string    `json:"name,omitempty"`
	ConnectionCount int       `json:"connection_count"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastSeen        time.Time `json:"last_seen"`
}

// ConnectionMetrics is the aggregate counters snapshot.
type ConnectionMetrics struct {
	TotalConnections        int     `json:"total_connections"`
	TotalClients            int     `json:"total_clients"`
	AvgConnectionsPerClient float64 `json:"avg_connections_per_client"`
}

// TotalConnections returns the sum of connection-set sizes across all clients.
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalLocked()
}

// Metrics returns the aggregate counters. The average is rounded to two
// decimal places and defined as 0 when no clients are registered.
func (r *Registry) Metrics() ConnectionMetrics {
	r.mu.RLock()
	totalConns := r.totalLocked()
	totalClients := len(r.clients)
	r.mu.RUnlock()

	var avg float64
	if totalClients > 0 {
		avg = math.Round(float64(totalConns)/float64(totalClients)*100) / 100
	}

	return ConnectionMetrics{
		TotalConnections:        totalConns,
		TotalClients:            totalClients,
		AvgConnectionsPerClient: avg,
	}
}

// Details returns one entry per client with at least one live connection,
// ordered by ConnectedAt descending (most recently connected first).
func (r *Registry) Details() []ClientDetail {
	r.mu.RLock()
	details := make([]ClientDetail, 0, len(r.clients))
	for id, conns := range r.clients {
		first := conns[0]
		detail := ClientDetail{
			ID:              id,
			Name:            first.name,
			ConnectionCount: len(conns),
			ConnectedAt:     first.connectedAt,
			LastSeen:        first.LastSeen(),
		}
		for _, conn := range conns[1:] {
			if seen := conn.LastSeen(); seen.After(detail.LastSeen) {
				detail.LastSeen = seen
			}
		}
		details = append(details, detail)
	}
	r.mu.RUnlock()

	sort.Slice(details, func(i, j int) bool {
		return details[i].ConnectedAt.After(details[j].ConnectedAt)
	})
	return details
}

// GenerateClientID produces a fresh opaque client identity: a timestamp
// prefix for rough ordering plus a random suffix for collision resistance.
func GenerateClientID() string {
	return time.Now().UTC().Format("20060102150405") + "-" + uuid.NewString()[:8]
}
