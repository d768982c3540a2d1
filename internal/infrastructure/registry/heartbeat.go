package registry

import "time"

type heartbeatPayload struct {
	TS int64 `json:"ts"`
}

// heartbeatLoop probes every live connection on a fixed period. Started
// at most once, on the first Add, and never stops for the life of the
// process.
func (r *Registry) heartbeatLoop() {
	r.logger.Infof("heartbeat loop started (period %s)", r.heartbeatPeriod)

	ticker := time.NewTicker(r.heartbeatPeriod)
	defer ticker.Stop()

	for range ticker.C {
		r.heartbeatTick()
	}
}

// heartbeatTick performs one sweep: write a heartbeat frame to every
// connection, advancing lastSeen on success and evicting on failure.
// The registry is snapshotted first so Add/Remove racing with the sweep
// never mutates a collection mid-iteration.
func (r *Registry) heartbeatTick() {
	frame, err := encodeFrame(EventHeartbeat, heartbeatPayload{TS: time.Now().Unix()})
	if err != nil {
		r.logger.Errorf("encode heartbeat: %v", err)
		return
	}

	dead := 0
	for clientID, conns := range r.snapshotAll() {
		for _, conn := range conns {
			if err := conn.write(frame); err != nil {
				r.RemoveSink(clientID, conn.sink)
				dead++
			}
		}
	}

	if dead > 0 {
		r.logger.Warnf(
			"heartbeat evicted %d dead connections (%d remaining)",
			dead, r.TotalConnections(),
		)
	}
}
