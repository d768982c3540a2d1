package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// encodeFrame renders one SSE wire frame:
//
//	event: <name>\n
//	data: <json payload>\n
//	\n
//
// The payload is serialized once; unicast and broadcast write the
// identical bytes to every target sink. JSON never carries raw newlines,
// so a single data line always suffices.
func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for event %q: %w", event, err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "event: %s\n", event)
	fmt.Fprintf(&buf, "data: %s\n\n", data)
	return buf.Bytes(), nil
}

// SendToClient delivers one event frame to every connection clientID
// holds. A client with no live connections is a normal outcome, not an
// error: it logs a warning and returns false. Each write is independent;
// a failing write evicts only that connection and delivery continues to
// the rest. Returns true iff at least one connection received the frame.
func (r *Registry) SendToClient(clientID, event string, payload any) bool {
	conns := r.snapshotClient(clientID)
	if len(conns) == 0 {
		r.logger.Warnf("event %q dropped: client %s has no connections", event, clientID)
		return false
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Errorf("encode event %q: %v", event, err)
		return false
	}

	delivered := 0
	for _, conn := range conns {
		if err := conn.write(frame); err != nil {
			r.logger.Debugf("write to client %s failed, evicting connection: %v", clientID, err)
			r.RemoveSink(clientID, conn.sink)
			continue
		}
		delivered++
	}

	r.logger.Infof(
		"event %q sent to client %s (%d/%d connections)",
		event, clientID, delivered, len(conns),
	)
	return delivered > 0
}

// Broadcast delivers one event frame to every connection of every
// registered client. Failing writes evict just that one connection.
// Returns the number of connections that received the frame.
func (r *Registry) Broadcast(event string, payload any) int {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Errorf("encode event %q: %v", event, err)
		return 0
	}

	delivered := 0
	for clientID, conns := range r.snapshotAll() {
		for _, conn := range conns {
			if err := conn.write(frame); err != nil {
				r.logger.Debugf("broadcast write to client %s failed, evicting connection: %v", clientID, err)
				r.RemoveSink(clientID, conn.sink)
				continue
			}
			delivered++
		}
	}

	r.logger.Infof("event %q broadcast to %d connections", event, delivered)
	return delivered
}
