package registry

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go-event-registry/internal/infrastructure/logger"
)

func newTestRegistry() *Registry {
	// Hour-long period keeps the lazily started loop from ever ticking;
	// tests drive heartbeatTick directly.
	return New(&mockLogger{}, time.Hour)
}

func TestRegistry_AddRemoveLifecycle(t *testing.T) {
	reg := newTestRegistry()

	sink1 := &mockSink{}
	sink2 := &mockSink{}

	reg.Add("A", sink1, "alice")
	reg.Add("A", sink2, "alice")

	if !reg.Has("A") {
		t.Error("Has should be true for a client with connections")
	}

	details := reg.Details()
	if len(details) != 1 {
		t.Fatalf("Expected 1 client detail, got %d", len(details))
	}
	if details[0].ID != "A" || details[0].ConnectionCount != 2 {
		t.Errorf("Expected client A with 2 connections, got %+v", details[0])
	}

	reg.RemoveSink("A", sink1)
	if !sink1.isClosed() {
		t.Error("Removed connection's sink should be closed")
	}
	if sink2.isClosed() {
		t.Error("Sibling sink should stay open")
	}

	details = reg.Details()
	if len(details) != 1 || details[0].ConnectionCount != 1 {
		t.Errorf("Expected client A with 1 connection, got %+v", details)
	}

	reg.RemoveSink("A", sink2)
	if reg.Has("A") {
		t.Error("Has should be false after the last connection is removed")
	}
	if len(reg.ClientIDs()) != 0 {
		t.Errorf("Expected no client ids, got %v", reg.ClientIDs())
	}
}

func TestRegistry_RemoveAllConnections(t *testing.T) {
	reg := newTestRegistry()

	sink1 := &mockSink{}
	sink2 := &mockSink{}
	reg.Add("A", sink1, "")
	reg.Add("A", sink2, "")
	reg.Add("B", &mockSink{}, "")

	reg.Remove("A")

	if reg.Has("A") {
		t.Error("Client A should be gone after full removal")
	}
	if !sink1.isClosed() || !sink2.isClosed() {
		t.Error("Both of client A's sinks should be closed")
	}
	if !reg.Has("B") {
		t.Error("Client B should be unaffected")
	}

	// Unknown ids are a no-op, not an error.
	reg.Remove("unknown")
	reg.RemoveSink("unknown", &mockSink{})
}

func TestRegistry_CloseErrorsSwallowed(t *testing.T) {
	reg := newTestRegistry()

	sink := &mockSink{closeErr: errors.New("already gone")}
	reg.Add("A", sink, "")

	reg.Remove("A")

	if reg.Has("A") {
		t.Error("Eviction must not depend on the close outcome")
	}
}

func TestRegistry_SendToClient(t *testing.T) {
	reg := newTestRegistry()

	sink1 := &mockSink{}
	sink2 := &mockSink{}
	reg.Add("A", sink1, "")
	reg.Add("A", sink2, "")

	if !reg.SendToClient("A", "update", map[string]string{"k": "v"}) {
		t.Error("SendToClient should report success")
	}

	want := "event: update\ndata: {\"k\":\"v\"}\n\n"
	if got := sink1.lastFrame(); got != want {
		t.Errorf("Unexpected frame on sink1: %q want %q", got, want)
	}
	if got := sink2.lastFrame(); got != want {
		t.Errorf("Unexpected frame on sink2: %q want %q", got, want)
	}
}

func TestRegistry_SendToUnknownClient(t *testing.T) {
	reg := newTestRegistry()
	reg.Add("A", &mockSink{}, "")

	if reg.SendToClient("nobody", "update", "x") {
		t.Error("SendToClient to an unknown id should return false")
	}
	if reg.TotalConnections() != 1 {
		t.Errorf("Registry state should be unchanged, got %d connections", reg.TotalConnections())
	}
}

func TestRegistry_SendEvictsFailedConnectionOnly(t *testing.T) {
	reg := newTestRegistry()

	bad := &mockSink{failWrites: true}
	good := &mockSink{}
	reg.Add("A", bad, "")
	reg.Add("A", good, "")

	if !reg.SendToClient("A", "update", 1) {
		t.Error("Delivery to the surviving connection should still count as success")
	}

	if reg.TotalConnections() != 1 {
		t.Errorf("Expected 1 connection after eviction, got %d", reg.TotalConnections())
	}
	if !reg.Has("A") {
		t.Error("Client should stay registered while one connection survives")
	}
	if !bad.isClosed() {
		t.Error("Evicted connection's sink should be closed")
	}

	// The survivor keeps receiving subsequent events.
	reg.SendToClient("A", "update", 2)
	if good.frameCount() != 2 {
		t.Errorf("Expected 2 frames on surviving sink, got %d", good.frameCount())
	}
}

func TestRegistry_Broadcast(t *testing.T) {
	reg := newTestRegistry()

	sinks := []*mockSink{{}, {}, {}, {}}
	reg.Add("A", sinks[0], "")
	reg.Add("B", sinks[1], "")
	reg.Add("B", sinks[2], "")
	reg.Add("C", sinks[3], "")

	delivered := reg.Broadcast("alert", map[string]string{"msg": "x"})
	if delivered != 4 {
		t.Errorf("Expected 4 deliveries, got %d", delivered)
	}

	want := "event: alert\ndata: {\"msg\":\"x\"}\n\n"
	for i, sink := range sinks {
		if sink.frameCount() != 1 {
			t.Errorf("Sink %d should have exactly 1 frame, got %d", i, sink.frameCount())
		}
		if got := sink.lastFrame(); got != want {
			t.Errorf("Sink %d frame %q want %q", i, got, want)
		}
	}
}

func TestRegistry_BroadcastEvictsFailures(t *testing.T) {
	reg := newTestRegistry()

	bad := &mockSink{failWrites: true}
	good := &mockSink{}
	reg.Add("A", bad, "")
	reg.Add("B", good, "")

	if delivered := reg.Broadcast("alert", "x"); delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}
	if reg.Has("A") {
		t.Error("Client A's only connection failed and should be evicted")
	}
	if !reg.Has("B") {
		t.Error("Client B should be unaffected")
	}
}

func TestRegistry_AddSameSinkTwice(t *testing.T) {
	reg := newTestRegistry()

	sink := &mockSink{}
	c1 := reg.Add("A", sink, "alice")
	c2 := reg.Add("A", sink, "alice")

	if c1 != c2 {
		t.Error("Re-registering a sink should return the existing connection")
	}
	if reg.TotalConnections() != 1 {
		t.Errorf("Expected 1 connection, got %d", reg.TotalConnections())
	}

	reg.RemoveSink("A", sink)
	if reg.Has("A") {
		t.Error("Removing the sink once should empty the client")
	}
}

func TestRegistry_SlowConnectionDoesNotStarveOthers(t *testing.T) {
	reg := newTestRegistry()

	// A sink whose peer stopped reading: the transport's write bound
	// eventually fires and the write fails instead of hanging forever.
	slow := &stallingSink{stall: 20 * time.Millisecond}
	healthy := &mockSink{}
	reg.Add("slow", slow, "")
	reg.Add("fast", healthy, "")

	if delivered := reg.Broadcast("update", "x"); delivered != 1 {
		t.Errorf("Expected 1 delivery, got %d", delivered)
	}
	if healthy.frameCount() != 1 {
		t.Errorf("Healthy connection should still be served, got %d frames", healthy.frameCount())
	}
	if reg.Has("slow") {
		t.Error("Stalled connection should be evicted")
	}

	// The heartbeat sweep completes against the survivor too.
	reg.heartbeatTick()
	if healthy.frameCount() != 2 {
		t.Errorf("Expected heartbeat frame on survivor, got %d frames", healthy.frameCount())
	}
}

func TestRegistry_HeartbeatTick(t *testing.T) {
	reg := newTestRegistry()

	alive := &mockSink{}
	dead := &mockSink{failWrites: true}
	other := &mockSink{}
	connAlive := reg.Add("A", alive, "")
	reg.Add("A", dead, "")
	connOther := reg.Add("B", other, "")

	before := connAlive.LastSeen()
	time.Sleep(5 * time.Millisecond)

	reg.heartbeatTick()

	if !connAlive.LastSeen().After(before) {
		t.Error("Heartbeat should advance lastSeen on surviving connections")
	}
	if !connOther.LastSeen().After(before) {
		t.Error("Heartbeat should cover every client's connections")
	}

	if reg.TotalConnections() != 2 {
		t.Errorf("Expected 2 connections after eviction, got %d", reg.TotalConnections())
	}
	if !reg.Has("A") || !reg.Has("B") {
		t.Error("Only the dead connection should be evicted, not its client")
	}

	frame := alive.lastFrame()
	if !strings.HasPrefix(frame, "event: heartbeat\ndata: {\"ts\":") {
		t.Errorf("Unexpected heartbeat frame: %q", frame)
	}
}

func TestRegistry_DetailsLastSeenIsMax(t *testing.T) {
	reg := newTestRegistry()

	base := time.Now()
	c1 := reg.Add("A", &mockSink{}, "alice")
	c2 := reg.Add("A", &mockSink{}, "")
	c3 := reg.Add("A", &mockSink{}, "")
	c1.lastSeen = base.Add(10 * time.Second)
	c2.lastSeen = base.Add(30 * time.Second)
	c3.lastSeen = base.Add(20 * time.Second)

	details := reg.Details()
	if len(details) != 1 {
		t.Fatalf("Expected 1 detail, got %d", len(details))
	}
	if !details[0].LastSeen.Equal(base.Add(30 * time.Second)) {
		t.Errorf("LastSeen should be the freshest, got %v", details[0].LastSeen)
	}
	if details[0].Name != "alice" {
		t.Errorf("Name should come from the first connection, got %q", details[0].Name)
	}
}

func TestRegistry_DetailsOrderedByConnectedAtDesc(t *testing.T) {
	reg := newTestRegistry()

	base := time.Now()
	cOld := reg.Add("old", &mockSink{}, "")
	cMid := reg.Add("mid", &mockSink{}, "")
	cNew := reg.Add("new", &mockSink{}, "")
	cOld.connectedAt = base.Add(-3 * time.Hour)
	cMid.connectedAt = base.Add(-2 * time.Hour)
	cNew.connectedAt = base.Add(-1 * time.Hour)

	details := reg.Details()
	if len(details) != 3 {
		t.Fatalf("Expected 3 details, got %d", len(details))
	}
	order := []string{details[0].ID, details[1].ID, details[2].ID}
	if order[0] != "new" || order[1] != "mid" || order[2] != "old" {
		t.Errorf("Expected newest-first ordering, got %v", order)
	}
}

func TestRegistry_Metrics(t *testing.T) {
	reg := newTestRegistry()

	m := reg.Metrics()
	if m.TotalConnections != 0 || m.TotalClients != 0 || m.AvgConnectionsPerClient != 0 {
		t.Errorf("Empty registry metrics should be all zero, got %+v", m)
	}

	reg.Add("A", &mockSink{}, "")
	reg.Add("A", &mockSink{}, "")
	reg.Add("B", &mockSink{}, "")

	m = reg.Metrics()
	if m.TotalConnections != 3 {
		t.Errorf("Expected 3 total connections, got %d", m.TotalConnections)
	}
	if m.TotalClients != len(reg.ClientIDs()) {
		t.Errorf("TotalClients %d should match ClientIDs length %d", m.TotalClients, len(reg.ClientIDs()))
	}
	if m.AvgConnectionsPerClient != 1.5 {
		t.Errorf("Expected average 1.5, got %v", m.AvgConnectionsPerClient)
	}
}

func TestRegistry_MetricsAverageRounding(t *testing.T) {
	reg := newTestRegistry()

	reg.Add("A", &mockSink{}, "")
	reg.Add("A", &mockSink{}, "")
	reg.Add("A", &mockSink{}, "")
	reg.Add("A", &mockSink{}, "")
	reg.Add("A", &mockSink{}, "")
	reg.Add("B", &mockSink{}, "")
	reg.Add("C", &mockSink{}, "")

	if avg := reg.Metrics().AvgConnectionsPerClient; avg != 2.33 {
		t.Errorf("Expected 7/3 rounded to 2.33, got %v", avg)
	}
}

func TestGenerateClientID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateClientID()
		if id == "" {
			t.Fatal("Generated id should not be empty")
		}
		if !strings.Contains(id, "-") {
			t.Errorf("Expected timestamp-random shape, got %q", id)
		}
		if seen[id] {
			t.Fatalf("Duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestConn_SendConfirmationFrame(t *testing.T) {
	reg := newTestRegistry()

	sink := &mockSink{}
	conn := reg.Add("A", sink, "alice")

	err := conn.Send(EventConnected, map[string]any{"message": "connected"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	want := "event: connected\ndata: {\"message\":\"connected\"}\n\n"
	if got := sink.lastFrame(); got != want {
		t.Errorf("Unexpected frame: %q want %q", got, want)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", n)
			sink := &mockSink{}
			reg.Add(id, sink, "")
			reg.SendToClient(id, "update", n)
			reg.Broadcast("tick", n)
			reg.Details()
			reg.Metrics()
			reg.heartbeatTick()
			reg.RemoveSink(id, sink)
		}(i)
	}
	wg.Wait()

	if reg.TotalConnections() != 0 {
		t.Errorf("Expected empty registry, got %d connections", reg.TotalConnections())
	}
}

// Mock implementations for testing

type mockSink struct {
	mu         sync.Mutex
	frames     []string
	failWrites bool
	closed     bool
	closeErr   error
}

func (s *mockSink) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failWrites {
		return errors.New("broken pipe")
	}
	s.frames = append(s.frames, string(p))
	return nil
}

func (s *mockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *mockSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *mockSink) lastFrame() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return ""
	}
	return s.frames[len(s.frames)-1]
}

// stallingSink models a peer that stopped reading: each write hangs for
// the stall duration, then fails the way a fired write deadline does.
type stallingSink struct {
	stall  time.Duration
	mu     sync.Mutex
	closed bool
}

func (s *stallingSink) Write(p []byte) error {
	time.Sleep(s.stall)
	return errors.New("write deadline exceeded")
}

func (s *stallingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}
