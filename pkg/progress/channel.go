// Package progress implements the Progress Channel (component I): an
// in-memory per-ticket append-only event buffer, streamed to clients as
// server-sent events, grounded on the teacher's pkg/events/manager.go
// mutex-guarded per-resource subscriber bookkeeping.
package progress

import (
	"sync"
	"time"
)

// Event is one progress event (spec §6 "SSE event wire format").
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	TicketID  string         `json:"ticket_id"`
	CurrentStep string       `json:"current_step,omitempty"`
	Status    string         `json:"status,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// terminalTypes are the event types that close an SSE stream.
var terminalTypes = map[string]bool{"completed": true, "failed": true, "timeout": true}

// Channel is the shared, process-wide progress buffer.
type Channel struct {
	mu      sync.Mutex
	buffers map[string][]Event
}

// New builds an empty Channel.
func New() *Channel {
	return &Channel{buffers: make(map[string][]Event)}
}

// Emit appends one event to ticketID's buffer (FIFO per ticket; spec §5
// "Within one ticket ... progress events are observed ... in emission order").
func (c *Channel) Emit(ticketID string, eventType, stepName string, payload map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buffers[ticketID] = append(c.buffers[ticketID], Event{
		Type:        eventType,
		Timestamp:   time.Now(),
		TicketID:    ticketID,
		CurrentStep: stepName,
		Status:      eventType,
		Payload:     payload,
	})
}

// EmitTerminal appends the closing event for ticketID.
func (c *Channel) EmitTerminal(ticketID, eventType string, payload map[string]any) {
	c.Emit(ticketID, eventType, "", payload)
}

// Since returns every event after index `from`, and the new high-water index.
func (c *Channel) Since(ticketID string, from int) ([]Event, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.buffers[ticketID]
	if from >= len(events) {
		return nil, len(events)
	}
	out := make([]Event, len(events)-from)
	copy(out, events[from:])
	return out, len(events)
}

// Purge removes a ticket's buffer; called when its stream terminates
// (spec §4.I step 4).
func (c *Channel) Purge(ticketID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.buffers, ticketID)
}

// IsTerminal reports whether eventType closes the stream.
func IsTerminal(eventType string) bool {
	return terminalTypes[eventType]
}
