package progress

import (
	"context"
	"time"
)

const pollInterval = 500 * time.Millisecond

// idleTimeout is the SSE server-side idle bound (spec §4.I step 3, §5).
const idleTimeout = 10 * time.Minute

// TicketStatusReader reads the ticket's current status directly, to catch a
// terminal transition the in-memory buffer's producer never got to emit
// (e.g. a process restart mid-ticket).
type TicketStatusReader func(ctx context.Context, ticketID string) (status string, err error)

// Stream drives one SSE connection's lifecycle: connected -> poll/flush ->
// terminate (spec §4.I). It writes events to send and returns when the
// stream should close. send returning an error (client gone) also ends the loop.
func (c *Channel) Stream(ctx context.Context, ticketID string, readStatus TicketStatusReader, send func(Event) error) error {
	if err := send(Event{Type: "connected", Timestamp: time.Now(), TicketID: ticketID}); err != nil {
		return err
	}
	defer c.Purge(ticketID)

	deadline := time.Now().Add(idleTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	index := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			events, newIndex := c.Since(ticketID, index)
			index = newIndex
			for _, e := range events {
				if err := send(e); err != nil {
					return err
				}
				if IsTerminal(e.Type) {
					return nil
				}
			}

			if readStatus != nil {
				status, err := readStatus(ctx, ticketID)
				if err == nil && (status == "completed" || status == "failed" || status == "pending_review") {
					return send(Event{Type: terminalEventFor(status), Timestamp: time.Now(), TicketID: ticketID, Status: status})
				}
			}

			if time.Now().After(deadline) {
				return send(Event{Type: "timeout", Timestamp: time.Now(), TicketID: ticketID})
			}
		}
	}
}

func terminalEventFor(ticketStatus string) string {
	switch ticketStatus {
	case "failed":
		return "failed"
	default:
		return "completed"
	}
}
