// networkthread.go
// Purpose: The single reader. Pulls one frame at a time off the session,
// decodes it and runs it through the dispatcher before reading the next.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"elevdispatch/common"
	"elevdispatch/elevfsm"
	"elevdispatch/elevnetwork"
)

type eventSource interface {
	Receive() ([]byte, error)
	Close() error
}

// networkThread returns nil when the simulation ends or ctx is cancelled.
// Anything else that stops it (reconnects exhausted, protocol mismatch) is
// returned.
func networkThread(ctx context.Context, log *slog.Logger, src eventSource, d *elevfsm.Dispatcher) error {
	// Cancelling closes the session, which unblocks Receive.
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	for {
		payload, err := src.Receive()
		if err != nil {
			if d.Ended() || (ctx.Err() != nil && errors.Is(err, elevnetwork.ErrSessionClosed)) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		var ev common.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("decode event %q: %w", payload, err)
		}
		if err := d.Handle(ev); err != nil {
			var perr *elevfsm.ProtocolError
			if errors.As(err, &perr) {
				log.Error("protocol mismatch", "type", perr.Type, "id", ev.ID)
			}
			return err
		}
		if d.Ended() {
			return nil
		}
	}
}
