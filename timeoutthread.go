// timeoutthread.go
// Purpose: Reports soft read timeouts from the session. A quiet server is
// not an error, but outstanding actions during a long silence are worth a
// warning.
package main

import (
	"context"
	"log/slog"
	"time"

	"elevdispatch/common"
)

type timeoutNotice struct {
	waited time.Duration
}

type pendingLister interface {
	Pending() []common.Action
}

// notifyTimeouts adapts the session's timeout callback to a channel. It
// drops notices rather than block the reader.
func notifyTimeouts(ch chan<- timeoutNotice) func(time.Duration) {
	return func(waited time.Duration) {
		select {
		case ch <- timeoutNotice{waited: waited}:
		default:
		}
	}
}

func timeoutThread(ctx context.Context, log *slog.Logger, actions pendingLister, timeoutCh <-chan timeoutNotice) {
	quiet := 0
	for {
		select {
		case <-ctx.Done():
			return

		case n := <-timeoutCh:
			quiet++
			pending := actions.Pending()
			if len(pending) == 0 {
				log.Info("server quiet", "waited", n.waited, "timeouts", quiet)
				continue
			}
			oldest := pending[0]
			log.Warn("server quiet with actions outstanding",
				"waited", n.waited,
				"timeouts", quiet,
				"pending", len(pending),
				"oldestID", oldest.ID,
				"oldestType", oldest.Type,
			)
		}
	}
}
