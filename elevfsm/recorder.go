package elevfsm

import "elevdispatch/common"

// Recorder journals what the dispatcher handled and sent. Errors are
// logged by the caller and never stop dispatching.
type Recorder interface {
	RecordEvent(ev common.Event) error
	RecordAction(a common.Action) error
	RecordOutcome(actionID int, status, reason string) error
}

type nopRecorder struct{}

func (nopRecorder) RecordEvent(common.Event) error { return nil }
func (nopRecorder) RecordAction(common.Action) error { return nil }
func (nopRecorder) RecordOutcome(int, string, string) error { return nil }
