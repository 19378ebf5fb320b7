// correlator.go
// Purpose: Hands out action ids, keeps every sent action until the server
// reports on it, and resolves each one exactly once.
package elevfsm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"elevdispatch/common"
)

// Transport is where encoded actions and acknowledgements go.
// *elevnetwork.Session satisfies it.
type Transport interface {
	Send(payload []byte) error
	Close() error
}

// Outcome is what the server reported for an action.
type Outcome struct {
	Status string
	Reason string
}

func (o Outcome) Failed() bool { return o.Status == common.StatusFailed }

// Handle resolves once, when the server reports a terminal status for the
// action. Result blocks until then.
type Handle struct {
	ID   int
	done chan struct{}
	out  Outcome
}

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) Result() Outcome {
	<-h.done
	return h.out
}

type pendingAction struct {
	action    common.Action
	onSuccess func()
	onFailure func(reason string)
	handle    *Handle
}

type Correlator struct {
	tx  Transport
	rec Recorder
	log *slog.Logger

	mu      sync.Mutex
	nextID  int
	pending map[int]*pendingAction
}

func NewCorrelator(tx Transport, rec Recorder, log *slog.Logger) *Correlator {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Correlator{
		tx:      tx,
		rec:     rec,
		log:     log,
		pending: make(map[int]*pendingAction),
	}
}

// Perform sends an action and returns its handle. The action is registered
// before it is written so a fast reply can never miss it. Either callback
// may be nil.
func (c *Correlator) Perform(typ string, params map[string]any, onSuccess func(), onFailure func(reason string)) (*Handle, error) {
	if params == nil {
		params = map[string]any{}
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	p := &pendingAction{
		action:    common.Action{Type: typ, ID: id, Params: params},
		onSuccess: onSuccess,
		onFailure: onFailure,
		handle:    &Handle{ID: id, done: make(chan struct{})},
	}
	c.pending[id] = p
	c.mu.Unlock()

	payload, err := json.Marshal(p.action)
	if err == nil {
		err = c.tx.Send(payload)
	}
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("perform %s %d: %w", typ, id, err)
	}

	c.log.Debug("action sent", "type", typ, "id", id, "params", params)
	if err := c.rec.RecordAction(p.action); err != nil {
		c.log.Warn("journal action", "id", id, "err", err)
	}
	return p.handle, nil
}

// Resolve settles action actionID. inProgress leaves it pending. An id that
// is unknown or already settled is ignored, so duplicate reports are
// harmless. It reports whether a pending action was settled.
func (c *Correlator) Resolve(actionID int, status, reason string) bool {
	c.mu.Lock()
	p, ok := c.pending[actionID]
	if !ok {
		c.mu.Unlock()
		c.log.Debug("actionProcessed for unknown or settled action", "id", actionID, "status", status)
		return false
	}
	if status == common.StatusInProgress {
		c.mu.Unlock()
		c.log.Debug("action in progress", "id", actionID)
		return false
	}
	delete(c.pending, actionID)
	c.mu.Unlock()

	out := Outcome{Status: status, Reason: reason}
	p.handle.out = out
	close(p.handle.done)

	if err := c.rec.RecordOutcome(actionID, status, reason); err != nil {
		c.log.Warn("journal outcome", "id", actionID, "err", err)
	}

	if out.Failed() {
		c.log.Warn("action failed", "type", p.action.Type, "id", actionID, "reason", reason)
		if p.onFailure != nil {
			p.onFailure(reason)
		}
		return true
	}
	if p.onSuccess != nil {
		p.onSuccess()
	}
	return true
}

// Pending returns copies of every unsettled action, oldest first.
func (c *Correlator) Pending() []common.Action {
	c.mu.Lock()
	out := make([]common.Action, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p.action)
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b common.Action) int { return a.ID - b.ID })
	return common.CopyActions(out)
}

func (c *Correlator) SendCar(car, floor int, nextDirection common.Direction, onSuccess func(), onFailure func(string)) (*Handle, error) {
	return c.Perform(common.ActSendCar, map[string]any{
		"car":           car,
		"floor":         floor,
		"nextDirection": string(nextDirection),
	}, onSuccess, onFailure)
}

func (c *Correlator) ChangeNextDirection(car int, nextDirection common.Direction, onSuccess func(), onFailure func(string)) (*Handle, error) {
	return c.Perform(common.ActChangeNextDirection, map[string]any{
		"car":           car,
		"nextDirection": string(nextDirection),
	}, onSuccess, onFailure)
}

// Reconnected tells the server which actions are still outstanding.
func (c *Correlator) Reconnected(unprocessed []common.Action) (*Handle, error) {
	return c.Perform(common.ActReconnected, map[string]any{
		"unprocessedActions": unprocessed,
	}, nil, nil)
}
