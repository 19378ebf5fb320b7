package elevfsm

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"elevdispatch/common"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
	err    error
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("transport closed")
	}
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), p...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type wireMsg struct {
	Type   string         `json:"type"`
	ID     int            `json:"id"`
	Params map[string]any `json:"params"`
}

func (f *fakeTransport) messages(t *testing.T) []wireMsg {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wireMsg, 0, len(f.sent))
	for _, p := range f.sent {
		var m wireMsg
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("bad message %q: %v", p, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCorrelatorIDsStartAtZeroAndIncrease(t *testing.T) {
	tx := &fakeTransport{}
	c := NewCorrelator(tx, nil, quietLogger())

	for want := 0; want < 3; want++ {
		h, err := c.ChangeNextDirection(1, common.DirDown, nil, nil)
		if err != nil {
			t.Fatalf("Perform: %v", err)
		}
		if h.ID != want {
			t.Fatalf("id = %d, want %d", h.ID, want)
		}
	}

	msgs := tx.messages(t)
	if len(msgs) != 3 {
		t.Fatalf("sent %d messages, want 3", len(msgs))
	}
	m := msgs[2]
	if m.Type != common.ActChangeNextDirection || m.ID != 2 || m.Params["nextDirection"] != "down" || m.Params["car"] != float64(1) {
		t.Fatalf("unexpected wire message %+v", m)
	}
}

func TestCorrelatorFailedActionResolvesOnce(t *testing.T) {
	c := NewCorrelator(&fakeTransport{}, nil, quietLogger())
	c.nextID = 7

	var reasons []string
	succeeded := false
	h, err := c.SendCar(0, 4, common.DirUp,
		func() { succeeded = true },
		func(reason string) { reasons = append(reasons, reason) })
	if err != nil {
		t.Fatalf("SendCar: %v", err)
	}
	if h.ID != 7 {
		t.Fatalf("id = %d, want 7", h.ID)
	}

	if !c.Resolve(7, common.StatusFailed, "door jam") {
		t.Fatal("first Resolve should settle the action")
	}
	if c.Resolve(7, common.StatusFailed, "door jam") {
		t.Fatal("duplicate Resolve should be a no-op")
	}

	if succeeded || len(reasons) != 1 || reasons[0] != "door jam" {
		t.Fatalf("succeeded=%v reasons=%v", succeeded, reasons)
	}
	select {
	case <-h.Done():
	default:
		t.Fatal("handle not resolved")
	}
	if out := h.Result(); !out.Failed() || out.Reason != "door jam" {
		t.Fatalf("Result = %+v", out)
	}
}

func TestCorrelatorInProgressStaysPending(t *testing.T) {
	c := NewCorrelator(&fakeTransport{}, nil, quietLogger())
	done := 0
	if _, err := c.Perform(common.ActSendCar, nil, func() { done++ }, nil); err != nil {
		t.Fatalf("Perform: %v", err)
	}

	if c.Resolve(0, common.StatusInProgress, "") {
		t.Fatal("inProgress should not settle")
	}
	if len(c.Pending()) != 1 || done != 0 {
		t.Fatalf("pending=%d done=%d after inProgress", len(c.Pending()), done)
	}
	if !c.Resolve(0, common.StatusCompleted, "") {
		t.Fatal("completed should settle")
	}
	if len(c.Pending()) != 0 || done != 1 {
		t.Fatalf("pending=%d done=%d after completed", len(c.Pending()), done)
	}
}

func TestCorrelatorNilCallbacksAreSkipped(t *testing.T) {
	c := NewCorrelator(&fakeTransport{}, nil, quietLogger())
	c.Perform(common.ActSendCar, nil, nil, nil)
	c.Perform(common.ActSendCar, nil, nil, nil)
	if !c.Resolve(0, common.StatusCompleted, "") || !c.Resolve(1, common.StatusFailed, "x") {
		t.Fatal("actions with nil callbacks should still settle")
	}
}

func TestCorrelatorPendingIsOrderedCopy(t *testing.T) {
	c := NewCorrelator(&fakeTransport{}, nil, quietLogger())
	for i := 0; i < 4; i++ {
		c.SendCar(i, i+1, common.DirUp, nil, nil)
	}
	c.Resolve(1, common.StatusCompleted, "")

	pending := c.Pending()
	if len(pending) != 3 || pending[0].ID != 0 || pending[1].ID != 2 || pending[2].ID != 3 {
		t.Fatalf("Pending = %+v", pending)
	}
	pending[0].Params["floor"] = 99
	if again := c.Pending(); again[0].Params["floor"] != 1 {
		t.Fatalf("Pending shares params with the correlator: %v", again[0].Params)
	}
}

func TestCorrelatorSendFailureUnregisters(t *testing.T) {
	boom := errors.New("link down")
	c := NewCorrelator(&fakeTransport{err: boom}, nil, quietLogger())
	if _, err := c.SendCar(0, 1, common.DirUp, nil, nil); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if len(c.Pending()) != 0 {
		t.Fatal("failed send left the action pending")
	}
}

func TestCorrelatorConcurrentPerformUniqueIDs(t *testing.T) {
	c := NewCorrelator(&fakeTransport{}, nil, quietLogger())
	const workers, each = 8, 50

	var mu sync.Mutex
	seen := map[int]bool{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h, err := c.Perform(common.ActChangeNextDirection, nil, nil, nil)
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				seen[h.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != workers*each {
		t.Fatalf("%d unique ids, want %d", len(seen), workers*each)
	}
	for id := 0; id < workers*each; id++ {
		if !seen[id] {
			t.Fatalf("id %d never handed out", id)
		}
	}
}
