// dispatcher.go
// Purpose: Routes each event from the server to its handler, acknowledges
// it, and remembers which event ids are done so a replay after reconnect
// does not apply anything twice.
package elevfsm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"elevdispatch/common"
	"elevdispatch/elevalgo"
)

// ErrNoModel marks events that arrive before the first modelChanged.
var ErrNoModel = errors.New("no model yet")

// ProtocolError is returned for an event type this controller does not
// know. It means client and server disagree on the protocol.
type ProtocolError struct {
	Type string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

type handlerFunc func(ev common.Event) error

type Dispatcher struct {
	tx      Transport
	rec     Recorder
	log     *slog.Logger
	now     func() time.Time
	Actions *Correlator

	registry   *elevalgo.Registry
	schedulers map[int]*elevalgo.Scheduler
	processed  map[int]struct{}
	ended      bool

	handlers map[string]handlerFunc
}

// NewDispatcher wires a dispatcher and its correlator to tx. rec may be
// nil when no journal is kept.
func NewDispatcher(tx Transport, rec Recorder, log *slog.Logger) *Dispatcher {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		tx:         tx,
		rec:        rec,
		log:        log,
		now:        time.Now,
		Actions:    NewCorrelator(tx, rec, log),
		schedulers: make(map[int]*elevalgo.Scheduler),
		processed:  make(map[int]struct{}),
	}
	d.handlers = map[string]handlerFunc{
		common.EvModelChanged:     d.onModelChanged,
		common.EvCarRequested:     d.onCarRequested,
		common.EvDoorOpened:       d.onDoorEvent,
		common.EvDoorClosed:       d.onDoorClosed,
		common.EvDoorSensorClear:  d.onDoorEvent,
		common.EvCarArrived:       d.onCarArrived,
		common.EvPersonEnteredCar: d.onPersonEnteredCar,
		common.EvPersonLeftCar:    d.onPersonLeftCar,
		common.EvFloorRequested:   d.onFloorRequested,
		common.EvActionProcessed:  d.onActionProcessed,
		common.EvSimulationEnded:  d.onSimulationEnded,
		common.EvReconnected:      d.onReconnected,
	}
	return d
}

// Handle runs ev to completion: handler, acknowledgement, bookkeeping.
// simulationEnded closes the transport once acknowledged.
func (d *Dispatcher) Handle(ev common.Event) error {
	if d.ended {
		d.log.Debug("event after simulation end", "type", ev.Type, "id", ev.ID)
		return nil
	}
	h, ok := d.handlers[ev.Type]
	if !ok {
		return &ProtocolError{Type: ev.Type}
	}

	d.log.Info("event", "type", ev.Type, "id", ev.ID, "time", ev.Time)
	if err := h(ev); err != nil {
		return fmt.Errorf("%s event %d: %w", ev.Type, ev.ID, err)
	}
	// A replayed simulationEnded already closed the transport.
	if d.ended {
		return nil
	}

	if err := d.ack(ev.ID); err != nil {
		return err
	}
	d.processed[ev.ID] = struct{}{}
	if err := d.rec.RecordEvent(ev); err != nil {
		d.log.Warn("journal event", "id", ev.ID, "err", err)
	}
	d.logCars()

	if ev.Type == common.EvSimulationEnded {
		d.ended = true
		if err := d.tx.Close(); err != nil {
			d.log.Warn("close transport", "err", err)
		}
	}
	return nil
}

// Ended reports whether simulationEnded has been handled.
func (d *Dispatcher) Ended() bool { return d.ended }

// Processed reports whether event id has been handled and acknowledged.
func (d *Dispatcher) Processed(id int) bool {
	_, ok := d.processed[id]
	return ok
}

// Registry is nil until the first modelChanged.
func (d *Dispatcher) Registry() *elevalgo.Registry { return d.registry }

func (d *Dispatcher) Scheduler(carID int) (*elevalgo.Scheduler, bool) {
	s, ok := d.schedulers[carID]
	return s, ok
}

func (d *Dispatcher) ack(id int) error {
	payload, err := json.Marshal(common.NewEventProcessed(id))
	if err != nil {
		return fmt.Errorf("encode ack %d: %w", id, err)
	}
	if err := d.tx.Send(payload); err != nil {
		return fmt.Errorf("ack event %d: %w", id, err)
	}
	return nil
}

func (d *Dispatcher) logCars() {
	if d.registry == nil || !d.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	d.log.Debug("cars", "cars", d.registry.Snapshot())
}

// car looks up a car and its scheduler. Misses are logged and the event
// is acknowledged as usual.
func (d *Dispatcher) car(ev common.Event, id int) (*elevalgo.Car, *elevalgo.Scheduler, bool) {
	if d.registry == nil {
		d.log.Warn("dropping event", "type", ev.Type, "id", ev.ID, "err", ErrNoModel)
		return nil, nil, false
	}
	c, ok := d.registry.Car(id)
	if !ok {
		d.log.Warn("event for unknown car", "type", ev.Type, "id", ev.ID, "car", id)
		return nil, nil, false
	}
	return c, d.schedulers[id], true
}

func (d *Dispatcher) floor(ev common.Event, id int) (elevalgo.Floor, bool) {
	if d.registry == nil {
		d.log.Warn("dropping event", "type", ev.Type, "id", ev.ID, "err", ErrNoModel)
		return elevalgo.Floor{}, false
	}
	f, ok := d.registry.Floor(id)
	if !ok {
		d.log.Warn("event for unknown floor", "type", ev.Type, "id", ev.ID, "floor", id)
	}
	return f, ok
}

// fleet exposes the registry and schedulers to the assigner.
type fleet struct{ d *Dispatcher }

func (f fleet) Cars() []*elevalgo.Car { return f.d.registry.Cars() }

func (f fleet) DirectionOf(carID int) common.Direction {
	if s, ok := f.d.schedulers[carID]; ok {
		return s.Direction()
	}
	return common.DirUp
}
