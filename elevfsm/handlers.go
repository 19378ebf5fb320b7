package elevfsm

import (
	"fmt"

	"elevdispatch/common"
	"elevdispatch/elevalgo"
	"elevdispatch/elevassigner"
)

// onModelChanged builds the registry from the first snapshot. Later
// snapshots are ignored; state is tracked from discrete events instead.
func (d *Dispatcher) onModelChanged(ev common.Event) error {
	if d.registry != nil {
		d.log.Debug("ignoring model snapshot", "id", ev.ID)
		return nil
	}
	var snap common.ModelSnapshot
	if err := ev.Decode(&snap); err != nil {
		return err
	}
	reg, err := elevalgo.NewRegistry(snap, d.now)
	if err != nil {
		return fmt.Errorf("build registry: %w", err)
	}
	d.registry = reg
	for _, c := range reg.Cars() {
		d.schedulers[c.ID] = elevalgo.NewScheduler(c)
	}
	d.log.Info("model loaded", "floors", len(snap.Floors), "cars", len(snap.Cars))
	return nil
}

func (d *Dispatcher) onCarRequested(ev common.Event) error {
	var req common.CarRequested
	if err := ev.Decode(&req); err != nil {
		return err
	}
	f, ok := d.floor(ev, req.Floor)
	if !ok {
		return nil
	}
	c, err := elevassigner.Assign(fleet{d}, f, d.log)
	if err != nil {
		d.log.Warn("car request not assigned", "floor", req.Floor, "err", err)
		return nil
	}
	s := d.schedulers[c.ID]
	s.Add(f)
	d.log.Info("call assigned", "floor", f.ID, "direction", req.Direction, "car", c.ID)

	if c.Moving() {
		return nil
	}
	// Nothing will close this car's doors for it, so send it now.
	s.Remove(f.ID)
	return d.sendCar(c, s, f)
}

func (d *Dispatcher) onDoorClosed(ev common.Event) error {
	var at common.CarAtFloor
	if err := ev.Decode(&at); err != nil {
		return err
	}
	c, s, ok := d.car(ev, at.Car)
	if !ok {
		return nil
	}
	// Doors closing on a car we already sent off.
	if c.Moving() {
		return nil
	}
	next, ok := s.Next()
	if !ok {
		d.log.Debug("car idle", "car", c.ID, "floor", at.Floor)
		return nil
	}
	return d.sendCar(c, s, next)
}

func (d *Dispatcher) onCarArrived(ev common.Event) error {
	var at common.CarAtFloor
	if err := ev.Decode(&at); err != nil {
		return err
	}
	c, s, ok := d.car(ev, at.Car)
	if !ok {
		return nil
	}
	f, ok := d.floor(ev, at.Floor)
	if !ok {
		return nil
	}
	s.Arrived(f.ID)
	c.Arrive(f)
	return nil
}

func (d *Dispatcher) onFloorRequested(ev common.Event) error {
	var at common.CarAtFloor
	if err := ev.Decode(&at); err != nil {
		return err
	}
	_, s, ok := d.car(ev, at.Car)
	if !ok {
		return nil
	}
	f, ok := d.floor(ev, at.Floor)
	if !ok {
		return nil
	}
	s.Add(f)
	return nil
}

func (d *Dispatcher) onPersonEnteredCar(ev common.Event) error {
	var p common.PersonInCar
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if c, _, ok := d.car(ev, p.Car); ok {
		c.PersonEntered()
	}
	return nil
}

func (d *Dispatcher) onPersonLeftCar(ev common.Event) error {
	var p common.PersonInCar
	if err := ev.Decode(&p); err != nil {
		return err
	}
	if c, _, ok := d.car(ev, p.Car); ok {
		c.PersonLeft()
	}
	return nil
}

// doorOpened and doorSensorClear carry nothing the controller acts on.
func (d *Dispatcher) onDoorEvent(ev common.Event) error {
	d.log.Debug("door", "type", ev.Type, "description", string(ev.Description))
	return nil
}

func (d *Dispatcher) onActionProcessed(ev common.Event) error {
	var ap common.ActionProcessed
	if err := ev.Decode(&ap); err != nil {
		return err
	}
	d.Actions.Resolve(ap.ActionID, ap.Status, ap.FailureReason)
	return nil
}

func (d *Dispatcher) onSimulationEnded(ev common.Event) error {
	d.log.Info("simulation ended", "time", ev.Time)
	return nil
}

// onReconnected replays what the server did not see acknowledged. Events
// already handled get only a fresh ack. Then the server is told which
// actions are still outstanding.
func (d *Dispatcher) onReconnected(ev common.Event) error {
	var rc common.Reconnected
	if len(ev.Description) > 0 {
		if err := ev.Decode(&rc); err != nil {
			return err
		}
	}
	for _, missed := range rc.UnprocessedEvents {
		if d.Processed(missed.ID) {
			d.log.Info("re-acknowledging event", "type", missed.Type, "id", missed.ID)
			if err := d.ack(missed.ID); err != nil {
				return err
			}
			continue
		}
		if err := d.Handle(missed); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
		if d.ended {
			return nil
		}
	}

	pending := d.Actions.Pending()
	d.log.Info("reconnected", "replayed", len(rc.UnprocessedEvents), "pendingActions", len(pending))
	_, err := d.Actions.Reconnected(pending)
	return err
}

// sendCar sends c to f and puts it in transit. If the server refuses the
// move the car is put back where it was and f is queued again.
func (d *Dispatcher) sendCar(c *elevalgo.Car, s *elevalgo.Scheduler, f elevalgo.Floor) error {
	_, err := d.Actions.SendCar(c.ID, f.ID, s.Direction(), nil, func(string) {
		if dest, ok := c.Destination(); ok && dest.ID == f.ID {
			c.Abort()
		}
		s.Add(f)
	})
	if err != nil {
		return err
	}
	c.Depart(f)
	return nil
}
