// car.go
// Purpose: Kinetic model of one car. A car is either docked at a floor or in
// transit between two floors, in which case its height is estimated from
// the time since departure.
package elevalgo

import (
	"math"
	"time"

	"elevdispatch/common"
)

// Speed is the simulator's car speed in height units per second.
const Speed = 1000 * 10.0 / 4030.0

type Floor struct {
	ID     int
	Height float64
}

type Car struct {
	ID             int
	Capacity       int
	Occupants      int
	ServicedFloors []int

	moving bool
	at     Floor // docked floor, valid when !moving

	origin   Floor
	dest     Floor
	dirn     common.Direction
	departed time.Time

	now func() time.Time
}

// NewCar builds a car docked at dock.
func NewCar(info common.CarInfo, dock Floor, now func() time.Time) *Car {
	if now == nil {
		now = time.Now
	}
	serviced := make([]int, len(info.ServicedFloors))
	copy(serviced, info.ServicedFloors)
	return &Car{
		ID:             info.ID,
		Capacity:       info.Capacity,
		Occupants:      info.Occupants,
		ServicedFloors: serviced,
		at:             dock,
		dirn:           common.DirNone,
		now:            now,
	}
}

func (c *Car) Moving() bool { return c.moving }

// DockedAt returns the floor the car is docked at.
func (c *Car) DockedAt() (Floor, bool) {
	if c.moving {
		return Floor{}, false
	}
	return c.at, true
}

// Destination returns the floor a moving car is headed for.
func (c *Car) Destination() (Floor, bool) {
	if !c.moving {
		return Floor{}, false
	}
	return c.dest, true
}

// Heading is the direction of travel, DirNone while docked.
func (c *Car) Heading() common.Direction { return c.dirn }

// Depart moves a docked car into transit toward dest. It is a no-op for a
// car already moving or already docked at dest.
func (c *Car) Depart(dest Floor) bool {
	if c.moving || dest.ID == c.at.ID {
		return false
	}
	c.moving = true
	c.origin = c.at
	c.dest = dest
	c.departed = c.now()
	if dest.Height > c.origin.Height {
		c.dirn = common.DirUp
	} else {
		c.dirn = common.DirDown
	}
	return true
}

// Arrive docks the car at floor. The server is authoritative about where a
// car stopped, so this also corrects a car we thought was elsewhere.
func (c *Car) Arrive(floor Floor) {
	c.moving = false
	c.at = floor
	c.origin = Floor{}
	c.dest = Floor{}
	c.dirn = common.DirNone
	c.departed = time.Time{}
}

// Abort docks a car in transit back at its origin, for a move the server
// refused.
func (c *Car) Abort() {
	if c.moving {
		c.Arrive(c.origin)
	}
}

// Height is exact while docked. In transit it is origin height plus Speed
// times whole seconds since departure, capped at the destination height.
func (c *Car) Height() float64 {
	if !c.moving {
		return c.at.Height
	}
	secs := float64(c.now().Sub(c.departed) / time.Second)
	travelled := math.Min(Speed*secs, math.Abs(c.dest.Height-c.origin.Height))
	if c.dirn == common.DirDown {
		travelled = -travelled
	}
	return c.origin.Height + travelled
}

func (c *Car) PersonEntered() { c.Occupants++ }

// PersonLeft never takes the count below zero.
func (c *Car) PersonLeft() {
	if c.Occupants > 0 {
		c.Occupants--
	}
}
