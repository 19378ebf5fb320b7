// assign.go
// Purpose: Picks the car that answers a new floor call. The closest car
// that will reach the call going forward wins; if none qualifies the first
// car is used.
package elevassigner

import (
	"errors"
	"log/slog"
	"math"

	"elevdispatch/common"
	"elevdispatch/elevalgo"
)

var ErrNoCars = errors.New("no cars to assign")

// Fleet is the part of the registry the assigner needs: the cars in a
// stable order and the direction each one is scheduled in.
type Fleet interface {
	Cars() []*elevalgo.Car
	DirectionOf(carID int) common.Direction
}

// Assign returns the car that should serve a call at floor. Capacity and
// the requested direction do not take part in the choice. A nil log uses
// slog.Default.
func Assign(fleet Fleet, floor elevalgo.Floor, log *slog.Logger) (*elevalgo.Car, error) {
	if log == nil {
		log = slog.Default()
	}
	cars := fleet.Cars()
	if len(cars) == 0 {
		return nil, ErrNoCars
	}

	var best *elevalgo.Car
	bestDist := math.Inf(1)
	for _, c := range cars {
		d := Distance(c.Height(), floor.Height, fleet.DirectionOf(c.ID))
		if d > 0 && d < bestDist {
			best, bestDist = c, d
		}
	}
	if best == nil {
		log.Debug("no car heading toward call, using fallback",
			"floor", floor.ID, "car", cars[0].ID)
		return cars[0], nil
	}
	log.Debug("assigned call", "floor", floor.ID, "car", best.ID, "distance", bestDist)
	return best, nil
}

// Distance is how far a car at carHeight still has to travel in dirn to
// reach target. Negative means the car has already passed it.
func Distance(carHeight, target float64, dirn common.Direction) float64 {
	d := target - carHeight
	if dirn == common.DirDown {
		d = -d
	}
	return d
}
