// scheduler.go
// Purpose: Per-car SCAN scheduling. Floors ahead of the car in its current
// direction wait in the primary queue, floors behind it in the secondary
// queue. When primary runs dry the car turns around and secondary becomes
// primary.
package elevalgo

import (
	"slices"

	"elevdispatch/common"
)

// Positioner reports where a car currently is.
type Positioner interface {
	Height() float64
}

type Scheduler struct {
	car       Positioner
	dirn      common.Direction
	primary   []Floor
	secondary []Floor
}

// NewScheduler starts out heading up with nothing queued.
func NewScheduler(car Positioner) *Scheduler {
	return &Scheduler{car: car, dirn: common.DirUp}
}

func (s *Scheduler) Direction() common.Direction { return s.dirn }

// Add queues f. A floor already queued in either direction is left alone.
func (s *Scheduler) Add(f Floor) bool {
	if s.queued(f.ID) {
		return false
	}
	h := s.car.Height()
	ahead := f.Height > h
	if s.dirn == common.DirDown {
		ahead = f.Height < h
	}
	if ahead {
		s.primary = insertSorted(s.primary, f, s.dirn)
	} else {
		s.secondary = insertSorted(s.secondary, f, s.dirn.Opposite())
	}
	return true
}

// Next pops the nearest floor ahead. With nothing ahead it reverses once,
// moves every floor behind into primary and tries again.
func (s *Scheduler) Next() (Floor, bool) {
	if len(s.primary) == 0 {
		s.dirn = s.dirn.Opposite()
		s.primary, s.secondary = s.secondary, nil
		slices.SortFunc(s.primary, compareFor(s.dirn))
	}
	if len(s.primary) == 0 {
		return Floor{}, false
	}
	next := s.primary[0]
	s.primary = slices.Delete(s.primary, 0, 1)
	return next, true
}

// Arrived drops floorID from primary if it is queued there.
func (s *Scheduler) Arrived(floorID int) {
	s.primary = slices.DeleteFunc(s.primary, func(f Floor) bool { return f.ID == floorID })
}

// Remove drops floorID from both queues, for a car sent straight there.
func (s *Scheduler) Remove(floorID int) {
	match := func(f Floor) bool { return f.ID == floorID }
	s.primary = slices.DeleteFunc(s.primary, match)
	s.secondary = slices.DeleteFunc(s.secondary, match)
}

// Primary returns the floor ids ahead, in service order.
func (s *Scheduler) Primary() []int { return ids(s.primary) }

// Secondary returns the floor ids waiting for the next reversal.
func (s *Scheduler) Secondary() []int { return ids(s.secondary) }

func (s *Scheduler) Len() int { return len(s.primary) + len(s.secondary) }

func (s *Scheduler) queued(id int) bool {
	has := func(f Floor) bool { return f.ID == id }
	return slices.ContainsFunc(s.primary, has) || slices.ContainsFunc(s.secondary, has)
}

func insertSorted(q []Floor, f Floor, dirn common.Direction) []Floor {
	cmp := compareFor(dirn)
	i, _ := slices.BinarySearchFunc(q, f, cmp)
	return slices.Insert(q, i, f)
}

// compareFor orders floors by height, ascending going up and descending
// going down. Ids break ties so the order is total.
func compareFor(dirn common.Direction) func(a, b Floor) int {
	sign := 1
	if dirn == common.DirDown {
		sign = -1
	}
	return func(a, b Floor) int {
		switch {
		case a.Height < b.Height:
			return -sign
		case a.Height > b.Height:
			return sign
		}
		return a.ID - b.ID
	}
}

func ids(q []Floor) []int {
	out := make([]int, len(q))
	for i, f := range q {
		out[i] = f.ID
	}
	return out
}
