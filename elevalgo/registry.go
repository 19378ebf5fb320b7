package elevalgo

import (
	"fmt"
	"math"
	"slices"
	"time"

	"elevdispatch/common"

	"github.com/tiendc/go-deepcopy"
)

// Registry holds the floors and cars of one session. Floors are stored by
// id and handed out by value; nothing outside keeps a pointer into them.
type Registry struct {
	floors map[int]Floor
	cars   map[int]*Car
	carIDs []int
}

// NewRegistry builds the registry from the first model snapshot. A car
// whose height matches no floor exactly is docked at the nearest one.
func NewRegistry(snap common.ModelSnapshot, now func() time.Time) (*Registry, error) {
	if len(snap.Floors) == 0 {
		return nil, fmt.Errorf("model has no floors")
	}
	r := &Registry{
		floors: make(map[int]Floor, len(snap.Floors)),
		cars:   make(map[int]*Car, len(snap.Cars)),
	}
	for _, fi := range snap.Floors {
		if _, dup := r.floors[fi.ID]; dup {
			return nil, fmt.Errorf("duplicate floor id %d", fi.ID)
		}
		r.floors[fi.ID] = Floor{ID: fi.ID, Height: fi.Height}
	}
	for _, ci := range snap.Cars {
		if _, dup := r.cars[ci.ID]; dup {
			return nil, fmt.Errorf("duplicate car id %d", ci.ID)
		}
		r.cars[ci.ID] = NewCar(ci, r.nearestFloor(ci.CurrentHeight), now)
		r.carIDs = append(r.carIDs, ci.ID)
	}
	slices.Sort(r.carIDs)
	return r, nil
}

func (r *Registry) nearestFloor(height float64) Floor {
	var best Floor
	bestDist := math.Inf(1)
	for _, id := range r.floorIDs() {
		f := r.floors[id]
		if d := math.Abs(f.Height - height); d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

func (r *Registry) floorIDs() []int {
	ids := make([]int, 0, len(r.floors))
	for id := range r.floors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) Floor(id int) (Floor, bool) {
	f, ok := r.floors[id]
	return f, ok
}

// Floors returns every floor, lowest first.
func (r *Registry) Floors() []Floor {
	out := make([]Floor, 0, len(r.floors))
	for _, id := range r.floorIDs() {
		out = append(out, r.floors[id])
	}
	slices.SortStableFunc(out, func(a, b Floor) int {
		switch {
		case a.Height < b.Height:
			return -1
		case a.Height > b.Height:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Car(id int) (*Car, bool) {
	c, ok := r.cars[id]
	return c, ok
}

// Cars returns the cars in ascending id order.
func (r *Registry) Cars() []*Car {
	out := make([]*Car, 0, len(r.carIDs))
	for _, id := range r.carIDs {
		out = append(out, r.cars[id])
	}
	return out
}

// Snapshot returns every car in id order, with the estimated height in
// place of the height from the model snapshot.
func (r *Registry) Snapshot() []common.CarInfo {
	out := make([]common.CarInfo, 0, len(r.carIDs))
	for _, c := range r.Cars() {
		info := common.CarInfo{
			ID:             c.ID,
			ServicedFloors: c.ServicedFloors,
			CurrentHeight:  c.Height(),
			Occupants:      c.Occupants,
			Capacity:       c.Capacity,
		}
		var cp common.CarInfo
		if err := deepcopy.Copy(&cp, info); err != nil {
			info.ServicedFloors = slices.Clone(info.ServicedFloors)
			cp = info
		}
		out = append(out, cp)
	}
	return out
}
