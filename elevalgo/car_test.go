package elevalgo

import (
	"math"
	"testing"
	"time"

	"elevdispatch/common"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1000, 0)} }

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestCarDepartAndArrive(t *testing.T) {
	clk := newFakeClock()
	c := NewCar(common.CarInfo{ID: 1, Capacity: 8}, Floor{ID: 0, Height: 0}, clk.Now)

	if c.Moving() || c.Heading() != common.DirNone {
		t.Fatal("new car should be docked")
	}
	if !c.Depart(Floor{ID: 3, Height: 30}) {
		t.Fatal("Depart should start transit")
	}
	if !c.Moving() || c.Heading() != common.DirUp {
		t.Fatalf("moving=%v heading=%v, want moving up", c.Moving(), c.Heading())
	}
	if dest, ok := c.Destination(); !ok || dest.ID != 3 {
		t.Fatalf("Destination = %v, %v", dest, ok)
	}
	if c.Depart(Floor{ID: 5, Height: 50}) {
		t.Fatal("Depart while moving should be a no-op")
	}

	c.Arrive(Floor{ID: 3, Height: 30})
	if f, ok := c.DockedAt(); !ok || f.ID != 3 {
		t.Fatalf("DockedAt = %v, %v; want floor 3", f, ok)
	}
	if c.Height() != 30 {
		t.Fatalf("Height = %v, want 30", c.Height())
	}
}

func TestCarDepartToCurrentFloorIsNoop(t *testing.T) {
	c := NewCar(common.CarInfo{ID: 1}, Floor{ID: 2, Height: 8}, nil)
	if c.Depart(Floor{ID: 2, Height: 8}) {
		t.Fatal("Depart to the docked floor should be a no-op")
	}
	if c.Moving() {
		t.Fatal("car should still be docked")
	}
}

func TestCarHeightEstimate(t *testing.T) {
	tests := []struct {
		name    string
		from    Floor
		to      Floor
		elapsed time.Duration
		want    float64
	}{
		{"not yet a whole second", Floor{0, 0}, Floor{1, 40}, 900 * time.Millisecond, 0},
		{"truncated to whole seconds", Floor{0, 0}, Floor{1, 40}, 2500 * time.Millisecond, 2 * Speed},
		{"going down", Floor{1, 40}, Floor{0, 0}, 3 * time.Second, 40 - 3*Speed},
		{"capped at destination going up", Floor{0, 0}, Floor{1, 10}, time.Minute, 10},
		{"capped at destination going down", Floor{1, 40}, Floor{0, 30}, time.Minute, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newFakeClock()
			c := NewCar(common.CarInfo{ID: 1}, tt.from, clk.Now)
			c.Depart(tt.to)
			clk.Advance(tt.elapsed)
			if got := c.Height(); !almostEqual(got, tt.want) {
				t.Fatalf("Height = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCarOccupantsNeverNegative(t *testing.T) {
	c := NewCar(common.CarInfo{ID: 1, Occupants: 1}, Floor{}, nil)
	c.PersonEntered()
	c.PersonLeft()
	c.PersonLeft()
	c.PersonLeft()
	if c.Occupants != 0 {
		t.Fatalf("Occupants = %d, want 0", c.Occupants)
	}
}

func TestCarAbortReturnsToOrigin(t *testing.T) {
	c := NewCar(common.CarInfo{ID: 1}, Floor{ID: 2, Height: 8}, nil)
	c.Depart(Floor{ID: 6, Height: 24})
	c.Abort()
	if f, ok := c.DockedAt(); !ok || f.ID != 2 {
		t.Fatalf("DockedAt = %v, %v; want floor 2", f, ok)
	}
	c.Abort()
	if f, _ := c.DockedAt(); f.ID != 2 {
		t.Fatal("Abort on a docked car should do nothing")
	}
}
