package elevalgo

import (
	"math/rand"
	"slices"
	"testing"

	"elevdispatch/common"
)

type pos struct{ h float64 }

func (p *pos) Height() float64 { return p.h }

// floorsByID: floor n sits at height 4n.
func floorN(n int) Floor { return Floor{ID: n, Height: float64(4 * n)} }

func TestSchedulerClassifiesByDirection(t *testing.T) {
	tests := []struct {
		name          string
		height        float64
		down          bool
		add           []int
		wantPrimary   []int
		wantSecondary []int
	}{
		{"up, above and below", 20, false, []int{8, 2, 6, 1}, []int{6, 8}, []int{2, 1}},
		{"up, current floor goes behind", 20, false, []int{5}, []int{}, []int{5}},
		{"down, below and above", 20, true, []int{2, 8, 4, 7}, []int{4, 2}, []int{7, 8}},
		{"down, current floor goes behind", 20, true, []int{5}, []int{}, []int{5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(&pos{tt.height})
			if tt.down {
				s.dirn = common.DirDown
			}
			for _, n := range tt.add {
				s.Add(floorN(n))
			}
			if got := s.Primary(); !slices.Equal(got, tt.wantPrimary) {
				t.Errorf("Primary = %v, want %v", got, tt.wantPrimary)
			}
			if got := s.Secondary(); !slices.Equal(got, tt.wantSecondary) {
				t.Errorf("Secondary = %v, want %v", got, tt.wantSecondary)
			}
		})
	}
}

func TestSchedulerAddIsIdempotent(t *testing.T) {
	p := &pos{10}
	s := NewScheduler(p)
	if !s.Add(floorN(5)) {
		t.Fatal("first Add should queue the floor")
	}
	before := [2][]int{s.Primary(), s.Secondary()}

	if s.Add(floorN(5)) {
		t.Fatal("second Add should be a no-op")
	}
	// Still a no-op once the car has moved past the floor.
	p.h = 40
	if s.Add(floorN(5)) {
		t.Fatal("Add after moving should be a no-op")
	}
	after := [2][]int{s.Primary(), s.Secondary()}
	if !slices.Equal(before[0], after[0]) || !slices.Equal(before[1], after[1]) {
		t.Fatalf("state changed: %v -> %v", before, after)
	}
}

func TestSchedulerNextServesInDirectionOrder(t *testing.T) {
	s := NewScheduler(&pos{0})
	for _, n := range []int{7, 3, 5} {
		s.Add(floorN(n))
	}
	for _, want := range []int{3, 5, 7} {
		f, ok := s.Next()
		if !ok || f.ID != want {
			t.Fatalf("Next = %v, %v; want floor %d", f, ok, want)
		}
	}
	if s.Direction() != common.DirUp {
		t.Fatalf("Direction = %v, want up", s.Direction())
	}
}

// Heading up with only floors behind: turn around and serve the highest
// of them first.
func TestSchedulerReversesWhenPrimaryEmpty(t *testing.T) {
	p := &pos{60}
	s := NewScheduler(p)
	s.Add(Floor{ID: 5, Height: 20})
	s.Add(Floor{ID: 12, Height: 48})
	if len(s.Primary()) != 0 || !slices.Equal(sortedCopy(s.Secondary()), []int{5, 12}) {
		t.Fatalf("setup: primary %v secondary %v", s.Primary(), s.Secondary())
	}

	f, ok := s.Next()
	if !ok || f.ID != 12 {
		t.Fatalf("Next = %v, %v; want floor 12", f, ok)
	}
	if s.Direction() != common.DirDown {
		t.Fatalf("Direction = %v, want down", s.Direction())
	}
	if got := s.Primary(); !slices.Equal(got, []int{5}) {
		t.Fatalf("Primary = %v, want [5]", got)
	}
	if got := s.Secondary(); len(got) != 0 {
		t.Fatalf("Secondary = %v, want empty", got)
	}
}

func TestSchedulerNextEmptyReversesOnce(t *testing.T) {
	s := NewScheduler(&pos{0})
	if _, ok := s.Next(); ok {
		t.Fatal("Next on empty scheduler should report nothing")
	}
	if s.Direction() != common.DirDown {
		t.Fatalf("Direction = %v, want a single reversal to down", s.Direction())
	}
	if _, ok := s.Next(); ok {
		t.Fatal("still nothing")
	}
	if s.Direction() != common.DirUp {
		t.Fatalf("Direction = %v, want up after the second call", s.Direction())
	}
}

func TestSchedulerArrivedRemovesFromPrimaryOnly(t *testing.T) {
	s := NewScheduler(&pos{20})
	s.Add(floorN(8))
	s.Add(floorN(2))
	s.Arrived(8)
	s.Arrived(2)
	if got := s.Primary(); len(got) != 0 {
		t.Fatalf("Primary = %v, want empty", got)
	}
	if got := s.Secondary(); !slices.Equal(got, []int{2}) {
		t.Fatalf("Secondary = %v, want [2]", got)
	}
	s.Arrived(99)
}

// Random adds, moves and pops never put a floor in both queues and never
// lose one.
func TestSchedulerQueuesStayDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := &pos{0}
	s := NewScheduler(p)
	want := map[int]bool{}

	for i := 0; i < 2000; i++ {
		switch rng.Intn(3) {
		case 0, 1:
			n := rng.Intn(20)
			s.Add(floorN(n))
			want[n] = true
		case 2:
			f, ok := s.Next()
			if ok {
				if !want[f.ID] {
					t.Fatalf("Next returned floor %d that was never queued", f.ID)
				}
				delete(want, f.ID)
				p.h = f.Height
			} else if len(want) != 0 {
				t.Fatalf("Next found nothing with %d floors queued", len(want))
			}
		}

		primary, secondary := s.Primary(), s.Secondary()
		for _, id := range primary {
			if slices.Contains(secondary, id) {
				t.Fatalf("floor %d in both queues: %v / %v", id, primary, secondary)
			}
		}
		if len(primary)+len(secondary) != len(want) {
			t.Fatalf("queued %d floors, want %d", len(primary)+len(secondary), len(want))
		}
	}
}

func sortedCopy(in []int) []int {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}

func TestSchedulerRemove(t *testing.T) {
	s := NewScheduler(&pos{20})
	s.Add(floorN(8))
	s.Add(floorN(2))
	s.Remove(8)
	s.Remove(2)
	if s.Len() != 0 {
		t.Fatalf("Len = %d after removing everything", s.Len())
	}
}
