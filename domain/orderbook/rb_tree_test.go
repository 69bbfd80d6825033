package orderbook

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/holiman/uint256"
)

func TestRBTreeOrderedAfterInsertAndDelete(t *testing.T) {
	tree := NewRBTree()
	rng := rand.New(rand.NewSource(42))
	present := map[uint64]bool{}

	for i := 0; i < 2_000; i++ {
		p := uint64(rng.Intn(500) + 1)
		if rng.Intn(3) == 0 {
			if tree.Delete(uint256.NewInt(p)) != present[p] {
				t.Fatalf("delete %d disagrees with model", p)
			}
			delete(present, p)
			continue
		}
		tree.GetOrCreate(uint256.NewInt(p))
		present[p] = true
	}

	var want []uint64
	for p := range present {
		want = append(want, p)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	if tree.Size() != len(want) {
		t.Fatalf("size: expected %d, got %d", len(want), tree.Size())
	}
	i := 0
	tree.ForEachAscending(func(l *PriceLevel) bool {
		if l.Price.Uint64() != want[i] {
			t.Fatalf("ascending[%d]: expected %d, got %d", i, want[i], l.Price.Uint64())
		}
		i++
		return true
	})
	i = len(want) - 1
	tree.ForEachDescending(func(l *PriceLevel) bool {
		if l.Price.Uint64() != want[i] {
			t.Fatalf("descending[%d]: expected %d, got %d", i, want[i], l.Price.Uint64())
		}
		i--
		return true
	})
}

func TestRBTreeNeighbours(t *testing.T) {
	tree := NewRBTree()
	for _, p := range []uint64{100, 200, 300} {
		tree.GetOrCreate(uint256.NewInt(p))
	}

	if l := tree.Successor(uint256.NewInt(100)); l == nil || l.Price.Uint64() != 200 {
		t.Error("successor of 100 should be 200")
	}
	if l := tree.Successor(uint256.NewInt(150)); l == nil || l.Price.Uint64() != 200 {
		t.Error("successor of 150 should be 200")
	}
	if l := tree.Predecessor(uint256.NewInt(100)); l != nil {
		t.Error("100 has no predecessor")
	}
	if l := tree.Successor(uint256.NewInt(300)); l != nil {
		t.Error("300 has no successor")
	}
	if tree.Min().Price.Uint64() != 100 || tree.Max().Price.Uint64() != 300 {
		t.Error("min/max wrong")
	}
	if tree.Find(uint256.NewInt(250)) != nil {
		t.Error("find should miss 250")
	}
}

func TestPriceLevelRemoveFromMiddle(t *testing.T) {
	lvl := &PriceLevel{}
	orders := make([]*Order, 3)
	for i := range orders {
		orders[i] = &Order{ID: uint64(i + 1)}
		orders[i].Quantity.SetUint64(10)
		lvl.Enqueue(orders[i])
	}

	lvl.Remove(orders[1])
	if lvl.Count != 2 || lvl.Volume.Uint64() != 20 {
		t.Errorf("expected 2 orders / 20 volume, got %d / %d", lvl.Count, lvl.Volume.Uint64())
	}
	if lvl.Head().next != orders[2] || orders[2].prev != orders[0] {
		t.Error("links not repaired")
	}
	lvl.Remove(orders[0])
	lvl.Remove(orders[2])
	if !lvl.Empty() || !lvl.Volume.IsZero() {
		t.Error("level should be empty")
	}
}
