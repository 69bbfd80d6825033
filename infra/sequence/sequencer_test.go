package sequence

import (
	"sync"
	"testing"
)

func TestNextIsUniqueAcrossGoroutines(t *testing.T) {
	s := New(10)
	var mu sync.Mutex
	seen := map[uint64]bool{}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v := s.Next()
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if len(seen) != 800 || s.Current() != 810 {
		t.Fatalf("expected 800 unique values ending at 810, got %d ending at %d", len(seen), s.Current())
	}
	if seen[10] {
		t.Error("the starting value must not be handed out")
	}
}

func TestReset(t *testing.T) {
	s := New(0)
	s.Next()
	s.Reset(41)
	if s.Next() != 42 {
		t.Error("expected 42 after reset to 41")
	}
}
