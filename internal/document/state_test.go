package document

import (
	"fmt"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	s := New("hello")
	content, rev := s.Snapshot()
	if content != "hello" {
		t.Errorf("content = %q, want %q", content, "hello")
	}
	if rev != 0 {
		t.Errorf("revision = %d, want 0", rev)
	}
}

func TestZeroValue(t *testing.T) {
	var s State
	if got := s.Get(); got != "" {
		t.Errorf("Get() = %q, want empty string", got)
	}
}

func TestSet_LastWriteWins(t *testing.T) {
	s := New("")

	updates := []string{"a", "ab", "", "final"}
	for i, u := range updates {
		rev := s.Set(u)
		if rev != uint64(i+1) {
			t.Errorf("Set(%q) revision = %d, want %d", u, rev, i+1)
		}
	}

	if got := s.Get(); got != "final" {
		t.Errorf("Get() = %q, want %q", got, "final")
	}
	if got := s.Revision(); got != uint64(len(updates)) {
		t.Errorf("Revision() = %d, want %d", got, len(updates))
	}
}

func TestSet_Concurrent(t *testing.T) {
	s := New("")

	const writers = 16
	const perWriter = 50

	valid := make(map[string]bool)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			valid[fmt.Sprintf("writer-%d-update-%d", w, i)] = true
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Set(fmt.Sprintf("writer-%d-update-%d", w, i))
				if got := s.Get(); !valid[got] {
					t.Errorf("Get() observed torn value %q", got)
				}
			}
		}(w)
	}
	wg.Wait()

	content, rev := s.Snapshot()
	if !valid[content] {
		t.Errorf("final content %q was never written", content)
	}
	if rev != writers*perWriter {
		t.Errorf("revision = %d, want %d", rev, writers*perWriter)
	}
}
