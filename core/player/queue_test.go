package player

import "testing"

func TestNewQueue(t *testing.T) {
	q := NewQueue()

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if _, ok := q.ActiveID(); ok {
		t.Error("ActiveID() should report absent for a new queue")
	}
}

func TestQueue_SetIDs(t *testing.T) {
	q := NewQueue()

	q.SetIDs([]string{"a", "b", "a"})

	if q.Len() != 3 {
		t.Errorf("Len() = %d, want 3 (duplicates are kept)", q.Len())
	}
	if _, ok := q.ActiveID(); ok {
		t.Error("SetIDs must not set an active track")
	}
}

func TestQueue_SetIDs_CopiesInput(t *testing.T) {
	q := NewQueue()
	ids := []string{"a", "b"}

	q.SetIDs(ids)
	ids[0] = "mutated"

	if got := q.IDs(); got[0] != "a" {
		t.Errorf("queue aliased caller slice: ids[0] = %q, want %q", got[0], "a")
	}
}

func TestQueue_SetIDs_ClearsStaleActive(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b"})
	if err := q.SetActive("b"); err != nil {
		t.Fatalf("SetActive(b) = %v", err)
	}

	q.SetIDs([]string{"c", "d"})

	if id, ok := q.ActiveID(); ok {
		t.Errorf("active id %q survived a wholesale replacement", id)
	}
}

func TestQueue_SetActive(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b", "c"})

	if err := q.SetActive("b"); err != nil {
		t.Fatalf("SetActive(b) = %v", err)
	}
	if id, ok := q.ActiveID(); !ok || id != "b" {
		t.Errorf("ActiveID() = %q, %v, want %q, true", id, ok, "b")
	}
}

func TestQueue_SetActive_NotQueued(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b"})

	if err := q.SetActive("z"); err != ErrNotQueued {
		t.Errorf("SetActive(z) = %v, want ErrNotQueued", err)
	}
	if _, ok := q.ActiveID(); ok {
		t.Error("rejected SetActive must not change the active track")
	}
}

func TestQueue_Next(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		active string
		want   string
	}{
		{"middle", []string{"a", "b", "c"}, "b", "c"},
		{"wraparound", []string{"a", "b", "c"}, "c", "a"},
		{"no active selects first", []string{"a", "b", "c"}, "", "a"},
		{"single track wraps to itself", []string{"a"}, "a", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			q.SetIDs(tt.ids)
			if tt.active != "" {
				if err := q.SetActive(tt.active); err != nil {
					t.Fatalf("SetActive(%s) = %v", tt.active, err)
				}
			}

			got, ok := q.Next()
			if !ok || got != tt.want {
				t.Errorf("Next() = %q, %v, want %q, true", got, ok, tt.want)
			}
			if id, _ := q.ActiveID(); id != tt.want {
				t.Errorf("ActiveID() = %q after Next, want %q", id, tt.want)
			}
		})
	}
}

func TestQueue_Previous(t *testing.T) {
	tests := []struct {
		name   string
		ids    []string
		active string
		want   string
	}{
		{"middle", []string{"a", "b", "c"}, "b", "a"},
		{"wraparound", []string{"a", "b", "c"}, "a", "c"},
		{"no active selects last", []string{"a", "b", "c"}, "", "c"},
		{"single track wraps to itself", []string{"a"}, "a", "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue()
			q.SetIDs(tt.ids)
			if tt.active != "" {
				if err := q.SetActive(tt.active); err != nil {
					t.Fatalf("SetActive(%s) = %v", tt.active, err)
				}
			}

			got, ok := q.Previous()
			if !ok || got != tt.want {
				t.Errorf("Previous() = %q, %v, want %q, true", got, ok, tt.want)
			}
		})
	}
}

func TestQueue_NextTwiceWrapsAround(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b", "c"})
	if err := q.SetActive("b"); err != nil {
		t.Fatalf("SetActive(b) = %v", err)
	}

	if got, _ := q.Next(); got != "c" {
		t.Errorf("first Next() = %q, want %q", got, "c")
	}
	if got, _ := q.Next(); got != "a" {
		t.Errorf("second Next() = %q, want %q (wraparound)", got, "a")
	}
}

func TestQueue_EmptyNoOps(t *testing.T) {
	q := NewQueue()

	if id, ok := q.Next(); ok || id != "" {
		t.Errorf("Next() on empty queue = %q, %v, want no-op", id, ok)
	}
	if id, ok := q.Previous(); ok || id != "" {
		t.Errorf("Previous() on empty queue = %q, %v, want no-op", id, ok)
	}
}

func TestQueue_Reset(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b"})
	if err := q.SetActive("a"); err != nil {
		t.Fatalf("SetActive(a) = %v", err)
	}

	q.Reset()
	q.Reset() // idempotent

	if q.Len() != 0 {
		t.Errorf("Len() = %d after Reset, want 0", q.Len())
	}
	if _, ok := q.ActiveID(); ok {
		t.Error("ActiveID() should report absent after Reset")
	}
}

func TestQueue_DuplicateIDsUseFirstOccurrence(t *testing.T) {
	q := NewQueue()
	q.SetIDs([]string{"a", "b", "a", "c"})
	if err := q.SetActive("a"); err != nil {
		t.Fatalf("SetActive(a) = %v", err)
	}

	// The first occurrence of "a" is index 0, so Next selects "b", not "c".
	if got, _ := q.Next(); got != "b" {
		t.Errorf("Next() = %q, want %q", got, "b")
	}
}
