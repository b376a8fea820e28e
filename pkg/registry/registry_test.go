package registry

import (
	"fmt"
	"sync"
	"testing"
)

func TestBaseRegistry_RegisterAndGet(t *testing.T) {
	r := NewBaseRegistry[int]()

	if err := r.Register("one", 1); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, ok := r.Get("one")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != 1 {
		t.Errorf("Get() = %d, want 1", got)
	}
}

func TestBaseRegistry_RegisterEmptyName(t *testing.T) {
	r := NewBaseRegistry[string]()
	if err := r.Register("", "x"); err == nil {
		t.Error("Register() with empty name should fail")
	}
}

func TestBaseRegistry_RegisterDuplicate(t *testing.T) {
	r := NewBaseRegistry[string]()
	if err := r.Register("a", "first"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register("a", "second"); err == nil {
		t.Error("Register() duplicate should fail")
	}
}

func TestBaseRegistry_Replace(t *testing.T) {
	r := NewBaseRegistry[string]()
	if err := r.Register("a", "first"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Replace("a", "second"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	got, _ := r.Get("a")
	if got != "second" {
		t.Errorf("Get() after Replace = %q, want %q", got, "second")
	}
}

func TestBaseRegistry_Names(t *testing.T) {
	r := NewBaseRegistry[int]()
	for i, name := range []string{"charlie", "alpha", "bravo"} {
		if err := r.Register(name, i); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("Names() len = %d, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestBaseRegistry_RemoveAndCount(t *testing.T) {
	r := NewBaseRegistry[int]()
	_ = r.Register("a", 1)
	_ = r.Register("b", 2)

	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	if err := r.Remove("a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := r.Remove("a"); err == nil {
		t.Error("Remove() of missing item should fail")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}

	r.Clear()
	if r.Count() != 0 {
		t.Errorf("Count() after Clear = %d, want 0", r.Count())
	}
}

func TestBaseRegistry_ConcurrentAccess(t *testing.T) {
	r := NewBaseRegistry[int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("item-%d", n), n)
			r.Get(fmt.Sprintf("item-%d", n))
			r.List()
		}(i)
	}
	wg.Wait()

	if r.Count() != 50 {
		t.Errorf("Count() = %d, want 50", r.Count())
	}
}
