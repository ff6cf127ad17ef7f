package portal

import (
	"testing"
)

func TestStack(t *testing.T) {
	s := NewStack()

	if s.Current() != nil {
		t.Fatal("empty stack should have no current portal")
	}
	if s.Pop() != nil {
		t.Fatal("popping an empty stack should return nil")
	}

	p1 := newTestPortal(t)
	defer p1.Close()
	p2 := newTestPortal(t)
	defer p2.Close()

	s.Push(p1)
	s.Push(p2)

	if s.Depth() != 2 {
		t.Fatalf("bad depth: %d", s.Depth())
	}
	if s.Current() != p2 {
		t.Fatal("p2 should be current")
	}

	if s.Pop() != p2 {
		t.Fatal("pop should return p2")
	}
	if s.Current() != p1 {
		t.Fatal("p1 should be current")
	}
}

func TestStackWith(t *testing.T) {
	s := NewStack()

	p := newTestPortal(t)
	defer p.Close()

	err := s.With(p, func(current *Portal) error {
		if s.Current() != current {
			t.Fatal("portal should be current inside With")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if s.Depth() != 0 {
		t.Fatal("With should pop on return")
	}
}
