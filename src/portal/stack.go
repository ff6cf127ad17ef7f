package portal

import "sync"

// Stack is an explicit stack of active portals, owned by the caller's
// execution context. It replaces ambient process-wide registries: code that
// needs "the current portal" receives a Stack by reference instead of
// reaching into global state.
type Stack struct {
	sync.Mutex
	items []*Portal
}

// NewStack ...
func NewStack() *Stack {
	return &Stack{}
}

// Push makes p the current portal.
func (s *Stack) Push(p *Portal) {
	s.Lock()
	defer s.Unlock()

	s.items = append(s.items, p)
}

// Pop removes and returns the current portal, or nil if the stack is empty.
func (s *Stack) Pop() *Portal {
	s.Lock()
	defer s.Unlock()

	if len(s.items) == 0 {
		return nil
	}

	p := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]

	return p
}

// Current returns the portal on top of the stack, or nil if the stack is
// empty.
func (s *Stack) Current() *Portal {
	s.Lock()
	defer s.Unlock()

	if len(s.items) == 0 {
		return nil
	}

	return s.items[len(s.items)-1]
}

// Depth returns the number of portals on the stack.
func (s *Stack) Depth() int {
	s.Lock()
	defer s.Unlock()

	return len(s.items)
}

// With runs fn with p as the current portal, popping it when fn returns.
func (s *Stack) With(p *Portal, fn func(p *Portal) error) error {
	s.Push(p)
	defer s.Pop()

	return fn(p)
}
