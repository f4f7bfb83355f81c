package chart

import "sync"

// Slot owns the chart shown in one dashboard region. At most one chart is
// published at a time; replacing it releases the previous one.
type Slot struct {
	mu      sync.Mutex
	current *Chart
}

// Replace publishes c and releases the chart it displaces.
func (s *Slot) Replace(c *Chart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	s.current = c
	if old != nil && old != c {
		old.Release()
	}
}

// Current returns the published chart, or nil.
func (s *Slot) Current() *Chart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SVG returns the published chart's bytes. ok is false when the slot is empty.
func (s *Slot) SVG() (svg []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false, nil
	}
	svg, err = s.current.SVG()
	return svg, true, err
}

// Release releases the published chart and empties the slot.
func (s *Slot) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Release()
		s.current = nil
	}
}
