// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arena implements a slotted arena keyed by generational
// handles. Removing an element bumps its slot generation so stale
// handles fail lookups instead of aliasing a newer element.
package arena

// Handle identifies an element in an arena. The zero Handle is invalid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsValid reports whether the handle could ever address an element.
func (h Handle) IsValid() bool {

	return h.Generation != 0
}

type slot struct {
	generation uint32
	occupied   bool
	value      interface{}
}

// Arena is a generational slotted arena. Free slots are recycled in
// LIFO order, matching the removal order.
type Arena struct {
	slots []slot
	free  []uint32
	count int
}

// New creates and returns a pointer to a new empty Arena.
func New() *Arena {

	return new(Arena)
}

// Len returns the number of live elements.
func (a *Arena) Len() int {

	return a.count
}

// Cap returns the number of allocated slots, live or free.
func (a *Arena) Cap() int {

	return len(a.slots)
}

// Insert stores value and returns its handle.
func (a *Arena) Insert(value interface{}) Handle {

	a.count++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.occupied = true
		s.value = value
		return Handle{Index: idx, Generation: s.generation}
	}
	a.slots = append(a.slots, slot{generation: 1, occupied: true, value: value})
	return Handle{Index: uint32(len(a.slots) - 1), Generation: 1}
}

// Get returns the element addressed by h, or nil if h is stale or was
// never valid.
func (a *Arena) Get(h Handle) interface{} {

	if int(h.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil
	}
	return s.value
}

// Contains reports whether h addresses a live element.
func (a *Arena) Contains(h Handle) bool {

	if int(h.Index) >= len(a.slots) {
		return false
	}
	s := &a.slots[h.Index]
	return s.occupied && s.generation == h.Generation
}

// Remove deletes the element addressed by h and returns it.
// Returns nil if the handle is stale.
func (a *Arena) Remove(h Handle) interface{} {

	if int(h.Index) >= len(a.slots) {
		return nil
	}
	s := &a.slots[h.Index]
	if !s.occupied || s.generation != h.Generation {
		return nil
	}
	v := s.value
	s.value = nil
	s.occupied = false
	s.generation++
	a.free = append(a.free, h.Index)
	a.count--
	return v
}

// Each calls fn for every live element, in slot order.
// Returning false from fn stops the iteration.
func (a *Arena) Each(fn func(h Handle, value interface{}) bool) {

	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
