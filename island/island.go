// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package island partitions awake dynamic bodies into independent
// solver islands: maximal connected components of the interaction
// graph whose edges are contacts and joints. Islands never share
// mutable state within a step, so each can be solved in isolation.
package island

import (
	"github.com/g3n/dynamics/body"
)

// Sleep hysteresis defaults. A body whose pseudo kinetic energy stays
// below the threshold for SleepDelay consecutive steps becomes sleepy;
// an island where every member is sleepy goes dormant.
const (
	DefaultSleepEnergyThreshold = 0.01 // (0.1)^2, speed-limit squared
	DefaultSleepDelay           = 60
)

// Manager maintains the active dynamic set, the disjoint-set forest
// over it and the resulting island ranges.
type Manager struct {
	SleepEnergyThreshold float64
	SleepDelay           int

	// Exclude filters dynamic bodies out of the active set. The
	// driver uses it for multibody links, whose motion is owned by
	// their multibody rather than the island integrator.
	Exclude func(h body.Handle) bool

	activeSet []body.Handle
	// Union-find over active set offsets.
	parent []int
	rank   []int
	// Prefix offsets into activeSet: island i spans
	// activeSet[ranges[i]:ranges[i+1]].
	ranges []int

	bodies *body.Set
}

// NewManager creates and returns a pointer to a new island Manager
// operating on the given body set.
func NewManager(bodies *body.Set) *Manager {

	m := new(Manager)
	m.SleepEnergyThreshold = DefaultSleepEnergyThreshold
	m.SleepDelay = DefaultSleepDelay
	m.bodies = bodies
	return m
}

// ActiveDynamicSet returns the awake dynamic bodies, ordered so each
// island is a contiguous range.
func (m *Manager) ActiveDynamicSet() []body.Handle {

	return m.activeSet
}

// NumIslands returns the number of active islands.
func (m *Manager) NumIslands() int {

	if len(m.ranges) == 0 {
		return 0
	}
	return len(m.ranges) - 1
}

// ActiveIslandRange returns the half-open range of island i inside the
// active dynamic set.
func (m *Manager) ActiveIslandRange(i int) (int, int) {

	return m.ranges[i], m.ranges[i+1]
}

// ActiveIsland returns the bodies of island i.
func (m *Manager) ActiveIsland(i int) []body.Handle {

	return m.activeSet[m.ranges[i]:m.ranges[i+1]]
}

// Wake forces a body awake, resetting its sleep hysteresis. Sleeping
// neighbours joined to it by an edge are woken on the next Update
// because edges touching an awake body propagate wakefulness.
func (m *Manager) Wake(h body.Handle) {

	if !m.bodies.Contains(h) {
		return
	}
	act := m.bodies.Activation(h.Index)
	act.State = body.Awake
	act.SleepyCounter = 0
}

// Sleep forces a body asleep regardless of its energy. Advisory: any
// impulse or new constraint wakes it again.
func (m *Manager) Sleep(h body.Handle) {

	if !m.bodies.Contains(h) {
		return
	}
	act := m.bodies.Activation(h.Index)
	act.State = body.Sleeping
	act.SleepyCounter = 0
	*m.bodies.Velocity(h.Index) = body.Velocity{}
}

func (m *Manager) find(i int) int {

	for m.parent[i] != i {
		m.parent[i] = m.parent[m.parent[i]]
		i = m.parent[i]
	}
	return i
}

func (m *Manager) union(a, b int) {

	ra, rb := m.find(a), m.find(b)
	if ra == rb {
		return
	}
	if m.rank[ra] < m.rank[rb] {
		ra, rb = rb, ra
	}
	m.parent[rb] = ra
	if m.rank[ra] == m.rank[rb] {
		m.rank[ra]++
	}
}

// Edge is an interaction between two bodies. Non-dynamic and absent
// sides use an invalid handle.
type Edge struct {
	Body1 body.Handle
	Body2 body.Handle
}

// Update rebuilds the active set and the islands from the current
// interaction edges. An edge touching one awake and one sleeping
// dynamic body wakes the sleeping side before partitioning.
func (m *Manager) Update(edges []Edge) {

	// Wake propagation across edges. Repeats until stable so chains of
	// sleeping bodies wake through their awake end.
	for changed := true; changed; {
		changed = false
		for _, e := range edges {
			a1, ok1 := m.activationOf(e.Body1)
			a2, ok2 := m.activationOf(e.Body2)
			if !ok1 || !ok2 {
				continue
			}
			if a1.State != body.Sleeping && a2.State == body.Sleeping {
				a2.State = body.Awake
				a2.SleepyCounter = 0
				changed = true
			}
			if a2.State != body.Sleeping && a1.State == body.Sleeping {
				a1.State = body.Awake
				a1.SleepyCounter = 0
				changed = true
			}
		}
	}

	// Collect the active dynamic set.
	m.activeSet = m.activeSet[:0]
	m.bodies.Each(func(h body.Handle) {
		if !m.bodies.Type(h.Index).IsDynamic() {
			return
		}
		if m.Exclude != nil && m.Exclude(h) {
			ids := m.bodies.Ids(h.Index)
			ids.ActiveSetOffset = -1
			ids.IslandID = -1
			return
		}
		act := m.bodies.Activation(h.Index)
		ids := m.bodies.Ids(h.Index)
		if act.State == body.Sleeping {
			ids.ActiveSetOffset = -1
			ids.IslandID = -1
			return
		}
		ids.ActiveSetOffset = len(m.activeSet)
		m.activeSet = append(m.activeSet, h)
	})

	n := len(m.activeSet)
	m.parent = resizeInts(m.parent, n)
	m.rank = resizeInts(m.rank, n)
	for i := 0; i < n; i++ {
		m.parent[i] = i
		m.rank[i] = 0
	}

	for _, e := range edges {
		m.MergeOnEdge(e.Body1, e.Body2)
	}

	m.buildRanges()
}

func (m *Manager) activationOf(h body.Handle) (*body.Activation, bool) {

	if !m.bodies.Contains(h) || !m.bodies.Type(h.Index).IsDynamic() {
		return nil, false
	}
	return m.bodies.Activation(h.Index), true
}

// MergeOnEdge unions the islands of two bodies. Edges with a
// non-dynamic or sleeping side do not union.
func (m *Manager) MergeOnEdge(b1, b2 body.Handle) {

	o1 := m.activeOffset(b1)
	o2 := m.activeOffset(b2)
	if o1 < 0 || o2 < 0 {
		return
	}
	m.union(o1, o2)
}

func (m *Manager) activeOffset(h body.Handle) int {

	if !m.bodies.Contains(h) || !m.bodies.Type(h.Index).IsDynamic() {
		return -1
	}
	if m.bodies.Activation(h.Index).State == body.Sleeping {
		return -1
	}
	return m.bodies.Ids(h.Index).ActiveSetOffset
}

// buildRanges reorders the active set so each island occupies a
// contiguous range, and refreshes every body's solver ids. Bodies keep
// a stable order inside their island (sorted by previous offset), so
// constraint assembly order is deterministic.
func (m *Manager) buildRanges() {

	n := len(m.activeSet)
	m.ranges = m.ranges[:0]
	if n == 0 {
		return
	}

	// Map each root to an island id in order of first appearance.
	islandOf := make(map[int]int)
	sizes := []int{}
	rootOf := make([]int, n)
	for i := 0; i < n; i++ {
		r := m.find(i)
		rootOf[i] = r
		id, ok := islandOf[r]
		if !ok {
			id = len(sizes)
			islandOf[r] = id
			sizes = append(sizes, 0)
		}
		sizes[id]++
	}

	// Prefix offsets.
	m.ranges = append(m.ranges, 0)
	for _, sz := range sizes {
		m.ranges = append(m.ranges, m.ranges[len(m.ranges)-1]+sz)
	}

	// Stable counting sort of bodies into island slots.
	cursor := append([]int(nil), m.ranges[:len(sizes)]...)
	sorted := make([]body.Handle, n)
	for i := 0; i < n; i++ {
		id := islandOf[rootOf[i]]
		sorted[cursor[id]] = m.activeSet[i]
		cursor[id]++
	}
	m.activeSet = sorted

	for island := 0; island < len(sizes); island++ {
		for off := m.ranges[island]; off < m.ranges[island+1]; off++ {
			h := m.activeSet[off]
			ids := m.bodies.Ids(h.Index)
			ids.ActiveSetOffset = off
			ids.IslandID = island
		}
	}
}

// UpdateSleep advances the sleep hysteresis after a step. Islands
// where every member stayed below the energy threshold for SleepDelay
// steps go dormant together.
func (m *Manager) UpdateSleep() {

	for island := 0; island < m.NumIslands(); island++ {
		members := m.ActiveIsland(island)
		allSleepy := len(members) > 0
		for _, h := range members {
			act := m.bodies.Activation(h.Index)
			if !act.CanSleep {
				allSleepy = false
				continue
			}
			if m.bodies.Velocity(h.Index).PseudoKineticEnergy() < m.SleepEnergyThreshold {
				act.SleepyCounter++
			} else {
				act.SleepyCounter = 0
				act.State = body.Awake
			}
			if act.SleepyCounter >= m.SleepDelay {
				act.State = body.Sleepy
			} else {
				allSleepy = false
			}
		}
		if allSleepy {
			for _, h := range members {
				m.Sleep(h)
			}
		}
	}
}

func resizeInts(s []int, n int) []int {

	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}
