// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

// Interaction is one contact manifold or joint considered by the
// colour grouper. MJ1/MJ2 are the active-set offsets of its dynamic
// sides, or -1 for non-dynamic sides.
type Interaction struct {
	Index int
	MJ1   int
	MJ2   int
	// Generic interactions (multibody participants) cannot be
	// coloured against per-body offsets; they all go into dedicated
	// sequential groups.
	Generic bool
}

// InteractionGroups partitions interactions into colour groups: no two
// interactions within one group share a dynamic body, so one group can
// be swept by many workers without write conflicts on the delta
// velocities.
type InteractionGroups struct {
	// Groups holds interaction indices; group g spans
	// Groups[Offsets[g]:Offsets[g+1]].
	Groups  []int
	Offsets []int
	// HasGeneric reports whether the trailing group holds generic
	// interactions, which must be swept sequentially.
	HasGeneric bool
}

// NumGroups returns the number of colour groups.
func (g *InteractionGroups) NumGroups() int {

	if len(g.Offsets) == 0 {
		return 0
	}
	return len(g.Offsets) - 1
}

// Group returns the interaction indices of colour group i.
func (g *InteractionGroups) Group(i int) []int {

	return g.Groups[g.Offsets[i]:g.Offsets[i+1]]
}

// GroupInteractions runs a greedy first-fit colouring, preserving the
// canonical interaction order inside each group. Generic interactions
// are appended as one trailing group solved without intra-group
// parallelism.
func (g *InteractionGroups) GroupInteractions(interactions []Interaction) {

	g.Groups = g.Groups[:0]
	g.Offsets = g.Offsets[:0]
	g.HasGeneric = false

	var colours [][]int
	var occupied []map[int]bool
	var generics []int

	for _, it := range interactions {
		if it.Generic {
			generics = append(generics, it.Index)
			continue
		}
		placed := false
		for c := range colours {
			if (it.MJ1 >= 0 && occupied[c][it.MJ1]) ||
				(it.MJ2 >= 0 && occupied[c][it.MJ2]) {
				continue
			}
			colours[c] = append(colours[c], it.Index)
			if it.MJ1 >= 0 {
				occupied[c][it.MJ1] = true
			}
			if it.MJ2 >= 0 {
				occupied[c][it.MJ2] = true
			}
			placed = true
			break
		}
		if !placed {
			m := map[int]bool{}
			if it.MJ1 >= 0 {
				m[it.MJ1] = true
			}
			if it.MJ2 >= 0 {
				m[it.MJ2] = true
			}
			colours = append(colours, []int{it.Index})
			occupied = append(occupied, m)
		}
	}

	g.Offsets = append(g.Offsets, 0)
	for _, c := range colours {
		g.Groups = append(g.Groups, c...)
		g.Offsets = append(g.Offsets, len(g.Groups))
	}
	if len(generics) > 0 {
		g.Groups = append(g.Groups, generics...)
		g.Offsets = append(g.Offsets, len(g.Groups))
		g.HasGeneric = true
	}
}
