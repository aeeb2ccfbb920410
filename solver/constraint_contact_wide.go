// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/geometry"
)

// WideContactConstraint packs up to LaneWidth rigid-rigid contact
// constraints with pairwise-disjoint bodies into one lane-interleaved
// record. Unused lanes have zero points. AssembleContacts only puts
// manifolds into one record when their bodies are disjoint, so lanes
// cannot race on a body.
type WideContactConstraint struct {
	Dir      [LaneWidth]mgl64.Vec3
	Tangents [LaneWidth][2]mgl64.Vec3
	Im1, Im2 [LaneWidth]float64
	Friction [LaneWidth]float64
	MJ1, MJ2 [LaneWidth]int

	ManifoldID [LaneWidth]int
	NumPoints  [LaneWidth]int
	NumLanes   int

	Normal  [LaneWidth][geometry.MaxManifoldPoints]contactPart
	Tangent [LaneWidth][geometry.MaxManifoldPoints][2]contactPart
}

func (c *WideContactConstraint) lane(l int) ContactConstraint {

	return ContactConstraint{
		Dir:        c.Dir[l],
		Tangents:   c.Tangents[l],
		Im1:        c.Im1[l],
		Im2:        c.Im2[l],
		Friction:   c.Friction[l],
		MJ1:        c.MJ1[l],
		MJ2:        c.MJ2[l],
		ManifoldID: c.ManifoldID[l],
		NumPoints:  c.NumPoints[l],
		Normal:     c.Normal[l],
		Tangent:    c.Tangent[l],
	}
}

func (c *WideContactConstraint) storeLane(l int, s *ContactConstraint) {

	c.Normal[l] = s.Normal
	c.Tangent[l] = s.Tangent
}

// Warmstart applies the cached impulses of every lane.
func (c *WideContactConstraint) Warmstart(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Warmstart(vs)
	}
}

// Solve sweeps every lane. Lanes touch disjoint bodies, so the lane
// order does not affect the result.
func (c *WideContactConstraint) Solve(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Solve(vs)
		c.storeLane(l, &s)
	}
}

// RemoveBias strips the positional bias from every lane.
func (c *WideContactConstraint) RemoveBias() {

	for l := 0; l < c.NumLanes; l++ {
		for k := 0; k < c.NumPoints[l]; k++ {
			c.Normal[l][k].RHS = c.Normal[l][k].RHSWoBias
		}
	}
}

// Writeback persists every lane's impulses.
func (c *WideContactConstraint) Writeback(manifolds []*geometry.ContactManifold) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Writeback(manifolds)
	}
}

// WideContactGroundConstraint is the wide variant of the ground
// specialization. Each lane keeps its own flip state, so lanes with
// different flip states may share a record.
type WideContactGroundConstraint struct {
	Dir      [LaneWidth]mgl64.Vec3
	Tangents [LaneWidth][2]mgl64.Vec3
	Im2      [LaneWidth]float64
	Friction [LaneWidth]float64
	MJ2      [LaneWidth]int

	ManifoldID [LaneWidth]int
	Flipped    [LaneWidth]bool
	NumPoints  [LaneWidth]int
	NumLanes   int

	Normal  [LaneWidth][geometry.MaxManifoldPoints]contactPart
	Tangent [LaneWidth][geometry.MaxManifoldPoints][2]contactPart
}

func (c *WideContactGroundConstraint) lane(l int) ContactGroundConstraint {

	return ContactGroundConstraint{
		Dir:        c.Dir[l],
		Tangents:   c.Tangents[l],
		Im2:        c.Im2[l],
		Friction:   c.Friction[l],
		MJ2:        c.MJ2[l],
		ManifoldID: c.ManifoldID[l],
		Flipped:    c.Flipped[l],
		NumPoints:  c.NumPoints[l],
		Normal:     c.Normal[l],
		Tangent:    c.Tangent[l],
	}
}

func (c *WideContactGroundConstraint) storeLane(l int, s *ContactGroundConstraint) {

	c.Normal[l] = s.Normal
	c.Tangent[l] = s.Tangent
}

// Warmstart applies the cached impulses of every lane.
func (c *WideContactGroundConstraint) Warmstart(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Warmstart(vs)
	}
}

// Solve sweeps every lane.
func (c *WideContactGroundConstraint) Solve(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Solve(vs)
		c.storeLane(l, &s)
	}
}

// RemoveBias strips the positional bias from every lane.
func (c *WideContactGroundConstraint) RemoveBias() {

	for l := 0; l < c.NumLanes; l++ {
		for k := 0; k < c.NumPoints[l]; k++ {
			c.Normal[l][k].RHS = c.Normal[l][k].RHSWoBias
		}
	}
}

// Writeback persists every lane's impulses.
func (c *WideContactGroundConstraint) Writeback(manifolds []*geometry.ContactManifold) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Writeback(manifolds)
	}
}
