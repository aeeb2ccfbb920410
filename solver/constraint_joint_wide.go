// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/joint"
)

// WideJointConstraint packs up to LaneWidth rigid-rigid joint rows
// with pairwise-disjoint bodies and identical locked-axes masks into
// one lane-interleaved record. AssembleJoints never mixes masks in a
// group: a joint with a different mask closes the pending group and
// starts a new one, and a group left with one lane is emitted as
// scalar rows.
type WideJointConstraint struct {
	Lin1, Lin2 [LaneWidth]mgl64.Vec3
	Ang1, Ang2 [LaneWidth]mgl64.Vec3
	Im1, Im2   [LaneWidth]float64

	InvLhs    [LaneWidth]float64
	RHS       [LaneWidth]float64
	RHSWoBias [LaneWidth]float64
	Impulse   [LaneWidth]float64
	Lo, Hi    [LaneWidth]float64

	MJ1, MJ2 [LaneWidth]int
	JointID  [LaneWidth]int
	WB       [LaneWidth]WritebackId
	NumLanes int
}

func (c *WideJointConstraint) lane(l int) JointConstraint {

	return JointConstraint{
		Lin1: c.Lin1[l], Lin2: c.Lin2[l],
		Ang1: c.Ang1[l], Ang2: c.Ang2[l],
		Im1: c.Im1[l], Im2: c.Im2[l],
		InvLhs: c.InvLhs[l], RHS: c.RHS[l], RHSWoBias: c.RHSWoBias[l],
		Impulse: c.Impulse[l], Lo: c.Lo[l], Hi: c.Hi[l],
		MJ1: c.MJ1[l], MJ2: c.MJ2[l],
		JointID: c.JointID[l], WB: c.WB[l],
	}
}

// Warmstart applies the cached impulses of every lane.
func (c *WideJointConstraint) Warmstart(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Warmstart(vs)
	}
}

// Solve sweeps every lane. Lanes touch disjoint bodies.
func (c *WideJointConstraint) Solve(vs *VelocityState) {

	for l := 0; l < c.NumLanes; l++ {
		s := c.lane(l)
		s.Solve(vs)
		c.Impulse[l] = s.Impulse
	}
}

// RemoveBias strips the anchor-error bias from every lane.
func (c *WideJointConstraint) RemoveBias() {

	for l := 0; l < c.NumLanes; l++ {
		c.RHS[l] = c.RHSWoBias[l]
	}
}

// Writeback persists every lane's impulse.
func (c *WideJointConstraint) Writeback(joints []*joint.ImpulseJoint) {

	for l := 0; l < c.NumLanes; l++ {
		writebackImpulse(joints[c.JointID[l]], c.WB[l], c.Impulse[l])
	}
}
