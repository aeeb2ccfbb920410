// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

// genericSide is one participant of a generic constraint: either a
// plain rigid body solved through the per-body delta velocities, or a
// multibody link solved through the dense generic lambda vector.
type genericSide struct {
	Rigid bool

	// Rigid participant.
	MJ       int
	Im       float64
	Lin, Ang mgl64.Vec3

	// Multibody participant. The jacobian row lives at JID in the
	// shared buffer; the inverse-mass-weighted row at JID + NDofs.
	NDofs  int
	JID    int
	Solver int
}

func (s *genericSide) deltaVel(vs *VelocityState) float64 {

	if s.Rigid {
		if s.MJ < 0 {
			return 0
		}
		dv := vs.MjLambdas[s.MJ]
		return s.Lin.Dot(dv.Linear) + s.Ang.Dot(dv.Angular)
	}
	j := vs.Jac.Rows(s.JID, s.NDofs)
	sum := 0.0
	for d := 0; d < s.NDofs; d++ {
		sum += j[d] * vs.Generic[s.Solver+d]
	}
	return sum
}

func (s *genericSide) apply(vs *VelocityState, delta float64) {

	if s.Rigid {
		if s.MJ < 0 {
			return
		}
		dv := &vs.MjLambdas[s.MJ]
		dv.Linear = dv.Linear.Add(s.Lin.Mul(s.Im * delta))
		dv.Angular = dv.Angular.Add(s.Ang.Mul(delta))
		return
	}
	wj := vs.Jac.Rows(s.JID+s.NDofs, s.NDofs)
	for d := 0; d < s.NDofs; d++ {
		vs.Generic[s.Solver+d] += wj[d] * delta
	}
}

// GenericConstraint is a scalar joint row with at least one multibody
// participant.
type GenericConstraint struct {
	Side1 genericSide
	Side2 genericSide

	InvLhs    float64
	RHS       float64
	RHSWoBias float64
	Impulse   float64
	Lo, Hi    float64

	JointID int
	WB      WritebackId
}

// Warmstart applies the cached impulse before the first iteration.
func (c *GenericConstraint) Warmstart(vs *VelocityState) {

	if c.Impulse != 0 {
		c.Side1.apply(vs, c.Impulse)
		c.Side2.apply(vs, c.Impulse)
	}
}

// Solve performs one projected Gauss-Seidel update of the row.
func (c *GenericConstraint) Solve(vs *VelocityState) {

	dv := c.Side1.deltaVel(vs) + c.Side2.deltaVel(vs)
	newImp := util.Clamp(c.Impulse+c.InvLhs*(c.RHS-dv), c.Lo, c.Hi)
	if delta := newImp - c.Impulse; delta != 0 {
		c.Side1.apply(vs, delta)
		c.Side2.apply(vs, delta)
		c.Impulse = newImp
	}
}

// RemoveBias strips the anchor-error bias from the row.
func (c *GenericConstraint) RemoveBias() {

	c.RHS = c.RHSWoBias
}

// Writeback persists the converged impulse. Rows emitted by unit
// multibody joints carry no impulse joint and skip the cache.
func (c *GenericConstraint) Writeback(joints []*joint.ImpulseJoint) {

	if c.JointID >= 0 {
		writebackImpulse(joints[c.JointID], c.WB, c.Impulse)
	}
}

// GenericGroundConstraint is a generic row with a single multibody
// participant: the other side is non-dynamic or absent. Unit limit and
// motor constraints of multibody joints take this form.
type GenericGroundConstraint struct {
	Side2 genericSide

	InvLhs    float64
	RHS       float64
	RHSWoBias float64
	Impulse   float64
	Lo, Hi    float64

	JointID int
	WB      WritebackId
}

// Warmstart applies the cached impulse before the first iteration.
func (c *GenericGroundConstraint) Warmstart(vs *VelocityState) {

	if c.Impulse != 0 {
		c.Side2.apply(vs, c.Impulse)
	}
}

// Solve performs one projected Gauss-Seidel update of the row.
func (c *GenericGroundConstraint) Solve(vs *VelocityState) {

	dv := c.Side2.deltaVel(vs)
	newImp := util.Clamp(c.Impulse+c.InvLhs*(c.RHS-dv), c.Lo, c.Hi)
	if delta := newImp - c.Impulse; delta != 0 {
		c.Side2.apply(vs, delta)
		c.Impulse = newImp
	}
}

// RemoveBias strips the bias from the row.
func (c *GenericGroundConstraint) RemoveBias() {

	c.RHS = c.RHSWoBias
}

// Writeback persists the converged impulse when an impulse joint owns
// the row.
func (c *GenericGroundConstraint) Writeback(joints []*joint.ImpulseJoint) {

	if c.JointID >= 0 {
		writebackImpulse(joints[c.JointID], c.WB, c.Impulse)
	}
}
