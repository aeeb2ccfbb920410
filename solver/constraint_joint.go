// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

// WritebackKind selects which cached impulse slot of a joint a
// constraint persists into.
type WritebackKind uint8

const (
	WritebackDof = WritebackKind(iota)
	WritebackLimit
	WritebackMotor
)

// WritebackId locates the cached impulse slot of one solver row.
type WritebackId struct {
	Kind WritebackKind
	Dof  joint.Axis
}

// JointConstraintAny is the dispatch interface over the joint
// constraint variants.
type JointConstraintAny interface {
	Warmstart(vs *VelocityState)
	Solve(vs *VelocityState)
	RemoveBias()
	Writeback(joints []*joint.ImpulseJoint)
}

// JointConstraint is a single scalar row of a rigid-rigid joint:
// one locked axis, limit or motor.
type JointConstraint struct {
	// World-space jacobians. The angular parts are premultiplied by
	// the square root of each body's world inverse inertia.
	Lin1, Lin2 mgl64.Vec3
	Ang1, Ang2 mgl64.Vec3
	Im1, Im2   float64

	InvLhs    float64
	RHS       float64
	RHSWoBias float64
	Impulse   float64
	Lo, Hi    float64

	MJ1, MJ2 int
	JointID  int
	WB       WritebackId
	Flipped  bool
}

func (c *JointConstraint) apply(vs *VelocityState, delta float64) {

	dv1 := &vs.MjLambdas[c.MJ1]
	dv2 := &vs.MjLambdas[c.MJ2]
	dv1.Linear = dv1.Linear.Add(c.Lin1.Mul(c.Im1 * delta))
	dv1.Angular = dv1.Angular.Add(c.Ang1.Mul(delta))
	dv2.Linear = dv2.Linear.Add(c.Lin2.Mul(c.Im2 * delta))
	dv2.Angular = dv2.Angular.Add(c.Ang2.Mul(delta))
}

// Warmstart applies the cached impulse before the first iteration.
func (c *JointConstraint) Warmstart(vs *VelocityState) {

	if c.Impulse != 0 {
		c.apply(vs, c.Impulse)
	}
}

// Solve performs one projected Gauss-Seidel update of the row.
func (c *JointConstraint) Solve(vs *VelocityState) {

	dv1 := vs.MjLambdas[c.MJ1]
	dv2 := vs.MjLambdas[c.MJ2]
	dv := c.Lin1.Dot(dv1.Linear) + c.Ang1.Dot(dv1.Angular) +
		c.Lin2.Dot(dv2.Linear) + c.Ang2.Dot(dv2.Angular)
	newImp := util.Clamp(c.Impulse+c.InvLhs*(c.RHS-dv), c.Lo, c.Hi)
	if delta := newImp - c.Impulse; delta != 0 {
		c.apply(vs, delta)
		c.Impulse = newImp
	}
}

// RemoveBias strips the anchor-error bias from the row.
func (c *JointConstraint) RemoveBias() {

	c.RHS = c.RHSWoBias
}

// Writeback persists the converged impulse into the joint cache.
func (c *JointConstraint) Writeback(joints []*joint.ImpulseJoint) {

	writebackImpulse(joints[c.JointID], c.WB, c.Impulse)
}

func writebackImpulse(j *joint.ImpulseJoint, wb WritebackId, impulse float64) {

	switch wb.Kind {
	case WritebackLimit:
		j.LimitImpulses[wb.Dof] = impulse
	case WritebackMotor:
		j.MotorImpulses[wb.Dof] = impulse
	default:
		j.Impulses[wb.Dof] = impulse
	}
}

// JointGroundConstraint is a joint row where exactly one side is
// non-dynamic. Only the dynamic side (always stored as body2) carries
// state; Flipped records whether the joint's bodies were swapped.
type JointGroundConstraint struct {
	Lin2 mgl64.Vec3
	Ang2 mgl64.Vec3
	Im2  float64

	InvLhs    float64
	RHS       float64
	RHSWoBias float64
	Impulse   float64
	Lo, Hi    float64

	MJ2     int
	JointID int
	WB      WritebackId
	Flipped bool
}

func (c *JointGroundConstraint) apply(vs *VelocityState, delta float64) {

	dv2 := &vs.MjLambdas[c.MJ2]
	dv2.Linear = dv2.Linear.Add(c.Lin2.Mul(c.Im2 * delta))
	dv2.Angular = dv2.Angular.Add(c.Ang2.Mul(delta))
}

// Warmstart applies the cached impulse before the first iteration.
func (c *JointGroundConstraint) Warmstart(vs *VelocityState) {

	if c.Impulse != 0 {
		c.apply(vs, c.Impulse)
	}
}

// Solve performs one projected Gauss-Seidel update of the row.
func (c *JointGroundConstraint) Solve(vs *VelocityState) {

	dv2 := vs.MjLambdas[c.MJ2]
	dv := c.Lin2.Dot(dv2.Linear) + c.Ang2.Dot(dv2.Angular)
	newImp := util.Clamp(c.Impulse+c.InvLhs*(c.RHS-dv), c.Lo, c.Hi)
	if delta := newImp - c.Impulse; delta != 0 {
		c.apply(vs, delta)
		c.Impulse = newImp
	}
}

// RemoveBias strips the anchor-error bias from the row.
func (c *JointGroundConstraint) RemoveBias() {

	c.RHS = c.RHSWoBias
}

// Writeback persists the converged impulse into the joint cache.
func (c *JointGroundConstraint) Writeback(joints []*joint.ImpulseJoint) {

	writebackImpulse(joints[c.JointID], c.WB, c.Impulse)
}
