// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/util"
)

// ContactConstraintAny is the dispatch interface over the contact
// constraint variants (scalar/wide, rigid-rigid/ground).
type ContactConstraintAny interface {
	Warmstart(vs *VelocityState)
	Solve(vs *VelocityState)
	RemoveBias()
	Writeback(manifolds []*geometry.ContactManifold)
}

// contactPart is one scalar row of a contact constraint: the normal
// row or one of the two tangent rows of a contact point.
type contactPart struct {
	// Torque direction per unit impulse, premultiplied by the square
	// root of each body's world inverse inertia.
	TorqueDir1 mgl64.Vec3
	TorqueDir2 mgl64.Vec3
	RHS        float64
	RHSWoBias  float64
	Impulse    float64
	InvLhs     float64
}

// ContactConstraint is a single-lane rigid-rigid contact constraint
// covering all points of one manifold.
type ContactConstraint struct {
	Dir      mgl64.Vec3
	Tangents [2]mgl64.Vec3
	Im1, Im2 float64
	Friction float64
	MJ1, MJ2 int
	// ManifoldID is the writeback id: the manifold index inside the
	// island's manifold list.
	ManifoldID int
	NumPoints  int
	Normal     [geometry.MaxManifoldPoints]contactPart
	Tangent    [geometry.MaxManifoldPoints][2]contactPart
}

func (c *ContactConstraint) applyNormal(vs *VelocityState, k int, delta float64) {

	p := &c.Normal[k]
	dv1 := &vs.MjLambdas[c.MJ1]
	dv2 := &vs.MjLambdas[c.MJ2]
	dv1.Linear = dv1.Linear.Sub(c.Dir.Mul(c.Im1 * delta))
	dv1.Angular = dv1.Angular.Sub(p.TorqueDir1.Mul(delta))
	dv2.Linear = dv2.Linear.Add(c.Dir.Mul(c.Im2 * delta))
	dv2.Angular = dv2.Angular.Add(p.TorqueDir2.Mul(delta))
}

func (c *ContactConstraint) applyTangent(vs *VelocityState, k, t int, delta float64) {

	p := &c.Tangent[k][t]
	dir := c.Tangents[t]
	dv1 := &vs.MjLambdas[c.MJ1]
	dv2 := &vs.MjLambdas[c.MJ2]
	dv1.Linear = dv1.Linear.Sub(dir.Mul(c.Im1 * delta))
	dv1.Angular = dv1.Angular.Sub(p.TorqueDir1.Mul(delta))
	dv2.Linear = dv2.Linear.Add(dir.Mul(c.Im2 * delta))
	dv2.Angular = dv2.Angular.Add(p.TorqueDir2.Mul(delta))
}

func (c *ContactConstraint) deltaVel(vs *VelocityState, dir mgl64.Vec3, p *contactPart) float64 {

	dv1 := vs.MjLambdas[c.MJ1]
	dv2 := vs.MjLambdas[c.MJ2]
	return dir.Dot(dv2.Linear) + p.TorqueDir2.Dot(dv2.Angular) -
		dir.Dot(dv1.Linear) - p.TorqueDir1.Dot(dv1.Angular)
}

// Warmstart applies the cached impulses to the delta velocities before
// the first iteration.
func (c *ContactConstraint) Warmstart(vs *VelocityState) {

	for k := 0; k < c.NumPoints; k++ {
		if imp := c.Normal[k].Impulse; imp != 0 {
			c.applyNormal(vs, k, imp)
		}
		for t := 0; t < 2; t++ {
			if imp := c.Tangent[k][t].Impulse; imp != 0 {
				c.applyTangent(vs, k, t, imp)
			}
		}
	}
}

// Solve performs one projected Gauss-Seidel update of every row of the
// constraint. Friction rows are re-projected against the normal
// impulse updated in the same pass.
func (c *ContactConstraint) Solve(vs *VelocityState) {

	for k := 0; k < c.NumPoints; k++ {
		n := &c.Normal[k]
		dv := c.deltaVel(vs, c.Dir, n)
		newImp := n.Impulse + n.InvLhs*(n.RHS-dv)
		if newImp < 0 {
			newImp = 0
		}
		if delta := newImp - n.Impulse; delta != 0 {
			c.applyNormal(vs, k, delta)
			n.Impulse = newImp
		}

		limit := c.Friction * n.Impulse
		for t := 0; t < 2; t++ {
			f := &c.Tangent[k][t]
			dv := c.deltaVel(vs, c.Tangents[t], f)
			newImp := util.Clamp(f.Impulse+f.InvLhs*(f.RHS-dv), -limit, limit)
			if delta := newImp - f.Impulse; delta != 0 {
				c.applyTangent(vs, k, t, delta)
				f.Impulse = newImp
			}
		}
	}
}

// RemoveBias strips the positional stabilization bias from the normal
// rows, leaving only the restitution target.
func (c *ContactConstraint) RemoveBias() {

	for k := 0; k < c.NumPoints; k++ {
		c.Normal[k].RHS = c.Normal[k].RHSWoBias
	}
}

// Writeback persists the converged impulses into the manifold for the
// next step's warm start.
func (c *ContactConstraint) Writeback(manifolds []*geometry.ContactManifold) {

	m := manifolds[c.ManifoldID]
	for k := 0; k < c.NumPoints && k < len(m.Points); k++ {
		m.Points[k].NormalImpulse = c.Normal[k].Impulse
		m.Points[k].TangentImpulses[0] = c.Tangent[k][0].Impulse
		m.Points[k].TangentImpulses[1] = c.Tangent[k][1].Impulse
	}
}

// ContactGroundConstraint is a single-lane contact constraint where
// exactly one side is non-dynamic. Storage and updates for the static
// side are omitted; Flipped records whether the manifold had the
// dynamic body first so the writeback stays consistent.
type ContactGroundConstraint struct {
	Dir      mgl64.Vec3
	Tangents [2]mgl64.Vec3
	Im2      float64
	Friction float64
	MJ2      int
	// ManifoldID is the writeback id of the manifold.
	ManifoldID int
	Flipped    bool
	NumPoints  int
	Normal     [geometry.MaxManifoldPoints]contactPart
	Tangent    [geometry.MaxManifoldPoints][2]contactPart
}

func (c *ContactGroundConstraint) apply(vs *VelocityState, dir mgl64.Vec3, p *contactPart, delta float64) {

	dv2 := &vs.MjLambdas[c.MJ2]
	dv2.Linear = dv2.Linear.Add(dir.Mul(c.Im2 * delta))
	dv2.Angular = dv2.Angular.Add(p.TorqueDir2.Mul(delta))
}

func (c *ContactGroundConstraint) deltaVel(vs *VelocityState, dir mgl64.Vec3, p *contactPart) float64 {

	dv2 := vs.MjLambdas[c.MJ2]
	return dir.Dot(dv2.Linear) + p.TorqueDir2.Dot(dv2.Angular)
}

// Warmstart applies the cached impulses before the first iteration.
func (c *ContactGroundConstraint) Warmstart(vs *VelocityState) {

	for k := 0; k < c.NumPoints; k++ {
		if imp := c.Normal[k].Impulse; imp != 0 {
			c.apply(vs, c.Dir, &c.Normal[k], imp)
		}
		for t := 0; t < 2; t++ {
			if imp := c.Tangent[k][t].Impulse; imp != 0 {
				c.apply(vs, c.Tangents[t], &c.Tangent[k][t], imp)
			}
		}
	}
}

// Solve performs one projected Gauss-Seidel update of every row.
func (c *ContactGroundConstraint) Solve(vs *VelocityState) {

	for k := 0; k < c.NumPoints; k++ {
		n := &c.Normal[k]
		dv := c.deltaVel(vs, c.Dir, n)
		newImp := n.Impulse + n.InvLhs*(n.RHS-dv)
		if newImp < 0 {
			newImp = 0
		}
		if delta := newImp - n.Impulse; delta != 0 {
			c.apply(vs, c.Dir, n, delta)
			n.Impulse = newImp
		}

		limit := c.Friction * n.Impulse
		for t := 0; t < 2; t++ {
			f := &c.Tangent[k][t]
			dv := c.deltaVel(vs, c.Tangents[t], f)
			newImp := util.Clamp(f.Impulse+f.InvLhs*(f.RHS-dv), -limit, limit)
			if delta := newImp - f.Impulse; delta != 0 {
				c.apply(vs, c.Tangents[t], f, delta)
				f.Impulse = newImp
			}
		}
	}
}

// RemoveBias strips the positional stabilization bias.
func (c *ContactGroundConstraint) RemoveBias() {

	for k := 0; k < c.NumPoints; k++ {
		c.Normal[k].RHS = c.Normal[k].RHSWoBias
	}
}

// Writeback persists the converged impulses into the manifold.
func (c *ContactGroundConstraint) Writeback(manifolds []*geometry.ContactManifold) {

	m := manifolds[c.ManifoldID]
	for k := 0; k < c.NumPoints && k < len(m.Points); k++ {
		m.Points[k].NormalImpulse = c.Normal[k].Impulse
		m.Points[k].TangentImpulses[0] = c.Tangent[k][0].Impulse
		m.Points[k].TangentImpulses[1] = c.Tangent[k][1].Impulse
	}
}
