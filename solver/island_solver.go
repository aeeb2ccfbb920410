// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/multibody"
)

// IslandSolver runs the full velocity pipeline of one island on the
// calling goroutine: force integration into the delta velocities,
// constraint assembly, the PGS sweep, impulse writeback and body
// integration.
type IslandSolver struct {
	velocity VelocitySolver
	position PositionSolver
	jac      JacobianBuffer

	contacts []ContactConstraintAny
	joints   []JointConstraintAny
}

// NewIslandSolver creates and returns a pointer to a new IslandSolver.
func NewIslandSolver() *IslandSolver {

	return new(IslandSolver)
}

// InitAndSolve solves one island and integrates its bodies. manifolds
// and impulseJoints must only reference bodies of this island (plus
// non-dynamic bodies). genericDim is the total multibody DOF count.
func (s *IslandSolver) InitAndSolve(
	params *Params,
	islandBodies []body.Handle,
	islandOffset int,
	bodies *body.Set,
	mbs *multibody.JointSet,
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
	genericDim int,
	withMultibodies bool,
) {

	s.jac.Reset()
	// Constraints index delta velocities by the global active-set
	// offset, so the vector spans up to the island's end.
	s.velocity.State.Reset(islandOffset+len(islandBodies), genericDim)
	s.velocity.State.Jac = &s.jac

	// Seed the delta velocities with the external forces. The angular
	// slot stores the delta premultiplied by the square root of the
	// inverse inertia.
	integrateForces(params, islandBodies, islandOffset, bodies, &s.velocity.State)

	s.contacts = AssembleContacts(params, bodies, mbs, manifolds, &s.jac, s.contacts[:0])
	s.joints = AssembleJoints(params, bodies, mbs, impulseJoints, &s.jac, s.joints[:0])
	if withMultibodies {
		// Exactly one island per step owns the multibody generic
		// state; the driver routes every multibody interaction there.
		s.joints = assembleUnitMultibodyConstraints(params, mbs, &s.jac, s.joints)
	}

	s.velocity.Solve(params, s.joints, s.contacts)
	s.velocity.Writeback(s.joints, s.contacts, manifolds, impulseJoints)

	writebackBodies(params, islandBodies, islandOffset, bodies, &s.velocity.State)
	if withMultibodies {
		applyGenericDeltas(mbs, &s.velocity.State)
	}

	s.position.Solve(params, bodies, manifolds, impulseJoints)
}

// integrateForces seeds each island body's delta velocity with its
// accumulated external force and torque. Bodies with degenerate mass
// are skipped.
func integrateForces(params *Params, islandBodies []body.Handle, islandOffset int, bodies *body.Set, vs *VelocityState) {

	for off, h := range islandBodies {
		i := h.Index
		if bodies.HasDegenerateMass(i) {
			continue
		}
		f := bodies.Forces(i)
		mp := bodies.MassProps(i)
		dv := &vs.MjLambdas[islandOffset+off]
		dv.Linear = dv.Linear.Add(f.Force.Mul(mp.InvMass * params.Dt))
		dv.Angular = dv.Angular.Add(mp.WorldInvInertiaSqrt.Mul3x1(f.Torque).Mul(params.Dt))
	}
}

// writebackBodies folds the solved delta velocities into the island
// bodies, applies damping and integrates the predicted poses.
func writebackBodies(params *Params, islandBodies []body.Handle, islandOffset int, bodies *body.Set, vs *VelocityState) {

	for off, h := range islandBodies {
		writebackBody(params, h, islandOffset+off, bodies, vs)
	}
}

// writebackBody folds one body's delta velocity into its components,
// applies damping and integrates the predicted pose.
func writebackBody(params *Params, h body.Handle, offset int, bodies *body.Set, vs *VelocityState) {

	i := h.Index
	if bodies.HasDegenerateMass(i) {
		return
	}
	dv := vs.MjLambdas[offset]
	mp := bodies.MassProps(i)
	vel := bodies.Velocity(i)
	vel.Linvel = vel.Linvel.Add(dv.Linear)
	vel.Angvel = vel.Angvel.Add(mp.WorldInvInertiaSqrt.Mul3x1(dv.Angular))

	*vel = vel.ApplyDamping(params.Dt, bodies.Damping(i))

	pos := bodies.Position(i)
	pos.Next = vel.Integrate(params.Dt, pos.Pose, pos.LocalCom)
}

// applyGenericDeltas folds the generic lambda vector into the
// multibody generalized velocities.
func applyGenericDeltas(mbs *multibody.JointSet, vs *VelocityState) {

	if mbs == nil {
		return
	}
	for i := 0; i < mbs.Len(); i++ {
		mbs.Multibody(i).ApplyGenericImpulses(vs.Generic)
	}
}

// assembleUnitMultibodyConstraints emits the per-DOF limit and motor
// rows of every multibody joint.
func assembleUnitMultibodyConstraints(params *Params, mbs *multibody.JointSet, jac *JacobianBuffer, out []JointConstraintAny) []JointConstraintAny {

	if mbs == nil {
		return out
	}
	for i := 0; i < mbs.Len(); i++ {
		mb := mbs.Multibody(i)
		if mb.Frozen() {
			continue
		}
		for li := 0; li < mb.NumLinks(); li++ {
			link := mb.Link(li)
			positions := mb.JointPositions()
			for d, axis := range link.DofAxes() {
				curr := positions[link.AssemblyID+d]
				if lim := link.Joint.Limits[axis]; lim.Enabled {
					out = UnitLimitConstraint(params, mb, link, lim, curr, d, jac, out)
				}
				if motor := link.Joint.Motors[axis]; motor.Enabled {
					out = UnitMotorConstraint(params, mb, link, &motor, curr, d, jac, out)
				}
			}
		}
	}
	return out
}
