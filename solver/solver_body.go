// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package solver implements the island constraint solver: assembly of
// velocity constraints from contacts and joints, the warm-started
// projected Gauss-Seidel sweep, the position correction pass and the
// parallel execution path.
package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/util"
)

// LaneWidth is the number of lanes of the wide constraint variants.
const LaneWidth = 4

// SpatialDim is the dimension of a rigid body's velocity space.
const SpatialDim = 6

// DeltaVel is the accumulated delta velocity of one body during a
// solve. The angular part is stored premultiplied by the square root
// of the world inverse inertia, which makes the effective mass terms
// of constraints plain dot products.
type DeltaVel struct {
	Linear  mgl64.Vec3
	Angular mgl64.Vec3
}

// SolverBody is the immutable snapshot of one body side captured by
// the assembler.
type SolverBody struct {
	Linvel   mgl64.Vec3
	Angvel   mgl64.Vec3
	Im       float64
	SqrtII   mgl64.Mat3
	WorldCom mgl64.Vec3
	// MjLambda is the body's offset in the island delta-velocity
	// vector.
	MjLambda int
}

func makeSolverBody(bodies body.SolverRead, h body.Handle) SolverBody {

	vel := bodies.Velocity(h.Index)
	mp := bodies.MassProps(h.Index)
	ids := bodies.Ids(h.Index)
	return SolverBody{
		Linvel:   vel.Linvel,
		Angvel:   vel.Angvel,
		Im:       mp.InvMass,
		SqrtII:   mp.WorldInvInertiaSqrt,
		WorldCom: mp.WorldCom,
		MjLambda: ids.ActiveSetOffset,
	}
}

func makeStaticSolverBody(bodies body.SolverRead, h body.Handle) SolverBody {

	vel := bodies.Velocity(h.Index)
	mp := bodies.MassProps(h.Index)
	return SolverBody{
		Linvel:   vel.Linvel,
		Angvel:   vel.Angvel,
		WorldCom: mp.WorldCom,
		MjLambda: -1,
	}
}

// VelocityState is the mutable unknowns of one island solve: the
// per-body delta velocities and the dense generic lambda vector of the
// multibodies.
type VelocityState struct {
	MjLambdas []DeltaVel
	Generic   []float64
	// Jac is the shared dense jacobian buffer consulted by the
	// generic constraints every iteration.
	Jac *JacobianBuffer
}

// Reset resizes and zeroes the state for an island of n bodies and
// the given generic dimension.
func (s *VelocityState) Reset(n, generic int) {

	if cap(s.MjLambdas) < n {
		s.MjLambdas = make([]DeltaVel, n)
	} else {
		s.MjLambdas = s.MjLambdas[:n]
		for i := range s.MjLambdas {
			s.MjLambdas[i] = DeltaVel{}
		}
	}
	if cap(s.Generic) < generic {
		s.Generic = make([]float64, generic)
	} else {
		s.Generic = s.Generic[:generic]
		for i := range s.Generic {
			s.Generic[i] = 0
		}
	}
}

// Flush applies the flush-to-zero guard to every accumulated delta.
// VelocitySolver.Solve calls it once, after its last sweep; the
// parallel island solver does not call it.
func (s *VelocityState) Flush() {

	for i := range s.MjLambdas {
		s.MjLambdas[i].Linear = util.FlushSmallVec(s.MjLambdas[i].Linear)
		s.MjLambdas[i].Angular = util.FlushSmallVec(s.MjLambdas[i].Angular)
	}
	for i := range s.Generic {
		s.Generic[i] = util.FlushSmall(s.Generic[i])
	}
}
