// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
)

// VelocitySolver runs the warm-started projected Gauss-Seidel sweep
// over one island's constraints.
type VelocitySolver struct {
	State VelocityState
}

// Solve performs the velocity iterations followed by the remove-bias
// sweep. Constraints are visited in assembly order, joints before
// contacts, which keeps the iteration stable and deterministic.
func (s *VelocitySolver) Solve(params *Params, joints []JointConstraintAny, contacts []ContactConstraintAny) {

	for _, c := range joints {
		c.Warmstart(&s.State)
	}
	for _, c := range contacts {
		c.Warmstart(&s.State)
	}

	for it := 0; it < params.MaxVelocityIterations; it++ {
		for _, c := range joints {
			c.Solve(&s.State)
		}
		for _, c := range contacts {
			c.Solve(&s.State)
		}
	}

	// One sweep without the positional stabilization bias, so the
	// velocity result the position corrector builds on carries no
	// artificial energy.
	for _, c := range joints {
		c.RemoveBias()
	}
	for _, c := range contacts {
		c.RemoveBias()
	}
	for _, c := range joints {
		c.Solve(&s.State)
	}
	for _, c := range contacts {
		c.Solve(&s.State)
	}

	s.State.Flush()
}

// Writeback persists every constraint's converged impulses into the
// contact manifolds and joint caches. Always single-threaded.
func (s *VelocitySolver) Writeback(
	joints []JointConstraintAny,
	contacts []ContactConstraintAny,
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
) {

	for _, c := range joints {
		c.Writeback(impulseJoints)
	}
	for _, c := range contacts {
		c.Writeback(manifolds)
	}
}
