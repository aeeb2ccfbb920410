// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/multibody"
	"github.com/g3n/dynamics/util"
)

func linkOf(mbs *multibody.JointSet, h body.Handle) (multibody.LinkRef, bool) {

	if mbs == nil {
		return multibody.LinkRef{}, false
	}
	return mbs.RigidBodyLink(h)
}

// genericRow assembles one scalar row whose sides may be rigid bodies
// or multibody links. lin/ang are the raw world jacobians of each
// side; the multibody side appends J and the inverse-mass-weighted
// M^-1 J^T block to the shared buffer.
func genericRow(
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	jac *JacobianBuffer,
	h1, h2 body.Handle,
	lin1, ang1, lin2, ang2 mgl64.Vec3,
) (side1, side2 genericSide, r float64) {

	side1, r1 := genericSideFor(bodies, mbs, jac, h1, lin1, ang1)
	side2, r2 := genericSideFor(bodies, mbs, jac, h2, lin2, ang2)
	return side1, side2, r1 + r2
}

func genericSideFor(
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	jac *JacobianBuffer,
	h body.Handle,
	lin, ang mgl64.Vec3,
) (genericSide, float64) {

	if ref, ok := linkOf(mbs, h); ok {
		mb := mbs.Multibody(ref.Multibody)
		n := mb.NDofs()
		jid := jac.Alloc(2 * n)
		rows := jac.Rows(jid, n)
		mb.FillRow(ref.LinkID, lin, ang, rows)
		weighted := jac.Rows(jid+n, n)
		copy(weighted, rows)
		mb.InvMulVec(weighted)

		r := 0.0
		for d := 0; d < n; d++ {
			r += rows[d] * weighted[d]
		}
		return genericSide{
			NDofs:  n,
			JID:    jid,
			Solver: mb.SolverID,
		}, r
	}

	dyn := bodies.Contains(h) && bodies.Type(h.Index).IsDynamic()
	if !dyn {
		return genericSide{Rigid: true, MJ: -1}, 0
	}
	sb := makeSolverBody(bodies, h)
	wAng := sb.SqrtII.Mul3x1(ang)
	r := sb.Im*lin.Dot(lin) + wAng.Dot(wAng)
	return genericSide{
		Rigid: true,
		MJ:    sb.MjLambda,
		Im:    sb.Im,
		Lin:   lin,
		Ang:   wAng,
	}, r
}

// GenericContactConstraint solves one contact point involving at least
// one multibody link: a normal row plus two friction rows re-projected
// against the normal impulse.
type GenericContactConstraint struct {
	Normal   GenericConstraint
	Friction [2]GenericConstraint
	Coeff    float64

	ManifoldID int
	PointID    int
}

// Warmstart applies the cached impulses.
func (c *GenericContactConstraint) Warmstart(vs *VelocityState) {

	c.Normal.Warmstart(vs)
	c.Friction[0].Warmstart(vs)
	c.Friction[1].Warmstart(vs)
}

// Solve updates the normal row then re-projects and updates the
// friction rows.
func (c *GenericContactConstraint) Solve(vs *VelocityState) {

	c.Normal.Solve(vs)
	limit := c.Coeff * c.Normal.Impulse
	for t := 0; t < 2; t++ {
		c.Friction[t].Lo = -limit
		c.Friction[t].Hi = limit
		c.Friction[t].Solve(vs)
	}
}

// RemoveBias strips the positional bias from the normal row.
func (c *GenericContactConstraint) RemoveBias() {

	c.Normal.RemoveBias()
}

// Writeback persists the impulses into the manifold point.
func (c *GenericContactConstraint) Writeback(manifolds []*geometry.ContactManifold) {

	m := manifolds[c.ManifoldID]
	if c.PointID >= len(m.Points) {
		return
	}
	pt := &m.Points[c.PointID]
	pt.NormalImpulse = c.Normal.Impulse
	pt.TangentImpulses[0] = c.Friction[0].Impulse
	pt.TangentImpulses[1] = c.Friction[1].Impulse
}

func assembleGenericContact(
	params *Params,
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	m *geometry.ContactManifold,
	manifoldID int,
	jac *JacobianBuffer,
	out []ContactConstraintAny,
) []ContactConstraintAny {

	dir, tangents := contactGeometryAt(bodies, m)
	pose1 := bodies.Position(m.Body1.Index).Pose
	pose2 := bodies.Position(m.Body2.Index).Pose
	com1 := bodies.MassProps(m.Body1.Index).WorldCom
	com2 := bodies.MassProps(m.Body2.Index).WorldCom
	vel1 := bodies.Velocity(m.Body1.Index)
	vel2 := bodies.Velocity(m.Body2.Index)

	for k, pt := range m.Points {
		if k >= geometry.MaxManifoldPoints {
			break
		}
		p1 := pose1.TransformPoint(pt.LocalP1)
		p2 := pose2.TransformPoint(pt.LocalP2)
		r1 := p1.Sub(com1)
		r2 := p2.Sub(com2)

		pv1 := vel1.Linvel.Add(vel1.Angvel.Cross(r1))
		pv2 := vel2.Linvel.Add(vel2.Angvel.Cross(r2))
		vsep := dir.Dot(pv2.Sub(pv1))

		side1, side2, r := genericRow(bodies, mbs, jac,
			m.Body1, m.Body2,
			dir.Mul(-1), r1.Cross(dir).Mul(-1),
			dir, r2.Cross(dir))

		rhsWoBias := -vsep
		if vsep < -params.RestitutionThreshold {
			rhsWoBias += m.Restitution * -vsep
		}
		pen := -pt.Dist - params.AllowedLinearError
		bias := 0.0
		if pen > 0 {
			bias = pen * params.ErpInvDt
			if bias > params.MaxCorrectiveVelocity {
				bias = params.MaxCorrectiveVelocity
			}
		}
		rhs := -vsep + bias
		if rhsWoBias > rhs {
			rhs = rhsWoBias
		}

		gc := &GenericContactConstraint{
			Coeff:      m.Friction,
			ManifoldID: manifoldID,
			PointID:    k,
		}
		gc.Normal = GenericConstraint{
			Side1:     side1,
			Side2:     side2,
			InvLhs:    util.Inv(r),
			RHS:       rhs,
			RHSWoBias: rhsWoBias,
			Impulse:   pt.NormalImpulse * params.WarmstartCoeff,
			Lo:        0,
			Hi:        posInf,
			JointID:   -1,
		}
		for t := 0; t < 2; t++ {
			tdir := tangents[t]
			fs1, fs2, fr := genericRow(bodies, mbs, jac,
				m.Body1, m.Body2,
				tdir.Mul(-1), r1.Cross(tdir).Mul(-1),
				tdir, r2.Cross(tdir))
			tvel := tdir.Dot(pv2.Sub(pv1))
			gc.Friction[t] = GenericConstraint{
				Side1:     fs1,
				Side2:     fs2,
				InvLhs:    util.Inv(fr),
				RHS:       -tvel,
				RHSWoBias: -tvel,
				Impulse:   pt.TangentImpulses[t] * params.WarmstartCoeff,
				JointID:   -1,
			}
		}
		out = append(out, gc)
	}
	return out
}

// UnitLimitConstraint emits the limit row of one multibody joint
// degree of freedom: a unit jacobian against the generic lambda
// vector, one-sided while violated.
func UnitLimitConstraint(
	params *Params,
	mb *multibody.Multibody,
	link *multibody.Link,
	limits joint.Limits,
	currPos float64,
	dofID int,
	jac *JacobianBuffer,
	out []JointConstraintAny,
) []JointConstraintAny {

	ndofs := mb.NDofs()
	jointVel := mb.JointVelocity(link)

	minViolated := currPos < limits.Min
	maxViolated := currPos > limits.Max
	if !minViolated && !maxViolated {
		return out
	}

	jid := jac.Alloc(2 * ndofs)
	dofJ := link.AssemblyID + dofID
	rows := jac.Rows(jid, ndofs)
	rows[dofJ] = 1
	weighted := jac.Rows(jid+ndofs, ndofs)
	weighted[dofJ] = 1
	mb.InvMulVec(weighted)
	lhs := weighted[dofJ] // J M^-1 J^T for a unit row

	lo, hi := 0.0, 0.0
	target := 0.0
	if minViolated {
		hi = posInf
		target = (limits.Min - currPos) * params.JointErpInvDt
	}
	if maxViolated {
		lo = -posInf
		target = (limits.Max - currPos) * params.JointErpInvDt
	}
	rhsWoBias := -jointVel[dofID]

	out = append(out, &GenericGroundConstraint{
		Side2: genericSide{
			NDofs:  ndofs,
			JID:    jid,
			Solver: mb.SolverID,
		},
		InvLhs:    util.Inv(lhs),
		RHS:       rhsWoBias + target,
		RHSWoBias: rhsWoBias,
		Lo:        lo,
		Hi:        hi,
		JointID:   -1,
		WB:        WritebackId{Kind: WritebackLimit, Dof: joint.Axis(dofID)},
	})
	return out
}

// UnitMotorConstraint emits the motor row of one multibody joint
// degree of freedom.
func UnitMotorConstraint(
	params *Params,
	mb *multibody.Multibody,
	link *multibody.Link,
	motor *joint.Motor,
	currPos float64,
	dofID int,
	jac *JacobianBuffer,
	out []JointConstraintAny,
) []JointConstraintAny {

	ndofs := mb.NDofs()
	jointVel := mb.JointVelocity(link)
	mp := motor.Params(params.Dt)

	jid := jac.Alloc(2 * ndofs)
	dofJ := link.AssemblyID + dofID
	rows := jac.Rows(jid, ndofs)
	rows[dofJ] = 1
	weighted := jac.Rows(jid+ndofs, ndofs)
	weighted[dofJ] = 1
	mb.InvMulVec(weighted)
	lhs := weighted[dofJ]

	rhs := 0.0
	if mp.Stiffness != 0 {
		rhs += (mp.TargetPos - currPos) * mp.Stiffness
	}
	if mp.Damping != 0 {
		rhs += (mp.TargetVel - jointVel[dofID]) * mp.Damping
	}

	out = append(out, &GenericGroundConstraint{
		Side2: genericSide{
			NDofs:  ndofs,
			JID:    jid,
			Solver: mb.SolverID,
		},
		InvLhs:    util.Inv(lhs),
		RHS:       rhs,
		RHSWoBias: rhs,
		Lo:        -mp.MaxImpulse,
		Hi:        mp.MaxImpulse,
		JointID:   -1,
		WB:        WritebackId{Kind: WritebackMotor, Dof: joint.Axis(dofID)},
	})
	return out
}
