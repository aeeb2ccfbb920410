// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/multibody"
	"github.com/g3n/dynamics/util"
)

// AssembleContacts emits the velocity constraints of the given contact
// manifolds, in manifold order. Manifolds whose two sides are both
// non-dynamic emit nothing. When both sides are plain rigid bodies the
// constraints are batched into wide lanes unless deterministic mode is
// on; a multibody on either side takes the generic path.
func AssembleContacts(
	params *Params,
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	manifolds []*geometry.ContactManifold,
	jac *JacobianBuffer,
	out []ContactConstraintAny,
) []ContactConstraintAny {

	var wide *WideContactConstraint
	var wideGround *WideContactGroundConstraint
	wideBodies := map[int]bool{}
	wideGroundBodies := map[int]bool{}

	flushWide := func() {
		if wide != nil && wide.NumLanes > 0 {
			out = append(out, wide)
		}
		wide = nil
		wideBodies = map[int]bool{}
	}
	flushWideGround := func() {
		if wideGround != nil && wideGround.NumLanes > 0 {
			out = append(out, wideGround)
		}
		wideGround = nil
		wideGroundBodies = map[int]bool{}
	}

	for mi, m := range manifolds {
		if len(m.Points) == 0 {
			continue
		}
		dyn1 := bodies.Contains(m.Body1) && bodies.Type(m.Body1.Index).IsDynamic()
		dyn2 := bodies.Contains(m.Body2) && bodies.Type(m.Body2.Index).IsDynamic()
		if !dyn1 && !dyn2 {
			continue
		}

		_, isMb1 := linkOf(mbs, m.Body1)
		_, isMb2 := linkOf(mbs, m.Body2)
		if isMb1 || isMb2 {
			out = assembleGenericContact(params, bodies, mbs, m, mi, jac, out)
			continue
		}

		if dyn1 && dyn2 {
			c := buildContactConstraint(params, bodies, m, mi)
			if params.Deterministic {
				out = append(out, c)
				continue
			}
			// Lane-batch disjoint constraints.
			if wide != nil && (wide.NumLanes == LaneWidth ||
				wideBodies[c.MJ1] || wideBodies[c.MJ2]) {
				flushWide()
			}
			if wide == nil {
				wide = &WideContactConstraint{}
			}
			l := wide.NumLanes
			wide.Dir[l] = c.Dir
			wide.Tangents[l] = c.Tangents
			wide.Im1[l], wide.Im2[l] = c.Im1, c.Im2
			wide.Friction[l] = c.Friction
			wide.MJ1[l], wide.MJ2[l] = c.MJ1, c.MJ2
			wide.ManifoldID[l] = c.ManifoldID
			wide.NumPoints[l] = c.NumPoints
			wide.Normal[l] = c.Normal
			wide.Tangent[l] = c.Tangent
			wide.NumLanes++
			wideBodies[c.MJ1] = true
			wideBodies[c.MJ2] = true
			continue
		}

		// Ground specialization: exactly one dynamic side.
		c := buildContactGroundConstraint(params, bodies, m, mi)
		if params.Deterministic {
			out = append(out, c)
			continue
		}
		if wideGround != nil && (wideGround.NumLanes == LaneWidth ||
			wideGroundBodies[c.MJ2]) {
			flushWideGround()
		}
		if wideGround == nil {
			wideGround = &WideContactGroundConstraint{}
		}
		l := wideGround.NumLanes
		wideGround.Dir[l] = c.Dir
		wideGround.Tangents[l] = c.Tangents
		wideGround.Im2[l] = c.Im2
		wideGround.Friction[l] = c.Friction
		wideGround.MJ2[l] = c.MJ2
		wideGround.ManifoldID[l] = c.ManifoldID
		wideGround.Flipped[l] = c.Flipped
		wideGround.NumPoints[l] = c.NumPoints
		wideGround.Normal[l] = c.Normal
		wideGround.Tangent[l] = c.Tangent
		wideGround.NumLanes++
		wideGroundBodies[c.MJ2] = true
	}
	flushWide()
	flushWideGround()
	return out
}

// contactGeometryAt computes the world normal and tangent basis of a
// manifold.
func contactGeometryAt(bodies body.SolverRead, m *geometry.ContactManifold) (dir mgl64.Vec3, tangents [2]mgl64.Vec3) {

	pose1 := bodies.Position(m.Body1.Index).Pose
	dir = pose1.TransformVector(m.LocalNormal1)
	tangents = util.OrthonormalBasis(dir)
	return dir, tangents
}

func buildContactConstraint(params *Params, bodies body.SolverRead, m *geometry.ContactManifold, manifoldID int) *ContactConstraint {

	b1 := makeSolverBody(bodies, m.Body1)
	b2 := makeSolverBody(bodies, m.Body2)
	dir, tangents := contactGeometryAt(bodies, m)
	pose1 := bodies.Position(m.Body1.Index).Pose
	pose2 := bodies.Position(m.Body2.Index).Pose

	c := &ContactConstraint{
		Dir:        dir,
		Tangents:   tangents,
		Im1:        b1.Im,
		Im2:        b2.Im,
		Friction:   m.Friction,
		MJ1:        b1.MjLambda,
		MJ2:        b2.MjLambda,
		ManifoldID: manifoldID,
		NumPoints:  len(m.Points),
	}
	if c.NumPoints > geometry.MaxManifoldPoints {
		c.NumPoints = geometry.MaxManifoldPoints
	}

	for k := 0; k < c.NumPoints; k++ {
		pt := &m.Points[k]
		p1 := pose1.TransformPoint(pt.LocalP1)
		p2 := pose2.TransformPoint(pt.LocalP2)
		r1 := p1.Sub(b1.WorldCom)
		r2 := p2.Sub(b2.WorldCom)

		// Separating velocity along the normal.
		vel1 := b1.Linvel.Add(b1.Angvel.Cross(r1))
		vel2 := b2.Linvel.Add(b2.Angvel.Cross(r2))
		vsep := dir.Dot(vel2.Sub(vel1))

		td1 := b1.SqrtII.Mul3x1(r1.Cross(dir))
		td2 := b2.SqrtII.Mul3x1(r2.Cross(dir))
		r := b1.Im + b2.Im + td1.Dot(td1) + td2.Dot(td2)

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
		// The positional bias and the restitution target do not
		// stack; the larger wins.
		rhs := -vsep + bias
		if rhsWoBias > rhs {
			rhs = rhsWoBias
		}

		c.Normal[k] = contactPart{
			TorqueDir1: td1,
			TorqueDir2: td2,
			RHS:        rhs,
			RHSWoBias:  rhsWoBias,
			Impulse:    pt.NormalImpulse * params.WarmstartCoeff,
			InvLhs:     util.Inv(r),
		}

		for t := 0; t < 2; t++ {
			tdir := tangents[t]
			ttd1 := b1.SqrtII.Mul3x1(r1.Cross(tdir))
			ttd2 := b2.SqrtII.Mul3x1(r2.Cross(tdir))
			tr := b1.Im + b2.Im + ttd1.Dot(ttd1) + ttd2.Dot(ttd2)
			tvel := tdir.Dot(vel2.Sub(vel1))
			c.Tangent[k][t] = contactPart{
				TorqueDir1: ttd1,
				TorqueDir2: ttd2,
				RHS:        -tvel,
				RHSWoBias:  -tvel,
				Impulse:    pt.TangentImpulses[t] * params.WarmstartCoeff,
				InvLhs:     util.Inv(tr),
			}
		}
	}
	return c
}

func buildContactGroundConstraint(params *Params, bodies body.SolverRead, m *geometry.ContactManifold, manifoldID int) *ContactGroundConstraint {

	// Swap so body2 is the dynamic one.
	body1, body2 := m.Body1, m.Body2
	flipped := false
	if bodies.Contains(body1) && bodies.Type(body1.Index).IsDynamic() {
		body1, body2 = body2, body1
		flipped = true
	}

	b1 := makeStaticSolverBody(bodies, body1)
	b2 := makeSolverBody(bodies, body2)
	pose1 := bodies.Position(m.Body1.Index).Pose
	pose2 := bodies.Position(m.Body2.Index).Pose
	dir, _ := contactGeometryAt(bodies, m)
	if flipped {
		dir = dir.Mul(-1)
	}
	tangents := util.OrthonormalBasis(dir)

	c := &ContactGroundConstraint{
		Dir:        dir,
		Tangents:   tangents,
		Im2:        b2.Im,
		Friction:   m.Friction,
		MJ2:        b2.MjLambda,
		ManifoldID: manifoldID,
		Flipped:    flipped,
		NumPoints:  len(m.Points),
	}
	if c.NumPoints > geometry.MaxManifoldPoints {
		c.NumPoints = geometry.MaxManifoldPoints
	}

	for k := 0; k < c.NumPoints; k++ {
		pt := &m.Points[k]
		var p1, p2 mgl64.Vec3
		if flipped {
			p1 = pose2.TransformPoint(pt.LocalP2)
			p2 = pose1.TransformPoint(pt.LocalP1)
		} else {
			p1 = pose1.TransformPoint(pt.LocalP1)
			p2 = pose2.TransformPoint(pt.LocalP2)
		}
		r1 := p1.Sub(b1.WorldCom)
		r2 := p2.Sub(b2.WorldCom)

		vel1 := b1.Linvel.Add(b1.Angvel.Cross(r1))
		vel2 := b2.Linvel.Add(b2.Angvel.Cross(r2))
		vsep := dir.Dot(vel2.Sub(vel1))

		td2 := b2.SqrtII.Mul3x1(r2.Cross(dir))
		r := b2.Im + td2.Dot(td2)

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

		c.Normal[k] = contactPart{
			TorqueDir2: td2,
			RHS:        rhs,
			RHSWoBias:  rhsWoBias,
			Impulse:    pt.NormalImpulse * params.WarmstartCoeff,
			InvLhs:     util.Inv(r),
		}

		for t := 0; t < 2; t++ {
			tdir := tangents[t]
			ttd2 := b2.SqrtII.Mul3x1(r2.Cross(tdir))
			tr := b2.Im + ttd2.Dot(ttd2)
			tvel := tdir.Dot(vel2.Sub(vel1))
			c.Tangent[k][t] = contactPart{
				TorqueDir2: ttd2,
				RHS:        -tvel,
				RHSWoBias:  -tvel,
				Impulse:    pt.TangentImpulses[t] * params.WarmstartCoeff,
				InvLhs:     util.Inv(tr),
			}
		}
	}
	return c
}
