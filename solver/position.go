// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

// PositionSolver runs non-linear Gauss-Seidel sweeps that move the
// predicted positions directly, resolving residual penetration and
// joint anchor drift without injecting kinetic energy. Jacobians are
// recomputed against the predicted poses each sweep.
type PositionSolver struct{}

// Solve performs the configured number of position iterations over the
// island's manifolds and joints.
func (ps *PositionSolver) Solve(
	params *Params,
	bodies *body.Set,
	manifolds []*geometry.ContactManifold,
	joints []*joint.ImpulseJoint,
) {

	for it := 0; it < params.MaxPositionIterations; it++ {
		for _, j := range joints {
			ps.correctJoint(params, bodies, j)
		}
		for _, m := range manifolds {
			ps.correctManifold(params, bodies, m)
		}
	}
}

// bodyWeight returns the positional response terms of one side of a
// correction: zero for non-dynamic bodies.
func bodyWeight(bodies *body.Set, h body.Handle) (im float64, ii mgl64.Mat3, dynamic bool) {

	if !bodies.Contains(h) || !bodies.Type(h.Index).IsDynamic() {
		return 0, mgl64.Mat3{}, false
	}
	mp := bodies.MassProps(h.Index)
	return mp.InvMass, mp.WorldInvInertia, true
}

// applyPositionImpulse shifts a body's predicted pose by a positional
// impulse p applied at offset r from its COM.
func applyPositionImpulse(bodies *body.Set, h body.Handle, r, p mgl64.Vec3) {

	if !bodies.Contains(h) || !bodies.Type(h.Index).IsDynamic() {
		return
	}
	i := h.Index
	mp := bodies.MassProps(i)
	pos := bodies.Position(i)

	pose := pos.Next
	pose.Translation = pose.Translation.Add(p.Mul(mp.InvMass))
	w := mp.WorldInvInertia.Mul3x1(r.Cross(p))
	pose.Rotation = util.IntegrateRotation(pose.Rotation, w, 1)
	pos.Next = pose
}

func (ps *PositionSolver) correctManifold(params *Params, bodies *body.Set, m *geometry.ContactManifold) {

	im1, ii1, dyn1 := bodyWeight(bodies, m.Body1)
	im2, ii2, dyn2 := bodyWeight(bodies, m.Body2)
	if !dyn1 && !dyn2 {
		return
	}

	pose1 := bodies.Position(m.Body1.Index).Next
	pose2 := bodies.Position(m.Body2.Index).Next
	dir := pose1.TransformVector(m.LocalNormal1)

	com1 := bodies.MassProps(m.Body1.Index).WorldCom
	com2 := bodies.MassProps(m.Body2.Index).WorldCom

	start1 := bodies.Position(m.Body1.Index).Pose
	start2 := bodies.Position(m.Body2.Index).Pose

	for k := range m.Points {
		pt := &m.Points[k]
		p1 := pose1.TransformPoint(pt.LocalP1)
		p2 := pose2.TransformPoint(pt.LocalP2)

		// The narrow phase measured pt.Dist at the start-of-step
		// poses; track how the predicted poses changed the gap.
		startGap := dir.Dot(start2.TransformPoint(pt.LocalP2).
			Sub(start1.TransformPoint(pt.LocalP1)))
		sep := pt.Dist + dir.Dot(p2.Sub(p1)) - startGap

		c := -sep - params.AllowedLinearError
		if c <= 0 {
			continue
		}
		if c > params.MaxPenetrationCorrection {
			c = params.MaxPenetrationCorrection
		}

		r1 := p1.Sub(com1)
		r2 := p2.Sub(com2)
		w := im1 + im2
		rn1 := r1.Cross(dir)
		rn2 := r2.Cross(dir)
		w += rn1.Dot(ii1.Mul3x1(rn1)) + rn2.Dot(ii2.Mul3x1(rn2))
		if w == 0 {
			continue
		}

		// The penetration spring is damped so stacked corrections do
		// not overshoot.
		scale := params.Erp / (1 + params.DampingRatio)
		imp := dir.Mul(c * scale / w)
		applyPositionImpulse(bodies, m.Body1, r1, imp.Mul(-1))
		applyPositionImpulse(bodies, m.Body2, r2, imp)
	}
}

func (ps *PositionSolver) correctJoint(params *Params, bodies *body.Set, j *joint.ImpulseJoint) {

	im1, ii1, dyn1 := bodyWeight(bodies, j.Body1)
	im2, ii2, dyn2 := bodyWeight(bodies, j.Body2)
	if !dyn1 && !dyn2 {
		return
	}

	pose1 := bodies.Position(j.Body1.Index).Next
	pose2 := bodies.Position(j.Body2.Index).Next
	frame1 := pose1.Mul(j.Data.LocalFrame1)
	frame2 := pose2.Mul(j.Data.LocalFrame2)
	com1 := bodies.MassProps(j.Body1.Index).WorldCom
	com2 := bodies.MassProps(j.Body2.Index).WorldCom

	// Linear anchor drift along the locked linear axes.
	if j.Data.LockedAxes&joint.LockAllLin != 0 {
		err := frame2.Translation.Sub(frame1.Translation)
		var corr mgl64.Vec3
		for a := joint.AxisX; a <= joint.AxisZ; a++ {
			if !j.Data.LockedAxes.Contains(a) {
				continue
			}
			var e mgl64.Vec3
			e[int(a)] = 1
			dir := frame1.TransformVector(e)
			corr = corr.Add(dir.Mul(dir.Dot(err)))
		}
		if corr.Len() > 0 {
			r1 := frame1.Translation.Sub(com1)
			r2 := frame2.Translation.Sub(com2)
			w := im1 + im2
			n := corr.Normalize()
			rn1 := r1.Cross(n)
			rn2 := r2.Cross(n)
			w += rn1.Dot(ii1.Mul3x1(rn1)) + rn2.Dot(ii2.Mul3x1(rn2))
			if w > 0 {
				imp := corr.Mul(params.JointErp / w)
				applyPositionImpulse(bodies, j.Body1, r1, imp)
				applyPositionImpulse(bodies, j.Body2, r2, imp.Mul(-1))
			}
		}
	}

	// Angular drift about the locked angular axes.
	if j.Data.LockedAxes&joint.LockAllAng != 0 {
		dq := frame2.Rotation.Mul(frame1.Rotation.Conjugate()).Normalize()
		if dq.W < 0 {
			dq = dq.Scale(-1)
		}
		errVec := dq.V.Mul(2)
		var corr mgl64.Vec3
		for a := joint.AxisAngX; a < joint.SpatialDim; a++ {
			if !j.Data.LockedAxes.Contains(a) {
				continue
			}
			var e mgl64.Vec3
			e[int(a)-3] = 1
			dir := frame1.TransformVector(e)
			corr = corr.Add(dir.Mul(dir.Dot(errVec)))
		}
		if corr.Len() > 0 {
			w := 0.0
			n := corr.Normalize()
			w += n.Dot(ii1.Mul3x1(n)) + n.Dot(ii2.Mul3x1(n))
			if w > 0 {
				ang := corr.Mul(params.JointErp / w)
				rotateBodyInPlace(bodies, j.Body1, ii1, ang)
				rotateBodyInPlace(bodies, j.Body2, ii2, ang.Mul(-1))
			}
		}
	}
}

func rotateBodyInPlace(bodies *body.Set, h body.Handle, ii mgl64.Mat3, angImpulse mgl64.Vec3) {

	if !bodies.Contains(h) || !bodies.Type(h.Index).IsDynamic() {
		return
	}
	pos := bodies.Position(h.Index)
	w := ii.Mul3x1(angImpulse)
	pose := pos.Next
	pose.Rotation = util.IntegrateRotation(pose.Rotation, w, 1)
	pos.Next = pose
}
