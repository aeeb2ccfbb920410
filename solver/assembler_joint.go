// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/multibody"
	"github.com/g3n/dynamics/util"
)

// maxJointRows bounds the scalar rows one joint can emit: one row per
// locked axis plus a limit row and a motor row per free axis, which
// is 12 - k rows with k locked axes.
const maxJointRows = 12

// jointFrames holds the world anchor frames and relative kinematics of
// one joint, shared by every row it emits.
type jointFrames struct {
	frame1, frame2 util.Iso
	r1, r2         mgl64.Vec3 // anchor offsets from each COM
	relLinvel      mgl64.Vec3 // anchor2 velocity minus anchor1 velocity
	relAngvel      mgl64.Vec3
	linErr         mgl64.Vec3 // anchor2 - anchor1
	angErr         mgl64.Vec3 // small-angle rotation error vector
	qRel           mgl64.Quat // frame1^-1 * frame2
}

func computeJointFrames(b1, b2 *SolverBody, pose1, pose2 util.Iso, data *joint.Data) jointFrames {

	f := jointFrames{}
	f.frame1 = pose1.Mul(data.LocalFrame1)
	f.frame2 = pose2.Mul(data.LocalFrame2)
	f.r1 = f.frame1.Translation.Sub(b1.WorldCom)
	f.r2 = f.frame2.Translation.Sub(b2.WorldCom)
	v1 := b1.Linvel.Add(b1.Angvel.Cross(f.r1))
	v2 := b2.Linvel.Add(b2.Angvel.Cross(f.r2))
	f.relLinvel = v2.Sub(v1)
	f.relAngvel = b2.Angvel.Sub(b1.Angvel)
	f.linErr = f.frame2.Translation.Sub(f.frame1.Translation)

	dq := f.frame2.Rotation.Mul(f.frame1.Rotation.Conjugate()).Normalize()
	if dq.W < 0 {
		dq = dq.Scale(-1)
	}
	f.angErr = dq.V.Mul(2)
	f.qRel = f.frame1.Rotation.Conjugate().Mul(f.frame2.Rotation).Normalize()
	return f
}

// axisDirWorld returns the world direction of a joint axis, taken from
// the first anchor frame's basis.
func (f *jointFrames) axisDirWorld(a joint.Axis) mgl64.Vec3 {

	var e mgl64.Vec3
	switch a {
	case joint.AxisX, joint.AxisAngX:
		e = mgl64.Vec3{1, 0, 0}
	case joint.AxisY, joint.AxisAngY:
		e = mgl64.Vec3{0, 1, 0}
	default:
		e = mgl64.Vec3{0, 0, 1}
	}
	return f.frame1.TransformVector(e)
}

// twistAngle returns the rotation angle of the relative joint rotation
// about one local angular axis.
func (f *jointFrames) twistAngle(a joint.Axis) float64 {

	i := int(a) - 3
	v := [3]float64{f.qRel.V[0], f.qRel.V[1], f.qRel.V[2]}
	return 2 * math.Atan2(v[i], f.qRel.W)
}

// axisPosition returns the joint position along one axis: a signed
// displacement for linear axes, a twist angle for angular axes.
func (f *jointFrames) axisPosition(a joint.Axis) float64 {

	if a < joint.AxisAngX {
		return f.axisDirWorld(a).Dot(f.linErr)
	}
	return f.twistAngle(a)
}

// jointRow is the variant-independent description of one scalar joint
// row, produced by lockAxes and lowered into the scalar, ground, wide
// or generic constraint forms.
type jointRow struct {
	lin1, ang1 mgl64.Vec3 // raw world jacobians (not inertia-weighted)
	lin2, ang2 mgl64.Vec3
	rhs        float64
	rhsWoBias  float64
	lo, hi     float64
	impulse    float64
	wb         WritebackId
}

// lockAxes emits the rows of one joint into buf (a fixed stack buffer)
// and returns the number of rows written: one equality row per locked
// axis, then limit and motor rows for the free axes that carry them.
func lockAxes(params *Params, data *joint.Data, f *jointFrames, j *joint.ImpulseJoint, buf *[maxJointRows]jointRow) int {

	n := 0
	emit := func(r jointRow) {
		buf[n] = r
		n++
	}

	for a := joint.Axis(0); a < joint.SpatialDim; a++ {
		if !data.LockedAxes.Contains(a) {
			continue
		}
		dir := f.axisDirWorld(a)
		if a < joint.AxisAngX {
			vel := dir.Dot(f.relLinvel)
			bias := util.Clamp(dir.Dot(f.linErr)*params.JointErpInvDt,
				-params.MaxCorrectiveVelocity, params.MaxCorrectiveVelocity)
			emit(jointRow{
				lin1: dir.Mul(-1), ang1: f.r1.Cross(dir).Mul(-1),
				lin2: dir, ang2: f.r2.Cross(dir),
				rhs:       -vel - bias,
				rhsWoBias: -vel,
				lo:        -posInf, hi: posInf,
				impulse: j.Impulses[a] * params.WarmstartCoeff,
				wb:      WritebackId{Kind: WritebackDof, Dof: a},
			})
		} else {
			vel := dir.Dot(f.relAngvel)
			bias := util.Clamp(dir.Dot(f.angErr)*params.JointErpInvDt,
				-params.MaxCorrectiveVelocity, params.MaxCorrectiveVelocity)
			emit(jointRow{
				ang1: dir.Mul(-1), ang2: dir,
				rhs:       -vel - bias,
				rhsWoBias: -vel,
				lo:        -posInf, hi: posInf,
				impulse: j.Impulses[a] * params.WarmstartCoeff,
				wb:      WritebackId{Kind: WritebackDof, Dof: a},
			})
		}
	}

	for a := joint.Axis(0); a < joint.SpatialDim; a++ {
		if data.LockedAxes.Contains(a) {
			continue
		}
		lim := data.Limits[a]
		motor := data.Motors[a]
		if !lim.Enabled && !motor.Enabled {
			continue
		}

		dir := f.axisDirWorld(a)
		var lin1, ang1, lin2, ang2 mgl64.Vec3
		var vel float64
		if a < joint.AxisAngX {
			lin1, ang1 = dir.Mul(-1), f.r1.Cross(dir).Mul(-1)
			lin2, ang2 = dir, f.r2.Cross(dir)
			vel = dir.Dot(f.relLinvel)
		} else {
			ang1, ang2 = dir.Mul(-1), dir
			vel = dir.Dot(f.relAngvel)
		}
		curr := f.axisPosition(a)

		if lim.Enabled {
			minViolated := curr < lim.Min
			maxViolated := curr > lim.Max
			if minViolated || maxViolated {
				lo, hi := 0.0, 0.0
				target := 0.0
				if minViolated {
					hi = posInf
					target = (lim.Min - curr) * params.JointErpInvDt
				} else {
					lo = -posInf
					target = (lim.Max - curr) * params.JointErpInvDt
				}
				emit(jointRow{
					lin1: lin1, ang1: ang1, lin2: lin2, ang2: ang2,
					rhs:       -vel + target,
					rhsWoBias: -vel,
					lo:        lo, hi: hi,
					impulse: j.LimitImpulses[a] * params.WarmstartCoeff,
					wb:      WritebackId{Kind: WritebackLimit, Dof: a},
				})
			}
		}

		if motor.Enabled {
			mp := motor.Params(params.Dt)
			rhs := 0.0
			if mp.Stiffness != 0 {
				rhs += (mp.TargetPos - curr) * mp.Stiffness
			}
			if mp.Damping != 0 {
				rhs += (mp.TargetVel - vel) * mp.Damping
			}
			emit(jointRow{
				lin1: lin1, ang1: ang1, lin2: lin2, ang2: ang2,
				rhs:       rhs,
				rhsWoBias: rhs,
				lo:        -mp.MaxImpulse, hi: mp.MaxImpulse,
				impulse: j.MotorImpulses[a] * params.WarmstartCoeff,
				wb:      WritebackId{Kind: WritebackMotor, Dof: a},
			})
		}
	}
	return n
}

// AssembleJoints emits the velocity constraints of the given impulse
// joints, in joint order. Exactly-one-dynamic-side joints take the
// ground specialization; a multibody on either side takes the generic
// path; remaining rigid-rigid rows are lane-batched when their
// locked-axes masks match and deterministic mode is off.
func AssembleJoints(
	params *Params,
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	joints []*joint.ImpulseJoint,
	jac *JacobianBuffer,
	out []JointConstraintAny,
) []JointConstraintAny {

	var buf [maxJointRows]jointRow

	// Joint-level lane batching: each pending joint becomes one lane;
	// row r of every lane lands in the r-th wide constraint of the
	// group, so no wide constraint ever holds two rows of one body.
	type pendingLane struct {
		rows [maxJointRows]JointConstraint
		n    int
	}
	var pending []pendingLane
	wideMask := joint.LockedAxes(0)
	wideBodies := map[int]bool{}
	flushWide := func() {
		if len(pending) == 1 {
			// A single lane degrades to scalar rows.
			for k := 0; k < pending[0].n; k++ {
				c := pending[0].rows[k]
				out = append(out, &c)
			}
		} else if len(pending) > 1 {
			numRows := pending[0].n
			for r := 0; r < numRows; r++ {
				wide := &WideJointConstraint{NumLanes: len(pending)}
				for l := range pending {
					sc := &pending[l].rows[r]
					wide.Lin1[l], wide.Lin2[l] = sc.Lin1, sc.Lin2
					wide.Ang1[l], wide.Ang2[l] = sc.Ang1, sc.Ang2
					wide.Im1[l], wide.Im2[l] = sc.Im1, sc.Im2
					wide.InvLhs[l] = sc.InvLhs
					wide.RHS[l], wide.RHSWoBias[l] = sc.RHS, sc.RHSWoBias
					wide.Impulse[l] = sc.Impulse
					wide.Lo[l], wide.Hi[l] = sc.Lo, sc.Hi
					wide.MJ1[l], wide.MJ2[l] = sc.MJ1, sc.MJ2
					wide.JointID[l] = sc.JointID
					wide.WB[l] = sc.WB
				}
				out = append(out, wide)
			}
		}
		pending = pending[:0]
		wideBodies = map[int]bool{}
	}

	for ji, j := range joints {
		dyn1 := bodies.Contains(j.Body1) && bodies.Type(j.Body1.Index).IsDynamic()
		dyn2 := bodies.Contains(j.Body2) && bodies.Type(j.Body2.Index).IsDynamic()
		ref1, isMb1 := linkOf(mbs, j.Body1)
		ref2, isMb2 := linkOf(mbs, j.Body2)

		if !dyn1 && !dyn2 && !isMb1 && !isMb2 {
			// Both sides static: nothing to solve.
			continue
		}

		j.ConstraintIndex = len(out)

		if isMb1 || isMb2 {
			out = assembleGenericJoint(params, bodies, mbs, j, ji, ref1, isMb1, ref2, isMb2, jac, &buf, out)
			continue
		}

		// Ground specialization: swap so body2 is dynamic.
		if !dyn1 || !dyn2 {
			out = assembleGroundJoint(params, bodies, j, ji, dyn1, &buf, out)
			continue
		}

		b1 := makeSolverBody(bodies, j.Body1)
		b2 := makeSolverBody(bodies, j.Body2)
		pose1 := bodies.Position(j.Body1.Index).Pose
		pose2 := bodies.Position(j.Body2.Index).Pose
		f := computeJointFrames(&b1, &b2, pose1, pose2, &j.Data)
		n := lockAxes(params, &j.Data, &f, j, &buf)

		// Limit and motor rows emit conditionally, so such joints
		// cannot share a lane schedule; they stay scalar.
		batchable := !params.Deterministic &&
			j.Data.FreeAxesWithMotorOrLimit() == 0

		if !batchable {
			flushWide()
			for k := 0; k < n; k++ {
				c := scalarJointConstraint(&buf[k], &b1, &b2, ji)
				out = append(out, &c)
			}
			continue
		}

		// A group is only valid when every lane shares the mask and
		// no two lanes share a body; a joint that breaks either rule
		// closes the pending group and starts a new one.
		if len(pending) > 0 && (len(pending) == LaneWidth ||
			wideMask != j.Data.LockedAxes ||
			wideBodies[b1.MjLambda] || wideBodies[b2.MjLambda]) {
			flushWide()
		}
		if len(pending) == 0 {
			wideMask = j.Data.LockedAxes
		}
		var lane pendingLane
		lane.n = n
		for k := 0; k < n; k++ {
			lane.rows[k] = scalarJointConstraint(&buf[k], &b1, &b2, ji)
		}
		pending = append(pending, lane)
		wideBodies[b1.MjLambda] = true
		wideBodies[b2.MjLambda] = true
	}
	flushWide()
	return out
}

func scalarJointConstraint(row *jointRow, b1, b2 *SolverBody, jointID int) JointConstraint {

	wAng1 := b1.SqrtII.Mul3x1(row.ang1)
	wAng2 := b2.SqrtII.Mul3x1(row.ang2)
	r := b1.Im*row.lin1.Dot(row.lin1) + wAng1.Dot(wAng1) +
		b2.Im*row.lin2.Dot(row.lin2) + wAng2.Dot(wAng2)
	return JointConstraint{
		Lin1: row.lin1, Lin2: row.lin2,
		Ang1: wAng1, Ang2: wAng2,
		Im1: b1.Im, Im2: b2.Im,
		InvLhs:    util.Inv(r),
		RHS:       row.rhs,
		RHSWoBias: row.rhsWoBias,
		Impulse:   row.impulse,
		Lo:        row.lo, Hi: row.hi,
		MJ1:     b1.MjLambda,
		MJ2:     b2.MjLambda,
		JointID: jointID,
		WB:      row.wb,
	}
}

func assembleGroundJoint(
	params *Params,
	bodies body.SolverRead,
	j *joint.ImpulseJoint,
	jointID int,
	dyn1 bool,
	buf *[maxJointRows]jointRow,
	out []JointConstraintAny,
) []JointConstraintAny {

	h1, h2 := j.Body1, j.Body2
	data := j.Data
	flipped := false
	if dyn1 {
		// Swap so body2 is the dynamic one.
		h1, h2 = h2, h1
		data.LocalFrame1, data.LocalFrame2 = data.LocalFrame2, data.LocalFrame1
		flipped = true
	}

	b1 := makeStaticSolverBody(bodies, h1)
	b2 := makeSolverBody(bodies, h2)
	pose1 := bodies.Position(h1.Index).Pose
	pose2 := bodies.Position(h2.Index).Pose
	f := computeJointFrames(&b1, &b2, pose1, pose2, &data)
	n := lockAxes(params, &data, &f, j, buf)

	for k := 0; k < n; k++ {
		row := &buf[k]
		wAng2 := b2.SqrtII.Mul3x1(row.ang2)
		r := b2.Im*row.lin2.Dot(row.lin2) + wAng2.Dot(wAng2)
		out = append(out, &JointGroundConstraint{
			Lin2:      row.lin2,
			Ang2:      wAng2,
			Im2:       b2.Im,
			InvLhs:    util.Inv(r),
			RHS:       row.rhs,
			RHSWoBias: row.rhsWoBias,
			Impulse:   row.impulse,
			Lo:        row.lo, Hi: row.hi,
			MJ2:     b2.MjLambda,
			JointID: jointID,
			WB:      row.wb,
			Flipped: flipped,
		})
	}
	return out
}

func assembleGenericJoint(
	params *Params,
	bodies body.SolverRead,
	mbs *multibody.JointSet,
	j *joint.ImpulseJoint,
	jointID int,
	ref1 multibody.LinkRef, isMb1 bool,
	ref2 multibody.LinkRef, isMb2 bool,
	jac *JacobianBuffer,
	buf *[maxJointRows]jointRow,
	out []JointConstraintAny,
) []JointConstraintAny {

	ndofs := 0
	if isMb1 {
		ndofs += mbs.Multibody(ref1.Multibody).NDofs()
	} else {
		ndofs += SpatialDim
	}
	if isMb2 {
		ndofs += mbs.Multibody(ref2.Multibody).NDofs()
	} else {
		ndofs += SpatialDim
	}
	if ndofs == 0 {
		// Both multibodies fixed: no constraint.
		return out
	}

	// Jacobian budget: the locked-axes rows plus the limit and motor
	// rows of the free axes that carry them.
	required := jac.Len() +
		ndofs*2*SpatialDim +
		2*ndofs*j.Data.FreeAxesWithMotorOrLimit()
	jac.Ensure(required)

	b1 := makeSolverBody(bodies, j.Body1)
	b2 := makeSolverBody(bodies, j.Body2)
	pose1 := bodies.Position(j.Body1.Index).Pose
	pose2 := bodies.Position(j.Body2.Index).Pose
	f := computeJointFrames(&b1, &b2, pose1, pose2, &j.Data)
	n := lockAxes(params, &j.Data, &f, j, buf)

	for k := 0; k < n; k++ {
		row := &buf[k]
		side1, side2, r := genericRow(bodies, mbs, jac,
			j.Body1, j.Body2,
			row.lin1, row.ang1, row.lin2, row.ang2)
		out = append(out, &GenericConstraint{
			Side1:     side1,
			Side2:     side2,
			InvLhs:    util.Inv(r),
			RHS:       row.rhs,
			RHSWoBias: row.rhsWoBias,
			Impulse:   row.impulse,
			Lo:        row.lo, Hi: row.hi,
			JointID:   jointID,
			WB:        row.wb,
		})
	}
	return out
}
