// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package multibody

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

// Multibody is a kinematic tree of links with a fixed or floating
// root. Links are stored parents-first so one forward sweep computes
// all placements.
type Multibody struct {
	links []Link
	ndofs int

	// Generalized state, indexed by link assembly ids.
	positions  []float64
	velocities []float64
	damping    []float64

	// SolverID is the row offset of this multibody inside the island's
	// generic lambda vector.
	SolverID int

	chol   mat.Cholesky
	frozen bool

	// Per-link world jacobians, 6 x ndofs each, rebuilt by forward
	// kinematics. Row-major: rows are [vx vy vz wx wy wz].
	jacobians [][]float64
}

// New creates a multibody rooted at the given body. A fixed root is a
// zero-DOF link; a floating root would use a six-DOF joint.
func New(root body.Handle, rootJoint joint.Data) *Multibody {

	mb := new(Multibody)
	mb.addLink(root, -1, rootJoint)
	return mb
}

// NDofs returns the total number of generalized coordinates.
func (mb *Multibody) NDofs() int {

	return mb.ndofs
}

// NumLinks returns the number of links, including the root.
func (mb *Multibody) NumLinks() int {

	return len(mb.links)
}

// Link returns the link with the given id.
func (mb *Multibody) Link(id int) *Link {

	return &mb.links[id]
}

// Frozen reports whether the multibody is disabled for the current
// step because its augmented mass factorization failed.
func (mb *Multibody) Frozen() bool {

	return mb.frozen
}

// AddLink appends a link attached to the given parent link and
// returns its id.
func (mb *Multibody) AddLink(parent int, data joint.Data, child body.Handle) int {

	return mb.addLink(child, parent, data)
}

func (mb *Multibody) addLink(b body.Handle, parent int, data joint.Data) int {

	l := Link{
		Body:       b,
		Parent:     parent,
		Joint:      data,
		AssemblyID: mb.ndofs,
		dofAxes:    freeAxes(data.LockedAxes),
		worldPose:  util.IsoIdentity(),
	}
	nd := len(l.dofAxes)
	mb.links = append(mb.links, l)
	mb.ndofs += nd
	for i := 0; i < nd; i++ {
		mb.positions = append(mb.positions, 0)
		mb.velocities = append(mb.velocities, 0)
		mb.damping = append(mb.damping, 0)
	}
	mb.jacobians = append(mb.jacobians, nil)
	return len(mb.links) - 1
}

// JointPositions returns the generalized position vector.
func (mb *Multibody) JointPositions() []float64 {

	return mb.positions
}

// JointVelocities returns the generalized velocity vector.
func (mb *Multibody) JointVelocities() []float64 {

	return mb.velocities
}

// JointVelocity returns the generalized velocities of one link's
// degrees of freedom.
func (mb *Multibody) JointVelocity(l *Link) []float64 {

	return mb.velocities[l.AssemblyID : l.AssemblyID+l.NDofs()]
}

// SetJointDamping sets the generalized damping coefficient of every
// degree of freedom.
func (mb *Multibody) SetJointDamping(d float64) {

	for i := range mb.damping {
		mb.damping[i] = d
	}
}

// ForwardKinematics recomputes world placements, anchors and link
// jacobians from the generalized positions, and mirrors the results
// into the link bodies' predicted poses and velocities.
func (mb *Multibody) ForwardKinematics(bodies *body.Set) {

	for i := range mb.links {
		l := &mb.links[i]
		var parentPose util.Iso
		if l.Parent < 0 {
			// The root joint is anchored at the world origin; a fixed
			// root with a non-identity placement encodes it in the
			// joint frames.
			parentPose = util.IsoIdentity()
		} else {
			parentPose = mb.links[l.Parent].worldPose
		}
		q := mb.positions[l.AssemblyID : l.AssemblyID+l.NDofs()]
		anchorFrame := parentPose.Mul(l.Joint.LocalFrame1)
		l.worldAnchor = anchorFrame.Translation
		l.worldPose = anchorFrame.Mul(l.motion(q)).Mul(l.Joint.LocalFrame2.Inverse())
	}

	mb.updateJacobians(bodies)
	mb.mirrorToBodies(bodies)
}

// updateJacobians rebuilds the 6 x ndofs world jacobian of each link.
// Column d of link i maps the velocity of generalized coordinate d to
// the spatial velocity of link i measured at its COM.
func (mb *Multibody) updateJacobians(bodies *body.Set) {

	for i := range mb.links {
		l := &mb.links[i]
		jac := mb.jacobians[i]
		if len(jac) != 6*mb.ndofs {
			jac = make([]float64, 6*mb.ndofs)
			mb.jacobians[i] = jac
		}
		for k := range jac {
			jac[k] = 0
		}

		com := l.worldPose.TransformPoint(bodies.Position(l.Body.Index).LocalCom)

		// Walk the ancestor chain, including the link itself.
		for a := i; a >= 0; a = mb.links[a].Parent {
			al := &mb.links[a]
			var parentPose util.Iso
			if al.Parent < 0 {
				parentPose = util.IsoIdentity()
			} else {
				parentPose = mb.links[al.Parent].worldPose
			}
			anchorFrame := parentPose.Mul(al.Joint.LocalFrame1)

			for d, axis := range al.dofAxes {
				col := al.AssemblyID + d
				u := axisDir(anchorFrame, axis)
				if axis < joint.AxisAngX {
					// Prismatic dof: pure linear contribution.
					jac[0*mb.ndofs+col] += u[0]
					jac[1*mb.ndofs+col] += u[1]
					jac[2*mb.ndofs+col] += u[2]
				} else {
					// Revolute dof about the world anchor.
					lin := u.Cross(com.Sub(al.worldAnchor))
					jac[0*mb.ndofs+col] += lin[0]
					jac[1*mb.ndofs+col] += lin[1]
					jac[2*mb.ndofs+col] += lin[2]
					jac[3*mb.ndofs+col] += u[0]
					jac[4*mb.ndofs+col] += u[1]
					jac[5*mb.ndofs+col] += u[2]
				}
			}
		}
	}
}

// mirrorToBodies copies link placements and velocities into the rigid
// bodies representing the links, so contacts against links observe
// consistent state.
func (mb *Multibody) mirrorToBodies(bodies *body.Set) {

	for i := range mb.links {
		l := &mb.links[i]
		if !bodies.Contains(l.Body) {
			continue
		}
		pos := bodies.Position(l.Body.Index)
		pos.Next = l.worldPose
		pos.Pose = l.worldPose

		lin, ang := mb.LinkVelocity(i)
		vel := bodies.Velocity(l.Body.Index)
		vel.Linvel = lin
		vel.Angvel = ang
		bodies.MassProps(l.Body.Index).UpdateWorld(pos.Pose, pos.LocalCom)
	}
}

// LinkVelocity returns the world linear (at COM) and angular velocity
// of a link implied by the generalized velocities.
func (mb *Multibody) LinkVelocity(id int) (mgl64.Vec3, mgl64.Vec3) {

	jac := mb.jacobians[id]
	var lin, ang mgl64.Vec3
	for col := 0; col < mb.ndofs; col++ {
		qd := mb.velocities[col]
		if qd == 0 {
			continue
		}
		lin[0] += jac[0*mb.ndofs+col] * qd
		lin[1] += jac[1*mb.ndofs+col] * qd
		lin[2] += jac[2*mb.ndofs+col] * qd
		ang[0] += jac[3*mb.ndofs+col] * qd
		ang[1] += jac[4*mb.ndofs+col] * qd
		ang[2] += jac[5*mb.ndofs+col] * qd
	}
	return lin, ang
}

// FillRow writes the generic constraint row for a world-space impulse
// (dir applied at the link COM, ang as a pure torque) into out, which
// must hold ndofs values: out[d] = dir . Jv[:,d] + ang . Jw[:,d].
func (mb *Multibody) FillRow(linkID int, dir, ang mgl64.Vec3, out []float64) {

	jac := mb.jacobians[linkID]
	for col := 0; col < mb.ndofs; col++ {
		out[col] = dir[0]*jac[0*mb.ndofs+col] +
			dir[1]*jac[1*mb.ndofs+col] +
			dir[2]*jac[2*mb.ndofs+col] +
			ang[0]*jac[3*mb.ndofs+col] +
			ang[1]*jac[4*mb.ndofs+col] +
			ang[2]*jac[5*mb.ndofs+col]
	}
}

// UpdateAugmentedMass assembles the generalized mass matrix
// M = sum_l J_l^T M_l J_l plus the damping diagonal, and factorizes
// it. On failure the multibody is frozen for the step: all its links
// behave as fixed. Returns false on failure.
func (mb *Multibody) UpdateAugmentedMass(bodies *body.Set, dt float64) bool {

	n := mb.ndofs
	mb.frozen = false
	if n == 0 {
		return true
	}

	m := make([]float64, n*n)
	for i := range mb.links {
		l := &mb.links[i]
		if !bodies.Contains(l.Body) {
			continue
		}
		mp := bodies.MassProps(l.Body.Index)
		mass := util.Inv(mp.InvMass)
		inertia, ok := util.InvertSPD3(mp.WorldInvInertia)
		if !ok {
			inertia = mgl64.Mat3{}
		}
		jac := mb.jacobians[i]

		for r := 0; r < n; r++ {
			for c := r; c < n; c++ {
				sum := 0.0
				// Linear block: m * Jv_r . Jv_c
				for k := 0; k < 3; k++ {
					sum += mass * jac[k*n+r] * jac[k*n+c]
				}
				// Angular block: Jw_r . I Jw_c
				wr := mgl64.Vec3{jac[3*n+r], jac[4*n+r], jac[5*n+r]}
				wc := mgl64.Vec3{jac[3*n+c], jac[4*n+c], jac[5*n+c]}
				sum += wr.Dot(inertia.Mul3x1(wc))
				m[r*n+c] += sum
				if r != c {
					m[c*n+r] += sum
				}
			}
		}
	}
	for d := 0; d < n; d++ {
		m[d*n+d] += mb.damping[d] * dt
		if m[d*n+d] <= 0 {
			// A massless dof makes the system indefinite.
			mb.frozen = true
			return false
		}
	}

	sym := mat.NewSymDense(n, m)
	if ok := mb.chol.Factorize(sym); !ok {
		mb.frozen = true
		return false
	}
	return true
}

// InvMulVec solves M * x = rhs in place using the factorized augmented
// mass. A frozen multibody leaves rhs zeroed, making every constraint
// involving it inert.
func (mb *Multibody) InvMulVec(rhs []float64) {

	if mb.frozen {
		for i := range rhs {
			rhs[i] = 0
		}
		return
	}
	v := mat.NewVecDense(len(rhs), rhs)
	var out mat.VecDense
	if err := mb.chol.SolveVecTo(&out, v); err != nil {
		for i := range rhs {
			rhs[i] = 0
		}
		return
	}
	copy(rhs, out.RawVector().Data)
}

// IntegrateVelocities applies generalized forces (from link body force
// accumulators projected through the jacobians) to the generalized
// velocities. Positions are advanced by IntegratePositions.
func (mb *Multibody) IntegrateVelocities(bodies *body.Set, dt float64) {

	if mb.frozen || mb.ndofs == 0 {
		return
	}
	tau := make([]float64, mb.ndofs)
	for i := range mb.links {
		l := &mb.links[i]
		if !bodies.Contains(l.Body) {
			continue
		}
		f := bodies.Forces(l.Body.Index)
		row := make([]float64, mb.ndofs)
		mb.FillRow(i, f.Force, f.Torque, row)
		for d := range tau {
			tau[d] += row[d] * dt
		}
	}
	mb.InvMulVec(tau)
	for d := range mb.velocities {
		mb.velocities[d] += tau[d]
	}
}

// IntegratePositions advances the generalized positions by the
// generalized velocities.
func (mb *Multibody) IntegratePositions(dt float64) {

	if mb.frozen {
		return
	}
	for d := range mb.positions {
		mb.positions[d] += mb.velocities[d] * dt
	}
}

// ApplyGenericImpulses adds the solver's generic delta velocities,
// taken from the island lambda vector at this multibody's SolverID.
func (mb *Multibody) ApplyGenericImpulses(generic []float64) {

	if mb.frozen {
		return
	}
	for d := 0; d < mb.ndofs; d++ {
		mb.velocities[d] += generic[mb.SolverID+d]
	}
}
