// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package multibody implements reduced-coordinate articulated chains:
// trees of links whose joints expose generalized coordinates instead of
// per-body velocity constraints. The augmented mass matrix is rebuilt
// and factorized each step; constraints involving a link consult the
// factorization through link-local jacobians.
package multibody

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

// Link is one body of a multibody tree, attached to its parent by a
// joint with 0 to 6 degrees of freedom.
type Link struct {
	// Body is the rigid body mirroring this link in the body set.
	Body body.Handle

	// Parent is the index of the parent link, or -1 for the root.
	Parent int

	// Joint describes the connection to the parent. Its free (non
	// locked) axes are the degrees of freedom of this link.
	Joint joint.Data

	// AssemblyID is the column offset of this link's coordinates in
	// the multibody's generalized state.
	AssemblyID int

	dofAxes []joint.Axis

	// World placement, refreshed by forward kinematics.
	worldPose util.Iso
	// World anchor of the joint, used by rotational jacobian columns.
	worldAnchor mgl64.Vec3
}

// NDofs returns the number of degrees of freedom of the link's joint.
func (l *Link) NDofs() int {

	return len(l.dofAxes)
}

// DofAxes returns the free axes of the link's joint in canonical
// order (translations before rotations).
func (l *Link) DofAxes() []joint.Axis {

	return l.dofAxes
}

// WorldPose returns the link placement computed by the last forward
// kinematics pass.
func (l *Link) WorldPose() util.Iso {

	return l.worldPose
}

func freeAxes(locked joint.LockedAxes) []joint.Axis {

	var axes []joint.Axis
	for a := joint.Axis(0); a < joint.SpatialDim; a++ {
		if !locked.Contains(a) {
			axes = append(axes, a)
		}
	}
	return axes
}

// motion returns the local joint transform for the generalized
// coordinates q of this link: translations along the free linear axes
// followed by rotations about the free angular axes.
func (l *Link) motion(q []float64) util.Iso {

	tr := mgl64.Vec3{}
	rot := mgl64.QuatIdent()
	for i, a := range l.dofAxes {
		switch a {
		case joint.AxisX:
			tr[0] += q[i]
		case joint.AxisY:
			tr[1] += q[i]
		case joint.AxisZ:
			tr[2] += q[i]
		case joint.AxisAngX:
			rot = rot.Mul(mgl64.QuatRotate(q[i], mgl64.Vec3{1, 0, 0}))
		case joint.AxisAngY:
			rot = rot.Mul(mgl64.QuatRotate(q[i], mgl64.Vec3{0, 1, 0}))
		case joint.AxisAngZ:
			rot = rot.Mul(mgl64.QuatRotate(q[i], mgl64.Vec3{0, 0, 1}))
		}
	}
	return util.NewIso(tr, rot)
}

// axisDir returns the world direction of one joint axis given the
// world joint frame.
func axisDir(frame util.Iso, a joint.Axis) mgl64.Vec3 {

	switch a {
	case joint.AxisX, joint.AxisAngX:
		return frame.TransformVector(mgl64.Vec3{1, 0, 0})
	case joint.AxisY, joint.AxisAngY:
		return frame.TransformVector(mgl64.Vec3{0, 1, 0})
	default:
		return frame.TransformVector(mgl64.Vec3{0, 0, 1})
	}
}
