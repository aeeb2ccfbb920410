// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package joint

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/util"
)

// frameAlignedTo returns an isometry whose local X axis maps onto the
// given world axis. Joints are canonicalized so their principal axis is
// the local X axis of both frames.
func frameAlignedTo(anchor, axis mgl64.Vec3) util.Iso {

	axis = axis.Normalize()
	basis := util.OrthonormalBasis(axis)
	rot := mgl64.Mat4ToQuat(mgl64.Mat3{
		axis[0], axis[1], axis[2],
		basis[0][0], basis[0][1], basis[0][2],
		basis[1][0], basis[1][1], basis[1][2],
	}.Mat4())
	return util.NewIso(anchor, rot)
}

// NewRevolute returns the data of a revolute joint: all axes locked
// except the rotation about the given local axis.
func NewRevolute(anchor1, anchor2, axis1, axis2 mgl64.Vec3) Data {

	d := NewData(LockAllLin | LockAngY | LockAngZ)
	d.LocalFrame1 = frameAlignedTo(anchor1, axis1)
	d.LocalFrame2 = frameAlignedTo(anchor2, axis2)
	return d
}

// NewPrismatic returns the data of a prismatic joint: all axes locked
// except the translation along the given local axis.
func NewPrismatic(anchor1, anchor2, axis1, axis2 mgl64.Vec3) Data {

	d := NewData(LockY | LockZ | LockAllAng)
	d.LocalFrame1 = frameAlignedTo(anchor1, axis1)
	d.LocalFrame2 = frameAlignedTo(anchor2, axis2)
	return d
}

// NewBall returns the data of a ball (spherical) joint: translations
// locked, rotations free.
func NewBall(anchor1, anchor2 mgl64.Vec3) Data {

	d := NewData(LockAllLin)
	d.SetLocalAnchor1(anchor1)
	d.SetLocalAnchor2(anchor2)
	return d
}

// NewFixed returns the data of a fixed joint: all six axes locked.
func NewFixed(frame1, frame2 util.Iso) Data {

	d := NewData(LockAll)
	d.LocalFrame1 = frame1
	d.LocalFrame2 = frame2
	return d
}

// NewGeneric returns the data of a generic joint locking an arbitrary
// set of axes.
func NewGeneric(frame1, frame2 util.Iso, locked LockedAxes) Data {

	d := NewData(locked)
	d.LocalFrame1 = frame1
	d.LocalFrame2 = frame2
	return d
}
