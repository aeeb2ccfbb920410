// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Iso is a rigid transform (isometry): a rotation followed by a
// translation. It is the frame type used for body poses and joint
// anchors.
type Iso struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
}

// IsoIdentity returns the identity isometry.
func IsoIdentity() Iso {

	return Iso{Rotation: mgl64.QuatIdent()}
}

// NewIso creates an isometry from a translation and a rotation.
func NewIso(t mgl64.Vec3, r mgl64.Quat) Iso {

	return Iso{Translation: t, Rotation: r.Normalize()}
}

// Mul composes two isometries: (a * b)(p) == a(b(p)).
func (a Iso) Mul(b Iso) Iso {

	return Iso{
		Translation: a.Translation.Add(a.Rotation.Rotate(b.Translation)),
		Rotation:    a.Rotation.Mul(b.Rotation),
	}
}

// TransformPoint applies the isometry to a point.
func (a Iso) TransformPoint(p mgl64.Vec3) mgl64.Vec3 {

	return a.Rotation.Rotate(p).Add(a.Translation)
}

// TransformVector applies only the rotational part to a vector.
func (a Iso) TransformVector(v mgl64.Vec3) mgl64.Vec3 {

	return a.Rotation.Rotate(v)
}

// InverseTransformPoint applies the inverse isometry to a point.
func (a Iso) InverseTransformPoint(p mgl64.Vec3) mgl64.Vec3 {

	return a.Rotation.Conjugate().Rotate(p.Sub(a.Translation))
}

// Inverse returns the inverse isometry.
func (a Iso) Inverse() Iso {

	invRot := a.Rotation.Conjugate()
	return Iso{
		Translation: invRot.Rotate(a.Translation).Mul(-1),
		Rotation:    invRot,
	}
}

// IsFinite reports whether all components of the isometry are finite.
func (a Iso) IsFinite() bool {

	return IsFiniteVec(a.Translation) && IsFiniteQuat(a.Rotation)
}

// IntegrateRotation advances rotation q by the angular velocity w over
// dt using the exponential map and renormalizes the result.
func IntegrateRotation(q mgl64.Quat, w mgl64.Vec3, dt float64) mgl64.Quat {

	angle := w.Len() * dt
	if angle < 1e-12 {
		// Small-angle first-order update.
		dq := mgl64.Quat{W: 1, V: w.Mul(0.5 * dt)}
		return dq.Mul(q).Normalize()
	}
	axis := w.Normalize()
	dq := mgl64.QuatRotate(angle, axis)
	return dq.Mul(q).Normalize()
}

// AngleError returns the rotation angle, in radians, taking frame a
// into frame b. Used by joint anchor drift measurements.
func AngleError(a, b mgl64.Quat) float64 {

	d := b.Mul(a.Conjugate()).Normalize()
	w := Clamp(math.Abs(d.W), 0, 1)
	return 2 * math.Acos(w)
}
