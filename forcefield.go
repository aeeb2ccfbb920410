// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"github.com/go-gl/mathgl/mgl64"
)

// ForceField is a force over space applied to every dynamic body each
// step, in addition to gravity.
type ForceField interface {
	// ForceAt returns the acceleration applied to a body at the given
	// position. The driver scales it by the body's mass.
	ForceAt(pos mgl64.Vec3) mgl64.Vec3
}

// ConstantForceField is a uniform acceleration field.
type ConstantForceField struct {
	accel mgl64.Vec3
}

// NewConstantForceField creates and returns a pointer to a new
// ConstantForceField with the given acceleration.
func NewConstantForceField(accel mgl64.Vec3) *ConstantForceField {

	return &ConstantForceField{accel: accel}
}

// SetForce sets the field's acceleration.
func (f *ConstantForceField) SetForce(accel mgl64.Vec3) {

	f.accel = accel
}

// ForceAt implements the ForceField interface.
func (f *ConstantForceField) ForceAt(pos mgl64.Vec3) mgl64.Vec3 {

	return f.accel
}

// AttractorForceField pulls bodies toward a point with an
// inverse-square falloff.
type AttractorForceField struct {
	position mgl64.Vec3
	strength float64
}

// NewAttractorForceField creates and returns a pointer to a new
// AttractorForceField.
func NewAttractorForceField(position mgl64.Vec3, strength float64) *AttractorForceField {

	return &AttractorForceField{position: position, strength: strength}
}

// SetPosition sets the attractor center.
func (f *AttractorForceField) SetPosition(pos mgl64.Vec3) {

	f.position = pos
}

// ForceAt implements the ForceField interface.
func (f *AttractorForceField) ForceAt(pos mgl64.Vec3) mgl64.Vec3 {

	dir := f.position.Sub(pos)
	d2 := dir.Dot(dir)
	if d2 < 1e-9 {
		return mgl64.Vec3{}
	}
	return dir.Normalize().Mul(f.strength / d2)
}
