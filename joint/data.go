// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package joint implements the canonical joint description shared by
// impulse joints and multibody joints: two local anchor frames, a
// bitmask of locked axes and optional per-axis limits and motors.
// Revolute, prismatic, ball and fixed joints are sugar over this form.
package joint

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/util"
)

// SpatialDim is the number of degrees of freedom of an unconstrained
// rigid body.
const SpatialDim = 6

// Axis indexes one degree of freedom of a joint.
type Axis uint8

const (
	AxisX = Axis(iota)
	AxisY
	AxisZ
	AxisAngX
	AxisAngY
	AxisAngZ
)

// LockedAxes is a bitmask over the six joint axes.
type LockedAxes uint8

const (
	LockX = LockedAxes(1 << iota)
	LockY
	LockZ
	LockAngX
	LockAngY
	LockAngZ

	LockAllLin = LockX | LockY | LockZ
	LockAllAng = LockAngX | LockAngY | LockAngZ
	LockAll    = LockAllLin | LockAllAng
)

// Contains reports whether axis a is locked.
func (l LockedAxes) Contains(a Axis) bool {

	return l&(1<<a) != 0
}

// Count returns the number of locked axes.
func (l LockedAxes) Count() int {

	n := 0
	for a := Axis(0); a < SpatialDim; a++ {
		if l.Contains(a) {
			n++
		}
	}
	return n
}

// Limits bounds the motion along one free axis. The limit constraint
// is one-sided: it only emits while violated.
type Limits struct {
	Enabled bool
	Min     float64
	Max     float64
}

// MotorModel selects how motor stiffness and damping are interpreted.
type MotorModel uint8

const (
	// AccelerationBased motors scale their gains by the effective mass,
	// making the response independent of the attached masses.
	AccelerationBased = MotorModel(iota)

	// ForceBased motors use their gains as raw force coefficients.
	ForceBased
)

// Motor drives one free axis toward a target position and/or velocity.
type Motor struct {
	Enabled    bool
	TargetPos  float64
	TargetVel  float64
	Stiffness  float64
	Damping    float64
	MaxImpulse float64
	Model      MotorModel
}

// MotorParams are the per-step solver coefficients derived from a
// motor configuration.
type MotorParams struct {
	TargetPos  float64
	TargetVel  float64
	Stiffness  float64
	Damping    float64
	MaxImpulse float64
}

// Params converts the motor gains into impulse-space coefficients for
// a step of length dt. For the acceleration-based model the gains are
// normalized so the resulting velocity bias does not depend on the
// magnitudes of stiffness and damping, only on their ratio.
func (m *Motor) Params(dt float64) MotorParams {

	p := MotorParams{
		TargetPos:  m.TargetPos,
		TargetVel:  m.TargetVel,
		Stiffness:  m.Stiffness,
		Damping:    m.Damping,
		MaxImpulse: m.MaxImpulse,
	}
	if m.Model == AccelerationBased {
		sd := dt*m.Stiffness + m.Damping
		if sd > 0 {
			inv := 1.0 / sd
			p.Stiffness = m.Stiffness * inv
			p.Damping = m.Damping * inv
		}
	} else {
		// Force-based gains integrate over the step.
		p.Stiffness = m.Stiffness * dt
		p.Damping = m.Damping * dt
		p.MaxImpulse = m.MaxImpulse * dt
	}
	return p
}

// Data is the canonical joint description. Frame1 and Frame2 are the
// joint anchor isometries in the local space of each attached body.
type Data struct {
	LocalFrame1 util.Iso
	LocalFrame2 util.Iso
	LockedAxes  LockedAxes
	Limits      [SpatialDim]Limits
	Motors      [SpatialDim]Motor
}

// NewData returns a Data locking the given axes, with identity frames.
func NewData(locked LockedAxes) Data {

	return Data{
		LocalFrame1: util.IsoIdentity(),
		LocalFrame2: util.IsoIdentity(),
		LockedAxes:  locked,
	}
}

// SetLocalAnchor1 sets the translational part of the first local frame.
func (d *Data) SetLocalAnchor1(p mgl64.Vec3) *Data {

	d.LocalFrame1.Translation = p
	return d
}

// SetLocalAnchor2 sets the translational part of the second local frame.
func (d *Data) SetLocalAnchor2(p mgl64.Vec3) *Data {

	d.LocalFrame2.Translation = p
	return d
}

// SetLimits enables limits on one axis.
func (d *Data) SetLimits(a Axis, min, max float64) *Data {

	d.Limits[a] = Limits{Enabled: true, Min: min, Max: max}
	return d
}

// SetMotor enables a motor on one axis.
func (d *Data) SetMotor(a Axis, m Motor) *Data {

	m.Enabled = true
	d.Motors[a] = m
	return d
}

// FreeAxesWithMotorOrLimit returns the number of free axes carrying a
// motor or a limit. Used to budget the generic jacobian buffer.
func (d *Data) FreeAxesWithMotorOrLimit() int {

	n := 0
	for a := Axis(0); a < SpatialDim; a++ {
		if d.LockedAxes.Contains(a) {
			continue
		}
		if d.Limits[a].Enabled || d.Motors[a].Enabled {
			n++
		}
	}
	return n
}
