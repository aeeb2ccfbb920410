// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package body implements rigid bodies as structure-of-arrays component
// records stored in a generational arena. The solver accesses the
// records through narrow capability interfaces so each phase only sees
// the fields it needs.
package body

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/util"
)

// Type specifies how a body is affected during the simulation.
type Type uint8

const (
	// Dynamic bodies are fully simulated.
	Dynamic = Type(iota)

	// KinematicPositionBased bodies are moved only by the user. The
	// engine neither integrates nor promotes their poses, and it does
	// not derive their velocities from pose changes: constraints see
	// whatever velocity the body carries.
	KinematicPositionBased

	// KinematicVelocityBased bodies are driven by user-set velocities.
	KinematicVelocityBased

	// Fixed bodies never move and behave as if they had infinite mass.
	Fixed
)

// IsDynamic reports whether the body responds to forces and impulses.
func (t Type) IsDynamic() bool {

	return t == Dynamic
}

// IsKinematic reports whether the body is kinematic (either flavor).
func (t Type) IsKinematic() bool {

	return t == KinematicPositionBased || t == KinematicVelocityBased
}

// SleepState is the activation state of a body.
type SleepState uint8

const (
	Awake = SleepState(iota)
	Sleepy
	Sleeping
)

// Position holds the current and predicted next pose of a body plus
// its local center of mass.
type Position struct {
	Pose     util.Iso   // Pose at the start of the step
	Next     util.Iso   // Predicted pose, promoted after the CCD pass
	LocalCom mgl64.Vec3 // Center of mass in body-local space
}

// Velocity holds the linear and angular velocity of a body, both in
// world space.
type Velocity struct {
	Linvel mgl64.Vec3
	Angvel mgl64.Vec3
}

// ApplyDamping returns the velocity damped over dt per channel.
func (v Velocity) ApplyDamping(dt float64, d *Damping) Velocity {

	lin := util.Clamp(1.0-dt*d.Linear, 0, 1)
	ang := util.Clamp(1.0-dt*d.Angular, 0, 1)
	return Velocity{
		Linvel: v.Linvel.Mul(lin),
		Angvel: v.Angvel.Mul(ang),
	}
}

// Integrate advances pose by this velocity over dt, rotating the body
// about its world center of mass with an exponential-map update.
func (v Velocity) Integrate(dt float64, pose util.Iso, localCom mgl64.Vec3) util.Iso {

	com := pose.TransformPoint(localCom)
	shift := com.Add(v.Linvel.Mul(dt))
	rot := util.IntegrateRotation(pose.Rotation, v.Angvel, dt)
	// Re-anchor the translation so the COM, not the origin, follows
	// the linear velocity.
	return util.Iso{
		Translation: shift.Sub(rot.Rotate(localCom)),
		Rotation:    rot,
	}
}

// PseudoKineticEnergy returns the unit-mass kinetic energy
// |v|^2 + |w|^2 used by the sleeping heuristic.
func (v Velocity) PseudoKineticEnergy() float64 {

	return v.Linvel.Dot(v.Linvel) + v.Angvel.Dot(v.Angvel)
}

// IsFinite reports whether both velocity channels are finite.
func (v Velocity) IsFinite() bool {

	return util.IsFiniteVec(v.Linvel) && util.IsFiniteVec(v.Angvel)
}

// MassProps holds the mass properties of a body. The local inverse
// inertia and its symmetric square root are fixed at mass-property
// updates; the world-space terms are refreshed from the pose each step.
type MassProps struct {
	InvMass             float64
	LocalInvInertia     mgl64.Mat3
	LocalInvInertiaSqrt mgl64.Mat3
	WorldInvInertia     mgl64.Mat3
	WorldInvInertiaSqrt mgl64.Mat3
	WorldCom            mgl64.Vec3
}

// UpdateWorld refreshes the world-space inertia terms and COM from the
// given pose. sqrt(R M R^T) == R sqrt(M) R^T, so the local square root
// is rotated rather than refactorized.
func (m *MassProps) UpdateWorld(pose util.Iso, localCom mgl64.Vec3) {

	r := util.QuatToMat3(pose.Rotation)
	rt := r.Transpose()
	m.WorldInvInertia = r.Mul3(m.LocalInvInertia).Mul3(rt)
	m.WorldInvInertiaSqrt = r.Mul3(m.LocalInvInertiaSqrt).Mul3(rt)
	m.WorldCom = pose.TransformPoint(localCom)
}

// Forces accumulates the external force and torque applied to a body
// during the current step. Cleared after integration.
type Forces struct {
	Force  mgl64.Vec3
	Torque mgl64.Vec3
}

// Damping holds per-channel velocity damping coefficients.
type Damping struct {
	Linear  float64
	Angular float64
}

// Ids locates a body inside the solver working sets.
// ActiveSetOffset is only valid while the body is awake.
type Ids struct {
	ActiveSetOffset int
	IslandID        int
}

// Activation tracks the sleep state machine of a body.
type Activation struct {
	State SleepState
	// Number of consecutive steps the body stayed below the sleep
	// energy threshold.
	SleepyCounter int
	CanSleep      bool
}
