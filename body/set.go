// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package body

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/arena"
	"github.com/g3n/dynamics/util"
)

// Handle identifies a rigid body.
type Handle = arena.Handle

// Waker is notified whenever a sleeping or sleepy body must be woken,
// e.g. because an impulse was applied or a constraint was attached.
// The island manager implements it.
type Waker interface {
	Wake(h Handle)
}

// PositionRead is the position-read capability over a body set.
type PositionRead interface {
	Position(i uint32) *Position
}

// VelocityRead is the velocity-read capability over a body set.
type VelocityRead interface {
	Velocity(i uint32) *Velocity
}

// MassPropsRead is the mass-properties-read capability over a body set.
type MassPropsRead interface {
	MassProps(i uint32) *MassProps
}

// IdsRead is the solver-ids-read capability over a body set.
type IdsRead interface {
	Ids(i uint32) *Ids
}

// TypeRead is the body-type-read capability over a body set.
type TypeRead interface {
	Type(i uint32) Type
}

// ContainsRead is the handle-validity-read capability over a body set.
type ContainsRead interface {
	Contains(h Handle) bool
}

// SolverRead bundles the read capabilities the constraint assembler
// requests. The assembler never mutates bodies.
type SolverRead interface {
	PositionRead
	VelocityRead
	MassPropsRead
	IdsRead
	TypeRead
	ContainsRead
}

// Desc describes a rigid body to insert.
type Desc struct {
	Type           Type
	Pose           util.Iso
	Linvel         mgl64.Vec3
	Angvel         mgl64.Vec3
	LinearDamping  float64
	AngularDamping float64
	CanSleep       bool
}

// NewDynamicDesc returns a Desc for a dynamic body at the given pose.
func NewDynamicDesc(pose util.Iso) Desc {

	return Desc{Type: Dynamic, Pose: pose, CanSleep: true}
}

// NewFixedDesc returns a Desc for a fixed body at the given pose.
func NewFixedDesc(pose util.Iso) Desc {

	return Desc{Type: Fixed, Pose: pose}
}

type snapshot struct {
	pose  util.Iso
	vel   Velocity
	valid bool
}

// Set stores rigid bodies as parallel component arrays indexed by the
// arena slot of each body.
type Set struct {
	arena *arena.Arena

	positions  []Position
	velocities []Velocity
	massProps  []MassProps
	forces     []Forces
	dampings   []Damping
	ids        []Ids
	types      []Type
	activation []Activation

	snapshots      []snapshot
	warnedMass     []bool
	attachedJoints [][]arena.Handle // impulse joints per body, for cascade removal

	waker Waker
	log   golog.Logger
}

// NewSet creates and returns a pointer to a new empty body Set.
func NewSet(log golog.Logger) *Set {

	s := new(Set)
	s.arena = arena.New()
	s.log = log
	return s
}

// SetWaker installs the waker notified on impulses and joint insertions.
func (s *Set) SetWaker(w Waker) {

	s.waker = w
}

// Len returns the number of live bodies.
func (s *Set) Len() int {

	return s.arena.Len()
}

// Insert adds a body described by d and returns its handle.
func (s *Set) Insert(d Desc) Handle {

	h := s.arena.Insert(nil)
	s.grow(int(h.Index) + 1)
	i := h.Index

	if d.Pose.Rotation.Len() == 0 {
		d.Pose.Rotation = mgl64.QuatIdent()
	}
	s.positions[i] = Position{Pose: d.Pose, Next: d.Pose}
	s.velocities[i] = Velocity{Linvel: d.Linvel, Angvel: d.Angvel}
	s.massProps[i] = MassProps{}
	s.forces[i] = Forces{}
	s.dampings[i] = Damping{Linear: d.LinearDamping, Angular: d.AngularDamping}
	s.ids[i] = Ids{ActiveSetOffset: -1, IslandID: -1}
	s.types[i] = d.Type
	s.activation[i] = Activation{State: Awake, CanSleep: d.CanSleep}
	s.snapshots[i] = snapshot{}
	s.warnedMass[i] = false
	s.attachedJoints[i] = s.attachedJoints[i][:0]

	if d.Type == Dynamic {
		// Unit mass until the user or an attached collider sets mass
		// properties.
		s.SetMassProperties(h, 1, mgl64.Ident3(), mgl64.Vec3{})
	}
	return h
}

// Remove deletes the body addressed by h. Returns the handles of the
// impulse joints that were attached to it so the caller can cascade
// their removal. Returns nil, false for stale handles.
func (s *Set) Remove(h Handle) ([]arena.Handle, bool) {

	if !s.arena.Contains(h) {
		return nil, false
	}
	s.arena.Remove(h)
	joints := append([]arena.Handle(nil), s.attachedJoints[h.Index]...)
	s.attachedJoints[h.Index] = s.attachedJoints[h.Index][:0]
	return joints, true
}

// Contains reports whether h addresses a live body.
func (s *Set) Contains(h Handle) bool {

	return s.arena.Contains(h)
}

// Each calls fn for every live body.
func (s *Set) Each(fn func(h Handle)) {

	s.arena.Each(func(h arena.Handle, _ interface{}) bool {
		fn(h)
		return true
	})
}

func (s *Set) grow(n int) {

	for len(s.positions) < n {
		s.positions = append(s.positions, Position{})
		s.velocities = append(s.velocities, Velocity{})
		s.massProps = append(s.massProps, MassProps{})
		s.forces = append(s.forces, Forces{})
		s.dampings = append(s.dampings, Damping{})
		s.ids = append(s.ids, Ids{})
		s.types = append(s.types, Fixed)
		s.activation = append(s.activation, Activation{})
		s.snapshots = append(s.snapshots, snapshot{})
		s.warnedMass = append(s.warnedMass, false)
		s.attachedJoints = append(s.attachedJoints, nil)
	}
}

// Component accessors by slot index. The index of a live handle is
// always in range.

func (s *Set) Position(i uint32) *Position { return &s.positions[i] }

func (s *Set) Velocity(i uint32) *Velocity { return &s.velocities[i] }

func (s *Set) MassProps(i uint32) *MassProps { return &s.massProps[i] }

func (s *Set) Forces(i uint32) *Forces { return &s.forces[i] }

func (s *Set) Damping(i uint32) *Damping { return &s.dampings[i] }

func (s *Set) Ids(i uint32) *Ids { return &s.ids[i] }

func (s *Set) Type(i uint32) Type { return s.types[i] }

func (s *Set) Activation(i uint32) *Activation { return &s.activation[i] }

// SetMassProperties sets the mass, the full local inertia tensor and
// the local center of mass of a body. Non-dynamic bodies keep an
// inverse mass of zero regardless of the arguments.
func (s *Set) SetMassProperties(h Handle, mass float64, localInertia mgl64.Mat3, localCom mgl64.Vec3) bool {

	if !s.arena.Contains(h) {
		return false
	}
	i := h.Index
	mp := &s.massProps[i]
	pos := &s.positions[i]
	pos.LocalCom = localCom

	if !s.types[i].IsDynamic() {
		*mp = MassProps{}
		mp.UpdateWorld(pos.Pose, localCom)
		return true
	}

	mp.InvMass = util.Inv(mass)
	if inv, ok := util.InvertSPD3(localInertia); ok {
		mp.LocalInvInertia = inv
	} else {
		mp.LocalInvInertia = mgl64.Mat3{}
	}
	if sqrt, ok := util.SqrtSPD3(mp.LocalInvInertia); ok {
		mp.LocalInvInertiaSqrt = sqrt
	} else {
		mp.LocalInvInertiaSqrt = mgl64.Mat3{}
	}
	mp.UpdateWorld(pos.Pose, localCom)
	return true
}

// UpdateWorldMassProps refreshes the world-space mass terms of every
// live body from its current pose.
func (s *Set) UpdateWorldMassProps() {

	s.arena.Each(func(h arena.Handle, _ interface{}) bool {
		i := h.Index
		s.massProps[i].UpdateWorld(s.positions[i].Pose, s.positions[i].LocalCom)
		return true
	})
}

// AddForce accumulates a world-space force at the COM of a dynamic body
// and wakes it.
func (s *Set) AddForce(h Handle, force mgl64.Vec3) {

	if !s.arena.Contains(h) || !s.types[h.Index].IsDynamic() {
		return
	}
	s.forces[h.Index].Force = s.forces[h.Index].Force.Add(force)
	s.wake(h)
}

// AddTorque accumulates a world-space torque on a dynamic body and
// wakes it.
func (s *Set) AddTorque(h Handle, torque mgl64.Vec3) {

	if !s.arena.Contains(h) || !s.types[h.Index].IsDynamic() {
		return
	}
	s.forces[h.Index].Torque = s.forces[h.Index].Torque.Add(torque)
	s.wake(h)
}

// ApplyImpulse immediately changes the linear velocity of a dynamic
// body and wakes it.
func (s *Set) ApplyImpulse(h Handle, impulse mgl64.Vec3) {

	if !s.arena.Contains(h) || !s.types[h.Index].IsDynamic() {
		return
	}
	i := h.Index
	v := &s.velocities[i]
	v.Linvel = v.Linvel.Add(impulse.Mul(s.massProps[i].InvMass))
	s.wake(h)
}

// ApplyTorqueImpulse immediately changes the angular velocity of a
// dynamic body and wakes it.
func (s *Set) ApplyTorqueImpulse(h Handle, impulse mgl64.Vec3) {

	if !s.arena.Contains(h) || !s.types[h.Index].IsDynamic() {
		return
	}
	i := h.Index
	v := &s.velocities[i]
	v.Angvel = v.Angvel.Add(s.massProps[i].WorldInvInertia.Mul3x1(impulse))
	s.wake(h)
}

// ClearForces zeroes the per-step force accumulators of all bodies.
func (s *Set) ClearForces() {

	for i := range s.forces {
		s.forces[i] = Forces{}
	}
}

// AttachJoint records a joint attached to the body for cascade removal
// and wakes the body.
func (s *Set) AttachJoint(h Handle, jh arena.Handle) {

	if !s.arena.Contains(h) {
		return
	}
	s.attachedJoints[h.Index] = append(s.attachedJoints[h.Index], jh)
	s.wake(h)
}

// DetachJoint forgets a joint previously attached to the body.
func (s *Set) DetachJoint(h Handle, jh arena.Handle) {

	if int(h.Index) >= len(s.attachedJoints) {
		return
	}
	list := s.attachedJoints[h.Index]
	for k, cur := range list {
		if cur == jh {
			list[k] = list[len(list)-1]
			s.attachedJoints[h.Index] = list[:len(list)-1]
			return
		}
	}
}

func (s *Set) wake(h Handle) {

	if s.waker != nil {
		s.waker.Wake(h)
	}
}

// HasDegenerateMass reports whether a dynamic body carries a zero or
// non-finite mass, logging the first occurrence per body.
func (s *Set) HasDegenerateMass(i uint32) bool {

	if !s.types[i].IsDynamic() {
		return false
	}
	mp := &s.massProps[i]
	bad := mp.InvMass == 0 || math.IsNaN(mp.InvMass) || math.IsInf(mp.InvMass, 0)
	if bad && !s.warnedMass[i] {
		s.warnedMass[i] = true
		if s.log != nil {
			s.log.Warnw("skipping body with degenerate mass", "slot", i)
		}
	}
	return bad
}

// CaptureSnapshot saves the current pose and velocity of a body as the
// last known finite state.
func (s *Set) CaptureSnapshot(i uint32) {

	s.snapshots[i] = snapshot{
		pose:  s.positions[i].Pose,
		vel:   s.velocities[i],
		valid: true,
	}
}

// RestoreSnapshot restores the last finite state of a body, or clamps
// its velocity to zero when no snapshot exists. Returns true when a
// snapshot was restored.
func (s *Set) RestoreSnapshot(i uint32) bool {

	snap := &s.snapshots[i]
	if snap.valid {
		s.positions[i].Pose = snap.pose
		s.positions[i].Next = snap.pose
		s.velocities[i] = snap.vel
		return true
	}
	s.velocities[i] = Velocity{}
	if !s.positions[i].Pose.IsFinite() {
		s.positions[i].Pose = util.IsoIdentity()
	}
	s.positions[i].Next = s.positions[i].Pose
	return false
}
