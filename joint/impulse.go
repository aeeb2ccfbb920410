// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package joint

import (
	"github.com/g3n/dynamics/arena"
	"github.com/g3n/dynamics/body"
)

// Handle identifies an impulse joint.
type Handle = arena.Handle

// ImpulseJoint attaches two bodies through a joint solved with
// velocity-level impulses. The cached impulses warm start the next
// step's solver iteration.
type ImpulseJoint struct {
	Body1 body.Handle
	Body2 body.Handle
	Data  Data

	// Cached impulses per axis, indexed like the LockedAxes bits.
	Impulses      [SpatialDim]float64
	LimitImpulses [SpatialDim]float64
	MotorImpulses [SpatialDim]float64

	handle Handle

	// Length of the assembler's output list when it reached this joint
	// in the current step. For joints whose rows are held back for lane
	// batching this is not the position of their rows. The solver does
	// not read it.
	ConstraintIndex int
}

// Handle returns the handle of the joint inside its set.
func (j *ImpulseJoint) Handle() Handle {

	return j.handle
}

// ImpulseJointSet stores impulse joints in a generational arena.
type ImpulseJointSet struct {
	arena *arena.Arena
}

// NewImpulseJointSet creates and returns a pointer to a new empty
// ImpulseJointSet.
func NewImpulseJointSet() *ImpulseJointSet {

	s := new(ImpulseJointSet)
	s.arena = arena.New()
	return s
}

// Len returns the number of live joints.
func (s *ImpulseJointSet) Len() int {

	return s.arena.Len()
}

// Insert adds a joint between body1 and body2 and returns its handle.
// The bodies set records the attachment for cascade removal.
func (s *ImpulseJointSet) Insert(bodies *body.Set, body1, body2 body.Handle, data Data) (Handle, bool) {

	if !bodies.Contains(body1) || !bodies.Contains(body2) {
		return Handle{}, false
	}
	j := &ImpulseJoint{Body1: body1, Body2: body2, Data: data}
	h := s.arena.Insert(j)
	j.handle = h
	bodies.AttachJoint(body1, h)
	bodies.AttachJoint(body2, h)
	return h, true
}

// Get returns the joint addressed by h, or nil for stale handles.
func (s *ImpulseJointSet) Get(h Handle) *ImpulseJoint {

	v := s.arena.Get(h)
	if v == nil {
		return nil
	}
	return v.(*ImpulseJoint)
}

// Remove deletes the joint addressed by h, detaching it from its
// bodies. Returns false for stale handles.
func (s *ImpulseJointSet) Remove(bodies *body.Set, h Handle) bool {

	v := s.arena.Remove(h)
	if v == nil {
		return false
	}
	j := v.(*ImpulseJoint)
	bodies.DetachJoint(j.Body1, h)
	bodies.DetachJoint(j.Body2, h)
	return true
}

// Each calls fn for every live joint, in slot order.
func (s *ImpulseJointSet) Each(fn func(h Handle, j *ImpulseJoint)) {

	s.arena.Each(func(h arena.Handle, v interface{}) bool {
		fn(h, v.(*ImpulseJoint))
		return true
	})
}
