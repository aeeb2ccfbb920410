// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package multibody

import (
	"github.com/edaniels/golog"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/joint"
)

// LinkRef locates a rigid body inside a multibody.
type LinkRef struct {
	Multibody int
	LinkID    int
}

// JointSet owns every multibody of a simulation and maps rigid bodies
// to the links mirroring them.
type JointSet struct {
	multibodies []*Multibody
	byBody      map[body.Handle]LinkRef
	log         golog.Logger
}

// NewJointSet creates and returns a pointer to a new empty JointSet.
func NewJointSet(log golog.Logger) *JointSet {

	s := new(JointSet)
	s.byBody = make(map[body.Handle]LinkRef)
	s.log = log
	return s
}

// Len returns the number of multibodies.
func (s *JointSet) Len() int {

	return len(s.multibodies)
}

// Multibody returns the multibody with the given index.
func (s *JointSet) Multibody(i int) *Multibody {

	return s.multibodies[i]
}

// InsertRoot starts a new multibody rooted at the given body and
// returns its index. A zero-DOF root joint fixes the root in place.
func (s *JointSet) InsertRoot(root body.Handle, rootJoint joint.Data) int {

	mb := New(root, rootJoint)
	s.multibodies = append(s.multibodies, mb)
	idx := len(s.multibodies) - 1
	s.byBody[root] = LinkRef{Multibody: idx, LinkID: 0}
	return idx
}

// InsertJoint attaches child to parent through the given joint data.
// parent must already be a link of a multibody. Returns the new link's
// reference and false if parent is unknown.
func (s *JointSet) InsertJoint(parent, child body.Handle, data joint.Data) (LinkRef, bool) {

	ref, ok := s.byBody[parent]
	if !ok {
		return LinkRef{}, false
	}
	mb := s.multibodies[ref.Multibody]
	linkID := mb.AddLink(ref.LinkID, data, child)
	out := LinkRef{Multibody: ref.Multibody, LinkID: linkID}
	s.byBody[child] = out
	return out, true
}

// RigidBodyLink returns the link mirroring the given body, if any.
func (s *JointSet) RigidBodyLink(h body.Handle) (LinkRef, bool) {

	ref, ok := s.byBody[h]
	return ref, ok
}

// UpdateKinematics runs forward kinematics on every multibody.
func (s *JointSet) UpdateKinematics(bodies *body.Set) {

	for _, mb := range s.multibodies {
		mb.ForwardKinematics(bodies)
	}
}

// UpdateAugmentedMasses refactorizes every multibody's augmented mass
// and assigns solver ids (row offsets into the generic lambda vector).
// Factorization failures freeze the multibody for the step and are
// logged.
func (s *JointSet) UpdateAugmentedMasses(bodies *body.Set, dt float64) int {

	offset := 0
	for i, mb := range s.multibodies {
		mb.SolverID = offset
		offset += mb.NDofs()
		if !mb.UpdateAugmentedMass(bodies, dt) && s.log != nil {
			s.log.Warnw("multibody augmented mass factorization failed; freezing for this step",
				"multibody", i, "ndofs", mb.NDofs())
		}
	}
	return offset
}

// TotalNDofs returns the summed generalized coordinate count, i.e. the
// length of the generic lambda vector.
func (s *JointSet) TotalNDofs() int {

	n := 0
	for _, mb := range s.multibodies {
		n += mb.NDofs()
	}
	return n
}
