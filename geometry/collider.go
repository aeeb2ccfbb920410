// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geometry

import (
	"github.com/g3n/dynamics/arena"
	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/util"
)

// Handle identifies a collider.
type Handle = arena.Handle

// Collider attaches a shape to a body, or stands alone as fixed
// geometry when it has no parent.
type Collider struct {
	Shape     Shape
	LocalPose util.Iso // Pose relative to the parent body
	Parent    body.Handle
	HasParent bool
	Material  Material
	Density   float64
	// Sensor colliders report intersections but generate no contact
	// response.
	Sensor bool
}

// ColliderSet stores colliders in a generational arena and maintains
// the body -> colliders mapping used for cascade removal and mass
// recomputation.
type ColliderSet struct {
	arena    *arena.Arena
	byParent map[body.Handle][]Handle
}

// NewColliderSet creates and returns a pointer to a new empty
// ColliderSet.
func NewColliderSet() *ColliderSet {

	cs := new(ColliderSet)
	cs.arena = arena.New()
	cs.byParent = make(map[body.Handle][]Handle)
	return cs
}

// Len returns the number of live colliders.
func (cs *ColliderSet) Len() int {

	return cs.arena.Len()
}

// Insert adds a collider and returns its handle. A collider with
// HasParent set must reference a live body; the bodies set enforces
// this at the Simulation level.
func (cs *ColliderSet) Insert(c *Collider) Handle {

	if c.LocalPose.Rotation.Len() == 0 {
		c.LocalPose.Rotation = util.IsoIdentity().Rotation
	}
	if c.Density == 0 {
		c.Density = 1
	}
	h := cs.arena.Insert(c)
	if c.HasParent {
		cs.byParent[c.Parent] = append(cs.byParent[c.Parent], h)
	}
	return h
}

// Get returns the collider addressed by h, or nil for stale handles.
func (cs *ColliderSet) Get(h Handle) *Collider {

	v := cs.arena.Get(h)
	if v == nil {
		return nil
	}
	return v.(*Collider)
}

// Remove deletes the collider addressed by h.
// Returns false for stale handles.
func (cs *ColliderSet) Remove(h Handle) bool {

	v := cs.arena.Remove(h)
	if v == nil {
		return false
	}
	c := v.(*Collider)
	if c.HasParent {
		list := cs.byParent[c.Parent]
		for i, cur := range list {
			if cur == h {
				list[i] = list[len(list)-1]
				cs.byParent[c.Parent] = list[:len(list)-1]
				break
			}
		}
	}
	return true
}

// RemoveAttached deletes every collider parented to the given body and
// returns their handles.
func (cs *ColliderSet) RemoveAttached(parent body.Handle) []Handle {

	list := append([]Handle(nil), cs.byParent[parent]...)
	for _, h := range list {
		cs.Remove(h)
	}
	delete(cs.byParent, parent)
	return list
}

// Attached returns the colliders parented to the given body.
func (cs *ColliderSet) Attached(parent body.Handle) []Handle {

	return cs.byParent[parent]
}

// Each calls fn for every live collider.
func (cs *ColliderSet) Each(fn func(h Handle, c *Collider)) {

	cs.arena.Each(func(h arena.Handle, v interface{}) bool {
		fn(h, v.(*Collider))
		return true
	})
}
