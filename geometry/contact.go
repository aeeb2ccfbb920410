// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geometry

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
)

// MaxManifoldPoints is the maximum number of contact points tracked per
// manifold.
const MaxManifoldPoints = 4

// ContactPoint is one point of a contact manifold. Positions are
// stored in the local space of each collider; Dist is negative when
// the colliders penetrate. The impulses are the warm start for the
// next step.
type ContactPoint struct {
	LocalP1 mgl64.Vec3
	LocalP2 mgl64.Vec3
	Dist    float64

	NormalImpulse   float64
	TangentImpulses [2]float64
}

// ContactManifold is a set of contact points between two colliders
// sharing one normal, as produced by the external narrow phase.
type ContactManifold struct {
	Collider1 Handle
	Collider2 Handle
	Body1     body.Handle
	Body2     body.Handle

	// Contact normal in the local space of collider1, pointing from
	// collider1 toward collider2.
	LocalNormal1 mgl64.Vec3

	Points []ContactPoint

	// Coefficients already combined from the two collider materials.
	Friction    float64
	Restitution float64
}

// Key returns the ordering key of the manifold, built from its two
// body handles. Manifolds between the same two bodies share a key.
func (m *ContactManifold) Key() [4]uint32 {

	return [4]uint32{
		m.Body1.Index, m.Body1.Generation,
		m.Body2.Index, m.Body2.Generation,
	}
}

// BroadPhase is the contract of the external AABB culling stage.
type BroadPhase interface {
	// Update refreshes the spatial structure and returns candidate
	// collider pairs, inflated by the prediction distance.
	Update(colliders *ColliderSet, bodies *body.Set, predictionDistance float64) [][2]Handle
}

// NarrowPhase is the contract of the external contact generation
// stage.
type NarrowPhase interface {
	// Update computes contact manifolds for the candidate pairs.
	// Implementations reuse manifolds across steps so warm-start
	// impulses survive.
	Update(pairs [][2]Handle, colliders *ColliderSet, bodies *body.Set) []*ContactManifold
}
