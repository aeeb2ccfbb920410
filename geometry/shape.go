// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geometry

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Shape is the contract a collision shape fulfills toward the dynamics
// core: it only needs to describe its mass distribution and bounding
// radius. Collision detection against shapes happens in the external
// narrow phase.
type Shape interface {
	// MassProperties returns the mass, the local inertia tensor and the
	// local center of mass of the shape for the given density.
	MassProperties(density float64) (mass float64, inertia mgl64.Mat3, com mgl64.Vec3)

	// BoundingRadius returns the radius of the smallest origin-centered
	// sphere enclosing the shape.
	BoundingRadius() float64
}

// Ball is a sphere shape centered at the local origin.
type Ball struct {
	Radius float64
}

// MassProperties implements the Shape interface.
func (b Ball) MassProperties(density float64) (float64, mgl64.Mat3, mgl64.Vec3) {

	r := b.Radius
	mass := density * 4.0 / 3.0 * 3.141592653589793 * r * r * r
	i := 2.0 / 5.0 * mass * r * r
	return mass, mgl64.Diag3(mgl64.Vec3{i, i, i}), mgl64.Vec3{}
}

// BoundingRadius implements the Shape interface.
func (b Ball) BoundingRadius() float64 {

	return b.Radius
}

// Cuboid is a box shape given by its half extents, centered at the
// local origin.
type Cuboid struct {
	HalfExtents mgl64.Vec3
}

// MassProperties implements the Shape interface.
func (c Cuboid) MassProperties(density float64) (float64, mgl64.Mat3, mgl64.Vec3) {

	hx, hy, hz := c.HalfExtents[0], c.HalfExtents[1], c.HalfExtents[2]
	mass := density * 8 * hx * hy * hz
	k := mass / 3.0
	return mass, mgl64.Diag3(mgl64.Vec3{
		k * (hy*hy + hz*hz),
		k * (hx*hx + hz*hz),
		k * (hx*hx + hy*hy),
	}), mgl64.Vec3{}
}

// BoundingRadius implements the Shape interface.
func (c Cuboid) BoundingRadius() float64 {

	return c.HalfExtents.Len()
}
