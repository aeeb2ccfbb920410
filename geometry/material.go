// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package geometry implements colliders, materials and contact
// manifolds, plus the contracts of the external broad and narrow
// phases. The solver core consumes manifolds; it never produces them.
package geometry

import "math"

// CombineRule specifies how the friction or restitution coefficients
// of two materials are merged for a contact.
type CombineRule uint8

const (
	CombineAverage = CombineRule(iota)
	CombineMin
	CombineMultiply
	CombineMax
)

// Material specifies the contact response coefficients of a collider.
type Material struct {
	Friction           float64
	Restitution        float64
	FrictionCombine    CombineRule
	RestitutionCombine CombineRule
}

// DefaultMaterial returns the material used when none is specified.
func DefaultMaterial() Material {

	return Material{Friction: 0.5}
}

func combine(rule CombineRule, a, b float64) float64 {

	switch rule {
	case CombineMin:
		return math.Min(a, b)
	case CombineMultiply:
		return a * b
	case CombineMax:
		return math.Max(a, b)
	default:
		return (a + b) * 0.5
	}
}

// CombineFriction merges the friction coefficients of two materials.
// The strongest rule of the pair wins.
func CombineFriction(m1, m2 *Material) float64 {

	rule := m1.FrictionCombine
	if m2.FrictionCombine > rule {
		rule = m2.FrictionCombine
	}
	return combine(rule, m1.Friction, m2.Friction)
}

// CombineRestitution merges the restitution coefficients of two
// materials. The strongest rule of the pair wins.
func CombineRestitution(m1, m2 *Material) float64 {

	rule := m1.RestitutionCombine
	if m2.RestitutionCombine > rule {
		rule = m2.RestitutionCombine
	}
	return combine(rule, m1.Restitution, m2.Restitution)
}
