// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package util implements the low-level math kernels shared by the
// dynamics solver: cross-product matrices, orthonormal bases, guarded
// inverses and the isometry type used for body and joint frames.
package util

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SmallestNormal is the smallest positive normal float64.
// Values below it are denormal and are flushed to zero by the solver
// hot loops to avoid micro-code stalls.
const SmallestNormal = 2.2250738585072014e-308

// Inv returns 1/x, or 0 when x is zero or non-finite.
// A zero result makes a singular effective mass contribute nothing
// instead of poisoning the sweep.
func Inv(x float64) float64 {

	if x == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return 1.0 / x
}

// Clamp limits x to the closed interval [lo, hi].
func Clamp(x, lo, hi float64) float64 {

	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// FlushSmall flushes denormal values to zero.
func FlushSmall(x float64) float64 {

	if x > -SmallestNormal && x < SmallestNormal {
		return 0
	}
	return x
}

// FlushSmallVec flushes each denormal component of v to zero.
func FlushSmallVec(v mgl64.Vec3) mgl64.Vec3 {

	return mgl64.Vec3{FlushSmall(v[0]), FlushSmall(v[1]), FlushSmall(v[2])}
}

// IsFiniteVec reports whether every component of v is finite.
func IsFiniteVec(v mgl64.Vec3) bool {

	for i := 0; i < 3; i++ {
		if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
			return false
		}
	}
	return true
}

// IsFiniteQuat reports whether every component of q is finite.
func IsFiniteQuat(q mgl64.Quat) bool {

	if math.IsNaN(q.W) || math.IsInf(q.W, 0) {
		return false
	}
	return IsFiniteVec(q.V)
}
