// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// GCrossMatrix returns the skew-symmetric matrix [v]x such that
// [v]x * u == v x u.
func GCrossMatrix(v mgl64.Vec3) mgl64.Mat3 {

	return mgl64.Mat3FromRows(
		mgl64.Vec3{0, -v[2], v[1]},
		mgl64.Vec3{v[2], 0, -v[0]},
		mgl64.Vec3{-v[1], v[0], 0},
	)
}

// GCrossMatrixTr returns the transpose of GCrossMatrix(v).
func GCrossMatrixTr(v mgl64.Vec3) mgl64.Mat3 {

	return GCrossMatrix(v).Transpose()
}

// OrthonormalVector returns an arbitrary unit vector orthogonal to v.
// v must be a unit vector.
func OrthonormalVector(v mgl64.Vec3) mgl64.Vec3 {

	// Robust construction without branches on near-zero components.
	sign := math.Copysign(1.0, v[2])
	a := -1.0 / (sign + v[2])
	b := v[0] * v[1] * a
	return mgl64.Vec3{b, sign + v[1]*v[1]*a, -v[1]}
}

// OrthonormalBasis returns two unit vectors forming, together with the
// unit vector v, a right-handed orthonormal basis.
func OrthonormalBasis(v mgl64.Vec3) [2]mgl64.Vec3 {

	sign := math.Copysign(1.0, v[2])
	a := -1.0 / (sign + v[2])
	b := v[0] * v[1] * a
	return [2]mgl64.Vec3{
		{1.0 + sign*v[0]*v[0]*a, sign * b, -sign * v[0]},
		{b, sign + v[1]*v[1]*a, -v[1]},
	}
}

// InvertSPD3 inverts a symmetric positive-definite 3x3 matrix.
// Returns the zero matrix and false when the determinant is not
// positive and finite, which callers treat as a zero effective mass.
// Definiteness is not otherwise checked.
func InvertSPD3(m mgl64.Mat3) (mgl64.Mat3, bool) {

	// Cofactor expansion. Symmetry is assumed, not checked.
	c00 := m.At(1, 1)*m.At(2, 2) - m.At(1, 2)*m.At(2, 1)
	c01 := m.At(1, 2)*m.At(2, 0) - m.At(1, 0)*m.At(2, 2)
	c02 := m.At(1, 0)*m.At(2, 1) - m.At(1, 1)*m.At(2, 0)
	det := m.At(0, 0)*c00 + m.At(0, 1)*c01 + m.At(0, 2)*c02
	if det <= 0 || math.IsNaN(det) || math.IsInf(det, 0) {
		return mgl64.Mat3{}, false
	}
	inv := 1.0 / det
	c11 := m.At(0, 0)*m.At(2, 2) - m.At(0, 2)*m.At(2, 0)
	c12 := m.At(0, 1)*m.At(2, 0) - m.At(0, 0)*m.At(2, 1)
	c22 := m.At(0, 0)*m.At(1, 1) - m.At(0, 1)*m.At(1, 0)
	return mgl64.Mat3FromRows(
		mgl64.Vec3{c00 * inv, c01 * inv, c02 * inv},
		mgl64.Vec3{c01 * inv, c11 * inv, c12 * inv},
		mgl64.Vec3{c02 * inv, c12 * inv, c22 * inv},
	), true
}

// SqrtSPD3 returns the symmetric square root of a symmetric
// positive-semidefinite 3x3 matrix. Negative eigenvalues caused by
// round-off are clamped to zero. Returns false when the
// eigendecomposition fails.
func SqrtSPD3(m mgl64.Mat3) (mgl64.Mat3, bool) {

	sym := mat.NewSymDense(3, []float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(0, 1), m.At(1, 1), m.At(1, 2),
		m.At(0, 2), m.At(1, 2), m.At(2, 2),
	})

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return mgl64.Mat3{}, false
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// sqrt(M) = V * sqrt(D) * V^T
	var out mgl64.Mat3
	for k := 0; k < 3; k++ {
		ev := vals[k]
		if ev < 0 {
			ev = 0
		}
		s := math.Sqrt(ev)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				out[j*3+i] += s * vecs.At(i, k) * vecs.At(j, k)
			}
		}
	}
	return out, true
}

// QuatToMat3 converts a unit quaternion to its rotation matrix.
func QuatToMat3(q mgl64.Quat) mgl64.Mat3 {

	return q.Mat4().Mat3()
}
