// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/go-gl/mathgl/mgl64"
)

func Test_scalar01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("scalar01. guarded inverse and flush")

	chk.Float64(tst, "inv(2)", 1e-15, Inv(2), 0.5)
	chk.Float64(tst, "inv(0)", 1e-15, Inv(0), 0)
	chk.Float64(tst, "inv(inf)", 1e-15, Inv(math.Inf(1)), 0)
	chk.Float64(tst, "inv(nan)", 1e-15, Inv(math.NaN()), 0)

	chk.Float64(tst, "flush denormal", 1e-320, FlushSmall(1e-310), 0)
	chk.Float64(tst, "flush keeps normal", 1e-15, FlushSmall(1e-10), 1e-10)
}

func Test_matrix01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("matrix01. cross-product matrix")

	v := mgl64.Vec3{1, 2, 3}
	u := mgl64.Vec3{-2, 0.5, 4}
	got := GCrossMatrix(v).Mul3x1(u)
	want := v.Cross(u)
	chk.Array(tst, "[v]x u", 1e-14, got[:], want[:])

	gotTr := GCrossMatrixTr(v).Mul3x1(u)
	wantTr := u.Cross(v)
	chk.Array(tst, "[v]x^T u", 1e-14, gotTr[:], wantTr[:])
}

func Test_matrix02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("matrix02. orthonormal basis")

	for _, n := range []mgl64.Vec3{
		{0, 1, 0}, {0, 0, 1}, {1, 0, 0}, {0, 0, -1},
		mgl64.Vec3{1, 2, -0.5}.Normalize(),
	} {
		basis := OrthonormalBasis(n)
		chk.Float64(tst, "t0.n", 1e-12, basis[0].Dot(n), 0)
		chk.Float64(tst, "t1.n", 1e-12, basis[1].Dot(n), 0)
		chk.Float64(tst, "t0.t1", 1e-12, basis[0].Dot(basis[1]), 0)
		chk.Float64(tst, "|t0|", 1e-12, basis[0].Len(), 1)
		chk.Float64(tst, "|t1|", 1e-12, basis[1].Len(), 1)

		o := OrthonormalVector(n)
		chk.Float64(tst, "o.n", 1e-12, o.Dot(n), 0)
		chk.Float64(tst, "|o|", 1e-12, o.Len(), 1)
	}
}

func Test_matrix03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("matrix03. SPD inverse and square root")

	m := mgl64.Mat3FromRows(
		mgl64.Vec3{4, 1, 0},
		mgl64.Vec3{1, 3, 0.5},
		mgl64.Vec3{0, 0.5, 2},
	)
	inv, ok := InvertSPD3(m)
	if !ok {
		tst.Errorf("SPD inverse failed\n")
		return
	}
	id := m.Mul3(inv)
	want := mgl64.Ident3()
	chk.Array(tst, "m m^-1", 1e-12, id[:], want[:])

	// Singular matrix returns zero and false.
	if _, ok := InvertSPD3(mgl64.Mat3{}); ok {
		tst.Errorf("singular inverse reported success\n")
		return
	}

	sqrt, ok := SqrtSPD3(m)
	if !ok {
		tst.Errorf("SPD square root failed\n")
		return
	}
	sq := sqrt.Mul3(sqrt)
	chk.Array(tst, "sqrt^2", 1e-10, sq[:], m[:])
}

func Test_iso01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("iso01. composition and inverse")

	a := NewIso(mgl64.Vec3{1, 2, 3}, mgl64.QuatRotate(math.Pi/3, mgl64.Vec3{0, 1, 0}))
	b := NewIso(mgl64.Vec3{-2, 0, 1}, mgl64.QuatRotate(-math.Pi/5, mgl64.Vec3{1, 0, 0}))

	p := mgl64.Vec3{0.3, -0.7, 2.1}
	got := a.Mul(b).TransformPoint(p)
	want := a.TransformPoint(b.TransformPoint(p))
	chk.Array(tst, "compose", 1e-12, got[:], want[:])

	back := a.Inverse().TransformPoint(a.TransformPoint(p))
	chk.Array(tst, "inverse", 1e-12, back[:], p[:])

	back2 := a.InverseTransformPoint(a.TransformPoint(p))
	chk.Array(tst, "inverse transform", 1e-12, back2[:], p[:])
}

func Test_iso02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("iso02. rotation integration")

	// Integrating at angular velocity w about Y for 1s rotates by |w|.
	q := mgl64.QuatIdent()
	w := mgl64.Vec3{0, 0.5, 0}
	dt := 1.0 / 60.0
	for i := 0; i < 60; i++ {
		q = IntegrateRotation(q, w, dt)
	}
	want := mgl64.QuatRotate(0.5, mgl64.Vec3{0, 1, 0})
	chk.Float64(tst, "angle error", 1e-6, AngleError(q, want), 0)

	// Small-angle branch stays normalized.
	q2 := IntegrateRotation(mgl64.QuatIdent(), mgl64.Vec3{1e-14, 0, 0}, dt)
	chk.Float64(tst, "norm", 1e-12, q2.Len(), 1)
}
