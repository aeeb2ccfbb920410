// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package body

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/util"
)

func Test_velocity01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("velocity01. damping and integration")

	v := Velocity{Linvel: mgl64.Vec3{1, 0, 0}, Angvel: mgl64.Vec3{0, 2, 0}}
	d := Damping{Linear: 0.5, Angular: 1.0}
	dt := 0.1

	damped := v.ApplyDamping(dt, &d)
	chk.Float64(tst, "lin damped", 1e-14, damped.Linvel[0], 1*(1-0.05))
	chk.Float64(tst, "ang damped", 1e-14, damped.Angvel[1], 2*(1-0.1))

	// Pure translation.
	pose := util.IsoIdentity()
	next := Velocity{Linvel: mgl64.Vec3{0, -1, 0}}.Integrate(dt, pose, mgl64.Vec3{})
	chk.Float64(tst, "y after dt", 1e-14, next.Translation[1], -0.1)

	// Rotation about a COM offset from the origin keeps the COM on a
	// straight line.
	localCom := mgl64.Vec3{1, 0, 0}
	spin := Velocity{Angvel: mgl64.Vec3{0, 0, 3}}
	next = spin.Integrate(dt, pose, localCom)
	com := next.TransformPoint(localCom)
	chk.Array(tst, "com fixed", 1e-12, com[:], []float64{1, 0, 0})
}

func Test_massprops01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("massprops01. world inertia follows the pose")

	s := NewSet(golog.NewTestLogger(tst))
	h := s.Insert(NewDynamicDesc(util.IsoIdentity()))

	inertia := mgl64.Diag3(mgl64.Vec3{2, 4, 8})
	s.SetMassProperties(h, 2, inertia, mgl64.Vec3{})
	mp := s.MassProps(h.Index)
	chk.Float64(tst, "inv mass", 1e-14, mp.InvMass, 0.5)
	chk.Float64(tst, "local inv ixx", 1e-14, mp.LocalInvInertia.At(0, 0), 0.5)

	// Rotate 90 degrees about Z: the world X axis response becomes
	// the local Y axis response.
	pose := util.NewIso(mgl64.Vec3{}, mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 0, 1}))
	s.Position(h.Index).Pose = pose
	s.UpdateWorldMassProps()
	chk.Float64(tst, "world inv ixx", 1e-12, mp.WorldInvInertia.At(0, 0), 0.25)

	// The stored square root squares back to the inverse inertia.
	sq := mp.WorldInvInertiaSqrt.Mul3(mp.WorldInvInertiaSqrt)
	chk.Array(tst, "sqrt consistency", 1e-10, sq[:], mp.WorldInvInertia[:])
}

func Test_set01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("set01. non-dynamic bodies keep zero inverse mass")

	s := NewSet(golog.NewTestLogger(tst))
	h := s.Insert(NewFixedDesc(util.IsoIdentity()))
	s.SetMassProperties(h, 100, mgl64.Ident3(), mgl64.Vec3{})
	chk.Float64(tst, "fixed inv mass", 1e-15, s.MassProps(h.Index).InvMass, 0)

	// Impulses on fixed bodies are ignored.
	s.ApplyImpulse(h, mgl64.Vec3{10, 0, 0})
	chk.Float64(tst, "fixed velocity", 1e-15, s.Velocity(h.Index).Linvel[0], 0)
}

func Test_set02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("set02. snapshot capture and restore")

	s := NewSet(golog.NewTestLogger(tst))
	h := s.Insert(NewDynamicDesc(util.NewIso(mgl64.Vec3{0, 5, 0}, mgl64.QuatIdent())))
	s.CaptureSnapshot(h.Index)

	s.Position(h.Index).Pose.Translation = mgl64.Vec3{math.NaN(), 0, 0}
	s.Velocity(h.Index).Linvel = mgl64.Vec3{math.Inf(1), 0, 0}

	if !s.RestoreSnapshot(h.Index) {
		tst.Errorf("snapshot was not restored\n")
		return
	}
	chk.Float64(tst, "restored y", 1e-15, s.Position(h.Index).Pose.Translation[1], 5)
	chk.Float64(tst, "restored vx", 1e-15, s.Velocity(h.Index).Linvel[0], 0)
}
