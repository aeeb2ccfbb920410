// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package joint

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/util"
)

func Test_axes01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("axes01. locked axes bitmask")

	l := LockAllLin | LockAngY
	chk.Int(tst, "count", l.Count(), 4)
	if !l.Contains(AxisX) || !l.Contains(AxisAngY) {
		tst.Errorf("expected axes not locked\n")
	}
	if l.Contains(AxisAngX) {
		tst.Errorf("unexpected axis locked\n")
	}
}

func Test_derived01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("derived01. derived joints lock the right axes")

	rev := NewRevolute(mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{0, 0, 1}, mgl64.Vec3{0, 0, 1})
	chk.Int(tst, "revolute dofs", SpatialDim-rev.LockedAxes.Count(), 1)
	if rev.LockedAxes.Contains(AxisAngX) {
		tst.Errorf("revolute locks its own rotation axis\n")
	}

	pri := NewPrismatic(mgl64.Vec3{}, mgl64.Vec3{}, mgl64.Vec3{0, 1, 0}, mgl64.Vec3{0, 1, 0})
	chk.Int(tst, "prismatic dofs", SpatialDim-pri.LockedAxes.Count(), 1)
	if pri.LockedAxes.Contains(AxisX) {
		tst.Errorf("prismatic locks its own translation axis\n")
	}

	ball := NewBall(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{-1, 0, 0})
	chk.Int(tst, "ball locked", ball.LockedAxes.Count(), 3)

	fixed := NewFixed(util.IsoIdentity(), util.IsoIdentity())
	chk.Int(tst, "fixed locked", fixed.LockedAxes.Count(), 6)

	// The canonical frame maps local X onto the requested axis.
	axis := mgl64.Vec3{0, 0, 1}
	d := NewRevolute(mgl64.Vec3{}, mgl64.Vec3{}, axis, axis)
	mapped := d.LocalFrame1.TransformVector(mgl64.Vec3{1, 0, 0})
	chk.Array(tst, "axis mapping", 1e-12, mapped[:], axis[:])
}

func Test_motor01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("motor01. acceleration-based gains normalize")

	m := Motor{
		TargetVel:  2,
		Stiffness:  100,
		Damping:    20,
		MaxImpulse: 5,
		Model:      AccelerationBased,
	}
	dt := 1.0 / 60.0
	p := m.Params(dt)

	// Gains are scale free: multiplying both by 10 changes nothing.
	m2 := m
	m2.Stiffness *= 10
	m2.Damping *= 10
	p2 := m2.Params(dt)
	chk.Float64(tst, "stiffness scale free", 1e-12, p.Stiffness, p2.Stiffness)
	chk.Float64(tst, "damping scale free", 1e-12, p.Damping, p2.Damping)
	chk.Float64(tst, "max impulse kept", 1e-15, p.MaxImpulse, 5)

	// Force-based gains integrate over the step.
	mf := m
	mf.Model = ForceBased
	pf := mf.Params(dt)
	chk.Float64(tst, "force-based stiffness", 1e-12, pf.Stiffness, 100*dt)
	chk.Float64(tst, "force-based max impulse", 1e-12, pf.MaxImpulse, 5*dt)
}

func Test_set01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("set01. joint insertion wakes and attaches bodies")

	bodies := body.NewSet(golog.NewTestLogger(tst))
	b1 := bodies.Insert(body.NewDynamicDesc(util.IsoIdentity()))
	b2 := bodies.Insert(body.NewDynamicDesc(util.IsoIdentity()))

	js := NewImpulseJointSet()
	h, ok := js.Insert(bodies, b1, b2, NewBall(mgl64.Vec3{}, mgl64.Vec3{}))
	if !ok {
		tst.Errorf("insertion failed\n")
		return
	}
	chk.Int(tst, "len", js.Len(), 1)
	if js.Get(h) == nil {
		tst.Errorf("lookup failed\n")
		return
	}

	// Stale body handles refuse insertion.
	bodies.Remove(b2)
	if _, ok := js.Insert(bodies, b1, b2, NewBall(mgl64.Vec3{}, mgl64.Vec3{})); ok {
		tst.Errorf("insertion with a stale body succeeded\n")
	}

	js.Remove(bodies, h)
	chk.Int(tst, "len after remove", js.Len(), 0)
	if js.Get(h) != nil {
		tst.Errorf("stale joint lookup succeeded\n")
	}
}
