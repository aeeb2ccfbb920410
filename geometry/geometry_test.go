// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package geometry

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/util"
)

func Test_material01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("material01. combine rules")

	m1 := Material{Friction: 0.2, Restitution: 0.8}
	m2 := Material{Friction: 0.6, Restitution: 0.4}

	chk.Float64(tst, "average friction", 1e-15, CombineFriction(&m1, &m2), 0.4)

	m1.FrictionCombine = CombineMin
	chk.Float64(tst, "min friction", 1e-15, CombineFriction(&m1, &m2), 0.2)

	m2.FrictionCombine = CombineMax
	chk.Float64(tst, "max wins over min", 1e-15, CombineFriction(&m1, &m2), 0.6)

	m1.RestitutionCombine = CombineMultiply
	chk.Float64(tst, "multiply restitution", 1e-15, CombineRestitution(&m1, &m2), 0.32)
}

func Test_shape01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("shape01. shape mass properties")

	mass, inertia, com := Ball{Radius: 2}.MassProperties(1)
	chk.Float64(tst, "ball mass", 1e-9, mass, 4.0/3.0*3.141592653589793*8)
	chk.Float64(tst, "ball ixx", 1e-9, inertia.At(0, 0), 2.0/5.0*mass*4)
	chk.Float64(tst, "ball com", 1e-15, com.Len(), 0)

	mass, inertia, _ = Cuboid{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}}.MassProperties(2)
	chk.Float64(tst, "cube mass", 1e-12, mass, 2)
	chk.Float64(tst, "cube ixx", 1e-12, inertia.At(0, 0), mass/3.0*0.5)
}

func Test_collider01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("collider01. parent mapping and cascade removal")

	bodies := body.NewSet(golog.NewTestLogger(tst))
	b := bodies.Insert(body.NewDynamicDesc(util.IsoIdentity()))

	cs := NewColliderSet()
	c1 := cs.Insert(&Collider{Shape: Ball{Radius: 1}, Parent: b, HasParent: true})
	c2 := cs.Insert(&Collider{Shape: Cuboid{HalfExtents: mgl64.Vec3{1, 1, 1}}, Parent: b, HasParent: true})
	free := cs.Insert(&Collider{Shape: Ball{Radius: 5}})

	chk.Int(tst, "len", cs.Len(), 3)
	chk.Int(tst, "attached", len(cs.Attached(b)), 2)

	removed := cs.RemoveAttached(b)
	chk.Int(tst, "removed", len(removed), 2)
	if cs.Get(c1) != nil || cs.Get(c2) != nil {
		tst.Errorf("attached colliders survived cascade\n")
		return
	}
	if cs.Get(free) == nil {
		tst.Errorf("parentless collider removed by cascade\n")
	}
}

func Test_manifold01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("manifold01. canonical keys order by body handles")

	b1 := body.Handle{Index: 3, Generation: 1}
	b2 := body.Handle{Index: 7, Generation: 2}
	m := &ContactManifold{Body1: b1, Body2: b2}
	k := m.Key()
	chk.Int(tst, "k0", int(k[0]), 3)
	chk.Int(tst, "k2", int(k[2]), 7)
}
