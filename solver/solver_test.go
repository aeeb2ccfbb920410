// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/util"
)

func testParams() Params {

	dt := 1.0 / 60.0
	return Params{
		Dt:                       dt,
		Erp:                      0.8,
		JointErp:                 1.0,
		ErpInvDt:                 0.8 / dt,
		JointErpInvDt:            1.0 / dt,
		WarmstartCoeff:           1.0,
		AllowedLinearError:       0.005,
		MaxPenetrationCorrection: math.Inf(1),
		MaxCorrectiveVelocity:    10,
		RestitutionThreshold:     1.0,
		MaxVelocityIterations:    4,
		MaxPositionIterations:    1,
	}
}

// newBodyAt inserts a dynamic unit-mass, unit-inertia body and assigns
// its active-set offset.
func newBodyAt(bodies *body.Set, pos mgl64.Vec3, offset int) body.Handle {

	h := bodies.Insert(body.NewDynamicDesc(util.NewIso(pos, mgl64.QuatIdent())))
	bodies.SetMassProperties(h, 1, mgl64.Ident3(), mgl64.Vec3{})
	bodies.Ids(h.Index).ActiveSetOffset = offset
	bodies.Ids(h.Index).IslandID = 0
	return h
}

// groundManifold builds a one-point manifold between a fixed ground
// collider and a dynamic body resting on it, with the normal +Y.
func groundManifold(ground, b body.Handle, dist float64, friction float64) *geometry.ContactManifold {

	return &geometry.ContactManifold{
		Body1:        ground,
		Body2:        b,
		LocalNormal1: mgl64.Vec3{0, 1, 0},
		Friction:     friction,
		Points: []geometry.ContactPoint{{
			LocalP1: mgl64.Vec3{0, 0, 0},
			LocalP2: mgl64.Vec3{0, -0.5, 0},
			Dist:    dist,
		}},
	}
}

func Test_assembler01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("assembler01. static-static interactions emit nothing")

	params := testParams()
	bodies := body.NewSet(golog.NewTestLogger(tst))
	f1 := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	f2 := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))

	js := joint.NewImpulseJointSet()
	jh, _ := js.Insert(bodies, f1, f2, joint.NewFixed(util.IsoIdentity(), util.IsoIdentity()))
	var jac JacobianBuffer
	out := AssembleJoints(&params, bodies, nil, []*joint.ImpulseJoint{js.Get(jh)}, &jac, nil)
	chk.Int(tst, "joint constraints", len(out), 0)

	m := groundManifold(f1, f2, -0.01, 0.5)
	cout := AssembleContacts(&params, bodies, nil, []*geometry.ContactManifold{m}, &jac, nil)
	chk.Int(tst, "contact constraints", len(cout), 0)
}

func Test_assembler02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("assembler02. ground specialization and flipping")

	params := testParams()
	params.Deterministic = true
	bodies := body.NewSet(golog.NewTestLogger(tst))
	ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	box := newBodyAt(bodies, mgl64.Vec3{0, 0.5, 0}, 0)

	// Ground first: not flipped.
	m := groundManifold(ground, box, 0, 0.5)
	var jac JacobianBuffer
	out := AssembleContacts(&params, bodies, nil, []*geometry.ContactManifold{m}, &jac, nil)
	chk.Int(tst, "constraints", len(out), 1)
	gc, ok := out[0].(*ContactGroundConstraint)
	if !ok {
		tst.Errorf("expected a ground constraint, got %T\n", out[0])
		return
	}
	if gc.Flipped {
		tst.Errorf("unexpected flip\n")
	}
	chk.Float64(tst, "normal up", 1e-14, gc.Dir[1], 1)

	// Dynamic body first: flipped, and the solve direction still
	// points from the static side to the dynamic side.
	m2 := &geometry.ContactManifold{
		Body1:        box,
		Body2:        ground,
		LocalNormal1: mgl64.Vec3{0, -1, 0},
		Friction:     0.5,
		Points: []geometry.ContactPoint{{
			LocalP1: mgl64.Vec3{0, -0.5, 0},
			LocalP2: mgl64.Vec3{0, 0, 0},
			Dist:    0,
		}},
	}
	out = AssembleContacts(&params, bodies, nil, []*geometry.ContactManifold{m2}, &jac, nil)
	gc2 := out[0].(*ContactGroundConstraint)
	if !gc2.Flipped {
		tst.Errorf("expected a flipped constraint\n")
		return
	}
	chk.Float64(tst, "flipped normal up", 1e-14, gc2.Dir[1], 1)
}

func Test_solver01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("solver01. resting contact cancels gravity")

	params := testParams()
	params.Deterministic = true
	bodies := body.NewSet(golog.NewTestLogger(tst))
	ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	box := newBodyAt(bodies, mgl64.Vec3{0, 0.5, 0}, 0)
	bodies.Forces(box.Index).Force = mgl64.Vec3{0, -9.81, 0}

	manifolds := []*geometry.ContactManifold{groundManifold(ground, box, 0, 0.5)}
	s := NewIslandSolver()
	s.InitAndSolve(&params, []body.Handle{box}, 0, bodies, nil, manifolds, nil, 0, false)

	vel := bodies.Velocity(box.Index)
	chk.Float64(tst, "vertical velocity", 1e-10, vel.Linvel[1], 0)

	// The cached normal impulse equals the gravity impulse.
	chk.Float64(tst, "normal impulse", 1e-10,
		manifolds[0].Points[0].NormalImpulse, 9.81*params.Dt)
}

func Test_solver02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("solver02. warm-started equilibrium is idempotent")

	params := testParams()
	params.Deterministic = true
	bodies := body.NewSet(golog.NewTestLogger(tst))
	ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	box := newBodyAt(bodies, mgl64.Vec3{0, 0.5, 0}, 0)

	manifolds := []*geometry.ContactManifold{groundManifold(ground, box, 0, 0.5)}
	s := NewIslandSolver()

	// Two identical steps from equilibrium: the second must produce
	// the same cached impulse with no velocity drift.
	for step := 0; step < 2; step++ {
		bodies.Forces(box.Index).Force = mgl64.Vec3{0, -9.81, 0}
		s.InitAndSolve(&params, []body.Handle{box}, 0, bodies, nil, manifolds, nil, 0, false)
		bodies.Forces(box.Index).Force = mgl64.Vec3{}
		pos := bodies.Position(box.Index)
		pos.Pose = pos.Next
	}
	chk.Float64(tst, "velocity after warm start", 1e-6,
		bodies.Velocity(box.Index).Linvel.Len(), 0)
	chk.Float64(tst, "impulse stable", 1e-6,
		manifolds[0].Points[0].NormalImpulse, 9.81*params.Dt)
}

func Test_solver03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("solver03. friction clamps to the cone")

	params := testParams()
	params.Deterministic = true
	mu := 0.5
	bodies := body.NewSet(golog.NewTestLogger(tst))
	ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	box := newBodyAt(bodies, mgl64.Vec3{0, 0.5, 0}, 0)
	// Sliding fast: friction saturates at mu * normal impulse.
	bodies.Velocity(box.Index).Linvel = mgl64.Vec3{5, 0, 0}
	bodies.Forces(box.Index).Force = mgl64.Vec3{0, -9.81, 0}

	manifolds := []*geometry.ContactManifold{groundManifold(ground, box, 0, mu)}
	s := NewIslandSolver()
	s.InitAndSolve(&params, []body.Handle{box}, 0, bodies, nil, manifolds, nil, 0, false)

	pt := manifolds[0].Points[0]
	tangential := math.Hypot(pt.TangentImpulses[0], pt.TangentImpulses[1])
	if tangential > mu*pt.NormalImpulse+1e-12 {
		tst.Errorf("friction outside the cone: |t|=%v > mu*n=%v\n",
			tangential, mu*pt.NormalImpulse)
		return
	}
	// Saturated: the box keeps most of its slide this step.
	if bodies.Velocity(box.Index).Linvel[0] < 4 {
		tst.Errorf("friction removed too much velocity: %v\n",
			bodies.Velocity(box.Index).Linvel[0])
	}
}

func Test_solver04(tst *testing.T) {

	//verbose()
	chk.PrintTitle("solver04. equality joints conserve momentum")

	params := testParams()
	params.Deterministic = true
	bodies := body.NewSet(golog.NewTestLogger(tst))
	b1 := newBodyAt(bodies, mgl64.Vec3{-0.5, 0, 0}, 0)
	b2 := newBodyAt(bodies, mgl64.Vec3{0.5, 0, 0}, 1)
	bodies.Velocity(b1.Index).Linvel = mgl64.Vec3{1, 0.5, 0}
	bodies.Velocity(b2.Index).Linvel = mgl64.Vec3{-1, 0, 0.25}

	js := joint.NewImpulseJointSet()
	jh, _ := js.Insert(bodies, b1, b2,
		joint.NewBall(mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{-0.5, 0, 0}))

	before := bodies.Velocity(b1.Index).Linvel.Add(bodies.Velocity(b2.Index).Linvel)

	s := NewIslandSolver()
	s.InitAndSolve(&params, []body.Handle{b1, b2}, 0, bodies, nil, nil,
		[]*joint.ImpulseJoint{js.Get(jh)}, 0, false)

	after := bodies.Velocity(b1.Index).Linvel.Add(bodies.Velocity(b2.Index).Linvel)
	chk.Array(tst, "linear momentum", 1e-10, after[:], before[:])

	// The joint removed relative velocity at the anchor.
	rel := bodies.Velocity(b2.Index).Linvel.Sub(bodies.Velocity(b1.Index).Linvel)
	if rel.Len() > 1.0 {
		tst.Errorf("anchor velocities did not converge: %v\n", rel.Len())
	}
}

func Test_groups01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("groups01. colour groups never share a body")

	interactions := []Interaction{
		{Index: 0, MJ1: 0, MJ2: 1},
		{Index: 1, MJ1: 1, MJ2: 2},
		{Index: 2, MJ1: 2, MJ2: 3},
		{Index: 3, MJ1: 0, MJ2: 3},
		{Index: 4, MJ1: 4, MJ2: -1},
		{Index: 5, MJ1: -1, MJ2: 5, Generic: true},
	}
	byIndex := map[int]Interaction{}
	for _, it := range interactions {
		byIndex[it.Index] = it
	}

	var g InteractionGroups
	g.GroupInteractions(interactions)

	if !g.HasGeneric {
		tst.Errorf("generic group not flagged\n")
		return
	}
	total := 0
	for c := 0; c < g.NumGroups(); c++ {
		seen := map[int]bool{}
		generic := g.HasGeneric && c == g.NumGroups()-1
		for _, idx := range g.Group(c) {
			it := byIndex[idx]
			total++
			if generic {
				continue
			}
			for _, mj := range []int{it.MJ1, it.MJ2} {
				if mj < 0 {
					continue
				}
				if seen[mj] {
					tst.Errorf("group %d shares body %d\n", c, mj)
					return
				}
				seen[mj] = true
			}
		}
	}
	chk.Int(tst, "all placed", total, len(interactions))
}

func Test_jacobian01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("jacobian01. bump allocation and high-water reuse")

	var b JacobianBuffer
	off1 := b.Alloc(6)
	off2 := b.Alloc(4)
	chk.Int(tst, "first offset", off1, 0)
	chk.Int(tst, "second offset", off2, 6)
	rows := b.Rows(off2, 4)
	rows[0] = 3
	chk.Float64(tst, "write through", 1e-15, b.Rows(off2, 4)[0], 3)

	b.Reset()
	chk.Int(tst, "reset length", b.Len(), 0)
	off3 := b.Alloc(2)
	chk.Int(tst, "offset after reset", off3, 0)
	chk.Float64(tst, "zeroed after reuse", 1e-15, b.Rows(off3, 2)[0], 0)
}

func Test_parallel01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("parallel01. parallel solve matches serial on disjoint pairs")

	const n = 32
	build := func() (*body.Set, []body.Handle, []*geometry.ContactManifold) {
		bodies := body.NewSet(nil)
		ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
		handles := make([]body.Handle, n)
		manifolds := make([]*geometry.ContactManifold, n)
		for i := 0; i < n; i++ {
			handles[i] = newBodyAt(bodies, mgl64.Vec3{float64(i) * 3, 0.5, 0}, i)
			bodies.Forces(handles[i].Index).Force = mgl64.Vec3{0.1 * float64(i), -9.81, 0}
			manifolds[i] = groundManifold(ground, handles[i], -0.002, 0.4)
		}
		return bodies, handles, manifolds
	}

	params := testParams()
	params.Deterministic = true

	serialBodies, serialHandles, serialManifolds := build()
	serial := NewIslandSolver()
	serial.InitAndSolve(&params, serialHandles, 0, serialBodies, nil, serialManifolds, nil, 0, false)

	parBodies, parHandles, parManifolds := build()
	par := NewParallelIslandSolver(4, nil)
	par.InitAndSolve(&params, parHandles, 0, parBodies, nil, parManifolds, nil, 0, false)

	for i := 0; i < n; i++ {
		vs := serialBodies.Velocity(serialHandles[i].Index)
		vp := parBodies.Velocity(parHandles[i].Index)
		chk.Array(tst, "linvel", 1e-12, vp.Linvel[:], vs.Linvel[:])
		chk.Array(tst, "angvel", 1e-12, vp.Angvel[:], vs.Angvel[:])
		chk.Float64(tst, "impulse", 1e-12,
			parManifolds[i].Points[0].NormalImpulse,
			serialManifolds[i].Points[0].NormalImpulse)
	}
}

func Test_position01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("position01. penetration shrinks below the slop")

	params := testParams()
	params.Deterministic = true
	params.MaxPositionIterations = 4
	bodies := body.NewSet(golog.NewTestLogger(tst))
	ground := bodies.Insert(body.NewFixedDesc(util.IsoIdentity()))
	// Box overlapping the ground by 2 cm.
	box := newBodyAt(bodies, mgl64.Vec3{0, 0.48, 0}, 0)

	manifolds := []*geometry.ContactManifold{groundManifold(ground, box, -0.02, 0.5)}
	s := NewIslandSolver()
	for step := 0; step < 8; step++ {
		s.InitAndSolve(&params, []body.Handle{box}, 0, bodies, nil, manifolds, nil, 0, false)
		pos := bodies.Position(box.Index)
		lift := pos.Next.Translation[1] - pos.Pose.Translation[1]
		pos.Pose = pos.Next
		manifolds[0].Points[0].Dist += lift
	}
	if manifolds[0].Points[0].Dist < -params.AllowedLinearError-1e-5 {
		tst.Errorf("penetration not resolved: %v\n", manifolds[0].Points[0].Dist)
	}
}
