// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

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

func newSim(tst *testing.T) *Simulation {

	return NewSimulation(golog.NewTestLogger(tst))
}

func insertUnitBox(s *Simulation, pos mgl64.Vec3) body.Handle {

	h := s.InsertBody(body.NewDynamicDesc(util.NewIso(pos, mgl64.QuatIdent())))
	s.InsertCollider(&geometry.Collider{
		Shape:     geometry.Cuboid{HalfExtents: mgl64.Vec3{0.5, 0.5, 0.5}},
		Parent:    h,
		HasParent: true,
		Material:  geometry.DefaultMaterial(),
		Density:   1,
	})
	return h
}

// restManifold keeps a box-on-ground manifold alive across steps,
// standing in for the external narrow phase.
func restManifold(s *Simulation, ground, box body.Handle, friction float64) *geometry.ContactManifold {

	gc := s.Colliders().Attached(ground)
	bc := s.Colliders().Attached(box)
	m := &geometry.ContactManifold{
		Body1:        ground,
		Body2:        box,
		LocalNormal1: mgl64.Vec3{0, 1, 0},
		Friction:     friction,
	}
	if len(gc) > 0 {
		m.Collider1 = gc[0]
	}
	if len(bc) > 0 {
		m.Collider2 = bc[0]
	}
	for _, p := range [][2]float64{{-0.5, -0.5}, {0.5, -0.5}, {-0.5, 0.5}, {0.5, 0.5}} {
		m.Points = append(m.Points, geometry.ContactPoint{
			LocalP1: mgl64.Vec3{p[0], 0, p[1]},
			LocalP2: mgl64.Vec3{p[0], -0.5, p[1]},
			Dist:    0,
		})
	}
	return m
}

func insertGround(s *Simulation) body.Handle {

	g := s.InsertBody(body.NewFixedDesc(util.IsoIdentity()))
	s.InsertCollider(&geometry.Collider{
		Shape:     geometry.Cuboid{HalfExtents: mgl64.Vec3{100, 0.1, 100}},
		Parent:    g,
		HasParent: true,
		Material:  geometry.DefaultMaterial(),
		Density:   1,
	})
	return g
}

func Test_step01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step01. free fall matches gravity")

	s := newSim(tst)
	h := insertUnitBox(s, mgl64.Vec3{0, 10, 0})

	dt := s.Params().Dt
	s.Step()
	chk.Float64(tst, "vy after one step", 1e-12,
		s.Bodies().Velocity(h.Index).Linvel[1], -9.81*dt)
	chk.Float64(tst, "y after one step", 1e-12,
		s.Bodies().Position(h.Index).Pose.Translation[1], 10-9.81*dt*dt)

	for i := 0; i < 59; i++ {
		s.Step()
	}
	chk.Float64(tst, "vy after 1s", 1e-9,
		s.Bodies().Velocity(h.Index).Linvel[1], -9.81)
}

func Test_step02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step02. invalid timesteps panic")

	s := newSim(tst)
	for _, dt := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		func() {
			defer func() {
				if recover() == nil {
					tst.Errorf("dt=%v did not panic\n", dt)
				}
			}()
			s.StepDt(dt)
		}()
	}
}

func Test_step03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step03. box rests on the ground without sinking")

	s := newSim(tst)
	ground := insertGround(s)
	box := insertUnitBox(s, mgl64.Vec3{0, 0.5, 0})
	m := restManifold(s, ground, box, 0.5)
	s.SetContacts([]*geometry.ContactManifold{m})

	for i := 0; i < 120; i++ {
		s.Step()
	}
	chk.Float64(tst, "box height", 1e-3,
		s.Bodies().Position(box.Index).Pose.Translation[1], 0.5)
	chk.Float64(tst, "box velocity", 1e-6,
		s.Bodies().Velocity(box.Index).Linvel.Len(), 0)
}

func Test_step04(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step04. pushed box obeys Coulomb friction")

	// 10 N push, mu=0.5, mass 1: a = 10 - 0.5*9.81 = 5.095 m/s^2.
	s := newSim(tst)
	ground := insertGround(s)
	box := insertUnitBox(s, mgl64.Vec3{0, 0.5, 0})
	// Lock rotation so the push cannot tip the box over.
	s.Bodies().SetMassProperties(box, 1, mgl64.Ident3().Mul(1e12), mgl64.Vec3{})
	m := restManifold(s, ground, box, 0.5)
	s.SetContacts([]*geometry.ContactManifold{m})

	for i := 0; i < 60; i++ {
		s.Bodies().AddForce(box, mgl64.Vec3{10, 0, 0})
		s.Step()
	}
	v := s.Bodies().Velocity(box.Index).Linvel[0]
	x := s.Bodies().Position(box.Index).Pose.Translation[0]
	if v < 4.6 || v > 5.6 {
		tst.Errorf("velocity after 1s out of range: %v\n", v)
		return
	}
	if x < 2.3 || x > 2.7 {
		tst.Errorf("displacement after 1s out of range: %v\n", x)
	}
}

func Test_step05(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step05. ball joint conserves momentum in free space")

	s := newSim(tst)
	s.SetGravity(mgl64.Vec3{})
	b1 := insertUnitBox(s, mgl64.Vec3{-0.5, 0, 0})
	b2 := insertUnitBox(s, mgl64.Vec3{0.5, 0, 0})
	s.Bodies().Velocity(b1.Index).Linvel = mgl64.Vec3{0.4, 1, 0}
	s.Bodies().Velocity(b2.Index).Linvel = mgl64.Vec3{-0.4, 1, 0}
	s.InsertJoint(b1, b2, joint.NewBall(mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{-0.5, 0, 0}))

	momentum := func() mgl64.Vec3 {
		return s.Bodies().Velocity(b1.Index).Linvel.
			Add(s.Bodies().Velocity(b2.Index).Linvel)
	}
	before := momentum()
	for i := 0; i < 60; i++ {
		s.Step()
	}
	after := momentum()
	chk.Array(tst, "momentum", 1e-4, after[:], before[:])
}

func Test_step06(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step06. PGS dissipates energy without external work")

	s := newSim(tst)
	s.SetGravity(mgl64.Vec3{})
	b1 := insertUnitBox(s, mgl64.Vec3{-0.5, 0, 0})
	b2 := insertUnitBox(s, mgl64.Vec3{0.6, 0, 0})
	s.Bodies().Velocity(b1.Index).Linvel = mgl64.Vec3{1, 0, 0}
	s.Bodies().Velocity(b2.Index).Linvel = mgl64.Vec3{-1, 0, 0}
	s.InsertJoint(b1, b2, joint.NewBall(mgl64.Vec3{0.55, 0, 0}, mgl64.Vec3{-0.55, 0, 0}))

	energy := func() float64 {
		e := 0.0
		for _, h := range []body.Handle{b1, b2} {
			e += s.Bodies().Velocity(h.Index).PseudoKineticEnergy()
		}
		return e
	}
	prev := energy()
	for i := 0; i < 30; i++ {
		s.Step()
		cur := energy()
		if cur > prev+1e-9 {
			tst.Errorf("energy grew at step %d: %v -> %v\n", i, prev, cur)
			return
		}
		prev = cur
	}
}

func Test_step07(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step07. island independence")

	// Two far-apart pairs must evolve exactly as the pairs alone.
	build := func(offset mgl64.Vec3, extra bool) *Simulation {
		s := newSim(tst)
		a := insertUnitBox(s, offset.Add(mgl64.Vec3{-0.5, 0, 0}))
		b := insertUnitBox(s, offset.Add(mgl64.Vec3{0.5, 0, 0}))
		s.Bodies().Velocity(a.Index).Linvel = mgl64.Vec3{0, 1, 0}
		s.InsertJoint(a, b, joint.NewBall(mgl64.Vec3{0.5, 0, 0}, mgl64.Vec3{-0.5, 0, 0}))
		if extra {
			c := insertUnitBox(s, mgl64.Vec3{500, 0, 0})
			d := insertUnitBox(s, mgl64.Vec3{501.2, 0, 0})
			s.Bodies().Velocity(c.Index).Angvel = mgl64.Vec3{0, 0, 2}
			s.InsertJoint(c, d, joint.NewBall(mgl64.Vec3{0.6, 0, 0}, mgl64.Vec3{-0.6, 0, 0}))
		}
		return s
	}

	alone := build(mgl64.Vec3{}, false)
	merged := build(mgl64.Vec3{}, true)
	for i := 0; i < 30; i++ {
		alone.Step()
		merged.Step()
	}

	// Compare the shared pair bit for bit.
	for slot := uint32(0); slot < 2; slot++ {
		pa := alone.Bodies().Position(slot).Pose.Translation
		pm := merged.Bodies().Position(slot).Pose.Translation
		chk.Array(tst, "pair position", 0, pm[:], pa[:])
		va := alone.Bodies().Velocity(slot).Linvel
		vm := merged.Bodies().Velocity(slot).Linvel
		chk.Array(tst, "pair velocity", 0, vm[:], va[:])
	}
}

func Test_step08(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step08. deterministic across runs")

	run := func() []float64 {
		s := newSim(tst)
		p := s.Params()
		p.DeterministicMode = true
		if err := s.SetParams(p); err != nil {
			tst.Errorf("params rejected: %v\n", err)
			return nil
		}
		ground := insertGround(s)
		var out []float64
		var boxes []body.Handle
		var manifolds []*geometry.ContactManifold
		for i := 0; i < 5; i++ {
			b := insertUnitBox(s, mgl64.Vec3{float64(i) * 2, 0.5, 0})
			s.Bodies().Velocity(b.Index).Linvel = mgl64.Vec3{0.1 * float64(i), 0, -0.2}
			boxes = append(boxes, b)
			manifolds = append(manifolds, restManifold(s, ground, b, 0.3))
		}
		s.SetContacts(manifolds)
		for i := 0; i < 60; i++ {
			s.Step()
		}
		for _, b := range boxes {
			t := s.Bodies().Position(b.Index).Pose.Translation
			v := s.Bodies().Velocity(b.Index).Linvel
			out = append(out, t[:]...)
			out = append(out, v[:]...)
		}
		return out
	}

	first := run()
	second := run()
	chk.Array(tst, "byte identical state", 0, second, first)
}

func Test_step09(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step09. collision events start and stop")

	s := newSim(tst)
	ground := insertGround(s)
	box := insertUnitBox(s, mgl64.Vec3{0, 0.5, 0})
	m := restManifold(s, ground, box, 0.5)

	s.SetContacts([]*geometry.ContactManifold{m})
	s.Step()

	select {
	case ev := <-s.Events().Collisions():
		if !ev.Started {
			tst.Errorf("expected a started event\n")
			return
		}
	default:
		tst.Errorf("no collision event delivered\n")
		return
	}

	// Second step with the same contact: no new event.
	s.Step()
	select {
	case <-s.Events().Collisions():
		tst.Errorf("duplicate start event\n")
		return
	default:
	}

	// Contact removed: stop event.
	s.SetContacts(nil)
	s.Step()
	select {
	case ev := <-s.Events().Collisions():
		if ev.Started {
			tst.Errorf("expected a stopped event\n")
		}
	default:
		tst.Errorf("no stop event delivered\n")
	}
}

func Test_step10(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step10. sleeping boxes stop integrating and wake on impulse")

	s := newSim(tst)
	ground := insertGround(s)
	box := insertUnitBox(s, mgl64.Vec3{0, 0.5, 0})
	m := restManifold(s, ground, box, 0.5)
	s.SetContacts([]*geometry.ContactManifold{m})
	s.Islands().SleepDelay = 10

	for i := 0; i < 30; i++ {
		s.Step()
	}
	if s.Bodies().Activation(box.Index).State != body.Sleeping {
		tst.Errorf("box did not fall asleep\n")
		return
	}

	s.Bodies().ApplyImpulse(box, mgl64.Vec3{0, 3, 0})
	if s.Bodies().Activation(box.Index).State == body.Sleeping {
		tst.Errorf("impulse did not wake the box\n")
		return
	}
	s.Step()
	if s.Bodies().Velocity(box.Index).Linvel[1] <= 0 {
		tst.Errorf("woken box did not move\n")
	}
}

func Test_step11(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step11. removing a body cascades to joints and colliders")

	s := newSim(tst)
	b1 := insertUnitBox(s, mgl64.Vec3{0, 0, 0})
	b2 := insertUnitBox(s, mgl64.Vec3{1.2, 0, 0})
	jh, _ := s.InsertJoint(b1, b2, joint.NewBall(mgl64.Vec3{0.6, 0, 0}, mgl64.Vec3{-0.6, 0, 0}))

	if !s.RemoveBody(b1) {
		tst.Errorf("removal failed\n")
		return
	}
	if s.Joints().Get(jh) != nil {
		tst.Errorf("joint survived its body\n")
		return
	}
	chk.Int(tst, "colliders of removed body", len(s.Colliders().Attached(b1)), 0)
	if s.RemoveBody(b1) {
		tst.Errorf("double removal succeeded\n")
		return
	}

	// The world keeps stepping fine afterwards.
	s.Step()
}

func Test_step12(tst *testing.T) {

	//verbose()
	chk.PrintTitle("step12. non-finite state is reset and reported")

	s := newSim(tst)
	box := insertUnitBox(s, mgl64.Vec3{0, 5, 0})
	s.Step()

	// Corrupt the state as a misbehaving external pass would.
	s.Bodies().Velocity(box.Index).Linvel = mgl64.Vec3{math.NaN(), 0, 0}
	s.Step()

	if !s.Bodies().Position(box.Index).Pose.IsFinite() {
		tst.Errorf("pose still non-finite\n")
		return
	}
	if s.Bodies().Activation(box.Index).State != body.Sleeping {
		tst.Errorf("body not slept after reset\n")
		return
	}
	select {
	case ev := <-s.Events().BodyEvents():
		chk.Int(tst, "event kind", int(ev.Kind), int(EventNaNReset))
	default:
		tst.Errorf("no NaN event delivered\n")
	}
}

func Test_params01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("params01. defaults validate, junk does not")

	p := DefaultIntegrationParameters()
	if err := p.Validate(); err != nil {
		tst.Errorf("defaults invalid: %v\n", err)
		return
	}

	p.Erp = 2
	p.MaxVelocityIterations = 0
	err := p.Validate()
	if err == nil {
		tst.Errorf("invalid parameters accepted\n")
		return
	}
}

func Test_params02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("params02. yaml round trip")

	dir := tst.TempDir()
	path := dir + "/params.yaml"
	p := DefaultIntegrationParameters()
	p.Erp = 0.5
	p.MinIslandSize = 64
	if err := p.Save(path); err != nil {
		tst.Errorf("save failed: %v\n", err)
		return
	}
	q, err := LoadIntegrationParameters(path)
	if err != nil {
		tst.Errorf("load failed: %v\n", err)
		return
	}
	chk.Float64(tst, "erp", 1e-15, q.Erp, 0.5)
	chk.Int(tst, "min island size", q.MinIslandSize, 64)
}
