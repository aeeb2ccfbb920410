// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/island"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/multibody"
	"github.com/g3n/dynamics/solver"
)

// CCDSolver is the contract of the external continuous collision
// detection pass. It may rewrite the predicted poses of fast bodies
// before they are promoted.
type CCDSolver interface {
	Solve(bodies *body.Set, colliders *geometry.ColliderSet, dt, minCCDDt float64, maxSubsteps int)
}

// Simulation owns the rigid bodies, colliders and joints of one world
// and advances them in time. One call to Step is atomic: there is no
// cancellation mid-step.
type Simulation struct {
	params IntegrationParameters

	bodies      *body.Set
	colliders   *geometry.ColliderSet
	joints      *joint.ImpulseJointSet
	multibodies *multibody.JointSet
	islands     *island.Manager

	broadphase  geometry.BroadPhase
	narrowphase geometry.NarrowPhase
	ccd         CCDSolver

	manifolds []*geometry.ContactManifold

	serial     *solver.IslandSolver
	parallel   *solver.ParallelIslandSolver
	numWorkers int

	gravity     mgl64.Vec3
	forceFields []ForceField

	events *EventCollector

	collisionMatrix     *collisionMatrix
	prevCollisionMatrix *collisionMatrix

	stepNumber int
	log        golog.Logger
}

// NewSimulation creates and returns a pointer to a new empty
// Simulation with default parameters, running the solver on the
// caller's goroutine.
func NewSimulation(log golog.Logger) *Simulation {

	s := new(Simulation)
	s.params = DefaultIntegrationParameters()
	s.bodies = body.NewSet(log)
	s.colliders = geometry.NewColliderSet()
	s.joints = joint.NewImpulseJointSet()
	s.multibodies = multibody.NewJointSet(log)
	s.islands = island.NewManager(s.bodies)
	s.islands.Exclude = func(h body.Handle) bool {
		_, ok := s.multibodies.RigidBodyLink(h)
		return ok
	}
	s.bodies.SetWaker(s.islands)
	s.serial = solver.NewIslandSolver()
	s.events = NewEventCollector(256)
	s.collisionMatrix = newCollisionMatrix()
	s.prevCollisionMatrix = newCollisionMatrix()
	s.gravity = mgl64.Vec3{0, -9.81, 0}
	s.log = log
	return s
}

// SetNumWorkers enables the parallel island solver with the given
// worker count. Islands smaller than MinIslandSize still take the
// serial path. A count below 2 restores single-threaded stepping.
func (s *Simulation) SetNumWorkers(n int) {

	s.numWorkers = n
	if n >= 2 {
		s.parallel = solver.NewParallelIslandSolver(n, s.log)
	} else {
		s.parallel = nil
	}
}

// Params returns the current integration parameters.
func (s *Simulation) Params() IntegrationParameters {

	return s.params
}

// SetParams replaces the integration parameters.
func (s *Simulation) SetParams(p IntegrationParameters) error {

	if err := p.Validate(); err != nil {
		return err
	}
	s.params = p
	return nil
}

// Bodies returns the rigid body set.
func (s *Simulation) Bodies() *body.Set {

	return s.bodies
}

// Colliders returns the collider set.
func (s *Simulation) Colliders() *geometry.ColliderSet {

	return s.colliders
}

// Joints returns the impulse joint set.
func (s *Simulation) Joints() *joint.ImpulseJointSet {

	return s.joints
}

// Multibodies returns the multibody joint set.
func (s *Simulation) Multibodies() *multibody.JointSet {

	return s.multibodies
}

// Islands returns the island manager.
func (s *Simulation) Islands() *island.Manager {

	return s.islands
}

// Events returns the event collector.
func (s *Simulation) Events() *EventCollector {

	return s.events
}

// SetGravity sets the world gravity acceleration.
func (s *Simulation) SetGravity(g mgl64.Vec3) {

	s.gravity = g
}

// Gravity returns the world gravity acceleration.
func (s *Simulation) Gravity() mgl64.Vec3 {

	return s.gravity
}

// AddForceField adds a force field to the simulation.
func (s *Simulation) AddForceField(ff ForceField) {

	s.forceFields = append(s.forceFields, ff)
}

// SetBroadPhase installs the external broad phase.
func (s *Simulation) SetBroadPhase(bp geometry.BroadPhase) {

	s.broadphase = bp
}

// SetNarrowPhase installs the external narrow phase.
func (s *Simulation) SetNarrowPhase(np geometry.NarrowPhase) {

	s.narrowphase = np
}

// SetCCDSolver installs the external CCD pass.
func (s *Simulation) SetCCDSolver(ccd CCDSolver) {

	s.ccd = ccd
}

// SetContacts hands the simulation the contact manifolds to solve in
// the next step, for callers driving the narrow phase themselves.
// Manifolds are retained across steps by the caller so warm-start
// impulses survive.
func (s *Simulation) SetContacts(manifolds []*geometry.ContactManifold) {

	s.manifolds = manifolds
}

// InsertBody adds a rigid body and returns its handle.
func (s *Simulation) InsertBody(d body.Desc) body.Handle {

	return s.bodies.Insert(d)
}

// RemoveBody removes a body, cascading to its colliders and joints.
func (s *Simulation) RemoveBody(h body.Handle) bool {

	attached, ok := s.bodies.Remove(h)
	if !ok {
		return false
	}
	s.colliders.RemoveAttached(h)
	for _, jh := range attached {
		s.joints.Remove(s.bodies, jh)
	}
	return true
}

// InsertCollider adds a collider. A collider with a dynamic parent
// contributes its shape's mass properties to the parent.
func (s *Simulation) InsertCollider(c *geometry.Collider) geometry.Handle {

	h := s.colliders.Insert(c)
	if c.HasParent {
		s.recomputeBodyMass(c.Parent)
	}
	return h
}

// RemoveCollider removes a collider.
func (s *Simulation) RemoveCollider(h geometry.Handle) bool {

	c := s.colliders.Get(h)
	if c == nil {
		return false
	}
	parent := c.Parent
	hadParent := c.HasParent
	s.colliders.Remove(h)
	if hadParent {
		s.recomputeBodyMass(parent)
	}
	return true
}

// recomputeBodyMass rebuilds a dynamic body's mass properties from its
// attached colliders. Shapes are summed about the body origin.
func (s *Simulation) recomputeBodyMass(h body.Handle) {

	if !s.bodies.Contains(h) || !s.bodies.Type(h.Index).IsDynamic() {
		return
	}
	totalMass := 0.0
	com := mgl64.Vec3{}
	var inertia mgl64.Mat3
	for _, ch := range s.colliders.Attached(h) {
		c := s.colliders.Get(ch)
		if c == nil || c.Sensor {
			continue
		}
		m, in, localCom := c.Shape.MassProperties(c.Density)
		shapeCom := c.LocalPose.TransformPoint(localCom)
		com = com.Add(shapeCom.Mul(m))
		totalMass += m
		// Rotate the shape inertia into body space and translate it
		// with the parallel axis theorem.
		r := c.LocalPose.Rotation.Mat4().Mat3()
		rotated := r.Mul3(in).Mul3(r.Transpose())
		d := shapeCom
		d2 := d.Dot(d)
		shift := mgl64.Ident3().Mul(d2 * m).Sub(outer(d, d).Mul(m))
		inertia = inertia.Add(rotated).Add(shift)
	}
	if totalMass <= 0 {
		return
	}
	com = com.Mul(1.0 / totalMass)
	// Move the inertia from the origin to the COM.
	d2 := com.Dot(com)
	shift := mgl64.Ident3().Mul(d2 * totalMass).Sub(outer(com, com).Mul(totalMass))
	inertia = inertia.Sub(shift)
	s.bodies.SetMassProperties(h, totalMass, inertia, com)
}

func outer(a, b mgl64.Vec3) mgl64.Mat3 {

	return mgl64.Mat3{
		a[0] * b[0], a[1] * b[0], a[2] * b[0],
		a[0] * b[1], a[1] * b[1], a[2] * b[1],
		a[0] * b[2], a[1] * b[2], a[2] * b[2],
	}
}

// InsertJoint adds an impulse joint between two bodies.
func (s *Simulation) InsertJoint(body1, body2 body.Handle, data joint.Data) (joint.Handle, bool) {

	return s.joints.Insert(s.bodies, body1, body2, data)
}

// RemoveJoint removes an impulse joint.
func (s *Simulation) RemoveJoint(h joint.Handle) bool {

	return s.joints.Remove(s.bodies, h)
}

// Step advances the simulation by the default timestep.
func (s *Simulation) Step() {

	s.StepDt(s.params.Dt)
}

// StepDt advances the simulation by dt seconds. Calling it with a
// non-positive or non-finite dt is API misuse and panics.
func (s *Simulation) StepDt(dt float64) {

	if dt <= 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		panic(ErrInvalidTimestep)
	}
	params := s.params.solverParams(dt)

	// 1. Refresh world-space mass terms and capture the last valid
	// state of awake dynamic bodies.
	s.bodies.UpdateWorldMassProps()
	s.bodies.Each(func(h body.Handle) {
		if !s.bodies.Type(h.Index).IsDynamic() ||
			s.bodies.Activation(h.Index).State == body.Sleeping {
			return
		}
		// Keep the previous snapshot when the current state is already
		// corrupted, so recovery has something finite to restore.
		if s.bodies.Position(h.Index).Pose.IsFinite() &&
			s.bodies.Velocity(h.Index).IsFinite() {
			s.bodies.CaptureSnapshot(h.Index)
		}
	})

	// 2. External collision detection, when installed.
	if s.broadphase != nil && s.narrowphase != nil {
		pairs := s.broadphase.Update(s.colliders, s.bodies, s.params.PredictionDistance)
		s.manifolds = s.narrowphase.Update(pairs, s.colliders, s.bodies)
	}

	// 3. Accumulate gravity and force fields.
	s.applyExternalForces()

	// 4. Multibody kinematics and augmented mass factorization.
	s.multibodies.UpdateKinematics(s.bodies)
	genericDim := s.multibodies.UpdateAugmentedMasses(s.bodies, dt)
	for i := 0; i < s.multibodies.Len(); i++ {
		s.multibodies.Multibody(i).IntegrateVelocities(s.bodies, dt)
	}

	// 5. Island partitioning over the contact and joint edges. Rigid
	// bodies interacting with any multibody link are coalesced into
	// one island so the shared generic state is solved exactly once.
	edges, mbHub := s.interactionEdges()
	s.islands.Update(edges)
	mbIsland := -1
	if mbHub.IsValid() && s.bodies.Contains(mbHub) {
		mbIsland = s.bodies.Ids(mbHub.Index).IslandID
	}

	// 6. Sort manifolds and joints into canonical order and bucket
	// them per island.
	manifolds := s.sortedManifolds()
	impulseJoints := s.sortedJoints()
	islandManifolds, islandJoints, mbManifolds, mbJoints := s.bucketByIsland(manifolds, impulseJoints, mbIsland)

	// 7. Solve each island independently.
	for isl := 0; isl < s.islands.NumIslands(); isl++ {
		start, _ := s.islands.ActiveIslandRange(isl)
		members := s.islands.ActiveIsland(isl)
		withMbs := isl == mbIsland
		if s.parallel != nil && len(members) >= s.params.MinIslandSize {
			s.parallel.InitAndSolve(&params, members, start, s.bodies,
				s.multibodies, islandManifolds[isl], islandJoints[isl], genericDim, withMbs)
		} else {
			s.serial.InitAndSolve(&params, members, start, s.bodies,
				s.multibodies, islandManifolds[isl], islandJoints[isl], genericDim, withMbs)
		}
	}
	// When no rigid island owns the multibodies, their interactions
	// (and per-DOF limits and motors) solve as a pseudo-island against
	// the generic lambda vector alone.
	if mbIsland < 0 && s.multibodies.Len() > 0 {
		s.serial.InitAndSolve(&params, nil, 0, s.bodies,
			s.multibodies, mbManifolds, mbJoints, genericDim, true)
	}

	// 8. Kinematic velocity-based bodies integrate outside islands.
	s.integrateKinematic(dt)

	// 9. External CCD pass on the predicted poses.
	if s.ccd != nil {
		s.ccd.Solve(s.bodies, s.colliders, dt, s.params.MinCCDDt, s.params.MaxCCDSubsteps)
	}

	// 10. Promote predicted poses, recovering non-finite states.
	s.promotePositions()

	// 11. Multibody position integration and final kinematics.
	for i := 0; i < s.multibodies.Len(); i++ {
		s.multibodies.Multibody(i).IntegratePositions(dt)
	}
	s.multibodies.UpdateKinematics(s.bodies)

	// 12. Emit collision and intersection events.
	s.emitContactEvents()
	s.events.flush()

	// 13. Sleep bookkeeping and force clearing.
	s.islands.UpdateSleep()
	s.bodies.ClearForces()
	s.stepNumber++
}

// applyExternalForces accumulates gravity and the force fields into
// every awake dynamic body's force component.
func (s *Simulation) applyExternalForces() {

	s.bodies.Each(func(h body.Handle) {
		i := h.Index
		if !s.bodies.Type(i).IsDynamic() {
			return
		}
		if s.bodies.Activation(i).State == body.Sleeping {
			return
		}
		mp := s.bodies.MassProps(i)
		mass := 0.0
		if mp.InvMass > 0 {
			mass = 1.0 / mp.InvMass
		}
		f := s.bodies.Forces(i)
		f.Force = f.Force.Add(s.gravity.Mul(mass))
		for _, ff := range s.forceFields {
			f.Force = f.Force.Add(ff.ForceAt(mp.WorldCom).Mul(mass))
		}
	})
}

// interactionEdges lists the contact and joint edges feeding the
// island partitioning. Multibody links never join islands directly
// (their motion is owned by the multibody); instead, every rigid body
// interacting with any link is unioned with a single hub body, so all
// multibody coupling lands in one island. Returns the hub handle,
// invalid when no rigid body touches a multibody.
func (s *Simulation) interactionEdges() ([]island.Edge, body.Handle) {

	var edges []island.Edge
	var hub body.Handle

	islandable := func(h body.Handle) bool {
		if !s.bodies.Contains(h) || !s.bodies.Type(h.Index).IsDynamic() {
			return false
		}
		_, isLink := s.multibodies.RigidBodyLink(h)
		return !isLink
	}
	link := func(h body.Handle) bool {
		_, ok := s.multibodies.RigidBodyLink(h)
		return ok
	}
	addEdge := func(b1, b2 body.Handle) {
		mb := link(b1) || link(b2)
		if !mb {
			edges = append(edges, island.Edge{Body1: b1, Body2: b2})
			return
		}
		for _, h := range []body.Handle{b1, b2} {
			if !islandable(h) {
				continue
			}
			if !hub.IsValid() {
				hub = h
				continue
			}
			edges = append(edges, island.Edge{Body1: hub, Body2: h})
		}
	}

	for _, m := range s.manifolds {
		if len(m.Points) == 0 {
			continue
		}
		addEdge(m.Body1, m.Body2)
	}
	s.joints.Each(func(_ joint.Handle, j *joint.ImpulseJoint) {
		addEdge(j.Body1, j.Body2)
	})
	return edges, hub
}

// sortedManifolds returns the manifolds sorted by key, so the body
// pairs reach the assembler in handle order whatever the narrow-phase
// traversal order; manifolds with equal keys keep their input order.
func (s *Simulation) sortedManifolds() []*geometry.ContactManifold {

	out := append([]*geometry.ContactManifold(nil), s.manifolds...)
	sort.SliceStable(out, func(a, b int) bool {
		ka, kb := out[a].Key(), out[b].Key()
		for i := range ka {
			if ka[i] != kb[i] {
				return ka[i] < kb[i]
			}
		}
		return false
	})
	return out
}

// sortedJoints returns the impulse joints in handle order.
func (s *Simulation) sortedJoints() []*joint.ImpulseJoint {

	var out []*joint.ImpulseJoint
	s.joints.Each(func(_ joint.Handle, j *joint.ImpulseJoint) {
		out = append(out, j)
	})
	return out
}

// bucketByIsland splits manifolds and joints by the island of their
// first islanded dynamic body. Interactions whose only dynamic
// participants are multibody links go to the multibody island, or to
// the pseudo-island lists when none exists. Interactions with no
// dynamic side at all are dropped.
func (s *Simulation) bucketByIsland(
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
	mbIsland int,
) ([][]*geometry.ContactManifold, [][]*joint.ImpulseJoint, []*geometry.ContactManifold, []*joint.ImpulseJoint) {

	n := s.islands.NumIslands()
	im := make([][]*geometry.ContactManifold, n)
	ij := make([][]*joint.ImpulseJoint, n)
	var mbManifolds []*geometry.ContactManifold
	var mbJoints []*joint.ImpulseJoint

	islandOf := func(h1, h2 body.Handle) int {
		hasLink := false
		for _, h := range []body.Handle{h1, h2} {
			if !s.bodies.Contains(h) || !s.bodies.Type(h.Index).IsDynamic() {
				continue
			}
			if _, isLink := s.multibodies.RigidBodyLink(h); isLink {
				hasLink = true
				continue
			}
			if id := s.bodies.Ids(h.Index).IslandID; id >= 0 {
				return id
			}
		}
		if hasLink {
			if mbIsland >= 0 {
				return mbIsland
			}
			return -2 // pseudo-island
		}
		return -1
	}

	for _, m := range manifolds {
		if len(m.Points) == 0 {
			continue
		}
		switch id := islandOf(m.Body1, m.Body2); {
		case id >= 0:
			im[id] = append(im[id], m)
		case id == -2:
			mbManifolds = append(mbManifolds, m)
		}
	}
	for _, j := range impulseJoints {
		switch id := islandOf(j.Body1, j.Body2); {
		case id >= 0:
			ij[id] = append(ij[id], j)
		case id == -2:
			mbJoints = append(mbJoints, j)
		}
	}
	return im, ij, mbManifolds, mbJoints
}

// integrateKinematic advances kinematic velocity-based bodies, which
// move outside the islands.
func (s *Simulation) integrateKinematic(dt float64) {

	s.bodies.Each(func(h body.Handle) {
		i := h.Index
		if s.bodies.Type(i) != body.KinematicVelocityBased {
			return
		}
		pos := s.bodies.Position(i)
		pos.Next = s.bodies.Velocity(i).Integrate(dt, pos.Pose, pos.LocalCom)
	})
}

// promotePositions promotes the predicted poses of awake bodies to
// current, resetting any body whose state became non-finite.
func (s *Simulation) promotePositions() {

	s.bodies.Each(func(h body.Handle) {
		i := h.Index
		t := s.bodies.Type(i)
		if t == body.Fixed || t == body.KinematicPositionBased {
			return
		}
		if s.bodies.Activation(i).State == body.Sleeping {
			return
		}

		pos := s.bodies.Position(i)
		vel := s.bodies.Velocity(i)
		if !pos.Next.IsFinite() || !vel.IsFinite() {
			s.bodies.RestoreSnapshot(i)
			s.islands.Sleep(h)
			s.events.pushBody(BodyEvent{Body: h, Kind: EventNaNReset})
			if s.log != nil {
				s.log.Warnw("body state became non-finite; reset and put to sleep", "slot", i)
			}
			return
		}
		pos.Pose = pos.Next
	})
}

// emitContactEvents diffs the touching collider pairs against the
// previous step and emits collision-start/stop and intersection
// events.
func (s *Simulation) emitContactEvents() {

	s.collisionMatrix, s.prevCollisionMatrix = s.prevCollisionMatrix, s.collisionMatrix
	s.collisionMatrix.reset()

	for _, m := range s.manifolds {
		if len(m.Points) == 0 {
			continue
		}
		touching := false
		for k := range m.Points {
			if m.Points[k].Dist <= 0 {
				touching = true
				break
			}
		}
		if !touching {
			continue
		}
		s.collisionMatrix.set(m.Collider1, m.Collider2)

		sensor := false
		if c := s.colliders.Get(m.Collider1); c != nil && c.Sensor {
			sensor = true
		}
		if c := s.colliders.Get(m.Collider2); c != nil && c.Sensor {
			sensor = true
		}

		if !s.prevCollisionMatrix.get(m.Collider1, m.Collider2) {
			if sensor {
				s.events.pushIntersection(IntersectionEvent{
					Collider1: m.Collider1, Collider2: m.Collider2, Intersecting: true,
				})
			} else {
				s.events.pushCollision(CollisionEvent{
					Collider1: m.Collider1, Collider2: m.Collider2, Started: true,
				})
			}
		}
	}

	// Pairs touching last step but not this one stopped colliding.
	for key := range s.prevCollisionMatrix.pairs {
		if s.collisionMatrix.get(key.a, key.b) {
			continue
		}
		sensor := false
		if c := s.colliders.Get(key.a); c != nil && c.Sensor {
			sensor = true
		}
		if c := s.colliders.Get(key.b); c != nil && c.Sensor {
			sensor = true
		}
		if sensor {
			s.events.pushIntersection(IntersectionEvent{
				Collider1: key.a, Collider2: key.b, Intersecting: false,
			})
		} else {
			s.events.pushCollision(CollisionEvent{
				Collider1: key.a, Collider2: key.b, Started: false,
			})
		}
	}
}
