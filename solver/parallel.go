// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/geometry"
	"github.com/g3n/dynamics/joint"
	"github.com/g3n/dynamics/multibody"
)

// DefaultBatchSize is the number of work items one claim takes from a
// phase's index stream. Tuning it by island size is possible but the
// default stands.
const DefaultBatchSize = 8

// ThreadContext coordinates the workers of one island solve: one
// atomic index stream per phase, plus a completed count for each phase
// that other work waits on (the writeback phases have none). Workers
// claim batches with fetch-add and spin on the counts between phases.
type ThreadContext struct {
	BatchSize int64

	BodyForceIndex     atomic.Int64
	NumForceIntegrated atomic.Int64

	ContactFillIndex   atomic.Int64
	NumContactsFilled  atomic.Int64
	JointFillIndex     atomic.Int64
	NumJointsFilled    atomic.Int64

	SolveIndex atomic.Int64
	NumSolved  atomic.Int64

	ContactWritebackIndex atomic.Int64
	JointWritebackIndex   atomic.Int64

	BodyIntegrationIndex atomic.Int64
	NumIntegrated        atomic.Int64
}

// NewThreadContext creates and returns a pointer to a new
// ThreadContext with the given batch size.
func NewThreadContext(batchSize int64) *ThreadContext {

	return &ThreadContext{BatchSize: batchSize}
}

// lockUntilGE spins until the count reaches target. The atomic load
// carries the acquire side of the release pair formed by the previous
// phase's fetch-adds, making all writes of that phase visible.
func lockUntilGE(v *atomic.Int64, target int64) {

	if target <= 0 {
		return
	}
	for v.Load() < target {
		runtime.Gosched()
	}
}

// claimBatch claims the next batch from an index stream. Returns
// start >= max when the phase has no work left for this worker.
func claimBatch(stream *atomic.Int64, batch, max int64) (int64, int64) {

	start := stream.Add(batch) - batch
	if start >= max {
		return max, max
	}
	end := start + batch
	if end > max {
		end = max
	}
	return start, end
}

// sweepSegment is one contiguous unit range of the PGS schedule: all
// constraints of one colour group in one sweep, or the sequential
// generic pseudo-segment.
type sweepSegment struct {
	start, end int64 // global unit offsets
	sweep      int
	contact    bool // contact group vs joint group
	group      []int
	generic    bool
}

// ParallelIslandSolver runs the island pipeline across a fixed number
// of workers coordinated by a ThreadContext. The slot arrays and the
// shared jacobian buffer are sized by the host before the workers
// start, and each worker writes only the slots it claims; the
// constraint records a worker assembles are heap-allocated.
type ParallelIslandSolver struct {
	NumWorkers int

	state VelocityState
	jac   JacobianBuffer

	contactSlots [][]ContactConstraintAny
	jointSlots   [][]JointConstraintAny

	contactGroups InteractionGroups
	jointGroups   InteractionGroups

	position PositionSolver
	thread   *ThreadContext
	log      golog.Logger
}

// NewParallelIslandSolver creates and returns a pointer to a new
// parallel island solver with the given worker count.
func NewParallelIslandSolver(numWorkers int, log golog.Logger) *ParallelIslandSolver {

	if numWorkers < 1 {
		numWorkers = runtime.GOMAXPROCS(0)
	}
	return &ParallelIslandSolver{NumWorkers: numWorkers, log: log}
}

// InitAndSolve solves one island with the worker pool and integrates
// its bodies. Generic (multibody) constraints are assembled by the
// host before the workers start because they grow the shared jacobian
// buffer.
func (s *ParallelIslandSolver) InitAndSolve(
	params *Params,
	islandBodies []body.Handle,
	islandOffset int,
	bodies *body.Set,
	mbs *multibody.JointSet,
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
	genericDim int,
	withMultibodies bool,
) {

	s.thread = NewThreadContext(DefaultBatchSize)
	s.jac.Reset()
	s.state.Reset(islandOffset+len(islandBodies), genericDim)
	s.state.Jac = &s.jac

	// Colour the interactions so no group shares a body.
	s.groupContacts(bodies, mbs, manifolds)
	s.groupJoints(bodies, mbs, impulseJoints)

	// Slot buffers, one per interaction, sized ahead of the workers.
	s.contactSlots = resizeSlots(s.contactSlots, len(manifolds))
	s.jointSlots = resizeSlotsJ(s.jointSlots, len(impulseJoints))

	// Host-side generic assembly: these rows bump-allocate the shared
	// jacobian buffer, which must not happen concurrently.
	genericJoints := s.preassembleGeneric(params, bodies, mbs, manifolds, impulseJoints, withMultibodies)

	schedule, totalUnits := s.buildSchedule(params, genericJoints)

	var wg sync.WaitGroup
	for w := 0; w < s.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(params, schedule, totalUnits, islandBodies, islandOffset, bodies, mbs, manifolds, impulseJoints, genericJoints)
		}()
	}
	wg.Wait()

	if withMultibodies {
		applyGenericDeltas(mbs, &s.state)
	}
	s.position.Solve(params, bodies, manifolds, impulseJoints)
}

func (s *ParallelIslandSolver) groupContacts(bodies *body.Set, mbs *multibody.JointSet, manifolds []*geometry.ContactManifold) {

	interactions := make([]Interaction, 0, len(manifolds))
	for i, m := range manifolds {
		_, mb1 := linkOf(mbs, m.Body1)
		_, mb2 := linkOf(mbs, m.Body2)
		interactions = append(interactions, Interaction{
			Index:   i,
			MJ1:     dynamicOffset(bodies, m.Body1),
			MJ2:     dynamicOffset(bodies, m.Body2),
			Generic: mb1 || mb2,
		})
	}
	s.contactGroups.GroupInteractions(interactions)
}

func (s *ParallelIslandSolver) groupJoints(bodies *body.Set, mbs *multibody.JointSet, joints []*joint.ImpulseJoint) {

	interactions := make([]Interaction, 0, len(joints))
	for i, j := range joints {
		_, mb1 := linkOf(mbs, j.Body1)
		_, mb2 := linkOf(mbs, j.Body2)
		interactions = append(interactions, Interaction{
			Index:   i,
			MJ1:     dynamicOffset(bodies, j.Body1),
			MJ2:     dynamicOffset(bodies, j.Body2),
			Generic: mb1 || mb2,
		})
	}
	s.jointGroups.GroupInteractions(interactions)
}

func dynamicOffset(bodies *body.Set, h body.Handle) int {

	if !bodies.Contains(h) || !bodies.Type(h.Index).IsDynamic() {
		return -1
	}
	return bodies.Ids(h.Index).ActiveSetOffset
}

// preassembleGeneric fills the slots of interactions with multibody
// participants and emits the unit multibody limit/motor rows. Returns
// the latter.
func (s *ParallelIslandSolver) preassembleGeneric(
	params *Params,
	bodies *body.Set,
	mbs *multibody.JointSet,
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
	withMultibodies bool,
) []JointConstraintAny {

	for i, m := range manifolds {
		_, mb1 := linkOf(mbs, m.Body1)
		_, mb2 := linkOf(mbs, m.Body2)
		if mb1 || mb2 {
			s.contactSlots[i] = AssembleContacts(params, bodies, mbs,
				manifolds[i:i+1], &s.jac, s.contactSlots[i][:0])
		}
	}
	for i, j := range impulseJoints {
		_, mb1 := linkOf(mbs, j.Body1)
		_, mb2 := linkOf(mbs, j.Body2)
		if mb1 || mb2 {
			s.jointSlots[i] = AssembleJoints(params, bodies, mbs,
				impulseJoints[i:i+1], &s.jac, s.jointSlots[i][:0])
		}
	}
	if !withMultibodies {
		return nil
	}
	return assembleUnitMultibodyConstraints(params, mbs, &s.jac, nil)
}

// buildSchedule lays the PGS sweeps out as a single virtual unit
// space: for every sweep, the joint groups, a generic-joint unit, the
// contact groups, then a generic-contact unit. Sweep 0 is the warm
// start; the last sweep removes the bias.
func (s *ParallelIslandSolver) buildSchedule(params *Params, genericJoints []JointConstraintAny) ([]sweepSegment, int64) {

	numSweeps := 1 + params.MaxVelocityIterations + 1
	var segs []sweepSegment
	unit := int64(0)

	appendGroups := func(sw int, groups *InteractionGroups, contact bool) {
		for g := 0; g < groups.NumGroups(); g++ {
			grp := groups.Group(g)
			if groups.HasGeneric && g == groups.NumGroups()-1 {
				// Generic interactions share the multibody lambda
				// vector; the whole group is one sequential unit.
				segs = append(segs, sweepSegment{
					start: unit, end: unit + 1,
					sweep: sw, contact: contact, group: grp, generic: true,
				})
				unit++
				continue
			}
			segs = append(segs, sweepSegment{
				start: unit, end: unit + int64(len(grp)),
				sweep: sw, contact: contact, group: grp,
			})
			unit += int64(len(grp))
		}
	}

	for sw := 0; sw < numSweeps; sw++ {
		appendGroups(sw, &s.jointGroups, false)
		if len(genericJoints) > 0 {
			segs = append(segs, sweepSegment{
				start: unit, end: unit + 1,
				sweep: sw, contact: false, generic: true,
			})
			unit++
		}
		appendGroups(sw, &s.contactGroups, true)
	}
	return segs, unit
}

func (s *ParallelIslandSolver) worker(
	params *Params,
	schedule []sweepSegment,
	totalUnits int64,
	islandBodies []body.Handle,
	islandOffset int,
	bodies *body.Set,
	mbs *multibody.JointSet,
	manifolds []*geometry.ContactManifold,
	impulseJoints []*joint.ImpulseJoint,
	genericJoints []JointConstraintAny,
) {

	ctx := s.thread
	numBodies := int64(len(islandBodies))
	lastSweep := params.MaxVelocityIterations + 1

	// Phase: force integration into the delta velocities.
	for {
		start, end := claimBatch(&ctx.BodyForceIndex, ctx.BatchSize, numBodies)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			integrateForces(params, islandBodies[i:i+1], islandOffset+int(i), bodies, &s.state)
		}
		ctx.NumForceIntegrated.Add(end - start)
	}
	// Constraint assembly reads the delta velocities of both sides.
	lockUntilGE(&ctx.NumForceIntegrated, numBodies)

	// Phase: contact constraint fill. Generic slots were pre-filled by
	// the host and are skipped.
	numManifolds := int64(len(manifolds))
	for {
		start, end := claimBatch(&ctx.ContactFillIndex, ctx.BatchSize, numManifolds)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			if len(s.contactSlots[i]) > 0 {
				continue
			}
			// Deterministic scalar assembly: lane batching is a
			// cross-slot optimization that does not fit fixed slots.
			p := *params
			p.Deterministic = true
			s.contactSlots[i] = AssembleContacts(&p, bodies, mbs,
				manifolds[i:i+1], &s.jac, s.contactSlots[i][:0])
		}
		ctx.NumContactsFilled.Add(end - start)
	}

	// Phase: joint constraint fill.
	numJoints := int64(len(impulseJoints))
	for {
		start, end := claimBatch(&ctx.JointFillIndex, ctx.BatchSize, numJoints)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			if len(s.jointSlots[i]) > 0 {
				continue
			}
			p := *params
			p.Deterministic = true
			s.jointSlots[i] = AssembleJoints(&p, bodies, mbs,
				impulseJoints[i:i+1], &s.jac, s.jointSlots[i][:0])
		}
		ctx.NumJointsFilled.Add(end - start)
	}

	lockUntilGE(&ctx.NumContactsFilled, numManifolds)
	lockUntilGE(&ctx.NumJointsFilled, numJoints)

	// Phase: PGS sweeps over the colour groups. Workers claim unit
	// ranges from a single stream; before entering a segment they wait
	// for every unit of the previous segments to complete, which is
	// the release-acquire pair making lambdas visible across colours.
	for {
		start, end := claimBatch(&ctx.SolveIndex, ctx.BatchSize, totalUnits)
		if start >= end {
			break
		}
		u := start
		for u < end {
			seg := segmentOf(schedule, u)
			segEnd := seg.end
			if segEnd > end {
				segEnd = end
			}
			lockUntilGE(&ctx.NumSolved, seg.start)
			runStart := u
			for ; u < segEnd; u++ {
				s.solveUnit(seg, u-seg.start, lastSweep, genericJoints)
			}
			ctx.NumSolved.Add(u - runStart)
		}
	}
	lockUntilGE(&ctx.NumSolved, totalUnits)

	// Phase: impulse writeback. Each slot has one claimant, so the
	// caches see no concurrent writers.
	for {
		start, end := claimBatch(&ctx.ContactWritebackIndex, ctx.BatchSize, numManifolds)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			// Slot constraints were built against a one-manifold
			// slice, so their writeback ids are slot-relative.
			for _, c := range s.contactSlots[i] {
				c.Writeback(manifolds[i : i+1])
			}
		}
	}
	for {
		start, end := claimBatch(&ctx.JointWritebackIndex, ctx.BatchSize, numJoints)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			for _, c := range s.jointSlots[i] {
				c.Writeback(impulseJoints[i : i+1])
			}
		}
	}

	// Phase: body writeback and position integration.
	for {
		start, end := claimBatch(&ctx.BodyIntegrationIndex, ctx.BatchSize, numBodies)
		if start >= end {
			break
		}
		for i := start; i < end; i++ {
			writebackBody(params, islandBodies[i], islandOffset+int(i), bodies, &s.state)
		}
		ctx.NumIntegrated.Add(end - start)
	}
}

// solveUnit executes one schedule unit: a warm start, solve or
// bias-removed solve of one constraint slot, or the whole sequential
// generic block.
func (s *ParallelIslandSolver) solveUnit(seg *sweepSegment, idx int64, lastSweep int, genericJoints []JointConstraintAny) {

	runJoint := func(c JointConstraintAny) {
		switch {
		case seg.sweep == 0:
			c.Warmstart(&s.state)
		case seg.sweep == lastSweep:
			c.RemoveBias()
			c.Solve(&s.state)
		default:
			c.Solve(&s.state)
		}
	}
	runContact := func(c ContactConstraintAny) {
		switch {
		case seg.sweep == 0:
			c.Warmstart(&s.state)
		case seg.sweep == lastSweep:
			c.RemoveBias()
			c.Solve(&s.state)
		default:
			c.Solve(&s.state)
		}
	}

	if seg.generic {
		if seg.group == nil {
			// The unit multibody limit/motor rows.
			for _, c := range genericJoints {
				runJoint(c)
			}
			return
		}
		// One sequential sweep over the whole generic group.
		for _, slot := range seg.group {
			if seg.contact {
				for _, c := range s.contactSlots[slot] {
					runContact(c)
				}
			} else {
				for _, c := range s.jointSlots[slot] {
					runJoint(c)
				}
			}
		}
		return
	}
	slot := seg.group[idx]
	if seg.contact {
		for _, c := range s.contactSlots[slot] {
			runContact(c)
		}
		return
	}
	for _, c := range s.jointSlots[slot] {
		runJoint(c)
	}
}

func segmentOf(schedule []sweepSegment, u int64) *sweepSegment {

	lo, hi := 0, len(schedule)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if schedule[mid].end <= u {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return &schedule[lo]
}

func resizeSlots(s [][]ContactConstraintAny, n int) [][]ContactConstraintAny {

	if cap(s) < n {
		s = make([][]ContactConstraintAny, n)
	} else {
		s = s[:n]
	}
	for i := range s {
		s[i] = s[i][:0]
	}
	return s
}

func resizeSlotsJ(s [][]JointConstraintAny, n int) [][]JointConstraintAny {

	if cap(s) < n {
		s = make([][]JointConstraintAny, n)
	} else {
		s = s[:n]
	}
	for i := range s {
		s[i] = s[i][:0]
	}
	return s
}
