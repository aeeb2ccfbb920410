// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package island

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/edaniels/golog"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/g3n/dynamics/body"
	"github.com/g3n/dynamics/util"
)

func newTestWorld(tst *testing.T, n int) (*body.Set, *Manager, []body.Handle) {

	bodies := body.NewSet(golog.NewTestLogger(tst))
	handles := make([]body.Handle, n)
	for i := range handles {
		handles[i] = bodies.Insert(body.NewDynamicDesc(util.IsoIdentity()))
	}
	return bodies, NewManager(bodies), handles
}

func Test_island01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("island01. disjoint edge sets form disjoint islands")

	bodies, m, hs := newTestWorld(tst, 5)

	// 0-1 joined, 2-3 joined, 4 alone.
	m.Update([]Edge{
		{Body1: hs[0], Body2: hs[1]},
		{Body1: hs[2], Body2: hs[3]},
	})

	chk.Int(tst, "num islands", m.NumIslands(), 3)
	chk.Int(tst, "active set size", len(m.ActiveDynamicSet()), 5)

	// Islands are contiguous and the offsets match the set order.
	for isl := 0; isl < m.NumIslands(); isl++ {
		start, end := m.ActiveIslandRange(isl)
		for off := start; off < end; off++ {
			h := m.ActiveDynamicSet()[off]
			chk.Int(tst, "offset", bodies.Ids(h.Index).ActiveSetOffset, off)
			chk.Int(tst, "island id", bodies.Ids(h.Index).IslandID, isl)
		}
	}

	// 0 and 1 share an island; 0 and 2 do not.
	id := func(h body.Handle) int { return bodies.Ids(h.Index).IslandID }
	chk.Int(tst, "0~1", id(hs[0]), id(hs[1]))
	if id(hs[0]) == id(hs[2]) {
		tst.Errorf("bodies 0 and 2 should be in different islands\n")
	}
}

func Test_island02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("island02. sleeping islands leave the active set")

	bodies, m, hs := newTestWorld(tst, 2)
	m.SleepDelay = 3
	edges := []Edge{{Body1: hs[0], Body2: hs[1]}}

	for step := 0; step < 4; step++ {
		m.Update(edges)
		m.UpdateSleep()
	}

	if bodies.Activation(hs[0].Index).State != body.Sleeping {
		tst.Errorf("island did not fall asleep\n")
		return
	}
	m.Update(edges)
	chk.Int(tst, "active after sleep", len(m.ActiveDynamicSet()), 0)
	chk.Int(tst, "offset invalid", bodies.Ids(hs[0].Index).ActiveSetOffset, -1)
}

func Test_island03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("island03. a moving body keeps its island awake")

	bodies, m, hs := newTestWorld(tst, 2)
	m.SleepDelay = 2
	bodies.Velocity(hs[0].Index).Linvel = mgl64.Vec3{5, 0, 0}
	edges := []Edge{{Body1: hs[0], Body2: hs[1]}}

	for step := 0; step < 5; step++ {
		m.Update(edges)
		m.UpdateSleep()
	}
	if bodies.Activation(hs[1].Index).State == body.Sleeping {
		tst.Errorf("island slept despite a moving member\n")
	}
}

func Test_island04(tst *testing.T) {

	//verbose()
	chk.PrintTitle("island04. edges wake sleeping neighbours")

	bodies, m, hs := newTestWorld(tst, 2)
	m.Sleep(hs[1])
	chk.Int(tst, "sleeping", int(bodies.Activation(hs[1].Index).State), int(body.Sleeping))

	// A new edge against an awake body wakes the sleeper.
	m.Update([]Edge{{Body1: hs[0], Body2: hs[1]}})
	chk.Int(tst, "awake", int(bodies.Activation(hs[1].Index).State), int(body.Awake))
	chk.Int(tst, "one island", m.NumIslands(), 1)
}

func Test_island05(tst *testing.T) {

	//verbose()
	chk.PrintTitle("island05. wake resets hysteresis")

	bodies, m, hs := newTestWorld(tst, 1)
	m.SleepDelay = 2
	m.Update(nil)
	m.UpdateSleep()
	if bodies.Activation(hs[0].Index).SleepyCounter == 0 {
		tst.Errorf("sleepy counter did not advance\n")
		return
	}
	m.Wake(hs[0])
	chk.Int(tst, "counter reset", bodies.Activation(hs[0].Index).SleepyCounter, 0)
}
