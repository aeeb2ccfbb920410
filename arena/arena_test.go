// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arena

import (
	"testing"

	"github.com/cpmech/gosl/chk"
)

func Test_arena01(tst *testing.T) {

	//verbose()
	chk.PrintTitle("arena01. insert, lookup, remove")

	a := New()
	h1 := a.Insert("first")
	h2 := a.Insert("second")
	chk.Int(tst, "len", a.Len(), 2)

	if a.Get(h1).(string) != "first" || a.Get(h2).(string) != "second" {
		tst.Errorf("lookup returned wrong values\n")
		return
	}

	if a.Remove(h1).(string) != "first" {
		tst.Errorf("remove returned wrong value\n")
		return
	}
	chk.Int(tst, "len after remove", a.Len(), 1)

	// Stale handle lookups fail.
	if a.Get(h1) != nil {
		tst.Errorf("stale handle lookup succeeded\n")
	}
	if a.Contains(h1) {
		tst.Errorf("stale handle reported live\n")
	}
	if a.Remove(h1) != nil {
		tst.Errorf("stale handle removal succeeded\n")
	}
}

func Test_arena02(tst *testing.T) {

	//verbose()
	chk.PrintTitle("arena02. slot reuse bumps generation")

	a := New()
	h1 := a.Insert(1)
	a.Remove(h1)
	h2 := a.Insert(2)

	chk.Int(tst, "reused slot", int(h2.Index), int(h1.Index))
	if h2.Generation == h1.Generation {
		tst.Errorf("generation not bumped on reuse\n")
		return
	}
	if a.Get(h1) != nil {
		tst.Errorf("old handle aliases the new element\n")
	}
	chk.Int(tst, "new value", a.Get(h2).(int), 2)
}

func Test_arena03(tst *testing.T) {

	//verbose()
	chk.PrintTitle("arena03. iteration order and early stop")

	a := New()
	a.Insert(10)
	a.Insert(20)
	a.Insert(30)

	var got []int
	a.Each(func(h Handle, v interface{}) bool {
		got = append(got, v.(int))
		return len(got) < 2
	})
	chk.Ints(tst, "visited", got, []int{10, 20})
}
