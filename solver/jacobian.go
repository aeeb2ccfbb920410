// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

// JacobianBuffer is the shared dense buffer the generic (multibody)
// constraints append their jacobian rows into. It is a bump allocator
// with a high-water mark: Reset keeps the backing storage, so after
// the first few steps the buffer itself stops allocating.
type JacobianBuffer struct {
	data []float64
	len  int
}

// Reset empties the buffer, retaining capacity.
func (b *JacobianBuffer) Reset() {

	b.len = 0
}

// Len returns the current bump offset.
func (b *JacobianBuffer) Len() int {

	return b.len
}

// Ensure grows the buffer so at least n values fit, zeroing any newly
// exposed storage.
func (b *JacobianBuffer) Ensure(n int) {

	if n <= len(b.data) {
		return
	}
	grown := make([]float64, n*2)
	copy(grown, b.data[:b.len])
	b.data = grown
}

// Alloc bumps the offset by n zeroed values and returns the offset the
// block starts at.
func (b *JacobianBuffer) Alloc(n int) int {

	b.Ensure(b.len + n)
	start := b.len
	for i := start; i < start+n; i++ {
		b.data[i] = 0
	}
	b.len += n
	return start
}

// Rows returns the n values starting at offset.
func (b *JacobianBuffer) Rows(offset, n int) []float64 {

	return b.data[offset : offset+n]
}
