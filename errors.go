// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dynamics

import "github.com/pkg/errors"

// Sentinel errors of the public API. Numerical failures inside the
// solver (singular effective masses, ill-conditioned multibodies,
// non-finite body state) are recovered locally and surface as logs and
// events, never as errors: simulation liveness is preserved.
var (
	// ErrStaleHandle names the condition of a handle that addresses a
	// removed body, collider or joint. The lookup and removal methods
	// report that condition with a nil or false result and do not
	// return this error.
	ErrStaleHandle = errors.New("dynamics: stale handle")

	// ErrInvalidTimestep is the panic value used when Step is called
	// with a non-positive or non-finite dt. Stepping with an invalid
	// dt is API misuse, not a recoverable condition.
	ErrInvalidTimestep = errors.New("dynamics: timestep must be positive and finite")
)
