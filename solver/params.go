// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package solver

import "math"

var posInf = math.Inf(1)

// Params are the per-step solver coefficients, derived once from the
// user-facing integration parameters. ErpInvDt and JointErpInvDt are
// precomputed so the assembler never divides by dt per constraint.
type Params struct {
	Dt                       float64
	Erp                      float64
	JointErp                 float64
	DampingRatio             float64
	ErpInvDt                 float64
	JointErpInvDt            float64
	WarmstartCoeff           float64
	AllowedLinearError       float64
	MaxPenetrationCorrection float64
	MaxCorrectiveVelocity    float64
	RestitutionThreshold     float64
	MaxVelocityIterations    int
	MaxPositionIterations    int

	// Deterministic disables wide-lane batching so constraint order
	// and rounding are reproducible across platforms.
	Deterministic bool
}
