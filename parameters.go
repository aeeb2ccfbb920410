// Copyright 2016 The G3N Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dynamics implements the constrained-dynamics core of a
// rigid-body physics engine: rigid-body stores, island partitioning,
// impulse and multibody joints, the projected Gauss-Seidel velocity
// solver with position correction, and the stepping driver tying them
// together. Broad-phase, narrow-phase and CCD are external
// collaborators accessed through the contracts in the geometry
// package.
package dynamics

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"

	"github.com/g3n/dynamics/solver"
)

// IntegrationParameters configures the stepping pipeline and the
// solver. The zero value is not usable; start from
// DefaultIntegrationParameters.
type IntegrationParameters struct {
	// Dt is the default timestep, in seconds, used by Step.
	Dt float64 `yaml:"dt"`

	// MinCCDDt is the minimum remaining-time granule handed to the
	// CCD solver.
	MinCCDDt float64 `yaml:"min_ccd_dt"`

	// Erp is the error reduction parameter for contacts, in [0, 1].
	Erp float64 `yaml:"erp"`

	// DampingRatio is the spring damping ratio for penetration
	// correction.
	DampingRatio float64 `yaml:"damping_ratio"`

	// JointErp is the error reduction parameter for joint anchors.
	JointErp float64 `yaml:"joint_erp"`

	// WarmstartCoeff scales the cached impulses seeding each solve.
	WarmstartCoeff float64 `yaml:"warmstart_coeff"`

	// AllowedLinearError is the penetration slop left uncorrected.
	AllowedLinearError float64 `yaml:"allowed_linear_error"`

	// MaxPenetrationCorrection caps the positional correction applied
	// per step.
	MaxPenetrationCorrection float64 `yaml:"max_penetration_correction"`

	// MaxCorrectiveVelocity caps the velocity bias injected by the
	// penetration and anchor error terms.
	MaxCorrectiveVelocity float64 `yaml:"max_corrective_velocity"`

	// PredictionDistance inflates the broad phase AABBs.
	PredictionDistance float64 `yaml:"prediction_distance"`

	// RestitutionThreshold is the impact speed below which restitution
	// is ignored.
	RestitutionThreshold float64 `yaml:"restitution_threshold"`

	MaxVelocityIterations int `yaml:"max_velocity_iterations"`
	MaxPositionIterations int `yaml:"max_position_iterations"`

	// MinIslandSize is the island body count below which the parallel
	// solver falls back to the serial path.
	MinIslandSize int `yaml:"min_island_size"`

	MaxCCDSubsteps int `yaml:"max_ccd_substeps"`

	// DeterministicMode disables wide-lane batching in exchange for
	// bit-exact cross-platform reproducibility.
	DeterministicMode bool `yaml:"deterministic_mode"`
}

// DefaultIntegrationParameters returns the recommended defaults.
func DefaultIntegrationParameters() IntegrationParameters {

	return IntegrationParameters{
		Dt:                       1.0 / 60.0,
		MinCCDDt:                 1.0 / 60.0 / 100.0,
		Erp:                      0.8,
		DampingRatio:             0.25,
		JointErp:                 1.0,
		WarmstartCoeff:           1.0,
		AllowedLinearError:       0.005,
		MaxPenetrationCorrection: math.Inf(1),
		MaxCorrectiveVelocity:    10.0,
		PredictionDistance:       0.002,
		RestitutionThreshold:     1.0,
		MaxVelocityIterations:    4,
		MaxPositionIterations:    1,
		MinIslandSize:            128,
		MaxCCDSubsteps:           1,
	}
}

// Validate reports every invalid field at once.
func (p *IntegrationParameters) Validate() error {

	var err error
	if p.Dt <= 0 || math.IsNaN(p.Dt) {
		err = multierr.Append(err, errors.Errorf("dt must be positive, got %v", p.Dt))
	}
	if p.Erp < 0 || p.Erp > 1 {
		err = multierr.Append(err, errors.Errorf("erp must be in [0, 1], got %v", p.Erp))
	}
	if p.JointErp < 0 || p.JointErp > 1 {
		err = multierr.Append(err, errors.Errorf("joint_erp must be in [0, 1], got %v", p.JointErp))
	}
	if p.WarmstartCoeff < 0 {
		err = multierr.Append(err, errors.Errorf("warmstart_coeff must be non-negative, got %v", p.WarmstartCoeff))
	}
	if p.AllowedLinearError < 0 {
		err = multierr.Append(err, errors.Errorf("allowed_linear_error must be non-negative, got %v", p.AllowedLinearError))
	}
	if p.MaxVelocityIterations < 1 {
		err = multierr.Append(err, errors.Errorf("max_velocity_iterations must be at least 1, got %d", p.MaxVelocityIterations))
	}
	if p.MaxPositionIterations < 0 {
		err = multierr.Append(err, errors.Errorf("max_position_iterations must be non-negative, got %d", p.MaxPositionIterations))
	}
	if p.MinIslandSize < 1 {
		err = multierr.Append(err, errors.Errorf("min_island_size must be at least 1, got %d", p.MinIslandSize))
	}
	if p.MaxCCDSubsteps < 1 {
		err = multierr.Append(err, errors.Errorf("max_ccd_substeps must be at least 1, got %d", p.MaxCCDSubsteps))
	}
	return err
}

// LoadIntegrationParameters reads parameters from a YAML file. Fields
// absent from the file keep their defaults.
func LoadIntegrationParameters(path string) (IntegrationParameters, error) {

	p := DefaultIntegrationParameters()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, errors.Wrapf(err, "reading integration parameters from %q", path)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, errors.Wrapf(err, "parsing integration parameters from %q", path)
	}
	if err := p.Validate(); err != nil {
		return p, errors.Wrapf(err, "validating integration parameters from %q", path)
	}
	return p, nil
}

// Save writes the parameters to a YAML file.
func (p *IntegrationParameters) Save(path string) error {

	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "encoding integration parameters")
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "writing integration parameters to %q", path)
}

// solverParams derives the per-step solver coefficients for a step of
// length dt.
func (p *IntegrationParameters) solverParams(dt float64) solver.Params {

	return solver.Params{
		Dt:                       dt,
		Erp:                      p.Erp,
		JointErp:                 p.JointErp,
		DampingRatio:             p.DampingRatio,
		ErpInvDt:                 p.Erp / dt,
		JointErpInvDt:            p.JointErp / dt,
		WarmstartCoeff:           p.WarmstartCoeff,
		AllowedLinearError:       p.AllowedLinearError,
		MaxPenetrationCorrection: p.MaxPenetrationCorrection,
		MaxCorrectiveVelocity:    p.MaxCorrectiveVelocity,
		RestitutionThreshold:     p.RestitutionThreshold,
		MaxVelocityIterations:    p.MaxVelocityIterations,
		MaxPositionIterations:    p.MaxPositionIterations,
		Deterministic:            p.DeterministicMode,
	}
}
