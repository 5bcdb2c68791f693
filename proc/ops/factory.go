// Copyright 2024 The Shotpipe Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ops

import (
	"fmt"

	"github.com/lcls-lab/shotpipe/config"
	"github.com/lcls-lab/shotpipe/proc"
)

// KnownKinds is the set of Kind strings NewFromConfig accepts, for
// config.Tree.ValidateKinds to check a settings file against before the
// daemon tries to build anything.
var KnownKinds = config.KnownKind{
	"Binary": {}, "Unary": {}, "Not": {}, "RangeCheck": {}, "Constant": {},
	"Identity": {}, "ChangedByMoreThan": {}, "Threshold": {}, "ThresholdByReference": {},
	"AxisProjection": {}, "WeightedAxisProjection": {}, "RangeIntegral": {}, "History": {},
	"MinMax": {}, "Max": {}, "Reduce": {}, "FracStat": {}, "StepPositionAtFraction": {},
	"AxisInquiry": {}, "IIRFilter": {}, "LocalMinimumTable": {},
	"LocalMedianBackgroundSubtraction": {}, "PeakFinder": {}, "Averaging": {},
	"Remap1D": {}, "TofToEnergyRemap": {}, "Counter": {},
}

func parseKind(s string) (proc.Kind, error) {
	switch s {
	case "", "Scalar":
		return proc.KindScalar, nil
	case "Array1D":
		return proc.KindArray1D, nil
	case "Array2D":
		return proc.KindArray2D, nil
	case "Table":
		return proc.KindTable, nil
	default:
		return 0, fmt.Errorf("shotpipe/ops: unknown result kind %q", s)
	}
}

func dep1(n config.Node, name string) (string, error) {
	if len(n.Dependencies) != 1 {
		return "", fmt.Errorf("shotpipe/ops: node %q wants exactly one dependency, got %d", name, len(n.Dependencies))
	}
	return n.Dependencies[0], nil
}

// NewFromConfig builds the proc.Node named name from its config.Node
// settings, dispatching on n.Kind the same way convreg.Dispatch dispatches
// on (TypeID, version) — a name-keyed switch over a closed, load-time-known
// set rather than a runtime-registered table, since the primitive set is
// fixed by the primitive library itself, not pluggable at deploy time.
//
// A handful of §4.G primitives aren't reachable through this factory
// because their constructors take a Go value config can't carry (a
// sink.FrameSink, a *QuitSignal, two-or-more independently-shaped
// dependencies needing per-axis extents): CBFFrameWriter, Sink,
// EventIDListFilter, Covariance, WeightedCovariance,
// StandardDeviationImage, PeakVisualiser, Scatter2D, Cross, Slice2D, and
// PixelWeighted1D are available only to Go callers; cmd/shotpiped builds
// every node through this factory and does not construct them.
func NewFromConfig(name string, n config.Node) (proc.Node, error) {
	switch n.Kind {
	case "Binary":
		kind, err := parseKind(n.StringDefault("resultKind", "Scalar"))
		if err != nil {
			return nil, err
		}
		return NewBinary(name, n.Dependencies, n.ConditionName, n.StringDefault("op", "+"), kind,
			n.IntDefault("cols", 0), n.IntDefault("rows", 0))
	case "Unary":
		kind, err := parseKind(n.StringDefault("resultKind", "Scalar"))
		if err != nil {
			return nil, err
		}
		return NewUnary(name, n.Dependencies, n.ConditionName, n.StringDefault("op", "abs"),
			n.BoolDefault("valueFirst", false), n.BoolDefault("fromConfig", false),
			n.Float64Default("constant", 0), kind, n.IntDefault("cols", 0), n.IntDefault("rows", 0))
	case "Not":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewNot(name, dep, n.ConditionName), nil
	case "RangeCheck":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewRangeCheck(name, dep, n.ConditionName, n.Float64Default("lower", 0), n.Float64Default("upper", 0)), nil
	case "Constant":
		kind, err := parseKind(n.StringDefault("resultKind", "Scalar"))
		if err != nil {
			return nil, err
		}
		return NewConstant(name, kind, n.IntDefault("cols", 0), n.IntDefault("rows", 0), n.Float64Default("value", 0)), nil
	case "Identity":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		kind, err := parseKind(n.StringDefault("resultKind", "Array1D"))
		if err != nil {
			return nil, err
		}
		return NewIdentity(name, dep, n.ConditionName, kind, n.IntDefault("cols", 0), n.IntDefault("rows", 0)), nil
	case "ChangedByMoreThan":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewChangedByMoreThan(name, dep, n.ConditionName, n.Float64Default("epsilon", 0)), nil
	case "Threshold":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		kind, err := parseKind(n.StringDefault("resultKind", "Array1D"))
		if err != nil {
			return nil, err
		}
		return NewThreshold(name, dep, n.ConditionName, n.Float64Default("threshold", 0), kind,
			n.IntDefault("cols", 0), n.IntDefault("rows", 0)), nil
	case "ThresholdByReference":
		kind, err := parseKind(n.StringDefault("resultKind", "Array1D"))
		if err != nil {
			return nil, err
		}
		return NewThresholdByReference(name, n.Dependencies, n.ConditionName,
			n.Float64Default("lower", 0), n.Float64Default("upper", 0), n.Float64Default("userValue", 0),
			kind, n.IntDefault("cols", 0), n.IntDefault("rows", 0)), nil
	case "AxisProjection":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		axis := AxisX
		if n.StringDefault("axis", "x") == "y" {
			axis = AxisY
		}
		return NewAxisProjection(name, dep, n.ConditionName, axis, n.IntDefault("restrictLo", -1),
			n.IntDefault("restrictHi", -1), n.IntDefault("cols", 0), n.IntDefault("rows", 0)), nil
	case "WeightedAxisProjection":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		axis := AxisX
		if n.StringDefault("axis", "x") == "y" {
			axis = AxisY
		}
		return NewWeightedAxisProjection(name, dep, n.ConditionName, axis, n.Float64Default("exclude", 0),
			n.IntDefault("cols", 0), n.IntDefault("rows", 0)), nil
	case "RangeIntegral":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewRangeIntegral(name, dep, n.ConditionName, n.IntDefault("lower", 0), n.IntDefault("upper", 0)), nil
	case "History":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewHistory(name, dep, n.ConditionName, n.IntDefault("n", 1)), nil
	case "MinMax", "Max":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewMinMax(name, dep, n.ConditionName, n.Kind == "Max" || n.BoolDefault("max", false)), nil
	case "Reduce":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		red, err := parseReduction(n.StringDefault("stat", "sum"))
		if err != nil {
			return nil, err
		}
		return NewReduce(name, dep, n.ConditionName, red), nil
	case "FracStat":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		stat, err := parseFracStat(n.StringDefault("stat", "fwhm"))
		if err != nil {
			return nil, err
		}
		return NewFracStat(name, dep, n.ConditionName, stat, n.IntDefault("lower", 0), n.IntDefault("upper", 0),
			n.Float64Default("fraction", 0.5)), nil
	case "StepPositionAtFraction":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewStepPositionAtFraction(name, dep, n.ConditionName, n.Float64Default("fraction", 0.5)), nil
	case "AxisInquiry":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		field, err := parseAxisField(n.StringDefault("field", "nbins"))
		if err != nil {
			return nil, err
		}
		return NewAxisInquiry(name, dep, n.ConditionName, field, n.BoolDefault("useY", false)), nil
	case "IIRFilter":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewIIRFilter(name, dep, n.ConditionName, n.Float64Default("cutoffHz", 1), n.Float64Default("dt", 1),
			n.BoolDefault("highPass", false), n.IntDefault("n", 1)), nil
	case "LocalMinimumTable":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewLocalMinimumTable(name, dep, n.ConditionName, n.IntDefault("radius", 1), n.IntDefault("maxRows", 64)), nil
	case "LocalMedianBackgroundSubtraction":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewLocalMedianBackgroundSubtraction(name, dep, n.ConditionName, n.IntDefault("cols", 0),
			n.IntDefault("rows", 0), n.IntDefault("sectionSize", 8), n.IntDefault("boxRadius", 2)), nil
	case "PeakFinder":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		p := PeakFinderParams{
			Cols: n.IntDefault("cols", 0), Rows: n.IntDefault("rows", 0),
			Threshold:   n.Float64Default("threshold", 0),
			BoxRadius:   n.IntDefault("boxRadius", 2),
			ExcludeR2:   n.Float64Default("excludeR2", 0),
			MinBgPixels: n.IntDefault("minBgPixels", 1),
			SNRMin:      n.Float64Default("snrMin", 5),
			GrowSNRMin:  n.Float64Default("growSnrMin", n.Float64Default("snrMin", 5)),
			MaxRows:     n.IntDefault("maxRows", 64),
		}
		return NewPeakFinder(name, dep, n.ConditionName, p), nil
	case "Averaging":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewAveraging(name, dep, n.ConditionName, n.IntDefault("n", 0), int64(n.IntDefault("nAlpha", 0)),
			n.Float64Default("alpha", 0), n.BoolDefault("squareAverage", false)), nil
	case "Remap1D":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		// A general mapFn isn't expressible in YAML; the generic factory only
		// offers the identity mapping (a pure area-preserving rebin).
		// TofToEnergyRemap below is the YAML-configurable non-linear case.
		return NewRemap1D(name, dep, n.ConditionName, n.Float64Default("srcLower", 0), n.Float64Default("srcUpper", 1),
			n.IntDefault("srcN", 1), n.Float64Default("dstLower", 0), n.Float64Default("dstUpper", 1),
			n.IntDefault("dstN", 1), func(x float64) float64 { return x }), nil
	case "TofToEnergyRemap":
		dep, err := dep1(n, name)
		if err != nil {
			return nil, err
		}
		return NewTofToEnergyRemap(name, dep, n.ConditionName, n.Float64Default("srcLower", 0),
			n.Float64Default("srcUpper", 1), n.IntDefault("srcN", 1), n.Float64Default("dstLower", 0),
			n.Float64Default("dstUpper", 1), n.IntDefault("dstN", 1), n.Float64Default("t0", 0),
			n.Float64Default("k", 1)), nil
	case "Counter":
		return NewCounter(name, n.ConditionName), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownProcessorKind, n.Kind)
	}
}

func parseReduction(s string) (Reduction, error) {
	switch s {
	case "sum":
		return ReduceSum, nil
	case "mean":
		return ReduceMean, nil
	case "stddev":
		return ReduceStdDev, nil
	case "variance":
		return ReduceVariance, nil
	default:
		return 0, fmt.Errorf("shotpipe/ops: unknown reduce stat %q", s)
	}
}

func parseFracStat(s string) (FracStat, error) {
	switch s {
	case "fwhm":
		return StatFWHM, nil
	case "widthAtFraction":
		return StatWidthAtFraction, nil
	case "centerOfMass":
		return StatCenterOfMass, nil
	default:
		return 0, fmt.Errorf("shotpipe/ops: unknown frac stat %q", s)
	}
}

func parseAxisField(s string) (AxisField, error) {
	switch s {
	case "nbins":
		return AxisNBins, nil
	case "lower":
		return AxisLower, nil
	case "upper":
		return AxisUpper, nil
	default:
		return 0, fmt.Errorf("shotpipe/ops: unknown axis field %q", s)
	}
}
