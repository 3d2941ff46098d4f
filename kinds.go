package kernelsearch

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

//////
// Const, vars, types.
//////

// Kind identifies a base covariance kind. The declaration order is the
// enumeration order used by the grammar and the first key of the total order
// over base kernels.
type Kind int

// Base kinds.
const (
	KindSE Kind = iota
	KindPer
	KindRQ
	KindConst
	KindLin
	KindChange
	KindQuad
	KindCubic
	KindPP0
	KindPP1
	KindPP2
	KindPP3
	KindMatern
)

// DefaultBaseKernels is the whitelist used when none is configured.
const DefaultBaseKernels = "SE,RQ,Per,Lin,Const"

// initRule selects how a default-valued parameter is replaced when random
// restarts are generated.
type initRule int

const (
	initNeutral initRule = iota
	initLengthscale
	initOutputScale
	initConstScale
	initPeriodLengthscale
	initPeriod
	initAlpha
	initLinOffset
	initLinScale
	initLocation
	initSteepness
)

// boundRule selects the lower bound a fitted parameter is checked against.
type boundRule int

const (
	boundNone boundRule = iota
	boundLengthscale
	boundPeriod
	boundAlpha
)

type paramSpec struct {
	name  string
	def   float64
	init  initRule
	bound boundRule
}

type kindSpec struct {
	id        string
	name      string
	params    []paramSpec
	effective int
}

var (
	lengthscaleParam = paramSpec{"lengthscale", 0, initLengthscale, boundLengthscale}
	outputParam      = paramSpec{"output_variance", 0, initOutputScale, boundNone}
	stationaryParams = []paramSpec{lengthscaleParam, outputParam}
	polyParams       = []paramSpec{{"offset", 0, initNeutral, boundNone}, {"output_variance", 0, initNeutral, boundNone}}
)

// kindTable holds everything that differs between base kinds. Adding a kind
// means adding a row here and a covariance function in the evaluator.
var kindTable = [...]kindSpec{
	KindSE: {id: "SE", name: "SqExpKernel", params: stationaryParams, effective: 2},
	KindPer: {id: "Per", name: "SqExpPeriodicKernel", effective: 3, params: []paramSpec{
		{"lengthscale", 0, initPeriodLengthscale, boundLengthscale},
		{"period", -2, initPeriod, boundPeriod},
		outputParam,
	}},
	KindRQ: {id: "RQ", name: "RQKernel", effective: 3, params: []paramSpec{
		lengthscaleParam,
		outputParam,
		{"alpha", 0, initAlpha, boundAlpha},
	}},
	KindConst: {id: "Const", name: "ConstKernel", effective: 1, params: []paramSpec{
		{"output_variance", 0, initConstScale, boundNone},
	}},
	KindLin: {id: "Lin", name: "LinKernel", effective: 2, params: []paramSpec{
		{"offset", -2, initLinOffset, boundNone},
		{"lengthscale", 0, initLinScale, boundNone},
		{"location", 0, initLocation, boundNone},
	}},
	KindChange: {id: "Change", name: "ChangeKernel", effective: 2, params: []paramSpec{
		{"steepness", 1, initSteepness, boundNone},
		{"location", 0, initLocation, boundNone},
	}},
	KindQuad:   {id: "Quad", name: "QuadraticKernel", params: polyParams, effective: 2},
	KindCubic:  {id: "Cubic", name: "CubicKernel", params: polyParams, effective: 2},
	KindPP0:    {id: "PP0", name: "PP0Kernel", params: stationaryParams, effective: 2},
	KindPP1:    {id: "PP1", name: "PP1Kernel", params: stationaryParams, effective: 2},
	KindPP2:    {id: "PP2", name: "PP2Kernel", params: stationaryParams, effective: 2},
	KindPP3:    {id: "PP3", name: "PP3Kernel", params: stationaryParams, effective: 2},
	KindMatern: {id: "MT", name: "MaternKernel", params: stationaryParams, effective: 2},
}

//////
// Methods.
//////

func (k Kind) valid() bool {
	return k >= 0 && int(k) < len(kindTable)
}

func (k Kind) spec() kindSpec {
	return kindTable[k]
}

// String returns the short identifier used in whitelists ("SE", "Per", ...).
func (k Kind) String() string {
	if !k.valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindTable[k].id
}

// SerializedName returns the name used in the serialized form, e.g.
// "SqExpKernel".
func (k Kind) SerializedName() string {
	return kindTable[k].name
}

// ParamNames returns the parameter names in vector order.
func (k Kind) ParamNames() []string {
	specs := kindTable[k].params
	names := make([]string, len(specs))

	for i, p := range specs {
		names[i] = p.name
	}

	return names
}

// DefaultParams returns a fresh copy of the kind's default parameter vector.
func (k Kind) DefaultParams() []float64 {
	specs := kindTable[k].params
	params := make([]float64, len(specs))

	for i, p := range specs {
		params[i] = p.def
	}

	return params
}

// NumParams is the length of the kind's parameter vector.
func (k Kind) NumParams() int {
	return len(kindTable[k].params)
}

// EffectiveParams is the number of free parameters counted by BIC. It equals
// NumParams for every kind except Lin, which counts as 2.
func (k Kind) EffectiveParams() int {
	return kindTable[k].effective
}

// outOfBounds reports whether any parameter falls below its configured lower
// bound. Unset bounds never trigger.
func (k Kind) outOfBounds(params []float64, b resolvedBounds) bool {
	for i, p := range kindTable[k].params {
		var min float64

		switch p.bound {
		case boundLengthscale:
			min = b.minLengthscale
		case boundPeriod:
			min = b.minPeriod
		case boundAlpha:
			min = b.minAlpha
		default:
			continue
		}

		if !math.IsNaN(min) && params[i] < min {
			return true
		}
	}

	return false
}

// randomize returns a copy of params where every default-valued entry is
// replaced by a draw informed by the data shape.
func (k Kind) randomize(rng *rand.Rand, sd float64, params []float64, s resolvedShape) []float64 {
	out := make([]float64, len(params))
	copy(out, params)

	for i, p := range kindTable[k].params {
		// Each entry is compared with its own default, so Change steepness is
		// redrawn at 1 and kept at 0.
		if out[i] != p.def {
			continue
		}

		out[i] = p.draw(rng, sd, s)
	}

	return out
}

func (p paramSpec) draw(rng *rand.Rand, sd float64, s resolvedShape) float64 {
	informed := func(loc, neutral float64) float64 {
		if rng.Float64() < 0.5 {
			return loc
		}

		return neutral
	}

	switch p.init {
	case initLengthscale:
		return truncatedNormal(rng, informed(s.inputScale, 0), sd, s.minLengthscale)
	case initOutputScale:
		return rng.NormFloat64()*sd + informed(s.outputScale, 0)
	case initConstScale:
		return rng.NormFloat64()*sd + s.outputScale
	case initPeriodLengthscale:
		return truncatedNormal(rng, informed(s.inputScale, 0), sd, maxBound(s.minPeriod, s.minLengthscale))
	case initPeriod:
		return truncatedNormal(rng, informed(s.inputScale-2, -2), sd, s.minPeriod)
	case initAlpha:
		return truncatedNormal(rng, 0, sd, s.minAlpha)
	case initLinOffset:
		return rng.NormFloat64()*sd - 10
	case initLinScale:
		return rng.NormFloat64()*sd + informed(s.outputScale-s.inputScale, 0)
	case initLocation:
		return rng.NormFloat64()*sd*math.Exp(s.inputScale) + s.inputLocation
	case initSteepness:
		return rng.NormFloat64()*sd + s.inputScale
	default:
		return rng.NormFloat64() * sd
	}
}

//////
// Exported functionalities.
//////

// Kinds returns every base kind in enumeration order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindTable))
	for i := range kindTable {
		kinds[i] = Kind(i)
	}

	return kinds
}

// ParseKind resolves a short identifier such as "SE" or "Per".
func ParseKind(id string) (Kind, error) {
	id = strings.TrimSpace(id)

	for i, spec := range kindTable {
		if spec.id == id {
			return Kind(i), nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, id)
}

// ParseKinds resolves a comma-separated whitelist ("SE,RQ,Per") into kinds,
// returned in enumeration order regardless of the order they were listed in.
func ParseKinds(list string) ([]Kind, error) {
	return KindsFromIDs(strings.Split(list, ","))
}

// KindsFromIDs resolves identifiers into kinds in enumeration order, dropping
// repeats.
func KindsFromIDs(ids []string) ([]Kind, error) {
	seen := make(map[Kind]bool, len(ids))

	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			continue
		}

		k, err := ParseKind(id)
		if err != nil {
			return nil, err
		}

		seen[k] = true
	}

	kinds := make([]Kind, 0, len(seen))

	for _, k := range Kinds() {
		if seen[k] {
			kinds = append(kinds, k)
		}
	}

	return kinds, nil
}

func kindBySerializedName(name string) (Kind, bool) {
	for i, spec := range kindTable {
		if spec.name == name {
			return Kind(i), true
		}
	}

	return 0, false
}
