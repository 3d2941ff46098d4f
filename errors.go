package kernelsearch

import (
	"errors"
	"fmt"
)

//////
// Const, vars, types.
//////

var (
	// ErrCandidateFit is returned by an Evaluator when a single candidate could
	// not be fitted. The search drops such candidates and keeps going.
	ErrCandidateFit = errors.New("candidate fit failed")

	// ErrEmptyLevel is the fatal condition where no valid result survives a
	// search depth.
	ErrEmptyLevel = errors.New("no valid results at search depth")

	// ErrMalformedResults is returned when a results log cannot be parsed.
	ErrMalformedResults = errors.New("malformed results log")

	// ErrInvalidConfig is returned when a configuration fails to load or
	// validate.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownKind is returned for a base-kernel identifier that is not in
	// the kind table.
	ErrUnknownKind = errors.New("unknown kernel kind")

	// ErrParamCount is returned when a parameter vector does not match the
	// arity of the family it is bound to.
	ErrParamCount = errors.New("parameter count mismatch")

	// ErrUnknownCategory is returned when a grammar rule references a
	// category the grammar does not define.
	ErrUnknownCategory = errors.New("unknown grammar category")

	// ErrParse is returned when a serialized expression cannot be read back.
	ErrParse = errors.New("parse error")
)

// EmptyLevelError reports a depth at which every candidate failed, was out of
// bounds, or scored NaN.
type EmptyLevelError struct {
	// Depth is the zero-based search depth that produced nothing.
	Depth int

	// Dataset names the data source being searched.
	Dataset string

	// Candidates is how many candidates were submitted at that depth.
	Candidates int
}

// ParseError locates a syntax problem in a serialized expression.
type ParseError struct {
	Line int
	Col  int
	Msg  string
}

//////
// Methods.
//////

func (e *EmptyLevelError) Error() string {
	return fmt.Sprintf(
		"%s: depth %d of dataset %q (%d candidates submitted)",
		ErrEmptyLevel, e.Depth, e.Dataset, e.Candidates,
	)
}

// Unwrap makes errors.Is(err, ErrEmptyLevel) hold.
func (e *EmptyLevelError) Unwrap() error {
	return ErrEmptyLevel
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s at line %d, column %d: %s", ErrParse, e.Line, e.Col, e.Msg)
	}

	return fmt.Sprintf("%s at column %d: %s", ErrParse, e.Col, e.Msg)
}

// Unwrap makes errors.Is(err, ErrParse) hold.
func (e *ParseError) Unwrap() error {
	return ErrParse
}
