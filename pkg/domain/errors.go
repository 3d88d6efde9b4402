package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds. Every typed planning error matches exactly one of
// these through errors.Is.
var (
	ErrMalformedRecipe    = errors.New("malformed construction")
	ErrCapacityExceeded   = errors.New("box capacity exceeded")
	ErrUnresolvedLocation = errors.New("unresolved inventory location")
	ErrUnknownReagent     = errors.New("unknown reagent")
	ErrInvalidSequence    = errors.New("invalid sequence input")
)

// MalformedRecipeError reports a construction that violates the recipe invariants.
type MalformedRecipeError struct {
	Construct string
	Reason    string
}

func (e MalformedRecipeError) Error() string {
	if e.Construct == "" {
		return fmt.Sprintf("malformed construction: %s", e.Reason)
	}
	return fmt.Sprintf("malformed construction %s: %s", e.Construct, e.Reason)
}

// Is reports whether target is ErrMalformedRecipe.
func (e MalformedRecipeError) Is(target error) bool { return target == ErrMalformedRecipe }

// CapacityExceededError is returned when allocation runs past the box grid.
type CapacityExceededError struct {
	Box    string
	Rows   int
	Cols   int
	Sample string
}

func (e CapacityExceededError) Error() string {
	return fmt.Sprintf("box %s (%dx%d) is full: no cell left for %s", e.Box, e.Rows, e.Cols, e.Sample)
}

// Is reports whether target is ErrCapacityExceeded.
func (e CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// UnresolvedLocationError names an input for which no inventory sample in an
// acceptable state exists.
type UnresolvedLocationError struct {
	Name   string
	Accept []Concentration
}

func (e UnresolvedLocationError) Error() string {
	if len(e.Accept) == 0 {
		return fmt.Sprintf("no inventory location for %s", e.Name)
	}
	states := make([]string, len(e.Accept))
	for i, c := range e.Accept {
		states[i] = string(c)
	}
	return fmt.Sprintf("no inventory location for %s in state %s", e.Name, strings.Join(states, "|"))
}

// Is reports whether target is ErrUnresolvedLocation.
func (e UnresolvedLocationError) Is(target error) bool { return target == ErrUnresolvedLocation }

// UnknownReagentError is a configuration error: the name has no reagent mapping.
type UnknownReagentError struct {
	Kind string // enzyme, strain or antibiotic
	Name string
}

func (e UnknownReagentError) Error() string {
	return fmt.Sprintf("no %s reagent matches %q", e.Kind, e.Name)
}

// Is reports whether target is ErrUnknownReagent.
func (e UnknownReagentError) Is(target error) bool { return target == ErrUnknownReagent }

// InvalidSequenceError is returned by sequence design collaborators.
type InvalidSequenceError struct {
	Reason string
}

func (e InvalidSequenceError) Error() string { return "invalid sequence: " + e.Reason }

// Is reports whether target is ErrInvalidSequence.
func (e InvalidSequenceError) Is(target error) bool { return target == ErrInvalidSequence }
