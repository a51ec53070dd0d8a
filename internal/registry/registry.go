// Package registry implements the immutable, acyclic graph of signal
// definitions (§3-4.2 of spec.md): construction, DFS-based cycle/dependency
// validation, and the processor/post-processor sum types signals reference.
//
// Grounded on original_source/bothan-lib/src/registry.rs. Rather than
// holding owning references between signals, every signal is stored flat in
// a map keyed by id and dependencies are resolved lexically at traversal
// time — this sidesteps Go's lack of a borrow checker entirely and makes
// cycle detection a plain DFS over a color map (see spec.md §9, "Dependency
// graph with potential cycles").
package registry

import (
	"fmt"

	"signalserver/internal/registry/processor"
)

// Registry is a validated, immutable mapping of signal id to Signal. Only a
// Registry obtained from Builder.Validate may be installed in the store or
// consulted by the resolver — this is the Go stand-in for the Rust
// Registry<Valid> type-state: an unvalidated set of signals is a *Builder*,
// a validated one is a *Registry*, and there is no way to construct the
// latter except through the former's Validate method.
type Registry struct {
	signals map[string]Signal
}

// Get returns the signal with the given id, if any.
func (r *Registry) Get(signalID string) (Signal, bool) {
	s, ok := r.signals[signalID]
	return s, ok
}

// Contains reports whether signalID is defined in the registry.
func (r *Registry) Contains(signalID string) bool {
	_, ok := r.signals[signalID]
	return ok
}

// Len returns the number of signals in the registry.
func (r *Registry) Len() int { return len(r.signals) }

// Range calls fn for every (id, signal) pair. Iteration order is
// unspecified, matching the map it's backed by.
func (r *Registry) Range(fn func(signalID string, s Signal) bool) {
	for id, s := range r.signals {
		if !fn(id, s) {
			return
		}
	}
}

// Builder accumulates signal definitions prior to validation.
type Builder struct {
	signals map[string]Signal
}

// New creates an empty Builder.
func New() *Builder {
	return &Builder{signals: make(map[string]Signal)}
}

// Add inserts or replaces the signal definition for id.
func (b *Builder) Add(signalID string, s Signal) *Builder {
	b.signals[signalID] = s
	return b
}

// ValidationError is returned by Validate when an invariant in spec.md §3
// does not hold.
type ValidationError struct {
	Kind     ValidationErrorKind
	SignalID string
	SourceID string // populated only for ErrUnknownWeightedMedianSource
}

type ValidationErrorKind int

const (
	// ErrCycleDetected: the dependency graph contains a cycle reachable
	// from SignalID.
	ErrCycleDetected ValidationErrorKind = iota
	// ErrInvalidDependency: a route of SignalID names a signal id that is
	// not a key of the registry.
	ErrInvalidDependency
	// ErrUnknownWeightedMedianSource: SignalID uses a WeightedMedian
	// processor whose SourceWeights map is missing SourceID, which appears
	// in one of its source queries. This is the spec-choice invariant #3
	// from spec.md §3 — the original Rust implementation instead fails this
	// late, at evaluation time, with "Unknown source" (see spec.md §9).
	ErrUnknownWeightedMedianSource
)

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ErrCycleDetected:
		return fmt.Sprintf("registry: cycle detected reachable from signal %q", e.SignalID)
	case ErrInvalidDependency:
		return fmt.Sprintf("registry: signal %q has a route to an undefined signal", e.SignalID)
	case ErrUnknownWeightedMedianSource:
		return fmt.Sprintf("registry: signal %q uses weighted_median but source %q has no weight", e.SignalID, e.SourceID)
	default:
		return "registry: validation failed"
	}
}

// color states for the DFS cycle check.
type color int

const (
	unvisited color = iota
	inStack
	done
)

// Validate performs a DFS from every signal, checking for dangling route
// dependencies (invariant #1) and cycles (invariant #2), and — as this
// implementation's choice for the Open Question in spec.md §9 — statically
// rejects any WeightedMedian processor whose source_weights map omits a
// source used by one of its own source queries (invariant #3). On success
// it returns an immutable *Registry holding its own copy of the signals, so
// later Adds to the Builder do not change it.
func (b *Builder) Validate() (*Registry, error) {
	visited := make(map[string]color, len(b.signals))
	for id := range b.signals {
		if err := b.validateSignal(id, visited); err != nil {
			return nil, err
		}
	}

	for id, s := range b.signals {
		if wm, ok := s.Processor.(processor.WeightedMedian); ok {
			for _, sq := range s.SourceQueries {
				if _, ok := wm.SourceWeights[sq.SourceID]; !ok {
					return nil, &ValidationError{
						Kind:     ErrUnknownWeightedMedianSource,
						SignalID: id,
						SourceID: sq.SourceID,
					}
				}
			}
		}
	}

	signals := make(map[string]Signal, len(b.signals))
	for id, s := range b.signals {
		signals[id] = s
	}
	return &Registry{signals: signals}, nil
}

func (b *Builder) validateSignal(id string, visited map[string]color) error {
	switch visited[id] {
	case done:
		return nil
	case inStack:
		return &ValidationError{Kind: ErrCycleDetected, SignalID: id}
	}

	signal, ok := b.signals[id]
	if !ok {
		return &ValidationError{Kind: ErrInvalidDependency, SignalID: id}
	}

	visited[id] = inStack
	for _, sq := range signal.SourceQueries {
		for _, route := range sq.Routes {
			if _, ok := b.signals[route.SignalID]; !ok {
				// The dangling reference is named after the signal that
				// holds the bad route, not the missing target.
				return &ValidationError{Kind: ErrInvalidDependency, SignalID: id}
			}
			if err := b.validateSignal(route.SignalID, visited); err != nil {
				return err
			}
		}
	}
	visited[id] = done

	return nil
}
