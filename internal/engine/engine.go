// Package engine orchestrates the four join phases over a join tree and
// exposes the configuration surface and error taxonomy spec §6/§7 describe,
// the way the teacher's internal/api and cmd/engine read configuration and
// surface a single error type to callers.
package engine

import (
	"fmt"

	"github.com/rawblock/oblivious-band-join/internal/dispatch"
	"github.com/rawblock/oblivious-band-join/internal/extsort"
	"github.com/rawblock/oblivious-band-join/internal/joinerr"
	"github.com/rawblock/oblivious-band-join/internal/jointree"
	"github.com/rawblock/oblivious-band-join/internal/phase1"
	"github.com/rawblock/oblivious-band-join/internal/phase2"
	"github.com/rawblock/oblivious-band-join/internal/phase3"
	"github.com/rawblock/oblivious-band-join/internal/phase4"
	"github.com/rawblock/oblivious-band-join/pkg/tuple"
)

// Config is the recognized configuration surface of spec §6.
type Config struct {
	MaxAttributes   int
	BatchSize       int
	MergeSortK      int
	MergeBufferSize int
	OCompactZ       int
	EpsilonInv      int
	DeltaInvLog2    int
}

// DefaultConfig returns the values spec.md names for each option.
func DefaultConfig() Config {
	return Config{
		MaxAttributes:   tuple.MaxAttributes,
		BatchSize:       4096,
		MergeSortK:      extsort.KMax,
		MergeBufferSize: 512,
		OCompactZ:       4,
		EpsilonInv:      8,
		DeltaInvLog2:    64,
	}
}

// Validate checks the surface's documented constraints (spec §6: MergeSortK
// a power of two ≤ 8, OCompactZ a power of two).
func (c Config) Validate() error {
	if c.MaxAttributes != tuple.MaxAttributes {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "MaxAttributes %d does not match compiled-in arity %d", c.MaxAttributes, tuple.MaxAttributes)
	}
	if c.BatchSize <= 0 {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "BatchSize must be positive, got %d", c.BatchSize)
	}
	if c.MergeSortK <= 0 || c.MergeSortK > extsort.KMax || !isPowerOfTwo(c.MergeSortK) {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "MergeSortK must be a power of two <= %d, got %d", extsort.KMax, c.MergeSortK)
	}
	if c.MergeBufferSize <= 0 {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "MergeBufferSize must be positive, got %d", c.MergeBufferSize)
	}
	if c.OCompactZ <= 0 || !isPowerOfTwo(c.OCompactZ) {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "OCompactZ must be a power of two, got %d", c.OCompactZ)
	}
	if c.EpsilonInv <= 0 {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "EpsilonInv must be positive, got %d", c.EpsilonInv)
	}
	if c.DeltaInvLog2 <= 0 {
		return joinerr.New(joinerr.InvalidArgument, "engine.Config.Validate", "DeltaInvLog2 must be positive, got %d", c.DeltaInvLog2)
	}
	return nil
}

func isPowerOfTwo(n int) bool { return n > 0 && n&(n-1) == 0 }

// Engine evaluates join trees with a fixed configuration and confidentiality
// collaborator.
type Engine struct {
	cfg Config
	d   *dispatch.Dispatcher
}

// New validates cfg and returns an Engine dispatching through collaborator
// (which may be nil for plaintext tables).
func New(cfg Config, collaborator dispatch.Collaborator) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, d: dispatch.New(collaborator)}, nil
}

// Evaluate runs the four join phases over tree in order (spec §4.4-§4.7)
// and returns the final joined table. A failed join leaves no partial
// output visible: Evaluate returns a non-nil error and a nil table rather
// than a half-built result (spec §7's "user-visible behavior").
func (e *Engine) Evaluate(tree *jointree.Tree) (*tuple.Table, error) {
	if tree.Len() == 0 {
		return nil, joinerr.New(joinerr.InvalidArgument, "engine.Evaluate", "empty join tree")
	}

	if err := phase1.Run(e.d, tree); err != nil {
		return nil, fmt.Errorf("phase1: %w", err)
	}
	if err := phase2.Run(e.d, tree); err != nil {
		return nil, fmt.Errorf("phase2: %w", err)
	}
	if err := phase3.Run(e.d, tree); err != nil {
		return nil, fmt.Errorf("phase3: %w", err)
	}
	result, err := phase4.Run(e.d, tree)
	if err != nil {
		return nil, fmt.Errorf("phase4: %w", err)
	}
	return result, nil
}

// SortLarge exposes the external sorter (spec §4.8) at the engine's
// configured batch/merge sizing, for callers that need a table sorted
// beyond a single node's join (e.g. normalizing a table before it is fed
// into the tree as a root or child).
func (e *Engine) SortLarge(t *tuple.Table, kind tuple.OpKind) error {
	return extsort.Sort(e.d, t, kind, e.cfg.BatchSize)
}
