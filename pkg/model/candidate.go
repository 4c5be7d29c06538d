package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Relation declares the schema of an n-ary relation
type Relation struct {
	Name     string
	ArgNames []string
	// Distances restrict which argument combinations are structurally
	// plausible before the throttler runs.
	Distances []DistanceConstraint
	// AllowSelf keeps tuples that use the same context in two positions.
	AllowSelf bool
	// AllowNested keeps tuples where one span lies inside another.
	AllowNested bool
	// Asymmetric drops a tuple when a permutation of it was already emitted.
	Asymmetric bool
}

// DistanceConstraint bounds the phrase distance |pos(B) - pos(A)| between
// two argument positions. Max < 0 means unbounded.
type DistanceConstraint struct {
	A   int
	B   int
	Min int
	Max int
}

// Arity returns the number of arguments
func (r Relation) Arity() int {
	return len(r.ArgNames)
}

// Validate checks that the relation is well formed
func (r Relation) Validate() error {
	if r.Name == "" {
		return errors.New("relation has no name")
	}
	if len(r.ArgNames) == 0 {
		return errors.Errorf("relation %s has no arguments", r.Name)
	}
	seen := make(map[string]bool, len(r.ArgNames))
	for _, a := range r.ArgNames {
		if a == "" || seen[a] {
			return errors.Errorf("relation %s: argument name %q is empty or duplicated", r.Name, a)
		}
		seen[a] = true
	}
	for _, d := range r.Distances {
		if d.A < 0 || d.B < 0 || d.A >= len(r.ArgNames) || d.B >= len(r.ArgNames) || d.A == d.B {
			return errors.Errorf("relation %s: distance constraint between %d and %d is invalid", r.Name, d.A, d.B)
		}
		if d.Min < 0 || (d.Max >= 0 && d.Max < d.Min) {
			return errors.Errorf("relation %s: distance range [%d,%d] is invalid", r.Name, d.Min, d.Max)
		}
	}
	return nil
}

// Allows reports whether a phrase distance satisfies the constraint
func (d DistanceConstraint) Allows(a, b int) bool {
	dist := b - a
	if dist < 0 {
		dist = -dist
	}
	return dist >= d.Min && (d.Max < 0 || dist <= d.Max)
}

// Candidate is one relation instance hypothesis over live contexts
type Candidate struct {
	Relation string
	Split    Split
	Document string
	Position int
	Args     []Context
}

// Key identifies the ordered argument tuple
func (c Candidate) Key() string {
	return TupleKey(c.Args)
}

// TupleKey joins the keys of a context tuple
func TupleKey(args []Context) string {
	keys := make([]string, len(args))
	for i, a := range args {
		keys[i] = a.Key()
	}
	return strings.Join(keys, "|")
}

// Record converts the candidate to its persisted form
func (c Candidate) Record() CandidateRecord {
	refs := make([]ContextRef, len(c.Args))
	for i, a := range c.Args {
		refs[i] = a.Ref()
	}
	return CandidateRecord{
		Relation: c.Relation,
		Split:    c.Split,
		Document: c.Document,
		Position: c.Position,
		Key:      c.Key(),
		Args:     refs,
	}
}

// CandidateRecord is a Candidate as stored, detached from the live Document
type CandidateRecord struct {
	ID       int64        `json:"id,omitempty"`
	Relation string       `json:"relation"`
	Split    Split        `json:"split"`
	Document string       `json:"document"`
	Position int          `json:"position"`
	Key      string       `json:"key"`
	Run      string       `json:"run,omitempty"`
	Args     []ContextRef `json:"args"`
}
