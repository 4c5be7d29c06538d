package model

import (
	"fmt"
	"sort"
	"strings"
)

// ParseError reports a malformed or unrenderable source document
type ParseError struct {
	Document string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Document, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ModalityAlignmentError reports that the annotator output cannot be spliced
// back onto the structural phrases
type ModalityAlignmentError struct {
	Document string
	Err      error
}

func (e *ModalityAlignmentError) Error() string {
	return fmt.Sprintf("align modalities of %s: %v", e.Document, e.Err)
}

func (e *ModalityAlignmentError) Unwrap() error { return e.Err }

// MatcherEvaluationError reports that a user supplied matcher or throttler
// failed while evaluating contexts of a document
type MatcherEvaluationError struct {
	Document string
	Argument string
	Err      error
}

func (e *MatcherEvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s on %s: %v", e.Argument, e.Document, e.Err)
}

func (e *MatcherEvaluationError) Unwrap() error { return e.Err }

// PersistenceConflictError reports a concurrent write to the same scope
type PersistenceConflictError struct {
	Scope string
	Err   error
}

func (e *PersistenceConflictError) Error() string {
	return fmt.Sprintf("conflicting write to %s: %v", e.Scope, e.Err)
}

func (e *PersistenceConflictError) Unwrap() error { return e.Err }

// DocumentError ties a failure to the document it happened on
type DocumentError struct {
	Document string
	Err      error
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Document, e.Err)
}

func (e DocumentError) Unwrap() error { return e.Err }

// BatchError summarises the documents that failed in a best-effort batch
type BatchError struct {
	Failed []DocumentError
}

func (e *BatchError) Error() string {
	names := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		names[i] = f.Error()
	}
	sort.Strings(names)
	return fmt.Sprintf("%d document(s) failed: %s", len(e.Failed), strings.Join(names, "; "))
}

// Unwrap exposes every per-document failure to errors.Is and errors.As
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f
	}
	return errs
}
