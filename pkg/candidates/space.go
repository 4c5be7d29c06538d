// Package candidates enumerates argument contexts of documents and combines
// them into relation candidates.
package candidates

import (
	"iter"
	"sort"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
)

// SpaceModality selects the kind of contexts a Space enumerates
type SpaceModality string

const (
	// Ngrams enumerates contiguous token spans of every phrase
	Ngrams SpaceModality = "ngrams"
	// Phrases enumerates one span per whole phrase
	Phrases SpaceModality = "phrases"
	// Figures enumerates document figures
	Figures SpaceModality = "figures"
	// Cells enumerates table cells
	Cells SpaceModality = "cells"
)

// DefaultNMax is the n-gram length used when Space.NMax is not set
const DefaultNMax = 3

// Space is the universe of contexts one relation argument is drawn from
type Space struct {
	Modality SpaceModality
	// NMax is the longest n-gram, in tokens
	NMax int
	// SplitTokens additionally yields the parts of a token around any of
	// these characters, e.g. "1N4148-1N4150" with '-'
	SplitTokens string
	// FigureKinds keeps only figures of these formats; empty keeps all
	FigureKinds []string
}

// Validate checks the space configuration
func (s Space) Validate() error {
	switch s.Modality {
	case Ngrams, Phrases, Figures, Cells:
	default:
		return errors.Errorf("unknown space modality %q", s.Modality)
	}
	if s.NMax < 0 {
		return errors.Errorf("n-gram length %d is negative", s.NMax)
	}
	return nil
}

// Positional reports whether contexts of the space are anchored at a
// phrase position
func (s Space) Positional() bool {
	return s.Modality != Figures
}

// Contexts lazily enumerates the contexts of doc. The sequence is finite
// and can be iterated again with the same result.
func (s Space) Contexts(doc *model.Document) iter.Seq[model.Context] {
	switch s.Modality {
	case Ngrams:
		return s.ngrams(doc)
	case Phrases:
		return phrases(doc)
	case Figures:
		return s.figures(doc)
	case Cells:
		return cells(doc)
	default:
		return func(func(model.Context) bool) {}
	}
}

// ngrams yields spans in (phrase, start, length) order. Sub-token parts of a
// token follow its single-token span.
func (s Space) ngrams(doc *model.Document) iter.Seq[model.Context] {
	nmax := s.NMax
	if nmax == 0 {
		nmax = DefaultNMax
	}
	return func(yield func(model.Context) bool) {
		for pi := range doc.Phrases {
			p := &doc.Phrases[pi]
			n := len(p.Words)
			for start := 0; start < n; start++ {
				for length := 1; length <= nmax && start+length <= n; length++ {
					if !yield(model.NewSpan(doc, pi, start, start+length)) {
						return
					}
					if length == 1 && s.SplitTokens != "" {
						for _, part := range splitToken(p, start, s.SplitTokens) {
							if !yield(part.span(doc, pi, start)) {
								return
							}
						}
					}
				}
			}
		}
	}
}

type tokenPart struct{ start, end int }

func (t tokenPart) span(doc *model.Document, phrase, token int) model.Context {
	return model.NewSubTokenSpan(doc, phrase, token, t.start, t.end)
}

// splitToken returns the character ranges of the non-empty parts of a token
// separated by any rune of seps
func splitToken(p *model.Phrase, token int, seps string) []tokenPart {
	word := p.Words[token]
	if !strings.ContainsAny(word, seps) {
		return nil
	}
	base := p.CharOffsets[token]
	var parts []tokenPart
	start := 0
	for i, r := range word {
		if strings.ContainsRune(seps, r) {
			if i > start {
				parts = append(parts, tokenPart{base + start, base + i})
			}
			start = i + len(string(r))
		}
	}
	if start < len(word) {
		parts = append(parts, tokenPart{base + start, base + len(word)})
	}
	return parts
}

func phrases(doc *model.Document) iter.Seq[model.Context] {
	return func(yield func(model.Context) bool) {
		for pi, p := range doc.Phrases {
			if len(p.Words) == 0 {
				continue
			}
			if !yield(model.NewSpan(doc, pi, 0, len(p.Words))) {
				return
			}
		}
	}
}

func (s Space) figures(doc *model.Document) iter.Seq[model.Context] {
	kinds := make(map[string]bool, len(s.FigureKinds))
	for _, k := range s.FigureKinds {
		kinds[strings.ToLower(k)] = true
	}
	return func(yield func(model.Context) bool) {
		for fi, f := range doc.Figures {
			if len(kinds) > 0 && !kinds[strings.ToLower(f.Kind)] {
				continue
			}
			if !yield(model.NewFigureContext(doc, fi)) {
				return
			}
		}
	}
}

// cells yields cells table by table, row-major within a table
func cells(doc *model.Document) iter.Seq[model.Context] {
	return func(yield func(model.Context) bool) {
		for ti, t := range doc.Tables {
			order := make([]int, len(t.Cells))
			for i := range order {
				order[i] = i
			}
			sort.SliceStable(order, func(a, b int) bool {
				ca, cb := t.Cells[order[a]], t.Cells[order[b]]
				if ca.RowStart != cb.RowStart {
					return ca.RowStart < cb.RowStart
				}
				return ca.ColStart < cb.ColStart
			})
			for _, ci := range order {
				if !yield(model.NewCellContext(doc, model.CellRef{Table: ti, Cell: ci})) {
					return
				}
			}
		}
	}
}
