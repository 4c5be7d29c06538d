package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// ContextKind tags the concrete type behind a Context
type ContextKind string

const (
	KindSpan   ContextKind = "span"
	KindFigure ContextKind = "figure"
	KindCell   ContextKind = "cell"
)

// Context is the minimal addressable unit a matcher inspects and a Candidate
// references. Implementations hold a weak reference to their Document and
// never own the entity they point at.
type Context interface {
	Kind() ContextKind
	// Key is stable across re-parses as long as the ordinals it is built from
	// are unchanged.
	Key() string
	Text() string
	Document() *Document
	Ref() ContextRef
}

// Span is a contiguous token range [Start, End) of one phrase. A span built
// from part of a single token (see NewSubTokenSpan) also carries the character range.
type Span struct {
	doc       *Document
	phrase    int
	Start     int
	End       int
	charStart int
	charEnd   int
}

// NewSpan returns the span covering tokens [start, end) of the phrase
func NewSpan(doc *Document, phrase, start, end int) *Span {
	p := doc.Phrase(phrase)
	s := &Span{doc: doc, phrase: phrase, Start: start, End: end}
	if p != nil && start >= 0 && end <= len(p.Words) && start < end {
		s.charStart = p.CharOffsets[start]
		s.charEnd = clamp(p.CharOffsets[end-1]+len(p.Words[end-1]), len(p.Text))
	}
	return s
}

// NewSubTokenSpan returns a span over bytes [charStart, charEnd) of the phrase
// text that lies inside a single token.
func NewSubTokenSpan(doc *Document, phrase, token, charStart, charEnd int) *Span {
	return &Span{doc: doc, phrase: phrase, Start: token, End: token + 1, charStart: charStart, charEnd: charEnd}
}

func clamp(v, hi int) int {
	if v > hi {
		return hi
	}
	return v
}

func (s *Span) Kind() ContextKind     { return KindSpan }
func (s *Span) Document() *Document   { return s.doc }
func (s *Span) PhraseIndex() int      { return s.phrase }
func (s *Span) CharRange() (int, int) { return s.charStart, s.charEnd }

// Phrase returns the phrase the span points into, or nil if it vanished
func (s *Span) Phrase() *Phrase {
	if s.doc == nil {
		return nil
	}
	return s.doc.Phrase(s.phrase)
}

func (s *Span) Key() string {
	return fmt.Sprintf("%s::span:%d:%d-%d", docName(s.doc), s.phrase, s.charStart, s.charEnd)
}

func (s *Span) Text() string {
	p := s.Phrase()
	if p == nil || s.charStart < 0 || s.charEnd > len(p.Text) || s.charStart >= s.charEnd {
		return ""
	}
	return p.Text[s.charStart:s.charEnd]
}

// Words returns the tokens covered by the span. A span over part of a token
// has its own text as the only word.
func (s *Span) Words() []string {
	p := s.Phrase()
	if p == nil || s.Start < 0 || s.End > len(p.Words) {
		return nil
	}
	if s.SubToken() {
		return []string{s.Text()}
	}
	return p.Words[s.Start:s.End]
}

// SubToken reports whether the span covers only part of its single token.
// Lemmas and tags of such a span are those of the whole token.
func (s *Span) SubToken() bool {
	p := s.Phrase()
	if p == nil || s.End != s.Start+1 || s.Start < 0 || s.Start >= len(p.Words) || s.Start >= len(p.CharOffsets) {
		return false
	}
	start := p.CharOffsets[s.Start]
	return s.charStart != start || s.charEnd != clamp(start+len(p.Words[s.Start]), len(p.Text))
}

// Lemmas returns the lemmas covered by the span, nil when lingual is absent
func (s *Span) Lemmas() []string {
	if l := s.lingual(); l != nil {
		return l.Lemmas[s.Start:s.End]
	}
	return nil
}

// POSTags returns the part-of-speech tags covered by the span
func (s *Span) POSTags() []string {
	if l := s.lingual(); l != nil {
		return l.POSTags[s.Start:s.End]
	}
	return nil
}

// NERTags returns the entity tags covered by the span
func (s *Span) NERTags() []string {
	if l := s.lingual(); l != nil {
		return l.NERTags[s.Start:s.End]
	}
	return nil
}

func (s *Span) lingual() *LingualAttrs {
	p := s.Phrase()
	if p == nil || p.Lingual == nil || s.Start < 0 || s.End > len(p.Words) {
		return nil
	}
	return p.Lingual
}

// Overlaps reports whether both spans share characters of the same phrase
func (s *Span) Overlaps(other *Span) bool {
	return s.doc == other.doc && s.phrase == other.phrase &&
		s.charStart < other.charEnd && other.charStart < s.charEnd
}

// Contains reports whether other lies within the characters of s
func (s *Span) Contains(other *Span) bool {
	return s.doc == other.doc && s.phrase == other.phrase &&
		s.charStart <= other.charStart && other.charEnd <= s.charEnd
}

func (s *Span) Ref() ContextRef {
	phrase, cs, ce, start, end := s.phrase, s.charStart, s.charEnd, s.Start, s.End
	return ContextRef{
		Kind:      KindSpan,
		Key:       s.Key(),
		Text:      s.Text(),
		Phrase:    &phrase,
		Start:     &start,
		End:       &end,
		CharStart: &cs,
		CharEnd:   &ce,
	}
}

// FigureContext wraps one Figure of a Document
type FigureContext struct {
	doc    *Document
	figure int
}

// NewFigureContext returns the context for the figure at position
func NewFigureContext(doc *Document, figure int) *FigureContext {
	return &FigureContext{doc: doc, figure: figure}
}

func (f *FigureContext) Kind() ContextKind   { return KindFigure }
func (f *FigureContext) Document() *Document { return f.doc }
func (f *FigureContext) Key() string {
	return fmt.Sprintf("%s::figure:%d", docName(f.doc), f.figure)
}

// Figure returns the wrapped figure, or nil
func (f *FigureContext) Figure() *Figure {
	if f.doc == nil || f.figure < 0 || f.figure >= len(f.doc.Figures) {
		return nil
	}
	return &f.doc.Figures[f.figure]
}

func (f *FigureContext) Text() string {
	if fig := f.Figure(); fig != nil {
		return fig.URL
	}
	return ""
}

func (f *FigureContext) Ref() ContextRef {
	idx := f.figure
	return ContextRef{Kind: KindFigure, Key: f.Key(), Text: f.Text(), Figure: &idx}
}

// CellContext wraps one table cell
type CellContext struct {
	doc  *Document
	cell CellRef
}

// NewCellContext returns the context for a cell
func NewCellContext(doc *Document, ref CellRef) *CellContext {
	return &CellContext{doc: doc, cell: ref}
}

func (c *CellContext) Kind() ContextKind   { return KindCell }
func (c *CellContext) Document() *Document { return c.doc }
func (c *CellContext) CellRef() CellRef    { return c.cell }
func (c *CellContext) Key() string {
	return fmt.Sprintf("%s::cell:%d:%d", docName(c.doc), c.cell.Table, c.cell.Cell)
}

// Cell returns the wrapped cell, or nil
func (c *CellContext) Cell() *Cell {
	if c.doc == nil {
		return nil
	}
	return c.doc.Cell(c.cell)
}

// Text joins the text of the phrases placed in the cell
func (c *CellContext) Text() string {
	cell := c.Cell()
	if cell == nil {
		return ""
	}
	var text string
	for i, p := range cell.Phrases {
		if i > 0 {
			text += " "
		}
		text += c.doc.Phrases[p].Text
	}
	return text
}

func (c *CellContext) Ref() ContextRef {
	table, cell := c.cell.Table, c.cell.Cell
	return ContextRef{Kind: KindCell, Key: c.Key(), Text: c.Text(), Table: &table, Cell: &cell}
}

// Position returns the phrase ordinal a context is anchored at. Figures and
// empty cells have no phrase position.
func Position(c Context) (int, bool) {
	switch v := c.(type) {
	case *Span:
		return v.phrase, true
	case *CellContext:
		if cell := v.Cell(); cell != nil && len(cell.Phrases) > 0 {
			return cell.Phrases[0], true
		}
	}
	return 0, false
}

// PhraseOf returns the phrase a context lives in: the span's phrase, or the
// first phrase of a cell.
func PhraseOf(c Context) *Phrase {
	pos, ok := Position(c)
	if !ok {
		return nil
	}
	return c.Document().Phrase(pos)
}

// CellOf returns the table cell a context is placed in, if any
func CellOf(c Context) (CellRef, bool) {
	switch v := c.(type) {
	case *CellContext:
		return v.cell, true
	case *Span:
		if p := v.Phrase(); p != nil && p.Cell != nil {
			return *p.Cell, true
		}
	}
	return CellRef{}, false
}

// VisualOf returns the page placement of a context, if the visual modality
// populated one.
func VisualOf(c Context) *VisualAttrs {
	switch v := c.(type) {
	case *FigureContext:
		if f := v.Figure(); f != nil {
			return f.Visual
		}
	default:
		if p := PhraseOf(c); p != nil {
			return p.Visual
		}
	}
	return nil
}

func docName(d *Document) string {
	if d == nil {
		return ""
	}
	return d.Name
}

// ContextRef is the persisted, document-independent form of a Context
type ContextRef struct {
	Kind      ContextKind `json:"kind"`
	Key       string      `json:"key"`
	Text      string      `json:"text,omitempty"`
	Phrase    *int        `json:"phrase,omitempty"`
	Start     *int        `json:"start,omitempty"`
	End       *int        `json:"end,omitempty"`
	CharStart *int        `json:"char_start,omitempty"`
	CharEnd   *int        `json:"char_end,omitempty"`
	Figure    *int        `json:"figure,omitempty"`
	Table     *int        `json:"table,omitempty"`
	Cell      *int        `json:"cell,omitempty"`
}

// Resolve rebuilds the live Context a reference points at inside doc
func (r ContextRef) Resolve(doc *Document) (Context, error) {
	switch r.Kind {
	case KindSpan:
		if r.Phrase == nil || r.Start == nil || r.End == nil || r.CharStart == nil || r.CharEnd == nil {
			return nil, errors.Errorf("span reference %s is incomplete", r.Key)
		}
		if doc.Phrase(*r.Phrase) == nil {
			return nil, errors.Errorf("span reference %s points at missing phrase", r.Key)
		}
		return &Span{doc: doc, phrase: *r.Phrase, Start: *r.Start, End: *r.End, charStart: *r.CharStart, charEnd: *r.CharEnd}, nil
	case KindFigure:
		if r.Figure == nil || *r.Figure >= len(doc.Figures) {
			return nil, errors.Errorf("figure reference %s points at missing figure", r.Key)
		}
		return NewFigureContext(doc, *r.Figure), nil
	case KindCell:
		if r.Table == nil || r.Cell == nil || doc.Cell(CellRef{*r.Table, *r.Cell}) == nil {
			return nil, errors.Errorf("cell reference %s points at missing cell", r.Key)
		}
		return NewCellContext(doc, CellRef{Table: *r.Table, Cell: *r.Cell}), nil
	default:
		return nil, errors.Errorf("unknown context kind %q", r.Kind)
	}
}
