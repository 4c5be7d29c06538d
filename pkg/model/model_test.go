package model

import (
	"errors"
	"strings"
	"testing"
)

func phrase(pos int, text string) Phrase {
	words := strings.Fields(text)
	offsets := make([]int, len(words))
	at := 0
	for i, w := range words {
		at += strings.Index(text[at:], w)
		offsets[i] = at
		at += len(w)
	}
	return Phrase{Position: pos, Text: text, Words: words, CharOffsets: offsets}
}

func sampleDocument() *Document {
	doc := &Document{
		Name:       "sample",
		Modalities: AllModalities,
		Pages:      []Page{{Number: 1, Width: 612, Height: 792}},
		Phrases: []Phrase{
			phrase(0, "The BC546 transistor"),
			phrase(1, "Max temp"),
			phrase(2, "150 C"),
		},
	}
	doc.Phrases[1].Cell = &CellRef{Table: 0, Cell: 0}
	doc.Phrases[2].Cell = &CellRef{Table: 0, Cell: 1}
	doc.Phrases[0].Visual = &VisualAttrs{Page: 1, BBox: BBox{Left: 10, Top: 10, Right: 100, Bottom: 20}}
	doc.Tables = []Table{{
		Position: 0,
		Cells: []Cell{
			{Position: 0, RowStart: 0, RowEnd: 0, ColStart: 0, ColEnd: 0, Phrases: []int{1}},
			{Position: 1, RowStart: 0, RowEnd: 0, ColStart: 1, ColEnd: 1, Phrases: []int{2}},
		},
	}}
	doc.Figures = []Figure{{Position: 0, URL: "fig.png", Kind: "png"}}
	return doc
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(d *Document)
		wantErr string
	}{
		{name: "valid", mutate: func(d *Document) {}},
		{
			name: "overlapping cells",
			mutate: func(d *Document) {
				d.Tables[0].Cells[1].ColStart = 0
			},
			wantErr: "both claim",
		},
		{
			name: "oversized cell span",
			mutate: func(d *Document) {
				d.Tables[0].Cells[1].ColEnd = d.Tables[0].Cells[1].ColStart + 100000000
			},
			wantErr: "too many",
		},
		{
			name: "lingual arrays out of step",
			mutate: func(d *Document) {
				d.Phrases[0].Lingual = &LingualAttrs{Lemmas: []string{"the"}, POSTags: []string{"DT"}, NERTags: []string{"O"}}
			},
			wantErr: "do not match",
		},
		{
			name: "dependency edge outside phrase",
			mutate: func(d *Document) {
				d.Phrases[2].Lingual = &LingualAttrs{
					Lemmas:  []string{"150", "c"},
					POSTags: []string{"CD", "NN"},
					NERTags: []string{"O", "O"},
					Deps:    []DepEdge{{Head: 1, Dependent: 2, Label: "nummod"}},
				}
			},
			wantErr: "outside 2 tokens",
		},
		{
			name: "missing page",
			mutate: func(d *Document) {
				d.Phrases[0].Visual.Page = 3
			},
			wantErr: "non-existent page 3",
		},
		{
			name: "cell reference not mirrored",
			mutate: func(d *Document) {
				d.Phrases[0].Cell = &CellRef{Table: 0, Cell: 1}
			},
			wantErr: "not mirrored",
		},
		{
			name: "phrase in two cells",
			mutate: func(d *Document) {
				d.Tables[0].Cells[1].Phrases = []int{1, 2}
			},
			wantErr: "two cells",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			tt.mutate(doc)
			err := doc.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSpanText(t *testing.T) {
	doc := sampleDocument()

	s := NewSpan(doc, 0, 1, 3)
	if got := s.Text(); got != "BC546 transistor" {
		t.Errorf("Text() = %q", got)
	}
	if got := s.Key(); got != "sample::span:0:4-20" {
		t.Errorf("Key() = %q", got)
	}
	if s.Lemmas() != nil {
		t.Error("lemmas should be absent without the lingual modality")
	}

	sub := NewSubTokenSpan(doc, 0, 1, 4, 6)
	if got := sub.Text(); got != "BC" {
		t.Errorf("sub-token Text() = %q", got)
	}
	if got := sub.Words(); len(got) != 1 || got[0] != "BC" {
		t.Errorf("sub-token Words() = %v", got)
	}
	if !sub.SubToken() || NewSpan(doc, 0, 1, 2).SubToken() {
		t.Error("SubToken misreports")
	}
	if !s.Contains(sub) || sub.Contains(s) {
		t.Error("expected the token span to contain the sub-token span only")
	}
	if !s.Overlaps(sub) {
		t.Error("expected sub-token span to overlap its token span")
	}
}

func TestContextRefResolve(t *testing.T) {
	doc := sampleDocument()
	contexts := []Context{
		NewSpan(doc, 2, 0, 1),
		NewFigureContext(doc, 0),
		NewCellContext(doc, CellRef{Table: 0, Cell: 1}),
	}
	for _, c := range contexts {
		got, err := c.Ref().Resolve(doc)
		if err != nil {
			t.Fatalf("resolve %s: %v", c.Key(), err)
		}
		if got.Key() != c.Key() || got.Text() != c.Text() {
			t.Errorf("resolved %s (%q), want %s (%q)", got.Key(), got.Text(), c.Key(), c.Text())
		}
	}

	missing := NewFigureContext(doc, 4).Ref()
	if _, err := missing.Resolve(doc); err == nil {
		t.Error("expected an error for a missing figure")
	}
}

func TestContextPlacement(t *testing.T) {
	doc := sampleDocument()

	cell := NewCellContext(doc, CellRef{Table: 0, Cell: 1})
	if pos, ok := Position(cell); !ok || pos != 2 {
		t.Errorf("Position(cell) = %d, %v", pos, ok)
	}
	if _, ok := Position(NewFigureContext(doc, 0)); ok {
		t.Error("figures have no phrase position")
	}
	if ref, ok := CellOf(NewSpan(doc, 1, 0, 1)); !ok || ref != (CellRef{Table: 0, Cell: 0}) {
		t.Errorf("CellOf(span) = %v, %v", ref, ok)
	}
	if VisualOf(NewSpan(doc, 0, 0, 1)) == nil {
		t.Error("expected visual placement for phrase 0")
	}
	if VisualOf(NewSpan(doc, 1, 0, 1)) != nil {
		t.Error("phrase 1 has no visual placement")
	}
}

func TestRelationValidate(t *testing.T) {
	ok := Relation{Name: "part_temp", ArgNames: []string{"part", "temp"},
		Distances: []DistanceConstraint{{A: 0, B: 1, Min: 0, Max: 2}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []Relation{
		{ArgNames: []string{"a"}},
		{Name: "r"},
		{Name: "r", ArgNames: []string{"a", "a"}},
		{Name: "r", ArgNames: []string{"a", "b"}, Distances: []DistanceConstraint{{A: 0, B: 0}}},
		{Name: "r", ArgNames: []string{"a", "b"}, Distances: []DistanceConstraint{{A: 0, B: 1, Min: 3, Max: 1}}},
	}
	for i, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

func TestDistanceConstraintAllows(t *testing.T) {
	d := DistanceConstraint{Min: 1, Max: 2}
	cases := map[[2]int]bool{{0, 0}: false, {0, 1}: true, {3, 1}: true, {0, 3}: false}
	for in, want := range cases {
		if got := d.Allows(in[0], in[1]); got != want {
			t.Errorf("Allows(%d, %d) = %v, want %v", in[0], in[1], got, want)
		}
	}
	if !(DistanceConstraint{Max: -1}).Allows(0, 100) {
		t.Error("negative max should be unbounded")
	}
}

func TestParseModalities(t *testing.T) {
	m, err := ParseModalities("structural, visual")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Has(Structural) || !m.Has(Visual) || m.Has(Lingual) {
		t.Errorf("got %s", m)
	}
	if m, _ := ParseModalities("full"); m != AllModalities {
		t.Errorf("full = %s", m)
	}
	if _, err := ParseModalities("tactile"); err == nil {
		t.Error("expected error for unknown modality")
	}
}

func TestBatchErrorUnwrap(t *testing.T) {
	cause := &ParseError{Document: "b", Err: errors.New("broken")}
	batch := &BatchError{Failed: []DocumentError{{Document: "b", Err: cause}}}

	var pe *ParseError
	if !errors.As(batch, &pe) || pe.Document != "b" {
		t.Fatalf("errors.As did not find the ParseError in %v", batch)
	}
}
