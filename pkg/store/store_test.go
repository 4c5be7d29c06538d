package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
)

func testDocument(name string, figures int) *model.Document {
	doc := &model.Document{
		Name:       name,
		Source:     name + ".html",
		Modalities: model.Structural | model.Visual,
		Pages:      []model.Page{{Number: 1, Width: 612, Height: 792}},
		Phrases: []model.Phrase{
			{
				Position:    0,
				Text:        "Part number",
				Words:       []string{"Part", "number"},
				CharOffsets: []int{0, 5},
				Structural:  &model.StructuralAttrs{Tag: "td", XPath: "/html/body/table/tr/td"},
				Cell:        &model.CellRef{Table: 0, Cell: 0},
				Visual:      &model.VisualAttrs{Page: 1, BBox: model.BBox{Left: 10, Top: 10, Right: 80, Bottom: 20}},
			},
			{
				Position:    1,
				Text:        "BC546",
				Words:       []string{"BC546"},
				CharOffsets: []int{0},
				Structural:  &model.StructuralAttrs{Tag: "td", XPath: "/html/body/table/tr/td[2]"},
				Cell:        &model.CellRef{Table: 0, Cell: 1},
			},
			{
				Position:    2,
				Text:        "Free text.",
				Words:       []string{"Free", "text", "."},
				CharOffsets: []int{0, 5, 9},
			},
		},
		Tables: []model.Table{{
			Position: 0,
			Cells: []model.Cell{
				{Position: 0, RowStart: 0, RowEnd: 0, ColStart: 0, ColEnd: 0, Phrases: []int{0}},
				{Position: 1, RowStart: 0, RowEnd: 0, ColStart: 1, ColEnd: 1, Phrases: []int{1}},
			},
		}},
	}
	for i := 0; i < figures; i++ {
		doc.Figures = append(doc.Figures, model.Figure{Position: i, URL: "fig.png", Kind: "png"})
	}
	return doc
}

func figureRecord(doc *model.Document, relation string, split model.Split, figure int) model.CandidateRecord {
	return model.Candidate{
		Relation: relation,
		Split:    split,
		Document: doc.Name,
		Args:     []model.Context{model.NewFigureContext(doc, figure)},
	}.Record()
}

func TestDocumentRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)

	doc := testDocument("d1", 2)
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	got, err := s.LoadDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, doc)
	}
	if got.Phrases[2].Visual != nil || got.Phrases[2].Lingual != nil {
		t.Error("absent modalities must stay nil after a round trip")
	}
	if err := got.Validate(); err != nil {
		t.Errorf("loaded document is invalid: %v", err)
	}
}

func TestLoadMissingDocument(t *testing.T) {
	_, err := OpenMemory(t).LoadDocument(context.Background(), "nope")
	if errors.Cause(err) != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSaveDocumentReplaces(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)

	doc := testDocument("d1", 1)
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignSplit(ctx, "d1", model.SplitTrain); err != nil {
		t.Fatal(err)
	}
	rec := figureRecord(doc, "has_figure", model.SplitTrain, 0)
	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitTrain, "d1", []model.CandidateRecord{rec}); err != nil {
		t.Fatal(err)
	}

	// re-parse with one more figure
	if err := s.SaveDocument(ctx, testDocument("d1", 2)); err != nil {
		t.Fatal(err)
	}
	got, err := s.LoadDocument(ctx, "d1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Figures) != 2 {
		t.Errorf("got %d figures, want 2", len(got.Figures))
	}
	if got.Split != model.SplitTrain {
		t.Errorf("split = %q, want it carried over", got.Split)
	}
	n, err := s.CountCandidates(ctx, NewQuery("has_figure"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d candidates survived the document replacement", n)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)

	doc := testDocument("d1", 1)
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	rec := figureRecord(doc, "has_figure", model.SplitDev, 0)
	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitDev, "d1", []model.CandidateRecord{rec}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, "d1"); err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"documents", "phrases", "doc_tables", "cells", "figures", "candidates"} {
		var n int
		if err := s.DB().QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("%s still has %d rows", table, n)
		}
	}
}

func TestReplaceCandidates(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)

	d1, d2 := testDocument("d1", 3), testDocument("d2", 1)
	for _, d := range []*model.Document{d1, d2} {
		if err := s.SaveDocument(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	records := func(doc *model.Document, split model.Split, n int) []model.CandidateRecord {
		var out []model.CandidateRecord
		for i := 0; i < n; i++ {
			out = append(out, figureRecord(doc, "has_figure", split, i))
		}
		return out
	}

	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitTrain, "d1", records(d1, model.SplitTrain, 3)); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitTrain, "d2", records(d2, model.SplitTrain, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitTest, "d1", records(d1, model.SplitTest, 2)); err != nil {
		t.Fatal(err)
	}

	// supersede, never merge
	if err := s.ReplaceCandidates(ctx, "has_figure", model.SplitTrain, "d1", records(d1, model.SplitTrain, 1)); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		query *Query
		want  int
	}{
		{"all", NewQuery(""), 4},
		{"train", NewQuery("has_figure").ForSplits(model.SplitTrain), 2},
		{"d1 train", NewQuery("has_figure").ForSplits(model.SplitTrain).ForDocuments("d1"), 1},
		{"test", NewQuery("has_figure").ForSplits(model.SplitTest), 2},
		{"other relation", NewQuery("other"), 0},
		{"filter", NewQuery("").AddFilter(Filter{Field: "position", Operator: ">=", Value: 1}), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.CountCandidates(ctx, tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("CountCandidates = %d, want %d", n, tt.want)
			}
		})
	}

	got, err := s.Candidates(ctx, NewQuery("has_figure").ForSplits(model.SplitTest))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Position != 0 || got[1].Position != 1 {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[1].Key != "d1::figure:1" || got[1].Args[0].Figure == nil || *got[1].Args[0].Figure != 1 {
		t.Errorf("unexpected record %+v", got[1])
	}

	paged, err := s.Candidates(ctx, NewQuery("").SetLimit(1).SetSkip(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(paged) != 1 {
		t.Errorf("paging returned %d records", len(paged))
	}
}

func TestReplaceCandidatesRollsBack(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)
	doc := testDocument("d1", 2)
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	first := []model.CandidateRecord{figureRecord(doc, "r", model.SplitTrain, 0)}
	if err := s.ReplaceCandidates(ctx, "r", model.SplitTrain, "d1", first); err != nil {
		t.Fatal(err)
	}

	// the duplicate key violates the uniqueness constraint half way through
	dup := figureRecord(doc, "r", model.SplitTrain, 1)
	if err := s.ReplaceCandidates(ctx, "r", model.SplitTrain, "d1", []model.CandidateRecord{dup, dup}); err == nil {
		t.Fatal("expected a uniqueness violation")
	}
	got, err := s.Candidates(ctx, NewQuery("r"))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Key != first[0].Key {
		t.Fatalf("previous candidates were not preserved: %+v", got)
	}
}

func TestQueryRejectsUnknownFilter(t *testing.T) {
	s := OpenMemory(t)
	_, err := s.Candidates(context.Background(), NewQuery("").AddFilter(Filter{Field: "args; DROP", Operator: "=", Value: 1}))
	if err == nil {
		t.Fatal("expected an error for an unknown filter field")
	}
	_, err = s.Candidates(context.Background(), NewQuery("").AddFilter(Filter{Field: "key", Operator: "OR 1=1 --", Value: 1}))
	if err == nil {
		t.Fatal("expected an error for an unknown operator")
	}
}

func TestDocumentNamesAndSplits(t *testing.T) {
	ctx := context.Background()
	s := OpenMemory(t)
	for _, name := range []string{"c", "a", "b"} {
		if err := s.SaveDocument(ctx, testDocument(name, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.AssignSplit(ctx, "b", model.SplitDev); err != nil {
		t.Fatal(err)
	}
	if err := s.AssignSplit(ctx, "missing", model.SplitDev); errors.Cause(err) != ErrNotFound {
		t.Errorf("AssignSplit on a missing document: %v", err)
	}

	all, err := s.DocumentNames(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(all, []string{"a", "b", "c"}) {
		t.Errorf("DocumentNames() = %v", all)
	}
	dev, err := s.DocumentNames(ctx, model.SplitDev)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dev, []string{"b"}) {
		t.Errorf("DocumentNames(dev) = %v", dev)
	}
}

func TestConflictSurfacedWithoutRetry(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	holder, err := Open(path, WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	writer, err := Open(path, WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	tx, err := holder.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(`INSERT INTO documents (name, modalities) VALUES ('lock', 0)`); err != nil {
		t.Fatal(err)
	}

	err = writer.SaveDocument(ctx, testDocument("d1", 0))
	var conflict *model.PersistenceConflictError
	if !errors.As(err, &conflict) {
		tx.Rollback()
		t.Fatalf("got %v, want a PersistenceConflictError", err)
	}
	if conflict.Scope != "document d1" {
		t.Errorf("scope = %q", conflict.Scope)
	}
	tx.Rollback()
}

func TestConflictRetriedOnOptIn(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corpus.db")

	holder, err := Open(path, WithBusyTimeout(0))
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	writer, err := Open(path, WithBusyTimeout(0), WithConflictRetries(5))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	tx, err := holder.DB().BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(`INSERT INTO documents (name, modalities) VALUES ('lock', 0)`); err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		tx.Rollback()
	}()

	if err := writer.SaveDocument(ctx, testDocument("d1", 0)); err != nil {
		t.Fatalf("SaveDocument with retries: %v", err)
	}
}
