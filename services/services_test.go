package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/athapong/docfuse/pkg/config"
	"github.com/athapong/docfuse/pkg/layout"
	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/sirupsen/logrus"
)

const partsRules = `
relations:
  - name: parts
    arguments:
      - name: part
        space: {modality: ngrams, n_max: 1}
        matcher:
          regex: 'BC\d+'
  - name: has_figure
    arguments:
      - name: figure
        space: {modality: figures}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testCorpus(t *testing.T) (*Corpus, string) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "relations.yaml"), partsRules)

	cfg := config.Default()
	cfg.Parser.Modalities = "structural"
	cfg.Parser.Segmenter = "block"
	cfg.Extraction.Rules = filepath.Join(dir, "relations.yaml")

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return newCorpus(cfg, logger, store.OpenMemory(t)), dir
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.html"), "<p>a</p>")
	writeFile(t, filepath.Join(dir, "a.layout.json"), `{"pages":[{"number":1,"width":100,"height":100}],"units":[]}`)
	writeFile(t, filepath.Join(dir, "sub", "b.htm"), "<p>b</p>")
	writeFile(t, filepath.Join(dir, "sub", "b.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	sources, layouts, err := LoadSources([]string{dir})
	if err != nil {
		t.Fatalf("LoadSources: %v", err)
	}
	if len(sources) != 2 || sources[0].Name != "a" || sources[1].Name != "b" {
		t.Fatalf("sources = %+v", sources)
	}
	if sources[0].PDF != nil || string(sources[1].PDF) != "%PDF-1.4" {
		t.Error("PDF siblings not picked up")
	}
	if _, ok := layouts["a"]; !ok || len(layouts) != 1 {
		t.Errorf("layouts = %v", layouts)
	}

	writeFile(t, filepath.Join(dir, "other", "a.html"), "<p>again</p>")
	if _, _, err := LoadSources([]string{dir}); err == nil {
		t.Error("expected a duplicate name error")
	}
	if _, _, err := LoadSources([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}

func TestSplitFor(t *testing.T) {
	r := SplitRatios{Train: 0.6, Dev: 0.2}
	if err := r.Validate(); err != nil {
		t.Fatal(err)
	}
	counts := make(map[model.Split]int)
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l"} {
		s := r.SplitFor(name)
		if s != r.SplitFor(name) {
			t.Fatalf("split of %s is not stable", name)
		}
		counts[s]++
	}
	if counts[model.SplitTrain]+counts[model.SplitDev]+counts[model.SplitTest] != 12 {
		t.Errorf("counts = %v", counts)
	}
	if got := (SplitRatios{Train: 1}).SplitFor("x"); got != model.SplitTrain {
		t.Errorf("train-only ratios gave %s", got)
	}
	if err := (SplitRatios{Train: 0.8, Dev: 0.3}).Validate(); err == nil {
		t.Error("expected ratios over one to be rejected")
	}
}

func TestCorpusPipeline(t *testing.T) {
	ctx := context.Background()
	c, dir := testCorpus(t)
	docs := filepath.Join(dir, "docs")
	writeFile(t, filepath.Join(docs, "sheet1.html"), `<html><body><p>Acme makes BC546</p><img src="pinout.png"></body></html>`)
	writeFile(t, filepath.Join(docs, "sheet2.html"), `<html><body><p>BC547 and BC548</p></body></html>`)

	report, err := c.Parse(ctx, []string{docs})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := report.Err(); err != nil || len(report.Built) != 2 {
		t.Fatalf("built %v, err %v", report.Built, err)
	}

	counts, err := c.AssignSplits(ctx, SplitRatios{Train: 1}, nil)
	if err != nil || counts[model.SplitTrain] != 2 {
		t.Fatalf("AssignSplits = %v, %v", counts, err)
	}

	res, err := c.Extract(ctx, "parts", model.SplitTrain, nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.Candidates != 3 {
		t.Errorf("extracted %d parts, want 3", res.Candidates)
	}
	n, err := c.Store.CountCandidates(ctx, store.NewQuery("parts").ForDocuments("sheet2"))
	if err != nil || n != 2 {
		t.Errorf("sheet2 parts = %d, %v", n, err)
	}

	res, err = c.Extract(ctx, "has_figure", model.SplitTrain, []string{"sheet1"})
	if err != nil || res.Candidates != 1 {
		t.Errorf("has_figure = %+v, %v", res, err)
	}

	if _, err := c.Extract(ctx, "unknown", model.SplitTrain, nil); err == nil {
		t.Error("expected an unknown relation error")
	}
	if _, err := c.Extract(ctx, "parts", model.SplitDev, nil); err == nil {
		t.Error("expected an error for an empty split")
	}
}

func TestLayoutRouter(t *testing.T) {
	c, _ := testCorpus(t)
	c.Config.Parser.Modalities = "structural,visual"
	static := &layout.Layout{Pages: []model.Page{{Number: 1, Width: 100, Height: 100}}}
	b, err := c.Builder(map[string]*layout.Layout{"a": static})
	if err != nil || b == nil {
		t.Fatalf("Builder: %v", err)
	}

	r := &layoutRouter{
		static: layout.NewStaticRenderer(map[string]*layout.Layout{"a": static}),
		known:  map[string]*layout.Layout{"a": static},
		pdf:    layout.NewPDFRenderer(c.Logger),
	}
	got, err := r.Render(context.Background(), layout.Request{Name: "a"})
	if err != nil || len(got.Pages) != 1 {
		t.Errorf("static layout = %+v, %v", got, err)
	}
	if _, err := r.Render(context.Background(), layout.Request{Name: "b"}); err == nil {
		t.Error("expected an error without layout or PDF")
	}
}
