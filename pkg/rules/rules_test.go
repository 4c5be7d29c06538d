package rules

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/athapong/docfuse/pkg/model"
)

const transistors = `
relations:
  - name: part_maker
    arguments:
      - name: maker
        space: {modality: ngrams, n_max: 2}
        matcher:
          dictionary_file: makers.txt
          fold_case: true
      - name: part
        space: {modality: ngrams, n_max: 1, split_tokens: "-"}
        matcher:
          all:
            - regex: 'bc\d+'
              ignore_case: true
            - not:
                regex: 'BC547'
    distances:
      - {from: maker, to: part, min: 0, max: 1}
    throttlers: [same_phrase]
  - name: has_figure
    arguments:
      - name: figure
        space: {modality: figures, figure_kinds: [png]}
`

func testDoc() *model.Document {
	return &model.Document{
		Name: "d",
		Phrases: []model.Phrase{
			{Position: 0, Text: "Acme makes BC546 and BC547", Words: []string{"Acme", "makes", "BC546", "and", "BC547"}, CharOffsets: []int{0, 5, 11, 17, 21}},
			{Position: 1, Text: "BC546-BC548 by Acme", Words: []string{"BC546-BC548", "by", "Acme"}, CharOffsets: []int{0, 12, 15}},
		},
		Figures: []model.Figure{
			{Position: 0, URL: "a.png", Kind: "png"},
			{Position: 1, URL: "b.svg", Kind: "svg"},
		},
	}
}

func TestLoadAndExtract(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "makers.txt"), []byte("# makers\nACME\n\nGlobex\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "relations.yaml")
	if err := os.WriteFile(path, []byte(transistors), 0o644); err != nil {
		t.Fatal(err)
	}

	set, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := set.Names(); !reflect.DeepEqual(got, []string{"part_maker", "has_figure"}) {
		t.Fatalf("Names = %v", got)
	}

	def, ok := set.Lookup("part_maker")
	if !ok {
		t.Fatal("part_maker missing")
	}
	want := model.Relation{
		Name:      "part_maker",
		ArgNames:  []string{"maker", "part"},
		Distances: []model.DistanceConstraint{{A: 0, B: 1, Min: 0, Max: 1}},
	}
	if !reflect.DeepEqual(def.Relation, want) {
		t.Errorf("Relation = %+v, want %+v", def.Relation, want)
	}
	if def.Throttler == nil {
		t.Error("throttler not compiled")
	}

	tests := []struct {
		relation string
		want     []string
	}{
		{"part_maker", []string{
			"d::span:0:0-4|d::span:0:11-16",
			"d::span:1:15-19|d::span:1:0-5",
			"d::span:1:15-19|d::span:1:6-11",
		}},
		{"has_figure", []string{"d::figure:0"}},
	}
	for _, tt := range tests {
		t.Run(tt.relation, func(t *testing.T) {
			def, _ := set.Lookup(tt.relation)
			e, err := def.Extractor(nil)
			if err != nil {
				t.Fatal(err)
			}
			got, err := e.Extract(testDoc(), model.SplitTrain)
			if err != nil {
				t.Fatal(err)
			}
			var keys []string
			for _, c := range got {
				keys = append(keys, c.Key())
			}
			if !reflect.DeepEqual(keys, tt.want) {
				t.Errorf("got %v, want %v", keys, tt.want)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "relations: []\n"},
		{"unknown field", "relations:\n  - name: r\n    colour: red\n"},
		{"no arguments", "relations:\n  - name: r\n"},
		{"duplicate relation", `
relations:
  - name: r
    arguments: [{name: a, space: {modality: phrases}}]
  - name: r
    arguments: [{name: a, space: {modality: phrases}}]
`},
		{"bad modality", "relations:\n  - name: r\n    arguments: [{name: a, space: {modality: words}}]\n"},
		{"bad regex", "relations:\n  - name: r\n    arguments: [{name: a, space: {modality: phrases}, matcher: {regex: '('}}]\n"},
		{"empty matcher", "relations:\n  - name: r\n    arguments: [{name: a, space: {modality: phrases}, matcher: {ignore_case: true}}]\n"},
		{"two matchers in one node", "relations:\n  - name: r\n    arguments: [{name: a, space: {modality: phrases}, matcher: {regex: 'a', pos: [NN]}}]\n"},
		{"unknown throttler", "relations:\n  - name: r\n    throttlers: [nearby]\n    arguments: [{name: a, space: {modality: phrases}}]\n"},
		{"unknown distance argument", `
relations:
  - name: r
    arguments: [{name: a, space: {modality: phrases}}, {name: b, space: {modality: phrases}}]
    distances: [{from: a, to: c, max: 1}]
`},
		{"distance on figures", `
relations:
  - name: r
    arguments: [{name: a, space: {modality: phrases}}, {name: b, space: {modality: figures}}]
    distances: [{from: a, to: b, max: 1}]
`},
		{"missing dictionary", "relations:\n  - name: r\n    arguments: [{name: a, space: {modality: phrases}, matcher: {dictionary_file: nope.txt}}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml), t.TempDir()); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
