package matchers

import (
	"testing"

	"github.com/athapong/docfuse/pkg/model"
)

// testDocument holds "Acme Corp manufactures the BC546 ." with full lingual
// attributes, one table cell and one figure.
func testDocument() *model.Document {
	return &model.Document{
		Name:       "d",
		Modalities: model.AllModalities,
		Pages:      []model.Page{{Number: 1, Width: 612, Height: 792}},
		Phrases: []model.Phrase{
			{
				Position:    0,
				Text:        "Acme Corp manufactures the BC546 .",
				Words:       []string{"Acme", "Corp", "manufactures", "the", "BC546", "."},
				CharOffsets: []int{0, 5, 10, 23, 27, 33},
				Lingual: &model.LingualAttrs{
					Lemmas:  []string{"acme", "corp", "manufacture", "the", "bc546", "."},
					POSTags: []string{"NNP", "NNP", "VBZ", "DT", "NN", "."},
					NERTags: []string{"ORG", "ORG", "O", "O", "O", "O"},
					Deps: []model.DepEdge{
						{Head: 1, Dependent: 0, Label: "compound"},
						{Head: 2, Dependent: 1, Label: "nsubj"},
						{Head: 2, Dependent: 4, Label: "dobj"},
						{Head: 4, Dependent: 3, Label: "det"},
					},
				},
				Structural: &model.StructuralAttrs{Tag: "p", XPath: "/html/body/div/p"},
				Visual:     &model.VisualAttrs{Page: 1, BBox: model.BBox{Left: 1, Top: 1, Right: 2, Bottom: 2}},
			},
			{
				Position:    1,
				Text:        "150",
				Words:       []string{"150"},
				CharOffsets: []int{0},
				Lingual: &model.LingualAttrs{
					Lemmas:  []string{"150"},
					POSTags: []string{"CD"},
					NERTags: []string{"CARDINAL"},
				},
				Structural: &model.StructuralAttrs{Tag: "td", XPath: "/html/body/table/tbody/tr/td"},
				Cell:       &model.CellRef{Table: 0, Cell: 0},
			},
		},
		Tables: []model.Table{{
			Position: 0,
			Cells: []model.Cell{{
				Position:   0,
				Phrases:    []int{1},
				Structural: &model.StructuralAttrs{Tag: "td", XPath: "/html/body/table/tbody/tr/td"},
			}},
		}},
		Figures: []model.Figure{{Position: 0, URL: "pinout.PNG", Kind: "png"}},
	}
}

func TestMatchers(t *testing.T) {
	doc := testDocument()
	span := func(start, end int) model.Context { return model.NewSpan(doc, 0, start, end) }
	acme := span(0, 2)
	bc546 := span(4, 5)
	verb := span(2, 3)
	number := model.NewSpan(doc, 1, 0, 1)
	// "BC5" out of the token "BC546"
	partOfToken := model.NewSubTokenSpan(doc, 0, 4, 27, 30)
	figure := model.NewFigureContext(doc, 0)
	cell := model.NewCellContext(doc, model.CellRef{Table: 0, Cell: 0})

	mustRegex := func(m Matcher, err error) Matcher {
		if err != nil {
			t.Fatal(err)
		}
		return m
	}
	part := mustRegex(Regex(`BC\d+`))

	tests := []struct {
		name    string
		matcher Matcher
		ctx     model.Context
		want    bool
	}{
		{"regex full match", part, bc546, true},
		{"regex needs full text", part, span(3, 5), false},
		{"regex search", mustRegex(Regex(`BC\d+`, Search())), span(3, 5), true},
		{"regex case", mustRegex(Regex(`bc546`)), bc546, false},
		{"regex ignore case", mustRegex(Regex(`bc546`, IgnoreCase())), bc546, true},
		{"regex on figure url", mustRegex(Regex(`.*\.PNG`)), figure, true},
		{"regex each", mustRegex(RegexEach(`[A-Z]\w+`)), acme, true},
		{"regex each fails one token", mustRegex(RegexEach(`[A-Z]\w+`)), span(1, 3), false},
		{"regex each on figure", mustRegex(RegexEach(`.*`)), figure, false},
		{"regex each on part of a token", mustRegex(RegexEach(`BC\d`)), partOfToken, true},
		{"regex each on the whole token", mustRegex(RegexEach(`BC\d`)), bc546, false},
		{"dictionary", Dictionary([]string{"Acme  Corp"}), acme, true},
		{"dictionary case", Dictionary([]string{"acme corp"}), acme, false},
		{"dictionary fold", Dictionary([]string{"ACME CORP"}, FoldCase()), acme, true},
		{"dictionary lemma", Dictionary([]string{"manufacture"}, UseLemmas()), verb, true},
		{"dictionary lemma on cell", Dictionary([]string{"150"}, UseLemmas()), cell, false},
		{"dictionary on cell text", Dictionary([]string{"150"}), cell, true},
		{"ner", Organization(), acme, true},
		{"ner partial", Organization(), span(1, 3), false},
		{"ner number", Number(), number, true},
		{"ner on figure", Person(), figure, false},
		{"pos", POS("NN"), acme, true},
		{"pos mixed", POS("NN"), span(1, 3), false},
		{"dependency", Dependency("nsubj", ""), acme, true},
		{"dependency head lemma", Dependency("nsubj", "manufacture"), acme, true},
		{"dependency wrong head", Dependency("nsubj", "make"), acme, false},
		{"dependency outside span", Dependency("dobj", ""), acme, false},
		{"figure kind", FigureKind("PNG", "jpg"), figure, true},
		{"figure kind on span", FigureKind("png"), acme, false},
		{"ancestor", AncestorTag("div"), acme, true},
		{"ancestor self", AncestorTag("TD"), cell, true},
		{"ancestor missing", AncestorTag("table"), acme, false},
		{"in table", InTable(), number, true},
		{"not in table", InTable(), acme, false},
		{"on page", OnPage(1), acme, true},
		{"on page without visual", OnPage(1), number, false},
		{"all", All(Organization(), POS("NNP")), acme, true},
		{"all short circuits", All(Organization(), Func(func(model.Context) bool { panic("evaluated") })), bc546, false},
		{"any", Any(part, Organization()), bc546, true},
		{"any none", Any(part, Organization()), verb, false},
		{"not", Not(part), verb, true},
		{"not nil", Not(part), nil, false},
		{"everything", Everything(), figure, true},
		{"func nil context", Everything(), nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.matcher.Match(tt.ctx); got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLingualMatchersWithoutAnnotation(t *testing.T) {
	doc := testDocument()
	doc.Phrases[0].Lingual = nil
	s := model.NewSpan(doc, 0, 0, 2)
	for name, m := range map[string]Matcher{
		"ner":        Organization(),
		"pos":        POS("NN"),
		"dependency": Dependency("nsubj", ""),
		"lemma":      Dictionary([]string{"acme corp"}, UseLemmas()),
	} {
		if m.Match(s) {
			t.Errorf("%s matched a span without lingual attributes", name)
		}
	}
}

func TestRegexRejectsBadPattern(t *testing.T) {
	if _, err := Regex(`(`); err == nil {
		t.Error("expected a compile error")
	}
}
