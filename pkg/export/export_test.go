package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
)

func testDocument() *model.Document {
	return &model.Document{
		Name: "d",
		Phrases: []model.Phrase{
			{Position: 0, Text: "Acme makes BC546", Words: []string{"Acme", "makes", "BC546"}, CharOffsets: []int{0, 5, 11}},
			{Position: 1, Text: "BC547", Words: []string{"BC547"}, CharOffsets: []int{0}},
		},
	}
}

func records(doc *model.Document) []model.CandidateRecord {
	maker := model.NewSpan(doc, 0, 0, 1)
	var out []model.CandidateRecord
	for i, part := range []model.Context{model.NewSpan(doc, 0, 2, 3), model.NewSpan(doc, 1, 0, 1)} {
		out = append(out, model.Candidate{
			Relation: "part_maker",
			Split:    model.SplitTrain,
			Document: doc.Name,
			Position: i,
			Args:     []model.Context{maker, part},
		}.Record())
	}
	return out
}

func TestGenerator(t *testing.T) {
	g := NewGenerator(nil)
	recs := records(testDocument())
	if err := g.AddCandidates(recs, []string{"maker", "part"}); err != nil {
		t.Fatal(err)
	}
	// the same candidates again are ignored
	if err := g.AddCandidates(recs, []string{"maker", "part"}); err != nil {
		t.Fatal(err)
	}

	graph := g.Generate()
	types := make(map[string]int)
	for _, n := range graph.Nodes {
		types[n.Type]++
	}
	if types[NodeCandidate] != 2 || types[string(model.KindSpan)] != 3 {
		t.Errorf("node types = %v, want 2 candidates and 3 shared spans", types)
	}
	if len(graph.Edges) != 4 {
		t.Fatalf("got %d edges, want 4", len(graph.Edges))
	}

	byID := make(map[string]Node)
	for _, n := range graph.Nodes {
		byID[n.ID] = n
	}
	makerTargets := make(map[string]bool)
	for _, e := range graph.Edges {
		if byID[e.Source].Type != NodeCandidate {
			t.Errorf("edge %s does not start at a candidate", e.ID)
		}
		if e.Type == "ARG_MAKER" {
			makerTargets[e.Target] = true
		}
	}
	if len(makerTargets) != 1 {
		t.Errorf("maker span should be one shared node, got %d", len(makerTargets))
	}

	if err := g.AddCandidates(recs, []string{"only"}); err == nil {
		t.Error("expected an arity error")
	}
}

func TestGeneratorIndexNames(t *testing.T) {
	g := NewGenerator(nil)
	if err := g.AddCandidates(records(testDocument())[:1], nil); err != nil {
		t.Fatal(err)
	}
	graph := g.Generate()
	if graph.Edges[0].Type != "ARG_0" || graph.Edges[1].Type != "ARG_1" {
		t.Errorf("edge types = %s, %s", graph.Edges[0].Type, graph.Edges[1].Type)
	}
}

func TestAddQueryAndJSONStore(t *testing.T) {
	ctx := context.Background()
	s := store.OpenMemory(t)
	doc := testDocument()
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceCandidates(ctx, "part_maker", model.SplitTrain, "d", records(doc)); err != nil {
		t.Fatal(err)
	}

	g := NewGenerator(nil)
	n, err := g.AddQuery(ctx, s, store.NewQuery("part_maker"), []string{"maker", "part"})
	if err != nil || n != 2 {
		t.Fatalf("AddQuery = %d, %v", n, err)
	}

	path := filepath.Join(t.TempDir(), "out", "graph.json")
	js := NewJSONGraphStore(path)
	want := g.Generate()
	if err := js.StoreGraph(ctx, want); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
	got, err := js.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Nodes) != len(want.Nodes) || len(got.Edges) != len(want.Edges) {
		t.Errorf("loaded %d nodes, %d edges; stored %d, %d", len(got.Nodes), len(got.Edges), len(want.Nodes), len(want.Edges))
	}
	for i := 1; i < len(got.Nodes); i++ {
		a, b := got.Nodes[i-1], got.Nodes[i]
		if a.Type > b.Type || (a.Type == b.Type && nodeKey(a) > nodeKey(b)) {
			t.Errorf("nodes %d and %d out of order: %s %s, %s %s", i-1, i, a.Type, nodeKey(a), b.Type, nodeKey(b))
		}
	}
	if got.Nodes[0].Type != NodeCandidate {
		t.Errorf("first stored node is %s", got.Nodes[0].Type)
	}

	// a second export of the same graph writes the same node order
	if err := js.StoreGraph(ctx, want); err != nil {
		t.Fatal(err)
	}
	again, err := js.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := range got.Nodes {
		if again.Nodes[i].ID != got.Nodes[i].ID {
			t.Errorf("node %d is %s, first export had %s", i, again.Nodes[i].ID, got.Nodes[i].ID)
		}
	}

	broken := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(broken, []byte(`{"nodes":[{"id":"a"}],"edges":[{"id":"e","source":"a","target":"b"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewJSONGraphStore(broken).LoadGraph(ctx); err == nil {
		t.Error("expected an edge to a missing node to be rejected")
	}
}

func TestCypherRelType(t *testing.T) {
	tests := map[string]string{
		"ARG_PART":        "ARG_PART",
		"ARG_PART`) DROP": "ARG_PART___DROP",
		"ARG_0":           "ARG_0",
	}
	for in, want := range tests {
		if got := cypherRelType(in); got != want {
			t.Errorf("cypherRelType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNeo4jStore(t *testing.T) {
	uri := os.Getenv("DOCFUSE_NEO4J_TEST_URI")
	if uri == "" {
		t.Skip("DOCFUSE_NEO4J_TEST_URI not set")
	}
	s, err := NewNeo4jStore(uri, os.Getenv("DOCFUSE_NEO4J_USER"), os.Getenv("DOCFUSE_NEO4J_PASSWORD"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Verify(); err != nil {
		t.Fatal(err)
	}
	g := NewGenerator(nil)
	if err := g.AddCandidates(records(testDocument()), []string{"maker", "part"}); err != nil {
		t.Fatal(err)
	}
	if err := s.StoreGraph(context.Background(), g.Generate()); err != nil {
		t.Fatal(err)
	}
}

func TestGraphTraversal(t *testing.T) {
	g := NewGenerator(nil)
	if err := g.AddCandidates(records(testDocument()), []string{"maker", "part"}); err != nil {
		t.Fatal(err)
	}
	tr := NewGraphTraversal(g.Generate())

	start, ok := tr.FindByKey("d::span:0:0-4")
	if !ok {
		t.Fatal("maker span not found")
	}
	tests := []struct {
		typ   TraversalType
		depth int
		want  int
	}{
		{BFS, 0, 1},
		{BFS, 1, 3},
		{BFS, 2, 5},
		{DFS, 2, 5},
		{DFS, 0, 1},
	}
	for _, tt := range tests {
		nodes, err := tr.Traverse(start, tt.depth, tt.typ)
		if err != nil {
			t.Fatal(err)
		}
		if len(nodes) != tt.want {
			t.Errorf("%s depth %d visited %d nodes, want %d", tt.typ, tt.depth, len(nodes), tt.want)
		}
		if nodes[0].ID != start {
			t.Errorf("%s did not start at the maker span", tt.typ)
		}
	}

	nodes, _ := tr.Traverse(start, 1, BFS)
	sub := tr.Subgraph(nodes)
	if len(sub.Nodes) != 3 || len(sub.Edges) != 2 {
		t.Errorf("subgraph has %d nodes and %d edges, want 3 and 2", len(sub.Nodes), len(sub.Edges))
	}

	if _, err := tr.Traverse("missing", 1, BFS); err == nil {
		t.Error("expected an error for an unknown start node")
	}
	if _, err := tr.Traverse(start, 1, "RANDOM"); err == nil {
		t.Error("expected an error for an unknown traversal type")
	}
}
