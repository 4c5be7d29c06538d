package export

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
)

// GraphStore persists candidate graphs
type GraphStore interface {
	StoreGraph(ctx context.Context, graph *CandidateGraph) error
}

// JSONGraphStore writes the graph to a JSON file. Nodes are written ordered
// by type and context or candidate key, edges by their candidate and
// argument index, so two exports of the same candidates differ only in IDs
// and timestamp.
type JSONGraphStore struct {
	filePath string
}

// NewJSONGraphStore creates a new JSON graph store
func NewJSONGraphStore(filePath string) *JSONGraphStore {
	return &JSONGraphStore{
		filePath: filePath,
	}
}

func nodeKey(n Node) string {
	return fmt.Sprint(n.Properties["key"])
}

// canonical returns a copy of graph in file order
func canonical(graph *CandidateGraph) *CandidateGraph {
	out := &CandidateGraph{
		Nodes:       slices.Clone(graph.Nodes),
		Edges:       slices.Clone(graph.Edges),
		GeneratedAt: graph.GeneratedAt,
	}
	slices.SortStableFunc(out.Nodes, func(a, b Node) int {
		return cmp.Or(cmp.Compare(a.Type, b.Type), cmp.Compare(nodeKey(a), nodeKey(b)))
	})

	keys := make(map[string]string, len(out.Nodes))
	for _, n := range out.Nodes {
		keys[n.ID] = nodeKey(n)
	}
	index := func(e Edge) int {
		i, _ := e.Properties["index"].(int)
		return i
	}
	slices.SortStableFunc(out.Edges, func(a, b Edge) int {
		return cmp.Or(cmp.Compare(keys[a.Source], keys[b.Source]), cmp.Compare(index(a), index(b)))
	})
	return out
}

// StoreGraph replaces the file with the graph as indented JSON, creating
// the directory
func (s *JSONGraphStore) StoreGraph(ctx context.Context, graph *CandidateGraph) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create output directory")
	}

	data, err := json.MarshalIndent(canonical(graph), "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode graph")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.filePath)+".*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	return errors.Wrapf(os.Rename(tmp.Name(), s.filePath), "write %s", s.filePath)
}

// LoadGraph reads a graph written by StoreGraph and checks that every edge
// joins two nodes of the file
func (s *JSONGraphStore) LoadGraph(ctx context.Context) (*CandidateGraph, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.filePath)
	}

	var graph CandidateGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.filePath)
	}
	ids := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		ids[n.ID] = true
	}
	for _, e := range graph.Edges {
		if !ids[e.Source] || !ids[e.Target] {
			return nil, errors.Errorf("%s: edge %s references a missing node", s.filePath, e.ID)
		}
	}
	return &graph, nil
}
