package export

import (
	"fmt"
)

type TraversalType string

const (
	BFS TraversalType = "BFS"
	DFS TraversalType = "DFS"
)

// GraphTraversal walks a candidate graph ignoring edge direction, so a
// context leads to every candidate using it and a candidate to its arguments
type GraphTraversal struct {
	graph     *CandidateGraph
	byID      map[string]Node
	adjacency map[string][]string
}

func NewGraphTraversal(g *CandidateGraph) *GraphTraversal {
	t := &GraphTraversal{
		graph:     g,
		byID:      make(map[string]Node, len(g.Nodes)),
		adjacency: make(map[string][]string, len(g.Nodes)),
	}
	for _, n := range g.Nodes {
		t.byID[n.ID] = n
	}
	for _, e := range g.Edges {
		t.adjacency[e.Source] = append(t.adjacency[e.Source], e.Target)
		t.adjacency[e.Target] = append(t.adjacency[e.Target], e.Source)
	}
	return t
}

// FindByKey returns the ID of the context or candidate node with the given key
func (t *GraphTraversal) FindByKey(key string) (string, bool) {
	for _, n := range t.graph.Nodes {
		if n.Properties["key"] == key {
			return n.ID, true
		}
	}
	return "", false
}

// Traverse returns the nodes reachable from startID within maxDepth hops,
// in visiting order
func (t *GraphTraversal) Traverse(startID string, maxDepth int, traversalType TraversalType) ([]Node, error) {
	if _, ok := t.byID[startID]; !ok {
		return nil, fmt.Errorf("node %s not in graph", startID)
	}
	visited := make(map[string]bool)

	switch traversalType {
	case BFS:
		return t.bfs(startID, maxDepth, visited), nil
	case DFS:
		var result []Node
		t.dfs(startID, maxDepth, visited, &result)
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported traversal type: %s", traversalType)
	}
}

func (t *GraphTraversal) bfs(startID string, maxDepth int, visited map[string]bool) []Node {
	queue := []string{startID}
	var result []Node

	for depth := 0; len(queue) > 0 && depth <= maxDepth; depth++ {
		levelSize := len(queue)
		for i := 0; i < levelSize; i++ {
			current := queue[0]
			queue = queue[1:]

			if visited[current] {
				continue
			}
			visited[current] = true
			result = append(result, t.byID[current])

			for _, next := range t.adjacency[current] {
				if !visited[next] {
					queue = append(queue, next)
				}
			}
		}
	}
	return result
}

func (t *GraphTraversal) dfs(currentID string, maxDepth int, visited map[string]bool, result *[]Node) {
	if maxDepth < 0 || visited[currentID] {
		return
	}
	visited[currentID] = true
	*result = append(*result, t.byID[currentID])

	for _, next := range t.adjacency[currentID] {
		if !visited[next] {
			t.dfs(next, maxDepth-1, visited, result)
		}
	}
}

// Subgraph keeps the given nodes and the edges between them
func (t *GraphTraversal) Subgraph(nodes []Node) *CandidateGraph {
	keep := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		keep[n.ID] = true
	}
	out := &CandidateGraph{GeneratedAt: t.graph.GeneratedAt}
	for _, n := range t.graph.Nodes {
		if keep[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range t.graph.Edges {
		if keep[e.Source] && keep[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}
