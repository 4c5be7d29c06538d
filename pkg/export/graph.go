// Package export turns stored candidates into a graph of contexts and
// candidate hyperedges and writes it to JSON files or Neo4j.
package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/athapong/docfuse/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Node types
const (
	NodeCandidate = "candidate"
)

// Node is a context or a candidate
type Node struct {
	ID         string                 `json:"id"`
	Label      string                 `json:"label"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Sources    []string               `json:"sources,omitempty"` // documents the node was found in
}

// Edge links a candidate node to one of its argument contexts
type Edge struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source"`
	Target     string                 `json:"target"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Weight     float64                `json:"weight"`
}

// CandidateGraph is the exported graph
type CandidateGraph struct {
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Generator accumulates candidates into a CandidateGraph. Contexts shared
// by several candidates become a single node.
type Generator struct {
	nodes     map[string]*Node
	order     []string
	nodeIDMap map[string]string // context key to node ID
	edges     []Edge
	seen      map[string]bool // candidate scope|key already added
	mutex     sync.Mutex
	logger    *logrus.Logger
}

// NewGenerator creates a graph generator
func NewGenerator(logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	return &Generator{
		nodes:     make(map[string]*Node),
		nodeIDMap: make(map[string]string),
		seen:      make(map[string]bool),
		logger:    logger,
	}
}

// EdgeType names the edge from a candidate to its argument
func EdgeType(arg string) string {
	return "ARG_" + strings.ToUpper(arg)
}

// AddCandidates adds records of one relation. argNames labels the edges;
// when nil the argument index is used instead.
func (g *Generator) AddCandidates(records []model.CandidateRecord, argNames []string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	for _, r := range records {
		if argNames != nil && len(r.Args) != len(argNames) {
			return errors.Errorf("candidate %s has %d arguments, relation %s declares %d",
				r.Key, len(r.Args), r.Relation, len(argNames))
		}
		scoped := fmt.Sprintf("%s|%s|%s", r.Relation, r.Split, r.Key)
		if g.seen[scoped] {
			continue
		}
		g.seen[scoped] = true

		cand := g.addNode(Node{
			ID:    uuid.New().String(),
			Label: r.Relation,
			Type:  NodeCandidate,
			Properties: map[string]interface{}{
				"relation": r.Relation,
				"split":    string(r.Split),
				"document": r.Document,
				"position": r.Position,
				"key":      r.Key,
				"run":      r.Run,
			},
			Sources: []string{r.Document},
		})

		for i, ref := range r.Args {
			target := g.contextNode(ref, r.Document)
			name := fmt.Sprintf("%d", i)
			if argNames != nil {
				name = argNames[i]
			}
			typ := EdgeType(name)
			g.edges = append(g.edges, Edge{
				ID:     fmt.Sprintf("%s-%s-%s", cand, typ, target),
				Source: cand,
				Target: target,
				Type:   typ,
				Properties: map[string]interface{}{
					"index": i,
				},
				Weight: 1,
			})
		}
	}

	g.logger.WithFields(logrus.Fields{
		"candidates": len(records),
		"nodes":      len(g.order),
		"edges":      len(g.edges),
	}).Debug("Added candidates to graph")
	return nil
}

// CandidateSource lists stored candidates
type CandidateSource interface {
	Candidates(ctx context.Context, q *store.Query) ([]model.CandidateRecord, error)
}

// AddQuery adds every stored candidate matching q
func (g *Generator) AddQuery(ctx context.Context, src CandidateSource, q *store.Query, argNames []string) (int, error) {
	records, err := src.Candidates(ctx, q)
	if err != nil {
		return 0, errors.Wrapf(err, "query candidates %s", q)
	}
	return len(records), g.AddCandidates(records, argNames)
}

func (g *Generator) addNode(n Node) string {
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return n.ID
}

func (g *Generator) contextNode(ref model.ContextRef, document string) string {
	if id, ok := g.nodeIDMap[ref.Key]; ok {
		return id
	}
	id := g.addNode(Node{
		ID:    uuid.New().String(),
		Label: ref.Text,
		Type:  string(ref.Kind),
		Properties: map[string]interface{}{
			"key":      ref.Key,
			"document": document,
		},
		Sources: []string{document},
	})
	g.nodeIDMap[ref.Key] = id
	return id
}

// Generate returns the graph built so far in insertion order
func (g *Generator) Generate() *CandidateGraph {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	nodes := make([]Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, *g.nodes[id])
	}
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)

	return &CandidateGraph{
		Nodes:       nodes,
		Edges:       edges,
		GeneratedAt: time.Now(),
	}
}
