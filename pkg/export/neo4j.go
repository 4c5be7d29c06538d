package export

import (
	"context"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
)

// Neo4jStore writes candidate graphs to Neo4j. Context nodes are merged on
// their key so repeated exports do not duplicate them.
type Neo4jStore struct {
	driver neo4j.Driver
}

// NewNeo4jStore creates a Neo4j graph store
func NewNeo4jStore(uri, username, password string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}
	return &Neo4jStore{driver: driver}, nil
}

// Verify checks that the server is reachable
func (s *Neo4jStore) Verify() error {
	return s.driver.VerifyConnectivity()
}

// Close releases the driver
func (s *Neo4jStore) Close() error {
	return s.driver.Close()
}

var relType = regexp.MustCompile(`[^A-Z0-9_]`)

// cypherRelType makes an edge type safe to splice into a query, since
// relationship types cannot be parameters
func cypherRelType(t string) string {
	return relType.ReplaceAllString(t, "_")
}

// StoreGraph writes every node and edge in one write transaction
func (s *Neo4jStore) StoreGraph(ctx context.Context, graph *CandidateGraph) error {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	props := make(map[string]map[string]interface{}, len(graph.Nodes))
	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		for _, n := range graph.Nodes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			params := map[string]interface{}{
				"id":      n.ID,
				"label":   n.Label,
				"type":    n.Type,
				"sources": n.Sources,
				"props":   n.Properties,
			}

			query := `
				MERGE (c:Context {key: $props.key})
				ON CREATE SET c.id = $id
				SET c.label = $label, c.type = $type, c.sources = $sources, c += $props
			`
			if n.Type == NodeCandidate {
				query = `
					MERGE (c:Candidate {relation: $props.relation, split: $props.split, key: $props.key})
					ON CREATE SET c.id = $id
					SET c.label = $label, c.sources = $sources, c += $props, c.updated_at = datetime()
				`
			}
			if _, err := tx.Run(query, params); err != nil {
				return nil, errors.Wrapf(err, "store node %s", n.ID)
			}
			props[n.ID] = n.Properties
		}

		for _, e := range graph.Edges {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			query := fmt.Sprintf(`
				MATCH (c:Candidate {relation: $from.relation, split: $from.split, key: $from.key})
				MATCH (x:Context {key: $to.key})
				MERGE (c)-[r:%s]->(x)
				SET r.weight = $weight, r.index = $index
			`, cypherRelType(e.Type))
			params := map[string]interface{}{
				"from":   props[e.Source],
				"to":     props[e.Target],
				"weight": e.Weight,
				"index":  e.Properties["index"],
			}
			if _, err := tx.Run(query, params); err != nil {
				return nil, errors.Wrapf(err, "store edge %s", e.ID)
			}
		}
		return nil, nil
	})
	return err
}
