package store

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
)

// Query selects persisted candidates. Empty fields do not restrict.
type Query struct {
	Relation  string        `json:"relation,omitempty"`
	Splits    []model.Split `json:"splits,omitempty"`
	Documents []string      `json:"documents,omitempty"`
	Filters   []Filter      `json:"filters,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	Skip      int           `json:"skip,omitempty"`
}

// Filter compares a candidate column against a value
type Filter struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

var filterFields = map[string]string{
	"relation": "relation",
	"split":    "split",
	"document": "document",
	"position": "position",
	"key":      "key",
	"run":      "run_id",
}

var filterOperators = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true, "LIKE": true,
}

// NewQuery creates a query over one relation; an empty name matches all
func NewQuery(relation string) *Query {
	return &Query{Relation: relation}
}

func (q *Query) ForSplits(splits ...model.Split) *Query {
	q.Splits = append(q.Splits, splits...)
	return q
}

func (q *Query) ForDocuments(names ...string) *Query {
	q.Documents = append(q.Documents, names...)
	return q
}

func (q *Query) AddFilter(filter Filter) *Query {
	q.Filters = append(q.Filters, filter)
	return q
}

func (q *Query) SetLimit(limit int) *Query {
	q.Limit = limit
	return q
}

func (q *Query) SetSkip(skip int) *Query {
	q.Skip = skip
	return q
}

func (q *Query) String() string {
	bytes, _ := json.MarshalIndent(q, "", "  ")
	return fmt.Sprintf("%s", bytes)
}

// where renders the WHERE clause and its arguments
func (q *Query) where() (string, []interface{}, error) {
	if q == nil {
		return "", nil, nil
	}
	var (
		clauses []string
		args    []interface{}
	)
	if q.Relation != "" {
		clauses = append(clauses, "relation = ?")
		args = append(args, q.Relation)
	}
	if len(q.Splits) > 0 {
		clauses = append(clauses, "split IN ("+placeholders(len(q.Splits))+")")
		for _, s := range q.Splits {
			args = append(args, string(s))
		}
	}
	if len(q.Documents) > 0 {
		clauses = append(clauses, "document IN ("+placeholders(len(q.Documents))+")")
		for _, d := range q.Documents {
			args = append(args, d)
		}
	}
	for _, f := range q.Filters {
		col, ok := filterFields[f.Field]
		if !ok {
			return "", nil, errors.Errorf("cannot filter on %q", f.Field)
		}
		op := strings.ToUpper(f.Operator)
		if !filterOperators[op] {
			return "", nil, errors.Errorf("unsupported operator %q", f.Operator)
		}
		clauses = append(clauses, col+" "+op+" ?")
		args = append(args, f.Value)
	}
	if len(clauses) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// page renders LIMIT/OFFSET
func (q *Query) page() string {
	if q == nil || (q.Limit <= 0 && q.Skip <= 0) {
		return ""
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, q.Skip)
}
