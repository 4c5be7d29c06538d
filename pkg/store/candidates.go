package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReplaceCandidates supersedes every candidate of (relation, split,
// document) with records, in one transaction. Records keep their order
// through the Position column.
func (s *Store) ReplaceCandidates(ctx context.Context, relation string, split model.Split, document string, records []model.CandidateRecord) error {
	scope := fmt.Sprintf("candidates %s/%s/%s", relation, split, document)
	err := s.RunTx(ctx, scope, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE name = ?`, document).Scan(&exists); err != nil {
			return errors.Wrap(err, "check document")
		}
		if exists == 0 {
			return errors.Wrapf(ErrNotFound, "document %s", document)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM candidates WHERE relation = ? AND split = ? AND document = ?`,
			relation, string(split), document); err != nil {
			return errors.Wrap(err, "delete previous candidates")
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO candidates (relation, split, document, position, key, args, run_id) VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare insert")
		}
		defer stmt.Close()

		for i, r := range records {
			if r.Relation != relation || r.Split != split || r.Document != document {
				return errors.Errorf("candidate %d belongs to %s/%s/%s", i, r.Relation, r.Split, r.Document)
			}
			args, err := json.Marshal(r.Args)
			if err != nil {
				return errors.Wrapf(err, "encode candidate %d", i)
			}
			if _, err := stmt.ExecContext(ctx, relation, string(split), document, i, r.Key, string(args), r.Run); err != nil {
				return errors.Wrapf(err, "insert candidate %s", r.Key)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"relation":   relation,
		"split":      split,
		"document":   document,
		"candidates": len(records),
	}).Debug("Candidates replaced")
	return nil
}

// Candidates returns the candidates matching q ordered by document and
// emission order.
func (s *Store) Candidates(ctx context.Context, q *Query) ([]model.CandidateRecord, error) {
	where, args, err := q.where()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, relation, split, document, position, key, args, run_id FROM candidates`+
			where+` ORDER BY relation, split, document, position`+q.page(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "query candidates")
	}
	defer rows.Close()

	var out []model.CandidateRecord
	for rows.Next() {
		var (
			r     model.CandidateRecord
			split string
			refs  string
		)
		if err := rows.Scan(&r.ID, &r.Relation, &split, &r.Document, &r.Position, &r.Key, &refs, &r.Run); err != nil {
			return nil, err
		}
		r.Split = model.Split(split)
		if err := json.Unmarshal([]byte(refs), &r.Args); err != nil {
			return nil, errors.Wrapf(err, "decode candidate %d", r.ID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountCandidates counts the candidates matching q, ignoring paging
func (s *Store) CountCandidates(ctx context.Context, q *Query) (int, error) {
	where, args, err := q.where()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates`+where, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count candidates")
	}
	return n, nil
}

// Relations lists the relation names that have persisted candidates
func (s *Store) Relations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT relation FROM candidates ORDER BY relation`)
	if err != nil {
		return nil, errors.Wrap(err, "list relations")
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
