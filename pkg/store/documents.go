package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/athapong/docfuse/pkg/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SaveDocument writes the whole document subtree in one transaction. A
// document of the same name is replaced atomically, which also drops the
// candidates that referenced it. The split label of the replaced document is
// kept when doc carries none.
func (s *Store) SaveDocument(ctx context.Context, doc *model.Document) error {
	if doc == nil || doc.Name == "" {
		return errors.New("store: document has no name")
	}
	err := s.RunTx(ctx, "document "+doc.Name, func(tx *sql.Tx) error {
		split := doc.Split
		if split == model.SplitUnassigned {
			var prev string
			err := tx.QueryRowContext(ctx, `SELECT split FROM documents WHERE name = ?`, doc.Name).Scan(&prev)
			if err != nil && err != sql.ErrNoRows {
				return errors.Wrap(err, "read previous split")
			}
			split = model.Split(prev)
		}
		if err := deleteDocument(ctx, tx, doc.Name); err != nil {
			return err
		}
		return insertDocument(ctx, tx, doc, split)
	})
	if err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"document": doc.Name,
		"phrases":  len(doc.Phrases),
		"tables":   len(doc.Tables),
		"figures":  len(doc.Figures),
	}).Debug("Document saved")
	return nil
}

// DeleteDocument removes a document and everything that depends on it
func (s *Store) DeleteDocument(ctx context.Context, name string) error {
	return s.RunTx(ctx, "document "+name, func(tx *sql.Tx) error {
		return deleteDocument(ctx, tx, name)
	})
}

// deleteDocument removes children explicitly so the result does not depend
// on the connection having foreign keys enabled.
func deleteDocument(ctx context.Context, tx *sql.Tx, name string) error {
	for _, q := range []string{
		`DELETE FROM candidates WHERE document = ?`,
		`DELETE FROM cells WHERE document = ?`,
		`DELETE FROM doc_tables WHERE document = ?`,
		`DELETE FROM phrases WHERE document = ?`,
		`DELETE FROM figures WHERE document = ?`,
		`DELETE FROM documents WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, name); err != nil {
			return errors.Wrapf(err, "delete document %s", name)
		}
	}
	return nil
}

func insertDocument(ctx context.Context, tx *sql.Tx, doc *model.Document, split model.Split) error {
	pages, err := nullJSON(doc.Pages, len(doc.Pages) > 0)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (name, source, modalities, split, pages) VALUES (?, ?, ?, ?, ?)`,
		doc.Name, doc.Source, int(doc.Modalities), string(split), pages); err != nil {
		return errors.Wrap(err, "insert document")
	}

	for i := range doc.Phrases {
		if err := insertPhrase(ctx, tx, doc.Name, &doc.Phrases[i]); err != nil {
			return errors.Wrapf(err, "insert phrase %d", i)
		}
	}

	for _, t := range doc.Tables {
		structural, err := nullJSON(t.Structural, t.Structural != nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO doc_tables (document, position, structural) VALUES (?, ?, ?)`,
			doc.Name, t.Position, structural); err != nil {
			return errors.Wrapf(err, "insert table %d", t.Position)
		}
		for _, c := range t.Cells {
			cs, err := nullJSON(c.Structural, c.Structural != nil)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cells (document, table_pos, position, row_start, row_end, col_start, col_end, structural)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				doc.Name, t.Position, c.Position, c.RowStart, c.RowEnd, c.ColStart, c.ColEnd, cs); err != nil {
				return errors.Wrapf(err, "insert cell %d of table %d", c.Position, t.Position)
			}
		}
	}

	for _, f := range doc.Figures {
		visual, err := nullJSON(f.Visual, f.Visual != nil)
		if err != nil {
			return err
		}
		structural, err := nullJSON(f.Structural, f.Structural != nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO figures (document, position, url, kind, visual, structural) VALUES (?, ?, ?, ?, ?, ?)`,
			doc.Name, f.Position, f.URL, f.Kind, visual, structural); err != nil {
			return errors.Wrapf(err, "insert figure %d", f.Position)
		}
	}
	return nil
}

func insertPhrase(ctx context.Context, tx *sql.Tx, document string, p *model.Phrase) error {
	words, err := json.Marshal(p.Words)
	if err != nil {
		return err
	}
	offsets, err := json.Marshal(p.CharOffsets)
	if err != nil {
		return err
	}
	lingual, err := nullJSON(p.Lingual, p.Lingual != nil)
	if err != nil {
		return err
	}
	structural, err := nullJSON(p.Structural, p.Structural != nil)
	if err != nil {
		return err
	}
	visual, err := nullJSON(p.Visual, p.Visual != nil)
	if err != nil {
		return err
	}
	var table, cell sql.NullInt64
	if p.Cell != nil {
		table = sql.NullInt64{Int64: int64(p.Cell.Table), Valid: true}
		cell = sql.NullInt64{Int64: int64(p.Cell.Cell), Valid: true}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO phrases (document, position, text, words, char_offsets, lingual, structural, table_pos, cell_pos, visual)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		document, p.Position, p.Text, string(words), string(offsets), lingual, structural, table, cell, visual)
	return err
}

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// LoadDocument reads a document subtree from one snapshot. It returns
// ErrNotFound when the document does not exist.
func (s *Store) LoadDocument(ctx context.Context, name string) (*model.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "store: begin read")
	}
	defer tx.Rollback()
	return loadDocument(ctx, tx, name)
}

func loadDocument(ctx context.Context, q querier, name string) (*model.Document, error) {
	doc := &model.Document{Name: name}
	var (
		modalities int
		split      string
		pages      sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT source, modalities, split, pages FROM documents WHERE name = ?`, name).
		Scan(&doc.Source, &modalities, &split, &pages)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "document %s", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load document %s", name)
	}
	doc.Modalities = model.Modality(modalities)
	doc.Split = model.Split(split)
	if err := scanJSON(pages, &doc.Pages); err != nil {
		return nil, err
	}

	if err := loadTables(ctx, q, doc); err != nil {
		return nil, err
	}
	if err := loadPhrases(ctx, q, doc); err != nil {
		return nil, err
	}
	if err := loadFigures(ctx, q, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func loadTables(ctx context.Context, q querier, doc *model.Document) error {
	rows, err := q.QueryContext(ctx,
		`SELECT position, structural FROM doc_tables WHERE document = ? ORDER BY position`, doc.Name)
	if err != nil {
		return errors.Wrap(err, "load tables")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			t          model.Table
			structural sql.NullString
		)
		if err := rows.Scan(&t.Position, &structural); err != nil {
			return err
		}
		if structural.Valid {
			t.Structural = &model.StructuralAttrs{}
			if err := scanJSON(structural, t.Structural); err != nil {
				return err
			}
		}
		doc.Tables = append(doc.Tables, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	cellRows, err := q.QueryContext(ctx,
		`SELECT table_pos, position, row_start, row_end, col_start, col_end, structural
		 FROM cells WHERE document = ? ORDER BY table_pos, position`, doc.Name)
	if err != nil {
		return errors.Wrap(err, "load cells")
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var (
			table      int
			c          model.Cell
			structural sql.NullString
		)
		if err := cellRows.Scan(&table, &c.Position, &c.RowStart, &c.RowEnd, &c.ColStart, &c.ColEnd, &structural); err != nil {
			return err
		}
		if structural.Valid {
			c.Structural = &model.StructuralAttrs{}
			if err := scanJSON(structural, c.Structural); err != nil {
				return err
			}
		}
		if table < 0 || table >= len(doc.Tables) {
			return errors.Errorf("cell %d references missing table %d", c.Position, table)
		}
		doc.Tables[table].Cells = append(doc.Tables[table].Cells, c)
	}
	return cellRows.Err()
}

func loadPhrases(ctx context.Context, q querier, doc *model.Document) error {
	rows, err := q.QueryContext(ctx,
		`SELECT position, text, words, char_offsets, lingual, structural, table_pos, cell_pos, visual
		 FROM phrases WHERE document = ? ORDER BY position`, doc.Name)
	if err != nil {
		return errors.Wrap(err, "load phrases")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p                           model.Phrase
			words, offsets              string
			lingual, structural, visual sql.NullString
			table, cell                 sql.NullInt64
		)
		if err := rows.Scan(&p.Position, &p.Text, &words, &offsets, &lingual, &structural, &table, &cell, &visual); err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(words), &p.Words); err != nil {
			return errors.Wrapf(err, "phrase %d words", p.Position)
		}
		if err := json.Unmarshal([]byte(offsets), &p.CharOffsets); err != nil {
			return errors.Wrapf(err, "phrase %d offsets", p.Position)
		}
		if lingual.Valid {
			p.Lingual = &model.LingualAttrs{}
			if err := scanJSON(lingual, p.Lingual); err != nil {
				return err
			}
		}
		if structural.Valid {
			p.Structural = &model.StructuralAttrs{}
			if err := scanJSON(structural, p.Structural); err != nil {
				return err
			}
		}
		if visual.Valid {
			p.Visual = &model.VisualAttrs{}
			if err := scanJSON(visual, p.Visual); err != nil {
				return err
			}
		}
		if table.Valid && cell.Valid {
			ref := model.CellRef{Table: int(table.Int64), Cell: int(cell.Int64)}
			p.Cell = &ref
			if c := doc.Cell(ref); c != nil {
				c.Phrases = append(c.Phrases, p.Position)
			}
		}
		doc.Phrases = append(doc.Phrases, p)
	}
	return rows.Err()
}

func loadFigures(ctx context.Context, q querier, doc *model.Document) error {
	rows, err := q.QueryContext(ctx,
		`SELECT position, url, kind, visual, structural FROM figures WHERE document = ? ORDER BY position`, doc.Name)
	if err != nil {
		return errors.Wrap(err, "load figures")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			f                  model.Figure
			visual, structural sql.NullString
		)
		if err := rows.Scan(&f.Position, &f.URL, &f.Kind, &visual, &structural); err != nil {
			return err
		}
		if visual.Valid {
			f.Visual = &model.VisualAttrs{}
			if err := scanJSON(visual, f.Visual); err != nil {
				return err
			}
		}
		if structural.Valid {
			f.Structural = &model.StructuralAttrs{}
			if err := scanJSON(structural, f.Structural); err != nil {
				return err
			}
		}
		doc.Figures = append(doc.Figures, f)
	}
	return rows.Err()
}

// AssignSplit tags a document with a data partition
func (s *Store) AssignSplit(ctx context.Context, name string, split model.Split) error {
	return s.RunTx(ctx, "document "+name, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE documents SET split = ? WHERE name = ?`, string(split), name)
		if err != nil {
			return errors.Wrapf(err, "assign split to %s", name)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.Wrapf(ErrNotFound, "document %s", name)
		}
		return nil
	})
}

// DocumentNames lists document names in name order. With splits given only
// documents carrying one of them are returned.
func (s *Store) DocumentNames(ctx context.Context, splits ...model.Split) ([]string, error) {
	query := `SELECT name FROM documents`
	var args []interface{}
	if len(splits) > 0 {
		query += ` WHERE split IN (` + placeholders(len(splits)) + `)`
		for _, sp := range splits {
			args = append(args, string(sp))
		}
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list documents")
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

// nullJSON encodes v, or returns NULL when present is false
func nullJSON(v interface{}, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, errors.Wrap(err, "encode column")
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanJSON(col sql.NullString, v interface{}) error {
	if !col.Valid {
		return nil
	}
	return errors.Wrap(json.Unmarshal([]byte(col.String), v), "decode column")
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, 2*n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}
