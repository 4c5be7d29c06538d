package store

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	name       TEXT PRIMARY KEY,
	source     TEXT NOT NULL DEFAULT '',
	modalities INTEGER NOT NULL,
	split      TEXT NOT NULL DEFAULT '',
	pages      TEXT,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_documents_split ON documents(split);

CREATE TABLE IF NOT EXISTS phrases (
	document     TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	text         TEXT NOT NULL,
	words        TEXT NOT NULL,
	char_offsets TEXT NOT NULL,
	lingual      TEXT,
	structural   TEXT,
	table_pos    INTEGER,
	cell_pos     INTEGER,
	visual       TEXT,
	PRIMARY KEY (document, position)
);

CREATE TABLE IF NOT EXISTS doc_tables (
	document   TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	structural TEXT,
	PRIMARY KEY (document, position)
);

CREATE TABLE IF NOT EXISTS cells (
	document   TEXT NOT NULL,
	table_pos  INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	row_start  INTEGER NOT NULL,
	row_end    INTEGER NOT NULL,
	col_start  INTEGER NOT NULL,
	col_end    INTEGER NOT NULL,
	structural TEXT,
	PRIMARY KEY (document, table_pos, position),
	FOREIGN KEY (document, table_pos) REFERENCES doc_tables(document, position) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS figures (
	document   TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	url        TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT '',
	visual     TEXT,
	structural TEXT,
	PRIMARY KEY (document, position)
);

CREATE TABLE IF NOT EXISTS candidates (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	relation   TEXT NOT NULL,
	split      TEXT NOT NULL,
	document   TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	key        TEXT NOT NULL,
	args       TEXT NOT NULL,
	run_id     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	UNIQUE (relation, split, key)
);

CREATE INDEX IF NOT EXISTS idx_candidates_scope ON candidates(relation, split, document, position);
`
