package kv

// Schema creates the set and hash tables. Keys are absolute (namespace
// prefix included); a key exists only while it has at least one row.
const Schema = `
CREATE TABLE IF NOT EXISTS kv_sets (
	key TEXT NOT NULL,
	member TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (key, member)
);

CREATE TABLE IF NOT EXISTS kv_hashes (
	key TEXT NOT NULL,
	field TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (key, field)
);
`
