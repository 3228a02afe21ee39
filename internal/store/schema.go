package store

// schema is executed with IF NOT EXISTS on every open, so opening an
// existing database is always safe. Table names match spec §3.1 exactly.
const schema = `
CREATE TABLE IF NOT EXISTS items (
	item_id         TEXT PRIMARY KEY,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL DEFAULT '',
	size            TEXT NOT NULL DEFAULT '',
	urgency         TEXT NOT NULL DEFAULT '',
	epoch           INTEGER NOT NULL DEFAULT 0,
	state           TEXT NOT NULL DEFAULT 'open',
	parent_id       TEXT,
	created_at_us   INTEGER NOT NULL,
	updated_at_us   INTEGER NOT NULL,
	is_deleted      INTEGER NOT NULL DEFAULT 0,
	search_labels   TEXT NOT NULL DEFAULT ''
);

-- One LWW stamp row per (item, field) written by an item.update event, plus
-- the title stamp seeded by item.create. Generic over field name so create/update never needs a
-- schema migration to add a new mutable field (spec §3.2, §4.I).
CREATE TABLE IF NOT EXISTS item_field_stamps (
	item_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	stamp      TEXT NOT NULL DEFAULT '',
	wall_ts_us INTEGER NOT NULL DEFAULT 0,
	agent      TEXT NOT NULL DEFAULT '',
	event_hash TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (item_id, field)
);

CREATE TABLE IF NOT EXISTS item_labels (
	item_id TEXT NOT NULL,
	label   TEXT NOT NULL,
	PRIMARY KEY (item_id, label)
);

CREATE TABLE IF NOT EXISTS item_assignees (
	item_id TEXT NOT NULL,
	agent   TEXT NOT NULL,
	PRIMARY KEY (item_id, agent)
);

CREATE TABLE IF NOT EXISTS item_dependencies (
	item_id            TEXT NOT NULL,
	depends_on_item_id TEXT NOT NULL,
	link_type          TEXT NOT NULL,
	PRIMARY KEY (item_id, depends_on_item_id, link_type)
);

CREATE TABLE IF NOT EXISTS item_comments (
	comment_id    INTEGER PRIMARY KEY AUTOINCREMENT,
	item_id       TEXT NOT NULL,
	event_hash    TEXT NOT NULL UNIQUE,
	author        TEXT NOT NULL,
	body          TEXT NOT NULL,
	created_at_us INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS item_extras (
	item_id TEXT NOT NULL,
	key     TEXT NOT NULL,
	value   TEXT NOT NULL,
	PRIMARY KEY (item_id, key)
);

CREATE TABLE IF NOT EXISTS projected_events (
	event_hash TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS projection_meta (
	id               INTEGER PRIMARY KEY CHECK (id = 1),
	last_event_offset INTEGER NOT NULL DEFAULT 0,
	last_event_hash   TEXT NOT NULL DEFAULT ''
);

INSERT OR IGNORE INTO projection_meta (id, last_event_offset, last_event_hash) VALUES (1, 0, '');
`
