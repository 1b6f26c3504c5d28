package stats

// Schema mirrors the listening-statistics layout: users and servers
// with their memberships, a play log with per-play listeners, a command
// log, and the web one-time-key records.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	discord_id TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS servers (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	discord_id TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	owner      INTEGER NOT NULL REFERENCES users(id),
	whitelist  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_membership (
	server_id  INTEGER NOT NULL REFERENCES servers(id),
	user_id    INTEGER NOT NULL REFERENCES users(id),
	perm_level TEXT NOT NULL DEFAULT 'Default',
	UNIQUE(server_id, user_id)
);

CREATE TABLE IF NOT EXISTS command_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	server      INTEGER REFERENCES servers(id),
	user        INTEGER REFERENCES users(id),
	command     TEXT NOT NULL,
	executed_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS songs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	play_id        TEXT NOT NULL UNIQUE,
	server         INTEGER NOT NULL REFERENCES servers(id),
	requestee      INTEGER NOT NULL REFERENCES users(id),
	date_requested TIMESTAMP NOT NULL,
	video_id       TEXT NOT NULL,
	video_name     TEXT NOT NULL,
	video_len      INTEGER
);

CREATE TABLE IF NOT EXISTS song_listeners (
	song_id INTEGER NOT NULL REFERENCES songs(id),
	user    INTEGER NOT NULL REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS web_keys (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user          INTEGER NOT NULL UNIQUE REFERENCES users(id),
	key           TEXT NOT NULL,
	request_token TEXT NOT NULL,
	validated     INTEGER NOT NULL DEFAULT 0,
	token_expires TIMESTAMP NOT NULL,
	key_expires   TIMESTAMP NOT NULL
);
`
