package sqlite

// schema holds the nine tables backing every internal/port interface. All
// writes that must be atomic (audit insert, bucket refill+consume, token
// validate+consume, circuit state transition) run inside a single
// *sql.Tx opened by the caller's method, never across two round trips.
const schema = `
CREATE TABLE IF NOT EXISTS rules (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	priority          INTEGER NOT NULL,
	action            TEXT NOT NULL,
	enabled           INTEGER NOT NULL DEFAULT 1,
	tool_pattern      TEXT NOT NULL DEFAULT '',
	host_pattern      TEXT NOT NULL DEFAULT '',
	agent_pattern     TEXT NOT NULL DEFAULT '',
	argument_pattern  TEXT NOT NULL DEFAULT '',
	rate_limit_json   TEXT,
	schedule_json     TEXT,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL,
	CONSTRAINT uq_rules_name UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS audit_log (
	sequence_number   INTEGER PRIMARY KEY,
	timestamp_ms      INTEGER NOT NULL,
	tool              TEXT NOT NULL,
	host              TEXT NOT NULL,
	agent             TEXT NOT NULL,
	arguments_json    TEXT NOT NULL,
	verdict           TEXT NOT NULL,
	action            TEXT NOT NULL,
	matched_rule_id   TEXT NOT NULL DEFAULT '',
	risk_score        REAL NOT NULL DEFAULT 0,
	risk_factors_json TEXT NOT NULL DEFAULT '[]',
	mode              TEXT NOT NULL,
	response_status   TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	hash              TEXT NOT NULL,
	previous_hash     TEXT NOT NULL,
	CONSTRAINT uq_audit_log_hash UNIQUE (hash)
);
CREATE INDEX IF NOT EXISTS idx_audit_log_tool_host ON audit_log(tool, host, timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_audit_log_host_ts ON audit_log(host, timestamp_ms);

CREATE TABLE IF NOT EXISTS anomaly_baselines (
	tool                TEXT NOT NULL,
	host                TEXT NOT NULL,
	frequency_mean      REAL NOT NULL DEFAULT 0,
	frequency_stddev    REAL NOT NULL DEFAULT 0,
	hourly_dist_json    TEXT NOT NULL DEFAULT '[]',
	fingerprints_json   TEXT NOT NULL DEFAULT '[]',
	bigrams_json        TEXT NOT NULL DEFAULT '{}',
	error_rate_mean     REAL NOT NULL DEFAULT 0,
	error_rate_stddev   REAL NOT NULL DEFAULT 0,
	last_updated        INTEGER NOT NULL DEFAULT 0,
	sample_count        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tool, host)
);

CREATE TABLE IF NOT EXISTS rate_limit_buckets (
	rule_id      TEXT NOT NULL,
	tool         TEXT NOT NULL,
	host         TEXT NOT NULL,
	agent        TEXT NOT NULL,
	tokens       REAL NOT NULL,
	last_refill  INTEGER NOT NULL,
	created_at   INTEGER NOT NULL,
	PRIMARY KEY (rule_id, tool, host, agent)
);

CREATE TABLE IF NOT EXISTS circuit_breakers (
	host           TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	failure_count  INTEGER NOT NULL DEFAULT 0,
	last_failure   INTEGER NOT NULL DEFAULT 0,
	last_success   INTEGER NOT NULL DEFAULT 0,
	opened_at      INTEGER NOT NULL DEFAULT 0,
	half_open_at   INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quarantine (
	scope      TEXT NOT NULL,
	target     TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	expires_at INTEGER,
	created_by TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (scope, target)
);

CREATE TABLE IF NOT EXISTS alerts (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	sequence_num  INTEGER NOT NULL,
	tool          TEXT NOT NULL,
	host          TEXT NOT NULL,
	agent         TEXT NOT NULL,
	risk_score    REAL NOT NULL,
	reason        TEXT NOT NULL,
	created_at    INTEGER NOT NULL,
	acknowledged  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS confirmation_tokens (
	value        TEXT PRIMARY KEY,
	tool         TEXT NOT NULL,
	host         TEXT NOT NULL,
	agent        TEXT NOT NULL,
	arguments_json TEXT NOT NULL DEFAULT 'null',
	created_at   INTEGER NOT NULL,
	expires_at   INTEGER NOT NULL,
	used         INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
