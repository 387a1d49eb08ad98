package sqlite

import "database/sql"

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS feedback (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    exercise_id TEXT NOT NULL,
    code        TEXT NOT NULL,
    feedback    TEXT NOT NULL,
    timestamp   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_feedback_exercise ON feedback(exercise_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS token_usage (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    prompt_tokens     INTEGER NOT NULL,
    completion_tokens INTEGER NOT NULL,
    total_tokens      INTEGER NOT NULL,
    model             TEXT NOT NULL,
    endpoint          TEXT,
    timestamp         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS token_totals (
    id                INTEGER PRIMARY KEY CHECK(id = 1),
    prompt_tokens     INTEGER NOT NULL DEFAULT 0,
    completion_tokens INTEGER NOT NULL DEFAULT 0,
    total_tokens      INTEGER NOT NULL DEFAULT 0,
    requests          INTEGER NOT NULL DEFAULT 0
);

INSERT OR IGNORE INTO token_totals (id) VALUES (1);
`

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// Table doesn't exist or is empty
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion)
	return err
}
