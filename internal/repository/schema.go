package repository

// Schema definitions for the fraudscore audit database.
// Compatible with both SQLite and PostgreSQL.

// schemaDecisionLog is insert-only. The features column holds the derived
// vector as a JSON array in scheme order.
const schemaDecisionLog = `
CREATE TABLE IF NOT EXISTS decision_log (
    id TEXT PRIMARY KEY,
    request_id TEXT,
    created_at TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    hour INTEGER NOT NULL,
    day_of_week INTEGER NOT NULL,
    month INTEGER NOT NULL,
    distance_from_home REAL NOT NULL,
    features TEXT NOT NULL,
    raw_score REAL NOT NULL,
    fraud_probability REAL NOT NULL,
    decision TEXT NOT NULL,
    reasoning TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decision_log_created ON decision_log(created_at);
CREATE INDEX IF NOT EXISTS idx_decision_log_decision ON decision_log(decision, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDecisionLog,
	}
}
