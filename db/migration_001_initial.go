package db

import "database/sql"

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "initial schema: projects, instances, sessions, claude_session_links, runtime_processes, events, agent_updates",
		Up:          migration001Up,
	})
}

func migration001Up(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			root_path TEXT NOT NULL UNIQUE,
			project_hash TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS instances (
			instance_id TEXT PRIMARY KEY,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			pid INTEGER NOT NULL,
			tty TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			exit_code INTEGER,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_instances_project ON instances(project_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			parent_id TEXT REFERENCES sessions(id),
			agent_type TEXT NOT NULL,
			instance_id TEXT REFERENCES instances(instance_id),
			title TEXT,
			prompt TEXT,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT,
			ended_at TEXT,
			last_claude_session_id TEXT,
			last_transcript_path TEXT,
			current_process_pid INTEGER,
			metadata_json TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_instance ON sessions(instance_id)`,
		`CREATE TABLE IF NOT EXISTS claude_session_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			klaude_session_id TEXT NOT NULL REFERENCES sessions(id),
			claude_session_id TEXT NOT NULL UNIQUE,
			transcript_path TEXT,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_links_session ON claude_session_links(klaude_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_links_active ON claude_session_links(klaude_session_id, ended_at)`,
		`CREATE TABLE IF NOT EXISTS runtime_processes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			klaude_session_id TEXT NOT NULL REFERENCES sessions(id),
			pid INTEGER NOT NULL,
			kind TEXT NOT NULL,
			started_at TEXT NOT NULL,
			exited_at TEXT,
			exit_code INTEGER,
			is_current INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runtime_processes_session ON runtime_processes(klaude_session_id)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER REFERENCES projects(id),
			klaude_session_id TEXT REFERENCES sessions(id),
			kind TEXT NOT NULL,
			payload_json TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(klaude_session_id, id)`,
		`CREATE TABLE IF NOT EXISTS agent_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			parent_session_id TEXT REFERENCES sessions(id),
			update_text TEXT NOT NULL,
			acknowledged INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_updates_parent ON agent_updates(parent_session_id, acknowledged)`,
	}

	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}

	return tx.Commit()
}
