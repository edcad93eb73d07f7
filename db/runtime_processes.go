package db

import (
	"database/sql"
	"time"
)

const runtimeProcessCols = "id, klaude_session_id, pid, kind, started_at, exited_at, exit_code, is_current"

func scanRuntimeProcessRow(row *sql.Row) (RuntimeProcess, error) {
	var r RuntimeProcess
	var isCurrent int
	err := row.Scan(&r.ID, &r.KlaudeSessionID, &r.Pid, &r.Kind, &r.StartedAt, &r.ExitedAt, &r.ExitCode, &isCurrent)
	r.IsCurrent = isCurrent != 0
	return r, err
}

// CreateRuntimeProcess records a newly spawned child. Any previously
// current process for the same session is marked non-current first, so
// at most one current+unexited row per session ever exists.
func CreateRuntimeProcess(sessionID string, pid int, kind string) (int64, error) {
	if _, err := Run("UPDATE runtime_processes SET is_current = 0 WHERE klaude_session_id = ?", sessionID); err != nil {
		return 0, err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := RunWithResult(
		"INSERT INTO runtime_processes (klaude_session_id, pid, kind, started_at, is_current) VALUES (?, ?, ?, ?, 1)",
		sessionID, pid, kind, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}

// CloseRuntimeProcess records the exit of a tracked child process.
func CloseRuntimeProcess(id int64, exitCode int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run(
		"UPDATE runtime_processes SET exited_at = ?, exit_code = ? WHERE id = ?",
		now, exitCode, id,
	)
	return err
}

// GetCurrentRuntimeProcess returns the live (is_current, unexited) runtime
// process row for a session, if any.
func GetCurrentRuntimeProcess(sessionID string) (*RuntimeProcess, error) {
	return SelectOne(
		"SELECT "+runtimeProcessCols+" FROM runtime_processes WHERE klaude_session_id = ? AND is_current = 1 AND exited_at IS NULL",
		[]QueryParam{sessionID},
		scanRuntimeProcessRow,
	)
}
