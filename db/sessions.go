package db

import (
	"database/sql"
	"time"

	"github.com/captaincrouton89/klaude-wrapper/wraperr"
)

const sessionCols = `id, project_id, parent_id, agent_type, instance_id, title, prompt, status,
	created_at, updated_at, ended_at, last_claude_session_id, last_transcript_path,
	current_process_pid, metadata_json`

func scanSessionRow(row *sql.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ProjectID, &s.ParentID, &s.AgentType, &s.InstanceID, &s.Title,
		&s.Prompt, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.EndedAt, &s.LastClaudeSessionID,
		&s.LastTranscriptPath, &s.CurrentProcessPid, &s.MetadataJSON)
	return s, err
}

func scanSessionRows(rows *sql.Rows) (Session, error) {
	var s Session
	err := rows.Scan(&s.ID, &s.ProjectID, &s.ParentID, &s.AgentType, &s.InstanceID, &s.Title,
		&s.Prompt, &s.Status, &s.CreatedAt, &s.UpdatedAt, &s.EndedAt, &s.LastClaudeSessionID,
		&s.LastTranscriptPath, &s.CurrentProcessPid, &s.MetadataJSON)
	return s, err
}

// CreateSession inserts a new session row (the TUI root session or an
// agent session spawned by start-agent).
func CreateSession(s Session) error {
	_, err := Run(
		"INSERT INTO sessions ("+sessionCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		s.ID, s.ProjectID, s.ParentID, s.AgentType, s.InstanceID, s.Title, s.Prompt, s.Status,
		s.CreatedAt, s.UpdatedAt, s.EndedAt, s.LastClaudeSessionID, s.LastTranscriptPath,
		s.CurrentProcessPid, s.MetadataJSON,
	)
	return err
}

// GetSession fetches a session by id.
func GetSession(id string) (*Session, error) {
	return SelectOne("SELECT "+sessionCols+" FROM sessions WHERE id = ?", []QueryParam{id}, scanSessionRow)
}

// ListChildSessions returns the direct children of a session.
func ListChildSessions(parentID string) ([]Session, error) {
	return Select("SELECT "+sessionCols+" FROM sessions WHERE parent_id = ?", []QueryParam{parentID}, scanSessionRows)
}

// UpdateSessionStatus sets status (and updated_at); if the new status is
// terminal, also coalesces ended_at.
func UpdateSessionStatus(id, status string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if TerminalStatuses[status] {
		_, err := Run(
			"UPDATE sessions SET status = ?, updated_at = ?, ended_at = COALESCE(ended_at, ?) WHERE id = ?",
			status, now, now, id,
		)
		return err
	}
	_, err := Run("UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?", status, now, id)
	return err
}

// UpdateSessionCurrentProcess sets or clears the currently-tracked runtime
// pid for a session.
func UpdateSessionCurrentProcess(id string, pid *int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run("UPDATE sessions SET current_process_pid = ?, updated_at = ? WHERE id = ?", pid, now, id)
	return err
}

// UpdateSessionClaudeLink sets the cached lastClaudeSessionId/Transcript
// fields, used both by the hook handlers and by the claude-session runtime
// event.
func UpdateSessionClaudeLink(id string, claudeSessionID string, transcriptPath *string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run(
		"UPDATE sessions SET last_claude_session_id = ?, last_transcript_path = COALESCE(?, last_transcript_path), updated_at = ? WHERE id = ?",
		claudeSessionID, transcriptPath, now, id,
	)
	return err
}

// SetSessionMetadata overwrites metadata_json.
func SetSessionMetadata(id, metadataJSON string) error {
	_, err := Run("UPDATE sessions SET metadata_json = ? WHERE id = ?", metadataJSON, id)
	return err
}

// CalculateSessionDepth walks parentId up to a root, failing with
// E_DEPTH_CYCLE if depth exceeds 100.
func CalculateSessionDepth(sessionID string) (int, error) {
	depth := 0
	current := sessionID
	for i := 0; i < 101; i++ {
		s, err := GetSession(current)
		if err != nil {
			return 0, err
		}
		if s == nil || s.ParentID == nil {
			return depth, nil
		}
		depth++
		current = *s.ParentID
		if depth > 100 {
			return 0, wraperr.New(wraperr.EDepthCycle, "session parent chain exceeds 100 hops")
		}
	}
	return 0, wraperr.New(wraperr.EDepthCycle, "session parent chain exceeds 100 hops")
}

// CascadeMarkSessionEnded marks the session ended with the given status and
// marks every direct child "orphaned", coalescing ended_at on each.
// Cascade-end always completes even if individual child updates fail;
// child-update failures are ignored and do not abort.
func CascadeMarkSessionEnded(id, status string) error {
	if err := UpdateSessionStatus(id, status); err != nil {
		return err
	}

	children, err := ListChildSessions(id)
	if err != nil {
		return nil // the parent transition already completed; log-worthy but non-fatal
	}
	for _, c := range children {
		_ = UpdateSessionStatus(c.ID, SessionStatusOrphaned)
	}
	return nil
}
