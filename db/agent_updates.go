package db

import (
	"database/sql"
	"time"
)

const agentUpdateCols = "id, session_id, parent_session_id, update_text, acknowledged, created_at"

func scanAgentUpdateRows(rows *sql.Rows) (AgentUpdate, error) {
	var a AgentUpdate
	var ack int
	err := rows.Scan(&a.ID, &a.SessionID, &a.ParentSessionID, &a.UpdateText, &ack, &a.CreatedAt)
	a.Acknowledged = ack != 0
	return a, err
}

// InsertAgentUpdate queues an "[UPDATE] ..." notification for a parent
// session.
func InsertAgentUpdate(sessionID string, parentSessionID *string, text string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run(
		"INSERT INTO agent_updates (session_id, parent_session_id, update_text, acknowledged, created_at) VALUES (?, ?, ?, 0, ?)",
		sessionID, parentSessionID, text, now,
	)
	return err
}

// ListUnacknowledgedUpdates returns pending updates for a parent session,
// used by AgentUpdateWatcher.
func ListUnacknowledgedUpdates(parentSessionID string) ([]AgentUpdate, error) {
	return Select(
		"SELECT "+agentUpdateCols+" FROM agent_updates WHERE parent_session_id = ? AND acknowledged = 0 ORDER BY id ASC",
		[]QueryParam{parentSessionID},
		scanAgentUpdateRows,
	)
}

// AcknowledgeAgentUpdate marks an update as delivered.
func AcknowledgeAgentUpdate(id int64) error {
	_, err := Run("UPDATE agent_updates SET acknowledged = 1 WHERE id = ?", id)
	return err
}
