package db

import "time"

// InsertEvent appends a row to the append-only events table. The
// EventRecorder (package events) is the only caller — event ordering
// within a session is guaranteed by the recorder's per-session
// serialization, not by this function.
func InsertEvent(projectID *int64, klaudeSessionID *string, kind string, payloadJSON *string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := RunWithResult(
		"INSERT INTO events (project_id, klaude_session_id, kind, payload_json, created_at) VALUES (?, ?, ?, ?, ?)",
		projectID, klaudeSessionID, kind, payloadJSON, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertID, nil
}
