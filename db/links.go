package db

import (
	"database/sql"
	"time"
)

const linkCols = "id, klaude_session_id, claude_session_id, transcript_path, source, started_at, ended_at"

func scanLinkRow(row *sql.Row) (ClaudeSessionLink, error) {
	var l ClaudeSessionLink
	err := row.Scan(&l.ID, &l.KlaudeSessionID, &l.ClaudeSessionID, &l.TranscriptPath, &l.Source, &l.StartedAt, &l.EndedAt)
	return l, err
}

func scanLinkRows(rows *sql.Rows) (ClaudeSessionLink, error) {
	var l ClaudeSessionLink
	err := rows.Scan(&l.ID, &l.KlaudeSessionID, &l.ClaudeSessionID, &l.TranscriptPath, &l.Source, &l.StartedAt, &l.EndedAt)
	return l, err
}

// UpsertClaudeSessionLink idempotently creates a link for
// (klaudeSessionId, claudeSessionId), used both by the hook handlers and
// by the claude-session runtime event. Creating a new link ends any link
// still active for the same klaude session.
func UpsertClaudeSessionLink(klaudeSessionID, claudeSessionID, source string, transcriptPath *string) error {
	existing, err := SelectOne(
		"SELECT "+linkCols+" FROM claude_session_links WHERE claude_session_id = ?",
		[]QueryParam{claudeSessionID},
		scanLinkRow,
	)
	if err != nil {
		return err
	}
	if existing != nil {
		_, err := Run(
			"UPDATE claude_session_links SET transcript_path = COALESCE(?, transcript_path) WHERE id = ?",
			transcriptPath, existing.ID,
		)
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := Run(
		"UPDATE claude_session_links SET ended_at = ? WHERE klaude_session_id = ? AND ended_at IS NULL",
		now, klaudeSessionID,
	); err != nil {
		return err
	}
	_, err = Run(
		"INSERT INTO claude_session_links (klaude_session_id, claude_session_id, transcript_path, source, started_at) VALUES (?, ?, ?, ?, ?)",
		klaudeSessionID, claudeSessionID, transcriptPath, source, now,
	)
	return err
}

// EndClaudeSessionLink coalesces ended_at for the active link tied to
// claudeSessionID.
func EndClaudeSessionLink(claudeSessionID string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run(
		"UPDATE claude_session_links SET ended_at = COALESCE(ended_at, ?) WHERE claude_session_id = ?",
		now, claudeSessionID,
	)
	return err
}

// GetActiveLink returns the link with ended_at IS NULL for a session, or
// nil if none — at most one can exist at a time.
func GetActiveLink(klaudeSessionID string) (*ClaudeSessionLink, error) {
	return SelectOne(
		"SELECT "+linkCols+" FROM claude_session_links WHERE klaude_session_id = ? AND ended_at IS NULL",
		[]QueryParam{klaudeSessionID},
		scanLinkRow,
	)
}

// GetMostRecentLink returns the link with the greatest started_at for a
// session, used as the second tier of the resume-id precedence.
func GetMostRecentLink(klaudeSessionID string) (*ClaudeSessionLink, error) {
	return SelectOne(
		"SELECT "+linkCols+" FROM claude_session_links WHERE klaude_session_id = ? ORDER BY started_at DESC LIMIT 1",
		[]QueryParam{klaudeSessionID},
		scanLinkRow,
	)
}

// ListLinks returns every link for a session, newest first.
func ListLinks(klaudeSessionID string) ([]ClaudeSessionLink, error) {
	return Select(
		"SELECT "+linkCols+" FROM claude_session_links WHERE klaude_session_id = ? ORDER BY started_at DESC",
		[]QueryParam{klaudeSessionID},
		scanLinkRows,
	)
}
