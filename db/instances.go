package db

import (
	"database/sql"
	"time"
)

func scanInstance(row *sql.Row) (Instance, error) {
	var inst Instance
	err := row.Scan(&inst.InstanceID, &inst.ProjectID, &inst.Pid, &inst.TTY,
		&inst.StartedAt, &inst.EndedAt, &inst.ExitCode, &inst.MetadataJSON)
	return inst, err
}

const instanceCols = "instance_id, project_id, pid, tty, started_at, ended_at, exit_code, metadata_json"

// CreateInstance inserts a new running instance row.
func CreateInstance(inst Instance) error {
	_, err := Run(
		"INSERT INTO instances ("+instanceCols+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		inst.InstanceID, inst.ProjectID, inst.Pid, inst.TTY, inst.StartedAt,
		inst.EndedAt, inst.ExitCode, inst.MetadataJSON,
	)
	return err
}

// GetInstance fetches a single instance by id.
func GetInstance(instanceID string) (*Instance, error) {
	return SelectOne(
		"SELECT "+instanceCols+" FROM instances WHERE instance_id = ?",
		[]QueryParam{instanceID},
		scanInstance,
	)
}

// FinalizeInstance marks an instance as ended with its exit code
// (coalesce-semantics: never overwrites an already-set ended_at).
func FinalizeInstance(instanceID string, exitCode int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := Run(
		"UPDATE instances SET ended_at = COALESCE(ended_at, ?), exit_code = ? WHERE instance_id = ?",
		now, exitCode, instanceID,
	)
	return err
}

// ListLiveInstances returns every instance row for a project with no
// ended_at, used by the registry-pruning liveness sweep on startup.
func ListLiveInstances(projectID int64) ([]Instance, error) {
	return Select(
		"SELECT "+instanceCols+" FROM instances WHERE project_id = ? AND ended_at IS NULL",
		[]QueryParam{projectID},
		func(rows *sql.Rows) (Instance, error) {
			var inst Instance
			err := rows.Scan(&inst.InstanceID, &inst.ProjectID, &inst.Pid, &inst.TTY,
				&inst.StartedAt, &inst.EndedAt, &inst.ExitCode, &inst.MetadataJSON)
			return inst, err
		},
	)
}
