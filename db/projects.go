package db

import (
	"database/sql"
	"time"
)

func scanProject(row *sql.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.RootPath, &p.ProjectHash, &p.CreatedAt)
	return p, err
}

// GetOrCreateProject returns the project row for rootPath/projectHash,
// creating it on first orchestrator start in that directory. Project
// rows are never deleted.
func GetOrCreateProject(rootPath, projectHash string) (*Project, error) {
	existing, err := SelectOne(
		"SELECT id, root_path, project_hash, created_at FROM projects WHERE project_hash = ?",
		[]QueryParam{projectHash},
		scanProject,
	)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := RunWithResult(
		"INSERT INTO projects (root_path, project_hash, created_at) VALUES (?, ?, ?)",
		rootPath, projectHash, now,
	)
	if err != nil {
		return nil, err
	}

	return &Project{ID: res.LastInsertID, RootPath: rootPath, ProjectHash: projectHash, CreatedAt: now}, nil
}

// GetProjectByHash looks up a project by its hash.
func GetProjectByHash(projectHash string) (*Project, error) {
	return SelectOne(
		"SELECT id, root_path, project_hash, created_at FROM projects WHERE project_hash = ?",
		[]QueryParam{projectHash},
		scanProject,
	)
}
