package commands

import (
	"time"

	"github.com/captaincrouton89/klaude-wrapper/config"
	"github.com/captaincrouton89/klaude-wrapper/db"
)

// openDB opens the shared SQLite store. Both the long-lived orchestrator
// and the short-lived hook subcommands go through this same helper since
// both need the global connection the `db` package's query helpers read
// from.
func openDB(cfg *config.Config) (*db.DB, error) {
	return db.Open(db.Config{
		Path:            cfg.DatabasePath,
		MaxOpenConns:    8,
		MaxIdleConns:    4,
		ConnMaxLifetime: time.Hour,
		LogQueries:      cfg.DBLogQueries,
	})
}
