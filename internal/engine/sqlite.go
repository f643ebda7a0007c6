package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// SQLiteEngine adapts embedded SQLite databases. Operates on the database
// file directly; exactly one logical database per server, never "all
// databases".
type SQLiteEngine struct{}

// NewSQLiteEngine creates a SQLite engine adapter
func NewSQLiteEngine() *SQLiteEngine {
	return &SQLiteEngine{}
}

func (e *SQLiteEngine) DumpExtension() string {
	return "db"
}

// DumpCommand uses the sqlite3 online backup API, which copies a consistent
// image of the database file even while writers are active.
func (e *SQLiteEngine) DumpCommand(server *model.DatabaseServer, database, outputPath string) string {
	return fmt.Sprintf("sqlite3 %s %s",
		shell.Quote(server.FilePath),
		shell.Quote(fmt.Sprintf(".backup %s", outputPath)),
	)
}

func (e *SQLiteEngine) RestoreCommand(server *model.DatabaseServer, database, inputPath string) string {
	return fmt.Sprintf("sqlite3 %s %s",
		shell.Quote(server.FilePath),
		shell.Quote(fmt.Sprintf(".restore %s", inputPath)),
	)
}

func (e *SQLiteEngine) TestConnection(ctx context.Context, server *model.DatabaseServer) error {
	if _, err := os.Stat(server.FilePath); err != nil {
		return errors.NewConnectionError("sqlite database file is not accessible", err).
			WithContext("server_id", server.ID).
			WithContext("path", server.FilePath)
	}

	db, err := sql.Open("sqlite3", server.FilePath)
	if err != nil {
		return errors.NewConnectionError("failed to open sqlite database", err).
			WithContext("server_id", server.ID)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewConnectionError("sqlite database is not readable", err).
			WithContext("server_id", server.ID).
			WithContext("path", server.FilePath)
	}
	return nil
}

func (e *SQLiteEngine) ListDatabases(ctx context.Context, server *model.DatabaseServer) ([]string, error) {
	return nil, errors.NewValidationError(
		"sqlite servers hold exactly one database; enumeration is not supported", nil).
		WithContext("server_id", server.ID)
}
