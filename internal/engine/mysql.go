package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// mysqlReserved lists databases that must never be backed up or enumerated
var mysqlReserved = map[string]struct{}{
	"information_schema": {},
	"performance_schema": {},
	"mysql":              {},
	"sys":                {},
}

// MySQLEngine adapts MySQL and MariaDB servers via the mysqldump and mysql
// client tools.
type MySQLEngine struct {
	connectTimeout time.Duration
}

// NewMySQLEngine creates a MySQL engine adapter
func NewMySQLEngine(connectTimeout time.Duration) *MySQLEngine {
	return &MySQLEngine{connectTimeout: connectTimeout}
}

func (e *MySQLEngine) DumpExtension() string {
	return "sql"
}

func (e *MySQLEngine) DumpCommand(server *model.DatabaseServer, database, outputPath string) string {
	return fmt.Sprintf(
		"mysqldump -h %s -P %d -u %s%s --single-transaction --routines --triggers %s > %s",
		shell.Quote(server.Host),
		server.Port,
		shell.Quote(server.Username),
		e.passwordFlag(server),
		shell.Quote(database),
		shell.Quote(outputPath),
	)
}

func (e *MySQLEngine) RestoreCommand(server *model.DatabaseServer, database, inputPath string) string {
	return fmt.Sprintf(
		"mysql -h %s -P %d -u %s%s %s < %s",
		shell.Quote(server.Host),
		server.Port,
		shell.Quote(server.Username),
		e.passwordFlag(server),
		shell.Quote(database),
		shell.Quote(inputPath),
	)
}

// passwordFlag renders the -p flag, or nothing for passwordless accounts; a
// bare -p'' makes the client prompt on stdin and hang the job.
func (e *MySQLEngine) passwordFlag(server *model.DatabaseServer) string {
	if server.Password == "" {
		return ""
	}
	return " -p" + shell.Quote(server.Password)
}

// DSN builds the driver connection string used by probes and enumeration
func (e *MySQLEngine) DSN(server *model.DatabaseServer) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/?timeout=%s",
		server.Username, server.Password, server.Host, server.Port, e.connectTimeout)
}

func (e *MySQLEngine) TestConnection(ctx context.Context, server *model.DatabaseServer) error {
	db, err := sql.Open("mysql", e.DSN(server))
	if err != nil {
		return errors.NewConnectionError("failed to initialize mysql connection", err).
			WithContext("server_id", server.ID)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewConnectionError("cannot reach mysql server", err).
			WithContext("server_id", server.ID).
			WithContext("host", server.Host)
	}
	return nil
}

func (e *MySQLEngine) ListDatabases(ctx context.Context, server *model.DatabaseServer) ([]string, error) {
	db, err := sql.Open("mysql", e.DSN(server))
	if err != nil {
		return nil, errors.NewConnectionError("failed to initialize mysql connection", err).
			WithContext("server_id", server.ID)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, "SHOW DATABASES")
	if err != nil {
		return nil, errors.NewConnectionError("failed to enumerate mysql databases", err).
			WithContext("server_id", server.ID)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewConnectionError("failed to scan database name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewConnectionError("failed to enumerate mysql databases", err)
	}

	return excludeReserved(names, mysqlReserved), nil
}
