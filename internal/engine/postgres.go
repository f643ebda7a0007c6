package engine

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// postgresReserved lists system and cloud-vendor maintenance databases
var postgresReserved = map[string]struct{}{
	"postgres":          {},
	"template0":         {},
	"template1":         {},
	"rdsadmin":          {},
	"cloudsqladmin":     {},
	"azure_maintenance": {},
}

// PostgresEngine adapts PostgreSQL servers via the pg_dump and psql client
// tools.
type PostgresEngine struct {
	connectTimeout time.Duration
}

// NewPostgresEngine creates a PostgreSQL engine adapter
func NewPostgresEngine(connectTimeout time.Duration) *PostgresEngine {
	return &PostgresEngine{connectTimeout: connectTimeout}
}

func (e *PostgresEngine) DumpExtension() string {
	return "sql"
}

func (e *PostgresEngine) DumpCommand(server *model.DatabaseServer, database, outputPath string) string {
	return fmt.Sprintf(
		"%spg_dump -h %s -p %d -U %s --no-owner --no-privileges %s > %s",
		e.passwordEnv(server),
		shell.Quote(server.Host),
		server.Port,
		shell.Quote(server.Username),
		shell.Quote(database),
		shell.Quote(outputPath),
	)
}

func (e *PostgresEngine) RestoreCommand(server *model.DatabaseServer, database, inputPath string) string {
	return fmt.Sprintf(
		"%spsql -h %s -p %d -U %s --no-psqlrc -v ON_ERROR_STOP=1 %s < %s",
		e.passwordEnv(server),
		shell.Quote(server.Host),
		server.Port,
		shell.Quote(server.Username),
		shell.Quote(database),
		shell.Quote(inputPath),
	)
}

// passwordEnv renders the PGPASSWORD prefix, or nothing for passwordless
// accounts so trust and peer auth still work.
func (e *PostgresEngine) passwordEnv(server *model.DatabaseServer) string {
	if server.Password == "" {
		return ""
	}
	return "PGPASSWORD=" + shell.Quote(server.Password) + " "
}

// DSN builds the driver connection string used by probes and enumeration.
// Probes connect to the maintenance database, never a user one.
func (e *PostgresEngine) DSN(server *model.DatabaseServer) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/postgres?connect_timeout=%d",
		url.QueryEscape(server.Username),
		url.QueryEscape(server.Password),
		server.Host,
		server.Port,
		int(e.connectTimeout.Seconds()),
	)
}

func (e *PostgresEngine) TestConnection(ctx context.Context, server *model.DatabaseServer) error {
	db, err := sql.Open("pgx", e.DSN(server))
	if err != nil {
		return errors.NewConnectionError("failed to initialize postgres connection", err).
			WithContext("server_id", server.ID)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.NewConnectionError("cannot reach postgres server", err).
			WithContext("server_id", server.ID).
			WithContext("host", server.Host)
	}
	return nil
}

func (e *PostgresEngine) ListDatabases(ctx context.Context, server *model.DatabaseServer) ([]string, error) {
	db, err := sql.Open("pgx", e.DSN(server))
	if err != nil {
		return nil, errors.NewConnectionError("failed to initialize postgres connection", err).
			WithContext("server_id", server.ID)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx,
		"SELECT datname FROM pg_database WHERE datistemplate = false ORDER BY datname")
	if err != nil {
		return nil, errors.NewConnectionError("failed to enumerate postgres databases", err).
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
		return nil, errors.NewConnectionError("failed to enumerate postgres databases", err)
	}

	return excludeReserved(names, postgresReserved), nil
}
