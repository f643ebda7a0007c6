// Package engine provides the per-database-technology adapters: dump and
// restore command builders, connectivity probes and database enumeration for
// MySQL-family, PostgreSQL, SQLite and Redis servers.
package engine

import (
	"context"
	"fmt"
	"time"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// DefaultConnectTimeout bounds connectivity probes and enumeration queries
const DefaultConnectTimeout = 30 * time.Second

// Engine is the adapter contract for one database technology
type Engine interface {
	// DumpCommand builds the shell command line that dumps database into
	// outputPath. All interpolated values are shell-quoted.
	DumpCommand(server *model.DatabaseServer, database, outputPath string) string

	// RestoreCommand builds the shell command line that restores inputPath
	// into database on the target server.
	RestoreCommand(server *model.DatabaseServer, database, inputPath string) string

	// TestConnection is a lightweight connectivity probe, distinct from a
	// full dump. Used for pre-flight checks and the admin "test
	// connection" feature.
	TestConnection(ctx context.Context, server *model.DatabaseServer) error

	// ListDatabases enumerates user databases on multi-database servers,
	// excluding engine-reserved names. Single-database engines return a
	// validation error.
	ListDatabases(ctx context.Context, server *model.DatabaseServer) ([]string, error)

	// DumpExtension returns the artifact extension for this engine's
	// dumps, without the dot.
	DumpExtension() string
}

// Registry resolves database type tags to engine adapters, built once at
// startup from configuration.
type Registry struct {
	engines map[model.DatabaseType]Engine
}

// RegistryDeps carries the collaborators shared by all adapters
type RegistryDeps struct {
	Executor       CommandRunner
	ConnectTimeout time.Duration
}

// CommandRunner is the subset of the shell executor used by adapters
type CommandRunner interface {
	Run(ctx context.Context, commandLine string) (*shell.Output, error)
}

// NewRegistry creates a registry with all supported engine adapters
func NewRegistry(deps RegistryDeps) *Registry {
	timeout := deps.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}

	return &Registry{
		engines: map[model.DatabaseType]Engine{
			model.DatabaseTypeMySQL:    NewMySQLEngine(timeout),
			model.DatabaseTypePostgres: NewPostgresEngine(timeout),
			model.DatabaseTypeSQLite:   NewSQLiteEngine(),
			model.DatabaseTypeRedis:    NewRedisEngine(deps.Executor, timeout),
		},
	}
}

// ForType returns the adapter for a database type tag, failing fast on
// unknown tags.
func (r *Registry) ForType(t model.DatabaseType) (Engine, error) {
	engine, ok := r.engines[t]
	if !ok {
		return nil, errors.NewConfigurationError(
			fmt.Sprintf("unsupported database type: %s", t), nil)
	}
	return engine, nil
}

// SupportedTypes returns the registered database types
func (r *Registry) SupportedTypes() []model.DatabaseType {
	types := make([]model.DatabaseType, 0, len(r.engines))
	for t := range r.engines {
		types = append(types, t)
	}
	return types
}

// excludeReserved filters engine/system-reserved database names
func excludeReserved(names []string, reserved map[string]struct{}) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if _, isReserved := reserved[name]; !isReserved {
			out = append(out, name)
		}
	}
	return out
}
