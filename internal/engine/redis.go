package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dbvault/internal/errors"
	"dbvault/internal/model"
	"dbvault/internal/shell"
)

// RedisEngine adapts Redis-like key-value servers via the redis-cli tool.
// Dumps fetch an RDB snapshot over the replication protocol. Restores only
// work against servers whose RDB path is reachable from this host: the dump
// is swapped in and the server is shut down unsaved so its supervisor
// restarts it from the replaced file.
type RedisEngine struct {
	executor       CommandRunner
	connectTimeout time.Duration
}

// NewRedisEngine creates a Redis engine adapter
func NewRedisEngine(executor CommandRunner, connectTimeout time.Duration) *RedisEngine {
	return &RedisEngine{executor: executor, connectTimeout: connectTimeout}
}

func (e *RedisEngine) DumpExtension() string {
	return "rdb"
}

func (e *RedisEngine) DumpCommand(server *model.DatabaseServer, database, outputPath string) string {
	return fmt.Sprintf("%sredis-cli -h %s -p %d --rdb %s",
		e.authPrefix(server),
		shell.Quote(server.Host),
		server.Port,
		shell.Quote(outputPath),
	)
}

func (e *RedisEngine) RestoreCommand(server *model.DatabaseServer, database, inputPath string) string {
	return fmt.Sprintf("cp %s %s && %sredis-cli -h %s -p %d SHUTDOWN NOSAVE",
		shell.Quote(inputPath),
		shell.Quote(server.FilePath),
		e.authPrefix(server),
		shell.Quote(server.Host),
		server.Port,
	)
}

func (e *RedisEngine) TestConnection(ctx context.Context, server *model.DatabaseServer) error {
	ctx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()

	command := fmt.Sprintf("%sredis-cli -h %s -p %d ping",
		e.authPrefix(server), shell.Quote(server.Host), server.Port)

	out, err := e.executor.Run(ctx, command)
	if err != nil {
		return errors.NewConnectionError("cannot reach redis server", err).
			WithContext("server_id", server.ID).
			WithContext("host", server.Host)
	}
	if !strings.Contains(out.Stdout, "PONG") {
		return errors.NewConnectionError("redis server did not answer PONG", nil).
			WithContext("server_id", server.ID).
			WithContext("response", strings.TrimSpace(out.Stdout))
	}
	return nil
}

func (e *RedisEngine) ListDatabases(ctx context.Context, server *model.DatabaseServer) ([]string, error) {
	return nil, errors.NewValidationError(
		"redis servers are backed up as a single snapshot; enumeration is not supported", nil).
		WithContext("server_id", server.ID)
}

// authPrefix passes the password through the environment so it never shows
// up in the process list
func (e *RedisEngine) authPrefix(server *model.DatabaseServer) string {
	if server.Password == "" {
		return ""
	}
	return "REDISCLI_AUTH=" + shell.Quote(server.Password) + " "
}
