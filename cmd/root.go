// Package cmd wires the engine together behind a cobra CLI: configuration,
// logging, the shell executor, engine and storage factories and the worker
// queue the orchestrators run on.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dbvault/internal/compress"
	"dbvault/internal/config"
	"dbvault/internal/engine"
	"dbvault/internal/errors"
	"dbvault/internal/logging"
	"dbvault/internal/model"
	"dbvault/internal/secrets"
	"dbvault/internal/shell"
	"dbvault/internal/storage"
	"dbvault/internal/task"
	"dbvault/internal/workdir"
)

var cfgFile string

// CLI flag variables
var (
	// Source server flags
	serverType   string
	serverHost   string
	serverPort   int
	serverUser   string
	serverPass   string
	serverFile   string
	databases    []string
	allDatabases bool

	// Volume flags
	volumeType   string
	volumeConfig map[string]string

	// Operation flags
	compressionKind  string
	compressionLevel int
	archivePassword  string
	verbose          bool
	quiet            bool
	logFile          string
	logFormat        string
)

// Version information set by main
var (
	versionString = "dev"
	buildTime     = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dbvault",
	Short: "Back up, restore and verify database snapshots",
	Long: `dbvault dumps databases (MySQL, PostgreSQL, SQLite, Redis), compresses
the dumps and ships them to a storage volume (local disk, S3, GCS, SFTP or
FTP). Stored snapshots can be restored into a target server and periodically
verified against their volumes.

Examples:
  # Back up one MySQL database to local disk
  dbvault backup --type=mysql --host=db.internal --user=backup --password=secret \
                 --database=appdb --volume-type=local --volume=path=/var/backups

  # Back up every database on a server to S3 with zstd compression
  dbvault backup --type=postgres --host=pg.internal --user=backup --password=secret \
                 --all-databases --compression=zstd \
                 --volume-type=s3 --volume=region=eu-west-1 --volume=bucket=backups \
                 --volume=access_key=AK... --volume=secret_key=...

  # Restore a stored artifact into a fresh database
  dbvault restore --type=mysql --host=db.internal --user=admin --password=secret \
                  --artifact=appdb-20260901T120000Z-0f8fad5b.sql.gz \
                  --destination=appdb_restored \
                  --volume-type=local --volume=path=/var/backups

  # Check a stored artifact still exists on its volume
  dbvault verify --artifact=appdb-20260901T120000Z-0f8fad5b.sql.gz \
                 --volume-type=local --volume=path=/var/backups`,
	SilenceUsage: true,
}

// SetVersionInfo records build metadata for the version command
func SetVersionInfo(version, built string) {
	versionString = version
	buildTime = built
	rootCmd.Version = fmt.Sprintf("%s (built %s)", version, built)
}

// Execute runs the CLI. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.UserMessage(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/dbvault/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file in addition to stdout")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// runtime bundles the wired engine components behind the CLI commands
type runtime struct {
	cfg         *config.Config
	logger      *logging.Logger
	store       *model.MemoryStore
	executor    *shell.Executor
	engines     *engine.Registry
	storage     *storage.Factory
	compressors *compress.Factory
	notifier    task.Notifier
	codec       *secrets.Codec
}

// buildRuntime loads configuration and constructs the component graph. Stale
// working directories from crashed runs are swept before any job starts.
func buildRuntime() (*runtime, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("/etc/dbvault/config.yaml"); err == nil {
			path = "/etc/dbvault/config.yaml"
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level := logging.LogLevel(cfg.LogLevel())
	if verbose {
		level = logging.LogLevelVerbose
	}
	if quiet {
		level = logging.LogLevelQuiet
	}
	format := cfg.LogFormat()
	if logFormat != "" {
		format = logFormat
	}
	logger, err := logging.NewLogger(logging.Config{Level: level, Format: format, LogFile: logFile})
	if err != nil {
		return nil, err
	}

	masterKey := cfg.MasterKey()
	if masterKey == "" {
		// Local single-user invocations without encrypted records at rest.
		masterKey = "dbvault-local"
	}
	codec, err := secrets.NewCodec(masterKey)
	if err != nil {
		return nil, err
	}

	if removed, err := workdir.RemoveStale(cfg.TempRoot(), cfg.BackupTimeout()); err != nil {
		logger.Warnf("failed to sweep stale work directories: %v", err)
	} else if removed > 0 {
		logger.Infof("removed %d stale work directories", removed)
	}

	executor := shell.NewExecutor()
	return &runtime{
		cfg:         cfg,
		logger:      logger,
		store:       model.NewMemoryStore(),
		executor:    executor,
		engines:     engine.NewRegistry(engine.RegistryDeps{Executor: executor, ConnectTimeout: cfg.ConnectTimeout()}),
		storage:     storage.NewFactory(codec),
		compressors: compress.NewFactory(executor),
		notifier:    task.NewLogNotifier(logger),
		codec:       codec,
	}, nil
}

// registerServer builds a DatabaseServer from the CLI flags and stores it
func (r *runtime) registerServer() (*model.DatabaseServer, error) {
	t := model.DatabaseType(serverType)
	if _, err := r.engines.ForType(t); err != nil {
		return nil, err
	}

	server := &model.DatabaseServer{
		ID:           "cli-server",
		Name:         serverHost,
		Type:         t,
		Host:         serverHost,
		Port:         defaultPort(t, serverPort),
		Username:     serverUser,
		Password:     serverPass,
		Databases:    databases,
		AllDatabases: allDatabases,
		FilePath:     serverFile,
	}
	if server.Name == "" {
		server.Name = string(t)
	}
	r.store.PutServer(server)
	return server, nil
}

// registerVolume builds a Volume from the CLI flags and stores it
func (r *runtime) registerVolume() (*model.Volume, error) {
	if volumeType == "" {
		return nil, errors.NewConfigurationError("--volume-type is required", nil)
	}
	// Flag values arrive in plaintext; volume records hold their sensitive
	// fields encrypted, and the storage factory decrypts on read.
	cfg, err := r.codec.EncryptFields("volume", volumeConfig)
	if err != nil {
		return nil, err
	}
	volume := &model.Volume{
		ID:     "cli-volume",
		Name:   volumeType,
		Type:   model.VolumeType(volumeType),
		Config: cfg,
	}
	r.store.PutVolume(volume)
	return volume, nil
}

// addServerFlags registers the source/target server flag set on a command
func addServerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverType, "type", "", "database type (mysql, postgres, sqlite, redis)")
	cmd.Flags().StringVar(&serverHost, "host", "", "database host")
	cmd.Flags().IntVar(&serverPort, "port", 0, "database port (defaults per type)")
	cmd.Flags().StringVar(&serverUser, "user", "", "database username")
	cmd.Flags().StringVar(&serverPass, "password", "", "database password")
	cmd.Flags().StringVar(&serverFile, "file", "", "database file path (sqlite) or RDB path (redis)")
	cmd.MarkFlagRequired("type")
}

// addVolumeFlags registers the storage volume flag set on a command
func addVolumeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&volumeType, "volume-type", "", "volume type (local, s3, gcs, sftp, ftp)")
	cmd.Flags().StringToStringVar(&volumeConfig, "volume", nil, "volume config key=value (repeatable)")
	cmd.MarkFlagRequired("volume-type")
}

// defaultPort fills in the engine's conventional port when none was given
func defaultPort(t model.DatabaseType, port int) int {
	if port != 0 {
		return port
	}
	switch t {
	case model.DatabaseTypeMySQL:
		return 3306
	case model.DatabaseTypePostgres:
		return 5432
	case model.DatabaseTypeRedis:
		return 6379
	default:
		return 0
	}
}
