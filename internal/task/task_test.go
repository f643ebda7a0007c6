package task

import (
	"context"
	"io"
	"os"
	"regexp"
	"sync"
	"time"

	"dbvault/internal/compress"
	"dbvault/internal/logging"
	"dbvault/internal/model"
	"dbvault/internal/secrets"
	"dbvault/internal/shell"
	"dbvault/internal/storage"
)

// fakeSettings satisfies config.Settings with test-friendly values
type fakeSettings struct {
	tempRoot string
	lockDir  string
}

func (s *fakeSettings) TempRoot() string               { return s.tempRoot }
func (s *fakeSettings) MasterKey() string              { return "test-master-key" }
func (s *fakeSettings) LockDir() string                { return s.lockDir }
func (s *fakeSettings) BackupTimeout() time.Duration   { return time.Minute }
func (s *fakeSettings) RestoreTimeout() time.Duration  { return time.Minute }
func (s *fakeSettings) VerifyTimeout() time.Duration   { return time.Minute }
func (s *fakeSettings) ConnectTimeout() time.Duration  { return time.Second }
func (s *fakeSettings) BackupAttempts() int            { return 2 }
func (s *fakeSettings) RetryDelay() time.Duration      { return time.Millisecond }
func (s *fakeSettings) LogLevel() string               { return "quiet" }
func (s *fakeSettings) LogFormat() string              { return "text" }

// outputRedirect extracts the shell-quoted dump target from a command line
var outputRedirect = regexp.MustCompile(`> '([^']+)'`)

// fakeRunner stands in for the shell executor. When a dump command redirects
// into a file, the runner writes fixture content there so the pipeline has
// something to compress and upload.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	err      error
	dumpData string
}

func (r *fakeRunner) Run(_ context.Context, commandLine string) (*shell.Output, error) {
	r.mu.Lock()
	r.commands = append(r.commands, commandLine)
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	if r.dumpData != "" {
		if m := outputRedirect.FindStringSubmatch(commandLine); m != nil {
			if err := writeFileForTest(m[1], r.dumpData); err != nil {
				return nil, err
			}
		}
	}
	return &shell.Output{}, nil
}

func (r *fakeRunner) commandCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

func (r *fakeRunner) lastCommand() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return ""
	}
	return r.commands[len(r.commands)-1]
}

// fakeNotifier records notification calls
type fakeNotifier struct {
	mu             sync.Mutex
	backupFailed   int
	restoreFailed  int
	missingBatches [][]*model.Snapshot
}

func (n *fakeNotifier) BackupFailed(*model.Snapshot, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.backupFailed++
}

func (n *fakeNotifier) RestoreFailed(*model.Restore, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restoreFailed++
}

func (n *fakeNotifier) SnapshotsMissing(snapshots []*model.Snapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.missingBatches = append(n.missingBatches, snapshots)
}

func writeFileForTest(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

func quietLogger() *logging.Logger {
	logger, _ := logging.NewLogger(logging.Config{Level: logging.LogLevelQuiet, Output: io.Discard})
	return logger
}

func testStorageFactory() *storage.Factory {
	codec, _ := secrets.NewCodec("test-master-key")
	return storage.NewFactory(codec)
}

func testCompressFactory() *compress.Factory {
	return compress.NewFactory(shell.NewExecutor())
}
