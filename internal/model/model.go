// Package model defines the records the engine operates on: database
// servers, storage volumes, backup jobs, snapshots and restores, plus the
// store interfaces the admin layer implements. The engine only mutates the
// state-transition fields it owns.
package model

import (
	"time"
)

// DatabaseType tags a database server's engine technology
type DatabaseType string

const (
	DatabaseTypeMySQL    DatabaseType = "mysql"
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeSQLite   DatabaseType = "sqlite"
	DatabaseTypeRedis    DatabaseType = "redis"
)

// VolumeType tags a storage destination technology
type VolumeType string

const (
	VolumeTypeLocal VolumeType = "local"
	VolumeTypeS3    VolumeType = "s3"
	VolumeTypeGCS   VolumeType = "gcs"
	VolumeTypeSFTP  VolumeType = "sftp"
	VolumeTypeFTP   VolumeType = "ftp"
)

// CompressionType tags a snapshot's compression kind
type CompressionType string

const (
	CompressionGzip     CompressionType = "gzip"
	CompressionZstd     CompressionType = "zstd"
	CompressionLZ4      CompressionType = "lz4"
	CompressionSevenZip CompressionType = "sevenzip"
)

// JobKind distinguishes backup from restore jobs
type JobKind string

const (
	JobKindBackup  JobKind = "backup"
	JobKindRestore JobKind = "restore"
)

// JobStatus is the execution lifecycle of a backup job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// TriggerMethod records what started a backup
type TriggerMethod string

const (
	TriggerManual    TriggerMethod = "manual"
	TriggerScheduled TriggerMethod = "scheduled"
)

// DatabaseServer is a configured source database connection. Created and
// edited by the admin layer; read-only to the engine. The password inside
// Config arrives decrypted at the engine boundary.
type DatabaseServer struct {
	ID           string
	Name         string
	Type         DatabaseType
	Host         string
	Port         int
	Username     string
	Password     string
	Databases    []string // logical database names; ignored when AllDatabases
	AllDatabases bool     // never set for embedded-file engines
	FilePath     string   // sqlite only
}

// Volume is a configured storage destination. Config carries type-specific
// keys (path, bucket, prefix, host, credentials); sensitive keys are
// encrypted at rest by the secrets codec.
type Volume struct {
	ID     string
	Name   string
	Type   VolumeType
	Config map[string]string
}

// BackupJob tracks the execution lifecycle of one backup or restore.
// Exactly one of SnapshotID/RestoreID is set.
type BackupJob struct {
	ID            string
	Kind          JobKind
	Status        JobStatus
	SnapshotID    string
	RestoreID     string
	CorrelationID string
	StartedAt     *time.Time
	FinishedAt    *time.Time
	ErrorMessage  string
}

// MarkQueued records the external queue correlation id
func (j *BackupJob) MarkQueued(correlationID string) {
	j.Status = JobStatusQueued
	j.CorrelationID = correlationID
}

// MarkRunning transitions the job to running
func (j *BackupJob) MarkRunning(now time.Time) {
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed
func (j *BackupJob) MarkCompleted(now time.Time) {
	j.Status = JobStatusCompleted
	j.FinishedAt = &now
}

// MarkFailed transitions the job to failed with the operator-facing message
func (j *BackupJob) MarkFailed(now time.Time, message string) {
	j.Status = JobStatusFailed
	j.FinishedAt = &now
	j.ErrorMessage = message
}

// Snapshot is the output artifact record of a backup attempt. Created as a
// placeholder before the dump starts and finalized after upload. Database
// type and host are denormalized so the record outlives server edits.
type Snapshot struct {
	ID           string
	ServerID     string
	VolumeID     string
	JobID        string
	DatabaseName string
	DatabaseType DatabaseType
	DatabaseHost string
	Trigger      TriggerMethod

	// Finalized after compression and upload
	Filename    string
	FileSize    int64
	Checksum    string
	Compression CompressionType
	CompletedAt *time.Time

	// Integrity verification state
	FileExists     *bool
	FileVerifiedAt *time.Time
}

// Finalize applies the artifact metadata of a successful backup
func (s *Snapshot) Finalize(filename string, size int64, checksum string, compression CompressionType, now time.Time) {
	s.Filename = filename
	s.FileSize = size
	s.Checksum = checksum
	s.Compression = compression
	s.CompletedAt = &now
	exists := true
	s.FileExists = &exists
	s.FileVerifiedAt = &now
}

// Restore describes replaying a snapshot into a target server. Immutable
// once created; a retry means a new Restore record.
type Restore struct {
	ID             string
	SnapshotID     string
	TargetServerID string
	DatabaseName   string
	JobID          string
	CreatedAt      time.Time
}

// Store interfaces. Persistence belongs to the admin layer; the engine
// reads records and writes back only the fields it owns.

// JobStore persists backup job state transitions
type JobStore interface {
	GetJob(id string) (*BackupJob, error)
	SaveJob(job *BackupJob) error
}

// SnapshotStore reads snapshots and persists artifact/verification metadata
type SnapshotStore interface {
	GetSnapshot(id string) (*Snapshot, error)
	SaveSnapshot(snapshot *Snapshot) error
	ListCompleted() ([]*Snapshot, error)
	DeleteSnapshot(id string) error
}

// RestoreStore reads restore requests
type RestoreStore interface {
	GetRestore(id string) (*Restore, error)
	SaveRestore(restore *Restore) error
}

// ServerStore reads database server descriptors
type ServerStore interface {
	GetServer(id string) (*DatabaseServer, error)
}

// VolumeStore reads volume descriptors
type VolumeStore interface {
	GetVolume(id string) (*Volume, error)
}
