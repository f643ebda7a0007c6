package model

import (
	"fmt"
	"sync"
)

// MemoryStore is an in-memory implementation of every store interface, used
// by the CLI wiring and tests. The admin layer replaces it in production.
type MemoryStore struct {
	mu        sync.RWMutex
	jobs      map[string]*BackupJob
	snapshots map[string]*Snapshot
	restores  map[string]*Restore
	servers   map[string]*DatabaseServer
	volumes   map[string]*Volume
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*BackupJob),
		snapshots: make(map[string]*Snapshot),
		restores:  make(map[string]*Restore),
		servers:   make(map[string]*DatabaseServer),
		volumes:   make(map[string]*Volume),
	}
}

func (m *MemoryStore) GetJob(id string) (*BackupJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (m *MemoryStore) SaveJob(job *BackupJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *MemoryStore) GetSnapshot(id string) (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot, ok := m.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("snapshot %s not found", id)
	}
	copied := *snapshot
	return &copied, nil
}

func (m *MemoryStore) SaveSnapshot(snapshot *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *snapshot
	m.snapshots[snapshot.ID] = &copied
	return nil
}

func (m *MemoryStore) ListCompleted() ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Snapshot
	for _, s := range m.snapshots {
		if s.CompletedAt != nil && s.Filename != "" {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteSnapshot(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[id]; !ok {
		return fmt.Errorf("snapshot %s not found", id)
	}
	delete(m.snapshots, id)
	return nil
}

func (m *MemoryStore) GetRestore(id string) (*Restore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	restore, ok := m.restores[id]
	if !ok {
		return nil, fmt.Errorf("restore %s not found", id)
	}
	copied := *restore
	return &copied, nil
}

func (m *MemoryStore) SaveRestore(restore *Restore) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *restore
	m.restores[restore.ID] = &copied
	return nil
}

func (m *MemoryStore) GetServer(id string) (*DatabaseServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	server, ok := m.servers[id]
	if !ok {
		return nil, fmt.Errorf("server %s not found", id)
	}
	copied := *server
	return &copied, nil
}

// PutServer registers a server descriptor
func (m *MemoryStore) PutServer(server *DatabaseServer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *server
	m.servers[server.ID] = &copied
}

func (m *MemoryStore) GetVolume(id string) (*Volume, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	volume, ok := m.volumes[id]
	if !ok {
		return nil, fmt.Errorf("volume %s not found", id)
	}
	copied := *volume
	return &copied, nil
}

// PutVolume registers a volume descriptor
func (m *MemoryStore) PutVolume(volume *Volume) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *volume
	m.volumes[volume.ID] = &copied
}
