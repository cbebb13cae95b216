package jobstore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process fake implementing Store, used in unit
// tests per spec.md §9's substitutability requirement.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	running  map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		running: make(map[string]int),
	}
}

func (m *MemoryStore) Create(ctx context.Context, jid, sid, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.records[jid] = &Record{
		JobID: jid, SubmissionID: sid, UserID: uid,
		Status: Pending, CreatedAt: now, UpdatedAt: now,
	}
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, jid string, status Status, runID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jid]
	if !ok {
		return nil
	}
	prev := rec.Status
	rec.Status = status
	rec.UpdatedAt = time.Now().UTC()
	if runID != "" {
		rec.RunID = runID
	}
	if errMsg != "" {
		rec.Error = errMsg
	}

	switch {
	case prev == Running && status != Running:
		m.running[rec.UserID]--
	case prev != Running && status == Running:
		m.running[rec.UserID]++
	}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jid string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jid]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) CountRunning(ctx context.Context, uid string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.running[uid]; ok {
		return n, nil
	}
	count := 0
	for _, rec := range m.records {
		if rec.UserID == uid && rec.Status == Running {
			count++
		}
	}
	m.running[uid] = count
	return count, nil
}
