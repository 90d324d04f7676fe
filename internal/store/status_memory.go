package store

import (
    "context"
    "sync"
    "time"
)

// MemoryStatus keeps records in process, used when no Redis URL is configured.
type MemoryStatus struct {
    mu      sync.Mutex
    ttl     time.Duration
    now     func() time.Time
    records map[string]memoryEntry
}

type memoryEntry struct {
    rec     Record
    expires time.Time
}

func NewMemoryStatus(ttl time.Duration) *MemoryStatus {
    return &MemoryStatus{ttl: ttl, now: time.Now, records: make(map[string]memoryEntry)}
}

func (s *MemoryStatus) Set(_ context.Context, rec Record) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    now := s.now()
    s.evictLocked(now)
    e := memoryEntry{rec: rec}
    if s.ttl > 0 { e.expires = now.Add(s.ttl) }
    s.records[rec.ID] = e
    return nil
}

func (s *MemoryStatus) Get(_ context.Context, id string) (Record, bool, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    e, ok := s.records[id]
    if !ok { return Record{}, false, nil }
    if !e.expires.IsZero() && !s.now().Before(e.expires) {
        delete(s.records, id)
        return Record{}, false, nil
    }
    return e.rec, true, nil
}

func (s *MemoryStatus) Close() error { return nil }

func (s *MemoryStatus) evictLocked(now time.Time) {
    for id, e := range s.records {
        if !e.expires.IsZero() && !now.Before(e.expires) { delete(s.records, id) }
    }
}
