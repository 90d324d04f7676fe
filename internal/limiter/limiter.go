package limiter

import (
    "strings"
    "sync"
)

// Slots caps in-flight analyses per inference chain across all sessions.
type Slots struct {
    maxInflight int
    mu          sync.Mutex
    sem         map[string]chan struct{}
}

// New returns a limiter allowing maxInflight concurrent holders per key (default 2).
func New(maxInflight int) *Slots {
    if maxInflight <= 0 { maxInflight = 2 }
    return &Slots{maxInflight: maxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for key.
// Returns a release function and true if allowed; otherwise a no-op release and false.
func (s *Slots) Allow(key string) (func(), bool) {
    key = strings.ToLower(key)
    s.mu.Lock()
    ch, ok := s.sem[key]
    if !ok {
        ch = make(chan struct{}, s.maxInflight)
        s.sem[key] = ch
    }
    s.mu.Unlock()
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, true
    default:
        return func() {}, false
    }
}

// InUse reports the number of held slots for key.
func (s *Slots) InUse(key string) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    if ch, ok := s.sem[strings.ToLower(key)]; ok { return len(ch) }
    return 0
}
