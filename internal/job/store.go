package job

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var ErrNotFound = errors.New("job not found")

const (
	// DefaultTTL bounds how long a terminal job stays pollable.
	DefaultTTL = time.Hour
	// DefaultReapInterval is how often the reclaimer sweeps.
	DefaultReapInterval = 5 * time.Minute
)

// Store is a concurrent in-memory map of live jobs. Terminal jobs older
// than the TTL are reclaimed by a background sweeper; jobs still pending or
// processing are never reclaimed regardless of age.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *Store) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

func (s *Store) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return j, nil
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// StartReclaimer launches the TTL sweeper. It stops when ctx is cancelled;
// in-flight jobs are unaffected by shutdown.
func (s *Store) StartReclaimer(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.reapExpired(time.Now().UTC()); n > 0 {
					slog.Info("reclaimed expired jobs", "count", n)
				}
			}
		}
	}()
}

// reapExpired removes terminal jobs whose completion is strictly older than
// now − TTL and returns how many were removed.
func (s *Store) reapExpired(now time.Time) int {
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, j := range s.jobs {
		if !j.Status().Terminal() {
			continue
		}
		if completed := j.CompletedAt(); !completed.IsZero() && completed.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
