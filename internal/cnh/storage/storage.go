package storage

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cnhflow/cnhflow-backend/internal/cnh/domain"
)

// TempStorage keeps extraction jobs in memory. Documents are never stored
// here, only results, and jobs expire after the TTL.
type TempStorage struct {
	mu   sync.RWMutex
	jobs map[string]*domain.ExtractionJob
	ttl  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

// NewTempStorage creates a new in-memory job store with the given TTL
func NewTempStorage(ttl time.Duration) *TempStorage {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &TempStorage{
		jobs: make(map[string]*domain.ExtractionJob),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// GenerateJobID creates a random job ID
func GenerateJobID() string {
	return uuid.NewString()
}

// StoreJob stores an extraction job
func (s *TempStorage) StoreJob(job *domain.ExtractionJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.JobID] = job
}

// GetJob returns a copy of the job so callers never race with updates
func (s *TempStorage) GetJob(jobID string) *domain.ExtractionJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *job
	return &cp
}

// UpdateJob updates an existing extraction job
func (s *TempStorage) UpdateJob(jobID string, update func(*domain.ExtractionJob)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if ok {
		update(job)
	}
	return ok
}

// DeleteJob removes a job from storage
func (s *TempStorage) DeleteJob(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

// Len returns the number of stored jobs
func (s *TempStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Close stops the cleanup loop
func (s *TempStorage) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// ZeroBytes overwrites a byte slice with zeros so document bytes do not
// linger in memory after processing.
func ZeroBytes(b []byte) {
	clear(b)
}

// cleanupLoop periodically removes expired jobs
func (s *TempStorage) cleanupLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup(time.Now())
		case <-s.stop:
			return
		}
	}
}

// Cleanup drops jobs created before now minus the TTL
func (s *TempStorage) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, job := range s.jobs {
		if job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
