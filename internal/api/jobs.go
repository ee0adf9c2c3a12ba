// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a queued conversion.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusError      JobStatus = "error"
)

// Finished reports whether the job will not change again.
func (s JobStatus) Finished() bool {
	return s == StatusComplete || s == StatusError
}

// Job is one queued input and its outcome.
type Job struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Profile   string    `json:"profile"`
	Status    JobStatus `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Outputs   []string  `json:"outputs,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (j *Job) clone() Job {
	c := *j
	c.Outputs = append([]string(nil), j.Outputs...)
	return c
}

// DefaultRetention is how many finished jobs a Store keeps.
const DefaultRetention = 200

// Store keeps jobs in memory in creation order. Finished jobs beyond the
// retention limit are dropped oldest first; unfinished jobs are never dropped.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	order     []string
	retention int
	now       func() time.Time
}

// NewStore returns an empty store keeping up to retention finished jobs.
func NewStore(retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		jobs:      make(map[string]*Job),
		retention: retention,
		now:       time.Now,
	}
}

// Create registers a pending job unless maxActive jobs are already pending
// or processing. maxActive 0 means no limit.
func (s *Store) Create(url, profile string, maxActive int) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxActive > 0 && s.active() >= maxActive {
		return Job{}, false
	}
	now := s.now()
	j := &Job{
		ID:        uuid.NewString(),
		URL:       url,
		Profile:   profile,
		Status:    StatusPending,
		Stage:     "queued",
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.jobs[j.ID] = j
	s.order = append(s.order, j.ID)
	return j.clone(), true
}

// Update applies fn to the job under the store lock.
func (s *Store) Update(id string, fn func(*Job)) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	fn(j)
	j.UpdatedAt = s.now()
	if j.Status.Finished() {
		s.prune()
	}
	return j.clone(), true
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// List returns copies of all jobs, oldest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].clone())
	}
	return out
}

// Active counts jobs that have not finished.
func (s *Store) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active()
}

func (s *Store) active() int {
	n := 0
	for _, j := range s.jobs {
		if !j.Status.Finished() {
			n++
		}
	}
	return n
}

// prune drops the oldest finished jobs over the retention limit. Caller
// holds mu.
func (s *Store) prune() {
	finished := 0
	for _, id := range s.order {
		if s.jobs[id].Status.Finished() {
			finished++
		}
	}
	if finished <= s.retention {
		return
	}
	drop := finished - s.retention
	kept := s.order[:0]
	for _, id := range s.order {
		if drop > 0 && s.jobs[id].Status.Finished() {
			delete(s.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}
