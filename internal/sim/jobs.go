package sim

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/events"
	"github.com/michaelayoade/dotmac-isp-sub003/pkg/logging"
)

const (
	jobStatusRunning   = "running"
	jobStatusPaused    = "paused"
	jobStatusCanceled  = "canceled"
	jobStatusCompleted = "completed"
)

type jobState struct {
	id       string
	status   string
	progress float64
	step     string
}

// JobStore simulates provisioning jobs: each subscribed job advances while
// running and honors cancel/pause/resume control frames.
type JobStore struct {
	logger   logging.Logger
	stepSize float64

	mu   sync.Mutex
	jobs map[string]*jobState
	subs map[string]map[chan []byte]struct{}
}

// NewJobStore creates an empty store. stepSize is the progress gained per
// tick for a running job.
func NewJobStore(logger logging.Logger, stepSize float64) *JobStore {
	if stepSize <= 0 {
		stepSize = 0.05
	}
	return &JobStore{
		logger:   logger,
		stepSize: stepSize,
		jobs:     make(map[string]*jobState),
		subs:     make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe attaches a frame channel to one job, creating the job in the
// running state on first contact.
func (s *JobStore) Subscribe(jobID string) (chan []byte, func()) {
	sub := make(chan []byte, 16)

	s.mu.Lock()
	if s.jobs[jobID] == nil {
		s.jobs[jobID] = &jobState{id: jobID, status: jobStatusRunning, step: "provisioning"}
	}
	if s.subs[jobID] == nil {
		s.subs[jobID] = make(map[chan []byte]struct{})
	}
	s.subs[jobID][sub] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs[jobID], sub)
			s.mu.Unlock()
		})
	}
}

// Apply honors one control frame against a job. Unknown jobs and controls
// are ignored.
func (s *JobStore) Apply(jobID, control string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.jobs[jobID]
	if job == nil {
		return
	}

	switch control {
	case events.ControlCancelJob:
		if job.status == jobStatusRunning || job.status == jobStatusPaused {
			job.status = jobStatusCanceled
			s.publishLocked(job, events.TypeJobFailed)
		}
	case events.ControlPauseJob:
		if job.status == jobStatusRunning {
			job.status = jobStatusPaused
			s.publishLocked(job, events.TypeJobProgress)
		}
	case events.ControlResumeJob:
		if job.status == jobStatusPaused {
			job.status = jobStatusRunning
			s.publishLocked(job, events.TypeJobProgress)
		}
	default:
		s.logger.WithField("control", control).Debug("Ignoring unknown job control")
	}
}

// Run advances running jobs on each tick until ctx is done.
func (s *JobStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *JobStore) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.status != jobStatusRunning {
			continue
		}
		job.progress += s.stepSize
		if job.progress >= 1 {
			job.progress = 1
			job.status = jobStatusCompleted
			s.publishLocked(job, events.TypeJobCompleted)
			continue
		}
		s.publishLocked(job, events.TypeJobProgress)
	}
}

func (s *JobStore) publishLocked(job *jobState, eventType string) {
	payload := events.JobProgressPayload{
		Event:    events.Event{EventType: eventType, Timestamp: time.Now().UTC()},
		JobID:    job.id,
		Status:   job.status,
		Progress: job.progress,
		Step:     job.step,
	}
	frame, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal job event")
		return
	}
	for sub := range s.subs[job.id] {
		select {
		case sub <- frame:
		default:
		}
	}
}
