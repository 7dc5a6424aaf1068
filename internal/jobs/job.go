package jobs

import (
	"fmt"
	"sync"
	"time"

	"address-distance/internal/calculator"
	"address-distance/internal/models"
	"address-distance/internal/report"

	"github.com/google/uuid"
)

type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusError   JobStatus = "error"
)

type Job struct {
	ID        string
	Request   calculator.Request
	CreatedAt time.Time

	mu       sync.RWMutex
	status   JobStatus
	logs     []string
	progress int // 0-100
	run      *models.Run
	err      string
	version  int
}

func NewJob(req calculator.Request) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Request:   req,
		CreatedAt: time.Now(),
		status:    StatusQueued,
		logs:      []string{},
	}
}

func (j *Job) appendLog(msg string) {
	ts := time.Now().Format("15:04:05")
	j.logs = append(j.logs, fmt.Sprintf("[%s] %s", ts, msg))
	j.version++
}

func (j *Job) Log(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.appendLog(msg)
}

func (j *Job) SetProgress(current, total int, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if total > 0 {
		j.progress = int(float64(current) / float64(total) * 100)
	}
	if msg != "" {
		j.appendLog(msg)
	}
	j.version++
}

func (j *Job) setStatus(s JobStatus) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = s
	j.version++
}

func (j *Job) finish(run *models.Run) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusDone
	j.run = run
	j.progress = 100
	j.appendLog("Run completed.")
}

// fail records a run-aborting error. A partial run, if any, is kept.
func (j *Job) fail(msg string, run *models.Run) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = StatusError
	j.err = msg
	j.run = run
	j.logs = append(j.logs, "[ERROR] "+msg)
	j.version++
}

func (j *Job) Status() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Run returns the finished run, nil while the job is pending or when it failed early.
func (j *Job) Run() *models.Run {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.run
}

// Version increases on every observable change.
func (j *Job) Version() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.version
}

type Snapshot struct {
	ID        string                  `json:"job_id"`
	Status    JobStatus               `json:"status"`
	Progress  int                     `json:"progress"`
	Origin    string                  `json:"origin"`
	Strategy  models.DistanceStrategy `json:"strategy"`
	Total     int                     `json:"total"`
	Error     string                  `json:"error,omitempty"`
	Summary   *report.Summary         `json:"summary,omitempty"`
	Run       *models.Run             `json:"run,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	Version   int                     `json:"version"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Snapshot{
		ID:        j.ID,
		Status:    j.status,
		Progress:  j.progress,
		Origin:    j.Request.Origin,
		Strategy:  j.Request.Strategy,
		Total:     len(j.Request.Destinations),
		Error:     j.err,
		Run:       j.run,
		CreatedAt: j.CreatedAt,
		Version:   j.version,
	}
	if j.run != nil {
		summary := report.Summarize(j.run.Records)
		s.Summary = &summary
	}

	return s
}

func (j *Job) Logs() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	logs := make([]string, len(j.logs))
	copy(logs, j.logs)
	return logs
}

// Store keeps every job of the process in memory.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

func (s *Store) Add(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

func (s *Store) Get(id string) *Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.jobs[id]
}
