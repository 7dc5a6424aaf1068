package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"address-distance/internal/calculator"
	"address-distance/internal/models"
)

var ErrQueueFull = errors.New("run queue is full")

// Calculator is satisfied by *calculator.Pipeline.
type Calculator interface {
	Run(ctx context.Context, req calculator.Request, onProgress calculator.ProgressCallback, logger calculator.LoggerCallback) (*models.Run, error)
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, id string, run *models.Run) error
}

// Runner executes queued jobs one after the other on a single goroutine, so two runs
// never hit the providers at the same time.
type Runner struct {
	calc     Calculator
	store    *Store
	recorder Recorder
	queue    chan *Job
}

func NewRunner(calc Calculator, store *Store, recorder Recorder, queueSize int) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Runner{
		calc:     calc,
		store:    store,
		recorder: recorder,
		queue:    make(chan *Job, queueSize),
	}
}

func (r *Runner) Store() *Store {
	return r.store
}

// Submit registers a job and queues it without blocking.
func (r *Runner) Submit(req calculator.Request) (*Job, error) {
	job := NewJob(req)
	job.Log(fmt.Sprintf("Queued %d destinations from %q (%s)", len(req.Destinations), req.Origin, req.Strategy.Label()))

	select {
	case r.queue <- job:
	default:
		return nil, ErrQueueFull
	}
	r.store.Add(job)

	return job, nil
}

// Start processes the queue until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-r.queue:
				r.process(ctx, job)
			}
		}
	}()
}

func (r *Runner) process(ctx context.Context, job *Job) {
	defer func() {
		if rec := recover(); rec != nil {
			job.fail(fmt.Sprintf("Panic: %v", rec), nil)
		}
	}()

	job.setStatus(StatusRunning)
	start := time.Now()

	run, err := r.calc.Run(ctx, job.Request, job.SetProgress, job.Log)
	if err != nil {
		log.Printf("job %s failed: %v", job.ID, err)
		job.fail(err.Error(), run)
		return
	}

	job.Log(fmt.Sprintf("Calculation finished in %s", time.Since(start).Round(time.Millisecond)))

	if r.recorder != nil {
		if err := r.recorder.Record(ctx, job.ID, run); err != nil {
			log.Printf("job %s: saving run failed: %v", job.ID, err)
			job.Log(fmt.Sprintf("Saving run history failed: %v", err))
		}
	}

	job.finish(run)
}

// Recorders fans a finished run out to several recorders. All are tried.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, id string, run *models.Run) error {
	var errs []error
	for _, r := range rs {
		if err := r.Record(ctx, id, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
