// Package workers runs background jobs off the trading loop. Replay runs
// over recorded sessions are the main user: they can take minutes and
// must never block a live tick.
package workers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// JobRecord is the queryable state of a submitted job.
type JobRecord struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	FinishedAt  *time.Time `json:"finishedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Config sizes the pool.
type Config struct {
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns pool defaults sized for replay jobs.
func DefaultConfig() Config {
	return Config{
		Workers:         2,
		QueueSize:       32,
		JobTimeout:      5 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

type job struct {
	id  string
	run func(ctx context.Context) error
}

// Stats is a counters snapshot.
type Stats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Recovered int64 `json:"recovered"`
}

// Pool runs submitted jobs on a fixed set of worker goroutines with
// per-job timeouts and panic recovery.
type Pool struct {
	logger *zap.Logger
	config Config

	queue chan job

	mu      sync.RWMutex
	records map[string]*JobRecord

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	recovered atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates and starts a worker pool.
func NewPool(logger *zap.Logger, config Config) *Pool {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 32
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger:  logger.Named("workers"),
		config:  config,
		queue:   make(chan job, config.QueueSize),
		records: make(map[string]*JobRecord),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a job. It fails when the queue is full or the ID is
// already in use.
func (p *Pool) Submit(id string, run func(ctx context.Context) error) error {
	p.mu.Lock()
	if _, exists := p.records[id]; exists {
		p.mu.Unlock()
		return fmt.Errorf("job %s already submitted", id)
	}
	p.records[id] = &JobRecord{ID: id, Status: StatusQueued, SubmittedAt: time.Now()}
	p.mu.Unlock()

	select {
	case p.queue <- job{id: id, run: run}:
		p.submitted.Add(1)
		return nil
	default:
		p.mu.Lock()
		delete(p.records, id)
		p.mu.Unlock()
		return fmt.Errorf("job queue full (%d)", p.config.QueueSize)
	}
}

// Job returns the record for a submitted job.
func (p *Pool) Job(id string) (JobRecord, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, ok := p.records[id]
	if !ok {
		return JobRecord{}, false
	}
	return *rec, true
}

// Jobs lists all job records.
func (p *Pool) Jobs() []JobRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]JobRecord, 0, len(p.records))
	for _, rec := range p.records {
		out = append(out, *rec)
	}
	return out
}

// GetStats returns the pool counters.
func (p *Pool) GetStats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Recovered: p.recovered.Load(),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.queue:
			p.execute(j)
		}
	}
}

func (p *Pool) execute(j job) {
	now := time.Now()
	p.setStatus(j.id, func(rec *JobRecord) {
		rec.Status = StatusRunning
		rec.StartedAt = &now
	})

	ctx := p.ctx
	var cancel context.CancelFunc
	if p.config.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.config.JobTimeout)
		defer cancel()
	}

	err := p.runRecovered(ctx, j)
	finished := time.Now()

	if err != nil {
		p.failed.Add(1)
		p.setStatus(j.id, func(rec *JobRecord) {
			rec.Status = StatusFailed
			rec.FinishedAt = &finished
			rec.Error = err.Error()
		})
		p.logger.Warn("job failed", zap.String("job_id", j.id), zap.Error(err))
		return
	}

	p.completed.Add(1)
	p.setStatus(j.id, func(rec *JobRecord) {
		rec.Status = StatusDone
		rec.FinishedAt = &finished
	})
	p.logger.Info("job done",
		zap.String("job_id", j.id),
		zap.Duration("elapsed", finished.Sub(now)))
}

func (p *Pool) runRecovered(ctx context.Context, j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.recovered.Add(1)
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return j.run(ctx)
}

func (p *Pool) setStatus(id string, mutate func(*JobRecord)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[id]; ok {
		mutate(rec)
	}
}

// Stop drains the workers. Queued jobs that have not started are
// abandoned.
func (p *Pool) Stop() {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("worker pool stopped",
			zap.Int64("completed", p.completed.Load()),
			zap.Int64("failed", p.failed.Load()))
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool stop timed out")
	}
}
