package measurementsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/measureme/internal/models"
	"github.com/noah-isme/measureme/pkg/config"
	appErrors "github.com/noah-isme/measureme/pkg/errors"
	"github.com/noah-isme/measureme/pkg/jobs"
)

const jobType = "measurement.sync"

// Poster delivers one reading to the record service.
type Poster interface {
	CreateMeasurement(ctx context.Context, m models.Measurement) (*models.Measurement, error)
}

// Result summarises one sync pass.
type Result struct {
	Sent     int
	Rejected int
	Failed   int
	Skipped  int
}

// Pending is the number of readings left in the spool after the pass.
func (r Result) Pending() int { return r.Failed + r.Skipped }

type batch struct {
	mu  sync.Mutex
	wg  sync.WaitGroup
	res Result
}

type task struct {
	entry Entry
	batch *batch
}

// Agent spools readings locally and pushes them to the record service
// through a worker queue.
type Agent struct {
	spool    *Spool
	poster   Poster
	queue    *jobs.Queue
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewAgent builds an agent. Call Start before SyncOnce.
func NewAgent(spool *Spool, poster Poster, cfg config.SyncConfig, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	a := &Agent{
		spool:    spool,
		poster:   poster,
		interval: interval,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
	a.queue = jobs.NewQueue("measurement-sync", a.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
		OnDone:     a.finish,
	})
	return a
}

// Start launches the delivery workers.
func (a *Agent) Start(ctx context.Context) { a.queue.Start(ctx) }

// Stop halts the workers. Undelivered readings stay spooled.
func (a *Agent) Stop() { a.queue.Stop() }

// Record validates and spools one reading.
func (a *Agent) Record(studentID string, height, weight float64, at time.Time) (Entry, error) {
	var fields []appErrors.FieldError
	if studentID == "" {
		fields = append(fields, appErrors.FieldError{Field: "student_id", Message: "this field is required"})
	}
	if !models.ValidMeasure(height) {
		fields = append(fields, appErrors.FieldError{Field: "height", Message: "must be a positive number"})
	}
	if !models.ValidMeasure(weight) {
		fields = append(fields, appErrors.FieldError{Field: "weight", Message: "must be a positive number"})
	}
	if len(fields) > 0 {
		return Entry{}, appErrors.NewValidationError(fields...)
	}
	entry, err := a.spool.Add(models.Measurement{StudentID: studentID, Height: height, Weight: weight, Timestamp: at})
	if err != nil {
		return Entry{}, err
	}
	a.logger.Info("measurement spooled", zap.String("entry", entry.Name), zap.String("student_id", studentID))
	return entry, nil
}

// SyncOnce pushes every pending reading not already in flight and waits for
// the outcome of each, or for ctx to end.
func (a *Agent) SyncOnce(ctx context.Context) (Result, error) {
	entries, errs := a.spool.Pending()
	for _, err := range errs {
		a.logger.Warn("spool entry unreadable", zap.Error(err))
	}

	b := &batch{}
	for _, entry := range entries {
		if !a.claim(entry.Name) {
			b.res.Skipped++
			continue
		}
		b.wg.Add(1)
		if err := a.queue.Enqueue(jobs.Job{ID: entry.Name, Type: jobType, Payload: task{entry: entry, batch: b}}); err != nil {
			a.release(entry.Name)
			b.wg.Done()
			return b.snapshot(), err
		}
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return b.snapshot(), ctx.Err()
	}

	res := b.snapshot()
	if len(entries) > 0 {
		a.logger.Info("sync pass finished",
			zap.Int("sent", res.Sent),
			zap.Int("rejected", res.Rejected),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped))
	}
	return res, nil
}

// Run syncs immediately and then on every interval until ctx ends.
func (a *Agent) Run(ctx context.Context) error {
	a.Start(ctx)
	defer a.Stop()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		if _, err := a.SyncOnce(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("sync pass aborted", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (a *Agent) deliver(ctx context.Context, job jobs.Job) error {
	t := job.Payload.(task)
	if _, err := a.poster.CreateMeasurement(ctx, t.entry.Measurement); err != nil {
		if errors.Is(err, appErrors.ErrValidation) || errors.Is(err, appErrors.ErrNotFound) {
			return jobs.Permanent(err)
		}
		return err
	}
	if err := a.spool.Remove(t.entry.Name); err != nil {
		a.logger.Error("synced entry could not be removed", zap.String("entry", t.entry.Name), zap.Error(err))
	}
	return nil
}

func (a *Agent) finish(job jobs.Job, err error) {
	t := job.Payload.(task)
	defer t.batch.wg.Done()
	defer a.release(t.entry.Name)

	t.batch.mu.Lock()
	defer t.batch.mu.Unlock()
	switch {
	case err == nil:
		t.batch.res.Sent++
	case jobs.IsPermanent(err):
		t.batch.res.Rejected++
		if rerr := a.spool.Reject(t.entry.Name); rerr != nil {
			a.logger.Error("rejected entry could not be moved", zap.String("entry", t.entry.Name), zap.Error(rerr))
		}
	default:
		t.batch.res.Failed++
	}
}

func (a *Agent) claim(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, busy := a.inFlight[name]; busy {
		return false
	}
	a.inFlight[name] = struct{}{}
	return true
}

func (a *Agent) release(name string) {
	a.mu.Lock()
	delete(a.inFlight, name)
	a.mu.Unlock()
}

func (b *batch) snapshot() Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.res
}
