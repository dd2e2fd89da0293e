package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"workdeck/internal/metrics"
)

type Config struct {
	MinWorkers      int           // started up front (default 5)
	MaxWorkers      int           // lazy upper bound (default 10)
	QueueCapacity   int           // bounded job queue (default 100)
	ShutdownTimeout time.Duration // drain window (default 60s)
}

func (c Config) withDefaults() Config {
	if c.MinWorkers <= 0 {
		c.MinWorkers = 5
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 10
	}
	if c.MaxWorkers < c.MinWorkers {
		c.MaxWorkers = c.MinWorkers
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 60 * time.Second
	}
	return c
}

// Dispatcher executes notification jobs on a fixed pool of workers fed by a
// bounded queue. When the queue is full and the pool is at its maximum, the
// submitting goroutine runs the job itself; nothing is dropped or errored.
// Job failures are contained here and never reach the submitter.
type Dispatcher struct {
	sender  Sender
	jobs    chan Job
	wg      sync.WaitGroup
	timeout time.Duration

	mu      sync.Mutex
	workers int
	max     int
	closed  bool
}

func NewDispatcher(sender Sender, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		sender:  sender,
		jobs:    make(chan Job, cfg.QueueCapacity),
		timeout: cfg.ShutdownTimeout,
		max:     cfg.MaxWorkers,
	}
	d.mu.Lock()
	for i := 0; i < cfg.MinWorkers; i++ {
		d.spawn()
	}
	d.mu.Unlock()
	return d
}

// spawn starts one idle worker. Caller must hold d.mu.
func (d *Dispatcher) spawn() {
	d.startWorker(nil)
}

// spawnWith starts a worker that executes first before joining the queue
// drain, a direct handoff of the overflow job to the goroutine created for
// it. Caller must hold d.mu.
func (d *Dispatcher) spawnWith(job Job) {
	d.startWorker(&job)
}

func (d *Dispatcher) startWorker(first *Job) {
	d.workers++
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if first != nil {
			d.run(*first)
		}
		for job := range d.jobs {
			metrics.QueueDepth.Set(float64(len(d.jobs)))
			d.run(job)
		}
	}()
}

// Submit hands a job to the pool. It normally returns immediately; when the
// queue and pool are saturated it executes the job inline and returns only
// once the job finishes.
func (d *Dispatcher) Submit(job Job) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.Warn().Str("kind", string(job.Kind)).Msg("dispatcher closed, dropping notification")
		return
	}
	select {
	case d.jobs <- job:
		metrics.QueueDepth.Set(float64(len(d.jobs)))
		d.mu.Unlock()
		return
	default:
	}

	// Queue full: grow the pool up to the maximum, handing this job straight
	// to the worker it creates.
	if d.workers < d.max {
		d.spawnWith(job)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	// Caller-runs backpressure: the mutation path absorbs one job's
	// latency instead of losing the notification.
	metrics.NotificationsInline.Inc()
	d.run(job)
}

func (d *Dispatcher) run(job Job) {
	metrics.BusyWorkers.Inc()
	defer metrics.BusyWorkers.Dec()
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationFailures.Inc()
			log.Error().Interface("panic", r).Str("kind", string(job.Kind)).Str("task_id", job.Task.ID).Msg("notification job panicked")
		}
	}()

	if err := d.sender.Send(context.Background(), job); err != nil {
		metrics.NotificationFailures.Inc()
		log.Error().Err(err).Str("kind", string(job.Kind)).Str("task_id", job.Task.ID).Str("to", job.Recipient).Msg("notification failed")
		return
	}
	metrics.NotificationsSent.WithLabelValues(string(job.Kind)).Inc()
}

var ErrDrainTimeout = errors.New("dispatcher drain timed out")

// Shutdown stops accepting jobs and waits for queued and in-flight jobs to
// finish, up to the configured timeout or ctx cancellation, whichever comes
// first. Remaining workers are abandoned on timeout.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrDrainTimeout
	}
}
