package services

import (
	"context"
	"log"
	"sync"
	"time"
)

// MissedCallJob is one acknowledged webhook delivery waiting for
// background processing. The originating request has already been
// answered; there is no cancellation beyond the processing timeout.
type MissedCallJob struct {
	CallSid      string
	From         string
	To           string
	RecordingURL string
	ReceivedAt   time.Time
}

// Dispatcher runs pipeline jobs on a fixed worker pool behind a bounded
// queue, so webhook handlers never block on pipeline completion.
type Dispatcher struct {
	jobs    chan MissedCallJob
	timeout time.Duration
	handler func(context.Context, MissedCallJob) error
	wg      sync.WaitGroup
	stop    sync.Once
}

func NewDispatcher(handler func(context.Context, MissedCallJob) error, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		jobs:    make(chan MissedCallJob, queueSize),
		timeout: timeout,
		handler: handler,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue hands a job to the pool without blocking. A full queue drops
// the job; the provider redelivers the webhook, so the loss is not
// permanent.
func (d *Dispatcher) Enqueue(job MissedCallJob) bool {
	select {
	case d.jobs <- job:
		return true
	default:
		log.Printf("[DISPATCH] Queue full, dropping job for call %s", job.CallSid)
		return false
	}
}

// Stop drains the queue and waits for in-flight jobs to finish.
func (d *Dispatcher) Stop() {
	d.stop.Do(func() {
		close(d.jobs)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := d.handler(ctx, job); err != nil {
			log.Printf("[DISPATCH] Job for call %s failed: %v", job.CallSid, err)
		}
		cancel()
	}
}
