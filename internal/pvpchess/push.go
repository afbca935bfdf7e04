package pvpchess

import (
	"context"
	"sync"
	"time"
)

const defaultPublishTimeout = 5 * time.Second

// Publisher pushes partial updates to the shared session record.
type Publisher interface {
	Publish(ctx context.Context, sessionID string, d Delta) error
}

type pushJob struct {
	sessionID string
	delta     Delta
	barrier   chan struct{}
}

// pusher publishes deltas in enqueue order from a single goroutine.
// enqueue never blocks so callers may hold their own locks.
type pusher struct {
	pub     Publisher
	timeout time.Duration
	onFail  func(pushJob, error)

	mu      sync.Mutex
	pending []pushJob
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}
}

func newPusher(pub Publisher, timeout time.Duration, onFail func(pushJob, error)) *pusher {
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	p := &pusher{
		pub:     pub,
		timeout: timeout,
		onFail:  onFail,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *pusher) enqueue(job pushJob) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.pending = append(p.pending, job)
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// flush waits until every job enqueued before the call has been published.
func (p *pusher) flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !p.enqueue(pushJob{barrier: barrier}) {
		return ErrClosed
	}
	select {
	case <-barrier:
		return nil
	case <-p.stopped:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs, publishes what is queued and returns.
func (p *pusher) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.stopped
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
	<-p.stopped
}

func (p *pusher) run() {
	defer close(p.stopped)
	for {
		select {
		case <-p.wake:
			p.drain()
		case <-p.done:
			p.drain()
			return
		}
	}
}

func (p *pusher) drain() {
	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			return
		}
		job := p.pending[0]
		p.pending = p.pending[1:]
		p.mu.Unlock()

		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.pub.Publish(ctx, job.sessionID, job.delta)
		cancel()
		if err != nil && p.onFail != nil {
			p.onFail(job, err)
		}
	}
}
