package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/annotator-api/internal/domain"
)

// DefaultPollInterval is the time between two polls of a batch.
const DefaultPollInterval = 2 * time.Second

// Poller keeps a Session in sync with the server.
type Poller struct {
	client   *Client
	session  *Session
	interval time.Duration
	onUpdate func(*Session)
	logger   *slog.Logger

	mu     sync.Mutex
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithUpdateFunc registers fn to run after every successful poll. fn runs
// on the poll goroutine and must not call the Poller.
func WithUpdateFunc(fn func(*Session)) PollerOption {
	return func(p *Poller) {
		p.onUpdate = fn
	}
}

// NewPoller creates a poller for the session's batch.
func NewPoller(c *Client, session *Session, opts ...PollerOption) *Poller {
	p := &Poller{
		client:   c,
		session:  session,
		interval: DefaultPollInterval,
		logger:   c.logger.With(slog.String("batch_id", session.BatchID().String())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins polling: once immediately, then every interval, until the
// session is settled, ctx ends or Stop is called. A running poll loop is
// replaced.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	p.parent = ctx
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(loopCtx, done)
}

// Stop ends polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

// Running reports whether the poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the current poll loop exits, or nil
// when polling was never started.
func (p *Poller) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Retry reruns the analysis of one item and restarts polling, since the
// item goes back through pending and processing.
func (p *Poller) Retry(ctx context.Context, ref domain.SegmentRef) error {
	if err := p.client.RetryItem(ctx, p.session.BatchID(), ref); err != nil {
		return err
	}
	p.session.MarkRetrying(ref)

	p.mu.Lock()
	parent := p.parent
	p.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	p.Start(parent)
	return nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if p.poll(ctx) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.poll(ctx) {
				return
			}
		}
	}
}

// poll fetches the batch once and reports whether polling should stop.
// Failed polls are recorded on the session and retried on the next tick.
func (p *Poller) poll(ctx context.Context) bool {
	gen := p.session.Generation()
	detail, err := p.client.GetBatch(ctx, p.session.BatchID())
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.logger.Debug("poll failed", slog.String("error", err.Error()))
		p.session.setError(err)
		return false
	}

	p.session.ApplyAt(detail, gen)
	if p.onUpdate != nil {
		p.onUpdate(p.session)
	}
	return p.session.Settled()
}
