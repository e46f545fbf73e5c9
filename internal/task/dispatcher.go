package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/annotator-api/internal/analysis"
	"github.com/phrazzld/annotator-api/internal/domain"
	"github.com/phrazzld/annotator-api/internal/events"
	"github.com/phrazzld/annotator-api/internal/metrics"
	"github.com/phrazzld/annotator-api/internal/objectstore"
	"github.com/phrazzld/annotator-api/internal/platform/logger"
	"github.com/phrazzld/annotator-api/internal/redact"
	"github.com/phrazzld/annotator-api/internal/store"
)

// finalWriteTimeout bounds the terminal store write and event emission,
// which run detached from the dispatcher's lifetime.
const finalWriteTimeout = 10 * time.Second

// terminalWriteRetryDelay is the pause before the single retry of a failed
// terminal write.
var terminalWriteRetryDelay = 500 * time.Millisecond

// DispatcherConfig holds the optional collaborators of a Dispatcher.
type DispatcherConfig struct {
	// CallTimeout bounds one analysis call. Zero means no limit.
	CallTimeout time.Duration

	// ValidateAudio, when set, checks fetched audio before it is analyzed.
	ValidateAudio func(audio []byte) error

	// Emitter receives an item-finished event after each terminal write.
	Emitter events.EventEmitter

	// Metrics may be nil.
	Metrics *metrics.DispatchMetrics
}

// Dispatcher runs items through the gate and records their outcomes.
type Dispatcher struct {
	gate     *Gate
	items    store.ItemStore
	fetcher  objectstore.Fetcher
	analyzer analysis.Analyzer
	config   DispatcherConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	active  map[domain.ItemKey]struct{}
	stopped bool
}

// NewDispatcher creates a dispatcher. It is ready to use; Stop ends it.
func NewDispatcher(
	gate *Gate,
	items store.ItemStore,
	fetcher objectstore.Fetcher,
	analyzer analysis.Analyzer,
	config DispatcherConfig,
	logger *slog.Logger,
) *Dispatcher {
	if gate == nil || items == nil || fetcher == nil || analyzer == nil {
		// ALLOW-PANIC: Constructor enforcing required dependencies
		panic("dispatcher dependencies cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		gate:     gate,
		items:    items,
		fetcher:  fetcher,
		analyzer: analyzer,
		config:   config,
		logger:   logger.With(slog.String("component", "dispatcher")),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[domain.ItemKey]struct{}),
	}
}

// Dispatch starts analysis of every ref and returns without waiting. Refs
// already running in this process are skipped. It returns the number of
// items started.
func (d *Dispatcher) Dispatch(batchID uuid.UUID, refs []domain.SegmentRef, cfg *domain.AnalysisConfig) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Warn("dispatch after stop ignored",
			slog.String("batch_id", batchID.String()),
			slog.Int("count", len(refs)))
		return 0
	}

	started := 0
	for _, ref := range refs {
		key := domain.ItemKey{BatchID: batchID, VideoID: ref.VideoID, SegmentID: ref.SegmentID}
		if _, running := d.active[key]; running {
			d.logger.Debug("item already in flight, skipping",
				slog.String("batch_id", batchID.String()),
				slog.String("video_id", ref.VideoID),
				slog.String("segment_id", ref.SegmentID))
			continue
		}
		d.active[key] = struct{}{}
		d.wg.Add(1)
		started++
		d.config.Metrics.ItemDispatched()
		go d.run(key, cfg)
	}

	d.logger.Info("items dispatched",
		slog.String("batch_id", batchID.String()),
		slog.Int("requested", len(refs)),
		slog.Int("started", started))
	return started
}

// Active returns the number of items this process is running or waiting
// to run.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.active)
}

// IsActive reports whether the item is running or waiting for a permit in
// this process.
func (d *Dispatcher) IsActive(key domain.ItemKey) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[key]
	return ok
}

// Wait blocks until every dispatched item has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Stop cancels in-flight work and waits for item goroutines to exit, or
// for ctx to be done. Interrupted items are left for recovery.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher did not stop in time: %w", ctx.Err())
	}
}

func (d *Dispatcher) finish(key domain.ItemKey) {
	d.mu.Lock()
	delete(d.active, key)
	d.mu.Unlock()
	d.wg.Done()
}

func (d *Dispatcher) run(key domain.ItemKey, cfg *domain.AnalysisConfig) {
	defer d.finish(key)

	log := d.logger.With(
		slog.String("batch_id", key.BatchID.String()),
		slog.String("video_id", key.VideoID),
		slog.String("segment_id", key.SegmentID),
	)
	ctx := logger.WithLogger(d.ctx, log)

	waitStart := time.Now()
	if err := d.gate.Acquire(ctx); err != nil {
		log.Debug("dispatcher stopped before item started")
		return
	}
	defer d.gate.Release()

	d.config.Metrics.CallStarted(time.Since(waitStart).Seconds())
	start := time.Now()
	outcome := metrics.OutcomeAbandoned
	defer func() {
		d.config.Metrics.CallFinished(outcome, time.Since(start).Seconds())
	}()

	if err := d.items.SetStatus(ctx, key, domain.AnalysisStatusProcessing); err != nil {
		log.Error("failed to mark item processing", slog.String("error", err.Error()))
		return
	}

	result, err := d.analyze(ctx, key, cfg)
	if err != nil {
		outcome = d.recordFailure(ctx, log, key, err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := d.writeTerminal(writeCtx, log, func(ctx context.Context) error {
		return d.items.CompleteWithResult(ctx, key, result)
	}); err != nil {
		log.Error("failed to store analysis result, item stays processing until recovery",
			slog.String("error", err.Error()))
		outcome = metrics.OutcomeWriteFailed
		return
	}
	outcome = metrics.OutcomeDone
	log.Info("item analysis done", slog.Duration("duration", time.Since(start)))
	d.emitFinished(writeCtx, log, key, domain.AnalysisStatusDone)
}

func (d *Dispatcher) analyze(
	ctx context.Context,
	key domain.ItemKey,
	cfg *domain.AnalysisConfig,
) (result map[string]any, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.FromContextOrDefault(ctx, d.logger).Error("item analysis panicked", slog.Any("panic", p))
			result, err = nil, fmt.Errorf("internal error: %v", p)
		}
	}()

	audio, err := d.fetcher.Fetch(ctx, key.VideoID, objectstore.SegmentFile(key.SegmentID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch audio: %w", err)
	}
	if d.config.ValidateAudio != nil {
		if err := d.config.ValidateAudio(audio); err != nil {
			return nil, err
		}
	}

	callCtx := ctx
	if d.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.config.CallTimeout)
		defer cancel()
	}
	return d.analyzer.Analyze(callCtx, audio, analysis.MIMETypeWAV, cfg)
}

// recordFailure stores err's message, minus credentials, as the item's error. A failure caused
// by Stop is not recorded; the item stays processing for recovery.
func (d *Dispatcher) recordFailure(ctx context.Context, log *slog.Logger, key domain.ItemKey, err error) string {
	if d.ctx.Err() != nil {
		log.Warn("item interrupted by shutdown, leaving it for recovery",
			slog.String("error", err.Error()))
		return metrics.OutcomeAbandoned
	}

	message := redact.Credentials(err.Error())
	log.Error("item analysis failed", slog.String("error", message))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if werr := d.writeTerminal(writeCtx, log, func(ctx context.Context) error {
		return d.items.CompleteWithError(ctx, key, message)
	}); werr != nil {
		log.Error("failed to store analysis error, item stays processing until recovery",
			slog.String("error", werr.Error()))
		return metrics.OutcomeWriteFailed
	}
	d.emitFinished(writeCtx, log, key, domain.AnalysisStatusError)
	return metrics.OutcomeError
}

// writeTerminal runs write, retrying once after terminalWriteRetryDelay.
func (d *Dispatcher) writeTerminal(ctx context.Context, log *slog.Logger, write func(context.Context) error) error {
	err := write(ctx)
	if err == nil {
		return nil
	}
	log.Warn("terminal write failed, retrying", slog.String("error", err.Error()))

	timer := time.NewTimer(terminalWriteRetryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w (retry abandoned: %w)", err, ctx.Err())
	case <-timer.C:
	}
	return write(ctx)
}

func (d *Dispatcher) emitFinished(ctx context.Context, log *slog.Logger, key domain.ItemKey, status domain.AnalysisStatus) {
	if d.config.Emitter == nil {
		return
	}
	event, err := events.NewEvent(events.EventItemFinished, events.ItemFinishedPayload{
		BatchID:   key.BatchID,
		VideoID:   key.VideoID,
		SegmentID: key.SegmentID,
		Status:    string(status),
	})
	if err != nil {
		log.Error("failed to build item-finished event", slog.String("error", err.Error()))
		return
	}
	if err := d.config.Emitter.EmitEvent(ctx, event); err != nil {
		log.Warn("item-finished handler failed", slog.String("error", err.Error()))
	}
}
