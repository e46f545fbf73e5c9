package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RecoveryMonitor periodically resumes batches whose items have been
// processing for longer than a threshold.
type RecoveryMonitor struct {
	service  BatchService
	age      time.Duration
	interval time.Duration
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecoveryMonitor creates a monitor. An interval of zero selects five
// minutes.
func NewRecoveryMonitor(service BatchService, age, interval time.Duration, logger *slog.Logger) *RecoveryMonitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveryMonitor{
		service:  service,
		age:      age,
		interval: interval,
		logger:   logger.With(slog.String("component", "recovery_monitor")),
	}
}

// Start launches the monitor goroutine.
func (m *RecoveryMonitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop ends the monitor and waits for it.
func (m *RecoveryMonitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *RecoveryMonitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.service.ResumeStuck(ctx, m.age)
			if err != nil {
				m.logger.Error("failed to resume stuck items", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				m.logger.Info("resumed stuck items", slog.Int("count", n))
			}
		}
	}
}
