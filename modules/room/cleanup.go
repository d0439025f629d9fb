package room

import (
	"context"
	"sync"
	"time"

	"github.com/go-monolith/mono/pkg/types"
)

// CleanupWorker periodically deletes rooms that saw no activity for maxIdle.
type CleanupWorker struct {
	service  *Service
	interval time.Duration
	maxIdle  time.Duration
	logger   types.Logger

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewCleanupWorker creates a worker. It does nothing until Start.
func NewCleanupWorker(service *Service, interval, maxIdle time.Duration, logger types.Logger) *CleanupWorker {
	return &CleanupWorker{
		service:  service,
		interval: interval,
		maxIdle:  maxIdle,
		logger:   logger,
	}
}

// Start launches the background loop.
func (w *CleanupWorker) Start() {
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	go w.run()
	w.logger.Info("Stale room cleanup started", "interval", w.interval, "maxIdle", w.maxIdle)
}

func (w *CleanupWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.RunOnce()
		}
	}
}

// RunOnce performs a single cleanup pass. The pass is abandoned when the
// worker is stopped.
func (w *CleanupWorker) RunOnce() int {
	ctx, cancel := context.WithTimeout(context.Background(), w.interval)
	defer cancel()

	if w.stopChan != nil {
		go func() {
			select {
			case <-w.stopChan:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	removed, err := w.service.CleanupStaleRooms(ctx, w.maxIdle)
	if err != nil {
		w.logger.Error("Stale room cleanup failed", "removed", removed, "error", err)
		return removed
	}
	if removed > 0 {
		w.logger.Info("Removed stale rooms", "count", removed)
	}
	return removed
}

// Stop signals the loop and waits for it to finish or ctx to expire.
func (w *CleanupWorker) Stop(ctx context.Context) error {
	if w.stopChan == nil {
		return nil
	}

	w.stopOnce.Do(func() {
		close(w.stopChan)
	})

	select {
	case <-w.doneChan:
		w.logger.Info("Stale room cleanup stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
