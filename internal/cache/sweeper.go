package cache

import (
	"context"
	"sync"
	"time"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// DefaultSweepInterval applies when the configured interval is missing
// or non-positive.
const DefaultSweepInterval = 10 * time.Minute

const sweepTimeout = 30 * time.Second

// Sweeper periodically purges expired entries so the store does not
// rely on lookups alone to shed dead weight.
type Sweeper struct {
	service  *Service
	interval time.Duration
	logger   *utils.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSweeper creates a sweeper over the given cache service. A
// non-positive interval falls back to DefaultSweepInterval.
func NewSweeper(service *Service, interval time.Duration, logger *utils.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = utils.NewLogger("cache-sweeper")
	}
	return &Sweeper{
		service:  service,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start launches the background sweep loop.
func (w *Sweeper) Start() {
	w.wg.Add(1)
	go w.run()
	w.logger.Info("cache sweeper started", "interval", w.interval.String())
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (w *Sweeper) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("cache sweeper stopped")
}

func (w *Sweeper) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.sweep()
		}
	}
}

func (w *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	removed, err := w.service.CleanupExpired(ctx)
	if err != nil {
		w.logger.Error("cache sweep failed", "error", err)
		return
	}
	if removed > 0 {
		w.logger.Info("cache sweep", "removed", removed)
	}
}
