// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package memwatch polls host memory pressure and shrinks a set of beams'
// buffer sizes when usage climbs, and relaxes them again once it falls —
// so a burst of slow receivers doesn't let every beam in the process grow
// its buffer independently into an OOM.
package memwatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/nishisan-dev/nbeam/beam"
)

// Thresholds configures the high/low watermarks, expressed as a percent
// of system memory used (0-100).
type Thresholds struct {
	High float64 // shrink buffers once usage crosses this
	Low  float64 // allow buffers back to normal below this
}

// Watcher polls system memory and adjusts registered beams' buffer sizes.
type Watcher struct {
	logger *slog.Logger
	thresh Thresholds
	normal int64 // buffer size restored once usage drops below Low
	shrunk int64 // buffer size applied once usage crosses High

	mu     sync.Mutex
	beams  []*beam.Beam
	tight  bool
	close  chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher creates a Watcher that polls every interval and applies
// shrunkSize/normalSize to registered beams according to thresh.
func NewWatcher(logger *slog.Logger, thresh Thresholds, normalSize, shrunkSize int64) *Watcher {
	return &Watcher{
		logger: logger.With("component", "memwatch"),
		thresh: thresh,
		normal: normalSize,
		shrunk: shrunkSize,
		close:  make(chan struct{}),
	}
}

// Register adds b to the set of beams this watcher resizes.
func (w *Watcher) Register(b *beam.Beam) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.beams = append(w.beams, b)
}

// Start begins periodic polling at the given interval.
func (w *Watcher) Start(interval time.Duration) {
	w.wg.Add(1)
	go w.run(interval)
}

// Stop halts polling and waits for the background goroutine to exit.
func (w *Watcher) Stop() {
	close(w.close)
	w.wg.Wait()
}

func (w *Watcher) run(interval time.Duration) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.close:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *Watcher) poll() {
	v, err := mem.VirtualMemory()
	if err != nil {
		w.logger.Debug("failed to read memory stats", "error", err)
		return
	}

	w.mu.Lock()
	tight := w.tight
	switch {
	case !tight && v.UsedPercent >= w.thresh.High:
		tight = true
	case tight && v.UsedPercent <= w.thresh.Low:
		tight = false
	}
	changed := tight != w.tight
	w.tight = tight
	beams := append([]*beam.Beam(nil), w.beams...)
	w.mu.Unlock()

	if !changed {
		return
	}

	size := w.normal
	if tight {
		size = w.shrunk
	}
	w.logger.Info("adjusting beam buffer sizes", "tight", tight, "used_percent", v.UsedPercent, "buffer_size", size)
	for _, b := range beams {
		b.SetBufferSize(size)
	}
}
