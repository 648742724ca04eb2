package ambilight

import (
	"context"
	"image"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// frameCell holds the latest decoded frame. Swapping the pointer is the
// entire critical section; readers and writers never block each other
// beyond that.
type frameCell struct {
	mu    sync.Mutex
	frame *image.RGBA
}

func (c *frameCell) store(f *image.RGBA) {
	c.mu.Lock()
	c.frame = f
	c.mu.Unlock()
}

func (c *frameCell) load() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Ring is the subset of LedRing the worker needs.
type Ring interface {
	Set(ctx context.Context, leds []RGB) error
}

// Worker consumes the latest decoded frame at a fixed tick rate and
// drives the LED ring to match its edges. It never queues frames: a
// frame that arrives mid-tick simply overwrites the one before it.
type Worker struct {
	ring         Ring
	cell         frameCell
	lastFrame    *image.RGBA
	maxIntensity uint8
	tickEvery    time.Duration

	running   atomic.Bool
	errCount  atomic.Int32
	loggedMax int32
}

// NewWorker returns a Worker driving ring at the given tick interval.
// maxIntensity of 0 disables greyscale mode.
func NewWorker(ring Ring, tickEvery time.Duration, maxIntensity uint8) *Worker {
	return &Worker{ring: ring, tickEvery: tickEvery, maxIntensity: maxIntensity, loggedMax: 3}
}

// UpdateFrame replaces the latest frame. Called from the decoder reader
// goroutine; safe for concurrent use with Run.
func (w *Worker) UpdateFrame(frame *image.RGBA) {
	w.cell.store(frame)
}

// Run ticks until ctx is done or Stop is called, sampling and pushing
// one LED frame per tick in which the latest frame has changed by
// identity since the last tick.
func (w *Worker) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	ticker := time.NewTicker(w.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !w.running.Load() {
			return
		}
		w.tick(ctx)
	}
}

// Stop clears the running flag; Run exits after finishing its current
// tick.
func (w *Worker) Stop() {
	w.running.Store(false)
}

func (w *Worker) tick(ctx context.Context) {
	frame := w.cell.load()
	if frame == nil || frame == w.lastFrame {
		return
	}
	w.lastFrame = frame

	var samples []RGB
	if w.maxIntensity > 0 {
		samples = SampleGreyscale(frame, NumLEDs, w.maxIntensity)
	} else {
		samples = Sample(frame, NumLEDs)
	}

	if err := w.ring.Set(ctx, samples); err != nil {
		n := w.errCount.Add(1)
		if n <= w.loggedMax {
			log.Printf("ambilight: led send failed (%d): %v", n, err)
		}
	}
}
