package ambilight

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRing struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRing) Set(ctx context.Context, leds []RGB) error {
	f.calls.Add(1)
	return f.err
}

func testFrame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestWorker_SkipsUnchangedFrameByIdentity(t *testing.T) {
	ring := &fakeRing{}
	w := NewWorker(ring, 5*time.Millisecond, 0)

	frame := testFrame(color.RGBA{1, 2, 3, 255})
	w.UpdateFrame(frame)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	// Many ticks elapsed but the frame never changed after the first;
	// the worker must not re-send it every tick.
	assert.LessOrEqual(t, ring.calls.Load(), int32(2))
	assert.GreaterOrEqual(t, ring.calls.Load(), int32(1))
}

func TestWorker_ProcessesNewFrameOnNextTick(t *testing.T) {
	ring := &fakeRing{}
	w := NewWorker(ring, 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	w.UpdateFrame(testFrame(color.RGBA{1, 1, 1, 255}))
	time.Sleep(20 * time.Millisecond)
	w.UpdateFrame(testFrame(color.RGBA{2, 2, 2, 255}))
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	assert.GreaterOrEqual(t, ring.calls.Load(), int32(2))
}

func TestWorker_NilFrameIsSkippedWithoutPanic(t *testing.T) {
	ring := &fakeRing{}
	w := NewWorker(ring, 5*time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NotPanics(t, func() { w.Run(ctx) })
	assert.Zero(t, ring.calls.Load())
}

func TestWorker_StopEndsRunAfterCurrentTick(t *testing.T) {
	ring := &fakeRing{}
	w := NewWorker(ring, 5*time.Millisecond, 0)
	w.UpdateFrame(testFrame(color.RGBA{9, 9, 9, 255}))

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()

	time.Sleep(15 * time.Millisecond)
	w.Stop()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("worker did not stop after Stop()")
	}
}

func TestWorker_ErrorCounterIncrementsOnSendFailure(t *testing.T) {
	ring := &fakeRing{err: errors.New("led write failed")}
	w := NewWorker(ring, 5*time.Millisecond, 0)
	w.UpdateFrame(testFrame(color.RGBA{1, 2, 3, 255}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	w.Run(ctx)

	assert.GreaterOrEqual(t, w.errCount.Load(), int32(1))
}
