package stream

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdring/internal/devproto"
)

type fakeController struct {
	capacity   int
	chunkSizes []int
	blockDepth int32
	stopCalled int32
	sendDelay  time.Duration
	failAfter  int
	sendCount  int32
}

func (f *fakeController) GetH264Block(ctx context.Context) (int, error) {
	return f.capacity, nil
}

func (f *fakeController) SendChunk(ctx context.Context, slot devproto.PlaybackSlot, playCount byte, chunk []byte) ([]byte, error) {
	n := atomic.AddInt32(&f.sendCount, 1)
	f.chunkSizes = append(f.chunkSizes, len(chunk))
	if f.failAfter > 0 && int(n) > f.failAfter {
		return nil, devproto.ErrTransportIO
	}
	if f.sendDelay > 0 {
		time.Sleep(f.sendDelay)
	}
	resp := make([]byte, devproto.CommandFrameSize)
	resp[slot.BufferDepthOffset()] = byte(atomic.LoadInt32(&f.blockDepth))
	return resp, nil
}

func (f *fakeController) QueryBlock(ctx context.Context, slot devproto.PlaybackSlot) (int, error) {
	return int(atomic.LoadInt32(&f.blockDepth)), nil
}

func (f *fakeController) StopPlay(ctx context.Context) error {
	atomic.AddInt32(&f.stopCalled, 1)
	return nil
}

func writeTempFile(t *testing.T, size int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.h264")
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestStream_ChunksOneMegabyteIntoSixPackets(t *testing.T) {
	path := writeTempFile(t, 1024*1024)
	ctrl := &fakeController{capacity: 202752}
	s := New(ctrl)

	outcome, err := s.Stream(context.Background(), Request{FilePath: path, Slot: devproto.Slot0})
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
	require.Len(t, ctrl.chunkSizes, 6)
	for _, size := range ctrl.chunkSizes[:5] {
		assert.Equal(t, 202752, size)
	}
	assert.Equal(t, 1024*1024-5*202752, ctrl.chunkSizes[5])
	assert.EqualValues(t, 1, ctrl.stopCalled)
}

func TestStream_MissingFileFailsBeforeAnyUSBActivity(t *testing.T) {
	ctrl := &fakeController{capacity: 202752}
	s := New(ctrl)

	outcome, err := s.Stream(context.Background(), Request{FilePath: "/no/such/file.h264"})
	assert.Error(t, err)
	assert.Equal(t, Aborted, outcome)
	assert.Zero(t, ctrl.sendCount)
}

func TestStream_CancelMidStreamStopsWithinOneChunkPeriod(t *testing.T) {
	path := writeTempFile(t, 10*202752)
	ctrl := &fakeController{capacity: 202752}
	s := New(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(80 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	outcome, err := s.Stream(ctx, Request{FilePath: path, Slot: devproto.Slot0, Loop: true})
	elapsed := time.Since(start)

	assert.Equal(t, Cancelled, outcome)
	assert.Error(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.EqualValues(t, 1, ctrl.stopCalled)
}

func TestStream_PersistentSendFailureAborts(t *testing.T) {
	path := writeTempFile(t, 5*202752)
	ctrl := &fakeController{capacity: 202752, failAfter: 1}
	s := New(ctrl)

	outcome, err := s.Stream(context.Background(), Request{FilePath: path, Slot: devproto.Slot0})
	assert.Equal(t, Aborted, outcome)
	assert.ErrorIs(t, err, devproto.ErrStreamAborted)
	assert.EqualValues(t, 1, ctrl.stopCalled)
}

func TestStream_HighBufferDepthTriggersFlowControlWait(t *testing.T) {
	// Exactly one capacity-sized chunk, so the flow-control budget is
	// burned at most once.
	path := writeTempFile(t, 202752)
	ctrl := &fakeController{capacity: 202752, blockDepth: int32(devproto.FlowControlHighWater + 1)}
	s := New(ctrl)

	// blockDepth never drops below the high-water mark, so the one chunk
	// burns the full flow-control poll budget; assert the stream still
	// completes rather than hanging indefinitely.
	done := make(chan struct{})
	var outcome Outcome
	go func() {
		outcome, _ = s.Stream(context.Background(), Request{FilePath: path, Slot: devproto.Slot0})
		close(done)
	}()

	select {
	case <-done:
		assert.Equal(t, Completed, outcome)
	case <-time.After(15 * time.Second):
		t.Fatal("stream did not complete within flow-control budget")
	}
}
