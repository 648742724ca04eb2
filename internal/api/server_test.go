package api

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lcdring/internal/ambilight"
	"lcdring/internal/devproto"
	"lcdring/internal/stream"
)

type fakeStreamController struct {
	blockFor time.Duration
}

func (f *fakeStreamController) GetH264Block(ctx context.Context) (int, error) {
	if f.blockFor > 0 {
		time.Sleep(f.blockFor)
	}
	return devproto.DefaultH264BufferCapacity, nil
}

func (f *fakeStreamController) SendChunk(ctx context.Context, slot devproto.PlaybackSlot, playCount byte, chunk []byte) ([]byte, error) {
	return nil, nil
}

func (f *fakeStreamController) QueryBlock(ctx context.Context, slot devproto.PlaybackSlot) (int, error) {
	return 0, nil
}

func (f *fakeStreamController) StopPlay(ctx context.Context) error { return nil }

type fakeRing struct {
	calls atomic.Int32
}

func (f *fakeRing) Set(ctx context.Context, leds []ambilight.RGB) error {
	f.calls.Add(1)
	return nil
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	return img
}

// TestHandleAmbilightOn_WorkerOutlivesRequestContext is a regression test:
// the worker must keep ticking after the HTTP handler that started it
// returns and its request context is cancelled, since net/http cancels the
// request context the instant ServeHTTP returns.
func TestHandleAmbilightOn_WorkerOutlivesRequestContext(t *testing.T) {
	ring := &fakeRing{}
	worker := ambilight.NewWorker(ring, 5*time.Millisecond, 0)
	srv := New(nil, nil, worker, ring)
	router := srv.Router()

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ambilight/on", nil).WithContext(reqCtx)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	// Simulate the request ending, as net/http does to every handler's
	// context the moment ServeHTTP returns.
	cancel()

	worker.UpdateFrame(testFrame())
	time.Sleep(40 * time.Millisecond)

	assert.Greater(t, ring.calls.Load(), int32(0), "worker must still be ticking after the request context was cancelled")

	offReq := httptest.NewRequest(http.MethodPost, "/api/v1/ambilight/off", nil)
	router.ServeHTTP(httptest.NewRecorder(), offReq)
}

func TestHandleAmbilightOnOff_StopsWorkerTicking(t *testing.T) {
	ring := &fakeRing{}
	worker := ambilight.NewWorker(ring, 5*time.Millisecond, 0)
	srv := New(nil, nil, worker, ring)
	router := srv.Router()

	onReq := httptest.NewRequest(http.MethodPost, "/api/v1/ambilight/on", nil)
	router.ServeHTTP(httptest.NewRecorder(), onReq)

	worker.UpdateFrame(testFrame())
	time.Sleep(20 * time.Millisecond)

	offReq := httptest.NewRequest(http.MethodPost, "/api/v1/ambilight/off", nil)
	offResp := httptest.NewRecorder()
	router.ServeHTTP(offResp, offReq)
	require.Equal(t, http.StatusNoContent, offResp.Code)

	callsAtStop := ring.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, callsAtStop, ring.calls.Load(), "worker must stop ticking once ambilight is turned off")
}

func TestHandleStartPlayback_RejectsConcurrentStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream.h264")
	require.NoError(t, os.WriteFile(path, []byte("not-a-real-stream"), 0644))

	streamer := stream.New(&fakeStreamController{blockFor: 100 * time.Millisecond})
	srv := New(nil, streamer, nil, nil)
	router := srv.Router()

	body := func() *strings.Reader {
		b, err := json.Marshal(map[string]any{"file_path": path, "slot": 0, "loop": false})
		require.NoError(t, err)
		return strings.NewReader(string(b))
	}

	first := httptest.NewRequest(http.MethodPost, "/api/v1/playback/start", body())
	firstResp := httptest.NewRecorder()
	router.ServeHTTP(firstResp, first)
	require.Equal(t, http.StatusAccepted, firstResp.Code)

	second := httptest.NewRequest(http.MethodPost, "/api/v1/playback/start", body())
	secondResp := httptest.NewRecorder()
	router.ServeHTTP(secondResp, second)
	assert.Equal(t, http.StatusConflict, secondResp.Code)
}
