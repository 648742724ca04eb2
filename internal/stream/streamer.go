// Package stream chunks a raw elementary video file to the LCD's
// streaming command, interleaving flow-control polls so the device's
// onboard buffer never backs up, and loops or stops on request.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"lcdring/internal/devproto"
)

// Controller is the subset of lcdctl.Controller the streamer needs.
// Declared here, not imported, so this package has no dependency on the
// codec/transport stack beyond devproto's shared constants.
type Controller interface {
	GetH264Block(ctx context.Context) (int, error)
	SendChunk(ctx context.Context, slot devproto.PlaybackSlot, playCount byte, chunk []byte) ([]byte, error)
	QueryBlock(ctx context.Context, slot devproto.PlaybackSlot) (int, error)
	StopPlay(ctx context.Context) error
}

// Outcome describes how a Stream call ended.
type Outcome int

const (
	// Completed means the whole file was sent with looping off. A looping
	// stream never completes; it ends as Cancelled or Aborted.
	Completed Outcome = iota
	// Cancelled means the caller's context was done.
	Cancelled
	// Aborted means a chunk send failed persistently.
	Aborted
)

// Request describes one streaming session.
type Request struct {
	FilePath  string
	Slot      devproto.PlaybackSlot
	Loop      bool
	PlayCount byte
}

// Streamer drives one playback slot from a raw elementary stream file.
type Streamer struct {
	ctrl Controller
}

// New returns a Streamer dispatching through ctrl.
func New(ctrl Controller) *Streamer {
	return &Streamer{ctrl: ctrl}
}

// Stream runs req to completion, cancellation, or persistent failure.
// Missing files fail before any USB activity. stop_play is sent on
// every exit path except when the file never existed.
func (s *Streamer) Stream(ctx context.Context, req Request) (Outcome, error) {
	if _, err := os.Stat(req.FilePath); err != nil {
		return Aborted, fmt.Errorf("stream: %w", err)
	}

	capacity, err := s.ctrl.GetH264Block(ctx)
	if err != nil || capacity <= 0 {
		capacity = devproto.DefaultH264BufferCapacity
	}

	outcome, streamErr := s.runLoop(ctx, req, capacity)

	if stopErr := s.ctrl.StopPlay(ctx); stopErr != nil && streamErr == nil {
		streamErr = fmt.Errorf("stream: stop_play: %w", stopErr)
	}
	return outcome, streamErr
}

func (s *Streamer) runLoop(ctx context.Context, req Request, capacity int) (Outcome, error) {
	for {
		outcome, err := s.streamOnce(ctx, req, capacity)
		if outcome != Completed {
			return outcome, err
		}
		if !req.Loop {
			return Completed, nil
		}
		select {
		case <-ctx.Done():
			return Cancelled, ctx.Err()
		default:
		}
	}
}

func (s *Streamer) streamOnce(ctx context.Context, req Request, capacity int) (Outcome, error) {
	f, err := os.Open(req.FilePath)
	if err != nil {
		return Aborted, fmt.Errorf("stream: open: %w", err)
	}
	defer f.Close()

	chunk := make([]byte, capacity)
	offset := req.Slot.BufferDepthOffset()

	for {
		select {
		case <-ctx.Done():
			return Cancelled, ctx.Err()
		default:
		}

		n, readErr := io.ReadFull(f, chunk)
		if n == 0 {
			if errors.Is(readErr, io.EOF) {
				return Completed, nil
			}
			return Aborted, fmt.Errorf("stream: read: %w", readErr)
		}

		resp, sendErr := s.ctrl.SendChunk(ctx, req.Slot, req.PlayCount, chunk[:n])
		if sendErr != nil {
			return Aborted, fmt.Errorf("stream: %w: %w", devproto.ErrStreamAborted, sendErr)
		}

		select {
		case <-ctx.Done():
			return Cancelled, ctx.Err()
		case <-time.After(devproto.ChunkSendInterval):
		}

		if len(resp) > offset && int(resp[offset]) > devproto.FlowControlHighWater {
			if cancelled := s.waitForDrain(ctx, req.Slot, offset); cancelled {
				return Cancelled, ctx.Err()
			}
		}

		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			return Completed, nil
		}
	}
}

// waitForDrain polls query_block until the slot's buffer depth falls to
// or below the low-water mark, the poll budget is exhausted, or ctx is
// done (in which case it returns true).
func (s *Streamer) waitForDrain(ctx context.Context, slot devproto.PlaybackSlot, offset int) bool {
	for i := 0; i < devproto.FlowControlMaxPolls; i++ {
		select {
		case <-ctx.Done():
			return true
		case <-time.After(devproto.FlowControlPollEvery):
		}

		depth, err := s.ctrl.QueryBlock(ctx, slot)
		if err != nil {
			continue
		}
		if depth <= devproto.FlowControlLowWater {
			return false
		}
	}
	return false
}
