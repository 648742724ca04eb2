// Package lcdctl exposes the LCD's command set as a typed Go surface:
// one method per device operation, each building its frame via
// internal/codec and dispatching it through a FrameSender. Argument
// clamping lives here rather than in the caller, mirroring the teacher's
// controller.go pattern of validating at the point closest to the wire.
package lcdctl

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"lcdring/internal/codec"
	"lcdring/internal/devproto"
)

// FrameSender is the subset of LCDTransport that LcdController needs.
// Kept as an interface so tests can substitute a fake transport.
type FrameSender interface {
	Send(ctx context.Context, frame []byte, wantResponse bool) (resp []byte, wrote bool)
}

// Controller is the typed command surface over a single LCD transport.
type Controller struct {
	sender FrameSender
}

// New returns a Controller dispatching frames through sender.
func New(sender FrameSender) *Controller {
	return &Controller{sender: sender}
}

// ClampBrightness restricts v to the device's supported range [0, 100].
func ClampBrightness(v int) int { return clamp(v, 0, 100) }

// ClampRotation restricts v to the four supported orientations [0, 3].
func ClampRotation(v int) int { return clamp(v, 0, 3) }

// ClampFramerate restricts v to the device's supported range [1, 99].
func ClampFramerate(v int) int { return clamp(v, 1, 99) }

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (c *Controller) send(ctx context.Context, cmd byte, args []byte, wantResponse bool) ([]byte, error) {
	frame := codec.Build(cmd, args)
	resp, wrote := c.sender.Send(ctx, frame[:], wantResponse)
	if !wrote {
		return nil, devproto.ErrTransportIO
	}
	if wantResponse && resp == nil {
		return nil, nil // timeout: caller decides whether that's fatal
	}
	return resp, nil
}

func (c *Controller) sendWithPayload(ctx context.Context, cmd byte, args []byte, payload []byte) error {
	frame := codec.BuildPayloadPacket(cmd, args, payload)
	_, wrote := c.sender.Send(ctx, frame, true)
	if !wrote {
		return devproto.ErrTransportIO
	}
	return nil
}

func beUint32(n int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(n))
	return b
}

// Init runs the device's standard startup sequence: a fixed 30fps
// framerate, the only rate the firmware has been observed to honor
// reliably at boot.
func (c *Controller) Init(ctx context.Context) error {
	return c.SetFramerate(ctx, 30)
}

// GetVersion queries the firmware version string.
func (c *Controller) GetVersion(ctx context.Context) ([]byte, error) {
	return c.send(ctx, devproto.CmdGetVersion, nil, true)
}

// RebootToStandby requests the device switch from monitor to standby
// mode.
func (c *Controller) RebootToStandby(ctx context.Context) error {
	_, err := c.send(ctx, devproto.CmdRebootToStandby, nil, false)
	return err
}

// SetRotation sets display rotation, clamped to [0, 3].
func (c *Controller) SetRotation(ctx context.Context, rotation int) error {
	_, err := c.send(ctx, devproto.CmdSetRotation, []byte{byte(ClampRotation(rotation)) & 0x03}, false)
	return err
}

// SetBrightness sets backlight brightness, clamped to [0, 100].
func (c *Controller) SetBrightness(ctx context.Context, brightness int) error {
	_, err := c.send(ctx, devproto.CmdSetBrightness, []byte{byte(ClampBrightness(brightness))}, false)
	return err
}

// SetFramerate sets the playback framerate, clamped to [1, 99].
func (c *Controller) SetFramerate(ctx context.Context, fps int) error {
	_, err := c.send(ctx, devproto.CmdSetFramerate, []byte{byte(ClampFramerate(fps))}, false)
	return err
}

// GetH264Block queries the device's per-chunk H.264 buffer capacity in
// bytes, big-endian at response offset 8. Falls back to
// devproto.DefaultH264BufferCapacity if the device doesn't answer or
// reports zero.
func (c *Controller) GetH264Block(ctx context.Context) (int, error) {
	resp, err := c.send(ctx, devproto.CmdGetH264Block, nil, true)
	if err != nil {
		return 0, err
	}
	if len(resp) < 12 {
		return devproto.DefaultH264BufferCapacity, nil
	}
	n := binary.BigEndian.Uint32(resp[8:12])
	if n == 0 {
		return devproto.DefaultH264BufferCapacity, nil
	}
	return int(n), nil
}

// UploadFile writes payload to targetPath on the device's filesystem.
// The argument region carries both lengths big-endian followed by the
// raw path bytes, all inside the fixed 492-byte argument region.
func (c *Controller) UploadFile(ctx context.Context, targetPath string, payload []byte) error {
	name := []byte(targetPath)
	if len(name) > 492-8 {
		name = name[:492-8]
	}
	args := make([]byte, 8+len(name))
	binary.BigEndian.PutUint32(args[0:4], uint32(len(name)))
	binary.BigEndian.PutUint32(args[4:8], uint32(len(payload)))
	copy(args[8:], name)
	return c.sendWithPayload(ctx, devproto.CmdUploadFile, args, payload)
}

// DeleteFile removes a named file from the device's filesystem.
func (c *Controller) DeleteFile(ctx context.Context, name string) error {
	_, err := c.send(ctx, devproto.CmdDeleteFile, []byte(name), false)
	return err
}

// SyncClock stamps the device's wall clock and selects its overlay mode
// (0=disable, 1=enable, 2=sync only — used before streaming to silence
// the on-screen clock without disabling the hardware clock entirely).
func (c *Controller) SyncClock(ctx context.Context, mode int) error {
	now := time.Now()
	args := []byte{
		byte(now.Year() >> 8), byte(now.Year()),
		byte(now.Month()), byte(now.Day()),
		byte(now.Hour()), byte(now.Minute()), byte(now.Second()),
		byte(mode),
	}
	_, err := c.send(ctx, devproto.CmdSyncClock, args, false)
	return err
}

// StopClock halts the on-screen clock overlay.
func (c *Controller) StopClock(ctx context.Context) error {
	_, err := c.send(ctx, devproto.CmdStopClock, []byte{0}, false)
	return err
}

// QueryDir lists the device's onboard filesystem contents.
func (c *Controller) QueryDir(ctx context.Context) ([]byte, error) {
	return c.send(ctx, devproto.CmdQueryDir, nil, true)
}

// PushImage pushes a still image to one of the device's two display
// layers: the opaque background (png=false, cmd 101) or the transparent
// overlay (png=true, cmd 102). The background path has an observed
// size-limit defect above roughly 2KB; callers pushing arbitrary-size
// content should use the overlay path regardless of actual transparency
// needs.
func (c *Controller) PushImage(ctx context.Context, png bool, image []byte) error {
	cmd := byte(devproto.CmdPushJPG)
	if png {
		cmd = devproto.CmdPushPNG
	}
	return c.sendWithPayload(ctx, cmd, beUint32(len(image)), image)
}

// PrepareDisplay runs the device's known-good sequence for entering a
// blank, known state before pushing new content: switch to the
// sync-only clock mode, stop the on-screen clock overlay, then clear
// both display layers. Both the overlay and the background layer are
// pushed through the overlay command (102): the background command's
// size-limit defect means nothing but the overlay path is dependable
// here, so both clears are sent through it.
func (c *Controller) PrepareDisplay(ctx context.Context, transparentPNG, blackPNG []byte) error {
	if err := c.SyncClock(ctx, 2); err != nil {
		return fmt.Errorf("lcdctl: sync clock: %w", err)
	}
	if err := c.StopClock(ctx); err != nil {
		return fmt.Errorf("lcdctl: stop clock: %w", err)
	}
	if err := c.PushImage(ctx, true, transparentPNG); err != nil {
		return fmt.Errorf("lcdctl: push overlay: %w", err)
	}
	if err := c.PushImage(ctx, true, blackPNG); err != nil {
		return fmt.Errorf("lcdctl: push background: %w", err)
	}
	return nil
}

// SendChunk sends one chunk of a streamed elementary video file to slot
// and returns the device's query response so the caller can inspect
// buffer depth without a second round trip. This single command both
// starts playback on the first call and feeds it on every subsequent
// call — there is no separate "start" step. playCount is fixed for the
// whole stream, not a per-chunk sequence number.
func (c *Controller) SendChunk(ctx context.Context, slot devproto.PlaybackSlot, playCount byte, chunk []byte) ([]byte, error) {
	args := append(beUint32(len(chunk)), 0x00, playCount)
	frame := codec.BuildPayloadPacket(slot.CmdID(), args, chunk)
	resp, wrote := c.sender.Send(ctx, frame, true)
	if !wrote {
		return nil, devproto.ErrTransportIO
	}
	return resp, nil
}

// QueryBlock reads the given slot's current buffer depth, used by the
// streamer's flow-control loop.
func (c *Controller) QueryBlock(ctx context.Context, slot devproto.PlaybackSlot) (depth int, err error) {
	resp, err := c.send(ctx, devproto.CmdQueryBlock, nil, true)
	if err != nil {
		return 0, err
	}
	offset := slot.BufferDepthOffset()
	if len(resp) <= offset {
		return 0, devproto.ErrBadResponse
	}
	return int(resp[offset]), nil
}

// StopPlay halts streamed playback.
func (c *Controller) StopPlay(ctx context.Context) error {
	_, err := c.send(ctx, devproto.CmdStopPlay, nil, false)
	return err
}

// SwitchDesktop switches the device back to showing the host desktop.
func (c *Controller) SwitchDesktop(ctx context.Context) error {
	_, err := c.send(ctx, devproto.CmdSwitchDesktop, nil, false)
	return err
}

// GetTemperature reads the coolant loop temperature, big-endian at
// response offset 8, from AIO-cooler variants of the device.
func (c *Controller) GetTemperature(ctx context.Context) (int, error) {
	resp, err := c.send(ctx, devproto.CmdGetTemperature, nil, true)
	if err != nil {
		return 0, err
	}
	if len(resp) < 10 {
		return 0, devproto.ErrBadResponse
	}
	return int(binary.BigEndian.Uint16(resp[8:10])), nil
}

// SetPumpSpeed sets the coolant pump duty cycle as a percentage,
// clamped to [0, 100].
func (c *Controller) SetPumpSpeed(ctx context.Context, percent int) error {
	_, err := c.send(ctx, devproto.CmdSetPumpSpeed, []byte{byte(clamp(percent, 0, 100))}, false)
	return err
}

// GetPumpSpeed reads back the coolant pump's current duty cycle.
func (c *Controller) GetPumpSpeed(ctx context.Context) (int, error) {
	resp, err := c.send(ctx, devproto.CmdGetPumpSpeed, nil, true)
	if err != nil {
		return 0, err
	}
	if len(resp) < 9 {
		return 0, devproto.ErrBadResponse
	}
	return int(resp[8]), nil
}
