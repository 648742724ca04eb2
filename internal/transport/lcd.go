// Package transport drives the two USB endpoints of the peripheral: the
// LCD's bulk interface and the LED ring's HID interface. Both are built on
// github.com/google/gousb, following the claim/endpoint/write pattern the
// teacher repo uses for its own USB device (open by VID/PID, set config,
// claim interface, open endpoints, write/read with a timeout).
package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"

	"lcdring/internal/devproto"
)

// LCDTransport owns the bulk USB interface to the monitor-mode device. It
// is accessed only from the main control thread; no internal locking.
type LCDTransport struct {
	ctx    *gousb.Context
	waker  Waker
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// Waker wakes the device from standby mode. Implemented by ModeCoordinator;
// kept as an interface so LCDTransport depends only on the Wake call.
type Waker interface {
	Wake(ctx context.Context) (bool, error)
}

// NewLCDTransport creates a transport bound to ctx's USB context. The
// caller owns ctx and must close it after the transport is done.
func NewLCDTransport(ctx *gousb.Context, waker Waker) *LCDTransport {
	return &LCDTransport{ctx: ctx, waker: waker}
}

// Connect locates the monitor-mode device, waking it from standby if
// necessary, detaches any bound kernel driver, sets the configuration and
// claims interface 0. Returns devproto.ErrDeviceAbsent if neither mode is
// present after a wake attempt.
func (t *LCDTransport) Connect(ctx context.Context) error {
	device, err := t.ctx.OpenDeviceWithVIDPID(devproto.MonitorVID, devproto.MonitorPID)
	if err != nil {
		return fmt.Errorf("transport: probe monitor device: %w", err)
	}

	if device == nil {
		log.Printf("lcd transport: monitor device absent, attempting wake")
		woke, wakeErr := t.waker.Wake(ctx)
		if wakeErr != nil {
			return fmt.Errorf("transport: wake: %w", wakeErr)
		}
		if !woke {
			return devproto.ErrDeviceAbsent
		}
		device, err = t.ctx.OpenDeviceWithVIDPID(devproto.MonitorVID, devproto.MonitorPID)
		if err != nil {
			return fmt.Errorf("transport: reprobe monitor device: %w", err)
		}
		if device == nil {
			return devproto.ErrDeviceAbsent
		}
	}

	return t.claim(device)
}

// claim detaches a bound kernel driver (best-effort), sets the
// configuration and claims interface 0, opening both endpoints.
func (t *LCDTransport) claim(device *gousb.Device) error {
	if err := device.SetAutoDetach(true); err != nil {
		log.Printf("lcd transport: set auto-detach: %v (continuing)", err)
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		return fmt.Errorf("transport: set config: %w", err)
	}

	intf, err := config.Interface(devproto.MonitorInterface, 0)
	if err != nil {
		config.Close()
		device.Close()
		return fmt.Errorf("transport: claim interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(devproto.EndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("transport: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(devproto.EndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("transport: open in endpoint: %w", err)
	}

	t.device, t.config, t.intf, t.epOut, t.epIn = device, config, intf, epOut, epIn
	return nil
}

// Close releases the interface, config and device.
func (t *LCDTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
	}
	if t.config != nil {
		t.config.Close()
	}
	if t.device != nil {
		return t.device.Close()
	}
	return nil
}

// Send writes frame to the OUT endpoint and, if wantResponse is true,
// reads a 512-byte response with a fixed timeout. It first drains any
// stale bytes on the IN endpoint to prevent response desync, and drains
// again after a successful read. A write failure triggers one reconnect
// and retry; a second failure returns (nil, false). A read timeout
// returns (nil, true) — the write succeeded, there is simply no response
// to report.
func (t *LCDTransport) Send(ctx context.Context, frame []byte, wantResponse bool) (resp []byte, wrote bool) {
	t.drainRead()

	writeTimeout := devproto.WriteTimeout(len(frame))
	if err := t.write(ctx, frame, writeTimeout); err != nil {
		log.Printf("lcd transport: write failed, reconnecting: %v", err)
		if rerr := t.reconnect(ctx); rerr != nil {
			log.Printf("lcd transport: reconnect failed: %v", rerr)
			return nil, false
		}
		if err := t.write(ctx, frame, writeTimeout); err != nil {
			log.Printf("lcd transport: write failed after reconnect: %v", err)
			return nil, false
		}
	}

	if !wantResponse {
		return nil, true
	}

	buf := make([]byte, devproto.CommandFrameSize)
	n, err := t.read(ctx, buf, devproto.ReadTimeout)
	if err != nil {
		return nil, true
	}
	t.drainRead()
	return buf[:n], true
}

func (t *LCDTransport) write(ctx context.Context, data []byte, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := t.epOut.WriteContext(wctx, data)
	return err
}

func (t *LCDTransport) read(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.epIn.ReadContext(rctx, buf)
}

// drainRead repeatedly reads with a short timeout until the IN endpoint is
// empty, to prevent a stale response from desyncing the next exchange.
func (t *LCDTransport) drainRead() {
	buf := make([]byte, devproto.CommandFrameSize)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), devproto.DrainReadTimeout)
		_, err := t.epIn.ReadContext(ctx, buf)
		cancel()
		if err != nil {
			return
		}
	}
}

// reconnect releases and disposes the current device handle, waits, then
// re-finds and re-claims. Used only from the Send error path.
func (t *LCDTransport) reconnect(ctx context.Context) error {
	_ = t.Close()
	t.device, t.config, t.intf, t.epOut, t.epIn = nil, nil, nil, nil, nil

	time.Sleep(devproto.ReconnectDelay)

	device, err := t.ctx.OpenDeviceWithVIDPID(devproto.MonitorVID, devproto.MonitorPID)
	if err != nil {
		return fmt.Errorf("transport: reconnect probe: %w", err)
	}
	if device == nil {
		return devproto.ErrDeviceAbsent
	}
	return t.claim(device)
}
