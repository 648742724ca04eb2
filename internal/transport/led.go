package transport

import (
	"context"
	"fmt"

	"github.com/google/gousb"

	"lcdring/internal/devproto"
)

// LEDTransport owns the HID interface to the LED ring. Unlike LCDTransport
// it never reconnects on its own: the ring is a secondary, best-effort
// peripheral and a caller that cares about its presence reconnects at a
// higher level instead.
type LEDTransport struct {
	ctx    *gousb.Context
	device *gousb.Device
	config *gousb.Config
	intf   *gousb.Interface
	epOut  *gousb.OutEndpoint
	epIn   *gousb.InEndpoint
}

// NewLEDTransport creates a transport bound to ctx's USB context.
func NewLEDTransport(ctx *gousb.Context) *LEDTransport {
	return &LEDTransport{ctx: ctx}
}

// Connect opens the LED ring device and claims its single interface.
func (t *LEDTransport) Connect() error {
	device, err := t.ctx.OpenDeviceWithVIDPID(devproto.LEDVID, devproto.LEDPID)
	if err != nil {
		return fmt.Errorf("led transport: probe: %w", err)
	}
	if device == nil {
		return devproto.ErrDeviceAbsent
	}

	if err := device.SetAutoDetach(true); err != nil {
		// best-effort, as for the LCD transport
		_ = err
	}

	config, err := device.Config(1)
	if err != nil {
		device.Close()
		return fmt.Errorf("led transport: set config: %w", err)
	}

	intf, err := config.Interface(devproto.LEDInterface, 0)
	if err != nil {
		config.Close()
		device.Close()
		return fmt.Errorf("led transport: claim interface: %w", err)
	}

	epOut, err := intf.OutEndpoint(devproto.EndpointOut)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("led transport: open out endpoint: %w", err)
	}

	epIn, err := intf.InEndpoint(devproto.EndpointIn)
	if err != nil {
		intf.Close()
		config.Close()
		device.Close()
		return fmt.Errorf("led transport: open in endpoint: %w", err)
	}

	t.device, t.config, t.intf, t.epOut, t.epIn = device, config, intf, epOut, epIn
	return nil
}

// Close releases the interface, config and device.
func (t *LEDTransport) Close() error {
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

// SendPacket writes a single fixed-size (devproto.LEDPacketSize) HID
// packet and, if wantResponse is true, reads back one packet with a short
// timeout. A missing response is not an error: most LED commands are
// fire-and-forget.
func (t *LEDTransport) SendPacket(ctx context.Context, packet []byte, wantResponse bool) ([]byte, error) {
	wctx, cancel := context.WithTimeout(ctx, devproto.ReadTimeout)
	_, err := t.epOut.WriteContext(wctx, packet)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("led transport: write: %w", err)
	}

	if !wantResponse {
		return nil, nil
	}

	rctx, rcancel := context.WithTimeout(ctx, devproto.LEDReadTimeout)
	defer rcancel()
	buf := make([]byte, devproto.LEDPacketSize)
	n, err := t.epIn.ReadContext(rctx, buf)
	if err != nil {
		return nil, nil // timeout is not fatal for a best-effort read
	}
	return buf[:n], nil
}
