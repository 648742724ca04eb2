package transport

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/gousb"

	"lcdring/internal/devproto"
)

// ModeCoordinator wakes the device from standby and waits for it to
// re-enumerate as the monitor-mode identity. It implements Waker, which
// LCDTransport calls when the monitor-mode device is absent.
type ModeCoordinator struct {
	ctx *gousb.Context
}

// NewModeCoordinator returns a coordinator bound to ctx's USB context.
func NewModeCoordinator(ctx *gousb.Context) *ModeCoordinator {
	return &ModeCoordinator{ctx: ctx}
}

// Wake opens the standby HID device, writes the wake magic to its OUT
// endpoint, then polls for the monitor identity to appear, up to
// devproto.ModeSwitchMaxPolls times at devproto.ModeSwitchPollEvery.
// Returns (true, nil) once the monitor device is found, (false, nil) if
// the standby device itself is absent (nothing to wake), and an error
// only for a genuine I/O failure talking to the standby device.
func (m *ModeCoordinator) Wake(ctx context.Context) (bool, error) {
	standby, err := m.ctx.OpenDeviceWithVIDPID(devproto.StandbyVID, devproto.StandbyPID)
	if err != nil {
		return false, fmt.Errorf("mode: probe standby device: %w", err)
	}
	if standby == nil {
		return false, nil
	}
	defer standby.Close()

	if err := standby.SetAutoDetach(true); err != nil {
		log.Printf("mode: set auto-detach on standby device: %v (continuing)", err)
	}

	config, err := standby.Config(1)
	if err != nil {
		return false, fmt.Errorf("mode: set standby config: %w", err)
	}
	defer config.Close()

	intf, err := config.Interface(devproto.StandbyInterface, 0)
	if err != nil {
		return false, fmt.Errorf("mode: claim standby interface: %w", err)
	}
	defer intf.Close()

	epOut, err := intf.OutEndpoint(devproto.StandbyEndpointOut)
	if err != nil {
		return false, fmt.Errorf("mode: open standby out endpoint: %w", err)
	}

	packet := make([]byte, devproto.CommandFrameSize)
	copy(packet, devproto.WakeMagic)

	wctx, cancel := context.WithTimeout(ctx, devproto.ReadTimeout)
	_, err = epOut.WriteContext(wctx, packet)
	cancel()
	if err != nil {
		return false, fmt.Errorf("mode: write wake magic: %w", err)
	}

	return m.pollForMonitor(ctx), nil
}

// pollForMonitor probes for the monitor-mode identity at a fixed
// interval, giving up after devproto.ModeSwitchMaxPolls attempts.
func (m *ModeCoordinator) pollForMonitor(ctx context.Context) bool {
	ticker := time.NewTicker(devproto.ModeSwitchPollEvery)
	defer ticker.Stop()

	for i := 0; i < devproto.ModeSwitchMaxPolls; i++ {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}

		device, err := m.ctx.OpenDeviceWithVIDPID(devproto.MonitorVID, devproto.MonitorPID)
		if err != nil {
			continue
		}
		if device != nil {
			device.Close()
			return true
		}
	}
	return false
}
