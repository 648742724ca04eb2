package ambilight

import (
	"context"
	"fmt"

	"lcdring/internal/devproto"
)

// NumLEDs is the ring's fixed LED count.
const NumLEDs = 60

const ledsPerGroup = 20

// PacketSender is the subset of LEDTransport the ring controller needs.
type PacketSender interface {
	SendPacket(ctx context.Context, packet []byte, wantResponse bool) ([]byte, error)
}

// LedRing packs RGB triples into the three fixed-size HID packets the
// ring expects and sends them fire-and-forget.
type LedRing struct {
	sender PacketSender
}

// NewLedRing returns a ring controller dispatching through sender.
func NewLedRing(sender PacketSender) *LedRing {
	return &LedRing{sender: sender}
}

// Set sends leds (up to NumLEDs triples) as three 64-byte packets, one
// per group of 20, sent in order 0, 1, 2 for reproducibility. Packet
// ordering between groups has no significance to the device.
func (r *LedRing) Set(ctx context.Context, leds []RGB) error {
	for group := 0; group < 3; group++ {
		packet := make([]byte, devproto.LEDPacketSize)
		packet[0] = 17
		packet[1] = byte(group * ledsPerGroup)
		for i := 0; i < ledsPerGroup; i++ {
			idx := group*ledsPerGroup + i
			if idx >= len(leds) {
				break
			}
			led := leds[idx]
			packet[4+i*3] = led.R
			packet[4+i*3+1] = led.G
			packet[4+i*3+2] = led.B
		}
		if _, err := r.sender.SendPacket(ctx, packet, false); err != nil {
			return fmt.Errorf("ambilight: send group %d: %w", group, err)
		}
	}
	return nil
}

// SetAll sets every LED to the same color.
func (r *LedRing) SetAll(ctx context.Context, c RGB) error {
	leds := make([]RGB, NumLEDs)
	for i := range leds {
		leds[i] = c
	}
	return r.Set(ctx, leds)
}

// Off turns every LED off.
func (r *LedRing) Off(ctx context.Context) error {
	return r.SetAll(ctx, RGB{})
}

// GetVersion queries the ring's firmware version, formatted "major_minor".
func (r *LedRing) GetVersion(ctx context.Context) (string, error) {
	packet := make([]byte, devproto.LEDPacketSize)
	packet[0] = 16
	resp, err := r.sender.SendPacket(ctx, packet, true)
	if err != nil {
		return "", fmt.Errorf("ambilight: get version: %w", err)
	}
	if len(resp) < 3 || resp[0] != 16 || resp[1] == 0 {
		return "", devproto.ErrBadResponse
	}
	return fmt.Sprintf("%d_%d", resp[1], resp[2]), nil
}
