package ambilight

import (
	"context"
	"image"
	"image/color"
	"io"
	"log"
	"os/exec"
	"syscall"
	"time"

	"lcdring/internal/devproto"
)

// FrameSink receives decoded frames. Satisfied by *Worker.
type FrameSink interface {
	UpdateFrame(frame *image.RGBA)
}

// DecoderBridge owns an external decoder subprocess that emits
// downscaled raw RGB24 frames on stdout, and feeds them to a FrameSink.
type DecoderBridge struct {
	binPath       string
	args          []string
	sink          FrameSink
	sampleW       int
	sampleH       int
	killGrace     time.Duration
	startCommand  func(ctx context.Context, name string, args ...string) runningProcess
}

// runningProcess is the subset of *exec.Cmd the bridge needs, abstracted
// so tests can substitute a fake decoder without spawning a real
// process.
type runningProcess interface {
	StdoutPipe() (io.ReadCloser, error)
	Start() error
	Wait() error
	Kill() error
}

// NewDecoderBridge returns a bridge that spawns binPath with args and
// reads sampleW*sampleH*3-byte RGB24 frames from its stdout.
func NewDecoderBridge(binPath string, args []string, sink FrameSink, sampleW, sampleH int) *DecoderBridge {
	return &DecoderBridge{
		binPath:      binPath,
		args:         args,
		sink:         sink,
		sampleW:      sampleW,
		sampleH:      sampleH,
		killGrace:    devproto.DecoderKillGrace,
		startCommand: startExecProcess,
	}
}

// Run spawns the decoder and reads frames until ctx is done. If loop is
// set, a decoder that exits (EOF on stdout) is respawned; otherwise Run
// returns once the decoder exits.
func (d *DecoderBridge) Run(ctx context.Context, loop bool) error {
	frameSize := d.sampleW * d.sampleH * 3

	for {
		proc := d.startCommand(ctx, d.binPath, d.args...)
		stdout, err := proc.StdoutPipe()
		if err != nil {
			return err
		}
		if err := proc.Start(); err != nil {
			return err
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			d.readFrames(stdout, frameSize)
		}()

		select {
		case <-ctx.Done():
			d.terminate(proc)
			stdout.Close()
			<-done
			return ctx.Err()
		case <-done:
			d.terminate(proc)
			_ = proc.Wait()
		}

		if !loop {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (d *DecoderBridge) readFrames(stdout io.Reader, frameSize int) {
	buf := make([]byte, frameSize)
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			return
		}
		d.sink.UpdateFrame(rgb24ToImage(buf, d.sampleW, d.sampleH))
	}
}

// terminate asks the decoder to exit, escalating to a kill after
// killGrace if it hasn't.
func (d *DecoderBridge) terminate(proc runningProcess) {
	if ep, ok := proc.(*execProcess); ok && ep.cmd.Process != nil {
		_ = ep.cmd.Process.Signal(syscall.SIGTERM)
	}

	waited := make(chan struct{})
	go func() {
		_ = proc.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(d.killGrace):
		if err := proc.Kill(); err != nil {
			log.Printf("ambilight: decoder kill: %v", err)
		}
		<-waited
	}
}

func rgb24ToImage(buf []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := (y*w + x) * 3
			img.Set(x, y, color.RGBA{buf[off], buf[off+1], buf[off+2], 255})
		}
	}
	return img
}

// execProcess adapts *exec.Cmd to runningProcess.
type execProcess struct {
	cmd *exec.Cmd
}

func startExecProcess(ctx context.Context, name string, args ...string) runningProcess {
	return &execProcess{cmd: exec.Command(name, args...)}
}

func (p *execProcess) StdoutPipe() (io.ReadCloser, error) { return p.cmd.StdoutPipe() }
func (p *execProcess) Start() error                       { return p.cmd.Start() }
func (p *execProcess) Wait() error                         { return p.cmd.Wait() }
func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
