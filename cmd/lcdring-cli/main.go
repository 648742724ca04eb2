// lcdring-cli: thin command-line front end for the LCD + LED ring driver
// Copyright (C) 2026  Guillermo Perry
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"

	"lcdring/internal/ambilight"
	"lcdring/internal/devproto"
	"lcdring/internal/lcdctl"
	"lcdring/internal/stream"
	"lcdring/internal/transport"
)

func usage() {
	fmt.Fprintln(os.Stderr, `lcdring-cli <command> [args]

Commands:
  test                 connect and report firmware version
  version               show firmware version
  image <file>          push a PNG/JPG file to the display
  play [--no-loop] <file>  play a raw H.264 elementary stream on slot 0
  color <RRGGBB>         fill the LED ring with one color
  brightness <0-100>     set display brightness
  stop                   stop video playback
  wake                   wake the device from standby
  led <RRGGBB>           alias for color
  upload <file> <target> upload a file to the device filesystem`)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	mode := transport.NewModeCoordinator(usbCtx)
	lcdTransport := transport.NewLCDTransport(usbCtx, mode)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := lcdTransport.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lcdring-cli: connect: %v\n", err)
		os.Exit(1)
	}
	defer lcdTransport.Close()

	lcd := lcdctl.New(lcdTransport)

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "test":
		err = runTest(lcd)
	case "version":
		err = runVersion(lcd)
	case "image":
		err = runImage(lcd, rest)
	case "play":
		err = runPlay(lcd, rest)
	case "color", "led":
		err = runColor(usbCtx, rest)
	case "brightness":
		err = runBrightness(lcd, rest)
	case "stop":
		err = lcd.StopPlay(context.Background())
	case "wake":
		_, err = mode.Wake(context.Background())
	case "upload":
		err = runUpload(lcd, rest)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "lcdring-cli: %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func runTest(lcd *lcdctl.Controller) error {
	resp, err := lcd.GetVersion(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("connected, firmware response: % x\n", resp)
	return nil
}

func runVersion(lcd *lcdctl.Controller) error {
	resp, err := lcd.GetVersion(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("% x\n", resp)
	return nil
}

func runImage(lcd *lcdctl.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: image <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	png := strings.HasSuffix(strings.ToLower(args[0]), ".png")
	return lcd.PushImage(context.Background(), png, data)
}

func runPlay(lcd *lcdctl.Controller, args []string) error {
	fs := flag.NewFlagSet("play", flag.ExitOnError)
	noLoop := fs.Bool("no-loop", false, "play once instead of looping")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: play [--no-loop] <file>")
	}

	streamer := stream.New(lcd)
	outcome, err := streamer.Stream(context.Background(), stream.Request{
		FilePath:  fs.Arg(0),
		Slot:      devproto.Slot0,
		Loop:      !*noLoop,
		PlayCount: 1,
	})
	if err != nil {
		return err
	}
	fmt.Printf("playback outcome: %d\n", outcome)
	return nil
}

func runColor(usbCtx *gousb.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: color <RRGGBB>")
	}
	c, err := parseHexColor(args[0])
	if err != nil {
		return err
	}

	ledTransport := transport.NewLEDTransport(usbCtx)
	if err := ledTransport.Connect(); err != nil {
		return err
	}
	defer ledTransport.Close()

	ring := ambilight.NewLedRing(ledTransport)
	return ring.SetAll(context.Background(), c)
}

func runBrightness(lcd *lcdctl.Controller, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: brightness <0-100>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return lcd.SetBrightness(context.Background(), n)
}

func runUpload(lcd *lcdctl.Controller, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: upload <file> <target>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	return lcd.UploadFile(context.Background(), args[1], data)
}

func parseHexColor(s string) (ambilight.RGB, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return ambilight.RGB{}, fmt.Errorf("color must be 6 hex digits, got %q", s)
	}
	n, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return ambilight.RGB{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return ambilight.RGB{
		R: uint8(n >> 16),
		G: uint8(n >> 8),
		B: uint8(n),
	}, nil
}
