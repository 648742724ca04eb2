// lcdringd: portrait LCD and ambient LED ring driver daemon
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
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/gousb"

	"lcdring/internal/ambilight"
	"lcdring/internal/api"
	"lcdring/internal/config"
	"lcdring/internal/devproto"
	"lcdring/internal/lcdctl"
	"lcdring/internal/stream"
	"lcdring/internal/transport"
)

const pidFile = "/tmp/lcdringd.pid"

var (
	port          = flag.Int("port", 8090, "API server listen port")
	pidfilePath   = flag.String("pidfile", "", "write the daemon pid here (best effort, not a full daemonizer)")
	ambilightFlag = flag.Bool("ambilight", false, "start the ambilight worker and decoder bridge on launch")
	decoderPath   = flag.String("decoder", "", "decoder binary path override (defaults to config/ffmpeg)")
	sampleWidth   = flag.Int("sample-width", 120, "ambilight decode width")
	sampleHeight  = flag.Int("sample-height", 480, "ambilight decode height")
)

func writePidFile(path string) {
	if path == "" {
		return
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644); err != nil {
		log.Printf("lcdringd: failed to write pidfile %s: %v", path, err)
	}
}

func cleanupPidFile(path string) {
	if path == "" {
		return
	}
	os.Remove(path)
}

func main() {
	flag.Parse()
	pf := *pidfilePath
	if pf == "" {
		pf = pidFile
	}
	writePidFile(pf)
	defer cleanupPidFile(pf)

	cfg := config.MustGetDriverConfig()

	usbCtx := gousb.NewContext()
	defer usbCtx.Close()

	mode := transport.NewModeCoordinator(usbCtx)
	lcdTransport := transport.NewLCDTransport(usbCtx, mode)

	connectCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err := lcdTransport.Connect(connectCtx)
	cancel()
	if err != nil {
		log.Fatalf("lcdringd: lcd connect: %v", err)
	}
	defer lcdTransport.Close()

	lcd := lcdctl.New(lcdTransport)
	if err := lcd.Init(context.Background()); err != nil {
		log.Printf("lcdringd: init: %v", err)
	}
	if cfg.Framerate > 0 {
		if err := lcd.SetFramerate(context.Background(), cfg.Framerate); err != nil {
			log.Printf("lcdringd: set framerate: %v", err)
		}
	}
	if cfg.Brightness > 0 {
		if err := lcd.SetBrightness(context.Background(), cfg.Brightness); err != nil {
			log.Printf("lcdringd: set brightness: %v", err)
		}
	}

	streamer := stream.New(lcd)

	var worker *ambilight.Worker
	var ring ambilight.Ring
	if cfg.AmbilightEnabled || *ambilightFlag {
		ledTransport := transport.NewLEDTransport(usbCtx)
		if err := ledTransport.Connect(); err != nil {
			log.Printf("lcdringd: led connect: %v", err)
		} else {
			defer ledTransport.Close()
			ledRing := ambilight.NewLedRing(ledTransport)
			ring = ledRing
			worker = ambilight.NewWorker(ledRing, devproto.AmbilightTickEvery, 0)

			decoderBin := *decoderPath
			if decoderBin == "" {
				decoderBin = config.DecoderPathOrDefault()
			}
			bridge := ambilight.NewDecoderBridge(decoderBin, nil, worker, *sampleWidth, *sampleHeight)
			go func() {
				if err := bridge.Run(context.Background(), true); err != nil {
					log.Printf("lcdringd: decoder bridge: %v", err)
				}
			}()
			go worker.Run(context.Background())
		}
	}

	server := api.New(lcd, streamer, worker, ring)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Router(),
	}

	go func() {
		log.Printf("lcdringd: listening on :%d", *port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("lcdringd: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("lcdringd: shutting down")
	if worker != nil {
		worker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("lcdringd: shutdown error: %v", err)
	}
	log.Println("lcdringd: stopped")
}
