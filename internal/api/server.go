// Package api exposes the driver's control surface over HTTP: brightness,
// rotation, playback control, and ambilight toggling. It is a thin layer
// over lcdctl.Controller, stream.Streamer and ambilight.Worker; it holds
// no device state of its own beyond what those packages already track.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"lcdring/internal/ambilight"
	"lcdring/internal/devproto"
	"lcdring/internal/lcdctl"
	"lcdring/internal/stream"
)

// Server wires the driver's components to a gin router.
type Server struct {
	lcd       *lcdctl.Controller
	streamer  *stream.Streamer
	worker    *ambilight.Worker
	ring      ambilight.Ring
	startTime time.Time

	mu              sync.RWMutex
	ambilightOn     bool
	streamCancel    context.CancelFunc
	ambilightCancel context.CancelFunc

	totalStreams   atomic.Int64
	abortedStreams atomic.Int64
}

// New returns a Server backed by the given components. worker and ring may
// be nil when ambilight support is not configured.
func New(lcd *lcdctl.Controller, streamer *stream.Streamer, worker *ambilight.Worker, ring ambilight.Ring) *Server {
	return &Server{
		lcd:       lcd,
		streamer:  streamer,
		worker:    worker,
		ring:      ring,
		startTime: time.Now(),
	}
}

// Router builds the gin engine exposing the driver's REST surface.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/device/version", s.handleVersion)
		v1.GET("/device/temperature", s.handleTemperature)

		v1.POST("/display/brightness", s.handleSetBrightness)
		v1.POST("/display/rotation", s.handleSetRotation)
		v1.POST("/display/framerate", s.handleSetFramerate)
		v1.POST("/display/switch-desktop", s.handleSwitchDesktop)

		v1.POST("/playback/start", s.handleStartPlayback)
		v1.POST("/playback/stop", s.handleStopPlayback)

		v1.POST("/ambilight/on", s.handleAmbilightOn)
		v1.POST("/ambilight/off", s.handleAmbilightOff)
		v1.GET("/ambilight/status", s.handleAmbilightStatus)
	}
	return router
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) fail(c *gin.Context, status int, err error) {
	c.JSON(status, errorResponse{Error: err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) handleVersion(c *gin.Context) {
	resp, err := s.lcd.GetVersion(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"version": resp})
}

func (s *Server) handleTemperature(c *gin.Context) {
	temp, err := s.lcd.GetTemperature(c.Request.Context())
	if err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"celsius": temp})
}

type brightnessRequest struct {
	Brightness int `json:"brightness"`
}

func (s *Server) handleSetBrightness(c *gin.Context) {
	var req brightnessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.lcd.SetBrightness(c.Request.Context(), req.Brightness); err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"brightness": lcdctl.ClampBrightness(req.Brightness)})
}

type rotationRequest struct {
	Rotation int `json:"rotation"`
}

func (s *Server) handleSetRotation(c *gin.Context) {
	var req rotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.lcd.SetRotation(c.Request.Context(), req.Rotation); err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rotation": lcdctl.ClampRotation(req.Rotation)})
}

type framerateRequest struct {
	Framerate int `json:"framerate"`
}

func (s *Server) handleSetFramerate(c *gin.Context) {
	var req framerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if err := s.lcd.SetFramerate(c.Request.Context(), req.Framerate); err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"framerate": lcdctl.ClampFramerate(req.Framerate)})
}

func (s *Server) handleSwitchDesktop(c *gin.Context) {
	if err := s.lcd.SwitchDesktop(c.Request.Context()); err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type playbackRequest struct {
	FilePath string `json:"file_path"`
	Slot     int    `json:"slot"`
	Loop     bool   `json:"loop"`
}

// handleStartPlayback launches a stream in the background and returns
// immediately; only one stream may run at a time.
func (s *Server) handleStartPlayback(c *gin.Context) {
	var req playbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	if s.streamCancel != nil {
		s.mu.Unlock()
		s.fail(c, http.StatusConflict, fmt.Errorf("playback already in progress"))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.streamCancel = cancel
	s.mu.Unlock()

	s.totalStreams.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			s.streamCancel = nil
			s.mu.Unlock()
		}()
		outcome, err := s.streamer.Stream(ctx, stream.Request{
			FilePath: req.FilePath,
			Slot:     devproto.PlaybackSlot(req.Slot),
			Loop:     req.Loop,
			PlayCount: 1,
		})
		if err != nil || outcome == stream.Aborted {
			s.abortedStreams.Add(1)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (s *Server) handleStopPlayback(c *gin.Context) {
	s.mu.Lock()
	cancel := s.streamCancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.lcd.StopPlay(c.Request.Context()); err != nil {
		s.fail(c, http.StatusServiceUnavailable, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAmbilightOn(c *gin.Context) {
	if s.worker == nil {
		s.fail(c, http.StatusServiceUnavailable, fmt.Errorf("ambilight not configured"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ambilightOn {
		ctx, cancel := context.WithCancel(context.Background())
		s.ambilightCancel = cancel
		go s.worker.Run(ctx)
		s.ambilightOn = true
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAmbilightOff(c *gin.Context) {
	if s.worker == nil {
		s.fail(c, http.StatusServiceUnavailable, fmt.Errorf("ambilight not configured"))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.worker.Stop()
	if s.ambilightCancel != nil {
		s.ambilightCancel()
		s.ambilightCancel = nil
	}
	s.ambilightOn = false
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAmbilightStatus(c *gin.Context) {
	s.mu.RLock()
	on := s.ambilightOn
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{
		"enabled":         on,
		"total_streams":   s.totalStreams.Load(),
		"aborted_streams": s.abortedStreams.Load(),
	})
}
