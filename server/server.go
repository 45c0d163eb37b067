package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gocv.io/x/gocv"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/lgr"
	"github.com/sentrycam/sentry-go/service/metrics"
)

// Controller is the pipeline control surface the HTTP layer drives.
type Controller interface {
	Status() model.StatusReport
	Stats() model.RunnerStats
	SetFrameRate(rate int) model.FrameRateResult
	StartCamera() error
	StopCamera()
	ActivateProtection() model.ActivationResult
	DeactivateProtection()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers on the LAN connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	port       int
	controller Controller
	hub        *hub.Hub
	metrics    *metrics.Metrics

	placeholder []byte
}

func New(port int, controller Controller, h *hub.Hub, m *metrics.Metrics) *Server {
	return &Server{
		port:        port,
		controller:  controller,
		hub:         h,
		metrics:     m,
		placeholder: waitingFrame(),
	}
}

// Run serves until canxCtx is cancelled, then shuts down gracefully.
func (s *Server) Run(canxCtx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		lgr.Logger.Info("http server listening", slog.Int("port", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-canxCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lgr.Logger.Warn("http shutdown", slog.Any("error", err))
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("POST /set_frame_rate/{rate}", s.handleSetFrameRate)
	mux.HandleFunc("GET /set_frame_rate/{rate}", s.handleSetFrameRate)
	mux.HandleFunc("POST /start_camera", s.handleStartCamera)
	mux.HandleFunc("GET /start_camera", s.handleStartCamera)
	mux.HandleFunc("POST /stop_camera", s.handleStopCamera)
	mux.HandleFunc("GET /stop_camera", s.handleStopCamera)
	mux.HandleFunc("POST /activate_protection", s.handleActivate)
	mux.HandleFunc("GET /activate_protection", s.handleActivate)
	mux.HandleFunc("POST /deactivate_protection", s.handleDeactivate)
	mux.HandleFunc("GET /deactivate_protection", s.handleDeactivate)
	mux.HandleFunc("GET /video_feed", s.handleVideoFeed)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lgr.Logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := newWSClient(uuid.NewString(), conn)
	go client.writePump()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	s.hub.Connect(client)
	lgr.Logger.Info("client connected", slog.String("client", client.id))

	// Block on the read loop; inbound payloads are ignored, errors mean
	// the client went away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.hub.Disconnect(client)
	lgr.Logger.Info("client disconnected", slog.String("client", client.id))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Stats())
}

func (s *Server) handleSetFrameRate(w http.ResponseWriter, r *http.Request) {
	rate, err := strconv.Atoi(r.PathValue("rate"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, model.FrameRateResult{
			Success: false,
			Message: "frame rate must be an integer",
		})
		return
	}

	result := s.controller.SetFrameRate(rate)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, result)
}

func (s *Server) handleStartCamera(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.StartCamera(); err != nil {
		writeJSON(w, http.StatusConflict, map[string]any{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "camera started",
	})
}

func (s *Server) handleStopCamera(w http.ResponseWriter, r *http.Request) {
	s.controller.StopCamera()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "camera stopped",
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	result := s.controller.ActivateProtection()
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, result)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.controller.DeactivateProtection()
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleVideoFeed streams MJPEG for plain <img> consumers. It always has
// something to show: before the first capture it serves a placeholder.
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame := s.hub.LastFrame()
		if frame == nil {
			frame = s.placeholder
		}

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}
		flusher.Flush()

		rate := s.controller.Status().FrameRate
		if rate < 1 {
			rate = 1
		}
		select {
		case <-r.Context().Done():
			return
		case <-time.After(time.Second / time.Duration(rate)):
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lgr.Logger.Warn("failed to write response", slog.Any("error", err))
	}
}

// waitingFrame renders the placeholder shown before the camera delivers its
// first frame.
func waitingFrame() []byte {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(40, 40, 40, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer mat.Close()

	gocv.PutText(&mat, "Waiting for camera...",
		image.Pt(170, 245),
		gocv.FontHersheySimplex, 0.8, color.RGBA{R: 200, G: 200, B: 200}, 2)

	buf, err := gocv.IMEncode(".jpg", mat)
	if err != nil {
		return nil
	}
	defer buf.Close()

	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data
}
