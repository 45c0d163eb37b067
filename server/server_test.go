package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentrycam/sentry-go/hub"
	"github.com/sentrycam/sentry-go/model"
	"github.com/sentrycam/sentry-go/service/metrics"
)

var errAlreadyRunning = errors.New("camera already running")

type fakeController struct {
	status    model.StatusReport
	frameRate int
}

func (f *fakeController) Status() model.StatusReport {
	f.status.FrameRate = f.frameRate
	return f.status
}

func (f *fakeController) Stats() model.RunnerStats {
	return model.RunnerStats{Name: "test", FPS: f.frameRate}
}

func (f *fakeController) SetFrameRate(rate int) model.FrameRateResult {
	if rate < 1 || rate > 60 {
		return model.FrameRateResult{Success: false, FrameRate: f.frameRate, Message: "frame rate must be between 1 and 60"}
	}
	f.frameRate = rate
	return model.FrameRateResult{Success: true, FrameRate: rate}
}

func (f *fakeController) StartCamera() error {
	if f.status.Running {
		return errAlreadyRunning
	}
	f.status.Running = true
	return nil
}

func (f *fakeController) StopCamera() {
	f.status.Running = false
}

func (f *fakeController) ActivateProtection() model.ActivationResult {
	if !f.status.Running {
		return model.ActivationResult{Success: false, Message: "no frame available"}
	}
	f.status.ProtectionActive = true
	f.status.ProtectedItemCount = 2
	return model.ActivationResult{Success: true, ObjectCount: 2}
}

func (f *fakeController) DeactivateProtection() {
	f.status.ProtectionActive = false
	f.status.ProtectedItemCount = 0
}

func newTestServer(ctrl *fakeController) (*httptest.Server, *hub.Hub) {
	m := metrics.New()
	h := hub.New(m)
	s := New(0, ctrl, h, m)
	return httptest.NewServer(s.routes()), h
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ctrl.status.Running = true
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got model.StatusReport
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Running || got.FrameRate != 30 {
		t.Fatalf("unexpected status: %+v", got)
	}
}

func TestSetFrameRateValid(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/set_frame_rate/15", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var got model.FrameRateResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Success || got.FrameRate != 15 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if ctrl.frameRate != 15 {
		t.Fatalf("controller not updated, rate %d", ctrl.frameRate)
	}
}

func TestSetFrameRateOutOfRange(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	for _, rate := range []string{"0", "61", "-5"} {
		resp, err := http.Post(ts.URL+"/set_frame_rate/"+rate, "application/json", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("rate %s: expected 400, got %d", rate, resp.StatusCode)
		}
	}

	if ctrl.frameRate != 30 {
		t.Fatalf("rejected rates must not mutate the controller, rate %d", ctrl.frameRate)
	}
}

func TestSetFrameRateNonNumeric(t *testing.T) {
	ts, _ := newTestServer(&fakeController{frameRate: 30})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/set_frame_rate/fast", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCameraStartStopRoundTrip(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/start_camera", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if !ctrl.status.Running {
		t.Fatal("expected camera running after start")
	}

	resp, err = http.Post(ts.URL+"/stop_camera", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ctrl.status.Running {
		t.Fatal("expected camera stopped after stop")
	}

	// A stopped camera can be started again.
	resp, err = http.Post(ts.URL+"/start_camera", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on restart, got %d", resp.StatusCode)
	}
	if !ctrl.status.Running {
		t.Fatal("expected camera running after restart")
	}
}

func TestStartCameraWhileRunningConflicts(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ctrl.status.Running = true
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/start_camera", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["success"] != false || got["message"] != "camera already running" {
		t.Fatalf("unexpected body: %v", got)
	}
}

func TestActivateWithoutFrame(t *testing.T) {
	ts, _ := newTestServer(&fakeController{frameRate: 30})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/activate_protection", "application/json", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var got model.ActivationResult
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Success || got.Message != "no frame available" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDeactivateAlwaysSucceeds(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ts, _ := newTestServer(ctrl)
	defer ts.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/deactivate_protection", "application/json", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	}
	if ctrl.status.ProtectionActive {
		t.Fatal("expected protection inactive")
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, _ := newTestServer(&fakeController{frameRate: 24})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var got model.RunnerStats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FPS != 24 {
		t.Fatalf("unexpected stats: %+v", got)
	}
}

func TestWebSocketFrameAndAlert(t *testing.T) {
	ctrl := &fakeController{frameRate: 30}
	ts, h := newTestServer(ctrl)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered with the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.BroadcastFrame([]byte{0xff, 0xd8, 0x01})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d", kind)
	}
	if len(payload) != 3 || payload[0] != 0xff {
		t.Fatalf("unexpected frame payload: %v", payload)
	}

	alert, _ := json.Marshal(model.AlertEnvelope{
		Type: "alert",
		Data: model.AlertEvent{Timestamp: 123.5},
	})
	h.BroadcastAlert(alert)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read alert: %v", err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("expected text alert, got type %d", kind)
	}

	var envelope model.AlertEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("unmarshal alert: %v", err)
	}
	if envelope.Type != "alert" || envelope.Data.Timestamp != 123.5 {
		t.Fatalf("unexpected alert envelope: %+v", envelope)
	}
}

func TestWebSocketCatchUpFrame(t *testing.T) {
	ts, h := newTestServer(&fakeController{frameRate: 30})
	defer ts.Close()

	h.BroadcastFrame([]byte("latest"))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage || string(payload) != "latest" {
		t.Fatalf("expected catch-up frame, got type %d payload %q", kind, payload)
	}
}
