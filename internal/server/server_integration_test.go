package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/hasta/internal/app"
	"github.com/ayusman/hasta/internal/capture"
	"github.com/ayusman/hasta/internal/config"
	"github.com/ayusman/hasta/internal/model"
	"github.com/ayusman/hasta/internal/store"
)

func testIntrinsics() capture.Intrinsics {
	return capture.Intrinsics{Fx: 100, Fy: 110, Cx: 32, Cy: 24, Width: 64, Height: 48, DepthScale: 1000}
}

func newTestServer(t *testing.T) (*httptest.Server, *Server) {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := config.Default()
	cfg.Camera = testIntrinsics()
	cfg.NumPoint = 500
	cfg.TopK = 5
	cfg.CollisionThresh = 0

	a, err := app.New(app.Config{Store: s, Pipeline: cfg}, nil, model.NewMockModel())
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(func() { a.Close() })

	srv := New(Config{Store: s, App: a})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, srv
}

func postFrame(t *testing.T, ts *httptest.Server, f *capture.Frame) *http.Response {
	t.Helper()

	depthPNG, colorPNG, err := capture.EncodePNG(f)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range map[string][]byte{"depth": depthPNG, "color": colorPNG} {
		fw, err := mw.CreateFormFile(name, name+".png")
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()

	resp, err := ts.Client().Post(ts.URL+"/api/detect", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("POST /api/detect error = %v", err)
	}
	return resp
}

func TestAPI_DetectWorkflow(t *testing.T) {
	ts, _ := newTestServer(t)
	client := ts.Client()

	// 1. Preview before any run
	resp, _ := client.Get(ts.URL + "/api/preview")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /api/preview before run status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()

	// 2. Detect
	frame := capture.ConstantDepthFrame(testIntrinsics(), 0.5)
	resp = postFrame(t, ts, frame)
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("POST status = %d, want %d: %s", resp.StatusCode, http.StatusOK, body)
	}
	var detected struct {
		RunID  string `json:"run_id"`
		Grasps []struct {
			Score float64 `json:"score"`
		} `json:"grasps"`
	}
	json.NewDecoder(resp.Body).Decode(&detected)
	resp.Body.Close()

	if detected.RunID == "" || len(detected.Grasps) == 0 {
		t.Fatalf("unexpected detect response: %+v", detected)
	}

	// 3. The run is listed
	resp, _ = client.Get(ts.URL + "/api/runs")
	var listed struct {
		Runs []struct {
			ID        string `json:"id"`
			Source    string `json:"source"`
			NumGrasps int    `json:"num_grasps"`
		} `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()

	if len(listed.Runs) != 1 || listed.Runs[0].ID != detected.RunID {
		t.Fatalf("unexpected runs: %+v", listed.Runs)
	}
	if listed.Runs[0].Source != "upload" || listed.Runs[0].NumGrasps != len(detected.Grasps) {
		t.Errorf("unexpected run record: %+v", listed.Runs[0])
	}

	// 4. Stored grasps match the response
	resp, _ = client.Get(ts.URL + "/api/runs/" + detected.RunID + "/grasps")
	var stored struct {
		Grasps []struct {
			Score float64 `json:"score"`
		} `json:"grasps"`
	}
	json.NewDecoder(resp.Body).Decode(&stored)
	resp.Body.Close()

	if len(stored.Grasps) != len(detected.Grasps) {
		t.Fatalf("stored %d grasps, detected %d", len(stored.Grasps), len(detected.Grasps))
	}
	for i := range stored.Grasps {
		if stored.Grasps[i].Score != detected.Grasps[i].Score {
			t.Errorf("grasp %d score %v, want %v", i, stored.Grasps[i].Score, detected.Grasps[i].Score)
		}
	}

	// 5. Preview is a JPEG
	resp, _ = client.Get(ts.URL + "/api/preview")
	img, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/preview status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Errorf("Content-Type = %s, want image/jpeg", ct)
	}
	if len(img) < 2 || img[0] != 0xFF || img[1] != 0xD8 {
		t.Error("preview is not a JPEG")
	}

	// 6. Delete and verify
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/runs/"+detected.RunID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(ts.URL + "/api/runs/" + detected.RunID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_SceneWebSocket(t *testing.T) {
	ts, srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/scene"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Scenes().Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := postFrame(t, ts, capture.ConstantDepthFrame(testIntrinsics(), 0.5))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST status = %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read scene: %v", err)
	}

	var msg struct {
		RunID string `json:"run_id"`
		Scene struct {
			Points   [][3]float32      `json:"points"`
			Grippers []json.RawMessage `json:"grippers"`
			Scores   []float64         `json:"scores"`
		} `json:"scene"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode scene: %v", err)
	}
	if msg.RunID == "" {
		t.Error("expected run_id")
	}
	if len(msg.Scene.Points) != 64*48 {
		t.Errorf("expected %d points, got %d", 64*48, len(msg.Scene.Points))
	}
	if len(msg.Scene.Grippers) != len(msg.Scene.Scores) || len(msg.Scene.Grippers) == 0 {
		t.Errorf("grippers %d, scores %d", len(msg.Scene.Grippers), len(msg.Scene.Scores))
	}

	// A late client gets the latest scene on connect.
	late, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer late.Close()
	late.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, replay, err := late.ReadMessage(); err != nil || !bytes.Equal(replay, data) {
		t.Errorf("late client did not receive latest scene (err=%v)", err)
	}
}

func TestAPI_HealthCheck(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health struct {
		Status   string `json:"status"`
		Uptime   string `json:"uptime"`
		Watching bool   `json:"watching"`
	}
	json.NewDecoder(resp.Body).Decode(&health)

	if health.Status != "ok" {
		t.Errorf("status = %s, want ok", health.Status)
	}
	if health.Watching {
		t.Error("expected watch loop to be idle")
	}
}
