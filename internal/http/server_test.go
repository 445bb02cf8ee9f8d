package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"marmobot/internal/core"
)

type fakeStatus struct {
	status core.SessionStatus
	err    error
}

func (f *fakeStatus) Status(context.Context) (core.SessionStatus, error) {
	return f.status, f.err
}

func get(t *testing.T, server *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+path, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to call %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	expectedAddr := "0.0.0.0:9090"
	if server.Addr != expectedAddr {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, expectedAddr)
	}

	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}

	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}

	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestSetupRoutes(t *testing.T) {
	mux := setupRoutes(prometheus.NewRegistry(), &fakeStatus{}, zap.NewNop())
	server := httptest.NewServer(mux)
	defer server.Close()

	tests := []struct {
		path        string
		contentType string
		body        string
	}{
		{path: "/healthz", contentType: "application/json", body: `{"status":"ok","service":"marmobot"}`},
		{path: "/readyz", contentType: "application/json", body: `{"status":"ready","service":"marmobot"}`},
		{path: "/metrics"},
		{path: "/", contentType: "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, server, tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Errorf("%s returned status %d, expected %d", tt.path, resp.StatusCode, http.StatusOK)
			}
			if tt.contentType != "" && resp.Header.Get("Content-Type") != tt.contentType {
				t.Errorf("%s Content-Type = %q, expected %q", tt.path, resp.Header.Get("Content-Type"), tt.contentType)
			}
			if tt.body != "" && body != tt.body {
				t.Errorf("%s body = %q, expected %q", tt.path, body, tt.body)
			}
		})
	}
}

func TestHomeHandler(t *testing.T) {
	handler := homeHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	body := rec.Body.String()
	for _, element := range []string{"<!DOCTYPE html>", "<title>MarmoBot</title>", "/api/queue", "/metrics", "/healthz", "/readyz"} {
		if !strings.Contains(body, element) {
			t.Errorf("Expected body to contain %q", element)
		}
	}
}

func TestQueueHandler(t *testing.T) {
	status := &fakeStatus{status: core.SessionStatus{
		State:     core.StateStreaming,
		Connected: true,
		ChannelID: 111,
		NowPlaying: &core.QueueEntry{ID: 1, Track: core.Track{
			CanonicalID: "aaa", Title: "Song A", Duration: time.Minute,
			PlayableSource: "https://cdn/secret",
		}},
		Queue: []core.QueueEntry{
			{ID: 2, Track: core.Track{CanonicalID: "bbb", Title: "Song B", Duration: 90 * time.Second}},
			{ID: 3, Track: core.Track{CanonicalID: "ccc", Title: "Song C", Duration: 30 * time.Second}},
		},
	}}
	server := httptest.NewServer(setupRoutes(prometheus.NewRegistry(), status, zap.NewNop()))
	defer server.Close()

	resp, body := get(t, server, "/api/queue")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %s", resp.StatusCode, body)
	}
	if strings.Contains(body, "cdn/secret") {
		t.Error("response leaks the playable source")
	}

	var got struct {
		State         string `json:"state"`
		Connected     bool   `json:"connected"`
		QueueLength   int    `json:"queue_length"`
		QueueDuration string `json:"queue_duration"`
		Queue         []struct {
			Track struct {
				Title string `json:"title"`
			} `json:"track"`
		} `json:"queue"`
	}
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, body)
	}
	if got.State != "streaming" || !got.Connected || got.QueueLength != 2 || got.QueueDuration != "0:02:00" {
		t.Errorf("response = %+v", got)
	}
	if len(got.Queue) != 2 || got.Queue[0].Track.Title != "Song B" {
		t.Errorf("queue = %+v", got.Queue)
	}
}

func TestQueueHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source StatusSource
		method string
		want   int
	}{
		{name: "no engine", source: nil, method: http.MethodGet, want: http.StatusServiceUnavailable},
		{name: "stopped", source: &fakeStatus{err: core.ErrEngineStopped}, method: http.MethodGet, want: http.StatusServiceUnavailable},
		{name: "failure", source: &fakeStatus{err: errors.New("boom")}, method: http.MethodGet, want: http.StatusInternalServerError},
		{name: "post", source: &fakeStatus{}, method: http.MethodPost, want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			queueHandler(tt.source, zap.NewNop())(rec, httptest.NewRequest(tt.method, "/api/queue", http.NoBody))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestServer_Metrics(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	s := NewServer(config, &fakeStatus{}, zap.NewNop())
	// A second server must not collide on registration.
	_ = NewServer(config, &fakeStatus{}, zap.NewNop())

	s.RecordCommand("play", "ok")
	s.RecordCommand("play", "ok")
	s.RecordResolution("ok", 120*time.Millisecond)
	s.RecordCacheLookup(true)
	s.RecordCacheLookup(false)
	s.RecordConnectAttempt("failed")
	s.RecordTrackStarted()
	s.SetQueueLength(4)

	server := httptest.NewServer(s.server.Handler)
	defer server.Close()
	_, body := get(t, server, "/metrics")

	for _, line := range []string{
		`marmobot_commands_total{command="play",status="ok"} 2`,
		`marmobot_resolutions_total{outcome="ok"} 1`,
		`marmobot_metadata_cache_lookups_total{result="hit"} 1`,
		`marmobot_metadata_cache_lookups_total{result="miss"} 1`,
		`marmobot_voice_connect_attempts_total{outcome="failed"} 1`,
		`marmobot_tracks_started_total 1`,
		`marmobot_queue_length 4`,
		`marmobot_resolution_duration_seconds_count 1`,
	} {
		if !strings.Contains(body, line) {
			t.Errorf("metrics output missing %q", line)
		}
	}
}

func TestServer_StartContextCancellation(t *testing.T) {
	s := NewServer(&core.ServerConfig{Host: "127.0.0.1", Port: 0}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
