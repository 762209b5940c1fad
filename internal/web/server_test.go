package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/reflowd/internal/status"
	"github.com/sweeney/reflowd/internal/wsstream"
)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		TickPeriodMs: 250,
		Broker:       "tcp://192.168.1.200:1883",
		HTTPAddr:     ":80",
	}
	tr := status.NewTracker(start, cfg)
	hub := wsstream.NewHub()
	go hub.Run()
	srv := New(":0", tr, hub)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(func() {
		hub.Stop()
		ts.Close()
	})
	return ts, tr
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateController(true, false, "Steady State", 150, 149.5, 12.3, 45.0)
	tr.SetTelemetryConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.Running {
		t.Error("expected Running=true")
	}
	if sj.Status.StateLabel != "Steady State" {
		t.Errorf("StateLabel: got %q, want Steady State", sj.Status.StateLabel)
	}
	if !sj.Status.Telemetry.Connected {
		t.Error("expected Telemetry.Connected=true")
	}
	if sj.Status.Telemetry.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("Telemetry.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.Telemetry.Broker)
	}
	if sj.Status.Config.TickPeriodMs != 250 {
		t.Errorf("Config.TickPeriodMs: got %d, want 250", sj.Status.Config.TickPeriodMs)
	}
}

func TestJSONIdleBeforeStart(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Running {
		t.Error("expected Running=false before start")
	}
	if sj.Status.Profile.Running {
		t.Error("expected Profile.Running=false before start")
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t)
	tr.UpdateController(true, false, "Heating", 100, 20, 80, 10)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if sj1.Status.Running {
		t.Error("expected Running=false initially")
	}

	tr.UpdateController(true, false, "Heating", 100, 20, 80, 0)
	tr.SetTelemetryConnected(true)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if !sj2.Status.Running {
		t.Error("expected Running=true after update")
	}
	if !sj2.Status.Telemetry.Connected {
		t.Error("expected Telemetry connected after update")
	}
}
