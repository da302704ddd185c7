package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nextcampus/aula/internal/bus"
	"github.com/nextcampus/aula/internal/config"
	"github.com/nextcampus/aula/internal/engine"
	"github.com/nextcampus/aula/internal/sessions"
	"github.com/nextcampus/aula/internal/store/mem"
)

func newTestServer(t *testing.T, rateLimitRPM int) (*httptest.Server, *engine.Engine) {
	t.Helper()
	cfg := config.Default()
	cfg.Debounce.WindowMs = 20
	cfg.Hygiene.SweepSchedule = ""
	cfg.Server.RateLimitRPM = rateLimitRPM

	log := slog.New(slog.DiscardHandler)
	eng := engine.New(cfg, mem.NewStores(), NewLogEmitter(log), engine.Options{Logger: log})
	t.Cleanup(eng.Stop)

	s := NewServer(cfg.Server, eng, log)
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return ts, eng
}

func postJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	body, _ := json.Marshal(v)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t, 0)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestMessageValidation(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	cases := []struct {
		name    string
		payload any
		status  int
	}{
		{"valid", inboundPayload{SessionKey: "549-1", Text: "hola"}, http.StatusAccepted},
		{"missing key", inboundPayload{Text: "hola"}, http.StatusBadRequest},
		{"missing text", inboundPayload{SessionKey: "549-1"}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/webhook/message", tc.payload)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, 6) // burst 3

	limited := false
	for i := 0; i < 6; i++ {
		resp := postJSON(t, ts.URL+"/webhook/message", inboundPayload{SessionKey: "flooder", Text: "x"})
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Errorf("no request was rate limited")
	}

	// Other sessions are unaffected.
	resp := postJSON(t, ts.URL+"/webhook/message", inboundPayload{SessionKey: "calm", Text: "hola"})
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("unrelated session limited: %d", resp.StatusCode)
	}
}

func TestSessionAdmin(t *testing.T) {
	ts, eng := newTestServer(t, 0)

	resp, _ := http.Get(ts.URL + "/sessions/ghost")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown session status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	eng.Submit(bus.InboundMessage{SessionKey: "549-1", Text: "hola", ArrivalTime: time.Now()})
	time.Sleep(150 * time.Millisecond) // debounce flush

	resp, _ = http.Get(ts.URL + "/sessions/549-1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("session get status = %d", resp.StatusCode)
	}
	var p sessionPayload
	json.NewDecoder(resp.Body).Decode(&p)
	resp.Body.Close()
	if p.Key != "549-1" {
		t.Errorf("payload = %+v", p)
	}

	resp, _ = http.Get(ts.URL + "/sessions")
	var stats sessions.Stats
	json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if stats.Total != 1 {
		t.Errorf("stats = %+v", stats)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/549-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("evict status = %d", resp.StatusCode)
	}
	if _, ok := eng.Sessions().Peek("549-1"); ok {
		t.Errorf("session survived eviction")
	}
}

func TestEscalationAdmin(t *testing.T) {
	ts, eng := newTestServer(t, 0)

	rec, err := eng.Escalations().Raise(context.Background(), "549-1", "manual", "billing", "high")
	if err != nil {
		t.Fatal(err)
	}

	resp, _ := http.Get(ts.URL + "/escalations")
	var list []map[string]any
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list) != 1 {
		t.Fatalf("pending list = %v", list)
	}

	r2 := postJSON(t, ts.URL+"/escalations/"+rec.ID.String()+"/resolve", nil)
	if r2.StatusCode != http.StatusNoContent {
		t.Errorf("resolve status = %d", r2.StatusCode)
	}

	r3 := postJSON(t, ts.URL+"/escalations/"+rec.ID.String()+"/resolve", nil)
	if r3.StatusCode != http.StatusNotFound {
		t.Errorf("double resolve status = %d", r3.StatusCode)
	}

	r4 := postJSON(t, ts.URL+"/escalations/not-a-uuid/resolve", nil)
	if r4.StatusCode != http.StatusBadRequest {
		t.Errorf("bad id status = %d", r4.StatusCode)
	}
}
