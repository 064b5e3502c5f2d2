package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/minerva/internal/audit"
	"github.com/antoniostano/minerva/internal/config"
	"github.com/antoniostano/minerva/internal/escalation"
	"github.com/antoniostano/minerva/internal/guardrail"
	"github.com/antoniostano/minerva/internal/job"
	"github.com/antoniostano/minerva/internal/orchestrator"
	"github.com/antoniostano/minerva/internal/protocol"
	"github.com/antoniostano/minerva/internal/routing"
	"github.com/antoniostano/minerva/internal/session"
	"github.com/antoniostano/minerva/internal/specialist"
)

type stubRouter struct {
	res routing.Result
}

func (r *stubRouter) Route(context.Context, string) (routing.Result, error) {
	return r.res, nil
}

type scriptedStreamer struct {
	chunks  []string
	release chan struct{}
}

func (s *scriptedStreamer) Stream(_ context.Context, _ string) (<-chan string, <-chan error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		if s.release != nil {
			<-s.release
		}
		for _, c := range s.chunks {
			out <- c
		}
		errc <- nil
	}()
	return out, errc
}

type passChecker struct{}

func (passChecker) CheckAndRewrite(_ context.Context, text string) (guardrail.Result, error) {
	return guardrail.Result{Original: text}, nil
}

type passSafety struct{}

func (passSafety) Check(_ context.Context, text string) guardrail.Result {
	return guardrail.Result{Original: text}
}

func newTestServer(t *testing.T, math *scriptedStreamer) (*httptest.Server, *orchestrator.Service) {
	t.Helper()
	cfg := config.Config{WaitTimeoutMax: 2 * time.Second}
	sink := audit.NewMemorySink()
	bus := escalation.NewBus("ws://localhost:8080", sink)
	svc := orchestrator.New(orchestrator.Options{
		Router:      &stubRouter{res: routing.Result{Subject: routing.SubjectMath, Confidence: routing.ConfidenceExact}},
		Specialists: specialist.NewRegistry(math, &scriptedStreamer{}, &scriptedStreamer{}),
		Filter:      guardrail.NewSentenceFilter(passChecker{}),
		Safety:      passSafety{},
		Jobs:        job.NewStore(time.Hour),
		Sessions:    session.NewManager(),
		Sink:        sink,
		Bus:         bus,
		MaxWait:     cfg.WaitTimeoutMax,
	})

	ts := httptest.NewServer(New(cfg, svc, bus, nil, nil).Router())
	t.Cleanup(ts.Close)
	return ts, svc
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, _ := json.Marshal(body)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return res
}

func decodeBody(t *testing.T, res *http.Response, out any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestDispatchStatusWaitRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{chunks: []string{"The answer is 4."}})

	res := postJSON(t, ts.URL+"/v1/orchestrate", map[string]string{"session_id": "s1", "text": "2+2?"})
	if res.StatusCode != http.StatusAccepted {
		t.Fatalf("dispatch status = %d, want 202", res.StatusCode)
	}
	var dispatched struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, res, &dispatched)
	if dispatched.JobID == "" {
		t.Fatalf("dispatch returned empty job_id")
	}

	res = postJSON(t, ts.URL+"/v1/orchestrate/"+dispatched.JobID+"/wait?timeout_s=2", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("wait status = %d, want 200", res.StatusCode)
	}
	var snap job.Snapshot
	decodeBody(t, res, &snap)
	if snap.Status != job.StatusComplete || !snap.TTSReady {
		t.Fatalf("wait snapshot = %+v", snap)
	}
	if snap.SafeText != "The answer is 4." {
		t.Fatalf("SafeText = %q", snap.SafeText)
	}

	res, err := http.Get(ts.URL + "/v1/orchestrate/" + dispatched.JobID)
	if err != nil {
		t.Fatalf("status request error = %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	res.Body.Close()
}

func TestDispatchRejectsEmptyPayload(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{})

	res := postJSON(t, ts.URL+"/v1/orchestrate", map[string]string{"session_id": "", "text": ""})
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestStatusUnknownJobIs404(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{})

	res, err := http.Get(ts.URL + "/v1/orchestrate/nope")
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}

func TestWaitTimesOutWith408(t *testing.T) {
	gate := make(chan struct{})
	ts, _ := newTestServer(t, &scriptedStreamer{chunks: []string{"slow."}, release: gate})
	defer close(gate)

	res := postJSON(t, ts.URL+"/v1/orchestrate", map[string]string{"session_id": "s1", "text": "q"})
	var dispatched struct {
		JobID string `json:"job_id"`
	}
	decodeBody(t, res, &dispatched)

	res = postJSON(t, ts.URL+"/v1/orchestrate/"+dispatched.JobID+"/wait?timeout_s=0.05", nil)
	defer res.Body.Close()
	if res.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("status = %d, want 408", res.StatusCode)
	}
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{chunks: []string{"Done."}})

	res := postJSON(t, ts.URL+"/v1/session", nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("open status = %d, want 201", res.StatusCode)
	}
	var summary session.Summary
	decodeBody(t, res, &summary)
	if summary.SessionID == "" {
		t.Fatalf("open returned empty session_id")
	}

	res = postJSON(t, ts.URL+"/v1/session/"+summary.SessionID+"/close", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("close status = %d, want 200", res.StatusCode)
	}
	var report audit.SessionReport
	decodeBody(t, res, &report)
	if report.SessionID != summary.SessionID {
		t.Fatalf("report.SessionID = %q", report.SessionID)
	}
}

func TestEscalateReturnsObserverURL(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{})

	res := postJSON(t, ts.URL+"/v1/escalate", map[string]string{"session_id": "s9"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var body struct {
		ObserverURL string `json:"observer_url"`
	}
	decodeBody(t, res, &body)
	if !strings.HasSuffix(body.ObserverURL, "/ws/teacher/s9") {
		t.Fatalf("observer_url = %q", body.ObserverURL)
	}
}

func TestObserverWSHandshakeAndHints(t *testing.T) {
	ts, svc := newTestServer(t, &scriptedStreamer{})

	// The observer endpoint requires a live session.
	svc.Escalate(context.Background(), "s1", "student request")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/teacher/s1"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial observer ws: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var connected protocol.Connected
	if err := conn.ReadJSON(&connected); err != nil {
		t.Fatalf("read connected ack: %v", err)
	}
	if connected.Type != protocol.TypeConnected || connected.SessionID != "s1" {
		t.Fatalf("connected ack = %+v", connected)
	}
	if !connected.Escalated {
		t.Fatalf("ack must reflect the escalated session state")
	}

	// A hint sent by the observer comes back as a teacher_hint broadcast.
	if err := conn.WriteJSON(protocol.Hint{Type: protocol.TypeHint, Text: "draw it out"}); err != nil {
		t.Fatalf("write hint: %v", err)
	}
	var hint protocol.TeacherHint
	if err := conn.ReadJSON(&hint); err != nil {
		t.Fatalf("read teacher_hint: %v", err)
	}
	if hint.Type != protocol.TypeTeacherHint || hint.Text != "draw it out" {
		t.Fatalf("teacher_hint = %+v", hint)
	}
}

func TestObserverWSUnknownSessionIs404(t *testing.T) {
	ts, _ := newTestServer(t, &scriptedStreamer{})

	res, err := http.Get(ts.URL + "/ws/teacher/ghost")
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
}
