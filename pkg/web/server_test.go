package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-distillo/internal/log"
	"github.com/teslashibe/go-distillo/pkg/history"
	"github.com/teslashibe/go-distillo/pkg/mixing"
	"github.com/teslashibe/go-distillo/pkg/node"
)

// fakeWorkflow records console sentences.
type fakeWorkflow struct {
	events *node.Broadcaster[mixing.Event]

	mu        sync.Mutex
	sentences []string
	err       error
}

func newFakeWorkflow() *fakeWorkflow {
	return &fakeWorkflow{events: node.NewBroadcaster[mixing.Event]("events", log.Discard())}
}

func (f *fakeWorkflow) Status() mixing.Status {
	return mixing.Status{Mode: mixing.Mixing, Recipe: "Daiquiri", Step: 1, Steps: 3, StepText: "Add lime"}
}

func (f *fakeWorkflow) HandleSentence(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sentences = append(f.sentences, text)
	return nil
}

func (f *fakeWorkflow) Events() node.Publisher[mixing.Event] {
	return f.events
}

func (f *fakeWorkflow) Sentences() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sentences...)
}

type fixedScale float64

func (s fixedScale) LastWeight() (float64, bool) { return float64(s), true }

// serve starts s on a loopback port and returns its address.
func serve(t *testing.T, s *Server) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx, ln)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func getJSON(t *testing.T, s *Server, path string, v any) int {
	t.Helper()

	resp, err := s.App().Test(httptest.NewRequest("GET", path, nil))
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == 200 && v != nil {
		if err := json.Unmarshal(body, v); err != nil {
			t.Fatalf("decode %s: %v (%s)", path, err, body)
		}
	}
	return resp.StatusCode
}

func TestStatus(t *testing.T) {
	s := NewServer(newFakeWorkflow(), WithScale(fixedScale(12.5)), WithLogger(log.Discard()))

	var got struct {
		Mode     string   `json:"mode"`
		Recipe   string   `json:"recipe"`
		Step     int      `json:"step"`
		StepText string   `json:"step_text"`
		Weight   *float64 `json:"weight"`
	}
	if code := getJSON(t, s, "/api/status", &got); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if got.Mode != "MIXING" || got.Recipe != "Daiquiri" || got.Step != 1 || got.StepText != "Add lime" {
		t.Errorf("unexpected status: %+v", got)
	}
	if got.Weight == nil || *got.Weight != 12.5 {
		t.Errorf("expected weight 12.5, got %v", got.Weight)
	}
}

func TestHistory(t *testing.T) {
	store, err := history.NewJSONStore(filepath.Join(t.TempDir(), "history.json"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	base := time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)
	for i, name := range []string{"Mojito", "Negroni"} {
		store.Save(&history.Session{
			ID:      name,
			Recipe:  name,
			Outcome: history.Finished,
			EndedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	s := NewServer(newFakeWorkflow(), WithHistory(store), WithLogger(log.Discard()))

	var list []history.Session
	if code := getJSON(t, s, "/api/history", &list); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var names []string
	for _, sess := range list {
		names = append(names, sess.Recipe)
	}
	if diff := cmp.Diff([]string{"Negroni", "Mojito"}, names); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}

	if code := getJSON(t, s, "/api/history?limit=1", &list); code != 200 || len(list) != 1 {
		t.Errorf("expected one entry with limit, got %d (status %d)", len(list), code)
	}

	var one history.Session
	if code := getJSON(t, s, "/api/history/Mojito", &one); code != 200 || one.Recipe != "Mojito" {
		t.Errorf("unexpected entry %+v (status %d)", one, code)
	}
	if code := getJSON(t, s, "/api/history/missing", nil); code != 404 {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHistoryWithoutStore(t *testing.T) {
	s := NewServer(newFakeWorkflow(), WithLogger(log.Discard()))

	var list []history.Session
	if code := getJSON(t, s, "/api/history", &list); code != 200 || len(list) != 0 {
		t.Errorf("expected empty list, got %v (status %d)", list, code)
	}
}

func TestRecentEvents(t *testing.T) {
	wf := newFakeWorkflow()
	s := NewServer(wf, WithLogger(log.Discard()))

	for i := 0; i < maxEvents+5; i++ {
		wf.events.Publish(mixing.Event{Type: mixing.EventStep, Step: i})
	}

	var events []mixing.Event
	if code := getJSON(t, s, "/api/events", &events); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(events) != maxEvents {
		t.Fatalf("expected %d events, got %d", maxEvents, len(events))
	}
	if events[0].Step != 5 || events[len(events)-1].Step != maxEvents+4 {
		t.Errorf("expected the newest events, got steps %d..%d", events[0].Step, events[len(events)-1].Step)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := NewServer(newFakeWorkflow(), WithLogger(log.Discard()))

	if code := getJSON(t, s, "/ws/events", nil); code != 426 {
		t.Errorf("expected 426, got %d", code)
	}
}

func TestEventStream(t *testing.T) {
	wf := newFakeWorkflow()
	s := NewServer(wf, WithLogger(log.Discard()))
	addr := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if env.Type != "status" {
		t.Fatalf("expected status first, got %q", env.Type)
	}

	// Wait for the client to be registered before publishing.
	deadline := time.Now().Add(time.Second)
	for s.events.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	wf.events.Publish(mixing.Event{Type: mixing.EventUtterance, Text: "Add lime"})

	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev mixing.Event
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if env.Type != "event" || ev.Type != mixing.EventUtterance || ev.Text != "Add lime" {
		t.Errorf("unexpected event %s: %+v", env.Type, ev)
	}
}

func TestConsole(t *testing.T) {
	wf := newFakeWorkflow()
	s := NewServer(wf, WithLogger(log.Discard()))
	addr := serve(t, s)

	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws/console", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	send := func(text string) consoleReply {
		t.Helper()
		if err := ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			t.Fatalf("write: %v", err)
		}
		var reply consoleReply
		if err := ws.ReadJSON(&reply); err != nil {
			t.Fatalf("read: %v", err)
		}
		return reply
	}

	if reply := send("A mojito, please"); !reply.Accepted {
		t.Errorf("expected accepted, got %+v", reply)
	}
	if reply := send("   "); reply.Accepted || reply.Error == "" {
		t.Errorf("expected empty message error, got %+v", reply)
	}

	wf.mu.Lock()
	wf.err = mixing.ErrQueueFull
	wf.mu.Unlock()
	if reply := send("another"); reply.Accepted || reply.Error != mixing.ErrQueueFull.Error() {
		t.Errorf("expected queue full, got %+v", reply)
	}

	if diff := cmp.Diff([]string{"A mojito, please"}, wf.Sentences()); diff != "" {
		t.Errorf("sentences (-want +got):\n%s", diff)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s := NewServer(newFakeWorkflow(), WithLogger(log.Discard()))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return")
	}
}
