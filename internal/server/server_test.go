package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tatianab/roguellm/internal/apperr"
	"github.com/tatianab/roguellm/internal/definitions"
	"github.com/tatianab/roguellm/internal/game"
	"github.com/tatianab/roguellm/internal/gateway"
	"github.com/tatianab/roguellm/internal/models"
	"github.com/tatianab/roguellm/internal/retry"
	"github.com/tatianab/roguellm/internal/session"
	"github.com/tatianab/roguellm/internal/store/memory"
)

type fakeLLM struct {
	gate chan struct{}
}

func (f *fakeLLM) Complete(ctx context.Context, tier gateway.Tier, system, user string) (string, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	switch {
	case strings.Contains(system, "narrator"):
		return "Narrated.", nil
	case strings.HasPrefix(user, "Theme:"):
		return "Test Realm", nil
	case strings.Contains(system, "CSV"):
		return "grass,forest,grass\ngrass,grass,grass", nil
	case strings.Contains(system, "You place enemies"):
		return `[{"type": "item", "entity_id": "health_potion", "x": 1, "y": 0}]`, nil
	}
	return "no", nil
}

func newTestServer(t *testing.T, llm gateway.Completer) (*httptest.Server, *session.Registry) {
	t.Helper()
	st := memory.New()
	gw := gateway.New(llm, gateway.WithRetryPolicy(retry.Policy{MaxTries: 1, BaseDelay: time.Millisecond}))
	defs, err := definitions.New(st, gw)
	if err != nil {
		t.Fatal(err)
	}
	builder, err := game.NewBuilder(st, gw)
	if err != nil {
		t.Fatal(err)
	}
	rules := models.DefaultRules()
	rules.Width, rules.Height = 3, 2
	reg := session.NewRegistry(defs, builder, gw, session.Options{Rules: rules})
	ts := httptest.NewServer(New(reg).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = reg.Close(context.Background())
	})
	return ts, reg
}

func post(t *testing.T, ts *httptest.Server, body string) (*http.Response, map[string]string) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func getStatus(t *testing.T, ts *httptest.Server, id string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/sessions/" + id)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]string{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, out
}

func createReady(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, body := post(t, ts, `{"theme": "sunken caves", "language": "en"}`)
	if resp.StatusCode != http.StatusAccepted || body["status"] != "creating" || body["session_id"] == "" {
		t.Fatalf("create = %d %v", resp.StatusCode, body)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, st := getStatus(t, ts, body["session_id"])
		if st["status"] == "ready" {
			if st["content_hash"] == "" {
				t.Fatalf("ready session without a content hash: %v", st)
			}
			return body["session_id"]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session never became ready")
	return ""
}

func dial(t *testing.T, ts *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) models.Update {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var u models.Update
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatalf("read: %v", err)
	}
	return u
}

func TestCreateValidation(t *testing.T) {
	ts, _ := newTestServer(t, &fakeLLM{})
	for _, body := range []string{`{`, `{"theme": ""}`, `{"theme": "   ", "language": "en"}`} {
		resp, out := post(t, ts, body)
		if resp.StatusCode != http.StatusBadRequest || out["code"] != string(apperr.CodeValidation) {
			t.Errorf("create(%s) = %d %v, want 400", body, resp.StatusCode, out)
		}
	}
}

func TestUnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeLLM{})
	if code, _ := getStatus(t, ts, "nope"); code != http.StatusNotFound {
		t.Fatalf("status of unknown session = %d, want 404", code)
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("dial unknown session: %v %v", err, resp)
	}
}

func TestSocketPlaysTurns(t *testing.T) {
	ts, _ := newTestServer(t, &fakeLLM{})
	id := createReady(t, ts)
	conn := dial(t, ts, id)

	if u := read(t, conn); u.Type != models.UpdateTypeStatus || u.DescriptionRaw != "ready" {
		t.Fatalf("greeting = %+v", u)
	}
	if err := conn.WriteJSON(game.Action{Action: game.ActionGetInitialState}); err != nil {
		t.Fatal(err)
	}
	first := read(t, conn)
	if first.Type != models.UpdateTypeUpdate || first.Enriched || first.State == nil {
		t.Fatalf("mechanical update = %+v", first)
	}
	if first.State.ContentHash == "" || first.State.Map.At(1, 0) != "forest" {
		t.Fatalf("snapshot = %+v", first.State)
	}
	second := read(t, conn)
	if !second.Enriched || second.Seq != first.Seq || second.Description != "Narrated." {
		t.Fatalf("enriched update = %+v", second)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action": "teleport"}`)); err != nil {
		t.Fatal(err)
	}
	if u := read(t, conn); u.Type != models.UpdateTypeError || u.State == nil {
		t.Fatalf("invalid action reply = %+v", u)
	}

	if err := conn.WriteJSON(game.Action{Action: game.ActionMove, Direction: "e"}); err != nil {
		t.Fatal(err)
	}
	u := read(t, conn)
	if u.Type != models.UpdateTypeUpdate || u.State.Player.Pos != (models.Position{X: 1, Y: 0}) {
		t.Fatalf("move update = %+v", u)
	}
}

func TestObserversShareUpdates(t *testing.T) {
	ts, _ := newTestServer(t, &fakeLLM{})
	id := createReady(t, ts)
	a, b := dial(t, ts, id), dial(t, ts, id)
	read(t, a)
	read(t, b)

	if err := a.WriteJSON(game.Action{Action: game.ActionMove, Direction: "s"}); err != nil {
		t.Fatal(err)
	}
	ua, ub := read(t, a), read(t, b)
	if ua.Seq != ub.Seq || ua.DescriptionRaw != ub.DescriptionRaw {
		t.Fatalf("observers diverged: %+v vs %+v", ua, ub)
	}
	// Drain the enrichment.
	read(t, a)
	read(t, b)

	a.Close()
	if err := b.WriteJSON(game.Action{Action: game.ActionMove, Direction: "n"}); err != nil {
		t.Fatal(err)
	}
	if u := read(t, b); u.Type != models.UpdateTypeUpdate {
		t.Fatalf("remaining observer got %+v", u)
	}
}

func TestSocketDuringCreation(t *testing.T) {
	llm := &fakeLLM{gate: make(chan struct{})}
	ts, _ := newTestServer(t, llm)
	_, body := post(t, ts, `{"theme": "glass desert"}`)
	conn := dial(t, ts, body["session_id"])

	if u := read(t, conn); u.Type != models.UpdateTypeStatus || u.DescriptionRaw != "creating" {
		t.Fatalf("greeting = %+v", u)
	}
	if err := conn.WriteJSON(game.Action{Action: game.ActionMove, Direction: "e"}); err != nil {
		t.Fatal(err)
	}
	if u := read(t, conn); u.Type != models.UpdateTypeError || u.State != nil {
		t.Fatalf("early action reply = %+v", u)
	}
	close(llm.gate)
	if u := read(t, conn); u.Type != models.UpdateTypeStatus || u.DescriptionRaw != "ready" {
		t.Fatalf("status = %+v", u)
	}
}

func TestSocketReportsFailure(t *testing.T) {
	ts, _ := newTestServer(t, &fakeLLM{})
	_, body := post(t, ts, `{"content_hash": "0123456789abcdef"}`)
	id := body["session_id"]

	deadline := time.Now().Add(5 * time.Second)
	for {
		_, st := getStatus(t, ts, id)
		if st["status"] == "failed" {
			if st["error"] != "That world does not exist." {
				t.Fatalf("error = %q", st["error"])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session never failed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	conn := dial(t, ts, id)
	if u := read(t, conn); u.Type != models.UpdateTypeError || u.DescriptionRaw != "That world does not exist." {
		t.Fatalf("greeting = %+v", u)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.New(apperr.CodeValidation, "x"), http.StatusBadRequest},
		{apperr.New(apperr.CodeNotFound, "x"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", apperr.New(apperr.CodeGeneration, "x")), http.StatusBadGateway},
		{apperr.New(apperr.CodeStorage, "x"), http.StatusServiceUnavailable},
		{apperr.New(apperr.CodeState, "x"), http.StatusConflict},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
