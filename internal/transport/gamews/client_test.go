package gamews

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seanhlewis/mcagentgym/internal/protocol"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
}

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestClient_HandshakeRoutingAndAct(t *testing.T) {
	hellos := make(chan protocol.HelloMsg, 1)
	acts := make(chan protocol.ActMsg, 1)
	hold := make(chan struct{})
	defer close(hold)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var hello protocol.HelloMsg
		if err := json.Unmarshal(raw, &hello); err != nil {
			return
		}
		hellos <- hello

		_ = conn.WriteJSON(protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
			AgentID: "gym-1", ResumeToken: "rt-1",
			WorldParams: protocol.WorldParams{TickRateHz: 20, ProximityRadius: 16},
		})
		_ = conn.WriteJSON(protocol.EventMsg{
			Type: protocol.TypeEvent, ProtocolVersion: protocol.Version,
			Tick: 41, AgentID: "miner_joe",
			Events: []protocol.WireEvent{{Kind: protocol.EventChat, Source: "PlayerOne", Data: map[string]any{"text": "hi"}, TS: 1}},
		})
		_ = conn.WriteJSON(protocol.TaskStatusMsg{
			Type: protocol.TypeTaskStatus, ProtocolVersion: protocol.Version,
			Tick: 42, AgentID: "miner_joe", TaskID: "K_1_1", Status: protocol.TaskCompleted,
		})

		_, rawAct, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var act protocol.ActMsg
		if err := json.Unmarshal(rawAct, &act); err != nil {
			return
		}
		acts <- act
		<-hold
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	events := make(chan protocol.EventMsg, 4)
	statuses := make(chan protocol.TaskStatusMsg, 4)
	c := New(Config{URL: wsURL(ts), Name: "gym", Token: "secret", Logger: quiet()}, Hooks{
		OnEvent:      func(m protocol.EventMsg) { events <- m },
		OnTaskStatus: func(m protocol.TaskStatusMsg) { statuses <- m },
	})
	c.Start()
	defer c.Close()

	select {
	case hello := <-hellos:
		if hello.AgentName != "gym" || hello.Auth == nil || hello.Auth.Token != "secret" {
			t.Fatalf("hello: %+v", hello)
		}
		if !hello.Capabilities.TaskStatus {
			t.Fatalf("task_status capability not announced")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for hello")
	}

	select {
	case ev := <-events:
		if ev.Tick != 41 || ev.AgentID != "miner_joe" || len(ev.Events) != 1 {
			t.Fatalf("event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event")
	}
	select {
	case st := <-statuses:
		if st.TaskID != "K_1_1" || st.Status != protocol.TaskCompleted {
			t.Fatalf("task status: %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for task status")
	}

	if err := c.EmitChat("miner_joe", "", "hello there"); err != nil {
		t.Fatalf("emit chat: %v", err)
	}
	select {
	case act := <-acts:
		if act.AgentID != "miner_joe" || act.Tick != 41 {
			t.Fatalf("act header: %+v", act)
		}
		if len(act.Instants) != 1 {
			t.Fatalf("instants: %+v", act.Instants)
		}
		in := act.Instants[0]
		if in.Type != protocol.InstSay || in.Channel != "LOCAL" || in.Text != "hello there" {
			t.Fatalf("say instant: %+v", in)
		}
		if !strings.HasPrefix(in.ID, "I_") {
			t.Fatalf("instant id not assigned: %q", in.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for act")
	}

	st := c.Status()
	if !st.Connected || st.AgentID != "gym-1" || st.ResumeToken != "rt-1" || st.LastTick != 41 {
		t.Fatalf("status: %+v", st)
	}
	if w := c.World(); w.TickRateHz != 20 {
		t.Fatalf("world params: %+v", w)
	}
}

func TestClient_ReconnectCarriesResumeToken(t *testing.T) {
	hellos := make(chan protocol.HelloMsg, 2)
	hold := make(chan struct{})
	defer close(hold)
	var connN int32

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&connN, 1)

		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return
		}
		var hello protocol.HelloMsg
		if err := json.Unmarshal(raw, &hello); err != nil {
			conn.Close()
			return
		}
		hellos <- hello

		_ = conn.WriteJSON(protocol.WelcomeMsg{
			Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version,
			AgentID: "gym-1", ResumeToken: "rt-9",
		})
		if n == 1 {
			conn.Close() // drop the first connection right after welcome
			return
		}
		defer conn.Close()
		<-hold
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := New(Config{URL: wsURL(ts), Name: "gym", Logger: quiet()}, Hooks{})
	c.Start()
	defer c.Close()

	select {
	case h := <-hellos:
		if h.ResumeToken != "" {
			t.Fatalf("first hello should have no resume token: %+v", h)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for first hello")
	}
	select {
	case h := <-hellos:
		if h.ResumeToken != "rt-9" {
			t.Fatalf("second hello resume token: got %q want %q", h.ResumeToken, "rt-9")
		}
	case <-time.After(4 * time.Second):
		t.Fatalf("client did not reconnect")
	}
}

func TestClient_ActWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/v1/ws", Name: "gym", Logger: quiet()}, Hooks{})
	if err := c.EmitChat("miner_joe", "LOCAL", "hi"); err == nil {
		t.Fatalf("expected error while disconnected")
	}
	// Empty act is a no-op, even disconnected.
	if err := c.Act("miner_joe", nil, nil, nil); err != nil {
		t.Fatalf("empty act: %v", err)
	}
}
