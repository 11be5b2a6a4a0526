package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"robotarena/protocol"
	"robotarena/sim"
)

// ---------- helpers ----------

// startTestArena 默认场景 + 5ms 帧间隔，返回 arena 与 httptest 服务
func startTestArena(t *testing.T) (*Arena, *httptest.Server) {
	t.Helper()
	arena, err := NewArena(sim.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go arena.Run(ctx, 5*time.Millisecond)

	srv := httptest.NewServer(NewRouter(arena))
	t.Cleanup(func() {
		cancel()
		arena.Close()
		srv.Close()
	})
	return arena, srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial WS %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readCommand 读取一条 JSON 文本命令
func readCommand(t *testing.T, conn *websocket.Conn) protocol.Command {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if mt != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", mt)
	}
	var cmd protocol.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return cmd
}

func sendCommand(t *testing.T, conn *websocket.Conn, cmd protocol.Command) {
	t.Helper()
	raw, _ := json.Marshal(cmd)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

func getBody(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

// ---------- controller ----------

func TestControllerReceivesReady(t *testing.T) {
	_, srv := startTestArena(t)
	conn := dialWS(t, wsURL(srv, "/controller"))

	if cmd := readCommand(t, conn); cmd.Name != protocol.EvtWebpageReady {
		t.Fatalf("expected webpage-ready, got %s", cmd.Name)
	}
}

func TestControllerKeyDownMovesRobot(t *testing.T) {
	_, srv := startTestArena(t)
	view := dialWS(t, wsURL(srv, "/view"))
	ctrl := dialWS(t, wsURL(srv, "/controller"))
	readCommand(t, ctrl) // webpage-ready

	// 速度 5，按住 200ms 共前进 1 个单位（-Z 方向）
	sendCommand(t, ctrl, protocol.Command{
		Name: protocol.CmdKeyDown,
		Arg:  protocol.KeyDownArg{KeyCode: 87, DurationMs: 200},
	})

	deadline := time.Now().Add(2 * time.Second)
	view.SetReadDeadline(deadline)
	for {
		mt, raw, err := view.ReadMessage()
		if err != nil {
			t.Fatalf("robot never moved: %v", err)
		}
		if mt != websocket.BinaryMessage {
			t.Fatalf("viewer frames should be binary, got %d", mt)
		}
		var f sim.Frame
		if err := msgpack.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if z := f.Player.Position.Z; z < -0.5 {
			if z < -1.0001 || z > -0.9999 {
				t.Errorf("robot z = %v, want -1", z)
			}
			if f.Player.Position.X != 0 {
				t.Errorf("robot drifted sideways: %+v", f.Player.Position)
			}
			return
		}
	}
}

func TestControllerMsgpack(t *testing.T) {
	arena, srv := startTestArena(t)
	conn := dialWS(t, wsURL(srv, "/controller?codec=msgpack"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if mt != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got %d", mt)
	}
	var env struct {
		Name string `msgpack:"name"`
	}
	if err := msgpack.Unmarshal(raw, &env); err != nil {
		t.Fatalf("msgpack unmarshal: %v", err)
	}
	if env.Name != protocol.EvtWebpageReady {
		t.Fatalf("expected webpage-ready, got %s", env.Name)
	}

	b, _ := msgpack.Marshal(protocol.Command{Name: protocol.CmdKeyUp, Arg: protocol.KeyUpArg{KeyCode: 87}})
	if err := conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		t.Fatalf("write WS: %v", err)
	}
	waitFor(t, "msgpack command accepted", func() bool {
		return atomic.LoadInt64(&arena.Metrics.InputsAccepted) == 1
	})
}

func TestControllerUnknownCodecRejected(t *testing.T) {
	_, srv := startTestArena(t)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/controller?codec=xml"), nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", resp)
	}
}

func TestSecondControllerReplacesFirst(t *testing.T) {
	arena, srv := startTestArena(t)
	first := dialWS(t, wsURL(srv, "/controller"))
	readCommand(t, first)

	second := dialWS(t, wsURL(srv, "/controller"))
	if cmd := readCommand(t, second); cmd.Name != protocol.EvtWebpageReady {
		t.Fatalf("new session should get webpage-ready, got %s", cmd.Name)
	}

	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := first.ReadMessage()
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			t.Fatal("replaced controller was not closed")
		}
		break
	}

	if n := atomic.LoadInt64(&arena.Metrics.Replaced); n != 1 {
		t.Errorf("replaced = %d, want 1", n)
	}
	if st := arena.Relay.State(); st != StateConnected {
		t.Errorf("state = %s, want connected", st)
	}
}

func TestControllerDisconnect(t *testing.T) {
	arena, srv := startTestArena(t)
	conn := dialWS(t, wsURL(srv, "/controller"))
	readCommand(t, conn)
	conn.Close()

	waitFor(t, "relay disconnect", func() bool { return arena.Relay.State() == StateDisconnected })

	_, body := getBody(t, srv.URL+"/admin/relay")
	var st RelayStatus
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.State != "disconnected" || st.PeerID != "" {
		t.Errorf("status = %+v", st)
	}
}

// ---------- admin / http ----------

func TestAdminEndpoints(t *testing.T) {
	_, srv := startTestArena(t)

	if _, body := getBody(t, srv.URL+"/healthz"); string(body) != "ok" {
		t.Errorf("healthz = %q", body)
	}

	_, body := getBody(t, srv.URL+"/admin/config")
	var cfg sim.Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		t.Fatalf("config unmarshal: %v", err)
	}
	if cfg.Floor.Width != 40 || len(cfg.Sonars) != 3 {
		t.Errorf("unexpected config %+v", cfg)
	}

	resp, body := getBody(t, srv.URL+"/pair.png")
	if resp.Header.Get("Content-Type") != "image/png" {
		t.Errorf("content type = %s", resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("\x89PNG")) {
		t.Error("pair.png is not a PNG")
	}

	if _, body := getBody(t, srv.URL+"/protocol/schema"); !strings.Contains(string(body), "keyCode") {
		t.Errorf("schema missing keyCode: %s", body)
	}

	_, body = getBody(t, srv.URL+"/metrics")
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		t.Fatalf("metrics unmarshal: %v", err)
	}
	if _, ok := m["metrics"]; !ok {
		t.Errorf("metrics payload = %v", m)
	}

	if resp, _ := getBody(t, srv.URL+"/admin/journal"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("journal without sqlite: status %d", resp.StatusCode)
	}

	resp, err := http.Post(srv.URL+"/admin/config", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("config should be read-only, got %d", resp.StatusCode)
	}
}

func TestAdminViewport(t *testing.T) {
	arena, srv := startTestArena(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/admin/viewport", "application/json",
			strings.NewReader(`{"width":800,"height":400}`))
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
	}
	cam := arena.Sim.Camera()
	if cam.Width != 800 || cam.Height != 400 || cam.Aspect != 2 {
		t.Errorf("camera = %+v", cam)
	}

	resp, err := http.Post(srv.URL+"/admin/viewport", "application/json", strings.NewReader(`nope`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: status %d", resp.StatusCode)
	}
}
