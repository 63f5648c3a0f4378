package observer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"sonarchart/internal/observerproto"
	"sonarchart/internal/sim/tuning"
	"sonarchart/internal/sim/world"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func startWorld(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	tun := tuning.Defaults()
	tun.TickRateHz = 100
	w, err := world.New(world.ConfigFromTuning("test", "run-1", tun), quietLogger())
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	srv := NewServer(w, quietLogger(), Options{})
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	mux.HandleFunc("/v1/status", srv.StatusHandler())
	mux.HandleFunc("/v1/ping", srv.PingHandler())
	hs := httptest.NewServer(mux)
	t.Cleanup(func() {
		hs.Close()
		cancel()
		<-done
	})
	return w, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBootstrapReportsWorldParams(t *testing.T) {
	_, hs := startWorld(t)
	resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.ProtocolVersion != observerproto.Version || boot.WorldID != "test" || boot.RunID != "run-1" {
		t.Fatalf("unexpected bootstrap: %+v", boot)
	}
	if boot.WorldParams.TileSize != 33 || boot.WorldParams.TickRateHz != 100 || boot.WorldParams.PingMaxRadius != 64 {
		t.Fatalf("unexpected params: %+v", boot.WorldParams)
	}

	post, err := http.Post(hs.URL+"/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST bootstrap status=%d", post.StatusCode)
	}
}

func TestObserverStreamsTilesAndFrames(t *testing.T) {
	_, hs := startWorld(t)
	conn := dial(t, hs)
	if err := conn.WriteJSON(observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		ViewRadius:      48,
		Tiles:           true,
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	tiles, frames := 0, 0
	deadline := time.Now().Add(5 * time.Second)
	for (tiles < 4 || frames < 2) && time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(b, &head); err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch head.Type {
		case observerproto.TypeTile:
			tiles++
		case observerproto.TypeFrame:
			frames++
		}
	}
	if tiles < 4 || frames < 2 {
		t.Fatalf("got %d tiles and %d frames", tiles, frames)
	}
}

func TestHandshakeRequiresSubscribe(t *testing.T) {
	_, hs := startWorld(t)
	conn := dial(t, hs)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"0.1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestPingAndStatusHandlers(t *testing.T) {
	_, hs := startWorld(t)
	resp, err := http.Post(hs.URL+"/v1/ping", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("ping status=%d", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	resp, err = http.Get(hs.URL + "/v1/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var st world.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.WorldID != "test" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestFrameLimiter(t *testing.T) {
	unlimited := newFrameLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !unlimited.Allow() {
			t.Fatalf("unlimited limiter refused frame %d", i)
		}
	}
	capped := newFrameLimiter(1, 2)
	allowed := 0
	for i := 0; i < 10; i++ {
		if capped.Allow() {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("burst of 2 allowed %d frames", allowed)
	}
}

func TestNormalizeSubscribeClamps(t *testing.T) {
	sub := observerproto.SubscribeMsg{ViewRadius: 5000, MaxPoints: -3}
	normalizeSubscribe(&sub)
	if sub.ViewRadius != 1024 || sub.MaxPoints != 0 {
		t.Fatalf("unexpected clamp: %+v", sub)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5555": true,
		"[::1]:80":       true,
		"10.0.0.2:1234":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}
