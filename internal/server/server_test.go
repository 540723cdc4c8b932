package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/user/phantom/internal/api"
	"github.com/user/phantom/internal/config"
	"github.com/user/phantom/internal/hub"
	"github.com/user/phantom/internal/terminal"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	svc := terminal.NewService(terminal.Config{})
	t.Cleanup(svc.Shutdown)
	h := hub.New("test-token", svc, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	cfg := config.Default()
	cfg.Token = "test-token"
	return New(cfg, h, api.NewRouter(nil, svc, h, nil, cfg.Token), nil)
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path string
		auth bool
		want int
	}{
		{"/healthz", false, http.StatusOK},
		{"/api/sessions", false, http.StatusUnauthorized},
		{"/api/sessions", true, http.StatusOK},
		{"/nope", false, http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		if tt.auth {
			req.Header.Set("Authorization", "Bearer test-token")
		}
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)
		if rr.Code != tt.want {
			t.Fatalf("GET %s status=%d want %d", tt.path, rr.Code, tt.want)
		}
	}
}

func TestServeAndShutdown(t *testing.T) {
	srv := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	base := "http://" + ln.Addr().String()
	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok\n" {
		t.Fatalf("healthz body = %q", body)
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, _, err := websocket.Dial(dialCtx, "ws://"+ln.Addr().String()+"/ws?token=test-token", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	conn.Close(websocket.StatusNormalClosure, "")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("server did not shut down")
	}
}
