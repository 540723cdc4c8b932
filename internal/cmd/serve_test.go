package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/phantom/internal/db"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunServe(t *testing.T) {
	_, cfg := writeConfig(t)
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DBPath())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Sessions().Create(ctx, &db.Session{SessionID: 1, Command: "sh"}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	database.Close()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- runServe(serveCtx, cfg, ln, &out, io.Discard) }()

	base := "http://" + ln.Addr().String()
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never became healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	second, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	err = runServe(ctx, cfg, second, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "already using") {
		t.Fatalf("second server = %v, want lock error", err)
	}

	req, _ := http.NewRequest(http.MethodGet, base+"/api/history?status=lost", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("history request: %v", err)
	}
	var lost []db.Session
	if err := json.NewDecoder(resp.Body).Decode(&lost); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	resp.Body.Close()
	if len(lost) != 1 || lost[0].SessionID != 1 {
		t.Fatalf("lost sessions = %+v", lost)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServe = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("runServe did not return")
	}
	if !strings.Contains(out.String(), "token=test-token") {
		t.Fatalf("banner = %q", out.String())
	}
}
