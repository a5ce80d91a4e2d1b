package events

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHandlerReturns503WhenDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	handle := NewHandle(cfg, nil)
	handler := NewHandler(handle, nil)

	req := httptest.NewRequest(http.MethodGet, "/supervisor/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestSSEHandlerStreamsEmittedEvent(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	handler := NewHandler(handle, nil)

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		handle.Emit(TestEvent("hello from test"))
	}()

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), "hello from test") {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("expected SSE stream to contain emitted event")
	}
}

func TestSSEHandlerReplaysBacklogOnLastEventID(t *testing.T) {
	handle := NewHandle(DefaultConfig(), nil)
	handle.Emit(TestEvent("one"))
	handle.Emit(TestEvent("two"))
	handle.Emit(TestEvent("three"))

	handler := NewHandler(handle, nil)
	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Last-Event-Id", "1")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var seenTwo, seenThree bool
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, `"message":"two"`) {
			seenTwo = true
		}
		if strings.Contains(line, `"message":"three"`) {
			seenThree = true
		}
		if seenTwo && seenThree {
			break
		}
	}
	if !seenTwo || !seenThree {
		t.Fatalf("expected backlog replay of events 2 and 3, seenTwo=%v seenThree=%v", seenTwo, seenThree)
	}
}
