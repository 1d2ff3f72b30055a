package broadcast

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHandlerStreamsEvents(t *testing.T) {
	b, err := New(oneWorkspace(), fastConfig(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	runBroadcaster(t, b)

	server := httptest.NewServer(NewSSEHandler(b, nil))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	reader := bufio.NewReader(resp.Body)
	var data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before a data line: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
			break
		}
	}

	var evt Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("data line is not an Event: %v", err)
	}
	if evt.Type != EventWorkspaceUpdate {
		t.Errorf("type = %q, want %q", evt.Type, EventWorkspaceUpdate)
	}
	if len(evt.Workspaces) != 1 {
		t.Errorf("workspaces = %d, want 1", len(evt.Workspaces))
	}
}

func TestSSEHandlerDisconnectReleasesSubscription(t *testing.T) {
	b, err := New(oneWorkspace(), fastConfig(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	runBroadcaster(t, b)

	server := httptest.NewServer(NewSSEHandler(b, nil))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}

	// Read one event, then abandon the connection.
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended early: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	cancel()
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for b.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released, count = %d", b.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
