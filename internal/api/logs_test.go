package api

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

func TestStreamLogsNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/nonexistent/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamLogsFinishedRun(t *testing.T) {
	srv := newTestServer(t)
	r := seedRun(t, srv, "smoke")
	if err := srv.store.FinishRun(context.Background(), r.ID, 0, 0, 0); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/" + r.ID + "/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestStreamLogsReceivesEvents(t *testing.T) {
	srv := newTestServer(t)
	r := seedRun(t, srv, "smoke")

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/" + r.ID + "/logs")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	// Publish after the subscription is active, then close the topic.
	go func() {
		time.Sleep(50 * time.Millisecond)
		srv.broker.Publish(r.ID, "Running test: t1")
		srv.broker.Close(r.ID)
	}()

	reader := bufio.NewReader(resp.Body)
	var sawData, sawDone bool
	deadline := time.After(5 * time.Second)
	lineCh := make(chan string)
	go func() {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(lineCh)
				return
			}
			lineCh <- line
		}
	}()

	for !sawDone {
		select {
		case line, ok := <-lineCh:
			if !ok {
				t.Fatal("stream closed before done event")
			}
			if strings.HasPrefix(line, "data: Running test: t1") {
				sawData = true
			}
			if strings.HasPrefix(line, "event: done") {
				sawDone = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for SSE events")
		}
	}
	if !sawData {
		t.Error("never received the published log line")
	}
}

func TestGetLogHistory(t *testing.T) {
	srv := newTestServer(t)
	r := seedRun(t, srv, "smoke")

	ctx := context.Background()
	for i, line := range []string{"Running test: a", "Running test: b"} {
		if err := srv.store.InsertLogLine(ctx, r.ID, i, line); err != nil {
			t.Fatalf("InsertLogLine: %v", err)
		}
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/" + r.ID + "/logs/history")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body logHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Lines) != 2 || body.Lines[0].Line != "Running test: a" || body.Lines[1].Seq != 1 {
		t.Errorf("lines = %+v, want two ordered lines", body.Lines)
	}
}
