package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/gorilla/websocket"
)

func TestListenURL(t *testing.T) {
	raw := listenURL(deepgramListenURL, LiveTranscriptionConfig{
		Model:          "nova-2",
		Language:       "en",
		SampleRate:     16000,
		Channels:       1,
		EndpointingMS:  300,
		InterimResults: true,
		VADEvents:      true,
	})

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL: %v", err)
	}
	q := u.Query()
	for key, want := range map[string]string{
		"model":           "nova-2",
		"language":        "en",
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"endpointing":     "300",
		"interim_results": "true",
		"vad_events":      "true",
		"smart_format":    "true",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query %s = %q, want %q", key, got, want)
		}
	}
}

func TestStartLiveTranscription_ReaderStopsOnCancel(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	// Floods more events than the result buffer holds, then keeps the
	// socket open so only cancellation can end the session.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		msg := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`)
		for i := 0; i < 100; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := &Client{
		apiKey:  "test-key",
		baseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		logger:  observability.NewLogger(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	audioStream := make(chan []byte)

	results, err := c.StartLiveTranscription(ctx, audioStream, LiveTranscriptionConfig{
		Model: "nova-2", Language: "en", SampleRate: 16000, Channels: 1,
	})
	if err != nil {
		t.Fatalf("StartLiveTranscription failed: %v", err)
	}

	// Let the reader fill the buffer and block, then cancel without ever
	// consuming a result.
	time.Sleep(100 * time.Millisecond)
	cancel()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-results:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("results channel not closed after cancellation")
		}
	}
}
