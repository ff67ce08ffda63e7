package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/gorilla/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// keepAliveInterval keeps the Deepgram socket open across silence.
const keepAliveInterval = 5 * time.Second

// LiveTranscriptionConfig holds configuration for one streaming session.
type LiveTranscriptionConfig struct {
	Model          string // e.g. "nova-2"
	Language       string // ISO-639-1 code, e.g. "en"
	SampleRate     int    // PCM sample rate of the inbound audio
	Channels       int
	EndpointingMS  int  // silence window that closes an utterance
	InterimResults bool // emit partial transcripts
	VADEvents      bool // emit SpeechStarted events
}

// TranscriptionResult represents one event from the Deepgram stream.
type TranscriptionResult struct {
	Type        string // "interim", "final", "speech_started", "utterance_end" or "error"
	Transcript  string
	SpeechFinal bool // the utterance is complete, not just the segment
	Err         error
}

// deepgramEvent is the wire shape of Deepgram live messages we care about.
type deepgramEvent struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type Client struct {
	apiKey  string
	baseURL string
	logger  *observability.Logger
}

func NewClient(apiKey string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Deepgram API key is required")
	}
	return &Client{apiKey: apiKey, baseURL: deepgramListenURL, logger: logger}, nil
}

// StartLiveTranscription opens a websocket, streams PCM audio from
// audioStream, and returns a channel of transcription events. The result
// channel closes when the audio stream ends, the context is cancelled, or
// the connection drops.
func (c *Client) StartLiveTranscription(ctx context.Context, audioStream <-chan []byte, cfg LiveTranscriptionConfig) (<-chan TranscriptionResult, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.apiKey)

	conn, _, err := dialer.DialContext(ctx, listenURL(c.baseURL, cfg), headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram: %w", err)
	}

	results := make(chan TranscriptionResult, 32)
	done := make(chan struct{})

	// Sends must not block past cancellation: the consumer may be gone
	// while the buffer is full.
	emit := func(r TranscriptionResult) bool {
		select {
		case results <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Reader: decode events until the socket closes.
	go func() {
		defer close(results)
		defer close(done)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Error(ctx, "Deepgram read error", err)
					emit(TranscriptionResult{Type: "error", Err: err})
				}
				return
			}

			var event deepgramEvent
			if err := json.Unmarshal(msg, &event); err != nil {
				continue
			}

			switch event.Type {
			case "Results":
				if len(event.Channel.Alternatives) == 0 {
					continue
				}
				transcript := event.Channel.Alternatives[0].Transcript
				if transcript == "" {
					continue
				}
				kind := "interim"
				if event.IsFinal {
					kind = "final"
				}
				if !emit(TranscriptionResult{
					Type:        kind,
					Transcript:  transcript,
					SpeechFinal: event.SpeechFinal,
				}) {
					return
				}
			case "SpeechStarted":
				if !emit(TranscriptionResult{Type: "speech_started"}) {
					return
				}
			case "UtteranceEnd":
				if !emit(TranscriptionResult{Type: "utterance_end"}) {
					return
				}
			}
		}
	}()

	// Writer: forward audio, keep the socket alive across silence.
	go func() {
		defer conn.Close()
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
				return
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`)); err != nil {
					return
				}
			case audio, ok := <-audioStream:
				if !ok {
					_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
					return
				}
				if err := conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
					c.logger.Error(ctx, "Failed to send audio to Deepgram", err)
					return
				}
			}
		}
	}()

	return results, nil
}

func listenURL(base string, cfg LiveTranscriptionConfig) string {
	q := url.Values{}
	q.Set("model", cfg.Model)
	q.Set("language", cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", strconv.Itoa(cfg.Channels))
	q.Set("smart_format", "true")
	if cfg.InterimResults {
		q.Set("interim_results", "true")
	}
	if cfg.EndpointingMS > 0 {
		q.Set("endpointing", strconv.Itoa(cfg.EndpointingMS))
	}
	if cfg.VADEvents {
		q.Set("vad_events", "true")
	}
	return base + "?" + q.Encode()
}
