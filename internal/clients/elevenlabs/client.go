package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"voice-agent-server/internal/observability"
)

const (
	streamURLFormat = "https://api.elevenlabs.io/v1/text-to-speech/%s/stream?output_format=%s"
	defaultModelID  = "eleven_turbo_v2_5"

	// outputFormat matches the telephony leg: raw 16-bit PCM at 16 kHz.
	outputFormat = "pcm_16000"

	// chunkSize is the granularity at which synthesized audio is handed
	// downstream (20 ms at 16 kHz mono s16le).
	chunkSize = 640
)

// Client synthesizes speech through the ElevenLabs streaming endpoint.
type Client struct {
	apiKey     string
	voiceID    string
	httpClient *http.Client
	logger     *observability.Logger
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func NewClient(apiKey, voiceID string, logger *observability.Logger) (*Client, error) {
	if apiKey == "" || voiceID == "" {
		return nil, fmt.Errorf("ElevenLabs API key and voice ID are required")
	}
	return &Client{
		apiKey:  apiKey,
		voiceID: voiceID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}, nil
}

// Synthesize streams TTS audio for text into out as fixed-size PCM chunks.
// It returns once the full response has been consumed or ctx is cancelled;
// cancellation mid-stream is how an interruption cuts the assistant off.
func (c *Client) Synthesize(ctx context.Context, text string, out chan<- []byte) error {
	payload, err := json.Marshal(synthesizeRequest{Text: text, ModelID: defaultModelID})
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf(streamURLFormat, c.voiceID, outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("synthesis returned status %d: %s", resp.StatusCode, string(body))
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := io.ReadFull(resp.Body, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case out <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read synthesis stream: %w", err)
		}
	}
}
