package plivo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/voice/audio"

	"github.com/gorilla/websocket"
)

// StreamEvent is the wire shape of Plivo audio-stream messages.
type StreamEvent struct {
	Event string `json:"event"`
	Start struct {
		StreamID string `json:"streamId"`
		CallID   string `json:"callId"`
	} `json:"start,omitempty"`
	Media struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	Stop struct {
		StreamID string `json:"streamId"`
	} `json:"stop,omitempty"`
}

// playAudioMedia is the outbound media body for Plivo playAudio events.
type playAudioMedia struct {
	ContentType string `json:"contentType"`
	SampleRate  int    `json:"sampleRate"`
	Payload     string `json:"payload"`
}

// SocketSession owns one Plivo audio WebSocket for the lifetime of a
// call: it decodes inbound media into the pipeline and encodes pipeline
// audio back out as playAudio events.
type SocketSession struct {
	conn       *websocket.Conn
	logger     *observability.Logger
	streamID   string
	codec      audio.Codec
	sampleRate int
	writeMutex sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewSocketSession(conn *websocket.Conn, streamID string, codec audio.Codec, sampleRate int, logger *observability.Logger) *SocketSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &SocketSession{
		conn:       conn,
		logger:     logger,
		streamID:   streamID,
		codec:      codec,
		sampleRate: sampleRate,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the receive and send loops. audioIn is closed when the
// caller disconnects, which is how the pipeline learns about hangup.
func (s *SocketSession) Start(ctx context.Context, audioIn chan<- []byte, audioOut <-chan []byte) {
	sessionCtx, cancel := context.WithCancel(ctx)
	s.ctx = sessionCtx
	oldCancel := s.cancel
	s.cancel = func() {
		cancel()
		oldCancel()
	}

	go s.sendLoop(audioOut)
	go s.receiveLoop(audioIn)
}

func (s *SocketSession) receiveLoop(audioIn chan<- []byte) {
	defer close(audioIn)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info(s.ctx, "Stream receive stopped: context cancelled")
			return
		default:
			_, msg, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Info(s.ctx, "Stream socket closed normally")
				} else if s.ctx.Err() == nil {
					s.logger.Error(s.ctx, "Stream socket read error", err)
				}
				return
			}

			var event StreamEvent
			if err := json.Unmarshal(msg, &event); err != nil {
				s.logger.Error(s.ctx, "Failed to parse stream event", err)
				continue
			}

			switch event.Event {
			case "media":
				payload, err := audio.Base64ToBytes(event.Media.Payload)
				if err != nil {
					s.logger.Error(s.ctx, "Failed to decode media payload", err)
					continue
				}

				select {
				case audioIn <- s.codec.Decode(payload):
				case <-s.ctx.Done():
					return
				default:
					s.logger.Warn(s.ctx, "Audio input buffer full, dropping chunk")
				}

			case "stop":
				s.logger.Info(s.ctx, fmt.Sprintf("Stream stopped: %s", event.Stop.StreamID))
				return

			default:
				s.logger.Debug(s.ctx, fmt.Sprintf("Ignoring stream event: %s", event.Event))
			}
		}
	}
}

func (s *SocketSession) sendLoop(audioOut <-chan []byte) {
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info(s.ctx, "Stream send stopped: context cancelled")
			return

		case pcm, ok := <-audioOut:
			if !ok {
				s.logger.Info(s.ctx, "Audio output channel closed")
				return
			}

			msg := map[string]interface{}{
				"event":    "playAudio",
				"streamId": s.streamID,
				"media": playAudioMedia{
					ContentType: contentTypeName(s.codec),
					SampleRate:  s.sampleRate,
					Payload:     audio.BytesToBase64(s.codec.Encode(pcm)),
				},
			}

			if err := s.writeJSON(msg); err != nil {
				if s.ctx.Err() == nil {
					s.logger.Error(s.ctx, "Failed to send audio to stream", err)
				}
				return
			}
		}
	}
}

// ClearAudio asks Plivo to drop any queued assistant audio. Used when
// the caller interrupts the assistant mid-sentence.
func (s *SocketSession) ClearAudio() error {
	return s.writeJSON(map[string]interface{}{
		"event":    "clearAudio",
		"streamId": s.streamID,
	})
}

func (s *SocketSession) writeJSON(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal stream message: %w", err)
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Stop cancels the loops and closes the socket. Always called on session
// exit, whatever the outcome.
func (s *SocketSession) Stop() {
	s.logger.Info(s.ctx, "Stopping stream socket session")
	s.cancel()

	s.writeMutex.Lock()
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMutex.Unlock()

	_ = s.conn.Close()
}

func (s *SocketSession) StreamID() string {
	return s.streamID
}

// contentTypeName strips the rate suffix for the playAudio contentType.
func contentTypeName(codec audio.Codec) string {
	switch codec.(type) {
	case audio.MuLawCodec:
		return "audio/x-mulaw"
	default:
		return "audio/x-l16"
	}
}
