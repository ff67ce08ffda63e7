package handler

import (
	"net/http"

	"voice-agent-server/internal/config"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/voice/recorder"
	"voice-agent-server/internal/voicecall/processor"

	"github.com/gorilla/websocket"
)

type Handler struct {
	voiceProcessor *processor.VoiceCallProcessor
	recorder       *recorder.Recorder
	telephony      config.TelephonyConfig
	logger         *observability.Logger
}

func New(voiceProcessor *processor.VoiceCallProcessor, rec *recorder.Recorder,
	telephony config.TelephonyConfig, logger *observability.Logger) Handler {
	return Handler{
		voiceProcessor: voiceProcessor,
		recorder:       rec,
		telephony:      telephony,
		logger:         logger,
	}
}

// upgrader is a shared WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Add proper origin validation for production
		return true
	},
}
