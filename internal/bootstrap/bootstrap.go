package bootstrap

import (
	"context"
	"fmt"

	"voice-agent-server/internal/agent"
	deepgramClient "voice-agent-server/internal/clients/deepgram"
	elevenlabsClient "voice-agent-server/internal/clients/elevenlabs"
	openaiClient "voice-agent-server/internal/clients/openai"
	plivoClient "voice-agent-server/internal/clients/plivo"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/voice/recorder"
	voiceCallHandler "voice-agent-server/internal/voicecall/handler"
	voiceCallProcessor "voice-agent-server/internal/voicecall/processor"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	Logger           *observability.Logger
	VoiceCallHandler voiceCallHandler.Handler
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Telephony is optional: without credentials the server still answers
	// webhooks and bridges streams, it just cannot place outbound calls.
	var calls voiceCallProcessor.CallCreator
	if cfg.Telephony.CallInitiationEnabled() {
		plivo, err := plivoClient.NewClient(cfg.Telephony.AuthID, cfg.Telephony.AuthToken, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create plivo client: %w", err)
		}
		calls = plivo
	} else {
		logger.Warn(ctx, "Missing Plivo configuration. Outbound call initiation will not work.")
	}

	stt, err := deepgramClient.NewClient(cfg.Services.DeepgramAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create deepgram client: %w", err)
	}

	llm, err := openaiClient.NewLLMClient(cfg.Services.OpenAIAPIKey, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	tts, err := elevenlabsClient.NewClient(cfg.Services.ElevenLabsAPIKey, cfg.Services.ElevenLabsVoiceID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create elevenlabs client: %w", err)
	}

	rec := recorder.New(cfg.Recordings.Dir, logger)

	proc := voiceCallProcessor.New(calls, cfg.Telephony, agent.DefaultConfig(), stt, llm, tts, logger)
	deps.VoiceCallHandler = voiceCallHandler.New(proc, rec, cfg.Telephony, logger)

	return deps, nil
}
