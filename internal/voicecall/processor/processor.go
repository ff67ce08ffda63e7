package processor

//go:generate go run go.uber.org/mock/mockgen@latest -source=processor.go -destination=mocks_test.go -package=processor

import (
	"context"
	"errors"

	"voice-agent-server/internal/agent"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/observability"
)

// ErrNotConfigured is returned when telephony credentials are missing
// and outbound call initiation is disabled.
var ErrNotConfigured = errors.New("telephony client not configured")

// CallCreator places outbound calls against the telephony provider.
type CallCreator interface {
	CreateCall(ctx context.Context, from, to, answerURL string) (string, error)
}

// VoiceCallProcessor orchestrates outbound calls and builds the per-call
// voice agent.
type VoiceCallProcessor struct {
	calls     CallCreator // nil when call initiation is disabled
	telephony config.TelephonyConfig
	agentCfg  agent.Config
	stt       agent.Transcriber
	llm       agent.ChatStreamer
	tts       agent.Synthesizer
	logger    *observability.Logger
}

func New(calls CallCreator, telephony config.TelephonyConfig, agentCfg agent.Config,
	stt agent.Transcriber, llm agent.ChatStreamer, tts agent.Synthesizer,
	logger *observability.Logger) *VoiceCallProcessor {
	return &VoiceCallProcessor{
		calls:     calls,
		telephony: telephony,
		agentCfg:  agentCfg,
		stt:       stt,
		llm:       llm,
		tts:       tts,
		logger:    logger,
	}
}

// NewVoiceAgent constructs the agent for one call session. Each session
// gets its own conversation context and audio channels.
func (v *VoiceCallProcessor) NewVoiceAgent() *agent.VoiceAgent {
	return agent.New(v.agentCfg, v.stt, v.llm, v.tts, v.logger)
}
