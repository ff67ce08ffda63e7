package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"voice-agent-server/internal/clients/deepgram"
	"voice-agent-server/internal/clients/openai"
	"voice-agent-server/internal/observability"
)

const defaultSystemPrompt = "You are a helpful voice assistant named Mirai. " +
	"Your output will be converted to audio so don't include special characters in your answers. " +
	"Respond with short sentences."

// Transcriber streams speech-to-text results for a PCM audio stream.
type Transcriber interface {
	StartLiveTranscription(ctx context.Context, audioStream <-chan []byte, cfg deepgram.LiveTranscriptionConfig) (<-chan deepgram.TranscriptionResult, error)
}

// ChatStreamer streams one LLM completion for a conversation context.
type ChatStreamer interface {
	StreamChat(ctx context.Context, messages []openai.Message) <-chan openai.StreamResponse
}

// Synthesizer streams synthesized speech for a text chunk into out.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, out chan<- []byte) error
}

// InterruptionListener is notified when user speech cancels in-flight
// assistant speech, so the transport can drop queued audio. It must not
// block; failures are isolated to the callback.
type InterruptionListener interface {
	OnInterruption(ctx context.Context)
}

// Config is the per-call agent configuration.
type Config struct {
	SystemPrompt       string
	SampleRate         int
	AllowInterruptions bool
	EnableVAD          bool
}

func DefaultConfig() Config {
	return Config{
		SystemPrompt:       defaultSystemPrompt,
		SampleRate:         16000,
		AllowInterruptions: true,
		EnableVAD:          true,
	}
}

// VoiceAgent chains speech-to-text, context aggregation, the LLM and
// speech synthesis for one call session. Audio in arrival order flows in
// through AudioIn and synthesized speech flows out through AudioOut.
type VoiceAgent struct {
	cfg    Config
	stt    Transcriber
	llm    ChatStreamer
	tts    Synthesizer
	logger *observability.Logger

	conversation *Conversation

	audioIn  chan []byte
	audioOut chan []byte

	interruptionListener InterruptionListener

	ctx    context.Context
	cancel context.CancelFunc

	// turn state
	turnMu     sync.Mutex
	turnCancel context.CancelFunc
	speaking   bool
	turnWG     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

func New(cfg Config, stt Transcriber, llm ChatStreamer, tts Synthesizer, logger *observability.Logger) *VoiceAgent {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &VoiceAgent{
		cfg:          cfg,
		stt:          stt,
		llm:          llm,
		tts:          tts,
		logger:       logger,
		conversation: NewConversation(cfg.SystemPrompt),
		audioIn:      make(chan []byte, 4096),
		audioOut:     make(chan []byte, 4096),
	}
}

// SetInterruptionListener registers the transport-side interruption hook.
// Must be called before Start.
func (a *VoiceAgent) SetInterruptionListener(l InterruptionListener) {
	a.interruptionListener = l
}

// AudioIn is the channel the pipeline writes caller audio into.
func (a *VoiceAgent) AudioIn() chan []byte { return a.audioIn }

// AudioOut is the channel synthesized assistant audio is read from.
func (a *VoiceAgent) AudioOut() <-chan []byte { return a.audioOut }

// Conversation exposes the accumulated dialogue context.
func (a *VoiceAgent) Conversation() *Conversation { return a.conversation }

// Start opens the transcription stream and begins processing turns. It
// returns once the agent is running; Stop (or ctx cancellation) ends it.
func (a *VoiceAgent) Start(ctx context.Context) error {
	var startErr error
	a.startOnce.Do(func() {
		agentCtx, cancel := context.WithCancel(ctx)
		a.ctx = agentCtx
		a.cancel = cancel

		results, err := a.stt.StartLiveTranscription(agentCtx, a.audioIn, deepgram.LiveTranscriptionConfig{
			Model:          "nova-2",
			Language:       "en",
			SampleRate:     a.cfg.SampleRate,
			Channels:       1,
			EndpointingMS:  300,
			InterimResults: true,
			VADEvents:      a.cfg.EnableVAD,
		})
		if err != nil {
			cancel()
			startErr = fmt.Errorf("failed to start transcription: %w", err)
			return
		}

		go a.transcriptLoop(results)
	})
	return startErr
}

// Stop cancels the running turn and shuts the agent down. Safe to call
// more than once.
func (a *VoiceAgent) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.turnWG.Wait()
		close(a.audioOut)
	})
}

// QueueIntroduction injects an "introduce yourself" system turn and kicks
// off the first LLM turn, so the assistant speaks before the caller does.
func (a *VoiceAgent) QueueIntroduction(ctx context.Context) {
	a.conversation.Append("system", "Please introduce yourself to the user.")
	a.startTurn()
}

// transcriptLoop aggregates user utterances and drives turn-taking.
func (a *VoiceAgent) transcriptLoop(results <-chan deepgram.TranscriptionResult) {
	var utterance strings.Builder

	for {
		select {
		case <-a.ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				a.logger.Info(a.ctx, "Transcription stream ended")
				return
			}

			switch res.Type {
			case "speech_started", "interim":
				// The caller is talking over the assistant.
				if a.cfg.AllowInterruptions && a.isSpeaking() {
					a.interrupt()
				}
			case "final":
				if utterance.Len() > 0 {
					utterance.WriteString(" ")
				}
				utterance.WriteString(res.Transcript)
				if res.SpeechFinal {
					a.completeUserTurn(&utterance)
				}
			case "utterance_end":
				a.completeUserTurn(&utterance)
			case "error":
				a.logger.Error(a.ctx, "Transcription error", res.Err)
			}
		}
	}
}

func (a *VoiceAgent) completeUserTurn(utterance *strings.Builder) {
	text := strings.TrimSpace(utterance.String())
	utterance.Reset()
	if text == "" {
		return
	}

	a.logger.Info(observability.WithFields(a.ctx,
		observability.Field{Key: "transcript", Value: text}),
		"User turn complete")
	a.conversation.Append("user", text)
	a.startTurn()
}

// startTurn runs one LLM completion and streams its sentences through
// TTS. A new turn cancels any in-flight one.
func (a *VoiceAgent) startTurn() {
	a.turnMu.Lock()
	if a.turnCancel != nil {
		a.turnCancel()
	}
	turnCtx, cancel := context.WithCancel(a.ctx)
	a.turnCancel = cancel
	a.speaking = true
	a.turnMu.Unlock()

	a.turnWG.Add(1)
	go func() {
		defer a.turnWG.Done()
		defer a.setSpeaking(false)

		var reply strings.Builder
		var pending strings.Builder

		for res := range a.llm.StreamChat(turnCtx, a.conversation.Messages()) {
			if res.Error != nil {
				a.logger.Error(a.ctx, "LLM turn failed", res.Error)
				return
			}
			if res.Completed {
				break
			}
			reply.WriteString(res.Content)
			pending.WriteString(res.Content)

			if sentence, rest, ok := splitSentence(pending.String()); ok {
				pending.Reset()
				pending.WriteString(rest)
				a.speak(turnCtx, sentence)
			}
		}

		if turnCtx.Err() != nil {
			// Interrupted: the partial reply still happened, keep it.
			if reply.Len() > 0 {
				a.conversation.Append("assistant", reply.String())
			}
			return
		}

		if tail := strings.TrimSpace(pending.String()); tail != "" {
			a.speak(turnCtx, tail)
		}
		if reply.Len() > 0 {
			a.conversation.Append("assistant", reply.String())
		}
	}()
}

// speak synthesizes one chunk of text into the outbound audio channel.
func (a *VoiceAgent) speak(ctx context.Context, text string) {
	if err := a.tts.Synthesize(ctx, text, a.audioOut); err != nil && ctx.Err() == nil {
		a.logger.Error(a.ctx, "Speech synthesis failed", err)
	}
}

// interrupt cancels the in-flight turn and notifies the transport so it
// can drop queued assistant audio.
func (a *VoiceAgent) interrupt() {
	a.turnMu.Lock()
	cancel := a.turnCancel
	a.turnCancel = nil
	a.speaking = false
	a.turnMu.Unlock()

	if cancel == nil {
		return
	}
	a.logger.Info(a.ctx, "User interruption: cancelling assistant turn")
	cancel()

	if l := a.interruptionListener; l != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error(a.ctx, "Interruption listener panicked", fmt.Errorf("reason: %+v", r))
				}
			}()
			l.OnInterruption(a.ctx)
		}()
	}
}

func (a *VoiceAgent) isSpeaking() bool {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()
	return a.speaking
}

func (a *VoiceAgent) setSpeaking(v bool) {
	a.turnMu.Lock()
	a.speaking = v
	a.turnMu.Unlock()
}

// splitSentence returns the first complete sentence of text and the
// remainder. Long sentence-less runs are flushed whole so synthesis is
// never starved by a rambling completion.
func splitSentence(text string) (sentence, rest string, ok bool) {
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			end := i + 1
			return strings.TrimSpace(text[:end]), strings.TrimSpace(text[end:]), true
		}
	}
	if len(text) > 200 {
		return strings.TrimSpace(text), "", true
	}
	return "", text, false
}
