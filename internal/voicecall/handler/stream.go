package handler

import (
	"context"
	"encoding/json"
	"net"

	"voice-agent-server/internal/agent"
	"voice-agent-server/internal/observability"
	"voice-agent-server/internal/voice/audio"
	"voice-agent-server/internal/voice/pipeline"
	"voice-agent-server/internal/voice/recorder"
	"voice-agent-server/internal/voicecall/plivo"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// streamContentType is the audio format negotiated with Plivo in the
// answer XML and decoded on the stream socket.
const streamContentType = "audio/x-l16;rate=16000"

// HandleStream bridges one Plivo audio stream to a voice agent session.
// The first frame must be a "start" event carrying the stream ID;
// anything else closes the connection without starting a session.
func (h *Handler) HandleStream(c *gin.Context) {
	ctx := c.Request.Context()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error(ctx, "WebSocket upgrade failed", err)
		return
	}
	defer conn.Close()

	_, first, err := conn.ReadMessage()
	if err != nil {
		h.logger.Error(ctx, "Failed to read stream start event", err)
		return
	}

	var event plivo.StreamEvent
	if err := json.Unmarshal(first, &event); err != nil {
		h.logger.Error(ctx, "Malformed stream start event", err)
		return
	}
	if event.Event != "start" {
		h.logger.Warn(ctx, "Expected start event, got "+event.Event)
		return
	}

	ctx = observability.WithFields(ctx, observability.Field{Key: "stream_id", Value: event.Start.StreamID})
	h.logger.Info(ctx, "Plivo stream started")

	h.runSession(ctx, conn, event.Start.StreamID)
}

// runSession wires socket, pipeline and agent together and blocks until
// the call ends. Every component is torn down on every exit path.
func (h *Handler) runSession(parent context.Context, conn *websocket.Conn, streamID string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	pipeCfg := pipeline.DefaultConfig()
	codec := audio.ForContentType(streamContentType)

	session := plivo.NewSocketSession(conn, streamID, codec, pipeCfg.AudioOutSampleRate, h.logger)
	defer session.Stop()

	plivoIn := make(chan []byte, pipeCfg.BufferSize)
	plivoOut := make(chan []byte, pipeCfg.BufferSize)

	audioPipeline, err := pipeline.NewAudioPipeline(plivoIn, plivoOut, h.logger, pipeCfg)
	if err != nil {
		h.logger.Error(ctx, "Failed to create pipeline", err)
		return
	}
	defer audioPipeline.Stop()

	voiceAgent := h.voiceProcessor.NewVoiceAgent()
	voiceAgent.SetInterruptionListener(&clearAudioListener{session: session, logger: h.logger})

	if err := audioPipeline.ConnectSink(voiceAgent.AudioIn(), voiceAgent.AudioOut()); err != nil {
		h.logger.Error(ctx, "Failed to connect voice agent sink", err)
		return
	}

	audioPipeline.AddSessionListener(&agentLifecycle{agent: voiceAgent, cancel: cancel})
	audioPipeline.AddAudioDataListener(&recordingListener{
		recorder:   h.recorder,
		serverName: serverNameFor(conn),
		logger:     h.logger,
	})

	if err := voiceAgent.Start(ctx); err != nil {
		h.logger.Error(ctx, "Failed to start voice agent", err)
		return
	}
	defer voiceAgent.Stop()

	if err := audioPipeline.Start(ctx); err != nil {
		h.logger.Error(ctx, "Failed to start pipeline", err)
		return
	}

	session.Start(ctx, plivoIn, plivoOut)

	<-ctx.Done()
	h.logger.Info(ctx, "Voice agent session ended")
}

// serverNameFor derives the recording file prefix from the peer port, so
// concurrent sessions archive to distinct files.
func serverNameFor(conn *websocket.Conn) string {
	_, port, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return "server_unknown"
	}
	return "server_" + port
}

// agentLifecycle greets the caller when the stream connects and tears the
// session down when it disconnects.
type agentLifecycle struct {
	agent  *agent.VoiceAgent
	cancel context.CancelFunc
}

func (l *agentLifecycle) OnClientConnected(ctx context.Context) {
	l.agent.QueueIntroduction(ctx)
}

func (l *agentLifecycle) OnClientDisconnected(ctx context.Context) {
	l.cancel()
}

// clearAudioListener drops Plivo's queued playback when the caller
// interrupts the assistant.
type clearAudioListener struct {
	session *plivo.SocketSession
	logger  *observability.Logger
}

func (l *clearAudioListener) OnInterruption(ctx context.Context) {
	if err := l.session.ClearAudio(); err != nil {
		l.logger.Error(ctx, "Failed to clear queued audio", err)
	}
}

// recordingListener archives flushed call audio to WAV files.
type recordingListener struct {
	recorder   *recorder.Recorder
	serverName string
	logger     *observability.Logger
}

func (l *recordingListener) OnAudioData(ctx context.Context, pcm []byte, sampleRate, numChannels int) {
	if _, err := l.recorder.SaveAudio(ctx, l.serverName, pcm, sampleRate, numChannels); err != nil {
		l.logger.Error(ctx, "Failed to save call recording", err)
	}
}
