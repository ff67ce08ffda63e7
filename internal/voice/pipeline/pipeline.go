package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"voice-agent-server/internal/observability"

	"github.com/google/uuid"
)

// SessionListener receives call lifecycle events. Implementations may
// queue frames, start recordings, or request cancellation; they must not
// block. Each invocation is isolated: a panic in one listener is logged
// and does not abort the pipeline.
type SessionListener interface {
	OnClientConnected(ctx context.Context)
	OnClientDisconnected(ctx context.Context)
}

// AudioDataListener is invoked whenever the recording buffer reaches its
// flush threshold, and once more with the remainder when the pipeline
// stops. Same isolation contract as SessionListener.
type AudioDataListener interface {
	OnAudioData(ctx context.Context, pcm []byte, sampleRate, numChannels int)
}

// AudioPipeline moves audio between a fixed source (the telephony socket)
// and a sink (the voice agent) for the lifetime of one call session.
type AudioPipeline struct {
	id     string
	logger *observability.Logger

	// Source side (telephony) - fixed for pipeline lifetime
	sourceIn  <-chan []byte // Audio from source
	sourceOut chan []byte   // Audio to source

	// Sink side (voice agent)
	sinkIn  chan []byte   // Audio to sink
	sinkOut <-chan []byte // Audio from sink
	sinkMu  sync.RWMutex

	// Recording tap
	recBuf []byte
	recMu  sync.Mutex

	// Listeners
	sessionListeners []SessionListener
	audioListeners   []AudioDataListener

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stats Stats
	mu    sync.RWMutex

	config Config
}

// Config is the fixed, per-call configuration surface.
type Config struct {
	BufferSize          int  // internal channel capacity
	AudioInSampleRate   int  // PCM rate on the inbound leg
	AudioOutSampleRate  int  // PCM rate on the outbound leg
	NumChannels         int
	AllowInterruptions  bool // user speech cancels in-flight assistant speech
	EnableMetrics       bool
	EnableVAD           bool // voice activity detection on the STT leg
	RecordingFlushBytes int  // accumulated audio per OnAudioData callback
}

type Stats struct {
	BytesFromSource int64
	BytesToSource   int64
	StartTime       time.Time
	EndTime         time.Time
}

func DefaultConfig() Config {
	return Config{
		BufferSize:          4096,
		AudioInSampleRate:   16000,
		AudioOutSampleRate:  16000,
		NumChannels:         1,
		AllowInterruptions:  true,
		EnableMetrics:       true,
		EnableVAD:           true,
		RecordingFlushBytes: 16000 * 2 * 30, // 30 s of mono s16le
	}
}

func NewAudioPipeline(sourceIn <-chan []byte, sourceOut chan []byte, logger *observability.Logger, config Config) (*AudioPipeline, error) {
	if sourceIn == nil || sourceOut == nil {
		return nil, fmt.Errorf("source channels cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &AudioPipeline{
		id:        uuid.New().String(),
		logger:    logger,
		sourceIn:  sourceIn,
		sourceOut: sourceOut,
		ctx:       ctx,
		cancel:    cancel,
		config:    config,
		stats:     Stats{StartTime: time.Now()},
	}, nil
}

func (p *AudioPipeline) ID() string {
	return p.id
}

func (p *AudioPipeline) Config() Config {
	return p.config
}

// AddSessionListener registers a lifecycle listener. Must be called
// before Start.
func (p *AudioPipeline) AddSessionListener(l SessionListener) {
	p.sessionListeners = append(p.sessionListeners, l)
}

// AddAudioDataListener registers a recording-buffer listener. Must be
// called before Start.
func (p *AudioPipeline) AddAudioDataListener(l AudioDataListener) {
	p.audioListeners = append(p.audioListeners, l)
}

// ConnectSink attaches the sink side of the pipeline.
func (p *AudioPipeline) ConnectSink(inbound chan []byte, outbound <-chan []byte) error {
	if inbound == nil || outbound == nil {
		return fmt.Errorf("sink channels cannot be nil")
	}

	p.sinkMu.Lock()
	defer p.sinkMu.Unlock()
	p.sinkIn = inbound
	p.sinkOut = outbound
	return nil
}

func (p *AudioPipeline) Start(ctx context.Context) error {
	p.sinkMu.RLock()
	if p.sinkIn == nil || p.sinkOut == nil {
		p.sinkMu.RUnlock()
		return fmt.Errorf("sink not connected")
	}
	p.sinkMu.RUnlock()

	// Merge contexts
	pipelineCtx, cancel := context.WithCancel(ctx)
	p.ctx = pipelineCtx
	oldCancel := p.cancel
	p.cancel = func() {
		cancel()
		oldCancel()
	}

	p.logger.Info(ctx, fmt.Sprintf("Starting audio pipeline %s", p.id))

	for _, l := range p.sessionListeners {
		p.invokeIsolated("on_client_connected", func() { l.OnClientConnected(p.ctx) })
	}

	p.wg.Add(2)
	go p.forwardSourceToSink()
	go p.forwardSinkToSource()

	return nil
}

func (p *AudioPipeline) forwardSourceToSink() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info(p.ctx, "Source->Sink flow stopped: context cancelled")
			return

		case pcm, ok := <-p.sourceIn:
			if !ok {
				p.logger.Info(p.ctx, "Source input channel closed")
				for _, l := range p.sessionListeners {
					p.invokeIsolated("on_client_disconnected", func() { l.OnClientDisconnected(p.ctx) })
				}
				p.sinkMu.RLock()
				if p.sinkIn != nil {
					close(p.sinkIn)
				}
				p.sinkMu.RUnlock()
				return
			}

			if p.config.EnableMetrics {
				p.mu.Lock()
				p.stats.BytesFromSource += int64(len(pcm))
				p.mu.Unlock()
			}

			p.appendRecording(pcm)

			p.sinkMu.RLock()
			sinkIn := p.sinkIn
			p.sinkMu.RUnlock()

			if sinkIn != nil {
				select {
				case sinkIn <- pcm:
				case <-time.After(100 * time.Millisecond):
					p.logger.Warn(p.ctx, "Sink input buffer full, dropping audio chunk")
				case <-p.ctx.Done():
					return
				}
			}
		}
	}
}

func (p *AudioPipeline) forwardSinkToSource() {
	defer p.wg.Done()

	p.sinkMu.RLock()
	sinkOut := p.sinkOut
	p.sinkMu.RUnlock()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info(p.ctx, "Sink->Source flow stopped: context cancelled")
			return

		case pcm, ok := <-sinkOut:
			if !ok {
				p.logger.Info(p.ctx, "Sink output channel closed")
				return
			}

			if p.config.EnableMetrics {
				p.mu.Lock()
				p.stats.BytesToSource += int64(len(pcm))
				p.mu.Unlock()
			}

			p.appendRecording(pcm)

			select {
			case p.sourceOut <- pcm:
			case <-time.After(100 * time.Millisecond):
				p.logger.Warn(p.ctx, "Source output buffer full, dropping audio chunk")
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// appendRecording accumulates audio from both legs and flushes to the
// audio listeners once the configured threshold is reached.
func (p *AudioPipeline) appendRecording(pcm []byte) {
	if p.config.RecordingFlushBytes <= 0 || len(p.audioListeners) == 0 {
		return
	}

	p.recMu.Lock()
	p.recBuf = append(p.recBuf, pcm...)
	var flush []byte
	if len(p.recBuf) >= p.config.RecordingFlushBytes {
		flush = p.recBuf
		p.recBuf = nil
	}
	p.recMu.Unlock()

	if flush != nil {
		p.notifyAudioData(flush)
	}
}

func (p *AudioPipeline) notifyAudioData(pcm []byte) {
	for _, l := range p.audioListeners {
		p.invokeIsolated("on_audio_data", func() {
			l.OnAudioData(p.ctx, pcm, p.config.AudioInSampleRate, p.config.NumChannels)
		})
	}
}

// invokeIsolated runs one listener callback, containing any panic so a
// failing callback cannot abort the pipeline.
func (p *AudioPipeline) invokeIsolated(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error(p.ctx, fmt.Sprintf("Listener %s panicked", name), fmt.Errorf("reason: %+v", r))
		}
	}()
	fn()
}

// Stop cancels the pipeline, waits for its goroutines, and flushes the
// remaining recording buffer.
func (p *AudioPipeline) Stop() {
	p.logger.Info(p.ctx, fmt.Sprintf("Stopping audio pipeline %s", p.id))

	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	p.stats.EndTime = time.Now()
	p.mu.Unlock()

	p.recMu.Lock()
	remainder := p.recBuf
	p.recBuf = nil
	p.recMu.Unlock()
	if len(remainder) > 0 {
		p.notifyAudioData(remainder)
	}

	p.logger.Info(p.ctx, fmt.Sprintf("Audio pipeline %s stopped", p.id))
}

func (p *AudioPipeline) GetStats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := p.stats
	if stats.EndTime.IsZero() {
		stats.EndTime = time.Now()
	}
	return stats
}
