package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"voice-agent-server/internal/observability"
)

type recordingListener struct {
	mu      sync.Mutex
	flushes [][]byte
	rates   []int
}

func (l *recordingListener) OnAudioData(_ context.Context, pcm []byte, sampleRate, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushes = append(l.flushes, pcm)
	l.rates = append(l.rates, sampleRate)
}

type lifecycleListener struct {
	mu           sync.Mutex
	connected    int
	disconnected int
}

func (l *lifecycleListener) OnClientConnected(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected++
}

func (l *lifecycleListener) OnClientDisconnected(context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected++
}

type panickyListener struct{}

func (panickyListener) OnClientConnected(context.Context)    { panic("boom") }
func (panickyListener) OnClientDisconnected(context.Context) { panic("boom") }

func newTestPipeline(t *testing.T, cfg Config) (*AudioPipeline, chan []byte, chan []byte, chan []byte, chan []byte) {
	t.Helper()
	sourceIn := make(chan []byte, 16)
	sourceOut := make(chan []byte, 16)
	sinkIn := make(chan []byte, 16)
	sinkOut := make(chan []byte, 16)

	p, err := NewAudioPipeline(sourceIn, sourceOut, observability.NewLogger(), cfg)
	if err != nil {
		t.Fatalf("NewAudioPipeline failed: %v", err)
	}
	if err := p.ConnectSink(sinkIn, sinkOut); err != nil {
		t.Fatalf("ConnectSink failed: %v", err)
	}
	return p, sourceIn, sourceOut, sinkIn, sinkOut
}

func TestPipeline_ForwardsBothDirections(t *testing.T) {
	p, sourceIn, sourceOut, sinkIn, sinkOut := newTestPipeline(t, DefaultConfig())

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	sourceIn <- []byte{1, 2, 3, 4}
	select {
	case got := <-sinkIn:
		if len(got) != 4 {
			t.Errorf("expected 4 bytes at sink, got %d", len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("audio never reached sink")
	}

	sinkOut <- []byte{5, 6}
	select {
	case got := <-sourceOut:
		if len(got) != 2 {
			t.Errorf("expected 2 bytes at source, got %d", len(got))
		}
	case <-time.After(time.Second):
		t.Fatal("audio never reached source")
	}
}

func TestPipeline_StartRequiresSink(t *testing.T) {
	sourceIn := make(chan []byte)
	sourceOut := make(chan []byte)
	p, err := NewAudioPipeline(sourceIn, sourceOut, observability.NewLogger(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewAudioPipeline failed: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Error("expected error starting pipeline without a sink")
	}
}

func TestPipeline_LifecycleCallbacks(t *testing.T) {
	p, sourceIn, _, sinkIn, _ := newTestPipeline(t, DefaultConfig())

	lifecycle := &lifecycleListener{}
	p.AddSessionListener(lifecycle)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	lifecycle.mu.Lock()
	connected := lifecycle.connected
	lifecycle.mu.Unlock()
	if connected != 1 {
		t.Errorf("expected 1 connect callback, got %d", connected)
	}

	// Client disconnect: the source input closes.
	close(sourceIn)

	select {
	case _, ok := <-sinkIn:
		if ok {
			t.Error("expected sink input to be closed after disconnect")
		}
	case <-time.After(time.Second):
		t.Fatal("sink input never closed")
	}

	lifecycle.mu.Lock()
	disconnected := lifecycle.disconnected
	lifecycle.mu.Unlock()
	if disconnected != 1 {
		t.Errorf("expected 1 disconnect callback, got %d", disconnected)
	}

	p.Stop()
}

func TestPipeline_PanickingListenerDoesNotAbort(t *testing.T) {
	p, sourceIn, _, sinkIn, _ := newTestPipeline(t, DefaultConfig())

	p.AddSessionListener(panickyListener{})
	lifecycle := &lifecycleListener{}
	p.AddSessionListener(lifecycle)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop()

	// The panicking listener must not prevent later listeners or audio flow.
	lifecycle.mu.Lock()
	connected := lifecycle.connected
	lifecycle.mu.Unlock()
	if connected != 1 {
		t.Errorf("expected later listener to still run, got %d calls", connected)
	}

	sourceIn <- []byte{1, 2}
	select {
	case <-sinkIn:
	case <-time.After(time.Second):
		t.Fatal("pipeline stopped forwarding after listener panic")
	}
}

func TestPipeline_RecordingFlushThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecordingFlushBytes = 8

	p, sourceIn, _, sinkIn, _ := newTestPipeline(t, cfg)
	rec := &recordingListener{}
	p.AddAudioDataListener(rec)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sourceIn <- make([]byte, 6)
	<-sinkIn
	sourceIn <- make([]byte, 6)
	<-sinkIn

	deadline := time.After(time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.flushes)
		rec.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("recording buffer never flushed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	rec.mu.Lock()
	first := rec.flushes[0]
	rate := rec.rates[0]
	rec.mu.Unlock()
	if len(first) < 8 {
		t.Errorf("expected flush of at least 8 bytes, got %d", len(first))
	}
	if rate != cfg.AudioInSampleRate {
		t.Errorf("expected sample rate %d, got %d", cfg.AudioInSampleRate, rate)
	}

	p.Stop()
}

func TestPipeline_StopFlushesRemainder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecordingFlushBytes = 1 << 20 // never reached during the test

	p, sourceIn, _, sinkIn, _ := newTestPipeline(t, cfg)
	rec := &recordingListener{}
	p.AddAudioDataListener(rec)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sourceIn <- make([]byte, 320)
	<-sinkIn

	p.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.flushes) != 1 {
		t.Fatalf("expected one final flush, got %d", len(rec.flushes))
	}
	if len(rec.flushes[0]) != 320 {
		t.Errorf("expected 320 buffered bytes, got %d", len(rec.flushes[0]))
	}
}

func TestPipeline_StatsCountBytes(t *testing.T) {
	p, sourceIn, _, sinkIn, _ := newTestPipeline(t, DefaultConfig())

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	sourceIn <- make([]byte, 100)
	<-sinkIn

	p.Stop()

	stats := p.GetStats()
	if stats.BytesFromSource != 100 {
		t.Errorf("expected 100 bytes from source, got %d", stats.BytesFromSource)
	}
	if stats.EndTime.Before(stats.StartTime) {
		t.Error("end time precedes start time")
	}
}
