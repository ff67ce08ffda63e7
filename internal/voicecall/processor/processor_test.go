package processor

import (
	"context"
	"errors"
	"testing"

	"voice-agent-server/internal/agent"
	"voice-agent-server/internal/config"
	"voice-agent-server/internal/observability"

	"go.uber.org/mock/gomock"
)

func testTelephony() config.TelephonyConfig {
	return config.TelephonyConfig{
		AuthID:     "auth-id",
		AuthToken:  "auth-token",
		FromNumber: "+15550001111",
		ToNumber:   "+15550002222",
		AnswerURL:  "https://example.ngrok.app/webhook",
	}
}

func TestStartOutboundCall_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCalls := NewMockCallCreator(ctrl)
	logger := observability.NewLogger()

	p := New(mockCalls, testTelephony(), agent.DefaultConfig(), nil, nil, nil, logger)

	mockCalls.EXPECT().
		CreateCall(gomock.Any(), "+15550001111", "+15550002222", "https://example.ngrok.app/webhook").
		Return("abc-123", nil)

	callUUID, err := p.StartOutboundCall(context.Background(), "")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if callUUID != "abc-123" {
		t.Errorf("expected call UUID abc-123, got %q", callUUID)
	}
}

func TestStartOutboundCall_OverridesDestination(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCalls := NewMockCallCreator(ctrl)
	p := New(mockCalls, testTelephony(), agent.DefaultConfig(), nil, nil, nil, observability.NewLogger())

	mockCalls.EXPECT().
		CreateCall(gomock.Any(), "+15550001111", "+15559998888", gomock.Any()).
		Return("def-456", nil)

	callUUID, err := p.StartOutboundCall(context.Background(), "+15559998888")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if callUUID != "def-456" {
		t.Errorf("expected call UUID def-456, got %q", callUUID)
	}
}

func TestStartOutboundCall_NotConfigured(t *testing.T) {
	// No CallCreator at all: the mock would fail the test if any network
	// call were attempted.
	p := New(nil, config.TelephonyConfig{}, agent.DefaultConfig(), nil, nil, nil, observability.NewLogger())

	_, err := p.StartOutboundCall(context.Background(), "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestStartOutboundCall_ProviderError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockCalls := NewMockCallCreator(ctrl)
	p := New(mockCalls, testTelephony(), agent.DefaultConfig(), nil, nil, nil, observability.NewLogger())

	providerErr := errors.New("insufficient balance")
	// Exactly one attempt: calls are billed and must not be retried.
	mockCalls.EXPECT().
		CreateCall(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return("", providerErr).
		Times(1)

	_, err := p.StartOutboundCall(context.Background(), "")
	if !errors.Is(err, providerErr) {
		t.Errorf("expected provider error to propagate, got %v", err)
	}
}
